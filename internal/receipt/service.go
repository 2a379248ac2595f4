package receipt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/receipt-items/internal/scanning"
)

// ExtractOptions controls the verification stages of an extraction
type ExtractOptions struct {
	// AutoVerify resolves flagged names with one search-grounded model request
	AutoVerify bool
	// Verifier is called for each item still flagged after automatic verification
	Verifier Verifier
}

// Service extracts line items from receipt images.
// It holds no per-call state and is safe for concurrent use.
type Service struct {
	model          scanning.Model
	searchVerifier *SearchVerifier
	idGenerator    IDGenerator
}

// NewService creates a new Service that uses the same model for extraction and grounded search
func NewService(model scanning.Model) *Service {
	return &Service{
		model:          model,
		searchVerifier: NewSearchVerifier(model),
		idGenerator:    &defaultIDGenerator{},
	}
}

// NewServiceWithDeps creates a new Service with custom dependencies for testing.
// A nil searchVerifier disables automatic verification.
func NewServiceWithDeps(model scanning.Model, searchVerifier *SearchVerifier, idGen IDGenerator) *Service {
	return &Service{
		model:          model,
		searchVerifier: searchVerifier,
		idGenerator:    idGen,
	}
}

// ExtractItems reads the line items on a receipt image.
// Upstream and parse failures are returned; verification failures only leave items flagged.
func (s *Service) ExtractItems(ctx context.Context, img *scanning.Image, opts ExtractOptions) ([]LineItem, error) {
	if img == nil {
		return nil, fmt.Errorf("%w: no image", scanning.ErrUnsupportedImage)
	}

	responseText, err := s.model.Generate(ctx, scanning.Request{
		Image:  img,
		Prompt: scanning.ExtractionPrompt,
	})
	if err != nil {
		if !errors.Is(err, scanning.ErrUpstreamCall) {
			err = fmt.Errorf("%w: %w", scanning.ErrUpstreamCall, err)
		}
		return nil, fmt.Errorf("analyzing receipt image: %w", err)
	}
	if strings.TrimSpace(responseText) == "" {
		return nil, fmt.Errorf("analyzing receipt image: %w: %w", scanning.ErrUpstreamCall, scanning.ErrEmptyResponse)
	}

	raw, err := Parse(responseText)
	if err != nil {
		return nil, err
	}

	items := MergeAttachments(raw)

	s.verify(ctx, items, responseText, opts)

	return finalize(s.idGenerator, items), nil
}

// verify runs automatic verification then the caller's verifier, absorbing every failure
func (s *Service) verify(ctx context.Context, items []Item, responseText string, opts ExtractOptions) {
	if opts.AutoVerify && len(pendingNames(items)) > 0 {
		if s.searchVerifier == nil {
			slog.Warn("Automatic verification requested but no search verifier is configured")
		} else {
			res, err := s.searchVerifier.BatchVerify(ctx, items)
			if err != nil {
				slog.Warn("Automatic verification failed", "error", err)
			}
			resolved := ApplyResolutions(items, res)
			slog.Info("Automatic verification finished", "resolved", resolved)
		}
	}

	if opts.Verifier != nil && len(pendingNames(items)) > 0 {
		vc := VerificationContext{RawText: responseText, Items: cloneItems(items)}
		resolved := ApplyVerifier(ctx, items, opts.Verifier, vc)
		slog.Info("Caller verification finished", "resolved", resolved)
	}
}
