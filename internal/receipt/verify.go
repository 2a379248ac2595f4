package receipt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/zombor/receipt-items/internal/scanning"
)

// VerificationContext is the read-only snapshot handed to a Verifier
type VerificationContext struct {
	// RawText is the full model reply the items were parsed from
	RawText string
	// Items are the merged items as they stand when caller verification starts
	Items []Item
}

func (vc VerificationContext) clone() VerificationContext {
	return VerificationContext{RawText: vc.RawText, Items: cloneItems(vc.Items)}
}

// VerificationResult carries a resolved product name
type VerificationResult struct {
	VerifiedName string `json:"verifiedName"`
}

// Verifier resolves an ambiguous product name.
// A nil result or an empty VerifiedName leaves the item unresolved.
type Verifier interface {
	Verify(ctx context.Context, name string, vc VerificationContext) (*VerificationResult, error)
}

// VerifyFunc adapts a function to the Verifier interface
type VerifyFunc func(ctx context.Context, name string, vc VerificationContext) (*VerificationResult, error)

func (f VerifyFunc) Verify(ctx context.Context, name string, vc VerificationContext) (*VerificationResult, error) {
	return f(ctx, name, vc)
}

// Resolutions is an immutable original-name to verified-name mapping built from one batch reply
type Resolutions struct {
	names map[string]string
}

// Lookup returns the verified name for an original name
func (r Resolutions) Lookup(name string) (string, bool) {
	verified, ok := r.names[name]
	return verified, ok
}

// Len returns the number of resolved names
func (r Resolutions) Len() int {
	return len(r.names)
}

// verificationEntry is one element of the grounded model's reply
type verificationEntry struct {
	Index        int    `json:"index"`
	OriginalName string `json:"originalName"`
	VerifiedName string `json:"verifiedName"`
	Found        bool   `json:"found"`
}

// SearchVerifier resolves ambiguous names in a single search-grounded model request
type SearchVerifier struct {
	model scanning.Model
}

// NewSearchVerifier creates a SearchVerifier backed by a model that supports grounded search
func NewSearchVerifier(model scanning.Model) *SearchVerifier {
	return &SearchVerifier{model: model}
}

// BatchVerify asks the model to resolve every item flagged for verification.
// An unparsable reply yields empty Resolutions; only a failed model call returns an error.
func (v *SearchVerifier) BatchVerify(ctx context.Context, items []Item) (Resolutions, error) {
	names := pendingNames(items)
	if len(names) == 0 {
		return Resolutions{}, nil
	}

	reply, err := v.model.Generate(ctx, scanning.Request{
		Prompt:   scanning.VerificationPrompt(names),
		Grounded: true,
	})
	if err != nil {
		return Resolutions{}, &VerificationError{Err: err}
	}

	entries, err := parseVerificationReply(reply)
	if err != nil {
		slog.Warn("Discarding unparsable verification reply", "error", err)
		return Resolutions{}, nil
	}

	return buildResolutions(names, entries), nil
}

// pendingNames returns the distinct names of items flagged for verification, in item order
func pendingNames(items []Item) []string {
	var names []string
	seen := make(map[string]bool)
	for _, item := range items {
		if item.NeedsVerification && !seen[item.Name] {
			seen[item.Name] = true
			names = append(names, item.Name)
		}
	}
	return names
}

func parseVerificationReply(reply string) ([]verificationEntry, error) {
	var entries []verificationEntry
	if err := json.Unmarshal([]byte(ExtractPayload(reply)), &entries); err != nil {
		return nil, fmt.Errorf("unmarshaling verification reply: %w", err)
	}
	return entries, nil
}

// buildResolutions keys each found entry by its original name.
// An entry whose originalName was not asked about falls back to its 1-based index.
func buildResolutions(names []string, entries []verificationEntry) Resolutions {
	asked := make(map[string]bool, len(names))
	for _, name := range names {
		asked[name] = true
	}

	resolved := make(map[string]string)
	for _, entry := range entries {
		verified := strings.TrimSpace(entry.VerifiedName)
		if !entry.Found || verified == "" {
			continue
		}

		original := entry.OriginalName
		if !asked[original] {
			if entry.Index < 1 || entry.Index > len(names) {
				continue
			}
			original = names[entry.Index-1]
		}
		resolved[original] = verified
	}

	return Resolutions{names: resolved}
}

// ApplyResolutions renames items still flagged for verification whose name was resolved.
// Unresolved items are left untouched. Returns the number of items resolved.
func ApplyResolutions(items []Item, res Resolutions) int {
	resolved := 0
	for i := range items {
		if !items[i].NeedsVerification {
			continue
		}
		if verified, ok := res.Lookup(items[i].Name); ok {
			items[i].Name = verified
			items[i].NeedsVerification = false
			resolved++
		}
	}
	return resolved
}

// ApplyVerifier calls the verifier once per item still flagged for verification, in item order.
// Failures leave the item untouched and never stop the remaining items. Returns the number resolved.
func ApplyVerifier(ctx context.Context, items []Item, verifier Verifier, vc VerificationContext) int {
	resolved := 0
	for i := range items {
		if !items[i].NeedsVerification {
			continue
		}

		name := items[i].Name
		result, err := callVerifier(ctx, verifier, name, vc.clone())
		if err != nil {
			slog.Warn("Verification failed", "error", &VerificationError{Name: name, Err: err})
			continue
		}
		if result == nil || strings.TrimSpace(result.VerifiedName) == "" {
			continue
		}

		items[i].Name = strings.TrimSpace(result.VerifiedName)
		items[i].NeedsVerification = false
		resolved++
	}
	return resolved
}

// callVerifier converts a verifier panic into an error
func callVerifier(ctx context.Context, verifier Verifier, name string, vc VerificationContext) (result *VerificationResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("verifier panicked: %v", r)
		}
	}()
	return verifier.Verify(ctx, name, vc)
}
