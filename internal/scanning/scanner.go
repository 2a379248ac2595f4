package scanning

import (
	"context"
	"errors"
)

var (
	// ErrConfiguration is returned when a required setting such as an API key is missing
	ErrConfiguration = errors.New("configuration error")

	// ErrUpstreamCall is returned when the model call fails or yields nothing usable
	ErrUpstreamCall = errors.New("upstream model call failed")

	// ErrEmptyResponse is returned when the model replies with no text
	ErrEmptyResponse = errors.New("model returned empty response")

	// ErrGroundingUnsupported is returned by models that cannot consult a search index
	ErrGroundingUnsupported = errors.New("grounded search not supported by this model")

	// ErrUnsupportedImage is returned when an image input cannot be recognized
	ErrUnsupportedImage = errors.New("unsupported image input")
)

// Request is a single prompt sent to a model
type Request struct {
	// Image is optional; verification requests are text only
	Image *Image
	// Prompt is the instruction text
	Prompt string
	// Grounded asks the model to consult a live search index
	Grounded bool
}

// Model defines the interface for multimodal language model calls
type Model interface {
	// Generate sends the request and returns the model's free-form reply
	Generate(ctx context.Context, req Request) (string, error)
	// Close closes the model client and releases resources
	Close() error
}
