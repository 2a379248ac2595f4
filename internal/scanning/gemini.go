package scanning

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

const (
	// DefaultGeminiModel is used when no model name is configured
	DefaultGeminiModel = "gemini-2.0-flash"

	geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"
)

// Gemini implements the Model interface using Google Gemini.
// Plain requests go through the genai SDK; grounded requests use the REST API's google_search tool.
type Gemini struct {
	client *genai.Client
	model  *genai.GenerativeModel
	search *groundedSearch
}

// NewGemini creates a new Gemini Model instance
func NewGemini(apiKey string, modelName string) (*Gemini, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key is required", ErrConfiguration)
	}
	if modelName == "" {
		modelName = DefaultGeminiModel
	}

	ctx := context.Background()
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Gemini{
		client: client,
		model:  client.GenerativeModel(modelName),
		search: newGroundedSearch(geminiBaseURL, apiKey, modelName, &http.Client{Timeout: 120 * time.Second}),
	}, nil
}

// Generate sends the prompt and optional image to Gemini and returns the reply text
func (g *Gemini) Generate(ctx context.Context, req Request) (string, error) {
	if req.Grounded {
		return g.search.generate(ctx, req)
	}

	parts := make([]genai.Part, 0, 2)
	if req.Image != nil {
		if req.Image.IsRemote() {
			parts = append(parts, genai.FileData{MIMEType: req.Image.MIMEType, URI: req.Image.URL})
		} else {
			parts = append(parts, genai.Blob{MIMEType: req.Image.MIMEType, Data: req.Image.Data})
		}
	}
	parts = append(parts, genai.Text(req.Prompt))

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return "", fmt.Errorf("%w: generating content: %w", ErrUpstreamCall, err)
	}

	text := strings.TrimSpace(responseText(resp))
	if text == "" {
		return "", fmt.Errorf("%w: %w", ErrUpstreamCall, ErrEmptyResponse)
	}

	return text, nil
}

// responseText concatenates the text parts of the first candidate
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}

	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
