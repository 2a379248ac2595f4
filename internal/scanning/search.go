package scanning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// groundedSearch calls Gemini's generateContent REST endpoint with the google_search tool enabled
type groundedSearch struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func newGroundedSearch(baseURL, apiKey, model string, client *http.Client) *groundedSearch {
	return &groundedSearch{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   model,
		client:  client,
	}
}

type geminiInlineData struct {
	MIMEType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiFileData struct {
	MIMEType string `json:"mime_type"`
	FileURI  string `json:"file_uri"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
	FileData   *geminiFileData   `json:"file_data,omitempty"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiTool struct {
	GoogleSearch *struct{} `json:"google_search,omitempty"`
}

// geminiRequest represents the request body for the generateContent API
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
	Tools    []geminiTool    `json:"tools,omitempty"`
}

// geminiResponse represents the subset of the generateContent response we read
type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

func (s *groundedSearch) generate(ctx context.Context, req Request) (string, error) {
	parts := make([]geminiPart, 0, 2)
	if req.Image != nil {
		if req.Image.IsRemote() {
			parts = append(parts, geminiPart{FileData: &geminiFileData{MIMEType: req.Image.MIMEType, FileURI: req.Image.URL}})
		} else {
			parts = append(parts, geminiPart{InlineData: &geminiInlineData{MIMEType: req.Image.MIMEType, Data: req.Image.Base64()}})
		}
	}
	parts = append(parts, geminiPart{Text: req.Prompt})

	reqBody := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		Tools:    []geminiTool{{GoogleSearch: &struct{}{}}},
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	url := fmt.Sprintf("%s/models/%s:generateContent", s.baseURL, s.model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(jsonData))
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", s.apiKey)

	resp, err := s.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: calling gemini API: %w", ErrUpstreamCall, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("%w: gemini API error (status %d): %s", ErrUpstreamCall, resp.StatusCode, string(body))
	}

	var genResp geminiResponse
	if err := json.NewDecoder(resp.Body).Decode(&genResp); err != nil {
		return "", fmt.Errorf("%w: decoding response: %w", ErrUpstreamCall, err)
	}

	var text strings.Builder
	if len(genResp.Candidates) > 0 {
		for _, part := range genResp.Candidates[0].Content.Parts {
			text.WriteString(part.Text)
		}
	}

	result := strings.TrimSpace(text.String())
	if result == "" {
		return "", fmt.Errorf("%w: %w", ErrUpstreamCall, ErrEmptyResponse)
	}

	return result, nil
}
