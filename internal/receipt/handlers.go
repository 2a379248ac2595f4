package receipt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/receipt-items/internal/scanning"
)

// maxUploadSize handles high-resolution phone photos
const maxUploadSize = int64(50 << 20)

// extractRequest is the JSON body alternative to a multipart upload
type extractRequest struct {
	Image string `json:"image"` // URL, data URI or bare base64
}

// extractResponse is returned when the caller asks for totals
type extractResponse struct {
	Items   []LineItem `json:"items"`
	Summary Summary    `json:"summary"`
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

// writeJSONError writes an {"error": message} response
func writeJSONError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// statusForError maps extraction failures to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, scanning.ErrUnsupportedImage):
		return http.StatusBadRequest
	case errors.Is(err, ErrParse):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, scanning.ErrUpstreamCall):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// handleHealth reports liveness
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// handleExtractItems extracts line items from an uploaded or referenced receipt image
func (s *Server) handleExtractItems(w http.ResponseWriter, r *http.Request) {
	img, err := s.readImage(w, r)
	if err != nil {
		slog.Error("Error reading image", "error", err)
		writeJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	query := r.URL.Query()
	opts := ExtractOptions{AutoVerify: query.Get("autoVerify") == "true"}
	if s.config.Verifier != nil && query.Get("catalog") != "false" {
		opts.Verifier = s.config.Verifier
	}

	ctx := r.Context()
	if s.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.Timeout)
		defer cancel()
	}

	items, err := s.service.ExtractItems(ctx, img, opts)
	if err != nil {
		slog.Error("Error extracting items", "error", err)
		writeJSONError(w, err.Error(), statusForError(err))
		return
	}

	// Ensure we always return an array, not null
	if items == nil {
		items = []LineItem{}
	}

	var body any = items
	if query.Get("summary") == "true" {
		body = extractResponse{Items: items, Summary: Summarize(items)}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// readImage accepts either a multipart "file" upload or a JSON {"image": "..."} body
func (s *Server) readImage(w http.ResponseWriter, r *http.Request) (*scanning.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		return readUpload(r)
	}

	var req extractRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, fmt.Errorf("invalid request body: %w", err)
	}
	if strings.TrimSpace(req.Image) == "" {
		return nil, errors.New("image is required")
	}

	return scanning.ParseImage(req.Image)
}

func readUpload(r *http.Request) (*scanning.Image, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, errors.New("file is too large, maximum size is 50MB")
		}
		return nil, fmt.Errorf("parsing form: %w", err)
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, errors.New("no file was selected")
		}
		return nil, fmt.Errorf("getting file from form: %w", err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("reading file: %w", err)
	}

	contentType := strings.ToLower(strings.TrimSpace(header.Header.Get("Content-Type")))
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = contentTypeFromFilename(header.Filename)
	}

	return scanning.ImageFromBytes(data, contentType)
}

// contentTypeFromFilename maps common receipt file extensions to MIME types; unknown extensions are sniffed later
func contentTypeFromFilename(filename string) string {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	default:
		return ""
	}
}
