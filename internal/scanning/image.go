package scanning

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"regexp"
	"strings"
)

// maxFetchSize bounds remote images downloaded for models that only accept inline data
const maxFetchSize = 50 << 20

var (
	dataURIPattern = regexp.MustCompile(`^data:([^;,]+);base64,(.+)$`)
	base64Pattern  = regexp.MustCompile(`^[A-Za-z0-9+/=]+$`)
)

// Image is a normalized receipt image: either inline bytes or a remote URL, plus its MIME type
type Image struct {
	MIMEType string
	Data     []byte
	URL      string
}

// IsRemote reports whether the image is referenced by URL rather than carried inline
func (i *Image) IsRemote() bool {
	return i.URL != ""
}

// Base64 returns the inline data base64 encoded
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// ImageFromBytes builds an inline image from raw bytes, converting PDF and HEIC/HEIF input to PNG.
// An empty content type is sniffed from the data.
func ImageFromBytes(data []byte, contentType string) (*Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty image data", ErrUnsupportedImage)
	}

	mimeType := strings.ToLower(strings.TrimSpace(contentType))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = detectMIMEType(data)
	}

	finalData, finalMimeType, err := prepareImageData(data, mimeType)
	if err != nil {
		return nil, err
	}

	return &Image{MIMEType: finalMimeType, Data: finalData}, nil
}

// ParseImage recognizes a textual image input: an http(s) URL, a base64 data URI, or bare base64
func ParseImage(s string) (*Image, error) {
	s = strings.TrimSpace(s)

	if isURL(s) {
		return &Image{MIMEType: mimeTypeFromURL(s), URL: s}, nil
	}

	if strings.HasPrefix(s, "data:") {
		match := dataURIPattern.FindStringSubmatch(s)
		if match == nil {
			return nil, fmt.Errorf("%w: malformed data URI", ErrUnsupportedImage)
		}
		data, err := decodeBase64(match[2])
		if err != nil {
			return nil, fmt.Errorf("%w: decoding data URI: %w", ErrUnsupportedImage, err)
		}
		return ImageFromBytes(data, match[1])
	}

	if isBase64(s) {
		data, err := decodeBase64(s)
		if err != nil {
			return nil, fmt.Errorf("%w: decoding base64: %w", ErrUnsupportedImage, err)
		}
		return ImageFromBytes(data, "")
	}

	return nil, fmt.Errorf("%w: string is not a valid URL or base64", ErrUnsupportedImage)
}

// Fetch downloads a remote image and returns it as an inline image.
// Inline images are returned unchanged.
func (i *Image) Fetch(ctx context.Context, client *http.Client) (*Image, error) {
	if !i.IsRemote() {
		return i, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, i.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating image request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching image: unexpected status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return nil, fmt.Errorf("reading image: %w", err)
	}

	contentType := resp.Header.Get("Content-Type")
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	if !strings.HasPrefix(contentType, "image/") && contentType != "application/pdf" {
		contentType = ""
	}

	return ImageFromBytes(data, contentType)
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

// isBase64 accepts long strings made only of the base64 alphabet
func isBase64(s string) bool {
	return len(s) > 100 && base64Pattern.MatchString(s)
}

func decodeBase64(s string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(s)
	if err == nil {
		return data, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

// mimeTypeFromURL infers the MIME type from the file extension in a URL
func mimeTypeFromURL(url string) string {
	lower := strings.ToLower(url)
	switch {
	case strings.Contains(lower, ".png"):
		return "image/png"
	case strings.Contains(lower, ".jpg"), strings.Contains(lower, ".jpeg"):
		return "image/jpeg"
	case strings.Contains(lower, ".webp"):
		return "image/webp"
	case strings.Contains(lower, ".gif"):
		return "image/gif"
	default:
		return "image/jpeg"
	}
}
