package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultUserAgent is sent with every HTTP image request
const DefaultUserAgent = "annotation-cropper/1.0"

// HTTPSource downloads images over HTTP(S). Public S3 and CDN URLs go through here.
type HTTPSource struct {
	client    *http.Client
	userAgent string
}

// NewHTTPSource creates an HTTPSource with the given request timeout
func NewHTTPSource(timeout time.Duration, userAgent string) *HTTPSource {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}
	return &HTTPSource{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch implements ImageSource
func (s *HTTPSource) Fetch(ctx context.Context, locator string) ([]byte, error) {
	// Validate URL
	parsedURL, err := url.Parse(locator)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return nil, fmt.Errorf("%w: scheme %q (only http and https are supported)", ErrUnsupportedLocator, parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, locator, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("failed to download image: HTTP %s", resp.Status)
	}

	// S3 sometimes serves images as binary/octet-stream
	contentType := resp.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "image/") &&
		!strings.HasPrefix(contentType, "application/octet-stream") && !strings.HasPrefix(contentType, "binary/octet-stream") {
		return nil, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image data: %w", err)
	}
	return data, nil
}
