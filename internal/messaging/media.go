package messaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// MaxMediaBytes caps a downloaded media item.
	MaxMediaBytes = 25 << 20

	defaultMediaTimeout = 15 * time.Second
)

// ErrMediaTooLarge is returned when media exceeds MaxMediaBytes.
var ErrMediaTooLarge = errors.New("media exceeds size limit")

// MediaFetcher downloads Twilio-hosted media with account basic auth.
type MediaFetcher struct {
	httpClient *http.Client
	accountSID string
	authToken  string
	maxBytes   int64
}

// NewMediaFetcher creates a MediaFetcher. A nil httpClient uses one with a 15s timeout.
func NewMediaFetcher(httpClient *http.Client, accountSID, authToken string) *MediaFetcher {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultMediaTimeout}
	}
	return &MediaFetcher{httpClient: httpClient, accountSID: accountSID, authToken: authToken, maxBytes: MaxMediaBytes}
}

// Fetch downloads url and returns its bytes and content type.
func (f *MediaFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	if f.accountSID == "" || f.authToken == "" {
		return nil, "", fmt.Errorf("missing Twilio credentials for media download")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("failed to build media request: %w", err)
	}
	req.SetBasicAuth(f.accountSID, f.authToken)

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("failed to download media: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("failed to download media: status %d", resp.StatusCode)
	}
	if resp.ContentLength > f.maxBytes {
		return nil, "", ErrMediaTooLarge
	}

	var buf bytes.Buffer
	n, err := io.Copy(&buf, io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("failed to read media: %w", err)
	}
	if n > f.maxBytes {
		return nil, "", ErrMediaTooLarge
	}
	return buf.Bytes(), resp.Header.Get("Content-Type"), nil
}
