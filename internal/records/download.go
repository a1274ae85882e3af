package records

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
)

// ResolveSourceURL normalizes a record's source URL for fetching. arXiv
// abstract pages are rewritten to their PDF URL; the returned canonical
// URL is what gets written back to the record.
func ResolveSourceURL(raw string) (fetchURL, canonicalURL string) {
	u := strings.TrimSpace(raw)
	if u == "" {
		return "", ""
	}
	if i := strings.Index(u, "arxiv.org/abs/"); i >= 0 {
		id := strings.Trim(u[i+len("arxiv.org/abs/"):], "/")
		return "https://arxiv.org/pdf/" + id + ".pdf", "https://arxiv.org/abs/" + id
	}
	return u, u
}

// Downloader fetches PDFs with retry on transient failures.
type Downloader struct {
	httpClient *http.Client
	maxRetries uint
	baseDelay  time.Duration
}

// NewDownloader creates a downloader. A nil client gets a 30s timeout.
func NewDownloader(httpClient *http.Client, maxRetries uint) *Downloader {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	if maxRetries == 0 {
		maxRetries = 3
	}
	return &Downloader{
		httpClient: httpClient,
		maxRetries: maxRetries,
		baseDelay:  time.Second,
	}
}

// Download fetches the PDF at url. Server errors and connection failures
// are retried; 4xx responses fail immediately.
func (d *Downloader) Download(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}

			resp, err := d.httpClient.Do(req)
			if err != nil {
				if ctx.Err() != nil {
					return retry.Unrecoverable(ctx.Err())
				}
				return err
			}
			defer resp.Body.Close()

			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return fmt.Errorf("download status %d", resp.StatusCode)
			}
			if resp.StatusCode >= 400 {
				return retry.Unrecoverable(fmt.Errorf("download status %d", resp.StatusCode))
			}

			body, err = io.ReadAll(resp.Body)
			if err != nil {
				return fmt.Errorf("failed reading response body: %w", err)
			}
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(d.maxRetries+1),
		retry.Delay(d.baseDelay),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to download PDF from %s: %w", url, err)
	}
	return body, nil
}
