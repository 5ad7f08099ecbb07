package storage

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"time"

	apperrors "github.com/anime-shed/content-analyzer-go/internal/errors"
)

const (
	fetchAttempts = 3

	// DefaultMaxContentBytes caps a single download
	DefaultMaxContentBytes = 20 * 1024 * 1024
)

// Object is raw content plus what the origin said about it
type Object struct {
	Data        []byte
	ContentType string
}

// ContentFetcher downloads content addressed by URL
type ContentFetcher interface {
	Fetch(ctx context.Context, contentURL string) (*Object, error)
}

// HTTPOptions tunes the HTTP fetcher
type HTTPOptions struct {
	Timeout            time.Duration
	MaxBytes           int64
	InsecureSkipVerify bool
	// Backoff returns the pause before retry n (1-based)
	Backoff func(n int) time.Duration
}

// HTTPContentFetcher implements ContentFetcher
type HTTPContentFetcher struct {
	client   *http.Client
	maxBytes int64
	backoff  func(n int) time.Duration
}

func linearBackoff(n int) time.Duration {
	return time.Duration(n) * time.Second
}

// NewHTTPContentFetcher creates an HTTP content fetcher
func NewHTTPContentFetcher(opts HTTPOptions) *HTTPContentFetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxBytes <= 0 {
		opts.MaxBytes = DefaultMaxContentBytes
	}
	if opts.Backoff == nil {
		opts.Backoff = linearBackoff
	}

	transport := &http.Transport{
		// Connection pooling sized for one download per request
		MaxIdleConns:        10,
		MaxIdleConnsPerHost: 2,
		IdleConnTimeout:     30 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,

		DisableCompression:     false,
		MaxResponseHeaderBytes: 4096,

		TLSClientConfig: &tls.Config{
			InsecureSkipVerify: opts.InsecureSkipVerify,
		},
	}

	return &HTTPContentFetcher{
		client: &http.Client{
			Transport: transport,
			Timeout:   opts.Timeout,

			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) >= 3 {
					return fmt.Errorf("too many redirects (limit: 3)")
				}
				return nil
			},
		},
		maxBytes: opts.MaxBytes,
		backoff:  opts.Backoff,
	}
}

// Fetch downloads the URL. Network failures and 5xx responses are retried,
// 4xx responses are not.
func (h *HTTPContentFetcher) Fetch(ctx context.Context, contentURL string) (*Object, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, contentURL, nil)
	if err != nil {
		return nil, apperrors.NewValidationError("invalid content URL", err)
	}

	req.Header.Set("Accept", "image/*, text/*, application/json, */*")
	req.Header.Set("User-Agent", "Content-Analyzer/1.0")

	var lastErr error
	for attempt := 0; attempt < fetchAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, apperrors.NewTimeoutError("content fetch cancelled", ctx.Err())
			case <-time.After(h.backoff(attempt)):
			}
		}

		obj, retry, err := h.attempt(req)
		if err == nil {
			return obj, nil
		}
		lastErr = err
		if !retry {
			break
		}
	}

	if appErr, ok := apperrors.As(lastErr); ok && appErr.Type != apperrors.ErrorTypeNetwork {
		return nil, lastErr
	}
	return nil, apperrors.NewNetworkError(
		fmt.Sprintf("failed to fetch content after %d attempts", fetchAttempts), lastErr)
}

// attempt performs one request; retry reports whether another try may help
func (h *HTTPContentFetcher) attempt(req *http.Request) (*Object, bool, error) {
	resp, err := h.client.Do(req)
	if err != nil {
		if req.Context().Err() != nil {
			return nil, false, apperrors.NewTimeoutError("content fetch cancelled", err)
		}
		return nil, true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, apperrors.NewNotFoundError("content not found",
			fmt.Errorf("client error: status code %d", resp.StatusCode))
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return nil, false, apperrors.NewValidationError("content could not be fetched",
			fmt.Errorf("client error: status code %d", resp.StatusCode))
	case resp.StatusCode >= 500:
		return nil, true, fmt.Errorf("server error: status code %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, false, apperrors.NewProcessingError(
			fmt.Sprintf("unexpected status code %d", resp.StatusCode), nil)
	}

	data, err := readLimited(resp.Body, h.maxBytes)
	if err != nil {
		return nil, false, err
	}
	return &Object{Data: data, ContentType: resp.Header.Get("Content-Type")}, false, nil
}

func readLimited(r io.Reader, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, apperrors.NewNetworkError("failed to read content body", err)
	}
	if int64(len(data)) > limit {
		return nil, apperrors.NewValidationError(fmt.Sprintf("content exceeds %d bytes", limit), nil)
	}
	return data, nil
}
