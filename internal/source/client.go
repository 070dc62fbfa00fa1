package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/dgallion1/treerows/internal/rowtree"
)

// ErrBodyTooLarge is returned when the data endpoint sends more than
// MAX_FETCH_BYTES. It is not retryable.
var ErrBodyTooLarge = errors.New("body exceeds MAX_FETCH_BYTES")

// Client fetches the record tree from an HTTP endpoint that returns a JSON
// array of root records.
type Client struct {
	url        string
	maxBytes   int64
	httpClient *http.Client
	log        *slog.Logger
	backoff    func(attempt int) time.Duration
}

func NewClient(url string, timeout time.Duration, maxBytes int64, log *slog.Logger) *Client {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	return &Client{
		url:      url,
		maxBytes: maxBytes,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		log:     log.With("url", url),
		backoff: Backoff,
	}
}

// Fetch performs a single GET and decodes the tree.
func (c *Client) Fetch(ctx context.Context) (*rowtree.Tree, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("fetch tree: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, &StatusError{URL: c.url, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if c.maxBytes <= 0 {
		return Decode(FormatJSON, resp.Body)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read tree: %w", err)
	}
	if int64(len(data)) > c.maxBytes {
		return nil, fmt.Errorf("fetch %s: %w (%d bytes)", c.url, ErrBodyTooLarge, c.maxBytes)
	}
	return Decode(FormatJSON, bytes.NewReader(data))
}

// FetchWithRetry calls Fetch up to maxAttempts times, backing off between
// retryable failures. It stops early when ctx is done.
func (c *Client) FetchWithRetry(ctx context.Context, maxAttempts int) (*rowtree.Tree, error) {
	if maxAttempts <= 0 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := range maxAttempts {
		tree, err := c.Fetch(ctx)
		if err == nil {
			return tree, nil
		}
		lastErr = err
		if !IsRetryable(err) || attempt == maxAttempts-1 {
			break
		}
		wait := c.backoff(attempt)
		c.log.Warn("tree fetch failed, retrying", "attempt", attempt+1, "backoff", wait, "error", err)
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("fetch tree: %w", ctx.Err())
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// Close releases idle connections.
func (c *Client) Close() {
	c.httpClient.CloseIdleConnections()
}
