// Package otx is the AlienVault OTX feed adapter. It retrieves subscribed
// pulses page by page, following the server-supplied next link rather than
// constructing page URLs itself.
package otx

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/okian/otxsync/internal/domain/model"
	"github.com/okian/otxsync/pkg/metrics"
)

const (
	apiKeyHeader = "X-OTX-API-KEY"

	// modifiedSinceLayout matches the feed's expected timestamp format,
	// microsecond precision included.
	modifiedSinceLayout = "2006-01-02 15:04:05.000000"

	defaultPageSize = 10
	defaultTimeout  = 30 * time.Second
)

// Client talks to the OTX REST API. The API key and proxy settings are fixed
// at construction; callers never see transport details.
type Client struct {
	baseURL  string
	apiKey   string
	pageSize int
	http     *http.Client
}

// NewClient creates a feed client for the given API base URL and key.
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		apiKey:   apiKey,
		pageSize: defaultPageSize,
		http:     &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// page mirrors the feed's paginated response envelope.
type page struct {
	Results []model.Pulse `json:"results"`
	Next    string        `json:"next"`
}

// get issues one authenticated GET and decodes the paginated envelope.
func (c *Client) get(ctx context.Context, rawURL string) (*page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordFeedError()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordFeedError()
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var p page
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	metrics.RecordFeedPage()
	return &p, nil
}

// Pulses returns a lazy iterator over all subscribed pulses. When
// modifiedSince is non-zero it is applied to the first request only;
// subsequent pages inherit the filter from the server through the next link.
// The sequence is restartable per call but not resumable mid-sequence.
func (c *Client) Pulses(ctx context.Context, modifiedSince time.Time) *PulseIterator {
	q := url.Values{}
	if !modifiedSince.IsZero() {
		q.Set("modified_since", modifiedSince.Format(modifiedSinceLayout))
	}
	q.Set("limit", strconv.Itoa(c.pageSize))
	q.Set("page", "1")

	return &PulseIterator{
		client: c,
		next:   c.baseURL + "/pulses/subscribed?" + q.Encode(),
	}
}

// Pulse fetches a single pulse by its identifier.
func (c *Client) Pulse(ctx context.Context, id string) (model.Pulse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/pulses/"+url.PathEscape(id), nil)
	if err != nil {
		return model.Pulse{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		metrics.RecordFeedError()
		return model.Pulse{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		metrics.RecordFeedError()
		return model.Pulse{}, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var p model.Pulse
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return model.Pulse{}, fmt.Errorf("%w: %w", ErrDecode, err)
	}
	return p, nil
}

// PulseIterator walks the feed's pagination one page at a time, in the style
// of bufio.Scanner: Next advances, Pulse returns the current item, Err
// reports why iteration stopped early.
type PulseIterator struct {
	client  *Client
	next    string // next page URL; empty when exhausted
	buf     []model.Pulse
	current model.Pulse
	err     error
}

// Next advances to the next pulse, fetching pages as needed. It returns
// false when the feed reports no further page or a fetch fails; check Err
// to tell the two apart.
func (it *PulseIterator) Next(ctx context.Context) bool {
	if it.err != nil {
		return false
	}
	for len(it.buf) == 0 {
		if it.next == "" {
			return false
		}
		p, err := it.client.get(ctx, it.next)
		if err != nil {
			it.err = err
			return false
		}
		it.buf = p.Results
		it.next = p.Next
	}
	it.current = it.buf[0]
	it.buf = it.buf[1:]
	return true
}

// Pulse returns the pulse produced by the last successful Next.
func (it *PulseIterator) Pulse() model.Pulse {
	return it.current
}

// Err returns the terminal error, if any. A nil Err after Next returns
// false means the sequence completed normally.
func (it *PulseIterator) Err() error {
	return it.err
}
