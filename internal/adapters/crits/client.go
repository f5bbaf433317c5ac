// Package crits is the CRITs repository adapter. It implements the ordered
// write sequence used per pulse (event, ticket, indicators, relationships)
// and the ticket-count query that backs duplicate detection.
package crits

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/okian/otxsync/internal/domain/model"
	"github.com/okian/otxsync/pkg/metrics"
)

const (
	// eventType is the CRITs top-level type every imported pulse becomes.
	eventType = "Intel Sharing"

	// importMethod tags created objects with the importing tool.
	importMethod = "otx2crits"

	relationshipType       = "Related To"
	relationshipConfidence = "high"
	relationshipReason     = "Related during automatic OTX import"

	// dateLayout is the timestamp format CRITs expects on tickets and
	// relationships.
	dateLayout = "2006-01-02 15:04:05.000000"

	defaultTimeout = 30 * time.Second
)

// Client talks to the CRITs REST API. Authentication rides along as
// username/api_key query parameters on every call.
type Client struct {
	baseURL  string
	username string
	apiKey   string
	http     *http.Client
	now      func() time.Time
}

// NewClient creates a repository client for the given base URL and
// credentials. The base URL is normalized to have no trailing slash.
func NewClient(baseURL, username, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		username: username,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: defaultTimeout},
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// auth returns the query parameters every CRITs call carries.
func (c *Client) auth() url.Values {
	q := url.Values{}
	q.Set("username", c.username)
	q.Set("api_key", c.apiKey)
	return q
}

// objectResponse is the envelope CRITs returns from object creation.
type objectResponse struct {
	ReturnCode int    `json:"return_code"`
	ID         string `json:"id"`
	Message    string `json:"message"`
}

// countResponse carries the total for list queries.
type countResponse struct {
	Meta struct {
		TotalCount int `json:"total_count"`
	} `json:"meta"`
}

// EventCountByTicket counts events whose ticket collection contains a
// ticket numbered pulseID. This is the duplicate-detection query: a count
// above zero means the pulse's prior import reached ticket attachment.
func (c *Client) EventCountByTicket(ctx context.Context, pulseID string) (int, error) {
	start := c.now()
	q := c.auth()
	q.Set("c-tickets.ticket_number", pulseID)
	q.Set("limit", "1")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/v1/events/?"+q.Encode(), nil)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQuery, err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	defer resp.Body.Close()
	metrics.RecordRepositoryCallLatency("event_count", msSince(start, c.now))

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("%w: status %d", ErrQuery, resp.StatusCode)
	}

	var cr countResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return 0, fmt.Errorf("%w: %w", ErrQuery, err)
	}
	return cr.Meta.TotalCount, nil
}

// CreateEvent creates a CRITs Event and returns its repository-assigned
// identifier. A response without an id is a terminal failure for the pulse.
func (c *Client) CreateEvent(ctx context.Context, e model.NewEvent) (string, error) {
	start := c.now()
	form := c.auth()
	form.Set("event_type", eventType)
	form.Set("title", e.Title)
	form.Set("description", e.Description)
	form.Set("source", e.Source)
	form.Set("bucket_list", strings.Join(e.BucketList, ","))
	form.Set("reference", e.Reference)
	form.Set("method", importMethod)

	body, err := c.postForm(ctx, c.baseURL+"/api/v1/events/", form)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrEventCreate, err)
	}
	metrics.RecordRepositoryCallLatency("create_event", msSince(start, c.now))

	var or objectResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return "", fmt.Errorf("%w: %w", ErrEventCreate, err)
	}
	if or.ID == "" {
		return "", fmt.Errorf("%w: %s", ErrNoEventID, or.Message)
	}
	return or.ID, nil
}

// AttachTicket attaches the pulse identifier to an event as a ticket. The
// ticket is the dedup marker later runs search for; it is written before
// any indicator so a partially populated event is still detectable.
func (c *Client) AttachTicket(ctx context.Context, eventID, pulseID string) error {
	start := c.now()
	payload := map[string]any{
		"action": "ticket_add",
		"ticket": map[string]string{
			"ticket_number": pulseID,
			"date":          c.now().Format(dateLayout),
		},
	}
	if err := c.patchEvent(ctx, eventID, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrTicketAdd, err)
	}
	metrics.RecordRepositoryCallLatency("ticket_add", msSince(start, c.now))
	return nil
}

// CreateIndicator creates one CRITs Indicator and returns its identifier.
// A 200 response with a non-zero return code is still a failure.
func (c *Client) CreateIndicator(ctx context.Context, in model.NewIndicator) (string, error) {
	start := c.now()
	form := c.auth()
	form.Set("type", in.Type)
	form.Set("value", in.Value)
	form.Set("source", in.Source)
	form.Set("method", importMethod)

	body, err := c.postForm(ctx, c.baseURL+"/api/v1/indicators/", form)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrIndicatorCreate, err)
	}
	metrics.RecordRepositoryCallLatency("create_indicator", msSince(start, c.now))

	var or objectResponse
	if err := json.Unmarshal(body, &or); err != nil {
		return "", fmt.Errorf("%w: %w", ErrIndicatorCreate, err)
	}
	if or.ReturnCode != 0 {
		return "", fmt.Errorf("%w: return code %d: %s", ErrIndicatorCreate, or.ReturnCode, or.Message)
	}
	if or.ID == "" {
		return "", fmt.Errorf("%w: no id in response", ErrIndicatorCreate)
	}
	return or.ID, nil
}

// ForgeRelationship links an event to an indicator with the importer's
// fixed relationship semantics.
func (c *Client) ForgeRelationship(ctx context.Context, eventID, indicatorID string) error {
	start := c.now()
	payload := map[string]any{
		"action":         "forge_relationship",
		"right_type":     "Indicator",
		"right_id":       indicatorID,
		"rel_type":       relationshipType,
		"rel_date":       c.now().Format(dateLayout),
		"rel_confidence": relationshipConfidence,
		"rel_reason":     relationshipReason,
	}
	if err := c.patchEvent(ctx, eventID, payload); err != nil {
		return fmt.Errorf("%w: %w", ErrRelationship, err)
	}
	metrics.RecordRepositoryCallLatency("forge_relationship", msSince(start, c.now))
	return nil
}

// postForm issues a form-encoded POST and returns the raw response body for
// any 2xx status.
func (c *Client) postForm(ctx context.Context, rawURL string, form url.Values) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return body, nil
}

// patchEvent sends a JSON PATCH action against one event resource.
func (c *Client) patchEvent(ctx context.Context, eventID string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	q := c.auth()
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch,
		c.baseURL+"/api/v1/events/"+url.PathEscape(eventID)+"/?"+q.Encode(),
		bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}

func msSince(start time.Time, now func() time.Time) float64 {
	return float64(now().Sub(start).Milliseconds())
}
