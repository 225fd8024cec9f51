// Package nlp is a thin client for the external text-understanding service
// that turns free-form input like "pay rent friday 5pm" into task fields.
// No language handling happens on this side of the wire.
package nlp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/auratask/auratask/internal/domain"
	"github.com/auratask/auratask/internal/timeutil"
)

// ParsedTask is what the collaborator extracted from the input text. DueAt
// is already normalized to a UTC instant using the requesting user's zone.
type ParsedTask struct {
	Title    string          `json:"title"`
	Priority domain.Priority `json:"priority"`
	DueAt    time.Time       `json:"due_at"`
}

// Client calls the parse endpoint.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
}

// NewClient creates a Client for the given endpoint.
func NewClient(endpoint, apiKey string) *Client {
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Timeout: 20 * time.Second},
	}
}

type parseRequest struct {
	Text     string `json:"text"`
	Timezone string `json:"timezone"`
}

// parseResponse carries the extracted fields. The due time comes back as a
// civil time in the user's zone; the service has no notion of instants.
type parseResponse struct {
	Title    string             `json:"title"`
	Priority string             `json:"priority"`
	Due      timeutil.CivilTime `json:"due"`
}

// Parse sends text to the collaborator and normalizes the result. The
// caller's zone interprets the extracted civil time.
func (c *Client) Parse(ctx context.Context, text, zone string) (*ParsedTask, error) {
	body, err := json.Marshal(parseRequest{Text: text, Timezone: zone})
	if err != nil {
		return nil, fmt.Errorf("marshal parse request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build parse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("parse call: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("parse service returned status %d", resp.StatusCode)
	}

	var out parseResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode parse response: %w", err)
	}

	priority := domain.Priority(out.Priority)
	if !priority.Valid() {
		priority = domain.PriorityMedium // collaborator guesses; default, don't fail
	}

	due, err := timeutil.ToInstant(out.Due, zone)
	if err != nil {
		return nil, err
	}

	return &ParsedTask{Title: out.Title, Priority: priority, DueAt: due}, nil
}
