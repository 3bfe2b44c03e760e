// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package api is the REST client for the event service. The realtime channel
// carries deltas; this client fetches the authoritative snapshots the
// reconciliation cache is rebuilt from, and performs the moderation actions
// that the server then echoes back as push events.
package api

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	json "github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/metrics"
	"github.com/framewall/framewall/internal/models"
)

// ErrUnavailable is returned when the circuit breaker is open. Callers should
// fall back to cached data rather than retrying immediately.
var ErrUnavailable = errors.New("api: service unavailable")

// StatusError is a non-2xx response from the server.
type StatusError struct {
	Code    int
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Code, e.Message)
}

// Config holds the client's tunables.
type Config struct {
	BaseURL string
	Timeout time.Duration

	// RequestsPerSecond bounds outbound request rate; bursts up to Burst are
	// allowed. Zero disables limiting.
	RequestsPerSecond float64
	Burst             int

	// Breaker settings. MaxFailures consecutive failures open the circuit
	// for OpenTimeout.
	MaxFailures uint32
	OpenTimeout time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:           baseURL,
		Timeout:           30 * time.Second,
		RequestsPerSecond: 10,
		Burst:             20,
		MaxFailures:       5,
		OpenTimeout:       30 * time.Second,
	}
}

// Client talks to the event service. Safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	breaker    *gobreaker.CircuitBreaker[[]byte]

	// token is attached as a bearer credential; shareToken identifies guest
	// sessions that have no account token.
	token      string
	shareToken string
}

// NewClient builds a client from cfg. token may be empty for guest sessions
// identified by shareToken alone.
func NewClient(cfg Config, token, shareToken string) (*Client, error) {
	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base URL scheme must be http or https, got %q", base.Scheme)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	breaker := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:    "event-api",
		Timeout: cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.MaxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("api circuit breaker state change")
		},
		IsSuccessful: func(err error) bool {
			// Client-side errors do not indicate an unhealthy server.
			var se *StatusError
			if errors.As(err, &se) {
				return se.Code < 500
			}
			return err == nil
		},
	})

	return &Client{
		baseURL:    base.String(),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    limiter,
		breaker:    breaker,
		token:      token,
		shareToken: shareToken,
	}, nil
}

// do executes one request through the limiter and breaker and returns the
// response body.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body interface{}, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limit wait: %w", err)
		}
	}

	out, err := c.breaker.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, query, body)
	})
	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.APIRequests.WithLabelValues(endpoint, "rejected").Inc()
		return nil, ErrUnavailable
	case err != nil:
		metrics.APIRequests.WithLabelValues(endpoint, "error").Inc()
		return nil, err
	}
	metrics.APIRequests.WithLabelValues(endpoint, "ok").Inc()
	return out, nil
}

func (c *Client) roundTrip(ctx context.Context, method, path string, query url.Values, body interface{}) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if c.shareToken != "" {
		req.Header.Set("X-Share-Token", c.shareToken)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 16<<20))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode, Message: errorMessage(raw)}
	}
	return raw, nil
}

// errorMessage extracts the server's error text, falling back to the raw body.
func errorMessage(raw []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Message != "" {
			return payload.Message
		}
	}
	if len(raw) > 200 {
		raw = raw[:200]
	}
	return string(raw)
}

// ListOptions filter and page a media listing.
type ListOptions struct {
	Status   models.MediaStatus
	Page     int
	PageSize int
}

// MediaPage is one page of media records.
type MediaPage struct {
	Items      []models.MediaStatusRecord `json:"items"`
	Total      int                        `json:"total"`
	Page       int                        `json:"page"`
	PageSize   int                        `json:"pageSize"`
	TotalPages int                        `json:"totalPages"`
}

// ListMedia fetches one page of media for the event, optionally filtered to a
// single status bucket.
func (c *Client) ListMedia(ctx context.Context, eventID string, opts ListOptions) (*MediaPage, error) {
	q := url.Values{}
	if opts.Status != "" {
		q.Set("status", string(opts.Status))
	}
	if opts.Page > 0 {
		q.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		q.Set("pageSize", strconv.Itoa(opts.PageSize))
	}

	raw, err := c.do(ctx, http.MethodGet, "/api/v1/events/"+url.PathEscape(eventID)+"/media", q, nil, "list_media")
	if err != nil {
		return nil, err
	}

	var page MediaPage
	if err := json.Unmarshal(raw, &page); err != nil {
		return nil, fmt.Errorf("decode media page: %w", err)
	}
	return &page, nil
}

// CountsByStatus fetches the per-bucket totals for the event.
func (c *Client) CountsByStatus(ctx context.Context, eventID string) (models.MediaCounts, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/v1/events/"+url.PathEscape(eventID)+"/media/counts", nil, nil, "counts")
	if err != nil {
		return nil, err
	}

	var counts map[models.MediaStatus]int
	if err := json.Unmarshal(raw, &counts); err != nil {
		return nil, fmt.Errorf("decode counts: %w", err)
	}
	return models.MediaCounts(counts), nil
}

// statusChange is the body for moderation actions.
type statusChange struct {
	Status models.MediaStatus `json:"status"`
}

// SetStatus moves one media item to status. The server responds with the
// updated record and separately pushes the transition to all subscribers.
func (c *Client) SetStatus(ctx context.Context, mediaID string, status models.MediaStatus) (*models.MediaStatusRecord, error) {
	if !status.Valid() {
		return nil, fmt.Errorf("invalid target status %q", status)
	}
	raw, err := c.do(ctx, http.MethodPatch, "/api/v1/media/"+url.PathEscape(mediaID)+"/status", nil, statusChange{Status: status}, "set_status")
	if err != nil {
		return nil, err
	}

	var rec models.MediaStatusRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode media record: %w", err)
	}
	return &rec, nil
}

// Approve moves the item to the approved bucket.
func (c *Client) Approve(ctx context.Context, mediaID string) (*models.MediaStatusRecord, error) {
	return c.SetStatus(ctx, mediaID, models.StatusApproved)
}

// Reject moves the item to the rejected bucket.
func (c *Client) Reject(ctx context.Context, mediaID string) (*models.MediaStatusRecord, error) {
	return c.SetStatus(ctx, mediaID, models.StatusRejected)
}

// Hide removes an already-visible item from the gallery.
func (c *Client) Hide(ctx context.Context, mediaID string) (*models.MediaStatusRecord, error) {
	return c.SetStatus(ctx, mediaID, models.StatusHidden)
}

// Delete removes the item entirely.
func (c *Client) Delete(ctx context.Context, mediaID string) error {
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/media/"+url.PathEscape(mediaID), nil, nil, "delete")
	return err
}

// queueAction is the body for processing-queue control endpoints.
type queueAction struct {
	Action string `json:"action"`
}

// RetryProcessing requeues a failed item on the server's processing queue.
func (c *Client) RetryProcessing(ctx context.Context, mediaID string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/media/"+url.PathEscape(mediaID)+"/queue", nil, queueAction{Action: "retry"}, "queue_retry")
	return err
}

// PauseProcessing pauses an in-flight item.
func (c *Client) PauseProcessing(ctx context.Context, mediaID string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/media/"+url.PathEscape(mediaID)+"/queue", nil, queueAction{Action: "pause"}, "queue_pause")
	return err
}

// ResumeProcessing resumes a paused item.
func (c *Client) ResumeProcessing(ctx context.Context, mediaID string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/media/"+url.PathEscape(mediaID)+"/queue", nil, queueAction{Action: "resume"}, "queue_resume")
	return err
}

// CancelProcessing cancels a queued or in-flight item.
func (c *Client) CancelProcessing(ctx context.Context, mediaID string) error {
	_, err := c.do(ctx, http.MethodPost, "/api/v1/media/"+url.PathEscape(mediaID)+"/queue", nil, queueAction{Action: "cancel"}, "queue_cancel")
	return err
}

// Event is the collaborator's event record, as much of it as this core reads.
type Event struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	ShareToken       string    `json:"shareToken,omitempty"`
	ApprovalRequired bool      `json:"approvalRequired"`
	EndsAt           time.Time `json:"endsAt,omitempty"`
}

// GetEvent fetches one event's metadata. Callers use it to verify an event
// exists before standing up a session for it.
func (c *Client) GetEvent(ctx context.Context, eventID string) (*Event, error) {
	raw, err := c.do(ctx, http.MethodGet, "/api/v1/events/"+url.PathEscape(eventID), nil, nil, "get_event")
	if err != nil {
		return nil, err
	}

	var ev Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		return nil, fmt.Errorf("decode event: %w", err)
	}
	return &ev, nil
}

// ClearHistory removes completed queue entries older than cutoff. The server
// refuses the call while any item for the event is still processing.
func (c *Client) ClearHistory(ctx context.Context, eventID string, olderThan time.Duration) error {
	q := url.Values{}
	q.Set("olderThan", olderThan.String())
	_, err := c.do(ctx, http.MethodDelete, "/api/v1/events/"+url.PathEscape(eventID)+"/queue/history", q, nil, "clear_history")
	return err
}
