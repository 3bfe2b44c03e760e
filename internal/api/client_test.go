// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

// testConfig disables rate limiting and uses a low breaker threshold so
// breaker behavior is observable without dozens of requests.
func testConfig(baseURL string) Config {
	return Config{
		BaseURL:     baseURL,
		Timeout:     2 * time.Second,
		MaxFailures: 2,
		OpenTimeout: time.Minute,
	}
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(testConfig(srv.URL), "test-token", "share-xyz")
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestListMedia(t *testing.T) {
	var gotPath, gotAuth, gotShare, gotStatus string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotShare = r.Header.Get("X-Share-Token")
		gotStatus = r.URL.Query().Get("status")
		json.NewEncoder(w).Encode(MediaPage{
			Items: []models.MediaStatusRecord{
				{MediaID: "m1", CurrentStatus: models.StatusApproved},
				{MediaID: "m2", CurrentStatus: models.StatusApproved},
			},
			Total: 2, Page: 1, PageSize: 50, TotalPages: 1,
		})
	}))

	page, err := client.ListMedia(context.Background(), "evt-1", ListOptions{Status: models.StatusApproved})
	if err != nil {
		t.Fatalf("ListMedia() error = %v", err)
	}
	if gotPath != "/api/v1/events/evt-1/media" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer test-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotShare != "share-xyz" {
		t.Errorf("X-Share-Token = %q", gotShare)
	}
	if gotStatus != "approved" {
		t.Errorf("status query = %q", gotStatus)
	}
	if len(page.Items) != 2 || page.Total != 2 {
		t.Errorf("page = %+v", page)
	}
}

func TestCountsByStatus(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `{"pending":3,"approved":10,"rejected":1}`)
	}))

	counts, err := client.CountsByStatus(context.Background(), "evt-1")
	if err != nil {
		t.Fatalf("CountsByStatus() error = %v", err)
	}
	if counts[models.StatusPending] != 3 || counts[models.StatusApproved] != 10 {
		t.Errorf("counts = %v", counts)
	}
}

func TestSetStatusRejectsInvalidTarget(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("server must not be reached for an invalid status")
	}))
	if _, err := client.SetStatus(context.Background(), "m1", models.MediaStatus("sideways")); err == nil {
		t.Error("SetStatus() error = nil, want validation error")
	}
}

func TestSetStatusSendsPatch(t *testing.T) {
	var gotMethod, gotPath string
	var gotBody statusChange
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		json.NewDecoder(r.Body).Decode(&gotBody)
		json.NewEncoder(w).Encode(models.MediaStatusRecord{MediaID: "m1", CurrentStatus: models.StatusApproved})
	}))

	rec, err := client.Approve(context.Background(), "m1")
	if err != nil {
		t.Fatalf("Approve() error = %v", err)
	}
	if gotMethod != http.MethodPatch || gotPath != "/api/v1/media/m1/status" {
		t.Errorf("request = %s %s", gotMethod, gotPath)
	}
	if gotBody.Status != models.StatusApproved {
		t.Errorf("body status = %q", gotBody.Status)
	}
	if rec.CurrentStatus != models.StatusApproved {
		t.Errorf("record = %+v", rec)
	}
}

func TestStatusErrorCarriesServerMessage(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		io.WriteString(w, `{"error":"not your event"}`)
	}))

	_, err := client.ListMedia(context.Background(), "evt-1", ListOptions{})
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("error = %v, want *StatusError", err)
	}
	if se.Code != http.StatusForbidden || se.Message != "not your event" {
		t.Errorf("StatusError = %+v", se)
	}
}

func TestBreakerOpensOnServerErrors(t *testing.T) {
	var hits int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusInternalServerError)
	}))

	ctx := context.Background()
	for i := 0; i < 2; i++ {
		var se *StatusError
		if _, err := client.ListMedia(ctx, "evt-1", ListOptions{}); !errors.As(err, &se) {
			t.Fatalf("request %d error = %v, want *StatusError", i, err)
		}
	}
	if _, err := client.ListMedia(ctx, "evt-1", ListOptions{}); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error after threshold = %v, want ErrUnavailable", err)
	}
	if hits != 2 {
		t.Errorf("server hits = %d, want 2 (third call short-circuited)", hits)
	}
}

func TestClientErrorsDoNotTripBreaker(t *testing.T) {
	var hits int
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.WriteHeader(http.StatusNotFound)
	}))

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		var se *StatusError
		if _, err := client.ListMedia(ctx, "evt-1", ListOptions{}); !errors.As(err, &se) {
			t.Fatalf("request %d error = %v, want *StatusError", i, err)
		}
	}
	if hits != 5 {
		t.Errorf("server hits = %d, want 5 (404s must not open the circuit)", hits)
	}
}

func TestQueueActions(t *testing.T) {
	var gotActions []string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body queueAction
		json.NewDecoder(r.Body).Decode(&body)
		gotActions = append(gotActions, body.Action)
		w.WriteHeader(http.StatusAccepted)
	}))

	ctx := context.Background()
	if err := client.RetryProcessing(ctx, "m1"); err != nil {
		t.Fatalf("RetryProcessing() error = %v", err)
	}
	if err := client.PauseProcessing(ctx, "m1"); err != nil {
		t.Fatalf("PauseProcessing() error = %v", err)
	}
	if err := client.ResumeProcessing(ctx, "m1"); err != nil {
		t.Fatalf("ResumeProcessing() error = %v", err)
	}
	if err := client.CancelProcessing(ctx, "m1"); err != nil {
		t.Fatalf("CancelProcessing() error = %v", err)
	}
	want := []string{"retry", "pause", "resume", "cancel"}
	for i, a := range want {
		if gotActions[i] != a {
			t.Errorf("action[%d] = %q, want %q", i, gotActions[i], a)
		}
	}
}

func TestClearHistoryQuery(t *testing.T) {
	var gotOlderThan string
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotOlderThan = r.URL.Query().Get("olderThan")
		w.WriteHeader(http.StatusNoContent)
	}))

	if err := client.ClearHistory(context.Background(), "evt-1", 24*time.Hour); err != nil {
		t.Fatalf("ClearHistory() error = %v", err)
	}
	if gotOlderThan != "24h0m0s" {
		t.Errorf("olderThan = %q", gotOlderThan)
	}
}

func TestNewClientRejectsBadURL(t *testing.T) {
	if _, err := NewClient(testConfig("ftp://example.com"), "", ""); err == nil {
		t.Error("NewClient() error = nil, want scheme error")
	}
}
