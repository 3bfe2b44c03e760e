// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package photowall

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/framewall/framewall/internal/config"
	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/mediacache"
	"github.com/framewall/framewall/internal/models"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func testRouter(cache *mediacache.Cache) http.Handler {
	srv := NewServer(cache, nil, "evt-1")
	return srv.Router(config.PhotowallConfig{
		CORSOrigins: []string{"*"},
	})
}

func record(id string, status models.MediaStatus) models.MediaStatusRecord {
	return models.MediaStatusRecord{
		MediaID:                 id,
		CurrentStatus:           status,
		LastTransitionTimestamp: time.Now(),
	}
}

func TestWallMergesVisibleBuckets(t *testing.T) {
	cache := mediacache.New(0)
	cache.Replace(models.StatusApproved, []models.MediaStatusRecord{
		record("m1", models.StatusApproved),
	})
	cache.Replace(models.StatusAutoApproved, []models.MediaStatusRecord{
		record("m2", models.StatusAutoApproved),
	})
	cache.Replace(models.StatusPending, []models.MediaStatusRecord{
		record("m3", models.StatusPending),
	})

	rr := httptest.NewRecorder()
	testRouter(cache).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/wall", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp wallResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.EventID != "evt-1" {
		t.Errorf("EventID = %q", resp.EventID)
	}
	if len(resp.Items) != 2 {
		t.Fatalf("items = %d, want 2 (pending must not leak)", len(resp.Items))
	}
	for _, item := range resp.Items {
		if item.MediaID == "m3" {
			t.Error("pending item m3 leaked onto the wall")
		}
	}
	if resp.Stale {
		t.Error("Stale = true after Replace")
	}
}

func TestWallReportsStaleness(t *testing.T) {
	cache := mediacache.New(0)
	cache.Replace(models.StatusApproved, []models.MediaStatusRecord{
		record("m1", models.StatusApproved),
	})
	cache.Invalidate(models.StatusApproved)

	rr := httptest.NewRecorder()
	testRouter(cache).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/wall", nil))

	var resp wallResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if !resp.Stale {
		t.Error("Stale = false after Invalidate")
	}
	// Stale content still serves; invalidation marks, it does not evict.
	if len(resp.Items) != 1 {
		t.Errorf("items = %d, want 1", len(resp.Items))
	}
}

func TestStatsWithoutManagerReportsPassive(t *testing.T) {
	cache := mediacache.New(0)
	cache.Replace(models.StatusApproved, []models.MediaStatusRecord{
		record("m1", models.StatusApproved),
		record("m2", models.StatusApproved),
	})
	cache.Replace(models.StatusPending, []models.MediaStatusRecord{
		record("m3", models.StatusPending),
	})

	rr := httptest.NewRecorder()
	testRouter(cache).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/stats", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	var resp statsResponse
	if err := json.Unmarshal(rr.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.ConnectionState != "passive" {
		t.Errorf("ConnectionState = %q, want passive", resp.ConnectionState)
	}
	if resp.Total != 3 {
		t.Errorf("Total = %d, want 3", resp.Total)
	}
	if resp.Counts[models.StatusApproved] != 2 {
		t.Errorf("approved count = %d, want 2", resp.Counts[models.StatusApproved])
	}
}

func TestHealthAlwaysOK(t *testing.T) {
	rr := httptest.NewRecorder()
	testRouter(mediacache.New(0)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rr.Code != http.StatusOK {
		t.Errorf("status = %d", rr.Code)
	}
}

func TestRateLimitEnforced(t *testing.T) {
	cache := mediacache.New(0)
	srv := NewServer(cache, nil, "evt-1")
	router := srv.Router(config.PhotowallConfig{
		RateLimitReqs:   2,
		RateLimitWindow: time.Minute,
	})

	var limited bool
	for i := 0; i < 5; i++ {
		rr := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/api/v1/wall", nil)
		req.RemoteAddr = "203.0.113.9:1234"
		router.ServeHTTP(rr, req)
		if rr.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("no request was rate limited after exceeding the quota")
	}

	// Health and metrics sit outside the limited API group.
	rr := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.RemoteAddr = "203.0.113.9:1234"
	router.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("healthz status = %d after API rate limit", rr.Code)
	}
}
