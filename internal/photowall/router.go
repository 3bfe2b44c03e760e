// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package photowall is the read-only HTTP surface of cmd/photowall: the
// approved gallery, session statistics, health, and Prometheus metrics. It
// reads exclusively from the reconciliation cache; no request ever blocks on
// the realtime connection or the REST collaborator.
package photowall

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/framewall/framewall/internal/config"
	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/mediacache"
	"github.com/framewall/framewall/internal/models"
	"github.com/framewall/framewall/internal/realtime"
)

// Server answers wall queries from the cache.
type Server struct {
	cache   *mediacache.Cache
	manager *realtime.Manager
	eventID string
	started time.Time
}

// NewServer builds the handler set. manager may be nil for a passive wall
// fed only by the relay.
func NewServer(cache *mediacache.Cache, manager *realtime.Manager, eventID string) *Server {
	return &Server{
		cache:   cache,
		manager: manager,
		eventID: eventID,
		started: time.Now(),
	}
}

// Router assembles the chi router with CORS and per-IP rate limiting.
func (s *Server) Router(cfg config.PhotowallConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		reqs, window := cfg.RateLimitReqs, cfg.RateLimitWindow
		if reqs <= 0 {
			reqs = 60
		}
		if window <= 0 {
			window = time.Minute
		}
		r.Use(httprate.LimitByIP(reqs, window))

		r.Get("/wall", s.handleWall)
		r.Get("/stats", s.handleStats)
	})

	return r
}

// wallResponse is the gallery payload.
type wallResponse struct {
	EventID string                     `json:"eventId"`
	Items   []models.MediaStatusRecord `json:"items"`
	Stale   bool                       `json:"stale"`
	TakenAt time.Time                  `json:"takenAt"`
}

// handleWall returns the visible items, newest transitions first. Approved
// and auto-approved media are one gallery to viewers.
func (s *Server) handleWall(w http.ResponseWriter, r *http.Request) {
	snap := s.cache.Snapshot()

	items := make([]models.MediaStatusRecord, 0,
		len(snap.Buckets[models.StatusApproved])+len(snap.Buckets[models.StatusAutoApproved]))
	items = append(items, snap.Buckets[models.StatusApproved]...)
	items = append(items, snap.Buckets[models.StatusAutoApproved]...)

	stale := s.cache.Stale(models.StatusApproved) || s.cache.Stale(models.StatusAutoApproved)

	writeJSON(w, http.StatusOK, wallResponse{
		EventID: s.eventID,
		Items:   items,
		Stale:   stale,
		TakenAt: snap.TakenAt,
	})
}

// statsResponse summarizes the session for dashboards.
type statsResponse struct {
	EventID         string             `json:"eventId"`
	Counts          models.MediaCounts `json:"counts"`
	Total           int                `json:"total"`
	ConnectionState string             `json:"connectionState"`
	UptimeSeconds   int64              `json:"uptimeSeconds"`
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	counts := s.cache.Counts()

	state := "passive"
	if s.manager != nil {
		state = s.manager.State().String()
	}

	writeJSON(w, http.StatusOK, statsResponse{
		EventID:         s.eventID,
		Counts:          counts,
		Total:           counts.Total(),
		ConnectionState: state,
		UptimeSeconds:   int64(time.Since(s.started).Seconds()),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	// Degraded realtime is not unhealthy; the wall serves from cache.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn().Err(err).Msg("encode response")
	}
}
