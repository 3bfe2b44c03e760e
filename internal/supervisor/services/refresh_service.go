// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package services

import (
	"context"
	"time"

	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/sync"
)

// RefreshService periodically rebuilds the session's cache from the REST
// collaborator. Push deltas keep the cache current between ticks; the
// periodic snapshot bounds drift from any message the connection missed.
type RefreshService struct {
	session  *sync.Session
	interval time.Duration
}

// NewRefreshService wraps session with a refresh every interval.
func NewRefreshService(session *sync.Session, interval time.Duration) *RefreshService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &RefreshService{session: session, interval: interval}
}

// Serve implements suture.Service.
func (r *RefreshService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			refreshCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
			if err := r.session.Refresh(refreshCtx); err != nil {
				logging.Warn().Err(err).Msg("periodic cache refresh failed")
			}
			cancel()
		}
	}
}

func (r *RefreshService) String() string { return "cache-refresh" }
