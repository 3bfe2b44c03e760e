// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package services

import (
	"context"
	"fmt"
	"time"

	"github.com/framewall/framewall/internal/sync"
)

// SessionService runs an event session under supervision. A session that
// fails to start returns an error so suture restarts it with backoff; once
// started, the session's own reconnect loop handles transient drops and this
// service simply waits for shutdown.
type SessionService struct {
	session      *sync.Session
	startTimeout time.Duration
}

// NewSessionService wraps session. startTimeout bounds the initial connect
// and room join.
func NewSessionService(session *sync.Session, startTimeout time.Duration) *SessionService {
	if startTimeout <= 0 {
		startTimeout = 30 * time.Second
	}
	return &SessionService{session: session, startTimeout: startTimeout}
}

// Serve implements suture.Service.
func (s *SessionService) Serve(ctx context.Context) error {
	startCtx, cancel := context.WithTimeout(ctx, s.startTimeout)
	err := s.session.Start(startCtx)
	cancel()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}

	<-ctx.Done()
	s.session.Stop()
	return ctx.Err()
}

func (s *SessionService) String() string { return "event-session" }
