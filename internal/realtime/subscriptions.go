// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/metrics"
	"github.com/framewall/framewall/internal/protocol"
)

// Subscription failures are isolated and retryable; they never affect other
// rooms or the connection itself.
var (
	ErrSubscribeTimeout = errors.New("subscribe ack timed out")
	ErrSubscriptionGone = errors.New("subscription cleared by disconnect")
)

// SubscriptionState tracks where a room's membership stands.
type SubscriptionState int

const (
	SubPending SubscriptionState = iota
	SubActive
	SubFailed
)

// room is the registry entry for one eventID.
type room struct {
	state      SubscriptionState
	shareToken string
	ack        chan error
}

// sendFunc is the manager's wire send path.
type sendFunc func(msgType string, payload interface{}) error

// Subscriptions tracks which rooms the current connection has joined. An
// eventID is in exactly one of pending/active/failed at a time; it is never
// subscribed twice concurrently.
type Subscriptions struct {
	mu      sync.Mutex
	rooms   map[string]*room
	send    sendFunc
	timeout time.Duration
}

func newSubscriptions(send sendFunc, timeout time.Duration) *Subscriptions {
	return &Subscriptions{
		rooms:   make(map[string]*room),
		send:    send,
		timeout: timeout,
	}
}

// Subscribe joins the room for eventID. Calling while already active or
// pending is a no-op, so concurrent callers produce exactly one subscribe
// message on the wire. A missing ack within the timeout moves the room to
// failed; callers may retry.
func (s *Subscriptions) Subscribe(ctx context.Context, eventID, shareToken string) error {
	s.mu.Lock()
	if r, ok := s.rooms[eventID]; ok && r.state != SubFailed {
		s.mu.Unlock()
		return nil
	}
	r := &room{state: SubPending, shareToken: shareToken, ack: make(chan error, 1)}
	s.rooms[eventID] = r
	s.mu.Unlock()

	err := s.send(protocol.TypeSubscribeToEvent, protocol.SubscribeToEvent{
		EventID:    eventID,
		ShareToken: shareToken,
	})
	if err != nil {
		s.fail(eventID, r)
		return fmt.Errorf("subscribe %s: %w", eventID, err)
	}

	timer := time.NewTimer(s.timeout)
	defer timer.Stop()

	select {
	case ackErr := <-r.ack:
		if ackErr != nil {
			s.fail(eventID, r)
			return fmt.Errorf("subscribe %s: %w", eventID, ackErr)
		}
		return nil

	case <-timer.C:
		s.fail(eventID, r)
		logging.Warn().Str("event_id", eventID).Dur("timeout", s.timeout).Msg("subscribe ack timed out")
		return fmt.Errorf("subscribe %s: %w", eventID, ErrSubscribeTimeout)

	case <-ctx.Done():
		s.fail(eventID, r)
		return ctx.Err()
	}
}

// Unsubscribe leaves the room. Removal is optimistic: the entry is dropped
// immediately and the wire message is best-effort, since leaving a room has
// no correctness risk for the leaver. No-op when not active.
func (s *Subscriptions) Unsubscribe(eventID string) {
	s.mu.Lock()
	r, ok := s.rooms[eventID]
	if !ok || r.state != SubActive {
		s.mu.Unlock()
		return
	}
	delete(s.rooms, eventID)
	s.mu.Unlock()
	s.syncGauge()

	if err := s.send(protocol.TypeUnsubscribeFromEvent, protocol.UnsubscribeFromEvent{EventID: eventID}); err != nil {
		logging.Debug().Err(err).Str("event_id", eventID).Msg("best-effort unsubscribe send failed")
	}
}

// Switch leaves `from` and joins `to` concurrently, minimizing the window
// with zero room membership. The leave is best-effort: its failure never
// blocks the join, and vice versa. Switching to the already-active room is
// a guaranteed no-op.
func (s *Subscriptions) Switch(ctx context.Context, from, to, shareToken string) error {
	if s.IsSubscribed(to) {
		return nil
	}

	if from != "" && from != to {
		go s.Unsubscribe(from)
	}
	return s.Subscribe(ctx, to, shareToken)
}

// IsSubscribed reports whether eventID is currently active.
func (s *Subscriptions) IsSubscribed(eventID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rooms[eventID]
	return ok && r.state == SubActive
}

// Active returns the currently active room IDs.
func (s *Subscriptions) Active() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []string
	for id, r := range s.rooms {
		if r.state == SubActive {
			out = append(out, id)
		}
	}
	return out
}

// handleAck resolves a pending subscribe with the server's answer.
func (s *Subscriptions) handleAck(eventID string, err error) {
	s.mu.Lock()
	r, ok := s.rooms[eventID]
	if !ok {
		s.mu.Unlock()
		return
	}
	if err == nil {
		r.state = SubActive
	} else {
		r.state = SubFailed
	}
	s.mu.Unlock()
	s.syncGauge()

	select {
	case r.ack <- err:
	default:
	}
}

// fail marks a room failed unless a newer subscribe replaced it.
func (s *Subscriptions) fail(eventID string, r *room) {
	s.mu.Lock()
	if cur, ok := s.rooms[eventID]; ok && cur == r {
		cur.state = SubFailed
	}
	s.mu.Unlock()
	s.syncGauge()
	metrics.SubscriptionFailures.Inc()
}

// clearAll drops every subscription. Called on disconnect: no stale active
// rooms may survive a connection teardown. Pending waiters are released
// with an error instead of waiting out their timeout.
func (s *Subscriptions) clearAll() {
	s.mu.Lock()
	rooms := s.rooms
	s.rooms = make(map[string]*room)
	s.mu.Unlock()

	for _, r := range rooms {
		select {
		case r.ack <- ErrSubscriptionGone:
		default:
		}
	}
	s.syncGauge()
}

// syncGauge refreshes the active-subscription gauge.
func (s *Subscriptions) syncGauge() {
	s.mu.Lock()
	var active int
	for _, r := range s.rooms {
		if r.state == SubActive {
			active++
		}
	}
	s.mu.Unlock()
	metrics.SubscriptionsActive.Set(float64(active))
}
