// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package sync orchestrates one event session: the realtime connection, the
// room subscription, the reconciliation cache, and the in-process relay to
// passive sessions.
//
// Exactly one session per process holds the live server connection (the
// leader); passive sessions feed their caches from the leader's relayed
// envelopes. Leadership here is positional, not elected: the caller decides
// which session connects.
package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	json "github.com/goccy/go-json"

	"github.com/framewall/framewall/internal/api"
	"github.com/framewall/framewall/internal/broadcast"
	"github.com/framewall/framewall/internal/dispatch"
	"github.com/framewall/framewall/internal/localstore"
	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/mediacache"
	"github.com/framewall/framewall/internal/models"
	"github.com/framewall/framewall/internal/protocol"
	"github.com/framewall/framewall/internal/realtime"
)

// Options assembles a session's collaborators.
type Options struct {
	EventID  string
	Cred     realtime.Credential
	Realtime realtime.Options

	// API fetches authoritative snapshots. Optional: without it the cache
	// is delta-only and stays stale until the next process restart.
	API *api.Client

	// Store persists connection hints across restarts. Optional.
	Store *localstore.Store

	// Bus relays events to passive sessions in this process. Optional.
	Bus *broadcast.Bus

	// Notifications and Telemetry are handed to the dispatcher unchanged.
	Notifications dispatch.NotificationSink
	Telemetry     dispatch.TelemetrySink

	// StalenessWindow bounds how long cached buckets are served without a
	// refetch. Zero uses the cache default.
	StalenessWindow time.Duration
}

// Session is one user's live view of an event.
type Session struct {
	eventID string
	cred    realtime.Credential

	manager     *realtime.Manager
	cache       *mediacache.Cache
	dispatcher  *dispatch.Dispatcher
	apiClient   *api.Client
	store       *localstore.Store
	broadcaster *broadcast.Broadcaster

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewSession wires the collaborators together. Nothing connects until Start.
func NewSession(opts Options) (*Session, error) {
	if opts.EventID == "" {
		return nil, errors.New("sync: event ID is required")
	}
	if opts.Cred.EventID == "" {
		opts.Cred.EventID = opts.EventID
	}

	s := &Session{
		eventID:   opts.EventID,
		cred:      opts.Cred,
		cache:     mediacache.New(opts.StalenessWindow),
		apiClient: opts.API,
		store:     opts.Store,
	}

	dispatchOpts := make([]dispatch.Option, 0, 3)
	if opts.Notifications != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithNotifications(opts.Notifications))
	}
	if opts.Telemetry != nil {
		dispatchOpts = append(dispatchOpts, dispatch.WithTelemetry(opts.Telemetry))
	}
	dispatchOpts = append(dispatchOpts, dispatch.WithServerErrorHandler(func(cat protocol.ErrorCategory, msg string) {
		logging.Warn().Str("category", string(cat)).Str("event_id", opts.EventID).Msg(msg)
	}))
	s.dispatcher = dispatch.New(opts.Cred.UserType, s.cache, dispatchOpts...)

	if opts.Bus != nil {
		s.broadcaster = broadcast.New(opts.Bus, watermill.NewUUID(), opts.EventID)
	}

	rtOpts := opts.Realtime
	rtOpts.OnInbound = s.handleInbound
	rtOpts.OnDisconnect = s.handleDisconnect
	rtOpts.OnReconnected = s.handleReconnected
	s.manager = realtime.NewManager(rtOpts)

	return s, nil
}

// Cache exposes the reconciliation cache for reads.
func (s *Session) Cache() *mediacache.Cache { return s.cache }

// Manager exposes the underlying connection for state queries.
func (s *Session) Manager() *realtime.Manager { return s.manager }

// Start connects, authenticates, joins the event room, and primes the cache
// from the server. On any failure the partially-started session is torn down.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("sync: session already started")
	}
	s.running = true
	bg, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.manager.Connect(ctx, s.cred); err != nil {
		s.teardown()
		return fmt.Errorf("connect: %w", err)
	}
	if err := s.manager.Subscriptions().Subscribe(ctx, s.eventID, s.cred.ShareToken); err != nil {
		s.teardown()
		return fmt.Errorf("join event room: %w", err)
	}

	if err := s.Refresh(ctx); err != nil {
		// Deltas still flow; cached reads are just stale until the next
		// refresh succeeds.
		logging.Warn().Err(err).Str("event_id", s.eventID).Msg("initial snapshot fetch failed")
	}

	if s.broadcaster != nil {
		if err := s.broadcaster.Listen(bg, s.handleRelayed); err != nil {
			s.teardown()
			return fmt.Errorf("attach relay: %w", err)
		}
	}

	logging.Info().
		Str("event_id", s.eventID).
		Str("user_type", string(s.cred.UserType)).
		Msg("session started")
	return nil
}

// StartPassive attaches to the in-process relay without opening a server
// connection. Requires a bus.
func (s *Session) StartPassive(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("sync: session already started")
	}
	if s.broadcaster == nil {
		s.mu.Unlock()
		return errors.New("sync: passive session requires a broadcast bus")
	}
	s.running = true
	bg, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	if err := s.broadcaster.Listen(bg, s.handleRelayed); err != nil {
		s.teardown()
		return fmt.Errorf("attach relay: %w", err)
	}

	if err := s.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Str("event_id", s.eventID).Msg("initial snapshot fetch failed")
	}

	logging.Info().Str("event_id", s.eventID).Msg("passive session started")
	return nil
}

// Stop disconnects and records connection hints. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	eventID, userType := s.eventID, s.cred.UserType
	s.mu.Unlock()

	s.manager.Disconnect()
	s.teardown()

	if s.store != nil {
		hints := localstore.ConnectionHints{
			EventID:         eventID,
			UserType:        userType,
			LastConnectedAt: s.manager.LastConnectedAt(),
			CleanShutdown:   true,
		}
		if err := s.store.SaveConnectionHints(hints); err != nil {
			logging.Warn().Err(err).Msg("save connection hints")
		}
	}
	s.wg.Wait()
	logging.Info().Str("event_id", eventID).Msg("session stopped")
}

// SwitchEvent atomically moves the session to another event room and rebuilds
// the cache for it.
func (s *Session) SwitchEvent(ctx context.Context, eventID, shareToken string) error {
	s.mu.Lock()
	from := s.eventID
	s.mu.Unlock()

	if err := s.manager.Subscriptions().Switch(ctx, from, eventID, shareToken); err != nil {
		return fmt.Errorf("switch room: %w", err)
	}

	s.mu.Lock()
	s.eventID = eventID
	s.cred.ShareToken = shareToken
	s.mu.Unlock()

	s.cache.Clear()
	if err := s.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Str("event_id", eventID).Msg("snapshot fetch after switch failed")
	}
	return nil
}

// Refresh rebuilds the cache from the server: counts plus the buckets this
// user type actually reads. No-op without an API client.
func (s *Session) Refresh(ctx context.Context) error {
	if s.apiClient == nil {
		return nil
	}

	// SwitchEvent may move the session to another room mid-refresh; a
	// consistent local snapshot of the identity keeps the whole refresh on
	// one event.
	s.mu.Lock()
	eventID, userType := s.eventID, s.cred.UserType
	s.mu.Unlock()

	counts, err := s.apiClient.CountsByStatus(ctx, eventID)
	if err != nil {
		return fmt.Errorf("fetch counts: %w", err)
	}

	for _, bucket := range bucketsOfInterest(userType) {
		page, err := s.apiClient.ListMedia(ctx, eventID, api.ListOptions{Status: bucket, PageSize: 200})
		if err != nil {
			return fmt.Errorf("fetch %s bucket: %w", bucket, err)
		}
		s.cache.Replace(bucket, page.Items)

		// A short first page with a larger server count means the bucket is
		// truncated locally; leave it marked stale so readers know.
		if serverCount, ok := counts[bucket]; ok && serverCount > len(page.Items) {
			logging.Debug().
				Str("bucket", string(bucket)).
				Int("local", len(page.Items)).
				Int("server", serverCount).
				Msg("bucket truncated at first page")
			s.cache.Invalidate(bucket)
		}
	}
	return nil
}

// bucketsOfInterest is the set of status buckets a user type displays.
func bucketsOfInterest(userType models.UserType) []models.MediaStatus {
	switch userType {
	case models.UserTypeAdmin:
		return models.AllStatuses
	default:
		// Guests and photowall viewers only render the visible gallery.
		return []models.MediaStatus{models.StatusApproved, models.StatusAutoApproved}
	}
}

// handleInbound runs on the read pump: apply locally, then relay to passive
// sessions. Relay failures never disturb local dispatch.
func (s *Session) handleInbound(msg protocol.Inbound) {
	s.dispatcher.Dispatch(msg)

	if s.broadcaster == nil {
		return
	}
	if err := s.broadcaster.Broadcast(msg.MessageType(), msg); err != nil {
		logging.Warn().Err(err).Str("type", msg.MessageType()).Msg("relay publish failed")
	}
}

// handleRelayed rebuilds the wire message from a relayed envelope and feeds
// it through the same dispatch path a live connection would use.
func (s *Session) handleRelayed(env broadcast.Envelope) {
	raw, err := json.Marshal(protocol.Envelope{Type: env.EventType, Payload: env.Payload})
	if err != nil {
		logging.Warn().Err(err).Str("type", env.EventType).Msg("re-encode relayed event")
		return
	}
	msg, err := protocol.Decode(raw)
	if err != nil {
		logging.Warn().Err(err).Str("type", env.EventType).Msg("decode relayed event")
		return
	}
	s.dispatcher.Dispatch(msg)
}

// handleDisconnect marks cached data untrusted while the connection is down.
func (s *Session) handleDisconnect(err error) {
	s.mu.Lock()
	eventID := s.eventID
	s.mu.Unlock()

	logging.Warn().Err(err).Str("event_id", eventID).Msg("connection lost")
	s.cache.Invalidate()
}

// handleReconnected rejoins the room and refetches, because any number of
// transitions may have happened during the gap.
func (s *Session) handleReconnected() {
	s.mu.Lock()
	eventID, shareToken := s.eventID, s.cred.ShareToken
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.manager.Subscriptions().Subscribe(ctx, eventID, shareToken); err != nil {
		logging.Error().Err(err).Str("event_id", eventID).Msg("rejoin after reconnect failed")
		return
	}
	if err := s.Refresh(ctx); err != nil {
		logging.Warn().Err(err).Str("event_id", eventID).Msg("refetch after reconnect failed")
	}
}

func (s *Session) teardown() {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	s.running = false
	s.mu.Unlock()
}
