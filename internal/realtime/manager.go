// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package realtime owns the persistent socket connection to the event
// server: the authenticate handshake, reconnection with backoff, the rolling
// connect rate limit, and the per-room subscription registry.
package realtime

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/framewall/framewall/internal/config"
	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/metrics"
	"github.com/framewall/framewall/internal/models"
	"github.com/framewall/framewall/internal/protocol"
)

// Typed connect failures. Callers branch on these to pick the right retry
// affordance.
var (
	ErrAuthFailed   = errors.New("authentication failed")
	ErrTimeout      = errors.New("handshake timed out")
	ErrRateLimited  = errors.New("connect rate limited")
	ErrConnection   = errors.New("connection error")
	ErrNoCredential = errors.New("no stored credential to reconnect with")
	ErrNotConnected = errors.New("not connected")
)

// State is the connection lifecycle state.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateAuthenticating
	StateAuthenticated
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateAuthenticating:
		return "authenticating"
	case StateAuthenticated:
		return "authenticated"
	default:
		return "disconnected"
	}
}

// Credential is everything needed to authenticate a connection. Exactly one
// of Token (admin) or ShareToken (guest/photowall) is set.
type Credential struct {
	Token      string
	ShareToken string
	UserType   models.UserType
	EventID    string // optional room hint sent with the handshake
	GuestName  string
}

// Options configures a Manager. Zero-value durations fall back to the
// defaults in config.
type Options struct {
	URL    string
	Dialer Dialer // nil means DialWebsocket

	HandshakeTimeout time.Duration
	SubscribeTimeout time.Duration

	MaxConnectAttempts int
	ConnectCooldown    time.Duration

	MaxReconnectAttempts int
	ReconnectBaseDelay   time.Duration
	ReconnectMaxDelay    time.Duration

	// OnInbound receives push messages in wire order. Handshake and
	// subscription acks are consumed internally and not forwarded.
	OnInbound func(protocol.Inbound)

	// OnDisconnect is called after an abnormal close, before automatic
	// reconnection starts.
	OnDisconnect func(err error)

	// OnReconnected is called after an automatic reconnect succeeds. The
	// subscription registry is empty at that point; the callback is where
	// rooms get rejoined and caches refreshed from the server.
	OnReconnected func()
}

// OptionsFromConfig maps the realtime config section onto Options.
func OptionsFromConfig(cfg config.RealtimeConfig) Options {
	return Options{
		URL:                  cfg.URL,
		HandshakeTimeout:     cfg.HandshakeTimeout,
		SubscribeTimeout:     cfg.SubscribeTimeout,
		MaxConnectAttempts:   cfg.MaxConnectAttempts,
		ConnectCooldown:      cfg.ConnectCooldown,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
		ReconnectBaseDelay:   cfg.ReconnectBaseDelay,
		ReconnectMaxDelay:    cfg.ReconnectMaxDelay,
	}
}

// flight is one in-progress connect attempt shared by concurrent callers.
type flight struct {
	done chan struct{}
	err  error
}

// Manager owns at most one live socket. A new Connect tears down any prior
// socket before dialing; concurrent Connect calls share the in-flight
// attempt instead of opening a second socket.
type Manager struct {
	opts Options
	subs *Subscriptions

	attempts *attemptWindow

	mu            sync.Mutex
	state         State
	conn          Conn
	gen           uint64 // connection generation; stale read pumps exit
	cred          *Credential
	inflight      *flight
	authCh        chan error
	authRejected  bool
	explicitClose bool

	lastConnectedAt time.Time
	reconnecting    bool
}

// NewManager creates a Manager from options.
func NewManager(opts Options) *Manager {
	m := &Manager{
		opts:     opts,
		attempts: newAttemptWindow(opts.MaxConnectAttempts, opts.ConnectCooldown),
	}
	m.subs = newSubscriptions(m.send, opts.SubscribeTimeout)
	return m
}

// Subscriptions returns the per-room subscription registry bound to this
// connection.
func (m *Manager) Subscriptions() *Subscriptions {
	return m.subs
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// LastConnectedAt returns when the last successful authentication happened.
func (m *Manager) LastConnectedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastConnectedAt
}

// Connect establishes the socket and performs the authenticate handshake.
// It returns once the server confirms auth_success, or with a typed error
// (ErrAuthFailed, ErrTimeout, ErrRateLimited, ErrConnection) otherwise.
//
// Single-flight: callers that arrive while an attempt is in flight await
// that attempt's outcome rather than dialing again.
func (m *Manager) Connect(ctx context.Context, cred Credential) error {
	m.mu.Lock()
	if f := m.inflight; f != nil {
		m.mu.Unlock()
		select {
		case <-f.done:
			return f.err
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	if limited, remaining := m.attempts.Limited(); limited {
		m.mu.Unlock()
		metrics.ConnectAttempts.WithLabelValues("rate_limited").Inc()
		return fmt.Errorf("%w: retry in %s", ErrRateLimited, remaining.Round(time.Second))
	}

	f := &flight{done: make(chan struct{})}
	m.inflight = f
	m.cred = &cred
	m.mu.Unlock()

	err := m.connect(ctx, cred)

	m.mu.Lock()
	m.inflight = nil
	m.mu.Unlock()

	f.err = err
	close(f.done)
	return err
}

// Reconnect re-derives the stored credential and connects. No-ops with
// ErrNoCredential if Connect was never called.
func (m *Manager) Reconnect(ctx context.Context) error {
	m.mu.Lock()
	cred := m.cred
	m.mu.Unlock()

	if cred == nil {
		return ErrNoCredential
	}
	return m.Connect(ctx, *cred)
}

// Disconnect tears down the socket, clears all subscription state, and
// resets the authentication flags. Idempotent.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	m.explicitClose = true
	conn := m.conn
	m.conn = nil
	m.gen++ // invalidate the read pump
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
	}
	m.subs.clearAll()
	m.setState(StateDisconnected)
}

// connect performs a single attempt. Failure paths record into the rolling
// attempt window; success resets it.
func (m *Manager) connect(ctx context.Context, cred Credential) error {
	// A prior socket must be gone before another is created: the manager
	// holds at most one live handle.
	m.closeCurrent()
	m.setState(StateConnecting)

	dialer := m.opts.Dialer
	if dialer == nil {
		dialer = DialWebsocket
	}
	conn, err := dialer(ctx, m.opts.URL)
	if err != nil {
		m.attempts.RecordFailure()
		m.setState(StateDisconnected)
		metrics.ConnectAttempts.WithLabelValues("connection_error").Inc()
		return fmt.Errorf("%w: %v", ErrConnection, err)
	}

	m.mu.Lock()
	m.conn = conn
	m.gen++
	gen := m.gen
	m.authCh = make(chan error, 1)
	authCh := m.authCh
	m.authRejected = false
	m.explicitClose = false
	m.mu.Unlock()
	m.setState(StateConnected)

	go m.readPump(conn, gen)

	frame, err := protocol.Encode(protocol.TypeAuthenticate, protocol.Authenticate{
		Token:      cred.Token,
		ShareToken: cred.ShareToken,
		UserType:   cred.UserType,
		EventID:    cred.EventID,
		GuestName:  cred.GuestName,
	})
	if err != nil {
		m.failAttempt(conn, "connection_error")
		return fmt.Errorf("%w: encode authenticate: %v", ErrConnection, err)
	}

	m.setState(StateAuthenticating)
	if err := conn.WriteMessage(frame); err != nil {
		m.failAttempt(conn, "connection_error")
		return fmt.Errorf("%w: send authenticate: %v", ErrConnection, err)
	}

	timer := time.NewTimer(m.opts.HandshakeTimeout)
	defer timer.Stop()

	select {
	case err := <-authCh:
		if err != nil {
			outcome := "connection_error"
			if errors.Is(err, ErrAuthFailed) {
				outcome = "auth_failed"
			}
			m.failAttempt(conn, outcome)
			return err
		}
		m.attempts.Reset()
		m.mu.Lock()
		m.lastConnectedAt = time.Now()
		m.mu.Unlock()
		m.setState(StateAuthenticated)
		metrics.ConnectAttempts.WithLabelValues("success").Inc()
		logging.Info().
			Str("user_type", string(cred.UserType)).
			Msg("realtime connection authenticated")
		return nil

	case <-timer.C:
		m.failAttempt(conn, "timeout")
		return fmt.Errorf("%w: no auth response within %s", ErrTimeout, m.opts.HandshakeTimeout)

	case <-ctx.Done():
		m.failAttempt(conn, "connection_error")
		return ctx.Err()
	}
}

// failAttempt tears down a failed attempt's socket and records the failure.
func (m *Manager) failAttempt(conn Conn, outcome string) {
	m.mu.Lock()
	if m.conn == conn {
		m.conn = nil
		m.gen++
	}
	m.mu.Unlock()
	_ = conn.Close()
	m.attempts.RecordFailure()
	m.setState(StateDisconnected)
	metrics.ConnectAttempts.WithLabelValues(outcome).Inc()
}

// closeCurrent closes any live socket without touching the stored credential.
func (m *Manager) closeCurrent() {
	m.mu.Lock()
	conn := m.conn
	m.conn = nil
	m.gen++
	m.mu.Unlock()

	if conn != nil {
		_ = conn.Close()
		m.subs.clearAll()
	}
}

// send encodes and writes one frame on the current socket.
func (m *Manager) send(msgType string, payload interface{}) error {
	m.mu.Lock()
	conn := m.conn
	m.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}
	frame, err := protocol.Encode(msgType, payload)
	if err != nil {
		return err
	}
	return conn.WriteMessage(frame)
}

// readPump reads frames until the socket fails, decoding each at the
// protocol boundary and routing in wire order.
func (m *Manager) readPump(conn Conn, gen uint64) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.handleReadError(conn, gen, err)
			return
		}

		msg, derr := protocol.Decode(data)
		if derr != nil {
			metrics.MessagesRejected.Inc()
			logging.Warn().Err(derr).Msg("rejected inbound frame")
			continue
		}
		m.handleInbound(gen, msg)
	}
}

// handleInbound consumes handshake and subscription acks; everything else is
// forwarded to OnInbound in arrival order.
func (m *Manager) handleInbound(gen uint64, msg protocol.Inbound) {
	m.mu.Lock()
	if gen != m.gen {
		m.mu.Unlock()
		return
	}
	authCh := m.authCh
	m.mu.Unlock()

	switch v := msg.(type) {
	case protocol.AuthSuccess:
		select {
		case authCh <- nil:
		default:
		}

	case protocol.AuthError:
		m.mu.Lock()
		m.authRejected = true
		m.mu.Unlock()
		err := fmt.Errorf("%w: %s", ErrAuthFailed, protocol.HumanMessage(v.Code, v.Message))
		select {
		case authCh <- err:
		default:
		}

	case protocol.SubscriptionSuccess:
		m.subs.handleAck(v.EventID, nil)

	case protocol.SubscriptionError:
		m.subs.handleAck(v.EventID, fmt.Errorf("subscription rejected: %s",
			protocol.HumanMessage(v.Code, v.Message)))

	case protocol.ServerError:
		if m.opts.OnInbound != nil {
			m.opts.OnInbound(msg)
		}
		if protocol.Categorize(v.Code).Fatal() {
			// Authentication-level errors end the connection; other error
			// events are scoped to the operation that triggered them.
			m.mu.Lock()
			m.authRejected = true
			m.mu.Unlock()
			m.Disconnect()
		}

	default:
		if m.opts.OnInbound != nil {
			m.opts.OnInbound(msg)
		}
	}
}

// handleReadError runs when the read pump stops. Abnormal closes clear the
// subscription state and schedule automatic reconnection unless the server
// rejected our credential.
func (m *Manager) handleReadError(conn Conn, gen uint64, err error) {
	m.mu.Lock()
	if gen != m.gen {
		// A newer connection replaced this one; nothing to clean up.
		m.mu.Unlock()
		return
	}
	explicit := m.explicitClose
	rejected := m.authRejected
	authCh := m.authCh
	m.conn = nil
	m.gen++
	m.mu.Unlock()

	_ = conn.Close()
	m.subs.clearAll()
	m.setState(StateDisconnected)

	if explicit {
		return
	}

	// A handshake may be waiting on this socket.
	select {
	case authCh <- fmt.Errorf("%w: %v", ErrConnection, err):
	default:
	}

	logging.Warn().Err(err).Msg("realtime connection lost")
	if m.opts.OnDisconnect != nil {
		m.opts.OnDisconnect(err)
	}

	if !rejected {
		m.startAutoReconnect()
	}
}

// startAutoReconnect launches the bounded reconnect loop once.
func (m *Manager) startAutoReconnect() {
	m.mu.Lock()
	if m.reconnecting || m.cred == nil || m.opts.MaxReconnectAttempts <= 0 {
		m.mu.Unlock()
		return
	}
	m.reconnecting = true
	m.mu.Unlock()

	go func() {
		defer func() {
			m.mu.Lock()
			m.reconnecting = false
			m.mu.Unlock()
		}()

		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = m.opts.ReconnectBaseDelay
		bo.MaxInterval = m.opts.ReconnectMaxDelay
		bo.MaxElapsedTime = 0 // attempts are bounded by count, not time

		for attempt := 1; attempt <= m.opts.MaxReconnectAttempts; attempt++ {
			time.Sleep(bo.NextBackOff())

			metrics.Reconnects.Inc()
			err := m.Reconnect(context.Background())
			if err == nil {
				logging.Info().Int("attempt", attempt).Msg("automatic reconnect succeeded")
				if m.opts.OnReconnected != nil {
					m.opts.OnReconnected()
				}
				return
			}
			if errors.Is(err, ErrAuthFailed) {
				// Credential is no longer valid; retrying cannot help.
				logging.Error().Err(err).Msg("reconnect abandoned after auth rejection")
				return
			}
			logging.Warn().Err(err).Int("attempt", attempt).Msg("automatic reconnect failed")
		}
		logging.Error().
			Int("attempts", m.opts.MaxReconnectAttempts).
			Msg("giving up automatic reconnection")
	}()
}

// setState updates the lifecycle state and its gauge.
func (m *Manager) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
	metrics.ConnectionState.Set(float64(s))
}
