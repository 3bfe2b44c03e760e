// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package dispatch routes decoded push messages to the reconciliation cache
// and the notification surfaces. Admin and guest connections receive
// different semantics for the same underlying events: admins see every
// transition with the actor's name, guests only see transitions that cross
// the visibility boundary.
//
// Messages are applied strictly in arrival order; the cache's consistency
// depends on monotonic application of transitions per mediaId.
package dispatch

import (
	"strconv"
	"time"

	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/mediacache"
	"github.com/framewall/framewall/internal/metrics"
	"github.com/framewall/framewall/internal/models"
	"github.com/framewall/framewall/internal/protocol"
)

// Level grades a notification for UI tone.
type Level string

const (
	LevelInfo    Level = "info"
	LevelSuccess Level = "success"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
)

// Notification is one user-visible event produced by the dispatcher.
type Notification struct {
	Level   Level
	Message string
	EventID string
	MediaID string
	Actor   models.Actor
}

// NotificationSink receives user-visible notifications. Implementations must
// not block; the dispatcher runs on the read path.
type NotificationSink interface {
	Notify(n Notification)
}

// TelemetrySink receives queue-visualization telemetry messages.
type TelemetrySink interface {
	Telemetry(msg protocol.Inbound)
}

// Dispatcher applies push messages for one connection's user type.
type Dispatcher struct {
	userType  models.UserType
	cache     *mediacache.Cache
	notify    NotificationSink // nil for photowall viewers
	telemetry TelemetrySink    // optional

	// onServerError, when set, receives categorized operation errors.
	onServerError func(cat protocol.ErrorCategory, message string)
}

// Option configures optional dispatcher collaborators.
type Option func(*Dispatcher)

// WithNotifications directs user-visible notifications to sink.
func WithNotifications(sink NotificationSink) Option {
	return func(d *Dispatcher) { d.notify = sink }
}

// WithTelemetry forwards queue telemetry messages to sink.
func WithTelemetry(sink TelemetrySink) Option {
	return func(d *Dispatcher) { d.telemetry = sink }
}

// WithServerErrorHandler receives categorized server error events.
func WithServerErrorHandler(fn func(cat protocol.ErrorCategory, message string)) Option {
	return func(d *Dispatcher) { d.onServerError = fn }
}

// New creates a dispatcher for the given user type backed by cache.
func New(userType models.UserType, cache *mediacache.Cache, opts ...Option) *Dispatcher {
	d := &Dispatcher{userType: userType, cache: cache}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Dispatch applies one inbound message. Callers must invoke it in wire
// order; the dispatcher itself never reorders or batches.
func (d *Dispatcher) Dispatch(msg protocol.Inbound) {
	metrics.MessagesDispatched.WithLabelValues(msg.MessageType()).Inc()

	switch v := msg.(type) {
	case protocol.MediaStatusUpdated:
		d.handleTransition(v)

	case protocol.AdminNewUpload:
		d.handleAdminNewUpload(v)

	case protocol.GuestUploadSummary:
		d.handleGuestUploadSummary(v)

	case protocol.MediaDeleted:
		d.cache.ApplyDelete(v.MediaID)

	case protocol.BatchOperation:
		d.handleBatch(v)

	case protocol.QueueUpdate, protocol.QueueStats, protocol.QueueAlert, protocol.PerformanceMetrics:
		if d.telemetry != nil {
			d.telemetry.Telemetry(msg)
		}

	case protocol.ServerError:
		d.handleServerError(v)

	default:
		logging.Debug().Str("type", msg.MessageType()).Msg("unhandled message type")
	}
}

// handleTransition applies the status change and notifies per user type.
func (d *Dispatcher) handleTransition(v protocol.MediaStatusUpdated) {
	d.cache.ApplyTransition(v.MediaID, v.PreviousStatus, v.NewStatus, v.MediaData, v.UpdatedBy, v.Timestamp)

	if d.notify == nil {
		return
	}

	switch d.userType {
	case models.UserTypeAdmin:
		// Admins see every transition, attributed to whoever made it.
		d.notify.Notify(Notification{
			Level:   transitionLevel(v.NewStatus),
			Message: v.UpdatedBy.Name + " moved " + displayName(v.MediaData, v.MediaID) + " to " + string(v.NewStatus),
			EventID: v.EventID,
			MediaID: v.MediaID,
			Actor:   v.UpdatedBy,
		})

	case models.UserTypeGuest:
		// Guests only learn about media entering or leaving the visible
		// set; transitions among administrative states stay silent.
		wasVisible := v.PreviousStatus.Visible()
		isVisible := v.NewStatus.Visible()
		switch {
		case !wasVisible && isVisible:
			d.notify.Notify(Notification{
				Level:   LevelSuccess,
				Message: "A new photo was added to the gallery",
				EventID: v.EventID,
				MediaID: v.MediaID,
			})
		case wasVisible && !isVisible:
			d.notify.Notify(Notification{
				Level:   LevelInfo,
				Message: "A photo was removed from the gallery",
				EventID: v.EventID,
				MediaID: v.MediaID,
			})
		}
	}
}

// handleAdminNewUpload records the sighting and alerts admins. The affected
// bucket and counts are invalidated so the next read refetches full detail.
func (d *Dispatcher) handleAdminNewUpload(v protocol.AdminNewUpload) {
	d.cache.ApplyNewUpload(v.MediaID, v.Status, v.MediaData, time.Now())
	d.cache.Invalidate(v.Status)

	if d.notify == nil || d.userType != models.UserTypeAdmin {
		return
	}

	level := LevelInfo
	msg := v.UploaderName + " uploaded new media"
	if v.UploaderType == "guest" && v.ApprovalRequired {
		// Guest uploads pending review are the urgent case for admins.
		level = LevelWarning
		msg = v.UploaderName + " uploaded media awaiting your approval"
	}
	d.notify.Notify(Notification{
		Level:   level,
		Message: msg,
		EventID: v.EventID,
		MediaID: v.MediaID,
	})
}

// handleGuestUploadSummary is the guest-facing digest of a finished batch.
func (d *Dispatcher) handleGuestUploadSummary(v protocol.GuestUploadSummary) {
	// Counts changed; visible buckets may lag until refetched.
	d.cache.Invalidate(models.StatusApproved, models.StatusAutoApproved)

	if d.notify == nil || d.userType != models.UserTypeGuest {
		return
	}

	msg := "Your photos were uploaded"
	if v.ApprovalRequired {
		msg = "Your photos were uploaded and are awaiting approval"
	}
	d.notify.Notify(Notification{
		Level:   LevelSuccess,
		Message: msg,
		EventID: v.EventID,
	})
}

// handleBatch invalidates every bucket: a bulk message carries no per-item
// detail, so no bucket can be assumed unaffected.
func (d *Dispatcher) handleBatch(v protocol.BatchOperation) {
	d.cache.Invalidate()

	if d.notify == nil || d.userType != models.UserTypeAdmin {
		return
	}
	d.notify.Notify(Notification{
		Level:   LevelInfo,
		Message: v.Actor.Name + " updated " + itemCount(v.Count),
		EventID: v.EventID,
		Actor:   v.Actor,
	})
}

// handleServerError surfaces a categorized, human-readable error. The error
// ends the current operation only; connection fatality for auth codes is
// decided upstream by the connection manager.
func (d *Dispatcher) handleServerError(v protocol.ServerError) {
	cat := protocol.Categorize(v.Code)
	msg := protocol.HumanMessage(v.Code, v.Message)

	if d.onServerError != nil {
		d.onServerError(cat, msg)
	}
	if d.notify != nil {
		d.notify.Notify(Notification{Level: LevelError, Message: msg})
	}
	logging.Warn().Str("code", v.Code).Str("category", string(cat)).Msg("server error event")
}

// transitionLevel picks the admin notification tone for a target status.
func transitionLevel(s models.MediaStatus) Level {
	switch s {
	case models.StatusApproved, models.StatusAutoApproved:
		return LevelSuccess
	case models.StatusRejected, models.StatusHidden:
		return LevelWarning
	default:
		return LevelInfo
	}
}

// displayName prefers the filename, falling back to the media ID.
func displayName(p models.MediaPayload, mediaID string) string {
	if p.Filename != "" {
		return p.Filename
	}
	return mediaID
}

func itemCount(n int) string {
	if n == 1 {
		return "1 item"
	}
	return strconv.Itoa(n) + " items"
}
