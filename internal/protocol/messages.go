// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package protocol defines the realtime wire protocol: one JSON envelope per
// frame carrying a message type and a typed payload. Inbound payloads are
// validated at the boundary so the dispatcher never sees a malformed message.
package protocol

import (
	"time"

	"github.com/goccy/go-json"

	"github.com/framewall/framewall/internal/models"
)

// Client-to-server message types.
const (
	TypeAuthenticate         = "authenticate"
	TypeSubscribeToEvent     = "subscribe_to_event"
	TypeUnsubscribeFromEvent = "unsubscribe_from_event"
)

// Server-to-client message types.
const (
	TypeAuthSuccess         = "auth_success"
	TypeAuthError           = "auth_error"
	TypeSubscriptionSuccess = "subscription_success"
	TypeSubscriptionError   = "subscription_error"
	TypeMediaStatusUpdated  = "media_status_updated"
	TypeAdminNewUpload      = "admin_new_upload_notification"
	TypeGuestUploadSummary  = "guest_upload_summary"
	TypeMediaDeleted        = "media_deleted"
	TypeQueueUpdate         = "queue_update"
	TypeQueueStats          = "queue_stats"
	TypeQueueAlert          = "queue_alert"
	TypePerformanceMetrics  = "performance_metrics"
	TypeBatchOperation      = "batch_operation"
	TypeError               = "error"
)

// Envelope is the outer frame for every message on the wire.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Inbound is implemented by every decoded server-to-client payload.
type Inbound interface {
	MessageType() string
}

// Authenticate is the first client frame after the socket opens. Exactly one
// of Token (admin) or ShareToken (guest/photowall) is set.
type Authenticate struct {
	Token      string          `json:"token,omitempty"`
	ShareToken string          `json:"shareToken,omitempty"`
	UserType   models.UserType `json:"userType"`
	EventID    string          `json:"eventId,omitempty"`
	GuestName  string          `json:"guestName,omitempty"`
}

// SubscribeToEvent asks the server to join the room for one event.
type SubscribeToEvent struct {
	EventID    string `json:"eventId"`
	ShareToken string `json:"shareToken,omitempty"`
}

// UnsubscribeFromEvent asks the server to leave the room for one event.
type UnsubscribeFromEvent struct {
	EventID string `json:"eventId"`
}

// AuthSuccess confirms the authenticate handshake.
type AuthSuccess struct {
	User struct {
		ID   string `json:"id" validate:"required"`
		Name string `json:"name"`
		Type string `json:"type" validate:"required"`
	} `json:"user" validate:"required"`
}

func (AuthSuccess) MessageType() string { return TypeAuthSuccess }

// AuthError rejects the authenticate handshake.
type AuthError struct {
	Message string `json:"message" validate:"required"`
	Code    string `json:"code,omitempty"`
}

func (AuthError) MessageType() string { return TypeAuthError }

// SubscriptionSuccess acks a subscribe request.
type SubscriptionSuccess struct {
	EventID string `json:"eventId" validate:"required"`
}

func (SubscriptionSuccess) MessageType() string { return TypeSubscriptionSuccess }

// SubscriptionError reports a failed subscribe request.
type SubscriptionError struct {
	EventID string `json:"eventId" validate:"required"`
	Message string `json:"message,omitempty"`
	Code    string `json:"code,omitempty"`
}

func (SubscriptionError) MessageType() string { return TypeSubscriptionError }

// MediaStatusUpdated reports a server-confirmed status transition for one
// media item in a subscribed room.
type MediaStatusUpdated struct {
	MediaID        string              `json:"mediaId" validate:"required"`
	EventID        string              `json:"eventId" validate:"required"`
	PreviousStatus models.MediaStatus  `json:"previousStatus" validate:"required"`
	NewStatus      models.MediaStatus  `json:"newStatus" validate:"required"`
	UpdatedBy      models.Actor        `json:"updatedBy"`
	Timestamp      time.Time           `json:"timestamp"`
	MediaData      models.MediaPayload `json:"mediaData,omitempty"`
}

func (MediaStatusUpdated) MessageType() string { return TypeMediaStatusUpdated }

// AdminNewUpload notifies admins about new uploads awaiting review.
type AdminNewUpload struct {
	EventID          string              `json:"eventId" validate:"required"`
	MediaID          string              `json:"mediaId" validate:"required"`
	Status           models.MediaStatus  `json:"status" validate:"required"`
	UploaderName     string              `json:"uploaderName"`
	UploaderType     string              `json:"uploaderType"` // guest, admin
	Count            int                 `json:"count"`
	ApprovalRequired bool                `json:"approvalRequired"`
	MediaData        models.MediaPayload `json:"mediaData,omitempty"`
}

func (AdminNewUpload) MessageType() string { return TypeAdminNewUpload }

// GuestUploadSummary is the guest-facing digest of a finished upload batch.
type GuestUploadSummary struct {
	EventID          string `json:"eventId" validate:"required"`
	UploaderName     string `json:"uploaderName"`
	Count            int    `json:"count" validate:"min=0"`
	ApprovalRequired bool   `json:"approvalRequired"`
}

func (GuestUploadSummary) MessageType() string { return TypeGuestUploadSummary }

// MediaDeleted reports that a media item was removed entirely.
type MediaDeleted struct {
	EventID string `json:"eventId" validate:"required"`
	MediaID string `json:"mediaId" validate:"required"`
}

func (MediaDeleted) MessageType() string { return TypeMediaDeleted }

// QueueUpdate reports a processing-stage change for one queue item.
type QueueUpdate struct {
	EventID    string `json:"eventId" validate:"required"`
	MediaID    string `json:"mediaId" validate:"required"`
	Stage      string `json:"stage" validate:"required"`
	Percentage int    `json:"percentage" validate:"min=0,max=100"`
	Message    string `json:"message,omitempty"`
}

func (QueueUpdate) MessageType() string { return TypeQueueUpdate }

// QueueStats is a server-side rollup of the processing queue.
type QueueStats struct {
	EventID    string  `json:"eventId" validate:"required"`
	Total      int     `json:"total" validate:"min=0"`
	Queued     int     `json:"queued" validate:"min=0"`
	Processing int     `json:"processing" validate:"min=0"`
	Completed  int     `json:"completed" validate:"min=0"`
	Failed     int     `json:"failed" validate:"min=0"`
	Throughput float64 `json:"throughput"`
}

func (QueueStats) MessageType() string { return TypeQueueStats }

// QueueAlert flags a queue condition that needs operator attention.
type QueueAlert struct {
	EventID  string `json:"eventId" validate:"required"`
	Severity string `json:"severity" validate:"required,oneof=info warning critical"`
	Message  string `json:"message" validate:"required"`
}

func (QueueAlert) MessageType() string { return TypeQueueAlert }

// PerformanceMetrics carries server-side timing telemetry.
type PerformanceMetrics struct {
	EventID               string  `json:"eventId" validate:"required"`
	AverageProcessingTime float64 `json:"averageProcessingTime"` // seconds
	QueueDepth            int     `json:"queueDepth" validate:"min=0"`
}

func (PerformanceMetrics) MessageType() string { return TypePerformanceMetrics }

// BatchOperation reports that N items changed atomically on the server.
// Per-item detail is not included, so consumers must treat every status
// bucket as potentially affected.
type BatchOperation struct {
	EventID   string             `json:"eventId" validate:"required"`
	Operation string             `json:"operation" validate:"required"`
	Count     int                `json:"count" validate:"min=1"`
	NewStatus models.MediaStatus `json:"newStatus,omitempty"`
	Actor     models.Actor       `json:"actor"`
}

func (BatchOperation) MessageType() string { return TypeBatchOperation }

// ServerError is a generic operation-scoped error from the server.
type ServerError struct {
	Message string `json:"message" validate:"required"`
	Code    string `json:"code,omitempty"`
}

func (ServerError) MessageType() string { return TypeError }

// Encode wraps a payload in an envelope and marshals it for the wire.
func Encode(msgType string, payload interface{}) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Type: msgType, Payload: raw})
}
