// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package mediacache

import (
	"time"

	"github.com/framewall/framewall/internal/models"
)

// ChangeEvent is the tagged union of cache mutations. Modeling mutations as
// values keeps the reconciliation logic testable without a live connection:
// a test feeds a sequence of events and asserts on the resulting snapshot.
type ChangeEvent interface {
	changeEvent()
}

// TransitionEvent moves one media item between status buckets.
type TransitionEvent struct {
	MediaID        string
	PreviousStatus models.MediaStatus
	NewStatus      models.MediaStatus
	Payload        models.MediaPayload
	Actor          models.Actor
	Timestamp      time.Time
}

// NewUploadEvent inserts a newly sighted media item into a bucket.
type NewUploadEvent struct {
	MediaID   string
	Status    models.MediaStatus
	Payload   models.MediaPayload
	Timestamp time.Time
}

// DeleteEvent removes a media item from whichever bucket holds it.
type DeleteEvent struct {
	MediaID string
}

// InvalidateEvent marks the named buckets stale. An empty Buckets slice
// marks every bucket, which is what bulk operations require since per-item
// detail is unavailable.
type InvalidateEvent struct {
	Buckets []models.MediaStatus
}

func (TransitionEvent) changeEvent() {}
func (NewUploadEvent) changeEvent()  {}
func (DeleteEvent) changeEvent()     {}
func (InvalidateEvent) changeEvent() {}
