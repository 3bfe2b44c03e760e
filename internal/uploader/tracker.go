// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package uploader tracks each media file through its multi-stage upload
// pipeline, from local file selection to server-confirmed completion.
//
// Per-item state machine:
//
//	queued → uploading → processing → variants_creating → completed
//	                 └─────────────┴────────────────────→ failed
//	uploading/processing ⇄ paused  (user-initiated only)
//	failed → queued                (on retry)
package uploader

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/metrics"
)

// Stage is the processing stage of an upload item. Stages are coarser than
// status: a stage identifies which 0-100 progress range is being reported.
type Stage string

const (
	StageUploading        Stage = "uploading"
	StagePreviewCreating  Stage = "preview_creating"
	StageProcessing       Stage = "processing"
	StageVariantsCreating Stage = "variants_creating"
	StageCompleted        Stage = "completed"
)

// Status is the queue-level state of an upload item.
type Status string

const (
	StatusQueued     Status = "queued"
	StatusUploading  Status = "uploading"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusPaused     Status = "paused"
)

// Terminal reports whether the status is an end state.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Domain errors for invalid state machine operations.
var (
	ErrUnknownItem     = errors.New("unknown upload item")
	ErrNotFailed       = errors.New("item is not in failed state")
	ErrNotPausable     = errors.New("item cannot be paused in its current state")
	ErrNotPaused       = errors.New("item is not paused")
	ErrIncompleteItem  = errors.New("item progress is below 100")
	ErrItemTerminal    = errors.New("item is already in a terminal state")
	ErrItemNotTerminal = errors.New("item is not in a terminal state")
)

// Item is one media file moving through the upload pipeline.
type Item struct {
	// MediaID is client-generated until the server assigns the real one;
	// PromoteID swaps the placeholder for the server ID.
	MediaID    string    `json:"media_id"`
	Filename   string    `json:"filename"`
	Stage      Stage     `json:"stage"`
	Status     Status    `json:"status"`
	Percentage int       `json:"percentage"`
	StartTime  time.Time `json:"start_time"`
	LastUpdate time.Time `json:"last_update"`
	ErrorMsg   string    `json:"error_message,omitempty"`
	RetryCount int       `json:"retry_count"`

	// EstimatedTimeRemaining is derived from the observed progress rate of
	// the current stage; zero when unknown.
	EstimatedTimeRemaining time.Duration `json:"estimated_time_remaining,omitempty"`

	// resumeStatus remembers which active status a paused item returns to.
	resumeStatus Status
	// stageStartedAt anchors the ETA computation per stage.
	stageStartedAt time.Time
	// completedAt is set on the completed transition for timing rollups.
	completedAt time.Time
}

// FileInfo describes a locally selected file before any network activity.
type FileInfo struct {
	Name        string
	Size        int64
	ContentType string
}

// FileError is a per-file validation rejection.
type FileError struct {
	Filename string
	Reason   string
}

func (e FileError) Error() string {
	return fmt.Sprintf("%s: %s", e.Filename, e.Reason)
}

// Limits carries the configured validation bounds.
type Limits struct {
	MaxFileSize  int64
	AllowedTypes []string // MIME prefixes: "image/", "video/"
}

// Tracker owns every queue item for the current session. Safe for concurrent
// use.
type Tracker struct {
	mu     sync.RWMutex
	items  map[string]*Item
	order  []string // insertion order for stable listings
	limits Limits
}

// NewTracker creates an empty tracker with the given validation limits.
func NewTracker(limits Limits) *Tracker {
	return &Tracker{
		items:  make(map[string]*Item),
		limits: limits,
	}
}

// StartUpload validates the selected files and creates one queued item per
// valid file. Invalid files are rejected individually; valid files proceed.
// The returned IDs are placeholder media IDs in input order.
func (t *Tracker) StartUpload(files []FileInfo) (accepted []string, rejected []FileError) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	for _, f := range files {
		if reason := t.validate(f); reason != "" {
			rejected = append(rejected, FileError{Filename: f.Name, Reason: reason})
			continue
		}

		id := uuid.New().String()
		t.items[id] = &Item{
			MediaID:    id,
			Filename:   f.Name,
			Stage:      StageUploading,
			Status:     StatusQueued,
			StartTime:  now,
			LastUpdate: now,
		}
		t.order = append(t.order, id)
		accepted = append(accepted, id)
	}

	t.syncGaugesLocked()
	return accepted, rejected
}

// validate returns a human-readable rejection reason, or "" when valid.
func (t *Tracker) validate(f FileInfo) string {
	typeOK := false
	for _, prefix := range t.limits.AllowedTypes {
		if strings.HasPrefix(f.ContentType, prefix) {
			typeOK = true
			break
		}
	}
	if !typeOK {
		return fmt.Sprintf("unsupported file type %q", f.ContentType)
	}
	if f.Size > t.limits.MaxFileSize {
		return fmt.Sprintf("file exceeds the %d MB limit", t.limits.MaxFileSize>>20)
	}
	return ""
}

// BeginUpload moves a queued item to uploading once its network request
// starts.
func (t *Tracker) BeginUpload(mediaID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[mediaID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, mediaID)
	}
	if item.Status != StatusQueued {
		return fmt.Errorf("cannot begin upload from status %q", item.Status)
	}
	item.Status = StatusUploading
	item.Stage = StageUploading
	item.stageStartedAt = time.Now()
	item.LastUpdate = item.stageStartedAt
	t.syncGaugesLocked()
	return nil
}

// UpdateProgress records stage progress for an item. Within a stage the
// percentage is monotonic: attempts to move it backward are ignored. A stage
// change resets the baseline, so each stage reports its own 0-100 range.
func (t *Tracker) UpdateProgress(mediaID string, stage Stage, percentage int, message string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[mediaID]
	if !ok {
		logging.Debug().Str("media_id", mediaID).Msg("progress for unknown item ignored")
		return
	}
	if item.Status.Terminal() || item.Status == StatusPaused {
		return
	}

	if percentage < 0 {
		percentage = 0
	}
	if percentage > 100 {
		percentage = 100
	}

	now := time.Now()
	if stage != item.Stage {
		item.Stage = stage
		item.Percentage = percentage
		item.stageStartedAt = now
	} else {
		if percentage < item.Percentage {
			// Regressions within a stage are dropped to keep progress
			// monotonic for the UI.
			return
		}
		item.Percentage = percentage
	}

	switch stage {
	case StageUploading:
		item.Status = StatusUploading
	case StagePreviewCreating, StageProcessing, StageVariantsCreating:
		item.Status = StatusProcessing
	}

	item.LastUpdate = now
	item.EstimatedTimeRemaining = estimateRemaining(item, now)
	t.syncGaugesLocked()
}

// estimateRemaining derives an ETA from the current stage's progress rate.
func estimateRemaining(item *Item, now time.Time) time.Duration {
	if item.Percentage <= 0 || item.stageStartedAt.IsZero() {
		return 0
	}
	elapsed := now.Sub(item.stageStartedAt)
	if elapsed <= 0 {
		return 0
	}
	perPoint := elapsed / time.Duration(item.Percentage)
	return perPoint * time.Duration(100-item.Percentage)
}

// MarkCompleted moves an item to completed. Calling this with progress below
// 100 is a programmer error: it is rejected and logged loudly rather than
// silently coercing the percentage.
func (t *Tracker) MarkCompleted(mediaID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[mediaID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, mediaID)
	}
	if item.Percentage < 100 {
		logging.Error().
			Str("media_id", mediaID).
			Int("percentage", item.Percentage).
			Str("stage", string(item.Stage)).
			Msg("MarkCompleted called below 100% - state inconsistency")
		return fmt.Errorf("%w: %s at %d%%", ErrIncompleteItem, mediaID, item.Percentage)
	}

	item.Status = StatusCompleted
	item.Stage = StageCompleted
	item.completedAt = time.Now()
	item.LastUpdate = item.completedAt
	item.EstimatedTimeRemaining = 0
	t.syncGaugesLocked()
	return nil
}

// MarkFailed moves an active item to failed with the given error message. A
// failed item always carries a non-empty message. Terminal items are immune:
// a late failure event must not regress a completed item, and failed is left
// for Retry or Clear to resolve.
func (t *Tracker) MarkFailed(mediaID string, errMsg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[mediaID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, mediaID)
	}
	if item.Status.Terminal() {
		return fmt.Errorf("%w: %s is %q", ErrItemTerminal, mediaID, item.Status)
	}
	if errMsg == "" {
		errMsg = "upload failed"
	}
	item.Status = StatusFailed
	item.ErrorMsg = errMsg
	item.LastUpdate = time.Now()
	item.EstimatedTimeRemaining = 0
	metrics.UploadFailures.Inc()
	t.syncGaugesLocked()
	return nil
}

// Retry resets a failed item back to queued and increments its retry count.
func (t *Tracker) Retry(mediaID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[mediaID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, mediaID)
	}
	if item.Status != StatusFailed {
		return fmt.Errorf("%w: %s is %q", ErrNotFailed, mediaID, item.Status)
	}

	item.Status = StatusQueued
	item.Stage = StageUploading
	item.Percentage = 0
	item.ErrorMsg = ""
	item.RetryCount++
	item.LastUpdate = time.Now()
	t.syncGaugesLocked()
	return nil
}

// Pause suspends an actively uploading or processing item.
func (t *Tracker) Pause(mediaID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[mediaID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, mediaID)
	}
	if item.Status != StatusUploading && item.Status != StatusProcessing {
		return fmt.Errorf("%w: %s is %q", ErrNotPausable, mediaID, item.Status)
	}

	item.resumeStatus = item.Status
	item.Status = StatusPaused
	item.LastUpdate = time.Now()
	t.syncGaugesLocked()
	return nil
}

// Resume returns a paused item to the active status it was paused from.
func (t *Tracker) Resume(mediaID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[mediaID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, mediaID)
	}
	if item.Status != StatusPaused {
		return fmt.Errorf("%w: %s is %q", ErrNotPaused, mediaID, item.Status)
	}

	item.Status = item.resumeStatus
	if item.Status == "" {
		item.Status = StatusQueued
	}
	item.resumeStatus = ""
	item.LastUpdate = time.Now()
	t.syncGaugesLocked()
	return nil
}

// PromoteID replaces a client-generated placeholder ID with the
// server-assigned media ID once it is known.
func (t *Tracker) PromoteID(placeholderID, serverID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[placeholderID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, placeholderID)
	}
	delete(t.items, placeholderID)
	item.MediaID = serverID
	t.items[serverID] = item
	for i, id := range t.order {
		if id == placeholderID {
			t.order[i] = serverID
			break
		}
	}
	return nil
}

// Clear removes one terminal item at the user's request. Active items cannot
// be cleared.
func (t *Tracker) Clear(mediaID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	item, ok := t.items[mediaID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownItem, mediaID)
	}
	if !item.Status.Terminal() {
		return fmt.Errorf("%w: %s is %q", ErrItemNotTerminal, mediaID, item.Status)
	}
	t.removeLocked(mediaID)
	t.syncGaugesLocked()
	return nil
}

// ClearFinished removes all terminal items, but only once no active uploads
// remain in the batch, so an in-progress batch keeps a coherent summary.
func (t *Tracker) ClearFinished() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, item := range t.items {
		if !item.Status.Terminal() {
			return 0
		}
	}

	var removed int
	for _, id := range append([]string(nil), t.order...) {
		if t.items[id].Status.Terminal() {
			t.removeLocked(id)
			removed++
		}
	}
	t.syncGaugesLocked()
	return removed
}

// removeLocked deletes an item from the map and order slice. Callers must
// hold t.mu.
func (t *Tracker) removeLocked(mediaID string) {
	delete(t.items, mediaID)
	for i, id := range t.order {
		if id == mediaID {
			t.order = append(t.order[:i], t.order[i+1:]...)
			break
		}
	}
}

// Item returns a copy of one item.
func (t *Tracker) Item(mediaID string) (Item, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	item, ok := t.items[mediaID]
	if !ok {
		return Item{}, false
	}
	return *item, true
}

// Items returns copies of all items in insertion order.
func (t *Tracker) Items() []Item {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]Item, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, *t.items[id])
	}
	return out
}

// syncGaugesLocked refreshes the per-status Prometheus gauges. Callers must
// hold t.mu.
func (t *Tracker) syncGaugesLocked() {
	counts := map[Status]int{}
	for _, item := range t.items {
		counts[item.Status]++
	}
	for _, s := range []Status{StatusQueued, StatusUploading, StatusProcessing, StatusCompleted, StatusFailed, StatusPaused} {
		metrics.UploadItems.WithLabelValues(string(s)).Set(float64(counts[s]))
	}
}
