// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package mediacache maintains the client-held view of media items grouped by
// status bucket, reconciled against server-confirmed push events that may
// arrive out of order or be delivered twice.
//
// Invariants:
//   - A mediaId occupies at most one bucket at a time.
//   - Every bucket's count equals its list length.
//   - Lists are ordered newest-first.
package mediacache

import (
	"sync"
	"time"

	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/metrics"
	"github.com/framewall/framewall/internal/models"
)

// Cache is the single source of truth for bucketed media state within one
// client process. It is safe for concurrent use.
type Cache struct {
	mu sync.RWMutex

	// buckets holds the per-status ordered record lists, newest first.
	buckets map[models.MediaStatus][]models.MediaStatusRecord

	// index maps a mediaId to the bucket currently holding it. This is what
	// enforces single-bucket membership on every mutation path.
	index map[string]models.MediaStatus

	// stale marks buckets whose contents can no longer be trusted; readers
	// fall through to the REST collaborator until the bucket is replaced.
	stale map[models.MediaStatus]bool

	// refreshedAt records when each bucket was last replaced from a fetch.
	refreshedAt map[models.MediaStatus]time.Time

	// stalenessWindow bounds how long a refreshed bucket stays trusted.
	stalenessWindow time.Duration
}

// New creates an empty cache. stalenessWindow <= 0 disables time-based
// staleness (buckets only go stale via Invalidate).
func New(stalenessWindow time.Duration) *Cache {
	c := &Cache{
		buckets:         make(map[models.MediaStatus][]models.MediaStatusRecord, len(models.AllStatuses)),
		index:           make(map[string]models.MediaStatus),
		stale:           make(map[models.MediaStatus]bool, len(models.AllStatuses)),
		refreshedAt:     make(map[models.MediaStatus]time.Time, len(models.AllStatuses)),
		stalenessWindow: stalenessWindow,
	}
	for _, s := range models.AllStatuses {
		c.buckets[s] = nil
	}
	return c
}

// Apply reduces one change event into the cache.
func (c *Cache) Apply(ev ChangeEvent) {
	switch e := ev.(type) {
	case TransitionEvent:
		c.applyTransition(e)
	case NewUploadEvent:
		c.applyNewUpload(e)
	case DeleteEvent:
		c.applyDelete(e)
	case InvalidateEvent:
		c.applyInvalidate(e)
	}
}

// ApplyTransition atomically moves a media item from one bucket to another.
// A missing source record is tolerated (the client may have joined the room
// mid-stream) and falls through to an insert-only path. Transitions older
// than the record's last applied timestamp are dropped.
func (c *Cache) ApplyTransition(mediaID string, previous, next models.MediaStatus, payload models.MediaPayload, actor models.Actor, ts time.Time) {
	c.applyTransition(TransitionEvent{
		MediaID:        mediaID,
		PreviousStatus: previous,
		NewStatus:      next,
		Payload:        payload,
		Actor:          actor,
		Timestamp:      ts,
	})
}

func (c *Cache) applyTransition(e TransitionEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	current, cached := c.index[e.MediaID]
	if cached {
		rec := c.find(current, e.MediaID)
		if rec != nil && e.Timestamp.Before(rec.LastTransitionTimestamp) {
			// Out-of-order delivery: a newer transition has already been
			// applied for this mediaId. Last-write-wins by server timestamp.
			metrics.TransitionsDropped.WithLabelValues("stale_timestamp").Inc()
			logging.Debug().
				Str("media_id", e.MediaID).
				Str("new_status", string(e.NewStatus)).
				Time("dropped_ts", e.Timestamp).
				Time("applied_ts", rec.LastTransitionTimestamp).
				Msg("dropped stale status transition")
			return
		}
		c.removeLocked(current, e.MediaID)
	} else if e.PreviousStatus != "" {
		// The expected source bucket never held this item. Not an error:
		// insert-only path keeps the cache converging toward server state.
		logging.Debug().
			Str("media_id", e.MediaID).
			Str("previous_status", string(e.PreviousStatus)).
			Msg("transition source not cached, inserting into target only")
	}

	rec := models.MediaStatusRecord{
		MediaID:                 e.MediaID,
		CurrentStatus:           e.NewStatus,
		Payload:                 e.Payload,
		LastTransitionTimestamp: e.Timestamp,
		TransitionActor:         e.Actor,
	}
	c.insertHeadLocked(e.NewStatus, rec)
	metrics.TransitionsApplied.Inc()
}

// ApplyNewUpload inserts a first-sighted media item into the given bucket.
// Duplicate delivery of the same mediaId is a no-op.
func (c *Cache) ApplyNewUpload(mediaID string, status models.MediaStatus, payload models.MediaPayload, ts time.Time) {
	c.applyNewUpload(NewUploadEvent{MediaID: mediaID, Status: status, Payload: payload, Timestamp: ts})
}

func (c *Cache) applyNewUpload(e NewUploadEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.index[e.MediaID]; exists {
		metrics.TransitionsDropped.WithLabelValues("duplicate").Inc()
		return
	}
	c.insertHeadLocked(e.Status, models.MediaStatusRecord{
		MediaID:                 e.MediaID,
		CurrentStatus:           e.Status,
		Payload:                 e.Payload,
		LastTransitionTimestamp: e.Timestamp,
	})
}

// ApplyDelete removes a media item from whichever bucket holds it.
func (c *Cache) ApplyDelete(mediaID string) {
	c.applyDelete(DeleteEvent{MediaID: mediaID})
}

func (c *Cache) applyDelete(e DeleteEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	status, ok := c.index[e.MediaID]
	if !ok {
		return
	}
	c.removeLocked(status, e.MediaID)
}

// Invalidate marks the named buckets stale. With no arguments every bucket
// is marked, as required after bulk operations.
func (c *Cache) Invalidate(buckets ...models.MediaStatus) {
	c.applyInvalidate(InvalidateEvent{Buckets: buckets})
}

func (c *Cache) applyInvalidate(e InvalidateEvent) {
	c.mu.Lock()
	defer c.mu.Unlock()

	targets := e.Buckets
	if len(targets) == 0 {
		targets = models.AllStatuses
	}
	for _, b := range targets {
		c.stale[b] = true
	}
	metrics.CacheInvalidations.Inc()
}

// Stale reports whether a bucket must be re-fetched before its contents are
// trusted, either because it was invalidated or its staleness window lapsed.
func (c *Cache) Stale(bucket models.MediaStatus) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.stale[bucket] {
		return true
	}
	if c.stalenessWindow <= 0 {
		return false
	}
	last, ok := c.refreshedAt[bucket]
	if !ok {
		// Never refreshed: optimistic contents are trusted until invalidated.
		return false
	}
	return time.Since(last) > c.stalenessWindow
}

// Replace swaps in a freshly fetched bucket, clearing its stale flag. Items
// in the new list are evicted from any other bucket they were cached under.
func (c *Cache) Replace(bucket models.MediaStatus, records []models.MediaStatusRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Drop the old bucket contents from the index.
	for _, rec := range c.buckets[bucket] {
		delete(c.index, rec.MediaID)
	}
	c.buckets[bucket] = nil

	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if prev, ok := c.index[rec.MediaID]; ok {
			c.removeLocked(prev, rec.MediaID)
		}
		rec.CurrentStatus = bucket
		c.insertHeadLocked(bucket, rec)
	}

	c.stale[bucket] = false
	c.refreshedAt[bucket] = time.Now()
}

// Bucket returns a copy of one bucket's ordered records.
func (c *Cache) Bucket(bucket models.MediaStatus) []models.MediaStatusRecord {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]models.MediaStatusRecord, len(c.buckets[bucket]))
	copy(out, c.buckets[bucket])
	return out
}

// Counts returns the current per-bucket item counts.
func (c *Cache) Counts() models.MediaCounts {
	c.mu.RLock()
	defer c.mu.RUnlock()

	counts := make(models.MediaCounts, len(c.buckets))
	for status, list := range c.buckets {
		counts[status] = len(list)
	}
	return counts
}

// Snapshot is an immutable copy of the whole cache for readers.
type Snapshot struct {
	Buckets map[models.MediaStatus][]models.MediaStatusRecord
	Counts  models.MediaCounts
	TakenAt time.Time
}

// Snapshot copies every bucket and its counts under one read lock so the
// result is internally consistent.
func (c *Cache) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	snap := Snapshot{
		Buckets: make(map[models.MediaStatus][]models.MediaStatusRecord, len(c.buckets)),
		Counts:  make(models.MediaCounts, len(c.buckets)),
		TakenAt: time.Now(),
	}
	for status, list := range c.buckets {
		cp := make([]models.MediaStatusRecord, len(list))
		copy(cp, list)
		snap.Buckets[status] = cp
		snap.Counts[status] = len(list)
	}
	return snap
}

// Status returns the bucket currently holding a mediaId, if any.
func (c *Cache) Status(mediaID string) (models.MediaStatus, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s, ok := c.index[mediaID]
	return s, ok
}

// Clear empties every bucket and staleness flag.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, s := range models.AllStatuses {
		c.buckets[s] = nil
		c.stale[s] = false
		delete(c.refreshedAt, s)
	}
	c.index = make(map[string]models.MediaStatus)
}

// find returns a pointer to the record for mediaID inside a bucket, or nil.
// Callers must hold c.mu.
func (c *Cache) find(bucket models.MediaStatus, mediaID string) *models.MediaStatusRecord {
	for i := range c.buckets[bucket] {
		if c.buckets[bucket][i].MediaID == mediaID {
			return &c.buckets[bucket][i]
		}
	}
	return nil
}

// removeLocked deletes mediaID from a bucket and the index. Callers must
// hold c.mu.
func (c *Cache) removeLocked(bucket models.MediaStatus, mediaID string) {
	list := c.buckets[bucket]
	for i := range list {
		if list[i].MediaID == mediaID {
			c.buckets[bucket] = append(list[:i], list[i+1:]...)
			break
		}
	}
	delete(c.index, mediaID)
}

// insertHeadLocked prepends a record to a bucket and indexes it. Callers
// must hold c.mu.
func (c *Cache) insertHeadLocked(bucket models.MediaStatus, rec models.MediaStatusRecord) {
	c.buckets[bucket] = append([]models.MediaStatusRecord{rec}, c.buckets[bucket]...)
	c.index[rec.MediaID] = bucket
}
