// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package realtime

import (
	"sync"
	"time"
)

// attemptWindow is a rolling window over failed connect attempts. Once the
// threshold is reached within the window, further attempts are refused until
// the oldest failure ages out.
//
// Complexity is O(threshold) per call; the window holds at most threshold
// entries because callers stop attempting once Limited reports true.
type attemptWindow struct {
	mu        sync.Mutex
	failures  []time.Time
	threshold int
	window    time.Duration
	now       func() time.Time // injectable clock for tests
}

func newAttemptWindow(threshold int, window time.Duration) *attemptWindow {
	return &attemptWindow{
		threshold: threshold,
		window:    window,
		now:       time.Now,
	}
}

// RecordFailure adds a failed attempt at the current time.
func (w *attemptWindow) RecordFailure() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()
	w.failures = append(w.failures, w.now())
}

// Limited reports whether attempts are currently refused, and if so, how
// long until the cooldown allows another.
func (w *attemptWindow) Limited() (bool, time.Duration) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.advance()

	if w.threshold <= 0 || len(w.failures) < w.threshold {
		return false, 0
	}
	remaining := w.window - w.now().Sub(w.failures[0])
	if remaining < 0 {
		remaining = 0
	}
	return true, remaining
}

// Reset clears the window. Called on successful authentication.
func (w *attemptWindow) Reset() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.failures = w.failures[:0]
}

// advance drops failures older than the window. Must be called with the
// lock held.
func (w *attemptWindow) advance() {
	cutoff := w.now().Add(-w.window)
	i := 0
	for i < len(w.failures) && w.failures[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		w.failures = append(w.failures[:0], w.failures[i:]...)
	}
}
