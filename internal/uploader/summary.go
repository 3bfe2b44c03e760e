// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package uploader

import "time"

// Summary is the derived rollup of the upload queue. It is recomputed from
// the current items on every call and never mutated independently, so it
// cannot drift from the underlying state.
type Summary struct {
	Total      int `json:"total"`
	Queued     int `json:"queued"`
	Uploading  int `json:"uploading"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Paused     int `json:"paused"`

	// OverallProgress is the mean percentage across non-terminal items,
	// each item weighted equally regardless of file size. 100 when every
	// item is terminal and at least one completed.
	OverallProgress int `json:"overall_progress"`

	// AverageProcessingTime is the mean start-to-completion duration of
	// completed items.
	AverageProcessingTime time.Duration `json:"average_processing_time"`

	// Throughput is completed items per minute since the earliest start.
	Throughput float64 `json:"throughput"`
}

// Summary computes the aggregate view of the queue.
func (t *Tracker) Summary() Summary {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var s Summary
	var progressSum, progressCount int
	var processingTotal time.Duration
	var earliestStart time.Time

	for _, item := range t.items {
		s.Total++
		switch item.Status {
		case StatusQueued:
			s.Queued++
		case StatusUploading:
			s.Uploading++
		case StatusProcessing:
			s.Processing++
		case StatusCompleted:
			s.Completed++
		case StatusFailed:
			s.Failed++
		case StatusPaused:
			s.Paused++
		}

		if !item.Status.Terminal() {
			progressSum += item.Percentage
			progressCount++
		}
		if item.Status == StatusCompleted && !item.completedAt.IsZero() {
			processingTotal += item.completedAt.Sub(item.StartTime)
		}
		if earliestStart.IsZero() || item.StartTime.Before(earliestStart) {
			earliestStart = item.StartTime
		}
	}

	switch {
	case progressCount > 0:
		s.OverallProgress = progressSum / progressCount
	case s.Completed > 0:
		s.OverallProgress = 100
	}

	if s.Completed > 0 {
		s.AverageProcessingTime = processingTotal / time.Duration(s.Completed)
		if elapsed := time.Since(earliestStart); elapsed > 0 {
			s.Throughput = float64(s.Completed) / elapsed.Minutes()
		}
	}

	return s
}
