// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package uploader

import (
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/framewall/framewall/internal/logging"
)

func init() {
	logging.SetLogger(logging.NewTestLogger(io.Discard))
}

func testLimits() Limits {
	return Limits{
		MaxFileSize:  100 << 20,
		AllowedTypes: []string{"image/", "video/"},
	}
}

func TestStartUploadValidation(t *testing.T) {
	tests := []struct {
		name       string
		files      []FileInfo
		wantOK     int
		wantReject int
	}{
		{
			name: "all valid",
			files: []FileInfo{
				{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
				{Name: "b.mp4", Size: 50 << 20, ContentType: "video/mp4"},
			},
			wantOK: 2,
		},
		{
			name: "oversized rejected, valid proceeds",
			files: []FileInfo{
				{Name: "big.mp4", Size: 200 << 20, ContentType: "video/mp4"},
				{Name: "ok.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
			},
			wantOK:     1,
			wantReject: 1,
		},
		{
			name: "wrong type rejected",
			files: []FileInfo{
				{Name: "doc.pdf", Size: 1 << 20, ContentType: "application/pdf"},
			},
			wantReject: 1,
		},
		{
			name: "mixed batch keeps valid files",
			files: []FileInfo{
				{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
				{Name: "doc.pdf", Size: 1 << 20, ContentType: "application/pdf"},
				{Name: "big.mp4", Size: 500 << 20, ContentType: "video/mp4"},
				{Name: "c.png", Size: 2 << 20, ContentType: "image/png"},
			},
			wantOK:     2,
			wantReject: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tr := NewTracker(testLimits())
			accepted, rejected := tr.StartUpload(tt.files)
			if len(accepted) != tt.wantOK {
				t.Errorf("accepted = %d, want %d", len(accepted), tt.wantOK)
			}
			if len(rejected) != tt.wantReject {
				t.Errorf("rejected = %d, want %d", len(rejected), tt.wantReject)
			}
			for _, fe := range rejected {
				if fe.Reason == "" {
					t.Errorf("rejection for %s has no reason", fe.Filename)
				}
			}
			if got := len(tr.Items()); got != tt.wantOK {
				t.Errorf("tracked items = %d, want %d", got, tt.wantOK)
			}
		})
	}
}

func TestProgressMonotonicWithinStage(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"}})
	id := ids[0]

	if err := tr.BeginUpload(id); err != nil {
		t.Fatalf("BeginUpload() error = %v", err)
	}

	tr.UpdateProgress(id, StageUploading, 40, "")
	tr.UpdateProgress(id, StageUploading, 70, "")
	tr.UpdateProgress(id, StageUploading, 55, "") // regression, dropped

	item, _ := tr.Item(id)
	if item.Percentage != 70 {
		t.Errorf("Percentage = %d, want 70 (regression must be ignored)", item.Percentage)
	}
}

func TestStageChangeResetsBaseline(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"}})
	id := ids[0]

	_ = tr.BeginUpload(id)
	tr.UpdateProgress(id, StageUploading, 100, "")
	// New stage restarts at a lower raw percentage; that is not a regression.
	tr.UpdateProgress(id, StageProcessing, 10, "")

	item, _ := tr.Item(id)
	if item.Stage != StageProcessing {
		t.Errorf("Stage = %s, want processing", item.Stage)
	}
	if item.Percentage != 10 {
		t.Errorf("Percentage = %d, want 10 after stage change", item.Percentage)
	}
	if item.Status != StatusProcessing {
		t.Errorf("Status = %s, want processing", item.Status)
	}
}

func TestMarkCompletedRequiresFullProgress(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"}})
	id := ids[0]

	_ = tr.BeginUpload(id)
	tr.UpdateProgress(id, StageVariantsCreating, 80, "")

	if err := tr.MarkCompleted(id); !errors.Is(err, ErrIncompleteItem) {
		t.Fatalf("MarkCompleted() error = %v, want ErrIncompleteItem", err)
	}

	tr.UpdateProgress(id, StageVariantsCreating, 100, "")
	if err := tr.MarkCompleted(id); err != nil {
		t.Fatalf("MarkCompleted() error = %v", err)
	}
	item, _ := tr.Item(id)
	if item.Status != StatusCompleted || item.Stage != StageCompleted {
		t.Errorf("item = %s/%s, want completed/completed", item.Status, item.Stage)
	}
}

func TestFailedItemCarriesMessage(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"}})
	id := ids[0]

	if err := tr.MarkFailed(id, ""); err != nil {
		t.Fatalf("MarkFailed() error = %v", err)
	}
	item, _ := tr.Item(id)
	if item.ErrorMsg == "" {
		t.Error("failed item has empty error message")
	}
}

func TestMarkFailedLeavesTerminalItemsAlone(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{
		{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
		{Name: "b.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
	})

	_ = tr.BeginUpload(ids[0])
	tr.UpdateProgress(ids[0], StageVariantsCreating, 100, "")
	_ = tr.MarkCompleted(ids[0])

	// A failure event arriving after completion must not regress the item.
	if err := tr.MarkFailed(ids[0], "late server error"); !errors.Is(err, ErrItemTerminal) {
		t.Fatalf("MarkFailed() on completed error = %v, want ErrItemTerminal", err)
	}
	item, _ := tr.Item(ids[0])
	if item.Status != StatusCompleted || item.ErrorMsg != "" {
		t.Errorf("item = %s/%q after late failure, want completed with no error", item.Status, item.ErrorMsg)
	}

	// Re-failing an already failed item is likewise rejected.
	_ = tr.MarkFailed(ids[1], "first error")
	if err := tr.MarkFailed(ids[1], "second error"); !errors.Is(err, ErrItemTerminal) {
		t.Fatalf("double MarkFailed() error = %v, want ErrItemTerminal", err)
	}
	item, _ = tr.Item(ids[1])
	if item.ErrorMsg != "first error" {
		t.Errorf("ErrorMsg = %q, want the original message kept", item.ErrorMsg)
	}
}

func TestRetryResetsFailedItem(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"}})
	id := ids[0]

	_ = tr.BeginUpload(id)
	tr.UpdateProgress(id, StageUploading, 60, "")
	_ = tr.MarkFailed(id, "network error")

	if err := tr.Retry(id); err != nil {
		t.Fatalf("Retry() error = %v", err)
	}
	item, _ := tr.Item(id)
	if item.Status != StatusQueued || item.Percentage != 0 || item.ErrorMsg != "" {
		t.Errorf("after retry: %s/%d/%q, want queued/0/empty", item.Status, item.Percentage, item.ErrorMsg)
	}
	if item.RetryCount != 1 {
		t.Errorf("RetryCount = %d, want 1", item.RetryCount)
	}

	// Retrying a non-failed item is rejected.
	if err := tr.Retry(id); !errors.Is(err, ErrNotFailed) {
		t.Errorf("Retry() on queued item error = %v, want ErrNotFailed", err)
	}
}

func TestPauseResumeRoundTrip(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"}})
	id := ids[0]

	// Queued items are not pausable.
	if err := tr.Pause(id); !errors.Is(err, ErrNotPausable) {
		t.Fatalf("Pause() on queued error = %v, want ErrNotPausable", err)
	}

	_ = tr.BeginUpload(id)
	tr.UpdateProgress(id, StageProcessing, 30, "")
	if err := tr.Pause(id); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}

	// Progress while paused is ignored.
	tr.UpdateProgress(id, StageProcessing, 90, "")
	item, _ := tr.Item(id)
	if item.Percentage != 30 {
		t.Errorf("Percentage = %d while paused, want 30", item.Percentage)
	}

	if err := tr.Resume(id); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	item, _ = tr.Item(id)
	if item.Status != StatusProcessing {
		t.Errorf("Status = %s after resume, want processing", item.Status)
	}

	if err := tr.Resume(id); !errors.Is(err, ErrNotPaused) {
		t.Errorf("double Resume() error = %v, want ErrNotPaused", err)
	}
}

func TestPromoteID(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"}})

	if err := tr.PromoteID(ids[0], "srv-123"); err != nil {
		t.Fatalf("PromoteID() error = %v", err)
	}
	if _, ok := tr.Item(ids[0]); ok {
		t.Error("placeholder ID still resolvable after promotion")
	}
	item, ok := tr.Item("srv-123")
	if !ok || item.MediaID != "srv-123" {
		t.Errorf("Item(srv-123) = %v,%v, want promoted item", item.MediaID, ok)
	}
}

func TestClearFinishedGuardedByActiveItems(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{
		{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
		{Name: "b.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
	})

	_ = tr.BeginUpload(ids[0])
	tr.UpdateProgress(ids[0], StageUploading, 100, "")
	_ = tr.MarkCompleted(ids[0])

	// ids[1] is still queued; history must survive.
	if removed := tr.ClearFinished(); removed != 0 {
		t.Fatalf("ClearFinished() = %d with active items, want 0", removed)
	}
	if got := len(tr.Items()); got != 2 {
		t.Fatalf("items = %d, want 2", got)
	}

	_ = tr.MarkFailed(ids[1], "cancelled")
	if removed := tr.ClearFinished(); removed != 2 {
		t.Errorf("ClearFinished() = %d, want 2", removed)
	}
	if got := len(tr.Items()); got != 0 {
		t.Errorf("items = %d after clear, want 0", got)
	}
}

func TestClearSingleItemRequiresTerminal(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"}})

	if err := tr.Clear(ids[0]); !errors.Is(err, ErrItemNotTerminal) {
		t.Fatalf("Clear() on queued error = %v, want ErrItemNotTerminal", err)
	}
	_ = tr.MarkFailed(ids[0], "err")
	if err := tr.Clear(ids[0]); err != nil {
		t.Fatalf("Clear() error = %v", err)
	}
}

func TestSummaryAggregates(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{
		{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
		{Name: "b.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
		{Name: "c.jpg", Size: 1 << 20, ContentType: "image/jpeg"},
	})

	_ = tr.BeginUpload(ids[0])
	tr.UpdateProgress(ids[0], StageUploading, 100, "")
	_ = tr.MarkCompleted(ids[0])

	_ = tr.BeginUpload(ids[1])
	tr.UpdateProgress(ids[1], StageUploading, 50, "")

	_ = tr.MarkFailed(ids[2], "boom")

	s := tr.Summary()
	if s.Total != 3 || s.Completed != 1 || s.Uploading != 1 || s.Failed != 1 {
		t.Errorf("Summary = %+v, want total 3, completed 1, uploading 1, failed 1", s)
	}
	// One non-terminal item at 50%.
	if s.OverallProgress != 50 {
		t.Errorf("OverallProgress = %d, want 50", s.OverallProgress)
	}
}

func TestSummaryAllTerminal(t *testing.T) {
	tr := NewTracker(testLimits())
	ids, _ := tr.StartUpload([]FileInfo{{Name: "a.jpg", Size: 1 << 20, ContentType: "image/jpeg"}})

	_ = tr.BeginUpload(ids[0])
	tr.UpdateProgress(ids[0], StageUploading, 100, "")
	_ = tr.MarkCompleted(ids[0])

	if s := tr.Summary(); s.OverallProgress != 100 {
		t.Errorf("OverallProgress = %d with all completed, want 100", s.OverallProgress)
	}
}

func TestRejectionReasonsAreReadable(t *testing.T) {
	tr := NewTracker(testLimits())
	_, rejected := tr.StartUpload([]FileInfo{
		{Name: "doc.pdf", Size: 1 << 20, ContentType: "application/pdf"},
	})
	if len(rejected) != 1 {
		t.Fatalf("rejected = %d, want 1", len(rejected))
	}
	if !strings.Contains(rejected[0].Error(), "doc.pdf") {
		t.Errorf("Error() = %q, want filename included", rejected[0].Error())
	}
}
