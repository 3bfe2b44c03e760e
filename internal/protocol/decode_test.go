// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package protocol

import (
	"errors"
	"testing"

	"github.com/framewall/framewall/internal/models"
)

func TestDecodeRoundTrip(t *testing.T) {
	frame, err := Encode(TypeMediaStatusUpdated, MediaStatusUpdated{
		MediaID:        "m1",
		EventID:        "evt-1",
		PreviousStatus: models.StatusPending,
		NewStatus:      models.StatusApproved,
		UpdatedBy:      models.Actor{Name: "Ana", Type: string(models.UserTypeAdmin)},
	})
	if err != nil {
		t.Fatalf("Encode() error = %v", err)
	}

	msg, err := Decode(frame)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	got, ok := msg.(MediaStatusUpdated)
	if !ok {
		t.Fatalf("Decode() = %T, want MediaStatusUpdated", msg)
	}
	if got.MediaID != "m1" || got.NewStatus != models.StatusApproved {
		t.Errorf("decoded = %+v", got)
	}
}

func TestDecodeRejections(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		wantErr error
	}{
		{
			name:    "not json",
			frame:   `{{{`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "missing type",
			frame:   `{"payload":{}}`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "unknown type",
			frame:   `{"type":"bogus_message"}`,
			wantErr: ErrUnknownType,
		},
		{
			name:    "missing required field",
			frame:   `{"type":"media_status_updated","payload":{"eventId":"evt-1","previousStatus":"pending","newStatus":"approved"}}`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "invalid status value",
			frame:   `{"type":"media_status_updated","payload":{"mediaId":"m1","eventId":"evt-1","previousStatus":"pending","newStatus":"sideways"}}`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "invalid new upload status",
			frame:   `{"type":"admin_new_upload_notification","payload":{"eventId":"evt-1","mediaId":"m1","status":"nope"}}`,
			wantErr: ErrMalformedPayload,
		},
		{
			name:    "wrong payload shape",
			frame:   `{"type":"queue_update","payload":{"eventId":"evt-1","mediaId":"m1","stage":"processing","percentage":"forty"}}`,
			wantErr: ErrMalformedPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.frame))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Decode() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestDecodeBatchOperationOptionalStatus(t *testing.T) {
	// newStatus is optional on batch operations; absent must pass, garbage
	// must not.
	ok := `{"type":"batch_operation","payload":{"eventId":"evt-1","operation":"delete_all","count":3}}`
	if _, err := Decode([]byte(ok)); err != nil {
		t.Errorf("Decode() error = %v for valid batch", err)
	}

	bad := `{"type":"batch_operation","payload":{"eventId":"evt-1","operation":"move_all","count":3,"newStatus":"bogus"}}`
	if _, err := Decode([]byte(bad)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("Decode() error = %v, want ErrMalformedPayload", err)
	}
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		code string
		want ErrorCategory
	}{
		{"AUTH_FAILED", CategoryAuthFailed},
		{"TOKEN_EXPIRED", CategoryAuthFailed},
		{"EVENT_NOT_FOUND", CategoryInvalidEvent},
		{"PERMISSION_DENIED", CategoryPermissionDenied},
		{"RATE_LIMITED", CategoryRateLimited},
		{"EVENT_ENDED", CategoryEventEnded},
		{"INTERNAL_ERROR", CategoryServerError},
		{"SOMETHING_NEW", CategoryConnectionIssue},
		{"", CategoryConnectionIssue},
	}
	for _, tt := range tests {
		if got := Categorize(tt.code); got != tt.want {
			t.Errorf("Categorize(%q) = %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestHumanMessagePrefersServerText(t *testing.T) {
	if got := HumanMessage("RATE_LIMITED", "Slow down there"); got != "Slow down there" {
		t.Errorf("HumanMessage() = %q, want server text", got)
	}
	if got := HumanMessage("RATE_LIMITED", ""); got == "" || got == "RATE_LIMITED" {
		t.Errorf("HumanMessage() = %q, want readable fallback, never the raw code", got)
	}
}

func TestOnlyAuthErrorsAreFatal(t *testing.T) {
	for code, cat := range knownCodes {
		want := cat == CategoryAuthFailed
		if got := Categorize(code).Fatal(); got != want {
			t.Errorf("Categorize(%q).Fatal() = %v, want %v", code, got, want)
		}
	}
}
