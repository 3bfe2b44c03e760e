// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package protocol

// ErrorCategory groups server error codes into the classes the UI reacts to.
type ErrorCategory string

const (
	CategoryAuthFailed       ErrorCategory = "auth_failed"
	CategoryInvalidEvent     ErrorCategory = "invalid_event"
	CategoryPermissionDenied ErrorCategory = "permission_denied"
	CategoryRateLimited      ErrorCategory = "rate_limited"
	CategoryEventEnded       ErrorCategory = "event_ended"
	CategoryServerError      ErrorCategory = "server_error"
	CategoryConnectionIssue  ErrorCategory = "connection_issue"
)

// knownCodes maps the server's wire error codes to categories. Unknown codes
// fall back to CategoryConnectionIssue.
var knownCodes = map[string]ErrorCategory{
	"AUTH_FAILED":       CategoryAuthFailed,
	"TOKEN_EXPIRED":     CategoryAuthFailed,
	"TOKEN_INVALID":     CategoryAuthFailed,
	"INVALID_EVENT":     CategoryInvalidEvent,
	"EVENT_NOT_FOUND":   CategoryInvalidEvent,
	"PERMISSION_DENIED": CategoryPermissionDenied,
	"FORBIDDEN":         CategoryPermissionDenied,
	"RATE_LIMITED":      CategoryRateLimited,
	"TOO_MANY_REQUESTS": CategoryRateLimited,
	"EVENT_ENDED":       CategoryEventEnded,
	"SERVER_ERROR":      CategoryServerError,
	"INTERNAL_ERROR":    CategoryServerError,
}

// categoryMessages are the human-readable fallbacks shown when the server
// does not supply its own message. Raw codes are never surfaced to users.
var categoryMessages = map[ErrorCategory]string{
	CategoryAuthFailed:       "Your session is no longer valid. Please sign in again.",
	CategoryInvalidEvent:     "This event could not be found.",
	CategoryPermissionDenied: "You don't have permission to do that.",
	CategoryRateLimited:      "Too many requests. Please wait a moment and try again.",
	CategoryEventEnded:       "This event has ended.",
	CategoryServerError:      "Something went wrong on our side. Please try again.",
	CategoryConnectionIssue:  "Connection issue. Please check your network and try again.",
}

// Categorize maps a wire error code to its category.
func Categorize(code string) ErrorCategory {
	if cat, ok := knownCodes[code]; ok {
		return cat
	}
	return CategoryConnectionIssue
}

// HumanMessage returns the user-facing message for an error code, preferring
// the server-supplied message when present.
func HumanMessage(code, serverMessage string) string {
	if serverMessage != "" {
		return serverMessage
	}
	return categoryMessages[Categorize(code)]
}

// Fatal reports whether an error code terminates the connection rather than
// just the current operation. Only authentication failures are fatal.
func (c ErrorCategory) Fatal() bool {
	return c == CategoryAuthFailed
}
