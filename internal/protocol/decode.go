// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

package protocol

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"

	"github.com/framewall/framewall/internal/models"
)

// ErrUnknownType is returned when a frame carries an unrecognized message type.
var ErrUnknownType = errors.New("unknown message type")

// ErrMalformedPayload is returned when a payload fails JSON or field validation.
var ErrMalformedPayload = errors.New("malformed payload")

var validate = validator.New()

// Decode parses a wire frame into its typed inbound payload. Payloads are
// validated field-by-field; a frame that does not satisfy its message type's
// contract is rejected rather than passed through partially populated.
func Decode(data []byte) (Inbound, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("%w: missing type", ErrMalformedPayload)
	}

	msg, err := newInbound(env.Type)
	if err != nil {
		return nil, err
	}

	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
		}
	}
	if err := validate.Struct(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
	}
	if err := checkStatuses(msg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Type, err)
	}
	return deref(msg), nil
}

// newInbound returns a pointer to the zero payload struct for a message type.
func newInbound(msgType string) (Inbound, error) {
	switch msgType {
	case TypeAuthSuccess:
		return &AuthSuccess{}, nil
	case TypeAuthError:
		return &AuthError{}, nil
	case TypeSubscriptionSuccess:
		return &SubscriptionSuccess{}, nil
	case TypeSubscriptionError:
		return &SubscriptionError{}, nil
	case TypeMediaStatusUpdated:
		return &MediaStatusUpdated{}, nil
	case TypeAdminNewUpload:
		return &AdminNewUpload{}, nil
	case TypeGuestUploadSummary:
		return &GuestUploadSummary{}, nil
	case TypeMediaDeleted:
		return &MediaDeleted{}, nil
	case TypeQueueUpdate:
		return &QueueUpdate{}, nil
	case TypeQueueStats:
		return &QueueStats{}, nil
	case TypeQueueAlert:
		return &QueueAlert{}, nil
	case TypePerformanceMetrics:
		return &PerformanceMetrics{}, nil
	case TypeBatchOperation:
		return &BatchOperation{}, nil
	case TypeError:
		return &ServerError{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, msgType)
	}
}

// checkStatuses rejects payloads carrying status values outside the known
// bucket set. Validator tags cannot express the enum because MediaStatus is
// shared across messages where it is sometimes optional.
func checkStatuses(msg Inbound) error {
	switch m := msg.(type) {
	case *MediaStatusUpdated:
		if !m.PreviousStatus.Valid() {
			return fmt.Errorf("invalid previousStatus %q", m.PreviousStatus)
		}
		if !m.NewStatus.Valid() {
			return fmt.Errorf("invalid newStatus %q", m.NewStatus)
		}
	case *AdminNewUpload:
		if !m.Status.Valid() {
			return fmt.Errorf("invalid status %q", m.Status)
		}
	case *BatchOperation:
		if m.NewStatus != models.MediaStatus("") && !m.NewStatus.Valid() {
			return fmt.Errorf("invalid newStatus %q", m.NewStatus)
		}
	}
	return nil
}

// deref converts the decode-time pointer into the value form handlers receive.
func deref(msg Inbound) Inbound {
	switch m := msg.(type) {
	case *AuthSuccess:
		return *m
	case *AuthError:
		return *m
	case *SubscriptionSuccess:
		return *m
	case *SubscriptionError:
		return *m
	case *MediaStatusUpdated:
		return *m
	case *AdminNewUpload:
		return *m
	case *GuestUploadSummary:
		return *m
	case *MediaDeleted:
		return *m
	case *QueueUpdate:
		return *m
	case *QueueStats:
		return *m
	case *QueueAlert:
		return *m
	case *PerformanceMetrics:
		return *m
	case *BatchOperation:
		return *m
	case *ServerError:
		return *m
	default:
		return msg
	}
}
