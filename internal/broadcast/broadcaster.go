// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package broadcast relays realtime events between sessions in the same
// process over an in-memory pub/sub channel. A session that holds the live
// server connection republishes what it receives so passive sessions stay
// current without opening their own connection.
//
// Envelopes carry the origin session ID; subscribers drop their own
// publications, so a session never reacts to an event twice.
package broadcast

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	json "github.com/goccy/go-json"

	"github.com/framewall/framewall/internal/logging"
	"github.com/framewall/framewall/internal/metrics"
)

// Topic is the single channel all sessions share.
const Topic = "framewall.realtime"

// Envelope is one relayed realtime event.
type Envelope struct {
	OriginID    string          `json:"originId"`
	EventType   string          `json:"eventType"`
	EventID     string          `json:"eventId"`
	Payload     json.RawMessage `json:"payload,omitempty"`
	PublishedAt time.Time       `json:"publishedAt"`
}

// Handler consumes relayed envelopes. Envelopes arrive in publish order per
// origin; handlers must tolerate events for media they have never seen.
type Handler func(env Envelope)

// Bus is the shared in-process pub/sub fabric. Construct one per process and
// hand it to every Broadcaster.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates the shared channel. Persistence is off: a session that
// attaches late starts from the server's snapshot, not from replay.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(gochannel.Config{
			OutputChannelBuffer: 64,
		}, newLoggerAdapter()),
	}
}

// Close tears down the channel and unblocks all subscribers.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// Broadcaster publishes and receives envelopes for one session.
type Broadcaster struct {
	bus      *Bus
	originID string
	eventID  string
}

// New creates a broadcaster scoped to one event. originID must be unique per
// session; watermill.NewUUID is a fine source.
func New(bus *Bus, originID, eventID string) *Broadcaster {
	return &Broadcaster{bus: bus, originID: originID, eventID: eventID}
}

// OriginID returns this session's identity on the bus.
func (b *Broadcaster) OriginID() string { return b.originID }

// Broadcast publishes one event to every other session. The payload is
// marshalled once here; subscribers receive the raw bytes.
func (b *Broadcaster) Broadcast(eventType string, payload interface{}) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal broadcast payload: %w", err)
	}

	env := Envelope{
		OriginID:    b.originID,
		EventType:   eventType,
		EventID:     b.eventID,
		Payload:     raw,
		PublishedAt: time.Now(),
	}
	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal broadcast envelope: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), body)
	msg.Metadata.Set("eventType", eventType)
	if err := b.bus.pubsub.Publish(Topic, msg); err != nil {
		return fmt.Errorf("publish broadcast: %w", err)
	}
	metrics.BroadcastsPublished.WithLabelValues(eventType).Inc()
	return nil
}

// Listen consumes envelopes until ctx is cancelled. Own publications and
// envelopes for other events are dropped before the handler runs.
func (b *Broadcaster) Listen(ctx context.Context, handler Handler) error {
	msgs, err := b.bus.pubsub.Subscribe(ctx, Topic)
	if err != nil {
		return fmt.Errorf("subscribe broadcast: %w", err)
	}

	go func() {
		for msg := range msgs {
			var env Envelope
			if err := json.Unmarshal(msg.Payload, &env); err != nil {
				logging.Warn().Err(err).Str("uuid", msg.UUID).Msg("malformed broadcast envelope")
				msg.Ack()
				continue
			}
			msg.Ack()

			if env.OriginID == b.originID {
				continue
			}
			if env.EventID != "" && b.eventID != "" && env.EventID != b.eventID {
				continue
			}
			handler(env)
		}
	}()
	return nil
}
