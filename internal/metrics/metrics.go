// Framewall - Realtime Media Upload Queue Synchronization
// Copyright 2026 Framewall Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/framewall/framewall

// Package metrics provides Prometheus instrumentation for the realtime core:
// connection lifecycle, message dispatch, cache reconciliation and the upload
// queue. Collectors are package-level promauto vars registered at import time.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Connection metrics
	ConnectionState = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_connection_state",
			Help: "Current connection state (0=disconnected 1=connecting 2=connected 3=authenticating 4=authenticated)",
		},
	)

	ConnectAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_connect_attempts_total",
			Help: "Total connect attempts by outcome",
		},
		[]string{"outcome"}, // success, auth_failed, timeout, rate_limited, connection_error
	)

	Reconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_reconnects_total",
			Help: "Total automatic reconnect attempts after abnormal closes",
		},
	)

	// Subscription metrics
	SubscriptionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "realtime_subscriptions_active",
			Help: "Rooms currently subscribed",
		},
	)

	SubscriptionFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_subscription_failures_total",
			Help: "Subscribe attempts that timed out or were rejected",
		},
	)

	// Dispatch metrics
	MessagesDispatched = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "realtime_messages_dispatched_total",
			Help: "Inbound messages routed to handlers, by message type",
		},
		[]string{"type"},
	)

	MessagesRejected = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "realtime_messages_rejected_total",
			Help: "Inbound frames rejected at the protocol boundary",
		},
	)

	// Reconciliation cache metrics
	TransitionsApplied = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediacache_transitions_applied_total",
			Help: "Status transitions applied to the reconciliation cache",
		},
	)

	TransitionsDropped = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mediacache_transitions_dropped_total",
			Help: "Transitions dropped before application",
		},
		[]string{"reason"}, // stale_timestamp, duplicate
	)

	CacheInvalidations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "mediacache_invalidations_total",
			Help: "Bucket invalidations forcing a re-fetch",
		},
	)

	// Upload queue metrics
	UploadItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "upload_queue_items",
			Help: "Upload queue items by status",
		},
		[]string{"status"},
	)

	UploadFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "upload_failures_total",
			Help: "Upload items that landed in failed",
		},
	)

	// Broadcast metrics
	BroadcastsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_envelopes_published_total",
			Help: "Cross-session relay envelopes published, by event type",
		},
		[]string{"type"},
	)

	// REST collaborator metrics
	APIRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "collaborator_requests_total",
			Help: "REST collaborator calls by endpoint and outcome",
		},
		[]string{"endpoint", "outcome"}, // outcome: ok, error, rejected
	)
)
