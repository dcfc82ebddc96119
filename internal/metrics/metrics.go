// Package metrics holds the process-wide prometheus collectors, exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ScanResults counts credential scans by outcome
	// (accepted, invalid, no_lesson, mismatch, conflict).
	ScanResults = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_qr_scans_total",
		Help: "Credential scans by outcome.",
	}, []string{"outcome"})

	// EventsPublished counts domain events delivered to the hub by channel.
	EventsPublished = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_events_published_total",
		Help: "Change notifications decoded and published, by source channel.",
	}, []string{"channel"})

	// ListenerReconnects counts change-listener connection failures.
	ListenerReconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_listener_reconnects_total",
		Help: "Change-listener reconnect attempts after a connection error.",
	})

	// Subscribers tracks currently connected live subscribers.
	Subscribers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_live_subscribers",
		Help: "Currently connected live subscribers.",
	})

	// DroppedPushes counts pushes dropped on a full subscriber buffer.
	DroppedPushes = promauto.NewCounter(prometheus.CounterOpts{
		Name: "portal_pushes_dropped_total",
		Help: "Event pushes dropped because a subscriber buffer was full.",
	})
)
