// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package chat

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MessagesSent is the counter for stored messages.
// Use RegisterMetrics to register this with a Prometheus registry.
var MessagesSent = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "clique_messages_total",
		Help: "Total number of messages durably stored",
	},
)

// EventsPublished is the counter for published room events.
// Use RegisterMetrics to register this with a Prometheus registry.
var EventsPublished = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "clique_events_published_total",
		Help: "Total number of room events published",
	},
	[]string{"type"},
)

// EventsDropped is the counter for deliveries dropped because a subscriber's
// buffer was full or its connection closed.
// Use RegisterMetrics to register this with a Prometheus registry.
var EventsDropped = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "clique_events_dropped_total",
		Help: "Total number of event deliveries dropped",
	},
)

// RoomSubscribers is the gauge of current (room, connection) subscriptions.
// Use RegisterMetrics to register this with a Prometheus registry.
var RoomSubscribers = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "clique_room_subscribers",
		Help: "Current number of live room subscriptions",
	},
)

// RegisterMetrics registers chat package metrics with the given Prometheus
// registry. Panics if registration fails (following prometheus convention).
func RegisterMetrics(reg prometheus.Registerer) {
	reg.MustRegister(MessagesSent)
	reg.MustRegister(EventsPublished)
	reg.MustRegister(EventsDropped)
	reg.MustRegister(RoomSubscribers)
}

// RecordMessageSent increments the stored-message counter.
func RecordMessageSent() {
	MessagesSent.Inc()
}

// RecordEventPublished increments the published-event counter for a type.
func RecordEventPublished(eventType string) {
	EventsPublished.WithLabelValues(eventType).Inc()
}

// RecordEventDropped increments the dropped-delivery counter.
func RecordEventDropped() {
	EventsDropped.Inc()
}

// RecordSubscription moves the subscription gauge by delta.
func RecordSubscription(delta int) {
	RoomSubscribers.Add(float64(delta))
}
