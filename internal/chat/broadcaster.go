// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package chat

import (
	"log/slog"
)

// Broadcaster fans an event out to a room's current subscribers.
type Broadcaster struct {
	registry *RoomRegistry
}

// NewBroadcaster creates a broadcaster over the given registry.
func NewBroadcaster(registry *RoomRegistry) *Broadcaster {
	return &Broadcaster{registry: registry}
}

// Publish delivers an event to every connection subscribed to the room at
// the moment of the call. Delivery is non-blocking: a subscriber whose
// buffer is full or that has closed is dropped from the registry, an
// implicit leave, and the remaining deliveries proceed. Publish never fails
// the triggering operation.
func (b *Broadcaster) Publish(room string, event Event) {
	for _, conn := range b.registry.SubscribersOf(room) {
		if conn.trySend(event) {
			continue
		}
		slog.Warn("event dropped: subscriber buffer full or closed",
			"room", room,
			"conn_id", conn.ID().String(),
			"event_type", event.Type,
		)
		RecordEventDropped()
		b.registry.DropConnection(conn)
	}
	RecordEventPublished(string(event.Type))
}
