// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package chat

import (
	"sync"

	"github.com/oklog/ulid/v2"
)

// DefaultConnBuffer is the event buffer size for a connection.
const DefaultConnBuffer = 100

// Conn is a live connection able to receive room events.
// Delivery is bounded: a Conn whose buffer stays full is dropped by the
// broadcaster rather than stalling the publisher.
type Conn struct {
	id     ulid.ULID
	events chan Event

	mu     sync.Mutex
	closed bool
}

// NewConn creates a connection handle with the given event buffer size.
// A size of zero or less falls back to DefaultConnBuffer.
func NewConn(buffer int) *Conn {
	if buffer <= 0 {
		buffer = DefaultConnBuffer
	}
	return &Conn{
		id:     NewULID(),
		events: make(chan Event, buffer),
	}
}

// ID returns the connection's unique id.
func (c *Conn) ID() ulid.ULID {
	return c.id
}

// Events returns the channel delivering events for every room the connection
// is subscribed to. The channel is closed when the connection is dropped.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Close closes the event channel. Safe to call more than once.
func (c *Conn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.events)
	}
}

// trySend attempts a non-blocking delivery.
// Reports false if the connection is closed or its buffer is full.
func (c *Conn) trySend(event Event) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.events <- event:
		return true
	default:
		return false
	}
}

// RoomRegistry tracks which live connections are attached to which room.
// Purely in-memory bookkeeping; empty on process restart.
type RoomRegistry struct {
	mu    sync.RWMutex
	rooms map[string]map[*Conn]struct{}
}

// NewRoomRegistry creates a new room registry.
func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[string]map[*Conn]struct{}),
	}
}

// Subscribe attaches a connection to a room. Subscribing an already
// subscribed connection is a no-op.
func (r *RoomRegistry) Subscribe(room string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, exists := r.rooms[room]
	if !exists {
		subs = make(map[*Conn]struct{})
		r.rooms[room] = subs
	}
	if _, exists := subs[conn]; exists {
		return
	}
	subs[conn] = struct{}{}
	RecordSubscription(1)
}

// Unsubscribe detaches a connection from a room.
func (r *RoomRegistry) Unsubscribe(room string, conn *Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	subs, exists := r.rooms[room]
	if !exists {
		return
	}
	if _, exists := subs[conn]; !exists {
		return
	}
	delete(subs, conn)
	if len(subs) == 0 {
		delete(r.rooms, room)
	}
	RecordSubscription(-1)
}

// SubscribersOf returns a snapshot of the room's current subscribers.
// The snapshot is taken under the lock; a broadcast started just before a
// Subscribe may not include the newly joining connection.
func (r *RoomRegistry) SubscribersOf(room string) []*Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subs := r.rooms[room]
	if len(subs) == 0 {
		return nil
	}
	result := make([]*Conn, 0, len(subs))
	for conn := range subs {
		result = append(result, conn)
	}
	return result
}

// DropConnection removes a connection from every room it was in and closes
// it. Used on disconnect and on failed delivery.
func (r *RoomRegistry) DropConnection(conn *Conn) {
	r.mu.Lock()
	for room, subs := range r.rooms {
		if _, exists := subs[conn]; !exists {
			continue
		}
		delete(subs, conn)
		if len(subs) == 0 {
			delete(r.rooms, room)
		}
		RecordSubscription(-1)
	}
	r.mu.Unlock()

	conn.Close()
}

// Reset severs every room association. Connections remain open; only their
// room attachments are discarded.
func (r *RoomRegistry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for room, subs := range r.rooms {
		RecordSubscription(-len(subs))
		delete(r.rooms, room)
	}
}
