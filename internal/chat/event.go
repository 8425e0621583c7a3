// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

// Package chat contains the group-chat core: durable group state, live room
// subscriptions, and event fan-out.
package chat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// EventType identifies the kind of room event.
type EventType string

const (
	EventTypeUserJoined     EventType = "user_joined"
	EventTypeUserLeft       EventType = "user_left"
	EventTypeMessage        EventType = "receive_message"
	EventTypeMessageDeleted EventType = "message_deleted"
)

// Event represents something that happened in a room.
type Event struct {
	ID        ulid.ULID
	Room      string // group name
	Type      EventType
	Timestamp time.Time
	Payload   []byte // JSON
}

// UserJoinedPayload is the JSON payload for user_joined events.
type UserJoinedPayload struct {
	Identity string `json:"identity"`
}

// UserLeftPayload is the JSON payload for user_left events.
type UserLeftPayload struct {
	Identity string `json:"identity"`
}

// MessageReceivedPayload is the JSON payload for receive_message events.
// It carries the full stored record, including the assigned id and timestamp.
type MessageReceivedPayload struct {
	Message Message `json:"message"`
}

// MessageDeletedPayload is the JSON payload for message_deleted events.
type MessageDeletedPayload struct {
	MessageID string `json:"message_id"`
}
