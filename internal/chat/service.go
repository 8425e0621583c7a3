// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package chat

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"
)

// ServiceConfig holds dependencies for Service.
type ServiceConfig struct {
	Store       GroupStore
	Registry    *RoomRegistry
	Broadcaster *Broadcaster
}

// Service implements the public group-chat operations. It serializes group
// mutations through the store, and for join/leave/send triggers event
// fan-out to the room's current subscribers. The durable write always
// happens before the broadcast: a crash in between loses only the live
// notification, never the record.
//
// A per-group lock is held across each write+broadcast pair so that events
// reach subscribers in the same order the records were persisted. The store
// alone cannot guarantee this: two sends could commit in one order and
// publish in the other once the store's internal lock is released.
type Service struct {
	store       GroupStore
	registry    *RoomRegistry
	broadcaster *Broadcaster

	mu     sync.Mutex
	groups map[string]*sync.Mutex
}

// NewService creates a new Service with the given configuration.
func NewService(cfg ServiceConfig) *Service {
	return &Service{
		store:       cfg.Store,
		registry:    cfg.Registry,
		broadcaster: cfg.Broadcaster,
		groups:      make(map[string]*sync.Mutex),
	}
}

// groupLock returns the mutex serializing mutations of the named group.
// Locks are created on demand and never removed; the set of group names is
// small and groups cannot be deleted individually.
func (s *Service) groupLock(name string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.groups[name]
	if !ok {
		lock = &sync.Mutex{}
		s.groups[name] = lock
	}
	return lock
}

// CreateGroup creates a group with the creator as sole member.
// Returns ErrAlreadyExists if the name is taken.
func (s *Service) CreateGroup(ctx context.Context, name, identity string) (*Group, error) {
	if err := ValidateGroupName(name); err != nil {
		return nil, err
	}
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	group, err := s.store.CreateGroup(ctx, name, identity)
	if err != nil {
		return nil, oops.Wrapf(err, "create group %q", name)
	}
	return group, nil
}

// JoinGroup adds the identity to the group's member list. Joining an
// already-joined group is a no-op at the store level. If a live connection
// is supplied, it is also subscribed to the room and a user_joined event is
// broadcast to all current subscribers, the joiner included.
// Returns ErrNotFound if the group is absent.
func (s *Service) JoinGroup(ctx context.Context, name, identity string, conn *Conn) error {
	if err := ValidateGroupName(name); err != nil {
		return err
	}
	if err := ValidateIdentity(identity); err != nil {
		return err
	}
	lock := s.groupLock(name)
	lock.Lock()
	defer lock.Unlock()

	if err := s.store.AddMember(ctx, name, identity); err != nil {
		return oops.Wrapf(err, "join group %q", name)
	}
	if conn != nil {
		s.registry.Subscribe(name, conn)
		s.publish(name, EventTypeUserJoined, UserJoinedPayload{Identity: identity})
	}
	return nil
}

// LeaveGroup detaches the connection from the room and broadcasts a
// user_left event. Store-level membership is deliberately retained: leaving
// a live room does not revoke group membership.
func (s *Service) LeaveGroup(name, identity string, conn *Conn) {
	lock := s.groupLock(name)
	lock.Lock()
	defer lock.Unlock()

	if conn != nil {
		s.registry.Unsubscribe(name, conn)
	}
	s.publish(name, EventTypeUserLeft, UserLeftPayload{Identity: identity})
}

// Disconnect removes the connection from every room it was in and closes
// it. Used on connection loss; no user_left events are emitted.
func (s *Service) Disconnect(conn *Conn) {
	s.registry.DropConnection(conn)
}

// ListGroups returns summaries of all groups.
func (s *Service) ListGroups(ctx context.Context) ([]GroupSummary, error) {
	summaries, err := s.store.ListGroups(ctx)
	if err != nil {
		return nil, oops.Wrapf(err, "list groups")
	}
	return summaries, nil
}

// GetHistory returns a group's message history in creation order.
// Returns ErrNotFound if the group is absent.
func (s *Service) GetHistory(ctx context.Context, name string) ([]Message, error) {
	messages, err := s.store.ListMessages(ctx, name)
	if err != nil {
		return nil, oops.Wrapf(err, "get history of group %q", name)
	}
	return messages, nil
}

// SendMessage appends a message to the group's history and broadcasts a
// receive_message event carrying the stored record to every current
// subscriber of the room.
// Returns ErrNotFound if the group is absent and ErrEmptyBody if the body
// is empty or whitespace.
func (s *Service) SendMessage(ctx context.Context, name, identity, body string) (*Message, error) {
	if err := ValidateGroupName(name); err != nil {
		return nil, err
	}
	if err := ValidateIdentity(identity); err != nil {
		return nil, err
	}
	if strings.TrimSpace(body) == "" {
		return nil, ErrEmptyBody
	}
	if len(body) > MaxBodyLength {
		return nil, &ValidationError{Field: "body", Message: "exceeds maximum length"}
	}

	lock := s.groupLock(name)
	lock.Lock()
	defer lock.Unlock()

	msg, err := s.store.AppendMessage(ctx, name, identity, body)
	if err != nil {
		return nil, oops.Wrapf(err, "send message to group %q", name)
	}
	RecordMessageSent()

	s.publish(name, EventTypeMessage, MessageReceivedPayload{Message: *msg})
	return msg, nil
}

// DeleteMessage removes a message by id and reports whether anything was
// removed. Removing an absent id is not an error. When a message was
// actually removed, a message_deleted event is broadcast so live viewers
// are not left with a stale history.
// Returns ErrNotFound if the group is absent.
func (s *Service) DeleteMessage(ctx context.Context, name string, id ulid.ULID) (bool, error) {
	lock := s.groupLock(name)
	lock.Lock()
	defer lock.Unlock()

	removed, err := s.store.DeleteMessage(ctx, name, id)
	if err != nil {
		return false, oops.Wrapf(err, "delete message from group %q", name)
	}
	if removed {
		s.publish(name, EventTypeMessageDeleted, MessageDeletedPayload{MessageID: id.String()})
	}
	return removed, nil
}

// ResetAll discards all groups and messages, then severs every live room
// association. Connections stay open but receive no notification.
func (s *Service) ResetAll(ctx context.Context) error {
	if err := s.store.ResetAll(ctx); err != nil {
		return oops.Wrapf(err, "reset all groups")
	}
	s.registry.Reset()
	return nil
}

// publish marshals the payload and fans the event out (nil-safe).
func (s *Service) publish(room string, eventType EventType, payload any) {
	if s.broadcaster == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("failed to marshal event payload",
			"room", room,
			"event_type", eventType,
			"error", err,
		)
		return
	}
	s.broadcaster.Publish(room, Event{
		ID:        NewULID(),
		Room:      room,
		Type:      eventType,
		Timestamp: time.Now(),
		Payload:   data,
	})
}
