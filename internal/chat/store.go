// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package chat

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// GroupStore persists groups, memberships and message history.
//
// Every mutating operation must be atomic with respect to concurrent
// mutations on the same store instance, and a successful mutation's effect
// must be observable by every subsequent call. Readers must never see a
// half-written state.
type GroupStore interface {
	// CreateGroup creates a group with the creator as sole member and empty
	// history. Returns ErrAlreadyExists if the name is taken.
	CreateGroup(ctx context.Context, name, creator string) (*Group, error)

	// AddMember adds an identity to a group's member list, preserving join
	// order. Adding an existing member is a no-op, not an error.
	// Returns ErrNotFound if the group is absent.
	AddMember(ctx context.Context, name, identity string) error

	// AppendMessage assigns a unique id and current timestamp, appends the
	// message to the group's history and returns the stored record.
	// Returns ErrNotFound if the group is absent.
	AppendMessage(ctx context.Context, name, sender, body string) (*Message, error)

	// DeleteMessage removes a message by id and reports whether anything was
	// removed. Removing an absent id is not an error.
	// Returns ErrNotFound if the group is absent.
	DeleteMessage(ctx context.Context, name string, id ulid.ULID) (bool, error)

	// ListGroups returns summaries of all groups, sorted by name.
	ListGroups(ctx context.Context) ([]GroupSummary, error)

	// ListMessages returns a group's history in creation order.
	// Returns ErrNotFound if the group is absent.
	ListMessages(ctx context.Context, name string) ([]Message, error)

	// ResetAll discards all groups and messages unconditionally.
	ResetAll(ctx context.Context) error
}

// MemoryGroupStore is an in-memory GroupStore for testing.
type MemoryGroupStore struct {
	mu     sync.RWMutex
	groups map[string]*Group
}

// NewMemoryGroupStore creates a new in-memory group store.
func NewMemoryGroupStore() *MemoryGroupStore {
	return &MemoryGroupStore{
		groups: make(map[string]*Group),
	}
}

// CreateGroup creates a group with the creator as sole member.
func (s *MemoryGroupStore) CreateGroup(_ context.Context, name, creator string) (*Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.groups[name]; exists {
		return nil, ErrAlreadyExists
	}
	group := &Group{
		Name:    name,
		Members: []string{creator},
	}
	s.groups[name] = group
	return copyGroup(group), nil
}

// AddMember adds an identity to a group's member list.
func (s *MemoryGroupStore) AddMember(_ context.Context, name, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.groups[name]
	if !exists {
		return ErrNotFound
	}
	if group.HasMember(identity) {
		return nil
	}
	group.Members = append(group.Members, identity)
	return nil
}

// AppendMessage appends a message to a group's history.
func (s *MemoryGroupStore) AppendMessage(_ context.Context, name, sender, body string) (*Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.groups[name]
	if !exists {
		return nil, ErrNotFound
	}
	msg := Message{
		ID:        NewULID(),
		Sender:    sender,
		Body:      body,
		Timestamp: time.Now(),
	}
	group.Messages = append(group.Messages, msg)
	return &msg, nil
}

// DeleteMessage removes a message by id.
func (s *MemoryGroupStore) DeleteMessage(_ context.Context, name string, id ulid.ULID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.groups[name]
	if !exists {
		return false, ErrNotFound
	}
	for i, msg := range group.Messages {
		if msg.ID == id {
			group.Messages = append(group.Messages[:i], group.Messages[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

// ListGroups returns summaries of all groups, sorted by name.
func (s *MemoryGroupStore) ListGroups(_ context.Context) ([]GroupSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]GroupSummary, 0, len(s.groups))
	for _, group := range s.groups {
		summaries = append(summaries, group.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

// ListMessages returns a group's history in creation order.
func (s *MemoryGroupStore) ListMessages(_ context.Context, name string) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, exists := s.groups[name]
	if !exists {
		return nil, ErrNotFound
	}
	messages := make([]Message, len(group.Messages))
	copy(messages, group.Messages)
	return messages, nil
}

// ResetAll discards all groups and messages.
func (s *MemoryGroupStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.groups = make(map[string]*Group)
	return nil
}

// copyGroup returns a defensive copy to prevent external modification.
func copyGroup(g *Group) *Group {
	members := make([]string, len(g.Members))
	copy(members, g.Members)
	messages := make([]Message, len(g.Messages))
	copy(messages, g.Messages)
	return &Group{Name: g.Name, Members: members, Messages: messages}
}
