// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package chat

import (
	"time"

	"github.com/oklog/ulid/v2"
)

// Group is a named chat room with persisted membership and message history.
type Group struct {
	Name     string    `json:"name"`
	Members  []string  `json:"members"`  // identities in join order, no duplicates
	Messages []Message `json:"messages"` // chronological, append-only except deletion
}

// Summary returns the group without its message history.
func (g *Group) Summary() GroupSummary {
	members := make([]string, len(g.Members))
	copy(members, g.Members)
	return GroupSummary{Name: g.Name, Members: members}
}

// HasMember reports whether the identity is in the member list.
func (g *Group) HasMember(identity string) bool {
	for _, m := range g.Members {
		if m == identity {
			return true
		}
	}
	return false
}

// GroupSummary is a group's name and member list, without message bodies.
type GroupSummary struct {
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

// Message is a single chat message belonging to exactly one group.
// Immutable once created, except removal by id.
// The JSON field names match the persisted document layout.
type Message struct {
	ID        ulid.ULID `json:"id"`
	Sender    string    `json:"from"`
	Body      string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}
