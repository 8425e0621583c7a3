// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

// Package store provides durable GroupStore implementations.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/samber/oops"

	"github.com/cliquechat/clique/internal/chat"
)

// fileDocument is the persisted layout: a single structured document keyed
// by group name.
type fileDocument struct {
	Groups map[string]*chat.Group `json:"groups"`
}

// FileStore is a chat.GroupStore backed by a single JSON document rewritten
// in full on each mutation. The rewrite goes to a temp file in the same
// directory and is renamed into place, so a crash never leaves a truncated
// document. One mutex serializes all mutations; reads are served from the
// in-memory image and never observe a half-written state.
type FileStore struct {
	path string

	mu  sync.RWMutex
	doc fileDocument
}

// OpenFileStore loads the document at path, creating it if absent.
func OpenFileStore(path string) (*FileStore, error) {
	s := &FileStore{
		path: path,
		doc:  fileDocument{Groups: make(map[string]*chat.Group)},
	}

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
			return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
		}
		if err := s.persist(); err != nil {
			return nil, err
		}
	case err != nil:
		return nil, oops.Code("STORE_OPEN_FAILED").With("path", path).Wrap(err)
	default:
		if err := json.Unmarshal(data, &s.doc); err != nil {
			return nil, oops.Code("STORE_CORRUPT").With("path", path).Wrap(err)
		}
		if s.doc.Groups == nil {
			s.doc.Groups = make(map[string]*chat.Group)
		}
	}

	return s, nil
}

// Path returns the location of the backing document.
func (s *FileStore) Path() string {
	return s.path
}

// CreateGroup creates a group with the creator as sole member.
func (s *FileStore) CreateGroup(_ context.Context, name, creator string) (*chat.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.doc.Groups[name]; exists {
		return nil, oops.With("group", name).Wrap(chat.ErrAlreadyExists)
	}
	group := &chat.Group{
		Name:    name,
		Members: []string{creator},
	}
	s.doc.Groups[name] = group
	if err := s.persist(); err != nil {
		delete(s.doc.Groups, name)
		return nil, err
	}

	members := make([]string, len(group.Members))
	copy(members, group.Members)
	return &chat.Group{Name: group.Name, Members: members}, nil
}

// AddMember adds an identity to a group's member list.
func (s *FileStore) AddMember(_ context.Context, name, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.doc.Groups[name]
	if !exists {
		return oops.With("group", name).Wrap(chat.ErrNotFound)
	}
	if group.HasMember(identity) {
		return nil
	}
	group.Members = append(group.Members, identity)
	if err := s.persist(); err != nil {
		group.Members = group.Members[:len(group.Members)-1]
		return err
	}
	return nil
}

// AppendMessage appends a message to a group's history.
func (s *FileStore) AppendMessage(_ context.Context, name, sender, body string) (*chat.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.doc.Groups[name]
	if !exists {
		return nil, oops.With("group", name).Wrap(chat.ErrNotFound)
	}
	msg := chat.Message{
		ID:        chat.NewULID(),
		Sender:    sender,
		Body:      body,
		Timestamp: time.Now(),
	}
	group.Messages = append(group.Messages, msg)
	if err := s.persist(); err != nil {
		group.Messages = group.Messages[:len(group.Messages)-1]
		return nil, err
	}
	return &msg, nil
}

// DeleteMessage removes a message by id.
func (s *FileStore) DeleteMessage(_ context.Context, name string, id ulid.ULID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	group, exists := s.doc.Groups[name]
	if !exists {
		return false, oops.With("group", name).Wrap(chat.ErrNotFound)
	}
	for i, msg := range group.Messages {
		if msg.ID == id {
			removed := msg
			group.Messages = append(group.Messages[:i], group.Messages[i+1:]...)
			if err := s.persist(); err != nil {
				group.Messages = append(group.Messages[:i], append([]chat.Message{removed}, group.Messages[i:]...)...)
				return false, err
			}
			return true, nil
		}
	}
	return false, nil
}

// ListGroups returns summaries of all groups, sorted by name.
func (s *FileStore) ListGroups(_ context.Context) ([]chat.GroupSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	summaries := make([]chat.GroupSummary, 0, len(s.doc.Groups))
	for _, group := range s.doc.Groups {
		summaries = append(summaries, group.Summary())
	}
	sort.Slice(summaries, func(i, j int) bool { return summaries[i].Name < summaries[j].Name })
	return summaries, nil
}

// ListMessages returns a group's history in creation order.
func (s *FileStore) ListMessages(_ context.Context, name string) ([]chat.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	group, exists := s.doc.Groups[name]
	if !exists {
		return nil, oops.With("group", name).Wrap(chat.ErrNotFound)
	}
	messages := make([]chat.Message, len(group.Messages))
	copy(messages, group.Messages)
	return messages, nil
}

// ResetAll discards all groups and messages.
func (s *FileStore) ResetAll(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	previous := s.doc.Groups
	s.doc.Groups = make(map[string]*chat.Group)
	if err := s.persist(); err != nil {
		s.doc.Groups = previous
		return err
	}
	return nil
}

// persist rewrites the whole document atomically. Callers hold the write
// lock and roll back their in-memory change if this fails, keeping the
// durable state all-or-nothing.
func (s *FileStore) persist() error {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return oops.Code("STORE_PERSIST_FAILED").With("path", s.path).Wrap(err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), ".groups-*.json")
	if err != nil {
		return oops.Code("STORE_PERSIST_FAILED").With("path", s.path).Wrap(err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()        //nolint:errcheck // write error takes precedence
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return oops.Code("STORE_PERSIST_FAILED").With("path", s.path).Wrap(err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()        //nolint:errcheck // sync error takes precedence
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return oops.Code("STORE_PERSIST_FAILED").With("path", s.path).Wrap(err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return oops.Code("STORE_PERSIST_FAILED").With("path", s.path).Wrap(err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		_ = os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		return oops.Code("STORE_PERSIST_FAILED").With("path", s.path).Wrap(err)
	}
	return nil
}
