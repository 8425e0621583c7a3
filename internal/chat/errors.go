// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package chat

import "errors"

// ErrNotFound is returned when a requested group does not exist.
var ErrNotFound = errors.New("group not found")

// ErrAlreadyExists is returned when a group name is already taken.
var ErrAlreadyExists = errors.New("group already exists")

// ErrEmptyBody is returned when a message body is empty.
var ErrEmptyBody = errors.New("message body is empty")
