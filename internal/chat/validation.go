// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Clique Contributors

package chat

import (
	"fmt"
	"unicode"
	"unicode/utf8"
)

// Validation limits for domain types.
const (
	MaxGroupNameLength = 100
	MaxIdentityLength  = 254
	MaxBodyLength      = 4000
)

// ValidationError represents an input validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateGroupName checks that a group name is valid.
// Names must be non-empty, valid UTF-8, no control characters, and within length limit.
func ValidateGroupName(name string) error {
	if name == "" {
		return &ValidationError{Field: "group_name", Message: "cannot be empty"}
	}
	if !utf8.ValidString(name) {
		return &ValidationError{Field: "group_name", Message: "must be valid UTF-8"}
	}
	if len(name) > MaxGroupNameLength {
		return &ValidationError{Field: "group_name", Message: fmt.Sprintf("exceeds maximum length of %d", MaxGroupNameLength)}
	}
	if hasControlChars(name) {
		return &ValidationError{Field: "group_name", Message: "cannot contain control characters"}
	}
	return nil
}

// ValidateIdentity checks that a member identity is valid.
// Identities are opaque user-directory references (typically email addresses);
// only basic shape is checked here.
func ValidateIdentity(identity string) error {
	if identity == "" {
		return &ValidationError{Field: "identity", Message: "cannot be empty"}
	}
	if !utf8.ValidString(identity) {
		return &ValidationError{Field: "identity", Message: "must be valid UTF-8"}
	}
	if len(identity) > MaxIdentityLength {
		return &ValidationError{Field: "identity", Message: fmt.Sprintf("exceeds maximum length of %d", MaxIdentityLength)}
	}
	if hasControlChars(identity) {
		return &ValidationError{Field: "identity", Message: "cannot contain control characters"}
	}
	return nil
}

// hasControlChars reports whether the string contains control characters.
func hasControlChars(s string) bool {
	for _, r := range s {
		if unicode.IsControl(r) {
			return true
		}
	}
	return false
}
