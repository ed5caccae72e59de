// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package core

import (
	"fmt"
	"unicode/utf8"
)

// ValidateMemory validates a Memory according to domain rules.
//
// Validation rules:
//   - Content must not be empty
//   - Title, Description and Content must fit their length limits
//   - Owner, when set, must be a valid user or group
//   - RefType must be a known reference type
//
// NOT validated (populated on write):
//   - Description (synthesized before indexing when empty)
//   - StoreId (routed or synthesized when zero)
//   - ID (0 is valid from database sequences)
func ValidateMemory(m *Memory) error {
	if m == nil {
		return fmt.Errorf("%w: memory is nil", ErrInvalidMemory)
	}

	if m.Content == "" {
		return fmt.Errorf("%w: %w", ErrInvalidMemory, ErrEmptyContent)
	}

	if err := validateLength("title", m.Title, MaxTitleLength); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMemory, err)
	}
	if err := validateLength("description", m.Description, MaxDescriptionLength); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMemory, err)
	}
	if err := validateLength("content", m.Content, MaxContentLength); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidMemory, err)
	}

	if !m.Owner.IsZero() {
		if err := ValidateOwner(m.Owner); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidMemory, err)
		}
	}

	if m.RefType < RefNone || m.RefType > RefHomepage {
		return fmt.Errorf("%w: %w: value %d", ErrInvalidMemory, ErrInvalidReferenceType, m.RefType)
	}

	return nil
}

// ValidateStore validates a MemoryStore according to domain rules.
//
// Validation rules:
//   - Title must not be empty and must fit MaxTitleLength
//   - Owner must be a valid user or group
func ValidateStore(s *MemoryStore) error {
	if s == nil {
		return fmt.Errorf("%w: store is nil", ErrInvalidStore)
	}
	if s.Title == "" {
		return fmt.Errorf("%w: %w", ErrInvalidStore, ErrEmptyTitle)
	}
	if err := validateLength("title", s.Title, MaxTitleLength); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStore, err)
	}
	if err := ValidateOwner(s.Owner); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStore, err)
	}
	return nil
}

// ValidateOwner validates that an Owner names a user or a group with a non-zero id.
func ValidateOwner(o Owner) error {
	if o.Kind != OwnerUser && o.Kind != OwnerGroup {
		return fmt.Errorf("%w: kind %d", ErrInvalidOwner, o.Kind)
	}
	if o.ID == 0 {
		return fmt.Errorf("%w: zero id", ErrInvalidOwner)
	}
	return nil
}

func validateLength(field, value string, limit int) error {
	if n := utf8.RuneCountInString(value); n > limit {
		return fmt.Errorf("%w: %s has %d characters, limit %d", ErrFieldTooLong, field, n, limit)
	}
	return nil
}

// Truncate shortens s to at most limit runes.
func Truncate(s string, limit int) string {
	if limit <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit])
}
