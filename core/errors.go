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

import "errors"

// Domain validation errors
var (
	// ErrInvalidMemory indicates a Memory failed validation.
	ErrInvalidMemory = errors.New("invalid memory")

	// ErrInvalidStore indicates a MemoryStore failed validation.
	ErrInvalidStore = errors.New("invalid memory store")

	// ErrInvalidOwner indicates an Owner is not a user or group, or has no id.
	ErrInvalidOwner = errors.New("invalid owner")

	// ErrInvalidReferenceType indicates an unknown reference type.
	ErrInvalidReferenceType = errors.New("invalid reference type")

	// ErrEmptyContent indicates the Content field is empty.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrEmptyTitle indicates the Title field is empty.
	ErrEmptyTitle = errors.New("title cannot be empty")

	// ErrEmptyDescription indicates the Description field is empty.
	ErrEmptyDescription = errors.New("description cannot be empty")

	// ErrFieldTooLong indicates a field exceeds its length limit.
	ErrFieldTooLong = errors.New("field exceeds maximum length")
)
