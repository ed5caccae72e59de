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

package storage

import (
	"fmt"
	"time"

	"github.com/mus-format/mus-go/ord"
	"github.com/mus-format/mus-go/varint"
	"github.com/poiesic/recall/core"
)

// encoder runs twice per record: once with a nil buffer to size it, then to fill it.
type encoder struct {
	bs []byte
	n  int
}

func (e *encoder) uint64(v uint64) {
	if e.bs == nil {
		e.n += varint.Uint64.Size(v)
		return
	}
	e.n += varint.Uint64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int64(v int64) {
	if e.bs == nil {
		e.n += varint.Int64.Size(v)
		return
	}
	e.n += varint.Int64.Marshal(v, e.bs[e.n:])
}

func (e *encoder) int(v int) {
	if e.bs == nil {
		e.n += varint.Int.Size(v)
		return
	}
	e.n += varint.Int.Marshal(v, e.bs[e.n:])
}

func (e *encoder) string(v string) {
	if e.bs == nil {
		e.n += ord.String.Size(v)
		return
	}
	e.n += ord.String.Marshal(v, e.bs[e.n:])
}

func (e *encoder) bool(v bool) {
	if e.bs == nil {
		e.n += ord.Bool.Size(v)
		return
	}
	e.n += ord.Bool.Marshal(v, e.bs[e.n:])
}

func (e *encoder) id(v core.ID) { e.uint64(uint64(v)) }

func (e *encoder) time(v time.Time) { e.int64(v.UnixMicro()) }

func (e *encoder) owner(o core.Owner) {
	e.int(int(o.Kind))
	e.id(o.ID)
}

func (e *encoder) strings(vs []string) {
	e.int(len(vs))
	for _, v := range vs {
		e.string(v)
	}
}

func (e *encoder) ids(vs []core.ID) {
	e.int(len(vs))
	for _, v := range vs {
		e.id(v)
	}
}

func marshal[T any](v *T, encode func(*encoder, *T)) []byte {
	sizer := &encoder{}
	encode(sizer, v)
	e := &encoder{bs: make([]byte, sizer.n)}
	encode(e, v)
	return e.bs
}

// decoder stops at the first error; later reads return zero values.
type decoder struct {
	bs  []byte
	n   int
	err error
}

func (d *decoder) uint64() (v uint64) {
	if d.err != nil {
		return
	}
	v, n, err := varint.Uint64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return
}

func (d *decoder) int64() (v int64) {
	if d.err != nil {
		return
	}
	v, n, err := varint.Int64.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return
}

func (d *decoder) int() (v int) {
	if d.err != nil {
		return
	}
	v, n, err := varint.Int.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return
}

func (d *decoder) string() (v string) {
	if d.err != nil {
		return
	}
	v, n, err := ord.String.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return
}

func (d *decoder) bool() (v bool) {
	if d.err != nil {
		return
	}
	v, n, err := ord.Bool.Unmarshal(d.bs[d.n:])
	d.n += n
	d.err = err
	return
}

func (d *decoder) id() core.ID { return core.ID(d.uint64()) }

func (d *decoder) time() time.Time { return time.UnixMicro(d.int64()).UTC() }

func (d *decoder) owner() core.Owner {
	kind := core.OwnerKind(d.int())
	return core.Owner{Kind: kind, ID: d.id()}
}

// length reads a slice length, rejecting values the remaining bytes could not hold.
func (d *decoder) length() int {
	n := d.int()
	if d.err == nil && (n < 0 || n > len(d.bs)-d.n) {
		d.err = fmt.Errorf("%w: slice length %d", ErrTruncatedData, n)
		return 0
	}
	return n
}

func (d *decoder) strings() []string {
	n := d.length()
	if n == 0 {
		return nil
	}
	vs := make([]string, 0, n)
	for range n {
		vs = append(vs, d.string())
	}
	return vs
}

func (d *decoder) ids() []core.ID {
	n := d.length()
	if n == 0 {
		return nil
	}
	vs := make([]core.ID, 0, n)
	for range n {
		vs = append(vs, d.id())
	}
	return vs
}

func unmarshal[T any](data []byte, decode func(*decoder, *T)) (*T, error) {
	d := &decoder{bs: data}
	v := new(T)
	decode(d, v)
	if d.err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerializationFailed, d.err)
	}
	return v, nil
}

func encodeMemory(e *encoder, m *core.Memory) {
	e.id(m.Id)
	e.id(m.StoreId)
	e.owner(m.Owner)
	e.string(m.Title)
	e.string(m.Description)
	e.string(m.Content)
	e.bool(m.Pinned)
	e.strings(m.Tags)
	e.int(int(m.RefType))
	e.string(m.Reference)
	e.time(m.CreatedAt)
	e.time(m.UpdatedAt)
}

func decodeMemory(d *decoder, m *core.Memory) {
	m.Id = d.id()
	m.StoreId = d.id()
	m.Owner = d.owner()
	m.Title = d.string()
	m.Description = d.string()
	m.Content = d.string()
	m.Pinned = d.bool()
	m.Tags = d.strings()
	m.RefType = core.ReferenceType(d.int())
	m.Reference = d.string()
	m.CreatedAt = d.time()
	m.UpdatedAt = d.time()
}

func encodeStore(e *encoder, s *core.MemoryStore) {
	e.id(s.Id)
	e.owner(s.Owner)
	e.string(s.Title)
	e.string(s.Description)
	e.time(s.CreatedAt)
	e.time(s.UpdatedAt)
}

func decodeStore(d *decoder, s *core.MemoryStore) {
	s.Id = d.id()
	s.Owner = d.owner()
	s.Title = d.string()
	s.Description = d.string()
	s.CreatedAt = d.time()
	s.UpdatedAt = d.time()
}

func encodeReference(e *encoder, r *core.IngestionReference) {
	e.id(r.Id)
	e.string(r.Source)
	e.string(r.Content)
	e.int(r.StartPage)
	e.int(r.EndPage)
	e.int(r.BaseOffset)
	e.int(r.BaseLength)
	e.time(r.CreatedAt)
}

func decodeReference(d *decoder, r *core.IngestionReference) {
	r.Id = d.id()
	r.Source = d.string()
	r.Content = d.string()
	r.StartPage = d.int()
	r.EndPage = d.int()
	r.BaseOffset = d.int()
	r.BaseLength = d.int()
	r.CreatedAt = d.time()
}

func encodeUser(e *encoder, u *core.User) {
	e.id(u.Id)
	e.string(u.Name)
	e.time(u.CreatedAt)
}

func decodeUser(d *decoder, u *core.User) {
	u.Id = d.id()
	u.Name = d.string()
	u.CreatedAt = d.time()
}

func encodeGroup(e *encoder, g *core.Group) {
	e.id(g.Id)
	e.string(g.Name)
	e.ids(g.Members)
	e.time(g.CreatedAt)
}

func decodeGroup(d *decoder, g *core.Group) {
	g.Id = d.id()
	g.Name = d.string()
	g.Members = d.ids()
	g.CreatedAt = d.time()
}

// MarshalID serializes an ID to bytes.
func MarshalID(id core.ID) []byte {
	buf := make([]byte, varint.Uint64.Size(uint64(id)))
	varint.Uint64.Marshal(uint64(id), buf)
	return buf
}

// UnmarshalID deserializes an ID from bytes.
func UnmarshalID(data []byte) (core.ID, error) {
	id, _, err := varint.Uint64.Unmarshal(data)
	return core.ID(id), err
}

// MarshalMemory serializes a Memory to bytes.
func MarshalMemory(m *core.Memory) []byte { return marshal(m, encodeMemory) }

// UnmarshalMemory deserializes a Memory from bytes.
func UnmarshalMemory(data []byte) (*core.Memory, error) { return unmarshal(data, decodeMemory) }

// MarshalStore serializes a MemoryStore to bytes.
func MarshalStore(s *core.MemoryStore) []byte { return marshal(s, encodeStore) }

// UnmarshalStore deserializes a MemoryStore from bytes.
func UnmarshalStore(data []byte) (*core.MemoryStore, error) { return unmarshal(data, decodeStore) }

// MarshalReference serializes an IngestionReference to bytes.
func MarshalReference(r *core.IngestionReference) []byte { return marshal(r, encodeReference) }

// UnmarshalReference deserializes an IngestionReference from bytes.
func UnmarshalReference(data []byte) (*core.IngestionReference, error) {
	return unmarshal(data, decodeReference)
}

// MarshalUser serializes a User to bytes.
func MarshalUser(u *core.User) []byte { return marshal(u, encodeUser) }

// UnmarshalUser deserializes a User from bytes.
func UnmarshalUser(data []byte) (*core.User, error) { return unmarshal(data, decodeUser) }

// MarshalGroup serializes a Group to bytes.
func MarshalGroup(g *core.Group) []byte { return marshal(g, encodeGroup) }

// UnmarshalGroup deserializes a Group from bytes.
func UnmarshalGroup(data []byte) (*core.Group, error) { return unmarshal(data, decodeGroup) }
