// Copyright 2021 FerretDB Inc.
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

package mql

import (
	"fmt"

	"github.com/ferretql/aggql/internal/util/lazyerrors"
)

// FieldID identifies a field record in the caller's metadata store.
type FieldID int64

// Field is a resolved field record. It is immutable for the duration of a compile.
type Field struct {
	ID          FieldID
	Name        string
	ParentID    *FieldID
	BaseType    Type
	SpecialType Type
}

// EffectiveType returns the field's semantic type if it has one, otherwise its base type.
// This is the type consulted by the temporal synthesizer and the condition translator.
func (f *Field) EffectiveType() Type {
	if f.SpecialType != "" {
		return f.SpecialType
	}

	return f.BaseType
}

// FieldResolver resolves field identifiers to field records. Implementations must be
// safe for concurrent use by multiple goroutines compiling different queries; the
// compiler never mutates what it gets back and performs no synchronization of its own.
type FieldResolver interface {
	// Resolve looks up a field by id. It returns ErrFieldResolution, wrapped with the
	// id, if no such field exists.
	Resolve(id FieldID) (*Field, error)
}

// StaticResolver is an in-memory [FieldResolver] backed by a fixed field table. It is
// used by tests, by the CLI, and as a template for an adapter over a real metadata store.
type StaticResolver struct {
	fields map[FieldID]*Field
}

// NewStaticResolver builds a StaticResolver from a list of fields.
func NewStaticResolver(fields []*Field) *StaticResolver {
	m := make(map[FieldID]*Field, len(fields))
	for _, f := range fields {
		m[f.ID] = f
	}

	return &StaticResolver{fields: m}
}

// Resolve implements [FieldResolver].
func (r *StaticResolver) Resolve(id FieldID) (*Field, error) {
	f, ok := r.fields[id]
	if !ok {
		return nil, fmt.Errorf("%w: field id %d", ErrFieldResolution, id)
	}

	return f, nil
}

// DottedPath returns the field's full dotted source path by walking ParentID links
// through the resolver, ancestor-first (e.g. "source.username").
func DottedPath(resolver FieldResolver, f *Field) (string, error) {
	names := []string{f.Name}

	cur := f
	for cur.ParentID != nil {
		parent, err := resolver.Resolve(*cur.ParentID)
		if err != nil {
			return "", lazyerrors.Error(err)
		}

		names = append([]string{parent.Name}, names...)
		cur = parent
	}

	path := names[0]
	for _, n := range names[1:] {
		path += "." + n
	}

	return path, nil
}

// check interfaces
var _ FieldResolver = (*StaticResolver)(nil)
