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
	"errors"
	"testing"
)

func TestStaticResolverResolve(t *testing.T) {
	t.Parallel()

	r := NewStaticResolver([]*Field{{ID: 1, Name: "amount", BaseType: TypeFloat}})

	f, err := r.Resolve(1)
	if err != nil {
		t.Fatal(err)
	}

	if f.Name != "amount" || f.EffectiveType() != TypeFloat {
		t.Fatalf("unexpected field: %#v", f)
	}
}

func TestStaticResolverUnknownID(t *testing.T) {
	t.Parallel()

	r := NewStaticResolver(nil)

	_, err := r.Resolve(99)
	if !errors.Is(err, ErrFieldResolution) {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestEffectiveTypePrefersSpecialType(t *testing.T) {
	t.Parallel()

	f := &Field{BaseType: TypeInteger, SpecialType: TypeUNIXTimestampSeconds}
	if f.EffectiveType() != TypeUNIXTimestampSeconds {
		t.Fatalf("EffectiveType() = %s", f.EffectiveType())
	}
}

func TestDottedPathWalksParents(t *testing.T) {
	t.Parallel()

	customerID := FieldID(1)

	r := NewStaticResolver([]*Field{
		{ID: 1, Name: "customer"},
		{ID: 2, Name: "name", ParentID: &customerID},
	})

	f, err := r.Resolve(2)
	if err != nil {
		t.Fatal(err)
	}

	path, err := DottedPath(r, f)
	if err != nil {
		t.Fatal(err)
	}

	if path != "customer.name" {
		t.Fatalf("path = %q", path)
	}
}
