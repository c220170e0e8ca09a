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

import "testing"

func hasNot(c Clause) bool {
	switch v := c.(type) {
	case Not:
		return true
	case And:
		for _, sub := range v.Clauses {
			if hasNot(sub) {
				return true
			}
		}
	case Or:
		for _, sub := range v.Clauses {
			if hasNot(sub) {
				return true
			}
		}
	}

	return false
}

func TestNormalizeEliminatesTopLevelNot(t *testing.T) {
	t.Parallel()

	field := FieldRef{ID: 1}
	filter := Not{Clause: Comparison{Op: OpEq, Field: field, Arg: Value{Val: 1}}}

	n, err := Normalize(filter)
	if err != nil {
		t.Fatal(err)
	}

	if hasNot(n) {
		t.Fatalf("normalized clause still contains Not: %#v", n)
	}

	cmp, ok := n.(Comparison)
	if !ok || cmp.Op != OpNe {
		t.Fatalf("expected negated comparison, got %#v", n)
	}
}

func TestNormalizeDeMorganAnd(t *testing.T) {
	t.Parallel()

	field := FieldRef{ID: 1}
	filter := Not{Clause: And{Clauses: []Clause{
		Comparison{Op: OpEq, Field: field, Arg: Value{Val: 1}},
		Comparison{Op: OpLt, Field: field, Arg: Value{Val: 2}},
	}}}

	n, err := Normalize(filter)
	if err != nil {
		t.Fatal(err)
	}

	or, ok := n.(Or)
	if !ok || len(or.Clauses) != 2 {
		t.Fatalf("expected Or of 2, got %#v", n)
	}

	if c := or.Clauses[0].(Comparison); c.Op != OpNe {
		t.Fatalf("first clause op = %s, want !=", c.Op)
	}

	if c := or.Clauses[1].(Comparison); c.Op != OpGe {
		t.Fatalf("second clause op = %s, want >=", c.Op)
	}
}

func TestNormalizeDoubleNegation(t *testing.T) {
	t.Parallel()

	field := FieldRef{ID: 1}
	inner := Comparison{Op: OpEq, Field: field, Arg: Value{Val: 1}}
	filter := Not{Clause: Not{Clause: inner}}

	n, err := Normalize(filter)
	if err != nil {
		t.Fatal(err)
	}

	if n != Clause(inner) {
		t.Fatalf("double negation should cancel: got %#v", n)
	}
}

func TestNegateBetweenSplitsRange(t *testing.T) {
	t.Parallel()

	field := FieldRef{ID: 1}
	b := Between{Field: field, Lower: Value{Val: 1}, Upper: Value{Val: 10}}

	n, err := Negate(b)
	if err != nil {
		t.Fatal(err)
	}

	or, ok := n.(Or)
	if !ok || len(or.Clauses) != 2 {
		t.Fatalf("expected Or of 2, got %#v", n)
	}
}

func TestNegateStringMatchFlipsFlag(t *testing.T) {
	t.Parallel()

	field := FieldRef{ID: 1}
	sm := StringMatch{Op: MatchContains, Field: field, Pattern: Value{Val: "x"}, CaseSensitive: true}

	n, err := Negate(sm)
	if err != nil {
		t.Fatal(err)
	}

	if !n.(StringMatch).Negated {
		t.Fatal("expected Negated=true")
	}
}
