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
	"testing"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

func TestCompileFilterSimpleComparison(t *testing.T) {
	t.Parallel()

	state := testState()

	m, err := compileFilter(state, Comparison{Op: OpEq, Field: FieldRef{ID: 2}, Arg: Value{Val: "paid"}})
	if err != nil {
		t.Fatal(err)
	}

	sub, ok := m["status"].(bson.M)
	if !ok || sub["$eq"] != "paid" {
		t.Fatalf("unexpected match doc: %#v", m)
	}
}

func TestCompileFilterAndOr(t *testing.T) {
	t.Parallel()

	state := testState()

	filter := And{Clauses: []Clause{
		Comparison{Op: OpGt, Field: FieldRef{ID: 1}, Arg: Value{Val: 10}},
		Or{Clauses: []Clause{
			Comparison{Op: OpEq, Field: FieldRef{ID: 2}, Arg: Value{Val: "paid"}},
			Comparison{Op: OpEq, Field: FieldRef{ID: 2}, Arg: Value{Val: "pending"}},
		}},
	}}

	m, err := compileFilter(state, filter)
	if err != nil {
		t.Fatal(err)
	}

	and, ok := m["$and"].(bson.A)
	if !ok || len(and) != 2 {
		t.Fatalf("unexpected match doc: %#v", m)
	}
}

func TestCompileFilterBetweenInclusive(t *testing.T) {
	t.Parallel()

	state := testState()

	m, err := compileFilter(state, Between{Field: FieldRef{ID: 1}, Lower: Value{Val: 1}, Upper: Value{Val: 10}})
	if err != nil {
		t.Fatal(err)
	}

	sub := m["amount"].(bson.M)
	if sub["$gte"] != 1 || sub["$lte"] != 10 {
		t.Fatalf("unexpected range: %#v", sub)
	}
}

func TestCompileFilterStringMatchContains(t *testing.T) {
	t.Parallel()

	state := testState()

	m, err := compileFilter(state, StringMatch{Op: MatchContains, Field: FieldRef{ID: 2}, Pattern: Value{Val: "abc"}, CaseSensitive: true})
	if err != nil {
		t.Fatal(err)
	}

	sub := m["status"].(bson.M)
	if sub["$regex"] != "abc" || sub["$options"] != "" {
		t.Fatalf("unexpected match: %#v", sub)
	}
}

// A negated string match must put an actual regex value under $not, not a
// {$regex, $options} operator document, which $not cannot wrap.
func TestCompileFilterStringMatchNegated(t *testing.T) {
	t.Parallel()

	state := testState()

	m, err := compileFilter(state, StringMatch{
		Op: MatchStartsWith, Field: FieldRef{ID: 2}, Pattern: Value{Val: "abc"}, CaseSensitive: false, Negated: true,
	})
	if err != nil {
		t.Fatal(err)
	}

	sub, ok := m["status"].(bson.M)
	if !ok {
		t.Fatalf("unexpected match doc: %#v", m)
	}

	regex, ok := sub["$not"].(primitive.Regex)
	if !ok {
		t.Fatalf("$not must hold a primitive.Regex value, got %#v", sub["$not"])
	}

	if regex.Pattern != "^abc" || regex.Options != "i" {
		t.Fatalf("unexpected regex: %#v", regex)
	}
}
