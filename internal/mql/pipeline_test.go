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
	"encoding/json"
	"testing"
	"time"

	"github.com/pmezard/go-difflib/difflib"
	"go.mongodb.org/mongo-driver/bson"
)

// assertPipelineJSON fails the test with a unified diff if the pretty-printed
// JSON of got doesn't match want exactly, so a mismatch in a long pipeline
// points straight at the offending stage instead of dumping both whole.
func assertPipelineJSON(t *testing.T, got []bson.D, want string) {
	t.Helper()

	b, err := json.MarshalIndent(got, "", "  ")
	if err != nil {
		t.Fatal(err)
	}

	gotStr := string(b)
	if gotStr == want {
		return
	}

	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(want),
		B:        difflib.SplitLines(gotStr),
		FromFile: "want",
		ToFile:   "got",
		Context:  2,
	})
	if err != nil {
		t.Fatal(err)
	}

	t.Fatalf("pipeline mismatch:\n%s", diff)
}

func ordersResolver() *StaticResolver {
	customerID := FieldID(10)

	return NewStaticResolver([]*Field{
		{ID: 1, Name: "total", BaseType: TypeFloat},
		{ID: 2, Name: "created_at", BaseType: TypeDateTime},
		{ID: 3, Name: "status", BaseType: TypeText},
		{ID: 10, Name: "customer", BaseType: TypeIdentifier},
		{ID: 11, Name: "name", ParentID: &customerID, BaseType: TypeText},
	})
}

func fixedClock() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }

// Nested-field breakout: group by a field reached through a parent id.
func TestCompileNestedFieldGroup(t *testing.T) {
	t.Parallel()

	q := &Query{
		Table:        "orders",
		Breakout:     []Clause{FieldRef{ID: 11}},
		Aggregations: []Aggregation{{Op: AggCount}},
	}

	res, err := Compile(q, CompileOptions{Resolver: ordersResolver(), Clock: fixedClock})
	if err != nil {
		t.Fatal(err)
	}

	if len(res.Projections) != 2 {
		t.Fatalf("expected 2 projected columns, got %v", res.Projections)
	}

	if res.Projections[0] != "customer___name" {
		t.Fatalf("breakout column = %q, want customer___name", res.Projections[0])
	}

	var groupStage, finalStage bson.D

	for _, stage := range res.Pipeline {
		switch stage[0].Key {
		case "$group":
			groupStage = stage[0].Value.(bson.D)
		case "$project":
			finalStage = stage[0].Value.(bson.D)
		}
	}

	if groupStage == nil {
		t.Fatal("no $group stage emitted")
	}

	if groupStage[0].Key != "_id" || groupStage[0].Value != "$___group" {
		t.Fatalf("$group._id = %#v, want \"$___group\"", groupStage[0])
	}

	if finalStage == nil {
		t.Fatal("no final $project stage emitted")
	}

	if finalStage[0].Key != "_id" || finalStage[0].Value != false {
		t.Fatalf("final $project._id = %#v, want false", finalStage[0])
	}

	found := false

	for _, e := range finalStage {
		if e.Key == "customer___name" {
			found = true

			if e.Value != "$_id.customer___name" {
				t.Fatalf("breakout projection = %#v, want $_id.customer___name", e.Value)
			}
		}

		if e.Key == "count_0" && e.Value != true {
			t.Fatalf("aggregation projection = %#v, want true", e.Value)
		}
	}

	if !found {
		t.Fatal("final $project missing the breakout column")
	}

	sawGroupSort := false

	for _, stage := range res.Pipeline {
		if stage[0].Key != "$sort" {
			continue
		}

		if d, ok := stage[0].Value.(bson.D); ok && len(d) == 1 && d[0].Key == "_id" && d[0].Value == 1 {
			sawGroupSort = true
		}
	}

	if !sawGroupSort {
		t.Fatal("expected a $sort: {_id: 1} stage tie-breaking the grouped output")
	}
}

// Day-bucketed filter: compare a DatetimeField against an absolute-datetime.
func TestCompileDayBucketedFilter(t *testing.T) {
	t.Parallel()

	filter := Comparison{
		Op:    OpEq,
		Field: DatetimeField{Field: FieldRef{ID: 2}, Unit: UnitDay},
		Arg:   AbsoluteDatetime{Time: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC), Unit: UnitDay},
	}

	q := &Query{Table: "orders", Filter: filter, Fields: []Clause{FieldRef{ID: 1}}}

	res, err := Compile(q, CompileOptions{Resolver: ordersResolver(), Clock: fixedClock})
	if err != nil {
		t.Fatal(err)
	}

	foundMatch := false

	for _, stage := range res.Pipeline {
		if stage[0].Key == "$match" {
			foundMatch = true

			m := stage[0].Value.(bson.M)

			cond, ok := m["created_at~~~day"]
			if !ok {
				t.Fatalf("expected $match on bucketed column, got %#v", m)
			}

			// A :day bucket must envelope as {___date: "2024-05-01"}, not a full
			// ISO timestamp string.
			sub, ok := cond.(bson.M)
			if !ok || sub["$eq"] == nil {
				t.Fatalf("unexpected match condition: %#v", cond)
			}

			envelope, ok := sub["$eq"].(bson.M)
			if !ok || envelope[dateEnvelopeKey] != "2024-05-01" {
				t.Fatalf("unexpected bucketed literal: %#v", sub["$eq"])
			}
		}
	}

	if !foundMatch {
		t.Fatal("no $match stage emitted")
	}
}

// Negated between: must not surface a top-level $not anywhere in the pipeline.
func TestCompileNegatedBetween(t *testing.T) {
	t.Parallel()

	filter := Not{Clause: Between{Field: FieldRef{ID: 1}, Lower: Value{Val: 10}, Upper: Value{Val: 100}}}

	q := &Query{Table: "orders", Filter: filter, Fields: []Clause{FieldRef{ID: 1}}}

	res, err := Compile(q, CompileOptions{Resolver: ordersResolver(), Clock: fixedClock})
	if err != nil {
		t.Fatal(err)
	}

	for _, stage := range res.Pipeline {
		if stage[0].Key != "$match" {
			continue
		}

		m := stage[0].Value.(bson.M)
		if _, ok := m["$not"]; ok {
			t.Fatal("emitted a top-level $not")
		}
	}
}

// Share expansion: produces a group stage with two accumulators and a ratio.
func TestCompileShareExpansion(t *testing.T) {
	t.Parallel()

	pred := Comparison{Op: OpEq, Field: FieldRef{ID: 3}, Arg: Value{Val: "paid"}}

	q := &Query{Table: "orders", Aggregations: []Aggregation{{Op: AggShare, Pred: pred, Name: "paid_share"}}}

	res, err := Compile(q, CompileOptions{Resolver: ordersResolver(), Clock: fixedClock})
	if err != nil {
		t.Fatal(err)
	}

	if res.Projections[0] != "paid_share" {
		t.Fatalf("projection = %v", res.Projections)
	}
}

// Paging without an overall limit: $skip/$limit still come from the page alone.
func TestCompilePagingWithoutLimit(t *testing.T) {
	t.Parallel()

	q := &Query{
		Table:  "orders",
		Fields: []Clause{FieldRef{ID: 1}},
		Page:   &Page{Page: 3, Items: 20},
	}

	res, err := Compile(q, CompileOptions{Resolver: ordersResolver(), Clock: fixedClock})
	if err != nil {
		t.Fatal(err)
	}

	last := res.Pipeline[len(res.Pipeline)-1]
	if last[0].Key != "$limit" || last[0].Value != 20 {
		t.Fatalf("last stage = %#v", last)
	}

	skipStage := res.Pipeline[len(res.Pipeline)-2]
	if skipStage[0].Key != "$skip" || skipStage[0].Value != 40 {
		t.Fatalf("skip stage = %#v", skipStage)
	}
}

// A bucketed datetime field envelopes {___date: …} inline, in the $addFields
// stage that materializes it — not via a trailing pass over the whole pipeline.
// An unbucketed DateTime projection gets no envelope at all.
func TestCompileDateEnvelopeForBucketedProjection(t *testing.T) {
	t.Parallel()

	q := &Query{Table: "orders", Fields: []Clause{DatetimeField{Field: FieldRef{ID: 2}, Unit: UnitDay}}}

	res, err := Compile(q, CompileOptions{Resolver: ordersResolver(), Clock: fixedClock})
	if err != nil {
		t.Fatal(err)
	}

	var computed bson.D

	for _, stage := range res.Pipeline {
		if stage[0].Key == "$addFields" {
			computed = stage[0].Value.(bson.D)
		}
	}

	if computed == nil {
		t.Fatal("expected an $addFields stage computing the bucketed column")
	}

	var bucketed bson.M

	for _, e := range computed {
		if e.Key == "created_at~~~day" {
			bucketed = e.Value.(bson.M)
		}
	}

	if bucketed == nil {
		t.Fatal("expected the bucketed column in $addFields")
	}

	if _, ok := bucketed[dateEnvelopeKey]; !ok {
		t.Fatalf("expected a %s envelope, got %#v", dateEnvelopeKey, bucketed)
	}
}

// An unbucketed DateTime projection passes through as a raw BSON date, with no
// trailing envelope pass over the whole pipeline.
func TestCompileUnbucketedDateTimeNoEnvelope(t *testing.T) {
	t.Parallel()

	q := &Query{Table: "orders", Fields: []Clause{FieldRef{ID: 2}}}

	res, err := Compile(q, CompileOptions{Resolver: ordersResolver(), Clock: fixedClock})
	if err != nil {
		t.Fatal(err)
	}

	for _, stage := range res.Pipeline {
		if stage[0].Key == "$addFields" {
			t.Fatalf("unbucketed projection needs no computed column, got %#v", stage)
		}
	}

	last := res.Pipeline[len(res.Pipeline)-1]
	if last[0].Key != "$project" {
		t.Fatalf("expected the plain-listing $project as the last stage, got %#v", last)
	}
}

// Plain row listing with no filter or breakout: the whole pipeline is the
// initial $project followed by the plain-listing $project, checked verbatim so a
// stage-ordering regression shows up as a diff instead of a vague field-by-field
// mismatch.
func TestCompilePlainRowListingPipelineShape(t *testing.T) {
	t.Parallel()

	q := &Query{Table: "orders", Fields: []Clause{FieldRef{ID: 1}}}

	res, err := Compile(q, CompileOptions{Resolver: ordersResolver(), Clock: fixedClock})
	if err != nil {
		t.Fatal(err)
	}

	assertPipelineJSON(t, res.Pipeline, `[
  [
    {
      "Key": "$project",
      "Value": [
        {
          "Key": "_id",
          "Value": 0
        },
        {
          "Key": "total",
          "Value": "$total"
        }
      ]
    }
  ],
  [
    {
      "Key": "$project",
      "Value": [
        {
          "Key": "_id",
          "Value": 0
        },
        {
          "Key": "total",
          "Value": "$total"
        }
      ]
    }
  ]
]`)
}

func TestCompileRejectsNilQuery(t *testing.T) {
	t.Parallel()

	if _, err := Compile(nil, CompileOptions{}); err == nil {
		t.Fatal("expected error for nil query")
	}
}
