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
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/exp/slices"
)

// Driver executes a compiled pipeline against a real deployment. MongoDriver in
// package driver is the production implementation; tests may supply a fake.
type Driver interface {
	Run(ctx context.Context, result *Result) ([]bson.M, error)
}

// Result is what Compile produces: the pipeline ready to hand to the driver,
// the collection it targets, and enough bookkeeping for the post-processor to
// invert the compiler's own name escaping on every returned row.
type Result struct {
	Collection  string
	Pipeline    []bson.D
	Projections []string // flat destination names, in the order Fields/breakout/aggregations named them

	// MBQL is true for a Compile-produced result, whose Projections is a complete
	// prediction of every column the pipeline can emit. A raw constructor-only
	// query assembled outside Compile leaves this false, and the post-processor's
	// unexpected-column check is skipped for it.
	MBQL bool

	resultTypes map[string]Type
}

// CompileOptions configures a single Compile call.
type CompileOptions struct {
	Resolver FieldResolver

	// Clock returns the instant relative-datetime clauses are normalized against.
	// Defaults to time.Now when nil; tests should always set this explicitly so
	// compiles are reproducible.
	Clock func() time.Time
}

// Compile translates q into an aggregation pipeline against q.Table. The stage
// order is fixed: an initial $project flattens every dotted source path this
// compile touched into an escaped top-level name, a $addFields materializes
// every bucketed or derived column, $match applies the filter. If there is a
// breakout or an aggregation, a $project bundles the breakout bindings into a
// single "___group" subdocument, $group keys on it (or on null, with no
// breakout), a second $addFields computes anything that needed the group's own
// output (distinct's cardinality, share's ratio), and a $sort on _id gives the
// otherwise-unordered groups a stable order. The final $project drops _id,
// reads breakout columns back out of "_id.<name>", and passes aggregation
// columns through; the caller's own $sort and $skip/$limit paginate last.
func Compile(q *Query, opts CompileOptions) (*Result, error) {
	if q == nil {
		return nil, compileErr(ErrInvalidQuery, nil)
	}

	clock := opts.Clock
	if clock == nil {
		clock = time.Now
	}

	state := newCompileState(opts.Resolver, clock)

	var (
		groupFields  []bson.E
		postFields   []bson.E
		projections  []string
		finalProject = bson.D{{Key: "_id", Value: false}}
	)

	breakoutNames := make([]string, 0, len(q.Breakout))

	for _, b := range q.Breakout {
		name, _, err := resolveColumn(state, b)
		if err != nil {
			return nil, err
		}

		breakoutNames = append(breakoutNames, name)
	}

	for _, name := range breakoutNames {
		finalProject = append(finalProject, bson.E{Key: name, Value: RValue("_id." + name)})
		projections = append(projections, name)
	}

	for i, agg := range q.Aggregations {
		c, err := compileAggregation(state, i, agg)
		if err != nil {
			return nil, err
		}

		groupFields = append(groupFields, c.groupFields...)
		postFields = append(postFields, c.post...)

		name := aggregationName(i, agg)
		finalProject = append(finalProject, bson.E{Key: name, Value: true})
		projections = append(projections, name)
	}

	hasGrouping := len(breakoutNames) > 0 || len(q.Aggregations) > 0

	// A query with no breakout and no aggregation is a plain row listing: select
	// the requested fields straight through, with no $group stage at all.
	if !hasGrouping {
		finalProject[0] = bson.E{Key: "_id", Value: 0}

		for _, f := range q.Fields {
			name, _, err := resolveColumn(state, f)
			if err != nil {
				return nil, err
			}

			finalProject = append(finalProject, bson.E{Key: name, Value: RValue(name)})
			projections = append(projections, name)
		}
	}

	var matchDoc bson.M

	if q.Filter != nil {
		var err error

		matchDoc, err = compileFilter(state, q.Filter)
		if err != nil {
			return nil, err
		}
	}

	var orderStage bson.D

	for _, term := range q.OrderBy {
		var name string

		if ref, ok := term.Clause.(AggregationRef); ok {
			// An aggregation reference sorts by that aggregation's own output
			// column, which the final $project has produced by then.
			if ref.Index < 0 || ref.Index >= len(q.Aggregations) {
				return nil, compileErr(ErrInvalidQuery, ref)
			}

			name = aggregationName(ref.Index, q.Aggregations[ref.Index])
		} else {
			var err error

			name, _, err = resolveColumn(state, term.Clause)
			if err != nil {
				return nil, err
			}
		}

		dir := 1
		if term.Dir == Desc {
			dir = -1
		}

		orderStage = append(orderStage, bson.E{Key: name, Value: dir})
	}

	pipeline := make([]bson.D, 0, 8)

	if stage := state.initialProjectStage(); stage != nil {
		pipeline = append(pipeline, bson.D{{Key: "$project", Value: stage}})
	}

	if stage := state.addFieldsStage(); stage != nil {
		pipeline = append(pipeline, bson.D{{Key: "$addFields", Value: stage}})
	}

	if matchDoc != nil {
		pipeline = append(pipeline, bson.D{{Key: "$match", Value: matchDoc}})
	}

	if hasGrouping {
		groupProjectStage, groupIDExpr := groupingProject(state, breakoutNames)
		pipeline = append(pipeline, bson.D{{Key: "$project", Value: groupProjectStage}})

		groupStage := bson.D{{Key: "_id", Value: groupIDExpr}}
		groupStage = append(groupStage, groupFields...)
		pipeline = append(pipeline, bson.D{{Key: "$group", Value: groupStage}})
	}

	if len(postFields) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$addFields", Value: bson.D(postFields)}})
	}

	// Grouped results have no inherent row order until $group collapses them, so
	// a stable tie-break on _id always precedes both the caller's own $sort (if
	// any) and the final projection that strips _id away.
	if hasGrouping {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}})
	}

	pipeline = append(pipeline, bson.D{{Key: "$project", Value: finalProject}})

	if len(orderStage) > 0 {
		pipeline = append(pipeline, bson.D{{Key: "$sort", Value: orderStage}})
	}

	if q.Page != nil {
		skip := (q.Page.Page - 1) * q.Page.Items
		if skip > 0 {
			pipeline = append(pipeline, bson.D{{Key: "$skip", Value: skip}})
		}

		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: q.Page.Items}})
	} else if q.Limit != nil {
		pipeline = append(pipeline, bson.D{{Key: "$limit", Value: *q.Limit}})
	}

	return &Result{
		Collection:  q.Table,
		Pipeline:    pipeline,
		Projections: projections,
		MBQL:        true,
		resultTypes: state.resultTypes,
	}, nil
}

// groupingProject builds the intermediate $project stage that bundles every
// breakout binding into a single "___group" subdocument (so $group._id can key
// on one field instead of a compound document built ad hoc) while carrying every
// other already-registered column through unprefixed, for the group's
// accumulators to reference by their existing names. It returns that stage body
// and the $group._id expression that reads it back ("$___group", or nil when
// there is no breakout to group by).
func groupingProject(state *compileState, breakoutNames []string) (bson.D, any) {
	names := make([]string, 0, len(state.resultTypes))
	for name := range state.resultTypes {
		names = append(names, name)
	}

	slices.Sort(names)

	stage := bson.D{{Key: "_id", Value: 0}}
	for _, name := range names {
		stage = append(stage, bson.E{Key: name, Value: RValue(name)})
	}

	if len(breakoutNames) == 0 {
		return stage, nil
	}

	group := bson.M{}
	for _, name := range breakoutNames {
		group[name] = RValue(name)
	}

	stage = append(stage, bson.E{Key: "___group", Value: group})

	return stage, RValue("___group")
}
