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

	"go.mongodb.org/mongo-driver/bson"
)

// aggregationName returns the destination column name for the index-th top-level
// aggregation: the caller-supplied name if one was given via aggregation-options,
// otherwise a name generated purely from its position, so the same query compiles
// to the same names every time regardless of process or goroutine.
func aggregationName(index int, agg Aggregation) string {
	if agg.Name != "" {
		return EscapeName(agg.Name)
	}

	return fmt.Sprintf("%s_%d", string(agg.Op), index)
}

// compiledAggregation is what the pipeline assembler needs from one top-level
// aggregation clause: the $group accumulator entry, any additional $addFields
// entries needed once the group is materialized (distinct's cardinality, share's
// ratio), and the column's result type for the post-processor.
type compiledAggregation struct {
	groupFields []bson.E
	post        []bson.E
	resultType  Type
}

// compileAggregation expands one top-level aggregation into its group-stage
// accumulator and any follow-on expressions.
func compileAggregation(state *compileState, index int, agg Aggregation) (compiledAggregation, error) {
	name := aggregationName(index, agg)

	switch agg.Op {
	case AggCount:
		return compiledAggregation{
			groupFields: []bson.E{{Key: name, Value: bson.M{"$sum": 1}}},
			resultType:  TypeInteger,
		}, nil

	case AggCountArg:
		arg, err := compileValueExpr(state, agg.Arg)
		if err != nil {
			return compiledAggregation{}, err
		}

		cond := bson.M{"$cond": bson.M{"if": arg, "then": 1, "else": 0}}

		return compiledAggregation{
			groupFields: []bson.E{{Key: name, Value: bson.M{"$sum": cond}}},
			resultType:  TypeInteger,
		}, nil

	case AggAvg, AggSum, AggMin, AggMax:
		arg, err := compileValueExpr(state, agg.Arg)
		if err != nil {
			return compiledAggregation{}, err
		}

		op := map[AggOp]string{AggAvg: "$avg", AggSum: "$sum", AggMin: "$min", AggMax: "$max"}[agg.Op]

		return compiledAggregation{
			groupFields: []bson.E{{Key: name, Value: bson.M{op: arg}}},
			resultType:  TypeFloat,
		}, nil

	case AggDistinct:
		arg, err := compileValueExpr(state, agg.Arg)
		if err != nil {
			return compiledAggregation{}, err
		}

		// The original implementation this compiler generalizes hard-coded the
		// reducer reference for distinct counts to "$count", which silently
		// produced the wrong cardinality whenever a query used more than one
		// aggregation. Computing the set's own size here fixes that.
		setName := name + "__set"

		return compiledAggregation{
			groupFields: []bson.E{{Key: setName, Value: bson.M{"$addToSet": arg}}},
			post:        []bson.E{{Key: name, Value: bson.M{"$size": RValue(setName)}}},
			resultType:  TypeInteger,
		}, nil

	case AggSumWhere:
		arg, err := compileValueExpr(state, agg.Arg)
		if err != nil {
			return compiledAggregation{}, err
		}

		pred, err := compileCondition(state, agg.Pred)
		if err != nil {
			return compiledAggregation{}, err
		}

		cond := bson.M{"$cond": bson.M{"if": pred, "then": arg, "else": 0}}

		return compiledAggregation{
			groupFields: []bson.E{{Key: name, Value: bson.M{"$sum": cond}}},
			resultType:  TypeFloat,
		}, nil

	case AggCountWhere:
		pred, err := compileCondition(state, agg.Pred)
		if err != nil {
			return compiledAggregation{}, err
		}

		cond := bson.M{"$cond": bson.M{"if": pred, "then": 1, "else": 0}}

		return compiledAggregation{
			groupFields: []bson.E{{Key: name, Value: bson.M{"$sum": cond}}},
			resultType:  TypeInteger,
		}, nil

	case AggShare:
		pred, err := compileCondition(state, agg.Pred)
		if err != nil {
			return compiledAggregation{}, err
		}

		matchedName, totalName := name+"__matched", name+"__total"
		matchedCond := bson.M{"$cond": bson.M{"if": pred, "then": 1, "else": 0}}

		return compiledAggregation{
			groupFields: []bson.E{
				{Key: matchedName, Value: bson.M{"$sum": matchedCond}},
				{Key: totalName, Value: bson.M{"$sum": 1}},
			},
			post:       []bson.E{{Key: name, Value: bson.M{"$divide": bson.A{RValue(matchedName), RValue(totalName)}}}},
			resultType: TypeFloat,
		}, nil

	default:
		return compiledAggregation{}, compileErr(fmt.Errorf("%w: unknown aggregation op %s", ErrInvalidQuery, agg.Op), nil)
	}
}
