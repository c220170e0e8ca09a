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
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// compareQueryOps maps a CompareOp to its query-language operator, for use inside
// a $match stage against already-materialized fields.
var compareQueryOps = map[CompareOp]string{
	OpEq: "$eq", OpNe: "$ne", OpLt: "$lt", OpGt: "$gt", OpLe: "$lte", OpGe: "$gte",
}

// compileFilter translates a top-level filter clause into the body of a $match
// stage. It normalizes away every Not first, since the target engine forbids a
// top-level $not and this is the only translator that ever emits one.
func compileFilter(state *compileState, c Clause) (bson.M, error) {
	n, err := Normalize(c)
	if err != nil {
		return nil, err
	}

	return compileFilterNode(state, n)
}

func compileFilterNode(state *compileState, c Clause) (bson.M, error) {
	switch v := c.(type) {
	case And:
		return compileFilterBoolOp(state, "$and", v.Clauses)

	case Or:
		return compileFilterBoolOp(state, "$or", v.Clauses)

	case Comparison:
		// A comparison against another field (rather than a literal) cannot be
		// expressed as a query-style operator document; fall back to $expr.
		if isFieldValued(v.Arg) {
			expr, err := compileCondition(state, c)
			if err != nil {
				return nil, err
			}

			return bson.M{"$expr": expr}, nil
		}

		name, _, err := resolveColumn(state, v.Field)
		if err != nil {
			return nil, err
		}

		arg, err := compileValueExpr(state, v.Arg)
		if err != nil {
			return nil, err
		}

		op, ok := compareQueryOps[v.Op]
		if !ok {
			return nil, compileErr(ErrInvalidQuery, c)
		}

		return bson.M{name: bson.M{op: arg}}, nil

	case Between:
		name, _, err := resolveColumn(state, v.Field)
		if err != nil {
			return nil, err
		}

		lower, err := compileValueExpr(state, v.Lower)
		if err != nil {
			return nil, err
		}

		upper, err := compileValueExpr(state, v.Upper)
		if err != nil {
			return nil, err
		}

		return bson.M{name: bson.M{"$gte": lower, "$lte": upper}}, nil

	case StringMatch:
		return compileFilterStringMatch(state, v)

	default:
		return nil, compileErr(ErrInvalidQuery, c)
	}
}

func compileFilterBoolOp(state *compileState, op string, clauses []Clause) (bson.M, error) {
	sub := make(bson.A, 0, len(clauses))

	for _, c := range clauses {
		m, err := compileFilterNode(state, c)
		if err != nil {
			return nil, err
		}

		sub = append(sub, m)
	}

	return bson.M{op: sub}, nil
}

func compileFilterStringMatch(state *compileState, v StringMatch) (bson.M, error) {
	name, _, err := resolveColumn(state, v.Field)
	if err != nil {
		return nil, err
	}

	patternArg, err := compileValueExpr(state, v.Pattern)
	if err != nil {
		return nil, err
	}

	regex := matchPattern(v.Op, patternArg)
	options := matchOptions(v.CaseSensitive)

	// $not only accepts a regex value in operator position, never a {$regex,
	// $options} operator document, so the negated case builds a primitive.Regex
	// directly instead of reusing the non-negated operator document below.
	if v.Negated {
		return bson.M{name: bson.M{"$not": primitive.Regex{Pattern: regex, Options: options}}}, nil
	}

	return bson.M{name: bson.M{"$regex": regex, "$options": options}}, nil
}

func isFieldValued(c Clause) bool {
	switch c.(type) {
	case FieldRef, FieldLiteral, DatetimeField:
		return true
	default:
		return false
	}
}
