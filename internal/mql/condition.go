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
	"regexp"

	"go.mongodb.org/mongo-driver/bson"
)

// compareExprOps maps a CompareOp to its aggregation-expression-language operator,
// as opposed to the query-language operator filter.go uses.
var compareExprOps = map[CompareOp]string{
	OpEq: "$eq", OpNe: "$ne", OpLt: "$lt", OpGt: "$gt", OpLe: "$lte", OpGe: "$gte",
}

// compileCondition translates a boolean clause into the $expr-style aggregation
// expression language, for use inside a $cond inside a $group accumulator (the
// aggregation expander's sum-where, count-where and share need a predicate they
// can evaluate per document, which query-style $match syntax cannot do).
func compileCondition(state *compileState, c Clause) (any, error) {
	c, err := Normalize(c)
	if err != nil {
		return nil, err
	}

	switch v := c.(type) {
	case And:
		return compileBoolOp(state, "$and", v.Clauses)

	case Or:
		return compileBoolOp(state, "$or", v.Clauses)

	case Comparison:
		field, err := compileValueExpr(state, v.Field)
		if err != nil {
			return nil, err
		}

		arg, err := compileValueExpr(state, v.Arg)
		if err != nil {
			return nil, err
		}

		op, ok := compareExprOps[v.Op]
		if !ok {
			return nil, compileErr(ErrInvalidQuery, c)
		}

		return bson.M{op: bson.A{field, arg}}, nil

	case Between:
		field, err := compileValueExpr(state, v.Field)
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

		return bson.M{"$and": bson.A{
			bson.M{"$gte": bson.A{field, lower}},
			bson.M{"$lte": bson.A{field, upper}},
		}}, nil

	case StringMatch:
		return compileStringMatchExpr(state, v)

	default:
		return nil, compileErr(ErrInvalidQuery, c)
	}
}

func compileBoolOp(state *compileState, op string, clauses []Clause) (any, error) {
	exprs := make(bson.A, 0, len(clauses))

	for _, sub := range clauses {
		e, err := compileCondition(state, sub)
		if err != nil {
			return nil, err
		}

		exprs = append(exprs, e)
	}

	return bson.M{op: exprs}, nil
}

// compileValueExpr compiles any clause (field or literal) into an aggregation
// expression-language operand: "$name" for a field, or the literal value itself.
func compileValueExpr(state *compileState, c Clause) (any, error) {
	switch v := c.(type) {
	case FieldRef, FieldLiteral, DatetimeField:
		name, _, err := resolveColumn(state, c)
		if err != nil {
			return nil, err
		}

		return RValue(name), nil

	case Value:
		return v.Val, nil

	case AbsoluteDatetime:
		return AbsoluteDatetimeValue(v)

	case RelativeDatetime:
		abs, err := NormalizeRelativeDatetime(v, state.clock())
		if err != nil {
			return nil, compileErr(err, c)
		}

		return AbsoluteDatetimeValue(abs)

	case AggregationRef:
		return nil, compileErr(ErrInvalidQuery, c)

	default:
		return nil, compileErr(ErrInvalidQuery, c)
	}
}

// compileStringMatchExpr translates a contains/starts-with/ends-with predicate
// into $indexOfCP/$substrCP arithmetic rather than $regexMatch, which the target
// engine never implements. Case-insensitivity is handled by lower-casing both
// operands up front instead of a regex option.
func compileStringMatchExpr(state *compileState, v StringMatch) (any, error) {
	field, err := compileValueExpr(state, v.Field)
	if err != nil {
		return nil, err
	}

	needle, err := compileValueExpr(state, v.Pattern)
	if err != nil {
		return nil, err
	}

	input, pattern := field, needle
	if !v.CaseSensitive {
		input = bson.M{"$toLower": field}
		pattern = bson.M{"$toLower": needle}
	}

	var expr bson.M

	switch v.Op {
	case MatchStartsWith:
		expr = bson.M{"$eq": bson.A{bson.M{"$indexOfCP": bson.A{input, pattern}}, 0}}

	case MatchEndsWith:
		length := bson.M{"$strLenCP": pattern}
		start := bson.M{"$subtract": bson.A{bson.M{"$strLenCP": input}, length}}
		expr = bson.M{"$eq": bson.A{bson.M{"$substrCP": bson.A{input, start, length}}, pattern}}

	default: // MatchContains
		expr = bson.M{"$gte": bson.A{bson.M{"$indexOfCP": bson.A{input, pattern}}, 0}}
	}

	if v.Negated {
		return bson.M{"$not": expr}, nil
	}

	return expr, nil
}

func matchOptions(caseSensitive bool) string {
	if caseSensitive {
		return ""
	}

	return "i"
}

// matchPattern renders a literal contains/starts-with/ends-with match as a regex,
// escaping every regex metacharacter in the literal pattern itself.
func matchPattern(op MatchOp, pattern any) string {
	s, ok := pattern.(string)
	if !ok {
		return ""
	}

	escaped := regexp.QuoteMeta(s)

	switch op {
	case MatchStartsWith:
		return "^" + escaped
	case MatchEndsWith:
		return escaped + "$"
	default:
		return escaped
	}
}
