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
	"fmt"
	"time"
)

// DecodeQuery parses the JSON wire encoding of a Query AST.
//
// A clause is encoded either as a bare JSON scalar (a literal value) or as a JSON
// array whose first element is a string tag and whose remaining elements are its
// operands, e.g. ["field-id", 7] or ["between", ["field-id", 1], 10, 20].
func DecodeQuery(data []byte) (*Query, error) {
	var raw struct {
		Table       string            `json:"table"`
		Fields      []json.RawMessage `json:"fields"`
		Filter      json.RawMessage   `json:"filter"`
		Breakout    []json.RawMessage `json:"breakout"`
		Aggregation []json.RawMessage `json:"aggregation"`
		OrderBy     []json.RawMessage `json:"order-by"`
		Limit       *int              `json:"limit"`
		Page        *Page             `json:"page"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
	}

	q := &Query{Table: raw.Table, Limit: raw.Limit, Page: raw.Page}

	for _, rm := range raw.Fields {
		c, err := decodeClauseRaw(rm)
		if err != nil {
			return nil, err
		}

		q.Fields = append(q.Fields, c)
	}

	for _, rm := range raw.Breakout {
		c, err := decodeClauseRaw(rm)
		if err != nil {
			return nil, err
		}

		q.Breakout = append(q.Breakout, c)
	}

	if len(raw.Filter) > 0 {
		c, err := decodeClauseRaw(raw.Filter)
		if err != nil {
			return nil, err
		}

		q.Filter = c
	}

	for _, rm := range raw.Aggregation {
		var any any
		if err := json.Unmarshal(rm, &any); err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
		}

		agg, err := parseAggregation(any)
		if err != nil {
			return nil, err
		}

		q.Aggregations = append(q.Aggregations, agg)
	}

	for _, rm := range raw.OrderBy {
		var pair []json.RawMessage
		if err := json.Unmarshal(rm, &pair); err != nil || len(pair) != 2 {
			return nil, fmt.Errorf("%w: order-by term must be [clause, \"asc\"|\"desc\"]", ErrInvalidQuery)
		}

		c, err := decodeClauseRaw(pair[0])
		if err != nil {
			return nil, err
		}

		var dirStr string
		if err := json.Unmarshal(pair[1], &dirStr); err != nil {
			return nil, fmt.Errorf("%w: order-by direction must be a string", ErrInvalidQuery)
		}

		dir := Asc
		if dirStr == "desc" {
			dir = Desc
		}

		q.OrderBy = append(q.OrderBy, OrderTerm{Clause: c, Dir: dir})
	}

	return q, nil
}

// decodeClauseRaw unmarshals raw JSON into the generic any representation, then
// parses it into a Clause.
func decodeClauseRaw(data json.RawMessage) (Clause, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
	}

	return parseClause(v)
}

// parseClause turns the generic JSON representation of a clause into a Clause.
func parseClause(v any) (Clause, error) {
	arr, ok := v.([]any)
	if !ok {
		// A bare scalar is a literal value.
		return Value{Val: v}, nil
	}

	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: empty clause", ErrInvalidQuery)
	}

	tag, ok := arr[0].(string)
	if !ok {
		return nil, fmt.Errorf("%w: clause tag must be a string", ErrInvalidQuery)
	}

	args := arr[1:]

	switch tag {
	case "field-id":
		id, err := asInt(args, 0)
		if err != nil {
			return nil, err
		}

		return FieldRef{ID: FieldID(id)}, nil

	case "field-literal":
		name, err := asString(args, 0)
		if err != nil {
			return nil, err
		}

		return FieldLiteral{Name: name}, nil

	case "datetime-field":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: datetime-field takes 2 arguments", ErrInvalidQuery)
		}

		inner, err := parseClause(args[0])
		if err != nil {
			return nil, err
		}

		unitStr, err := asString(args, 1)
		if err != nil {
			return nil, err
		}

		unit, err := ParseTemporalUnit(unitStr)
		if err != nil {
			return nil, err
		}

		return DatetimeField{Field: inner, Unit: unit}, nil

	case "aggregation":
		idx, err := asInt(args, 0)
		if err != nil {
			return nil, err
		}

		return AggregationRef{Index: int(idx)}, nil

	case "value":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: value takes 1 argument", ErrInvalidQuery)
		}

		return Value{Val: args[0]}, nil

	case "absolute-datetime":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: absolute-datetime takes 2 arguments", ErrInvalidQuery)
		}

		tsStr, err := asString(args, 0)
		if err != nil {
			return nil, err
		}

		t, err := parseTimestamp(tsStr)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
		}

		unitStr, err := asString(args, 1)
		if err != nil {
			return nil, err
		}

		unit, err := ParseTemporalUnit(unitStr)
		if err != nil {
			return nil, err
		}

		return AbsoluteDatetime{Time: t, Unit: unit}, nil

	case "relative-datetime":
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: relative-datetime takes 2 arguments", ErrInvalidQuery)
		}

		amount, err := asInt(args, 0)
		if err != nil {
			return nil, err
		}

		unitStr, err := asString(args, 1)
		if err != nil {
			return nil, err
		}

		unit, err := ParseTemporalUnit(unitStr)
		if err != nil {
			return nil, err
		}

		return RelativeDatetime{Amount: int(amount), Unit: unit}, nil

	case string(OpEq), string(OpNe), string(OpLt), string(OpGt), string(OpLe), string(OpGe):
		if len(args) != 2 {
			return nil, fmt.Errorf("%w: %s takes 2 arguments", ErrInvalidQuery, tag)
		}

		field, err := parseClause(args[0])
		if err != nil {
			return nil, err
		}

		arg, err := parseClause(args[1])
		if err != nil {
			return nil, err
		}

		return Comparison{Op: CompareOp(tag), Field: field, Arg: arg}, nil

	case "between":
		if len(args) != 3 {
			return nil, fmt.Errorf("%w: between takes 3 arguments", ErrInvalidQuery)
		}

		field, err := parseClause(args[0])
		if err != nil {
			return nil, err
		}

		lower, err := parseClause(args[1])
		if err != nil {
			return nil, err
		}

		upper, err := parseClause(args[2])
		if err != nil {
			return nil, err
		}

		return Between{Field: field, Lower: lower, Upper: upper}, nil

	case string(MatchContains), string(MatchStartsWith), string(MatchEndsWith):
		if len(args) < 2 {
			return nil, fmt.Errorf("%w: %s takes at least 2 arguments", ErrInvalidQuery, tag)
		}

		field, err := parseClause(args[0])
		if err != nil {
			return nil, err
		}

		pattern, err := parseClause(args[1])
		if err != nil {
			return nil, err
		}

		caseSensitive := true

		if len(args) == 3 {
			opts, ok := args[2].(map[string]any)
			if !ok {
				return nil, fmt.Errorf("%w: %s options must be an object", ErrInvalidQuery, tag)
			}

			if cs, ok := opts["case-sensitive"].(bool); ok {
				caseSensitive = cs
			}
		}

		return StringMatch{Op: MatchOp(tag), Field: field, Pattern: pattern, CaseSensitive: caseSensitive}, nil

	case "and":
		clauses, err := parseClauseList(args)
		if err != nil {
			return nil, err
		}

		return And{Clauses: clauses}, nil

	case "or":
		clauses, err := parseClauseList(args)
		if err != nil {
			return nil, err
		}

		return Or{Clauses: clauses}, nil

	case "not":
		if len(args) != 1 {
			return nil, fmt.Errorf("%w: not takes 1 argument", ErrInvalidQuery)
		}

		inner, err := parseClause(args[0])
		if err != nil {
			return nil, err
		}

		return Not{Clause: inner}, nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownClause, tag)
	}
}

func parseClauseList(args []any) ([]Clause, error) {
	clauses := make([]Clause, 0, len(args))

	for _, a := range args {
		c, err := parseClause(a)
		if err != nil {
			return nil, err
		}

		clauses = append(clauses, c)
	}

	return clauses, nil
}

// parseAggregation parses one entry of the top-level "aggregation" list.
func parseAggregation(v any) (Aggregation, error) {
	arr, ok := v.([]any)
	if !ok || len(arr) == 0 {
		return Aggregation{}, fmt.Errorf("%w: aggregation clause must be a non-empty array", ErrInvalidQuery)
	}

	tag, ok := arr[0].(string)
	if !ok {
		return Aggregation{}, fmt.Errorf("%w: aggregation tag must be a string", ErrInvalidQuery)
	}

	args := arr[1:]

	if tag == "aggregation-options" {
		if len(args) != 2 {
			return Aggregation{}, fmt.Errorf("%w: aggregation-options takes 2 arguments", ErrInvalidQuery)
		}

		agg, err := parseAggregation(args[0])
		if err != nil {
			return Aggregation{}, err
		}

		opts, ok := args[1].(map[string]any)
		if !ok {
			return Aggregation{}, fmt.Errorf("%w: aggregation-options options must be an object", ErrInvalidQuery)
		}

		if name, ok := opts["name"].(string); ok {
			agg.Name = name
		}

		return agg, nil
	}

	switch AggOp(tag) {
	case AggCount:
		switch len(args) {
		case 0:
			return Aggregation{Op: AggCount}, nil
		case 1:
			arg, err := parseClause(args[0])
			if err != nil {
				return Aggregation{}, err
			}

			return Aggregation{Op: AggCountArg, Arg: arg}, nil
		default:
			return Aggregation{}, fmt.Errorf("%w: count takes 0 or 1 arguments", ErrInvalidQuery)
		}

	case AggAvg, AggDistinct, AggSum, AggMin, AggMax:
		if len(args) != 1 {
			return Aggregation{}, fmt.Errorf("%w: %s takes 1 argument", ErrInvalidQuery, tag)
		}

		arg, err := parseClause(args[0])
		if err != nil {
			return Aggregation{}, err
		}

		return Aggregation{Op: AggOp(tag), Arg: arg}, nil

	case AggSumWhere:
		if len(args) != 2 {
			return Aggregation{}, fmt.Errorf("%w: sum-where takes 2 arguments", ErrInvalidQuery)
		}

		arg, err := parseClause(args[0])
		if err != nil {
			return Aggregation{}, err
		}

		pred, err := parseClause(args[1])
		if err != nil {
			return Aggregation{}, err
		}

		return Aggregation{Op: AggSumWhere, Arg: arg, Pred: pred}, nil

	case AggCountWhere, AggShare:
		if len(args) != 1 {
			return Aggregation{}, fmt.Errorf("%w: %s takes 1 argument", ErrInvalidQuery, tag)
		}

		pred, err := parseClause(args[0])
		if err != nil {
			return Aggregation{}, err
		}

		return Aggregation{Op: AggOp(tag), Pred: pred}, nil

	default:
		return Aggregation{}, fmt.Errorf("%w: %s", ErrUnknownClause, tag)
	}
}

func asInt(args []any, i int) (int64, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("%w: missing argument %d", ErrInvalidQuery, i)
	}

	switch v := args[i].(type) {
	case float64:
		return int64(v), nil
	case int:
		return int64(v), nil
	case int64:
		return v, nil
	default:
		return 0, fmt.Errorf("%w: argument %d must be a number", ErrInvalidQuery, i)
	}
}

func asString(args []any, i int) (string, error) {
	if i >= len(args) {
		return "", fmt.Errorf("%w: missing argument %d", ErrInvalidQuery, i)
	}

	s, ok := args[i].(string)
	if !ok {
		return "", fmt.Errorf("%w: argument %d must be a string", ErrInvalidQuery, i)
	}

	return s, nil
}

// parseTimestamp parses a date or date-time literal using the formats this
// compiler's own temporal synthesizer can produce, so absolute-datetime literals
// round-trip against bucketed fields.
func parseTimestamp(s string) (time.Time, error) {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02T15:04",
		"2006-01-02",
		"2006-01",
	}

	for _, layout := range layouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp %q", s)
}
