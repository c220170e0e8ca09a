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

import "fmt"

// Normalize rewrites c into negation normal form: every Not is pushed down past
// And/Or by De Morgan's laws, past Between by splitting the range, and absorbed
// into Comparison's operator or StringMatch's Negated flag, so the result
// contains no Not node at all. The filter translator relies on this to satisfy
// the target engine's prohibition on a top-level $not.
func Normalize(c Clause) (Clause, error) {
	switch v := c.(type) {
	case And:
		clauses, err := normalizeAll(v.Clauses)
		if err != nil {
			return nil, err
		}

		return And{Clauses: clauses}, nil

	case Or:
		clauses, err := normalizeAll(v.Clauses)
		if err != nil {
			return nil, err
		}

		return Or{Clauses: clauses}, nil

	case Not:
		inner, err := Normalize(v.Clause)
		if err != nil {
			return nil, err
		}

		return Negate(inner)

	default:
		return c, nil
	}
}

func normalizeAll(clauses []Clause) ([]Clause, error) {
	out := make([]Clause, len(clauses))

	for i, c := range clauses {
		n, err := Normalize(c)
		if err != nil {
			return nil, err
		}

		out[i] = n
	}

	return out, nil
}

// Negate returns the logical negation of c, itself free of Not. c must already be
// in negation normal form (as returned by Normalize); Negate re-normalizes only
// the double-negation case, since every other case it handles is already a leaf
// or was itself produced by a prior Normalize call.
func Negate(c Clause) (Clause, error) {
	switch v := c.(type) {
	case Comparison:
		return Comparison{Op: v.Op.negated(), Field: v.Field, Arg: v.Arg}, nil

	case Between:
		return Or{Clauses: []Clause{
			Comparison{Op: OpLt, Field: v.Field, Arg: v.Lower},
			Comparison{Op: OpGt, Field: v.Field, Arg: v.Upper},
		}}, nil

	case StringMatch:
		v.Negated = !v.Negated
		return v, nil

	case And:
		negated, err := negateAll(v.Clauses)
		if err != nil {
			return nil, err
		}

		return Or{Clauses: negated}, nil

	case Or:
		negated, err := negateAll(v.Clauses)
		if err != nil {
			return nil, err
		}

		return And{Clauses: negated}, nil

	case Not:
		return Normalize(v.Clause)

	default:
		return nil, fmt.Errorf("%w: cannot negate %s", ErrInvalidQuery, c.clauseTag())
	}
}

func negateAll(clauses []Clause) ([]Clause, error) {
	out := make([]Clause, len(clauses))

	for i, c := range clauses {
		n, err := Negate(c)
		if err != nil {
			return nil, err
		}

		out[i] = n
	}

	return out, nil
}
