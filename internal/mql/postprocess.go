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

// outputKey turns a pipeline's internal flat destination name back into the name
// a caller should see: the original dotted source path, with any "~~~<unit>"
// bucket suffix stripped. Two columns bucketing the same source field therefore
// map to the same output key.
func outputKey(name string) string {
	base, _, _ := SplitBucketedName(name)
	return base
}

// unwrapDateEnvelope inverts [BucketExpr]'s {___date: …} wrapping on a single
// result value, returning it unchanged if it is not a date envelope.
func unwrapDateEnvelope(val any) (any, error) {
	m, ok := val.(bson.M)
	if !ok || len(m) != 1 {
		return val, nil
	}

	s, ok := m[dateEnvelopeKey].(string)
	if !ok {
		return val, nil
	}

	t, err := parseTimestamp(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
	}

	return t, nil
}

// PostProcess inverts the compiler's own name escaping and date-envelope wrapping
// on every row the driver returned for result. It is the one place a caller
// should look to understand what a returned row's keys mean; nothing about
// encoding survives into application code beyond here.
func PostProcess(result *Result, rows []bson.M) ([]map[string]any, error) {
	projected := make(map[string]bool, len(result.Projections))
	for _, name := range result.Projections {
		projected[name] = true
	}

	out := make([]map[string]any, 0, len(rows))

	for _, row := range rows {
		// The unexpected-column check only makes sense for an MBQL-originated
		// compile, where Projections is a complete prediction of every column the
		// pipeline can produce. A raw constructor-only query has no such
		// prediction to check against.
		if result.MBQL {
			var unexpected []string

			for name := range row {
				if !projected[name] {
					unexpected = append(unexpected, name)
				}
			}

			if len(unexpected) > 0 {
				return nil, &ResultError{Err: ErrUnexpectedColumns, Columns: unexpected}
			}
		}

		decoded := make(map[string]any, len(row))

		for name, val := range row {
			d, err := unwrapDateEnvelope(val)
			if err != nil {
				return nil, err
			}

			decoded[outputKey(name)] = d
		}

		out = append(out, decoded)
	}

	return out, nil
}
