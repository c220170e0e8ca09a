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
	"errors"
	"fmt"

	"golang.org/x/exp/slices"

	"github.com/ferretql/aggql/internal/util/lazyerrors"
)

// Sentinel error kinds. Callers should use [errors.Is] against these, never string
// matching on [error.Error].
var (
	// ErrUnknownClause means a clause tag appeared that no dispatcher handles.
	ErrUnknownClause = errors.New("unknown clause")

	// ErrInvalidQuery means a clause tag is legal but its shape is not (e.g. an
	// aggregation the expander cannot decompose).
	ErrInvalidQuery = errors.New("invalid query")

	// ErrUnsupportedUnit means a temporal unit outside the closed enum was requested.
	ErrUnsupportedUnit = errors.New("unsupported temporal unit")

	// ErrFieldResolution means the resolver returned nothing for a field id.
	ErrFieldResolution = errors.New("field resolution failure")

	// ErrUnexpectedColumns means the result checker found row keys the compiler's own
	// projections list did not predict. It indicates a compiler bug, never user error.
	ErrUnexpectedColumns = errors.New("unexpected columns in result")

	// ErrPipelineSchema means an emitted stage violates the one-key-per-stage
	// invariant. It indicates a compiler bug, never user error.
	ErrPipelineSchema = errors.New("pipeline schema violation")
)

// CompileError wraps a compile-time failure with the offending clause for diagnosis.
type CompileError struct {
	Err    error
	Clause Clause
}

// Error implements [error].
func (e *CompileError) Error() string {
	if e.Clause == nil {
		return e.Err.Error()
	}

	return fmt.Sprintf("%s: %s", e.Err.Error(), describeClause(e.Clause))
}

// Unwrap implements errors.Unwrap.
func (e *CompileError) Unwrap() error {
	return e.Err
}

// compileErr builds a *CompileError wrapping kind, annotated with the clause that
// triggered it. kind is run through lazyerrors first so every compile failure
// carries the call site that raised it.
func compileErr(kind error, clause Clause) error {
	return &CompileError{Err: lazyerrors.Error(kind), Clause: clause}
}

// describeClause renders a short human-readable tag for error messages.
func describeClause(c Clause) string {
	if c == nil {
		return "<nil>"
	}

	return fmt.Sprintf("%s clause", c.clauseTag())
}

// ResultError wraps a post-processing failure.
type ResultError struct {
	Err     error
	Columns []string
}

// Error implements [error].
func (e *ResultError) Error() string {
	if len(e.Columns) == 0 {
		return e.Err.Error()
	}

	cols := append([]string(nil), e.Columns...)
	slices.Sort(cols)

	return fmt.Sprintf("%s: %v", e.Err.Error(), cols)
}

// Unwrap implements errors.Unwrap.
func (e *ResultError) Unwrap() error {
	return e.Err
}

// check interfaces
var (
	_ error = (*CompileError)(nil)
	_ error = (*ResultError)(nil)
)
