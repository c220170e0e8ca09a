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
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"golang.org/x/exp/slices"
)

// compileState is threaded explicitly through every translator call instead of
// living in a package-level or goroutine-local variable, so that compiling two
// queries concurrently on the same resolver never cross-contaminates state.
type compileState struct {
	resolver FieldResolver
	clock    func() time.Time

	// rawPaths collects every original dotted source path a clause referenced
	// directly, keyed by its flat destination name, so the assembler can build
	// the single initial $project that flattens them all.
	rawPaths map[string]string

	// computed collects $addFields entries for bucketed and derived columns,
	// in first-use order, keyed by name to de-duplicate repeated references to
	// the same bucketing of the same field.
	computed   []bson.E
	computedAt map[string]bool

	// resultTypes records the effective type of every column the pipeline will
	// produce, for the post-processor's date-envelope decision.
	resultTypes map[string]Type
}

func newCompileState(resolver FieldResolver, clock func() time.Time) *compileState {
	return &compileState{
		resolver:    resolver,
		clock:       clock,
		rawPaths:    make(map[string]string),
		computedAt:  make(map[string]bool),
		resultTypes: make(map[string]Type),
	}
}

// registerRaw records that path must be copied into the flat destination name at
// the pipeline's initial $project stage, and returns that name.
func (s *compileState) registerRaw(path string, t Type) string {
	name := LValue(path)
	s.rawPaths[name] = path
	s.resultTypes[name] = t

	return name
}

// registerComputed records an $addFields entry computing expr under name, unless
// one was already registered under the same name, and returns name.
func (s *compileState) registerComputed(name string, expr any, t Type) string {
	if !s.computedAt[name] {
		s.computed = append(s.computed, bson.E{Key: name, Value: expr})
		s.computedAt[name] = true
	}

	s.resultTypes[name] = t

	return name
}

// initialProjectStage returns the body of the $project stage flattening every
// raw path this compile referenced, or nil if none were. The caller wraps it
// under a "$project" key.
func (s *compileState) initialProjectStage() bson.D {
	if len(s.rawPaths) == 0 {
		return nil
	}

	names := make([]string, 0, len(s.rawPaths))
	for name := range s.rawPaths {
		names = append(names, name)
	}

	slices.Sort(names)

	doc := bson.D{{Key: "_id", Value: 0}}
	for _, name := range names {
		doc = append(doc, bson.E{Key: name, Value: InitialRValue(s.rawPaths[name])})
	}

	return doc
}

// addFieldsStage returns the $addFields stage for every computed column this
// compile registered, or nil if none were.
func (s *compileState) addFieldsStage() bson.D {
	if len(s.computed) == 0 {
		return nil
	}

	return bson.D(s.computed)
}
