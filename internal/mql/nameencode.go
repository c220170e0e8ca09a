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

import "strings"

// The target engine's $group stage cannot produce a result field whose name
// contains a dot, and a $sort/$project key containing a dot addresses a nested
// subdocument rather than naming a flat column. The name encoder works around
// both restrictions by flattening every dotted source path into a single
// identifier before it is ever used as a destination key, and by tagging a
// bucketed column with its unit so two different bucketings of the same source
// field never collide.
const (
	pathSep   = "___"
	bucketSep = "~~~"

	// dateEnvelopeKey is the sole key of the single-key document a bucketed date
	// value travels in while it is a string (the engine's $dateToString output),
	// so the post-processor can tell a bucketed date apart from a plain string
	// column and decode it back to a date value.
	dateEnvelopeKey = "___date"
)

// EscapeName flattens a dotted source path into a single identifier safe to use
// as a $group/$project/$addFields destination key, e.g. "a.b.c" -> "a___b___c".
func EscapeName(path string) string {
	return strings.ReplaceAll(path, ".", pathSep)
}

// UnescapeName reverses [EscapeName].
func UnescapeName(flat string) string {
	return strings.ReplaceAll(flat, pathSep, ".")
}

// BucketSuffix returns the suffix tagging a column bucketed by unit, or "" for
// UnitDefault, which names the same column as the unbucketed field.
func BucketSuffix(unit TemporalUnit) string {
	if unit == UnitDefault || unit == "" {
		return ""
	}

	return bucketSep + string(unit)
}

// LValue returns the destination key for a plain (non-temporal) field at path.
func LValue(path string) string {
	return EscapeName(path)
}

// BucketedLValue returns the destination key for path bucketed by unit.
func BucketedLValue(path string, unit TemporalUnit) string {
	return EscapeName(path) + BucketSuffix(unit)
}

// SplitBucketedName splits a flat destination key back into its source path and
// unit. ok is false if name carries no bucket suffix, in which case base is name
// unescaped and unit is UnitDefault.
func SplitBucketedName(name string) (base string, unit TemporalUnit, ok bool) {
	idx := strings.LastIndex(name, bucketSep)
	if idx < 0 {
		return UnescapeName(name), UnitDefault, false
	}

	return UnescapeName(name[:idx]), TemporalUnit(name[idx+len(bucketSep):]), true
}

// InitialRValue returns a "$field" reference to path as it exists in the source
// documents, for use only in the very first stage that reads from the
// collection, before any flattening has happened.
func InitialRValue(path string) string {
	return "$" + path
}

// RValue returns a "$field" reference to an already-flattened destination key
// produced by an earlier stage in the same pipeline.
func RValue(name string) string {
	return "$" + name
}
