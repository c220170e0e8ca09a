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

	"github.com/ferretql/aggql/internal/util/lazyerrors"
)

// resolveColumn compiles a field-valued clause (FieldRef, FieldLiteral, or
// DatetimeField wrapping either) down to the flat destination name the rest of
// the pipeline must reference it by, registering whatever $project/$addFields
// entry is needed to make that name exist. It is the one place every translator
// goes through to turn a clause into a column name, so name escaping and
// temporal bucketing happen exactly once per distinct (field, unit) pair.
func resolveColumn(state *compileState, c Clause) (name string, t Type, err error) {
	switch v := c.(type) {
	case FieldRef:
		f, err := state.resolver.Resolve(v.ID)
		if err != nil {
			return "", "", lazyerrors.Error(err)
		}

		path, err := DottedPath(state.resolver, f)
		if err != nil {
			return "", "", lazyerrors.Error(err)
		}

		return state.registerRaw(path, f.EffectiveType()), f.EffectiveType(), nil

	case FieldLiteral:
		return state.registerRaw(v.Name, TypeText), TypeText, nil

	case DatetimeField:
		baseName, baseType, err := resolveColumn(state, v.Field)
		if err != nil {
			return "", "", err
		}

		expr, resultType, err := BucketExpr(RValue(baseName), baseType, v.Unit)
		if err != nil {
			return "", "", compileErr(err, c)
		}

		name := BucketedLValue(dottedPathOf(v.Field, baseName), v.Unit)

		return state.registerComputed(name, expr, resultType), resultType, nil

	default:
		return "", "", compileErr(fmt.Errorf("%w: not a field-valued clause", ErrInvalidQuery), c)
	}
}

// dottedPathOf recovers the dotted path a resolved field clause named flatName
// was registered under, so a bucketed column can be named consistently with its
// base column's own escaping.
func dottedPathOf(_ Clause, flatName string) string {
	base, _, _ := SplitBucketedName(flatName)
	return base
}
