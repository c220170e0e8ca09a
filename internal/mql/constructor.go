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
	"regexp"
	"strconv"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// constructorCall matches a bare BSON-constructor call embedded in otherwise
// plain JSON, e.g. ISODate("2024-01-01T00:00:00Z") or NumberLong(42), as well as
// a zero-argument call like Date(). These are not legal JSON on their own;
// DecodeConstructors rewrites this textual form into a tagged-object form the
// standard json package can parse, and EncodeConstructors renders time and
// ObjectID values back into it.
var constructorCall = regexp.MustCompile(`(ISODate|ObjectId|Date|NumberLong|NumberInt)\(\s*("(?:[^"\\]|\\.)*"|-?\d+)?\s*\)`)

// constructorTagKey is the sentinel key used to mark a decoded constructor call
// in the intermediate tree, distinguishing {"$ctor": "ISODate", "$arg": "..."}
// from a document a caller actually wrote with those keys (vanishingly unlikely,
// but a real codec does not gamble on it).
const constructorTagKey = "$ctor"

// dateConstructorFormat is the fixed pattern Date() renders now against, chosen
// to match parseTimestamp's own layouts so the value round-trips unchanged.
const dateConstructorFormat = "2006-01-02T15:04:05Z"

// DecodeConstructors rewrites the constructor-call dialect into plain JSON, then
// walks the result decoding every tagged constructor call into its Go value
// (time.Time for ISODate, a formatted "now" string for the zero-arg Date,
// primitive.ObjectID for ObjectId, int64/int32 for NumberLong/NumberInt),
// returning a tree of any, map[string]any, []any and scalars ready for
// json.Marshal-free consumption, or further structured decode. clock resolves
// Date()'s "now"; nil defaults to time.Now.
func DecodeConstructors(data []byte, clock func() time.Time) (any, error) {
	if clock == nil {
		clock = time.Now
	}

	rewritten := constructorCall.ReplaceAllFunc(data, func(m []byte) []byte {
		sub := constructorCall.FindSubmatch(m)
		ctor, arg := sub[1], sub[2]

		if len(arg) == 0 {
			return []byte(fmt.Sprintf(`{%q:%q}`, constructorTagKey, ctor))
		}

		// A bare integer argument to NumberLong/NumberInt is carried as a JSON
		// string, so it is parsed as an int64 rather than rounded through float64.
		if arg[0] != '"' && (string(ctor) == "NumberLong" || string(ctor) == "NumberInt") {
			arg = []byte(strconv.Quote(string(arg)))
		}

		return []byte(fmt.Sprintf(`{%q:%q,"$arg":%s}`, constructorTagKey, ctor, arg))
	})

	var v any
	if err := json.Unmarshal(rewritten, &v); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
	}

	return decodeConstructorTree(v, clock)
}

func decodeConstructorTree(v any, clock func() time.Time) (any, error) {
	switch t := v.(type) {
	case map[string]any:
		if ctor, ok := t[constructorTagKey].(string); ok {
			return decodeConstructorCall(ctor, t["$arg"], clock)
		}

		out := make(map[string]any, len(t))

		for k, sub := range t {
			d, err := decodeConstructorTree(sub, clock)
			if err != nil {
				return nil, err
			}

			out[k] = d
		}

		return out, nil

	case []any:
		out := make([]any, len(t))

		for i, sub := range t {
			d, err := decodeConstructorTree(sub, clock)
			if err != nil {
				return nil, err
			}

			out[i] = d
		}

		return out, nil

	default:
		return v, nil
	}
}

func decodeConstructorCall(ctor string, arg any, clock func() time.Time) (any, error) {
	switch ctor {
	// Date() takes no argument: it formats now, as resolved by the injected
	// clock, rather than parsing one.
	case "Date":
		if arg != nil {
			return nil, fmt.Errorf("%w: Date takes no argument", ErrInvalidQuery)
		}

		return clock().UTC().Format(dateConstructorFormat), nil

	case "ISODate":
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("%w: %s requires a string argument", ErrInvalidQuery, ctor)
		}

		t, err := parseTimestamp(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
		}

		return t, nil

	case "ObjectId":
		s, ok := arg.(string)
		if !ok {
			return nil, fmt.Errorf("%w: ObjectId requires a string argument", ErrInvalidQuery)
		}

		oid, err := primitive.ObjectIDFromHex(s)
		if err != nil {
			return nil, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
		}

		return oid, nil

	case "NumberLong":
		n, err := constructorInt(arg)
		if err != nil {
			return nil, err
		}

		return n, nil

	case "NumberInt":
		n, err := constructorInt(arg)
		if err != nil {
			return nil, err
		}

		return int32(n), nil

	default:
		return nil, fmt.Errorf("%w: unknown constructor %s", ErrInvalidQuery, ctor)
	}
}

func constructorInt(arg any) (int64, error) {
	switch v := arg.(type) {
	case float64:
		return int64(v), nil
	case string:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %s", ErrInvalidQuery, err)
		}

		return n, nil
	default:
		return 0, fmt.Errorf("%w: expected a numeric argument", ErrInvalidQuery)
	}
}

// EncodeConstructors renders v in the constructor-call dialect: every
// time.Time becomes ISODate("..."), every primitive.ObjectID becomes
// ObjectId("..."), maps and slices are rendered element by element, and any
// other value is rendered as plain JSON. Only those two constructors are
// produced: an int64 or int32 comes out as a plain JSON number, not as
// NumberLong/NumberInt, and a Date() string as a plain JSON string.
func EncodeConstructors(v any) string {
	switch t := v.(type) {
	case time.Time:
		return fmt.Sprintf("ISODate(%q)", t.UTC().Format(time.RFC3339))

	case primitive.ObjectID:
		return fmt.Sprintf("ObjectId(%q)", t.Hex())

	case map[string]any:
		s := "{"

		first := true

		for k, val := range t {
			if !first {
				s += ","
			}

			first = false
			s += fmt.Sprintf("%q:%s", k, EncodeConstructors(val))
		}

		return s + "}"

	case []any:
		s := "["

		for i, val := range t {
			if i > 0 {
				s += ","
			}

			s += EncodeConstructors(val)
		}

		return s + "]"

	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}
