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

import "testing"

func TestTypeIsA(t *testing.T) {
	t.Parallel()

	if !TypeUNIXTimestampMilliseconds.IsA(TypeDateTime) {
		t.Fatal("UNIXTimestampMilliseconds should be a DateTime")
	}

	if !TypePK.IsA(TypeIdentifier) {
		t.Fatal("PK should be an Identifier")
	}

	if TypeText.IsA(TypeDateTime) {
		t.Fatal("Text should not be a DateTime")
	}
}

func TestTypeBucketable(t *testing.T) {
	t.Parallel()

	cases := []struct {
		t    Type
		want bool
	}{
		{TypeDateTime, true},
		{TypeDate, true},
		{TypeUNIXTimestampSeconds, true},
		{TypeTime, false},
		{TypeText, false},
	}

	for _, tc := range cases {
		if got := tc.t.Bucketable(); got != tc.want {
			t.Errorf("%s.Bucketable() = %v, want %v", tc.t, got, tc.want)
		}
	}
}
