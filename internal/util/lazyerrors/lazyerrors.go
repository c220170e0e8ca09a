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

// Package lazyerrors provides a way to wrap errors with the caller's file, line, and function name.
//
// It is intended for internal invariant violations — bugs in this repository, not user errors —
// so a failure still points straight at the offending call site in logs, without a debugger.
package lazyerrors

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
)

// wrappedError annotates another error with a call site.
type wrappedError struct {
	err error
	msg string
}

// caller returns "file.go:line pkg.funcName" for the frame `skip` levels above this call.
func caller(skip int) string {
	pc, file, line, ok := runtime.Caller(skip)
	if !ok {
		return "unknown"
	}

	name := "unknown"
	if fn := runtime.FuncForPC(pc); fn != nil {
		name = fn.Name()
		if i := strings.LastIndexByte(name, '/'); i >= 0 {
			name = name[i+1:]
		}
	}

	if i := strings.LastIndexByte(file, '/'); i >= 0 {
		file = file[i+1:]
	}

	return fmt.Sprintf("%s:%d %s", file, line, name)
}

// New is similar to [errors.New], but it also records the caller's location.
func New(text string) error {
	loc := caller(2)
	err := errors.New(text)

	return &wrappedError{err: err, msg: fmt.Sprintf("[%s] %s", loc, text)}
}

// Errorf is similar to [fmt.Errorf], but it also records the caller's location.
//
// It supports wrapping with %w like [fmt.Errorf] does.
func Errorf(format string, args ...any) error {
	loc := caller(2)
	err := fmt.Errorf(format, args...)

	return &wrappedError{err: err, msg: fmt.Sprintf("[%s] %s", loc, err.Error())}
}

// Error wraps err, recording the caller's location. It returns nil if err is nil.
func Error(err error) error {
	if err == nil {
		return nil
	}

	loc := caller(2)

	return &wrappedError{err: err, msg: fmt.Sprintf("[%s] %s", loc, err.Error())}
}

// Error implements [error].
func (e *wrappedError) Error() string {
	return e.msg
}

// Unwrap implements errors.Unwrap.
func (e *wrappedError) Unwrap() error {
	return e.err
}

// GoString implements [fmt.GoStringer].
func (e *wrappedError) GoString() string {
	return fmt.Sprintf("lazyerror(%s)", e.msg)
}

// check interfaces
var (
	_ error          = (*wrappedError)(nil)
	_ fmt.GoStringer = (*wrappedError)(nil)
)
