// Copyright (C) 2025 Dyne.org foundation
// designed, written and maintained by Denis Roio <jaromil@dyne.org>
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, either version 3 of the
// License, or (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package errors

import (
	stderrors "errors"
	"fmt"
)

// Code identifies a class of error for programmatic handling.
type Code string

const (
	CodeAPI                Code = "api"
	CodeConfig             Code = "config"
	CodeUnknownTool        Code = "unknown_tool"
	CodeArgumentValidation Code = "argument_validation"
	CodeOutOfBounds        Code = "out_of_bounds"
	CodeNotFound           Code = "not_found"
	CodeNotADirectory      Code = "not_a_directory"
	CodeIsADirectory       Code = "is_a_directory"
	CodePermission         Code = "permission"
	CodeTimeout            Code = "timeout"
	CodeToolExecution      Code = "tool_execution"
)

// Error wraps an underlying error with a code and message.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	if e.Message == "" {
		if e.Err != nil {
			return e.Err.Error()
		}
		return string(e.Code)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is reports whether target carries the same code, so two coded errors
// match regardless of message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code && t.Message == "" && t.Err == nil
}

// New creates a new coded error with a message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a new coded error that wraps an underlying error.
func Wrap(code Code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// Kind returns a bare error of the given code, usable as an errors.Is target.
func Kind(code Code) *Error {
	return &Error{Code: code}
}

// CodeOf returns the code of the first coded error in err's chain.
func CodeOf(err error) (Code, bool) {
	var coded *Error
	if stderrors.As(err, &coded) {
		return coded.Code, true
	}
	return "", false
}
