// Copyright 2024 Sorint.lab
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied
// See the License for the specific language governing permissions and
// limitations under the License.

package util

import (
	"strings"

	"github.com/sorintlab/errors"
)

type ErrorKind int

const (
	ErrBadRequest ErrorKind = iota
	ErrNotExist
	ErrForbidden
	ErrUnauthorized
	ErrInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBadRequest:
		return "badrequest"
	case ErrNotExist:
		return "notexist"
	case ErrForbidden:
		return "forbidden"
	case ErrUnauthorized:
		return "unauthorized"
	case ErrInternal:
		return "internal"
	}

	return "unknown"
}

// APIError is an error to be reported to the api caller. It's used to
// differentiate an internal error from an user error.
type APIError struct {
	err error

	Kind    ErrorKind
	Message string
}

type APIErrorOption func(e *APIError)

func WithAPIErrorMsg(message string) APIErrorOption {
	return func(e *APIError) {
		e.Message = message
	}
}

func NewAPIError(kind ErrorKind, err error, opts ...APIErrorOption) error {
	derr := &APIError{err: err, Kind: kind}

	for _, opt := range opts {
		opt(derr)
	}

	return errors.WithStack(derr)
}

// NewAPIErrorWrap is like NewAPIError but also sets the wrapped error message
// as the api error message.
func NewAPIErrorWrap(kind ErrorKind, err error, opts ...APIErrorOption) error {
	opts = append([]APIErrorOption{WithAPIErrorMsg(err.Error())}, opts...)

	return NewAPIError(kind, err, opts...)
}

func (e *APIError) Error() string {
	var parts []string
	parts = append(parts, e.Kind.String())
	if e.Message != "" {
		parts = append(parts, e.Message)
	}
	if e.err != nil {
		parts = append(parts, e.err.Error())
	}

	return strings.Join(parts, ", ")
}

func (e *APIError) Unwrap() error { return e.err }

func AsAPIError(err error) (*APIError, bool) {
	var derr *APIError
	return derr, errors.As(err, &derr)
}
