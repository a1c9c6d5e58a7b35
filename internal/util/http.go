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
	"encoding/json"
	"net/http"

	"github.com/sorintlab/errors"
)

func HTTPResponse(w http.ResponseWriter, code int, res interface{}) error {
	w.Header().Set("Content-Type", "application/json")

	if res != nil {
		resj, err := json.Marshal(res)
		if err != nil {
			w.WriteHeader(http.StatusInternalServerError)
			return errors.WithStack(err)
		}
		w.WriteHeader(code)
		_, err = w.Write(resj)
		return errors.WithStack(err)
	}

	w.WriteHeader(code)
	return nil
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func ErrorResponseFromError(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	if derr, ok := AsAPIError(err); ok {
		return &ErrorResponse{Message: derr.Message}
	}

	// on generic error return an error response without any message
	return &ErrorResponse{}
}

// HTTPError writes the error response and returns true when err is not nil,
// does nothing and returns false otherwise.
func HTTPError(w http.ResponseWriter, err error) bool {
	if err == nil {
		return false
	}

	response := ErrorResponseFromError(err)
	resj, merr := json.Marshal(response)
	if merr != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return true
	}

	code := http.StatusInternalServerError

	if derr, ok := AsAPIError(err); ok {
		switch derr.Kind {
		case ErrBadRequest:
			code = http.StatusBadRequest
		case ErrNotExist:
			code = http.StatusNotFound
		case ErrForbidden:
			code = http.StatusForbidden
		case ErrUnauthorized:
			code = http.StatusUnauthorized
		case ErrInternal:
			code = http.StatusInternalServerError
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(resj)

	return true
}
