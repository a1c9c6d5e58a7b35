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

package objectstorage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/sorintlab/errors"
)

// Storage is the interface every object storage backend must implement.
// Object paths use "/" as separator.
type Storage interface {
	Stat(ctx context.Context, filepath string) (*ObjectInfo, error)
	ReadObject(ctx context.Context, filepath string) (ReadSeekCloser, error)
	// WriteObject writes size bytes from data. A negative size means unknown.
	// When persist is true the implementation must ensure the object is
	// persisted to stable storage before returning.
	WriteObject(ctx context.Context, filepath string, data io.Reader, size int64, persist bool) error
	DeleteObject(ctx context.Context, filepath string) error
	List(ctx context.Context, prefix, startAfter string, recursive bool) <-chan ObjectInfo
}

type ReadSeekCloser interface {
	io.Reader
	io.Seeker
	io.Closer
}

type ObjectInfo struct {
	Path         string
	LastModified time.Time
	Size         int64

	Err error
}

type ErrNotExist struct {
	err error
	msg string
}

func NewErrNotExist(err error, format string, args ...interface{}) error {
	return &ErrNotExist{err: err, msg: fmt.Sprintf(format, args...)}
}

func (e *ErrNotExist) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return e.err.Error()
}

func (e *ErrNotExist) Unwrap() error { return e.err }

func IsNotExist(err error) bool {
	var e *ErrNotExist
	return errors.As(err, &e)
}
