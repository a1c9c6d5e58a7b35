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

package fundsource

import (
	"context"
	"fmt"

	"etfmon.io/etfmon/types"
)

// FundSource is implemented by every fund holdings provider. Issuer websites
// change without notice so implementations must treat unexpected page
// contents as a ParseError and not as a fatal error.
type FundSource interface {
	// FetchHoldings returns the current holdings of the fund as published by
	// the provider. The returned holdings aren't ordered.
	FetchHoldings(ctx context.Context, fund *types.Fund) ([]types.Holding, error)
}

// ParseError is returned when the provider reached the remote page but
// couldn't extract the holdings from it. It carries the raw page body so the
// caller can archive it for later inspection.
type ParseError struct {
	msg string

	RawBody []byte
}

func NewParseError(rawBody []byte, format string, args ...interface{}) *ParseError {
	return &ParseError{msg: fmt.Sprintf(format, args...), RawBody: rawBody}
}

func (e *ParseError) Error() string {
	return e.msg
}
