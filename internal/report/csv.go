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

package report

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/types"
)

// utf8BOM makes spreadsheet applications detect the encoding and render the
// chinese stock names correctly.
var utf8BOM = []byte{0xef, 0xbb, 0xbf}

var csvHeader = []string{"fund_code", "stock_id", "stock_name", "shares", "weight", "amount"}

// WriteHoldingsCSV writes the holdings of the provided snapshots as a single
// csv document. The snapshots must have their holdings populated.
func WriteHoldingsCSV(w io.Writer, snapshots []*types.Snapshot) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return errors.WithStack(err)
	}

	cw := csv.NewWriter(w)

	if err := cw.Write(csvHeader); err != nil {
		return errors.WithStack(err)
	}

	for _, s := range snapshots {
		for _, h := range s.Holdings {
			record := []string{
				s.FundCode,
				h.StockID,
				h.StockName,
				strconv.FormatFloat(h.Shares, 'f', -1, 64),
				strconv.FormatFloat(h.Weight, 'f', -1, 64),
				strconv.FormatFloat(h.Amount, 'f', -1, 64),
			}
			if err := cw.Write(record); err != nil {
				return errors.WithStack(err)
			}
		}
	}

	cw.Flush()

	return errors.WithStack(cw.Error())
}
