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
	"bytes"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"

	"etfmon.io/etfmon/types"
)

func TestRenderReport(t *testing.T) {
	t.Parallel()

	generatedAt := time.Date(2024, 1, 3, 10, 5, 0, 0, time.UTC)

	t.Run("report with changeset", func(t *testing.T) {
		data := &ReportData{
			Date:        "2024-01-03",
			GeneratedAt: generatedAt,
			Funds: []*FundReport{
				{
					Fund:          types.Fund{Code: "00981A", Name: "統一台股增長主動式ETF", Provider: "ezmoney"},
					HoldingsCount: 3,
					Changeset: &types.Changeset{
						FundCode: "00981A",
						Date:     "2024-01-03",
						PrevDate: "2024-01-02",
						Entered:  []types.Holding{{StockID: "3008", StockName: "大立光", Shares: 50, Weight: 1.5}},
						Exited:   []types.Holding{},
						Changed: []types.PositionChange{
							{
								StockID: "2317", StockName: "鴻海",
								SharesPrev: 2000, SharesCurr: 2500, SharesDiff: 500,
								WeightPrev: 5.43, WeightCurr: 6.43, WeightDiff: 1.0,
							},
							{
								StockID: "2330", StockName: "台積電",
								SharesPrev: 1000, SharesCurr: 900, SharesDiff: -100,
								WeightPrev: 9.87, WeightCurr: 8.9, WeightDiff: -0.97,
							},
						},
					},
				},
			},
		}

		var buf bytes.Buffer
		err := RenderReport(&buf, data)
		assert.NilError(t, err)

		out := buf.String()
		assert.Assert(t, strings.Contains(out, "Daily Change Report (2024-01-03)"))
		assert.Assert(t, strings.Contains(out, "00981A"))
		assert.Assert(t, strings.Contains(out, "大立光"))
		assert.Assert(t, strings.Contains(out, "No exited positions."))
		assert.Assert(t, strings.Contains(out, `<td class="num increase">+500</td>`))
		assert.Assert(t, strings.Contains(out, `<td class="num decrease">-0.97%</td>`))
		assert.Assert(t, strings.Contains(out, "2,500"))
	})

	t.Run("report without history", func(t *testing.T) {
		data := &ReportData{
			Date:        "2024-01-03",
			GeneratedAt: generatedAt,
			Funds: []*FundReport{
				{
					Fund:          types.Fund{Code: "00981A", Provider: "ezmoney"},
					HoldingsCount: 3,
				},
			},
		}

		var buf bytes.Buffer
		err := RenderReport(&buf, data)
		assert.NilError(t, err)

		assert.Assert(t, strings.Contains(buf.String(), "Not enough history for comparison"))
	})
}

func TestRenderIndex(t *testing.T) {
	t.Parallel()

	data := &IndexData{
		Date:        "2024-01-03",
		ReportPath:  ReportObjectPath("2024-01-03"),
		GeneratedAt: time.Date(2024, 1, 3, 10, 5, 0, 0, time.UTC),
	}

	var buf bytes.Buffer
	err := RenderIndex(&buf, data)
	assert.NilError(t, err)

	out := buf.String()
	assert.Assert(t, strings.Contains(out, `url=etf_data/report_20240103.html`))
	assert.Assert(t, strings.Contains(out, `href="etf_data/report_20240103.html"`))
}

func TestReportObjectPaths(t *testing.T) {
	t.Parallel()

	assert.Equal(t, ReportObjectPath("2024-01-03"), "etf_data/report_20240103.html")
	assert.Equal(t, CSVObjectPath("2024-01-03"), "etf_data/etf_holdings_20240103.csv")

	date, err := DateFromReportObjectPath("etf_data/report_20240103.html")
	assert.NilError(t, err)
	assert.Equal(t, date, "2024-01-03")

	_, err = DateFromReportObjectPath("etf_data/etf_holdings_20240103.csv")
	assert.ErrorContains(t, err, "wrong report object path")
}

func TestWriteHoldingsCSV(t *testing.T) {
	t.Parallel()

	snapshots := []*types.Snapshot{
		{
			FundCode: "00981A",
			Date:     "2024-01-03",
			Holdings: []types.Holding{
				{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.87, Amount: 1050000},
			},
		},
	}

	var buf bytes.Buffer
	err := WriteHoldingsCSV(&buf, snapshots)
	assert.NilError(t, err)

	out := buf.Bytes()
	assert.DeepEqual(t, out[:3], utf8BOM)
	assert.Assert(t, strings.Contains(string(out), "fund_code,stock_id,stock_name,shares,weight,amount"))
	assert.Assert(t, strings.Contains(string(out), "00981A,2330,台積電,1000,9.87,1050000"))
}
