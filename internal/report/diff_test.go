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
	"testing"

	"gotest.tools/v3/assert"

	"etfmon.io/etfmon/types"
)

func TestDiff(t *testing.T) {
	t.Parallel()

	prev := []types.Holding{
		{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.87, Amount: 1050000},
		{StockID: "2317", StockName: "鴻海", Shares: 2000, Weight: 5.43, Amount: 400000},
		{StockID: "2454", StockName: "聯發科", Shares: 300, Weight: 3.21, Amount: 350000},
	}

	t.Run("no changes", func(t *testing.T) {
		c := Diff("00981A", "2024-01-03", "2024-01-02", prev, prev)

		assert.Assert(t, c.Empty())
		assert.Equal(t, c.FundCode, "00981A")
		assert.Equal(t, c.Date, "2024-01-03")
		assert.Equal(t, c.PrevDate, "2024-01-02")
	})

	t.Run("entered and exited positions", func(t *testing.T) {
		curr := []types.Holding{
			{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.87, Amount: 1050000},
			{StockID: "2317", StockName: "鴻海", Shares: 2000, Weight: 5.43, Amount: 400000},
			{StockID: "3008", StockName: "大立光", Shares: 50, Weight: 1.5, Amount: 120000},
		}

		c := Diff("00981A", "2024-01-03", "2024-01-02", curr, prev)

		assert.DeepEqual(t, c.Entered, []types.Holding{{StockID: "3008", StockName: "大立光", Shares: 50, Weight: 1.5, Amount: 120000}})
		assert.DeepEqual(t, c.Exited, []types.Holding{{StockID: "2454", StockName: "聯發科", Shares: 300, Weight: 3.21, Amount: 350000}})
		assert.Equal(t, len(c.Changed), 0)
	})

	t.Run("changed positions sorted by weight diff", func(t *testing.T) {
		curr := []types.Holding{
			{StockID: "2330", StockName: "台積電", Shares: 900, Weight: 8.90, Amount: 950000},
			{StockID: "2317", StockName: "鴻海", Shares: 2500, Weight: 6.43, Amount: 500000},
			{StockID: "2454", StockName: "聯發科", Shares: 300, Weight: 3.21, Amount: 350000},
		}

		c := Diff("00981A", "2024-01-03", "2024-01-02", curr, prev)

		assert.Equal(t, len(c.Entered), 0)
		assert.Equal(t, len(c.Exited), 0)
		assert.Equal(t, len(c.Changed), 2)

		// 2317 weight increased, must come first
		assert.Equal(t, c.Changed[0].StockID, "2317")
		assert.Equal(t, c.Changed[0].SharesDiff, float64(500))
		assert.Equal(t, c.Changed[1].StockID, "2330")
		assert.Equal(t, c.Changed[1].SharesDiff, float64(-100))
	})

	t.Run("weight variations below the epsilon are ignored", func(t *testing.T) {
		curr := []types.Holding{
			{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.8705, Amount: 1050000},
			{StockID: "2317", StockName: "鴻海", Shares: 2000, Weight: 5.43, Amount: 400000},
			{StockID: "2454", StockName: "聯發科", Shares: 300, Weight: 3.21, Amount: 350000},
		}

		c := Diff("00981A", "2024-01-03", "2024-01-02", curr, prev)

		assert.Assert(t, c.Empty())
	})

	t.Run("shares change with same weight is reported", func(t *testing.T) {
		curr := []types.Holding{
			{StockID: "2330", StockName: "台積電", Shares: 1100, Weight: 9.87, Amount: 1050000},
			{StockID: "2317", StockName: "鴻海", Shares: 2000, Weight: 5.43, Amount: 400000},
			{StockID: "2454", StockName: "聯發科", Shares: 300, Weight: 3.21, Amount: 350000},
		}

		c := Diff("00981A", "2024-01-03", "2024-01-02", curr, prev)

		assert.Equal(t, len(c.Changed), 1)
		assert.Equal(t, c.Changed[0].SharesDiff, float64(100))
	})

	t.Run("duplicated stock ids take the last row", func(t *testing.T) {
		curr := []types.Holding{
			{StockID: "2330", StockName: "台積電", Shares: 500, Weight: 4.0, Amount: 500000},
			{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.87, Amount: 1050000},
			{StockID: "2317", StockName: "鴻海", Shares: 2000, Weight: 5.43, Amount: 400000},
			{StockID: "2454", StockName: "聯發科", Shares: 300, Weight: 3.21, Amount: 350000},
		}

		c := Diff("00981A", "2024-01-03", "2024-01-02", curr, prev)

		assert.Assert(t, c.Empty())
	})
}
