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
	"math"
	"sort"

	"etfmon.io/etfmon/types"
)

// weightEpsilon is the minimum weight variation considered a change. Weights
// are percent values with two decimals so smaller variations are float noise.
const weightEpsilon = 0.001

// Diff computes the changeset between the current and the previous holdings
// of a fund. Entered and exited positions are sorted by weight, changed
// positions by weight variation, both descending.
func Diff(fundCode, date, prevDate string, curr, prev []types.Holding) *types.Changeset {
	currByID := holdingsByStockID(curr)
	prevByID := holdingsByStockID(prev)

	c := &types.Changeset{
		FundCode: fundCode,
		Date:     date,
		PrevDate: prevDate,

		Entered: []types.Holding{},
		Exited:  []types.Holding{},
		Changed: []types.PositionChange{},
	}

	for _, h := range currByID {
		ph, ok := prevByID[h.StockID]
		if !ok {
			c.Entered = append(c.Entered, h)
			continue
		}

		weightDiff := h.Weight - ph.Weight
		sharesDiff := h.Shares - ph.Shares
		if math.Abs(weightDiff) <= weightEpsilon && sharesDiff == 0 {
			continue
		}

		c.Changed = append(c.Changed, types.PositionChange{
			StockID:   h.StockID,
			StockName: h.StockName,

			SharesPrev: ph.Shares,
			SharesCurr: h.Shares,
			SharesDiff: sharesDiff,

			WeightPrev: ph.Weight,
			WeightCurr: h.Weight,
			WeightDiff: weightDiff,
		})
	}

	for _, h := range prevByID {
		if _, ok := currByID[h.StockID]; !ok {
			c.Exited = append(c.Exited, h)
		}
	}

	sort.Slice(c.Entered, func(i, j int) bool {
		if c.Entered[i].Weight != c.Entered[j].Weight {
			return c.Entered[i].Weight > c.Entered[j].Weight
		}
		return c.Entered[i].StockID < c.Entered[j].StockID
	})
	sort.Slice(c.Exited, func(i, j int) bool {
		if c.Exited[i].Weight != c.Exited[j].Weight {
			return c.Exited[i].Weight > c.Exited[j].Weight
		}
		return c.Exited[i].StockID < c.Exited[j].StockID
	})
	sort.Slice(c.Changed, func(i, j int) bool {
		if c.Changed[i].WeightDiff != c.Changed[j].WeightDiff {
			return c.Changed[i].WeightDiff > c.Changed[j].WeightDiff
		}
		return c.Changed[i].StockID < c.Changed[j].StockID
	})

	return c
}

// holdingsByStockID dedups holdings by stock id, the last row wins.
func holdingsByStockID(holdings []types.Holding) map[string]types.Holding {
	m := map[string]types.Holding{}
	for _, h := range holdings {
		m[h.StockID] = h
	}
	return m
}
