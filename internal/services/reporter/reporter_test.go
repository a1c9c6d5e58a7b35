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

package reporter

import (
	"context"
	"io"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"etfmon.io/etfmon/internal/objectstorage"
	"etfmon.io/etfmon/internal/report"
	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/internal/testutil"
	"etfmon.io/etfmon/types"
)

func setupReporter(t *testing.T, ctx context.Context, keepDays int) *Reporter {
	dir := t.TempDir()

	log := testutil.NewLogger(t)

	gc := &config.Config{
		ID: "etfmon",
		Funds: []config.Fund{
			{Code: "00981A", Name: "統一台股增長", Provider: "ezmoney"},
		},
		Reporter: config.Reporter{
			KeepDays: keepDays,
			DB: config.DB{
				Type:       sql.Sqlite3,
				ConnString: filepath.Join(dir, "db"),
			},
			ObjectStorage: config.ObjectStorage{
				Type: config.ObjectStorageTypePosix,
				Path: filepath.Join(dir, "ost"),
			},
		},
	}

	r, err := NewReporter(ctx, log, gc)
	testutil.NilError(t, err)

	return r
}

func insertSnapshot(t *testing.T, ctx context.Context, r *Reporter, date string, holdings []types.Holding) {
	err := r.d.Do(ctx, func(tx *sql.Tx) error {
		snapshot := &types.Snapshot{FundCode: "00981A", Date: date, FetchedAt: time.Now()}
		return r.d.InsertSnapshot(tx, snapshot, holdings)
	})
	testutil.NilError(t, err)
}

func readObject(t *testing.T, ctx context.Context, r *Reporter, path string) string {
	f, err := r.ost.ReadObject(ctx, path)
	testutil.NilError(t, err)
	defer f.Close()

	data, err := io.ReadAll(f)
	testutil.NilError(t, err)

	return string(data)
}

func TestGenerateReport(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	r := setupReporter(t, ctx, 0)

	insertSnapshot(t, ctx, r, "2024-01-02", []types.Holding{
		{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.87, Amount: 1050000},
	})
	insertSnapshot(t, ctx, r, "2024-01-03", []types.Holding{
		{StockID: "2330", StockName: "台積電", Shares: 1500, Weight: 10.12, Amount: 1570000},
		{StockID: "2317", StockName: "鴻海", Shares: 2000, Weight: 5.43, Amount: 210000},
	})

	err := r.GenerateReport(ctx, "2024-01-03")
	testutil.NilError(t, err)

	page := readObject(t, ctx, r, report.ReportObjectPath("2024-01-03"))
	assert.Assert(t, strings.Contains(page, "Daily Change Report (2024-01-03)"))
	assert.Assert(t, strings.Contains(page, "鴻海"))
	assert.Assert(t, strings.Contains(page, "+500"))

	csv := readObject(t, ctx, r, report.CSVObjectPath("2024-01-03"))
	assert.Assert(t, strings.Contains(csv, "00981A,2317,鴻海,2000,5.43,210000"))

	index := readObject(t, ctx, r, report.IndexObjectPath)
	assert.Assert(t, strings.Contains(index, "report_20240103.html"))
}

func TestGenerateReportNoSnapshots(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	r := setupReporter(t, ctx, 0)

	err := r.GenerateReport(ctx, "2024-01-03")
	assert.ErrorContains(t, err, "no snapshots for date")
}

func TestReportsHandler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	r := setupReporter(t, ctx, 0)

	// nothing to do without snapshots
	err := r.reportsHandler(ctx)
	testutil.NilError(t, err)

	_, err = r.ost.Stat(ctx, report.IndexObjectPath)
	assert.Assert(t, objectstorage.IsNotExist(err))

	holdings := []types.Holding{
		{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.87, Amount: 1050000},
	}
	insertSnapshot(t, ctx, r, "2024-01-02", holdings)

	err = r.reportsHandler(ctx)
	testutil.NilError(t, err)

	index := readObject(t, ctx, r, report.IndexObjectPath)
	assert.Assert(t, strings.Contains(index, "report_20240102.html"))

	// a new snapshot date moves the index to the new report
	insertSnapshot(t, ctx, r, "2024-01-03", holdings)

	err = r.reportsHandler(ctx)
	testutil.NilError(t, err)

	index = readObject(t, ctx, r, report.IndexObjectPath)
	assert.Assert(t, strings.Contains(index, "report_20240103.html"))
}

func TestPrune(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	r := setupReporter(t, ctx, 2)

	holdings := []types.Holding{
		{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.87, Amount: 1050000},
	}

	for _, date := range []string{"2024-01-01", "2024-01-02", "2024-01-03"} {
		insertSnapshot(t, ctx, r, date, holdings)
		err := r.GenerateReport(ctx, date)
		testutil.NilError(t, err)
	}

	err := r.prune(ctx, "2024-01-03")
	testutil.NilError(t, err)

	var snapshots []*types.Snapshot
	err = r.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		snapshots, err = r.d.GetSnapshots(tx, "00981A")
		return err
	})
	testutil.NilError(t, err)

	assert.Assert(t, cmp.Len(snapshots, 2))
	assert.Equal(t, snapshots[0].Date, "2024-01-02")

	_, err = r.ost.Stat(ctx, report.ReportObjectPath("2024-01-01"))
	assert.Assert(t, objectstorage.IsNotExist(err))
	_, err = r.ost.Stat(ctx, report.CSVObjectPath("2024-01-01"))
	assert.Assert(t, objectstorage.IsNotExist(err))

	_, err = r.ost.Stat(ctx, report.ReportObjectPath("2024-01-02"))
	testutil.NilError(t, err)
	_, err = r.ost.Stat(ctx, report.IndexObjectPath)
	testutil.NilError(t, err)
}
