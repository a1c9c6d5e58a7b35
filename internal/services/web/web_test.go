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

package web

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"etfmon.io/etfmon/internal/report"
	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/internal/testutil"
	"etfmon.io/etfmon/internal/util"
	"etfmon.io/etfmon/types"
)

type stubTrigger struct {
	triggered int
	accept    bool
}

func (t *stubTrigger) Trigger() bool {
	t.triggered++
	return t.accept
}

func setupWebService(t *testing.T, ctx context.Context, trigger *stubTrigger) *WebService {
	dir := t.TempDir()

	log := testutil.NewLogger(t)

	gc := &config.Config{
		ID: "etfmon",
		Funds: []config.Fund{
			{Code: "00981A", Name: "統一台股增長", Provider: "ezmoney", ProviderRef: "49YTW"},
		},
		Web: config.Web{
			ListenAddress: ":4000",
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

	var s *WebService
	var err error
	if trigger != nil {
		s, err = NewWebService(ctx, log, gc, trigger)
	} else {
		s, err = NewWebService(ctx, log, gc, nil)
	}
	testutil.NilError(t, err)

	return s
}

func seedData(t *testing.T, ctx context.Context, s *WebService) {
	holdings := []types.Holding{
		{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.87, Amount: 1050000},
	}

	err := s.d.Do(ctx, func(tx *sql.Tx) error {
		for _, date := range []string{"2024-01-02", "2024-01-03"} {
			snapshot := &types.Snapshot{FundCode: "00981A", Date: date, FetchedAt: time.Now()}
			if err := s.d.InsertSnapshot(tx, snapshot, holdings); err != nil {
				return err
			}
		}

		event := &types.ChangeEvent{
			FundCode: "00981A",
			Date:     "2024-01-03",
			Changeset: &types.Changeset{
				FundCode: "00981A",
				Date:     "2024-01-03",
				PrevDate: "2024-01-02",
				Entered:  []types.Holding{{StockID: "3008", StockName: "大立光", Shares: 50, Weight: 1.5}},
			},
			CreatedAt: time.Now(),
		}
		return s.d.InsertChangeEvent(tx, event)
	})
	testutil.NilError(t, err)
}

func getJSON(t *testing.T, url string, out interface{}) *http.Response {
	res, err := http.Get(url)
	testutil.NilError(t, err)
	defer res.Body.Close()

	if out != nil && res.StatusCode == http.StatusOK {
		err := json.NewDecoder(res.Body).Decode(out)
		testutil.NilError(t, err)
	}

	return res
}

func TestAPI(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	trigger := &stubTrigger{accept: true}
	s := setupWebService(t, ctx, trigger)
	seedData(t, ctx, s)

	ts := httptest.NewServer(s.setupRouter())
	defer ts.Close()

	t.Run("get funds", func(t *testing.T) {
		var funds []types.Fund
		res := getJSON(t, ts.URL+"/api/v1alpha/funds", &funds)
		assert.Equal(t, res.StatusCode, http.StatusOK)
		assert.Assert(t, cmp.Len(funds, 1))
		assert.Equal(t, funds[0].Code, "00981A")
	})

	t.Run("get snapshots", func(t *testing.T) {
		var snapshots []*types.Snapshot
		res := getJSON(t, ts.URL+"/api/v1alpha/funds/00981A/snapshots", &snapshots)
		assert.Equal(t, res.StatusCode, http.StatusOK)
		assert.Assert(t, cmp.Len(snapshots, 2))
		assert.Equal(t, snapshots[0].Date, "2024-01-02")
	})

	t.Run("get snapshot with holdings", func(t *testing.T) {
		var snapshot types.Snapshot
		res := getJSON(t, ts.URL+"/api/v1alpha/funds/00981A/snapshots/2024-01-03", &snapshot)
		assert.Equal(t, res.StatusCode, http.StatusOK)
		assert.Assert(t, cmp.Len(snapshot.Holdings, 1))
		assert.Equal(t, snapshot.Holdings[0].StockID, "2330")
	})

	t.Run("get not existing snapshot", func(t *testing.T) {
		res := getJSON(t, ts.URL+"/api/v1alpha/funds/00981A/snapshots/2030-01-01", nil)
		assert.Equal(t, res.StatusCode, http.StatusNotFound)
	})

	t.Run("get snapshot with wrong date", func(t *testing.T) {
		res := getJSON(t, ts.URL+"/api/v1alpha/funds/00981A/snapshots/notadate", nil)
		assert.Equal(t, res.StatusCode, http.StatusBadRequest)
	})

	t.Run("get change event", func(t *testing.T) {
		var event types.ChangeEvent
		res := getJSON(t, ts.URL+"/api/v1alpha/funds/00981A/changes/2024-01-03", &event)
		assert.Equal(t, res.StatusCode, http.StatusOK)
		assert.Assert(t, cmp.Len(event.Changeset.Entered, 1))
	})

	t.Run("get not existing change event", func(t *testing.T) {
		res := getJSON(t, ts.URL+"/api/v1alpha/funds/00981A/changes/2024-01-02", nil)
		assert.Equal(t, res.StatusCode, http.StatusNotFound)
	})

	t.Run("create collection", func(t *testing.T) {
		res, err := http.Post(ts.URL+"/api/v1alpha/collections", "application/json", nil)
		testutil.NilError(t, err)
		defer res.Body.Close()

		assert.Equal(t, res.StatusCode, http.StatusCreated)
		assert.Equal(t, trigger.triggered, 1)
	})
}

func TestCollectionWithoutCollector(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	s := setupWebService(t, ctx, nil)

	ts := httptest.NewServer(s.setupRouter())
	defer ts.Close()

	res, err := http.Post(ts.URL+"/api/v1alpha/collections", "application/json", nil)
	testutil.NilError(t, err)
	defer res.Body.Close()

	assert.Equal(t, res.StatusCode, http.StatusBadRequest)

	var errRes util.ErrorResponse
	err = json.NewDecoder(res.Body).Decode(&errRes)
	testutil.NilError(t, err)

	assert.Equal(t, errRes.Message, "no collector is running")
}

func TestSite(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	s := setupWebService(t, ctx, nil)

	index := "<html><body>latest report</body></html>"
	err := s.ost.WriteObject(ctx, report.IndexObjectPath, strings.NewReader(index), int64(len(index)), true)
	testutil.NilError(t, err)

	reportPage := "<html><body>report 2024-01-03</body></html>"
	err = s.ost.WriteObject(ctx, report.ReportObjectPath("2024-01-03"), strings.NewReader(reportPage), int64(len(reportPage)), true)
	testutil.NilError(t, err)

	ts := httptest.NewServer(s.setupRouter())
	defer ts.Close()

	get := func(p string) (int, string) {
		res, err := http.Get(ts.URL + p)
		testutil.NilError(t, err)
		defer res.Body.Close()

		body, err := io.ReadAll(res.Body)
		testutil.NilError(t, err)

		return res.StatusCode, string(body)
	}

	code, body := get("/")
	assert.Equal(t, code, http.StatusOK)
	assert.Equal(t, body, index)

	code, body = get(fmt.Sprintf("/%s", report.ReportObjectPath("2024-01-03")))
	assert.Equal(t, code, http.StatusOK)
	assert.Equal(t, body, reportPage)

	code, _ = get("/etf_data/report_20300101.html")
	assert.Equal(t, code, http.StatusNotFound)

	// paths outside the published site are not exposed
	code, _ = get("/somethingelse")
	assert.Equal(t, code, http.StatusNotFound)
}
