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

package ezmoney

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sorintlab/errors"
	"gotest.tools/v3/assert"

	"etfmon.io/etfmon/internal/fundsource"
	"etfmon.io/etfmon/internal/testutil"
	"etfmon.io/etfmon/types"
)

const fundPage = `<!DOCTYPE html>
<html>
<body>
<div id="DataAsset" data-content="[{&quot;AssetCode&quot;:&quot;CA&quot;,&quot;Details&quot;:[{&quot;DetailCode&quot;:&quot;TWD&quot;,&quot;DetailName&quot;:&quot;新台幣&quot;,&quot;Share&quot;:0,&quot;NavRate&quot;:1.2,&quot;Amount&quot;:1000}]},{&quot;AssetCode&quot;:&quot;ST&quot;,&quot;Details&quot;:[{&quot;DetailCode&quot;:&quot;2330 &quot;,&quot;DetailName&quot;:&quot;台積電&quot;,&quot;Share&quot;:&quot;1,000&quot;,&quot;NavRate&quot;:9.87,&quot;Amount&quot;:&quot;1,050,000&quot;},{&quot;DetailCode&quot;:&quot;2317&quot;,&quot;DetailName&quot;:&quot;鴻海&quot;,&quot;Share&quot;:2000,&quot;NavRate&quot;:5.43,&quot;Amount&quot;:400000}]}]">
</div>
</body>
</html>`

func setupFundPageServer(t *testing.T, fundID, page string) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ETF/Fund/Info" || r.URL.Query().Get("fundCode") != fundID {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(page))
	}))
	t.Cleanup(server.Close)

	return server
}

func TestFetchHoldings(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	log := testutil.NewLogger(t)

	t.Run("fetch holdings with known fund ref", func(t *testing.T) {
		server := setupFundPageServer(t, "49YTW", fundPage)

		c, err := New(log, server.URL)
		assert.NilError(t, err)

		holdings, err := c.FetchHoldings(ctx, &types.Fund{Code: "00981A", Provider: "ezmoney"})
		assert.NilError(t, err)

		expected := []types.Holding{
			{StockID: "2330", StockName: "台積電", Shares: 1000, Weight: 9.87, Amount: 1050000},
			{StockID: "2317", StockName: "鴻海", Shares: 2000, Weight: 5.43, Amount: 400000},
		}
		assert.DeepEqual(t, holdings, expected)
	})

	t.Run("fetch holdings with provider ref override", func(t *testing.T) {
		server := setupFundPageServer(t, "ZZTOP", fundPage)

		c, err := New(log, server.URL)
		assert.NilError(t, err)

		holdings, err := c.FetchHoldings(ctx, &types.Fund{Code: "00999A", Provider: "ezmoney", ProviderRef: "ZZTOP"})
		assert.NilError(t, err)
		assert.Equal(t, len(holdings), 2)
	})

	t.Run("unknown fund code", func(t *testing.T) {
		server := setupFundPageServer(t, "49YTW", fundPage)

		c, err := New(log, server.URL)
		assert.NilError(t, err)

		_, err = c.FetchHoldings(ctx, &types.Fund{Code: "00999A", Provider: "ezmoney"})
		assert.ErrorContains(t, err, "no known ezmoney fund id")
	})

	t.Run("page without asset data returns a parse error with the raw body", func(t *testing.T) {
		page := `<html><body><p>maintenance</p></body></html>`
		server := setupFundPageServer(t, "49YTW", page)

		c, err := New(log, server.URL)
		assert.NilError(t, err)

		_, err = c.FetchHoldings(ctx, &types.Fund{Code: "00981A", Provider: "ezmoney"})
		assert.Assert(t, err != nil)

		var perr *fundsource.ParseError
		assert.Assert(t, errors.As(err, &perr))
		assert.DeepEqual(t, perr.RawBody, []byte(page))
	})
}

func TestParseHoldings(t *testing.T) {
	t.Parallel()

	t.Run("only stock assets are returned", func(t *testing.T) {
		holdings, err := parseHoldings([]byte(fundPage))
		assert.NilError(t, err)

		for _, h := range holdings {
			assert.Assert(t, h.StockID != "TWD")
		}
	})

	t.Run("asset data without stock entries", func(t *testing.T) {
		page := `<html><body><div id="DataAsset" data-content="[{&quot;AssetCode&quot;:&quot;CA&quot;,&quot;Details&quot;:[]}]"></div></body></html>`

		_, err := parseHoldings([]byte(page))
		assert.ErrorContains(t, err, "no stock holdings")
	})

	t.Run("broken asset data json", func(t *testing.T) {
		page := `<html><body><div id="DataAsset" data-content="[{"></div></body></html>`

		_, err := parseHoldings([]byte(page))
		assert.ErrorContains(t, err, "cannot decode asset data")
	})
}
