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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/fundsource"
	"etfmon.io/etfmon/types"
)

const (
	// DefaultAPIURL is the ezmoney (Unified investment trust) site url
	DefaultAPIURL = "https://www.ezmoney.com.tw"

	// the holdings page embeds the fund assets as a json document inside the
	// data-content attribute of this element
	dataAssetSelector = "div#DataAsset"

	// asset entries with this code are the stock positions
	stockAssetCode = "ST"

	maxPageSize = 10 << 20

	requestTimeout = 15 * time.Second
)

// fundRefs maps public fund codes to the ezmoney internal fund ids. A fund
// can override its entry with the providerRef config value.
var fundRefs = map[string]string{
	"00981A": "49YTW",
}

// Client fetches fund holdings from the ezmoney site. The site serves the
// holdings only to browser looking requests, hence the forged headers.
type Client struct {
	log    zerolog.Logger
	client *retryablehttp.Client
	apiURL string
}

func New(log zerolog.Logger, apiURL string) (*Client, error) {
	if apiURL == "" {
		apiURL = DefaultAPIURL
	}
	apiURL = strings.TrimSuffix(apiURL, "/")

	client := retryablehttp.NewClient()
	client.RetryMax = 3
	client.Logger = nil
	client.HTTPClient.Timeout = requestTimeout

	return &Client{
		log:    log,
		client: client,
		apiURL: apiURL,
	}, nil
}

type assetEntry struct {
	AssetCode string        `json:"AssetCode"`
	Details   []assetDetail `json:"Details"`
}

type assetDetail struct {
	DetailCode string     `json:"DetailCode"`
	DetailName string     `json:"DetailName"`
	Share      assetValue `json:"Share"`
	NavRate    assetValue `json:"NavRate"`
	Amount     assetValue `json:"Amount"`
}

// assetValue is a float that the site serves both as a json number and as a
// formatted string (possibly with thousands separators).
type assetValue float64

func (v *assetValue) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	s = strings.ReplaceAll(s, ",", "")
	if s == "" || s == "null" {
		*v = 0
		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return errors.Wrapf(err, "wrong asset value %q", s)
	}
	*v = assetValue(f)

	return nil
}

func (c *Client) fundPageURL(ref string) string {
	return fmt.Sprintf("%s/ETF/Fund/Info?fundCode=%s", c.apiURL, ref)
}

func (c *Client) FetchHoldings(ctx context.Context, fund *types.Fund) ([]types.Holding, error) {
	ref := fund.ProviderRef
	if ref == "" {
		ref = fundRefs[fund.Code]
	}
	if ref == "" {
		return nil, errors.Errorf("no known ezmoney fund id for fund %q", fund.Code)
	}

	pageURL := c.fundPageURL(ref)
	c.log.Debug().Msgf("fetching %s", pageURL)

	req, err := retryablehttp.NewRequestWithContext(ctx, "GET", pageURL, nil)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/91.0.4472.124 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "zh-TW,zh;q=0.9,en-US;q=0.8,en;q=0.7")

	res, err := c.client.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to fetch fund %q page", fund.Code)
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		return nil, errors.Errorf("failed to fetch fund %q page, status: %d", fund.Code, res.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, maxPageSize))
	if err != nil {
		return nil, errors.WithStack(err)
	}

	holdings, err := parseHoldings(body)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to parse fund %q page", fund.Code)
	}

	return holdings, nil
}

func parseHoldings(body []byte) ([]types.Holding, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, fundsource.NewParseError(body, "cannot parse page html: %v", err)
	}

	content, ok := doc.Find(dataAssetSelector).Attr("data-content")
	if !ok {
		return nil, fundsource.NewParseError(body, "cannot find %q element", dataAssetSelector)
	}

	var entries []assetEntry
	if err := json.Unmarshal([]byte(html.UnescapeString(content)), &entries); err != nil {
		return nil, fundsource.NewParseError(body, "cannot decode asset data: %v", err)
	}

	holdings := []types.Holding{}
	for _, entry := range entries {
		if entry.AssetCode != stockAssetCode {
			continue
		}
		for _, detail := range entry.Details {
			stockID := strings.TrimSpace(detail.DetailCode)
			if stockID == "" {
				continue
			}
			holdings = append(holdings, types.Holding{
				StockID:   stockID,
				StockName: strings.TrimSpace(detail.DetailName),
				Shares:    float64(detail.Share),
				Weight:    float64(detail.NavRate),
				Amount:    float64(detail.Amount),
			})
		}
	}

	if len(holdings) == 0 {
		return nil, fundsource.NewParseError(body, "no stock holdings in asset data")
	}

	return holdings, nil
}
