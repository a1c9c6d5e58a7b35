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
	"fmt"
	"strings"
	"time"

	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/types"
)

// Site tree layout. The index page lives at the site root, everything else
// under the data dir, following the original published site convention.
const (
	DataDir = "etf_data"

	IndexObjectPath = "index.html"

	reportPrefix = DataDir + "/report_"
	csvPrefix    = DataDir + "/etf_holdings_"
	rawPrefix    = DataDir + "/raw"
)

// compactDate converts a snapshot date to the compact form used in artifact
// file names (i.e. "2024-01-02" -> "20240102").
func compactDate(date string) string {
	return strings.ReplaceAll(date, "-", "")
}

func ReportObjectPath(date string) string {
	return reportPrefix + compactDate(date) + ".html"
}

func CSVObjectPath(date string) string {
	return csvPrefix + compactDate(date) + ".csv"
}

// RawPageObjectPath is the archive path of a raw page which failed parsing.
func RawPageObjectPath(fundCode string, fetchedAt time.Time) string {
	return fmt.Sprintf("%s/%s/%s.html", rawPrefix, fundCode, fetchedAt.UTC().Format("20060102_150405"))
}

// DateFromReportObjectPath returns the snapshot date of a report object path,
// an error when the path isn't a report one.
func DateFromReportObjectPath(p string) (string, error) {
	date, err := dateFromObjectPath(p, reportPrefix, ".html")
	return date, errors.Wrapf(err, "wrong report object path %q", p)
}

// DateFromCSVObjectPath returns the snapshot date of a holdings csv object
// path, an error when the path isn't a csv one.
func DateFromCSVObjectPath(p string) (string, error) {
	date, err := dateFromObjectPath(p, csvPrefix, ".csv")
	return date, errors.Wrapf(err, "wrong csv object path %q", p)
}

func dateFromObjectPath(p, prefix, ext string) (string, error) {
	if !strings.HasPrefix(p, prefix) || !strings.HasSuffix(p, ext) {
		return "", errors.Errorf("unexpected path format")
	}

	compact := strings.TrimSuffix(strings.TrimPrefix(p, prefix), ext)
	t, err := time.Parse("20060102", compact)
	if err != nil {
		return "", errors.WithStack(err)
	}

	return t.Format(types.SnapshotDateFormat), nil
}
