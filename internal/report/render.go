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
	"html/template"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/Masterminds/sprig/v3"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/types"
)

// ReportData is the input of a daily report page.
type ReportData struct {
	// Date is the snapshot date in types.SnapshotDateFormat
	Date string

	GeneratedAt time.Time

	Funds []*FundReport
}

// FundReport is the report section of a single fund.
type FundReport struct {
	Fund types.Fund

	HoldingsCount int

	// Changeset is nil when there's no previous snapshot to compare against
	Changeset *types.Changeset
}

// IndexData is the input of the index entry page redirecting to the latest
// report.
type IndexData struct {
	// Date is the latest report snapshot date
	Date string

	// ReportPath is the report path relative to the site root
	ReportPath string

	GeneratedAt time.Time
}

func templateFuncs() template.FuncMap {
	funcs := sprig.FuncMap()

	// shares are whole numbers, render them grouped by thousands
	funcs["shares"] = func(v float64) string {
		return groupThousands(int64(math.Round(v)))
	}
	funcs["sharesDiff"] = func(v float64) string {
		n := int64(math.Round(v))
		if n > 0 {
			return "+" + groupThousands(n)
		}
		return groupThousands(n)
	}
	funcs["pct"] = func(v float64) string {
		return strconv.FormatFloat(v, 'f', 2, 64) + "%"
	}
	funcs["pctDiff"] = func(v float64) string {
		return fmt.Sprintf("%+.2f%%", v)
	}
	funcs["diffClass"] = func(v float64) string {
		switch {
		case v > 0:
			return "increase"
		case v < 0:
			return "decrease"
		}
		return ""
	}

	return funcs
}

func groupThousands(n int64) string {
	s := strconv.FormatInt(n, 10)

	neg := false
	if strings.HasPrefix(s, "-") {
		neg = true
		s = s[1:]
	}

	var sb strings.Builder
	for i, c := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			sb.WriteByte(',')
		}
		sb.WriteRune(c)
	}

	if neg {
		return "-" + sb.String()
	}
	return sb.String()
}

var reportTemplate = template.Must(template.New("report").Funcs(templateFuncs()).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Active ETF Daily Changes - {{ .Date }}</title>
<style>
body { font-family: Arial, sans-serif; margin: 20px; }
h1 { color: #333; }
h2 { color: #555; border-bottom: 2px solid #ddd; padding-bottom: 5px; }
table { border-collapse: collapse; width: 100%; margin-bottom: 20px; }
th, td { border: 1px solid #ddd; padding: 8px; text-align: left; font-size: 14px; }
th { background-color: #f2f2f2; }
.increase { color: green; }
.decrease { color: red; }
.fund-section { margin-bottom: 40px; border: 1px solid #ccc; padding: 20px; border-radius: 5px; }
.num { text-align: right; }
</style>
</head>
<body>
<h1>Active ETF Holdings - Daily Change Report ({{ .Date }})</h1>
{{- range .Funds }}
<div class="fund-section">
<h2>{{ .Fund.Code }}{{ with .Fund.Name }} - {{ . }}{{ end }}</h2>
<p>{{ .HoldingsCount }} holdings</p>
{{- if .Changeset }}
{{- with .Changeset.Entered }}
<h3>New Positions</h3>
<table>
<thead><tr><th>Stock ID</th><th>Name</th><th>Shares</th><th>Weight</th></tr></thead>
<tbody>
{{- range . }}
<tr><td>{{ .StockID }}</td><td>{{ .StockName }}</td><td class="num">{{ shares .Shares }}</td><td class="num">{{ pct .Weight }}</td></tr>
{{- end }}
</tbody>
</table>
{{- else }}
<p>No new positions.</p>
{{- end }}
{{- with .Changeset.Exited }}
<h3>Exited Positions</h3>
<table>
<thead><tr><th>Stock ID</th><th>Name</th><th>Shares (Prev)</th><th>Weight (Prev)</th></tr></thead>
<tbody>
{{- range . }}
<tr><td>{{ .StockID }}</td><td>{{ .StockName }}</td><td class="num">{{ shares .Shares }}</td><td class="num">{{ pct .Weight }}</td></tr>
{{- end }}
</tbody>
</table>
{{- else }}
<p>No exited positions.</p>
{{- end }}
{{- with .Changeset.Changed }}
<h3>Holdings Changes</h3>
<table>
<thead><tr><th>Stock ID</th><th>Name</th><th>Shares (Prev)</th><th>Shares (Curr)</th><th>Diff</th><th>Weight (Prev)</th><th>Weight (Curr)</th><th>Diff</th></tr></thead>
<tbody>
{{- range . }}
<tr>
<td>{{ .StockID }}</td>
<td>{{ .StockName }}</td>
<td class="num">{{ shares .SharesPrev }}</td>
<td class="num">{{ shares .SharesCurr }}</td>
<td class="num {{ diffClass .SharesDiff }}">{{ sharesDiff .SharesDiff }}</td>
<td class="num">{{ pct .WeightPrev }}</td>
<td class="num">{{ pct .WeightCurr }}</td>
<td class="num {{ diffClass .WeightDiff }}">{{ pctDiff .WeightDiff }}</td>
</tr>
{{- end }}
</tbody>
</table>
{{- else }}
<p>No significant changes.</p>
{{- end }}
{{- else }}
<p>Not enough history for comparison (need at least 2 days).</p>
{{- end }}
</div>
{{- end }}
<p><small>Generated at {{ .GeneratedAt | date "2006-01-02 15:04:05 MST" }}</small></p>
</body>
</html>
`))

var indexTemplate = template.Must(template.New("index").Funcs(templateFuncs()).Parse(`<!DOCTYPE html>
<html>
<head>
<meta charset="UTF-8">
<title>Active ETF Monitor - Latest Report</title>
<meta http-equiv="refresh" content="0; url={{ .ReportPath }}" />
<style>
body { font-family: Arial, sans-serif; text-align: center; margin-top: 50px; }
a { text-decoration: none; color: #007bff; font-size: 20px; }
</style>
</head>
<body>
<h1>Active ETF Monitor</h1>
<p>Redirecting to latest report: <a href="{{ .ReportPath }}">{{ .Date }}</a></p>
<p><small>Last updated: {{ .GeneratedAt | date "2006-01-02 15:04:05 MST" }}</small></p>
</body>
</html>
`))

func RenderReport(w io.Writer, data *ReportData) error {
	return errors.WithStack(reportTemplate.Execute(w, data))
}

func RenderIndex(w io.Writer, data *IndexData) error {
	return errors.WithStack(indexTemplate.Execute(w, data))
}
