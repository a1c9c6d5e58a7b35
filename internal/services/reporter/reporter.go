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
	"bytes"
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/db"
	"etfmon.io/etfmon/internal/objectstorage"
	"etfmon.io/etfmon/internal/report"
	"etfmon.io/etfmon/internal/services/common"
	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/types"
)

// reportsInterval is the time to wait between every reportsHandler call.
const reportsInterval = 1 * time.Minute

type Reporter struct {
	log zerolog.Logger
	gc  *config.Config
	c   *config.Reporter

	d   *db.DB
	ost objectstorage.Storage

	funds []types.Fund

	// lastDate and lastFetchTime identify the data the last generated report
	// was built from
	lastDate      string
	lastFetchTime time.Time
}

func NewReporter(ctx context.Context, log zerolog.Logger, gc *config.Config) (*Reporter, error) {
	c := &gc.Reporter

	if c.Debug {
		log = log.Level(zerolog.DebugLevel)
	}

	d, err := common.NewDB(ctx, log, &c.DB)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	ost, err := common.NewObjectStorage(ctx, &c.ObjectStorage)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	funds := make([]types.Fund, 0, len(gc.Funds))
	for _, cf := range gc.Funds {
		funds = append(funds, types.Fund{
			Code:        cf.Code,
			Name:        cf.Name,
			Provider:    cf.Provider,
			ProviderRef: cf.ProviderRef,
		})
	}

	return &Reporter{
		log:   log,
		gc:    gc,
		c:     c,
		d:     d,
		ost:   ost,
		funds: funds,
	}, nil
}

func (r *Reporter) Run(ctx context.Context) error {
	for {
		if err := r.reportsHandler(ctx); err != nil {
			r.log.Err(err).Send()
		}

		sleepCh := time.NewTimer(reportsInterval).C
		select {
		case <-ctx.Done():
			r.log.Info().Msg("reporter exiting")
			return nil
		case <-sleepCh:
		}
	}
}

// reportsHandler regenerates the published site when new snapshot data
// appeared since the last generated report.
func (r *Reporter) reportsHandler(ctx context.Context) error {
	var latestDate string
	var latestFetchTime time.Time

	err := r.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		if latestDate, err = r.d.GetLatestSnapshotDate(tx); err != nil {
			return errors.WithStack(err)
		}
		latestFetchTime, err = r.d.GetLatestFetchTime(tx)
		return errors.WithStack(err)
	})
	if err != nil {
		return errors.WithStack(err)
	}

	if latestDate == "" {
		return nil
	}
	if latestDate == r.lastDate && !latestFetchTime.After(r.lastFetchTime) {
		return nil
	}

	if err := r.GenerateReport(ctx, latestDate); err != nil {
		return errors.WithStack(err)
	}

	r.lastDate = latestDate
	r.lastFetchTime = latestFetchTime

	if r.c.KeepDays > 0 {
		if err := r.prune(ctx, latestDate); err != nil {
			r.log.Err(err).Msg("prune error")
		}
	}

	return nil
}

// LatestSnapshotDate returns the date of the most recent stored snapshot or
// an empty string when no snapshot exists.
func (r *Reporter) LatestSnapshotDate(ctx context.Context) (string, error) {
	var latestDate string
	err := r.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		latestDate, err = r.d.GetLatestSnapshotDate(tx)
		return errors.WithStack(err)
	})

	return latestDate, errors.WithStack(err)
}

// GenerateReport builds and publishes the report page, the holdings csv and
// the index page for the provided snapshot date. Regenerating an already
// published date overwrites its artifacts.
func (r *Reporter) GenerateReport(ctx context.Context, date string) error {
	data := &report.ReportData{
		Date:        date,
		GeneratedAt: time.Now().UTC(),
	}
	snapshots := []*types.Snapshot{}

	err := r.d.Do(ctx, func(tx *sql.Tx) error {
		for _, fund := range r.funds {
			snapshot, err := r.d.GetSnapshot(tx, fund.Code, date)
			if err != nil {
				return errors.WithStack(err)
			}
			if snapshot == nil {
				continue
			}
			if snapshot.Holdings, err = r.d.GetSnapshotHoldings(tx, snapshot.ID); err != nil {
				return errors.WithStack(err)
			}
			snapshots = append(snapshots, snapshot)

			fundReport := &report.FundReport{
				Fund:          fund,
				HoldingsCount: snapshot.HoldingsCount,
			}

			prev, err := r.d.GetPreviousSnapshot(tx, fund.Code, date)
			if err != nil {
				return errors.WithStack(err)
			}
			if prev != nil {
				prevHoldings, err := r.d.GetSnapshotHoldings(tx, prev.ID)
				if err != nil {
					return errors.WithStack(err)
				}
				fundReport.Changeset = report.Diff(fund.Code, date, prev.Date, snapshot.Holdings, prevHoldings)
			}

			data.Funds = append(data.Funds, fundReport)
		}

		return nil
	})
	if err != nil {
		return errors.WithStack(err)
	}

	if len(snapshots) == 0 {
		return errors.Errorf("no snapshots for date %s", date)
	}

	var buf bytes.Buffer
	if err := report.RenderReport(&buf, data); err != nil {
		return errors.Wrapf(err, "failed to render report")
	}
	if err := r.writeObject(ctx, report.ReportObjectPath(date), &buf); err != nil {
		return errors.WithStack(err)
	}

	buf.Reset()
	if err := report.WriteHoldingsCSV(&buf, snapshots); err != nil {
		return errors.Wrapf(err, "failed to write holdings csv")
	}
	if err := r.writeObject(ctx, report.CSVObjectPath(date), &buf); err != nil {
		return errors.WithStack(err)
	}

	buf.Reset()
	indexData := &report.IndexData{
		Date:        date,
		ReportPath:  report.ReportObjectPath(date),
		GeneratedAt: data.GeneratedAt,
	}
	if err := report.RenderIndex(&buf, indexData); err != nil {
		return errors.Wrapf(err, "failed to render index")
	}
	if err := r.writeObject(ctx, report.IndexObjectPath, &buf); err != nil {
		return errors.WithStack(err)
	}

	r.log.Info().Msgf("published report for date %s (%d funds)", date, len(data.Funds))

	return nil
}

func (r *Reporter) writeObject(ctx context.Context, path string, buf *bytes.Buffer) error {
	size := int64(buf.Len())
	return errors.Wrapf(r.ost.WriteObject(ctx, path, buf, size, true), "failed to write object %q", path)
}

// prune deletes snapshots and published artifacts older than KeepDays days
// before the provided date. The index always points to the latest report so
// it's never pruned.
func (r *Reporter) prune(ctx context.Context, date string) error {
	t, err := time.Parse(types.SnapshotDateFormat, date)
	if err != nil {
		return errors.WithStack(err)
	}
	cutoff := t.AddDate(0, 0, -(r.c.KeepDays - 1)).Format(types.SnapshotDateFormat)

	err = r.d.Do(ctx, func(tx *sql.Tx) error {
		return r.d.DeleteSnapshotsBefore(tx, cutoff)
	})
	if err != nil {
		return errors.WithStack(err)
	}

	for object := range r.ost.List(ctx, report.DataDir+"/", "", false) {
		if object.Err != nil {
			return errors.WithStack(object.Err)
		}

		objectDate, err := report.DateFromReportObjectPath(object.Path)
		if err != nil {
			if objectDate, err = report.DateFromCSVObjectPath(object.Path); err != nil {
				continue
			}
		}

		if objectDate >= cutoff {
			continue
		}

		if err := r.ost.DeleteObject(ctx, object.Path); err != nil && !objectstorage.IsNotExist(err) {
			return errors.WithStack(err)
		}

		r.log.Info().Msgf("pruned object %q", object.Path)
	}

	return nil
}
