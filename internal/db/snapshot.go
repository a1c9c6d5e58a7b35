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

package db

import (
	"time"

	"github.com/gofrs/uuid/v5"
	sq "github.com/huandu/go-sqlbuilder"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/types"
)

func snapshotSelect() *sq.SelectBuilder {
	sb := sq.NewSelectBuilder()
	return sb.Select("id", "fund_code", "snapshot_date", "fetched_at", "holdings_count").From("snapshot")
}

func (d *DB) fetchSnapshots(tx *sql.Tx, q sq.Builder) ([]*types.Snapshot, error) {
	rows, err := d.query(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	snapshots := []*types.Snapshot{}
	for rows.Next() {
		s := &types.Snapshot{}
		var fetchedAt time.Time
		if err := rows.Scan(&s.ID, &s.FundCode, &s.Date, &fetchedAt, &s.HoldingsCount); err != nil {
			return nil, errors.Wrapf(err, "failed to scan snapshot row")
		}
		s.FetchedAt = fetchedAt.UTC()
		snapshots = append(snapshots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return snapshots, nil
}

// InsertSnapshot inserts the snapshot and its holdings. An already existing
// snapshot for the same fund and date is replaced.
func (d *DB) InsertSnapshot(tx *sql.Tx, snapshot *types.Snapshot, holdings []types.Holding) error {
	cur, err := d.GetSnapshot(tx, snapshot.FundCode, snapshot.Date)
	if err != nil {
		return errors.WithStack(err)
	}
	if cur != nil {
		if err := d.deleteSnapshot(tx, cur.ID); err != nil {
			return errors.WithStack(err)
		}
	}

	if snapshot.ID == "" {
		snapshot.ID = uuid.Must(uuid.NewV4()).String()
	}

	// a source may report the same stock more than once, the last row wins
	holdings = dedupeHoldings(holdings)
	snapshot.HoldingsCount = len(holdings)

	ib := sq.NewInsertBuilder()
	ib.InsertInto("snapshot").Cols("id", "fund_code", "snapshot_date", "fetched_at", "holdings_count")
	ib.Values(snapshot.ID, snapshot.FundCode, snapshot.Date, snapshot.FetchedAt, snapshot.HoldingsCount)
	if _, err := d.exec(tx, ib); err != nil {
		return errors.Wrapf(err, "failed to insert snapshot")
	}

	for _, h := range holdings {
		ib := sq.NewInsertBuilder()
		ib.InsertInto("holding").Cols("snapshot_id", "stock_id", "stock_name", "shares", "weight", "amount")
		ib.Values(snapshot.ID, h.StockID, h.StockName, h.Shares, h.Weight, h.Amount)
		if _, err := d.exec(tx, ib); err != nil {
			return errors.Wrapf(err, "failed to insert holding %q", h.StockID)
		}
	}

	return nil
}

func dedupeHoldings(holdings []types.Holding) []types.Holding {
	byStockID := map[string]int{}

	deduped := make([]types.Holding, 0, len(holdings))
	for _, h := range holdings {
		if i, ok := byStockID[h.StockID]; ok {
			deduped[i] = h
			continue
		}
		byStockID[h.StockID] = len(deduped)
		deduped = append(deduped, h)
	}

	return deduped
}

func (d *DB) deleteSnapshot(tx *sql.Tx, snapshotID string) error {
	hd := sq.NewDeleteBuilder()
	hd.DeleteFrom("holding").Where(hd.E("snapshot_id", snapshotID))
	if _, err := d.exec(tx, hd); err != nil {
		return errors.Wrapf(err, "failed to delete snapshot holdings")
	}

	sd := sq.NewDeleteBuilder()
	sd.DeleteFrom("snapshot").Where(sd.E("id", snapshotID))
	if _, err := d.exec(tx, sd); err != nil {
		return errors.Wrapf(err, "failed to delete snapshot")
	}

	return nil
}

func (d *DB) GetSnapshot(tx *sql.Tx, fundCode, date string) (*types.Snapshot, error) {
	q := snapshotSelect()
	q.Where(q.E("fund_code", fundCode), q.E("snapshot_date", date))

	snapshots, err := d.fetchSnapshots(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return mustSingleRow(snapshots)
}

// GetLatestSnapshot returns the snapshot with the greatest date for the fund,
// nil if no snapshot exists.
func (d *DB) GetLatestSnapshot(tx *sql.Tx, fundCode string) (*types.Snapshot, error) {
	q := snapshotSelect()
	q.Where(q.E("fund_code", fundCode)).OrderBy("snapshot_date").Desc().Limit(1)

	snapshots, err := d.fetchSnapshots(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return mustSingleRow(snapshots)
}

// GetPreviousSnapshot returns the snapshot with the greatest date lesser than
// the provided date for the fund, nil if none exists.
func (d *DB) GetPreviousSnapshot(tx *sql.Tx, fundCode, date string) (*types.Snapshot, error) {
	q := snapshotSelect()
	q.Where(q.E("fund_code", fundCode), q.L("snapshot_date", date)).OrderBy("snapshot_date").Desc().Limit(1)

	snapshots, err := d.fetchSnapshots(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return mustSingleRow(snapshots)
}

func (d *DB) GetSnapshots(tx *sql.Tx, fundCode string) ([]*types.Snapshot, error) {
	q := snapshotSelect()
	q.Where(q.E("fund_code", fundCode)).OrderBy("snapshot_date").Asc()

	snapshots, err := d.fetchSnapshots(tx, q)
	return snapshots, errors.WithStack(err)
}

// GetLatestSnapshotDate returns the greatest snapshot date between all the
// funds, empty if no snapshot exists.
func (d *DB) GetLatestSnapshotDate(tx *sql.Tx) (string, error) {
	sb := sq.NewSelectBuilder()
	sb.Select("max(snapshot_date)").From("snapshot")

	q, args := sb.BuildWithFlavor(d.Flavor())

	var date *string
	if err := tx.QueryRow(q, args...).Scan(&date); err != nil {
		return "", errors.Wrapf(err, "failed to get latest snapshot date")
	}
	if date == nil {
		return "", nil
	}

	return *date, nil
}

// GetLatestFetchTime returns the greatest fetch time between all the
// snapshots, zero if no snapshot exists.
func (d *DB) GetLatestFetchTime(tx *sql.Tx) (time.Time, error) {
	q := snapshotSelect()
	q.OrderBy("fetched_at").Desc().Limit(1)

	snapshots, err := d.fetchSnapshots(tx, q)
	if err != nil {
		return time.Time{}, errors.WithStack(err)
	}
	if len(snapshots) == 0 {
		return time.Time{}, nil
	}

	return snapshots[0].FetchedAt, nil
}

func (d *DB) GetSnapshotHoldings(tx *sql.Tx, snapshotID string) ([]types.Holding, error) {
	sb := sq.NewSelectBuilder()
	sb.Select("stock_id", "stock_name", "shares", "weight", "amount").From("holding")
	sb.Where(sb.E("snapshot_id", snapshotID)).OrderBy("stock_id").Asc()

	rows, err := d.query(tx, sb)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	holdings := []types.Holding{}
	for rows.Next() {
		var h types.Holding
		if err := rows.Scan(&h.StockID, &h.StockName, &h.Shares, &h.Weight, &h.Amount); err != nil {
			return nil, errors.Wrapf(err, "failed to scan holding row")
		}
		holdings = append(holdings, h)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return holdings, nil
}

// DeleteSnapshotsBefore deletes all the snapshots (and their holdings) with a
// date lesser than the provided one.
func (d *DB) DeleteSnapshotsBefore(tx *sql.Tx, date string) error {
	q := snapshotSelect()
	q.Where(q.L("snapshot_date", date))

	snapshots, err := d.fetchSnapshots(tx, q)
	if err != nil {
		return errors.WithStack(err)
	}

	for _, s := range snapshots {
		if err := d.deleteSnapshot(tx, s.ID); err != nil {
			return errors.WithStack(err)
		}
	}

	return nil
}
