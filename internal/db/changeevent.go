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
	stdsql "database/sql"
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
	sq "github.com/huandu/go-sqlbuilder"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/types"
)

func changeEventSelect() *sq.SelectBuilder {
	sb := sq.NewSelectBuilder()
	return sb.Select("id", "sequence", "fund_code", "snapshot_date", "changeset", "created_at").From("change_event")
}

func (d *DB) fetchChangeEvents(tx *sql.Tx, q sq.Builder) ([]*types.ChangeEvent, error) {
	rows, err := d.query(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	events := []*types.ChangeEvent{}
	for rows.Next() {
		e := &types.ChangeEvent{}
		var changeset []byte
		var createdAt time.Time
		if err := rows.Scan(&e.ID, &e.Sequence, &e.FundCode, &e.Date, &changeset, &createdAt); err != nil {
			return nil, errors.Wrapf(err, "failed to scan change event row")
		}
		e.CreatedAt = createdAt.UTC()
		if err := json.Unmarshal(changeset, &e.Changeset); err != nil {
			return nil, errors.Wrapf(err, "failed to unmarshal changeset")
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return events, nil
}

func (d *DB) nextSequence(tx *sql.Tx, table string) (uint64, error) {
	sb := sq.NewSelectBuilder()
	sb.Select("max(sequence)").From(table)

	q, args := sb.BuildWithFlavor(d.Flavor())

	var seq stdsql.NullInt64
	if err := tx.QueryRow(q, args...).Scan(&seq); err != nil {
		return 0, errors.Wrapf(err, "failed to get max sequence for table %q", table)
	}

	return uint64(seq.Int64) + 1, nil
}

// InsertChangeEvent inserts the change event assigning it the next sequence
// and creates its delivery in the notDelivered state.
func (d *DB) InsertChangeEvent(tx *sql.Tx, event *types.ChangeEvent) error {
	seq, err := d.nextSequence(tx, "change_event")
	if err != nil {
		return errors.WithStack(err)
	}
	event.Sequence = seq

	if event.ID == "" {
		event.ID = uuid.Must(uuid.NewV4()).String()
	}

	changeset, err := json.Marshal(event.Changeset)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal changeset")
	}

	ib := sq.NewInsertBuilder()
	ib.InsertInto("change_event").Cols("id", "sequence", "fund_code", "snapshot_date", "changeset", "created_at")
	ib.Values(event.ID, event.Sequence, event.FundCode, event.Date, changeset, event.CreatedAt)
	if _, err := d.exec(tx, ib); err != nil {
		return errors.Wrapf(err, "failed to insert change event")
	}

	dseq, err := d.nextSequence(tx, "change_event_delivery")
	if err != nil {
		return errors.WithStack(err)
	}

	delivery := &types.ChangeEventDelivery{
		ID:             uuid.Must(uuid.NewV4()).String(),
		Sequence:       dseq,
		ChangeEventID:  event.ID,
		DeliveryStatus: types.DeliveryStatusNotDelivered,
	}

	dib := sq.NewInsertBuilder()
	dib.InsertInto("change_event_delivery").Cols("id", "sequence", "change_event_id", "delivery_status", "delivered_at")
	dib.Values(delivery.ID, delivery.Sequence, delivery.ChangeEventID, delivery.DeliveryStatus, nil)
	if _, err := d.exec(tx, dib); err != nil {
		return errors.Wrapf(err, "failed to insert change event delivery")
	}

	return nil
}

func (d *DB) GetChangeEvent(tx *sql.Tx, fundCode, date string) (*types.ChangeEvent, error) {
	q := changeEventSelect()
	q.Where(q.E("fund_code", fundCode), q.E("snapshot_date", date))

	events, err := d.fetchChangeEvents(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return mustSingleRow(events)
}

func (d *DB) GetChangeEventByID(tx *sql.Tx, changeEventID string) (*types.ChangeEvent, error) {
	q := changeEventSelect()
	q.Where(q.E("id", changeEventID))

	events, err := d.fetchChangeEvents(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return mustSingleRow(events)
}

func changeEventDeliverySelect() *sq.SelectBuilder {
	sb := sq.NewSelectBuilder()
	return sb.Select("id", "sequence", "change_event_id", "delivery_status", "delivered_at").From("change_event_delivery")
}

func (d *DB) fetchChangeEventDeliveries(tx *sql.Tx, q sq.Builder) ([]*types.ChangeEventDelivery, error) {
	rows, err := d.query(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}
	defer rows.Close()

	deliveries := []*types.ChangeEventDelivery{}
	for rows.Next() {
		delivery := &types.ChangeEventDelivery{}
		var deliveredAt stdsql.NullTime
		if err := rows.Scan(&delivery.ID, &delivery.Sequence, &delivery.ChangeEventID, &delivery.DeliveryStatus, &deliveredAt); err != nil {
			return nil, errors.Wrapf(err, "failed to scan change event delivery row")
		}
		if deliveredAt.Valid {
			t := deliveredAt.Time.UTC()
			delivery.DeliveredAt = &t
		}
		deliveries = append(deliveries, delivery)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.WithStack(err)
	}

	return deliveries, nil
}

func (d *DB) GetChangeEventDeliveryByID(tx *sql.Tx, deliveryID string) (*types.ChangeEventDelivery, error) {
	q := changeEventDeliverySelect()
	q.Where(q.E("id", deliveryID))

	deliveries, err := d.fetchChangeEventDeliveries(tx, q)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return mustSingleRow(deliveries)
}

// GetChangeEventDeliveriesAfterSequence returns the deliveries, ordered by
// sequence, with a sequence greater than the provided one and optionally
// filtered by delivery status.
func (d *DB) GetChangeEventDeliveriesAfterSequence(tx *sql.Tx, afterSequence uint64, deliveryStatus types.DeliveryStatus, limit int) ([]*types.ChangeEventDelivery, error) {
	q := changeEventDeliverySelect().OrderBy("sequence").Asc()
	if deliveryStatus != "" {
		q.Where(q.E("delivery_status", deliveryStatus))
	}
	q.Where(q.G("sequence", afterSequence))

	if limit > 0 {
		q.Limit(limit)
	}

	deliveries, err := d.fetchChangeEventDeliveries(tx, q)
	return deliveries, errors.WithStack(err)
}

func (d *DB) UpdateChangeEventDelivery(tx *sql.Tx, delivery *types.ChangeEventDelivery) error {
	ub := sq.NewUpdateBuilder()
	ub.Update("change_event_delivery")
	ub.Set(
		ub.Assign("delivery_status", delivery.DeliveryStatus),
		ub.Assign("delivered_at", delivery.DeliveredAt),
	)
	ub.Where(ub.E("id", delivery.ID))

	if _, err := d.exec(tx, ub); err != nil {
		return errors.Wrapf(err, "failed to update change event delivery")
	}

	return nil
}
