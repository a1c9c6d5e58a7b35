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
	"context"
	stdsql "database/sql"

	sq "github.com/huandu/go-sqlbuilder"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/sql"
)

var ddl = []string{
	`create table if not exists snapshot (
		id varchar not null,
		fund_code varchar not null,
		snapshot_date varchar not null,
		fetched_at timestamptz not null,
		holdings_count integer not null,
		primary key (id),
		unique (fund_code, snapshot_date)
	)`,

	`create table if not exists holding (
		snapshot_id varchar not null,
		stock_id varchar not null,
		stock_name varchar not null,
		shares real not null,
		weight real not null,
		amount real not null,
		primary key (snapshot_id, stock_id),
		foreign key (snapshot_id) references snapshot(id)
	)`,

	`create table if not exists change_event (
		id varchar not null,
		sequence integer not null,
		fund_code varchar not null,
		snapshot_date varchar not null,
		changeset bytea not null,
		created_at timestamptz not null,
		primary key (id),
		unique (sequence)
	)`,

	`create table if not exists change_event_delivery (
		id varchar not null,
		sequence integer not null,
		change_event_id varchar not null,
		delivery_status varchar not null,
		delivered_at timestamptz,
		primary key (id),
		unique (sequence),
		foreign key (change_event_id) references change_event(id)
	)`,
}

type DB struct {
	log zerolog.Logger
	sdb *sql.DB
}

func NewDB(log zerolog.Logger, sdb *sql.DB) (*DB, error) {
	return &DB{
		log: log,
		sdb: sdb,
	}, nil
}

func (d *DB) DBType() sql.Type {
	return d.sdb.Type()
}

func (d *DB) Do(ctx context.Context, f func(tx *sql.Tx) error) error {
	return errors.WithStack(d.sdb.Do(ctx, f))
}

// Setup creates the database schema if it doesn't already exist.
func (d *DB) Setup(ctx context.Context) error {
	err := d.Do(ctx, func(tx *sql.Tx) error {
		for _, stmt := range ddl {
			if _, err := tx.Exec(stmt); err != nil {
				return errors.Wrapf(err, "failed to create db schema")
			}
		}
		return nil
	})

	return errors.WithStack(err)
}

func (d *DB) Flavor() sq.Flavor {
	switch d.sdb.Type() {
	case sql.Postgres:
		return sq.PostgreSQL
	case sql.Sqlite3:
		return sq.SQLite
	}

	return sq.PostgreSQL
}

func (d *DB) exec(tx *sql.Tx, rq sq.Builder) (stdsql.Result, error) {
	q, args := rq.BuildWithFlavor(d.Flavor())

	r, err := tx.Exec(q, args...)
	return r, errors.WithStack(err)
}

func (d *DB) query(tx *sql.Tx, rq sq.Builder) (*stdsql.Rows, error) {
	q, args := rq.BuildWithFlavor(d.Flavor())

	r, err := tx.Query(q, args...)
	return r, errors.WithStack(err)
}

func mustSingleRow[T any](s []*T) (*T, error) {
	if len(s) > 1 {
		return nil, errors.Errorf("too many rows returned")
	}
	if len(s) == 0 {
		return nil, nil
	}

	return s[0], nil
}
