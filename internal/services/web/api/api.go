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

package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/db"
	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/internal/util"
	"etfmon.io/etfmon/types"
)

// CollectionTrigger requests an immediate collection run. Trigger returns
// false when a run is already queued.
type CollectionTrigger interface {
	Trigger() bool
}

type FundsHandler struct {
	log   zerolog.Logger
	funds []types.Fund
}

func NewFundsHandler(log zerolog.Logger, funds []types.Fund) *FundsHandler {
	return &FundsHandler{log: log, funds: funds}
}

func (h *FundsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if err := util.HTTPResponse(w, http.StatusOK, h.funds); err != nil {
		h.log.Err(err).Send()
	}
}

type SnapshotsHandler struct {
	log zerolog.Logger
	d   *db.DB
}

func NewSnapshotsHandler(log zerolog.Logger, d *db.DB) *SnapshotsHandler {
	return &SnapshotsHandler{log: log, d: d}
}

func (h *SnapshotsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *SnapshotsHandler) do(r *http.Request) ([]*types.Snapshot, error) {
	ctx := r.Context()

	vars := mux.Vars(r)
	fundCode := vars["fundcode"]

	var snapshots []*types.Snapshot
	err := h.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		snapshots, err = h.d.GetSnapshots(tx, fundCode)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return snapshots, nil
}

type SnapshotHandler struct {
	log zerolog.Logger
	d   *db.DB
}

func NewSnapshotHandler(log zerolog.Logger, d *db.DB) *SnapshotHandler {
	return &SnapshotHandler{log: log, d: d}
}

func (h *SnapshotHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *SnapshotHandler) do(r *http.Request) (*types.Snapshot, error) {
	ctx := r.Context()

	vars := mux.Vars(r)
	fundCode := vars["fundcode"]

	date, err := parseDate(vars["date"])
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var snapshot *types.Snapshot
	err = h.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		if snapshot, err = h.d.GetSnapshot(tx, fundCode, date); err != nil {
			return errors.WithStack(err)
		}
		if snapshot == nil {
			return nil
		}
		snapshot.Holdings, err = h.d.GetSnapshotHoldings(tx, snapshot.ID)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if snapshot == nil {
		return nil, util.NewAPIErrorWrap(util.ErrNotExist, errors.Errorf("snapshot for fund %q date %q doesn't exist", fundCode, date))
	}

	return snapshot, nil
}

type ChangeEventHandler struct {
	log zerolog.Logger
	d   *db.DB
}

func NewChangeEventHandler(log zerolog.Logger, d *db.DB) *ChangeEventHandler {
	return &ChangeEventHandler{log: log, d: d}
}

func (h *ChangeEventHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	res, err := h.do(r)
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusOK, res); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *ChangeEventHandler) do(r *http.Request) (*types.ChangeEvent, error) {
	ctx := r.Context()

	vars := mux.Vars(r)
	fundCode := vars["fundcode"]

	date, err := parseDate(vars["date"])
	if err != nil {
		return nil, errors.WithStack(err)
	}

	var event *types.ChangeEvent
	err = h.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		event, err = h.d.GetChangeEvent(tx, fundCode, date)
		return errors.WithStack(err)
	})
	if err != nil {
		return nil, errors.WithStack(err)
	}

	if event == nil {
		return nil, util.NewAPIErrorWrap(util.ErrNotExist, errors.Errorf("change event for fund %q date %q doesn't exist", fundCode, date))
	}

	return event, nil
}

type CollectionCreateHandler struct {
	log     zerolog.Logger
	trigger CollectionTrigger
}

func NewCollectionCreateHandler(log zerolog.Logger, trigger CollectionTrigger) *CollectionCreateHandler {
	return &CollectionCreateHandler{log: log, trigger: trigger}
}

func (h *CollectionCreateHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := h.do()
	if util.HTTPError(w, err) {
		h.log.Err(err).Send()
		return
	}

	if err := util.HTTPResponse(w, http.StatusCreated, nil); err != nil {
		h.log.Err(err).Send()
	}
}

func (h *CollectionCreateHandler) do() error {
	if h.trigger == nil {
		return util.NewAPIErrorWrap(util.ErrBadRequest, errors.Errorf("no collector is running"))
	}

	if !h.trigger.Trigger() {
		return util.NewAPIErrorWrap(util.ErrBadRequest, errors.Errorf("a collection is already queued"))
	}

	return nil
}

func parseDate(s string) (string, error) {
	t, err := time.Parse(types.SnapshotDateFormat, s)
	if err != nil {
		return "", util.NewAPIErrorWrap(util.ErrBadRequest, errors.Wrapf(err, "cannot parse date %q", s))
	}

	return t.Format(types.SnapshotDateFormat), nil
}
