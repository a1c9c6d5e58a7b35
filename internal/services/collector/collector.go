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

package collector

import (
	"bytes"
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"
	"golang.org/x/sync/errgroup"

	"etfmon.io/etfmon/internal/db"
	"etfmon.io/etfmon/internal/fundsource"
	"etfmon.io/etfmon/internal/objectstorage"
	"etfmon.io/etfmon/internal/report"
	"etfmon.io/etfmon/internal/services/common"
	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/types"
)

type Collector struct {
	log zerolog.Logger
	gc  *config.Config
	c   *config.Collector

	d   *db.DB
	ost objectstorage.Storage

	funds   []types.Fund
	sources map[string]fundsource.FundSource

	loc *time.Location

	// triggerCh serializes scheduled and manually requested collections so
	// they can never overlap
	triggerCh chan struct{}
}

func NewCollector(ctx context.Context, log zerolog.Logger, gc *config.Config) (*Collector, error) {
	c := &gc.Collector

	if c.Debug {
		log = log.Level(zerolog.DebugLevel)
	}

	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid timezone %q", c.Timezone)
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
	sources := map[string]fundsource.FundSource{}
	for _, cf := range gc.Funds {
		fund := types.Fund{
			Code:        cf.Code,
			Name:        cf.Name,
			Provider:    cf.Provider,
			ProviderRef: cf.ProviderRef,
		}
		funds = append(funds, fund)

		if _, ok := sources[fund.Provider]; !ok {
			fs, err := common.GetFundSource(log, fund.Provider, c.FundSourceURL)
			if err != nil {
				return nil, errors.WithStack(err)
			}
			sources[fund.Provider] = fs
		}
	}

	return &Collector{
		log:       log,
		gc:        gc,
		c:         c,
		d:         d,
		ost:       ost,
		funds:     funds,
		sources:   sources,
		loc:       loc,
		triggerCh: make(chan struct{}, 1),
	}, nil
}

// cronSpec converts an "HH:MM" daily schedule shorthand to a cron
// expression. Any other schedule is passed through as a standard cron
// expression.
func cronSpec(schedule string) string {
	if hour, minute, ok := config.DailyScheduleTime(schedule); ok {
		return minute + " " + hour + " * * *"
	}
	return schedule
}

// Trigger requests a collection run. It returns false when a run is already
// queued.
func (c *Collector) Trigger() bool {
	select {
	case c.triggerCh <- struct{}{}:
		return true
	default:
		return false
	}
}

func (c *Collector) Run(ctx context.Context) error {
	cr := cron.New(cron.WithLocation(c.loc))
	if _, err := cr.AddFunc(cronSpec(c.c.Schedule), func() { c.Trigger() }); err != nil {
		return errors.Wrapf(err, "invalid schedule %q", c.c.Schedule)
	}

	cr.Start()
	defer cr.Stop()

	c.log.Info().Msgf("collector scheduled at %s %s", c.c.Schedule, c.c.Timezone)

	for {
		select {
		case <-ctx.Done():
			c.log.Info().Msg("collector exiting")
			return nil
		case <-c.triggerCh:
			if err := c.collect(ctx); err != nil {
				c.log.Err(err).Msg("collection run error")
			}
		}
	}
}

// CollectOnce runs a single collection outside of the Run loop. Mainly used
// for one shot command line collections.
func (c *Collector) CollectOnce(ctx context.Context) error {
	return errors.WithStack(c.collect(ctx))
}

// collect fetches the current holdings of every configured fund and stores a
// snapshot for the current date in the collector timezone. A change event is
// recorded when a previous snapshot exists and the holdings differ.
func (c *Collector) collect(ctx context.Context) error {
	now := time.Now()
	date := now.In(c.loc).Format(types.SnapshotDateFormat)

	c.log.Info().Msgf("collecting holdings for %d funds, snapshot date %s", len(c.funds), date)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.c.MaxConcurrentFetches)

	for _, fund := range c.funds {
		g.Go(func() error {
			// a failed fund doesn't stop the other ones
			if err := c.collectFund(gctx, fund, date, now); err != nil {
				c.log.Err(err).Msgf("failed to collect fund %q", fund.Code)
			}
			return nil
		})
	}

	// never fails since fund errors are only logged
	_ = g.Wait()

	return nil
}

func (c *Collector) collectFund(ctx context.Context, fund types.Fund, date string, fetchedAt time.Time) error {
	fs := c.sources[fund.Provider]

	holdings, err := fs.FetchHoldings(ctx, &fund)
	if err != nil {
		var parseErr *fundsource.ParseError
		if errors.As(err, &parseErr) && len(parseErr.RawBody) > 0 {
			c.archiveRawPage(ctx, fund.Code, fetchedAt, parseErr.RawBody)
		}
		return errors.Wrapf(err, "failed to fetch holdings")
	}

	c.log.Info().Msgf("fetched %d holdings for fund %q", len(holdings), fund.Code)

	err = c.d.Do(ctx, func(tx *sql.Tx) error {
		prev, err := c.d.GetPreviousSnapshot(tx, fund.Code, date)
		if err != nil {
			return errors.WithStack(err)
		}

		snapshot := &types.Snapshot{
			FundCode:  fund.Code,
			Date:      date,
			FetchedAt: fetchedAt,
		}
		if err := c.d.InsertSnapshot(tx, snapshot, holdings); err != nil {
			return errors.WithStack(err)
		}

		if prev == nil {
			return nil
		}

		prevHoldings, err := c.d.GetSnapshotHoldings(tx, prev.ID)
		if err != nil {
			return errors.WithStack(err)
		}

		changeset := report.Diff(fund.Code, date, prev.Date, holdings, prevHoldings)
		if changeset.Empty() {
			return nil
		}

		// keep the first event recorded for a fund and date, its delivery
		// could already be in flight
		curEvent, err := c.d.GetChangeEvent(tx, fund.Code, date)
		if err != nil {
			return errors.WithStack(err)
		}
		if curEvent != nil {
			return nil
		}

		event := &types.ChangeEvent{
			FundCode:  fund.Code,
			Date:      date,
			Changeset: changeset,
			CreatedAt: fetchedAt,
		}
		return errors.WithStack(c.d.InsertChangeEvent(tx, event))
	})

	return errors.WithStack(err)
}

// archiveRawPage stores the raw page which failed parsing for later
// inspection. Archiviation failures are only logged.
func (c *Collector) archiveRawPage(ctx context.Context, fundCode string, fetchedAt time.Time, body []byte) {
	p := report.RawPageObjectPath(fundCode, fetchedAt)
	if err := c.ost.WriteObject(ctx, p, bytes.NewReader(body), int64(len(body)), true); err != nil {
		c.log.Err(err).Msgf("failed to archive raw page %q", p)
		return
	}

	c.log.Info().Msgf("archived unparseable page for fund %q to %q", fundCode, p)
}
