// Copyright 2019 Sorint.lab
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

package cmd

import (
	"context"
	"time"

	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/services/reporter"
	"etfmon.io/etfmon/types"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"
)

var cmdReport = &cobra.Command{
	Use:   "report",
	Short: "generate and publish the report for a snapshot date",
	Run: func(c *cobra.Command, args []string) {
		if err := report(c, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type reportOptions struct {
	config string
	date   string
}

var reportOpts reportOptions

func init() {
	flags := cmdReport.Flags()

	flags.StringVar(&reportOpts.config, "config", "./config.yml", "config file path")
	flags.StringVar(&reportOpts.date, "date", "", "snapshot date (defaults to the latest stored snapshot date)")

	if err := cmdReport.MarkFlagRequired("config"); err != nil {
		log.Fatal().Err(err).Send()
	}

	cmdEtfmon.AddCommand(cmdReport)
}

func report(c *cobra.Command, args []string) error {
	ctx := context.Background()

	gc, err := config.Parse(reportOpts.config, []string{"reporter"})
	if err != nil {
		return errors.Wrapf(err, "config error")
	}

	rep, err := reporter.NewReporter(ctx, log.Logger, gc)
	if err != nil {
		return errors.WithStack(err)
	}

	date := reportOpts.date
	if date == "" {
		date, err = rep.LatestSnapshotDate(ctx)
		if err != nil {
			return errors.WithStack(err)
		}
		if date == "" {
			return errors.New("no snapshots available")
		}
	} else {
		if _, err := time.Parse(types.SnapshotDateFormat, date); err != nil {
			return errors.Errorf("wrong date %q, it must be in YYYY-MM-DD format", date)
		}
	}

	if err := rep.GenerateReport(ctx, date); err != nil {
		return errors.WithStack(err)
	}

	log.Info().Msgf("report for date %s published", date)

	return nil
}
