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

	"etfmon.io/etfmon/internal/services/collector"
	"etfmon.io/etfmon/internal/services/config"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"
)

var cmdFetch = &cobra.Command{
	Use:   "fetch",
	Short: "fetch the current holdings of the configured funds and store a snapshot",
	Run: func(c *cobra.Command, args []string) {
		if err := fetch(c, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type fetchOptions struct {
	config string
}

var fetchOpts fetchOptions

func init() {
	flags := cmdFetch.Flags()

	flags.StringVar(&fetchOpts.config, "config", "./config.yml", "config file path")

	if err := cmdFetch.MarkFlagRequired("config"); err != nil {
		log.Fatal().Err(err).Send()
	}

	cmdEtfmon.AddCommand(cmdFetch)
}

func fetch(c *cobra.Command, args []string) error {
	ctx := context.Background()

	gc, err := config.Parse(fetchOpts.config, []string{"collector"})
	if err != nil {
		return errors.Wrapf(err, "config error")
	}

	coll, err := collector.NewCollector(ctx, log.Logger, gc)
	if err != nil {
		return errors.WithStack(err)
	}

	return errors.WithStack(coll.CollectOnce(ctx))
}
