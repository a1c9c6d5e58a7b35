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
	"slices"

	"etfmon.io/etfmon/internal/services/collector"
	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/services/notification"
	"etfmon.io/etfmon/internal/services/reporter"
	"etfmon.io/etfmon/internal/services/web"
	"etfmon.io/etfmon/internal/services/web/api"

	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"
)

var componentsNames = []string{
	"all",
	"collector",
	"reporter",
	"notification",
	"web",
}

var cmdServe = &cobra.Command{
	Use:   "serve",
	Short: "serve",
	Run: func(c *cobra.Command, args []string) {
		if err := serve(c, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type serveOptions struct {
	config     string
	components []string
}

var serveOpts serveOptions

func init() {
	flags := cmdServe.Flags()

	flags.StringVar(&serveOpts.config, "config", "./config.yml", "config file path")
	flags.StringSliceVar(&serveOpts.components, "components", []string{"all"}, `list of components to start (specify "all" to start all components)`)

	if err := cmdServe.MarkFlagRequired("config"); err != nil {
		log.Fatal().Err(err).Send()
	}

	cmdEtfmon.AddCommand(cmdServe)
}

func isComponentEnabled(name string) bool {
	if slices.Contains(serveOpts.components, "all") {
		return true
	}
	return slices.Contains(serveOpts.components, name)
}

func serve(c *cobra.Command, args []string) error {
	ctx := context.Background()

	for _, ec := range serveOpts.components {
		if !slices.Contains(componentsNames, ec) {
			return errors.Errorf("unknown component name %q", ec)
		}
	}

	gc, err := config.Parse(serveOpts.config, serveOpts.components)
	if err != nil {
		return errors.Wrapf(err, "config error")
	}

	var coll *collector.Collector
	if isComponentEnabled("collector") {
		coll, err = collector.NewCollector(ctx, log.Logger, gc)
		if err != nil {
			return errors.Wrapf(err, "failed to start collector")
		}
	}

	var rep *reporter.Reporter
	if isComponentEnabled("reporter") {
		rep, err = reporter.NewReporter(ctx, log.Logger, gc)
		if err != nil {
			return errors.Wrapf(err, "failed to start reporter")
		}
	}

	var ns *notification.NotificationService
	if isComponentEnabled("notification") {
		ns, err = notification.NewNotificationService(ctx, log.Logger, gc)
		if err != nil {
			return errors.Wrapf(err, "failed to start notification service")
		}
	}

	var ws *web.WebService
	if isComponentEnabled("web") {
		// manual collections are available only when the collector runs
		// in the same process.
		var trigger api.CollectionTrigger
		if coll != nil {
			trigger = coll
		}

		ws, err = web.NewWebService(ctx, log.Logger, gc, trigger)
		if err != nil {
			return errors.Wrapf(err, "failed to start web service")
		}
	}

	errCh := make(chan error, len(componentsNames))

	if coll != nil {
		go func() { errCh <- coll.Run(ctx) }()
	}
	if rep != nil {
		go func() { errCh <- rep.Run(ctx) }()
	}
	if ns != nil {
		go func() { errCh <- ns.Run(ctx) }()
	}
	if ws != nil {
		go func() { errCh <- ws.Run(ctx) }()
	}

	return <-errCh
}
