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
	"os"
	"time"

	"etfmon.io/etfmon/cmd"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"
)

func init() {
	cw := zerolog.ConsoleWriter{
		Out:                 os.Stderr,
		TimeFormat:          time.RFC3339Nano,
		FormatErrFieldValue: errors.FormatErrFieldValue,
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano

	log.Logger = log.With().Stack().Caller().Logger().Level(zerolog.InfoLevel).Output(cw)
}

var cmdEtfmon = &cobra.Command{
	Use:     "etfmon",
	Short:   "etfmon",
	Version: cmd.Version,
	// just defined to make --version work
	PersistentPreRun: func(c *cobra.Command, args []string) {
		if etfmonOpts.debug {
			log.Logger = log.Level(zerolog.DebugLevel)
		}
		if etfmonOpts.detailedErrors {
			zerolog.ErrorMarshalFunc = errors.ErrorMarshalFunc
		}
	},
	Run: func(c *cobra.Command, args []string) {
		if err := c.Help(); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type etfmonOptions struct {
	debug          bool
	detailedErrors bool
}

var etfmonOpts etfmonOptions

func init() {
	flags := cmdEtfmon.PersistentFlags()

	flags.BoolVarP(&etfmonOpts.debug, "debug", "d", false, "debug")
	flags.BoolVar(&etfmonOpts.detailedErrors, "detailed-errors", false, "enabled detailed errors logging")
}

func Execute() {
	if err := cmdEtfmon.Execute(); err != nil {
		os.Exit(1)
	}
}
