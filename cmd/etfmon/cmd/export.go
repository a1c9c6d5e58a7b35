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
	"encoding/json"
	"os"

	"etfmon.io/etfmon/internal/services/common"
	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/types"

	"github.com/ghodss/yaml"
	"github.com/rs/zerolog/log"
	"github.com/sorintlab/errors"
	"github.com/spf13/cobra"
)

var cmdExport = &cobra.Command{
	Use:   "export",
	Short: "export the holdings of a stored fund snapshot",
	Run: func(c *cobra.Command, args []string) {
		if err := export(c, args); err != nil {
			log.Fatal().Err(err).Send()
		}
	},
}

type exportOptions struct {
	config      string
	fundCode    string
	date        string
	format      string
	outFilePath string
}

var exportOpts exportOptions

func init() {
	flags := cmdExport.Flags()

	flags.StringVar(&exportOpts.config, "config", "./config.yml", "config file path")
	flags.StringVar(&exportOpts.fundCode, "fund", "", "fund code")
	flags.StringVar(&exportOpts.date, "date", "", "snapshot date (defaults to the latest stored snapshot)")
	flags.StringVar(&exportOpts.format, "format", "yaml", `output format ("yaml" or "json")`)
	flags.StringVar(&exportOpts.outFilePath, "out", "-", "output file path")

	if err := cmdExport.MarkFlagRequired("config"); err != nil {
		log.Fatal().Err(err).Send()
	}
	if err := cmdExport.MarkFlagRequired("fund"); err != nil {
		log.Fatal().Err(err).Send()
	}

	cmdEtfmon.AddCommand(cmdExport)
}

func export(c *cobra.Command, args []string) error {
	ctx := context.Background()

	gc, err := config.Parse(exportOpts.config, []string{"reporter"})
	if err != nil {
		return errors.Wrapf(err, "config error")
	}

	d, err := common.NewDB(ctx, log.Logger, &gc.Reporter.DB)
	if err != nil {
		return errors.WithStack(err)
	}

	var snapshot *types.Snapshot
	err = d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		if exportOpts.date != "" {
			snapshot, err = d.GetSnapshot(tx, exportOpts.fundCode, exportOpts.date)
		} else {
			snapshot, err = d.GetLatestSnapshot(tx, exportOpts.fundCode)
		}
		if err != nil {
			return errors.WithStack(err)
		}
		if snapshot == nil {
			return errors.Errorf("no snapshot found for fund %q", exportOpts.fundCode)
		}

		snapshot.Holdings, err = d.GetSnapshotHoldings(tx, snapshot.ID)
		return errors.WithStack(err)
	})
	if err != nil {
		return errors.WithStack(err)
	}

	var data []byte
	switch exportOpts.format {
	case "yaml":
		data, err = yaml.Marshal(snapshot)
	case "json":
		data, err = json.MarshalIndent(snapshot, "", "  ")
	default:
		return errors.Errorf("unknown output format %q", exportOpts.format)
	}
	if err != nil {
		return errors.WithStack(err)
	}

	w := os.Stdout
	if exportOpts.outFilePath != "-" {
		w, err = os.Create(exportOpts.outFilePath)
		if err != nil {
			return errors.WithStack(err)
		}
		defer w.Close()
	}

	_, err = w.Write(data)

	return errors.WithStack(err)
}
