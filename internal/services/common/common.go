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

package common

import (
	"context"
	"net/url"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/db"
	"etfmon.io/etfmon/internal/fundsource"
	"etfmon.io/etfmon/internal/fundsource/ezmoney"
	"etfmon.io/etfmon/internal/objectstorage"
	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/sql"
)

func NewObjectStorage(ctx context.Context, c *config.ObjectStorage) (objectstorage.Storage, error) {
	var (
		err error
		ost objectstorage.Storage
	)

	switch c.Type {
	case config.ObjectStorageTypePosix:
		ost, err = objectstorage.NewPosix(c.Path)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create posix object storage")
		}
	case config.ObjectStorageTypeS3:
		// minio golang client doesn't accept an url as an endpoint
		endpoint := c.Endpoint
		secure := !c.DisableTLS
		if u, err := url.Parse(c.Endpoint); err == nil && u.Scheme != "" {
			endpoint = u.Host
			switch u.Scheme {
			case "https":
				secure = true
			case "http":
				secure = false
			default:
				return nil, errors.Errorf("wrong s3 endpoint scheme %q (must be http or https)", u.Scheme)
			}
		}
		ost, err = objectstorage.NewS3(ctx, c.Bucket, c.Location, endpoint, c.AccessKey, c.SecretAccessKey, secure)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to create s3 object storage")
		}
	default:
		return nil, errors.Errorf("unknown object storage type %q", c.Type)
	}

	return ost, nil
}

// NewDB opens the database and creates the schema if needed.
func NewDB(ctx context.Context, log zerolog.Logger, c *config.DB) (*db.DB, error) {
	sdb, err := sql.NewDB(c.Type, c.ConnString)
	if err != nil {
		return nil, errors.Wrapf(err, "new db error")
	}

	d, err := db.NewDB(log, sdb)
	if err != nil {
		return nil, errors.Wrapf(err, "new db error")
	}

	if err := d.Setup(ctx); err != nil {
		return nil, errors.Wrapf(err, "failed to setup db")
	}

	return d, nil
}

// GetFundSource returns the fund source for the provided provider name.
func GetFundSource(log zerolog.Logger, provider, apiURL string) (fundsource.FundSource, error) {
	switch provider {
	case "ezmoney":
		fs, err := ezmoney.New(log, apiURL)
		return fs, errors.WithStack(err)
	default:
		return nil, errors.Errorf("fund source provider %q isn't a valid provider", provider)
	}
}
