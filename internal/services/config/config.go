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

package config

import (
	"os"
	"regexp"
	"slices"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sorintlab/errors"
	yaml "gopkg.in/yaml.v2"

	"etfmon.io/etfmon/internal/sql"
)

const (
	maxIDLength = 20

	defaultSchedule = "18:00"
	defaultTimezone = "Asia/Taipei"
)

var idRegexp = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9]*([-]?[a-zA-Z0-9]+)+$`)

type Config struct {
	// ID defines the etfmon installation id. It's used inside the various
	// services to uniquely distinguish it from other installations
	// Defaults to "etfmon"
	ID string `yaml:"id"`

	// Funds is the list of monitored funds, shared by every service
	Funds []Fund `yaml:"funds"`

	Collector    Collector    `yaml:"collector"`
	Reporter     Reporter     `yaml:"reporter"`
	Notification Notification `yaml:"notification"`
	Web          Web          `yaml:"web"`

	// Global db and object storage to avoid repeating them for every service

	DB DB `yaml:"db"`

	ObjectStorage ObjectStorage `yaml:"objectStorage"`
}

type Fund struct {
	// Code is the public fund code (i.e. "00981A")
	Code string `yaml:"code"`

	Name string `yaml:"name"`

	// Provider is the fund source provider, defaults to "ezmoney"
	Provider string `yaml:"provider"`

	// ProviderRef is the provider internal fund id when it differs from the
	// public fund code
	ProviderRef string `yaml:"providerRef"`
}

type Collector struct {
	Debug bool `yaml:"debug"`

	// Schedule is the daily collection time in "HH:MM" format, interpreted in
	// Timezone
	Schedule string `yaml:"schedule"`

	// Timezone is the IANA timezone name used for the schedule and for the
	// snapshot dates
	Timezone string `yaml:"timezone"`

	// FundSourceURL overrides the provider base url. Mainly useful for testing
	FundSourceURL string `yaml:"fundSourceURL"`

	// MaxConcurrentFetches is the max number of funds fetched in parallel
	MaxConcurrentFetches int `yaml:"maxConcurrentFetches"`

	DB DB `yaml:"db"`

	ObjectStorage ObjectStorage `yaml:"objectStorage"`
}

type Reporter struct {
	Debug bool `yaml:"debug"`

	// KeepDays is the number of days of snapshots and reports to retain. Zero
	// means keep everything
	KeepDays int `yaml:"keepDays"`

	DB DB `yaml:"db"`

	ObjectStorage ObjectStorage `yaml:"objectStorage"`
}

type Notification struct {
	Debug bool `yaml:"debug"`

	WebhookURL    string `yaml:"webhookURL"`
	WebhookSecret string `yaml:"webhookSecret"`

	DB DB `yaml:"db"`
}

type Web struct {
	Debug bool `yaml:"debug"`

	ListenAddress string `yaml:"listenAddress"`

	// use TLS (https)
	TLS bool `yaml:"tls"`
	// TLSCert is the path to the pem formatted server certificate. If the
	// certificate is signed by a certificate authority, the certFile should be
	// the concatenation of the server's certificate, any intermediates, and the
	// CA's certificate.
	TLSCertFile string `yaml:"tlsCertFile"`
	// Server cert private key
	TLSKeyFile string `yaml:"tlsKeyFile"`

	// CORS allowed origins
	AllowedOrigins []string `yaml:"allowedOrigins"`

	DB DB `yaml:"db"`

	ObjectStorage ObjectStorage `yaml:"objectStorage"`
}

type DB struct {
	Type       sql.Type `yaml:"type"`
	ConnString string   `yaml:"connString"`
}

type ObjectStorageType string

const (
	ObjectStorageTypePosix ObjectStorageType = "posix"
	ObjectStorageTypeS3    ObjectStorageType = "s3"
)

type ObjectStorage struct {
	Type ObjectStorageType `yaml:"type"`

	// Posix
	Path string `yaml:"path"`

	// S3
	Endpoint        string `yaml:"endpoint"`
	Bucket          string `yaml:"bucket"`
	Location        string `yaml:"location"`
	AccessKey       string `yaml:"accessKey"`
	SecretAccessKey string `yaml:"secretAccessKey"`
	DisableTLS      bool   `yaml:"disableTLS"`
}

var defaultConfig = func() *Config {
	return &Config{
		ID: "etfmon",
		Collector: Collector{
			Schedule:             defaultSchedule,
			Timezone:             defaultTimezone,
			MaxConcurrentFetches: 2,
		},
	}
}

func Parse(configFile string, componentsNames []string) (*Config, error) {
	configData, err := os.ReadFile(configFile)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	c := defaultConfig()
	if err := yaml.Unmarshal(configData, &c); err != nil {
		return nil, errors.WithStack(err)
	}

	// Use global values if service values are empty
	if c.Collector.DB.Type == "" {
		c.Collector.DB = c.DB
	}
	if c.Reporter.DB.Type == "" {
		c.Reporter.DB = c.DB
	}
	if c.Notification.DB.Type == "" {
		c.Notification.DB = c.DB
	}
	if c.Web.DB.Type == "" {
		c.Web.DB = c.DB
	}

	if c.Collector.ObjectStorage.Type == "" {
		c.Collector.ObjectStorage = c.ObjectStorage
	}
	if c.Reporter.ObjectStorage.Type == "" {
		c.Reporter.ObjectStorage = c.ObjectStorage
	}
	if c.Web.ObjectStorage.Type == "" {
		c.Web.ObjectStorage = c.ObjectStorage
	}

	for i := range c.Funds {
		if c.Funds[i].Provider == "" {
			c.Funds[i].Provider = "ezmoney"
		}
	}

	return c, Validate(c, componentsNames)
}

func validateDB(db *DB) error {
	switch db.Type {
	case sql.Sqlite3:
	case sql.Postgres:
	default:
		if db.Type == "" {
			return errors.Errorf("type is not defined")
		}
		return errors.Errorf("unknown type %q", db.Type)
	}

	if db.ConnString == "" {
		return errors.Errorf("db connection string undefined")
	}

	return nil
}

func validateObjectStorage(os *ObjectStorage) error {
	switch os.Type {
	case ObjectStorageTypePosix:
		if os.Path == "" {
			return errors.Errorf("object storage path undefined")
		}
	case ObjectStorageTypeS3:
		if os.Endpoint == "" {
			return errors.Errorf("object storage endpoint undefined")
		}
		if os.Bucket == "" {
			return errors.Errorf("object storage bucket undefined")
		}
	default:
		if os.Type == "" {
			return errors.Errorf("type is not defined")
		}
		return errors.Errorf("unknown type %q", os.Type)
	}

	return nil
}

func validateFunds(funds []Fund) error {
	codes := map[string]struct{}{}
	for _, fund := range funds {
		if fund.Code == "" {
			return errors.Errorf("fund code is empty")
		}
		if _, ok := codes[fund.Code]; ok {
			return errors.Errorf("duplicated fund code %q", fund.Code)
		}
		codes[fund.Code] = struct{}{}

		switch fund.Provider {
		case "ezmoney":
		default:
			return errors.Errorf("unknown fund provider %q", fund.Provider)
		}
	}

	return nil
}

var dailyScheduleRegexp = regexp.MustCompile(`^([01][0-9]|2[0-3]):([0-5][0-9])$`)

// DailyScheduleTime returns the hour and minute of an "HH:MM" daily schedule
// shorthand, ok is false when the schedule is not in that form.
func DailyScheduleTime(schedule string) (hour, minute string, ok bool) {
	m := dailyScheduleRegexp.FindStringSubmatch(schedule)
	if m == nil {
		return "", "", false
	}
	return m[1], m[2], true
}

func Validate(c *Config, componentsNames []string) error {
	// Global
	if len(c.ID) > maxIDLength {
		return errors.Errorf("id too long")
	}
	if !idRegexp.MatchString(c.ID) {
		return errors.Errorf("invalid id")
	}

	if err := validateFunds(c.Funds); err != nil {
		return errors.Wrapf(err, "funds configuration error")
	}

	// Collector
	if isComponentEnabled(componentsNames, "collector") {
		if len(c.Funds) == 0 {
			return errors.Errorf("no funds defined")
		}
		if _, _, ok := DailyScheduleTime(c.Collector.Schedule); !ok {
			if _, err := cron.ParseStandard(c.Collector.Schedule); err != nil {
				return errors.Errorf("invalid collector schedule %q", c.Collector.Schedule)
			}
		}
		if _, err := time.LoadLocation(c.Collector.Timezone); err != nil {
			return errors.Wrapf(err, "invalid collector timezone %q", c.Collector.Timezone)
		}
		if c.Collector.MaxConcurrentFetches < 1 {
			return errors.Errorf("collector maxConcurrentFetches must be greater than zero")
		}
		if err := validateDB(&c.Collector.DB); err != nil {
			return errors.Wrapf(err, "db configuration error")
		}
		if err := validateObjectStorage(&c.Collector.ObjectStorage); err != nil {
			return errors.Wrapf(err, "collector object storage configuration error")
		}
	}

	// Reporter
	if isComponentEnabled(componentsNames, "reporter") {
		if c.Reporter.KeepDays < 0 {
			return errors.Errorf("reporter keepDays must not be negative")
		}
		if err := validateDB(&c.Reporter.DB); err != nil {
			return errors.Wrapf(err, "db configuration error")
		}
		if err := validateObjectStorage(&c.Reporter.ObjectStorage); err != nil {
			return errors.Wrapf(err, "reporter object storage configuration error")
		}
	}

	// Notification
	if isComponentEnabled(componentsNames, "notification") {
		if c.Notification.WebhookURL == "" {
			return errors.Errorf("notification webhookURL is empty")
		}
		if err := validateDB(&c.Notification.DB); err != nil {
			return errors.Wrapf(err, "db configuration error")
		}
	}

	// Web
	if isComponentEnabled(componentsNames, "web") {
		if c.Web.ListenAddress == "" {
			return errors.Errorf("web listen address undefined")
		}
		if c.Web.TLS {
			if c.Web.TLSKeyFile == "" {
				return errors.Errorf("no tls key file specified")
			}
			if c.Web.TLSCertFile == "" {
				return errors.Errorf("no tls cert file specified")
			}
		}
		if err := validateDB(&c.Web.DB); err != nil {
			return errors.Wrapf(err, "db configuration error")
		}
		if err := validateObjectStorage(&c.Web.ObjectStorage); err != nil {
			return errors.Wrapf(err, "web object storage configuration error")
		}
	}

	return nil
}

func isComponentEnabled(componentsNames []string, name string) bool {
	if slices.Contains(componentsNames, "all") {
		return true
	}
	return slices.Contains(componentsNames, name)
}
