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

package notification

import (
	"context"

	"github.com/rs/zerolog"
	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/db"
	"etfmon.io/etfmon/internal/services/common"
	"etfmon.io/etfmon/internal/services/config"
)

type NotificationService struct {
	log zerolog.Logger
	gc  *config.Config
	c   *config.Notification

	d *db.DB
}

func NewNotificationService(ctx context.Context, log zerolog.Logger, gc *config.Config) (*NotificationService, error) {
	c := &gc.Notification

	if c.Debug {
		log = log.Level(zerolog.DebugLevel)
	}

	d, err := common.NewDB(ctx, log, &c.DB)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	return &NotificationService{
		log: log,
		gc:  gc,
		c:   c,
		d:   d,
	}, nil
}

func (n *NotificationService) Run(ctx context.Context) error {
	go n.changeEventDeliveriesHandlerLoop(ctx)

	<-ctx.Done()
	n.log.Info().Msg("notification service exiting")

	return nil
}
