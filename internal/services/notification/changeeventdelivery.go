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
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"time"

	"github.com/sorintlab/errors"

	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/internal/util"
	"etfmon.io/etfmon/types"
)

const (
	signatureSHA256Key = "X-Etfmon-SHA256Signature"

	etfmonEventHeader    = "X-Etfmon-Event"
	etfmonDeliveryHeader = "X-Etfmon-Delivery"

	// EtfmonEventChange is the event type of a holdings change webhook
	EtfmonEventChange = "change"

	maxChangeEventDeliveriesQueryLimit = 40

	// changeEventDeliveriesInterval is the time to wait between every
	// changeEventDeliveriesHandler call.
	changeEventDeliveriesInterval = 1 * time.Second
)

func (n *NotificationService) changeEventDeliveriesHandlerLoop(ctx context.Context) {
	for {
		if err := n.changeEventDeliveriesHandler(ctx); err != nil {
			n.log.Err(err).Send()
		}

		sleepCh := time.NewTimer(changeEventDeliveriesInterval).C
		select {
		case <-ctx.Done():
			return
		case <-sleepCh:
		}
	}
}

func (n *NotificationService) changeEventDeliveriesHandler(ctx context.Context) error {
	curDeliverySequence := uint64(0)

	for {
		var deliveries []*types.ChangeEventDelivery

		err := n.d.Do(ctx, func(tx *sql.Tx) error {
			var err error
			deliveries, err = n.d.GetChangeEventDeliveriesAfterSequence(tx, curDeliverySequence, types.DeliveryStatusNotDelivered, maxChangeEventDeliveriesQueryLimit)
			return errors.WithStack(err)
		})
		if err != nil {
			return errors.WithStack(err)
		}

		for _, delivery := range deliveries {
			if err := n.handleChangeEventDelivery(ctx, delivery.ID); err != nil {
				n.log.Err(err).Msgf("failed to handle change event delivery")
			}

			curDeliverySequence = delivery.Sequence
		}

		if len(deliveries) < maxChangeEventDeliveriesQueryLimit {
			return nil
		}
	}
}

func (n *NotificationService) handleChangeEventDelivery(ctx context.Context, deliveryID string) error {
	var event *types.ChangeEvent

	err := n.d.Do(ctx, func(tx *sql.Tx) error {
		delivery, err := n.d.GetChangeEventDeliveryByID(tx, deliveryID)
		if err != nil {
			return errors.WithStack(err)
		}
		if delivery == nil || delivery.DeliveryStatus != types.DeliveryStatusNotDelivered {
			return nil
		}

		event, err = n.d.GetChangeEventByID(tx, delivery.ChangeEventID)
		return errors.WithStack(err)
	})
	if err != nil {
		return errors.WithStack(err)
	}
	if event == nil {
		return nil
	}

	delivered := false
	resp, err := n.sendChangeEventWebhook(ctx, event)
	// err != nil is not checked because every error is considered a failed delivery
	if err == nil && resp != nil && resp.StatusCode >= 200 && resp.StatusCode < 300 {
		delivered = true
	}
	if resp != nil {
		_ = resp.Body.Close()
	}

	var deliveredAt *time.Time
	if resp != nil {
		deliveredAt = util.Ptr(time.Now())
	}

	err = n.d.Do(ctx, func(tx *sql.Tx) error {
		delivery, err := n.d.GetChangeEventDeliveryByID(tx, deliveryID)
		if err != nil {
			return errors.WithStack(err)
		}
		if delivery == nil || delivery.DeliveryStatus != types.DeliveryStatusNotDelivered {
			return nil
		}

		if delivered {
			delivery.DeliveryStatus = types.DeliveryStatusDelivered
		} else {
			delivery.DeliveryStatus = types.DeliveryStatusDeliveryError
		}
		delivery.DeliveredAt = deliveredAt

		return errors.WithStack(n.d.UpdateChangeEventDelivery(tx, delivery))
	})

	return errors.WithStack(err)
}

func (n *NotificationService) sendChangeEventWebhook(ctx context.Context, event *types.ChangeEvent) (*http.Response, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return nil, errors.WithStack(err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", n.c.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return nil, errors.WithStack(err)
	}
	req.Header.Add("Content-Type", "application/json")
	req.Header.Add(etfmonEventHeader, EtfmonEventChange)
	req.Header.Add(etfmonDeliveryHeader, event.ID)

	if n.c.WebhookSecret != "" {
		h256 := hmac.New(sha256.New, []byte(n.c.WebhookSecret))
		if _, err = h256.Write(payload); err != nil {
			return nil, errors.WithStack(err)
		}

		signatureSHA256 := hex.EncodeToString(h256.Sum(nil))

		req.Header.Set(signatureSHA256Key, signatureSHA256)
	}

	resp, err := http.DefaultClient.Do(req)

	return resp, errors.WithStack(err)
}
