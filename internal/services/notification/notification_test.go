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
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"

	"etfmon.io/etfmon/internal/services/config"
	"etfmon.io/etfmon/internal/sql"
	"etfmon.io/etfmon/internal/testutil"
	"etfmon.io/etfmon/types"
)

type webhook struct {
	Payload   []byte
	Signature string
	Event     string
}

type webhooksReceiver struct {
	mu       sync.Mutex
	webhooks []*webhook

	statusCode int
}

func (ws *webhooksReceiver) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	ws.mu.Lock()
	ws.webhooks = append(ws.webhooks, &webhook{
		Payload:   payload,
		Signature: r.Header.Get(signatureSHA256Key),
		Event:     r.Header.Get(etfmonEventHeader),
	})
	ws.mu.Unlock()

	w.WriteHeader(ws.statusCode)
}

func (ws *webhooksReceiver) getWebhooks() []*webhook {
	ws.mu.Lock()
	defer ws.mu.Unlock()

	retVal := make([]*webhook, len(ws.webhooks))
	copy(retVal, ws.webhooks)

	return retVal
}

func setupNotificationService(t *testing.T, ctx context.Context, webhookURL string) *NotificationService {
	dir := t.TempDir()

	log := testutil.NewLogger(t)

	gc := &config.Config{
		ID: "etfmon",
		Notification: config.Notification{
			WebhookURL:    webhookURL,
			WebhookSecret: "secretkey",
			DB: config.DB{
				Type:       sql.Sqlite3,
				ConnString: filepath.Join(dir, "db"),
			},
		},
	}

	ns, err := NewNotificationService(ctx, log, gc)
	testutil.NilError(t, err)

	return ns
}

func insertChangeEvent(t *testing.T, ctx context.Context, ns *NotificationService, fundCode, date string) *types.ChangeEvent {
	event := &types.ChangeEvent{
		FundCode: fundCode,
		Date:     date,
		Changeset: &types.Changeset{
			FundCode: fundCode,
			Date:     date,
			PrevDate: "2024-01-02",
			Entered:  []types.Holding{{StockID: "3008", StockName: "大立光", Shares: 50, Weight: 1.5}},
		},
		CreatedAt: time.Now(),
	}

	err := ns.d.Do(ctx, func(tx *sql.Tx) error {
		return ns.d.InsertChangeEvent(tx, event)
	})
	testutil.NilError(t, err)

	return event
}

func getDeliveries(t *testing.T, ctx context.Context, ns *NotificationService, status types.DeliveryStatus) []*types.ChangeEventDelivery {
	var deliveries []*types.ChangeEventDelivery
	err := ns.d.Do(ctx, func(tx *sql.Tx) error {
		var err error
		deliveries, err = ns.d.GetChangeEventDeliveriesAfterSequence(tx, 0, status, 0)
		return err
	})
	testutil.NilError(t, err)

	return deliveries
}

func TestChangeEventDelivery(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	ws := &webhooksReceiver{statusCode: http.StatusOK}
	ts := httptest.NewServer(ws)
	defer ts.Close()

	ns := setupNotificationService(t, ctx, ts.URL)

	e1 := insertChangeEvent(t, ctx, ns, "00981A", "2024-01-03")
	e2 := insertChangeEvent(t, ctx, ns, "00982A", "2024-01-03")

	err := ns.changeEventDeliveriesHandler(ctx)
	testutil.NilError(t, err)

	webhooks := ws.getWebhooks()
	assert.Assert(t, cmp.Len(webhooks, 2))

	// webhooks are delivered following the sequence order
	var p1, p2 types.ChangeEvent
	testutil.NilError(t, json.Unmarshal(webhooks[0].Payload, &p1))
	testutil.NilError(t, json.Unmarshal(webhooks[1].Payload, &p2))
	assert.Equal(t, p1.ID, e1.ID)
	assert.Equal(t, p2.ID, e2.ID)
	assert.DeepEqual(t, p1.Changeset, e1.Changeset)

	assert.Equal(t, webhooks[0].Event, EtfmonEventChange)

	h256 := hmac.New(sha256.New, []byte("secretkey"))
	_, err = h256.Write(webhooks[0].Payload)
	testutil.NilError(t, err)
	assert.Equal(t, webhooks[0].Signature, hex.EncodeToString(h256.Sum(nil)))

	delivered := getDeliveries(t, ctx, ns, types.DeliveryStatusDelivered)
	assert.Assert(t, cmp.Len(delivered, 2))
	assert.Assert(t, delivered[0].DeliveredAt != nil)

	notDelivered := getDeliveries(t, ctx, ns, types.DeliveryStatusNotDelivered)
	assert.Assert(t, cmp.Len(notDelivered, 0))

	// an already handled delivery isn't sent again
	err = ns.changeEventDeliveriesHandler(ctx)
	testutil.NilError(t, err)

	assert.Assert(t, cmp.Len(ws.getWebhooks(), 2))
}

func TestChangeEventDeliveryFail(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	ws := &webhooksReceiver{statusCode: http.StatusInternalServerError}
	ts := httptest.NewServer(ws)
	defer ts.Close()

	ns := setupNotificationService(t, ctx, ts.URL)

	insertChangeEvent(t, ctx, ns, "00981A", "2024-01-03")

	err := ns.changeEventDeliveriesHandler(ctx)
	testutil.NilError(t, err)

	assert.Assert(t, cmp.Len(ws.getWebhooks(), 1))

	deliveryError := getDeliveries(t, ctx, ns, types.DeliveryStatusDeliveryError)
	assert.Assert(t, cmp.Len(deliveryError, 1))
}
