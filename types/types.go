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

package types

import (
	"time"
)

// SnapshotDateFormat is the format of a snapshot date. A snapshot date is the
// local date, in the configured monitor timezone, of the day the holdings
// refer to.
const SnapshotDateFormat = "2006-01-02"

// Fund is a monitored fund as defined in the configuration.
type Fund struct {
	// Code is the public fund code (i.e. "00981A")
	Code string `json:"code"`

	Name string `json:"name"`

	// Provider is the fund source provider name (i.e. "ezmoney")
	Provider string `json:"provider"`

	// ProviderRef is the provider internal fund id when it differs from the
	// public fund code
	ProviderRef string `json:"provider_ref,omitempty"`
}

// Holding is a single constituent position inside a fund snapshot.
type Holding struct {
	StockID   string  `json:"stock_id"`
	StockName string  `json:"stock_name"`
	Shares    float64 `json:"shares"`
	Weight    float64 `json:"weight"`
	Amount    float64 `json:"amount"`
}

// Snapshot is the set of holdings of a fund at a snapshot date. Only one
// snapshot per fund and date can exist.
type Snapshot struct {
	ID string `json:"id"`

	FundCode string `json:"fund_code"`

	// Date is the snapshot date formatted as SnapshotDateFormat
	Date string `json:"date"`

	FetchedAt time.Time `json:"fetched_at"`

	HoldingsCount int `json:"holdings_count"`

	// Holdings is populated only when explicitly requested
	Holdings []Holding `json:"holdings,omitempty"`
}

// PositionChange is a common position whose shares or weight changed between
// two consecutive snapshots.
type PositionChange struct {
	StockID   string `json:"stock_id"`
	StockName string `json:"stock_name"`

	SharesPrev float64 `json:"shares_prev"`
	SharesCurr float64 `json:"shares_curr"`
	SharesDiff float64 `json:"shares_diff"`

	WeightPrev float64 `json:"weight_prev"`
	WeightCurr float64 `json:"weight_curr"`
	WeightDiff float64 `json:"weight_diff"`
}

// Changeset is the day over day difference between a fund snapshot and the
// previous one.
type Changeset struct {
	FundCode string `json:"fund_code"`
	Date     string `json:"date"`
	PrevDate string `json:"prev_date"`

	Entered []Holding        `json:"entered"`
	Exited  []Holding        `json:"exited"`
	Changed []PositionChange `json:"changed"`
}

func (c *Changeset) Empty() bool {
	return len(c.Entered) == 0 && len(c.Exited) == 0 && len(c.Changed) == 0
}

// ChangeEvent records a non empty changeset. Change events are delivered to
// the configured webhook by the notification service following the sequence
// order.
type ChangeEvent struct {
	ID string `json:"id"`

	Sequence uint64 `json:"sequence"`

	FundCode string `json:"fund_code"`
	Date     string `json:"date"`

	Changeset *Changeset `json:"changeset"`

	CreatedAt time.Time `json:"created_at"`
}

type DeliveryStatus string

const (
	DeliveryStatusNotDelivered  DeliveryStatus = "notDelivered"
	DeliveryStatusDelivered     DeliveryStatus = "delivered"
	DeliveryStatusDeliveryError DeliveryStatus = "deliveryError"
)

type ChangeEventDelivery struct {
	ID string `json:"id"`

	Sequence uint64 `json:"sequence"`

	ChangeEventID  string         `json:"change_event_id"`
	DeliveryStatus DeliveryStatus `json:"delivery_status"`
	DeliveredAt    *time.Time     `json:"delivered_at"`
}
