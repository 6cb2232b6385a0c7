// Package orders implements the dashboard-facing order operations: the
// tag-frequency aggregation over the paginated orders collection and the
// tag-driven mutation workflow (fulfillment, payment capture).
package orders

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"
)

// Money is a decimal-exact amount that keeps the upstream string form, so a
// total of "149.90" is echoed back as "149.90" and not re-rendered "149.9".
type Money struct {
	decimal.Decimal

	raw string
}

// NewMoney creates a Money from its canonical decimal rendering.
func NewMoney(d decimal.Decimal) Money {
	return Money{Decimal: d, raw: d.String()}
}

func (m *Money) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// The admin API sends money as strings; tolerate bare numbers.
		s = string(data)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return fmt.Errorf("parse money %q: %w", s, err)
	}

	m.Decimal = d
	m.raw = s
	return nil
}

func (m Money) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// String returns the amount exactly as the upstream sent it.
func (m Money) String() string {
	if m.raw != "" {
		return m.raw
	}
	return m.Decimal.String()
}

// Order is the admin API order entity, reduced to the fields this proxy
// reads or patches.
type Order struct {
	ID int64 `json:"id"`

	// Tags is the free-text comma-delimited tag field.
	Tags string `json:"tags"`

	// FulfillmentStatus is empty for unfulfilled orders.
	FulfillmentStatus string `json:"fulfillment_status"`

	FinancialStatus string `json:"financial_status"`

	// TotalPrice is the authoritative order total, decimal-exact.
	TotalPrice Money `json:"total_price"`

	// NoteAttributes carry dashboard metadata such as device and source.
	NoteAttributes []NoteAttribute `json:"note_attributes"`
}

// NoteAttribute is a key/value pair attached to an order.
type NoteAttribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// FulfillmentOrder is a unit of an order tracking partial shipment progress.
type FulfillmentOrder struct {
	ID        int64                 `json:"id"`
	Status    string                `json:"status"`
	LineItems []FulfillmentLineItem `json:"line_items"`
}

// FulfillmentLineItem is one line of a fulfillment order.
type FulfillmentLineItem struct {
	ID                  int64 `json:"id"`
	Quantity            int   `json:"quantity"`
	FulfillableQuantity int   `json:"fulfillable_quantity"`
}

// Open reports whether the fulfillment order can still be fulfilled.
func (f FulfillmentOrder) Open() bool {
	return f.Status != "closed"
}

// OrderPage is one page of the orders collection plus the cursor for the
// next one. An empty NextCursor means the last page.
type OrderPage struct {
	Orders     []Order `json:"orders"`
	NextCursor string  `json:"next_cursor,omitempty"`
}

// TagCountSummary is the reduced result of a full aggregation walk.
type TagCountSummary struct {
	// Total is the number of orders across all pages.
	Total int `json:"total"`

	// Counts maps tag name (or "Pending" for untagged orders) to frequency.
	Counts map[string]int `json:"counts"`
}

// Upstream response envelopes.
type ordersEnvelope struct {
	Orders []Order `json:"orders"`
}

type orderEnvelope struct {
	Order Order `json:"order"`
}

type countEnvelope struct {
	Count int `json:"count"`
}

type fulfillmentOrdersEnvelope struct {
	FulfillmentOrders []FulfillmentOrder `json:"fulfillment_orders"`
}
