// Package orders provides domain types for the external merchant-order API.
package orders

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Order statuses reported by the merchant-order API.
const (
	StatusSubmitted = "SUBMITTED"
	StatusDelivered = "DELIVERED"
	StatusFulfilled = "FULFILLED"
	StatusCancelled = "CANCELLED"
	StatusCollected = "COLLECTED"
	StatusCompleted = "COMPLETED"
)

// SLA statuses.
const (
	SLAStatusBreach     = "BREACH"
	SLAStatusNearBreach = "NEAR_BREACH"
	SLAStatusCompliant  = "COMPLIANT"
	SLAStatusOnTrack    = "ON_TRACK"
)

// DefaultSLATarget applies when an order carries no SLA target.
const DefaultSLATarget = 300 * time.Second

// DashboardZone is the fixed GMT+7 zone used for "today" boundaries.
var DashboardZone = time.FixedZone("GMT+7", 7*60*60)

// Customer is the buyer attached to an order.
type Customer struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone,omitempty"`
	T1Number string `json:"T1Number,omitempty"`
}

// ShippingAddress is the delivery address of an order.
type ShippingAddress struct {
	Street     string `json:"street"`
	City       string `json:"city"`
	State      string `json:"state"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

// PaymentInfo summarizes how an order was paid.
type PaymentInfo struct {
	Method        string          `json:"method"`
	Status        string          `json:"status"`
	TransactionID string          `json:"transaction_id"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discounts     decimal.Decimal `json:"discounts"`
	Charges       decimal.Decimal `json:"charges"`
	Taxes         decimal.Decimal `json:"taxes"`
}

// RawSLAInfo is sla_info exactly as the upstream sends it.
// The *_minutes fields carry seconds; convert with SLAFromRaw.
type RawSLAInfo struct {
	TargetMinutes  float64 `json:"target_minutes" validate:"gte=0"`
	ElapsedMinutes float64 `json:"elapsed_minutes" validate:"gte=0"`
	Status         string  `json:"status"`
}

// Metadata holds upstream bookkeeping fields.
type Metadata struct {
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
	Priority  string `json:"priority"`
	StoreName string `json:"store_name,omitempty"`
	StoreNo   string `json:"store_no,omitempty"`
	Channel   string `json:"channel,omitempty"`
}

// ProductDetails describes the product behind an order line.
type ProductDetails struct {
	Description string `json:"description"`
	Category    string `json:"category"`
	Brand       string `json:"brand"`
}

// Promotion is a discount applied to an order line.
type Promotion struct {
	PromotionType  string          `json:"promotion_type"`
	PromotionCode  string          `json:"promotion_code"`
	DiscountAmount decimal.Decimal `json:"discount_amount"`
}

// OrderItem is a single order line.
type OrderItem struct {
	ID                 string          `json:"id"`
	ProductID          string          `json:"product_id"`
	ProductName        string          `json:"product_name"`
	ProductSKU         string          `json:"product_sku"`
	Quantity           int             `json:"quantity" validate:"gte=0"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	TotalPrice         decimal.Decimal `json:"total_price"`
	ProductDetails     ProductDetails  `json:"product_details"`
	SecretCode         string          `json:"secret_code,omitempty"`
	Style              string          `json:"style,omitempty"`
	Color              string          `json:"color,omitempty"`
	Size               string          `json:"size,omitempty"`
	GiftWrapped        bool            `json:"gift_wrapped,omitempty"`
	GiftWrappedMessage string          `json:"gift_wrapped_message,omitempty"`
	Promotions         []Promotion     `json:"promotions,omitempty"`
	BookingSlotFrom    string          `json:"booking_slot_from,omitempty"`
	BookingSlotTo      string          `json:"booking_slot_to,omitempty"`
	Weight             float64         `json:"weight,omitempty"`
}

// Revenue returns the line's total price, or unit price times quantity when absent.
func (i OrderItem) Revenue() decimal.Decimal {
	if !i.TotalPrice.IsZero() {
		return i.TotalPrice
	}
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Order is an order record from the merchant-order API. It is never mutated here.
type Order struct {
	ID              string          `json:"id" validate:"required"`
	OrderNo         string          `json:"order_no"`
	Customer        Customer        `json:"customer"`
	OrderDate       string          `json:"order_date"`
	Channel         string          `json:"channel"`
	BusinessUnit    string          `json:"business_unit,omitempty"`
	OrderType       string          `json:"order_type,omitempty"`
	TotalAmount     decimal.Decimal `json:"total_amount"`
	ShippingAddress ShippingAddress `json:"shipping_address"`
	PaymentInfo     PaymentInfo     `json:"payment_info"`
	SLAInfo         *RawSLAInfo     `json:"sla_info,omitempty"`
	Metadata        Metadata        `json:"metadata"`
	Items           []OrderItem     `json:"items" validate:"dive"`
	Status          string          `json:"status"`
	OnHold          bool            `json:"on_hold,omitempty"`
	DeliveryType    string          `json:"delivery_type,omitempty"`
}

var orderDateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// OrderTime parses OrderDate. Timestamps without a zone are read as UTC.
func (o *Order) OrderTime() (time.Time, bool) {
	return ParseTimestamp(o.OrderDate)
}

// ParseTimestamp parses the timestamp formats the upstream emits.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range orderDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// IsTerminal reports whether the order has left the SLA-tracked flow.
func (o *Order) IsTerminal() bool {
	switch strings.ToUpper(o.Status) {
	case StatusDelivered, StatusFulfilled, StatusCancelled, StatusCollected:
		return true
	default:
		return false
	}
}

// IsFulfilled reports whether the order was delivered or fulfilled.
func (o *Order) IsFulfilled() bool {
	switch strings.ToUpper(o.Status) {
	case StatusDelivered, StatusFulfilled:
		return true
	default:
		return false
	}
}

// SLA is an order's SLA timing with every value in a single unit.
type SLA struct {
	Target  time.Duration
	Elapsed time.Duration
	Status  string
}

// SLAFromRaw converts upstream sla_info into an SLA. It is the only place that
// interprets the upstream *_minutes fields, which hold seconds. A missing or
// zero target falls back to DefaultSLATarget. ok is false when raw is nil.
func SLAFromRaw(raw *RawSLAInfo) (sla SLA, ok bool) {
	if raw == nil {
		return SLA{Target: DefaultSLATarget}, false
	}
	sla = SLA{
		Target:  secondsToDuration(raw.TargetMinutes),
		Elapsed: secondsToDuration(raw.ElapsedMinutes),
		Status:  strings.ToUpper(raw.Status),
	}
	if sla.Target <= 0 {
		sla.Target = DefaultSLATarget
	}
	return sla, true
}

// RawFromSLA converts an SLA back into the upstream wire shape.
func RawFromSLA(sla SLA) RawSLAInfo {
	return RawSLAInfo{
		TargetMinutes:  sla.Target.Seconds(),
		ElapsedMinutes: sla.Elapsed.Seconds(),
		Status:         sla.Status,
	}
}

// SLA returns the order's converted SLA; ok is false if the order has none.
func (o *Order) SLA() (SLA, bool) {
	return SLAFromRaw(o.SLAInfo)
}

// Remaining returns the time left until the target; negative once over.
func (s SLA) Remaining() time.Duration {
	return s.Target - s.Elapsed
}

// Over returns how far past the target the order is, or zero.
func (s SLA) Over() time.Duration {
	if s.Elapsed <= s.Target {
		return 0
	}
	return s.Elapsed - s.Target
}

func secondsToDuration(seconds float64) time.Duration {
	return time.Duration(seconds * float64(time.Second))
}
