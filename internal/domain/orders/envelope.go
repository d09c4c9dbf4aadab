package orders

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Query values that mean "no filter".
const (
	AllStatuses = "all-status"
	AllChannels = "all-channels"
)

// Pagination is the paging block of a list response.
type Pagination struct {
	Page       int  `json:"page"`
	PageSize   int  `json:"pageSize"`
	Total      int  `json:"total"`
	TotalPages int  `json:"totalPages,omitempty"`
	HasNext    bool `json:"hasNext"`
	HasPrev    bool `json:"hasPrev"`
}

// Pages returns TotalPages, deriving it from Total and PageSize when the
// upstream omitted it.
func (p *Pagination) Pages() int {
	if p == nil {
		return 0
	}
	if p.TotalPages > 0 {
		return p.TotalPages
	}
	if p.Total > 0 && p.PageSize > 0 {
		return (p.Total + p.PageSize - 1) / p.PageSize
	}
	return 1
}

// EmptyPagination is the pagination block returned alongside errors.
func EmptyPagination(page, pageSize int) *Pagination {
	return &Pagination{Page: page, PageSize: pageSize}
}

// Page is a page of orders as the upstream returns it.
type Page struct {
	Data       []Order     `json:"data"`
	Pagination *Pagination `json:"pagination,omitempty"`
}

// PageEnvelope wraps a page with the proxy's success flag.
type PageEnvelope struct {
	Success  bool   `json:"success"`
	Data     Page   `json:"data"`
	Error    string `json:"error,omitempty"`
	Message  string `json:"message,omitempty"`
	Fallback bool   `json:"fallback,omitempty"`
	Mock     bool   `json:"mock,omitempty"`
}

// NewErrorEnvelope builds the failure envelope for the given page request.
func NewErrorEnvelope(q PageQuery, err error) *PageEnvelope {
	return &PageEnvelope{
		Success: false,
		Data: Page{
			Data:       []Order{},
			Pagination: EmptyPagination(q.Page, q.PageSize),
		},
		Error:    ErrorMessage(err),
		Fallback: true,
	}
}

// PageQuery is a single page request against the order list.
type PageQuery struct {
	Page     int
	PageSize int
	Status   string
	Channel  string
	Search   string
	DateFrom string
	DateTo   string
}

// Normalize applies paging defaults and drops the "all" filter values.
func (q PageQuery) Normalize() PageQuery {
	if q.Page < 1 {
		q.Page = 1
	}
	if q.PageSize < 1 {
		q.PageSize = 10
	}
	if q.Status == AllStatuses {
		q.Status = ""
	}
	if q.Channel == AllChannels {
		q.Channel = ""
	}
	return q
}

// OrderSummary is the reduced projection served by the summary route.
type OrderSummary struct {
	ID           string          `json:"id"`
	OrderNo      string          `json:"order_no"`
	Status       string          `json:"status"`
	Channel      string          `json:"channel"`
	TotalAmount  decimal.Decimal `json:"total_amount"`
	OrderDate    string          `json:"order_date"`
	SLAInfo      RawSLAInfo      `json:"sla_info"`
	DeliveryType string          `json:"delivery_type"`
}

// Summarize projects an order onto OrderSummary with zero-valued SLA defaults.
func Summarize(o Order) OrderSummary {
	s := OrderSummary{
		ID:           o.ID,
		OrderNo:      o.OrderNo,
		Status:       o.Status,
		Channel:      o.Channel,
		TotalAmount:  o.TotalAmount,
		OrderDate:    o.OrderDate,
		DeliveryType: o.DeliveryType,
	}
	if o.SLAInfo != nil {
		s.SLAInfo = *o.SLAInfo
	}
	return s
}

// SummaryEnvelope is the response of the summary route.
type SummaryEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		Data       []OrderSummary `json:"data"`
		Pagination *Pagination    `json:"pagination"`
	} `json:"data"`
	Error string `json:"error,omitempty"`
	Mock  bool   `json:"mock,omitempty"`
}

// DetailsEnvelope is the response of the order details route. Data is null
// when no order matched.
type DetailsEnvelope struct {
	Success bool   `json:"success"`
	Data    *Order `json:"data"`
	Error   string `json:"error,omitempty"`
}

// DateLayout is the calendar-day format used in date ranges.
const DateLayout = "2006-01-02"

// MaxRangeDays is the longest range, in days, that may be requested.
const MaxRangeDays = 93

// DateRange is an inclusive calendar-day window.
type DateRange struct {
	From string `json:"dateFrom"`
	To   string `json:"dateTo"`
}

// Key identifies the range in caches and request IDs. It is unambiguous
// only for ranges that passed Days.
func (r DateRange) Key() string {
	return r.From + "-" + r.To
}

// Days returns every calendar day in the range, inclusive. Both ends must
// be exactly YYYY-MM-DD and the range may span at most MaxRangeDays.
func (r DateRange) Days() ([]time.Time, error) {
	from, err := time.Parse(DateLayout, r.From)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid dateFrom %q, expected YYYY-MM-DD", r.From), err)
	}
	to, err := time.Parse(DateLayout, r.To)
	if err != nil {
		return nil, NewValidationError(fmt.Sprintf("invalid dateTo %q, expected YYYY-MM-DD", r.To), err)
	}
	if to.Before(from) {
		return nil, NewValidationError(fmt.Sprintf("dateTo %s is before dateFrom %s", r.To, r.From), nil)
	}

	// Sub saturates for far-apart dates, which still exceeds the cap.
	span := int64(to.Sub(from)/(24*time.Hour)) + 1
	if span > MaxRangeDays {
		return nil, NewValidationError(fmt.Sprintf("date range longer than %d days", MaxRangeDays), nil)
	}

	days := make([]time.Time, 0, span)
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days, nil
}

// DefaultDateRange returns the last seven days, today included, in GMT+7.
func DefaultDateRange(now time.Time) DateRange {
	today := now.In(DashboardZone)
	return DateRange{
		From: today.AddDate(0, 0, -6).Format(DateLayout),
		To:   today.Format(DateLayout),
	}
}
