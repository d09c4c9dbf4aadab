package services

import (
	"fmt"
	"math"
	"time"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// approachingFraction is the share of the target left at which an order is
// approaching its SLA.
const approachingFraction = 0.2

// criticalAlertLimit caps the critical alert list.
const criticalAlertLimit = 5

// SLAStatus classifies a single order against its SLA.
type SLAStatus struct {
	IsBreach      bool          `json:"isBreach"`
	IsApproaching bool          `json:"isApproaching"`
	IsCompliant   bool          `json:"isCompliant"`
	Target        time.Duration `json:"target"`
	Elapsed       time.Duration `json:"elapsed"`
	Remaining     time.Duration `json:"remaining"`
}

// CalculateSLAStatus classifies o. Delivered or fulfilled orders are always
// compliant; orders without SLA data are compliant against the default target.
func CalculateSLAStatus(o *orders.Order) SLAStatus {
	sla, ok := o.SLA()
	status := SLAStatus{
		Target:    sla.Target,
		Elapsed:   sla.Elapsed,
		Remaining: sla.Remaining(),
	}

	if o.IsFulfilled() || !ok {
		status.IsCompliant = true
		return status
	}

	status.IsBreach = sla.Elapsed > sla.Target || sla.Status == orders.SLAStatusBreach
	if !status.IsBreach {
		threshold := time.Duration(float64(sla.Target) * approachingFraction)
		status.IsApproaching = status.Remaining > 0 && status.Remaining <= threshold
	}
	status.IsCompliant = sla.Status == orders.SLAStatusCompliant || (!status.IsBreach && !status.IsApproaching)
	return status
}

// FilterSLABreach returns the orders in breach.
func FilterSLABreach(list []orders.Order) []orders.Order {
	out := []orders.Order{}
	for i := range list {
		if CalculateSLAStatus(&list[i]).IsBreach {
			out = append(out, list[i])
		}
	}
	return out
}

// FilterApproachingSLA returns the orders approaching their SLA.
func FilterApproachingSLA(list []orders.Order) []orders.Order {
	out := []orders.Order{}
	for i := range list {
		if CalculateSLAStatus(&list[i]).IsApproaching {
			out = append(out, list[i])
		}
	}
	return out
}

// SLAComplianceRate returns the compliant share in percent, 100 for no orders.
func SLAComplianceRate(list []orders.Order) float64 {
	if len(list) == 0 {
		return 100
	}
	compliant := 0
	for i := range list {
		if CalculateSLAStatus(&list[i]).IsCompliant {
			compliant++
		}
	}
	return float64(compliant) / float64(len(list)) * 100
}

// FormatElapsed renders elapsed time as whole minutes, e.g. "6m".
func FormatElapsed(elapsed time.Duration) string {
	return fmt.Sprintf("%dm", int(math.Floor(elapsed.Minutes())))
}

// FormatRemaining renders time left rounded up, e.g. "3m left".
func FormatRemaining(remaining time.Duration) string {
	return fmt.Sprintf("%dm left", int(math.Ceil(remaining.Minutes())))
}

// FormatOverTime renders time past the target, e.g. "1m over".
func FormatOverTime(elapsed, target time.Duration) string {
	return fmt.Sprintf("%dm over", int(math.Floor((elapsed - target).Minutes())))
}

// Alert types.
const (
	AlertBreach      = "breach"
	AlertApproaching = "approaching"
)

// OrderAlert is an SLA alert shown to operations staff.
type OrderAlert struct {
	ID               string        `json:"id"`
	OrderNumber      string        `json:"orderNumber"`
	CustomerName     string        `json:"customerName"`
	Channel          string        `json:"channel"`
	Location         string        `json:"location"`
	Type             string        `json:"type"`
	Target           time.Duration `json:"-"`
	Elapsed          time.Duration `json:"-"`
	Remaining        time.Duration `json:"-"`
	OverTime         time.Duration `json:"-"`
	TargetSeconds    float64       `json:"targetSeconds"`
	ElapsedSeconds   float64       `json:"elapsedSeconds"`
	RemainingSeconds float64       `json:"remainingSeconds"`
	OverTimeSeconds  float64       `json:"overTimeSeconds"`
	ElapsedText      string        `json:"elapsedText"`
	StatusText       string        `json:"statusText"`
}

// OrderAlerts groups alerts for a set of orders.
type OrderAlerts struct {
	Breaches       []OrderAlert `json:"breaches"`
	Approaching    []OrderAlert `json:"approaching"`
	Critical       []OrderAlert `json:"critical"`
	TodayOrders    int          `json:"todayOrders"`
	ComplianceRate float64      `json:"complianceRate"`
}

// ProcessOrderAlerts derives alerts from the orders placed today in GMT+7.
// Critical alerts are the first five breaches.
func ProcessOrderAlerts(list []orders.Order, now time.Time) OrderAlerts {
	today := now.In(orders.DashboardZone).Format(orders.DateLayout)

	var todays []orders.Order
	for i := range list {
		ts, ok := list[i].OrderTime()
		if !ok {
			continue
		}
		if ts.In(orders.DashboardZone).Format(orders.DateLayout) == today {
			todays = append(todays, list[i])
		}
	}

	result := OrderAlerts{
		Breaches:       []OrderAlert{},
		Approaching:    []OrderAlert{},
		TodayOrders:    len(todays),
		ComplianceRate: SLAComplianceRate(todays),
	}
	for i := range todays {
		status := CalculateSLAStatus(&todays[i])
		switch {
		case status.IsBreach:
			result.Breaches = append(result.Breaches, newOrderAlert(&todays[i], status, AlertBreach))
		case status.IsApproaching:
			result.Approaching = append(result.Approaching, newOrderAlert(&todays[i], status, AlertApproaching))
		}
	}

	result.Critical = result.Breaches[:min(len(result.Breaches), criticalAlertLimit)]
	return result
}

func newOrderAlert(o *orders.Order, status SLAStatus, alertType string) OrderAlert {
	over := max(status.Elapsed-status.Target, 0)
	alert := OrderAlert{
		ID:               o.ID,
		OrderNumber:      o.OrderNo,
		CustomerName:     o.Customer.Name,
		Channel:          o.Channel,
		Location:         o.Metadata.StoreName,
		Type:             alertType,
		Target:           status.Target,
		Elapsed:          status.Elapsed,
		Remaining:        status.Remaining,
		OverTime:         over,
		TargetSeconds:    status.Target.Seconds(),
		ElapsedSeconds:   status.Elapsed.Seconds(),
		RemainingSeconds: status.Remaining.Seconds(),
		OverTimeSeconds:  over.Seconds(),
		ElapsedText:      FormatElapsed(status.Elapsed),
	}
	if alert.Location == "" {
		alert.Location = o.ShippingAddress.City
	}
	if alertType == AlertBreach {
		alert.StatusText = FormatOverTime(status.Elapsed, status.Target)
	} else {
		alert.StatusText = FormatRemaining(status.Remaining)
	}
	return alert
}

// OrderCounts summarizes recent orders by SLA state.
type OrderCounts struct {
	Submitted  int `json:"submitted"`
	OnHold     int `json:"onHold"`
	Breach     int `json:"breach"`
	NearBreach int `json:"nearBreach"`
	Total      int `json:"total"`
}

// CountOrders tallies SLA states. Terminal orders are counted in Total only.
func CountOrders(list []orders.Order) OrderCounts {
	counts := OrderCounts{Total: len(list)}
	for i := range list {
		o := &list[i]
		if o.Status == orders.StatusSubmitted {
			counts.Submitted++
		}
		if o.OnHold {
			counts.OnHold++
		}
		if o.IsTerminal() {
			continue
		}
		status := CalculateSLAStatus(o)
		switch {
		case status.IsBreach:
			counts.Breach++
		case status.IsApproaching:
			counts.NearBreach++
		}
	}
	return counts
}
