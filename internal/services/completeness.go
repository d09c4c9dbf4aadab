package services

import (
	"math"

	"go.uber.org/zap"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// Completeness reports how many days of a date range have at least one order.
type Completeness struct {
	Coverage     int      `json:"coverage"`
	CompleteDays int      `json:"completeDays"`
	TotalDays    int      `json:"totalDays"`
	MissingDays  []string `json:"missingDays"`
	IsComplete   bool     `json:"isComplete"`
}

// ValidateCoverage counts the distinct UTC calendar days of the orders'
// OrderDate against every day in r. Orders with unparseable dates are skipped.
// An invalid range yields zero coverage.
func ValidateCoverage(list []orders.Order, r orders.DateRange, logger *zap.Logger) Completeness {
	if logger == nil {
		logger = zap.NewNop()
	}

	days, err := r.Days()
	if err != nil {
		logger.Warn("cannot validate coverage for date range",
			zap.String("date_from", r.From),
			zap.String("date_to", r.To),
			zap.Error(err),
		)
		return Completeness{MissingDays: []string{}}
	}

	seen := make(map[string]struct{}, len(days))
	invalid := 0
	for i := range list {
		ts, ok := list[i].OrderTime()
		if !ok {
			invalid++
			continue
		}
		seen[ts.UTC().Format(orders.DateLayout)] = struct{}{}
	}
	if invalid > 0 {
		logger.Debug("skipped orders with invalid dates during coverage check",
			zap.Int("count", invalid),
		)
	}

	result := Completeness{TotalDays: len(days), MissingDays: []string{}}
	for _, d := range days {
		key := d.Format(orders.DateLayout)
		if _, ok := seen[key]; ok {
			result.CompleteDays++
			continue
		}
		result.MissingDays = append(result.MissingDays, key)
	}

	result.Coverage = int(math.Round(float64(result.CompleteDays) / float64(result.TotalDays) * 100))
	result.IsComplete = len(result.MissingDays) == 0
	return result
}
