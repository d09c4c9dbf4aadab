package services

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// MockOrderCount is the number of synthetic orders served in development.
const MockOrderCount = 149

var (
	mockTOLChannels      = []string{"Web", "TOL", "Tops Online"}
	mockTOLDeliveryTypes = []string{"Standard Delivery", "Express Delivery", "Click & Collect"}
	mockMKPChannels      = []string{"Shopee", "Lazada"}
)

// GenerateMockOrders returns a deterministic development data set spread
// evenly over r: 60% TOL channels and 40% marketplace, amounts between 400 and
// 1200. An empty or invalid range falls back to the last seven days.
func GenerateMockOrders(r orders.DateRange, now time.Time) []orders.Order {
	days, err := r.Days()
	if err != nil || len(days) == 0 {
		days, _ = orders.DefaultDateRange(now).Days()
	}

	list := make([]orders.Order, 0, MockOrderCount)
	for i := 0; i < MockOrderCount; i++ {
		day := days[i%len(days)]
		orderDate := day.Add(time.Duration(i%12) * time.Hour)

		seed := (i*9301 + 49297) % 233280
		revenue := 400 + seed*800/233280

		var channel, deliveryType string
		if i%10 < 6 {
			channel = mockTOLChannels[i%len(mockTOLChannels)]
			deliveryType = mockTOLDeliveryTypes[i%len(mockTOLDeliveryTypes)]
		} else {
			channel = mockMKPChannels[i%len(mockMKPChannels)]
			deliveryType = channel
		}

		list = append(list, orders.Order{
			ID:           fmt.Sprintf("mock-%d", i),
			OrderNo:      fmt.Sprintf("MOCK-%d", 1000+i),
			Status:       orders.StatusCompleted,
			Channel:      channel,
			TotalAmount:  decimal.NewFromInt(int64(revenue)),
			OrderDate:    orderDate.UTC().Format(time.RFC3339),
			SLAInfo:      &orders.RawSLAInfo{TargetMinutes: 60, ElapsedMinutes: 30, Status: orders.SLAStatusOnTrack},
			DeliveryType: deliveryType,
		})
	}
	return list
}
