package services

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func TestNormalizeChannelName(t *testing.T) {
	tests := map[string]string{
		"GRAB":      "GrabMart",
		"grabmart":  "GrabMart",
		"LINEMAN":   "LINE MAN",
		"foodpanda": "FoodDelivery",
		"delivery":  "Delivery Service",
		"pickup":    "Store Pickup",
		"TOPS":      "Tops Store",
		"Central":   "Central Store",
		"ONLINE":    "Online",
		"mobile":    "Mobile App",
		"Web":       "Website",
		"SHOPEE":    "Shopee",
		"":          "",
	}
	for in, want := range tests {
		assert.Equal(t, want, NormalizeChannelName(in), in)
	}
}

func TestDetectOrderChannel(t *testing.T) {
	tests := []struct {
		name  string
		order orders.Order
		want  string
	}{
		{"channel field", orders.Order{ID: "1", Channel: "grab"}, "GrabMart"},
		{"metadata channel", orders.Order{ID: "1", Metadata: orders.Metadata{Channel: "lazada"}}, "Lazada"},
		{"order number", orders.Order{ID: "1", OrderNo: "FOOD-123"}, "FoodDelivery"},
		{"payment method", orders.Order{ID: "1", PaymentInfo: orders.PaymentInfo{Method: "credit_card"}}, "Credit Card"},
		{"order type", orders.Order{ID: "1", OrderType: "DINE_IN"}, "Dine In"},
		{"store name", orders.Order{ID: "1", Metadata: orders.Metadata{StoreName: "Central Chidlom"}}, "Central Store"},
		{"id prefix", orders.Order{ID: "abc-123"}, "Channel-ABC"},
		{"unclassified", orders.Order{ID: "12-345"}, UnclassifiedChannel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetectOrderChannel(&tt.order))
		})
	}
}

func TestFulfillmentRate(t *testing.T) {
	assert.Zero(t, FulfillmentRate(nil))

	list := []orders.Order{
		{ID: "a", Status: orders.StatusDelivered},
		{ID: "b", Status: orders.StatusFulfilled},
		{ID: "c", Status: orders.StatusSubmitted},
	}
	assert.Equal(t, 67, FulfillmentRate(list))
}

func TestCalculateChannelVolumeAndData(t *testing.T) {
	list := []orders.Order{
		{ID: "1", Channel: "GRAB", TotalAmount: dec("100.50")},
		{ID: "2", Channel: "grabmart", TotalAmount: dec("50")},
		{ID: "3", Channel: "web", TotalAmount: dec("10")},
	}

	volume := CalculateChannelVolume(list)
	assert.Equal(t, []ChannelVolume{{Channel: "GrabMart", Count: 2}, {Channel: "Website", Count: 1}}, volume)

	data := CalculateEnhancedChannelData(list)
	require.Len(t, data, 2)
	assert.Equal(t, "GrabMart", data[0].Name)
	assert.Equal(t, 2, data[0].Orders)
	assert.True(t, data[0].Revenue.Equal(dec("150.50")))
}

func TestCalculateDailyOrders(t *testing.T) {
	list := []orders.Order{
		{ID: "1", OrderDate: "2026-01-02T23:30:00Z", TotalAmount: dec("10")},
		{ID: "2", OrderDate: "2026-01-01T08:00:00Z", TotalAmount: dec("5")},
		{ID: "3", OrderDate: "2026-01-02T01:00:00Z", TotalAmount: dec("2.5")},
		{ID: "4", Metadata: orders.Metadata{CreatedAt: "2026-01-03 10:00:00"}, TotalAmount: dec("1")},
		{ID: "5", OrderDate: "garbage"},
	}

	daily := CalculateDailyOrders(list)

	require.Len(t, daily, 3)
	assert.Equal(t, "2026-01-01", daily[0].Date)
	assert.Equal(t, "2026-01-02", daily[1].Date)
	assert.Equal(t, 2, daily[1].Orders)
	assert.True(t, daily[1].Revenue.Equal(dec("12.5")))
	assert.Equal(t, "2026-01-03", daily[2].Date)
}

func TestCalculateFulfillmentByBranch(t *testing.T) {
	list := []orders.Order{
		{ID: "1", Status: orders.StatusDelivered, Metadata: orders.Metadata{StoreName: "Tops Central World"}},
		{ID: "2", Status: orders.StatusSubmitted, Metadata: orders.Metadata{StoreName: "tops central world"}},
		{ID: "3", Status: orders.StatusFulfilled, Metadata: orders.Metadata{StoreName: "TOPS - ทองหล่อ"}},
		{ID: "4", Status: orders.StatusFulfilled},
	}

	branches := CalculateFulfillmentByBranch(list)

	require.Len(t, branches, len(TopsStores))
	byName := map[string]BranchFulfillment{}
	for _, b := range branches {
		byName[b.Branch] = b
	}
	assert.Equal(t, BranchFulfillment{Branch: "Tops Central World", Total: 2, Fulfilled: 1, Rate: 50}, byName["Tops Central World"])
	assert.Equal(t, BranchFulfillment{Branch: "Tops ทองหล่อ", Total: 1, Fulfilled: 1, Rate: 100}, byName["Tops ทองหล่อ"])
	assert.Equal(t, 0, byName["Tops เอกมัย"].Total)
	assert.Equal(t, 0, byName["Tops เอกมัย"].Rate)
}

func TestCalculateChannelPerformance(t *testing.T) {
	list := []orders.Order{
		{ID: "1", Channel: "GRAB", TotalAmount: dec("10"), SLAInfo: &orders.RawSLAInfo{Status: orders.SLAStatusCompliant}},
		{ID: "2", Channel: "GRAB", TotalAmount: dec("20"), Status: orders.StatusDelivered, SLAInfo: &orders.RawSLAInfo{}},
		{ID: "3", Channel: "GRAB", TotalAmount: dec("30"), Status: orders.StatusDelivered},
		{ID: "4", TotalAmount: dec("5")},
	}

	perf := CalculateChannelPerformance(list)

	require.Len(t, perf, 2)
	assert.Equal(t, "GRAB", perf[0].Channel)
	assert.Equal(t, 3, perf[0].Orders)
	assert.True(t, perf[0].Revenue.Equal(dec("60")))
	assert.Equal(t, 67, perf[0].SLARate)
	assert.Equal(t, "OTHER", perf[1].Channel)
	assert.Zero(t, perf[1].SLARate)
}

func TestCalculateTopProducts(t *testing.T) {
	var items []orders.OrderItem
	for i := 0; i < 12; i++ {
		items = append(items, orders.OrderItem{
			ProductName: string(rune('A' + i)),
			ProductSKU:  "SKU-" + string(rune('A'+i)),
			Quantity:    1,
			TotalPrice:  decimal.NewFromInt(int64(i + 1)),
		})
	}
	items = append(items,
		orders.OrderItem{ProductID: "pid-1", Quantity: 3, UnitPrice: dec("100")},
		orders.OrderItem{ProductName: "A", Quantity: 2, TotalPrice: dec("1")},
	)
	list := []orders.Order{{ID: "1", Items: items}}

	top := CalculateTopProducts(list)

	require.Len(t, top, 10)
	assert.Equal(t, "Unknown Product", top[0].Name)
	assert.Equal(t, 3, top[0].Units)
	assert.True(t, top[0].Revenue.Equal(dec("300")))
	assert.Equal(t, "pid-1", top[0].SKU)
	assert.Equal(t, 1, top[0].Rank)
	assert.Equal(t, "L", top[1].Name)
	assert.Equal(t, 10, top[9].Rank)
	for _, p := range top {
		assert.NotEqual(t, "A", p.Name)
	}
}

func TestCalculateRevenueByCategory(t *testing.T) {
	list := []orders.Order{{ID: "1", Items: []orders.OrderItem{
		{TotalPrice: dec("10"), ProductDetails: orders.ProductDetails{Category: "Fresh"}},
		{TotalPrice: dec("25"), ProductDetails: orders.ProductDetails{Category: "Fresh"}},
		{TotalPrice: dec("40")},
	}}}

	got := CalculateRevenueByCategory(list)

	require.Len(t, got, 2)
	assert.Equal(t, "Other", got[0].Name)
	assert.True(t, got[0].Value.Equal(dec("40")))
	assert.Equal(t, "Fresh", got[1].Name)
	assert.True(t, got[1].Value.Equal(dec("35")))
}

func TestCalculateHourlyOrderSummary(t *testing.T) {
	list := []orders.Order{
		{ID: "1", OrderDate: "2026-01-08T02:15:00Z", TotalAmount: dec("10")},
		{ID: "2", OrderDate: "2026-01-08T02:45:00Z", TotalAmount: dec("5")},
		{ID: "3", OrderDate: "2026-01-08T20:00:00Z", TotalAmount: dec("1")},
	}

	hours := CalculateHourlyOrderSummary(list)

	require.Len(t, hours, 24)
	assert.Equal(t, "00:00", hours[0].Hour)
	assert.Equal(t, "09:00", hours[9].Hour)
	assert.Equal(t, 2, hours[9].Orders)
	assert.True(t, hours[9].Revenue.Equal(dec("15")))
	assert.Equal(t, 1, hours[3].Orders)
	assert.Zero(t, hours[12].Orders)
}

func TestCalculateProcessingTimes(t *testing.T) {
	list := []orders.Order{
		{ID: "1", OrderDate: "2026-01-08T02:00:00Z", SLAInfo: &orders.RawSLAInfo{ElapsedMinutes: 120}},
		{ID: "2", OrderDate: "2026-01-08T02:30:00Z", SLAInfo: &orders.RawSLAInfo{ElapsedMinutes: 300}},
		{ID: "3", OrderDate: "2026-01-08T05:00:00Z", SLAInfo: &orders.RawSLAInfo{ElapsedMinutes: 0}},
		{ID: "4", OrderDate: "2026-01-08T05:00:00Z"},
	}

	got := CalculateProcessingTimes(list)

	assert.Equal(t, []ProcessingTime{{Time: "09:00", Value: 4}}, got)
}

func TestCalculateSLACompliance(t *testing.T) {
	list := []orders.Order{
		slaOrder("a", orders.StatusSubmitted, 300, 360),
		slaOrder("b", orders.StatusSubmitted, 300, 250),
		slaOrder("c", orders.StatusSubmitted, 300, 100),
		slaOrder("d", orders.StatusSubmitted, 300, 100),
	}
	list[3].SLAInfo.Status = orders.SLAStatusNearBreach

	got := CalculateSLACompliance(list)

	assert.Equal(t, []SLABucket{
		{Status: orders.SLAStatusCompliant, Count: 1, Percentage: 25},
		{Status: orders.SLAStatusNearBreach, Count: 2, Percentage: 50},
		{Status: orders.SLAStatusBreach, Count: 1, Percentage: 25},
	}, got)
	assert.Empty(t, CalculateSLACompliance(nil))
}

func TestCalculateSLACompliance_AgreesWithSLAStatus(t *testing.T) {
	tests := []struct {
		name  string
		order orders.Order
		want  string
	}{
		{"just under eighty percent", slaOrder("a", orders.StatusSubmitted, 300, 239), orders.SLAStatusCompliant},
		{"exactly eighty percent", slaOrder("b", orders.StatusSubmitted, 300, 240), orders.SLAStatusNearBreach},
		{"at target", slaOrder("c", orders.StatusSubmitted, 300, 300), orders.SLAStatusCompliant},
		{"over target", slaOrder("d", orders.StatusSubmitted, 300, 301), orders.SLAStatusBreach},
		{"delivered over target", slaOrder("e", orders.StatusDelivered, 300, 900), orders.SLAStatusCompliant},
		{"fulfilled over target", slaOrder("f", orders.StatusFulfilled, 300, 900), orders.SLAStatusCompliant},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateSLACompliance([]orders.Order{tt.order})
			require.Len(t, got, 1)
			assert.Equal(t, tt.want, got[0].Status)

			status := CalculateSLAStatus(&tt.order)
			assert.Equal(t, tt.want == orders.SLAStatusBreach, status.IsBreach)
			assert.Equal(t, tt.want == orders.SLAStatusNearBreach, status.IsApproaching)
		})
	}
}

func TestCalculateSLACompliance_DeliveredIgnoresUpstreamNearBreach(t *testing.T) {
	o := slaOrder("a", orders.StatusDelivered, 300, 100)
	o.SLAInfo.Status = orders.SLAStatusNearBreach

	got := CalculateSLACompliance([]orders.Order{o})

	assert.Equal(t, []SLABucket{{Status: orders.SLAStatusCompliant, Count: 1, Percentage: 100}}, got)
}

func TestCalculateKPIs(t *testing.T) {
	now := time.Date(2026, 1, 8, 20, 0, 0, 0, time.UTC)
	list := []orders.Order{
		slaOrder("a", orders.StatusSubmitted, 300, 360),
		slaOrder("b", orders.StatusDelivered, 300, 100),
		slaOrder("c", orders.StatusSubmitted, 300, 100),
	}
	list[0].TotalAmount = dec("100.25")
	list[1].TotalAmount = dec("50")
	list[2].TotalAmount = dec("7")
	list[2].OrderDate = "2026-01-07T10:00:00Z"

	kpi := CalculateKPIs(list, now)

	assert.Equal(t, 3, kpi.TotalOrders)
	assert.Equal(t, 2, kpi.OrdersProcessing)
	assert.Equal(t, 1, kpi.SLABreaches)
	assert.True(t, kpi.RevenueToday.Equal(dec("150.25")))
	assert.Equal(t, 33, kpi.FulfillmentRate)
	assert.Equal(t, 66.7, kpi.ComplianceRate)
}

func TestValidateOrderData(t *testing.T) {
	complete := slaOrder("a", orders.StatusSubmitted, 300, 100)
	complete.Channel = "GRAB"
	complete.Customer = orders.Customer{Name: "Somchai"}

	report := ValidateOrderData([]orders.Order{complete})
	assert.True(t, report.IsValid)
	assert.Equal(t, 100, report.Completeness)
	assert.Empty(t, report.Issues)
	assert.Equal(t, ValidationSummary{TotalOrders: 1, ValidOrders: 1, MissingFields: []string{}}, report.Summary)

	bad := complete
	bad.ID = "b"
	bad.TotalAmount = dec("-5")
	bad.SLAInfo = &orders.RawSLAInfo{TargetMinutes: 0, ElapsedMinutes: -1}
	partial := orders.Order{ID: "c", OrderNo: "C", Status: orders.StatusSubmitted, OrderDate: "2026-01-08"}

	report = ValidateOrderData([]orders.Order{complete, bad, partial})

	assert.False(t, report.IsValid)
	assert.Equal(t, 3, report.Summary.TotalOrders)
	assert.Equal(t, 2, report.Summary.ValidOrders)
	assert.Equal(t, 1, report.Summary.InvalidOrders)
	assert.Equal(t, []string{"channel", "total_amount", "customer", "sla_info"}, report.Summary.MissingFields)
	assert.Equal(t, 50, report.Completeness)

	fields := map[string]ValidationIssue{}
	for _, issue := range report.Issues {
		fields[issue.Field] = issue
	}
	assert.Equal(t, SeverityError, fields["total_amount"].Severity)
	assert.Equal(t, 1, fields["sla_info.elapsed_minutes"].Count)
	assert.Equal(t, 1, fields["sla_info.target_minutes"].Count)
	assert.Equal(t, SeverityWarning, fields["data_completeness"].Severity)
	assert.Equal(t, 1, fields["data_validity"].Count)
}

func TestValidateOrderData_MissingRequiredFields(t *testing.T) {
	report := ValidateOrderData([]orders.Order{{}})

	assert.False(t, report.IsValid)
	assert.Equal(t, 0, report.Completeness)
	assert.Len(t, report.Summary.MissingFields, 8)
}

func TestBuildOverview_EmptyInput(t *testing.T) {
	now := time.Date(2026, 1, 8, 20, 0, 0, 0, time.UTC)

	assert.NotPanics(t, func() {
		o := BuildOverview(nil, now)
		assert.Zero(t, o.KPIs.TotalOrders)
		assert.Equal(t, 100.0, o.KPIs.ComplianceRate)
		assert.Len(t, o.HourlySummary, 24)
		assert.Len(t, o.FulfillmentByBranch, len(TopsStores))
		assert.Empty(t, o.ChannelVolume)
		assert.Empty(t, o.TopProducts)
		assert.True(t, o.Validation.IsValid)
	})
}

func TestBuildOverview(t *testing.T) {
	now := time.Date(2026, 1, 8, 20, 0, 0, 0, time.UTC)
	list := GenerateMockOrders(orders.DefaultDateRange(now), now)

	o := BuildOverview(list, now)

	assert.Equal(t, MockOrderCount, o.KPIs.TotalOrders)
	assert.Len(t, o.DailyOrders, 7)
	total := 0
	for _, c := range o.ChannelVolume {
		total += c.Count
	}
	assert.Equal(t, MockOrderCount, total)
}
