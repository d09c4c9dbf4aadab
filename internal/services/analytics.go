package services

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"

	"github.com/niaga-platform/service-order-dashboard/internal/domain/orders"
)

// UnclassifiedChannel is reported when no channel can be detected.
const UnclassifiedChannel = "Unclassified"

// TopsStores are the branches reported by FulfillmentByBranch.
var TopsStores = []string{
	"Tops Central Plaza ลาดพร้าว",
	"Tops Central World",
	"Tops สุขุมวิท 39",
	"Tops ทองหล่อ",
	"Tops สีลม คอมเพล็กซ์",
	"Tops เอกมัย",
	"Tops พร้อมพงษ์",
	"Tops จตุจักร",
}

// channelAliases maps substrings of raw channel names to display names.
// The first match wins, so "online" is tested before "line".
var channelAliases = []struct {
	match []string
	name  string
}{
	{[]string{"grab"}, "GrabMart"},
	{[]string{"online"}, "Online"},
	{[]string{"line"}, "LINE MAN"},
	{[]string{"food"}, "FoodDelivery"},
	{[]string{"delivery"}, "Delivery Service"},
	{[]string{"pickup"}, "Store Pickup"},
	{[]string{"tops"}, "Tops Store"},
	{[]string{"central"}, "Central Store"},
	{[]string{"mobile"}, "Mobile App"},
	{[]string{"web"}, "Website"},
}

// NormalizeChannelName maps raw channel spellings onto display names.
// Unknown names are capitalized.
func NormalizeChannelName(channel string) string {
	lower := strings.ToLower(channel)
	for _, alias := range channelAliases {
		for _, m := range alias.match {
			if strings.Contains(lower, m) {
				return alias.name
			}
		}
	}
	if lower == "" {
		return ""
	}
	runes := []rune(lower)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// DetectOrderChannel finds an order's channel from its channel field, then
// metadata, then order number, order type and store name patterns.
func DetectOrderChannel(o *orders.Order) string {
	if ch := strings.TrimSpace(o.Channel); ch != "" {
		return NormalizeChannelName(ch)
	}
	if ch := strings.TrimSpace(o.Metadata.Channel); ch != "" {
		return NormalizeChannelName(ch)
	}

	orderNo := strings.ToLower(o.OrderNo)
	switch {
	case strings.Contains(orderNo, "grab"):
		return "GrabMart"
	case strings.Contains(orderNo, "food"):
		return "FoodDelivery"
	case strings.Contains(orderNo, "line"):
		return "LINE MAN"
	}

	payment := strings.ToLower(o.PaymentInfo.Method)
	switch {
	case strings.Contains(payment, "wallet"):
		return "Digital Wallet"
	case strings.Contains(payment, "card"):
		return "Credit Card"
	case strings.Contains(payment, "cash"):
		return "Cash Payment"
	}

	orderType := strings.ToLower(o.OrderType)
	switch {
	case strings.Contains(orderType, "delivery"):
		return "Delivery Service"
	case strings.Contains(orderType, "pickup"):
		return "Store Pickup"
	case strings.Contains(orderType, "dine"):
		return "Dine In"
	}

	store := strings.ToLower(o.Metadata.StoreName)
	switch {
	case strings.Contains(store, "tops"):
		return "Tops Store"
	case strings.Contains(store, "central"):
		return "Central Store"
	}

	if prefix := idPrefix(o.ID); prefix != "" {
		return "Channel-" + prefix
	}
	return UnclassifiedChannel
}

// idPrefix returns the upper-cased first three characters of id when they
// are all letters.
func idPrefix(id string) string {
	runes := []rune(id)
	if len(runes) < 3 {
		return ""
	}
	for _, r := range runes[:3] {
		if !unicode.IsLetter(r) {
			return ""
		}
	}
	return strings.ToUpper(string(runes[:3]))
}

// FulfillmentRate is the delivered-or-fulfilled share in whole percent.
func FulfillmentRate(list []orders.Order) int {
	if len(list) == 0 {
		return 0
	}
	fulfilled := 0
	for i := range list {
		if list[i].IsFulfilled() {
			fulfilled++
		}
	}
	return percent(fulfilled, len(list))
}

// ChannelVolume is the order count for a detected channel.
type ChannelVolume struct {
	Channel string `json:"channel"`
	Count   int    `json:"count"`
}

// CalculateChannelVolume counts orders per detected channel, largest first.
func CalculateChannelVolume(list []orders.Order) []ChannelVolume {
	counts := make(map[string]int)
	for i := range list {
		counts[DetectOrderChannel(&list[i])]++
	}

	out := make([]ChannelVolume, 0, len(counts))
	for ch, n := range counts {
		out = append(out, ChannelVolume{Channel: ch, Count: n})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// ChannelData is a channel's order count and revenue.
type ChannelData struct {
	Name    string          `json:"name"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// CalculateEnhancedChannelData adds revenue to the channel volume breakdown.
func CalculateEnhancedChannelData(list []orders.Order) []ChannelData {
	revenue := make(map[string]decimal.Decimal)
	for i := range list {
		ch := DetectOrderChannel(&list[i])
		revenue[ch] = revenue[ch].Add(list[i].TotalAmount)
	}

	volume := CalculateChannelVolume(list)
	out := make([]ChannelData, 0, len(volume))
	for _, v := range volume {
		out = append(out, ChannelData{Name: v.Channel, Orders: v.Count, Revenue: revenue[v.Channel]})
	}
	return out
}

// DailyOrders is the order count and revenue of one UTC day.
type DailyOrders struct {
	Date    string          `json:"date"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// CalculateDailyOrders groups orders by UTC calendar day, oldest first.
// Orders without a usable date fall back to metadata.created_at, else are skipped.
func CalculateDailyOrders(list []orders.Order) []DailyOrders {
	byDay := make(map[string]*DailyOrders)
	for i := range list {
		ts, ok := list[i].OrderTime()
		if !ok {
			ts, ok = orders.ParseTimestamp(list[i].Metadata.CreatedAt)
		}
		if !ok {
			continue
		}
		day := ts.UTC().Format(orders.DateLayout)
		d, exists := byDay[day]
		if !exists {
			d = &DailyOrders{Date: day}
			byDay[day] = d
		}
		d.Orders++
		d.Revenue = d.Revenue.Add(list[i].TotalAmount)
	}

	out := make([]DailyOrders, 0, len(byDay))
	for _, d := range byDay {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date < out[j].Date })
	return out
}

// BranchFulfillment is the fulfillment rate of one store.
type BranchFulfillment struct {
	Branch    string `json:"branch"`
	Total     int    `json:"total"`
	Fulfilled int    `json:"fulfilled"`
	Rate      int    `json:"rate"`
}

// CalculateFulfillmentByBranch reports fulfillment for every store in
// TopsStores, matching orders by store name.
func CalculateFulfillmentByBranch(list []orders.Order) []BranchFulfillment {
	out := make([]BranchFulfillment, len(TopsStores))
	for i, store := range TopsStores {
		out[i].Branch = store
	}

	for i := range list {
		idx := matchStore(list[i].Metadata.StoreName)
		if idx < 0 {
			continue
		}
		out[idx].Total++
		if list[i].IsFulfilled() {
			out[idx].Fulfilled++
		}
	}

	for i := range out {
		out[i].Rate = percent(out[i].Fulfilled, out[i].Total)
	}
	return out
}

func matchStore(storeName string) int {
	name := strings.ToLower(strings.TrimSpace(storeName))
	if name == "" {
		return -1
	}
	for i, store := range TopsStores {
		s := strings.ToLower(store)
		if strings.Contains(name, s) || strings.Contains(s, name) {
			return i
		}
		if strings.Contains(name, "tops") && strings.Contains(name, strings.TrimPrefix(s, "tops ")) {
			return i
		}
	}
	return -1
}

// ChannelPerformance is a raw channel's volume, revenue and SLA rate.
type ChannelPerformance struct {
	Channel string          `json:"channel"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
	SLARate int             `json:"sla_rate"`
}

// CalculateChannelPerformance groups by the raw channel field. An order counts
// toward the SLA rate when its SLA status is COMPLIANT or it was delivered
// with SLA data present.
func CalculateChannelPerformance(list []orders.Order) []ChannelPerformance {
	type stats struct {
		orders    int
		compliant int
		revenue   decimal.Decimal
	}
	byChannel := make(map[string]*stats)
	for i := range list {
		o := &list[i]
		ch := o.Channel
		if ch == "" {
			ch = "OTHER"
		}
		s, ok := byChannel[ch]
		if !ok {
			s = &stats{}
			byChannel[ch] = s
		}
		s.orders++
		s.revenue = s.revenue.Add(o.TotalAmount)
		if o.SLAInfo != nil && (strings.EqualFold(o.SLAInfo.Status, orders.SLAStatusCompliant) || o.Status == orders.StatusDelivered) {
			s.compliant++
		}
	}

	out := make([]ChannelPerformance, 0, len(byChannel))
	for ch, s := range byChannel {
		out = append(out, ChannelPerformance{
			Channel: ch,
			Orders:  s.orders,
			Revenue: s.revenue,
			SLARate: percent(s.compliant, s.orders),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Orders != out[j].Orders {
			return out[i].Orders > out[j].Orders
		}
		return out[i].Channel < out[j].Channel
	})
	return out
}

// TopProduct is a product ranked by revenue.
type TopProduct struct {
	Rank    int             `json:"rank"`
	Name    string          `json:"name"`
	SKU     string          `json:"sku"`
	Units   int             `json:"units"`
	Revenue decimal.Decimal `json:"revenue"`
}

const topProductsLimit = 10

// CalculateTopProducts returns the ten products with the highest revenue.
func CalculateTopProducts(list []orders.Order) []TopProduct {
	byName := make(map[string]*TopProduct)
	for i := range list {
		for _, item := range list[i].Items {
			name := item.ProductName
			if name == "" {
				name = "Unknown Product"
			}
			p, ok := byName[name]
			if !ok {
				sku := item.ProductSKU
				if sku == "" {
					sku = item.ProductID
				}
				if sku == "" {
					sku = "N/A"
				}
				p = &TopProduct{Name: name, SKU: sku}
				byName[name] = p
			}
			p.Units += item.Quantity
			p.Revenue = p.Revenue.Add(item.Revenue())
		}
	}

	out := make([]TopProduct, 0, len(byName))
	for _, p := range byName {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Revenue.Cmp(out[j].Revenue); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > topProductsLimit {
		out = out[:topProductsLimit]
	}
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}

// CategoryRevenue is the revenue of one product category.
type CategoryRevenue struct {
	Name  string          `json:"name"`
	Value decimal.Decimal `json:"value"`
}

// CalculateRevenueByCategory sums item totals per category, largest first.
// Items without a category are grouped under "Other".
func CalculateRevenueByCategory(list []orders.Order) []CategoryRevenue {
	byCategory := make(map[string]decimal.Decimal)
	for i := range list {
		for _, item := range list[i].Items {
			category := item.ProductDetails.Category
			if category == "" {
				category = "Other"
			}
			byCategory[category] = byCategory[category].Add(item.TotalPrice)
		}
	}

	out := make([]CategoryRevenue, 0, len(byCategory))
	for name, v := range byCategory {
		out = append(out, CategoryRevenue{Name: name, Value: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if c := out[i].Value.Cmp(out[j].Value); c != 0 {
			return c > 0
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// HourlySummary is the order count and revenue of one hour of the day.
type HourlySummary struct {
	Hour    string          `json:"hour"`
	Orders  int             `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// CalculateHourlyOrderSummary buckets orders into the 24 hours of the day in
// GMT+7. Every hour is present.
func CalculateHourlyOrderSummary(list []orders.Order) []HourlySummary {
	out := make([]HourlySummary, 24)
	for h := range out {
		out[h].Hour = hourLabel(h)
	}
	for i := range list {
		ts, ok := list[i].OrderTime()
		if !ok {
			continue
		}
		h := ts.In(orders.DashboardZone).Hour()
		out[h].Orders++
		out[h].Revenue = out[h].Revenue.Add(list[i].TotalAmount)
	}
	return out
}

// ProcessingTime is the average elapsed minutes of orders placed in one hour.
type ProcessingTime struct {
	Time  string `json:"time"`
	Value int    `json:"value"`
}

// CalculateProcessingTimes averages SLA elapsed time per hour of day in GMT+7.
// Orders without elapsed time are ignored; hours without orders are omitted.
func CalculateProcessingTimes(list []orders.Order) []ProcessingTime {
	type acc struct {
		total time.Duration
		count int
	}
	var hours [24]acc
	for i := range list {
		sla, ok := list[i].SLA()
		if !ok || sla.Elapsed <= 0 {
			continue
		}
		ts, ok := list[i].OrderTime()
		if !ok {
			continue
		}
		h := ts.In(orders.DashboardZone).Hour()
		hours[h].total += sla.Elapsed
		hours[h].count++
	}

	out := []ProcessingTime{}
	for h, a := range hours {
		if a.count == 0 {
			continue
		}
		avg := a.total / time.Duration(a.count)
		out = append(out, ProcessingTime{Time: hourLabel(h), Value: int(math.Round(avg.Minutes()))})
	}
	return out
}

// SLABucket is the number and share of orders in one SLA state.
type SLABucket struct {
	Status     string `json:"status"`
	Count      int    `json:"count"`
	Percentage int    `json:"percentage"`
}

// CalculateSLACompliance buckets orders into COMPLIANT, NEAR_BREACH and
// BREACH using CalculateSLAStatus. An open order the upstream already marks
// NEAR_BREACH stays in that bucket. Empty buckets are omitted.
func CalculateSLACompliance(list []orders.Order) []SLABucket {
	counts := map[string]int{}
	for i := range list {
		counts[slaBucket(&list[i])]++
	}

	out := []SLABucket{}
	for _, status := range []string{orders.SLAStatusCompliant, orders.SLAStatusNearBreach, orders.SLAStatusBreach} {
		if n := counts[status]; n > 0 {
			out = append(out, SLABucket{Status: status, Count: n, Percentage: percent(n, len(list))})
		}
	}
	return out
}

func slaBucket(o *orders.Order) string {
	status := CalculateSLAStatus(o)
	switch {
	case status.IsBreach:
		return orders.SLAStatusBreach
	case status.IsApproaching:
		return orders.SLAStatusNearBreach
	case !o.IsFulfilled() && o.SLAInfo != nil && o.SLAInfo.Status == orders.SLAStatusNearBreach:
		return orders.SLAStatusNearBreach
	default:
		return orders.SLAStatusCompliant
	}
}

// KPIData is the headline numbers of the dashboard.
type KPIData struct {
	TotalOrders      int             `json:"totalOrders"`
	OrdersProcessing int             `json:"ordersProcessing"`
	SLABreaches      int             `json:"slaBreaches"`
	RevenueToday     decimal.Decimal `json:"revenueToday"`
	FulfillmentRate  int             `json:"fulfillmentRate"`
	ComplianceRate   float64         `json:"complianceRate"`
}

// CalculateKPIs derives the headline numbers. Revenue is today's in GMT+7.
func CalculateKPIs(list []orders.Order, now time.Time) KPIData {
	kpi := KPIData{
		TotalOrders:     len(list),
		SLABreaches:     len(FilterSLABreach(list)),
		FulfillmentRate: FulfillmentRate(list),
		ComplianceRate:  math.Round(SLAComplianceRate(list)*10) / 10,
	}

	today := now.In(orders.DashboardZone).Format(orders.DateLayout)
	for i := range list {
		if !list[i].IsTerminal() {
			kpi.OrdersProcessing++
		}
		ts, ok := list[i].OrderTime()
		if ok && ts.In(orders.DashboardZone).Format(orders.DateLayout) == today {
			kpi.RevenueToday = kpi.RevenueToday.Add(list[i].TotalAmount)
		}
	}
	return kpi
}

// Validation severities.
const (
	SeverityWarning = "warning"
	SeverityError   = "error"
)

// ValidationIssue is one problem found in the order data.
type ValidationIssue struct {
	Field    string `json:"field"`
	Issue    string `json:"issue"`
	Severity string `json:"severity"`
	Count    int    `json:"count,omitempty"`
}

// ValidationSummary totals the data validation.
type ValidationSummary struct {
	TotalOrders   int      `json:"totalOrders"`
	ValidOrders   int      `json:"validOrders"`
	InvalidOrders int      `json:"invalidOrders"`
	MissingFields []string `json:"missingFields"`
}

// DataValidationReport describes the quality of a set of orders.
type DataValidationReport struct {
	IsValid      bool              `json:"isValid"`
	Completeness int               `json:"completeness"`
	Issues       []ValidationIssue `json:"issues"`
	Summary      ValidationSummary `json:"summary"`
}

var (
	requiredOrderFields  = []string{"id", "order_no", "status", "order_date"}
	importantOrderFields = []string{"channel", "total_amount", "customer", "sla_info"}
)

// ValidateOrderData reports missing fields and invalid values. Missing
// required fields or negative values make an order invalid; missing
// important fields only lower the completeness score.
func ValidateOrderData(list []orders.Order) DataValidationReport {
	missing := map[string]bool{}
	var negativeAmount, negativeElapsed, invalidTarget int
	report := DataValidationReport{Issues: []ValidationIssue{}}

	for i := range list {
		o := &list[i]
		valid := true

		for _, field := range requiredOrderFields {
			if orderFieldMissing(o, field) {
				missing[field] = true
				valid = false
			}
		}
		for _, field := range importantOrderFields {
			if orderFieldMissing(o, field) {
				missing[field] = true
			}
		}

		if o.TotalAmount.IsNegative() {
			negativeAmount++
			valid = false
		}
		if o.SLAInfo != nil {
			if o.SLAInfo.ElapsedMinutes < 0 {
				negativeElapsed++
				valid = false
			}
			if o.SLAInfo.TargetMinutes <= 0 {
				invalidTarget++
				valid = false
			}
		}

		if valid {
			report.Summary.ValidOrders++
		} else {
			report.Summary.InvalidOrders++
		}
	}

	addIssue := func(n int, field, issue string) {
		if n > 0 {
			report.Issues = append(report.Issues, ValidationIssue{Field: field, Issue: issue, Severity: SeverityError, Count: n})
		}
	}
	addIssue(negativeAmount, "total_amount", "Negative total amount detected")
	addIssue(negativeElapsed, "sla_info.elapsed_minutes", "Negative elapsed time")
	addIssue(invalidTarget, "sla_info.target_minutes", "Invalid SLA target")

	report.Summary.TotalOrders = len(list)
	report.Summary.MissingFields = []string{}
	for _, field := range append(append([]string{}, requiredOrderFields...), importantOrderFields...) {
		if missing[field] {
			report.Summary.MissingFields = append(report.Summary.MissingFields, field)
		}
	}

	totalFields := len(requiredOrderFields) + len(importantOrderFields)
	report.Completeness = percent(totalFields-len(report.Summary.MissingFields), totalFields)

	if n := len(report.Summary.MissingFields); n > 0 {
		severity := SeverityWarning
		if n > len(requiredOrderFields) {
			severity = SeverityError
		}
		report.Issues = append(report.Issues, ValidationIssue{
			Field:    "data_completeness",
			Issue:    "Missing fields: " + strings.Join(report.Summary.MissingFields, ", "),
			Severity: severity,
			Count:    n,
		})
	}
	if report.Summary.InvalidOrders > 0 {
		report.Issues = append(report.Issues, ValidationIssue{
			Field:    "data_validity",
			Issue:    fmt.Sprintf("%d orders have validation errors", report.Summary.InvalidOrders),
			Severity: SeverityError,
			Count:    report.Summary.InvalidOrders,
		})
	}

	report.IsValid = report.Summary.InvalidOrders == 0
	for _, issue := range report.Issues {
		if issue.Severity == SeverityError {
			report.IsValid = false
		}
	}
	return report
}

func orderFieldMissing(o *orders.Order, field string) bool {
	switch field {
	case "id":
		return o.ID == ""
	case "order_no":
		return o.OrderNo == ""
	case "status":
		return o.Status == ""
	case "order_date":
		return o.OrderDate == ""
	case "channel":
		return o.Channel == ""
	case "total_amount":
		return o.TotalAmount.IsZero()
	case "customer":
		return o.Customer == (orders.Customer{})
	case "sla_info":
		return o.SLAInfo == nil
	default:
		return false
	}
}

// Overview is every dashboard view model for one set of orders.
type Overview struct {
	KPIs                KPIData              `json:"kpis"`
	ChannelVolume       []ChannelVolume      `json:"channelVolume"`
	ChannelData         []ChannelData        `json:"channelData"`
	DailyOrders         []DailyOrders        `json:"dailyOrders"`
	FulfillmentByBranch []BranchFulfillment  `json:"fulfillmentByBranch"`
	ChannelPerformance  []ChannelPerformance `json:"channelPerformance"`
	TopProducts         []TopProduct         `json:"topProducts"`
	RevenueByCategory   []CategoryRevenue    `json:"revenueByCategory"`
	HourlySummary       []HourlySummary      `json:"hourlySummary"`
	ProcessingTimes     []ProcessingTime     `json:"processingTimes"`
	SLACompliance       []SLABucket          `json:"slaCompliance"`
	Alerts              OrderAlerts          `json:"alerts"`
	Validation          DataValidationReport `json:"validation"`
}

// BuildOverview derives every dashboard view model from list.
func BuildOverview(list []orders.Order, now time.Time) Overview {
	return Overview{
		KPIs:                CalculateKPIs(list, now),
		ChannelVolume:       CalculateChannelVolume(list),
		ChannelData:         CalculateEnhancedChannelData(list),
		DailyOrders:         CalculateDailyOrders(list),
		FulfillmentByBranch: CalculateFulfillmentByBranch(list),
		ChannelPerformance:  CalculateChannelPerformance(list),
		TopProducts:         CalculateTopProducts(list),
		RevenueByCategory:   CalculateRevenueByCategory(list),
		HourlySummary:       CalculateHourlyOrderSummary(list),
		ProcessingTimes:     CalculateProcessingTimes(list),
		SLACompliance:       CalculateSLACompliance(list),
		Alerts:              ProcessOrderAlerts(list, now),
		Validation:          ValidateOrderData(list),
	}
}

func percent(part, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(part) / float64(total) * 100))
}

func hourLabel(h int) string {
	return fmt.Sprintf("%02d:00", h)
}
