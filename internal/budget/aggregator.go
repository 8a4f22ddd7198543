// Package budget derives every number the dashboard and analytics screens
// show from a snapshot of the transaction list. All functions are pure and
// error-free by contract: malformed records contribute zero (totals) or are
// excluded (timeframe filtering), never an error.
package budget

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"livein/internal/core"
)

// Comparison holds period-over-period spend for the analytics header.
type Comparison struct {
	PreviousPeriod   decimal.Decimal `json:"previousPeriod"`
	CurrentPeriod    decimal.Decimal `json:"currentPeriod"`
	PercentageChange float64         `json:"percentageChange"`
}

// Summary is the full dashboard payload for one timeframe.
type Summary struct {
	Timeframe   core.Timeframe                   `json:"timeframe"`
	TotalSpend  decimal.Decimal                  `json:"totalSpend"`
	TotalIncome float64                          `json:"totalIncome"`
	ByCategory  map[core.Category]decimal.Decimal `json:"byCategory"`
	Utilization map[core.Category]int            `json:"utilization"`
	Comparison  Comparison                       `json:"comparison"`
}

// PartnerMatrix is the partner x category cross-tabulation behind the
// grouped-bar comparison chart.
type PartnerMatrix map[string]map[core.Category]decimal.Decimal

// TotalSpend sums every amount in the list, coercing non-numeric values
// to zero.
func TotalSpend(txs []core.Transaction) decimal.Decimal {
	total := decimal.Zero
	for _, tx := range txs {
		total = total.Add(core.ParseAmount(tx.Amount))
	}
	return total
}

// SpendByCategory sums amounts per category. Every category appears in the
// result, zero-valued or not; dropping empty slices is a presentation
// decision, not an aggregation one.
func SpendByCategory(txs []core.Transaction, categories []core.Category) map[core.Category]decimal.Decimal {
	out := make(map[core.Category]decimal.Decimal, len(categories))
	for _, c := range categories {
		out[c] = decimal.Zero
	}
	for _, tx := range txs {
		if _, ok := out[tx.Category]; !ok {
			continue
		}
		out[tx.Category] = out[tx.Category].Add(core.ParseAmount(tx.Amount))
	}
	return out
}

// SpendByPartnerAndCategory cross-tabulates spend for every partner and
// category, zero-filled so the chart layer never special-cases gaps.
func SpendByPartnerAndCategory(txs []core.Transaction, partners []string, categories []core.Category) PartnerMatrix {
	out := make(PartnerMatrix, len(partners))
	for _, p := range partners {
		row := make(map[core.Category]decimal.Decimal, len(categories))
		for _, c := range categories {
			row[c] = decimal.Zero
		}
		out[p] = row
	}
	for _, tx := range txs {
		row, ok := out[tx.Partner]
		if !ok {
			continue
		}
		if _, ok := row[tx.Category]; !ok {
			continue
		}
		row[tx.Category] = row[tx.Category].Add(core.ParseAmount(tx.Amount))
	}
	return out
}

// Utilization expresses per-category spend as a rounded percentage of that
// category's allocated budget (total income x allocation percent). A zero
// income or zero allocation yields 0 rather than letting a division by zero
// reach the UI.
func Utilization(spend map[core.Category]decimal.Decimal, alloc core.BudgetAllocation) map[core.Category]int {
	out := make(map[core.Category]int, len(spend))
	totalIncome := alloc.TotalIncome()
	for c, amount := range spend {
		budget := totalIncome * float64(alloc.Percent(c)) / 100
		if budget <= 0 {
			out[c] = 0
			continue
		}
		out[c] = int(math.Round(amount.InexactFloat64() / budget * 100))
	}
	return out
}

// FilterByTimeframe keeps records whose timestamp falls in the same calendar
// month (or year) as now. Records missing a usable timestamp, amount,
// partner, or category are excluded entirely: analytics wants complete
// records, unlike the raw total's coerce-to-zero rule.
func FilterByTimeframe(txs []core.Transaction, tf core.Timeframe, now time.Time) []core.Transaction {
	var out []core.Transaction
	for _, tx := range txs {
		if !completeForAnalytics(tx) {
			continue
		}
		ts := time.UnixMilli(tx.Timestamp).In(now.Location())
		if ts.Year() != now.Year() {
			continue
		}
		if tf == core.TimeframeMonth && ts.Month() != now.Month() {
			continue
		}
		out = append(out, tx)
	}
	return out
}

// PeriodComparison computes spend for the timeframe containing now and for
// the immediately preceding one. When the previous period is zero, the
// change is 100% if anything was spent now and 0% if both periods are empty;
// the zero/zero case is deliberately 0, not 100.
func PeriodComparison(txs []core.Transaction, tf core.Timeframe, now time.Time) Comparison {
	current := TotalSpend(FilterByTimeframe(txs, tf, now))
	previous := TotalSpend(FilterByTimeframe(txs, tf, previousPeriodAnchor(tf, now)))

	cmp := Comparison{PreviousPeriod: previous, CurrentPeriod: current}
	switch {
	case previous.IsZero() && current.IsZero():
		cmp.PercentageChange = 0
	case previous.IsZero():
		cmp.PercentageChange = 100
	default:
		cmp.PercentageChange = current.Sub(previous).InexactFloat64() / previous.InexactFloat64() * 100
	}
	return cmp
}

// Summarize bundles the aggregates the dashboard needs for one household
// snapshot. The allocation is passed in explicitly; nothing here reads
// ambient session state.
func Summarize(txs []core.Transaction, alloc core.BudgetAllocation, tf core.Timeframe, now time.Time) Summary {
	inPeriod := FilterByTimeframe(txs, tf, now)
	byCategory := SpendByCategory(inPeriod, core.Categories())
	return Summary{
		Timeframe:   tf,
		TotalSpend:  TotalSpend(inPeriod),
		TotalIncome: alloc.TotalIncome(),
		ByCategory:  byCategory,
		Utilization: Utilization(byCategory, alloc),
		Comparison:  PeriodComparison(txs, tf, now),
	}
}

// completeForAnalytics is the completeness filter from the analytics
// contract: unlike the raw totals, timeframe views drop records they cannot
// place or attribute.
func completeForAnalytics(tx core.Transaction) bool {
	if tx.Timestamp <= 0 {
		return false
	}
	if !core.AmountParses(tx.Amount) {
		return false
	}
	if tx.Partner == "" {
		return false
	}
	return tx.Category.Valid()
}

// previousPeriodAnchor returns a time inside the period immediately before
// the one containing now. Built from calendar components, not AddDate, so
// month-end dates cannot skip a month.
func previousPeriodAnchor(tf core.Timeframe, now time.Time) time.Time {
	if tf == core.TimeframeYear {
		return time.Date(now.Year()-1, time.January, 1, 0, 0, 0, 0, now.Location())
	}
	// First day of the current month, minus one day.
	firstOfMonth := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return firstOfMonth.AddDate(0, 0, -1)
}
