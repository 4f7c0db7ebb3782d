package valuation

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/newthinker/valscreen/internal/core"
)

// earningsTokens identify the per-share earnings row by label substring.
var earningsTokens = []string{"EPS", "Earnings"}

// YearMultiple is the reconstructed P/E of one fiscal year.
type YearMultiple struct {
	Year     int     `json:"year"`
	EPS      float64 `json:"eps"`
	AvgPrice float64 `json:"avg_price"`
	PE       float64 `json:"pe"`
}

// Reconstruction is the result of rebuilding the historical average P/E.
type Reconstruction struct {
	Years        []YearMultiple
	HistoricalPE float64
}

// YearsUsed returns the fiscal years that contributed a multiple.
func (r Reconstruction) YearsUsed() []int {
	years := make([]int, len(r.Years))
	for i, y := range r.Years {
		years[i] = y.Year
	}
	return years
}

// EarningsSeries extracts the per-share earnings series from a statement.
// The first line item whose label contains "EPS" or "Earnings" is used.
// The fiscal year is the calendar year of the period end date; if a year
// is reported twice the later period wins.
func EarningsSeries(stmt *core.Statement) ([]core.EarningsPoint, error) {
	if stmt == nil {
		return nil, core.WrapError(core.ErrSchemaMismatch, fmt.Errorf("no statement"))
	}

	var item *core.LineItem
	for i := range stmt.Items {
		if labelMatches(stmt.Items[i].Label) {
			item = &stmt.Items[i]
			break
		}
	}
	if item == nil {
		return nil, core.WrapError(core.ErrSchemaMismatch, fmt.Errorf("%s: no earnings-per-share line item", stmt.Identifier))
	}

	byYear := make(map[int]core.EarningsPoint)
	for _, v := range item.Values {
		if math.IsNaN(v.Value) || math.IsInf(v.Value, 0) || v.Date.IsZero() {
			continue
		}
		year := v.Date.Year()
		if prev, ok := byYear[year]; ok && prev.Date.After(v.Date) {
			continue
		}
		byYear[year] = core.EarningsPoint{FiscalYear: year, Date: v.Date, EPS: v.Value}
	}

	series := make([]core.EarningsPoint, 0, len(byYear))
	for _, p := range byYear {
		series = append(series, p)
	}
	sort.Slice(series, func(i, j int) bool { return series[i].Date.Before(series[j].Date) })
	return series, nil
}

func labelMatches(label string) bool {
	for _, tok := range earningsTokens {
		if strings.Contains(label, tok) {
			return true
		}
	}
	return false
}

// Reconstruct computes the mean of yearly average-price / EPS multiples.
// Years without trading days or with non-positive EPS are excluded.
// Prices are divided by divisor to convert minor-unit quotes.
func Reconstruct(series []core.EarningsPoint, prices []core.PricePoint, divisor float64) (Reconstruction, error) {
	if divisor <= 0 {
		divisor = 1
	}

	type acc struct {
		sum   float64
		count int
	}
	byYear := make(map[int]*acc)
	for _, p := range prices {
		if math.IsNaN(p.Close) || math.IsInf(p.Close, 0) {
			continue
		}
		y := p.Time.Year()
		a, ok := byYear[y]
		if !ok {
			a = &acc{}
			byYear[y] = a
		}
		a.sum += p.Close
		a.count++
	}

	var out Reconstruction
	for _, e := range series {
		if e.EPS <= 0 {
			continue
		}
		a, ok := byYear[e.FiscalYear]
		if !ok || a.count == 0 {
			continue
		}
		avg := a.sum / float64(a.count) / divisor
		out.Years = append(out.Years, YearMultiple{
			Year:     e.FiscalYear,
			EPS:      e.EPS,
			AvgPrice: avg,
			PE:       avg / e.EPS,
		})
	}

	if len(out.Years) == 0 {
		return out, core.ErrNoPositiveYears
	}

	var total float64
	for _, y := range out.Years {
		total += y.PE
	}
	out.HistoricalPE = total / float64(len(out.Years))

	if out.HistoricalPE == 0 {
		return out, core.ErrDegenerate
	}
	return out, nil
}

// Premium returns (forward - historical) / historical * 100.
func Premium(forward, historical float64) (float64, error) {
	if historical == 0 {
		return 0, core.ErrDegenerate
	}
	return (forward - historical) / historical * 100, nil
}
