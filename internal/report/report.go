// Package report turns a result table into presentation data: summary
// statistics, a treemap hierarchy and sorted tabular output.
package report

import (
	"fmt"
	"sort"
	"strings"

	"github.com/newthinker/valscreen/internal/core"
)

// Summary holds headline statistics for a result table.
type Summary struct {
	Index            string         `json:"index"`
	Records          int            `json:"records"`
	Skipped          int            `json:"skipped"`
	Total            int            `json:"total"`
	Cancelled        bool           `json:"cancelled"`
	MeanForwardPE    float64        `json:"mean_forward_pe"`
	MeanHistoricalPE float64        `json:"mean_historical_pe"`
	MeanPremiumPct   float64        `json:"mean_premium_pct"`
	Sectors          int            `json:"sectors"`
	SkipReasons      map[string]int `json:"skip_reasons,omitempty"`
}

// Summarize computes the summary. Means are zero for an empty table.
func Summarize(t *core.ResultTable) Summary {
	if t == nil {
		return Summary{}
	}
	s := Summary{
		Index:     t.Index,
		Records:   len(t.Records),
		Skipped:   len(t.Skipped),
		Total:     t.Total,
		Cancelled: t.Cancelled,
	}

	sectors := make(map[string]struct{})
	for _, r := range t.Records {
		s.MeanForwardPE += r.ForwardPE
		s.MeanHistoricalPE += r.HistoricalPE
		s.MeanPremiumPct += r.PremiumPct
		sectors[r.Sector] = struct{}{}
	}
	if n := float64(len(t.Records)); n > 0 {
		s.MeanForwardPE /= n
		s.MeanHistoricalPE /= n
		s.MeanPremiumPct /= n
	}
	s.Sectors = len(sectors)

	if len(t.Skipped) > 0 {
		s.SkipReasons = make(map[string]int)
		for _, sk := range t.Skipped {
			s.SkipReasons[sk.Code]++
		}
	}
	return s
}

// SortKey selects the column records are ordered by.
type SortKey string

const (
	SortPremium      SortKey = "premium"
	SortHistoricalPE SortKey = "historical_pe"
	SortForwardPE    SortKey = "forward_pe"
	SortMarketCap    SortKey = "market_cap"
	SortIdentifier   SortKey = "identifier"
	SortSector       SortKey = "sector"
)

// SortKeys lists the accepted sort keys.
var SortKeys = []SortKey{SortPremium, SortHistoricalPE, SortForwardPE, SortMarketCap, SortIdentifier, SortSector}

// ParseSortKey validates a sort key. Empty means premium.
func ParseSortKey(s string) (SortKey, error) {
	if s == "" {
		return SortPremium, nil
	}
	for _, k := range SortKeys {
		if strings.EqualFold(s, string(k)) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown sort key %q", s)
}

// SortRecords returns a sorted copy. Ties fall back to identifier order.
// Premium ascending puts the cheapest instruments first.
func SortRecords(records []core.ValuationRecord, key SortKey, descending bool) []core.ValuationRecord {
	out := make([]core.ValuationRecord, len(records))
	copy(out, records)

	less := func(a, b core.ValuationRecord) int {
		switch key {
		case SortHistoricalPE:
			return cmpFloat(a.HistoricalPE, b.HistoricalPE)
		case SortForwardPE:
			return cmpFloat(a.ForwardPE, b.ForwardPE)
		case SortMarketCap:
			return cmpFloat(a.MarketCap, b.MarketCap)
		case SortSector:
			return strings.Compare(a.Sector, b.Sector)
		case SortIdentifier:
			return strings.Compare(string(a.Identifier), string(b.Identifier))
		default:
			return cmpFloat(a.PremiumPct, b.PremiumPct)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		c := less(out[i], out[j])
		if descending {
			c = -c
		}
		if c != 0 {
			return c < 0
		}
		return out[i].Identifier < out[j].Identifier
	})
	return out
}

func cmpFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
