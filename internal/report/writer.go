package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/newthinker/valscreen/internal/core"
)

var columns = []string{
	"identifier", "name", "sector", "currency", "market_cap",
	"forward_pe", "forward_is_trailing", "historical_pe", "premium_pct", "years_used",
}

// WriteTable renders records as an aligned text table.
func WriteTable(w io.Writer, records []core.ValuationRecord) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "IDENTIFIER\tNAME\tSECTOR\tMKT CAP\tFWD P/E\tHIST P/E\tPREMIUM\tYEARS\t")
	for _, r := range records {
		fwd := fmt.Sprintf("%.2f", r.ForwardPE)
		if r.ForwardIsTrailing {
			fwd += "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%.2f\t%+.1f%%\t%s\t\n",
			r.Identifier,
			truncate(r.Name, 28),
			truncate(r.Sector, 22),
			humanize(r.MarketCap),
			fwd,
			r.HistoricalPE,
			r.PremiumPct,
			joinYears(r.YearsUsed, " "),
		)
	}
	return tw.Flush()
}

// WriteSummary renders the summary block printed above the table.
func WriteSummary(w io.Writer, s Summary) error {
	_, err := fmt.Fprintf(w,
		"%s: %d valued, %d skipped of %d | mean fwd P/E %.2f | mean hist P/E %.2f | mean premium %+.1f%% | %d sectors\n",
		s.Index, s.Records, s.Skipped, s.Total, s.MeanForwardPE, s.MeanHistoricalPE, s.MeanPremiumPct, s.Sectors,
	)
	if err == nil && s.Cancelled {
		_, err = fmt.Fprintln(w, "scan cancelled: partial results")
	}
	return err
}

// WriteCSV writes records with unformatted numeric fields.
func WriteCSV(w io.Writer, records []core.ValuationRecord) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(columns); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			string(r.Identifier),
			r.Name,
			r.Sector,
			r.Currency,
			strconv.FormatFloat(r.MarketCap, 'f', -1, 64),
			strconv.FormatFloat(r.ForwardPE, 'f', -1, 64),
			strconv.FormatBool(r.ForwardIsTrailing),
			strconv.FormatFloat(r.HistoricalPE, 'f', -1, 64),
			strconv.FormatFloat(r.PremiumPct, 'f', -1, 64),
			joinYears(r.YearsUsed, ";"),
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteJSON writes the table together with its summary.
func WriteJSON(w io.Writer, t *core.ResultTable) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(struct {
		Summary Summary           `json:"summary"`
		Table   *core.ResultTable `json:"table"`
	}{Summarize(t), t})
}

func joinYears(years []int, sep string) string {
	parts := make([]string, len(years))
	for i, y := range years {
		parts[i] = strconv.Itoa(y)
	}
	return strings.Join(parts, sep)
}

func humanize(v float64) string {
	switch {
	case v >= 1e12:
		return fmt.Sprintf("%.2fT", v/1e12)
	case v >= 1e9:
		return fmt.Sprintf("%.2fB", v/1e9)
	case v >= 1e6:
		return fmt.Sprintf("%.2fM", v/1e6)
	case v > 0:
		return fmt.Sprintf("%.0f", v)
	default:
		return "-"
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
