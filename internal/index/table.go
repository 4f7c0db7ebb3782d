package index

import "context"

// Table is a parsed tabular block: one header row plus data rows.
// Rows may be ragged.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Column returns the cells of column i, with "" for short rows.
func (t Table) Column(i int) []string {
	out := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if i < len(row) {
			out = append(out, row[i])
		} else {
			out = append(out, "")
		}
	}
	return out
}

// Width returns the widest row or header length.
func (t Table) Width() int {
	w := len(t.Headers)
	for _, row := range t.Rows {
		if len(row) > w {
			w = len(row)
		}
	}
	return w
}

// TableFetcher retrieves every table in a document.
type TableFetcher interface {
	Fetch(ctx context.Context, url string) ([]Table, error)
}
