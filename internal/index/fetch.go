package index

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	defaultFetchTimeout = 10 * time.Second
	defaultUserAgent    = "Mozilla/5.0 (compatible; valscreen/1.0)"
)

// HTMLTableFetcher downloads an HTML page and parses every <table>.
type HTMLTableFetcher struct {
	client    *http.Client
	userAgent string
}

// NewHTMLTableFetcher creates a fetcher. Zero timeout uses 10s.
func NewHTMLTableFetcher(timeout time.Duration, userAgent string) *HTMLTableFetcher {
	if timeout <= 0 {
		timeout = defaultFetchTimeout
	}
	if userAgent == "" {
		userAgent = defaultUserAgent
	}
	return &HTMLTableFetcher{
		client:    &http.Client{Timeout: timeout},
		userAgent: userAgent,
	}
}

// Fetch implements TableFetcher.
func (f *HTMLTableFetcher) Fetch(ctx context.Context, url string) ([]Table, error) {
	ctx, cancel := context.WithTimeout(ctx, f.client.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "text/html")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching %s: status %d", url, resp.StatusCode)
	}

	return ParseTables(resp.Body)
}

// ParseTables extracts all tables from an HTML document. The header is
// the first row made only of <th> cells, or the first row if none is.
func ParseTables(r io.Reader) ([]Table, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("parsing HTML: %w", err)
	}

	var tables []Table
	doc.Find("table").Each(func(_ int, tbl *goquery.Selection) {
		rows := tbl.Find("tr").FilterFunction(func(_ int, tr *goquery.Selection) bool {
			return tr.Closest("table").IsSelection(tbl)
		})
		if rows.Length() == 0 {
			return
		}

		var t Table
		headerFound := false
		rows.Each(func(i int, tr *goquery.Selection) {
			cells := tr.ChildrenFiltered("th, td")
			texts := make([]string, 0, cells.Length())
			cells.Each(func(_ int, c *goquery.Selection) {
				texts = append(texts, strings.TrimSpace(c.Text()))
			})

			isHeader := cells.Length() > 0 && tr.ChildrenFiltered("td").Length() == 0
			switch {
			case !headerFound && (isHeader || i == 0):
				t.Headers = texts
				headerFound = true
			case isHeader:
				// repeated header rows inside the body
			default:
				t.Rows = append(t.Rows, texts)
			}
		})
		tables = append(tables, t)
	})

	return tables, nil
}
