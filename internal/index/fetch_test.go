package index

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const samplePage = `<html><body>
<table class="infobox"><tr><th>Founded</th><td>1957</td></tr></table>
<table class="wikitable" id="constituents">
  <thead><tr><th>Symbol</th><th>Security</th><th>GICS Sector</th></tr></thead>
  <tbody>
    <tr><td>AAPL</td><td>Apple Inc.</td><td>Information Technology</td></tr>
    <tr><td>BRK.B</td><td>Berkshire Hathaway</td><td>Financials</td></tr>
    <tr><th>Symbol</th><th>Security</th><th>GICS Sector</th></tr>
    <tr><td>MSFT</td><td>Microsoft<table><tr><td>nested</td></tr></table></td><td>Information Technology</td></tr>
  </tbody>
</table>
</body></html>`

func TestParseTables(t *testing.T) {
	tables, err := ParseTables(strings.NewReader(samplePage))
	require.NoError(t, err)
	require.Len(t, tables, 3)

	main := tables[1]
	assert.Equal(t, []string{"Symbol", "Security", "GICS Sector"}, main.Headers)
	require.Len(t, main.Rows, 3)
	assert.Equal(t, "BRK.B", main.Rows[1][0])
	assert.Equal(t, "MSFT", main.Rows[2][0])

	nested := tables[2]
	assert.Equal(t, []string{"nested"}, nested.Headers)
}

func TestParseTables_NoTables(t *testing.T) {
	tables, err := ParseTables(strings.NewReader("<html><body><p>none</p></body></html>"))
	require.NoError(t, err)
	assert.Empty(t, tables)
}

func TestHTMLTableFetcher_Fetch(t *testing.T) {
	var gotUA string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(samplePage))
	}))
	defer server.Close()

	f := NewHTMLTableFetcher(time.Second, "test-agent")
	tables, err := f.Fetch(context.Background(), server.URL)
	require.NoError(t, err)
	assert.Len(t, tables, 3)
	assert.Equal(t, "test-agent", gotUA)
}

func TestHTMLTableFetcher_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	f := NewHTMLTableFetcher(0, "")
	_, err := f.Fetch(context.Background(), server.URL)
	assert.Error(t, err)
}
