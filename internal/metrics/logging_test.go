package metrics

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// serveLogged runs one request through LoggingMiddleware and returns the
// response and the decoded log line.
func serveLogged(t *testing.T, req *http.Request, status int) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	encoder := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	logger := zap.New(zapcore.NewCore(encoder, zapcore.AddSync(&buf), zapcore.InfoLevel))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	})

	w := httptest.NewRecorder()
	LoggingMiddleware(logger)(handler).ServeHTTP(w, req)

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry), "log: %s", buf.String())
	return w, entry
}

func TestLoggingMiddleware_Fields(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/scans", nil)
	req.RemoteAddr = "192.168.1.1:12345"

	_, entry := serveLogged(t, req, http.StatusAccepted)

	assert.Equal(t, "http request", entry["msg"])
	assert.Equal(t, "POST", entry["method"])
	assert.Equal(t, "/api/v1/scans", entry["path"])
	assert.Equal(t, float64(http.StatusAccepted), entry["status"])
	assert.Contains(t, entry, "duration_ms")
}

func TestLoggingMiddleware_GeneratesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/indices", nil)

	w, entry := serveLogged(t, req, http.StatusOK)

	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err, "generated id %q", id)
	assert.Equal(t, id, entry["request_id"])

	w2, _ := serveLogged(t, httptest.NewRequest(http.MethodGet, "/api/v1/indices", nil), http.StatusOK)
	assert.NotEqual(t, id, w2.Header().Get(RequestIDHeader))
}

func TestLoggingMiddleware_ReusesRequestID(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/scans/abc", nil)
	req.Header.Set(RequestIDHeader, "upstream-7f3a")

	w, entry := serveLogged(t, req, http.StatusNotFound)

	assert.Equal(t, "upstream-7f3a", w.Header().Get(RequestIDHeader))
	assert.Equal(t, "upstream-7f3a", entry["request_id"])
	assert.Equal(t, float64(http.StatusNotFound), entry["status"])
}

func TestLoggingMiddleware_ClientIP(t *testing.T) {
	tests := []struct {
		name      string
		forwarded string
		want      string
	}{
		{"remote addr", "", "10.0.0.1:54321"},
		{"single proxy", "203.0.113.50", "203.0.113.50"},
		{"proxy chain keeps the origin", "203.0.113.50, 70.41.3.18, 150.172.238.178", "203.0.113.50"},
		{"padded", "  198.51.100.7 ,10.1.1.1", "198.51.100.7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
			req.RemoteAddr = "10.0.0.1:54321"
			if tt.forwarded != "" {
				req.Header.Set("X-Forwarded-For", tt.forwarded)
			}

			_, entry := serveLogged(t, req, http.StatusOK)
			assert.Equal(t, tt.want, entry["client_ip"])
		})
	}
}
