package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/newthinker/valscreen/internal/api/response"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
})

func TestAPIKeyAuth(t *testing.T) {
	tests := []struct {
		name       string
		configured string
		path       string
		provided   string
		want       int
	}{
		{"valid key", "secret-key", "/api/v1/scans", "secret-key", http.StatusOK},
		{"missing key", "secret-key", "/api/v1/scans", "", http.StatusUnauthorized},
		{"invalid key", "secret-key", "/api/v1/scans", "wrong-key", http.StatusUnauthorized},
		{"auth disabled", "", "/api/v1/scans", "", http.StatusOK},
		{"exempt health", "secret-key", "/api/health", "", http.StatusOK},
		{"exempt metrics", "secret-key", "/metrics", "", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wrapped := APIKeyAuth(tt.configured, "/api/health", "/metrics")(okHandler)

			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.provided != "" {
				req.Header.Set(APIKeyHeader, tt.provided)
			}
			w := httptest.NewRecorder()

			wrapped.ServeHTTP(w, req)

			if w.Code != tt.want {
				t.Errorf("expected %d, got %d", tt.want, w.Code)
			}
		})
	}
}

func TestAPIKeyAuth_ErrorBody(t *testing.T) {
	wrapped := APIKeyAuth("secret-key")(okHandler)

	req := httptest.NewRequest("GET", "/api/v1/indices", nil)
	w := httptest.NewRecorder()
	wrapped.ServeHTTP(w, req)

	var resp response.ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if resp.Error.Code != "UNAUTHORIZED" {
		t.Errorf("expected UNAUTHORIZED, got %s", resp.Error.Code)
	}
}
