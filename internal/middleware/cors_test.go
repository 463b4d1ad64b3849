package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name            string
		allowed         []string
		origin          string
		method          string
		wantStatus      int
		wantOrigin      string
		wantCredentials string
	}{
		{"explicit origin", []string{"https://app.example"}, "https://app.example", http.MethodGet, http.StatusNoContent, "https://app.example", "true"},
		{"wildcard origin", []string{"*"}, "https://other.example", http.MethodGet, http.StatusNoContent, "https://other.example", ""},
		{"rejected origin", []string{"https://app.example"}, "https://evil.example", http.MethodGet, http.StatusNoContent, "", ""},
		{"preflight", []string{"https://app.example"}, "https://app.example", http.MethodOptions, http.StatusOK, "https://app.example", "true"},
		{"no origin", []string{"*"}, "", http.MethodGet, http.StatusNoContent, "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, "/api/state", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed, "X-Interview-Tab-ID")(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("allow-origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredentials {
				t.Errorf("allow-credentials = %q, want %q", got, tt.wantCredentials)
			}
			if tt.wantOrigin != "" {
				if got := rec.Header().Get("Access-Control-Allow-Headers"); got != "Content-Type, X-Interview-Tab-ID" {
					t.Errorf("allow-headers = %q", got)
				}
			}
		})
	}
}
