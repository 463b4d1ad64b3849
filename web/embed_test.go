package web

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSPAHandler(t *testing.T) {
	h := SPAHandler()

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantShell  bool
	}{
		{name: "root", method: http.MethodGet, path: "/", wantStatus: http.StatusOK, wantShell: true},
		{name: "client route", method: http.MethodGet, path: "/sessions/abc", wantStatus: http.StatusOK, wantShell: true},
		{name: "head", method: http.MethodHead, path: "/", wantStatus: http.StatusOK},
		{name: "explicit index redirects", method: http.MethodGet, path: "/index.html", wantStatus: http.StatusMovedPermanently},
		{name: "missing asset", method: http.MethodGet, path: "/assets/app.js", wantStatus: http.StatusNotFound},
		{name: "post", method: http.MethodPost, path: "/", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			h.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, tt.wantStatus, w.Code)
			if tt.wantShell {
				assert.Contains(t, w.Body.String(), "<title>Mock Interview</title>")
				assert.Equal(t, "no-cache", w.Header().Get("Cache-Control"))
			}
		})
	}
}
