package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestCORS(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})

	tests := []struct {
		name        string
		allowed     []string
		origin      string
		preflight   bool
		wantStatus  int
		wantOrigin  string
		wantCredits string
	}{
		{"explicit origin", []string{"https://school.example"}, "https://school.example", false, http.StatusTeapot, "https://school.example", "true"},
		{"wildcard has no credentials", []string{"*"}, "https://other.example", false, http.StatusTeapot, "https://other.example", ""},
		{"unknown origin", []string{"https://school.example"}, "https://evil.example", false, http.StatusTeapot, "", ""},
		{"preflight", []string{"*"}, "https://school.example", true, http.StatusNoContent, "https://school.example", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := http.MethodGet
			if tt.preflight {
				method = http.MethodOptions
			}
			req := httptest.NewRequest(method, "/api/units", nil)
			req.Header.Set("Origin", tt.origin)
			if tt.preflight {
				req.Header.Set("Access-Control-Request-Method", http.MethodPost)
			}
			rec := httptest.NewRecorder()

			CORS(tt.allowed)(next).ServeHTTP(rec, req)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			if got := rec.Header().Get("Access-Control-Allow-Origin"); got != tt.wantOrigin {
				t.Errorf("Allow-Origin = %q, want %q", got, tt.wantOrigin)
			}
			if got := rec.Header().Get("Access-Control-Allow-Credentials"); got != tt.wantCredits {
				t.Errorf("Allow-Credentials = %q, want %q", got, tt.wantCredits)
			}
		})
	}
}
