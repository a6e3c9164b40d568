package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/ambrazasp/geofields/internal/config"
)

func corsServer(origins ...string) *Server {
	return &Server{
		config: config.ServerConfig{
			CORS: config.CORSConfig{AllowedOrigins: origins},
		},
	}
}

func TestExtractHost(t *testing.T) {
	tests := []struct {
		origin string
		want   string
	}{
		{"https://maps.example.lt", "maps.example.lt"},
		{"https://maps.example.lt:8443", "maps.example.lt"},
		{"http://maps.example.lt/parcels", "maps.example.lt"},
		{"https://maps.example.lt:443/parcels/1", "maps.example.lt"},
		{"http://localhost:5173", "localhost"},
		{"http://10.0.0.7:8080", "10.0.0.7"},
		{"maps.example.lt", "maps.example.lt"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			if got := extractHost(tt.origin); got != tt.want {
				t.Errorf("extractHost(%q) = %q, want %q", tt.origin, got, tt.want)
			}
		})
	}
}

func TestMatchOrigin(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		pattern string
		want    bool
	}{
		{"exact", "https://maps.example.lt", "https://maps.example.lt", true},
		{"exact scheme mismatch", "http://maps.example.lt", "https://maps.example.lt", false},
		{"wildcard subdomain", "https://maps.example.lt", "*.example.lt", true},
		{"wildcard deep subdomain", "https://a.maps.example.lt:8443", "*.example.lt", true},
		{"wildcard bare domain", "https://example.lt", "*.example.lt", false},
		{"wildcard suffix trick", "https://evilexample.lt", "*.example.lt", false},
		{"different domain", "https://maps.example.com", "*.example.lt", false},
		{"empty pattern", "https://maps.example.lt", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := matchOrigin(tt.origin, tt.pattern); got != tt.want {
				t.Errorf("matchOrigin(%q, %q) = %v, want %v", tt.origin, tt.pattern, got, tt.want)
			}
		})
	}
}

func TestServer_isOriginAllowed(t *testing.T) {
	s := corsServer("https://admin.example.lt", "*.maps.example.lt")

	tests := []struct {
		origin string
		want   bool
	}{
		{"https://admin.example.lt", true},
		{"https://tiles.maps.example.lt", true},
		{"https://maps.example.lt", false},
		{"https://other.example.lt", false},
	}

	for _, tt := range tests {
		if got := s.isOriginAllowed(tt.origin); got != tt.want {
			t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
		}
	}
}

func TestCORSMiddleware(t *testing.T) {
	tests := []struct {
		name        string
		origins     []string
		origin      string
		method      string
		wantStatus  int
		wantHeaders bool
	}{
		{"allowed POST", []string{"https://admin.example.lt"}, "https://admin.example.lt", http.MethodPost, http.StatusOK, true},
		{"allowed preflight", []string{"https://admin.example.lt"}, "https://admin.example.lt", http.MethodOptions, http.StatusNoContent, true},
		{"wildcard GET", []string{"*.example.lt"}, "https://admin.example.lt", http.MethodGet, http.StatusOK, true},
		{"foreign origin", []string{"https://admin.example.lt"}, "https://evil.example.com", http.MethodPost, http.StatusOK, false},
		{"no origin", []string{"https://admin.example.lt"}, "", http.MethodGet, http.StatusOK, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			handler := corsServer(tt.origins...).corsMiddleware(next)

			req := httptest.NewRequest(tt.method, "/api/v1/services/parcels/records", nil)
			if tt.origin != "" {
				req.Header.Set("Origin", tt.origin)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)

			if rr.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rr.Code, tt.wantStatus)
			}

			allowOrigin := rr.Header().Get("Access-Control-Allow-Origin")
			if !tt.wantHeaders {
				if allowOrigin != "" {
					t.Errorf("unexpected Access-Control-Allow-Origin = %q", allowOrigin)
				}
				return
			}
			if allowOrigin != tt.origin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", allowOrigin, tt.origin)
			}
			if got := rr.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, PUT, PATCH, OPTIONS" {
				t.Errorf("Access-Control-Allow-Methods = %q", got)
			}
			if got := rr.Header().Get("Vary"); got != "Origin" {
				t.Errorf("Vary = %q, want Origin", got)
			}
		})
	}
}

func TestCORSMiddleware_PreflightDoesNotCallNext(t *testing.T) {
	called := false
	next := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/services/parcels/actions/feature_collection", nil)
	req.Header.Set("Origin", "https://admin.example.lt")
	rr := httptest.NewRecorder()
	corsServer("https://admin.example.lt").corsMiddleware(next).ServeHTTP(rr, req)

	if called {
		t.Error("preflight request reached the next handler")
	}
	if rr.Code != http.StatusNoContent {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusNoContent)
	}
}
