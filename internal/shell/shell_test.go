package shell

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestServesShellAtRoot(t *testing.T) {
	h := Handler("")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "SyncGate") {
		t.Error("GET / did not serve the application shell")
	}
}

func TestFallbackNeverReturns404(t *testing.T) {
	h := Handler("")

	paths := []string{"/totally-unmapped-path", "/deep/client/route", "/missing.js"}
	for _, p := range paths {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, p, nil))

		if rec.Code != http.StatusOK {
			t.Errorf("GET %s status = %d, want 200", p, rec.Code)
		}
		if !strings.Contains(rec.Body.String(), "SyncGate") {
			t.Errorf("GET %s did not fall back to the shell", p)
		}
	}
}

func TestMissingDevDirFallsBackToEmbedded(t *testing.T) {
	h := Handler("/nonexistent/dir")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("GET / status = %d, want 200", rec.Code)
	}
}
