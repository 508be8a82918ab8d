package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func newTestRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(handlers...)
	router.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	return router
}

func TestSecurityHeaders(t *testing.T) {
	router := newTestRouter(SecurityHeaders())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	expected := map[string]string{
		"X-Content-Type-Options": "nosniff",
		"X-Frame-Options":        "DENY",
		"X-XSS-Protection":       "1; mode=block",
		"Referrer-Policy":        "strict-origin-when-cross-origin",
	}
	for header, want := range expected {
		if got := w.Header().Get(header); got != want {
			t.Errorf("Expected %s=%q, got %q", header, want, got)
		}
	}
}

func TestCorrelationIDGenerated(t *testing.T) {
	router := newTestRouter(CorrelationID())

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))

	if w.Header().Get("X-Correlation-ID") == "" {
		t.Error("Expected a generated correlation ID")
	}
}

func TestCorrelationIDPreserved(t *testing.T) {
	router := newTestRouter(CorrelationID())

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req.Header.Set("X-Correlation-ID", "caller-supplied")
	router.ServeHTTP(w, req)

	if got := w.Header().Get("X-Correlation-ID"); got != "caller-supplied" {
		t.Errorf("Expected the caller's correlation ID preserved, got %q", got)
	}
}

func TestRateLimitBlocks(t *testing.T) {
	router := newTestRouter(RateLimit(0.001, 2))

	for i := 0; i < 2; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected request %d within the burst to pass, got %d", i, w.Code)
		}
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
	if w.Code != http.StatusTooManyRequests {
		t.Errorf("Expected 429 once the burst is spent, got %d", w.Code)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	router := newTestRouter(RateLimit(0, 0))

	for i := 0; i < 10; i++ {
		w := httptest.NewRecorder()
		router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/test", nil))
		if w.Code != http.StatusOK {
			t.Fatalf("Expected no limiting when disabled, got %d", w.Code)
		}
	}
}
