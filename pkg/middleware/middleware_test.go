package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Hazyshades/mantle-estate-sub000/pkg/response"
	"github.com/gin-gonic/gin"
)

func TestRateLimitRespondsTooManyRequests(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(RateLimit())
	router.GET("/api/v1/auth/ping", func(c *gin.Context) {
		response.Success(c, gin.H{"ok": true})
	})

	do := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/ping", nil)
		req.RemoteAddr = "10.1.2.3:4567"
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	if w := do(); w.Code != http.StatusOK {
		t.Fatalf("expected first request to pass, got %d", w.Code)
	}

	// Burst is 1, so an immediate second request gets throttled
	w := do()
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}

	var resp response.Response
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if resp.Success {
		t.Error("throttled response reported success")
	}
	if resp.Error == nil || resp.Error.Code != response.ErrCodeRateLimited {
		t.Errorf("expected error code %s, got %+v", response.ErrCodeRateLimited, resp.Error)
	}
}
