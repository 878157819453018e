package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

func preflight(t *testing.T, allowedOrigins []string, origin string) *httptest.ResponseRecorder {
	t.Helper()
	gin.SetMode(gin.TestMode)

	router := gin.New()
	router.Use(corsMiddleware(allowedOrigins))
	router.POST("/trpc/:path", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	request := httptest.NewRequest(http.MethodOptions, "/trpc/post.add", http.NoBody)
	request.Header.Set("Origin", origin)
	request.Header.Set("Access-Control-Request-Method", http.MethodPost)
	request.Header.Set("Access-Control-Request-Headers", "X-TAuth-Tenant, traceparent")

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)
	return recorder
}

func TestCORSMiddlewareAllowsTenantAndTraceHeaders(t *testing.T) {
	recorder := preflight(t, nil, "https://app.example.com")

	if recorder.Code != http.StatusNoContent {
		t.Fatalf("expected status %d, got %d", http.StatusNoContent, recorder.Code)
	}

	allowHeaders := strings.ToLower(recorder.Header().Get("Access-Control-Allow-Headers"))
	for _, header := range []string{"x-tauth-tenant", "traceparent"} {
		if !strings.Contains(allowHeaders, header) {
			t.Fatalf("expected Access-Control-Allow-Headers to include %s, got %q", header, allowHeaders)
		}
	}
	if recorder.Header().Get("Access-Control-Allow-Credentials") != "true" {
		t.Fatalf("expected credentials to be enabled")
	}
	if recorder.Header().Get("Access-Control-Allow-Origin") != "https://app.example.com" {
		t.Fatalf("expected origin to be echoed, got %q", recorder.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestCORSMiddlewareRestrictsConfiguredOrigins(t *testing.T) {
	allowed := []string{"https://feedback.example.com"}

	accepted := preflight(t, allowed, "https://feedback.example.com")
	if accepted.Header().Get("Access-Control-Allow-Origin") != "https://feedback.example.com" {
		t.Fatalf("expected configured origin to be allowed")
	}

	rejected := preflight(t, allowed, "https://evil.example.com")
	if rejected.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("expected foreign origin to be rejected")
	}
}

func TestValidateOriginsRequiresScheme(t *testing.T) {
	if err := validateOrigins([]string{"*", "https://ok.example.com"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := validateOrigins([]string{"feedback.example.com"}); err == nil {
		t.Fatalf("expected scheme-less origin to be rejected")
	}
}
