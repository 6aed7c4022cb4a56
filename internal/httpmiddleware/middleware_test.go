package httpmiddleware

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"staffattend/internal/apperrors"
)

func TestTokenBucket(t *testing.T) {
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	l := NewTokenBucket(2, 60) // one token per second
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst of capacity should pass")
	}
	if l.Allow("a") {
		t.Error("third request should be limited")
	}
	if !l.Allow("b") {
		t.Error("other keys have their own bucket")
	}

	now = now.Add(1500 * time.Millisecond)
	if !l.Allow("a") {
		t.Error("refill after 1.5s should allow one request")
	}
	if l.Allow("a") {
		t.Error("only one token should have refilled")
	}

	now = now.Add(time.Hour)
	if n := l.Sweep(time.Minute); n != 2 {
		t.Errorf("swept %d buckets, want 2", n)
	}
}

func TestGinMiddlewareLimits(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(NewTokenBucket(1, 1).GinMiddleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 2)
	for i := range codes {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes[i] = w.Code
	}
	if codes[0] != http.StatusOK || codes[1] != http.StatusTooManyRequests {
		t.Errorf("codes = %v", codes)
	}
}

func TestErrorMapping(t *testing.T) {
	gin.SetMode(gin.TestMode)
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{apperrors.NotFound("staff not found"), http.StatusNotFound, "not_found"},
		{apperrors.Conflict("dup"), http.StatusConflict, "conflict"},
		{apperrors.Validation("bad"), http.StatusBadRequest, "validation"},
		{apperrors.New(apperrors.ErrNoFace, "no face"), http.StatusUnprocessableEntity, "no_face"},
		{apperrors.New(apperrors.ErrLowConfidence, "meh"), http.StatusUnprocessableEntity, "low_confidence"},
		{fmt.Errorf("wrapped: %w", apperrors.ErrFaceServiceUnavailable), http.StatusServiceUnavailable, "face_service_unavailable"},
		{apperrors.ErrForbidden, http.StatusForbidden, "forbidden"},
		{errors.New("pq: connection reset"), http.StatusInternalServerError, "internal"},
	}
	for _, tt := range tests {
		r := gin.New()
		r.GET("/", func(c *gin.Context) { Error(c, tt.err) })
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))

		if w.Code != tt.status {
			t.Errorf("%v: status = %d, want %d", tt.err, w.Code, tt.status)
		}
		var body struct{ Error, Code string }
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			t.Fatal(err)
		}
		if body.Code != tt.code {
			t.Errorf("%v: code = %s, want %s", tt.err, body.Code, tt.code)
		}
		if tt.status == http.StatusInternalServerError && body.Error != "internal error" {
			t.Errorf("internal error leaked: %s", body.Error)
		}
	}
}

func TestSecurityHeadersAndLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger("/healthz"), SecurityHeaders())
	r.GET("/healthz", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if w.Header().Get("X-Frame-Options") != "DENY" {
		t.Errorf("headers = %v", w.Header())
	}
	if w.Header().Get("Strict-Transport-Security") != "" {
		t.Error("HSTS should only be sent in release mode")
	}
}
