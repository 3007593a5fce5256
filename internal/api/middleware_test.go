package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/codr1/VolleySmart/internal/api/authz"
)

func TestWithRequestIDKeepsIncomingID(t *testing.T) {
	var seen string
	h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = RequestIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if seen != "req-123" || rec.Header().Get("X-Request-ID") != "req-123" {
		t.Fatalf("request id = %q, header = %q", seen, rec.Header().Get("X-Request-ID"))
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if seen == "" || seen == "req-123" {
		t.Fatalf("expected a generated request id, got %q", seen)
	}
}

func TestWithUserReadsProxyHeader(t *testing.T) {
	var user *authz.AuthUser
	h := WithUser(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user = authz.UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(UserIDHeader, "  user-7 ")
	h.ServeHTTP(httptest.NewRecorder(), req)
	if user == nil || user.ID != "user-7" {
		t.Fatalf("user = %+v, want user-7", user)
	}

	user = nil
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	if user != nil {
		t.Fatalf("expected anonymous request, got %+v", user)
	}
}

func TestWithRecoveryReturns500(t *testing.T) {
	h := ChainMiddleware(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { panic("boom") }),
		WithLogging,
		WithRecovery,
		WithRequestID,
	)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	wrapped := wrapResponseWriter(rec)
	if wrapped.status != http.StatusOK {
		t.Fatalf("default status = %d", wrapped.status)
	}
	wrapped.WriteHeader(http.StatusTeapot)
	if wrapped.status != http.StatusTeapot || rec.Code != http.StatusTeapot {
		t.Fatalf("status = %d / %d", wrapped.status, rec.Code)
	}
	if wrapped.Unwrap() != rec {
		t.Fatal("Unwrap should return the underlying writer")
	}
}
