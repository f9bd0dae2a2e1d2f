package server

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestBodyLimitRejectsDeclaredLength(t *testing.T) {
	called := false
	handler := bodyLimitMiddleware(16, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		called = true
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/help", strings.NewReader(strings.Repeat("x", 17)))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if called {
		t.Fatal("expected handler not to run")
	}
}

func TestBodyLimitCutsOffUndeclaredLength(t *testing.T) {
	var readErr error
	handler := bodyLimitMiddleware(16, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, readErr = io.ReadAll(r.Body)
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/help", strings.NewReader(strings.Repeat("x", 64)))
	req.ContentLength = -1
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var maxErr *http.MaxBytesError
	if !errors.As(readErr, &maxErr) {
		t.Fatalf("expected MaxBytesError, got %v", readErr)
	}
}

func TestBodyLimitNegativeDisables(t *testing.T) {
	var n int
	handler := bodyLimitMiddleware(-1, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		n = len(body)
	}))
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 1024))))
	if n != 1024 {
		t.Fatalf("expected full body, read %d bytes", n)
	}
}

func TestOversizedRegisterBodyThroughServer(t *testing.T) {
	handler, _ := newTestHandler(t)
	srv, err := New(handler, Config{Logger: discardLogger(), BodyLimit: 64})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	body := `{"name":"Ada","email":"ada@example.com","password":"` + strings.Repeat("p", 128) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/auth/register", strings.NewReader(body))
	req.ContentLength = -1
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d: %s", rec.Code, rec.Body.String())
	}
}
