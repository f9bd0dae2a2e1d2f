package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"aims-api/internal/api"
	"aims-api/internal/auth"
	"aims-api/internal/storage"
	"aims-api/internal/testsupport"
)

func newTestHandler(t *testing.T) (*api.Handler, *storage.RedisRepository) {
	t.Helper()
	repo, _ := testsupport.NewRepository(t)
	signer, err := auth.NewCookieSigner("server-test-secret")
	if err != nil {
		t.Fatalf("NewCookieSigner: %v", err)
	}
	handler := api.NewHandler(repo, auth.NewSessionManager(time.Hour), signer)
	handler.Logger = discardLogger()
	return handler, repo
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func jsonBody(t *testing.T, payload any) *bytes.Reader {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return bytes.NewReader(body)
}

func errorMessage(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var payload map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode error body %q: %v", rec.Body.String(), err)
	}
	return payload["error"]
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, cookie := range rec.Result().Cookies() {
		if cookie.Name == api.SessionCookieName {
			return cookie
		}
	}
	t.Fatalf("expected %s cookie", api.SessionCookieName)
	return nil
}

func assertHeaderEquals(t *testing.T, res *http.Response, key, expected string) {
	t.Helper()
	if got := res.Header.Get(key); got != expected {
		t.Fatalf("expected %s=%q, got %q", key, expected, got)
	}
}
