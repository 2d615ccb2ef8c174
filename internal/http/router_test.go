package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kisansahayak/kisan/internal/repository/memory"
	"github.com/kisansahayak/kisan/internal/service/auth"
	"github.com/kisansahayak/kisan/pkg/config"
)

type authStub struct {
	signupFunc func(ctx context.Context, username, email, password string) error
	signinFunc func(ctx context.Context, email, password string) (string, error)
}

func (s authStub) Signup(ctx context.Context, username, email, password string) error {
	if s.signupFunc != nil {
		return s.signupFunc(ctx, username, email, password)
	}
	return nil
}

func (s authStub) Signin(ctx context.Context, email, password string) (string, error) {
	if s.signinFunc != nil {
		return s.signinFunc(ctx, email, password)
	}
	return "token", nil
}

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var payload map[string]any
	if rec.Body.Len() > 0 && strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
			t.Fatalf("decode response: %v (%s)", err, rec.Body.String())
		}
	}
	return rec, payload
}

func TestSignupSuccess(t *testing.T) {
	var got [3]string
	router := NewRouter(newLogger(), authStub{signupFunc: func(_ context.Context, username, email, password string) error {
		got = [3]string{username, email, password}
		return nil
	}}, nil, nil)

	rec, payload := do(t, router, http.MethodPost, "/api/v1/signup", `{"username":"alice","email":"a@x.com","password":"secret1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload["message"] != "User created successfully" {
		t.Fatalf("unexpected payload: %v", payload)
	}
	if got != [3]string{"alice", "a@x.com", "secret1"} {
		t.Fatalf("unexpected service args: %v", got)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestSignupErrorMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"validation", fmt.Errorf("%w: password must be at least 6 characters", auth.ErrValidation), http.StatusBadRequest, "validation failed: password must be at least 6 characters"},
		{"conflict", auth.ErrConflict, http.StatusBadRequest, "email already registered"},
		{"internal", fmt.Errorf("%w: create user", auth.ErrInternal), http.StatusInternalServerError, "internal server error"},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, "internal server error"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := NewRouter(newLogger(), authStub{signupFunc: func(context.Context, string, string, string) error {
				return tc.err
			}}, nil, nil)
			rec, payload := do(t, router, http.MethodPost, "/api/v1/signup", `{"username":"alice","email":"a@x.com","password":"secret1"}`)
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			if payload["error"] != tc.msg {
				t.Fatalf("expected error %q, got %v", tc.msg, payload["error"])
			}
		})
	}
}

func TestSigninSuccess(t *testing.T) {
	router := NewRouter(newLogger(), authStub{signinFunc: func(_ context.Context, email, password string) (string, error) {
		if email != "a@x.com" || password != "secret1" {
			t.Fatalf("unexpected credentials: %s %s", email, password)
		}
		return "signed.jwt.token", nil
	}}, nil, nil)

	rec, payload := do(t, router, http.MethodPost, "/api/v1/signin", `{"email":"a@x.com","password":"secret1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if payload["message"] != "User signed in successfully" || payload["token"] != "signed.jwt.token" {
		t.Fatalf("unexpected payload: %v", payload)
	}
}

func TestSigninInvalidCredentials(t *testing.T) {
	router := NewRouter(newLogger(), authStub{signinFunc: func(context.Context, string, string) (string, error) {
		return "", auth.ErrInvalidCredentials
	}}, nil, nil)

	rec, payload := do(t, router, http.MethodPost, "/api/v1/signin", `{"email":"a@x.com","password":"wrong12"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if payload["error"] != "invalid email or password" {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
	if _, ok := payload["token"]; ok {
		t.Fatalf("token must not be present on failure")
	}
}

func TestMalformedJSON(t *testing.T) {
	called := false
	router := NewRouter(newLogger(), authStub{signupFunc: func(context.Context, string, string, string) error {
		called = true
		return nil
	}}, nil, nil)

	for _, body := range []string{`{"username":`, `not json`, `{"password":123456}`} {
		rec, payload := do(t, router, http.MethodPost, "/api/v1/signup", body)
		if rec.Code != http.StatusBadRequest || payload["error"] != "invalid JSON body" {
			t.Fatalf("%q: expected 400 invalid JSON body, got %d %v", body, rec.Code, payload)
		}
	}
	if called {
		t.Fatalf("service must not be called for malformed bodies")
	}
}

func TestOversizedBodyRejected(t *testing.T) {
	called := false
	router := NewRouter(newLogger(), authStub{signupFunc: func(context.Context, string, string, string) error {
		called = true
		return nil
	}}, nil, nil)
	body := `{"username":"` + strings.Repeat("a", maxBodyBytes) + `"}`
	rec, payload := do(t, router, http.MethodPost, "/api/v1/signup", body)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
	if payload["error"] != "request body too large" {
		t.Fatalf("unexpected error: %v", payload["error"])
	}
	if called {
		t.Fatalf("service must not be called for oversized bodies")
	}
}

func TestTrailingDataRejected(t *testing.T) {
	called := false
	router := NewRouter(newLogger(), authStub{signinFunc: func(context.Context, string, string) (string, error) {
		called = true
		return "token", nil
	}}, nil, nil)

	for _, body := range []string{
		`{"email":"a@x.com","password":"secret1"} junk`,
		`{"email":"a@x.com","password":"secret1"}{"email":"b@x.com"}`,
	} {
		rec, payload := do(t, router, http.MethodPost, "/api/v1/signin", body)
		if rec.Code != http.StatusBadRequest || payload["error"] != "invalid JSON body" {
			t.Fatalf("%q: expected 400 invalid JSON body, got %d %v", body, rec.Code, payload)
		}
	}
	if called {
		t.Fatalf("service must not be called when the body has trailing data")
	}

	rec, _ := do(t, router, http.MethodPost, "/api/v1/signin", "{\"email\":\"a@x.com\",\"password\":\"secret1\"}\n")
	if rec.Code != http.StatusOK {
		t.Fatalf("trailing whitespace must be accepted, got %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	router := NewRouter(newLogger(), authStub{}, nil, nil)
	for _, path := range []string{"/api/v1/signup", "/api/v1/signin"} {
		rec, payload := do(t, router, http.MethodGet, path, "")
		if rec.Code != http.StatusMethodNotAllowed || payload["error"] != "method not allowed" {
			t.Fatalf("%s: expected 405, got %d %v", path, rec.Code, payload)
		}
	}
	rec, _ := do(t, router, http.MethodPost, "/healthz", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for POST /healthz, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	healthy := NewRouter(newLogger(), authStub{}, func(context.Context) error { return nil }, nil)
	rec, payload := do(t, healthy, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK || payload["status"] != "ok" {
		t.Fatalf("expected healthy, got %d %v", rec.Code, payload)
	}

	down := NewRouter(newLogger(), authStub{}, func(context.Context) error { return errors.New("dial tcp: refused") }, nil)
	rec, payload = do(t, down, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusServiceUnavailable || payload["status"] != "degraded" {
		t.Fatalf("expected 503 degraded, got %d %v", rec.Code, payload)
	}
	if strings.Contains(rec.Body.String(), "refused") {
		t.Fatalf("health response must not leak driver errors")
	}
}

func TestMetricsEndpointCountsRequests(t *testing.T) {
	router := NewRouter(newLogger(), authStub{}, nil, nil)
	do(t, router, http.MethodPost, "/api/v1/signin", `{"email":"a@x.com","password":"secret1"}`)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `kisan_api_http_requests_total{method="POST",route="/api/v1/signin",status="200"} 1`) {
		t.Fatalf("expected request counter in metrics output:\n%s", body)
	}
	if !strings.Contains(body, "kisan_api_http_request_duration_seconds") {
		t.Fatalf("expected latency histogram in metrics output")
	}
}

func TestCORS(t *testing.T) {
	router := NewRouter(newLogger(), authStub{}, nil, []string{"https://kisan.example"})

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/signup", nil)
	req.Header.Set("Origin", "https://kisan.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204 preflight, got %d", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") != "https://kisan.example" {
		t.Fatalf("unexpected allow-origin: %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}

	req = httptest.NewRequest(http.MethodOptions, "/api/v1/signup", nil)
	req.Header.Set("Origin", "https://evil.example")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "" {
		t.Fatalf("unlisted origin must not be allowed")
	}

	wildcard := NewRouter(newLogger(), authStub{}, nil, []string{"*"})
	req = httptest.NewRequest(http.MethodPost, "/api/v1/signin", strings.NewReader(`{"email":"a@x.com","password":"secret1"}`))
	req.Header.Set("Origin", "http://localhost:5173")
	rec = httptest.NewRecorder()
	wildcard.ServeHTTP(rec, req)
	if rec.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Fatalf("expected wildcard allow-origin, got %q", rec.Header().Get("Access-Control-Allow-Origin"))
	}
}

func TestClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "10.0.0.1:5555"
	if ip := clientIP(req); ip != "10.0.0.1" {
		t.Fatalf("unexpected ip: %s", ip)
	}
	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if ip := clientIP(req); ip != "203.0.113.9" {
		t.Fatalf("unexpected forwarded ip: %s", ip)
	}
}

func TestEndToEndWithAuthService(t *testing.T) {
	cfg := config.APIConfig{
		JWTSecret:         "e2e-secret",
		TokenTTL:          time.Hour,
		BcryptCost:        4,
		PasswordMinLength: 6,
		PasswordMaxLength: 12,
		StoreTimeout:      time.Second,
	}
	repo := memory.New()
	svc, err := auth.New(repo, newLogger(), cfg)
	if err != nil {
		t.Fatalf("new auth service: %v", err)
	}
	router := NewRouter(newLogger(), svc, repo.Ping, nil)

	rec, _ := do(t, router, http.MethodPost, "/api/v1/signup", `{"username":"alice","email":"a@x.com","password":"secret1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("signup: expected 200, got %d", rec.Code)
	}
	rec, payload := do(t, router, http.MethodPost, "/api/v1/signup", `{"username":"alice","email":"a@x.com","password":"secret1"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("repeat signup: expected 400, got %d %v", rec.Code, payload)
	}
	rec, payload = do(t, router, http.MethodPost, "/api/v1/signup", `{"username":"bob","email":"b@x.com","password":"abc"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("short password: expected 400, got %d %v", rec.Code, payload)
	}

	rec, payload = do(t, router, http.MethodPost, "/api/v1/signin", `{"email":"a@x.com","password":"secret1"}`)
	if rec.Code != http.StatusOK || payload["token"] == "" {
		t.Fatalf("signin: expected 200 with token, got %d %v", rec.Code, payload)
	}

	wrong, wrongBody := do(t, router, http.MethodPost, "/api/v1/signin", `{"email":"a@x.com","password":"wrong12"}`)
	unknown, unknownBody := do(t, router, http.MethodPost, "/api/v1/signin", `{"email":"nobody@x.com","password":"secret1"}`)
	if wrong.Code != http.StatusBadRequest || unknown.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad credentials, got %d and %d", wrong.Code, unknown.Code)
	}
	if wrongBody["error"] != unknownBody["error"] {
		t.Fatalf("bad-credential bodies differ: %v vs %v", wrongBody, unknownBody)
	}
}
