package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kisansahayak/kisan/internal/service/auth"
)

// Authenticator is the account workflow the router exposes.
type Authenticator interface {
	Signup(ctx context.Context, username, email, password string) error
	Signin(ctx context.Context, email, password string) (string, error)
}

// Router wires HTTP endpoints to services.
type Router struct {
	mux      *http.ServeMux
	handler  http.Handler
	logger   *slog.Logger
	auth     Authenticator
	dbHealth func(context.Context) error
	registry *prometheus.Registry
	metrics  *metrics
}

const (
	maxBodyBytes       = 1 << 20
	healthCheckTimeout = 2 * time.Second
)

// Response messages.
const (
	msgSignupOK       = "User created successfully"
	msgSigninOK       = "User signed in successfully"
	msgInvalidBody    = "invalid JSON body"
	msgBodyTooLarge   = "request body too large"
	msgInternal       = "internal server error"
	msgMethodNotAllow = "method not allowed"
)

// NewRouter assembles routes with dependencies.
func NewRouter(logger *slog.Logger, authSvc Authenticator, dbHealth func(context.Context) error, allowedOrigins []string) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		mux:      http.NewServeMux(),
		logger:   logger,
		auth:     authSvc,
		dbHealth: dbHealth,
		registry: prometheus.NewRegistry(),
	}
	r.metrics = newMetrics(r.registry)
	r.register()
	r.handler = cors(allowedOrigins, r.mux)
	return r
}

// ServeHTTP delegates to underlying mux.
func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.handler.ServeHTTP(w, req)
}

func (r *Router) register() {
	r.mux.HandleFunc("/healthz", r.audit("/healthz", r.handleHealthz))
	r.mux.HandleFunc("/api/v1/signup", r.audit("/api/v1/signup", r.handleSignup))
	r.mux.HandleFunc("/api/v1/signin", r.audit("/api/v1/signin", r.handleSignin))
	r.mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry}))
}

func (r *Router) handleSignup(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	if err := r.auth.Signup(req.Context(), payload.Username, payload.Email, payload.Password); err != nil {
		r.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": msgSignupOK})
}

func (r *Router) handleSignin(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodPost {
		r.methodNotAllowed(w)
		return
	}
	var payload struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeJSON(w, req, &payload) {
		return
	}
	token, err := r.auth.Signin(req.Context(), payload.Email, payload.Password)
	if err != nil {
		r.writeAuthError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"message": msgSigninOK,
		"token":   token,
	})
}

func (r *Router) handleHealthz(w http.ResponseWriter, req *http.Request) {
	if req.Method != http.MethodGet {
		r.methodNotAllowed(w)
		return
	}
	components := make(map[string]any)
	status := "ok"
	if r.dbHealth != nil {
		ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
		defer cancel()
		if err := r.dbHealth(ctx); err != nil {
			status = "degraded"
			r.logger.Warn("database health check failed", "error", err)
			components["database"] = map[string]any{"status": "down"}
		} else {
			components["database"] = map[string]any{"status": "up"}
		}
	}
	payload := map[string]any{
		"status":     status,
		"components": components,
		"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
	}
	code := http.StatusOK
	if status != "ok" {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, payload)
}

// decodeJSON reads a single size-limited JSON value into dst. Oversized
// bodies answer 413, anything else that is not exactly one value answers 400.
func decodeJSON(w http.ResponseWriter, req *http.Request, dst any) bool {
	req.Body = http.MaxBytesReader(w, req.Body, maxBodyBytes)
	dec := json.NewDecoder(req.Body)
	err := dec.Decode(dst)
	if err == nil {
		switch extra := dec.Decode(&struct{}{}); {
		case errors.Is(extra, io.EOF):
			return true
		case extra == nil:
			err = errors.New("trailing data after JSON body")
		default:
			err = extra
		}
	}
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		writeError(w, http.StatusRequestEntityTooLarge, msgBodyTooLarge)
		return false
	}
	writeError(w, http.StatusBadRequest, msgInvalidBody)
	return false
}

// statusForAuthError maps service failures to a status code and client-safe message.
func statusForAuthError(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, auth.ErrConflict):
		return http.StatusBadRequest, auth.ErrConflict.Error()
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusBadRequest, auth.ErrInvalidCredentials.Error()
	default:
		return http.StatusInternalServerError, msgInternal
	}
}

func (r *Router) writeAuthError(w http.ResponseWriter, err error) {
	status, msg := statusForAuthError(err)
	if status >= http.StatusInternalServerError {
		r.logger.Error("request failed", "error", err)
	}
	writeError(w, status, msg)
}

func (r *Router) methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, msgMethodNotAllow)
}
