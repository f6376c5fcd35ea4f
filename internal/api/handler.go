package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askdb/askdb/internal/agent"
	"github.com/askdb/askdb/internal/auth"
	"github.com/askdb/askdb/internal/cache"
	"github.com/askdb/askdb/internal/config"
	"github.com/askdb/askdb/internal/convo"
	"github.com/askdb/askdb/internal/executor"
	"github.com/askdb/askdb/internal/observability"
)

type ReadinessCheck func(ctx context.Context) error

// AgentService is the pipeline surface the HTTP layer needs.
type AgentService interface {
	Ask(ctx context.Context, question agent.Question) agent.Response
	AskAsync(ctx context.Context, question agent.Question) (agent.AsyncResponse, error)
	Execution(id string) (executor.Execution, error)
	Suggestions(ctx context.Context, partial string) []string
	AnalyzeIntent(ctx context.Context, question string) agent.IntentAnalysis
	SchemaContext(ctx context.Context, includeSamples bool) (string, error)
	Sessions(ctx context.Context) ([]convo.Session, error)
	SessionMessages(ctx context.Context, sessionID string) ([]convo.Message, error)
	ClearSession(ctx context.Context, sessionID string) error
	ClearAllSessions(ctx context.Context) error
	CacheStats() (cache.Stats, error)
	CacheCleanup(ctx context.Context) (int, error)
	CacheClear(ctx context.Context) error
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Agent             AgentService
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})

	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	})

	mux.Handle("GET /v1/metrics", promhttp.Handler())

	protected := http.NewServeMux()
	protected.HandleFunc("POST /v1/ask", func(w http.ResponseWriter, r *http.Request) {
		handleAsk(deps, w, r)
	})
	protected.HandleFunc("POST /v1/ask/async", func(w http.ResponseWriter, r *http.Request) {
		handleAskAsync(deps, w, r)
	})
	protected.HandleFunc("GET /v1/executions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleExecution(deps, w, r)
	})
	protected.HandleFunc("POST /v1/suggest", func(w http.ResponseWriter, r *http.Request) {
		handleSuggest(deps, w, r)
	})
	protected.HandleFunc("POST /v1/intent", func(w http.ResponseWriter, r *http.Request) {
		handleIntent(deps, w, r)
	})
	protected.HandleFunc("GET /v1/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleListSessions(deps, w, r)
	})
	protected.HandleFunc("GET /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleGetSession(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/sessions/{id}", func(w http.ResponseWriter, r *http.Request) {
		handleClearSession(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		handleClearAllSessions(deps, w, r)
	})
	protected.HandleFunc("GET /v1/cache/stats", func(w http.ResponseWriter, r *http.Request) {
		handleCacheStats(deps, w, r)
	})
	protected.HandleFunc("POST /v1/cache/cleanup", func(w http.ResponseWriter, r *http.Request) {
		handleCacheCleanup(deps, w, r)
	})
	protected.HandleFunc("DELETE /v1/cache", func(w http.ResponseWriter, r *http.Request) {
		handleCacheClear(deps, w, r)
	})

	var protectedHandler http.Handler = protected
	if cfg.Auth.Required {
		if deps.AuthMiddleware == nil {
			if deps.Logger != nil {
				deps.Logger.Error("auth required but auth middleware missing")
			}
			protectedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		} else {
			protectedHandler = deps.AuthMiddleware(protectedHandler)
		}
	}
	for _, route := range []string{
		"POST /v1/ask",
		"POST /v1/ask/async",
		"GET /v1/executions/{id}",
		"POST /v1/suggest",
		"POST /v1/intent",
		"GET /v1/schema",
		"GET /v1/sessions",
		"GET /v1/sessions/{id}",
		"DELETE /v1/sessions/{id}",
		"DELETE /v1/sessions",
		"GET /v1/cache/stats",
		"POST /v1/cache/cleanup",
		"DELETE /v1/cache",
	} {
		mux.Handle(route, protectedHandler)
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func CheckCatalogDSN(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.Catalog.DSN == "" {
			return errors.New("catalog dsn is not configured")
		}
		return nil
	}
}

func CheckAIConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if cfg.AI.BaseURL == "" {
			return errors.New("model endpoint is not configured")
		}
		if cfg.AI.ModelID == "" {
			return errors.New("model id is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func requireRole(r *http.Request, role string) error {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok {
		return nil
	}
	if identity.HasRole(role) {
		return nil
	}
	return fmt.Errorf("missing required role %q", role)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
