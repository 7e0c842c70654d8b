// Package api provides the HTTP handlers of the dialogue service.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/sciencebuddy/internal/auth"
	"github.com/ashureev/sciencebuddy/internal/completion"
	"github.com/ashureev/sciencebuddy/internal/content"
	"github.com/ashureev/sciencebuddy/internal/dialogue"
	"github.com/ashureev/sciencebuddy/internal/domain"
	"github.com/ashureev/sciencebuddy/internal/identity"
	"github.com/ashureev/sciencebuddy/internal/session"
	"github.com/ashureev/sciencebuddy/internal/store"
)

const maxBodyBytes = 64 << 10

// LogReader reads the learning log.
type LogReader interface {
	LoadDay(ctx context.Context, day string) []domain.LogEntry
	Days(ctx context.Context) ([]string, error)
}

// ProgressReader lists stored progress and reports store health.
type ProgressReader interface {
	List(ctx context.Context) ([]store.Record, error)
	Ping(ctx context.Context) error
}

// Deps are the handler's collaborators.
type Deps struct {
	Engine   *dialogue.Engine
	Content  content.Provider
	Guard    *session.Guard
	Auth     *auth.Authorizer
	Logs     LogReader
	Progress ProgressReader
	Limiter  *RateLimiter
	IsDev    bool
	Logger   *slog.Logger
}

// Handler serves the learner and teacher APIs.
type Handler struct {
	engine   *dialogue.Engine
	content  content.Provider
	guard    *session.Guard
	auth     *auth.Authorizer
	logs     LogReader
	progress ProgressReader
	limiter  *RateLimiter
	isDev    bool
	log      *slog.Logger
}

// NewHandler creates a Handler.
func NewHandler(deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine:   deps.Engine,
		content:  deps.Content,
		guard:    deps.Guard,
		auth:     deps.Auth,
		logs:     deps.Logs,
		progress: deps.Progress,
		limiter:  deps.Limiter,
		isDev:    deps.IsDev,
		log:      logger,
	}
}

// RegisterRoutes mounts every route on r.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/health", h.Health)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session", h.CreateSession)
		r.Get("/units", h.ListUnits)

		r.Group(func(r chi.Router) {
			r.Use(identity.Middleware(h.guard))
			r.Delete("/session", h.DeleteSession)

			r.Route("/units/{unit}", func(r chi.Router) {
				r.Use(h.requireUnit)
				r.Get("/resume", h.Resume)
				r.With(h.rateLimit).Post("/chat", h.Chat)
				r.With(h.rateLimit).Post("/summary", h.Summary)
				r.Post("/experiment", h.ConfirmPrediction)
				r.Post("/experiment/complete", h.CompleteExperiment)
				r.Post("/reflection", h.EnterReflection)
			})
		})

		r.Route("/teacher", func(r chi.Router) {
			r.Post("/login", h.TeacherLogin)
			r.Group(func(r chi.Router) {
				r.Use(h.auth.Middleware)
				r.Post("/logout", h.TeacherLogout)
				r.Get("/logs", h.TeacherLogs)
				r.Get("/days", h.TeacherDays)
				r.Get("/progress", h.TeacherProgress)
			})
		})
	})
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// decode reads a JSON body into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// writeDialogueError maps engine and gateway failures to HTTP responses.
// Gateway failures carry the message meant for the learner.
func (h *Handler) writeDialogueError(w http.ResponseWriter, err error) {
	var cerr *completion.Error
	switch {
	case errors.As(err, &cerr):
		status := http.StatusServiceUnavailable
		if cerr.Terminal() {
			status = http.StatusBadGateway
		}
		JSON(w, status, map[string]string{
			"error":   string(cerr.Class),
			"message": cerr.UserMessage(),
		})
	case errors.Is(err, dialogue.ErrNotChatStage):
		Error(w, http.StatusBadRequest, "stage does not accept conversation")
	case errors.Is(err, dialogue.ErrStageLocked):
		Error(w, http.StatusConflict, "stage not reached yet")
	case errors.Is(err, dialogue.ErrSummaryMissing):
		Error(w, http.StatusConflict, "prediction summary required")
	default:
		h.log.Error("Dialogue request failed", "error", err)
		Error(w, http.StatusInternalServerError, "internal error")
	}
}

type unitKey struct{}

// requireUnit resolves the {unit} path parameter against the catalog.
func (h *Handler) requireUnit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unit, err := url.PathUnescape(chi.URLParam(r, "unit"))
		if err != nil || !slices.Contains(h.content.Units(), unit) {
			Error(w, http.StatusNotFound, "unknown unit")
			return
		}
		ctx := context.WithValue(r.Context(), unitKey{}, unit)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func unitFromContext(ctx context.Context) string {
	unit, _ := ctx.Value(unitKey{}).(string)
	return unit
}

// rateLimit throttles expensive routes per learner.
func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if h.limiter != nil {
			id, _ := identity.LearnerFromContext(r.Context())
			if !h.limiter.Allow(id.Key()) {
				Error(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}
		}
		next.ServeHTTP(w, r)
	})
}

// Health reports store connectivity.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "healthy",
		"checks": map[string]string{"api": "ok"},
	}
	statusCode := http.StatusOK

	if err := h.progress.Ping(r.Context()); err != nil {
		h.log.Error("Health check failed", "error", err)
		status["status"] = "degraded"
		status["checks"].(map[string]string)["storage"] = "unreachable"
		statusCode = http.StatusServiceUnavailable
	} else {
		status["checks"].(map[string]string)["storage"] = "ok"
	}
	status["sessions"] = h.guard.Active()

	JSON(w, statusCode, status)
}
