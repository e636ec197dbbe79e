package agent

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/ashureev/caspchat/internal/api"
	"github.com/ashureev/caspchat/internal/identity"
	"github.com/ashureev/caspchat/internal/session"
	"github.com/ashureev/caspchat/internal/topic"
)

// defaultMaxRequestBodySize is the default maximum chat request body size.
const defaultMaxRequestBodySize = 64 << 10

const errRateLimited = "rate limit exceeded"

// HandlerOptions tune request limits.
type HandlerOptions struct {
	MaxRequestBodySize int64
	RateLimiter        *RateLimiter
}

// Handler serves the chat API.
type Handler struct {
	svc         *Service
	rateLimiter *RateLimiter
	maxBodySize int64
}

// NewHandler creates a chat API handler.
func NewHandler(svc *Service, opts HandlerOptions) *Handler {
	if opts.MaxRequestBodySize <= 0 {
		opts.MaxRequestBodySize = defaultMaxRequestBodySize
	}
	return &Handler{
		svc:         svc,
		rateLimiter: opts.RateLimiter,
		maxBodySize: opts.MaxRequestBodySize,
	}
}

// RegisterRoutes registers the chat and session routes.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/chat", h.HandleChat)
	r.Route("/api/session", func(r chi.Router) {
		r.Get("/", h.HandleSession)
		r.Delete("/", h.HandleReset)
		r.Get("/rounds", h.HandleRounds)
		r.Get("/outcomes", h.HandleOutcomes)
		r.Get("/outcomes/{topic}", h.HandleOutcome)
	})
}

// HandleChat handles POST /api/chat.
func (h *Handler) HandleChat(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())

	if h.rateLimiter != nil && !h.rateLimiter.Allow(identity.IPFromRequest(r)) {
		api.Error(w, http.StatusTooManyRequests, errRateLimited)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize)
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return
	}

	slog.Info("Chat request",
		"session_id", sessionID,
		"request_id", chiMiddleware.GetReqID(r.Context()),
		"message_length", len(req.Message),
	)

	result, err := h.svc.Chat(r.Context(), sessionID, ChannelHTTP, req.Message)
	if err != nil {
		status, msg := chatErrorStatus(err)
		api.Error(w, status, msg)
		return
	}
	api.JSON(w, http.StatusOK, result)
}

// HandleSession handles GET /api/session.
func (h *Handler) HandleSession(w http.ResponseWriter, r *http.Request) {
	snap, err := h.svc.Snapshot(identity.SessionIDFromContext(r.Context()))
	if errors.Is(err, session.ErrSessionNotFound) {
		api.Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "failed to load session")
		return
	}
	api.JSON(w, http.StatusOK, snap)
}

// HandleReset handles DELETE /api/session.
func (h *Handler) HandleReset(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	err := h.svc.Reset(r.Context(), sessionID)
	if errors.Is(err, session.ErrSessionNotFound) {
		api.Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		slog.Error("Failed to reset session", "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to reset session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleRounds handles GET /api/session/rounds.
func (h *Handler) HandleRounds(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			api.Error(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = n
	}

	rounds, err := h.svc.Rounds(r.Context(), sessionID, limit)
	if err != nil {
		slog.Error("Failed to list rounds", "session_id", sessionID, "error", err)
		api.Error(w, http.StatusInternalServerError, "failed to list rounds")
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"rounds":     rounds,
	})
}

// HandleOutcomes handles GET /api/session/outcomes.
func (h *Handler) HandleOutcomes(w http.ResponseWriter, r *http.Request) {
	outcomes, err := h.svc.Outcomes(identity.SessionIDFromContext(r.Context()))
	if errors.Is(err, session.ErrSessionNotFound) {
		api.Error(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		api.Error(w, http.StatusInternalServerError, "failed to load outcomes")
		return
	}
	api.JSON(w, http.StatusOK, map[string]any{"outcomes": nonNil(outcomes)})
}

// HandleOutcome handles GET /api/session/outcomes/{topic}.
func (h *Handler) HandleOutcome(w http.ResponseWriter, r *http.Request) {
	id := topic.ID(chi.URLParam(r, "topic"))
	outcome, err := h.svc.Outcome(identity.SessionIDFromContext(r.Context()), id)
	switch {
	case errors.Is(err, ErrUnknownTopic), errors.Is(err, session.ErrSessionNotFound):
		api.Error(w, http.StatusNotFound, err.Error())
	case err != nil:
		api.Error(w, http.StatusInternalServerError, "failed to load outcome")
	default:
		api.JSON(w, http.StatusOK, outcome)
	}
}

// Close stops background work owned by the handler.
func (h *Handler) Close() {
	if h.rateLimiter != nil {
		h.rateLimiter.Stop()
	}
}

func chatErrorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ErrEmptyMessage):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ErrModelUnavailable):
		return http.StatusBadGateway, ErrModelUnavailable.Error()
	default:
		return http.StatusInternalServerError, "round failed"
	}
}
