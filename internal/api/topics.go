package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/caspchat/internal/topic"
)

// TopicView is the public description of a registered topic.
type TopicView struct {
	ID            topic.ID `json:"id"`
	Label         string   `json:"label"`
	Marker        string   `json:"marker"`
	Severity      string   `json:"severity"`
	RequiredFacts int      `json:"required_facts,omitempty"`
}

// TopicsHandler lists the topics the service understands.
type TopicsHandler struct {
	registry *topic.Registry
}

// NewTopicsHandler creates a handler over registry.
func NewTopicsHandler(registry *topic.Registry) *TopicsHandler {
	return &TopicsHandler{registry: registry}
}

// List handles GET /api/topics.
func (h *TopicsHandler) List(w http.ResponseWriter, _ *http.Request) {
	topics := h.registry.Topics()
	views := make([]TopicView, 0, len(topics))
	for _, t := range topics {
		views = append(views, TopicView{
			ID:            t.ID,
			Label:         t.Label,
			Marker:        t.Marker,
			Severity:      t.Severity.String(),
			RequiredFacts: t.RequiredFacts,
		})
	}
	JSON(w, http.StatusOK, map[string]any{
		"prefix": h.registry.Prefix(),
		"topics": views,
	})
}

// RegisterRoutes registers the topic listing route.
func (h *TopicsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/topics", h.List)
}
