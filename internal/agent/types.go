// Package agent runs conversation rounds and serves them over HTTP and WebSocket.
package agent

import (
	"github.com/ashureev/caspchat/internal/domain"
	"github.com/ashureev/caspchat/internal/protocol"
)

// ChatRequest is the body of POST /api/chat.
type ChatRequest struct {
	Message string `json:"message"`
}

// RoundResult is the payload returned to the caller after each round.
type RoundResult struct {
	SessionID string `json:"session_id"`
	Seq       int    `json:"seq"`
	// ConditionStatus holds the raw status segments of the model's reply.
	ConditionStatus []string `json:"conditionStatus"`
	Message         string   `json:"message"`
	// QueryResult holds the raw answers of the solver calls that succeeded.
	QueryResult []string          `json:"queryResult"`
	Outcomes    []domain.Outcome  `json:"outcomes"`
	Statuses    []protocol.Status `json:"statuses,omitempty"`
	// ReplyFallback is set when the model sent no reply segment and the whole
	// utterance is shown instead.
	ReplyFallback bool `json:"reply_fallback,omitempty"`
}

// Round results reported to metrics.
const (
	roundOK         = "ok"
	roundModelError = "model_error"
	roundCanceled   = "canceled"
)

// Conversation log channels.
const (
	ChannelHTTP      = "chat_http"
	ChannelWebSocket = "chat_ws"
)
