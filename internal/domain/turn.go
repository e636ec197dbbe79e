// Package domain contains core domain types for the caspchat service.
package domain

import (
	"time"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of a session's conversation history.
type Turn struct {
	Role Role      `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Round is the ledger record of one completed round.
type Round struct {
	SessionID string    `json:"session_id"`
	Seq       int       `json:"seq"`
	UserText  string    `json:"user_text"`
	Reply     string    `json:"reply"`
	Statuses  []string  `json:"statuses"`
	Literals  []string  `json:"literals"`
	Answers   []string  `json:"answers"`
	Outcomes  []Outcome `json:"outcomes"`
	CreatedAt time.Time `json:"created_at"`
}
