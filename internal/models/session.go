package models

import (
	"time"
)

// SessionState is the current step of a challenge session
type SessionState string

const (
	StateSelecting          SessionState = "selecting"            // Drawing a challenge
	StatePresenting         SessionState = "presenting"           // Rendering the challenge card
	StateAwaitingInput      SessionState = "awaiting_input"       // Hint gate and answer gate armed
	StateSynthesizing       SessionState = "synthesizing"         // Merging submission with hidden tests
	StateCompiling          SessionState = "compiling"            // Waiting on the compile service
	StateShowingResult      SessionState = "showing_result"       // Posting the outcome
	StateAwaitingNextAction SessionState = "awaiting_next_action" // Retry / next / quit menu
	StateTerminated         SessionState = "terminated"
)

// IsTerminal returns true if the session can no longer transition
func (s SessionState) IsTerminal() bool {
	return s == StateTerminated
}

// SessionInfo is a point-in-time view of an active session
type SessionInfo struct {
	ID             string       `json:"id"`
	OwnerID        string       `json:"owner_id"`
	OwnerTag       string       `json:"owner_tag"`
	ChannelID      string       `json:"channel_id"`
	Language       Language     `json:"language"`
	Level          *int         `json:"level,omitempty"`
	State          SessionState `json:"state"`
	Challenge      string       `json:"challenge,omitempty"`
	HintsRemaining int          `json:"hints_remaining"`
	Rounds         int          `json:"rounds"`
	StartedAt      time.Time    `json:"started_at"`
}

// Age returns how long the session has been running
func (s *SessionInfo) Age() time.Duration {
	return time.Since(s.StartedAt)
}
