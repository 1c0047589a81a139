package domain

import (
	"time"

	"github.com/google/uuid"
)

// Session is the persisted progress of one user through one flow
// instance. Variables accumulates captured step values; it is only ever
// added to during a traversal, never pruned.
type Session struct {
	ID               string            `json:"id"`
	FlowID           string            `json:"flowId"`
	UserPhoneNumber  string            `json:"userPhoneNumber"`
	LastStepID       string            `json:"lastStepId"`
	LastStepAttempts int               `json:"lastStepAttempts"`
	Variables        map[string]string `json:"variables"`
	Active           bool              `json:"isActive"`
	// IdleTTLSeconds is the idle expiry applied to the active-session
	// claim. It is carried on the record so every progress update can
	// refresh the claim; zero means no idle expiry.
	IdleTTLSeconds int `json:"idleTTLSeconds,omitempty"`
	CreatedAt        time.Time         `json:"createdAt"`
	UpdatedAt        time.Time         `json:"updatedAt"`
}

// NewSession starts a session for a user entering a flow.
func NewSession(flowID, userPhoneNumber string) *Session {
	now := time.Now().UTC()
	return &Session{
		ID:              uuid.NewString(),
		FlowID:          flowID,
		UserPhoneNumber: userPhoneNumber,
		Variables:       make(map[string]string),
		Active:          true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}
