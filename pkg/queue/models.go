package queue

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RequestType identifies the type of request in the queue
type RequestType string

const (
	// RequestTypeEvaluateAchievements runs the session achievement rules
	RequestTypeEvaluateAchievements RequestType = "evaluate_achievements"

	// RequestTypeFinalizeSession scores every participant and awards profile badges
	RequestTypeFinalizeSession RequestType = "finalize_session"
)

// Valid reports whether t is a known request type
func (t RequestType) Valid() bool {
	switch t {
	case RequestTypeEvaluateAchievements, RequestTypeFinalizeSession:
		return true
	}
	return false
}

// Request represents a progression request in the queue
type Request struct {
	RequestID  string      `json:"request_id"`
	Type       RequestType `json:"type"`
	SessionID  string      `json:"session_id"`
	EnqueuedAt time.Time   `json:"enqueued_at"`
}

// NewRequest builds a request with a fresh id
func NewRequest(t RequestType, sessionID string) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		Type:       t,
		SessionID:  sessionID,
		EnqueuedAt: time.Now().UTC(),
	}
}

// Validate checks the request can be processed
func (r *Request) Validate() error {
	if !r.Type.Valid() {
		return errors.New("unknown request type: " + string(r.Type))
	}
	if strings.TrimSpace(r.SessionID) == "" {
		return errors.New("session_id is required")
	}
	return nil
}

// ToJSON converts the request to JSON bytes for Redis
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a request from JSON bytes
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	return &req, nil
}
