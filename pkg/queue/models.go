// Package queue defines the wire format of turns waiting for a worker.
package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/last-signal/pkg/chat"
)

// Request is one player turn queued for asynchronous play.
type Request struct {
	RequestID string           `json:"request_id"`
	SessionID uuid.UUID        `json:"session_id"`
	Turn      chat.TurnRequest `json:"turn"`

	EnqueuedAt time.Time `json:"enqueued_at"`
	// Attempts counts how many times the request went back on the queue
	// because its session was busy.
	Attempts int `json:"attempts,omitempty"`
}

// NewRequest stamps a turn with a fresh request id.
func NewRequest(sessionID uuid.UUID, turn chat.TurnRequest) *Request {
	return &Request{
		RequestID:  uuid.New().String(),
		SessionID:  sessionID,
		Turn:       turn,
		EnqueuedAt: time.Now(),
	}
}

// ToJSON serializes a request for Redis storage
func (r *Request) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON deserializes a request from Redis and rejects ones that could
// never be played.
func FromJSON(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if req.SessionID == uuid.Nil {
		return nil, fmt.Errorf("request %q has no session id", req.RequestID)
	}
	if err := req.Turn.Validate(); err != nil {
		return nil, fmt.Errorf("request %q: %w", req.RequestID, err)
	}
	return &req, nil
}
