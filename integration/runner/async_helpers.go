package runner

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/jwebster45206/last-signal/internal/handlers"
	"github.com/jwebster45206/last-signal/internal/services/events"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/pkg/chat"
)

// EventStream reads a session's server-sent events.
type EventStream struct {
	body   io.ReadCloser
	reader *bufio.Reader
}

// OpenEventStream subscribes to a session's events and waits for the
// server to confirm the subscription.
func OpenEventStream(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID) (*EventStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/v1/sessions/%s/events", baseURL, sessionID), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create events request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to open event stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		_ = resp.Body.Close()
		return nil, fmt.Errorf("events endpoint returned %d: %s", resp.StatusCode, string(body))
	}

	s := &EventStream{body: resp.Body, reader: bufio.NewReader(resp.Body)}
	e, err := s.Next()
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	if e.Type != events.EventTypeConnected {
		_ = s.Close()
		return nil, fmt.Errorf("expected connected event, got %s", e.Type)
	}
	return s, nil
}

// Next blocks until the next event arrives.
func (s *EventStream) Next() (events.Event, error) {
	var eventType string
	for {
		line, err := s.reader.ReadString('\n')
		if err != nil {
			return events.Event{}, fmt.Errorf("event stream closed: %w", err)
		}
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			var data map[string]any
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &data); err != nil {
				return events.Event{}, fmt.Errorf("malformed event data: %w", err)
			}
			return events.Event{Type: events.EventType(eventType), Data: data}, nil
		}
	}
}

func (s *EventStream) Close() error {
	return s.body.Close()
}

// PostTurnAsync queues a turn and returns its request id. A status other
// than 202 is returned without an error.
func PostTurnAsync(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID, turn chat.TurnRequest) (string, int, error) {
	body, err := json.Marshal(turn)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal turn: %w", err)
	}

	url := fmt.Sprintf("%s/v1/sessions/%s/turn?async=true", baseURL, sessionID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", 0, fmt.Errorf("failed to create turn request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return "", 0, fmt.Errorf("failed to send turn request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		return "", resp.StatusCode, nil
	}

	var queued handlers.QueuedTurnResponse
	if err := json.NewDecoder(resp.Body).Decode(&queued); err != nil {
		return "", resp.StatusCode, fmt.Errorf("failed to parse turn response: %w", err)
	}
	return queued.RequestID, resp.StatusCode, nil
}

// PlayTurnAsync queues a turn and waits on the event stream for a worker
// to finish it. The returned status is 200 once the turn completes.
func PlayTurnAsync(ctx context.Context, client *http.Client, baseURL string, sessionID uuid.UUID, turn chat.TurnRequest) (string, int, *session.Output, error) {
	stream, err := OpenEventStream(ctx, client, baseURL, sessionID)
	if err != nil {
		return "", 0, nil, err
	}
	defer func() { _ = stream.Close() }()

	requestID, status, err := PostTurnAsync(ctx, client, baseURL, sessionID, turn)
	if err != nil || status != http.StatusAccepted {
		return requestID, status, nil, err
	}

	for {
		e, err := stream.Next()
		if err != nil {
			return requestID, 0, nil, fmt.Errorf("waiting for request %s: %w", requestID, err)
		}
		if e.Data["request_id"] != requestID {
			continue
		}
		switch e.Type {
		case events.EventTypeRequestCompleted:
			out, err := decodeOutput(e.Data["output"])
			return requestID, http.StatusOK, out, err
		case events.EventTypeRequestFailed:
			return requestID, 0, nil, fmt.Errorf("request %s failed: %v", requestID, e.Data["error"])
		}
	}
}

func decodeOutput(v any) (*session.Output, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out session.Output
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("malformed turn output: %w", err)
	}
	return &out, nil
}
