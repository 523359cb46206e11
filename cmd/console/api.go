package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"

	"github.com/jwebster45206/last-signal/internal/handlers"
	"github.com/jwebster45206/last-signal/internal/session"
	"github.com/jwebster45206/last-signal/pkg/chat"
)

// remoteGame plays a session hosted by the API.
type remoteGame struct {
	client    *http.Client
	baseURL   string
	playerID  string
	sessionID uuid.UUID
	owner     string
}

var _ game = (*remoteGame)(nil)

func newRemoteGame(client *http.Client, baseURL, playerID string) *remoteGame {
	return &remoteGame{client: client, baseURL: baseURL, playerID: playerID}
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func (g *remoteGame) Start(ctx context.Context) (*session.Output, error) {
	var created handlers.CreateSessionResponse
	err := g.do(ctx, http.MethodPost, "/v1/sessions", handlers.CreateSessionRequest{PlayerID: g.playerID}, http.StatusCreated, &created)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	g.sessionID = created.SessionID
	g.owner = created.Owner
	return created.Output, nil
}

func (g *remoteGame) Turn(ctx context.Context, in session.Input) (*session.Output, error) {
	req := chat.TurnRequest{
		ChooseIndex: in.ChooseIndex,
		Text:        in.FreeText,
		Command:     in.SystemCommand,
	}
	var out session.Output
	if err := g.do(ctx, http.MethodPost, "/v1/sessions/"+g.sessionID.String()+"/turn", req, http.StatusOK, &out); err != nil {
		return nil, fmt.Errorf("turn failed: %w", err)
	}
	return &out, nil
}

func (g *remoteGame) Status(ctx context.Context) (*handlers.SessionSummary, error) {
	var summary handlers.SessionSummary
	if err := g.do(ctx, http.MethodGet, "/v1/sessions/"+g.sessionID.String(), nil, http.StatusOK, &summary); err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return &summary, nil
}

func (g *remoteGame) Saves(ctx context.Context) ([]handlers.SaveSummary, error) {
	var saves []handlers.SaveSummary
	path := "/v1/saves?owner=" + url.QueryEscape(g.owner)
	if err := g.do(ctx, http.MethodGet, path, nil, http.StatusOK, &saves); err != nil {
		return nil, fmt.Errorf("failed to list saves: %w", err)
	}
	return saves, nil
}

func (g *remoteGame) Close() error {
	if g.sessionID == uuid.Nil {
		return nil
	}
	return g.do(context.Background(), http.MethodDelete, "/v1/sessions/"+g.sessionID.String(), nil, http.StatusNoContent, nil)
}

// do sends a JSON request and decodes the response into out when the
// status matches.
func (g *remoteGame) do(ctx context.Context, method, path string, body any, want int, out any) error {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, g.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != want {
		var errorResp handlers.ErrorResponse
		if err := json.Unmarshal(respBody, &errorResp); err != nil || errorResp.Error == "" {
			return fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(respBody))
		}
		return fmt.Errorf("%s", errorResp.Error)
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("failed to parse response: %w", err)
	}
	return nil
}
