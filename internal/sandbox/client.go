package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// client is the HTTP transport for the sandbox protocol (§6): /health,
// /register_agent, and /execute, all bearer-authenticated.
type client struct {
	http *http.Client
}

func newClient(executeTimeout time.Duration) *client {
	return &client{http: &http.Client{Timeout: executeTimeout + 5*time.Second}}
}

func (c *client) health(ctx context.Context, h *Handle) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.BaseURL+"/health", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sandbox /health returned %d", resp.StatusCode)
	}
	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return err
	}
	if body.Status != "ok" {
		return fmt.Errorf("sandbox /health status %q", body.Status)
	}
	return nil
}

func (c *client) registerAgent(ctx context.Context, h *Handle, agentID string) (string, error) {
	payload, _ := json.Marshal(map[string]string{"agent_id": agentID})
	var out struct {
		WorkerID string `json:"worker_id"`
	}
	if err := c.post(ctx, h, "/register_agent", payload, &out); err != nil {
		return "", err
	}
	return out.WorkerID, nil
}

type executeResponse struct {
	OK     bool            `json:"ok"`
	Result string          `json:"result,omitempty"`
	Error  *executeErrBody `json:"error,omitempty"`
}

type executeErrBody struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (c *client) execute(ctx context.Context, h *Handle, agentID, tool string, args json.RawMessage) (string, error) {
	payload, _ := json.Marshal(map[string]any{
		"agent_id": agentID,
		"tool":     tool,
		"args":     json.RawMessage(args),
	})
	var out executeResponse
	if err := c.post(ctx, h, "/execute", payload, &out); err != nil {
		return "", err
	}
	if !out.OK {
		msg := "tool execution failed"
		if out.Error != nil {
			msg = fmt.Sprintf("%s: %s", out.Error.Kind, out.Error.Message)
		}
		return "", fmt.Errorf("%s", msg)
	}
	return out.Result, nil
}

func (c *client) post(ctx context.Context, h *Handle, path string, payload []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, h.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+h.token)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("sandbox %s returned %d: %s", path, resp.StatusCode, string(body))
	}
	return json.Unmarshal(body, out)
}
