// Command strix-worker is the in-sandbox HTTP server implementing the
// sandbox protocol (§6): /health, /register_agent, and /execute. It runs
// inside the container the Sandbox Runtime creates. /register_agent
// assigns each agent a stable worker ID; /execute calls the tool handler
// registered under the requested name, passing the calling agent's ID.
// No separate process is started per agent, so handlers share one
// process.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/zBiTz/strix/internal/sandbox"
)

// toolHandler is the in-worker tool action shape: concrete bodies
// (browser automation, shell, HTTP proxy, file editing) are out of scope
// for this module (spec.md §1) and are registered by whatever embeds
// this binary with its own tool set.
type toolHandler func(ctx context.Context, agentID string, args json.RawMessage) (string, error)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, nil))

	token := os.Getenv("STRIX_BEARER_TOKEN")
	keyB64 := os.Getenv("STRIX_SANDBOX_KEY")
	if token == "" || keyB64 == "" {
		logger.Error("STRIX_BEARER_TOKEN or STRIX_SANDBOX_KEY not set")
		os.Exit(1)
	}
	key, err := base64.StdEncoding.DecodeString(keyB64)
	if err != nil {
		logger.Error("STRIX_SANDBOX_KEY is not valid base64", "error", err)
		os.Exit(1)
	}
	scanID, err := sandbox.VerifyToken(token, key)
	if err != nil {
		logger.Error("own bearer token failed verification at startup", "error", err)
		os.Exit(1)
	}
	logger.Info("worker authorized", "scan_id", scanID)

	w := newWorker(logger, key)

	mux := http.NewServeMux()
	mux.HandleFunc("/health", w.handleHealth)
	mux.HandleFunc("/register_agent", w.authenticated(w.handleRegisterAgent))
	mux.HandleFunc("/execute", w.authenticated(w.handleExecute))

	addr := "127.0.0.1:8421"
	logger.Info("strix-worker listening", "addr", addr)
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("worker server exited", "error", err)
		os.Exit(1)
	}
}

// worker records the worker ID assigned to each agent and the tool
// handlers shared by every agent in this sandbox container.
type worker struct {
	log *slog.Logger
	key []byte

	mu      sync.Mutex
	workers map[string]string // agentID -> workerID
	tools   map[string]toolHandler
}

func newWorker(log *slog.Logger, key []byte) *worker {
	return &worker{log: log, key: key, workers: make(map[string]string), tools: make(map[string]toolHandler)}
}

func (w *worker) handleHealth(rw http.ResponseWriter, r *http.Request) {
	writeJSON(rw, http.StatusOK, map[string]string{"status": "ok"})
}

func (w *worker) handleRegisterAgent(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		AgentID string `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(rw, http.StatusBadRequest, errBody("invalid_request", err.Error()))
		return
	}

	w.mu.Lock()
	workerID, ok := w.workers[body.AgentID]
	if !ok {
		workerID = uuid.NewString()
		w.workers[body.AgentID] = workerID
	}
	w.mu.Unlock()

	writeJSON(rw, http.StatusOK, map[string]string{"worker_id": workerID})
}

func (w *worker) handleExecute(rw http.ResponseWriter, r *http.Request) {
	var body struct {
		AgentID string          `json:"agent_id"`
		Tool    string          `json:"tool"`
		Args    json.RawMessage `json:"args"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(rw, http.StatusBadRequest, errBody("invalid_request", err.Error()))
		return
	}

	w.mu.Lock()
	handler, ok := w.tools[body.Tool]
	w.mu.Unlock()
	if !ok {
		writeJSON(rw, http.StatusOK, map[string]any{
			"ok":    false,
			"error": errBody("tool_error", fmt.Sprintf("tool not found: %s", body.Tool)),
		})
		return
	}

	result, err := handler(r.Context(), body.AgentID, body.Args)
	if err != nil {
		writeJSON(rw, http.StatusOK, map[string]any{
			"ok":    false,
			"error": errBody("tool_error", err.Error()),
		})
		return
	}

	writeJSON(rw, http.StatusOK, map[string]any{"ok": true, "result": result})
}

// authenticated verifies the request's bearer token against the sandbox
// signing key before running next, rather than a plain string compare,
// so a forged or expired token is rejected structurally (§4.2, §6).
func (w *worker) authenticated(next http.HandlerFunc) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeJSON(rw, http.StatusUnauthorized, errBody("unauthorized", "missing bearer token"))
			return
		}
		if _, err := sandbox.VerifyToken(token, w.key); err != nil {
			writeJSON(rw, http.StatusUnauthorized, errBody("unauthorized", "invalid bearer token"))
			return
		}
		next(rw, r)
	}
}

func errBody(kind, message string) map[string]string {
	return map[string]string{"kind": kind, "message": message}
}

func writeJSON(rw http.ResponseWriter, status int, v any) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(status)
	_ = json.NewEncoder(rw).Encode(v)
}
