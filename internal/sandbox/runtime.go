// Package sandbox implements the Sandbox Runtime (C2): container
// lifecycle, bearer token minting, and routing of in-sandbox tool calls
// to a container-local worker over HTTP (§4.2, §6).
package sandbox

import (
	"context"
	"log/slog"
	"os/exec"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/zBiTz/strix/internal/strixerr"
)

// Config configures the Sandbox Runtime. Functional options mirror the
// teacher's executor configuration pattern.
type Config struct {
	Image              string
	NetworkEnabled     bool
	HealthTimeout      time.Duration // total deadline for /health to become ready
	UnhealthyThreshold time.Duration // /health failing this long recreates the container
	ExecuteTimeout     time.Duration // STRIX_SANDBOX_EXECUTION_TIMEOUT
	DockerHost         string
}

// Option configures a Config at Runtime construction time.
type Option func(*Config)

func WithImage(image string) Option                { return func(c *Config) { c.Image = image } }
func WithNetworkEnabled(enabled bool) Option        { return func(c *Config) { c.NetworkEnabled = enabled } }
func WithHealthTimeout(d time.Duration) Option      { return func(c *Config) { c.HealthTimeout = d } }
func WithUnhealthyThreshold(d time.Duration) Option { return func(c *Config) { c.UnhealthyThreshold = d } }
func WithExecuteTimeout(d time.Duration) Option     { return func(c *Config) { c.ExecuteTimeout = d } }
func WithDockerHost(host string) Option             { return func(c *Config) { c.DockerHost = host } }

func defaultConfig() Config {
	return Config{
		Image:              "strix/sandbox:latest",
		HealthTimeout:       60 * time.Second,
		UnhealthyThreshold:  30 * time.Second,
		ExecuteTimeout:      500 * time.Second,
	}
}

// Handle identifies one created sandbox container.
type Handle struct {
	ScanID      string
	ContainerID string
	BaseURL     string

	key   []byte
	token string
}

// Runtime creates, health-checks, routes calls to, and tears down
// per-scan sandbox containers. One Runtime instance is shared process-
// wide; a single Runtime-wide mutex guards its handle and worker maps.
// Create is not serialised per scan: two concurrent Create calls for the
// same scanID can each launch a container (§5).
type Runtime struct {
	cfg    Config
	log    *slog.Logger
	client *client

	mu         sync.Mutex
	sandboxes  map[string]*Handle // scanID -> handle
	workers    map[string]string  // agentID -> workerID
}

// New constructs a Runtime. log must not be nil.
func New(log *slog.Logger, opts ...Option) *Runtime {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Runtime{
		cfg:       cfg,
		log:       log,
		client:    newClient(cfg.ExecuteTimeout),
		sandboxes: make(map[string]*Handle),
		workers:   make(map[string]string),
	}
}

// Create launches a container for scanID: pulls the image if absent,
// launches it with the configured network capability, mints a bearer
// token, and waits for /health within cfg.HealthTimeout (§4.2).
func (r *Runtime) Create(ctx context.Context, scanID string) (*Handle, error) {
	r.mu.Lock()
	if h, ok := r.sandboxes[scanID]; ok {
		r.mu.Unlock()
		return h, nil
	}
	r.mu.Unlock()

	if err := r.ensureImage(ctx); err != nil {
		return nil, strixerr.Wrap(strixerr.KindSandboxUnavailable, err, "pulling sandbox image")
	}

	key, err := newSigningKey()
	if err != nil {
		return nil, strixerr.Wrap(strixerr.KindSandboxUnavailable, err, "minting sandbox signing key")
	}
	token, err := mintToken(scanID, key)
	if err != nil {
		return nil, strixerr.Wrap(strixerr.KindSandboxUnavailable, err, "signing sandbox bearer token")
	}

	containerID, baseURL, err := r.runContainer(ctx, scanID, token, key)
	if err != nil {
		return nil, strixerr.Wrap(strixerr.KindSandboxUnavailable, err, "launching sandbox container")
	}

	h := &Handle{ScanID: scanID, ContainerID: containerID, BaseURL: baseURL, key: key, token: token}

	if err := r.waitHealthy(ctx, h); err != nil {
		_ = r.destroyContainer(context.Background(), containerID)
		return nil, strixerr.Wrap(strixerr.KindSandboxUnavailable, err, "sandbox never became healthy")
	}

	r.mu.Lock()
	r.sandboxes[scanID] = h
	r.mu.Unlock()

	r.log.Info("sandbox created", "scan_id", scanID, "container_id", containerID)
	return h, nil
}

// waitHealthy polls GET /health with jittered exponential backoff, bounded
// by cfg.HealthTimeout overall (§4.2).
func (r *Runtime) waitHealthy(ctx context.Context, h *Handle) error {
	ctx, cancel := context.WithTimeout(ctx, r.cfg.HealthTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	b.MaxInterval = 5 * time.Second
	b.MaxElapsedTime = r.cfg.HealthTimeout

	return backoff.Retry(func() error {
		return r.client.health(ctx, h)
	}, backoff.WithContext(b, ctx))
}

// RegisterAgent asks the in-container worker to register agentID and
// returns the worker ID it assigns. The worker starts no separate
// process per agent (§4.2).
func (r *Runtime) RegisterAgent(ctx context.Context, h *Handle, agentID string) (string, error) {
	workerID, err := r.client.registerAgent(ctx, h, agentID)
	if err != nil {
		return "", strixerr.Wrap(strixerr.KindSandboxUnavailable, err, "registering agent worker")
	}
	r.mu.Lock()
	r.workers[agentID] = workerID
	r.mu.Unlock()
	return workerID, nil
}

// Execute POSTs a tool call to /execute with retry on transient failures
// (the first attempt plus up to 3 retries with jittered backoff) and enforces
// cfg.ExecuteTimeout per call (§4.2).
func (r *Runtime) Execute(ctx context.Context, h *Handle, agentID, toolName string, args []byte) (string, error) {
	execCtx, cancel := context.WithTimeout(ctx, r.cfg.ExecuteTimeout)
	defer cancel()

	b := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 3)

	var result string
	err := backoff.Retry(func() error {
		res, err := r.client.execute(execCtx, h, agentID, toolName, args)
		if err != nil {
			if execCtx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		result = res
		return nil
	}, backoff.WithContext(b, execCtx))

	if err != nil {
		if execCtx.Err() != nil {
			return "", strixerr.Wrap(strixerr.KindSandboxTimeout, err,
				"tool call exceeded STRIX_SANDBOX_EXECUTION_TIMEOUT")
		}
		return "", strixerr.Wrap(strixerr.KindSandboxUnavailable, err, "sandbox execute failed")
	}
	return result, nil
}

// Destroy tears down the container for scanID. Idempotent: a scan with no
// sandbox, or a sandbox already destroyed, is a no-op (§4.2).
func (r *Runtime) Destroy(ctx context.Context, scanID string) error {
	r.mu.Lock()
	h, ok := r.sandboxes[scanID]
	if ok {
		delete(r.sandboxes, scanID)
	}
	r.mu.Unlock()
	if !ok {
		return nil
	}
	if err := r.destroyContainer(ctx, h.ContainerID); err != nil {
		r.log.Warn("sandbox destroy failed", "scan_id", scanID, "error", err)
		return err
	}
	r.log.Info("sandbox destroyed", "scan_id", scanID)
	return nil
}

// DestroyAll tears down every sandbox this Runtime created, used on
// scan-level cancellation (§5) and process exit cleanup (§8).
func (r *Runtime) DestroyAll(ctx context.Context) {
	r.mu.Lock()
	ids := make([]string, 0, len(r.sandboxes))
	for id := range r.sandboxes {
		ids = append(ids, id)
	}
	r.mu.Unlock()
	for _, id := range ids {
		_ = r.Destroy(ctx, id)
	}
}

func (r *Runtime) ensureImage(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, "docker", "image", "inspect", r.cfg.Image)
	if cmd.Run() == nil {
		return nil
	}
	pull := exec.CommandContext(ctx, "docker", "pull", r.cfg.Image)
	r.applyDockerHost(pull)
	return pull.Run()
}

func (r *Runtime) applyDockerHost(cmd *exec.Cmd) {
	if r.cfg.DockerHost == "" {
		return
	}
	cmd.Env = append(cmd.Environ(), "DOCKER_HOST="+r.cfg.DockerHost)
}
