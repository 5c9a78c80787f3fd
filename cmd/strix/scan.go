package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/zBiTz/strix/internal/agentgraph"
	"github.com/zBiTz/strix/internal/config"
	"github.com/zBiTz/strix/internal/engine"
	"github.com/zBiTz/strix/internal/gateway"
	"github.com/zBiTz/strix/internal/memory"
	"github.com/zBiTz/strix/internal/registry"
	"github.com/zBiTz/strix/internal/runstore"
	"github.com/zBiTz/strix/internal/sandbox"
	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/internal/verify"
	"github.com/zBiTz/strix/pkg/models"
)

type scanParams struct {
	target         string
	scanMode       models.ScanMode
	nonInteractive bool
	runName        string
}

// runScan drives one scan end to end: resolves config, creates the
// sandbox, constructs the Gateway/Compressor/Registry/Graph/Store, spawns
// the root agent, runs it to completion, and tears everything down.
func runScan(ctx context.Context, log *slog.Logger, p scanParams) error {
	cfg, err := config.FromEnv(p.target, p.scanMode, p.nonInteractive, p.runName)
	if err != nil {
		return exitErr{code: exitEnvNotReady, err: err}
	}

	runName := p.runName
	if runName == "" {
		runName = time.Now().Format("20060102-150405")
	}
	store, err := runstore.Open(filepath.Join("strix_runs", runName), nil)
	if err != nil {
		return exitErr{code: exitEnvNotReady, err: err}
	}
	defer store.Close()

	reg := registry.New()
	if err := registerBuiltinTools(reg); err != nil {
		return exitErr{code: exitMisuse, err: err}
	}

	sb := sandbox.New(log,
		sandbox.WithImage(cfg.Image),
		sandbox.WithNetworkEnabled(!cfg.DisableBrowser),
		sandbox.WithExecuteTimeout(cfg.ExecutionTimeout),
		sandbox.WithDockerHost(cfg.DockerHost),
	)

	scan := &models.Scan{
		ID:          uuid.NewString(),
		Target:      cfg.Target,
		ScanMode:    cfg.ScanMode,
		StartedAt:   time.Now(),
	}

	handle, err := sb.Create(ctx, scan.ID)
	if err != nil {
		return exitErr{code: exitEnvNotReady, err: err}
	}
	defer sb.DestroyAll(context.Background())

	scan.SandboxID = handle.ScanID
	reg.Freeze()

	scanCtx, cancelScan := context.WithCancel(ctx)
	defer cancelScan()
	go sb.Watch(scanCtx, scan.ID)

	llmClient, err := gateway.NewAnthropicClient(gateway.AnthropicClientConfig{
		APIKey:  cfg.LLMAPIKey,
		BaseURL: cfg.LLMAPIBase,
	})
	if err != nil {
		return exitErr{code: exitEnvNotReady, err: err}
	}
	gw := gateway.New(llmClient, gateway.Config{
		Concurrent: cfg.RateLimitConcurrent,
		Delay:      cfg.RateLimitDelay,
		Timeout:    cfg.LLMTimeout,
	}, log)

	compressor := memory.New(newSummarizer(gw, cfg.LLMProvider), log)

	graph := agentgraph.New(sandboxOpener{runtime: sb, handle: handle})

	go watchForCancellation(ctx, log, graph, sb)

	pipeline := verify.New(func(report *models.FindingReport) verify.Verifier {
		return newVerifier()
	}, func(report *models.FindingReport) {
		if err := store.Adjudicate(report); err != nil {
			log.Error("recording adjudicated finding failed", "report_id", report.ID, "error", err)
		}
	}, log)

	root := models.NewAgent(uuid.NewString(), models.AgentKindRoot, "", scan.SandboxID)
	scan.RootAgentID = root.ID
	graph.AddRoot(root)

	if err := store.WriteScan(scan); err != nil {
		return exitErr{code: exitScanFailed, err: err}
	}

	go writeStatsPeriodically(scanCtx, store, graph, pipeline, gw)

	var spawnChild func(parentID string) (*models.Agent, error)
	spawnChild = func(parentID string) (*models.Agent, error) {
		child, err := graph.Spawn(scanCtx, parentID, models.AgentKindChild, scan.SandboxID)
		if err != nil {
			return nil, err
		}

		childDispatcher := newDispatcher(reg, sb, handle, graph, pipeline, store, spawnChild)
		childEngine := engine.New(child, reg, gw, compressor, childDispatcher, store, graph, log, cfg.LLMProvider,
			func(waitCtx context.Context) (bool, bool, error) {
				timedOut, err := graph.Wait(waitCtx, child.ID, agentgraph.AutoResumeTimeout)
				return !timedOut, timedOut, err
			},
			func() error { return graph.Finish(child.ID) },
		)
		go func() {
			if err := childEngine.Run(scanCtx); err != nil {
				log.Error("child agent run failed", "agent", child.ID, "parent", parentID, "error", err)
			}
		}()
		return child, nil
	}

	dispatcher := newDispatcher(reg, sb, handle, graph, pipeline, store, spawnChild)

	eng := engine.New(root, reg, gw, compressor, dispatcher, store, graph, log, cfg.LLMProvider,
		func(waitCtx context.Context) (bool, bool, error) {
			timedOut, err := graph.Wait(waitCtx, root.ID, agentgraph.AutoResumeTimeout)
			return !timedOut, timedOut, err
		},
		func() error { return graph.Finish(root.ID) },
	)

	runErr := eng.Run(scanCtx)

	ended := time.Now()
	scan.End(ended)
	_ = store.WriteScan(scan)
	_ = store.WriteStats(snapshotStats(graph, store, pipeline, gw))

	if runErr != nil {
		if kind, ok := strixerr.KindOf(runErr); ok && kind == strixerr.KindCancelled {
			return exitErr{code: exitCancelled, err: runErr}
		}
		return exitErr{code: exitScanFailed, err: runErr}
	}
	return nil
}

// watchForCancellation implements the §5 Cancellation path: on the CLI's
// signal-derived ctx firing (a single SIGINT/SIGTERM), it marks every
// running or waiting agent failed(cancelled) and tears down every
// container this process created, bounded to 10s, without waiting for
// each agent's own think-act loop to notice ctx is done on its own time.
func watchForCancellation(ctx context.Context, log *slog.Logger, graph *agentgraph.Graph, sb *sandbox.Runtime) {
	<-ctx.Done()
	log.Warn("cancellation signal received, tearing down scan")

	graph.CancelAll()

	teardownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	sb.DestroyAll(teardownCtx)
}

// writeStatsPeriodically snapshots scan-wide statistics to stats.json
// every statsInterval until ctx is cancelled (§4.8, §6).
func writeStatsPeriodically(ctx context.Context, store *runstore.Store, graph *agentgraph.Graph, pipeline *verify.Pipeline, gw *gateway.Gateway) {
	const statsInterval = 10 * time.Second
	ticker := time.NewTicker(statsInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_ = store.WriteStats(snapshotStats(graph, store, pipeline, gw))
		}
	}
}

// snapshotStats builds one Stats snapshot from the graph's agents (a
// best-effort status tally — read without the owning engine's lock,
// acceptable for a periodic monitoring snapshot per §4.8), the store's
// race-free tool-call counter, the pipeline's finding counts, and the
// gateway's usage totals (§6).
func snapshotStats(graph *agentgraph.Graph, store *runstore.Store, pipeline *verify.Pipeline, gw *gateway.Gateway) runstore.Stats {
	agents := graph.Agents()
	byStatus := make(map[string]int, len(agents))
	for _, a := range agents {
		byStatus[string(a.Status)]++
	}

	pending, verified, rejected := pipeline.Counts()
	totals := gw.Totals()
	return runstore.Stats{
		ToolCalls:        store.ToolCallCount(),
		TotalTokens:      totals.InputTokens + totals.OutputTokens,
		TotalCostUSD:     totals.CostUSD,
		AgentsByStatus:   byStatus,
		PendingFindings:  pending,
		VerifiedFindings: verified,
		RejectedFindings: rejected,
	}
}

// sandboxOpener adapts *sandbox.Runtime to agentgraph.SandboxOpener.
type sandboxOpener struct {
	runtime *sandbox.Runtime
	handle  *sandbox.Handle
}

func (o sandboxOpener) RegisterAgent(ctx context.Context, sandboxID, agentID string) (string, error) {
	return o.runtime.RegisterAgent(ctx, o.handle, agentID)
}

// registerBuiltinTools wires the minimal tool set the core ships with:
// report_finding submits a FindingReport to the Verification Pipeline,
// spawn_agent and send_message drive the Agent Graph, and finish is the
// engine's terminal-state signal (§3, §4.6, §4.7). Concrete
// tool-action bodies (browser automation, shell, HTTP proxy, file
// editing) are out of scope per spec.md §1 and are registered by
// whatever embeds this module.
func registerBuiltinTools(reg *registry.Registry) error {
	noop := func(ctx context.Context, agentID string, args json.RawMessage) (string, error) {
		return "", nil
	}

	if err := reg.Register(models.ToolDescriptor{
		Name:           "finish",
		Description:    "Signal that this agent has completed its task.",
		Schema:         []byte(`{"type":"object","properties":{"summary":{"type":"string"}},"required":["summary"]}`),
		Sandbox:        false,
		Parallelizable: false,
	}, noop); err != nil {
		return err
	}

	if err := reg.Register(models.ToolDescriptor{
		Name:           "spawn_agent",
		Description:    "Spawn a child agent with its own sandboxed worker to pursue a subtask.",
		Schema:         []byte(`{"type":"object","properties":{"task":{"type":"string"}},"required":["task"]}`),
		Sandbox:        false,
		Parallelizable: false,
	}, noop); err != nil {
		return err
	}

	if err := reg.Register(models.ToolDescriptor{
		Name:        "send_message",
		Description: "Send a message to another agent in the graph, optionally waiting for a reply.",
		Schema: []byte(`{"type":"object","properties":{
			"to":{"type":"string"},
			"body":{"type":"string"},
			"expect_reply":{"type":"boolean"}
		},"required":["to","body"]}`),
		Sandbox:        false,
		Parallelizable: false,
	}, noop); err != nil {
		return err
	}

	return reg.Register(models.ToolDescriptor{
		Name:        "report_finding",
		Description: "Submit a vulnerability finding report for verification.",
		Schema: []byte(`{"type":"object","properties":{
			"vulnerability_type":{"type":"string"},
			"claim_assertion":{"type":"string"},
			"primary_evidence":{"type":"array","items":{"type":"string"}},
			"reproduction_steps":{"type":"array","items":{"type":"string"}},
			"poc_payload":{"type":"string"},
			"target_url":{"type":"string"}
		},"required":["vulnerability_type","claim_assertion","target_url"]}`),
		Sandbox:        false,
		Parallelizable: true,
	}, noop)
}
