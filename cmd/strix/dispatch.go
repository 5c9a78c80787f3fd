package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/zBiTz/strix/internal/agentgraph"
	"github.com/zBiTz/strix/internal/registry"
	"github.com/zBiTz/strix/internal/runstore"
	"github.com/zBiTz/strix/internal/sandbox"
	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/internal/verify"
	"github.com/zBiTz/strix/pkg/models"
)

// runtimeDispatcher implements engine.Dispatcher, routing a tool call to
// the Sandbox Runtime or a host-local handler based on the tool's
// descriptor (§4.2, §4.5).
type runtimeDispatcher struct {
	reg      *registry.Registry
	sb       *sandbox.Runtime
	handle   *sandbox.Handle
	graph    *agentgraph.Graph
	pipeline *verify.Pipeline
	store    *runstore.Store
	spawn    func(parentID string) (*models.Agent, error)
}

func newDispatcher(reg *registry.Registry, sb *sandbox.Runtime, handle *sandbox.Handle, graph *agentgraph.Graph, pipeline *verify.Pipeline, store *runstore.Store, spawn func(parentID string) (*models.Agent, error)) *runtimeDispatcher {
	return &runtimeDispatcher{reg: reg, sb: sb, handle: handle, graph: graph, pipeline: pipeline, store: store, spawn: spawn}
}

func (d *runtimeDispatcher) Dispatch(ctx context.Context, agentID, name string, args json.RawMessage) (string, error) {
	desc, ok := d.reg.Lookup(name)
	if !ok {
		return "", strixerr.New(strixerr.KindToolError, "tool not found: "+name)
	}

	switch name {
	case "report_finding":
		return d.reportFinding(args)
	case "send_message":
		return d.sendMessage(agentID, args)
	case "spawn_agent":
		return d.spawnAgent(agentID)
	}

	if desc.Sandbox {
		return d.sb.Execute(ctx, d.handle, agentID, name, args)
	}
	return d.reg.Execute(ctx, agentID, name, args)
}

func (d *runtimeDispatcher) spawnAgent(parentID string) (string, error) {
	child, err := d.spawn(parentID)
	if err != nil {
		return "", err
	}
	return child.ID, nil
}

func (d *runtimeDispatcher) sendMessage(agentID string, args json.RawMessage) (string, error) {
	var input struct {
		To          string `json:"to"`
		Body        string `json:"body"`
		ExpectReply bool   `json:"expect_reply"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", strixerr.Wrap(strixerr.KindToolError, err, "send_message: invalid arguments")
	}
	if err := d.graph.Send(agentID, input.To, input.Body, time.Now()); err != nil {
		return "", err
	}
	return "sent", nil
}

func (d *runtimeDispatcher) reportFinding(args json.RawMessage) (string, error) {
	var input struct {
		VulnerabilityType string   `json:"vulnerability_type"`
		ClaimAssertion    string   `json:"claim_assertion"`
		PrimaryEvidence   []string `json:"primary_evidence"`
		ReproductionSteps []string `json:"reproduction_steps"`
		PoCPayload        string   `json:"poc_payload"`
		TargetURL         string   `json:"target_url"`
	}
	if err := json.Unmarshal(args, &input); err != nil {
		return "", strixerr.Wrap(strixerr.KindToolError, err, "report_finding: invalid arguments")
	}

	report := models.NewFindingReport(uuid.NewString(), input.VulnerabilityType, input.ClaimAssertion)
	report.PrimaryEvidence = input.PrimaryEvidence
	report.ReproductionSteps = input.ReproductionSteps
	report.PoCPayload = input.PoCPayload
	report.TargetURL = input.TargetURL

	if err := d.store.SubmitFinding(report); err != nil {
		return "", err
	}
	d.pipeline.Submit(context.Background(), report)

	return report.ID, nil
}
