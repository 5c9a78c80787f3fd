package main

import (
	"context"
	"strings"

	"github.com/zBiTz/strix/internal/gateway"
	"github.com/zBiTz/strix/pkg/models"
)

// summarizationPrompt seeds the dedicated summarisation request (§4.4).
const summarizationPrompt = "Summarize the following conversation turns concisely, preserving any facts a security agent would need to continue its work."

// gatewaySummarizer implements memory.Summarizer by routing through the
// LLM Gateway with a dedicated summarisation prompt (§4.4).
type gatewaySummarizer struct {
	gw    *gateway.Gateway
	model string
}

func newSummarizer(gw *gateway.Gateway, model string) *gatewaySummarizer {
	return &gatewaySummarizer{gw: gw, model: model}
}

func (s *gatewaySummarizer) Summarize(ctx context.Context, messages []models.Message) (string, error) {
	var transcript strings.Builder
	for _, m := range messages {
		transcript.WriteString(string(m.Role))
		transcript.WriteString(": ")
		transcript.WriteString(m.Text)
		transcript.WriteString("\n")
	}

	resp, err := s.gw.Complete(ctx, gateway.Request{
		Model: s.model,
		Messages: []models.Message{
			{Role: models.RoleSystem, Text: summarizationPrompt},
			{Role: models.RoleUser, Text: transcript.String()},
		},
	})
	if err != nil {
		return "", err
	}
	return resp.Message.Text, nil
}
