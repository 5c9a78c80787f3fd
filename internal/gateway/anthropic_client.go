package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/google/uuid"

	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/pkg/models"
)

// AnthropicClientConfig configures the concrete Anthropic-backed
// LLMClient (STRIX_LLM=anthropic, LLM_API_KEY, LLM_API_BASE per §6).
type AnthropicClientConfig struct {
	APIKey  string
	BaseURL string
}

// AnthropicClient is the concrete LLMClient the Gateway drives in
// production. It sends each message's text only: attached images are not
// forwarded, and no model-specific fields (thinking budgets, vision
// payload shaping) are added or stripped.
type AnthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient builds an AnthropicClient. Requires a non-empty
// APIKey (STRIX error kind `config`, fatal at startup, per §7).
func NewAnthropicClient(cfg AnthropicClientConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, strixerr.New(strixerr.KindConfig, "LLM_API_KEY is required")
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if strings.TrimSpace(cfg.BaseURL) != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &AnthropicClient{client: anthropic.NewClient(opts...)}, nil
}

// Complete sends req to the Anthropic Messages API and converts the
// reply into a Response.
func (a *AnthropicClient) Complete(ctx context.Context, req Request) (Response, error) {
	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		MaxTokens: 8192,
		Messages:  toAnthropicMessages(req.Messages),
	}
	if sys := systemText(req.Messages); sys != "" {
		params.System = []anthropic.TextBlockParam{{Text: sys}}
	}
	tools, err := toAnthropicTools(req.Tools)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic: converting tool schemas: %w", err)
	}
	if len(tools) > 0 {
		params.Tools = tools
	}

	msg, err := a.client.Messages.New(ctx, params)
	if err != nil {
		return Response{}, fmt.Errorf("anthropic: completion request failed: %w", err)
	}

	return Response{
		Message: fromAnthropicMessage(msg),
		Usage: models.Usage{
			InputTokens:  msg.Usage.InputTokens,
			OutputTokens: msg.Usage.OutputTokens,
			CachedTokens: msg.Usage.CacheReadInputTokens,
		},
	}, nil
}

func systemText(msgs []models.Message) string {
	var b strings.Builder
	for _, m := range msgs {
		if m.Role != models.RoleSystem {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(m.Text)
	}
	return b.String()
}

func toAnthropicMessages(msgs []models.Message) []anthropic.MessageParam {
	out := make([]anthropic.MessageParam, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case models.RoleSystem:
			continue
		case models.RoleUser, models.RoleToolResult:
			out = append(out, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Text)))
		case models.RoleAssistant:
			out = append(out, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Text)))
		}
	}
	return out
}

// toAnthropicTools converts each registered tool's JSON Schema (§6) into
// the Anthropic SDK's typed input schema, so the model actually receives
// the tool's parameters rather than a bare name/description pair.
func toAnthropicTools(descs []models.ToolDescriptor) ([]anthropic.ToolUnionParam, error) {
	out := make([]anthropic.ToolUnionParam, 0, len(descs))
	for _, d := range descs {
		var schema anthropic.ToolInputSchemaParam
		if err := json.Unmarshal(d.Schema, &schema); err != nil {
			return nil, fmt.Errorf("invalid tool schema for %s: %w", d.Name, err)
		}

		toolParam := anthropic.ToolUnionParamOfTool(schema, d.Name)
		if toolParam.OfTool == nil {
			return nil, fmt.Errorf("invalid tool schema for %s: missing tool definition", d.Name)
		}
		toolParam.OfTool.Description = anthropic.String(d.Description)
		out = append(out, toolParam)
	}
	return out, nil
}

func fromAnthropicMessage(msg *anthropic.Message) models.Message {
	out := models.Message{ID: uuid.NewString(), Role: models.RoleAssistant}
	var text strings.Builder
	for _, block := range msg.Content {
		switch variant := block.AsAny().(type) {
		case anthropic.TextBlock:
			text.WriteString(variant.Text)
		case anthropic.ToolUseBlock:
			out.ToolCalls = append(out.ToolCalls, models.ToolCall{
				ID:   variant.ID,
				Name: variant.Name,
				Args: variant.Input,
			})
		}
	}
	out.Text = text.String()
	return out
}
