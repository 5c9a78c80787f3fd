// Package memory implements the Memory Compressor (C4): it bounds the
// conversation sent to the model without mutating the canonical
// AgentState (§4.4).
package memory

import (
	"context"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/zBiTz/strix/pkg/models"
)

const (
	// keepVerbatim is the number of most recent messages always sent
	// unmodified.
	keepVerbatim = 15

	// tokenBudget is the estimated-token ceiling before older messages are
	// folded into summaries.
	tokenBudget = 90_000

	// chunkSize is the number of older messages folded into one summary.
	chunkSize = 10

	// maxImages caps how many of the most recent images are attached;
	// older ones are replaced by a text placeholder.
	maxImages = 3

	// charsPerToken is a rough token estimator, consistent across calls so
	// that compression stays idempotent (§8: Compression idempotence).
	charsPerToken = 4
)

// Summarizer produces a condensed text summary of a chunk of messages,
// backed by the LLM Gateway with a dedicated summarisation prompt.
type Summarizer interface {
	Summarize(ctx context.Context, messages []models.Message) (string, error)
}

// Compressor implements the Memory Compressor contract.
type Compressor struct {
	summarizer Summarizer
	log        *slog.Logger
}

// New constructs a Compressor. summarizer may be nil, in which case
// compression always falls back to truncation instead of LLM-backed
// summaries.
func New(summarizer Summarizer, log *slog.Logger) *Compressor {
	return &Compressor{summarizer: summarizer, log: log}
}

// Compress returns a message sequence acceptable to the model, without
// mutating state. Calling Compress twice on the same state (same
// summarizer outcome) yields a byte-identical sequence (§8): summary and
// truncation message IDs are both derived from the folded chunk's content.
func (c *Compressor) Compress(ctx context.Context, state *models.AgentState) []models.Message {
	out := c.fold(ctx, state.Messages)
	return capImages(out)
}

// fold keeps the most recent keepVerbatim messages verbatim and, if the
// estimated token count of the whole sequence exceeds tokenBudget, replaces
// chunkSize-message runs of the older messages with summaries. System
// messages are always preserved verbatim, never folded (§4.4).
func (c *Compressor) fold(ctx context.Context, messages []models.Message) []models.Message {
	if len(messages) <= keepVerbatim {
		return append([]models.Message(nil), messages...)
	}

	head := messages[:len(messages)-keepVerbatim]
	tail := messages[len(messages)-keepVerbatim:]

	if estimateTokens(messages) <= tokenBudget {
		return append([]models.Message(nil), messages...)
	}

	folded := c.foldChunks(ctx, head)
	out := make([]models.Message, 0, len(folded)+len(tail))
	out = append(out, folded...)
	out = append(out, tail...)
	return out
}

// foldChunks walks head in groups of up to chunkSize messages, replacing
// each group with a single summary message. System messages (kept
// verbatim) and prior summaries (passed through unchanged) are never
// folded; a group ends early at the next one.
func (c *Compressor) foldChunks(ctx context.Context, head []models.Message) []models.Message {
	out := make([]models.Message, 0, len(head))

	i := 0
	for i < len(head) {
		m := head[i]
		if m.Role == models.RoleSystem || m.IsSummary() {
			out = append(out, m)
			i++
			continue
		}

		end := i
		for end < len(head) && end-i < chunkSize &&
			head[end].Role != models.RoleSystem && !head[end].IsSummary() {
			end++
		}
		chunk := head[i:end]
		out = append(out, c.summarize(ctx, chunk))
		i = end
	}
	return out
}

// summarize produces one summary message for chunk, falling back to
// truncation if the summarizer is unavailable or fails (§4.4).
func (c *Compressor) summarize(ctx context.Context, chunk []models.Message) models.Message {
	if c.summarizer != nil {
		text, err := c.summarizer.Summarize(ctx, chunk)
		if err == nil {
			return models.Message{
				ID:   chunkFingerprint(chunk),
				Role: models.RoleUser,
				Text: text,
				Metadata: map[string]any{
					"summary": true,
				},
			}
		}
		if c.log != nil {
			c.log.Warn("memory compressor: summarization failed, falling back to truncation", "error", err)
		}
	}
	return truncate(chunk)
}

// truncate collapses chunk into a placeholder message marked
// degraded_summary, so downstream consumers can see that this text is a
// truncation rather than a genuine summary (SPEC_FULL.md §3). Its ID is
// derived from chunk's content rather than randomly generated, so two
// Compress calls over an unchanged state that both fall back to
// truncation produce a byte-identical message (§8: Compression
// idempotence).
func truncate(chunk []models.Message) models.Message {
	return models.Message{
		ID:   chunkFingerprint(chunk),
		Role: models.RoleUser,
		Text: "[older conversation truncated: summarization unavailable]",
		Metadata: map[string]any{
			"summary":          true,
			"degraded_summary": true,
			"truncated_count":  len(chunk),
		},
	}
}

// chunkFingerprint derives a stable UUID from chunk's content, so
// truncate's output ID is a pure function of the input rather than a
// fresh random value on every call.
func chunkFingerprint(chunk []models.Message) string {
	var b strings.Builder
	for _, m := range chunk {
		b.WriteString(m.ID)
		b.WriteByte(0)
		b.WriteString(m.Text)
		b.WriteByte(0)
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(b.String())).String()
}

// capImages keeps only the maxImages most recently attached images across
// the whole sequence, replacing older ones with a text placeholder
// (§4.4). Messages themselves are not reordered or dropped.
func capImages(messages []models.Message) []models.Message {
	total := 0
	for _, m := range messages {
		total += len(m.Images)
	}
	if total <= maxImages {
		return messages
	}

	out := make([]models.Message, len(messages))
	copy(out, messages)

	remaining := maxImages
	for i := len(out) - 1; i >= 0; i-- {
		if len(out[i].Images) == 0 {
			continue
		}
		imgs := make([]models.Image, len(out[i].Images))
		copy(imgs, out[i].Images)
		for j := len(imgs) - 1; j >= 0; j-- {
			if remaining > 0 {
				remaining--
				continue
			}
			imgs[j] = models.Image{Placeholder: "[older image omitted]"}
		}
		out[i].Images = imgs
	}
	return out
}

// estimateTokens is a deterministic, cheap token estimator (chars/4),
// kept stable across calls so that Compress is idempotent (§8).
func estimateTokens(messages []models.Message) int {
	total := 0
	for _, m := range messages {
		total += len(m.Text) / charsPerToken
		for _, tc := range m.ToolCalls {
			total += len(tc.Args)/charsPerToken + len(tc.Result)/charsPerToken
		}
	}
	return total
}
