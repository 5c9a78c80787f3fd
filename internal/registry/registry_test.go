package registry

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zBiTz/strix/internal/strixerr"
	"github.com/zBiTz/strix/pkg/models"
)

func echoHandler(ctx context.Context, agentID string, args json.RawMessage) (string, error) {
	return string(args), nil
}

func testDescriptor() models.ToolDescriptor {
	return models.ToolDescriptor{
		Name:           "http_get",
		Description:    "fetch a URL",
		Schema:         []byte(`{"type":"object","properties":{"url":{"type":"string"}},"required":["url"]}`),
		Sandbox:        true,
		Parallelizable: true,
	}
}

func TestRegisterThenLookup(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDescriptor(), echoHandler))

	got, ok := r.Lookup("http_get")
	require.True(t, ok)
	assert.Equal(t, testDescriptor(), got)
}

func TestRegisterIdempotentForIdenticalDescriptor(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDescriptor(), echoHandler))
	require.NoError(t, r.Register(testDescriptor(), echoHandler))
}

func TestRegisterRejectsConflictingDescriptor(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDescriptor(), echoHandler))

	conflicting := testDescriptor()
	conflicting.Parallelizable = false
	err := r.Register(conflicting, echoHandler)
	require.Error(t, err)
	kind, ok := strixerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, strixerr.KindConfig, kind)
}

func TestRegisterRejectedAfterFreeze(t *testing.T) {
	r := New()
	r.Freeze()
	err := r.Register(testDescriptor(), echoHandler)
	require.Error(t, err)
}

func TestValidateRejectsSchemaMismatch(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDescriptor(), echoHandler))

	err := r.Validate("http_get", json.RawMessage(`{}`))
	require.Error(t, err)
	kind, ok := strixerr.KindOf(err)
	require.True(t, ok)
	assert.Equal(t, strixerr.KindToolError, kind)
}

func TestExecuteRunsHandlerOnValidArgs(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDescriptor(), echoHandler))

	result, err := r.Execute(context.Background(), "agent-1", "http_get", json.RawMessage(`{"url":"https://example.com"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"https://example.com"}`, result)
}

func TestExecuteUnknownTool(t *testing.T) {
	r := New()
	_, err := r.Execute(context.Background(), "agent-1", "missing", json.RawMessage(`{}`))
	require.Error(t, err)
}

func TestSchemasReturnsEveryRegisteredDescriptor(t *testing.T) {
	r := New()
	require.NoError(t, r.Register(testDescriptor(), echoHandler))
	require.NoError(t, r.Register(models.ToolDescriptor{Name: "finish"}, echoHandler))

	schemas := r.Schemas()
	assert.Len(t, schemas, 2)
}
