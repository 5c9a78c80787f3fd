package gateway

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zBiTz/strix/pkg/models"
)

func TestToAnthropicToolsCarriesSchemaAndDescription(t *testing.T) {
	descs := []models.ToolDescriptor{
		{
			Name:        "report_finding",
			Description: "Submit a vulnerability finding report for verification.",
			Schema:      []byte(`{"type":"object","properties":{"target_url":{"type":"string"}},"required":["target_url"]}`),
		},
	}

	tools, err := toAnthropicTools(descs)
	require.NoError(t, err)
	require.Len(t, tools, 1)

	tool := tools[0].OfTool
	require.NotNil(t, tool)
	assert.Equal(t, "report_finding", tool.Name)
	assert.Equal(t, "Submit a vulnerability finding report for verification.", tool.Description.Value)
	assert.NotNil(t, tool.InputSchema.Properties, "the model must receive the tool's parameter schema, not just its name")
}

func TestToAnthropicToolsRejectsMalformedSchema(t *testing.T) {
	descs := []models.ToolDescriptor{
		{Name: "broken", Schema: []byte(`not json`)},
	}

	_, err := toAnthropicTools(descs)
	assert.Error(t, err)
}

func TestToAnthropicToolsEmptyInputReturnsEmptySlice(t *testing.T) {
	tools, err := toAnthropicTools(nil)
	require.NoError(t, err)
	assert.Empty(t, tools)
}
