package ai

import (
	"testing"

	anthropic "github.com/anthropics/anthropic-sdk-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestToAnthropicMessages_FoldsToolResults(t *testing.T) {
	system, msgs := toAnthropicMessages([]Message{
		{Role: RoleSystem, Content: "be brief"},
		{Role: RoleUser, Content: "analyze 5"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{
			{ID: "t1", Name: "fetch_failure", Arguments: `{"log_id":5}`},
			{ID: "t2", Name: "lookup_kb", Arguments: `{"error_message":"timeout"}`},
		}},
		{Role: RoleTool, ToolCallID: "t1", Content: `{"log_id":5}`},
		{Role: RoleTool, ToolCallID: "t2", Content: `{"root_cause_en":"x"}`},
		{Role: RoleUser, Content: "write the report"},
	}, false)

	assert.Equal(t, "be brief", system)
	require.Len(t, msgs, 3)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[0].Role)
	assert.Equal(t, anthropic.MessageParamRoleAssistant, msgs[1].Role)
	assert.Len(t, msgs[1].Content, 2)
	assert.Equal(t, anthropic.MessageParamRoleUser, msgs[2].Role)
	// both tool results plus the synthesis prompt
	require.Len(t, msgs[2].Content, 3)
	assert.NotNil(t, msgs[2].Content[0].OfToolResult)
	assert.NotNil(t, msgs[2].Content[1].OfToolResult)
	assert.NotNil(t, msgs[2].Content[2].OfText)
}

func TestToAnthropicMessages_FlattensWithoutTools(t *testing.T) {
	_, msgs := toAnthropicMessages([]Message{
		{Role: RoleUser, Content: "analyze 5"},
		{Role: RoleAssistant, ToolCalls: []ToolCall{{ID: "t1", Name: "fetch_failure", Arguments: `{"log_id":5}`}}},
		{Role: RoleTool, ToolCallID: "t1", Content: `{"error":"record not found"}`},
		{Role: RoleUser, Content: "write the report"},
	}, true)

	require.Len(t, msgs, 3)
	require.Len(t, msgs[1].Content, 1)
	assert.NotNil(t, msgs[1].Content[0].OfText)
	require.Len(t, msgs[2].Content, 2)
	assert.NotNil(t, msgs[2].Content[0].OfText)
	assert.Nil(t, msgs[2].Content[0].OfToolResult)
}
