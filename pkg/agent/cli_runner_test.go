package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	output := []byte(`{"type":"result","result":"Refactored the handler.","session_id":"sess-42","num_turns":3}`)

	result, ok := parseResult(output)
	require.True(t, ok)
	assert.Equal(t, "Refactored the handler.", result.Text)
	assert.Equal(t, "sess-42", result.ContinuationHandle)
}

func TestParseResult_MissingResultField(t *testing.T) {
	output := []byte(`{"session_id":"sess-42"}`)

	result, ok := parseResult(output)
	require.True(t, ok)
	assert.Equal(t, "Done, but no output.", result.Text)
	assert.Equal(t, "sess-42", result.ContinuationHandle)
}

func TestParseResult_InvalidJSON(t *testing.T) {
	_, ok := parseResult([]byte("error: model overloaded"))
	assert.False(t, ok)

	_, ok = parseResult([]byte(`"just a string"`))
	assert.False(t, ok)
}

func TestNewCLIRunner_Defaults(t *testing.T) {
	r := NewCLIRunner(CLIRunnerConfig{})

	assert.Equal(t, "claude", r.binary)
	assert.Empty(t, r.extraEnv)
}

func TestNewCLIRunner_APIKeyEnv(t *testing.T) {
	r := NewCLIRunner(CLIRunnerConfig{AnthropicAPIKey: "sk-test"})

	require.Len(t, r.extraEnv, 1)
	assert.Equal(t, "ANTHROPIC_API_KEY=sk-test", r.extraEnv[0])
}
