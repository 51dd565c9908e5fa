package policy

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultPolicy(t *testing.T) {
	ctx := context.Background()
	engine, err := NewEngine(ctx, DefaultPolicy)
	require.NoError(t, err)

	tests := []struct {
		name     string
		input    Input
		decision string
	}{
		{name: "plain message", input: Input{Message: "hello"}, decision: DecisionAllow},
		{name: "rag within limit", input: Input{Message: "hello", UseRAG: true, TopK: 5}, decision: DecisionAllow},
		{name: "rag over limit", input: Input{Message: "hello", UseRAG: true, TopK: 50}, decision: DecisionNoRAG},
		{name: "large top_k without rag", input: Input{Message: "hello", TopK: 50}, decision: DecisionAllow},
		{name: "oversized message", input: Input{Message: strings.Repeat("x", 32001), UseRAG: true, TopK: 50}, decision: DecisionBlock},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decision, reason, err := engine.Evaluate(ctx, tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.decision, decision)
			if decision != DecisionAllow {
				assert.NotEmpty(t, reason)
			}
		})
	}
}

func TestNewEngineFromFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policy.rego")
	content := `
package chat_policy

default decision = "allow"

decision = "block" {
	input.session_id == "sess_banned"
}
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	engine, err := NewEngineFromFile(ctx, path)
	require.NoError(t, err)

	decision, reason, err := engine.Evaluate(ctx, Input{SessionID: "sess_banned", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, DecisionBlock, decision)
	assert.Empty(t, reason)

	decision, _, err = engine.Evaluate(ctx, Input{SessionID: "sess_ok", Message: "hi"})
	require.NoError(t, err)
	assert.Equal(t, DecisionAllow, decision)
}

func TestNewEngineInvalidModule(t *testing.T) {
	_, err := NewEngine(context.Background(), "package chat_policy\n decision = ")
	assert.Error(t, err)

	_, err = NewEngineFromFile(context.Background(), filepath.Join(t.TempDir(), "missing.rego"))
	assert.Error(t, err)
}
