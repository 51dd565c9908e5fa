package policy

import (
	"context"
	"fmt"
	"os"

	"github.com/open-policy-agent/opa/rego"
)

// Decisions returned by the chat admission policy.
const (
	DecisionAllow = "allow"
	DecisionBlock = "block"
	DecisionNoRAG = "no_rag"
)

// Input is the document a chat request is judged on.
type Input struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
	UseRAG    bool   `json:"use_rag"`
	TopK      int    `json:"top_k"`
	MaxTokens int    `json:"max_new_tokens"`
	Stream    bool   `json:"stream"`
}

// Engine is the OPA policy engine.
type Engine struct {
	query rego.PreparedEvalQuery
}

// NewEngine creates a new policy engine from a rego module declaring
// package chat_policy with a decision rule and an optional reason rule.
func NewEngine(ctx context.Context, policyContent string) (*Engine, error) {
	r := rego.New(
		rego.Query("decision := data.chat_policy.decision; reason := object.get(data.chat_policy, \"reason\", \"\")"),
		rego.Module("chat_policy.rego", policyContent),
	)

	query, err := r.PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare rego: %w", err)
	}

	return &Engine{query: query}, nil
}

// NewEngineFromFile loads the module at path, or DefaultPolicy when path is empty.
func NewEngineFromFile(ctx context.Context, path string) (*Engine, error) {
	if path == "" {
		return NewEngine(ctx, DefaultPolicy)
	}
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}
	return NewEngine(ctx, string(content))
}

// Evaluate checks a chat request.
// Returns: decision (allow, block, no_rag), reason (optional), error
func (e *Engine) Evaluate(ctx context.Context, input Input) (string, string, error) {
	results, err := e.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return "", "", fmt.Errorf("failed to evaluate policy: %w", err)
	}

	// An undefined decision means the module declares no default.
	if len(results) == 0 {
		return DecisionAllow, "default", nil
	}

	decision, _ := results[0].Bindings["decision"].(string)
	reason, _ := results[0].Bindings["reason"].(string)
	switch decision {
	case DecisionAllow, DecisionBlock, DecisionNoRAG:
		return decision, reason, nil
	}
	return DecisionAllow, fmt.Sprintf("unexpected decision %v", results[0].Bindings["decision"]), nil
}

// DefaultPolicy is the default policy content.
const DefaultPolicy = `
package chat_policy

default decision = "allow"

max_message_chars = 32000

max_top_k = 20

# Oversized messages are rejected outright; oversized retrieval requests
# fall back to ungrounded generation.
decision = "block" {
	count(input.message) > max_message_chars
} else = "no_rag" {
	input.use_rag
	input.top_k > max_top_k
}

reason = "message exceeds maximum length" {
	decision == "block"
}

reason = "top_k exceeds retrieval limit" {
	decision == "no_rag"
}
`
