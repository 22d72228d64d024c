// Package tools defines the tools available to the agent.
package tools

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"
)

// Tool represents a callable tool.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"`
	Handler     func(ctx context.Context, rc *RunContext, input json.RawMessage) (string, error) `json:"-"`
}

// Registry holds available tools.
type Registry struct {
	tools  map[string]*Tool
	logger *slog.Logger
}

// NewRegistry creates an empty tool registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		tools:  make(map[string]*Tool),
		logger: logger.With("component", "tools"),
	}
}

// Register adds a tool. A tool registered under an existing name
// replaces it.
func (r *Registry) Register(t *Tool) {
	r.tools[t.Name] = t
}

// Get retrieves a tool by name.
func (r *Registry) Get(name string) *Tool {
	return r.tools[name]
}

// List returns all tools for the LLM prompt.
func (r *Registry) List() []map[string]any {
	var result []map[string]any
	for _, t := range r.tools {
		result = append(result, map[string]any{
			"name":        t.Name,
			"description": t.Description,
			"parameters":  t.Parameters,
		})
	}
	return result
}

// Execute runs a tool by name and records a Trace of the invocation.
// The trace is returned even when the tool fails, with Status
// StatusError and the failure message in Error.
func (r *Registry) Execute(ctx context.Context, rc *RunContext, name string, input json.RawMessage) (string, Trace, error) {
	trace := Trace{
		Name:         name,
		StartTs:      time.Now(),
		InputSummary: summarize(string(input)),
		Status:       StatusRunning,
	}

	tool := r.tools[name]
	if tool == nil {
		err := &ErrUnknownTool{ToolName: name}
		trace.finish("", err)
		return "", trace, err
	}

	r.logger.Debug("executing tool", "tool", name, "input", trace.InputSummary)
	output, err := tool.Handler(ctx, rc, input)
	trace.finish(output, err)
	if err != nil {
		r.logger.Warn("tool failed", "tool", name, "error", err)
		return "", trace, err
	}

	r.logger.Debug("tool succeeded",
		"tool", name,
		"duration_ms", trace.DurationMs,
	)
	return output, trace, nil
}
