// Package agent implements the core agent loop: prompt the model,
// decode its next action, dispatch tools, and repeat until a final
// answer or the step budget runs out.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nimbusai/nimbus/internal/advice"
	"github.com/nimbusai/nimbus/internal/gazetteer"
	"github.com/nimbusai/nimbus/internal/llm"
	"github.com/nimbusai/nimbus/internal/session"
	"github.com/nimbusai/nimbus/internal/tools"
	"github.com/nimbusai/nimbus/internal/weather"
)

// maxSteps bounds one run. Each model consult costs a step; a run that
// exhausts the budget without a final action fails.
const maxSteps = 5

// Loop failure messages, surfaced verbatim in RunResult.ErrorMessage.
const (
	msgInvalidOutput = "Invalid model output."
	msgUnknownAction = "Unknown action type."
	msgMaxSteps      = "Agent max steps reached."
)

// ErrEmptyMessage rejects a run before any model or session work.
var ErrEmptyMessage = errors.New("message must not be empty")

// RunResult is the outcome of one agent run.
type RunResult struct {
	Success      bool                   `json:"success"`
	Content      string                 `json:"content,omitempty"`
	ErrorMessage string                 `json:"errorMessage,omitempty"`
	SessionID    string                 `json:"sessionId"`
	TraceID      string                 `json:"traceId"`
	Traces       []tools.Trace          `json:"traces,omitempty"`
	City         *gazetteer.City        `json:"city,omitempty"`
	Weather      *weather.DailyWeather  `json:"weather,omitempty"`
	Advice       *advice.ClothingAdvice `json:"advice,omitempty"`
}

// Loop is the agent orchestrator. It owns no per-run state and is safe
// for concurrent runs.
type Loop struct {
	llm      llm.Client
	registry *tools.Registry
	sessions *session.Store
	system   string
	logger   *slog.Logger
}

// NewLoop wires the orchestrator. The tool list is burned into the
// system prompt once, at construction.
func NewLoop(client llm.Client, registry *tools.Registry, sessions *session.Store, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loop{
		llm:      client,
		registry: registry,
		sessions: sessions,
		system:   buildSystemPrompt(registry.List()),
		logger:   logger.With("component", "agent"),
	}
}

// Run executes one user turn. A blank session id starts a new session;
// userID is carried for attribution only and may be empty. The returned
// RunResult always carries the effective session id and a fresh trace
// id. Run returns an error only for invalid input or a cancelled
// context; model and tool failures are reported inside the RunResult.
func (l *Loop) Run(ctx context.Context, sessionID, userID, message string) (RunResult, error) {
	if strings.TrimSpace(message) == "" {
		return RunResult{}, ErrEmptyMessage
	}

	sessionID = l.sessions.GetOrCreate(sessionID)
	result := RunResult{
		SessionID: sessionID,
		TraceID:   uuid.NewString(),
	}

	l.sessions.Append(sessionID, session.RoleUser, message)
	l.logger.Info("agent run started",
		"session", sessionID,
		"user", userID,
		"trace", result.TraceID,
	)

	rc := tools.NewRunContext()
	for step := 1; step <= maxSteps; step++ {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		snap, ok := l.sessions.Get(sessionID)
		if !ok {
			return result, fmt.Errorf("session %s vanished mid-run", sessionID)
		}

		raw, err := l.llm.Complete(ctx, buildPrompt(l.system, snap))
		if err != nil {
			l.logger.Error("model completion failed", "session", sessionID, "step", step, "error", err)
			return l.fail(rc, result, fmt.Sprintf("model unavailable: %v", err)), nil
		}

		action := ExtractAction(raw)
		if action == nil {
			l.logger.Warn("undecodable model output", "session", sessionID, "step", step)
			return l.fail(rc, result, msgInvalidOutput), nil
		}

		switch action.Type {
		case ActionFinal:
			l.sessions.Append(sessionID, session.RoleAssistant, action.Content)
			l.logger.Info("agent run finished",
				"session", sessionID,
				"trace", result.TraceID,
				"steps", step,
				"tools", len(result.Traces),
			)
			result.Success = true
			result.Content = action.Content
			l.attach(rc, &result)
			return result, nil

		case ActionTool:
			output, trace, err := l.registry.Execute(ctx, rc, action.Name, action.Input)
			result.Traces = append(result.Traces, trace)
			if err != nil {
				l.sessions.Append(sessionID, session.RoleTool,
					fmt.Sprintf("[TOOL_ERROR %s] %v", action.Name, err))
				continue
			}
			l.sessions.Append(sessionID, session.RoleTool,
				fmt.Sprintf("[TOOL %s] %s", action.Name, output))

		default:
			l.logger.Warn("unknown action type", "session", sessionID, "type", action.Type)
			return l.fail(rc, result, msgUnknownAction), nil
		}
	}

	l.logger.Warn("step budget exhausted", "session", sessionID, "trace", result.TraceID)
	return l.fail(rc, result, msgMaxSteps), nil
}

// fail closes a run unsuccessfully, still carrying whatever structured
// payload the tools produced.
func (l *Loop) fail(rc *tools.RunContext, result RunResult, msg string) RunResult {
	result.Success = false
	result.ErrorMessage = msg
	l.attach(rc, &result)
	return result
}

func (l *Loop) attach(rc *tools.RunContext, result *RunResult) {
	result.City = rc.City
	result.Weather = rc.Weather
	result.Advice = rc.Advice
}

// Sessions exposes the session store for transports that list or
// inspect sessions.
func (l *Loop) Sessions() *session.Store {
	return l.sessions
}
