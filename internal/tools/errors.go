// Package tools provides the tool registry and execution framework.
//
// This file defines sentinel error types for tool execution.
package tools

import (
	"fmt"
	"strings"
)

// ErrUnknownTool is returned when a tool call targets a name that is
// not present in the registry. This indicates a capability mismatch,
// not a transient failure; the agent loop should report it to the model
// rather than retry.
type ErrUnknownTool struct {
	ToolName string
}

func (e *ErrUnknownTool) Error() string {
	return fmt.Sprintf("tool %q is not available", e.ToolName)
}

// ErrCityNotFound is returned when no gazetteer entry matches the
// requested city text. Candidates, when set, carries the configured
// hot-city names so the model can offer the user a choice.
type ErrCityNotFound struct {
	Query      string
	Candidates []string
}

func (e *ErrCityNotFound) Error() string {
	if len(e.Candidates) == 0 {
		return fmt.Sprintf("no known city matches %q", e.Query)
	}
	return fmt.Sprintf("no known city matches %q; known cities include: %s",
		e.Query, strings.Join(e.Candidates, "、"))
}

// ErrProviderFailure wraps a weather provider error, either a transport
// failure or a non-success provider status code.
type ErrProviderFailure struct {
	Op   string
	Code string
	Err  error
}

func (e *ErrProviderFailure) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: provider returned code %s", e.Op, e.Code)
}

func (e *ErrProviderFailure) Unwrap() error {
	return e.Err
}

// ErrNoData is returned when the provider answered successfully but the
// forecast carries no usable day for the request.
type ErrNoData struct {
	City string
}

func (e *ErrNoData) Error() string {
	return fmt.Sprintf("no forecast data available for %s", e.City)
}
