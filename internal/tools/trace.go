package tools

import "time"

// Trace statuses.
const (
	StatusRunning = "running"
	StatusSuccess = "success"
	StatusError   = "error"
)

// summaryMaxChars bounds the input/output excerpts carried in a Trace.
const summaryMaxChars = 300

// Trace is the execution record of one tool invocation, returned to
// callers alongside the agent's answer for observability.
type Trace struct {
	Name          string    `json:"name"`
	StartTs       time.Time `json:"startTs"`
	DurationMs    int64     `json:"durationMs"`
	InputSummary  string    `json:"inputSummary,omitempty"`
	OutputSummary string    `json:"outputSummary,omitempty"`
	Error         string    `json:"error,omitempty"`
	Status        string    `json:"status"`
}

// finish closes the trace, computing the duration and recording either
// the output excerpt or the failure message.
func (t *Trace) finish(output string, err error) {
	t.DurationMs = time.Since(t.StartTs).Milliseconds()
	if t.DurationMs < 0 {
		t.DurationMs = 0
	}
	if err != nil {
		t.Status = StatusError
		t.Error = err.Error()
		return
	}
	t.Status = StatusSuccess
	t.OutputSummary = summarize(output)
}

// summarize clips a value to the trace excerpt limit.
func summarize(v string) string {
	runes := []rune(v)
	if len(runes) <= summaryMaxChars {
		return v
	}
	return string(runes[:summaryMaxChars]) + "..."
}
