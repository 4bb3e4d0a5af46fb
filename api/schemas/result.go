// api/schemas/result.go
package schemas

import "time"

// ErrorStage classifies where in a run a recorded error originated.
type ErrorStage string

const (
	// StageScript marks discovery-time failures: an external script source
	// could not be fetched. The script is dropped, the run continues.
	StageScript ErrorStage = "script"
	// StageRuntime marks execution-time failures: a script threw or rejected
	// while running inside the sandbox.
	StageRuntime ErrorStage = "runtime"
)

// ConsoleEntry is a single console call captured inside the sandbox.
type ConsoleEntry struct {
	Level     string    `json:"level"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// ScriptError describes a non-fatal failure attributed to a single script.
type ScriptError struct {
	Stage     ErrorStage `json:"stage"`
	ScriptURL string     `json:"scriptUrl,omitempty"`
	Message   string     `json:"message"`
	Stack     string     `json:"stack,omitempty"`
}

// Timing records the wall-clock bounds of a run.
type Timing struct {
	Start    time.Time     `json:"start"`
	End      time.Time     `json:"end"`
	Duration time.Duration `json:"duration"`
}

// RunResult is the value returned to the caller after a render run.
// It is created once per run and never mutated after return. A run that
// errored on every script still carries a valid (if less mutated) snapshot
// together with a non-empty Errors list.
type RunResult struct {
	URL     string         `json:"url"`
	HTML    string         `json:"html"`
	Console []ConsoleEntry `json:"console"`
	Errors  []ScriptError  `json:"errors"`
	Timing  Timing         `json:"timing"`
}
