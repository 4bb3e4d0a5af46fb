// internal/browser/jsexec/console.go
package jsexec

import (
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/Anonyfox/magpie-html-sub001/api/schemas"
)

// consoleLevels maps console methods to the level recorded in the run result.
// warn and error keep their own levels; everything else folds into the method
// name so callers can still distinguish debug from log.
var consoleLevels = map[string]string{
	"log":   "log",
	"info":  "info",
	"warn":  "warn",
	"error": "error",
	"debug": "debug",
	"trace": "debug",
}

// ConsoleRecorder installs a console object that captures entries into an
// ordered slice. Entries can optionally be forwarded to the process logger.
type ConsoleRecorder struct {
	mu      sync.Mutex
	entries []schemas.ConsoleEntry

	logger  *zap.Logger
	forward bool
}

// NewConsoleRecorder builds a recorder. When forward is set, each entry is
// also written to logger at a matching level.
func NewConsoleRecorder(logger *zap.Logger, forward bool) *ConsoleRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsoleRecorder{logger: logger.Named("page_console"), forward: forward}
}

// Install replaces the console global. Must run on the event-loop goroutine.
func (c *ConsoleRecorder) Install(vm *goja.Runtime) error {
	console := vm.NewObject()
	for method, level := range consoleLevels {
		if err := console.Set(method, c.capture(vm, level)); err != nil {
			return err
		}
	}
	// Methods pages call but we have no use for.
	for _, noop := range []string{"group", "groupEnd", "groupCollapsed", "table", "dir", "count", "time", "timeEnd", "assert"} {
		if err := console.Set(noop, func(call goja.FunctionCall) goja.Value { return goja.Undefined() }); err != nil {
			return err
		}
	}
	return vm.GlobalObject().Set("console", console)
}

func (c *ConsoleRecorder) capture(vm *goja.Runtime, level string) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		msg := formatConsoleArgs(vm, call.Arguments)
		c.append(level, msg)
		return goja.Undefined()
	}
}

func (c *ConsoleRecorder) append(level, msg string) {
	entry := schemas.ConsoleEntry{
		Level:     level,
		Message:   msg,
		Timestamp: time.Now().UTC(),
	}
	c.mu.Lock()
	c.entries = append(c.entries, entry)
	c.mu.Unlock()

	if c.forward {
		switch level {
		case "error":
			c.logger.Error(msg)
		case "warn":
			c.logger.Warn(msg)
		case "debug":
			c.logger.Debug(msg)
		default:
			c.logger.Info(msg)
		}
	}
}

// Entries returns the captured entries in emission order.
func (c *ConsoleRecorder) Entries() []schemas.ConsoleEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]schemas.ConsoleEntry, len(c.entries))
	copy(out, c.entries)
	return out
}

// formatConsoleArgs renders arguments the way DevTools joins them: space
// separated, objects via JSON.stringify when possible.
func formatConsoleArgs(vm *goja.Runtime, args []goja.Value) string {
	parts := make([]string, 0, len(args))
	for _, arg := range args {
		parts = append(parts, formatConsoleValue(vm, arg))
	}
	return strings.Join(parts, " ")
}

func formatConsoleValue(vm *goja.Runtime, arg goja.Value) string {
	if arg == nil || goja.IsUndefined(arg) {
		return "undefined"
	}
	if goja.IsNull(arg) {
		return "null"
	}

	if t := arg.ExportType(); t != nil {
		switch t.Kind().String() {
		case "string", "bool", "int64", "float64":
			return arg.String()
		}
	}

	if jsJSON := vm.Get("JSON"); jsJSON != nil && !goja.IsUndefined(jsJSON) {
		if stringify, ok := goja.AssertFunction(jsJSON.ToObject(vm).Get("stringify")); ok {
			if result, err := stringify(goja.Undefined(), arg); err == nil && !goja.IsUndefined(result) {
				return result.String()
			}
		}
	}
	return arg.String()
}
