// internal/browser/jsexec/sandbox.go
package jsexec

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/Anonyfox/magpie-html-sub001/api/schemas"
	"github.com/Anonyfox/magpie-html-sub001/internal/browser/discovery"
	"github.com/Anonyfox/magpie-html-sub001/internal/browser/jsbind"
	"github.com/Anonyfox/magpie-html-sub001/internal/budget"
	"github.com/Anonyfox/magpie-html-sub001/internal/config"
)

// Options wires a Sandbox to the rest of a run.
type Options struct {
	Run       config.RunConfig
	UserAgent string
	// ResourceTimeout applies per dynamic script fetch, further clamped by
	// the run budget.
	ResourceTimeout time.Duration
	// Transport serves XHR/fetch calls made by page scripts.
	Transport Transport
	// Fetcher retrieves dynamically loaded script sources.
	Fetcher discovery.Fetcher
	Budget  *budget.Budget
	Logger  *zap.Logger
}

// Sandbox is one isolated script-execution context: its own event loop, VM,
// DOM bridge, console recorder and dynamic loader. Nothing is shared between
// sandboxes; state never leaks across runs.
//
// The VM is only ever touched on the event-loop goroutine. The DOM tree is
// additionally guarded by the bridge's lock so Snapshot can run from outside.
type Sandbox struct {
	loop    *eventloop.EventLoop
	vm      *goja.Runtime
	bridge  *jsbind.Bridge
	console *ConsoleRecorder
	pending *PendingTracker
	loader  *scriptLoader
	bundler *moduleBundler
	budget  *budget.Budget
	logger  *zap.Logger

	cfg config.RunConfig
	ctx context.Context

	mu         sync.Mutex
	errors     []schemas.ScriptError
	rejections map[*goja.Promise]string

	watchdogStop chan struct{}
	closeOnce    sync.Once
}

// NewSandbox builds and starts a sandbox. The returned sandbox must be
// Closed; construction failure means the environment itself is broken (a
// shim failed to evaluate), which aborts the run rather than degrading it.
func NewSandbox(ctx context.Context, opts Options) (*Sandbox, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	log := logger.Named("sandbox")

	loop := eventloop.NewEventLoop(eventloop.EnableConsole(false))
	loop.Start()

	s := &Sandbox{
		loop:         loop,
		console:      NewConsoleRecorder(logger, opts.Run.ForwardConsole),
		pending:      &PendingTracker{},
		budget:       opts.Budget,
		logger:       log,
		cfg:          opts.Run,
		ctx:          ctx,
		rejections:   make(map[*goja.Promise]string),
		watchdogStop: make(chan struct{}),
	}
	s.bundler = newModuleBundler(opts.Fetcher, opts.Budget, opts.ResourceTimeout, logger)

	// Environment setup happens on the loop goroutine; wait for it so a
	// broken shim surfaces as a construction error.
	setupErr := make(chan error, 1)
	loop.RunOnLoop(func(vm *goja.Runtime) {
		setupErr <- s.setup(vm, opts)
	})
	if err := <-setupErr; err != nil {
		loop.StopNoWait()
		return nil, fmt.Errorf("initializing sandbox environment: %w", err)
	}

	s.loader = newScriptLoader(ctx, s.bridge, opts.Fetcher, loop, s.pending, opts.Budget,
		s.bundler, opts.Run.MaxScripts, opts.ResourceTimeout, s.recordError, logger)

	s.startWatchdog()
	return s, nil
}

func (s *Sandbox) setup(vm *goja.Runtime, opts Options) error {
	s.vm = vm
	s.bridge = jsbind.NewBridge(vm, s.logger)

	if err := s.console.Install(vm); err != nil {
		return fmt.Errorf("installing console: %w", err)
	}
	if err := installShims(vm, ShimOptions{
		UserAgent:  opts.UserAgent,
		Permissive: opts.Run.PermissiveShims,
	}); err != nil {
		return err
	}

	xhr := newXHRDispatcher(s.ctx, opts.Transport, s.bridge, s.loop, s.pending, opts.Budget, s.logger)
	if err := xhr.install(vm); err != nil {
		return err
	}
	if err := installFetchShim(vm); err != nil {
		return err
	}

	vm.SetPromiseRejectionTracker(s.trackRejection)
	return nil
}

// trackRejection runs on the loop goroutine. A rejection is only an error if
// it is still unhandled when the run settles.
func (s *Sandbox) trackRejection(p *goja.Promise, op goja.PromiseRejectionOperation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch op {
	case goja.PromiseRejectionReject:
		s.rejections[p] = rejectionMessage(p)
	case goja.PromiseRejectionHandle:
		delete(s.rejections, p)
	}
}

func rejectionMessage(p *goja.Promise) string {
	result := p.Result()
	if result == nil {
		return "unhandled promise rejection"
	}
	return "unhandled promise rejection: " + result.String()
}

// startWatchdog interrupts the VM when the run budget expires, so a hung or
// spinning script cannot hold the run past its deadline. goja's Interrupt is
// safe to call from any goroutine.
func (s *Sandbox) startWatchdog() {
	remaining := s.budget.Remaining()
	go func() {
		t := time.NewTimer(remaining)
		defer t.Stop()
		select {
		case <-t.C:
			s.logger.Debug("Budget expired, interrupting VM")
			s.vm.Interrupt(errBudgetInterrupt)
		case <-s.watchdogStop:
		}
	}()
}

// errBudgetInterrupt is the value the watchdog interrupts with; RunScripts
// matches it to classify the failure as a deadline, not a script bug.
const errBudgetInterrupt = "script execution budget exceeded"

// LoadDocument hands the parsed tree to the bridge and seeds the loader's
// dedup set with the statically discovered sources.
func (s *Sandbox) LoadDocument(doc *html.Node, base *url.URL, discovered []discovery.Script) {
	s.bridge.SetDocument(doc, base)

	urls := make([]string, 0, len(discovered))
	for _, sc := range discovered {
		if !sc.Inline() {
			urls = append(urls, sc.URL)
		}
	}
	s.loader.markLoaded(urls)
}

// RunScripts executes the discovered scripts in document order. A throwing
// script is recorded and does not stop the ones after it; an interrupt (the
// budget watchdog firing mid-script) stops the pass entirely.
func (s *Sandbox) RunScripts(scripts []discovery.Script) {
	for i, script := range scripts {
		if s.budget.Exceeded() {
			s.logger.Debug("Budget exhausted, skipping remaining scripts",
				zap.Int("remaining", len(scripts)-i))
			return
		}
		if interrupted := s.runOne(i, script); interrupted {
			return
		}
	}
}

func (s *Sandbox) runOne(index int, script discovery.Script) (interrupted bool) {
	code := script.Code
	if script.Module {
		bundled, err := s.bundleDiscovered(script)
		if err != nil {
			s.recordError(schemas.ScriptError{
				Stage:     schemas.StageScript,
				ScriptURL: script.URL,
				Message:   err.Error(),
			})
			return false
		}
		code = bundled
	}

	name := script.URL
	if name == "" {
		name = fmt.Sprintf("inline-%d.js", index)
	}

	done := make(chan error, 1)
	s.loop.RunOnLoop(func(vm *goja.Runtime) {
		_, err := vm.RunScript(name, code)
		done <- err
	})
	err := <-done
	if err == nil {
		return false
	}

	if intErr, ok := err.(*goja.InterruptedError); ok {
		s.recordError(schemas.ScriptError{
			Stage:     schemas.StageRuntime,
			ScriptURL: script.URL,
			Message:   fmt.Sprintf("%v", intErr.Value()),
		})
		return true
	}

	scriptErr := schemas.ScriptError{
		Stage:     schemas.StageRuntime,
		ScriptURL: script.URL,
		Message:   err.Error(),
	}
	if ex, ok := err.(*goja.Exception); ok {
		scriptErr.Message = ex.Value().String()
		scriptErr.Stack = ex.String()
	}
	s.recordError(scriptErr)
	s.logger.Debug("Script failed",
		zap.String("script", name),
		zap.String("error", scriptErr.Message))
	return false
}

func (s *Sandbox) bundleDiscovered(script discovery.Script) (string, error) {
	if script.Inline() {
		return s.bundler.BundleSource(script.Code, s.bridge.BaseURL())
	}
	// Already-fetched module source; bundle it rooted at its own URL so its
	// relative imports resolve correctly.
	u, err := url.Parse(script.URL)
	if err != nil {
		return "", fmt.Errorf("parsing module URL: %w", err)
	}
	return s.bundler.bundle(s.ctx, script.Code, u)
}

// Settle waits for the page to quiesce under the configured strategy.
func (s *Sandbox) Settle() {
	WaitSettle(s.ctx, s.cfg, s.budget, s.pending, s.logger)
}

// Snapshot serializes the current DOM. Pending promise rejections are flushed
// into the error list at this point: anything still unhandled now stays
// unhandled.
func (s *Sandbox) Snapshot() (string, error) {
	s.flushRejections()
	return s.bridge.Serialize()
}

func (s *Sandbox) flushRejections() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for p, msg := range s.rejections {
		s.errors = append(s.errors, schemas.ScriptError{
			Stage:   schemas.StageRuntime,
			Message: msg,
		})
		delete(s.rejections, p)
	}
}

func (s *Sandbox) recordError(e schemas.ScriptError) {
	s.mu.Lock()
	s.errors = append(s.errors, e)
	s.mu.Unlock()
}

// Errors returns every error recorded so far, in occurrence order.
func (s *Sandbox) Errors() []schemas.ScriptError {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]schemas.ScriptError, len(s.errors))
	copy(out, s.errors)
	return out
}

// Console returns the captured console entries.
func (s *Sandbox) Console() []schemas.ConsoleEntry {
	return s.console.Entries()
}

// Pending exposes the in-flight work counter (used by tests and diagnostics).
func (s *Sandbox) Pending() *PendingTracker {
	return s.pending
}

// Close tears the sandbox down: the watchdog stops, the VM is interrupted so
// no queued job can linger, and the loop exits without draining timers.
func (s *Sandbox) Close() {
	s.closeOnce.Do(func() {
		close(s.watchdogStop)
		s.vm.Interrupt(errBudgetInterrupt)
		s.loop.StopNoWait()
	})
}
