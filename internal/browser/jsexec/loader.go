// internal/browser/jsexec/loader.go
package jsexec

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/Anonyfox/magpie-html-sub001/api/schemas"
	"github.com/Anonyfox/magpie-html-sub001/internal/browser/discovery"
	"github.com/Anonyfox/magpie-html-sub001/internal/browser/jsbind"
	"github.com/Anonyfox/magpie-html-sub001/internal/budget"
)

// scriptLoader executes scripts that appear through DOM mutation after the
// initial document pass: createElement('script') + appendChild, setAttribute
// src, direct .src assignment. It subscribes to the bridge's script observer.
//
// Idempotency rules:
//   - an element is claimed the first time it is seen (re-insertion is a no-op)
//   - a source URL goes into the loaded set before its fetch starts, so two
//     elements racing for the same URL yield one execution
type scriptLoader struct {
	bridge  *jsbind.Bridge
	fetcher discovery.Fetcher
	loop    *eventloop.EventLoop
	pending *PendingTracker
	budget  *budget.Budget
	bundler *moduleBundler
	logger  *zap.Logger
	record  func(schemas.ScriptError)

	ctx          context.Context
	fetchTimeout time.Duration
	maxScripts   int

	mu      sync.Mutex
	loaded  map[string]bool // absolute URL -> already scheduled
	started int             // dynamic executions scheduled so far

	debugEvents int // bounded so a mutation storm cannot flood the log
}

// maxLoaderDebugEvents caps per-run debug output from the loader.
const maxLoaderDebugEvents = 50

func (l *scriptLoader) debugEvent(msg string, fields ...zap.Field) {
	l.mu.Lock()
	l.debugEvents++
	n := l.debugEvents
	l.mu.Unlock()
	if n > maxLoaderDebugEvents {
		return
	}
	if n == maxLoaderDebugEvents {
		l.logger.Debug("Loader debug output capped, suppressing further events")
		return
	}
	l.logger.Debug(msg, fields...)
}

func newScriptLoader(ctx context.Context, bridge *jsbind.Bridge, fetcher discovery.Fetcher, loop *eventloop.EventLoop, pending *PendingTracker, b *budget.Budget, bundler *moduleBundler, maxScripts int, fetchTimeout time.Duration, record func(schemas.ScriptError), logger *zap.Logger) *scriptLoader {
	l := &scriptLoader{
		bridge:       bridge,
		fetcher:      fetcher,
		loop:         loop,
		pending:      pending,
		budget:       b,
		bundler:      bundler,
		logger:       logger.Named("loader"),
		record:       record,
		ctx:          ctx,
		fetchTimeout: fetchTimeout,
		maxScripts:   maxScripts,
		loaded:       make(map[string]bool),
	}
	bridge.SetScriptObserver(l.onScript)
	return l
}

// markLoaded seeds the loaded set with the statically discovered sources so
// a page re-inserting one of its own script tags does not run it twice.
func (l *scriptLoader) markLoaded(urls []string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, u := range urls {
		if u != "" {
			l.loaded[u] = true
		}
	}
}

// onScript runs on the event-loop goroutine (DOM mutations happen during
// script execution). Classification and the actual load are deferred one
// macrotask, so attributes and handlers the page sets right after insertion
// (s.type = 'module', s.src = ..., s.onload = ...) are all honored, and the
// inserting script finishes before the inserted one starts. The deferral is
// pending-tracked so the idle window cannot close around it.
func (l *scriptLoader) onScript(el *jsbind.Element, reason jsbind.ScriptInsertReason) {
	if el.ScriptHandled() {
		return
	}
	l.pending.Inc()
	l.loop.SetTimeout(func(vm *goja.Runtime) {
		defer l.pending.Dec()
		l.classify(vm, el, reason)
	}, 0)
}

// classify reads the element's type/src as they stand one macrotask after the
// triggering mutation and routes it to inline or external execution.
func (l *scriptLoader) classify(vm *goja.Runtime, el *jsbind.Element, reason jsbind.ScriptInsertReason) {
	if el.ScriptHandled() || l.budget.Exceeded() {
		return
	}

	typ := strings.ToLower(strings.TrimSpace(el.TypeAttr()))
	isModule := typ == "module"
	if typ != "" && !isModule && !isClassicScriptType(typ) {
		// Data blocks stay inert even when inserted dynamically.
		return
	}

	src := strings.TrimSpace(el.SrcAttr())
	if src == "" {
		// Inline dynamic script: only runs once it has a body. Insertion with
		// an empty body (the createElement-then-set-src pattern) is skipped
		// here; the src assignment will notify again.
		if strings.TrimSpace(el.Text()) == "" {
			return
		}
		el.MarkScriptHandled()
		l.runInline(vm, el, isModule)
		return
	}

	resolved, err := l.bridge.ResolveURL(src)
	if err != nil {
		el.MarkScriptHandled()
		l.record(schemas.ScriptError{
			Stage:     schemas.StageScript,
			ScriptURL: src,
			Message:   "unresolvable script src: " + err.Error(),
		})
		return
	}

	el.MarkScriptHandled()

	l.mu.Lock()
	if l.loaded[resolved.String()] {
		l.mu.Unlock()
		l.debugEvent("Skipping already-loaded dynamic script",
			zap.String("url", resolved.String()),
			zap.String("reason", string(reason)))
		return
	}
	if l.maxScripts > 0 && l.started >= l.maxScripts {
		l.mu.Unlock()
		l.debugEvent("Dynamic script limit reached",
			zap.String("url", resolved.String()),
			zap.Int("max_scripts", l.maxScripts))
		return
	}
	l.loaded[resolved.String()] = true
	l.started++
	l.mu.Unlock()

	l.debugEvent("Scheduling dynamic script",
		zap.String("url", resolved.String()),
		zap.String("reason", string(reason)),
		zap.Bool("module", isModule))

	l.scheduleExternal(el, resolved, isModule)
}

// runInline executes an inline dynamic script on the spot; classification
// already happened one macrotask after insertion.
func (l *scriptLoader) runInline(vm *goja.Runtime, el *jsbind.Element, isModule bool) {
	l.mu.Lock()
	if l.maxScripts > 0 && l.started >= l.maxScripts {
		l.mu.Unlock()
		return
	}
	l.started++
	l.mu.Unlock()

	code := el.Text()
	if isModule {
		bundled, err := l.bundler.BundleSource(code, l.bridge.BaseURL())
		if err != nil {
			l.record(schemas.ScriptError{Stage: schemas.StageScript, Message: "bundling inline module: " + err.Error()})
			el.EmitEvent("error")
			return
		}
		code = bundled
	}
	l.execute(vm, el, code, "")
}

// scheduleExternal fetches off-loop (pending-tracked) and executes back on
// the loop. The pending increment happens before the goroutine starts and
// the decrement covers fetch and execution, so the idle window cannot close
// mid-load.
func (l *scriptLoader) scheduleExternal(el *jsbind.Element, src *url.URL, isModule bool) {
	l.pending.Inc()
	go func() {
		executed := false
		defer func() {
			if !executed {
				l.pending.Dec()
			}
		}()

		var code string
		var err error
		if isModule {
			code, err = l.bundler.BundleURL(l.ctx, src)
		} else {
			code, err = l.fetcher.FetchScript(l.ctx, src, l.budget.Clamp(l.fetchTimeout))
		}
		if err != nil {
			l.record(schemas.ScriptError{
				Stage:     schemas.StageScript,
				ScriptURL: src.String(),
				Message:   err.Error(),
			})
			l.loop.RunOnLoop(func(vm *goja.Runtime) {
				el.EmitEvent("error")
			})
			return
		}

		executed = true
		l.loop.RunOnLoop(func(vm *goja.Runtime) {
			defer l.pending.Dec()
			if l.budget.Exceeded() {
				l.debugEvent("Budget exhausted, dropping fetched script",
					zap.String("url", src.String()))
				return
			}
			l.execute(vm, el, code, src.String())
		})
	}()
}

// execute runs the script body on the loop, isolating failures the same way
// the initial pass does: an exception becomes a script error plus an error
// event, success fires load.
func (l *scriptLoader) execute(vm *goja.Runtime, el *jsbind.Element, code, srcURL string) {
	name := srcURL
	if name == "" {
		name = "inline-dynamic.js"
	}
	if _, err := vm.RunScript(name, code); err != nil {
		scriptErr := schemas.ScriptError{
			Stage:     schemas.StageRuntime,
			ScriptURL: srcURL,
			Message:   err.Error(),
		}
		if ex, ok := err.(*goja.Exception); ok {
			scriptErr.Message = ex.Value().String()
			scriptErr.Stack = ex.String()
		}
		l.record(scriptErr)
		el.EmitEvent("error")
		return
	}
	el.EmitEvent("load")
}

func isClassicScriptType(typ string) bool {
	switch typ {
	case "text/javascript", "application/javascript", "application/x-javascript",
		"text/ecmascript", "application/ecmascript":
		return true
	}
	return false
}
