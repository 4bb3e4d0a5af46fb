// internal/browser/jsexec/xhr.go
package jsexec

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"go.uber.org/zap"

	"github.com/Anonyfox/magpie-html-sub001/internal/browser/jsbind"
	"github.com/Anonyfox/magpie-html-sub001/internal/budget"
)

// Transport issues HTTP requests on behalf of page scripts. Satisfied by
// network.Client.
type Transport interface {
	Do(ctx context.Context, req *http.Request, timeout time.Duration) (*http.Response, error)
}

// maxXHRBody caps how much response body an XHR delivers into the VM.
const maxXHRBody = 10 << 20 // 10 MiB

// xhrDispatcher carries XHR (and the fetch polyfill on top of it) over the
// run's HTTP client. Each dispatch is one unit of pending work, so the
// network-idle wait sees in-flight XHRs.
type xhrDispatcher struct {
	transport Transport
	bridge    *jsbind.Bridge
	loop      *eventloop.EventLoop
	pending   *PendingTracker
	budget    *budget.Budget
	logger    *zap.Logger

	ctx context.Context
}

// xhrOutcome is what a finished dispatch hands back to the JS state machine.
type xhrOutcome struct {
	Status     int
	StatusText string
	Headers    string // "name: value\r\n" pairs, getAllResponseHeaders format
	Body       string
	FinalURL   string
	Error      string
	TimedOut   bool
}

func newXHRDispatcher(ctx context.Context, transport Transport, bridge *jsbind.Bridge, loop *eventloop.EventLoop, pending *PendingTracker, b *budget.Budget, logger *zap.Logger) *xhrDispatcher {
	return &xhrDispatcher{
		transport: transport,
		bridge:    bridge,
		loop:      loop,
		pending:   pending,
		budget:    b,
		logger:    logger.Named("xhr"),
		ctx:       ctx,
	}
}

// install publishes the dispatch hook and evaluates the XMLHttpRequest
// polyfill. Must run on the event-loop goroutine.
func (d *xhrDispatcher) install(vm *goja.Runtime) error {
	if err := vm.GlobalObject().Set("__xhr_dispatch", d.dispatch(vm)); err != nil {
		return err
	}
	if _, err := vm.RunScript("xhr-shim.js", xhrShimJS); err != nil {
		return fmt.Errorf("evaluating xhr shim: %w", err)
	}
	return nil
}

// dispatch returns the Go hook the polyfill calls: it resolves the URL,
// performs the request off-loop, and schedules the JS callback back on the
// loop with the outcome. It hands back a cancel function so abort() can tear
// down the in-flight transport call instead of merely ignoring its result.
func (d *xhrDispatcher) dispatch(vm *goja.Runtime) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		method := strings.ToUpper(call.Argument(0).String())
		rawURL := call.Argument(1).String()
		headersVal := call.Argument(2)
		body := ""
		if arg := call.Argument(3); !goja.IsNull(arg) && !goja.IsUndefined(arg) {
			body = arg.String()
		}
		timeoutMs := call.Argument(4).ToInteger()
		callback, ok := goja.AssertFunction(call.Argument(5))
		if !ok {
			panic(vm.NewTypeError("__xhr_dispatch requires a callback"))
		}

		headers := make(map[string]string)
		if obj := headersVal.ToObject(vm); obj != nil {
			for _, key := range obj.Keys() {
				headers[key] = obj.Get(key).String()
			}
		}

		ctx, cancel := context.WithCancel(d.ctx)
		d.pending.Inc()
		go func() {
			defer d.pending.Dec()
			defer cancel()
			outcome := d.perform(ctx, method, rawURL, headers, body, timeoutMs)
			d.loop.RunOnLoop(func(loopVM *goja.Runtime) {
				if _, err := callback(goja.Undefined(), loopVM.ToValue(outcome)); err != nil {
					d.logger.Debug("XHR callback threw", zap.Error(err))
				}
			})
		}()

		return vm.ToValue(func(abortCall goja.FunctionCall) goja.Value {
			cancel()
			return goja.Undefined()
		})
	}
}

func (d *xhrDispatcher) perform(ctx context.Context, method, rawURL string, headers map[string]string, body string, timeoutMs int64) xhrOutcome {
	resolved, err := d.bridge.ResolveURL(rawURL)
	if err != nil {
		return xhrOutcome{Error: "invalid URL: " + err.Error()}
	}
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return xhrOutcome{Error: "unsupported scheme: " + resolved.Scheme}
	}

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req, err := http.NewRequest(method, resolved.String(), reader)
	if err != nil {
		return xhrOutcome{Error: err.Error()}
	}
	for name, value := range headers {
		req.Header.Set(name, value)
	}
	if cookie := d.bridge.CookieHeader(); cookie != "" && req.Header.Get("Cookie") == "" {
		req.Header.Set("Cookie", cookie)
	}

	timeout := d.budget.Remaining()
	explicit := time.Duration(timeoutMs) * time.Millisecond
	if explicit > 0 {
		timeout = d.budget.Clamp(explicit)
	}

	resp, err := d.transport.Do(ctx, req, timeout)
	if err != nil {
		out := xhrOutcome{Error: err.Error()}
		if d.ctx.Err() != nil || strings.Contains(err.Error(), "deadline exceeded") {
			out.TimedOut = true
		}
		d.logger.Debug("XHR failed",
			zap.String("method", method),
			zap.String("url", resolved.String()),
			zap.Error(err))
		return out
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxXHRBody))
	if err != nil {
		return xhrOutcome{Error: "reading response: " + err.Error()}
	}

	for _, sc := range resp.Header.Values("Set-Cookie") {
		d.bridge.AppendCookie(sc)
	}

	finalURL := resolved.String()
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	d.logger.Debug("XHR complete",
		zap.String("method", method),
		zap.String("url", finalURL),
		zap.Int("status", resp.StatusCode),
		zap.Int("bytes", len(raw)))

	return xhrOutcome{
		Status:     resp.StatusCode,
		StatusText: http.StatusText(resp.StatusCode),
		Headers:    flattenHeaders(resp.Header),
		Body:       string(raw),
		FinalURL:   finalURL,
	}
}

func flattenHeaders(h http.Header) string {
	var sb strings.Builder
	for name, values := range h {
		lower := strings.ToLower(name)
		if lower == "set-cookie" {
			continue
		}
		for _, v := range values {
			sb.WriteString(lower)
			sb.WriteString(": ")
			sb.WriteString(v)
			sb.WriteString("\r\n")
		}
	}
	return sb.String()
}

// xhrShimJS is the XMLHttpRequest state machine. readyState only moves
// forward (0 UNSENT, 1 OPENED, 2 HEADERS_RECEIVED, 3 LOADING, 4 DONE);
// dispatch is async-only, the async flag on open() is accepted and ignored.
const xhrShimJS = `
(function() {
	if (typeof globalThis.XMLHttpRequest === 'function') return;

	class XMLHttpRequest {
		constructor() {
			this.readyState = 0;
			this.status = 0;
			this.statusText = '';
			this.responseText = '';
			this.response = '';
			this.responseType = '';
			this.responseURL = '';
			this.timeout = 0;
			this.withCredentials = false;
			this.onreadystatechange = null;
			this.onload = null;
			this.onerror = null;
			this.onabort = null;
			this.ontimeout = null;
			this.onloadstart = null;
			this.onloadend = null;
			this._method = 'GET';
			this._url = '';
			this._headers = {};
			this._responseHeaders = '';
			this._sent = false;
			this._aborted = false;
			this._cancel = null;
			this._generation = 0;
			this._listeners = {};
		}

		addEventListener(type, cb) {
			(this._listeners[type] = this._listeners[type] || []).push(cb);
		}
		removeEventListener(type, cb) {
			const l = this._listeners[type] || [];
			const i = l.indexOf(cb);
			if (i >= 0) l.splice(i, 1);
		}
		_emit(type) {
			const ev = { type: type, target: this, currentTarget: this };
			const inline = this['on' + type];
			if (typeof inline === 'function') { try { inline.call(this, ev); } catch (e) {} }
			for (const cb of (this._listeners[type] || []).slice()) {
				try { cb.call(this, ev); } catch (e) {}
			}
		}
		_fireReadyStateChange() {
			if (typeof this.onreadystatechange === 'function') {
				try { this.onreadystatechange.call(this, { type: 'readystatechange', target: this }); } catch (e) {}
			}
			for (const cb of (this._listeners['readystatechange'] || []).slice()) {
				try { cb.call(this, { type: 'readystatechange', target: this }); } catch (e) {}
			}
		}
		_setReadyState(state) {
			if (state <= this.readyState && state !== 0) return; // forward-only within a lifecycle
			this.readyState = state;
			this._fireReadyStateChange();
		}

		// Monotonic readyState is per request lifecycle: re-opening a used
		// object resets all response state and starts a new lifecycle, so a
		// late callback from the previous send is discarded.
		open(method, url, async) {
			this._method = String(method || 'GET').toUpperCase();
			this._url = String(url);
			this._headers = {};
			this._responseHeaders = '';
			this._sent = false;
			this._aborted = false;
			this._cancel = null;
			this._generation++;
			this.status = 0;
			this.statusText = '';
			this.responseText = '';
			this.response = '';
			this.responseURL = '';
			this.readyState = 1;
			this._fireReadyStateChange();
		}

		setRequestHeader(name, value) {
			if (this.readyState !== 1) throw new Error('InvalidStateError: setRequestHeader');
			const key = String(name);
			const prev = this._headers[key];
			this._headers[key] = prev === undefined ? String(value) : prev + ', ' + String(value);
		}

		getResponseHeader(name) {
			const target = String(name).toLowerCase() + ': ';
			for (const line of this._responseHeaders.split('\r\n')) {
				if (line.toLowerCase().indexOf(target) === 0) return line.slice(target.length);
			}
			return null;
		}
		getAllResponseHeaders() { return this._responseHeaders; }

		abort() {
			if (this._cancel) {
				try { this._cancel(); } catch (e) {}
				this._cancel = null;
			}
			if (this._sent && this.readyState !== 4) {
				this._aborted = true;
				this.readyState = 4;
				this.status = 0;
				this._emit('abort');
				this._emit('loadend');
			}
		}

		send(body) {
			if (this.readyState !== 1 || this._sent) throw new Error('InvalidStateError: send');
			this._sent = true;
			this._emit('loadstart');

			const self = this;
			const gen = this._generation;
			this._cancel = __xhr_dispatch(this._method, this._url, this._headers,
				body === undefined || body === null ? null : String(body),
				this.timeout, function(outcome) {
					if (self._aborted || gen !== self._generation) return;
					self._cancel = null;

					if (outcome.Error) {
						self._setReadyState(4);
						self.status = 0;
						self._emit(outcome.TimedOut ? 'timeout' : 'error');
						self._emit('loadend');
						return;
					}

					self.status = outcome.Status;
					self.statusText = outcome.StatusText;
					self._responseHeaders = outcome.Headers;
					self.responseURL = outcome.FinalURL;
					self._setReadyState(2);
					self._setReadyState(3);
					self.responseText = outcome.Body;
					if (self.responseType === '' || self.responseType === 'text') {
						self.response = outcome.Body;
					} else if (self.responseType === 'json') {
						try { self.response = JSON.parse(outcome.Body); } catch (e) { self.response = null; }
					} else if (self.responseType === 'arraybuffer') {
						self.response = new TextEncoder().encode(outcome.Body).buffer;
					} else if (self.responseType === 'blob') {
						const ct = self.getResponseHeader('content-type') || '';
						self.response = new Blob([outcome.Body], { type: ct });
					} else {
						self.response = outcome.Body;
					}
					self._setReadyState(4);
					self._emit('load');
					self._emit('loadend');
				});
		}
	}

	XMLHttpRequest.UNSENT = 0;
	XMLHttpRequest.OPENED = 1;
	XMLHttpRequest.HEADERS_RECEIVED = 2;
	XMLHttpRequest.LOADING = 3;
	XMLHttpRequest.DONE = 4;

	globalThis.XMLHttpRequest = XMLHttpRequest;
})();
`
