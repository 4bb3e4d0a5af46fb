// internal/browser/jsexec/shims_polyfills.go
package jsexec

// JS polyfills evaluated once at sandbox construction. Each block guards on
// its own global so page scripts that bring their own polyfills win.

// eventShimJS provides Event/CustomEvent constructors plus the small event
// subclasses pages construct directly.
const eventShimJS = `
(function() {
	if (typeof globalThis.Event === 'function') return;

	class Event {
		constructor(type, init) {
			init = init || {};
			this.type = String(type);
			this.bubbles = !!init.bubbles;
			this.cancelable = !!init.cancelable;
			this.composed = !!init.composed;
			this.defaultPrevented = false;
			this.target = null;
			this.currentTarget = null;
			this.timeStamp = Date.now();
		}
		preventDefault() { if (this.cancelable) this.defaultPrevented = true; }
		stopPropagation() {}
		stopImmediatePropagation() {}
	}

	class CustomEvent extends Event {
		constructor(type, init) {
			super(type, init);
			this.detail = (init && init.detail) !== undefined ? init.detail : null;
		}
	}

	class PopStateEvent extends Event {
		constructor(type, init) {
			super(type, init);
			this.state = (init && init.state) !== undefined ? init.state : null;
		}
	}

	class HashChangeEvent extends Event {
		constructor(type, init) {
			super(type, init);
			this.oldURL = (init && init.oldURL) || '';
			this.newURL = (init && init.newURL) || '';
		}
	}

	class ErrorEvent extends Event {
		constructor(type, init) {
			super(type, init);
			init = init || {};
			this.message = init.message || '';
			this.filename = init.filename || '';
			this.lineno = init.lineno || 0;
			this.colno = init.colno || 0;
			this.error = init.error;
		}
	}

	class ProgressEvent extends Event {
		constructor(type, init) {
			super(type, init);
			init = init || {};
			this.lengthComputable = !!init.lengthComputable;
			this.loaded = init.loaded || 0;
			this.total = init.total || 0;
		}
	}

	globalThis.Event = Event;
	globalThis.CustomEvent = CustomEvent;
	globalThis.PopStateEvent = PopStateEvent;
	globalThis.HashChangeEvent = HashChangeEvent;
	globalThis.ErrorEvent = ErrorEvent;
	globalThis.ProgressEvent = ProgressEvent;
})();
`

// cssomShimJS fakes the read side of CSSOM. getComputedStyle returns a Proxy
// that answers any property with '' and getPropertyValue with ''.
const cssomShimJS = `
(function() {
	if (typeof globalThis.getComputedStyle === 'function') return;

	globalThis.getComputedStyle = function(el) {
		const inline = (el && el.style) || {};
		return new Proxy({}, {
			get(_, prop) {
				if (prop === 'getPropertyValue') {
					return function(name) {
						return (inline.getPropertyValue && inline.getPropertyValue(name)) || '';
					};
				}
				if (typeof prop === 'string' && inline[prop] !== undefined) return inline[prop];
				return '';
			},
			has() { return true; }
		});
	};

	// matchMedia never matches, but listener registration is real: both the
	// legacy addListener form and addEventListener('change', ...) register,
	// and dispatchEvent invokes them plus onchange.
	globalThis.matchMedia = globalThis.matchMedia || function(query) {
		const listeners = [];
		return {
			matches: false,
			media: String(query),
			onchange: null,
			addListener(cb) { if (typeof cb === 'function') listeners.push(cb); },
			removeListener(cb) {
				const i = listeners.indexOf(cb);
				if (i >= 0) listeners.splice(i, 1);
			},
			addEventListener(type, cb) {
				if (type === 'change' && typeof cb === 'function') listeners.push(cb);
			},
			removeEventListener(type, cb) {
				if (type !== 'change') return;
				const i = listeners.indexOf(cb);
				if (i >= 0) listeners.splice(i, 1);
			},
			dispatchEvent(ev) {
				if (typeof this.onchange === 'function') { try { this.onchange(ev); } catch (e) {} }
				for (const cb of listeners.slice()) { try { cb(ev); } catch (e) {} }
				return true;
			}
		};
	};
})();
`

// observerShimJS installs inert observer classes: callbacks never fire, but
// construction, observe and disconnect behave.
const observerShimJS = `
(function() {
	function inertObserver(name) {
		if (typeof globalThis[name] === 'function') return;
		globalThis[name] = class {
			constructor(callback) { this._cb = callback; }
			observe() {}
			unobserve() {}
			disconnect() {}
			takeRecords() { return []; }
		};
	}
	inertObserver('MutationObserver');
	inertObserver('IntersectionObserver');
	inertObserver('ResizeObserver');
	inertObserver('PerformanceObserver');
	if (globalThis.PerformanceObserver) {
		globalThis.PerformanceObserver.supportedEntryTypes = [];
	}
})();
`

// textCodecShimJS provides TextEncoder/TextDecoder for UTF-8 only.
const textCodecShimJS = `
(function() {
	if (typeof globalThis.TextEncoder === 'function') return;

	globalThis.TextEncoder = class {
		get encoding() { return 'utf-8'; }
		encode(str) {
			str = String(str === undefined ? '' : str);
			const escaped = unescape(encodeURIComponent(str));
			const bytes = new Uint8Array(escaped.length);
			for (let i = 0; i < escaped.length; i++) bytes[i] = escaped.charCodeAt(i);
			return bytes;
		}
	};

	globalThis.TextDecoder = class {
		constructor(label) {
			const enc = (label || 'utf-8').toLowerCase();
			if (enc !== 'utf-8' && enc !== 'utf8') {
				throw new RangeError('unsupported encoding: ' + label);
			}
		}
		get encoding() { return 'utf-8'; }
		decode(input) {
			if (input === undefined) return '';
			const bytes = input instanceof Uint8Array ? input : new Uint8Array(input.buffer || input);
			let escaped = '';
			for (let i = 0; i < bytes.length; i++) escaped += String.fromCharCode(bytes[i]);
			try { return decodeURIComponent(escape(escaped)); } catch (e) { return escaped; }
		}
	};
})();
`

// miscShimJS covers the small globals pages poke at unconditionally.
const miscShimJS = `
(function() {
	globalThis.queueMicrotask = globalThis.queueMicrotask || function(cb) {
		Promise.resolve().then(cb);
	};

	globalThis.requestAnimationFrame = globalThis.requestAnimationFrame || function(cb) {
		return setTimeout(function() { cb(Date.now()); }, 16);
	};
	globalThis.cancelAnimationFrame = globalThis.cancelAnimationFrame || function(id) {
		clearTimeout(id);
	};

	globalThis.requestIdleCallback = globalThis.requestIdleCallback || function(cb) {
		return setTimeout(function() {
			cb({ didTimeout: false, timeRemaining: function() { return 50; } });
		}, 1);
	};
	globalThis.cancelIdleCallback = globalThis.cancelIdleCallback || function(id) {
		clearTimeout(id);
	};

	globalThis.structuredClone = globalThis.structuredClone || function(value) {
		if (value === undefined) return undefined;
		return JSON.parse(JSON.stringify(value));
	};

	globalThis.history = globalThis.history || {
		length: 1,
		state: null,
		pushState(state) { this.state = state; },
		replaceState(state) { this.state = state; },
		back() {}, forward() {}, go() {}
	};

	// Storage: per-run, in-memory only.
	function memoryStorage() {
		const data = new Map();
		return {
			get length() { return data.size; },
			key(i) { return Array.from(data.keys())[i] !== undefined ? Array.from(data.keys())[i] : null; },
			getItem(k) { return data.has(String(k)) ? data.get(String(k)) : null; },
			setItem(k, v) { data.set(String(k), String(v)); },
			removeItem(k) { data.delete(String(k)); },
			clear() { data.clear(); }
		};
	}
	globalThis.localStorage = globalThis.localStorage || memoryStorage();
	globalThis.sessionStorage = globalThis.sessionStorage || memoryStorage();
})();
`

// blobShimJS provides string-backed Blob and FormData. Enough for scripts
// that construct them and read back text; no streaming.
const blobShimJS = `
(function() {
	if (typeof globalThis.Blob !== 'function') {
		globalThis.Blob = class {
			constructor(parts, opts) {
				this._data = (parts || []).map(function(p) {
					if (p instanceof globalThis.Blob) return p._data;
					return String(p);
				}).join('');
				this.type = (opts && opts.type) || '';
			}
			get size() { return new TextEncoder().encode(this._data).length; }
			text() { return Promise.resolve(this._data); }
			arrayBuffer() { return Promise.resolve(new TextEncoder().encode(this._data).buffer); }
			slice(start, end, type) {
				return new globalThis.Blob([this._data.slice(start, end)], { type: type || this.type });
			}
		};
	}

	if (typeof globalThis.FormData !== 'function') {
		globalThis.FormData = class {
			constructor() { this._entries = []; }
			append(name, value) { this._entries.push([String(name), value]); }
			set(name, value) {
				this.delete(name);
				this._entries.push([String(name), value]);
			}
			get(name) {
				for (const [k, v] of this._entries) if (k === String(name)) return v;
				return null;
			}
			getAll(name) {
				return this._entries.filter(([k]) => k === String(name)).map(([, v]) => v);
			}
			has(name) { return this.get(name) !== null; }
			delete(name) { this._entries = this._entries.filter(([k]) => k !== String(name)); }
			forEach(cb) { for (const [k, v] of this._entries) cb(v, k, this); }
			entries() { return this._entries[Symbol.iterator](); }
			keys() { return this._entries.map(([k]) => k)[Symbol.iterator](); }
			values() { return this._entries.map(([, v]) => v)[Symbol.iterator](); }
			[Symbol.iterator]() { return this._entries[Symbol.iterator](); }
		};
	}
})();
`

// fetchShimJS layers fetch/Headers/Response on top of XMLHttpRequest so both
// APIs share one Go dispatch path and one pending-work counter.
const fetchShimJS = `
(function() {
	if (typeof globalThis.fetch === 'function') return;

	class Headers {
		constructor(init) {
			this._map = new Map();
			if (init) {
				if (init instanceof Headers) {
					init.forEach((v, k) => this._map.set(k, v));
				} else if (Array.isArray(init)) {
					for (const [k, v] of init) this._map.set(String(k).toLowerCase(), String(v));
				} else {
					for (const k of Object.keys(init)) this._map.set(k.toLowerCase(), String(init[k]));
				}
			}
		}
		get(name) { const v = this._map.get(String(name).toLowerCase()); return v === undefined ? null : v; }
		has(name) { return this._map.has(String(name).toLowerCase()); }
		set(name, value) { this._map.set(String(name).toLowerCase(), String(value)); }
		append(name, value) {
			const key = String(name).toLowerCase();
			const prev = this._map.get(key);
			this._map.set(key, prev === undefined ? String(value) : prev + ', ' + String(value));
		}
		delete(name) { this._map.delete(String(name).toLowerCase()); }
		forEach(cb) { this._map.forEach((v, k) => cb(v, k, this)); }
		entries() { return this._map.entries(); }
		keys() { return this._map.keys(); }
		[Symbol.iterator]() { return this._map.entries(); }
	}

	class Response {
		constructor(body, init) {
			init = init || {};
			this._body = body === undefined || body === null ? '' : String(body);
			this.status = init.status !== undefined ? init.status : 200;
			this.statusText = init.statusText || '';
			this.headers = init.headers instanceof Headers ? init.headers : new Headers(init.headers);
			this.url = init.url || '';
			this.ok = this.status >= 200 && this.status < 300;
			this.bodyUsed = false;
		}
		text() { this.bodyUsed = true; return Promise.resolve(this._body); }
		json() { this.bodyUsed = true; return Promise.resolve().then(() => JSON.parse(this._body)); }
		arrayBuffer() {
			this.bodyUsed = true;
			const bytes = new TextEncoder().encode(this._body);
			return Promise.resolve(bytes.buffer);
		}
		clone() {
			return new Response(this._body, {
				status: this.status, statusText: this.statusText,
				headers: this.headers, url: this.url
			});
		}
	}

	globalThis.Headers = globalThis.Headers || Headers;
	globalThis.Response = globalThis.Response || Response;

	globalThis.fetch = function(input, init) {
		init = init || {};
		const url = typeof input === 'string' ? input : (input && input.url) || String(input);
		const method = (init.method || (input && input.method) || 'GET').toUpperCase();

		return new Promise(function(resolve, reject) {
			const xhr = new XMLHttpRequest();
			xhr.open(method, url);

			const headers = new Headers(init.headers || (input && input.headers));
			headers.forEach(function(value, name) { xhr.setRequestHeader(name, value); });

			if (init.signal) {
				if (init.signal.aborted) {
					reject(new Error('The operation was aborted'));
					return;
				}
				init.signal.addEventListener && init.signal.addEventListener('abort', function() { xhr.abort(); });
			}

			xhr.onload = function() {
				const respHeaders = new Headers();
				const raw = xhr.getAllResponseHeaders();
				raw.split('\r\n').forEach(function(line) {
					const idx = line.indexOf(':');
					if (idx > 0) respHeaders.append(line.slice(0, idx).trim(), line.slice(idx + 1).trim());
				});
				resolve(new Response(xhr.responseText, {
					status: xhr.status,
					statusText: xhr.statusText,
					headers: respHeaders,
					url: xhr.responseURL || url
				}));
			};
			xhr.onerror = function() { reject(new TypeError('fetch failed: ' + url)); };
			xhr.onabort = function() { reject(new Error('The operation was aborted')); };
			xhr.ontimeout = function() { reject(new TypeError('fetch timeout: ' + url)); };

			xhr.send(init.body !== undefined && init.body !== null ? String(init.body) : null);
		});
	};
})();
`

// abortShimJS provides AbortController/AbortSignal used by fetch callers.
const abortShimJS = `
(function() {
	if (typeof globalThis.AbortController === 'function') return;

	class AbortSignal {
		constructor() {
			this.aborted = false;
			this.reason = undefined;
			this.onabort = null;
			this._listeners = [];
		}
		addEventListener(type, cb) { if (type === 'abort') this._listeners.push(cb); }
		removeEventListener(type, cb) {
			if (type !== 'abort') return;
			const i = this._listeners.indexOf(cb);
			if (i >= 0) this._listeners.splice(i, 1);
		}
		_fire() {
			const ev = new Event('abort');
			ev.target = this;
			if (typeof this.onabort === 'function') this.onabort(ev);
			for (const cb of this._listeners.slice()) cb(ev);
		}
		throwIfAborted() { if (this.aborted) throw this.reason; }
	}

	class AbortController {
		constructor() { this.signal = new AbortSignal(); }
		abort(reason) {
			if (this.signal.aborted) return;
			this.signal.aborted = true;
			this.signal.reason = reason !== undefined ? reason : new Error('AbortError');
			this.signal._fire();
		}
	}

	globalThis.AbortSignal = AbortSignal;
	globalThis.AbortController = AbortController;
})();
`

// socketDenyShimJS makes live-connection APIs fail loudly. Scripts that need
// a real socket should fail fast rather than hang waiting for one.
const socketDenyShimJS = `
(function() {
	function deny(name) {
		globalThis[name] = function() {
			throw new Error(name + ' is not available in this environment');
		};
	}
	deny('WebSocket');
	deny('EventSource');
	deny('Worker');
	deny('SharedWorker');
	deny('BroadcastChannel');
})();
`

// socketStubShimJS is the permissive alternative: constructors succeed and
// return inert objects that never connect and never emit events.
const socketStubShimJS = `
(function() {
	function inert(name, extra) {
		globalThis[name] = function(url) {
			const o = {
				url: String(url || ''),
				readyState: 0,
				onopen: null, onmessage: null, onerror: null, onclose: null,
				addEventListener() {}, removeEventListener() {},
				dispatchEvent() { return false; },
				close() { this.readyState = 3; },
				send() {}
			};
			if (extra) extra(o);
			return o;
		};
	}
	inert('WebSocket', function(o) { o.binaryType = 'blob'; o.bufferedAmount = 0; });
	inert('EventSource', function(o) { o.withCredentials = false; });
	inert('Worker', function(o) { o.postMessage = function() {}; o.terminate = function() {}; });
	inert('SharedWorker', function(o) { o.port = { postMessage() {}, start() {}, close() {} }; });
	inert('BroadcastChannel', function(o) { o.postMessage = function() {}; });
})();
`
