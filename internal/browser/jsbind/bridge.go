// internal/browser/jsbind/bridge.go
package jsbind

import (
	"fmt"
	"net/url"
	"strings"
	"sync"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// ScriptInsertReason tells the observer which DOM entry point surfaced a
// script element.
type ScriptInsertReason string

const (
	ReasonInserted     ScriptInsertReason = "inserted"      // appendChild/insertBefore/append/prepend
	ReasonSetAttribute ScriptInsertReason = "set-attribute" // setAttribute("src", ...)
	ReasonSrcProperty  ScriptInsertReason = "src-property"  // element.src = ...
)

// ScriptObserver receives script elements as they pass through DOM mutation
// entry points. This is the explicit observer registration replacing
// prototype patching: the loader subscribes here instead of monkey-patching
// appendChild and friends.
type ScriptObserver func(el *Element, reason ScriptInsertReason)

// Bridge connects a goja runtime to a Go DOM built on x/net/html. It owns the
// document tree, an identity map of element wrappers (so listeners and
// expando state survive re-wrapping), the per-run cookie accumulator, and the
// script-insertion observer hook.
type Bridge struct {
	vm     *goja.Runtime
	logger *zap.Logger

	// mu guards the tree and cookie state. Scripts run on the event-loop
	// goroutine; the snapshot and idle-wait paths read from outside it.
	mu      sync.RWMutex
	doc     *html.Node
	baseURL *url.URL
	cookies []string

	wrappers map[*html.Node]*Element
	observer ScriptObserver

	document *goja.Object
}

// NewBridge initializes the bridge and installs window/document globals.
func NewBridge(vm *goja.Runtime, logger *zap.Logger) *Bridge {
	if logger == nil {
		logger = zap.NewNop()
	}
	b := &Bridge{
		vm:       vm,
		logger:   logger.Named("dom_bridge"),
		wrappers: make(map[*html.Node]*Element),
	}
	b.initializeRuntime()
	return b
}

// initializeRuntime exposes the global browser scope. The window object IS
// the global object, so bare references (document, navigator, ...) and
// window-qualified ones resolve identically.
func (b *Bridge) initializeRuntime() {
	global := b.vm.GlobalObject()
	for _, alias := range []string{"window", "self", "top", "parent", "globalThis"} {
		if err := global.Set(alias, global); err != nil {
			b.logger.Error("Failed to alias global object", zap.String("alias", alias), zap.Error(err))
		}
	}

	b.document = b.newDocumentObject()
	if err := global.Set("document", b.document); err != nil {
		b.logger.Error("Failed to set 'document' global", zap.Error(err))
	}
}

// SetDocument installs the tree the sandbox mutates and fixes the base URL
// used to resolve script sources and the location object.
func (b *Bridge) SetDocument(doc *html.Node, base *url.URL) {
	b.mu.Lock()
	b.doc = doc
	b.baseURL = base
	b.mu.Unlock()

	b.installLocation(base)
}

// SetScriptObserver registers the dynamic-load hook. Only one observer is
// supported; the loader owns it for the lifetime of a run.
func (b *Bridge) SetScriptObserver(fn ScriptObserver) {
	b.observer = fn
}

func (b *Bridge) notifyScript(el *Element, reason ScriptInsertReason) {
	if b.observer != nil && el.Node.Type == html.ElementNode && el.Node.Data == "script" {
		b.observer(el, reason)
	}
}

// notifyInsertedScripts walks a just-inserted subtree and reports every
// script element it contains, in document order.
func (b *Bridge) notifyInsertedScripts(root *html.Node) {
	if b.observer == nil {
		return
	}
	var scripts []*html.Node
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "script" {
			scripts = append(scripts, n)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	for _, s := range scripts {
		b.observer(b.wrapperFor(s), ReasonInserted)
	}
}

// BaseURL returns the resolution root for relative references.
func (b *Bridge) BaseURL() *url.URL {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.baseURL
}

// ResolveURL resolves a reference against the document base.
func (b *Bridge) ResolveURL(ref string) (*url.URL, error) {
	base := b.BaseURL()
	if base == nil {
		return url.Parse(ref)
	}
	return base.Parse(ref)
}

// Serialize renders the current tree back to an HTML string. This is the
// snapshot the engine returns; it is safe to call from outside the loop.
func (b *Bridge) Serialize() (string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.doc == nil {
		return "", fmt.Errorf("no document loaded")
	}
	var sb strings.Builder
	if err := html.Render(&sb, b.doc); err != nil {
		return "", fmt.Errorf("serializing document: %w", err)
	}
	return sb.String(), nil
}

// AppendCookie implements the document.cookie accumulator contract: the part
// of the assignment before the first ';' (the name=value pair) is appended to
// an ordered list. No expiry, no scoping, no per-key deduplication.
func (b *Bridge) AppendCookie(assignment string) {
	pair := assignment
	if i := strings.IndexByte(pair, ';'); i >= 0 {
		pair = pair[:i]
	}
	pair = strings.TrimSpace(pair)
	if pair == "" || !strings.Contains(pair, "=") {
		return
	}
	b.mu.Lock()
	b.cookies = append(b.cookies, pair)
	b.mu.Unlock()
}

// CookieHeader returns the accumulated pairs joined with "; ".
func (b *Bridge) CookieHeader() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return strings.Join(b.cookies, "; ")
}

// installLocation publishes a minimal Location built from the document URL.
func (b *Bridge) installLocation(u *url.URL) {
	loc := b.vm.NewObject()
	if u != nil {
		origin := u.Scheme + "://" + u.Host
		_ = loc.Set("href", u.String())
		_ = loc.Set("protocol", u.Scheme+":")
		_ = loc.Set("host", u.Host)
		_ = loc.Set("hostname", u.Hostname())
		_ = loc.Set("port", u.Port())
		_ = loc.Set("pathname", u.Path)
		_ = loc.Set("search", searchComponent(u))
		_ = loc.Set("hash", hashComponent(u))
		_ = loc.Set("origin", origin)
	}
	_ = loc.Set("assign", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = loc.Set("replace", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = loc.Set("reload", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = loc.Set("toString", func(call goja.FunctionCall) goja.Value {
		return loc.Get("href")
	})

	_ = b.vm.GlobalObject().Set("location", loc)
	_ = b.document.Set("location", loc)
	if u != nil {
		_ = b.document.Set("URL", u.String())
		_ = b.document.Set("baseURI", u.String())
	}
}

func searchComponent(u *url.URL) string {
	if u.RawQuery == "" {
		return ""
	}
	return "?" + u.RawQuery
}

func hashComponent(u *url.URL) string {
	if u.Fragment == "" {
		return ""
	}
	return "#" + u.Fragment
}

// root returns the current tree under the read lock.
func (b *Bridge) root() *html.Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.doc
}

// findOne runs an XPath query against the document.
func (b *Bridge) findOne(xpath string) *html.Node {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.doc == nil {
		return nil
	}
	return htmlquery.FindOne(b.doc, xpath)
}
