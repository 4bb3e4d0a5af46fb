// internal/browser/jsbind/bridge_test.go
package jsbind

import (
	"net/url"
	"strings"
	"testing"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/net/html"
)

func newTestBridge(t *testing.T, page string) (*Bridge, *goja.Runtime) {
	t.Helper()
	vm := goja.New()
	b := NewBridge(vm, nil)

	doc, err := html.Parse(strings.NewReader(page))
	require.NoError(t, err)

	base, err := url.Parse("https://example.com/app/index.html")
	require.NoError(t, err)

	b.SetDocument(doc, base)
	return b, vm
}

func runJS(t *testing.T, vm *goja.Runtime, src string) goja.Value {
	t.Helper()
	v, err := vm.RunString(src)
	require.NoError(t, err)
	return v
}

func TestBridge_WindowAliasesGlobal(t *testing.T) {
	_, vm := newTestBridge(t, `<html><body></body></html>`)

	v := runJS(t, vm, `window === globalThis && self === window && top === window && parent === window`)
	assert.True(t, v.ToBoolean())

	v = runJS(t, vm, `window.document === document`)
	assert.True(t, v.ToBoolean())
}

func TestBridge_DocumentQueries(t *testing.T) {
	page := `<html><head><title>Hi</title></head><body>
		<div id="main" class="box active"><p class="box">text</p></div>
	</body></html>`
	_, vm := newTestBridge(t, page)

	assert.Equal(t, "Hi", runJS(t, vm, `document.title`).String())
	assert.Equal(t, "DIV", runJS(t, vm, `document.getElementById('main').tagName`).String())
	assert.Equal(t, int64(2), runJS(t, vm, `document.querySelectorAll('.box').length`).ToInteger())
	assert.Equal(t, "P", runJS(t, vm, `document.querySelector('#main p').tagName`).String())
	assert.Equal(t, int64(1), runJS(t, vm, `document.getElementsByClassName('active').length`).ToInteger())
	assert.True(t, runJS(t, vm, `document.querySelector('#nope') === null`).ToBoolean())
	assert.Equal(t, "BODY", runJS(t, vm, `document.body.tagName`).String())
	assert.Equal(t, "HTML", runJS(t, vm, `document.documentElement.tagName`).String())
}

func TestBridge_IdentityMap(t *testing.T) {
	_, vm := newTestBridge(t, `<html><body><div id="a"></div></body></html>`)

	v := runJS(t, vm, `document.getElementById('a') === document.querySelector('div')`)
	assert.True(t, v.ToBoolean(), "re-wrapping the same node must return the same object")
}

func TestBridge_LocationObject(t *testing.T) {
	_, vm := newTestBridge(t, `<html></html>`)

	assert.Equal(t, "https://example.com/app/index.html", runJS(t, vm, `location.href`).String())
	assert.Equal(t, "example.com", runJS(t, vm, `location.hostname`).String())
	assert.Equal(t, "https:", runJS(t, vm, `location.protocol`).String())
	assert.Equal(t, "/app/index.html", runJS(t, vm, `location.pathname`).String())
	assert.Equal(t, "https://example.com", runJS(t, vm, `location.origin`).String())
	assert.Equal(t, "https://example.com/app/index.html", runJS(t, vm, `document.URL`).String())
}

func TestBridge_CookieAccumulator(t *testing.T) {
	_, vm := newTestBridge(t, `<html></html>`)

	runJS(t, vm, `document.cookie = "a=1"`)
	runJS(t, vm, `document.cookie = "b=2; path=/; Secure"`)
	runJS(t, vm, `document.cookie = "a=3"`)
	runJS(t, vm, `document.cookie = "garbage-without-equals"`)

	// Append-only, attributes stripped, no per-key dedup.
	assert.Equal(t, "a=1; b=2; a=3", runJS(t, vm, `document.cookie`).String())
}

func TestBridge_DOMMutationAndSerialize(t *testing.T) {
	b, vm := newTestBridge(t, `<html><body><div id="root"></div></body></html>`)

	runJS(t, vm, `
		const el = document.createElement('span');
		el.textContent = 'hello';
		el.setAttribute('class', 'greeting');
		document.getElementById('root').appendChild(el);
	`)

	out, err := b.Serialize()
	require.NoError(t, err)
	assert.Contains(t, out, `<span class="greeting">hello</span>`)
}

func TestBridge_InnerHTML(t *testing.T) {
	b, vm := newTestBridge(t, `<html><body><div id="root"><b>old</b></div></body></html>`)

	runJS(t, vm, `document.getElementById('root').innerHTML = '<em>new</em> text'`)

	assert.Equal(t, `<em>new</em> text`, runJS(t, vm, `document.getElementById('root').innerHTML`).String())
	out, err := b.Serialize()
	require.NoError(t, err)
	assert.NotContains(t, out, "old")
}

func TestBridge_ScriptObserver(t *testing.T) {
	b, vm := newTestBridge(t, `<html><head></head><body></body></html>`)

	type notification struct {
		src    string
		reason ScriptInsertReason
	}
	var got []notification
	b.SetScriptObserver(func(el *Element, reason ScriptInsertReason) {
		got = append(got, notification{src: el.SrcAttr(), reason: reason})
	})

	runJS(t, vm, `
		const s = document.createElement('script');
		s.src = '/dynamic.js';                 // src property
		document.head.appendChild(s);          // insertion

		const s2 = document.createElement('script');
		s2.setAttribute('src', '/attr.js');    // setAttribute
	`)

	require.Len(t, got, 3)
	assert.Equal(t, ReasonSrcProperty, got[0].reason)
	assert.Equal(t, "/dynamic.js", got[0].src)
	assert.Equal(t, ReasonInserted, got[1].reason)
	assert.Equal(t, ReasonSetAttribute, got[2].reason)
	assert.Equal(t, "/attr.js", got[2].src)
}

func TestBridge_ObserverSeesSubtreeScripts(t *testing.T) {
	b, vm := newTestBridge(t, `<html><body></body></html>`)

	var srcs []string
	b.SetScriptObserver(func(el *Element, reason ScriptInsertReason) {
		srcs = append(srcs, el.SrcAttr())
	})

	runJS(t, vm, `
		const wrap = document.createElement('div');
		const s1 = document.createElement('script');
		const s2 = document.createElement('script');
		wrap.appendChild(s1);
		wrap.appendChild(s2);
	`)
	// Scripts appended to a detached div notify once on each appendChild.
	require.Len(t, srcs, 2)
	srcs = srcs[:0]

	runJS(t, vm, `document.body.appendChild(wrap)`)
	// Inserting the wrapper reports both contained scripts in document order.
	assert.Len(t, srcs, 2)
}

func TestBridge_ObserverIgnoresNonScript(t *testing.T) {
	b, vm := newTestBridge(t, `<html><body></body></html>`)

	calls := 0
	b.SetScriptObserver(func(el *Element, reason ScriptInsertReason) { calls++ })

	runJS(t, vm, `
		const img = document.createElement('img');
		img.src = '/pic.png';
		document.body.appendChild(img);
	`)
	assert.Zero(t, calls)
}

func TestBridge_EventListeners(t *testing.T) {
	_, vm := newTestBridge(t, `<html><body><div id="a"></div></body></html>`)

	v := runJS(t, vm, `
		let fired = [];
		const el = document.getElementById('a');
		const h = e => fired.push('listener:' + e.type);
		el.onclick = e => fired.push('inline');
		el.addEventListener('click', h);
		el.dispatchEvent({type: 'click'});
		el.removeEventListener('click', h);
		el.dispatchEvent({type: 'click'});
		fired.join(',');
	`)
	assert.Equal(t, "inline,listener:click,inline", v.String())
}

func TestElement_EmitEvent(t *testing.T) {
	b, vm := newTestBridge(t, `<html><body><script id="s"></script></body></html>`)

	runJS(t, vm, `
		loaded = false;
		const s = document.getElementById('s');
		s.onload = () => { loaded = true; };
	`)

	node := b.findOne(`//*[@id='s']`)
	require.NotNil(t, node)
	b.wrapperFor(node).EmitEvent("load")

	assert.True(t, runJS(t, vm, `loaded`).ToBoolean())
}

func TestElement_TreeOps(t *testing.T) {
	_, vm := newTestBridge(t, `<html><body><ul id="l"><li id="x">x</li></ul></body></html>`)

	runJS(t, vm, `
		const l = document.getElementById('l');
		const li = document.createElement('li');
		li.textContent = 'y';
		l.insertBefore(li, document.getElementById('x'));
	`)
	assert.Equal(t, "yx", runJS(t, vm, `document.getElementById('l').textContent`).String())

	runJS(t, vm, `document.getElementById('x').remove()`)
	assert.Equal(t, "y", runJS(t, vm, `document.getElementById('l').textContent`).String())

	// removeChild with a foreign node throws.
	_, err := vm.RunString(`document.body.removeChild(document.createElement('div'))`)
	assert.Error(t, err)
}

func TestElement_CloneNode(t *testing.T) {
	_, vm := newTestBridge(t, `<html><body><div id="o" class="c"><span>inner</span></div></body></html>`)

	assert.Equal(t, "", runJS(t, vm, `document.getElementById('o').cloneNode(false).textContent`).String())
	v := runJS(t, vm, `
		const deep = document.getElementById('o').cloneNode(true);
		deep.className + ':' + deep.textContent;
	`)
	assert.Equal(t, "c:inner", v.String())
}

func TestElement_StyleAndDataset(t *testing.T) {
	_, vm := newTestBridge(t, `<html><body>
		<div id="d" style="color: red; margin-top: 4px" data-user-id="42"></div>
	</body></html>`)

	assert.Equal(t, "red", runJS(t, vm, `document.getElementById('d').style.color`).String())
	assert.Equal(t, "4px", runJS(t, vm, `document.getElementById('d').style.marginTop`).String())
	assert.Equal(t, "red", runJS(t, vm, `document.getElementById('d').style.getPropertyValue('color')`).String())
	assert.Equal(t, "42", runJS(t, vm, `document.getElementById('d').dataset.userId`).String())

	runJS(t, vm, `document.getElementById('d').style.setProperty('display', 'none')`)
	assert.Equal(t, "none", runJS(t, vm, `document.getElementById('d').style.getPropertyValue('display')`).String())
}

func TestElement_StyleAssignmentWritesThrough(t *testing.T) {
	b, vm := newTestBridge(t, `<html><body>
		<div id="x" style="color: red"></div>
	</body></html>`)

	runJS(t, vm, `document.getElementById('x').style.display = 'none'`)
	runJS(t, vm, `document.getElementById('x').style.backgroundColor = 'blue'`)

	// Property assignment must reach the attribute, not a throwaway copy.
	assert.Equal(t, "none", runJS(t, vm, `document.getElementById('x').style.getPropertyValue('display')`).String())
	assert.Equal(t, "blue", runJS(t, vm, `document.getElementById('x').style.backgroundColor`).String())

	html, err := b.Serialize()
	require.NoError(t, err)
	assert.Contains(t, html, "display: none")
	assert.Contains(t, html, "background-color: blue")
	assert.Contains(t, html, "color: red")

	runJS(t, vm, `document.getElementById('x').style.removeProperty('color')`)
	html, err = b.Serialize()
	require.NoError(t, err)
	assert.NotContains(t, html, "color: red")

	runJS(t, vm, `document.getElementById('x').style.cssText = 'margin: 1px'`)
	assert.Equal(t, "margin: 1px", runJS(t, vm, `document.getElementById('x').getAttribute('style')`).String())
}

func TestBridge_NodeListIsArray(t *testing.T) {
	_, vm := newTestBridge(t, `<html><body><p>a</p><p>b</p></body></html>`)

	assert.True(t, runJS(t, vm, `Array.isArray(document.querySelectorAll('p'))`).ToBoolean())
	v := runJS(t, vm, `document.querySelectorAll('p').map(n => n.textContent).join(',')`)
	assert.Equal(t, "a,b", v.String())
}

func TestTranslateCSSToXPath(t *testing.T) {
	cases := map[string]string{
		"*":            "//*",
		"div":          "//div",
		"#main":        "//*[@id='main']",
		".box":         "//*[contains(concat(' ', normalize-space(@class), ' '), ' box ')]",
		"div#a.b":      "//div[@id='a' and contains(concat(' ', normalize-space(@class), ' '), ' b ')]",
		"ul li":        "//ul//li",
		"a[href]":      "//a[@href]",
		`a[rel="next"]`: "//a[@rel='next']",
		"//pass/through": "//pass/through",
	}
	for css, want := range cases {
		assert.Equal(t, want, translateCSSToXPath(css), "selector %q", css)
	}
	assert.Equal(t, "//a | //b", translateCSSToXPath("a, b"))
}

func TestBridge_ResolveURL(t *testing.T) {
	b, _ := newTestBridge(t, `<html></html>`)

	u, err := b.ResolveURL("../lib.js")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/lib.js", u.String())

	u, err = b.ResolveURL("https://cdn.other.net/x.js")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.other.net/x.js", u.String())
}
