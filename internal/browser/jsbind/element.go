// internal/browser/jsbind/element.go
package jsbind

import (
	"fmt"
	"sort"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"go.uber.org/zap"
	"golang.org/x/net/html"
)

// wrapperProp is the hidden property carrying the Go wrapper so JS values can
// be unwrapped back into *Element.
const wrapperProp = "__go_node__"

// Element wraps a single *html.Node for the JS side. Wrappers are cached per
// node (identity map) so listeners and loader bookkeeping survive re-wrapping.
type Element struct {
	bridge *Bridge
	Node   *html.Node
	Object *goja.Object

	listeners map[string][]goja.Value
	styleObj  *goja.Object

	// loadHandled marks script elements the dynamic loader already scheduled,
	// so repeated insertions of the same element do not double-execute.
	// Touched on the event-loop goroutine only.
	loadHandled bool
}

// ScriptHandled reports whether the loader already claimed this element.
func (e *Element) ScriptHandled() bool { return e.loadHandled }

// MarkScriptHandled claims a script element for the loader.
func (e *Element) MarkScriptHandled() { e.loadHandled = true }

// SrcAttr returns the element's src attribute.
func (e *Element) SrcAttr() string { return e.attr("src") }

// TypeAttr returns the element's type attribute.
func (e *Element) TypeAttr() string { return e.attr("type") }

// Text returns the concatenated text content (script bodies).
func (e *Element) Text() string {
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	return htmlquery.InnerText(e.Node)
}

// wrapperFor returns the cached wrapper for a node, creating it on demand.
func (b *Bridge) wrapperFor(node *html.Node) *Element {
	if e, ok := b.wrappers[node]; ok {
		return e
	}
	e := &Element{bridge: b, Node: node, listeners: make(map[string][]goja.Value)}
	e.Object = b.vm.NewObject()
	b.wrappers[node] = e
	e.define()
	return e
}

// WrapNode converts an *html.Node into its JS object, nil becoming null.
func (b *Bridge) WrapNode(node *html.Node) goja.Value {
	if node == nil {
		return goja.Null()
	}
	return b.wrapperFor(node).Object
}

// wrapLocked is WrapNode for callers already holding b.mu.
func (b *Bridge) wrapLocked(node *html.Node) goja.Value {
	if node == nil {
		return goja.Null()
	}
	return b.wrapperFor(node).Object
}

// WrapNodeList converts nodes into a JS array (NodeList stand-in).
func (b *Bridge) WrapNodeList(nodes []*html.Node) goja.Value {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.wrapNodeListLocked(nodes)
}

func (b *Bridge) wrapNodeListLocked(nodes []*html.Node) goja.Value {
	wrapped := make([]interface{}, len(nodes))
	for i, n := range nodes {
		wrapped[i] = b.wrapLocked(n)
	}
	return b.vm.NewArray(wrapped...)
}

// defineAccessor installs a getter (and optional setter) property.
func (b *Bridge) defineAccessor(obj *goja.Object, name string, getter func() goja.Value, setter func(goja.Value)) {
	var g, s goja.Value = goja.Undefined(), goja.Undefined()
	if getter != nil {
		g = b.vm.ToValue(func(call goja.FunctionCall) goja.Value { return getter() })
	}
	if setter != nil {
		s = b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			setter(call.Argument(0))
			return goja.Undefined()
		})
	}
	if err := obj.DefineAccessorProperty(name, g, s, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		b.logger.Error("Failed to define accessor", zap.String("property", name), zap.Error(err))
	}
}

// define populates the wrapper object with the DOM surface for its node type.
func (e *Element) define() {
	b := e.bridge
	obj := e.Object

	_ = obj.Set(wrapperProp, e)
	_ = obj.Set("nodeType", e.nodeType())
	_ = obj.Set("nodeName", e.nodeName())

	b.defineAccessor(obj, "parentNode", func() goja.Value {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.wrapLocked(e.Node.Parent)
	}, nil)
	b.defineAccessor(obj, "parentElement", func() goja.Value {
		b.mu.RLock()
		defer b.mu.RUnlock()
		if p := e.Node.Parent; p != nil && p.Type == html.ElementNode {
			return b.wrapLocked(p)
		}
		return goja.Null()
	}, nil)
	b.defineAccessor(obj, "childNodes", func() goja.Value {
		b.mu.RLock()
		defer b.mu.RUnlock()
		var children []*html.Node
		for c := e.Node.FirstChild; c != nil; c = c.NextSibling {
			children = append(children, c)
		}
		return b.wrapNodeListLocked(children)
	}, nil)
	b.defineAccessor(obj, "children", func() goja.Value {
		b.mu.RLock()
		defer b.mu.RUnlock()
		var children []*html.Node
		for c := e.Node.FirstChild; c != nil; c = c.NextSibling {
			if c.Type == html.ElementNode {
				children = append(children, c)
			}
		}
		return b.wrapNodeListLocked(children)
	}, nil)
	b.defineAccessor(obj, "firstChild", func() goja.Value {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.wrapLocked(e.Node.FirstChild)
	}, nil)
	b.defineAccessor(obj, "lastChild", func() goja.Value {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.wrapLocked(e.Node.LastChild)
	}, nil)
	b.defineAccessor(obj, "nextSibling", func() goja.Value {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.wrapLocked(e.Node.NextSibling)
	}, nil)
	b.defineAccessor(obj, "previousSibling", func() goja.Value {
		b.mu.RLock()
		defer b.mu.RUnlock()
		return b.wrapLocked(e.Node.PrevSibling)
	}, nil)

	_ = obj.Set("appendChild", e.appendChild)
	_ = obj.Set("removeChild", e.removeChild)
	_ = obj.Set("insertBefore", e.insertBefore)
	_ = obj.Set("append", e.appendNodes)
	_ = obj.Set("prepend", e.prependNodes)
	_ = obj.Set("remove", e.removeSelf)
	_ = obj.Set("cloneNode", e.cloneNode)
	_ = obj.Set("contains", e.contains)

	registerEventTargetMethods(b, obj, e)

	switch e.Node.Type {
	case html.ElementNode:
		e.defineElement()
	case html.TextNode, html.CommentNode:
		b.defineAccessor(obj, "textContent", e.getNodeValue, e.setNodeValue)
		b.defineAccessor(obj, "nodeValue", e.getNodeValue, e.setNodeValue)
		b.defineAccessor(obj, "data", e.getNodeValue, e.setNodeValue)
	}
}

func (e *Element) defineElement() {
	b := e.bridge
	obj := e.Object

	_ = obj.Set("tagName", strings.ToUpper(e.Node.Data))

	b.defineAccessor(obj, "id", func() goja.Value { return b.vm.ToValue(e.attr("id")) },
		func(v goja.Value) { e.setAttr("id", v.String()) })
	b.defineAccessor(obj, "className", func() goja.Value { return b.vm.ToValue(e.attr("class")) },
		func(v goja.Value) { e.setAttr("class", v.String()) })

	b.defineAccessor(obj, "innerHTML", e.getInnerHTML, e.setInnerHTML)
	b.defineAccessor(obj, "outerHTML", e.getOuterHTML, nil)
	b.defineAccessor(obj, "textContent", e.getTextContent, e.setTextContent)
	b.defineAccessor(obj, "innerText", e.getTextContent, e.setTextContent)

	_ = obj.Set("getAttribute", e.getAttribute)
	_ = obj.Set("setAttribute", e.setAttribute)
	_ = obj.Set("removeAttribute", e.removeAttribute)
	_ = obj.Set("hasAttribute", e.hasAttribute)

	_ = obj.Set("querySelector", e.querySelector)
	_ = obj.Set("querySelectorAll", e.querySelectorAll)
	_ = obj.Set("getElementsByTagName", e.getElementsByTagName)
	_ = obj.Set("getElementsByClassName", e.getElementsByClassName)

	b.defineAccessor(obj, "style", e.getStyle, nil)
	b.defineAccessor(obj, "dataset", e.getDataset, nil)

	// src/type/text accessors. The src setter is one of the three dynamic
	// loader entry points; it applies to every element but only script
	// elements reach the observer.
	b.defineAccessor(obj, "src", func() goja.Value { return b.vm.ToValue(e.attr("src")) },
		func(v goja.Value) {
			e.setAttr("src", v.String())
			b.notifyScript(e, ReasonSrcProperty)
		})
	b.defineAccessor(obj, "type", func() goja.Value { return b.vm.ToValue(e.attr("type")) },
		func(v goja.Value) { e.setAttr("type", v.String()) })
	if e.Node.Data == "script" {
		b.defineAccessor(obj, "text", e.getTextContent, e.setTextContent)
		b.defineAccessor(obj, "async", func() goja.Value { return b.vm.ToValue(e.attr("async") != "") },
			func(v goja.Value) {})
		b.defineAccessor(obj, "defer", func() goja.Value { return b.vm.ToValue(e.attr("defer") != "") },
			func(v goja.Value) {})
	}
}

// -- node basics --

func (e *Element) nodeType() int {
	switch e.Node.Type {
	case html.ElementNode:
		return 1
	case html.TextNode:
		return 3
	case html.CommentNode:
		return 8
	case html.DocumentNode:
		return 9
	default:
		return 0
	}
}

func (e *Element) nodeName() string {
	switch e.Node.Type {
	case html.ElementNode:
		return strings.ToUpper(e.Node.Data)
	case html.TextNode:
		return "#text"
	case html.CommentNode:
		return "#comment"
	default:
		return ""
	}
}

func (e *Element) getNodeValue() goja.Value {
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	return e.bridge.vm.ToValue(e.Node.Data)
}

func (e *Element) setNodeValue(v goja.Value) {
	e.bridge.mu.Lock()
	defer e.bridge.mu.Unlock()
	e.Node.Data = v.String()
}

// -- attributes --

func (e *Element) attr(name string) string {
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	for _, a := range e.Node.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func (e *Element) setAttr(name, value string) {
	e.bridge.mu.Lock()
	defer e.bridge.mu.Unlock()
	for i, a := range e.Node.Attr {
		if a.Key == name {
			e.Node.Attr[i].Val = value
			return
		}
	}
	e.Node.Attr = append(e.Node.Attr, html.Attribute{Key: name, Val: value})
}

func (e *Element) getAttribute(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	for _, a := range e.Node.Attr {
		if a.Key == name {
			return e.bridge.vm.ToValue(a.Val)
		}
	}
	return goja.Null()
}

func (e *Element) setAttribute(call goja.FunctionCall) goja.Value {
	name := strings.ToLower(call.Argument(0).String())
	value := call.Argument(1).String()
	e.setAttr(name, value)
	if name == "src" {
		e.bridge.notifyScript(e, ReasonSetAttribute)
	}
	return goja.Undefined()
}

func (e *Element) removeAttribute(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	e.bridge.mu.Lock()
	defer e.bridge.mu.Unlock()
	for i, a := range e.Node.Attr {
		if a.Key == name {
			e.Node.Attr = append(e.Node.Attr[:i], e.Node.Attr[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

func (e *Element) hasAttribute(call goja.FunctionCall) goja.Value {
	name := call.Argument(0).String()
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	for _, a := range e.Node.Attr {
		if a.Key == name {
			return e.bridge.vm.ToValue(true)
		}
	}
	return e.bridge.vm.ToValue(false)
}

// -- content --

func (e *Element) getInnerHTML() goja.Value {
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	var sb strings.Builder
	for c := e.Node.FirstChild; c != nil; c = c.NextSibling {
		_ = html.Render(&sb, c)
	}
	return e.bridge.vm.ToValue(sb.String())
}

func (e *Element) setInnerHTML(v goja.Value) {
	fragment := v.String()
	nodes, err := html.ParseFragment(strings.NewReader(fragment), e.Node)
	if err != nil {
		panic(e.bridge.vm.NewGoError(fmt.Errorf("failed to parse HTML: %w", err)))
	}

	e.bridge.mu.Lock()
	for c := e.Node.FirstChild; c != nil; {
		next := c.NextSibling
		e.Node.RemoveChild(c)
		c = next
	}
	for _, n := range nodes {
		e.Node.AppendChild(n)
	}
	e.bridge.mu.Unlock()

	// Scripts inserted via innerHTML do not execute; this matches the
	// platform contract, so no observer notification here.
}

func (e *Element) getOuterHTML() goja.Value {
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	var sb strings.Builder
	if err := html.Render(&sb, e.Node); err != nil {
		return e.bridge.vm.ToValue("")
	}
	return e.bridge.vm.ToValue(sb.String())
}

func (e *Element) getTextContent() goja.Value {
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	return e.bridge.vm.ToValue(htmlquery.InnerText(e.Node))
}

func (e *Element) setTextContent(v goja.Value) {
	e.bridge.mu.Lock()
	defer e.bridge.mu.Unlock()
	for c := e.Node.FirstChild; c != nil; {
		next := c.NextSibling
		e.Node.RemoveChild(c)
		c = next
	}
	e.Node.AppendChild(&html.Node{Type: html.TextNode, Data: v.String()})
}

// -- tree manipulation --

func (e *Element) unwrap(val goja.Value, op string) *Element {
	child, err := e.bridge.unwrapElement(val)
	if err != nil {
		panic(e.bridge.vm.NewGoError(fmt.Errorf("%s: %w", op, err)))
	}
	return child
}

func (e *Element) appendChild(call goja.FunctionCall) goja.Value {
	childVal := call.Argument(0)
	child := e.unwrap(childVal, "appendChild")

	e.bridge.mu.Lock()
	if child.Node.Parent != nil {
		child.Node.Parent.RemoveChild(child.Node)
	}
	e.Node.AppendChild(child.Node)
	e.bridge.mu.Unlock()

	e.bridge.notifyInsertedScripts(child.Node)
	return childVal
}

func (e *Element) insertBefore(call goja.FunctionCall) goja.Value {
	childVal := call.Argument(0)
	child := e.unwrap(childVal, "insertBefore")

	var ref *html.Node
	if refVal := call.Argument(1); !goja.IsNull(refVal) && !goja.IsUndefined(refVal) {
		refWrapper := e.unwrap(refVal, "insertBefore")
		if refWrapper.Node.Parent != e.Node {
			panic(e.bridge.vm.NewGoError(&HierarchyError{Op: "insertBefore", Message: "reference node is not a child of this node"}))
		}
		ref = refWrapper.Node
	}

	e.bridge.mu.Lock()
	if child.Node.Parent != nil {
		child.Node.Parent.RemoveChild(child.Node)
	}
	e.Node.InsertBefore(child.Node, ref)
	e.bridge.mu.Unlock()

	e.bridge.notifyInsertedScripts(child.Node)
	return childVal
}

func (e *Element) removeChild(call goja.FunctionCall) goja.Value {
	childVal := call.Argument(0)
	child := e.unwrap(childVal, "removeChild")

	e.bridge.mu.Lock()
	defer e.bridge.mu.Unlock()
	if child.Node.Parent != e.Node {
		panic(e.bridge.vm.NewGoError(&HierarchyError{Op: "removeChild", Message: "node is not a child of this node"}))
	}
	e.Node.RemoveChild(child.Node)
	return childVal
}

// appendNodes implements append(...nodes): elements are moved, strings become
// text nodes.
func (e *Element) appendNodes(call goja.FunctionCall) goja.Value {
	for _, arg := range call.Arguments {
		node := e.coerceNode(arg)
		e.bridge.mu.Lock()
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
		e.Node.AppendChild(node)
		e.bridge.mu.Unlock()
		e.bridge.notifyInsertedScripts(node)
	}
	return goja.Undefined()
}

// prependNodes implements prepend(...nodes).
func (e *Element) prependNodes(call goja.FunctionCall) goja.Value {
	// Insert in argument order before the current first child.
	e.bridge.mu.RLock()
	ref := e.Node.FirstChild
	e.bridge.mu.RUnlock()

	for _, arg := range call.Arguments {
		node := e.coerceNode(arg)
		e.bridge.mu.Lock()
		if node.Parent != nil {
			node.Parent.RemoveChild(node)
		}
		e.Node.InsertBefore(node, ref)
		e.bridge.mu.Unlock()
		e.bridge.notifyInsertedScripts(node)
	}
	return goja.Undefined()
}

func (e *Element) coerceNode(arg goja.Value) *html.Node {
	if wrapper, err := e.bridge.unwrapElement(arg); err == nil {
		return wrapper.Node
	}
	return &html.Node{Type: html.TextNode, Data: arg.String()}
}

func (e *Element) removeSelf(call goja.FunctionCall) goja.Value {
	e.bridge.mu.Lock()
	defer e.bridge.mu.Unlock()
	if e.Node.Parent != nil {
		e.Node.Parent.RemoveChild(e.Node)
	}
	return goja.Undefined()
}

func (e *Element) cloneNode(call goja.FunctionCall) goja.Value {
	deep := call.Argument(0).ToBoolean()
	e.bridge.mu.RLock()
	clone := cloneHTMLNode(e.Node, deep)
	e.bridge.mu.RUnlock()
	return e.bridge.WrapNode(clone)
}

func (e *Element) contains(call goja.FunctionCall) goja.Value {
	other, err := e.bridge.unwrapElement(call.Argument(0))
	if err != nil {
		return e.bridge.vm.ToValue(false)
	}
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	for n := other.Node; n != nil; n = n.Parent {
		if n == e.Node {
			return e.bridge.vm.ToValue(true)
		}
	}
	return e.bridge.vm.ToValue(false)
}

func cloneHTMLNode(n *html.Node, deep bool) *html.Node {
	if n == nil {
		return nil
	}
	clone := &html.Node{
		Type:      n.Type,
		DataAtom:  n.DataAtom,
		Data:      n.Data,
		Namespace: n.Namespace,
		Attr:      make([]html.Attribute, len(n.Attr)),
	}
	copy(clone.Attr, n.Attr)
	if deep {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			clone.AppendChild(cloneHTMLNode(c, true))
		}
	}
	return clone
}

// -- scoped queries --

// scopedQuery anchors a translated selector to this element. Union branches
// (selector groups) each need their own anchor.
func (e *Element) scopedQuery(selector string) (string, error) {
	xpath := translateCSSToXPath(selector)
	branches := strings.Split(xpath, " | ")
	for i, br := range branches {
		if strings.HasPrefix(br, "/") {
			branches[i] = "." + br
		}
	}
	return strings.Join(branches, " | "), nil
}

func (e *Element) querySelector(call goja.FunctionCall) goja.Value {
	selector := call.Argument(0).String()
	xpath, _ := e.scopedQuery(selector)

	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	node, err := htmlquery.Query(e.Node, xpath)
	if err != nil {
		panic(e.bridge.vm.NewGoError(&InvalidSelectorError{Selector: selector}))
	}
	return e.bridge.wrapLocked(node)
}

func (e *Element) querySelectorAll(call goja.FunctionCall) goja.Value {
	selector := call.Argument(0).String()
	xpath, _ := e.scopedQuery(selector)

	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	nodes, err := htmlquery.QueryAll(e.Node, xpath)
	if err != nil {
		panic(e.bridge.vm.NewGoError(&InvalidSelectorError{Selector: selector}))
	}
	return e.bridge.wrapNodeListLocked(nodes)
}

func (e *Element) getElementsByTagName(call goja.FunctionCall) goja.Value {
	tag := strings.ToLower(call.Argument(0).String())
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	nodes, _ := htmlquery.QueryAll(e.Node, ".//"+tag)
	return e.bridge.wrapNodeListLocked(nodes)
}

func (e *Element) getElementsByClassName(call goja.FunctionCall) goja.Value {
	class := call.Argument(0).String()
	if strings.Contains(class, "'") {
		return e.bridge.vm.NewArray()
	}
	xpath := fmt.Sprintf(".//*[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]", class)
	e.bridge.mu.RLock()
	defer e.bridge.mu.RUnlock()
	nodes, _ := htmlquery.QueryAll(e.Node, xpath)
	return e.bridge.wrapNodeListLocked(nodes)
}

// -- style & dataset --

// getStyle returns the element's live style object. Property reads parse the
// inline style attribute and property writes render back to it, so
// `el.style.display = 'none'` survives into the serialized document.
func (e *Element) getStyle() goja.Value {
	if e.styleObj == nil {
		e.styleObj = e.bridge.vm.NewDynamicObject(&styleDecl{el: e})
	}
	return e.styleObj
}

// styleDecl is a goja.DynamicObject view over the style attribute. Both
// camelCase and kebab-case property names resolve to the same declaration.
type styleDecl struct {
	el *Element
}

func (s *styleDecl) Get(key string) goja.Value {
	b := s.el.bridge
	switch key {
	case "cssText":
		return b.vm.ToValue(s.el.attr("style"))
	case "getPropertyValue":
		return b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			name := strings.ToLower(strings.TrimSpace(call.Argument(0).String()))
			current := parseInlineStyle(s.el.attr("style"))
			if v, ok := current[name]; ok {
				return b.vm.ToValue(v)
			}
			return b.vm.ToValue("")
		})
	case "setProperty":
		return b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			name := strings.ToLower(strings.TrimSpace(call.Argument(0).String()))
			s.el.setStyleProperty(name, strings.TrimSpace(call.Argument(1).String()))
			return goja.Undefined()
		})
	case "removeProperty":
		return b.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			name := strings.ToLower(strings.TrimSpace(call.Argument(0).String()))
			return b.vm.ToValue(s.el.removeStyleProperty(name))
		})
	}
	name := kebabCase(key)
	if v, ok := parseInlineStyle(s.el.attr("style"))[name]; ok {
		return b.vm.ToValue(v)
	}
	return nil
}

func (s *styleDecl) Set(key string, val goja.Value) bool {
	if key == "cssText" {
		s.el.setAttr("style", val.String())
		return true
	}
	s.el.setStyleProperty(kebabCase(key), strings.TrimSpace(val.String()))
	return true
}

func (s *styleDecl) Has(key string) bool {
	switch key {
	case "cssText", "getPropertyValue", "setProperty", "removeProperty":
		return true
	}
	_, ok := parseInlineStyle(s.el.attr("style"))[kebabCase(key)]
	return ok
}

func (s *styleDecl) Delete(key string) bool {
	s.el.removeStyleProperty(kebabCase(key))
	return true
}

func (s *styleDecl) Keys() []string {
	decls := parseInlineStyle(s.el.attr("style"))
	keys := make([]string, 0, len(decls))
	for name := range decls {
		keys = append(keys, name)
	}
	sort.Strings(keys)
	return keys
}

func (e *Element) setStyleProperty(name, value string) {
	if name == "" {
		return
	}
	current := parseInlineStyle(e.attr("style"))
	if value == "" {
		delete(current, name)
	} else {
		current[name] = value
	}
	e.setAttr("style", renderInlineStyle(current))
}

func (e *Element) removeStyleProperty(name string) string {
	current := parseInlineStyle(e.attr("style"))
	old := current[name]
	delete(current, name)
	e.setAttr("style", renderInlineStyle(current))
	return old
}

func (e *Element) getDataset() goja.Value {
	b := e.bridge
	dataset := b.vm.NewObject()
	e.bridge.mu.RLock()
	attrs := make([]html.Attribute, len(e.Node.Attr))
	copy(attrs, e.Node.Attr)
	e.bridge.mu.RUnlock()
	for _, a := range attrs {
		if strings.HasPrefix(a.Key, "data-") {
			_ = dataset.Set(camelCase(strings.TrimPrefix(a.Key, "data-")), a.Val)
		}
	}
	return dataset
}

// parseInlineStyle splits "a: b; c: d" into a declaration map.
func parseInlineStyle(s string) map[string]string {
	decls := make(map[string]string)
	for _, part := range strings.Split(s, ";") {
		name, value, ok := strings.Cut(part, ":")
		if !ok {
			continue
		}
		name = strings.ToLower(strings.TrimSpace(name))
		value = strings.TrimSpace(value)
		if name != "" && value != "" {
			decls[name] = value
		}
	}
	return decls
}

func renderInlineStyle(decls map[string]string) string {
	parts := make([]string, 0, len(decls))
	for name, value := range decls {
		parts = append(parts, name+": "+value)
	}
	// Deterministic output keeps snapshots stable.
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

// kebabCase turns "marginTop" into "margin-top"; already-kebab names pass
// through.
func kebabCase(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if r >= 'A' && r <= 'Z' {
			sb.WriteByte('-')
			sb.WriteRune(r + ('a' - 'A'))
		} else {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// camelCase turns "margin-top" into "marginTop".
func camelCase(name string) string {
	parts := strings.Split(name, "-")
	if len(parts) == 1 {
		return name
	}
	var sb strings.Builder
	sb.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		sb.WriteString(strings.ToUpper(p[:1]))
		sb.WriteString(p[1:])
	}
	return sb.String()
}

// unwrapElement recovers the Go wrapper from a JS value.
func (b *Bridge) unwrapElement(val goja.Value) (*Element, error) {
	if val == nil || goja.IsNull(val) || goja.IsUndefined(val) {
		return nil, fmt.Errorf("node is null or undefined")
	}
	obj := val.ToObject(b.vm)
	if obj == nil {
		return nil, fmt.Errorf("value is not an object")
	}
	wrapperVal := obj.Get(wrapperProp)
	if wrapperVal == nil || goja.IsUndefined(wrapperVal) {
		return nil, fmt.Errorf("value is not a DOM node wrapper")
	}
	if e, ok := wrapperVal.Export().(*Element); ok {
		return e, nil
	}
	return nil, fmt.Errorf("wrapper does not hold a DOM node")
}
