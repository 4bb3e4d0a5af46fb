// internal/browser/jsbind/document.go
package jsbind

import (
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"github.com/dop251/goja"
	"golang.org/x/net/html"
)

// newDocumentObject builds the document global. Relationship properties
// (body, head, documentElement) are live accessors so they track the tree
// loaded via SetDocument.
func (b *Bridge) newDocumentObject() *goja.Object {
	doc := b.vm.NewObject()

	_ = doc.Set("nodeType", 9)
	_ = doc.Set("nodeName", "#document")
	_ = doc.Set("readyState", "complete")

	_ = doc.Set("querySelector", b.docQuerySelector)
	_ = doc.Set("querySelectorAll", b.docQuerySelectorAll)
	_ = doc.Set("getElementById", b.docGetElementById)
	_ = doc.Set("getElementsByTagName", b.docGetElementsByTagName)
	_ = doc.Set("getElementsByClassName", b.docGetElementsByClassName)
	_ = doc.Set("createElement", b.docCreateElement)
	_ = doc.Set("createTextNode", b.docCreateTextNode)
	_ = doc.Set("createComment", b.docCreateComment)

	// Documents are event targets too; scripts commonly register
	// DOMContentLoaded/readystatechange listeners that never fire here.
	registerEventTargetMethods(b, doc, nil)

	b.defineAccessor(doc, "body", func() goja.Value {
		return b.WrapNode(b.findOne("//body"))
	}, nil)
	b.defineAccessor(doc, "head", func() goja.Value {
		return b.WrapNode(b.findOne("//head"))
	}, nil)
	b.defineAccessor(doc, "documentElement", func() goja.Value {
		return b.WrapNode(b.findOne("/html"))
	}, nil)
	b.defineAccessor(doc, "title", func() goja.Value {
		if n := b.findOne("//title"); n != nil {
			return b.vm.ToValue(htmlquery.InnerText(n))
		}
		return b.vm.ToValue("")
	}, nil)

	// The cookie accumulator: assignments append "name=value", the getter
	// joins with "; ".
	b.defineAccessor(doc, "cookie", func() goja.Value {
		return b.vm.ToValue(b.CookieHeader())
	}, func(v goja.Value) {
		b.AppendCookie(v.String())
	})

	return doc
}

func (b *Bridge) docQuerySelector(call goja.FunctionCall) goja.Value {
	selector := call.Argument(0).String()
	xpath := translateCSSToXPath(selector)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.doc == nil {
		return goja.Null()
	}
	node, err := htmlquery.Query(b.doc, xpath)
	if err != nil {
		panic(b.vm.NewGoError(&InvalidSelectorError{Selector: selector}))
	}
	return b.wrapLocked(node)
}

func (b *Bridge) docQuerySelectorAll(call goja.FunctionCall) goja.Value {
	selector := call.Argument(0).String()
	xpath := translateCSSToXPath(selector)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.doc == nil {
		return b.vm.NewArray()
	}
	nodes, err := htmlquery.QueryAll(b.doc, xpath)
	if err != nil {
		panic(b.vm.NewGoError(&InvalidSelectorError{Selector: selector}))
	}
	return b.wrapNodeListLocked(nodes)
}

func (b *Bridge) docGetElementById(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).String()
	if strings.Contains(id, "'") {
		return goja.Null()
	}
	node := b.findOne(fmt.Sprintf("//*[@id='%s']", id))
	return b.WrapNode(node)
}

func (b *Bridge) docGetElementsByTagName(call goja.FunctionCall) goja.Value {
	tag := strings.ToLower(call.Argument(0).String())

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.doc == nil {
		return b.vm.NewArray()
	}
	nodes, _ := htmlquery.QueryAll(b.doc, "//"+tag)
	return b.wrapNodeListLocked(nodes)
}

func (b *Bridge) docGetElementsByClassName(call goja.FunctionCall) goja.Value {
	class := call.Argument(0).String()
	if strings.Contains(class, "'") {
		return b.vm.NewArray()
	}
	xpath := fmt.Sprintf("//*[contains(concat(' ', normalize-space(@class), ' '), ' %s ')]", class)

	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.doc == nil {
		return b.vm.NewArray()
	}
	nodes, _ := htmlquery.QueryAll(b.doc, xpath)
	return b.wrapNodeListLocked(nodes)
}

// docCreateElement builds a detached element. Script elements created here
// are already hooked: assigning .src (property or attribute) reaches the
// script observer even before insertion.
func (b *Bridge) docCreateElement(call goja.FunctionCall) goja.Value {
	tag := strings.ToLower(strings.TrimSpace(call.Argument(0).String()))
	if tag == "" {
		panic(b.vm.NewTypeError("createElement requires a tag name"))
	}
	node := &html.Node{Type: html.ElementNode, Data: tag}
	return b.WrapNode(node)
}

func (b *Bridge) docCreateTextNode(call goja.FunctionCall) goja.Value {
	node := &html.Node{Type: html.TextNode, Data: call.Argument(0).String()}
	return b.WrapNode(node)
}

func (b *Bridge) docCreateComment(call goja.FunctionCall) goja.Value {
	node := &html.Node{Type: html.CommentNode, Data: call.Argument(0).String()}
	return b.WrapNode(node)
}
