// internal/browser/jsbind/events.go
package jsbind

import (
	"strings"

	"github.com/dop251/goja"
	"go.uber.org/zap"
)

// registerEventTargetMethods installs addEventListener/removeEventListener/
// dispatchEvent on a target object. For element wrappers the listener table
// lives on the *Element (so it survives re-wrapping); for the document and
// window a fresh table is closed over.
func registerEventTargetMethods(b *Bridge, obj *goja.Object, el *Element) {
	var table map[string][]goja.Value
	if el != nil {
		table = el.listeners
	} else {
		table = make(map[string][]goja.Value)
	}

	_ = obj.Set("addEventListener", func(call goja.FunctionCall) goja.Value {
		evType := strings.ToLower(call.Argument(0).String())
		handler := call.Argument(1)
		if _, ok := goja.AssertFunction(handler); !ok {
			return goja.Undefined()
		}
		table[evType] = append(table[evType], handler)
		return goja.Undefined()
	})

	_ = obj.Set("removeEventListener", func(call goja.FunctionCall) goja.Value {
		evType := strings.ToLower(call.Argument(0).String())
		handler := call.Argument(1)
		listeners := table[evType]
		for i, l := range listeners {
			if l.SameAs(handler) || l.StrictEquals(handler) {
				table[evType] = append(listeners[:i], listeners[i+1:]...)
				break
			}
		}
		return goja.Undefined()
	})

	_ = obj.Set("dispatchEvent", func(call goja.FunctionCall) goja.Value {
		event := call.Argument(0)
		evObj := event.ToObject(b.vm)
		if evObj == nil {
			panic(b.vm.NewTypeError("dispatchEvent requires an Event"))
		}
		evType := ""
		if t := evObj.Get("type"); t != nil && !goja.IsUndefined(t) {
			evType = strings.ToLower(t.String())
		}
		_ = evObj.Set("target", obj)
		_ = evObj.Set("currentTarget", obj)
		b.invokeListeners(obj, table, evType, event)
		return b.vm.ToValue(true)
	})
}

// invokeListeners calls the inline on<type> handler (if any) and then every
// registered listener. Listener exceptions are swallowed and logged, matching
// how browsers isolate handler failures from each other.
func (b *Bridge) invokeListeners(target *goja.Object, table map[string][]goja.Value, evType string, event goja.Value) {
	if evType == "" {
		return
	}

	if inline := target.Get("on" + evType); inline != nil {
		if fn, ok := goja.AssertFunction(inline); ok {
			if _, err := fn(target, event); err != nil {
				b.logger.Debug("Inline event handler threw",
					zap.String("event", evType), zap.Error(err))
			}
		}
	}

	// Copy first: a listener may mutate the table.
	listeners := make([]goja.Value, len(table[evType]))
	copy(listeners, table[evType])
	for _, l := range listeners {
		fn, ok := goja.AssertFunction(l)
		if !ok {
			continue
		}
		if _, err := fn(target, event); err != nil {
			b.logger.Debug("Event listener threw",
				zap.String("event", evType), zap.Error(err))
		}
	}
}

// newEvent builds a minimal Event object for Go-side dispatch.
func (b *Bridge) newEvent(evType string, target *goja.Object) *goja.Object {
	ev := b.vm.NewObject()
	_ = ev.Set("type", evType)
	_ = ev.Set("target", target)
	_ = ev.Set("currentTarget", target)
	_ = ev.Set("bubbles", false)
	_ = ev.Set("cancelable", false)
	_ = ev.Set("defaultPrevented", false)
	_ = ev.Set("preventDefault", func(call goja.FunctionCall) goja.Value {
		_ = ev.Set("defaultPrevented", true)
		return goja.Undefined()
	})
	_ = ev.Set("stopPropagation", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = ev.Set("stopImmediatePropagation", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	return ev
}

// EmitEvent fires an event on an element from Go (the loader's load/error
// notifications). Must run on the event-loop goroutine.
func (e *Element) EmitEvent(evType string) {
	evType = strings.ToLower(evType)
	ev := e.bridge.newEvent(evType, e.Object)
	e.bridge.invokeListeners(e.Object, e.listeners, evType, ev)
}
