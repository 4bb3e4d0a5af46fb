// internal/browser/jsexec/shims.go
package jsexec

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"time"

	"github.com/dop251/goja"
	nodeurl "github.com/dop251/goja_nodejs/url"
	"github.com/google/uuid"
)

// ShimOptions selects the flavor of the browser environment.
type ShimOptions struct {
	// UserAgent reported by navigator.userAgent; matches the one the network
	// client sends so pages see a consistent identity.
	UserAgent string
	// Permissive swaps the throwing socket constructors (WebSocket,
	// EventSource, Worker, ...) for inert stubs.
	Permissive bool
}

// installShims populates the global scope with the browser surface scripts
// expect beyond the DOM itself. Every install is skipped when the global is
// already present, so a caller can pre-seed stricter replacements. Must run
// on the event-loop goroutine, after the bridge has installed window/document.
func installShims(vm *goja.Runtime, opts ShimOptions) error {
	nodeurl.Enable(vm)

	if globalAbsent(vm, "navigator") {
		if err := installNavigator(vm, opts.UserAgent); err != nil {
			return err
		}
	}
	if globalAbsent(vm, "screen") {
		if err := installScreen(vm); err != nil {
			return err
		}
	}
	if globalAbsent(vm, "btoa") {
		if err := installBase64(vm); err != nil {
			return err
		}
	}
	if globalAbsent(vm, "crypto") {
		if err := installCrypto(vm); err != nil {
			return err
		}
	}
	if globalAbsent(vm, "performance") {
		if err := installPerformance(vm); err != nil {
			return err
		}
	}

	blocks := []struct {
		name string
		src  string
	}{
		{"events", eventShimJS},
		{"cssom", cssomShimJS},
		{"observers", observerShimJS},
		{"textcodec", textCodecShimJS},
		{"blob", blobShimJS},
		{"misc", miscShimJS},
		{"abort", abortShimJS},
	}
	if opts.Permissive {
		blocks = append(blocks, struct{ name, src string }{"sockets", socketStubShimJS})
	} else {
		blocks = append(blocks, struct{ name, src string }{"sockets", socketDenyShimJS})
	}

	for _, blk := range blocks {
		if _, err := vm.RunScript(blk.name+"-shim.js", blk.src); err != nil {
			return fmt.Errorf("evaluating %s shim: %w", blk.name, err)
		}
	}
	return nil
}

func globalAbsent(vm *goja.Runtime, name string) bool {
	v := vm.GlobalObject().Get(name)
	return v == nil || goja.IsUndefined(v)
}

// installFetchShim layers fetch on the XHR dispatcher; called after XHR is in
// place because the polyfill constructs XMLHttpRequest.
func installFetchShim(vm *goja.Runtime) error {
	if _, err := vm.RunScript("fetch-shim.js", fetchShimJS); err != nil {
		return fmt.Errorf("evaluating fetch shim: %w", err)
	}
	return nil
}

func installNavigator(vm *goja.Runtime, userAgent string) error {
	nav := vm.NewObject()
	_ = nav.Set("userAgent", userAgent)
	_ = nav.Set("appName", "Netscape")
	_ = nav.Set("appVersion", userAgent)
	_ = nav.Set("platform", "Linux x86_64")
	_ = nav.Set("language", "en-US")
	_ = nav.Set("languages", []string{"en-US", "en"})
	_ = nav.Set("onLine", true)
	_ = nav.Set("cookieEnabled", true)
	_ = nav.Set("hardwareConcurrency", 4)
	_ = nav.Set("maxTouchPoints", 0)
	_ = nav.Set("webdriver", false)
	_ = nav.Set("doNotTrack", goja.Null())
	_ = nav.Set("sendBeacon", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(false)
	})
	_ = nav.Set("javaEnabled", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(false)
	})
	return vm.GlobalObject().Set("navigator", nav)
}

func installScreen(vm *goja.Runtime) error {
	screen := vm.NewObject()
	_ = screen.Set("width", 1920)
	_ = screen.Set("height", 1080)
	_ = screen.Set("availWidth", 1920)
	_ = screen.Set("availHeight", 1040)
	_ = screen.Set("colorDepth", 24)
	_ = screen.Set("pixelDepth", 24)

	global := vm.GlobalObject()
	if err := global.Set("screen", screen); err != nil {
		return err
	}
	_ = global.Set("devicePixelRatio", 1)
	_ = global.Set("innerWidth", 1920)
	_ = global.Set("innerHeight", 1040)
	_ = global.Set("outerWidth", 1920)
	_ = global.Set("outerHeight", 1080)
	_ = global.Set("scrollX", 0)
	_ = global.Set("scrollY", 0)
	_ = global.Set("pageXOffset", 0)
	_ = global.Set("pageYOffset", 0)
	_ = global.Set("scrollTo", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = global.Set("scrollBy", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = global.Set("alert", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = global.Set("confirm", func(call goja.FunctionCall) goja.Value { return vm.ToValue(false) })
	_ = global.Set("prompt", func(call goja.FunctionCall) goja.Value { return goja.Null() })
	_ = global.Set("open", func(call goja.FunctionCall) goja.Value { return goja.Null() })
	_ = global.Set("close", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = global.Set("focus", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = global.Set("blur", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	return nil
}

// installBase64 provides atob/btoa over latin-1 "binary strings".
func installBase64(vm *goja.Runtime) error {
	global := vm.GlobalObject()

	if err := global.Set("btoa", func(call goja.FunctionCall) goja.Value {
		s := call.Argument(0).String()
		raw := make([]byte, 0, len(s))
		for _, r := range s {
			if r > 0xFF {
				panic(vm.NewTypeError("btoa: character out of latin-1 range"))
			}
			raw = append(raw, byte(r))
		}
		return vm.ToValue(base64.StdEncoding.EncodeToString(raw))
	}); err != nil {
		return err
	}

	return global.Set("atob", func(call goja.FunctionCall) goja.Value {
		decoded, err := base64.StdEncoding.DecodeString(call.Argument(0).String())
		if err != nil {
			panic(vm.NewTypeError("atob: invalid base64 input"))
		}
		runes := make([]rune, len(decoded))
		for i, b := range decoded {
			runes[i] = rune(b)
		}
		return vm.ToValue(string(runes))
	})
}

// installCrypto backs getRandomValues with crypto/rand and randomUUID with
// the uuid package.
func installCrypto(vm *goja.Runtime) error {
	cryptoObj := vm.NewObject()

	_ = cryptoObj.Set("getRandomValues", func(call goja.FunctionCall) goja.Value {
		arg := call.Argument(0)
		obj := arg.ToObject(vm)
		if obj == nil {
			panic(vm.NewTypeError("getRandomValues requires a typed array"))
		}
		buf, ok := obj.Export().([]byte)
		if !ok {
			// Fall back to element-wise fill for non-Uint8Array views.
			length := int(obj.Get("length").ToInteger())
			randBytes := make([]byte, length)
			if _, err := rand.Read(randBytes); err != nil {
				panic(vm.NewGoError(err))
			}
			for i := 0; i < length; i++ {
				_ = obj.Set(fmt.Sprintf("%d", i), randBytes[i])
			}
			return arg
		}
		if _, err := rand.Read(buf); err != nil {
			panic(vm.NewGoError(err))
		}
		return arg
	})

	_ = cryptoObj.Set("randomUUID", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(uuid.NewString())
	})

	return vm.GlobalObject().Set("crypto", cryptoObj)
}

// installPerformance provides a monotonic performance.now anchored at sandbox
// construction.
func installPerformance(vm *goja.Runtime) error {
	origin := time.Now()
	perf := vm.NewObject()
	_ = perf.Set("now", func(call goja.FunctionCall) goja.Value {
		return vm.ToValue(float64(time.Since(origin).Microseconds()) / 1000.0)
	})
	_ = perf.Set("timeOrigin", float64(origin.UnixMilli()))
	_ = perf.Set("mark", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = perf.Set("measure", func(call goja.FunctionCall) goja.Value { return goja.Undefined() })
	_ = perf.Set("getEntries", func(call goja.FunctionCall) goja.Value { return vm.NewArray() })
	_ = perf.Set("getEntriesByType", func(call goja.FunctionCall) goja.Value { return vm.NewArray() })
	_ = perf.Set("getEntriesByName", func(call goja.FunctionCall) goja.Value { return vm.NewArray() })
	return vm.GlobalObject().Set("performance", perf)
}
