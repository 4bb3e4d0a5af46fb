// internal/browser/jsexec/shims_test.go
package jsexec

import (
	"testing"

	"github.com/dop251/goja"
	"github.com/dop251/goja_nodejs/eventloop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Pre-seeded globals must survive shim installation so a caller can swap in
// stricter replacements before any page script runs.
func TestInstallShimsPreservesPreSeededGlobals(t *testing.T) {
	loop := eventloop.NewEventLoop(eventloop.EnableConsole(false))
	loop.Start()
	defer loop.StopNoWait()

	done := make(chan error, 1)
	var ua, installed string
	loop.RunOnLoop(func(vm *goja.Runtime) {
		pre := vm.NewObject()
		_ = pre.Set("userAgent", "pre-seeded")
		_ = vm.GlobalObject().Set("navigator", pre)

		if err := installShims(vm, ShimOptions{UserAgent: "shim-agent"}); err != nil {
			done <- err
			return
		}
		v, err := vm.RunString(`navigator.userAgent`)
		if err != nil {
			done <- err
			return
		}
		ua = v.String()
		v, err = vm.RunString(`[typeof btoa, typeof performance.now, typeof screen].join(',')`)
		if err != nil {
			done <- err
			return
		}
		installed = v.String()
		done <- nil
	})
	require.NoError(t, <-done)

	assert.Equal(t, "pre-seeded", ua, "an existing navigator must not be replaced")
	assert.Equal(t, "function,function,object", installed, "absent globals are still installed")
}
