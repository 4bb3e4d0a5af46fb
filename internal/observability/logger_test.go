// internal/observability/logger_test.go
package observability

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zapcore"

	"github.com/Anonyfox/magpie-html-sub001/internal/config"
)

// syncBuffer adapts bytes.Buffer to zapcore.WriteSyncer.
type syncBuffer struct{ bytes.Buffer }

func (s *syncBuffer) Sync() error { return nil }

func TestGet_BeforeInitializeReturnsNop(t *testing.T) {
	// Must not panic and must be usable.
	log := Get()
	assert.NotNil(t, log)
	log.Info("noop")
}

func TestInitialize_WritesToConsoleSink(t *testing.T) {
	buf := &syncBuffer{}
	Initialize(config.LoggerConfig{Level: "debug", Format: "json"}, zapcore.Lock(buf))

	Get().Info("hello from test")
	Sync()

	assert.Contains(t, buf.String(), "hello from test")

	// Initialization is one-shot; a second call must not replace the sink.
	Initialize(config.LoggerConfig{Level: "error"}, zapcore.Lock(&syncBuffer{}))
	Get().Info("still here")
	Sync()
	assert.Contains(t, buf.String(), "still here")
}
