package identity

import (
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestZerologAdapter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(zerolog.New(&buf))

	logger.Debug("debug %s", "detail")
	logger.Info("info %d", 42)
	logger.Error("error: %s", "boom")

	out := buf.String()
	assert.Contains(t, out, `"level":"debug"`)
	assert.Contains(t, out, "debug detail")
	assert.Contains(t, out, `"level":"info"`)
	assert.Contains(t, out, "info 42")
	assert.Contains(t, out, `"level":"error"`)
	assert.Contains(t, out, "error: boom")
}

func TestZerologAdapterRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerologAdapter(zerolog.New(&buf).Level(zerolog.ErrorLevel))

	logger.Debug("hidden")
	logger.Info("hidden")
	assert.Empty(t, buf.String())

	logger.Error("visible")
	assert.Contains(t, buf.String(), "visible")
}
