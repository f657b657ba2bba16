package logging

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewJSONHandler(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "info", Format: "json", Output: buf})
	logger.Info("hello", "key", "value")

	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"key":"value"`)
}

func TestNewTextHandlerRespectsLevel(t *testing.T) {
	buf := &bytes.Buffer{}
	logger := New(Config{Level: "warn", Format: "text", Output: buf})
	logger.Info("should be suppressed")
	logger.Warn("should appear")

	assert.NotContains(t, buf.String(), "should be suppressed")
	assert.Contains(t, buf.String(), "should appear")
}

func TestOrNopNeverReturnsNil(t *testing.T) {
	assert.NotNil(t, OrNop(nil))
	buf := &bytes.Buffer{}
	l := New(Config{Output: buf})
	assert.Same(t, l, OrNop(l))
}
