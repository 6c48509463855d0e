package logging

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func newBufferedLogger(level Level) (Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(zapcore.AddSync(&buf), level), &buf
}

func TestLoggerEmitsJSONWithLevelAndMessage(t *testing.T) {
	logger, buf := newBufferedLogger(InfoLevel)
	logger.Info("hello", String("peerId", "abc"))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "hello", entry["msg"])
	assert.Equal(t, "abc", entry["peerId"])
}

func TestSetLevelFiltersBelowThreshold(t *testing.T) {
	logger, buf := newBufferedLogger(WarnLevel)
	logger.Info("suppressed")
	assert.Empty(t, buf.String())

	logger.SetLevel(DebugLevel)
	logger.Info("visible")
	assert.NotEmpty(t, buf.String())
}

func TestNamedAddsComponentTag(t *testing.T) {
	logger, buf := newBufferedLogger(InfoLevel)
	tagged := logger.Named("Overlay-UDP")
	tagged.Info("listening")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Overlay-UDP", entry["logger"])
}

func TestWithFieldsAttachesToEveryEntry(t *testing.T) {
	logger, buf := newBufferedLogger(InfoLevel)
	withPeer := logger.WithFields(String("peerId", "xyz"))
	withPeer.Info("one")
	withPeer.Info("two")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 2)
	for _, line := range lines {
		var entry map[string]any
		require.NoError(t, json.Unmarshal(line, &entry))
		assert.Equal(t, "xyz", entry["peerId"])
	}
}
