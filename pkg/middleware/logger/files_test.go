package logger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Access-log lines carry only structured fields; the free-text message key is
// omitted from the encoder.
func TestNewLog_OmitsMessageKey(t *testing.T) {
	name := "encoder-check.log"
	path := filepath.Join("log", name)
	t.Cleanup(func() { _ = os.Remove(path) })

	l := NewLog(name)
	l.Info("should not appear as msg")
	_ = l.Sync()

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), `"msg"`)
	assert.Contains(t, string(raw), `"level"`)
}
