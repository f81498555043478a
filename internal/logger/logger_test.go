package logger

import (
	"os"
	"path/filepath"
	"regexp"
	"testing"

	"headless-trader/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewLogger_InvalidLevel(t *testing.T) {
	_, err := NewLogger(config.Logger{Level: "loud", Format: "console"})
	assert.Error(t, err)
}

func TestNewLogger_WritesFileWithLayout(t *testing.T) {
	// Arrange
	path := filepath.Join(t.TempDir(), "trader.log")
	log, err := NewLogger(config.Logger{Level: "info", Format: "console", File: path, MaxSizeMB: 1})
	require.NoError(t, err)

	// Act
	log.Info("trade verified: Bought UP $1.00")
	_ = log.Sync()

	// Assert
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2} \d{2}:\d{2}:\d{2}\.\d{3}`), string(b))
	assert.Contains(t, string(b), "trade verified: Bought UP $1.00")
}
