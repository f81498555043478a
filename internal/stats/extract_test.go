package stats

import (
	"testing"
	"time"

	"headless-trader/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractor_Extract(t *testing.T) {
	// Arrange
	e, err := NewExtractor(config.DefaultTradePattern)
	require.NoError(t, err)
	text := "2024-01-15 14:23:00.123\tINFO\texecutor\ttrade verified: Bought UP $1.00\n" +
		"2024-01-15 14:23:05.000\tINFO\tengine\tNo tier fired\n" +
		"2024-13-45 99:99:99.000\tINFO\texecutor\ttrade verified: Bought DOWN $2.00\n" +
		`{"level":"info","ts":"2024-01-15 15:00:01.000","logger":"executor","msg":"trade verified: Bought DOWN $2.00"}` + "\n"

	// Act
	got := e.Extract(text)

	// Assert
	require.Len(t, got, 2)
	assert.Equal(t, time.Date(2024, 1, 15, 14, 23, 0, 0, time.Local), got[0])
	assert.Equal(t, 15, got[1].Hour())
}

func TestNewExtractor_Errors(t *testing.T) {
	_, err := NewExtractor(`(`)
	assert.Error(t, err)

	_, err = NewExtractor(`trade verified`)
	assert.Error(t, err)
}
