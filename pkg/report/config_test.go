package report

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_WithDefaults(t *testing.T) {
	defaults := DefaultConfig()

	got := Config{BackoffUnit: 0, SaveBackoff: -time.Second}.withDefaults()

	assert.Equal(t, defaults.Model, got.Model)
	assert.Equal(t, defaults.MaxAttempts, got.MaxAttempts)
	assert.Equal(t, defaults.SaveAttempts, got.SaveAttempts)
	assert.Equal(t, defaults.InterfaceMode, got.InterfaceMode)
	assert.Zero(t, got.BackoffUnit)
	assert.Equal(t, defaults.SaveBackoff, got.SaveBackoff)
}
