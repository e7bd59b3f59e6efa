package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintNextRun(t *testing.T) {
	ict, err := time.LoadLocation("Asia/Ho_Chi_Minh")
	require.NoError(t, err)

	now := time.Date(2026, 10, 16, 6, 0, 0, 0, ict)

	var out bytes.Buffer
	require.NoError(t, printNextRun(&out, config.Default(), now))

	assert.Equal(t, "2026-10-16T07:30:00+07:00 (in 1h30m0s)\n", out.String())
}

func TestPrintNextRun_Disabled(t *testing.T) {
	cfg := config.Default()
	cfg.Scheduler.Enabled = false

	var out bytes.Buffer
	require.NoError(t, printNextRun(&out, cfg, time.Now()))

	assert.Equal(t, "scheduler disabled\n", out.String())
}

func TestReadSnapshot(t *testing.T) {
	dir := t.TempDir()

	valid := filepath.Join(dir, "valid.json")
	require.NoError(t, os.WriteFile(valid, []byte(`{"btc_price_usd": 65000.5, "fear_greed_index": 72}`), 0o600))

	snapshot, err := readSnapshot(valid)
	require.NoError(t, err)
	assert.InDelta(t, 65000.5, snapshot["btc_price_usd"], 0.001)

	invalid := filepath.Join(dir, "invalid.json")
	require.NoError(t, os.WriteFile(invalid, []byte(`{"btc_price_usd": -1}`), 0o600))

	_, err = readSnapshot(invalid)
	require.Error(t, err)

	_, err = readSnapshot(filepath.Join(dir, "missing.json"))
	require.Error(t, err)
}
