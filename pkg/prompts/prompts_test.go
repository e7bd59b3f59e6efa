package prompts_test

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/cryptodashboard/reportgen/pkg/prompts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()

	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestEnvSource_LoadsFilesAndPalette(t *testing.T) {
	dir := t.TempDir()

	writeFile(t, filepath.Join(dir, ".env.create_html"), "create_html=\"Build a page.\nColors: {{ @css_root }}\"\n")
	writeFile(t, filepath.Join(dir, ".env.research"), "prompt_combined_research_validation=\"Research <<@day>>/<<@month>>/<<@year>>\"\n")
	palette := filepath.Join(dir, "colors.css")
	writeFile(t, palette, "body{}\n:root {\n  --accent: #f7931a;\n}\n")

	source, err := prompts.NewEnvSource(slog.Default(), dir, palette)
	require.NoError(t, err)

	html, err := source.Prompt(prompts.CreateHTML)
	require.NoError(t, err)
	assert.Equal(t, "Build a page.\nColors: --accent: #f7931a;", html)

	research, err := source.Prompt(prompts.ResearchValidation)
	require.NoError(t, err)
	assert.Equal(t, "Research <<@day>>/<<@month>>/<<@year>>", research)

	assert.Equal(t, []string{"combined_research_validation", "create_html"}, source.Names())
}

func TestEnvSource_FallsBackToEnvironment(t *testing.T) {
	t.Setenv("prompt_translate_js", "Translate {js_content}")

	source, err := prompts.NewEnvSource(slog.Default(), t.TempDir(), "")
	require.NoError(t, err)

	value, err := source.Prompt(prompts.TranslateJS)
	require.NoError(t, err)
	assert.Equal(t, "Translate {js_content}", value)

	_, err = source.Prompt("does_not_exist")
	assert.ErrorIs(t, err, prompts.ErrPromptNotFound)
}

func TestRequire(t *testing.T) {
	source := prompts.Static{"a": "x", "b": "  "}

	require.NoError(t, prompts.Require(source, "a"))

	err := prompts.Require(source, "a", "b", "c")
	require.ErrorIs(t, err, prompts.ErrPromptNotFound)
	assert.Contains(t, err.Error(), "b, c")
}

func TestPaletteRoot(t *testing.T) {
	assert.Equal(t, "--bg: #000;", prompts.PaletteRoot(":root{ --bg: #000; }"))
	assert.Empty(t, prompts.PaletteRoot("body { color: red; }"))
}

func TestReplaceDates(t *testing.T) {
	now := time.Date(2025, time.March, 7, 23, 0, 0, 0, time.FixedZone("ICT", 7*3600))

	assert.Equal(t, "7/3/2025", prompts.ReplaceDates("<<@day>>/<<@month>>/<<@year>>", now))
}

func TestInjectSnapshot(t *testing.T) {
	template := "Data:\n{{REAL_TIME_DATA}}"

	withData := prompts.InjectSnapshot(template, map[string]any{"btc_price_usd": 65000.5})
	assert.Contains(t, withData, `"btc_price_usd": 65000.5`)
	assert.NotContains(t, withData, prompts.SnapshotToken)

	withoutData := prompts.InjectSnapshot(template, nil)
	assert.Contains(t, withoutData, "Real-time data unavailable")

	assert.Equal(t, "no token", prompts.InjectSnapshot("no token", nil))
}

func TestFill(t *testing.T) {
	assert.Equal(t, "Report: body", prompts.Fill("Report: {content}", "body"))
}
