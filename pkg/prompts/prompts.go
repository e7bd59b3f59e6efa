// Package prompts resolves prompt templates by logical name and fills their placeholders.
package prompts

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/joho/godotenv"
)

// Logical prompt names used by the report pipeline.
const (
	ResearchValidation = "combined_research_validation"
	GenerateReport     = "generate_report"
	CreateReport       = "create_report"
	CreateHTML         = "create_html"
	CreateJavaScript   = "create_javascript"
	CreateCSS          = "create_css"
	TranslateHTML      = "translate_html"
	TranslateJS        = "translate_js"
)

// Placeholders substituted into templates.
const (
	PaletteToken   = "{{ @css_root }}"
	SnapshotToken  = "{{REAL_TIME_DATA}}"
	ContentToken   = "{content}"
	JSContentToken = "{js_content}"
	dayToken       = "<<@day>>"
	monthToken     = "<<@month>>"
	yearToken      = "<<@year>>"
)

const envPrefix = "prompt_"

var ErrPromptNotFound = errors.New("prompt not found")

var rootBlock = regexp.MustCompile(`(?s):root\s*\{([^}]+)\}`)

// Source resolves a prompt template by name.
type Source interface {
	Prompt(name string) (string, error)
}

// Require checks that every name resolves to a non-empty template.
func Require(source Source, names ...string) error {
	var missing []string

	for _, name := range names {
		if _, err := source.Prompt(name); err != nil {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrPromptNotFound, strings.Join(missing, ", "))
	}

	return nil
}

// Static is an in-memory Source.
type Static map[string]string

func (s Static) Prompt(name string) (string, error) {
	value, ok := s[name]
	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}

	return value, nil
}

// EnvSource loads prompts from ".env.*" files in a directory. Keys may carry
// a "prompt_" prefix. Names missing from the files are looked up in the
// process environment. The palette placeholder is replaced with the body of
// the ":root" block of the palette stylesheet.
type EnvSource struct {
	dir         string
	palettePath string
	logger      *slog.Logger

	mu      sync.RWMutex
	values  map[string]string
	palette string
}

func NewEnvSource(logger *slog.Logger, dir, palettePath string) (*EnvSource, error) {
	source := &EnvSource{
		dir:         dir,
		palettePath: palettePath,
		logger:      logger.With("module", "prompts"),
	}

	if err := source.Reload(); err != nil {
		return nil, err
	}

	return source, nil
}

// Reload re-reads the prompt files and the palette.
func (s *EnvSource) Reload() error {
	values := map[string]string{}

	if s.dir != "" {
		files, err := filepath.Glob(filepath.Join(s.dir, ".env.*"))
		if err != nil {
			return fmt.Errorf("failed to list prompt files: %w", err)
		}

		sort.Strings(files)

		for _, file := range files {
			parsed, err := godotenv.Read(file)
			if err != nil {
				return fmt.Errorf("failed to read prompt file %s: %w", file, err)
			}

			for key, value := range parsed {
				values[strings.TrimPrefix(strings.TrimSpace(key), envPrefix)] = value
			}

			s.logger.Debug("loaded prompt file", "file", filepath.Base(file), "prompts", len(parsed))
		}
	}

	palette := ""

	if s.palettePath != "" {
		content, err := os.ReadFile(s.palettePath)
		if err != nil {
			s.logger.Warn("palette stylesheet unavailable", "path", s.palettePath, "error", err)
		} else {
			palette = PaletteRoot(string(content))
		}
	}

	s.mu.Lock()
	s.values = values
	s.palette = palette
	s.mu.Unlock()

	s.logger.Info("prompts loaded", "count", len(values))

	return nil
}

func (s *EnvSource) Prompt(name string) (string, error) {
	s.mu.RLock()
	value, ok := s.values[name]
	palette := s.palette
	s.mu.RUnlock()

	if !ok {
		value, ok = os.LookupEnv(envPrefix + name)
	}

	if !ok {
		value, ok = os.LookupEnv(name)
	}

	if !ok || strings.TrimSpace(value) == "" {
		return "", fmt.Errorf("%w: %s", ErrPromptNotFound, name)
	}

	return strings.ReplaceAll(value, PaletteToken, palette), nil
}

// Names lists the prompts loaded from files.
func (s *EnvSource) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.values))
	for name := range s.values {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// PaletteRoot returns the trimmed body of the first ":root { ... }" block, or "".
func PaletteRoot(css string) string {
	match := rootBlock.FindStringSubmatch(css)
	if match == nil {
		return ""
	}

	return strings.TrimSpace(match[1])
}

// ReplaceDates fills the day, month and year placeholders from now in UTC.
func ReplaceDates(text string, now time.Time) string {
	now = now.UTC()

	return strings.NewReplacer(
		dayToken, strconv.Itoa(now.Day()),
		monthToken, strconv.Itoa(int(now.Month())),
		yearToken, strconv.Itoa(now.Year()),
	).Replace(text)
}

// InjectSnapshot replaces the real time data placeholder with the snapshot as
// indented JSON, or with a notice telling the model to search instead.
func InjectSnapshot(text string, snapshot map[string]any) string {
	if !strings.Contains(text, SnapshotToken) {
		return text
	}

	return strings.ReplaceAll(text, SnapshotToken, snapshotJSON(snapshot))
}

// Fill replaces the content placeholder with content.
func Fill(template, content string) string {
	return strings.ReplaceAll(template, ContentToken, content)
}

func snapshotJSON(snapshot map[string]any) string {
	if len(snapshot) == 0 {
		return fallbackNotice()
	}

	encoded, err := json.MarshalIndent(snapshot, "", "  ")
	if err != nil {
		return fallbackNotice()
	}

	return string(encoded)
}

func fallbackNotice() string {
	encoded, _ := json.Marshal(map[string]string{
		"notice": "Real-time data unavailable, use Google Search to collect current market data",
	})

	return string(encoded)
}
