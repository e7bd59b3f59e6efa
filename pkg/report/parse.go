package report

import (
	"regexp"
	"strings"
)

const (
	DefaultScript     = "// Auto-generated script\nconsole.log('Report loaded successfully');"
	DefaultStylesheet = "body { font-family: Arial, sans-serif; margin: 20px; }"
)

var (
	passMarker = regexp.MustCompile(`(?i)(RESULT|KẾT QUẢ KIỂM TRA)\s*:\s*PASS`)
	failMarker = regexp.MustCompile(`(?i)(RESULT|KẾT QUẢ KIỂM TRA)\s*:\s*FAIL`)

	htmlBlock       = regexp.MustCompile("(?s)```html(.*?)```")
	cssBlock        = regexp.MustCompile("(?s)```css(.*?)```")
	javascriptBlock = regexp.MustCompile("(?s)```javascript(.*?)```")
	jsBlock         = regexp.MustCompile("(?s)```js(.*?)```")

	htmlTags = regexp.MustCompile(`(?i)<html|<!doctype|<div|<body|<head`)
)

// ParseVerdict scans model output for the validation marker. PASS wins when
// both markers are present.
func ParseVerdict(text string) Verdict {
	switch {
	case passMarker.MatchString(text):
		return VerdictPass
	case failMarker.MatchString(text):
		return VerdictFail
	default:
		return VerdictUnknown
	}
}

// Components is the page split out of a combined interface response.
type Components struct {
	HTML string
	CSS  string
	JS   string
	// OK reports whether the response is usable as a page.
	OK bool
}

// ExtractComponents splits a combined response into page parts. The response
// is usable when it yields non-empty HTML, or both a non-empty css and js block.
func ExtractComponents(text string) Components {
	css, hasCSS := fenced(cssBlock, text)
	js, hasJS := fencedScript(text)

	components := Components{
		HTML: ExtractHTML(text),
		CSS:  css,
		JS:   js,
	}

	components.OK = components.HTML != "" || (css != "" && js != "")

	if !hasCSS || components.CSS == "" {
		components.CSS = DefaultStylesheet
	}

	if !hasJS || components.JS == "" {
		components.JS = DefaultScript
	}

	return components
}

// ExtractHTML returns the fenced html block, the raw text when it already
// looks like HTML, or "".
func ExtractHTML(text string) string {
	if block, ok := fenced(htmlBlock, text); ok && block != "" {
		return block
	}

	if htmlTags.MatchString(text) {
		return strings.TrimSpace(text)
	}

	return ""
}

// ExtractJS returns the fenced script or DefaultScript.
func ExtractJS(text string) string {
	if block, ok := fencedScript(text); ok && block != "" {
		return block
	}

	return DefaultScript
}

// ExtractCSS returns the fenced stylesheet or DefaultStylesheet.
func ExtractCSS(text string) string {
	if block, ok := fenced(cssBlock, text); ok && block != "" {
		return block
	}

	return DefaultStylesheet
}

// StripFence removes a markdown fence wrapped around a whole response.
func StripFence(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	lines := strings.Split(text, "\n")
	if len(lines) <= 2 {
		return text
	}

	lines = lines[1:]
	if strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}

	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func fenced(pattern *regexp.Regexp, text string) (string, bool) {
	match := pattern.FindStringSubmatch(text)
	if match == nil {
		return "", false
	}

	return strings.TrimSpace(match[1]), true
}

func fencedScript(text string) (string, bool) {
	if block, ok := fenced(javascriptBlock, text); ok {
		return block, true
	}

	return fenced(jsBlock, text)
}
