// Package models defines the records stored by the report generator.
package models

import (
	"strings"
	"time"
)

// Report is a generated, translated market report page.
type Report struct {
	ID        int64     `json:"id"`
	HTML      string    `json:"html_content"`
	CSS       string    `json:"css_content"`
	JS        string    `json:"js_content"`
	HTMLEn    string    `json:"html_content_en"`
	JSEn      string    `json:"js_content_en"`
	CreatedAt time.Time `json:"created_at"`
}

// ReportSummary is the listing view of a report without page bodies.
type ReportSummary struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Size      int       `json:"size"`
}

// BlankFields returns the names of page fields that are empty or whitespace.
func (r *Report) BlankFields() []string {
	fields := []struct {
		name  string
		value string
	}{
		{"html_content", r.HTML},
		{"css_content", r.CSS},
		{"js_content", r.JS},
		{"html_content_en", r.HTMLEn},
		{"js_content_en", r.JSEn},
	}

	var blank []string

	for _, field := range fields {
		if strings.TrimSpace(field.value) == "" {
			blank = append(blank, field.name)
		}
	}

	return blank
}
