// Package export renders a bookmark collection as a downloadable document.
package export

import (
	"bookmark-manager/pkg/types"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"
)

type Format string

const (
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// Record is the exported shape of one bookmark
type Record struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	CreatedAt time.Time `json:"created_at"`
}

// ParseFormat validates a user-supplied format name
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "json":
		return FormatJSON, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	}
	return "", fmt.Errorf("unsupported export format: %q", s)
}

// FileName returns the suggested download name for an export taken at t
func FileName(format Format, t time.Time) string {
	ext := "json"
	if format == FormatMarkdown {
		ext = "md"
	}
	return fmt.Sprintf("bookmarks-%s.%s", t.Format("2006-01-02"), ext)
}

// Write serializes bookmarks, in the given order, as a single document
func Write(w io.Writer, format Format, bookmarks []types.Bookmark) error {
	records := make([]Record, len(bookmarks))
	for i, b := range bookmarks {
		records[i] = Record{ID: b.ID, Title: b.Title, URL: b.URL, CreatedAt: b.CreatedAt}
	}

	switch format {
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(records); err != nil {
			return fmt.Errorf("failed to encode bookmarks: %w", err)
		}
		return nil
	case FormatMarkdown:
		return writeMarkdown(w, records)
	}
	return fmt.Errorf("unsupported export format: %q", format)
}

// writeMarkdown groups records under one heading per creation day
func writeMarkdown(w io.Writer, records []Record) error {
	var sb strings.Builder
	sb.WriteString("# Bookmarks\n")

	day := ""
	for _, r := range records {
		if d := r.CreatedAt.Format("2006-01-02"); d != day {
			day = d
			fmt.Fprintf(&sb, "\n## %s\n\n", day)
		}
		fmt.Fprintf(&sb, "- [%s](%s) `%s` %s\n",
			escapeMarkdown(r.Title),
			escapeDestination(r.URL),
			r.ID,
			r.CreatedAt.Format("15:04:05"))
	}

	if _, err := io.WriteString(w, sb.String()); err != nil {
		return fmt.Errorf("failed to write markdown: %w", err)
	}
	return nil
}

func escapeMarkdown(s string) string {
	return strings.NewReplacer("[", `\[`, "]", `\]`).Replace(s)
}

var destinationReplacer = strings.NewReplacer(
	" ", "%20",
	"(", "%28",
	")", "%29",
	"<", "%3C",
	">", "%3E",
)

// escapeDestination percent-encodes the characters that end or split a
// link destination
func escapeDestination(url string) string {
	return destinationReplacer.Replace(url)
}
