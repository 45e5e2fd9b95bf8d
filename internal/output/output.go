// Package output renders run summaries, verdicts and stored papers as
// tables, Markdown, or JSON.
package output

import (
	"fmt"
	"strings"
)

// Format represents an output format.
type Format string

const (
	FormatTable    Format = "table"
	FormatJSON     Format = "json"
	FormatMarkdown Format = "markdown"
)

// ParseFormat validates and normalizes a format string.
func ParseFormat(value string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", string(FormatTable):
		return FormatTable, nil
	case string(FormatJSON):
		return FormatJSON, nil
	case string(FormatMarkdown), "md":
		return FormatMarkdown, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", value)
	}
}

// Extension returns the file extension used when writing format to disk.
func (f Format) Extension() string {
	switch f {
	case FormatJSON:
		return "json"
	case FormatMarkdown:
		return "md"
	default:
		return "txt"
	}
}

// Document is the format-neutral shape every report is reduced to.
type Document struct {
	Title  string
	Header []string
	Rows   [][]string
	// Footer is a one-line total shown under the table.
	Footer string
	// Notes are rendered as a bulleted list after the table.
	Notes []string
	// Empty replaces the table when there are no rows.
	Empty string
}

// Formatter renders a document. JSON formatters ignore doc and encode value.
type Formatter interface {
	Format(doc Document, value any) (string, error)
}

// NewFormatter returns a formatter for the requested format.
func NewFormatter(format Format) Formatter {
	switch format {
	case FormatJSON:
		return &JSONFormatter{Indent: true}
	case FormatMarkdown:
		return &MarkdownFormatter{}
	default:
		return &TableFormatter{}
	}
}

// Render is shorthand for NewFormatter(format).Format(doc, value).
func Render(format Format, doc Document, value any) (string, error) {
	return NewFormatter(format).Format(doc, value)
}
