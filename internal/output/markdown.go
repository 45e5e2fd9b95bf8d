package output

import (
	"fmt"
	"strings"
)

// MarkdownFormatter renders documents as GitHub-flavored Markdown tables.
type MarkdownFormatter struct{}

// Format renders doc as Markdown.
func (f *MarkdownFormatter) Format(doc Document, _ any) (string, error) {
	var sb strings.Builder
	if doc.Title != "" {
		sb.WriteString(fmt.Sprintf("## %s\n\n", escapeMarkdownCell(doc.Title)))
	}
	if len(doc.Rows) == 0 && doc.Empty != "" {
		sb.WriteString("_" + doc.Empty + "_\n")
		sb.WriteString(renderNotes(doc.Notes, true))
		return sb.String(), nil
	}

	cells := make([]string, len(doc.Header))
	rule := make([]string, len(doc.Header))
	for i, h := range doc.Header {
		cells[i] = escapeMarkdownCell(h)
		rule[i] = strings.Repeat("-", max(3, len(h)))
	}
	sb.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	sb.WriteString("|" + strings.Join(rule, "|") + "|\n")

	for _, r := range doc.Rows {
		row := make([]string, len(r))
		for i, cell := range r {
			row[i] = escapeMarkdownCell(cell)
		}
		sb.WriteString("| " + strings.Join(row, " | ") + " |\n")
	}
	if doc.Footer != "" {
		sb.WriteString(fmt.Sprintf("\n**Total**: %s\n", doc.Footer))
	}
	sb.WriteString(renderNotes(doc.Notes, true))
	return sb.String(), nil
}

func escapeMarkdownCell(value string) string {
	value = strings.ReplaceAll(value, "\n", " ")
	return strings.ReplaceAll(value, "|", "\\|")
}
