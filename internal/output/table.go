package output

import (
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TableFormatter renders documents as rounded box tables.
type TableFormatter struct {
	// Width caps column width; longer cells wrap. Zero uses 60.
	Width int
}

// Format renders doc as a table.
func (f *TableFormatter) Format(doc Document, _ any) (string, error) {
	var sb strings.Builder
	if len(doc.Rows) == 0 && doc.Empty != "" {
		if doc.Title != "" {
			sb.WriteString(doc.Title + "\n")
		}
		sb.WriteString(doc.Empty)
		sb.WriteString(renderNotes(doc.Notes, false))
		return sb.String(), nil
	}

	width := f.Width
	if width <= 0 {
		width = 60
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.Style().Format.Footer = text.FormatDefault
	if doc.Title != "" {
		t.SetTitle(doc.Title)
	}

	header := make(table.Row, len(doc.Header))
	configs := make([]table.ColumnConfig, len(doc.Header))
	for i, h := range doc.Header {
		header[i] = h
		configs[i] = table.ColumnConfig{Number: i + 1, WidthMax: width, WidthMaxEnforcer: text.WrapSoft}
	}
	t.AppendHeader(header)
	t.SetColumnConfigs(configs)

	for _, r := range doc.Rows {
		row := make(table.Row, len(r))
		for i, cell := range r {
			row[i] = cell
		}
		t.AppendRow(row)
	}
	if doc.Footer != "" && len(doc.Header) > 0 {
		footer := make(table.Row, len(doc.Header))
		footer[len(footer)-1] = doc.Footer
		t.AppendFooter(footer)
	}

	sb.WriteString(t.Render())
	sb.WriteString(renderNotes(doc.Notes, false))
	return sb.String(), nil
}

func renderNotes(notes []string, markdown bool) string {
	if len(notes) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("\n")
	if markdown {
		sb.WriteString("\n")
	}
	for _, n := range notes {
		if markdown {
			sb.WriteString("- " + n + "\n")
			continue
		}
		sb.WriteString("  * " + n + "\n")
	}
	return sb.String()
}
