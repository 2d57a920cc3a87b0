package dyntable

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

const (
	TerminalFormatTable    = "table"
	TerminalFormatMarkdown = "md"
	TerminalFormatCSV      = "csv"

	terminalDocumentPrefix = "[pdf] "
	terminalVideoPrefix    = "[video] "
	terminalImagePrefix    = "[image] "
)

// TerminalRenderer prints table state for the command line. Asset cells print resolved URLs.
type TerminalRenderer struct {
	renderer *Renderer
	layout   Layout
	format   string
}

// NewTerminalRenderer returns a TerminalRenderer using the asset resolution of renderer.
func NewTerminalRenderer(renderer *Renderer, layout Layout, format string) *TerminalRenderer {
	if format == "" {
		format = TerminalFormatTable
	}
	return &TerminalRenderer{renderer: renderer, layout: layout, format: format}
}

// Render writes state to writer.
func (terminal *TerminalRenderer) Render(writer io.Writer, state ListState) error {
	if len(state.Page.Rows) == 0 {
		_, printErr := fmt.Fprintln(writer, "(0 rows)")
		return printErr
	}
	if terminal.layout == LayoutPortrait {
		return terminal.renderPortrait(writer, state)
	}

	tableWriter := table.NewWriter()
	tableWriter.SetStyle(table.StyleLight)
	header := make(table.Row, 0, len(state.Schema.Columns))
	for _, column := range state.Schema.Columns {
		header = append(header, column.Label)
	}
	tableWriter.AppendHeader(header)
	for _, record := range state.Page.Rows {
		row := make(table.Row, 0, len(state.Schema.Columns))
		for _, column := range state.Schema.Columns {
			row = append(row, terminal.cellText(column, record.Text(column.Name)))
		}
		tableWriter.AppendRow(row)
	}
	if writeErr := terminal.write(writer, tableWriter); writeErr != nil {
		return writeErr
	}
	_, printErr := fmt.Fprintf(writer, "(%d rows, page %d of %d, %d total)\n", len(state.Page.Rows), state.Page.PageNumber, state.PageCount, state.Page.TotalCount)
	return printErr
}

func (terminal *TerminalRenderer) renderPortrait(writer io.Writer, state ListState) error {
	for index, record := range state.Page.Rows {
		tableWriter := table.NewWriter()
		tableWriter.SetStyle(table.StyleLight)
		tableWriter.SetTitle(fmt.Sprintf("Record %d", index+1))
		tableWriter.Style().Title.Align = text.AlignLeft
		for _, column := range state.Schema.Columns {
			tableWriter.AppendRow(table.Row{column.Label, terminal.cellText(column, record.Text(column.Name))})
		}
		if writeErr := terminal.write(writer, tableWriter); writeErr != nil {
			return writeErr
		}
	}
	return nil
}

func (terminal *TerminalRenderer) write(writer io.Writer, tableWriter table.Writer) error {
	var rendered string
	switch terminal.format {
	case TerminalFormatMarkdown:
		rendered = tableWriter.RenderMarkdown()
	case TerminalFormatCSV:
		rendered = tableWriter.RenderCSV()
	default:
		rendered = tableWriter.Render()
	}
	_, printErr := fmt.Fprintln(writer, rendered)
	return printErr
}

func (terminal *TerminalRenderer) cellText(column Column, value string) string {
	if !column.Kind.IsAsset() || value == "" {
		return value
	}
	resolved := terminal.renderer.AssetURL(value)
	switch column.Kind {
	case FieldKindImage:
		return terminalImagePrefix + resolved
	case FieldKindVideo:
		return terminalVideoPrefix + resolved
	default:
		return terminalDocumentPrefix + resolved
	}
}
