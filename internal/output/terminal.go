package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"
	"golang.org/x/term"
)

const defaultTermWidth = 80

// minColumnWidth is the floor for wrapped columns on narrow terminals.
const minColumnWidth = 30

// TerminalWidth returns the terminal width for w, or defaultTermWidth if w is
// not a terminal or the width cannot be determined.
func TerminalWidth(w io.Writer) int {
	type fder interface{ Fd() uintptr }
	if f, ok := w.(fder); ok {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil && width > 0 { //nolint:gosec // file descriptors fit in int
			return width
		}
	}
	return defaultTermWidth
}

// NewTable returns a table that wraps cell content to the terminal width. overhead is the
// width taken by borders and fixed columns. With grouped set, repeated values in the first
// column are merged and rows are separated by lines.
func NewTable(w io.Writer, overhead int, grouped bool) *tablewriter.Table {
	row := tw.CellConfig{
		Formatting:   tw.CellFormatting{AutoWrap: tw.WrapNormal},
		ColMaxWidths: tw.CellWidth{Global: max(minColumnWidth, TerminalWidth(w)-overhead)},
	}
	if !grouped {
		return tablewriter.NewTable(w, tablewriter.WithConfig(tablewriter.Config{Row: row}))
	}
	row.Formatting.MergeMode = tw.MergeHierarchical
	return tablewriter.NewTable(w,
		tablewriter.WithRenderer(renderer.NewBlueprint(tw.Rendition{
			Settings: tw.Settings{Separators: tw.Separators{BetweenRows: tw.On}},
		})),
		tablewriter.WithConfig(tablewriter.Config{Row: row}),
	)
}
