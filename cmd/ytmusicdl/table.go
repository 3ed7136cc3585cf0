package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// column describes one table column. Cells wider than width are cut rather
// than wrapped, so a long track title or yt-dlp failure reason keeps its row
// on one line. Zero width leaves the column uncapped.
type column struct {
	header string
	width  int
	right  bool
}

// Column presets shared by the status and history tables.
func idColumn(header string) column { return column{header: header} }
func countColumn(header string) column { return column{header: header, right: true} }
func textColumn(header string) column { return column{header: header, width: 40} }
func reasonColumn(header string) column { return column{header: header, width: 60} }

// renderTable draws rows under columns; short rows are padded with empty
// cells. An empty title omits the caption.
func renderTable(title string, columns []column, rows [][]string) string {
	if len(columns) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	if title != "" {
		tw.SetTitle(title)
	}

	header := make(table.Row, len(columns))
	configs := make([]table.ColumnConfig, len(columns))
	for i, col := range columns {
		header[i] = col.header
		cfg := table.ColumnConfig{Number: i + 1, AlignHeader: text.AlignLeft}
		if col.right {
			cfg.Align = text.AlignRight
		}
		if col.width > 0 {
			cfg.WidthMax = col.width
			cfg.WidthMaxEnforcer = text.Trim
		}
		configs[i] = cfg
	}
	tw.AppendHeader(header)
	tw.SetColumnConfigs(configs)

	for _, row := range rows {
		cells := make(table.Row, len(columns))
		for i := range cells {
			cells[i] = ""
			if i < len(row) {
				cells[i] = row[i]
			}
		}
		tw.AppendRow(cells)
	}
	return tw.Render()
}
