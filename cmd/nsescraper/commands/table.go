package commands

import (
	"fmt"
	"os"

	"github.com/guregu/null/v6"
	"github.com/jedib0t/go-pretty/v6/table"
)

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}

func formatFloat(value null.Float) string {
	if !value.Valid {
		return "-"
	}
	return fmt.Sprintf("%.2f", value.Float64)
}

func formatInt(value null.Int) string {
	if !value.Valid {
		return "-"
	}
	return fmt.Sprint(value.Int64)
}

func formatDecimal(value float64) string {
	return fmt.Sprintf("%.2f", value)
}
