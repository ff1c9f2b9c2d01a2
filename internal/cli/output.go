// Package cli provides the command-line interface for the market-data client.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Output handles formatted output for the CLI.
type Output struct {
	writer   io.Writer
	jsonMode bool

	green  *color.Color
	red    *color.Color
	yellow *color.Color
	cyan   *color.Color
	bold   *color.Color
	dim    *color.Color
}

// NewOutput creates an Output bound to the command's stdout. Color is
// disabled in JSON mode and when stdout is not a terminal.
func NewOutput(cmd *cobra.Command) *Output {
	jsonMode, _ := cmd.Flags().GetBool("json")
	if jsonMode || !isTerminal() {
		color.NoColor = true
	}
	return &Output{
		writer:   cmd.OutOrStdout(),
		jsonMode: jsonMode,
		green:    color.New(color.FgGreen),
		red:      color.New(color.FgRed),
		yellow:   color.New(color.FgYellow),
		cyan:     color.New(color.FgCyan),
		bold:     color.New(color.Bold),
		dim:      color.New(color.Faint),
	}
}

func isTerminal() bool {
	fileInfo, _ := os.Stdout.Stat()
	return (fileInfo.Mode() & os.ModeCharDevice) != 0
}

// IsJSON reports whether JSON output mode is enabled.
func (o *Output) IsJSON() bool {
	return o.jsonMode
}

// JSON outputs data as indented JSON.
func (o *Output) JSON(data interface{}) error {
	encoder := json.NewEncoder(o.writer)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

// Printf prints a formatted message.
func (o *Output) Printf(format string, args ...interface{}) {
	fmt.Fprintf(o.writer, format, args...)
}

// Println prints a message with newline.
func (o *Output) Println(args ...interface{}) {
	fmt.Fprintln(o.writer, args...)
}

// Success prints a success message in green.
func (o *Output) Success(format string, args ...interface{}) {
	o.green.Fprintf(o.writer, format+"\n", args...)
}

// Error prints an error message in red.
func (o *Output) Error(format string, args ...interface{}) {
	o.red.Fprintf(o.writer, format+"\n", args...)
}

// Warning prints a warning message in yellow.
func (o *Output) Warning(format string, args ...interface{}) {
	o.yellow.Fprintf(o.writer, format+"\n", args...)
}

// Info prints an info message in cyan.
func (o *Output) Info(format string, args ...interface{}) {
	o.cyan.Fprintf(o.writer, format+"\n", args...)
}

// Green returns green colored text.
func (o *Output) Green(text string) string { return o.green.Sprint(text) }

// Red returns red colored text.
func (o *Output) Red(text string) string { return o.red.Sprint(text) }

// Yellow returns yellow colored text.
func (o *Output) Yellow(text string) string { return o.yellow.Sprint(text) }

// Bold returns bold text.
func (o *Output) Bold(text string) string { return o.bold.Sprint(text) }

// ChangeColor colors a value by its sign: green up, red down.
func (o *Output) ChangeColor(v float64, text string) string {
	switch {
	case v > 0:
		return o.green.Sprint(text)
	case v < 0:
		return o.red.Sprint(text)
	default:
		return text
	}
}

// MarketStatus renders a market status with its conventional color.
func (o *Output) MarketStatus(status string) string {
	switch status {
	case "OPEN":
		return o.Green("OPEN")
	case "CLOSED":
		return o.Red("CLOSED")
	case "PRE_OPEN":
		return o.Yellow("PRE-OPEN")
	default:
		return status
	}
}

// Table is a simple aligned-column table.
type Table struct {
	headers []string
	rows    [][]string
	output  *Output
}

// NewTable creates a table with the given headers.
func NewTable(output *Output, headers ...string) *Table {
	return &Table{headers: headers, output: output}
}

// AddRow appends one row.
func (t *Table) AddRow(cells ...string) {
	t.rows = append(t.rows, cells)
}

// Render prints the table with columns padded to their widest cell.
func (t *Table) Render() {
	if len(t.headers) == 0 {
		return
	}
	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = visibleLen(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if i < len(widths) && visibleLen(cell) > widths[i] {
				widths[i] = visibleLen(cell)
			}
		}
	}

	t.printRow(t.headers, widths, true)
	var sep []string
	for _, w := range widths {
		sep = append(sep, strings.Repeat("-", w))
	}
	t.output.Println(strings.Join(sep, "  "))
	for _, row := range t.rows {
		t.printRow(row, widths, false)
	}
}

func (t *Table) printRow(cells []string, widths []int, isHeader bool) {
	var parts []string
	for i, cell := range cells {
		if i >= len(widths) {
			continue
		}
		padding := widths[i] - visibleLen(cell)
		if padding < 0 {
			padding = 0
		}
		padded := cell + strings.Repeat(" ", padding)
		if isHeader {
			padded = t.output.Bold(padded)
		}
		parts = append(parts, padded)
	}
	t.output.Println(strings.Join(parts, "  "))
}

// visibleLen measures a string ignoring ANSI escape sequences.
func visibleLen(s string) int {
	n := 0
	inEscape := false
	for _, r := range s {
		if inEscape {
			if r == 'm' {
				inEscape = false
			}
			continue
		}
		if r == '\x1b' {
			inEscape = true
			continue
		}
		n++
	}
	return n
}
