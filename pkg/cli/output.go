package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"

	apiv1 "github.com/beam-cloud/toolshelf/pkg/api/v1"
)

// outputJSON controls whether commands should output JSON instead of styled text
var outputJSON bool

// SetJSONOutput sets the JSON output mode
func SetJSONOutput(enabled bool) {
	outputJSON = enabled
}

// IsJSONOutput returns true if JSON output mode is enabled
func IsJSONOutput() bool {
	return outputJSON
}

// PrintJSON outputs data as JSON if JSON mode is enabled, returns true if it did
func PrintJSON(data interface{}) bool {
	if !outputJSON {
		return false
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	enc.Encode(data)
	return true
}

// PrintSuccess prints a success message with a green checkmark
func PrintSuccess(msg string) {
	fmt.Printf("  %s %s\n", SuccessStyle.Render(SymbolSuccess), msg)
}

// PrintSuccessf prints a formatted success message
func PrintSuccessf(format string, args ...interface{}) {
	PrintSuccess(fmt.Sprintf(format, args...))
}

// PrintSuccessWithValue prints a success message with a right-aligned value
func PrintSuccessWithValue(msg, value string) {
	symbol := SuccessStyle.Render(SymbolSuccess)
	// Create a styled line with value right-aligned
	fmt.Printf("  %s %-40s %s\n", symbol, msg, DimStyle.Render(value))
}

// PrintErrorMsg prints a simple error message string
func PrintErrorMsg(msg string) {
	fmt.Printf("  %s %s\n", ErrorStyle.Render(SymbolError), ErrorStyle.Render(msg))
}

// PrintWarning prints a warning message with a yellow indicator
func PrintWarning(msg string) {
	fmt.Printf("  %s %s\n", WarningStyle.Render(SymbolWarning), WarningStyle.Render(msg))
}

// PrintInfo prints an info message with an arrow
func PrintInfo(msg string) {
	fmt.Printf("  %s %s\n", InfoStyle.Render(SymbolInfo), msg)
}

// PrintInfof prints a formatted info message
func PrintInfof(format string, args ...interface{}) {
	PrintInfo(fmt.Sprintf(format, args...))
}

// PrintSuggestions prints a list of suggestions
func PrintSuggestions(title string, suggestions []string) {
	fmt.Println()
	fmt.Printf("  %s\n", DimStyle.Render(title))
	for _, s := range suggestions {
		fmt.Printf("    %s %s\n", DimStyle.Render(SymbolBullet), s)
	}
}

// PrintHeader prints a section header
func PrintHeader(title string) {
	fmt.Printf("\n  %s\n\n", BoldStyle.Render(title))
}

// PrintKeyValue prints a key-value pair with consistent alignment
func PrintKeyValue(key, value string) {
	styledKey := KeyStyle.Render(key)
	fmt.Printf("  %s %s\n", styledKey, value)
}

// PrintKeyValueStyled prints a key-value pair with a custom value style
func PrintKeyValueStyled(key, value string, valueStyle lipgloss.Style) {
	styledKey := KeyStyle.Render(key)
	fmt.Printf("  %s %s\n", styledKey, valueStyle.Render(value))
}

// PrintBullet prints a bulleted item
func PrintBullet(text string) {
	fmt.Printf("    %s %s\n", DimStyle.Render(SymbolBullet), text)
}

// PrintNewline prints an empty line
func PrintNewline() {
	fmt.Println()
}

// Table represents a styled table
type Table struct {
	Headers []string
	Rows    [][]string
	Widths  []int
}

// NewTable creates a new table with the given headers
func NewTable(headers ...string) *Table {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}
	return &Table{
		Headers: headers,
		Widths:  widths,
	}
}

// AddRow adds a row to the table
func (t *Table) AddRow(cells ...string) {
	// Pad or truncate to match header count
	row := make([]string, len(t.Headers))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
			if len(cells[i]) > t.Widths[i] {
				t.Widths[i] = len(cells[i])
			}
		}
	}
	t.Rows = append(t.Rows, row)
}

// Print renders the table to stdout
func (t *Table) Print() {
	if len(t.Rows) == 0 {
		return
	}

	// Print headers
	fmt.Print("  ")
	for i, h := range t.Headers {
		style := TableHeaderStyle.Width(t.Widths[i] + 2)
		fmt.Print(style.Render(h))
	}
	fmt.Println()

	// Print separator
	fmt.Print("  ")
	for i := range t.Headers {
		separator := strings.Repeat("─", t.Widths[i])
		fmt.Print(DimStyle.Render(separator), "  ")
	}
	fmt.Println()

	// Print rows
	for _, row := range t.Rows {
		fmt.Print("  ")
		for i, cell := range row {
			style := TableCellStyle.Width(t.Widths[i] + 2)
			fmt.Print(style.Render(cell))
		}
		fmt.Println()
	}
}

// Truncate truncates a string to maxLen, adding "..." if needed
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// PrintTools prints a catalog listing as a table
func PrintTools(list apiv1.ToolListResponse) {
	if len(list.Tools) == 0 {
		PrintInfo("No tools found.")
		return
	}

	table := NewTable("ID", "NAME", "CATEGORY", "URL", "DESCRIPTION")
	for _, t := range list.Tools {
		table.AddRow(t.Id, t.Name, t.Category, t.Url, Truncate(t.Description, 48))
	}
	table.Print()
	fmt.Printf("\n  %s\n", DimStyle.Render(fmt.Sprintf("%d of %d tools", len(list.Tools), list.Total)))
}

// PrintTool prints one record as key-value pairs
func PrintTool(t apiv1.ToolResponse) {
	PrintKeyValueStyled("ID", t.Id, CodeStyle)
	PrintKeyValue("Name", t.Name)
	PrintKeyValue("URL", t.Url)
	PrintKeyValue("Category", t.Category)
	PrintKeyValue("Description", t.Description)
}
