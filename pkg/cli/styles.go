package cli

import (
	"github.com/charmbracelet/lipgloss"
)

// Color palette
var (
	ColorPrimary = lipgloss.Color("#8B5CF6") // Purple - brand color
	ColorSuccess = lipgloss.Color("#22C55E") // Green
	ColorWarning = lipgloss.Color("#F59E0B") // Amber
	ColorError   = lipgloss.Color("#EF4444") // Red
	ColorInfo    = lipgloss.Color("#3B82F6") // Blue
	ColorSubtle  = lipgloss.Color("#6B7280") // Gray
)

// Symbols for consistent visual language
const (
	SymbolSuccess = "✓"
	SymbolError   = "✗"
	SymbolWarning = "!"
	SymbolInfo    = "→"
	SymbolBullet  = "•"
)

// Text styles
var (
	// Brand
	BrandStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(ColorPrimary)

	// Status styles
	SuccessStyle = lipgloss.NewStyle().
			Foreground(ColorSuccess)

	ErrorStyle = lipgloss.NewStyle().
			Foreground(ColorError).
			Bold(true)

	WarningStyle = lipgloss.NewStyle().
			Foreground(ColorWarning)

	InfoStyle = lipgloss.NewStyle().
			Foreground(ColorInfo)

	// Text variations
	BoldStyle = lipgloss.NewStyle().
			Bold(true)

	DimStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle)

	// Key-value styles
	KeyStyle = lipgloss.NewStyle().
			Foreground(ColorSubtle).
			Width(12)

	// Table styles
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(ColorSubtle).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(ColorSubtle)

	TableCellStyle = lipgloss.NewStyle().
			PaddingRight(2)

	// Code/path style
	CodeStyle = lipgloss.NewStyle().
			Foreground(ColorPrimary)
)
