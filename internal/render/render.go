// Package render provides terminal output helpers for the clai
// inspection commands.
package render

import (
	"os"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// defaultWidth is used when the output is not a terminal.
const defaultWidth = 100

// Color definitions using ANSI colors so they respect the user's palette
var (
	colorGreen = lipgloss.ANSIColor(2)
	colorGray  = lipgloss.ANSIColor(8)
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	kindStyle   = lipgloss.NewStyle().Foreground(colorGray)
	okStyle     = lipgloss.NewStyle().Foreground(colorGreen).Bold(true)
)

// Header styles a section header for terminal output.
func Header(text string) string {
	return headerStyle.Render(text)
}

// Kind styles a tool kind annotation.
func Kind(text string) string {
	return kindStyle.Render(text)
}

// OK styles a success marker.
func OK(text string) string {
	return okStyle.Render(text)
}

// TerminalWidth returns the current terminal width, falling back to a
// fixed width when stdout is not a terminal.
func TerminalWidth() int {
	width, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || width <= 0 {
		return defaultWidth
	}
	return width
}

// Markdown renders markdown content for the terminal. Used to display
// prompt tool templates. Falls back to the raw text if rendering fails.
func Markdown(content string) string {
	renderer, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(TerminalWidth()),
	)
	if err != nil {
		return content
	}

	rendered, err := renderer.Render(content)
	if err != nil {
		return content
	}
	return rendered
}
