package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
)

// Terminal styles for the human-facing command output. Reports and
// token/tag listings stay unstyled so they remain grep-able.
var (
	colorAccent = lipgloss.Color("36")  // teal
	colorMuted  = lipgloss.Color("244") // gray
	colorError  = lipgloss.Color("196") // red

	styleTitle   = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	styleLabel   = lipgloss.NewStyle().Foreground(colorMuted)
	styleSuccess = lipgloss.NewStyle().Foreground(colorAccent)
	styleError   = lipgloss.NewStyle().Bold(true).Foreground(colorError)
)

func printTitle(text string) {
	fmt.Println(styleTitle.Render(text))
}

// printKV prints an aligned "label: value" line with a muted label.
func printKV(label, format string, args ...any) {
	fmt.Printf("%s %s\n", styleLabel.Render(label+":"), fmt.Sprintf(format, args...))
}

func printSuccess(format string, args ...any) {
	fmt.Println(styleSuccess.Render(fmt.Sprintf(format, args...)))
}
