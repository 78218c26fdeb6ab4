package output

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/term"
)

const defaultTerminalHeight = 24

// progressBar renders a fixed-width bar for one transfer. Out of range values are clamped.
func progressBar(current, total int64, width int) string {
	if width <= 0 {
		width = 30
	}
	total = max(total, 1)
	current = min(max(current, 0), total)
	fraction := float64(current) / float64(total)
	filled := min(int(fraction*float64(width)), width)

	var b strings.Builder
	b.WriteString(glyphSep)
	b.WriteString(strings.Repeat(glyphBar, filled))
	b.WriteString(strings.Repeat(" ", width-filled))
	b.WriteString(glyphSep)
	return mutedStyle.Render(fmt.Sprintf("%s %.1f%% %s ", b.String(), fraction*100, glyphSep))
}

// IsTerminal reports whether stdout can host the live display.
func IsTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

func terminalHeight() int {
	if _, height, err := term.GetSize(int(os.Stdout.Fd())); err == nil && height > 0 {
		return height
	}
	return defaultTerminalHeight
}
