package output

import (
	"fmt"
	"io"
	"os"

	"github.com/charmbracelet/lipgloss"
)

// Task states and the batch summary share one palette so the live display and plain output read alike.
var (
	okStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("37"))
	summaryStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))
	failStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	queuedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("12"))
	activeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("14"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("250"))
	noteStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("13"))
	logStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("69"))
)

const (
	glyphPass   = "✓"
	glyphFail   = "✗"
	glyphWarn   = "!"
	glyphQueued = "◉"
	glyphActive = "→"
	glyphSep    = "•"
	glyphBar    = "━"
)

func styled(w io.Writer, style lipgloss.Style, text string) {
	fmt.Fprintln(w, style.Render(text))
}

// PrintSuccess reports a finished command.
func PrintSuccess(text string) { styled(os.Stdout, okStyle, text) }

// PrintError goes to stderr so piped stdout only carries results.
func PrintError(text string) { styled(os.Stderr, failStyle, text) }

func PrintWarning(text string) { styled(os.Stdout, warnStyle, text) }

// PrintDetail is for secondary lines such as removed paths.
func PrintDetail(text string) { styled(os.Stdout, noteStyle, text) }

// PrintStream echoes subprocess or remote progress lines.
func PrintStream(text string) { styled(os.Stdout, logStyle, text) }

// FHeader styles a section title inline.
func FHeader(text string) string { return headerStyle.Render(text) }
