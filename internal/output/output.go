// Package output formats CLI output: status lines during commands and
// search result listings, colored when stdout is a terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"

	"github.com/quarry-search/quarry/pkg/retrieval"
)

// Writer renders formatted CLI output.
type Writer struct {
	out      io.Writer
	useColor bool

	idStyle      lipgloss.Style
	scoreStyle   lipgloss.Style
	dimStyle     lipgloss.Style
	matchStyle   lipgloss.Style
	headerStyle  lipgloss.Style
	contextStyle lipgloss.Style
}

// New creates a Writer. Color is enabled only when out is a terminal.
func New(out io.Writer) *Writer {
	w := &Writer{out: out, useColor: isTerminal(out)}
	if w.useColor {
		w.idStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("81"))
		w.scoreStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
		w.dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("238"))
		w.matchStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("214"))
		w.headerStyle = lipgloss.NewStyle().Bold(true)
		w.contextStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("108"))
	}
	return w
}

func isTerminal(out io.Writer) bool {
	type fder interface{ Fd() uintptr }
	f, ok := out.(fder)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// Status prints a status message with an icon. Write errors are ignored for
// console output.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf prints a formatted status message.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a success message.
func (w *Writer) Success(msg string) { w.Status("✓", msg) }

// Successf prints a formatted success message.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning message.
func (w *Writer) Warning(msg string) { w.Status("!", msg) }

// Error prints an error message.
func (w *Writer) Error(msg string) { w.Status("✗", msg) }

// Errorf prints a formatted error message.
func (w *Writer) Errorf(format string, args ...any) {
	w.Error(fmt.Sprintf(format, args...))
}

// Newline prints an empty line.
func (w *Writer) Newline() {
	_, _ = fmt.Fprintln(w.out)
}

// Results renders a ranked result listing: id and score, chunk location when
// present, then the snippet with matched terms highlighted.
func (w *Writer) Results(results []retrieval.SearchResult) {
	if len(results) == 0 {
		w.Status("", "no results")
		return
	}

	for i, r := range results {
		header := fmt.Sprintf("%d. %s", i+1, w.render(w.idStyle, r.ID))
		header += w.render(w.scoreStyle, fmt.Sprintf("  (%.4f)", r.Score))
		_, _ = fmt.Fprintln(w.out, header)

		if r.Chunk != nil {
			loc := fmt.Sprintf("   %s lines %d-%d", r.Chunk.ParentID, r.Chunk.StartLine, r.Chunk.EndLine)
			_, _ = fmt.Fprintln(w.out, w.render(w.dimStyle, loc))
		}

		if r.Meta != nil && r.Meta.Snippet != "" {
			w.printSnippet(r.Meta.Snippet, r.Meta.Highlights)
		} else if r.Content != "" {
			w.printSnippet(firstLines(r.Content, 3), nil)
		}

		if i < len(results)-1 {
			_, _ = fmt.Fprintln(w.out)
		}
	}
}

// ResultsJSON writes results as a JSON array for scripting.
func (w *Writer) ResultsJSON(results []retrieval.SearchResult) error {
	enc := json.NewEncoder(w.out)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}

func (w *Writer) printSnippet(snippet string, highlights []string) {
	for _, line := range strings.Split(strings.TrimRight(snippet, "\n"), "\n") {
		rendered := line
		if w.useColor {
			for _, term := range highlights {
				rendered = highlightTerm(rendered, term, w.matchStyle)
			}
		}
		_, _ = fmt.Fprintf(w.out, "   %s\n", rendered)
	}
}

// highlightTerm styles case-insensitive occurrences of term in line.
func highlightTerm(line, term string, style lipgloss.Style) string {
	if term == "" {
		return line
	}

	var b strings.Builder
	lower := strings.ToLower(line)
	target := strings.ToLower(term)
	for {
		idx := strings.Index(lower, target)
		if idx < 0 {
			b.WriteString(line)
			return b.String()
		}
		b.WriteString(line[:idx])
		b.WriteString(style.Render(line[idx : idx+len(term)]))
		line = line[idx+len(term):]
		lower = lower[idx+len(term):]
	}
}

func (w *Writer) render(style lipgloss.Style, s string) string {
	if !w.useColor {
		return s
	}
	return style.Render(s)
}

func firstLines(s string, n int) string {
	lines := strings.Split(s, "\n")
	if len(lines) > n {
		lines = lines[:n]
	}
	return strings.Join(lines, "\n")
}
