// Package output provides consistent CLI output formatting for the
// codexlens command (adapted from the teacher's internal/output package),
// used instead of writing fmt.Println calls directly from cmd/codexlens.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer formats status lines, search results, and progress bars for a
// single output stream.
type Writer struct {
	out io.Writer
}

// New creates a Writer over out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// Status prints an icon-prefixed status line; an empty icon indents to
// align with iconed lines above it.
func (w *Writer) Status(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
	} else {
		_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
	}
}

// Statusf is Status with fmt.Sprintf formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a checkmark-prefixed line.
func (w *Writer) Success(msg string) { w.Status("✓", msg) }

// Warning prints a warning-prefixed line.
func (w *Writer) Warning(msg string) { w.Status("!", msg) }

// Error prints an error-prefixed line.
func (w *Writer) Error(msg string) { w.Status("x", msg) }

// Newline prints a blank line.
func (w *Writer) Newline() { _, _ = fmt.Fprintln(w.out) }

// Progress prints an in-place progress bar and terminates the line itself
// once current reaches total; ProgressDone ends a line left unfinished.
func (w *Writer) Progress(current, total int, msg string) {
	if total <= 0 {
		return
	}
	pct := float64(current) / float64(total) * 100
	bar := renderProgressBar(current, total, 30)
	_, _ = fmt.Fprintf(w.out, "\r[%s] %.0f%% %s", bar, pct, msg)
	if current >= total {
		_, _ = fmt.Fprintln(w.out)
	}
}

// ProgressDone terminates an in-place progress line.
func (w *Writer) ProgressDone() { _, _ = fmt.Fprintln(w.out) }

func renderProgressBar(current, total, width int) string {
	if total <= 0 {
		return strings.Repeat("░", width)
	}
	pct := float64(current) / float64(total)
	filled := int(pct * float64(width))
	if filled > width {
		filled = width
	}
	if filled < 0 {
		filled = 0
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}
