package progress

import (
	"bytes"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
)

const esc = 0x1b

// Writer writes one line per registered name and rewrites a single line in
// place when its status changes, using ANSI cursor movement. Lines are never
// reordered or removed.
//
// A Writer with an empty message is disabled: Register and Update do nothing.
// Writer is not safe for concurrent use; callers serialize access.
type Writer struct {
	out   io.Writer
	msg   string
	lines []string
	index map[string]int

	styles map[string]lipgloss.Style
}

// Option configures a Writer.
type Option func(*Writer)

// WithColor renders the "done" and "error" status words in green and red.
// Colors are only emitted when out is a terminal that supports them.
func WithColor() Option {
	return func(w *Writer) {
		r := lipgloss.NewRenderer(w.out)
		w.styles = map[string]lipgloss.Style{
			StatusDone:  r.NewStyle().Foreground(lipgloss.Color("2")),
			StatusError: r.NewStyle().Foreground(lipgloss.Color("1")),
		}
	}
}

// NewWriter returns a Writer that prefixes every line with msg.
func NewWriter(out io.Writer, msg string, opts ...Option) *Writer {
	w := &Writer{
		out:   out,
		msg:   msg,
		index: make(map[string]int),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Enabled reports whether the writer produces any output.
func (w *Writer) Enabled() bool {
	return w.msg != ""
}

// Register appends name to the line registry and writes its initial line,
// leaving the cursor below every line registered so far.
func (w *Writer) Register(name string) error {
	if !w.Enabled() {
		return nil
	}
	if _, ok := w.index[name]; !ok {
		w.index[name] = len(w.lines)
	}
	w.lines = append(w.lines, name)

	if _, err := fmt.Fprintf(w.out, "%s %s ... \r\n", w.msg, name); err != nil {
		return err
	}
	return w.flush()
}

// Update rewrites the line registered for name so that it ends with status,
// then moves the cursor back to the bottom.
func (w *Writer) Update(name, status string) error {
	if !w.Enabled() {
		return nil
	}
	pos, ok := w.index[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLine, name)
	}
	diff := len(w.lines) - pos

	var buf bytes.Buffer
	// move up
	fmt.Fprintf(&buf, "%c[%dA", esc, diff)
	// erase
	fmt.Fprintf(&buf, "%c[2K\r", esc)
	fmt.Fprintf(&buf, "%s %s ... %s\r", w.msg, name, w.render(status))
	// move back down
	fmt.Fprintf(&buf, "%c[%dB", esc, diff)

	if _, err := w.out.Write(buf.Bytes()); err != nil {
		return err
	}
	return w.flush()
}

func (w *Writer) render(status string) string {
	if style, ok := w.styles[status]; ok {
		return style.Render(status)
	}
	return status
}

func (w *Writer) flush() error {
	if f, ok := w.out.(interface{ Flush() error }); ok {
		return f.Flush()
	}
	return nil
}
