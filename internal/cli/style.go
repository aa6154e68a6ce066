package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// ANSI styles used in the console output.
const (
	Bold   = "\033[1m"
	Green  = "\033[92m"
	Yellow = "\033[93m"
	Cyan   = "\033[36m"
	Red    = "\033[91m"
	reset  = "\033[0m"
)

// Color modes accepted by --color.
const (
	ColorAuto   = "auto"
	ColorAlways = "always"
	ColorNever  = "never"
)

// Printer writes the human-facing report of a tool.
type Printer struct {
	w     io.Writer
	color bool
}

func NewPrinter(w io.Writer, color bool) *Printer {
	return &Printer{w: w, color: color}
}

// ColorEnabled resolves a --color mode. In auto mode colours are used only
// when w is a terminal.
func ColorEnabled(mode string, w io.Writer) (bool, error) {
	switch strings.ToLower(mode) {
	case ColorAlways:
		return true, nil
	case ColorNever:
		return false, nil
	case ColorAuto, "":
		f, ok := w.(*os.File)
		return ok && term.IsTerminal(int(f.Fd())), nil
	default:
		return false, fmt.Errorf("unknown color mode: %s", mode)
	}
}

func (p *Printer) Writer() io.Writer {
	return p.w
}

// Style wraps s in the given style when colours are enabled.
func (p *Printer) Style(style, s string) string {
	if !p.color {
		return s
	}
	return style + s + reset
}

func (p *Printer) Printf(format string, args ...interface{}) {
	fmt.Fprintf(p.w, format, args...)
}

func (p *Printer) Println(args ...interface{}) {
	fmt.Fprintln(p.w, args...)
}

// Banner prints a bold title between two rules.
func (p *Printer) Banner(title string) {
	rule := strings.Repeat("=", 66)
	p.Println(p.Style(Bold, rule))
	p.Println(p.Style(Bold, " "+title))
	p.Println(p.Style(Bold, rule))
}
