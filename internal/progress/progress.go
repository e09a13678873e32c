// SPDX-License-Identifier: MPL-2.0

// Package progress renders progress bars and countdowns on interactive
// terminals and stays silent elsewhere.
package progress

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/pterm/pterm"
)

type (
	// Bar tracks progress toward a fixed total.
	Bar interface {
		// Add advances the bar by n units.
		Add(n int)
		// Title replaces the bar's label.
		Title(s string)
		// Done finalizes the bar.
		Done()
	}

	ptermBar struct {
		pb *pterm.ProgressbarPrinter
	}

	nopBar struct{}

	// countingWriter advances a bar by the number of bytes written.
	countingWriter struct {
		bar Bar
	}
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

// New starts a bar on w. It returns a no-op bar when w is not a terminal,
// total is unknown, or the bar cannot start.
func New(w io.Writer, title string, total int) Bar {
	if total <= 0 || !IsTerminal(w) {
		return nopBar{}
	}
	pb, err := pterm.DefaultProgressbar.
		WithTotal(total).
		WithTitle(title).
		WithWriter(w).
		WithRemoveWhenDone(false).
		Start()
	if err != nil {
		return nopBar{}
	}
	return &ptermBar{pb: pb}
}

// NewNop returns a bar that draws nothing.
func NewNop() Bar { return nopBar{} }

// Writer returns an io.Writer that advances bar; use with io.TeeReader.
func Writer(bar Bar) io.Writer {
	return countingWriter{bar: bar}
}

func (b *ptermBar) Add(n int)      { b.pb.Add(n) }
func (b *ptermBar) Title(s string) { b.pb.UpdateTitle(s) }
func (b *ptermBar) Done()          { _, _ = b.pb.Stop() }

func (nopBar) Add(int)      {}
func (nopBar) Title(string) {}
func (nopBar) Done()        {}

func (w countingWriter) Write(p []byte) (int, error) {
	w.bar.Add(len(p))
	return len(p), nil
}
