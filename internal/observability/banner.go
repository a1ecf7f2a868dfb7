package observability

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/term"
)

const (
	colorReset    = "\033[0m"
	colorBold     = "\033[1m"
	colorPurple   = "\033[35m"
	colorNeonCyan = "\033[96m"
	colorNeonMag  = "\033[95m"
	colorNeonRed  = "\033[91m"
	colorNeonGrn  = "\033[92m"
)

// termMu serializes all terminal output so status lines never interleave
// with log writes.
var termMu sync.Mutex

func termWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return 80
	}
	return w
}

// colorEnabled reports whether w is an interactive terminal.
func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

type termWriter struct{}

func (tw termWriter) Write(p []byte) (n int, err error) {
	termMu.Lock()
	defer termMu.Unlock()
	return os.Stderr.Write(p)
}

// NewTermWriter returns a stderr writer that shares the terminal lock
// with status output.
func NewTermWriter() io.Writer {
	return termWriter{}
}

const banner = `
    _    ___   _____ _____ ____ _____ _____ ____
   / \  |_ _| |_   _| ____/ ___|_   _| ____|  _ \
  / _ \  | |    | | |  _| \___ \ | | |  _| | |_) |
 / ___ \ | |    | | | |___ ___) || | | |___|  _ <
/_/   \_\___|   |_| |_____|____/ |_| |_____|_| \_\

          >> BOUNDED BROWSER AGENT <<
`

// PrintBanner writes the centered logo to w.
func PrintBanner(w io.Writer) {
	width := termWidth()
	color := colorEnabled(w)

	termMu.Lock()
	defer termMu.Unlock()
	for _, l := range strings.Split(banner, "\n") {
		padding := (width - len(l)) / 2
		if padding < 0 {
			padding = 0
		}
		if color {
			fmt.Fprintf(w, "%s%s%s%s\n", strings.Repeat(" ", padding), colorNeonCyan, l, colorReset)
		} else {
			fmt.Fprintf(w, "%s%s\n", strings.Repeat(" ", padding), l)
		}
	}
}
