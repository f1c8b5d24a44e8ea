package report

import (
	"bufio"
	"io"
	"os"

	"spintraffic/internal/config"
	"spintraffic/internal/factory"
	"spintraffic/internal/model"
)

const clearScreen = "\033[2J\033[H"

func init() {
	factory.RegisterWriter("console", func(cfg *config.Config) (model.Writer, error) {
		if cfg.Output.Quiet {
			return nil, nil
		}
		return NewConsoleWriter(os.Stdout, cfg.Output.ClearScreen, cfg.Output.ShowCSV), nil
	})
}

// ConsoleWriter prints each window for interactive viewing.
type ConsoleWriter struct {
	out         io.Writer
	clearScreen bool
	showCSV     bool
}

// NewConsoleWriter creates a writer printing to out. With showCSV set, the
// full view is printed instead of the simplified one.
func NewConsoleWriter(out io.Writer, clearScreen, showCSV bool) model.Writer {
	return &ConsoleWriter{out: out, clearScreen: clearScreen, showCSV: showCSV}
}

// Name returns the writer name.
func (w *ConsoleWriter) Name() string {
	return "console"
}

// Write prints the header and one line per flow.
func (w *ConsoleWriter) Write(window *model.Window) error {
	buf := bufio.NewWriter(w.out)
	if w.clearScreen {
		buf.WriteString(clearScreen)
	}
	buf.WriteString(Header(window) + "\n")
	for _, f := range window.Flows {
		if w.showCSV {
			buf.WriteString(CSVLine(f) + "\n")
		} else {
			buf.WriteString(SimplifiedLine(f) + "\n")
		}
	}
	return buf.Flush()
}
