package report

import (
	"bufio"
	"fmt"
	"log"
	"os"

	"spintraffic/internal/config"
	"spintraffic/internal/factory"
	"spintraffic/internal/model"
)

func init() {
	factory.RegisterWriter("csv", func(cfg *config.Config) (model.Writer, error) {
		if cfg.Output.WriteCSV == "" {
			return nil, nil
		}
		return NewCSVWriter(cfg.Output.WriteCSV), nil
	})
	factory.RegisterWriter("simplified", func(cfg *config.Config) (model.Writer, error) {
		if cfg.Output.WriteSimplified == "" {
			return nil, nil
		}
		return NewTextWriter(cfg.Output.WriteSimplified), nil
	})
}

// FileName returns the output file for a window: the prefix, the window end
// time and the extension.
func FileName(prefix string, w *model.Window, ext string) string {
	return fmt.Sprintf("%s_%s.%s", prefix, w.EndTime.Format(FileTimeLayout), ext)
}

// CSVWriter writes the full view of every window to its own CSV file.
type CSVWriter struct {
	prefix string
}

// NewCSVWriter creates a writer for files named <prefix>_<end time>.csv.
func NewCSVWriter(prefix string) model.Writer {
	return &CSVWriter{prefix: prefix}
}

// Name returns the writer name.
func (w *CSVWriter) Name() string {
	return "csv"
}

// Write creates the window's CSV file with one line per flow.
func (w *CSVWriter) Write(window *model.Window) error {
	lines := make([]string, 0, len(window.Flows))
	for _, f := range window.Flows {
		lines = append(lines, CSVLine(f))
	}
	return writeLines(FileName(w.prefix, window, "csv"), lines)
}

// TextWriter writes the simplified view of every window to its own text file.
type TextWriter struct {
	prefix string
}

// NewTextWriter creates a writer for files named <prefix>_<end time>.txt.
func NewTextWriter(prefix string) model.Writer {
	return &TextWriter{prefix: prefix}
}

// Name returns the writer name.
func (w *TextWriter) Name() string {
	return "simplified"
}

// Write creates the window's text file: the summary header followed by one
// line per flow.
func (w *TextWriter) Write(window *model.Window) error {
	lines := make([]string, 0, len(window.Flows)+1)
	lines = append(lines, Header(window))
	for _, f := range window.Flows {
		lines = append(lines, SimplifiedLine(f))
	}
	return writeLines(FileName(w.prefix, window, "txt"), lines)
}

func writeLines(filePath string, lines []string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create output file '%s': %w", filePath, err)
	}

	writer := bufio.NewWriter(file)
	for _, line := range lines {
		if _, err := writer.WriteString(line + "\n"); err != nil {
			file.Close()
			return fmt.Errorf("failed to write output file '%s': %w", filePath, err)
		}
	}
	if err := writer.Flush(); err != nil {
		file.Close()
		return fmt.Errorf("failed to write output file '%s': %w", filePath, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to close output file '%s': %w", filePath, err)
	}

	log.Printf("Successfully wrote %d lines to %s", len(lines), filePath)
	return nil
}
