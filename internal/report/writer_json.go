package report

import (
	"encoding/json"
	"fmt"
	"log"
	"os"

	"spintraffic/internal/config"
	"spintraffic/internal/factory"
	"spintraffic/internal/model"
)

func init() {
	factory.RegisterWriter("json", func(cfg *config.Config) (model.Writer, error) {
		if cfg.Output.WriteJSON == "" {
			return nil, nil
		}
		return NewJSONWriter(cfg.Output.WriteJSON), nil
	})
}

// WindowSummary is the JSON document written for every window.
type WindowSummary struct {
	ID         string              `json:"id"`
	Start      string              `json:"start"`
	End        string              `json:"end"`
	TotalFlows int                 `json:"total_flows"`
	TotalSize  int64               `json:"total_size"`
	TotalCount int64               `json:"total_count"`
	Flows      []*model.FlowRecord `json:"flows"`
}

// JSONWriter writes every window, with its totals, to its own JSON file.
type JSONWriter struct {
	prefix string
}

// NewJSONWriter creates a writer for files named <prefix>_<end time>.json.
func NewJSONWriter(prefix string) model.Writer {
	return &JSONWriter{prefix: prefix}
}

// Name returns the writer name.
func (w *JSONWriter) Name() string {
	return "json"
}

// Write creates the window's JSON file.
func (w *JSONWriter) Write(window *model.Window) error {
	summary := WindowSummary{
		ID:         window.ID,
		Start:      window.Start,
		End:        window.End,
		TotalFlows: len(window.Flows),
		TotalSize:  window.TotalSize(),
		TotalCount: window.TotalCount(),
		Flows:      window.Flows,
	}

	filePath := FileName(w.prefix, window, "json")
	file, err := os.Create(filePath)
	if err != nil {
		return fmt.Errorf("failed to create output file '%s': %w", filePath, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(summary); err != nil {
		return fmt.Errorf("failed to encode window to json: %w", err)
	}

	log.Printf("Successfully wrote window %s to %s", window.ID, filePath)
	return nil
}
