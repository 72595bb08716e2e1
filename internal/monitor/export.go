package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/neo/interview_agent/internal/logging"
)

// ExportFile is the JSON document written by Export
type ExportFile struct {
	Events          []Event    `json:"events"`
	Statistics      Statistics `json:"statistics"`
	ExportTimestamp time.Time  `json:"export_timestamp"`
}

// ExportFileName returns the timestamped export name for t
func ExportFileName(t time.Time) string {
	return fmt.Sprintf("instruction_events_%s.json", t.Format("20060102_150405"))
}

// Export writes the snapshot into dir under a timestamped name and
// returns the written path
func (m *Monitor) Export(dir string) (string, error) {
	if dir == "" {
		dir = "."
	}
	path := filepath.Join(dir, ExportFileName(m.now()))
	if err := m.ExportTo(path); err != nil {
		return "", err
	}
	return path, nil
}

// ExportTo writes the snapshot to path
func (m *Monitor) ExportTo(path string) error {
	snap := m.Snapshot()
	doc := ExportFile{
		Events:          snap.Events,
		Statistics:      snap.Statistics,
		ExportTimestamp: m.now(),
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode monitor export: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create export directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write monitor export: %w", err)
	}

	logging.Info("Events exported", map[string]interface{}{
		"path":   path,
		"events": len(doc.Events),
	})
	return nil
}
