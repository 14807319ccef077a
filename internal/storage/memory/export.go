// internal/storage/memory/export.go
package memory

import (
	"compress/gzip"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/OCAP2/partswitch/pkg/core"
)

// ExportVersion is written into every export file.
const ExportVersion = 1

// Export is the root JSON structure
type Export struct {
	Version    int                `json:"version"`
	ExportedAt time.Time          `json:"exportedAt"`
	States     []core.HostState   `json:"states"`
	Events     []core.SwitchEvent `json:"events"`
}

// fileName returns the export file name for the configured compression.
func (b *Backend) fileName() string {
	if b.cfg.CompressOutput {
		return "host_states.json.gz"
	}
	return "host_states.json"
}

// ExportedFilePath returns the path of the last export.
func (b *Backend) ExportedFilePath() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastExportPath
}

// Export writes the stored states and events to the output directory.
func (b *Backend) Export() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	export := b.buildExport()
	outputPath := filepath.Join(b.cfg.OutputDir, b.fileName())

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	// Write to a temp file first so a failed write keeps the previous export
	tmp := outputPath + ".tmp"
	var err error
	if b.cfg.CompressOutput {
		err = writeGzipJSON(tmp, export)
	} else {
		err = writeJSON(tmp, export)
	}
	if err != nil {
		os.Remove(tmp)
		return err
	}
	if err := os.Rename(tmp, outputPath); err != nil {
		return fmt.Errorf("failed to move export into place: %w", err)
	}

	b.lastExportPath = outputPath
	return nil
}

func (b *Backend) buildExport() Export {
	export := Export{
		Version:    ExportVersion,
		ExportedAt: time.Now().UTC(),
		States:     make([]core.HostState, 0, len(b.states)),
		Events:     append(make([]core.SwitchEvent, 0, len(b.events)), b.events...),
	}
	for _, s := range b.states {
		export.States = append(export.States, s)
	}
	sort.Slice(export.States, func(i, j int) bool {
		return export.States[i].HostID < export.States[j].HostID
	})
	return export
}

// readExport loads the export file, returning nil when there is none yet.
func (b *Backend) readExport() (*Export, error) {
	path := filepath.Join(b.cfg.OutputDir, b.fileName())
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ReadExport(f, b.cfg.CompressOutput)
}

// ReadExport decodes an export written by Export.
func ReadExport(r io.Reader, compressed bool) (*Export, error) {
	if compressed {
		gz, err := gzip.NewReader(r)
		if err != nil {
			return nil, fmt.Errorf("failed to open gzip stream: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	var export Export
	if err := json.NewDecoder(r).Decode(&export); err != nil {
		return nil, fmt.Errorf("failed to decode export: %w", err)
	}
	if export.Version != ExportVersion {
		return nil, fmt.Errorf("unsupported export version %d", export.Version)
	}
	return &export, nil
}

func writeJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data Export) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
