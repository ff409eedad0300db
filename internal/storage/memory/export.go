package memory

import (
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/borderwars/server/internal/game"
)

// ExportSnapshot writes the snapshot as a (optionally gzipped) JSON file
// under the configured output directory and remembers it for LoadSnapshot.
func (b *Backend) ExportSnapshot(snap game.Snapshot) error {
	b.mu.Lock()
	b.snapshot = &snap
	b.mu.Unlock()

	if b.cfg.OutputDir == "" {
		return nil
	}
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	timestamp := snap.TakenAt.UTC().Format("20060102_150405")
	filename := fmt.Sprintf("borderwars_%s.json", timestamp)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}
	outputPath := filepath.Join(b.cfg.OutputDir, filename)

	file, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create snapshot file: %w", err)
	}
	defer file.Close()

	var w io.Writer = file
	var gz *gzip.Writer
	if b.cfg.CompressOutput {
		gz = gzip.NewWriter(file)
		defer gz.Close()
		w = gz
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(snap); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return fmt.Errorf("failed to flush snapshot: %w", err)
		}
	}
	return nil
}

// LoadSnapshot returns the most recent snapshot: the in-memory one if this
// backend exported during its lifetime, otherwise the newest snapshot file
// in the output directory. The second return is false when none exists.
func (b *Backend) LoadSnapshot() (game.Snapshot, bool, error) {
	b.mu.RLock()
	cached := b.snapshot
	b.mu.RUnlock()
	if cached != nil {
		return *cached, true, nil
	}

	if b.cfg.OutputDir == "" {
		return game.Snapshot{}, false, nil
	}
	entries, err := os.ReadDir(b.cfg.OutputDir)
	if err != nil {
		if os.IsNotExist(err) {
			return game.Snapshot{}, false, nil
		}
		return game.Snapshot{}, false, fmt.Errorf("failed to read output directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		name := entry.Name()
		if strings.HasPrefix(name, "borderwars_") &&
			(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")) {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return game.Snapshot{}, false, nil
	}
	sort.Strings(names)
	newest := names[len(names)-1]

	file, err := os.Open(filepath.Join(b.cfg.OutputDir, newest))
	if err != nil {
		return game.Snapshot{}, false, fmt.Errorf("failed to open snapshot file: %w", err)
	}
	defer file.Close()

	var r io.Reader = file
	if strings.HasSuffix(newest, ".gz") {
		gz, err := gzip.NewReader(file)
		if err != nil {
			return game.Snapshot{}, false, fmt.Errorf("failed to open gzip snapshot: %w", err)
		}
		defer gz.Close()
		r = gz
	}

	var snap game.Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return game.Snapshot{}, false, fmt.Errorf("failed to decode snapshot %s: %w", newest, err)
	}
	b.mu.Lock()
	b.snapshot = &snap
	b.mu.Unlock()
	return snap, true, nil
}
