package capture

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/gocircum/statefuzz/core/packet"
	"github.com/gocircum/statefuzz/pkg/logging"
)

// Seed is one session loaded from a capture file.
type Seed struct {
	Path    string
	Session string
	packet.Sequence
}

// IsCaptureFile reports whether name has a capture file extension.
func IsCaptureFile(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pcap", ".pcapng", ".cap":
		return true
	}
	return false
}

// LoadFile decodes every session of one capture file.
func LoadFile(path string, opts Options) ([]Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read capture %s: %w", path, err)
	}
	sessions, err := DecodeSessions(data, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	seeds := make([]Seed, 0, len(sessions))
	for _, s := range sessions {
		seeds = append(seeds, Seed{Path: path, Session: s.Key, Sequence: s.Sequence})
	}
	return seeds, nil
}

// LoadDir walks root recursively and loads every capture file in lexical
// path order. Malformed captures are logged and skipped; I/O errors abort
// the walk. root may also name a single file.
func LoadDir(root string, opts Options, logger logging.Logger) ([]Seed, error) {
	logger = logging.OrGlobal(logger).With("component", "capture")

	var paths []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if path == root || IsCaptureFile(path) {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	sort.Strings(paths)

	var seeds []Seed
	skipped := 0
	for _, path := range paths {
		loaded, err := LoadFile(path, opts)
		if errors.Is(err, ErrMalformedCapture) {
			logger.Warn("skipping malformed capture", "path", path, "error", err)
			skipped++
			continue
		}
		if err != nil {
			return nil, err
		}
		seeds = append(seeds, loaded...)
	}
	logger.Info("loaded captures", "root", root, "files", len(paths)-skipped, "skipped", skipped, "sessions", len(seeds))
	return seeds, nil
}
