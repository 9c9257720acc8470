// Package catalog owns the tiny text file that records where a store's
// index and log files live. It is deliberately minimal: the spec treats
// the system catalog as an external collaborator observed only through
// this file format (spec.md §6), not a component to design.
package catalog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Catalog is the three-line contract: index file path, log file path,
// and a reserved line kvslite uses to stamp a run id when it initializes
// the store. Read returns the run id, but nothing in kvslite compares it
// on reopen, so it does not detect a catalog left behind by a
// non-graceful exit.
type Catalog struct {
	IndexPath string
	LogPath   string
	RunID     string
}

// Paths derives the catalog file path and the {index,log} file paths
// from a directory and a store name, mirroring original_source/kv.cc's
// "<path>sc.txt" convention.
func Paths(dir, name string) (scPath, indexPath, logPath string) {
	base := filepath.Join(dir, name)
	return base + "sc.txt", base + ".index", base + ".log"
}

// New builds a fresh Catalog for (dir, name), stamping a new run id.
func New(dir, name string) Catalog {
	_, indexPath, logPath := Paths(dir, name)
	return Catalog{IndexPath: indexPath, LogPath: logPath, RunID: uuid.NewString()}
}

// Write persists the catalog as three lines of text.
func Write(scPath string, c Catalog) error {
	f, err := os.Create(scPath)
	if err != nil {
		return fmt.Errorf("catalog: create %s: %w", scPath, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, c.IndexPath)
	fmt.Fprintln(w, c.LogPath)
	fmt.Fprintln(w, c.RunID)
	if err := w.Flush(); err != nil {
		return fmt.Errorf("catalog: flush %s: %w", scPath, err)
	}
	return f.Sync()
}

// Read loads a catalog previously written by Write.
func Read(scPath string) (Catalog, error) {
	f, err := os.Open(scPath)
	if err != nil {
		return Catalog{}, fmt.Errorf("catalog: open %s: %w", scPath, err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	lines := make([]string, 0, 3)
	for sc.Scan() && len(lines) < 3 {
		lines = append(lines, sc.Text())
	}
	if err := sc.Err(); err != nil {
		return Catalog{}, fmt.Errorf("catalog: read %s: %w", scPath, err)
	}
	if len(lines) < 2 {
		return Catalog{}, fmt.Errorf("catalog: %s is malformed, got %d lines", scPath, len(lines))
	}

	c := Catalog{IndexPath: lines[0], LogPath: lines[1]}
	if len(lines) == 3 {
		c.RunID = lines[2]
	}
	return c, nil
}

// Exists reports whether a catalog file is present at scPath.
func Exists(scPath string) bool {
	_, err := os.Stat(scPath)
	return err == nil
}
