// Package archive bundles resolved files into a single compressed file so
// they can be uploaded as one object.
package archive

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const defaultCompressionLevel = 6

// ErrUnsupportedFormat is returned for archive names that are neither
// .tar.gz/.tgz nor .zip.
var ErrUnsupportedFormat = errors.New("unsupported archive format")

var bufferPool = sync.Pool{
	New: func() interface{} {
		return make([]byte, 32*1024)
	},
}

// Options controls how an archive is written.
type Options struct {
	// Level is the compression level, 0-9. Out of range uses 6.
	Level int
	// RelativeTo names entries by their path below this directory instead
	// of their base name.
	RelativeTo string
	Sugar      *zap.SugaredLogger
}

// entry is one file to add and the name it is stored under.
type entry struct {
	path string
	name string
	info os.FileInfo
}

// Create writes files into archivePath, choosing the format from the
// file extension.
func Create(archivePath string, files []string, opts Options) error {
	if opts.Level < 0 || opts.Level > 9 {
		opts.Level = defaultCompressionLevel
	}
	if opts.Sugar == nil {
		opts.Sugar = zap.NewNop().Sugar()
	}

	write, err := writerFor(archivePath)
	if err != nil {
		return err
	}

	entries, err := collect(files, opts)
	if err != nil {
		return err
	}

	outFile, err := os.Create(archivePath)
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}

	opts.Sugar.Infof("Creating archive %s with %d file(s), compression level %d", archivePath, len(entries), opts.Level)
	startTime := time.Now()
	if err := write(outFile, entries, opts.Level); err != nil {
		outFile.Close()
		discard(archivePath, opts.Sugar)
		return fmt.Errorf("failed to create archive: %w", err)
	}
	if err := outFile.Close(); err != nil {
		discard(archivePath, opts.Sugar)
		return fmt.Errorf("failed to close archive: %w", err)
	}

	if stat, err := os.Stat(archivePath); err == nil {
		sizeMB := float64(stat.Size()) / 1024 / 1024
		opts.Sugar.Infof("Final archive size: %.2f MB (%s)", sizeMB, time.Since(startTime).Round(time.Millisecond))
	}
	return nil
}

// discard removes a partially written archive.
func discard(archivePath string, sugar *zap.SugaredLogger) {
	if err := os.Remove(archivePath); err != nil {
		sugar.Warnf("Failed to remove incomplete archive %s: %v", archivePath, err)
	}
}

type writeFunc func(out *os.File, entries []entry, level int) error

func writerFor(archivePath string) (writeFunc, error) {
	lower := strings.ToLower(archivePath)
	switch {
	case strings.HasSuffix(lower, ".tar.gz"), strings.HasSuffix(lower, ".tgz"):
		return writeTarGz, nil
	case strings.HasSuffix(lower, ".zip"):
		return writeZip, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Base(archivePath))
	}
}

// EntryName returns the name file is stored under.
func EntryName(file, relativeTo string) string {
	if relativeTo != "" {
		if rel, err := filepath.Rel(relativeTo, file); err == nil && rel != "." && !strings.HasPrefix(rel, "..") {
			return filepath.ToSlash(rel)
		}
	}
	return filepath.Base(file)
}

// collect stats every file and drops later files whose entry name is
// already taken.
func collect(files []string, opts Options) ([]entry, error) {
	seen := make(map[string]struct{}, len(files))
	entries := make([]entry, 0, len(files))
	for _, f := range files {
		info, err := os.Stat(f)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", f, err)
		}
		name := EntryName(f, opts.RelativeTo)
		if _, ok := seen[name]; ok {
			opts.Sugar.Warnf("Skipping %s: archive already has an entry named %s", f, name)
			continue
		}
		seen[name] = struct{}{}
		entries = append(entries, entry{path: f, name: name, info: info})
	}
	return entries, nil
}

// DefaultPath returns a path for a named archive in the temp directory.
func DefaultPath(tempDir, name string) string {
	return filepath.Join(tempDir, filepath.Base(name))
}
