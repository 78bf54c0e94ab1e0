package archive

import (
	"archive/tar"
	"fmt"
	"io"
	"os"

	"github.com/klauspost/pgzip"
)

func writeTarGz(outFile *os.File, entries []entry, level int) error {
	// Use parallel gzip compression with number of CPU cores
	gzipWriter, err := pgzip.NewWriterLevel(outFile, level)
	if err != nil {
		return fmt.Errorf("failed to create gzip writer: %w", err)
	}

	tarWriter := tar.NewWriter(gzipWriter)
	for _, e := range entries {
		if err := addTarEntry(tarWriter, e); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to close tar writer: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close gzip writer: %w", err)
	}
	return nil
}

func addTarEntry(tarWriter *tar.Writer, e entry) error {
	header, err := tar.FileInfoHeader(e.info, "")
	if err != nil {
		return fmt.Errorf("failed to create tar header: %w", err)
	}
	header.Name = e.name

	if err := tarWriter.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}

	file, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", e.path, err)
	}
	defer file.Close()

	buf := bufferPool.Get().([]byte)
	defer bufferPool.Put(buf)
	if _, err := io.CopyBuffer(tarWriter, file, buf); err != nil {
		return fmt.Errorf("failed to write file %s: %w", e.path, err)
	}
	return nil
}
