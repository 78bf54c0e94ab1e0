package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"runtime"

	"github.com/klauspost/compress/zstd"
)

// ZipMethodZstd is the zip compression method id for Zstandard entries.
const ZipMethodZstd = zstd.ZipMethodWinZip

// RegisterZstd makes r able to read entries written by Create.
func RegisterZstd(r *zip.Reader) {
	r.RegisterDecompressor(ZipMethodZstd, zstd.ZipDecompressor())
}

func writeZip(outFile *os.File, entries []entry, level int) error {
	zipWriter := zip.NewWriter(outFile)
	zipWriter.RegisterCompressor(ZipMethodZstd, zstd.ZipCompressor(
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(runtime.GOMAXPROCS(0)),
	))

	for _, e := range entries {
		if err := addZipEntry(zipWriter, e); err != nil {
			return err
		}
	}

	if err := zipWriter.Close(); err != nil {
		return fmt.Errorf("failed to close zip writer: %w", err)
	}
	return nil
}

func addZipEntry(zipWriter *zip.Writer, e entry) error {
	header, err := zip.FileInfoHeader(e.info)
	if err != nil {
		return fmt.Errorf("failed to create zip header: %w", err)
	}
	header.Name = e.name
	header.Method = ZipMethodZstd

	writer, err := zipWriter.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("failed to create zip entry: %w", err)
	}

	file, err := os.Open(e.path)
	if err != nil {
		return fmt.Errorf("failed to open file %s: %w", e.path, err)
	}
	defer file.Close()

	buf := bufferPool.Get().([]byte)
	defer bufferPool.Put(buf)
	if _, err := io.CopyBuffer(writer, file, buf); err != nil {
		return fmt.Errorf("failed to write file %s: %w", e.path, err)
	}
	return nil
}
