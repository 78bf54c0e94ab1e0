package platform

import (
	"os"
	"path/filepath"
	"runtime"
)

// IsHidden reports whether the file at path is hidden by the convention of
// the running platform.
func IsHidden(path string, info os.FileInfo) bool {
	return isHidden(path, info)
}

// GetTempDir returns the directory used for intermediate archives.
func GetTempDir() string {
	return os.TempDir()
}

// ArchiveExtension returns the bundle format native to the platform.
func ArchiveExtension() string {
	if runtime.GOOS == "windows" {
		return "zip"
	}
	return "tar.gz"
}

func baseName(path string) string {
	return filepath.Base(path)
}
