//go:build !windows

package platform

import (
	"os"
	"strings"
)

func isHidden(path string, _ os.FileInfo) bool {
	return strings.HasPrefix(baseName(path), ".")
}
