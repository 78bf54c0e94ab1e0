package archive

import (
	"archive/tar"
	"archive/zip"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/pgzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sourceFiles(t *testing.T) (string, []string) {
	t.Helper()
	root := t.TempDir()
	files := map[string]string{
		"app.jar":          "jar bytes",
		"docs/index.html":  "<html></html>",
		"docs/sub/app.jar": "another jar",
	}
	var paths []string
	for name, body := range files {
		p := filepath.Join(root, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(p), 0o755))
		require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return root, paths
}

func readTarGz(t *testing.T, path string) map[string]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	gz, err := pgzip.NewReader(f)
	require.NoError(t, err)
	defer gz.Close()

	got := map[string]string{}
	tr := tar.NewReader(gz)
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		data, err := io.ReadAll(tr)
		require.NoError(t, err)
		got[hdr.Name] = string(data)
	}
	return got
}

func readZip(t *testing.T, path string) map[string]string {
	t.Helper()
	zr, err := zip.OpenReader(path)
	require.NoError(t, err)
	defer zr.Close()
	RegisterZstd(&zr.Reader)

	got := map[string]string{}
	for _, f := range zr.File {
		assert.Equal(t, uint16(ZipMethodZstd), f.Method)
		rc, err := f.Open()
		require.NoError(t, err)
		data, err := io.ReadAll(rc)
		rc.Close()
		require.NoError(t, err)
		got[f.Name] = string(data)
	}
	return got
}

func TestCreate_TarGzRelative(t *testing.T) {
	root, files := sourceFiles(t)
	out := filepath.Join(t.TempDir(), "bundle.tar.gz")

	require.NoError(t, Create(out, files, Options{Level: 9, RelativeTo: root}))
	assert.Equal(t, map[string]string{
		"app.jar":          "jar bytes",
		"docs/index.html":  "<html></html>",
		"docs/sub/app.jar": "another jar",
	}, readTarGz(t, out))
}

func TestCreate_TarGzFlatSkipsDuplicateNames(t *testing.T) {
	_, files := sourceFiles(t)
	out := filepath.Join(t.TempDir(), "bundle.tgz")

	require.NoError(t, Create(out, files, Options{Level: 42}))
	got := readTarGz(t, out)
	assert.Len(t, got, 2)
	assert.Equal(t, "jar bytes", got["app.jar"])
	assert.Equal(t, "<html></html>", got["index.html"])
}

func TestCreate_Zip(t *testing.T) {
	root, files := sourceFiles(t)
	out := filepath.Join(t.TempDir(), "bundle.ZIP")

	require.NoError(t, Create(out, files, Options{Level: 3, RelativeTo: root}))
	assert.Equal(t, map[string]string{
		"app.jar":          "jar bytes",
		"docs/index.html":  "<html></html>",
		"docs/sub/app.jar": "another jar",
	}, readZip(t, out))
}

func TestCreate_Errors(t *testing.T) {
	_, files := sourceFiles(t)
	dir := t.TempDir()

	err := Create(filepath.Join(dir, "bundle.rar"), files, Options{})
	assert.True(t, errors.Is(err, ErrUnsupportedFormat))
	_, statErr := os.Stat(filepath.Join(dir, "bundle.rar"))
	assert.True(t, os.IsNotExist(statErr))

	err = Create(filepath.Join(dir, "bundle.zip"), []string{filepath.Join(dir, "missing")}, Options{})
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestCreate_RemovesIncompleteArchive(t *testing.T) {
	_, files := sourceFiles(t)
	dir := t.TempDir()
	// A directory passes the stat but cannot be read as file content.
	unreadable := append(files, t.TempDir())

	for _, name := range []string{"bundle.tar.gz", "bundle.zip"} {
		t.Run(name, func(t *testing.T) {
			out := filepath.Join(dir, name)
			err := Create(out, unreadable, Options{})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "failed to create archive")
			assert.NoFileExists(t, out)
		})
	}
}

func TestEntryName(t *testing.T) {
	root := filepath.FromSlash("/build")
	assert.Equal(t, "a/b.txt", EntryName(filepath.Join(root, "a", "b.txt"), root))
	assert.Equal(t, "b.txt", EntryName(filepath.Join(root, "a", "b.txt"), ""))
	assert.Equal(t, "c.txt", EntryName(filepath.FromSlash("/other/c.txt"), root))
}
