package main

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"s3-storage/internal/config"
	"s3-storage/internal/platform"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, body := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	}
	return dir
}

func rcloneOptions(t *testing.T, workDir string) config.Options {
	t.Helper()
	t.Setenv("RCLONE_CONFIG", filepath.Join(t.TempDir(), "rclone.conf"))
	return config.Options{
		Enable:      true,
		Backend:     config.BackendRclone,
		Remote:      t.TempDir(),
		WorkDir:     workDir,
		Compression: 6,
	}
}

func TestRun_Disabled(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	err := run(context.Background(), config.Options{Source: "*.txt"}, &bytes.Buffer{}, zap.New(core).Sugar())
	require.NoError(t, err)
	assert.Equal(t, 1, logs.FilterMessage("s3-storage is disabled.").Len())
}

func TestRun_NoMatches(t *testing.T) {
	opts := rcloneOptions(t, t.TempDir())
	opts.Source = "missing/*.jar"
	opts.Destination = "releases"

	require.NoError(t, run(context.Background(), opts, &bytes.Buffer{}, zap.NewNop().Sugar()))
	entries, err := os.ReadDir(opts.Remote)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_DryRun(t *testing.T) {
	work := writeTree(t, map[string]string{"target/app.jar": "jar", "target/app.pom": "pom"})
	opts := rcloneOptions(t, work)
	opts.Source = "target/*.jar;target/*.pom"
	opts.Destination = "releases/1.0"
	opts.DryRun = true

	var out bytes.Buffer
	require.NoError(t, run(context.Background(), opts, &out, zap.NewNop().Sugar()))

	assert.Contains(t, out.String(), "=> releases/1.0/app.jar")
	assert.Contains(t, out.String(), "=> releases/1.0/app.pom")
	entries, err := os.ReadDir(opts.Remote)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRun_UploadsMatchedFiles(t *testing.T) {
	work := writeTree(t, map[string]string{
		"build/index.html":      "<html></html>",
		"build/docs/guide.html": "guide",
		"build/.cache/x.html":   "hidden dir, visible file",
		"build/.hidden.html":    "hidden",
		"build/style.css":       "css",
	})
	opts := rcloneOptions(t, work)
	opts.Source = "build/**.html"
	opts.Destination = "site"
	opts.RelativeTo = filepath.Join(work, "build")

	core, logs := observer.New(zap.InfoLevel)
	require.NoError(t, run(context.Background(), opts, &bytes.Buffer{}, zap.New(core).Sugar()))

	for key, body := range map[string]string{
		"site/index.html":      "<html></html>",
		"site/docs/guide.html": "guide",
		"site/.cache/x.html":   "hidden dir, visible file",
	} {
		data, err := os.ReadFile(filepath.Join(opts.Remote, filepath.FromSlash(key)))
		require.NoError(t, err, key)
		assert.Equal(t, body, string(data))
	}
	assert.NoFileExists(t, filepath.Join(opts.Remote, "site", ".hidden.html"))
	assert.NoFileExists(t, filepath.Join(opts.Remote, "site", "style.css"))
	assert.Equal(t, 1, logs.FilterMessage("index.html transferred 13 bytes.").Len())
}

func TestRun_Archive(t *testing.T) {
	work := writeTree(t, map[string]string{"out/a.log": "a", "out/b.log": "b"})
	opts := rcloneOptions(t, work)
	opts.Source = "out/*.log"
	opts.Destination = "logs"
	opts.Archive = filepath.Join(t.TempDir(), "logs.tar.gz")

	require.NoError(t, run(context.Background(), opts, &bytes.Buffer{}, zap.NewNop().Sugar()))

	assert.FileExists(t, filepath.Join(opts.Remote, "logs", "logs.tar.gz"))
	assert.NoFileExists(t, opts.Archive)
}

func TestRun_KeepArchive(t *testing.T) {
	work := writeTree(t, map[string]string{"out/a.log": "a"})
	opts := rcloneOptions(t, work)
	opts.Source = "out/*.log"
	opts.Destination = "logs"
	opts.Archive = filepath.Join(t.TempDir(), "logs.zip")
	opts.KeepArchive = true

	require.NoError(t, run(context.Background(), opts, &bytes.Buffer{}, zap.NewNop().Sugar()))

	assert.FileExists(t, filepath.Join(opts.Remote, "logs", "logs.zip"))
	assert.FileExists(t, opts.Archive)
}

func TestRun_UnknownBackend(t *testing.T) {
	work := writeTree(t, map[string]string{"a.txt": "a"})
	opts := config.Options{Enable: true, Backend: "ftp", Source: "*.txt", Destination: "d", WorkDir: work}

	err := run(context.Background(), opts, &bytes.Buffer{}, zap.NewNop().Sugar())
	assert.True(t, errors.Is(err, config.ErrUnknownBackend))
}

func TestArchiveLocation(t *testing.T) {
	assert.Equal(t, filepath.Join(os.TempDir(), "site.zip"), archiveLocation("site.zip"))

	explicit := filepath.Join("build", "site.zip")
	assert.Equal(t, explicit, archiveLocation(explicit))

	assert.Equal(t, filepath.Join(os.TempDir(), "site."+platform.ArchiveExtension()), archiveLocation("site"))
	assert.Equal(t, filepath.Join("build", "site."+platform.ArchiveExtension()), archiveLocation(filepath.Join("build", "site")))
}

func TestRun_ArchiveWithoutExtension(t *testing.T) {
	work := writeTree(t, map[string]string{"out/a.log": "a"})
	opts := rcloneOptions(t, work)
	opts.Source = "out/*.log"
	opts.Destination = "logs"
	opts.Archive = filepath.Join(t.TempDir(), "logs")

	require.NoError(t, run(context.Background(), opts, &bytes.Buffer{}, zap.NewNop().Sugar()))

	assert.FileExists(t, filepath.Join(opts.Remote, "logs", "logs."+platform.ArchiveExtension()))
}

func TestRootCmd_DisabledByDefault(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--destination", "d", "*.txt"})
	cmd.SetOut(&bytes.Buffer{})
	assert.NoError(t, cmd.Execute())
}

func TestRootCmd_DryRunRelativeTo(t *testing.T) {
	work := writeTree(t, map[string]string{
		"build/index.html":      "<html></html>",
		"build/docs/guide.html": "guide",
	})
	t.Chdir(work)
	t.Setenv("RCLONE_CONFIG", filepath.Join(t.TempDir(), "rclone.conf"))

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs([]string{
		"--enable", "--dry-run",
		"--backend", "rclone", "--remote", t.TempDir(),
		"--destination", "docs",
		"--relative-to", "build",
		"build/**.html",
	})
	cmd.SetOut(&out)
	require.NoError(t, cmd.Execute())

	assert.Contains(t, out.String(), "=> docs/index.html")
	assert.Contains(t, out.String(), "=> docs/docs/guide.html")
}

func TestRootCmd_MissingDestination(t *testing.T) {
	t.Chdir(t.TempDir())

	cmd := newRootCmd()
	cmd.SetArgs([]string{"--enable", "*.txt"})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	err := cmd.Execute()
	assert.True(t, errors.Is(err, config.ErrMissingDestination))
}
