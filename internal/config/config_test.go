package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func load(t *testing.T, cfgFile string, args ...string) (Options, error) {
	t.Helper()
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(flags)
	require.NoError(t, flags.Parse(args))

	v := viper.New()
	require.NoError(t, Bind(v, flags))
	return Load(v, cfgFile)
}

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := load(t, "")
	require.NoError(t, err)
	assert.False(t, opts.Enable)
	assert.Equal(t, BackendS3, opts.Backend)
	assert.Equal(t, 6, opts.Compression)
	assert.Equal(t, "22", opts.SSH.Port)
	assert.Equal(t, "bucket-owner-full-control", opts.ACL)
}

func TestLoad_Flags(t *testing.T) {
	t.Chdir(t.TempDir())

	opts, err := load(t, "",
		"--enable",
		"--source", "target/*.jar;target/*.pom",
		"--destination", "releases/1.0",
		"--bucket", "artifacts",
		"--region", "eu-west-1",
		"--ssh-host", "ignored.example.com",
	)
	require.NoError(t, err)
	assert.True(t, opts.Enable)
	assert.Equal(t, "target/*.jar;target/*.pom", opts.Source)
	assert.Equal(t, "releases/1.0", opts.Destination)
	assert.Equal(t, "artifacts", opts.Bucket)
	assert.Equal(t, "eu-west-1", opts.Region)
	assert.Equal(t, "ignored.example.com", opts.SSH.Host)
	assert.Equal(t, "s3://artifacts/releases/1.0", opts.Target())
}

func TestLoad_Environment(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("S3_STORAGE_ENABLE", "true")
	t.Setenv("S3_STORAGE_SOURCE", "dist/*")
	t.Setenv("S3_STORAGE_DESTINATION", "site")
	t.Setenv("S3_STORAGE_BACKEND", "sftp")
	t.Setenv("S3_STORAGE_SSH_HOST", "files.example.com")
	t.Setenv("S3_STORAGE_SSH_REMOTE_PATH", "/srv/www")

	opts, err := load(t, "", "--ssh-user", "deploy")
	require.NoError(t, err)
	assert.Equal(t, BackendSFTP, opts.Backend)
	assert.Equal(t, "files.example.com", opts.SSH.Host)
	assert.Equal(t, "deploy@files.example.com:/srv/www/site", opts.Target())
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	cfg := filepath.Join(dir, "upload.yaml")
	require.NoError(t, os.WriteFile(cfg, []byte(`
enable: true
source: build/**.html
destination: docs
backend: rclone
remote: "gdrive:site"
compression: 9
`), 0o644))

	opts, err := load(t, cfg, "--compression", "1")
	require.NoError(t, err)
	assert.Equal(t, BackendRclone, opts.Backend)
	assert.Equal(t, "gdrive:site", opts.Remote)
	assert.Equal(t, "build/**.html", opts.Source)
	// Flags that were set win over the file.
	assert.Equal(t, 1, opts.Compression)
	assert.Equal(t, "gdrive:site/docs", opts.Target())
}

func TestLoad_DefaultConfigFileInWorkingDir(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".s3-storage.yaml"), []byte("bucket: from-file\n"), 0o644))

	opts, err := load(t, "")
	require.NoError(t, err)
	assert.Equal(t, "from-file", opts.Bucket)
}

func TestLoad_RelativePaths(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	wd, err := os.Getwd()
	require.NoError(t, err)

	opts, err := load(t, "", "--relative-to", "build")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "build"), opts.RelativeTo)
	assert.Empty(t, opts.WorkDir)

	opts, err = load(t, "", "--work-dir", "project", "--relative-to", "build")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(wd, "project"), opts.WorkDir)
	assert.Equal(t, filepath.Join(wd, "project", "build"), opts.RelativeTo)

	abs := filepath.Join(dir, "elsewhere")
	opts, err = load(t, "", "--work-dir", "project", "--relative-to", abs)
	require.NoError(t, err)
	assert.Equal(t, abs, opts.RelativeTo)
}

func TestLoad_MissingExplicitConfigFile(t *testing.T) {
	_, err := load(t, filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorContains(t, err, "failed to read config")
}

func TestValidate(t *testing.T) {
	valid := Options{
		Enable:      true,
		Source:      "a/*.txt",
		Destination: "d",
		Backend:     BackendS3,
		Bucket:      "b",
		Compression: 6,
	}

	tests := []struct {
		name   string
		mutate func(o *Options)
		want   error
	}{
		{"valid", func(o *Options) {}, nil},
		{"disabled skips checks", func(o *Options) { o.Enable = false; o.Source = "" }, nil},
		{"missing source", func(o *Options) { o.Source = "" }, ErrMissingSource},
		{"missing destination", func(o *Options) { o.Destination = "" }, ErrMissingDestination},
		{"missing bucket", func(o *Options) { o.Bucket = "" }, ErrMissingBucket},
		{"rclone without remote", func(o *Options) { o.Backend = BackendRclone }, ErrMissingRemote},
		{"scp without host", func(o *Options) { o.Backend = BackendSCP }, ErrMissingSSHHost},
		{"unknown backend", func(o *Options) { o.Backend = "ftp" }, ErrUnknownBackend},
		{"bad compression", func(o *Options) { o.Compression = 11 }, ErrInvalidCompression},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := valid
			tt.mutate(&o)
			err := o.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}
