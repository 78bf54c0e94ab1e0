// Package config binds command-line flags, S3_STORAGE_* environment
// variables and an optional YAML file into Options.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mitchellh/go-homedir"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "S3_STORAGE"

// Backends that can receive uploads.
const (
	BackendS3     = "s3"
	BackendRclone = "rclone"
	BackendSFTP   = "sftp"
	BackendSCP    = "scp"
)

var (
	ErrMissingSource      = errors.New("required parameter \"source\" not set")
	ErrMissingDestination = errors.New("required parameter \"destination\" not set")
	ErrMissingBucket      = errors.New("required parameter \"bucket\" not set")
	ErrMissingRemote      = errors.New("required parameter \"remote\" not set for rclone backend")
	ErrMissingSSHHost     = errors.New("SSH host is required when using sftp or scp backend")
	ErrUnknownBackend     = errors.New("unknown backend")
	ErrInvalidCompression = errors.New("compression level must be between 0 and 9")
)

// Options holds every parameter of an upload run.
type Options struct {
	Enable      bool   `mapstructure:"enable"`
	Source      string `mapstructure:"source"`
	Destination string `mapstructure:"destination"`
	Backend     string `mapstructure:"backend"`

	Bucket      string `mapstructure:"bucket"`
	Region      string `mapstructure:"region"`
	Endpoint    string `mapstructure:"endpoint"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	ACL         string `mapstructure:"acl"`
	PartSizeMB  int64  `mapstructure:"part_size_mb"`
	Concurrency int    `mapstructure:"concurrency"`

	Remote string     `mapstructure:"remote"` // rclone remote, e.g. "drive:artifacts"
	SSH    SSHOptions `mapstructure:"ssh"`

	WorkDir     string `mapstructure:"work_dir"`
	RelativeTo  string `mapstructure:"relative_to"`
	Archive     string `mapstructure:"archive"`
	Compression int    `mapstructure:"compression"`
	KeepArchive bool   `mapstructure:"keep_archive"`
	DryRun      bool   `mapstructure:"dry_run"`
	Verbose     bool   `mapstructure:"verbose"`
}

// SSHOptions configures the sftp and scp backends.
type SSHOptions struct {
	Host       string `mapstructure:"host"`
	Port       string `mapstructure:"port"`
	User       string `mapstructure:"user"`
	Password   string `mapstructure:"password"`
	KeyFile    string `mapstructure:"key"`
	RemotePath string `mapstructure:"remote_path"`
	Insecure   bool   `mapstructure:"insecure"`
}

// flagKeys maps each flag name to its configuration key.
var flagKeys = map[string]string{
	"enable":          "enable",
	"source":          "source",
	"destination":     "destination",
	"backend":         "backend",
	"bucket":          "bucket",
	"region":          "region",
	"endpoint":        "endpoint",
	"access-key":      "access_key",
	"secret-key":      "secret_key",
	"acl":             "acl",
	"part-size-mb":    "part_size_mb",
	"concurrency":     "concurrency",
	"remote":          "remote",
	"ssh-host":        "ssh.host",
	"ssh-port":        "ssh.port",
	"ssh-user":        "ssh.user",
	"ssh-password":    "ssh.password",
	"ssh-key":         "ssh.key",
	"ssh-remote-path": "ssh.remote_path",
	"ssh-insecure":    "ssh.insecure",
	"work-dir":        "work_dir",
	"relative-to":     "relative_to",
	"archive":         "archive",
	"compression":     "compression",
	"keep-archive":    "keep_archive",
	"dry-run":         "dry_run",
	"verbose":         "verbose",
}

// RegisterFlags defines every option on flags.
func RegisterFlags(flags *pflag.FlagSet) {
	flags.Bool("enable", false, "Allow the upload to run (disabled runs exit successfully without uploading)")
	flags.StringP("source", "s", "", "Wildcard expression of files to upload, ';' separates alternatives")
	flags.StringP("destination", "d", "", "Destination key prefix in the bucket or remote")
	flags.StringP("backend", "b", BackendS3, "Upload backend: s3, rclone, sftp or scp")

	flags.String("bucket", "", "S3 bucket name")
	flags.String("region", "", "AWS region")
	flags.String("endpoint", "", "Custom S3 endpoint URL (path-style addressing)")
	flags.String("access-key", "", "AWS access key (default credential chain when empty)")
	flags.String("secret-key", "", "AWS secret key")
	flags.String("acl", "bucket-owner-full-control", "Canned ACL applied to uploaded objects")
	flags.Int64("part-size-mb", 0, "Multipart upload part size in MiB (0 uses the SDK default)")
	flags.Int("concurrency", 0, "Parallel parts per multipart upload (0 uses the SDK default)")

	flags.String("remote", "", "rclone remote to upload to (e.g. \"gdrive:artifacts\")")

	flags.String("ssh-host", "", "SSH host to upload to")
	flags.String("ssh-port", "22", "SSH port")
	flags.String("ssh-user", "", "SSH username")
	flags.String("ssh-password", "", "SSH password (not recommended, use key file instead)")
	flags.String("ssh-key", "", "SSH private key file path (defaults to SSH agent, then ~/.ssh keys)")
	flags.String("ssh-remote-path", "", "Remote base path for uploads")
	flags.Bool("ssh-insecure", false, "Skip known_hosts verification")

	flags.String("work-dir", "", "Directory relative source alternatives are resolved from (defaults to the current directory)")
	flags.String("relative-to", "", "Key files by their path below this directory instead of their base name")
	flags.String("archive", "", "Bundle matched files into this archive (.tar.gz, .tgz or .zip; no extension picks the platform default) and upload it instead")
	flags.IntP("compression", "c", 6, "Archive compression level (0-9)")
	flags.Bool("keep-archive", false, "Keep the archive file after uploading")
	flags.Bool("dry-run", false, "List matched files and their keys without uploading")
	flags.BoolP("verbose", "v", false, "Enable verbose output")
}

// Bind attaches every registered flag to v and enables S3_STORAGE_*
// environment lookups.
func Bind(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		flag := flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return nil
}

// Load reads cfgFile (or .s3-storage.yaml from the working or home
// directory when cfgFile is empty), unmarshals v and validates the result.
func Load(v *viper.Viper, cfgFile string) (Options, error) {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.SetConfigName(".s3-storage")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(home)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return Options{}, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var opts Options
	if err := v.Unmarshal(&opts); err != nil {
		return Options{}, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := opts.expandPaths(); err != nil {
		return Options{}, err
	}
	return opts, opts.Validate()
}

// expandPaths expands '~' and makes WorkDir and RelativeTo absolute.
// A relative RelativeTo is taken from WorkDir, or the current directory
// when WorkDir is empty, so it lines up with the resolved file paths.
func (o *Options) expandPaths() error {
	for _, p := range []*string{&o.WorkDir, &o.RelativeTo, &o.Archive, &o.SSH.KeyFile} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("failed to expand %q: %w", *p, err)
		}
		*p = expanded
	}

	if o.WorkDir != "" {
		abs, err := filepath.Abs(o.WorkDir)
		if err != nil {
			return fmt.Errorf("failed to resolve work dir %q: %w", o.WorkDir, err)
		}
		o.WorkDir = abs
	}
	if o.RelativeTo != "" && !filepath.IsAbs(o.RelativeTo) {
		base := o.WorkDir
		if base == "" {
			wd, err := os.Getwd()
			if err != nil {
				return fmt.Errorf("failed to get working directory: %w", err)
			}
			base = wd
		}
		o.RelativeTo = filepath.Join(base, o.RelativeTo)
	}
	return nil
}

// Validate checks the options needed by the selected backend. Disabled
// runs are always valid.
func (o Options) Validate() error {
	if !o.Enable {
		return nil
	}
	if o.Source == "" {
		return ErrMissingSource
	}
	if o.Destination == "" {
		return ErrMissingDestination
	}
	if o.Compression < 0 || o.Compression > 9 {
		return ErrInvalidCompression
	}

	switch o.Backend {
	case BackendS3:
		if o.Bucket == "" {
			return ErrMissingBucket
		}
	case BackendRclone:
		if o.Remote == "" {
			return ErrMissingRemote
		}
	case BackendSFTP, BackendSCP:
		if o.SSH.Host == "" {
			return ErrMissingSSHHost
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownBackend, o.Backend)
	}
	return nil
}

// Target describes where uploads go, for log lines.
func (o Options) Target() string {
	switch o.Backend {
	case BackendRclone:
		return strings.TrimSuffix(o.Remote, "/") + "/" + o.Destination
	case BackendSFTP, BackendSCP:
		return fmt.Sprintf("%s@%s:%s", o.SSH.User, o.SSH.Host, strings.TrimSuffix(o.SSH.RemotePath, "/")+"/"+o.Destination)
	default:
		return fmt.Sprintf("s3://%s/%s", o.Bucket, o.Destination)
	}
}
