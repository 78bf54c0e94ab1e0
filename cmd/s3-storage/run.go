package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"s3-storage/internal/archive"
	"s3-storage/internal/config"
	"s3-storage/internal/fileset"
	"s3-storage/internal/platform"
	"s3-storage/internal/progress"
	"s3-storage/internal/upload"

	"go.uber.org/zap"
)

// run resolves opts.Source and uploads the result. The file list is final
// before the first transfer starts.
func run(ctx context.Context, opts config.Options, out io.Writer, sugar *zap.SugaredLogger) error {
	if !opts.Enable {
		sugar.Info("s3-storage is disabled.")
		return nil
	}

	resolver := fileset.NewResolver(fileset.WithDir(opts.WorkDir), fileset.WithLogger(sugar))
	files, err := resolver.Resolve(opts.Source)
	if err != nil {
		return fmt.Errorf("failed to resolve source: %w", err)
	}
	if len(files) == 0 {
		sugar.Warnf("No files matched %s", opts.Source)
		return nil
	}
	sugar.Infof("Matched %d file(s) for %s", len(files), opts.Source)

	if opts.DryRun {
		return preview(out, opts, files)
	}

	relativeTo := opts.RelativeTo
	if opts.Archive != "" {
		archivePath := archiveLocation(opts.Archive)
		if err := archive.Create(archivePath, files, archive.Options{
			Level:      opts.Compression,
			RelativeTo: opts.RelativeTo,
			Sugar:      sugar,
		}); err != nil {
			return err
		}
		if !opts.KeepArchive {
			defer func() {
				if err := os.Remove(archivePath); err != nil {
					sugar.Warnf("Failed to cleanup archive file: %v", err)
				} else {
					sugar.Debugf("Removed archive file: %s", archivePath)
				}
			}()
		} else {
			sugar.Infof("Keeping archive file at: %s", archivePath)
		}
		files = []string{archivePath}
		relativeTo = ""
	}

	uploader, err := newUploader(ctx, opts, sugar)
	if err != nil {
		return err
	}
	defer uploader.Close()

	if err := uploader.Preflight(ctx); err != nil {
		return err
	}

	jobs := upload.Jobs(files, opts.Destination, relativeTo)
	summary, err := upload.Run(ctx, uploader, jobs, progress.NewReporter(os.Stderr, sugar), sugar)
	if err != nil {
		return err
	}

	sugar.Infof("File %s uploaded to %s (%d file(s), %.2f MB in %s)",
		opts.Source, opts.Target(), summary.Files,
		float64(summary.Bytes)/1024/1024, summary.Duration.Round(time.Millisecond))
	return nil
}

// archiveLocation puts bare archive names in the temp directory and gives
// names without an extension the platform's native format.
func archiveLocation(name string) string {
	if filepath.Ext(name) == "" {
		name += "." + platform.ArchiveExtension()
	}
	if filepath.Base(name) == name {
		return archive.DefaultPath(platform.GetTempDir(), name)
	}
	return name
}

func newUploader(ctx context.Context, opts config.Options, sugar *zap.SugaredLogger) (upload.Uploader, error) {
	ssh := upload.SSHConfig{
		Host:                  opts.SSH.Host,
		Port:                  opts.SSH.Port,
		User:                  opts.SSH.User,
		Password:              opts.SSH.Password,
		KeyFile:               opts.SSH.KeyFile,
		RemotePath:            opts.SSH.RemotePath,
		InsecureIgnoreHostKey: opts.SSH.Insecure,
	}

	switch opts.Backend {
	case config.BackendRclone:
		return upload.NewRcloneUploader(ctx, opts.Remote, sugar)
	case config.BackendSFTP:
		return upload.NewSFTPUploader(ssh, sugar)
	case config.BackendSCP:
		return upload.NewSCPUploader(ssh, sugar)
	case config.BackendS3:
		return upload.NewS3Uploader(ctx, upload.S3Config{
			Bucket:      opts.Bucket,
			Region:      opts.Region,
			Endpoint:    opts.Endpoint,
			AccessKey:   opts.AccessKey,
			SecretKey:   opts.SecretKey,
			ACL:         opts.ACL,
			PartSizeMB:  opts.PartSizeMB,
			Concurrency: opts.Concurrency,
		}, sugar)
	default:
		return nil, fmt.Errorf("%w: %q", config.ErrUnknownBackend, opts.Backend)
	}
}

func preview(out io.Writer, opts config.Options, files []string) error {
	fmt.Fprintln(out, "\nPreview summary:")
	fmt.Fprintln(out, "---------------")
	fmt.Fprintf(out, "Source: %s\n", opts.Source)
	fmt.Fprintf(out, "Destination: %s\n", opts.Target())

	if opts.Archive != "" {
		fmt.Fprintf(out, "Archive: %s (compression level %d)\n", archiveLocation(opts.Archive), opts.Compression)
		for _, f := range files {
			fmt.Fprintf(out, "  %s => %s\n", f, archive.EntryName(f, opts.RelativeTo))
		}
		fmt.Fprintf(out, "Upload: %s\n", upload.Key(opts.Destination, archiveLocation(opts.Archive)))
		return nil
	}

	for _, job := range upload.Jobs(files, opts.Destination, opts.RelativeTo) {
		fmt.Fprintf(out, "  %s => %s\n", job.Source, job.Key)
	}
	return nil
}
