package upload

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"s3-storage/internal/progress"

	_ "github.com/rclone/rclone/backend/local" // source files are read through the local backend
	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configfile"
	"github.com/rclone/rclone/fs/operations"
	"go.uber.org/zap"
)

// RcloneUploader copies files to any rclone remote ("remote:bucket/dir"
// or a local path), using rclone as a library.
type RcloneUploader struct {
	remote string
	fdst   fs.Fs
	sugar  *zap.SugaredLogger
}

// NewRcloneUploader loads the rclone config file and opens remote.
func NewRcloneUploader(ctx context.Context, remote string, sugar *zap.SugaredLogger) (*RcloneUploader, error) {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	configfile.Install()

	fdst, err := fs.NewFs(ctx, remote)
	if err != nil {
		return nil, fmt.Errorf("failed to open rclone remote %s: %w", remote, err)
	}
	return &RcloneUploader{remote: remote, fdst: fdst, sugar: sugar}, nil
}

// Preflight lists the remote root. A root that does not exist yet is fine;
// rclone creates it on the first copy.
func (u *RcloneUploader) Preflight(ctx context.Context) error {
	_, err := u.fdst.List(ctx, "")
	if err == nil || errors.Is(err, fs.ErrorDirNotFound) {
		return nil
	}
	return fmt.Errorf("failed to list rclone remote %s: %w", u.remote, err)
}

// Upload copies job.Source to job.Key below the remote root.
func (u *RcloneUploader) Upload(ctx context.Context, job Job, reporter progress.Reporter) (int64, error) {
	f, size, err := openSource(job)
	if err != nil {
		return 0, err
	}
	f.Close()

	dir, name := filepath.Split(job.Source)
	fsrc, err := fs.NewFs(ctx, dir)
	if err != nil {
		return 0, fmt.Errorf("failed to open local directory %s: %w", dir, err)
	}

	u.sugar.Debugf("Copying %s to %s", job.Source, fs.ConfigString(u.fdst)+"/"+job.Key)
	reporter.Start(job.Key, size)
	if err := operations.CopyFile(ctx, u.fdst, fsrc, job.Key, name); err != nil {
		return 0, fmt.Errorf("rclone upload failed: %w", err)
	}
	reporter.Done(size)
	return size, nil
}

func (u *RcloneUploader) Close() error {
	return nil
}
