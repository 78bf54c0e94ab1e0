package upload

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"s3-storage/internal/progress"

	"go.uber.org/zap"
)

var (
	// ErrBucketNotFound is returned by a preflight check when the target
	// bucket does not exist.
	ErrBucketNotFound = errors.New("bucket doesn't exist")
	// ErrTransferFailed wraps the first failed transfer of a run.
	ErrTransferFailed = errors.New("unable to upload file")
)

var keySeparators = regexp.MustCompile(`[\\/]+`)

// Job is one local file and the object key it is stored under.
type Job struct {
	Source string
	Key    string
}

// Uploader transfers files to one kind of remote storage.
type Uploader interface {
	// Preflight fails fast when the remote is unreachable or missing.
	Preflight(ctx context.Context) error
	// Upload copies job.Source to job.Key and returns the bytes sent.
	Upload(ctx context.Context, job Job, reporter progress.Reporter) (int64, error)
	Close() error
}

// Summary describes a finished run.
type Summary struct {
	Files    int
	Bytes    int64
	Duration time.Duration
}

// Key returns destination/<base name of file> with separator runs
// collapsed to '/'. A leading separator is dropped.
func Key(destination, file string) string {
	key := keySeparators.ReplaceAllString(destination+"/"+filepath.Base(file), "/")
	return strings.TrimPrefix(key, "/")
}

// RelativeKey keys file by its path below relativeTo instead of its base
// name. Files outside relativeTo fall back to Key.
func RelativeKey(destination, relativeTo, file string) string {
	if relativeTo == "" {
		return Key(destination, file)
	}
	rel, err := filepath.Rel(relativeTo, file)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return Key(destination, file)
	}
	key := keySeparators.ReplaceAllString(destination+"/"+rel, "/")
	return strings.TrimPrefix(key, "/")
}

// Jobs pairs every file with its key.
func Jobs(files []string, destination, relativeTo string) []Job {
	jobs := make([]Job, 0, len(files))
	for _, f := range files {
		jobs = append(jobs, Job{Source: f, Key: RelativeKey(destination, relativeTo, f)})
	}
	return jobs
}

// Run uploads jobs one after another and stops at the first failure.
func Run(ctx context.Context, u Uploader, jobs []Job, reporter progress.Reporter, sugar *zap.SugaredLogger) (summary Summary, err error) {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}
	if reporter == nil {
		reporter = progress.Discard
	}

	start := time.Now()
	defer func() { summary.Duration = time.Since(start) }()

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return summary, fmt.Errorf("%w: %s: %w", ErrTransferFailed, job.Source, err)
		}

		n, err := u.Upload(ctx, job, reporter)
		if err != nil {
			sugar.Errorf("File %s transfer failed: %v", filepath.Base(job.Source), err)
			return summary, fmt.Errorf("%w: %s: %w", ErrTransferFailed, job.Source, err)
		}
		sugar.Infof("%s transferred %d bytes.", filepath.Base(job.Source), n)

		summary.Files++
		summary.Bytes += n
	}
	return summary, nil
}

// openSource opens a job's file and returns it with its size.
func openSource(job Job) (*os.File, int64, error) {
	f, err := os.Open(job.Source)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to open local file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, fmt.Errorf("failed to stat local file: %w", err)
	}
	return f, info.Size(), nil
}
