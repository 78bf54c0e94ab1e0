package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strconv"

	"s3-storage/internal/progress"

	"github.com/melbahja/goph"
	"github.com/pkg/sftp"
	"go.uber.org/zap"
)

// SFTPUploader writes files over an SFTP session opened with goph.
type SFTPUploader struct {
	config SSHConfig
	auth   sshAuth
	client *goph.Client
	sftp   *sftp.Client
	sugar  *zap.SugaredLogger
}

// NewSFTPUploader connects to config.Host and opens an SFTP session.
func NewSFTPUploader(config SSHConfig, sugar *zap.SugaredLogger) (*SFTPUploader, error) {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	port := uint64(22)
	if config.Port != "" {
		var err error
		if port, err = strconv.ParseUint(config.Port, 10, 16); err != nil {
			return nil, fmt.Errorf("invalid SSH port %q: %w", config.Port, err)
		}
	}

	cc, auth, err := clientConfig(config, sugar)
	if err != nil {
		return nil, err
	}

	sugar.Infof("Connecting to %s@%s", config.User, config.addr())
	client, err := goph.NewConn(&goph.Config{
		User:     config.User,
		Addr:     config.Host,
		Port:     uint(port),
		Auth:     goph.Auth(cc.Auth),
		Timeout:  goph.DefaultTimeout,
		Callback: cc.HostKeyCallback,
	})
	if err != nil {
		auth.Close()
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}

	sftpClient, err := client.NewSftp(
		sftp.UseConcurrentReads(true),
		sftp.UseConcurrentWrites(true),
		sftp.MaxConcurrentRequestsPerFile(32),
		sftp.MaxPacketUnchecked(256*1024),
	)
	if err != nil {
		client.Close()
		auth.Close()
		return nil, fmt.Errorf("failed to create SFTP client: %w", err)
	}

	return &SFTPUploader{config: config, auth: auth, client: client, sftp: sftpClient, sugar: sugar}, nil
}

// Preflight creates the remote base directory.
func (u *SFTPUploader) Preflight(_ context.Context) error {
	if u.config.RemotePath == "" {
		return nil
	}
	if err := u.sftp.MkdirAll(u.config.RemotePath); err != nil {
		return fmt.Errorf("failed to create remote directory: %w", err)
	}
	return nil
}

// Upload copies job.Source to RemotePath/job.Key.
func (u *SFTPUploader) Upload(ctx context.Context, job Job, reporter progress.Reporter) (int64, error) {
	f, size, err := openSource(job)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	remote := u.config.remoteFile(job.Key)
	if err := u.sftp.MkdirAll(path.Dir(remote)); err != nil {
		return 0, fmt.Errorf("failed to create remote directory: %w", err)
	}

	dst, err := u.sftp.Create(remote)
	if err != nil {
		return 0, fmt.Errorf("failed to create remote file: %w", err)
	}
	defer dst.Close()

	u.sugar.Debugf("Uploading %s to %s:%s", job.Source, u.config.Host, remote)
	reporter.Start(job.Key, size)
	body := progress.NewReader(contextReader{ctx: ctx, r: f}, reporter)
	if _, err := io.Copy(dst, body); err != nil {
		return body.Transferred(), fmt.Errorf("failed to copy file: %w", err)
	}
	reporter.Done(body.Transferred())
	return body.Transferred(), nil
}

func (u *SFTPUploader) Close() error {
	return errors.Join(u.sftp.Close(), u.client.Close(), u.auth.Close())
}

// contextReader stops a copy once ctx is cancelled.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
