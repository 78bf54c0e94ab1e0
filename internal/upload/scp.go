package upload

import (
	"context"
	"fmt"
	"io"
	"path"

	"s3-storage/internal/progress"

	"al.essio.dev/pkg/shellescape"
	scp "github.com/bramvdbogaerde/go-scp"
	"go.uber.org/zap"
)

// SCPUploader copies files with the SCP protocol.
type SCPUploader struct {
	config SSHConfig
	auth   sshAuth
	client *scp.Client
	sugar  *zap.SugaredLogger
}

// NewSCPUploader connects to config.Host.
func NewSCPUploader(config SSHConfig, sugar *zap.SugaredLogger) (*SCPUploader, error) {
	if sugar == nil {
		sugar = zap.NewNop().Sugar()
	}

	cc, auth, err := clientConfig(config, sugar)
	if err != nil {
		return nil, err
	}

	sugar.Infof("Connecting to %s@%s using native SCP protocol", config.User, config.addr())
	client := scp.NewClient(config.addr(), cc)
	if err := client.Connect(); err != nil {
		auth.Close()
		return nil, fmt.Errorf("failed to connect to SSH server: %w", err)
	}
	return &SCPUploader{config: config, auth: auth, client: &client, sugar: sugar}, nil
}

// Preflight creates the remote base directory.
func (u *SCPUploader) Preflight(_ context.Context) error {
	if u.config.RemotePath == "" {
		return nil
	}
	return u.mkdirAll(u.config.RemotePath)
}

func (u *SCPUploader) mkdirAll(dir string) error {
	session, err := u.client.SSHClient().NewSession()
	if err != nil {
		return fmt.Errorf("failed to create SSH session: %w", err)
	}
	defer session.Close()

	if out, err := session.CombinedOutput(mkdirCommand(dir)); err != nil {
		return fmt.Errorf("failed to create remote directory %s: %w: %s", dir, err, out)
	}
	return nil
}

func mkdirCommand(dir string) string {
	return "mkdir -p " + shellescape.Quote(dir)
}

// Upload copies job.Source to RemotePath/job.Key.
func (u *SCPUploader) Upload(ctx context.Context, job Job, reporter progress.Reporter) (int64, error) {
	f, size, err := openSource(job)
	if err != nil {
		return 0, err
	}
	defer f.Close()

	remote := u.config.remoteFile(job.Key)
	if err := u.mkdirAll(path.Dir(remote)); err != nil {
		return 0, err
	}

	u.sugar.Debugf("Uploading %s to %s:%s", job.Source, u.config.Host, remote)
	reporter.Start(job.Key, size)
	var body *progress.Reader
	err = u.client.CopyFromFilePassThru(ctx, *f, remote, "0644", func(r io.Reader, _ int64) io.Reader {
		body = progress.NewReader(r, reporter)
		return body
	})
	if err != nil {
		return 0, fmt.Errorf("failed to upload file: %w", err)
	}

	sent := size
	if body != nil {
		sent = body.Transferred()
	}
	reporter.Done(sent)
	return sent, nil
}

func (u *SCPUploader) Close() error {
	u.client.Close()
	return u.auth.Close()
}
