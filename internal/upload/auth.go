package upload

import (
	"fmt"
	"net"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/melbahja/goph"
	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
)

// DefaultSSHPort is used when SSHConfig.Port is empty.
const DefaultSSHPort = "22"

// SSHConfig holds SSH connection settings for the sftp and scp backends.
type SSHConfig struct {
	Host       string
	Port       string
	User       string
	Password   string
	KeyFile    string
	RemotePath string
	// InsecureIgnoreHostKey skips known_hosts verification.
	InsecureIgnoreHostKey bool
}

func (c SSHConfig) addr() string {
	port := c.Port
	if port == "" {
		port = DefaultSSHPort
	}
	return net.JoinHostPort(c.Host, port)
}

// remoteFile returns the remote path for key under the configured base.
func (c SSHConfig) remoteFile(key string) string {
	return path.Join(c.RemotePath, key)
}

// sshAuth is the chosen authentication. agentConn is set when the methods
// talk to a running SSH agent and must stay open until the session ends.
type sshAuth struct {
	methods   []ssh.AuthMethod
	agentConn net.Conn
}

// Close releases the agent connection, if any.
func (a sshAuth) Close() error {
	if a.agentConn == nil {
		return nil
	}
	return a.agentConn.Close()
}

// authMethods picks authentication in order: explicit key file, password,
// SSH agent, then the default key locations.
func authMethods(config SSHConfig, sugar *zap.SugaredLogger) (sshAuth, error) {
	if config.KeyFile != "" {
		keyFile, err := homedir.Expand(config.KeyFile)
		if err != nil {
			return sshAuth{}, fmt.Errorf("failed to expand SSH key path: %w", err)
		}
		signer, err := loadSigner(keyFile)
		if err != nil {
			return sshAuth{}, err
		}
		sugar.Debugf("Using SSH key from: %s", keyFile)
		return sshAuth{methods: []ssh.AuthMethod{ssh.PublicKeys(signer)}}, nil
	}

	if config.Password != "" {
		sugar.Debugf("Using password authentication")
		return sshAuth{methods: []ssh.AuthMethod{ssh.Password(config.Password)}}, nil
	}

	if method, conn, err := sshAgentAuth(); err == nil {
		sugar.Debugf("Using SSH agent")
		return sshAuth{methods: []ssh.AuthMethod{method}, agentConn: conn}, nil
	}

	sugar.Debugf("Checking for SSH keys in default locations")
	methods, err := tryDefaultKeys(sugar)
	if err != nil {
		return sshAuth{}, err
	}
	return sshAuth{methods: methods}, nil
}

func loadSigner(keyFile string) (ssh.Signer, error) {
	key, err := os.ReadFile(keyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read SSH key file: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("failed to parse SSH key: %w", err)
	}
	return signer, nil
}

// sshAgentAuth attempts to connect to SSH agent for authentication. The
// returned connection backs the signers and is closed by the caller.
func sshAgentAuth() (ssh.AuthMethod, net.Conn, error) {
	agentSock := os.Getenv("SSH_AUTH_SOCK")
	if agentSock == "" {
		return nil, nil, fmt.Errorf("SSH_AUTH_SOCK not set")
	}

	conn, err := net.Dial("unix", agentSock)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to SSH agent: %w", err)
	}

	agentClient := agent.NewClient(conn)
	return ssh.PublicKeysCallback(agentClient.Signers), conn, nil
}

// tryDefaultKeys loads every parseable key from ~/.ssh.
func tryDefaultKeys(sugar *zap.SugaredLogger) ([]ssh.AuthMethod, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get home directory: %w", err)
	}

	var methods []ssh.AuthMethod
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		keyPath := filepath.Join(home, ".ssh", name)
		signer, err := loadSigner(keyPath)
		if err != nil {
			continue
		}
		sugar.Debugf("Using SSH key: %s", keyPath)
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf("no valid SSH keys found in default locations")
	}
	return methods, nil
}

func hostKeyCallback(config SSHConfig) (ssh.HostKeyCallback, error) {
	if config.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	callback, err := goph.DefaultKnownHosts()
	if err != nil {
		return nil, fmt.Errorf("failed to load known_hosts: %w", err)
	}
	return callback, nil
}

func clientConfig(config SSHConfig, sugar *zap.SugaredLogger) (*ssh.ClientConfig, sshAuth, error) {
	auth, err := authMethods(config, sugar)
	if err != nil {
		return nil, sshAuth{}, err
	}
	callback, err := hostKeyCallback(config)
	if err != nil {
		auth.Close()
		return nil, sshAuth{}, err
	}
	return &ssh.ClientConfig{
		User:            config.User,
		Auth:            auth.methods,
		HostKeyCallback: callback,
		Timeout:         30 * time.Second,
	}, auth, nil
}
