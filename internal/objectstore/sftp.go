package objectstore

import (
	"context"
	"fmt"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	"github.com/tphakala/datamover/internal/logger"
)

const defaultSSHPort = 22

// SFTPConfig holds configuration for the SFTP store
type SFTPConfig struct {
	Host           string
	Port           int
	Username       string
	Password       string
	KeyFile        string
	KnownHostsFile string // host keys are not verified when empty
	BasePath       string
	Timeout        time.Duration
	MaxRetries     int
}

// SFTPStore uploads objects over SFTP. The connection is opened on first use
// and reopened after a failure.
type SFTPStore struct {
	config       SFTPConfig
	log          logger.Logger
	retryBackoff time.Duration

	mu     sync.Mutex
	conn   *ssh.Client
	client *sftp.Client
}

// NewSFTPStore validates the configuration. It does not connect.
func NewSFTPStore(config *SFTPConfig) (*SFTPStore, error) {
	if config.Host == "" {
		return nil, configError("sftp: host is required")
	}
	if config.Username == "" {
		return nil, configError("sftp: username is required")
	}
	if config.Password == "" && config.KeyFile == "" {
		return nil, configError("sftp: no authentication method provided")
	}

	c := *config
	if c.Port == 0 {
		c.Port = defaultSSHPort
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	c.BasePath = strings.TrimRight(c.BasePath, "/")
	if c.BasePath == "" {
		c.BasePath = "."
	}

	return &SFTPStore{config: c, log: GetLogger().Module("sftp"), retryBackoff: DefaultRetryBackoff}, nil
}

func (s *SFTPStore) Name() string { return TypeSFTP }

func (s *SFTPStore) clientConfig() (*ssh.ClientConfig, error) {
	config := &ssh.ClientConfig{
		User:    s.config.Username,
		Timeout: s.config.Timeout,
	}

	if s.config.KnownHostsFile != "" {
		callback, err := knownhosts.New(s.config.KnownHostsFile)
		if err != nil {
			return nil, configError("sftp: failed to load known hosts: %v", err)
		}
		config.HostKeyCallback = callback
	} else {
		s.log.Warn("sftp host key verification disabled, set known_hosts_file to enable it",
			logString("host", s.config.Host))
		config.HostKeyCallback = ssh.InsecureIgnoreHostKey() //nolint:gosec // opt-in via known_hosts_file
	}

	switch {
	case s.config.KeyFile != "":
		key, err := os.ReadFile(s.config.KeyFile)
		if err != nil {
			return nil, configError("sftp: failed to read private key: %v", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, configError("sftp: failed to parse private key: %v", err)
		}
		config.Auth = []ssh.AuthMethod{ssh.PublicKeys(signer)}
	default:
		config.Auth = []ssh.AuthMethod{ssh.Password(s.config.Password)}
	}
	return config, nil
}

// connect establishes an SFTP session, honouring ctx while dialing.
func (s *SFTPStore) connect(ctx context.Context) (*sftp.Client, error) {
	if s.client != nil {
		return s.client, nil
	}

	config, err := s.clientConfig()
	if err != nil {
		return nil, err
	}

	type connResult struct {
		conn   *ssh.Client
		client *sftp.Client
		err    error
	}
	resultChan := make(chan connResult, 1)

	go func() {
		addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
		conn, err := ssh.Dial("tcp", addr, config)
		if err != nil {
			resultChan <- connResult{err: fmt.Errorf("sftp: failed to connect: %w", err)}
			return
		}
		client, err := sftp.NewClient(conn)
		if err != nil {
			_ = conn.Close()
			resultChan <- connResult{err: fmt.Errorf("sftp: failed to create client: %w", err)}
			return
		}
		resultChan <- connResult{conn: conn, client: client}
	}()

	select {
	case <-ctx.Done():
		// close a connection that completes after we gave up
		go func() {
			if r := <-resultChan; r.client != nil {
				_ = r.client.Close()
				_ = r.conn.Close()
			}
		}()
		return nil, ctx.Err()
	case r := <-resultChan:
		if r.err != nil {
			return nil, r.err
		}
		s.conn, s.client = r.conn, r.client
		return r.client, nil
	}
}

func (s *SFTPStore) disconnect() {
	if s.client != nil {
		_ = s.client.Close()
	}
	if s.conn != nil {
		_ = s.conn.Close()
	}
	s.client, s.conn = nil, nil
}

// Put uploads to a temporary name and renames it over the key.
func (s *SFTPStore) Put(ctx context.Context, key string, body []byte, _ string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", configError("%v", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	remotePath := path.Join(s.config.BasePath, key)
	err := withRetry(ctx, retryConfig{
		maxRetries: s.config.MaxRetries,
		backoff:    s.retryBackoff,
		onRetry: func(err error, attempt int) {
			s.log.Warn("retrying sftp upload", logString("key", key), logInt("attempt", attempt), logError(err))
		},
	}, func() error {
		client, err := s.connect(ctx)
		if err != nil {
			return err
		}
		if err := s.upload(client, remotePath, body); err != nil {
			s.disconnect()
			return err
		}
		return nil
	})
	if err != nil {
		return "", storeError(err, TypeSFTP, "put", key)
	}

	return fmt.Sprintf("sftp://%s%s", s.config.Host, absPath(remotePath)), nil
}

func (s *SFTPStore) upload(client *sftp.Client, remotePath string, body []byte) error {
	dir := path.Dir(remotePath)
	if err := client.MkdirAll(dir); err != nil {
		return fmt.Errorf("sftp: failed to create directory %s: %w", dir, err)
	}

	tempPath := path.Join(dir, fmt.Sprintf("%s%d", tempFilePrefix, time.Now().UnixNano()))
	f, err := client.Create(tempPath)
	if err != nil {
		return fmt.Errorf("sftp: failed to create file: %w", err)
	}
	if _, err := f.Write(body); err != nil {
		_ = f.Close()
		_ = client.Remove(tempPath)
		return fmt.Errorf("sftp: failed to write file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = client.Remove(tempPath)
		return fmt.Errorf("sftp: failed to close file: %w", err)
	}
	if err := client.PosixRename(tempPath, remotePath); err != nil {
		_ = client.Remove(tempPath)
		return fmt.Errorf("sftp: failed to rename file: %w", err)
	}
	return nil
}

// Close ends the session.
func (s *SFTPStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disconnect()
	return nil
}

func absPath(p string) string {
	if strings.HasPrefix(p, "/") {
		return p
	}
	return "/" + p
}
