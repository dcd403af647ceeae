package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"

	"github.com/tphakala/datamover/internal/logger"
)

const defaultFTPPort = 21

// FTPConfig holds configuration for the FTP store
type FTPConfig struct {
	Host       string
	Port       int
	Username   string
	Password   string
	BasePath   string
	Timeout    time.Duration
	MaxRetries int
}

// FTPStore uploads objects over FTP, one connection per upload.
type FTPStore struct {
	config FTPConfig
	log    logger.Logger
	dial   func(ctx context.Context) (ftpConn, error)

	retryBackoff time.Duration
}

// ftpConn is the part of *ftp.ServerConn the store uses.
type ftpConn interface {
	MakeDir(path string) error
	Stor(path string, r io.Reader) error
	Rename(from, to string) error
	Delete(path string) error
	Quit() error
}

// NewFTPStore validates the configuration. It does not connect.
func NewFTPStore(config *FTPConfig) (*FTPStore, error) {
	if config.Host == "" {
		return nil, configError("ftp: host is required")
	}

	c := *config
	if c.Port == 0 {
		c.Port = defaultFTPPort
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	c.BasePath = strings.TrimRight(c.BasePath, "/")

	s := &FTPStore{config: c, log: GetLogger().Module("ftp"), retryBackoff: DefaultRetryBackoff}
	s.dial = s.connect
	return s, nil
}

func (s *FTPStore) Name() string { return TypeFTP }

func (s *FTPStore) Close() error { return nil }

func (s *FTPStore) connect(ctx context.Context) (ftpConn, error) {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(s.config.Timeout), ftp.DialWithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("ftp: connection failed: %w", err)
	}
	if s.config.Username != "" {
		if err := conn.Login(s.config.Username, s.config.Password); err != nil {
			_ = conn.Quit()
			return nil, fmt.Errorf("ftp: login failed: %w", err)
		}
	}
	return conn, nil
}

// Put uploads to a temporary name in the target directory and renames it.
func (s *FTPStore) Put(ctx context.Context, key string, body []byte, _ string) (string, error) {
	if err := validateKey(key); err != nil {
		return "", configError("%v", err)
	}
	remotePath := path.Join(s.config.BasePath, key)

	err := withRetry(ctx, retryConfig{
		maxRetries: s.config.MaxRetries,
		backoff:    s.retryBackoff,
		onRetry: func(err error, attempt int) {
			s.log.Warn("retrying ftp upload", logString("key", key), logInt("attempt", attempt), logError(err))
		},
	}, func() error {
		conn, err := s.dial(ctx)
		if err != nil {
			return err
		}
		defer func() {
			if err := conn.Quit(); err != nil {
				s.log.Debug("ftp quit failed", logError(err))
			}
		}()
		return s.upload(conn, remotePath, body)
	})
	if err != nil {
		return "", storeError(err, TypeFTP, "put", key)
	}

	return fmt.Sprintf("ftp://%s%s", s.config.Host, absPath(remotePath)), nil
}

func (s *FTPStore) upload(conn ftpConn, remotePath string, body []byte) error {
	s.makeDirs(conn, path.Dir(remotePath))

	tempPath := path.Join(path.Dir(remotePath), fmt.Sprintf("%s%d", tempFilePrefix, time.Now().UnixNano()))
	if err := conn.Stor(tempPath, bytes.NewReader(body)); err != nil {
		_ = conn.Delete(tempPath)
		return fmt.Errorf("ftp: failed to store file: %w", err)
	}
	if err := conn.Rename(tempPath, remotePath); err != nil {
		_ = conn.Delete(tempPath)
		return fmt.Errorf("ftp: failed to rename temporary file: %w", err)
	}
	return nil
}

// makeDirs creates every component of dir. Errors are ignored because most
// servers report existing directories as failures; a missing directory
// surfaces on Stor.
func (s *FTPStore) makeDirs(conn ftpConn, dir string) {
	if dir == "." || dir == "/" || dir == "" {
		return
	}
	current := ""
	if strings.HasPrefix(dir, "/") {
		current = "/"
	}
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		current = path.Join(current, part)
		_ = conn.MakeDir(current)
	}
}
