package sftpx

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
)

type Config struct {
	Host     string
	Port     int
	User     string
	Password string
	KeyPath  string
	KeyText  string
}

// Session is one SFTP connection. Sessions are never shared: every scan or
// stream dials its own and closes it when done, so a wedged transfer cannot
// poison anything else.
type Session interface {
	ReadDir(path string) ([]os.FileInfo, error)
	Stat(path string) (os.FileInfo, error)
	Open(path string) (io.ReadSeekCloser, error)
	Close() error
}

type Factory interface {
	Connect() (Session, error)
}

// DialFactory opens a fresh SSH transport plus SFTP subsystem per Connect.
type DialFactory struct {
	cfg Config
}

func NewFactory(cfg Config) *DialFactory {
	return &DialFactory{cfg: cfg}
}

func (f *DialFactory) Connect() (Session, error) {
	auth, err := f.authMethods()
	if err != nil {
		return nil, err
	}
	conf := &ssh.ClientConfig{
		User:            f.cfg.User,
		Auth:            auth,
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         15 * time.Second,
	}
	addr := fmt.Sprintf("%s:%d", f.cfg.Host, f.cfg.Port)
	conn, err := ssh.Dial("tcp", addr, conf)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", addr, err)
	}
	cl, err := sftp.NewClient(conn)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("sftp subsystem: %w", err)
	}
	return &session{ssh: conn, sftp: cl}, nil
}

// Key auth is preferred when configured; inline key text wins over a key
// file so containerized deployments can avoid mounting one.
func (f *DialFactory) authMethods() ([]ssh.AuthMethod, error) {
	if f.cfg.KeyText != "" {
		signer, err := ssh.ParsePrivateKey([]byte(f.cfg.KeyText))
		if err != nil {
			return nil, fmt.Errorf("parse SSH_KEY_TEXT: %w", err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if f.cfg.KeyPath != "" {
		raw, err := os.ReadFile(f.cfg.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("read key %s: %w", f.cfg.KeyPath, err)
		}
		signer, err := ssh.ParsePrivateKey(raw)
		if err != nil {
			return nil, fmt.Errorf("parse key %s: %w", f.cfg.KeyPath, err)
		}
		return []ssh.AuthMethod{ssh.PublicKeys(signer)}, nil
	}
	if f.cfg.Password != "" {
		return []ssh.AuthMethod{ssh.Password(f.cfg.Password)}, nil
	}
	return nil, errors.New("sftpx: no credentials configured")
}

type session struct {
	ssh  *ssh.Client
	sftp *sftp.Client
}

func (s *session) ReadDir(path string) ([]os.FileInfo, error) { return s.sftp.ReadDir(path) }
func (s *session) Stat(path string) (os.FileInfo, error)      { return s.sftp.Stat(path) }

func (s *session) Open(path string) (io.ReadSeekCloser, error) {
	return s.sftp.Open(path)
}

func (s *session) Close() error {
	err := s.sftp.Close()
	if cerr := s.ssh.Close(); err == nil {
		err = cerr
	}
	return err
}
