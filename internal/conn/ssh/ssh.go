package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"

	"github.com/slok/remoterun/internal/conn"
	"github.com/slok/remoterun/internal/log"
)

const (
	// DefaultConnectTimeout is the default SSH connection timeout.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultSSHPort is the default SSH port.
	DefaultSSHPort = 22
)

// ChannelConfig holds the configuration for creating an SSH channel.
type ChannelConfig struct {
	// Host is the IP address or hostname of the target.
	Host string
	// Port is the SSH port (default: 22).
	Port int
	// User is the SSH user (e.g., "root").
	User string
	// PrivateKey is the PEM-encoded private key bytes.
	PrivateKey []byte
	// ConnectTimeout is the SSH connection timeout (default: 10s).
	ConnectTimeout time.Duration
	// Logger for logging (optional).
	Logger log.Logger
}

func (c *ChannelConfig) defaults() error {
	if c.Host == "" {
		return fmt.Errorf("host is required")
	}
	if c.User == "" {
		return fmt.Errorf("user is required")
	}
	if len(c.PrivateKey) == 0 {
		return fmt.Errorf("private key is required")
	}
	if c.Port == 0 {
		c.Port = DefaultSSHPort
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "conn.SSH", "host": c.Host})
	return nil
}

// Channel is a conn.Channel over a single SSH connection.
type Channel struct {
	conn   *ssh.Client
	logger log.Logger
}

// NewChannel dials the SSH server and returns a connected channel.
func NewChannel(ctx context.Context, cfg ChannelConfig) (*Channel, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid ssh channel config: %w", err)
	}

	signer, err := ssh.ParsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, fmt.Errorf("could not parse private key: %w", err)
	}

	sshCfg := &ssh.ClientConfig{
		User: cfg.User,
		Auth: []ssh.AuthMethod{
			ssh.PublicKeys(signer),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         cfg.ConnectTimeout,
	}

	addr := net.JoinHostPort(cfg.Host, fmt.Sprintf("%d", cfg.Port))

	// Use a dialer with context for cancellation support.
	var d net.Dialer
	netConn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s: %w", addr, err)
	}

	// Perform SSH handshake over the raw connection.
	sshConn, chans, reqs, err := ssh.NewClientConn(netConn, addr, sshCfg)
	if err != nil {
		netConn.Close()
		return nil, fmt.Errorf("ssh handshake failed with %s: %w", addr, err)
	}

	client := ssh.NewClient(sshConn, chans, reqs)

	return &Channel{
		conn:   client,
		logger: cfg.Logger,
	}, nil
}

// Close closes the SSH connection.
func (c *Channel) Close() error {
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Start issues a command on a fresh SSH session and returns its streams.
func (c *Channel) Start(ctx context.Context, command string, timeout time.Duration) (conn.Exec, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		ex  *remoteExec
		err error
	}
	resC := make(chan result, 1)
	go func() {
		ex, err := c.start(command)
		resC <- result{ex: ex, err: err}
	}()

	select {
	case <-ctx.Done():
		// The session keeps starting in the background, release it when done.
		go func() {
			if r := <-resC; r.ex != nil {
				r.ex.session.Close()
			}
		}()
		return nil, fmt.Errorf("could not issue command: %w", ctx.Err())
	case r := <-resC:
		if r.err != nil {
			return nil, r.err
		}
		return r.ex, nil
	}
}

func (c *Channel) start(command string) (*remoteExec, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("could not create ssh session: %w", err)
	}

	stdin, err := session.StdinPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("could not open stdin: %w", err)
	}
	stdout, err := session.StdoutPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("could not open stdout: %w", err)
	}
	stderr, err := session.StderrPipe()
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("could not open stderr: %w", err)
	}

	if err := session.Start(command); err != nil {
		session.Close()
		return nil, fmt.Errorf("could not start command: %w", err)
	}

	ex := &remoteExec{
		session: session,
		stdin:   stdin,
		stdout:  stdout,
		stderr:  stderr,
		done:    make(chan struct{}),
	}

	go func() {
		defer close(ex.done)
		defer session.Close()
		ex.code = exitCode(session.Wait())
	}()

	return ex, nil
}

// Output runs a short read-only command and returns its stdout. A non-zero
// exit is not an error here, callers treat empty output as "not found".
func (c *Channel) Output(ctx context.Context, command string) ([]byte, error) {
	session, err := c.conn.NewSession()
	if err != nil {
		return nil, fmt.Errorf("could not create ssh session: %w", err)
	}
	defer session.Close()

	var buf bytes.Buffer
	session.Stdout = &buf

	done := make(chan error, 1)
	go func() {
		done <- session.Run(command)
	}()

	select {
	case <-ctx.Done():
		session.Close()
		return nil, ctx.Err()
	case err := <-done:
		var exitErr *ssh.ExitError
		if err != nil && !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("command execution failed: %w", err)
		}
		return buf.Bytes(), nil
	}
}

// OpenWrite opens a remote path for writing through SFTP.
func (c *Channel) OpenWrite(path string) (io.WriteCloser, error) {
	sftpClient, err := sftp.NewClient(c.conn)
	if err != nil {
		return nil, fmt.Errorf("could not create sftp client: %w", err)
	}

	f, err := sftpClient.Create(path)
	if err != nil {
		sftpClient.Close()
		return nil, fmt.Errorf("could not create remote file %s: %w", path, err)
	}

	return &sftpFile{file: f, client: sftpClient}, nil
}

// sftpFile ties the lifetime of the SFTP client to the file it served, so
// closing the returned writer tears down both.
type sftpFile struct {
	file   *sftp.File
	client *sftp.Client
}

func (f *sftpFile) Write(p []byte) (int, error) { return f.file.Write(p) }

func (f *sftpFile) Close() error {
	err := f.file.Close()
	if cerr := f.client.Close(); err == nil {
		err = cerr
	}
	return err
}

// Alive reports whether the SSH transport still answers requests.
func (c *Channel) Alive() bool {
	if c.conn == nil {
		return false
	}
	_, _, err := c.conn.SendRequest("keepalive@openssh.com", true, nil)
	return err == nil
}

// Peer returns the remote peer address.
func (c *Channel) Peer() string {
	return c.conn.RemoteAddr().String()
}

// remoteExec is a command running on one SSH session.
type remoteExec struct {
	session *ssh.Session
	stdin   io.WriteCloser
	stdout  io.Reader
	stderr  io.Reader
	done    chan struct{}
	code    int
}

// Stdin returns the remote stdin write end. The ssh session stdin pipe
// half-closes the write direction of the channel on Close, which is exactly
// the EOF propagation conn.Exec requires.
func (e *remoteExec) Stdin() io.WriteCloser { return e.stdin }
func (e *remoteExec) Stdout() io.Reader     { return e.stdout }
func (e *remoteExec) Stderr() io.Reader     { return e.stderr }

func (e *remoteExec) ExitStatusReady() bool {
	select {
	case <-e.done:
		return true
	default:
		return false
	}
}

func (e *remoteExec) ExitStatus() int {
	<-e.done
	return e.code
}

// exitCode maps a session wait error to a raw exit code. Signal death and a
// missing exit status both collapse into the sentinel, even when the server
// attaches a synthetic numeric status to the exit-signal reply.
func exitCode(err error) int {
	if err == nil {
		return 0
	}
	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) && exitErr.Signal() == "" && exitErr.ExitStatus() >= 0 {
		return exitErr.ExitStatus()
	}
	return conn.SentinelExit
}
