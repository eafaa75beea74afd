package conn

import (
	"context"
	"io"
	"time"
)

// SentinelExit is the exit code reported when no real exit status is
// available: the command died to a signal or the connection dropped. The
// channel carries no signal information, so the two cases can only be told
// apart by checking Alive.
const SentinelExit = -1

// Exec is a single command started on a channel. The three stream endpoints
// are owned by the caller; each one must be read/written/closed by exactly one
// owner.
type Exec interface {
	// Stdin returns the write end of the remote stdin. Closing it must
	// propagate a write-direction shutdown to the channel so the remote
	// command observes end-of-input; a plain stream close is not enough.
	Stdin() io.WriteCloser
	// Stdout returns the read end of the remote stdout.
	Stdout() io.Reader
	// Stderr returns the read end of the remote stderr.
	Stderr() io.Reader
	// ExitStatusReady returns true once ExitStatus will not block.
	ExitStatusReady() bool
	// ExitStatus blocks until the command finishes and returns its raw exit
	// code, or SentinelExit when the command died without reporting one.
	ExitStatus() int
}

// Channel is an already-established secure transport to a single remote host,
// able to issue commands and move their stream bytes.
type Channel interface {
	// Start issues a command on the channel and returns its stream endpoints.
	// Timeout bounds issuing the command, it is not a kill timeout; zero means
	// no bound.
	Start(ctx context.Context, command string, timeout time.Duration) (Exec, error)
	// Output runs a short read-only command (cat, ls) and returns its stdout.
	// A non-zero exit is not an error, the collected output is returned as is.
	Output(ctx context.Context, command string) ([]byte, error)
	// OpenWrite opens a remote path for writing, creating or truncating it.
	OpenWrite(path string) (io.WriteCloser, error)
	// Alive reports whether the underlying transport is still usable.
	Alive() bool
	// Peer returns the remote peer address.
	Peer() string
	Close() error
}
