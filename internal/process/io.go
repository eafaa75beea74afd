package process

import (
	"bytes"
	"io"
	"strings"
	"sync"
)

// IO selects how one of the remote process streams is handled.
//
// A nil *IO in the config means the default behavior: output streams are
// pumped line by line into the logger, stdin is closed right away so the
// command sees EOF.
type IO struct {
	pipe    bool
	src     io.Reader
	capture io.Writer
}

// Pipe hands the raw remote stream to the caller, who becomes responsible for
// reading (or writing and closing) it so the command can make progress. Only
// valid on asynchronous runs.
var Pipe = &IO{pipe: true}

// Input feeds r into the remote stdin and half-closes it on EOF.
func Input(r io.Reader) *IO { return &IO{src: r} }

// InputString feeds a fixed string into the remote stdin.
func InputString(s string) *IO { return Input(strings.NewReader(s)) }

// InputBytes feeds fixed bytes into the remote stdin.
func InputBytes(b []byte) *IO { return Input(bytes.NewReader(b)) }

// Capture tees every output line into w while the stream keeps its usual
// logging behavior.
func Capture(w io.Writer) *IO { return &IO{capture: w} }

// CaptureBuffer is a goroutine safe buffer for capturing stream output. The
// stream pumps write to it concurrently with callers reading it.
type CaptureBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

// NewCaptureBuffer returns an empty capture buffer.
func NewCaptureBuffer() *CaptureBuffer {
	return &CaptureBuffer{}
}

func (b *CaptureBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

// String returns the captured output so far.
func (b *CaptureBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// Bytes returns a copy of the captured output so far.
func (b *CaptureBuffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]byte(nil), b.buf.Bytes()...)
}
