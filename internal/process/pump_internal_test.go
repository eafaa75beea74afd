package process

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/slok/remoterun/internal/log"
)

func TestCopyToLogOverLongLine(t *testing.T) {
	assert := assert.New(t)

	long := strings.Repeat("a", 2*1024*1024)
	src := strings.NewReader(long + "\nafter\n")

	capture := &CaptureBuffer{}
	copyToLog(src, log.Noop, capture, true)

	// The over-long line and everything after it survive in the capture.
	assert.Equal(long+"\nafter\n", capture.String())
}

func TestCopyToLogNoTrailingNewline(t *testing.T) {
	capture := &CaptureBuffer{}
	copyToLog(strings.NewReader("tail without newline"), log.Noop, capture, false)
	assert.Equal(t, "tail without newline\n", capture.String())
}
