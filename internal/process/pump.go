package process

import (
	"bufio"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/slok/remoterun/internal/log"
)

// pumpJoinTimeout bounds how long a completed run waits on a single stream
// pump before abandoning it.
const pumpJoinTimeout = 60 * time.Second

// pump is one concurrent copy task moving bytes between a channel stream and
// a sink or source.
type pump struct {
	name   string
	done   chan struct{}
	logger log.Logger
}

func newPump(name string, logger log.Logger, fn func()) *pump {
	p := &pump{
		name:   name,
		done:   make(chan struct{}),
		logger: logger,
	}
	go func() {
		defer close(p.done)
		fn()
	}()
	return p
}

// join waits for the pump up to the given bound and reports whether it
// finished. An abandoned pump keeps draining in the background until its
// stream dies with the session.
func (p *pump) join(timeout time.Duration) bool {
	if timeout <= 0 {
		select {
		case <-p.done:
			return true
		default:
			return false
		}
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-p.done:
		return true
	case <-timer.C:
		return false
	}
}

// copyAndClose feeds src into the remote stdin and closes it. Closing
// half-closes the write direction so the remote command sees EOF. A nil src
// just closes, which is the default stdin behavior.
func copyAndClose(src io.Reader, dst io.WriteCloser, logger log.Logger) {
	if src != nil {
		if _, err := io.Copy(dst, src); err != nil {
			logger.Errorf("Could not copy stdin to remote process: %v", err)
		}
	}
	if err := dst.Close(); err != nil {
		logger.Debugf("Could not close remote stdin: %v", err)
	}
}

// copyToLog pumps a remote output stream line by line into the logger,
// optionally teeing raw lines into a capture writer. Capture always happens,
// quiet only silences the logging. Lines have no length ceiling, so an
// over-long line never stops the pump or leaves the stream undrained.
func copyToLog(src io.Reader, logger log.Logger, capture io.Writer, quiet bool) {
	reader := bufio.NewReaderSize(src, 64*1024)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			line = strings.TrimSuffix(line, "\n")
			if capture != nil {
				if _, werr := io.WriteString(capture, line+"\n"); werr != nil {
					logger.Errorf("Could not capture output line: %v", werr)
				}
			}
			if !quiet {
				if !utf8.ValidString(line) {
					logger.Errorf("Encountered unprintable data in command output")
					line = strings.ToValidUTF8(line, "�")
				}
				logger.Infof("%s", line)
			}
		}
		if err != nil {
			if err != io.EOF {
				logger.Debugf("Output stream ended: %v", err)
			}
			return
		}
	}
}
