package process_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/slok/remoterun/internal/conn/connmock"
	"github.com/slok/remoterun/internal/model"
	"github.com/slok/remoterun/internal/process"
)

const failingReport = `<testsuite name="s1" tests="1" failures="1" errors="0">
  <testcase name="t1" classname="s1">
    <failure message="boom">trace</failure>
  </testcase>
</testsuite>`

// stdinRecorder records what the stdin pump writes and whether it closed the
// stream.
type stdinRecorder struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	closed bool
}

func (r *stdinRecorder) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.Write(p)
}

func (r *stdinRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *stdinRecorder) String() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.buf.String()
}

func (r *stdinRecorder) Closed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func newExecMock(stdout, stderr string, code int) (*connmock.MockExec, *stdinRecorder) {
	ex := &connmock.MockExec{}
	in := &stdinRecorder{}
	ex.On("Stdin").Return(in)
	ex.On("Stdout").Return(strings.NewReader(stdout))
	ex.On("Stderr").Return(strings.NewReader(stderr))
	ex.On("ExitStatus").Return(code)
	return ex, in
}

func TestNew(t *testing.T) {
	tests := map[string]struct {
		config func() process.Config
		expErr bool
	}{
		"A missing channel should fail.": {
			config: func() process.Config {
				return process.Config{Command: "true", Hostname: "node1"}
			},
			expErr: true,
		},

		"A missing command should fail.": {
			config: func() process.Config {
				return process.Config{Channel: &connmock.MockChannel{}, Hostname: "node1"}
			},
			expErr: true,
		},

		"Piping stdout on a blocking run should fail fast.": {
			config: func() process.Config {
				return process.Config{
					Channel:  &connmock.MockChannel{},
					Command:  "true",
					Hostname: "node1",
					Stdout:   process.Pipe,
				}
			},
			expErr: true,
		},

		"Piping stdin on a blocking run should fail fast.": {
			config: func() process.Config {
				return process.Config{
					Channel:  &connmock.MockChannel{},
					Command:  "true",
					Hostname: "node1",
					Stdin:    process.Pipe,
				}
			},
			expErr: true,
		},

		"Piping on an asynchronous run should be accepted.": {
			config: func() process.Config {
				return process.Config{
					Channel:  &connmock.MockChannel{},
					Command:  "true",
					Hostname: "node1",
					Async:    true,
					Stdout:   process.Pipe,
				}
			},
		},

		"A correct configuration should be accepted.": {
			config: func() process.Config {
				return process.Config{
					Channel:  &connmock.MockChannel{},
					Command:  "true",
					Hostname: "node1",
				}
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)

			p, err := process.New(test.config())

			if test.expErr {
				assert.Error(err)
			} else {
				assert.NoError(err)
				assert.NotNil(p)
			}
		})
	}
}

func TestNewPipeValidationIsNotValid(t *testing.T) {
	assert := assert.New(t)

	_, err := process.New(process.Config{
		Channel:  &connmock.MockChannel{},
		Command:  "true",
		Hostname: "node1",
		Stderr:   process.Pipe,
	})

	assert.True(errors.Is(err, model.ErrNotValid))
}

func TestProcessWait(t *testing.T) {
	tests := map[string]struct {
		config    func(c *process.Config)
		code      int
		mock      func(ch *connmock.MockChannel)
		expStatus int
		assertErr func(t *testing.T, err error)
	}{
		"A zero exit should not be an error.": {
			code: 0,
			assertErr: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},

		"A non-zero exit should be a command failure.": {
			code:      3,
			expStatus: 3,
			assertErr: func(t *testing.T, err error) {
				var ferr *process.CommandFailedError
				require.True(t, errors.As(err, &ferr))
				assert.Equal(t, 3, ferr.ExitStatus)
				assert.Equal(t, "node1", ferr.Node)
			},
		},

		"A non-zero exit with status checking disabled should not be an error.": {
			config:    func(c *process.Config) { c.NoCheckStatus = true },
			code:      3,
			expStatus: 3,
			assertErr: func(t *testing.T, err error) {
				assert.NoError(t, err)
			},
		},

		"A missing status on a live channel should be a crash.": {
			code:      -1,
			expStatus: -1,
			mock: func(ch *connmock.MockChannel) {
				ch.On("Alive").Once().Return(true)
			},
			assertErr: func(t *testing.T, err error) {
				var cerr *process.CommandCrashedError
				assert.True(t, errors.As(err, &cerr))
			},
		},

		"A missing status on a dead channel should be a lost connection.": {
			code:      -1,
			expStatus: -1,
			mock: func(ch *connmock.MockChannel) {
				ch.On("Alive").Once().Return(false)
			},
			assertErr: func(t *testing.T, err error) {
				var lerr *process.ConnectionLostError
				require.True(t, errors.As(err, &lerr))
				assert.Equal(t, "node1", lerr.Node)
			},
		},

		"A non-zero exit with a failing report should be a unit test failure.": {
			config: func(c *process.Config) { c.ReportPath = "/tmp/report.xml" },
			code:   1,
			mock: func(ch *connmock.MockChannel) {
				ch.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return([]byte(failingReport), nil)
			},
			expStatus: 1,
			assertErr: func(t *testing.T, err error) {
				var uerr *process.UnitTestError
				require.True(t, errors.As(err, &uerr))
				assert.Equal(t, "FAILURE: Test `t1` of `s1`. Reason: boom.", uerr.Message)
				assert.Equal(t, 1, uerr.ExitStatus)
			},
		},

		"A failed report scan should fall back to a command failure.": {
			config: func(c *process.Config) { c.ReportPath = "/tmp/report.xml" },
			code:   1,
			mock: func(ch *connmock.MockChannel) {
				ch.On("Output", mock.Anything, "cat /tmp/report.xml").Once().Return(nil, fmt.Errorf("transport gone"))
			},
			expStatus: 1,
			assertErr: func(t *testing.T, err error) {
				var ferr *process.CommandFailedError
				assert.True(t, errors.As(err, &ferr))
			},
		},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert := assert.New(t)
			require := require.New(t)

			ex, _ := newExecMock("", "", test.code)
			ch := &connmock.MockChannel{}
			ch.On("Start", mock.Anything, mock.Anything, mock.Anything).Once().Return(ex, nil)
			if test.mock != nil {
				test.mock(ch)
			}

			config := process.Config{
				Channel:  ch,
				Command:  "run-something",
				Hostname: "node1",
			}
			if test.config != nil {
				test.config(&config)
			}

			p, err := process.New(config)
			require.NoError(err)
			require.NoError(p.Execute(context.TODO()))

			status, err := p.Wait(context.TODO())

			assert.Equal(test.expStatus, status)
			test.assertErr(t, err)
			ch.AssertExpectations(t)
			ex.AssertExpectations(t)
		})
	}
}

func TestProcessExitStatusReadOnce(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ex := &connmock.MockExec{}
	in := &stdinRecorder{}
	ex.On("Stdin").Return(in)
	ex.On("Stdout").Return(strings.NewReader(""))
	ex.On("Stderr").Return(strings.NewReader(""))
	ex.On("ExitStatusReady").Return(true)
	// The status must be read from the channel exactly once no matter how
	// often the process is polled or waited on.
	ex.On("ExitStatus").Once().Return(7)

	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, mock.Anything, mock.Anything).Once().Return(ex, nil)

	p, err := process.New(process.Config{
		Channel:       ch,
		Command:       "run-something",
		Hostname:      "node1",
		NoCheckStatus: true,
	})
	require.NoError(err)
	require.NoError(p.Execute(context.TODO()))

	status, finished, err := p.Poll(context.TODO())
	require.NoError(err)
	assert.True(finished)
	assert.Equal(7, status)

	for i := 0; i < 3; i++ {
		status, err := p.Wait(context.TODO())
		require.NoError(err)
		assert.Equal(7, status)
	}

	ex.AssertExpectations(t)
}

func TestProcessClassifiedErrorIsStable(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ex, _ := newExecMock("", "", 2)
	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, mock.Anything, mock.Anything).Once().Return(ex, nil)

	p, err := process.New(process.Config{Channel: ch, Command: "run-something", Hostname: "node1"})
	require.NoError(err)
	require.NoError(p.Execute(context.TODO()))

	_, err1 := p.Wait(context.TODO())
	_, err2 := p.Wait(context.TODO())

	require.Error(err1)
	// Repeated waits must report the very same classified result.
	assert.Same(err1, err2)
}

func TestProcessStreams(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ex, in := newExecMock("out line 1\nout line 2", "err line 1\n", 0)
	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, mock.Anything, mock.Anything).Once().Return(ex, nil)

	outBuf := process.NewCaptureBuffer()
	errBuf := process.NewCaptureBuffer()
	p, err := process.New(process.Config{
		Channel:  ch,
		Command:  "run-something",
		Hostname: "node1",
		Stdin:    process.InputString("some input"),
		Stdout:   process.Capture(outBuf),
		Stderr:   process.Capture(errBuf),
	})
	require.NoError(err)
	require.NoError(p.Execute(context.TODO()))

	_, err = p.Wait(context.TODO())
	require.NoError(err)

	assert.Equal("some input", in.String())
	assert.True(in.Closed())
	assert.Equal("out line 1\nout line 2\n", outBuf.String())
	assert.Equal("err line 1\n", errBuf.String())
}

func TestProcessDefaultStdinIsClosedImmediately(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ex, in := newExecMock("", "", 0)
	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, mock.Anything, mock.Anything).Once().Return(ex, nil)

	p, err := process.New(process.Config{Channel: ch, Command: "run-something", Hostname: "node1"})
	require.NoError(err)
	require.NoError(p.Execute(context.TODO()))

	_, err = p.Wait(context.TODO())
	require.NoError(err)

	assert.Empty(in.String())
	assert.True(in.Closed())
}

func TestProcessAsyncPipes(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ex, in := newExecMock("raw output", "", 0)
	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, mock.Anything, mock.Anything).Once().Return(ex, nil)

	p, err := process.New(process.Config{
		Channel:  ch,
		Command:  "run-something",
		Hostname: "node1",
		Async:    true,
		Stdin:    process.Pipe,
		Stdout:   process.Pipe,
	})
	require.NoError(err)
	require.NoError(p.Execute(context.TODO()))

	require.NotNil(p.Stdin())
	require.NotNil(p.Stdout())
	assert.Nil(p.Stderr())

	_, err = p.Stdin().Write([]byte("ping"))
	require.NoError(err)
	require.NoError(p.Stdin().Close())

	var out bytes.Buffer
	_, err = out.ReadFrom(p.Stdout())
	require.NoError(err)
	assert.Equal("raw output", out.String())

	status, err := p.Wait(context.TODO())
	require.NoError(err)
	assert.Equal(0, status)

	assert.Equal("ping", in.String())
	assert.True(in.Closed())
}

func TestProcessExecuteStartFailure(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, mock.Anything, mock.Anything).Once().Return(nil, fmt.Errorf("no transport"))

	p, err := process.New(process.Config{Channel: ch, Command: "run-something", Hostname: "node1"})
	require.NoError(err)

	err = p.Execute(context.TODO())

	var lerr *process.ConnectionLostError
	require.True(errors.As(err, &lerr))
	assert.Equal("node1", lerr.Node)
}

func TestProcessWaitWithoutExecute(t *testing.T) {
	require := require.New(t)

	p, err := process.New(process.Config{Channel: &connmock.MockChannel{}, Command: "true", Hostname: "node1"})
	require.NoError(err)

	_, err = p.Wait(context.TODO())
	require.Error(err)
	require.True(errors.Is(err, model.ErrNotValid))

	_, finished, err := p.Poll(context.TODO())
	require.NoError(err)
	require.False(finished)
}

func TestProcessCwd(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ex, _ := newExecMock("", "", 0)
	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, "(cd /srv/app && exec make test)", mock.Anything).Once().Return(ex, nil)

	p, err := process.New(process.Config{
		Channel:  ch,
		Command:  "make test",
		Cwd:      "/srv/app",
		Hostname: "node1",
	})
	require.NoError(err)
	assert.Equal("(cd /srv/app && exec make test)", p.Command())

	require.NoError(p.Execute(context.TODO()))
	_, err = p.Wait(context.TODO())
	require.NoError(err)
	ch.AssertExpectations(t)
}

func TestProcessFinished(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ex := &connmock.MockExec{}
	in := &stdinRecorder{}
	ex.On("Stdin").Return(in)
	ex.On("Stdout").Return(strings.NewReader(""))
	ex.On("Stderr").Return(strings.NewReader(""))
	ex.On("ExitStatusReady").Once().Return(false)
	ex.On("ExitStatusReady").Return(true)
	ex.On("ExitStatus").Once().Return(0)

	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, mock.Anything, mock.Anything).Once().Return(ex, nil)

	p, err := process.New(process.Config{Channel: ch, Command: "run-something", Hostname: "node1"})
	require.NoError(err)

	assert.False(p.Finished())

	require.NoError(p.Execute(context.TODO()))

	assert.False(p.Finished())
	assert.True(p.Finished())

	status, finished, err := p.Poll(context.TODO())
	require.NoError(err)
	assert.True(finished)
	assert.Equal(0, status)
}

func TestProcessWaitContextCancel(t *testing.T) {
	require := require.New(t)

	ex := &connmock.MockExec{}
	in := &stdinRecorder{}
	ex.On("Stdin").Return(in)
	ex.On("Stdout").Return(strings.NewReader(""))
	ex.On("Stderr").Return(strings.NewReader(""))
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })
	ex.On("ExitStatus").Run(func(_ mock.Arguments) { <-block }).Return(0)

	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, mock.Anything, mock.Anything).Once().Return(ex, nil)

	p, err := process.New(process.Config{Channel: ch, Command: "run-something", Hostname: "node1"})
	require.NoError(err)
	require.NoError(p.Execute(context.TODO()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = p.Wait(ctx)
	require.ErrorIs(err, context.DeadlineExceeded)
}

func TestClassify(t *testing.T) {
	tests := map[string]struct {
		code      int
		alive     bool
		expStatus model.RunStatus
	}{
		"A zero exit is a success.":                              {code: 0, alive: true, expStatus: model.RunStatusSuccess},
		"A non-zero exit is a failure.":                          {code: 13, alive: true, expStatus: model.RunStatusFailed},
		"A missing status on a live channel is a crash.":         {code: -1, alive: true, expStatus: model.RunStatusCrashed},
		"A missing status on a dead channel is a lost connection.": {code: -1, alive: false, expStatus: model.RunStatusLost},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, test.expStatus, process.Classify(test.code, test.alive))
		})
	}
}

func TestRun(t *testing.T) {
	assert := assert.New(t)
	require := require.New(t)

	ex, _ := newExecMock("hello\n", "", 0)
	ch := &connmock.MockChannel{}
	ch.On("Start", mock.Anything, "echo hello", mock.Anything).Once().Return(ex, nil)

	buf := process.NewCaptureBuffer()
	p, err := process.Run(context.TODO(), process.Config{
		Channel:  ch,
		Command:  "echo hello",
		Hostname: "node1",
		Stdout:   process.Capture(buf),
	})

	require.NoError(err)
	require.NotNil(p)
	assert.Equal("hello\n", buf.String())
	ch.AssertExpectations(t)
}
