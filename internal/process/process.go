// Package process executes commands on remote hosts over a connection
// channel and tracks their whole lifecycle: issuing, stream pumping, exit
// status resolution and failure classification.
package process

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/slok/remoterun/internal/conn"
	"github.com/slok/remoterun/internal/log"
	"github.com/slok/remoterun/internal/model"
	"github.com/slok/remoterun/internal/report"
)

// finishedCheckTimeout bounds the pump check inside Finished so a slow pump
// never turns the non-blocking poll into a blocking wait.
const finishedCheckTimeout = 100 * time.Millisecond

// Config is the configuration of a remote process.
type Config struct {
	// Channel is the transport the command runs on.
	Channel conn.Channel
	// Command is the fully composed command text, see Quote.
	Command string
	// Cwd optionally wraps the command so it runs in a remote directory.
	Cwd string
	// Hostname names the remote host in logs and errors. Defaults to the
	// channel peer address.
	Hostname string
	// Label describes what the command is doing, used in logs and errors.
	Label string
	// Timeout bounds issuing the command on the channel. It is not a kill
	// timeout, a started command is never interrupted by it.
	Timeout time.Duration
	// NoCheckStatus disables turning failed runs into errors on Wait and
	// Poll. The exit status is still resolved and available.
	NoCheckStatus bool
	// Async makes Run return right after the streams are wired instead of
	// blocking until completion. Required when any stream uses Pipe.
	Async bool
	// Quiet stops stdout and stderr from being logged. Captures still happen.
	Quiet bool
	// Stdin, Stdout and Stderr select per stream handling. Nil pumps output
	// into the logger and closes stdin right away, Pipe hands the raw stream
	// to the caller, Input and Capture wire caller data.
	Stdin  *IO
	Stdout *IO
	Stderr *IO
	// ReportPath points at a unit test report on the remote host used to
	// diagnose non-zero exits. A trailing slash makes it a directory of XML
	// reports.
	ReportPath string
	// ReportParser overrides the parser used on fetched reports. Defaults to
	// the unit test report parser.
	ReportParser report.Parser
	// RecordPath is an optional remote path where parsed failure records are
	// persisted after a successful scan.
	RecordPath string
	// Logger is the logger of the process (optional).
	Logger log.Logger
}

func (c *Config) defaults() error {
	if c.Channel == nil {
		return fmt.Errorf("channel is required")
	}

	if strings.TrimSpace(c.Command) == "" {
		return fmt.Errorf("command is required")
	}

	if !c.Async {
		for _, s := range []struct {
			name string
			spec *IO
		}{
			{name: "stdin", spec: c.Stdin},
			{name: "stdout", spec: c.Stdout},
			{name: "stderr", spec: c.Stderr},
		} {
			if s.spec != nil && s.spec.pipe {
				return fmt.Errorf("piping %s on a blocking run would deadlock, use Async: %w", s.name, model.ErrNotValid)
			}
		}
	}

	if c.Hostname == "" {
		c.Hostname = c.Channel.Peer()
	}

	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"host": c.Hostname})

	return nil
}

// Process is a single command being executed on a remote host. Create it with
// New, issue it with Execute and collect it with Wait or Poll.
type Process struct {
	ch          conn.Channel
	exec        conn.Exec
	command     string
	hostname    string
	label       string
	checkStatus bool
	async       bool
	quiet       bool
	timeout     time.Duration
	logger      log.Logger

	reportPath   string
	reportParser report.Parser
	recordPath   string

	stdinSpec  *IO
	stdoutSpec *IO
	stderrSpec *IO

	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	pumps []*pump

	resolveOnce sync.Once
	rawExit     int

	classifyOnce sync.Once
	statusErr    error
}

// New creates a remote process without issuing the command yet. It fails
// fast when a Pipe stream is combined with a blocking run, instead of letting
// the run deadlock on an unread stream.
func New(cfg Config) (*Process, error) {
	err := cfg.defaults()
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	command := cfg.Command
	if cfg.Cwd != "" {
		command = fmt.Sprintf("(cd %s && exec %s)", cfg.Cwd, command)
	}

	return &Process{
		ch:           cfg.Channel,
		command:      command,
		hostname:     cfg.Hostname,
		label:        cfg.Label,
		checkStatus:  !cfg.NoCheckStatus,
		async:        cfg.Async,
		quiet:        cfg.Quiet,
		timeout:      cfg.Timeout,
		logger:       cfg.Logger,
		reportPath:   cfg.ReportPath,
		reportParser: cfg.ReportParser,
		recordPath:   cfg.RecordPath,
		stdinSpec:    cfg.Stdin,
		stdoutSpec:   cfg.Stdout,
		stderrSpec:   cfg.Stderr,
	}, nil
}

// Command returns the fully composed command text as issued on the channel.
func (p *Process) Command() string { return p.command }

// Hostname returns the name of the remote host the process runs on.
func (p *Process) Hostname() string { return p.hostname }

// Label returns the descriptive label of the process, empty when unset.
func (p *Process) Label() string { return p.label }

// Stdin returns the raw remote stdin when it was configured with Pipe, nil
// otherwise. The caller must close it so the command sees EOF.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout returns the raw remote stdout when it was configured with Pipe, nil
// otherwise.
func (p *Process) Stdout() io.Reader { return p.stdout }

// Stderr returns the raw remote stderr when it was configured with Pipe, nil
// otherwise.
func (p *Process) Stderr() io.Reader { return p.stderr }

// Execute issues the command on the channel and wires the stream pumps. It
// returns without waiting for completion.
func (p *Process) Execute(ctx context.Context) error {
	if p.exec != nil {
		return fmt.Errorf("process already executed: %w", model.ErrNotValid)
	}

	for _, line := range strings.Split(p.command, "\n") {
		if p.label != "" {
			p.logger.Debugf("%s> %s", p.label, line)
		} else {
			p.logger.Debugf("> %s", line)
		}
	}

	ex, err := p.ch.Start(ctx, p.command, p.timeout)
	if err != nil {
		p.logger.Errorf("Could not issue command on channel: %v", err)
		return &ConnectionLostError{Command: p.command, Node: p.hostname}
	}
	p.exec = ex

	p.setupStdin()
	p.setupOutput("stderr")
	p.setupOutput("stdout")

	return nil
}

func (p *Process) setupStdin() {
	stdin := p.exec.Stdin()
	if p.stdinSpec != nil && p.stdinSpec.pipe {
		p.stdin = stdin
		return
	}

	var src io.Reader
	if p.stdinSpec != nil {
		src = p.stdinSpec.src
	}
	logger := p.logger.WithValues(log.Kv{"stream": "stdin"})
	p.pumps = append(p.pumps, newPump("stdin", logger, func() {
		copyAndClose(src, stdin, logger)
	}))
}

func (p *Process) setupOutput(name string) {
	var stream io.Reader
	var spec *IO
	if name == "stdout" {
		stream = p.exec.Stdout()
		spec = p.stdoutSpec
	} else {
		stream = p.exec.Stderr()
		spec = p.stderrSpec
	}

	if spec != nil && spec.pipe {
		if name == "stdout" {
			p.stdout = stream
		} else {
			p.stderr = stream
		}
		return
	}

	var capture io.Writer
	if spec != nil {
		capture = spec.capture
	}
	logger := p.logger.WithValues(log.Kv{"stream": name})
	quiet := p.quiet
	p.pumps = append(p.pumps, newPump(name, logger, func() {
		copyToLog(stream, logger, capture, quiet)
	}))
}

// resolve reads the exit status from the channel. The read happens exactly
// once, every later call returns the remembered value.
func (p *Process) resolve() int {
	p.resolveOnce.Do(func() {
		p.rawExit = p.exec.ExitStatus()
		if p.rawExit != 0 {
			p.logger.Debugf("Remote process exited with status %d", p.rawExit)
		}
	})
	return p.rawExit
}

// Wait blocks until the remote process finishes, joins the stream pumps with
// a bounded timeout and applies the failure policy. It returns the raw exit
// status next to the classified error, so callers that disabled status
// checking still see the code.
func (p *Process) Wait(ctx context.Context) (int, error) {
	if p.exec == nil {
		return 0, fmt.Errorf("process was not executed: %w", model.ErrNotValid)
	}

	statusC := make(chan int, 1)
	go func() { statusC <- p.resolve() }()

	var status int
	select {
	case <-ctx.Done():
		return 0, ctx.Err()
	case status = <-statusC:
	}

	for _, pm := range p.pumps {
		if !pm.join(pumpJoinTimeout) {
			pm.logger.Debugf("Timed out joining %s pump, abandoning it", pm.name)
		}
	}

	return status, p.classified(ctx)
}

// Poll is the non-blocking companion of Wait. It reports whether the process
// finished and, when it did, returns the same status and classified error
// Wait would.
func (p *Process) Poll(ctx context.Context) (int, bool, error) {
	if !p.Finished() {
		return 0, false, nil
	}
	return p.resolve(), true, p.classified(ctx)
}

// Finished reports whether the exit status can be taken without blocking.
// The stream pump check is bounded, a stuck pump cannot stall it.
func (p *Process) Finished() bool {
	if p.exec == nil {
		return false
	}

	deadline := time.Now().Add(finishedCheckTimeout)
	for _, pm := range p.pumps {
		pm.join(time.Until(deadline))
	}

	if !p.exec.ExitStatusReady() {
		return false
	}
	p.resolve()
	return true
}

// classified applies the failure policy exactly once and caches the outcome,
// so repeated Wait and Poll calls agree and report scanning runs at most
// once.
func (p *Process) classified(ctx context.Context) error {
	p.classifyOnce.Do(func() {
		p.statusErr = p.classify(ctx)
	})
	return p.statusErr
}

func (p *Process) classify(ctx context.Context) error {
	if !p.checkStatus {
		return nil
	}

	code := p.resolve()
	switch {
	case code == 0:
		return nil
	case code == conn.SentinelExit:
		if !p.ch.Alive() {
			return &ConnectionLostError{Command: p.command, Node: p.hostname}
		}
		return &CommandCrashedError{Command: p.command}
	}

	if p.reportPath != "" {
		if msg := p.scanReport(ctx); msg != "" {
			return &UnitTestError{ExitStatus: code, Node: p.hostname, Label: p.label, Message: msg}
		}
	}

	return &CommandFailedError{Command: p.command, ExitStatus: code, Node: p.hostname, Label: p.label}
}

// scanReport tries to extract a failure diagnosis from the remote test
// report. Scanning problems only lose the diagnosis, never the run result.
func (p *Process) scanReport(ctx context.Context) string {
	scanner, err := report.NewScanner(report.ScannerConfig{
		Channel:    p.ch,
		Parser:     p.reportParser,
		RecordPath: p.recordPath,
		Logger:     p.logger,
	})
	if err != nil {
		p.logger.Errorf("Could not create report scanner: %v", err)
		return ""
	}

	msg, err := scanner.FirstFailure(ctx, p.reportPath)
	if err != nil {
		p.logger.Errorf("Unable to scan test report: %v", err)
		return ""
	}
	return msg
}

// Classify maps a raw exit status plus channel liveness to a run status.
func Classify(code int, alive bool) model.RunStatus {
	switch {
	case code == conn.SentinelExit && !alive:
		return model.RunStatusLost
	case code == conn.SentinelExit:
		return model.RunStatusCrashed
	case code == 0:
		return model.RunStatusSuccess
	default:
		return model.RunStatusFailed
	}
}

// Run creates a process, executes it and, unless the configuration is
// asynchronous, waits for completion. The handle is returned even when the
// run failed so callers can inspect it.
func Run(ctx context.Context, cfg Config) (*Process, error) {
	p, err := New(cfg)
	if err != nil {
		return nil, err
	}

	err = p.Execute(ctx)
	if err != nil {
		return nil, err
	}

	if p.async {
		return p, nil
	}

	_, err = p.Wait(ctx)
	return p, err
}
