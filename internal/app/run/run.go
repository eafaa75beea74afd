// Package run has the application service that executes a command on remote
// hosts and records the outcomes.
package run

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/slok/remoterun/internal/conn"
	"github.com/slok/remoterun/internal/log"
	"github.com/slok/remoterun/internal/model"
	"github.com/slok/remoterun/internal/process"
	"github.com/slok/remoterun/internal/storage"
)

// ServiceConfig is the configuration for the run service.
type ServiceConfig struct {
	// Channels are the transports of the target hosts, one per host.
	Channels []conn.Channel
	// Repository stores run history. Optional, without it runs are not
	// recorded.
	Repository storage.Repository
	Logger     log.Logger
}

func (c *ServiceConfig) defaults() error {
	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel is required")
	}
	if c.Logger == nil {
		c.Logger = log.Noop
	}
	c.Logger = c.Logger.WithValues(log.Kv{"svc": "app.Run"})
	return nil
}

// Service executes commands on remote hosts and keeps their history.
type Service struct {
	channels []conn.Channel
	repo     storage.Repository
	logger   log.Logger
}

// NewService creates a new run service.
func NewService(cfg ServiceConfig) (*Service, error) {
	if err := cfg.defaults(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Service{
		channels: cfg.Channels,
		repo:     cfg.Repository,
		logger:   cfg.Logger,
	}, nil
}

// Request contains the parameters for executing a command.
type Request struct {
	// Command is the argv of the command, each argument is shell quoted.
	Command []string
	// Cwd optionally runs the command in a remote directory.
	Cwd string
	// Label describes what the command is doing.
	Label string
	// Timeout bounds issuing the command on each channel.
	Timeout time.Duration
	// WaitTimeout is the polling budget of the batch wait. Every process is
	// still collected after it.
	WaitTimeout time.Duration
	// NoCheckStatus disables turning failed runs into errors. The outcome is
	// still classified and recorded.
	NoCheckStatus bool
	// Quiet stops remote output from being logged.
	Quiet bool
	// Stdin is fed into the stdin of every remote process. Nil closes stdin
	// right away.
	Stdin []byte
	// ReportPath points at a remote unit test report used to diagnose
	// non-zero exits.
	ReportPath string
	// RecordPath optionally persists parsed failure records on the remote
	// hosts.
	RecordPath string
}

// Run executes a command on every host, waits for the whole batch, classifies
// each outcome and stores it in the run history. The records are returned
// next to the first run error so failed batches still yield their records.
func (s *Service) Run(ctx context.Context, req Request) ([]model.RunRecord, error) {
	if len(req.Command) == 0 {
		return nil, fmt.Errorf("command cannot be empty: %w", model.ErrNotValid)
	}

	command := process.QuoteArgs(req.Command)
	start := time.Now().UTC()

	var firstErr error
	var records []model.RunRecord
	procs := make([]*process.Process, 0, len(s.channels))
	for _, ch := range s.channels {
		config := process.Config{
			Channel:       ch,
			Command:       command,
			Cwd:           req.Cwd,
			Label:         req.Label,
			Timeout:       req.Timeout,
			NoCheckStatus: req.NoCheckStatus,
			Quiet:         req.Quiet,
			ReportPath:    req.ReportPath,
			RecordPath:    req.RecordPath,
			Logger:        s.logger,
		}
		if req.Stdin != nil {
			config.Stdin = process.InputBytes(req.Stdin)
		}

		p, err := process.New(config)
		if err != nil {
			return records, fmt.Errorf("could not create process: %w", err)
		}

		if err := p.Execute(ctx); err != nil {
			records = append(records, s.record(start, p, conn.SentinelExit, err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		procs = append(procs, p)
	}

	if err := process.WaitAll(ctx, procs, req.WaitTimeout); err != nil && firstErr == nil {
		firstErr = err
	}

	for _, p := range procs {
		code, finished, runErr := p.Poll(ctx)
		if !finished {
			// Only possible when the wait was cut short by the context.
			continue
		}
		records = append(records, s.record(start, p, code, runErr))
	}

	if s.repo != nil {
		for _, r := range records {
			if err := s.repo.CreateRun(ctx, r); err != nil {
				s.logger.Warningf("Could not store run record %s: %v", r.ID, err)
			}
		}
	}

	return records, firstErr
}

// record builds the persisted outcome of one remote process.
func (s *Service) record(start time.Time, p *process.Process, code int, runErr error) model.RunRecord {
	record := model.RunRecord{
		ID:        ulid.Make().String(),
		Hostname:  p.Hostname(),
		Label:     p.Label(),
		Command:   p.Command(),
		Status:    status(code, runErr),
		ExitCode:  code,
		CreatedAt: start,
		Duration:  time.Since(start),
	}

	var uerr *process.UnitTestError
	if errors.As(runErr, &uerr) {
		record.FailureMessage = uerr.Message
	} else if runErr != nil {
		record.FailureMessage = runErr.Error()
	}

	return record
}

// status classifies the run outcome, preferring the already classified error
// so the channel is not probed again. A clean error with a non-zero code
// means status checking was disabled, the code alone decides then.
func status(code int, runErr error) model.RunStatus {
	var lost *process.ConnectionLostError
	var crashed *process.CommandCrashedError
	switch {
	case errors.As(runErr, &lost):
		return model.RunStatusLost
	case errors.As(runErr, &crashed):
		return model.RunStatusCrashed
	case runErr != nil:
		return model.RunStatusFailed
	case code == 0:
		return model.RunStatusSuccess
	case code == conn.SentinelExit:
		return model.RunStatusCrashed
	}
	return model.RunStatusFailed
}
