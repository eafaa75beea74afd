package model

import (
	"time"
)

// RunStatus represents the final classification of a remote command run.
type RunStatus string

const (
	// RunStatusSuccess indicates the command exited with status zero.
	RunStatusSuccess RunStatus = "success"
	// RunStatusFailed indicates the command exited with a non-zero status.
	RunStatusFailed RunStatus = "failed"
	// RunStatusCrashed indicates the command died without reporting an exit
	// status while the channel stayed healthy (the transport carries no signal
	// information, so the cause stays generic).
	RunStatusCrashed RunStatus = "crashed"
	// RunStatusLost indicates the channel became unusable before the exit
	// status could be read.
	RunStatusLost RunStatus = "connection-lost"
)

// RunRecord represents the persisted outcome of a single remote command run.
type RunRecord struct {
	ID             string
	Hostname       string
	Label          string
	Command        string
	Status         RunStatus
	ExitCode       int
	FailureMessage string
	CreatedAt      time.Time
	Duration       time.Duration
}
