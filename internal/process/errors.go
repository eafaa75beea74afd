package process

import "fmt"

// ConnectionLostError reports a channel that became unusable before the exit
// status of a command could be read.
type ConnectionLostError struct {
	Command string
	Node    string
}

func (e *ConnectionLostError) Error() string {
	return fmt.Sprintf("connection to %s was lost while running %q", e.Node, e.Command)
}

// CommandCrashedError reports a command that died without reporting an exit
// status while the channel stayed healthy. The channel carries no signal
// information, so the cause stays generic.
type CommandCrashedError struct {
	Command string
}

func (e *CommandCrashedError) Error() string {
	return fmt.Sprintf("command crashed: %q", e.Command)
}

// CommandFailedError reports a clean non-zero exit.
type CommandFailedError struct {
	Command    string
	ExitStatus int
	Node       string
	Label      string
}

func (e *CommandFailedError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("command failed (%s) on %s with status %d: %q", e.Label, e.Node, e.ExitStatus, e.Command)
	}
	return fmt.Sprintf("command failed on %s with status %d: %q", e.Node, e.ExitStatus, e.Command)
}

// UnitTestError reports a non-zero exit upgraded with a diagnosis extracted
// from the test report left on the remote host.
type UnitTestError struct {
	ExitStatus int
	Node       string
	Label      string
	Message    string
}

func (e *UnitTestError) Error() string {
	if e.Label != "" {
		return fmt.Sprintf("unit test failed (%s) on %s with status %d: %s", e.Label, e.Node, e.ExitStatus, e.Message)
	}
	return fmt.Sprintf("unit test failed on %s with status %d: %s", e.Node, e.ExitStatus, e.Message)
}
