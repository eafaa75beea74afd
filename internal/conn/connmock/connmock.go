// Package connmock has mocks for the conn boundary types.
package connmock

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/slok/remoterun/internal/conn"
)

// MockChannel is a mock implementation of conn.Channel.
type MockChannel struct {
	mock.Mock
}

func (m *MockChannel) Start(ctx context.Context, command string, timeout time.Duration) (conn.Exec, error) {
	args := m.Called(ctx, command, timeout)
	var ex conn.Exec
	if v := args.Get(0); v != nil {
		ex = v.(conn.Exec)
	}
	return ex, args.Error(1)
}

func (m *MockChannel) Output(ctx context.Context, command string) ([]byte, error) {
	args := m.Called(ctx, command)
	var out []byte
	if v := args.Get(0); v != nil {
		out = v.([]byte)
	}
	return out, args.Error(1)
}

func (m *MockChannel) OpenWrite(path string) (io.WriteCloser, error) {
	args := m.Called(path)
	var w io.WriteCloser
	if v := args.Get(0); v != nil {
		w = v.(io.WriteCloser)
	}
	return w, args.Error(1)
}

func (m *MockChannel) Alive() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockChannel) Peer() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockChannel) Close() error {
	args := m.Called()
	return args.Error(0)
}

// MockExec is a mock implementation of conn.Exec.
type MockExec struct {
	mock.Mock
}

func (m *MockExec) Stdin() io.WriteCloser {
	args := m.Called()
	var w io.WriteCloser
	if v := args.Get(0); v != nil {
		w = v.(io.WriteCloser)
	}
	return w
}

func (m *MockExec) Stdout() io.Reader {
	args := m.Called()
	var r io.Reader
	if v := args.Get(0); v != nil {
		r = v.(io.Reader)
	}
	return r
}

func (m *MockExec) Stderr() io.Reader {
	args := m.Called()
	var r io.Reader
	if v := args.Get(0); v != nil {
		r = v.(io.Reader)
	}
	return r
}

func (m *MockExec) ExitStatusReady() bool {
	args := m.Called()
	return args.Bool(0)
}

func (m *MockExec) ExitStatus() int {
	args := m.Called()
	return args.Int(0)
}
