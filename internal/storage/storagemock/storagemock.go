// Package storagemock has mocks for the storage repositories.
package storagemock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/slok/remoterun/internal/model"
	"github.com/slok/remoterun/internal/storage"
)

// MockRepository is a mock implementation of storage.Repository.
type MockRepository struct {
	mock.Mock
}

func (m *MockRepository) CreateRun(ctx context.Context, r model.RunRecord) error {
	args := m.Called(ctx, r)
	return args.Error(0)
}

func (m *MockRepository) GetRun(ctx context.Context, id string) (*model.RunRecord, error) {
	args := m.Called(ctx, id)
	var run *model.RunRecord
	if v := args.Get(0); v != nil {
		run = v.(*model.RunRecord)
	}
	return run, args.Error(1)
}

func (m *MockRepository) ListRuns(ctx context.Context, filter storage.RunFilter) ([]model.RunRecord, error) {
	args := m.Called(ctx, filter)
	var runs []model.RunRecord
	if v := args.Get(0); v != nil {
		runs = v.([]model.RunRecord)
	}
	return runs, args.Error(1)
}

func (m *MockRepository) DeleteRun(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}
