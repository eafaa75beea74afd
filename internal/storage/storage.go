package storage

import (
	"context"

	"github.com/slok/remoterun/internal/model"
)

// Repository is the interface for run history persistence.
type Repository interface {
	CreateRun(ctx context.Context, r model.RunRecord) error
	GetRun(ctx context.Context, id string) (*model.RunRecord, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.RunRecord, error)
	DeleteRun(ctx context.Context, id string) error
}

// RunFilter narrows what ListRuns returns. Zero values mean no filtering.
type RunFilter struct {
	Hostname string
	Status   model.RunStatus
	Limit    int
}
