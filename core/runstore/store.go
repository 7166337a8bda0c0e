package runstore

import (
	"context"

	"cloudarb/core/models"
)

// Store persists asynchronous optimization runs.
type Store interface {
	Create(ctx context.Context, run models.OptimizationRun) error
	Update(ctx context.Context, run models.OptimizationRun) error
	Get(ctx context.Context, id string) (models.OptimizationRun, error)
	Close(ctx context.Context) error
}
