package storage

import (
	"context"

	"bnsearch/internal/model"
)

// Store persists networks, search runs and their score histories.
type Store interface {
	Init(ctx context.Context) error
	SaveNetwork(ctx context.Context, record model.NetworkRecord) error
	GetNetwork(ctx context.Context, id string) (model.NetworkRecord, bool, error)
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	// ListRuns returns runs newest first.
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveScoreHistory(ctx context.Context, runID string, history []model.IterationRecord) error
	GetScoreHistory(ctx context.Context, runID string) ([]model.IterationRecord, bool, error)
}
