// Package store persists the dispatch job ledger: one row per dispatch
// attempt, updated at every phase transition. The ledger is advisory
// history for operators; the dispatch controller never reads it back
// to make decisions.
package store

import (
	"context"

	"github.com/me/stardis/pkg/model"
)

// Store defines the persistence layer for dispatch jobs.
type Store interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	ListJobs(ctx context.Context, limit int) ([]*model.Job, error)
	UpdateJob(ctx context.Context, job *model.Job) error

	Close() error
}
