package loader

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/store"
)

// AssignmentFetcher reads assignments from the backend.
type AssignmentFetcher interface {
	ListAssignments(ctx context.Context) ([]models.Assignment, error)
	GetAssignment(ctx context.Context, id string) (models.Assignment, error)
}

// Loader refetches server state and replaces the matching store slot wholesale.
type Loader struct {
	fetcher AssignmentFetcher
	store   *store.Store
	logger  zerolog.Logger
}

// New constructs a loader.
func New(fetcher AssignmentFetcher, st *store.Store, logger zerolog.Logger) *Loader {
	return &Loader{
		fetcher: fetcher,
		store:   st,
		logger:  logger.With().Str("component", "loader").Logger(),
	}
}

// Assignments refreshes the assignment list. The result is dropped if tok was cancelled
// while the request was in flight.
func (l *Loader) Assignments(ctx context.Context, tok *store.Token) ([]models.Assignment, error) {
	reqCtx, cancel := tok.Bind(ctx)
	defer cancel()

	assignments, err := l.fetcher.ListAssignments(reqCtx)
	if err != nil {
		return nil, fmt.Errorf("load assignments: %w", err)
	}

	if !l.store.ApplyAssignments(tok, assignments) {
		l.logger.Debug().Msg("assignment list discarded after teardown")
	}
	return assignments, nil
}

// Assignment refreshes one assignment with its submissions.
func (l *Loader) Assignment(ctx context.Context, tok *store.Token, id string) (models.Assignment, error) {
	reqCtx, cancel := tok.Bind(ctx)
	defer cancel()

	assignment, err := l.fetcher.GetAssignment(reqCtx, id)
	if err != nil {
		return models.Assignment{}, fmt.Errorf("load assignment %s: %w", id, err)
	}

	if !l.store.ApplyAssignment(tok, assignment) {
		l.logger.Debug().Str("assignment_id", id).Msg("assignment discarded after teardown")
	}
	return assignment, nil
}
