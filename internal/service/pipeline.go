package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/noah-isme/gema-evalsync/internal/repository"
)

// ErrPipelineStopped is returned when work is queued after Stop.
var ErrPipelineStopped = errors.New("grading pipeline stopped")

const pipelineQueueSize = 1024

// Pipeline grades queued submissions asynchronously on a fixed pool of workers. Each job
// waits for the configured delay first, imitating a slow external grader.
type Pipeline struct {
	grader      *Grader
	submissions repository.SubmissionRepository
	workers     int
	delay       time.Duration
	logger      zerolog.Logger

	jobs     chan string
	mu       sync.RWMutex
	stopped  bool
	cancel   context.CancelFunc
	group    *errgroup.Group
	stopOnce sync.Once
}

// NewPipeline builds an idle pipeline. Call Start before queueing work.
func NewPipeline(grader *Grader, submissions repository.SubmissionRepository, workers int, delay time.Duration, logger zerolog.Logger) *Pipeline {
	if workers <= 0 {
		workers = 1
	}
	return &Pipeline{
		grader:      grader,
		submissions: submissions,
		workers:     workers,
		delay:       delay,
		logger:      logger.With().Str("component", "grading_pipeline").Logger(),
		jobs:        make(chan string, pipelineQueueSize),
	}
}

// Start launches the workers and requeues submissions left pending by a previous run.
func (p *Pipeline) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	group, groupCtx := errgroup.WithContext(ctx)
	p.group = group

	p.logger.Info().Int("worker_count", p.workers).Dur("delay", p.delay).Msg("starting grading pipeline")
	for i := 0; i < p.workers; i++ {
		id := i
		group.Go(func() error {
			p.work(groupCtx, id)
			return nil
		})
	}

	pending, err := p.submissions.ListPendingIDs(ctx)
	if err != nil {
		return err
	}
	if len(pending) > 0 {
		p.logger.Info().Int("count", len(pending)).Msg("requeueing pending submissions")
	}
	return p.Enqueue(ctx, pending...)
}

// Enqueue schedules submissions for grading. It blocks while the queue is full.
func (p *Pipeline) Enqueue(ctx context.Context, submissionIDs ...string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.stopped {
		return ErrPipelineStopped
	}

	for _, id := range submissionIDs {
		select {
		case p.jobs <- id:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// Stop cancels in-flight grading and waits for the workers to exit. Submissions still
// queued stay pending in the database and are picked up by the next Start.
func (p *Pipeline) Stop() {
	p.stopOnce.Do(func() {
		p.mu.Lock()
		p.stopped = true
		p.mu.Unlock()

		if p.cancel != nil {
			p.cancel()
		}
		if p.group != nil {
			_ = p.group.Wait()
		}
		p.logger.Info().Msg("grading pipeline stopped")
	})
}

func (p *Pipeline) work(ctx context.Context, id int) {
	logger := p.logger.With().Int("worker_id", id).Logger()
	for {
		select {
		case <-ctx.Done():
			return
		case submissionID := <-p.jobs:
			if !p.wait(ctx) {
				return
			}
			status, err := p.grader.Grade(ctx, submissionID)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				logger.Error().Err(err).Str("submission_id", submissionID).Msg("grading job failed")
				continue
			}
			logger.Debug().Str("submission_id", submissionID).Str("status", string(status)).Msg("grading job done")
		}
	}
}

func (p *Pipeline) wait(ctx context.Context) bool {
	if p.delay <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(p.delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
