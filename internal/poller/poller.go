package poller

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/apiclient"
	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/observability"
	"github.com/noah-isme/gema-evalsync/internal/store"
)

// DefaultInterval is the fixed delay between two polls of a pending submission.
const DefaultInterval = 3 * time.Second

// State is the lifecycle of one watch handle.
type State int32

const (
	StateIdle State = iota
	StateActive
	StateSettled
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateActive:
		return "active"
	case StateSettled:
		return "settled"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// SubmissionFetcher loads the latest server view of a submission.
type SubmissionFetcher interface {
	GetSubmission(ctx context.Context, id string) (models.Submission, error)
}

// Poller re-fetches submissions until the grading pipeline reports them evaluated.
type Poller struct {
	fetcher  SubmissionFetcher
	store    *store.Store
	interval time.Duration
	logger   zerolog.Logger
}

// New constructs a poller. A non-positive interval falls back to DefaultInterval.
func New(fetcher SubmissionFetcher, st *store.Store, interval time.Duration, logger zerolog.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:  fetcher,
		store:    st,
		interval: interval,
		logger:   logger.With().Str("component", "poller").Logger(),
	}
}

// Interval returns the configured tick interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Handle controls one watched submission.
type Handle struct {
	submissionID string
	tok          *store.Token
	state        atomic.Int32
	stop         chan struct{}
	done         chan struct{}
	stopOnce     sync.Once
}

// SubmissionID returns the watched submission id.
func (h *Handle) SubmissionID() string {
	return h.submissionID
}

// State returns the current lifecycle state.
func (h *Handle) State() State {
	return State(h.state.Load())
}

// Done is closed once the handle has settled or stopped.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Stop tears the watch down. It cancels the token so in-flight responses are discarded and
// returns only after the polling goroutine has exited. A settled handle stays settled. Calling
// it again is a no-op.
func (h *Handle) Stop() {
	h.stopOnce.Do(func() {
		h.tok.Cancel()
		close(h.stop)
		<-h.done
		if !h.state.CompareAndSwap(int32(StateActive), int32(StateStopped)) {
			h.state.CompareAndSwap(int32(StateIdle), int32(StateStopped))
		}
	})
}

// Watch fetches the submission once and, if it is not yet evaluated, keeps polling it every
// interval until it is. A nil token gets a fresh one owned by the handle.
func (p *Poller) Watch(ctx context.Context, tok *store.Token, submissionID string) (*Handle, error) {
	if tok == nil {
		tok = store.NewToken()
	}

	h := &Handle{
		submissionID: submissionID,
		tok:          tok,
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	h.state.Store(int32(StateIdle))

	settled, err := p.poll(ctx, h)
	if err != nil && !apiclient.IsRetryable(err) {
		h.state.Store(int32(StateStopped))
		close(h.done)
		return h, fmt.Errorf("watch submission %s: %w", submissionID, err)
	}

	if settled || !tok.Alive() {
		if settled {
			h.state.Store(int32(StateSettled))
		} else {
			h.state.Store(int32(StateStopped))
		}
		close(h.done)
		return h, nil
	}

	h.state.Store(int32(StateActive))
	go p.loop(ctx, h)

	return h, nil
}

func (p *Poller) loop(ctx context.Context, h *Handle) {
	defer close(h.done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case <-h.tok.Done():
			h.state.Store(int32(StateStopped))
			return
		case <-ctx.Done():
			h.state.Store(int32(StateStopped))
			return
		case <-ticker.C:
			settled, err := p.poll(ctx, h)
			if err != nil {
				continue
			}
			if settled {
				h.state.Store(int32(StateSettled))
				p.logger.Info().Str("submission_id", h.submissionID).Msg("submission evaluated, polling stopped")
				return
			}
		}
	}
}

// poll performs one fetch-and-apply cycle and reports whether the submission is terminal.
func (p *Poller) poll(ctx context.Context, h *Handle) (bool, error) {
	reqCtx, cancel := h.tok.Bind(ctx)
	defer cancel()

	submission, err := p.fetcher.GetSubmission(reqCtx, h.submissionID)
	if err != nil {
		if !h.tok.Alive() || ctx.Err() != nil {
			observability.PollTicks().WithLabelValues("discarded").Inc()
			return false, nil
		}
		observability.PollTicks().WithLabelValues("error").Inc()
		p.logger.Warn().Err(err).Str("submission_id", h.submissionID).Msg("poll failed, retrying on next tick")
		return false, err
	}

	if !p.store.ApplySubmission(h.tok, submission) {
		observability.PollTicks().WithLabelValues("discarded").Inc()
		p.logger.Debug().Str("submission_id", h.submissionID).Msg("discarded response after teardown")
		return false, nil
	}

	if submission.IsTerminal() {
		observability.PollTicks().WithLabelValues("settled").Inc()
		return true, nil
	}

	observability.PollTicks().WithLabelValues("pending").Inc()
	return false, nil
}
