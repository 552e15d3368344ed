package store

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-evalsync/internal/models"
	"github.com/noah-isme/gema-evalsync/internal/observability"
)

// Kind identifies which slot of the snapshot a change replaced.
type Kind string

const (
	KindAssignments Kind = "assignments"
	KindAssignment  Kind = "assignment"
	KindSubmission  Kind = "submission"
	KindForget      Kind = "forget"
)

// Change is broadcast to subscribers after every replacement.
type Change struct {
	Kind    Kind
	ID      string
	Version uint64
}

const subscriberBufferSize = 16

// Store is the single source of truth for server state visible to the client. Every update is
// a whole-snapshot replacement; nothing is merged or edited in place.
type Store struct {
	mu   sync.RWMutex
	snap *Snapshot

	subMu       sync.RWMutex
	subscribers map[chan Change]struct{}

	logger zerolog.Logger
}

// New constructs an empty store.
func New(logger zerolog.Logger) *Store {
	return &Store{
		snap:        emptySnapshot(),
		subscribers: make(map[chan Change]struct{}),
		logger:      logger.With().Str("component", "entity_store").Logger(),
	}
}

// Snapshot returns the current immutable snapshot.
func (s *Store) Snapshot() *Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap
}

// ReplaceAssignments swaps the assignment list.
func (s *Store) ReplaceAssignments(assignments []models.Assignment) {
	list := make([]models.Assignment, len(assignments))
	for i, assignment := range assignments {
		list[i] = assignment.Clone()
	}

	s.swap(KindAssignments, "", func(next *Snapshot) {
		next.assignments = list
	})
}

// ReplaceAssignment swaps the detailed record of one assignment, submissions included.
func (s *Store) ReplaceAssignment(assignment models.Assignment) {
	clone := assignment.Clone()

	s.swap(KindAssignment, assignment.ID, func(next *Snapshot) {
		next.details = copyAssignments(next.details)
		next.details[clone.ID] = clone
	})
}

// ReplaceSubmission swaps one individually watched submission.
func (s *Store) ReplaceSubmission(submission models.Submission) {
	clone := submission.Clone()

	s.swap(KindSubmission, submission.ID, func(next *Snapshot) {
		next.submissions = copySubmissions(next.submissions)
		next.submissions[clone.ID] = clone
	})
}

// Forget removes a deleted assignment from the detail slot.
func (s *Store) Forget(assignmentID string) {
	s.swap(KindForget, assignmentID, func(next *Snapshot) {
		next.details = copyAssignments(next.details)
		delete(next.details, assignmentID)
	})
}

// ApplyAssignments replaces the list only while tok is live. It reports whether it applied.
func (s *Store) ApplyAssignments(tok *Token, assignments []models.Assignment) bool {
	return tok.guard(func() { s.ReplaceAssignments(assignments) })
}

// ApplyAssignment replaces an assignment only while tok is live.
func (s *Store) ApplyAssignment(tok *Token, assignment models.Assignment) bool {
	return tok.guard(func() { s.ReplaceAssignment(assignment) })
}

// ApplySubmission replaces a submission only while tok is live.
func (s *Store) ApplySubmission(tok *Token, submission models.Submission) bool {
	return tok.guard(func() { s.ReplaceSubmission(submission) })
}

// ApplyForget removes an assignment only while tok is live.
func (s *Store) ApplyForget(tok *Token, assignmentID string) bool {
	return tok.guard(func() { s.Forget(assignmentID) })
}

// Subscribe registers for change notifications. The returned func unsubscribes and is safe to
// call more than once. Slow subscribers miss changes instead of blocking writers.
func (s *Store) Subscribe() (<-chan Change, func()) {
	ch := make(chan Change, subscriberBufferSize)

	s.subMu.Lock()
	s.subscribers[ch] = struct{}{}
	s.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subMu.Lock()
			delete(s.subscribers, ch)
			close(ch)
			s.subMu.Unlock()
		})
	}
}

func (s *Store) swap(kind Kind, id string, mutate func(next *Snapshot)) {
	s.mu.Lock()
	next := s.snap.shallowCopy()
	mutate(next)
	next.version = s.snap.version + 1
	s.snap = next
	version := next.version
	s.mu.Unlock()

	observability.StoreReplacements().WithLabelValues(string(kind)).Inc()
	s.logger.Debug().Str("kind", string(kind)).Str("id", id).Uint64("version", version).Msg("snapshot replaced")

	s.broadcast(Change{Kind: kind, ID: id, Version: version})
}

func (s *Store) broadcast(change Change) {
	s.subMu.RLock()
	defer s.subMu.RUnlock()

	for ch := range s.subscribers {
		select {
		case ch <- change:
		default:
		}
	}
}

func copyAssignments(in map[string]models.Assignment) map[string]models.Assignment {
	out := make(map[string]models.Assignment, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySubmissions(in map[string]models.Submission) map[string]models.Submission {
	out := make(map[string]models.Submission, len(in)+1)
	for k, v := range in {
		out[k] = v
	}
	return out
}
