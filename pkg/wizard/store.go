package wizard

import (
	"sync"

	"github.com/vetnav/resource-finder/pkg/tracking"
)

// Store owns one session's wizard state and emits the lifecycle events:
// started on the first answer ever, step opened when a section expands,
// completed once the minimal core of answers is present. Events go out
// on a separate goroutine and can never block or fail the caller.
type Store struct {
	mu        sync.Mutex
	state     State
	sessionId int
	trk       tracking.Tracking
	started   bool
	completed bool
}

func NewStore(sessionId int, trk tracking.Tracking) *Store {
	if trk == nil {
		trk = tracking.Noop{}
	}
	return &Store{sessionId: sessionId, trk: trk}
}

// Apply mutates the state through the normalizing merge and emits any
// lifecycle events the transition triggers.
func (s *Store) Apply(u Update) State {
	s.mu.Lock()
	wasEmpty := s.state.Empty()
	s.state = s.state.Apply(u)
	fireStarted := wasEmpty && !s.state.Empty() && !s.started
	if fireStarted {
		s.started = true
	}
	fireCompleted := s.state.Complete() && !s.completed
	if fireCompleted {
		s.completed = true
	}
	state := s.state
	s.mu.Unlock()

	if fireStarted {
		go s.trk.WizardStarted(s.sessionId)
	}
	if fireCompleted {
		go s.trk.WizardCompleted(s.sessionId)
	}
	return state
}

// Replace swaps in a decoded state, e.g. when the user arrives with a
// shared wizard URL. It emits the same lifecycle events as Apply.
func (s *Store) Replace(state State) State {
	s.mu.Lock()
	wasEmpty := s.state.Empty()
	s.state = Normalize(state)
	fireStarted := wasEmpty && !s.state.Empty() && !s.started
	if fireStarted {
		s.started = true
	}
	fireCompleted := s.state.Complete() && !s.completed
	if fireCompleted {
		s.completed = true
	}
	out := s.state
	s.mu.Unlock()

	if fireStarted {
		go s.trk.WizardStarted(s.sessionId)
	}
	if fireCompleted {
		go s.trk.WizardCompleted(s.sessionId)
	}
	return out
}

// StepOpened records that the user expanded a wizard section.
func (s *Store) StepOpened(step int) {
	go s.trk.WizardStepOpened(s.sessionId, step)
}

func (s *Store) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Query returns the canonical URL encoding of the current state.
func (s *Store) Query() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return EncodeQuery(s.state)
}
