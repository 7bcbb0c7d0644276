package app

import (
	"sync"
	"time"

	"iq-card-service/internal/avatar"
	"iq-card-service/internal/domain"
	"iq-card-service/internal/scoring"
)

// InitialTime is the countdown, in seconds, each question starts with.
const InitialTime = 20

// Session is one single-player quiz run. All mutation goes through the named
// transitions (Start, Tick, Select, Reset) under the session lock, so a question
// is resolved at most once, either by a selection or by its timeout.
type Session struct {
	id        string
	brand     string
	tiers     []domain.BadgeTier
	createdAt time.Time
	now       func() time.Time

	mu            sync.RWMutex
	phase         domain.Phase
	run           uint64
	items         []domain.QuizItem
	current       int
	selections    []int
	bonuses       []int
	outcomes      []domain.Outcome
	timeRemaining int
	lastActive    time.Time
	profile       domain.Profile
	avatar        *avatar.State
	advanced      chan struct{}
	subscribers   map[chan domain.SessionView]struct{}
}

// NewSession creates a session in the not-started phase.
func NewSession(id, brand string, tiers []domain.BadgeTier, resolver *avatar.Resolver) *Session {
	return NewSessionWithClock(id, brand, tiers, resolver, time.Now)
}

// NewSessionWithClock allows deterministic timestamps in tests.
func NewSessionWithClock(id, brand string, tiers []domain.BadgeTier, resolver *avatar.Resolver, now func() time.Time) *Session {
	if resolver == nil {
		resolver = avatar.NewResolver(avatar.Config{})
	}
	state := resolver.NewState()
	state.SetProfile("", "")
	created := now()
	return &Session{
		id:          id,
		brand:       brand,
		tiers:       tiers,
		createdAt:   created,
		now:         now,
		lastActive:  created,
		phase:       domain.PhaseNotStarted,
		avatar:      state,
		advanced:    make(chan struct{}, 1),
		subscribers: make(map[chan domain.SessionView]struct{}),
	}
}

func (s *Session) ID() string    { return s.id }
func (s *Session) Brand() string { return s.brand }

// Start begins a fresh run over items. It is valid from any phase.
func (s *Session) Start(items []domain.QuizItem) domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.run++
	s.items = append([]domain.QuizItem(nil), items...)
	s.current = 0
	s.selections = make([]int, len(items))
	s.bonuses = make([]int, len(items))
	s.outcomes = make([]domain.Outcome, len(items))
	for i := range items {
		s.selections[i] = domain.Unanswered
		s.outcomes[i] = domain.OutcomePending
	}
	s.timeRemaining = InitialTime
	s.phase = domain.PhaseRunning
	if len(items) == 0 {
		s.phase = domain.PhaseFinished
	}
	// drop a signal left over from the previous run
	select {
	case <-s.advanced:
	default:
	}
	return s.broadcastLocked()
}

// Tick advances the countdown by one second. Reaching zero resolves the current
// question as timed out (no selection, no bonus) and moves on.
func (s *Session) Tick() (domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tickLocked()
}

// tickRun ticks only if the session is still on the given run, so a countdown
// left over from a previous run cannot touch a restarted session.
func (s *Session) tickRun(run uint64) (domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.run != run {
		return domain.SessionView{}, domain.ErrSessionNotRunning
	}
	return s.tickLocked()
}

func (s *Session) tickLocked() (domain.SessionView, error) {
	if s.phase != domain.PhaseRunning {
		return domain.SessionView{}, domain.ErrSessionNotRunning
	}
	if s.timeRemaining > 0 {
		s.timeRemaining--
	}
	if s.timeRemaining == 0 {
		s.outcomes[s.current] = domain.OutcomeTimedOut
		s.advanceLocked()
	}
	return s.broadcastLocked(), nil
}

// Select records choice for the question at questionIndex, which must be the
// current one. A correct answer earns the remaining time as bonus.
func (s *Session) Select(questionIndex, choice int) (domain.SessionView, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase != domain.PhaseRunning {
		return domain.SessionView{}, domain.ErrSessionNotRunning
	}
	if questionIndex != s.current {
		return domain.SessionView{}, domain.ErrStaleQuestion
	}
	item := s.items[s.current]
	if choice < 0 || choice >= len(item.Choices) {
		return domain.SessionView{}, domain.ErrChoiceOutOfRange
	}

	s.selections[s.current] = choice
	if choice == item.CorrectIndex {
		s.bonuses[s.current] = scoring.ClampBonus(s.timeRemaining)
		s.outcomes[s.current] = domain.OutcomeCorrect
	} else {
		s.outcomes[s.current] = domain.OutcomeWrong
	}
	s.advanceLocked()

	select {
	case s.advanced <- struct{}{}:
	default:
	}
	return s.broadcastLocked(), nil
}

func (s *Session) advanceLocked() {
	s.current++
	if s.current >= len(s.items) {
		s.current = len(s.items)
		s.phase = domain.PhaseFinished
		return
	}
	s.timeRemaining = InitialTime
}

// Reset clears the run and the share card inputs and returns to not started.
func (s *Session) Reset() domain.SessionView {
	view := s.resetRun()
	s.avatar.SetProfile("", "")
	return view
}

func (s *Session) resetRun() domain.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run++
	s.profile = domain.Profile{}
	s.items = nil
	s.selections = nil
	s.bonuses = nil
	s.outcomes = nil
	s.current = 0
	s.timeRemaining = InitialTime
	s.phase = domain.PhaseNotStarted
	return s.broadcastLocked()
}

// Idle reports whether the session is not running and has seen no activity for
// at least idle. Idle sessions may be evicted by a store.
func (s *Session) Idle(now time.Time, idle time.Duration) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase != domain.PhaseRunning && now.Sub(s.lastActive) >= idle
}

func (s *Session) touch() {
	s.mu.Lock()
	s.lastActive = s.now()
	s.mu.Unlock()
}

// Running reports whether the countdown should be ticking.
func (s *Session) Running() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase == domain.PhaseRunning
}

// Finished reports whether the run reached the result screen.
func (s *Session) Finished() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.phase == domain.PhaseFinished
}

func (s *Session) currentRun() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

// View returns a snapshot of the session.
func (s *Session) View() domain.SessionView {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snapshotLocked()
}

// Result derives score, max score, IQ and badge from the recorded selections.
func (s *Session) Result() domain.Result {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return scoring.Compute(s.items, s.selections, s.bonuses, s.tiers)
}

// Profile returns the share card inputs.
func (s *Session) Profile() domain.Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// SetProfile stores the normalized share card inputs and rebinds the avatar chain.
func (s *Session) SetProfile(p domain.Profile) domain.Profile {
	p = p.Normalize()
	s.mu.Lock()
	s.profile = p
	s.mu.Unlock()
	s.avatar.SetProfile(p.Handle, p.DisplayName)
	return p
}

// Avatar exposes the avatar display state of the share card.
func (s *Session) Avatar() *avatar.State {
	return s.avatar
}

func (s *Session) advancedSignal() <-chan struct{} {
	return s.advanced
}

// Subscribe returns a channel of snapshots; the first value is the current state.
// The caller must invoke cancel to release it.
func (s *Session) Subscribe() (<-chan domain.SessionView, func()) {
	ch := make(chan domain.SessionView, 8)

	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	initial := s.snapshotLocked()
	s.mu.Unlock()

	ch <- initial

	cancel := func() {
		s.mu.Lock()
		if _, ok := s.subscribers[ch]; ok {
			delete(s.subscribers, ch)
			close(ch)
		}
		s.mu.Unlock()
	}
	return ch, cancel
}

func (s *Session) broadcastLocked() domain.SessionView {
	s.lastActive = s.now()
	view := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- view:
		default:
			// slow subscriber: drop the oldest snapshot, the newest one wins
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
	return view
}

func (s *Session) snapshotLocked() domain.SessionView {
	view := domain.SessionView{
		ID:            s.id,
		Brand:         s.brand,
		Phase:         s.phase,
		Current:       s.current,
		Total:         len(s.items),
		TimeRemaining: s.timeRemaining,
		UpdatedAt:     s.now(),
	}
	switch s.phase {
	case domain.PhaseRunning:
		item := s.items[s.current]
		view.Question = &domain.QuestionView{
			Index:   s.current,
			Prompt:  item.Prompt,
			Choices: append([]string(nil), item.Choices...),
		}
	case domain.PhaseFinished:
		view.Selections = append([]int(nil), s.selections...)
		view.Outcomes = append([]domain.Outcome(nil), s.outcomes...)
		result := scoring.Compute(s.items, s.selections, s.bonuses, s.tiers)
		view.Result = &result
	}
	return view
}
