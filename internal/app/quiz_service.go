package app

import (
	"context"
	"log"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"iq-card-service/internal/avatar"
	"iq-card-service/internal/card"
	"iq-card-service/internal/domain"
)

// SessionRepository abstracts where live sessions are kept (in-memory, Redis-marked).
type SessionRepository interface {
	Create(session *Session)
	Get(id string) (*Session, bool)
	Delete(id string)
	// Sweep drops sessions idle at now and returns their ids.
	Sweep(now time.Time, idle time.Duration) []string
}

// BankRepository loads question banks (from cache/backing store).
type BankRepository interface {
	GetBank(ctx context.Context, brand string) (domain.Bank, error)
}

// BrandEntry is a brand deployment with its avatar resolver.
type BrandEntry struct {
	Brand    domain.Brand
	Resolver *avatar.Resolver
}

// Catalog holds the configured brands in declaration order.
type Catalog struct {
	order   []string
	entries map[string]BrandEntry
}

func NewCatalog(entries ...BrandEntry) *Catalog {
	c := &Catalog{entries: make(map[string]BrandEntry, len(entries))}
	for _, e := range entries {
		if e.Resolver == nil {
			e.Resolver = avatar.NewResolver(avatar.Config{Placeholder: e.Brand.Placeholder, Initials: e.Brand.Initials})
		}
		if _, ok := c.entries[e.Brand.ID]; !ok {
			c.order = append(c.order, e.Brand.ID)
		}
		c.entries[e.Brand.ID] = e
	}
	return c
}

func (c *Catalog) Get(id string) (BrandEntry, error) {
	e, ok := c.entries[id]
	if !ok {
		return BrandEntry{}, domain.ErrBrandNotFound
	}
	return e, nil
}

func (c *Catalog) Brands() []domain.Brand {
	out := make([]domain.Brand, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.entries[id].Brand)
	}
	return out
}

// Options configure a QuizService.
type Options struct {
	QuestionCount int
	TickEvery     time.Duration
	NewTicker     func(time.Duration) Ticker
	Rand          *rand.Rand
	Exporter      *card.Exporter
	Inliner       avatar.Inliner
	// IdleTTL evicts sessions that are not running and saw no activity for
	// this long. Zero disables eviction.
	IdleTTL time.Duration
	Now     func() time.Time
}

// QuizService contains the quiz use cases.
type QuizService struct {
	sessions SessionRepository
	banks    BankRepository
	catalog  *Catalog
	exporter *card.Exporter
	inliner  avatar.Inliner

	count     int
	tickEvery time.Duration
	newTicker func(time.Duration) Ticker
	idleTTL   time.Duration
	now       func() time.Time

	rndMu sync.Mutex
	rnd   *rand.Rand

	ctx        context.Context
	stop       context.CancelFunc
	wg         sync.WaitGroup
	mu         sync.Mutex
	countdowns map[string]countdown
}

type countdown struct {
	run    uint64
	cancel context.CancelFunc
}

func NewQuizService(store SessionRepository, banks BankRepository, catalog *Catalog, opts Options) *QuizService {
	if opts.QuestionCount <= 0 {
		opts.QuestionCount = 10
	}
	if opts.TickEvery <= 0 {
		opts.TickEvery = time.Second
	}
	if opts.NewTicker == nil {
		opts.NewTicker = NewClockTicker
	}
	if opts.Rand == nil {
		opts.Rand = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if opts.Inliner == nil {
		opts.Inliner = avatar.NewFetcher(nil, nil)
	}
	if opts.Exporter == nil {
		opts.Exporter = card.NewExporter(card.NewPNGRenderer(), opts.Inliner, card.DefaultOptions())
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	ctx, stop := context.WithCancel(context.Background())
	s := &QuizService{
		sessions:   store,
		banks:      banks,
		catalog:    catalog,
		exporter:   opts.Exporter,
		inliner:    opts.Inliner,
		count:      opts.QuestionCount,
		tickEvery:  opts.TickEvery,
		newTicker:  opts.NewTicker,
		idleTTL:    opts.IdleTTL,
		now:        opts.Now,
		rnd:        opts.Rand,
		ctx:        ctx,
		stop:       stop,
		countdowns: make(map[string]countdown),
	}
	if s.idleTTL > 0 {
		s.wg.Add(1)
		go s.sweepLoop()
	}
	return s
}

// Brands lists the configured brand deployments.
func (s *QuizService) Brands() []domain.Brand {
	return s.catalog.Brands()
}

func (s *QuizService) Brand(id string) (domain.Brand, error) {
	e, err := s.catalog.Get(id)
	return e.Brand, err
}

// StartSession samples a fresh question list and starts a new running session.
func (s *QuizService) StartSession(ctx context.Context, brandID string, count int) (domain.SessionView, error) {
	entry, err := s.catalog.Get(brandID)
	if err != nil {
		return domain.SessionView{}, err
	}
	items, err := s.sample(ctx, brandID, count)
	if err != nil {
		return domain.SessionView{}, err
	}

	session := NewSessionWithClock(uuid.NewString(), brandID, entry.Brand.Badges, entry.Resolver, s.now)
	s.sessions.Create(session)
	view := session.Start(items)
	s.startCountdown(session)
	return view, nil
}

// Restart resamples and starts the session again (the "skip to quiz" and
// "ready" entry points both land here for an existing session).
func (s *QuizService) Restart(ctx context.Context, id string, count int) (domain.SessionView, error) {
	session, err := s.get(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	items, err := s.sample(ctx, session.Brand(), count)
	if err != nil {
		return domain.SessionView{}, err
	}
	s.stopCountdown(id)
	view := session.Start(items)
	s.startCountdown(session)
	return view, nil
}

// Select records an answer for the current question of a session.
func (s *QuizService) Select(_ context.Context, id string, questionIndex, choice int) (domain.SessionView, error) {
	session, err := s.get(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	view, err := session.Select(questionIndex, choice)
	if err != nil {
		return domain.SessionView{}, err
	}
	if view.Phase != domain.PhaseRunning {
		s.stopCountdown(id)
	}
	return view, nil
}

// Reset stops the countdown and returns the session to not started.
func (s *QuizService) Reset(_ context.Context, id string) (domain.SessionView, error) {
	session, err := s.get(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	s.stopCountdown(id)
	return session.Reset(), nil
}

// Delete tears a session down.
func (s *QuizService) Delete(_ context.Context, id string) {
	s.stopCountdown(id)
	if session, ok := s.sessions.Get(id); ok {
		session.Reset()
	}
	s.sessions.Delete(id)
}

// View returns a snapshot of a session.
func (s *QuizService) View(_ context.Context, id string) (domain.SessionView, error) {
	session, err := s.get(id)
	if err != nil {
		return domain.SessionView{}, err
	}
	return session.View(), nil
}

// Result derives the score state of a session.
func (s *QuizService) Result(_ context.Context, id string) (domain.Result, error) {
	session, err := s.get(id)
	if err != nil {
		return domain.Result{}, err
	}
	return session.Result(), nil
}

// Subscribe returns a channel that receives session snapshots.
// The caller must invoke the returned cancel function to avoid leaks.
func (s *QuizService) Subscribe(_ context.Context, id string) (<-chan domain.SessionView, func(), error) {
	session, err := s.get(id)
	if err != nil {
		return nil, nil, err
	}
	ch, cancel := session.Subscribe()
	return ch, cancel, nil
}

// UpdateProfile stores the share card inputs and returns the avatar display state.
func (s *QuizService) UpdateProfile(_ context.Context, id string, profile domain.Profile) (domain.Profile, avatar.StateView, error) {
	session, err := s.get(id)
	if err != nil {
		return domain.Profile{}, avatar.StateView{}, err
	}
	p := session.SetProfile(profile)
	return p, session.Avatar().View(), nil
}

// Avatar returns the avatar display state of a session.
func (s *QuizService) Avatar(_ context.Context, id string) (avatar.StateView, error) {
	session, err := s.get(id)
	if err != nil {
		return avatar.StateView{}, err
	}
	return session.Avatar().View(), nil
}

// AvatarError reports that the displayed avatar failed to load.
func (s *QuizService) AvatarError(_ context.Context, id string) (avatar.StateView, error) {
	session, err := s.get(id)
	if err != nil {
		return avatar.StateView{}, err
	}
	session.Avatar().OnError()
	return session.Avatar().View(), nil
}

// ExportCard renders the share card of a finished session.
func (s *QuizService) ExportCard(ctx context.Context, id string) (card.Download, error) {
	session, err := s.get(id)
	if err != nil {
		return card.Download{}, err
	}
	if !session.Finished() {
		return card.Download{}, domain.ErrSessionNotFinished
	}
	entry, err := s.catalog.Get(session.Brand())
	if err != nil {
		return card.Download{}, err
	}
	profile := session.Profile()
	c := card.Card{
		Brand:  entry.Brand,
		Label:  profile.Label(entry.Resolver.Placeholder()),
		Result: session.Result(),
	}
	return s.exporter.Export(ctx, c, entry.Resolver, profile, session.Avatar())
}

// ResolveAvatar walks the provider chain for a handle outside of any session.
func (s *QuizService) ResolveAvatar(ctx context.Context, brandID, handle, name string) (avatar.Image, error) {
	entry, err := s.catalog.Get(brandID)
	if err != nil {
		return avatar.Image{}, err
	}
	p := domain.Profile{Handle: handle, DisplayName: name}.Normalize()
	return entry.Resolver.Resolve(ctx, s.inliner, p.Handle, p.DisplayName), nil
}

// Close stops every countdown and waits for them to exit.
func (s *QuizService) Close() {
	s.stop()
	s.wg.Wait()
}

// Sweep evicts idle sessions from the store and stops anything still
// attached to them.
func (s *QuizService) Sweep() []string {
	if s.idleTTL <= 0 {
		return nil
	}
	ids := s.sessions.Sweep(s.now(), s.idleTTL)
	for _, id := range ids {
		s.stopCountdown(id)
	}
	if len(ids) > 0 {
		log.Printf("evicted %d idle sessions", len(ids))
	}
	sort.Strings(ids)
	return ids
}

func (s *QuizService) sweepLoop() {
	defer s.wg.Done()
	every := s.idleTTL / 2
	if every < time.Second {
		every = time.Second
	}
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// ActiveCountdowns lists sessions with a live countdown, sorted.
func (s *QuizService) ActiveCountdowns() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, 0, len(s.countdowns))
	for id := range s.countdowns {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (s *QuizService) get(id string) (*Session, error) {
	session, ok := s.sessions.Get(id)
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	session.touch()
	return session, nil
}

func (s *QuizService) sample(ctx context.Context, brandID string, count int) ([]domain.QuizItem, error) {
	bank, err := s.banks.GetBank(ctx, brandID)
	if err != nil {
		return nil, err
	}
	if count <= 0 {
		count = s.count
	}
	s.rndMu.Lock()
	defer s.rndMu.Unlock()
	return Sample(bank.Items, count, s.rnd), nil
}

func (s *QuizService) startCountdown(session *Session) {
	if !session.Running() {
		return
	}
	ctx, cancel := context.WithCancel(s.ctx)
	run := session.currentRun()

	s.mu.Lock()
	if prev, ok := s.countdowns[session.ID()]; ok {
		prev.cancel()
	}
	s.countdowns[session.ID()] = countdown{run: run, cancel: cancel}
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		runCountdown(ctx, session, run, s.tickEvery, s.newTicker)
		s.mu.Lock()
		// a restart may have replaced the entry already
		if cd, ok := s.countdowns[session.ID()]; ok && cd.run == run {
			delete(s.countdowns, session.ID())
		}
		s.mu.Unlock()
		cancel()
	}()
}

func (s *QuizService) stopCountdown(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cd, ok := s.countdowns[id]; ok {
		cd.cancel()
		delete(s.countdowns, id)
	}
}
