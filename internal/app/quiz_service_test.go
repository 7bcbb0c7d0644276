package app_test

import (
	"context"
	"errors"
	"math/rand"
	"reflect"
	"sync"
	"testing"
	"time"

	"iq-card-service/internal/app"
	"iq-card-service/internal/avatar"
	"iq-card-service/internal/card"
	"iq-card-service/internal/domain"
	"iq-card-service/internal/infra/memory"
)

type offlineInliner struct{}

func (offlineInliner) Inline(context.Context, string) (avatar.Image, error) {
	return avatar.Image{}, domain.ErrNetworkUnavailable
}

// manualTicker never fires on its own; tests drive sessions directly.
type manualTicker struct{ ch chan time.Time }

func (m manualTicker) C() <-chan time.Time  { return m.ch }
func (m manualTicker) Reset(time.Duration) {}
func (m manualTicker) Stop()               {}

func testBank() domain.Bank {
	items := make([]domain.QuizItem, 12)
	for i := range items {
		items[i] = domain.QuizItem{
			Prompt:       "Question " + string(rune('A'+i)),
			Choices:      []string{"yes", "no", "maybe"},
			CorrectIndex: 0,
		}
	}
	return domain.Bank{Brand: "brevis", Items: items}
}

func newTestService(t *testing.T, configure ...func(*app.Options)) *app.QuizService {
	t.Helper()
	brand := domain.Brand{
		ID:          "brevis",
		Name:        "Brevis",
		Placeholder: "Brevis Learner",
		Initials:    "BI",
		Badges: []domain.BadgeTier{
			{Threshold: 0.8, Name: "Brevis Chad"},
			{Threshold: 0.5, Name: "Brevis Rookie"},
			{Threshold: 0, Name: "Brevis Noob"},
		},
	}
	catalog := app.NewCatalog(app.BrandEntry{Brand: brand})
	banks := memory.NewBankRepository(memory.NewStaticBankLoader(map[string]domain.Bank{"brevis": testBank()}), time.Minute)
	inliner := offlineInliner{}
	exporter := card.NewExporter(card.NewPNGRenderer(), inliner, card.Options{Scale: 1})

	opts := app.Options{
		QuestionCount: 10,
		NewTicker:     func(time.Duration) app.Ticker { return manualTicker{ch: make(chan time.Time)} },
		Rand:          rand.New(rand.NewSource(7)),
		Exporter:      exporter,
		Inliner:       inliner,
	}
	for _, fn := range configure {
		fn(&opts)
	}
	service := app.NewQuizService(memory.NewSessionStore(), banks, catalog, opts)
	t.Cleanup(service.Close)
	return service
}

func answerAll(t *testing.T, service *app.QuizService, view domain.SessionView, choice int) domain.SessionView {
	t.Helper()
	ctx := context.Background()
	for view.Phase == domain.PhaseRunning {
		next, err := service.Select(ctx, view.ID, view.Current, choice)
		if err != nil {
			t.Fatalf("select %d: %v", view.Current, err)
		}
		view = next
	}
	return view
}

func TestStartSessionSamplesAndRunsCountdown(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	view, err := service.StartSession(ctx, "brevis", 0)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if view.Phase != domain.PhaseRunning || view.Total != 10 {
		t.Fatalf("unexpected view %+v", view)
	}
	if got := service.ActiveCountdowns(); len(got) != 1 || got[0] != view.ID {
		t.Fatalf("expected countdown for %s, got %v", view.ID, got)
	}

	if _, err := service.StartSession(ctx, "unknown", 0); !errors.Is(err, domain.ErrBrandNotFound) {
		t.Fatalf("expected brand not found, got %v", err)
	}
}

func TestFinishingStopsCountdownAndScores(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	view, err := service.StartSession(ctx, "brevis", 3)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	view = answerAll(t, service, view, 0)
	if view.Phase != domain.PhaseFinished {
		t.Fatalf("expected finished, got %s", view.Phase)
	}
	if len(service.ActiveCountdowns()) != 0 {
		t.Fatalf("expected countdown stopped, got %v", service.ActiveCountdowns())
	}

	res, err := service.Result(ctx, view.ID)
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if res.Score != 90 || res.MaxScore != 90 || res.IQ != 140 || res.Badge != "Brevis Chad" {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestSelectErrors(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)

	if _, err := service.Select(ctx, "missing", 0, 0); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected session not found, got %v", err)
	}
	view, _ := service.StartSession(ctx, "brevis", 2)
	if _, err := service.Select(ctx, view.ID, 1, 0); !errors.Is(err, domain.ErrStaleQuestion) {
		t.Fatalf("expected stale, got %v", err)
	}
	if _, err := service.Select(ctx, view.ID, 0, 9); !errors.Is(err, domain.ErrChoiceOutOfRange) {
		t.Fatalf("expected out of range, got %v", err)
	}
}

func TestResetRestartAndDelete(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	view, _ := service.StartSession(ctx, "brevis", 2)

	reset, err := service.Reset(ctx, view.ID)
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if reset.Phase != domain.PhaseNotStarted || len(service.ActiveCountdowns()) != 0 {
		t.Fatalf("unexpected reset state %+v", reset)
	}

	restarted, err := service.Restart(ctx, view.ID, 4)
	if err != nil {
		t.Fatalf("restart: %v", err)
	}
	if restarted.Phase != domain.PhaseRunning || restarted.Total != 4 {
		t.Fatalf("unexpected restart %+v", restarted)
	}

	service.Delete(ctx, view.ID)
	if _, err := service.View(ctx, view.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected deleted session, got %v", err)
	}
	if len(service.ActiveCountdowns()) != 0 {
		t.Fatalf("expected no countdowns after delete")
	}
}

func TestProfileAndAvatarFallbackChain(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	view, _ := service.StartSession(ctx, "brevis", 1)

	profile, state, err := service.UpdateProfile(ctx, view.ID, domain.Profile{Handle: "@alice", DisplayName: "Alice"})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if profile.Handle != "alice" || state.Active != 0 || state.Kind != avatar.SourceRemote {
		t.Fatalf("unexpected profile %+v state %+v", profile, state)
	}
	for i := 0; i < len(state.Candidates); i++ {
		if state, err = service.AvatarError(ctx, view.ID); err != nil {
			t.Fatalf("avatar error: %v", err)
		}
	}
	if !state.Exhausted || state.Kind != avatar.SourceInitials {
		t.Fatalf("expected initials after exhausting candidates, got %+v", state)
	}
}

func TestExportCardRequiresFinished(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	view, _ := service.StartSession(ctx, "brevis", 2)

	if _, err := service.ExportCard(ctx, view.ID); !errors.Is(err, domain.ErrSessionNotFinished) {
		t.Fatalf("expected not finished, got %v", err)
	}

	service.UpdateProfile(ctx, view.ID, domain.Profile{Handle: "alice"})
	answerAll(t, service, view, 1)

	dl, err := service.ExportCard(ctx, view.ID)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if dl.Filename != "Brevis-IQ-alice.png" || dl.ContentType != "image/png" || len(dl.Data) == 0 {
		t.Fatalf("unexpected download %+v", dl.Filename)
	}
	state, _ := service.Avatar(ctx, view.ID)
	if state.Overridden || state.Kind != avatar.SourceRemote {
		t.Fatalf("expected display restored after export, got %+v", state)
	}
}

func TestResolveAvatarFallsBackToInitials(t *testing.T) {
	service := newTestService(t)
	img, err := service.ResolveAvatar(context.Background(), "brevis", "@alice", "Alice Liddell")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if !img.Generated() || img.Initials != "AL" || img.MIME != "image/png" {
		t.Fatalf("expected initials image, got %+v", img)
	}
}

func TestSubscribeReceivesUpdates(t *testing.T) {
	ctx := context.Background()
	service := newTestService(t)
	view, _ := service.StartSession(ctx, "brevis", 2)

	ch, cancel, err := service.Subscribe(ctx, view.ID)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer cancel()
	<-ch // initial snapshot

	if _, err := service.Select(ctx, view.ID, 0, 0); err != nil {
		t.Fatalf("select: %v", err)
	}
	update := <-ch
	if update.Current != 1 {
		t.Fatalf("expected advance to question 1, got %+v", update)
	}
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestSweepEvictsIdleSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	service := newTestService(t, func(o *app.Options) {
		o.IdleTTL = time.Hour
		o.Now = clock.Now
	})
	ctx := context.Background()

	finished, err := service.StartSession(ctx, "brevis", 3)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answerAll(t, service, finished, 0)
	running, err := service.StartSession(ctx, "brevis", 3)
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	clock.Advance(30 * time.Minute)
	if got := service.Sweep(); len(got) != 0 {
		t.Fatalf("expected nothing evicted before the idle ttl, got %v", got)
	}

	clock.Advance(time.Hour)
	got := service.Sweep()
	if !reflect.DeepEqual(got, []string{finished.ID}) {
		t.Fatalf("expected only the finished session evicted, got %v", got)
	}
	if _, err := service.View(ctx, finished.ID); !errors.Is(err, domain.ErrSessionNotFound) {
		t.Fatalf("expected evicted session gone, got %v", err)
	}
	if _, err := service.View(ctx, running.ID); err != nil {
		t.Fatalf("expected running session kept: %v", err)
	}
	if ids := service.ActiveCountdowns(); !reflect.DeepEqual(ids, []string{running.ID}) {
		t.Fatalf("expected running countdown untouched, got %v", ids)
	}
}

func TestSweepKeepsRecentlyUsedSessions(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)}
	service := newTestService(t, func(o *app.Options) {
		o.IdleTTL = time.Hour
		o.Now = clock.Now
	})
	ctx := context.Background()

	view, err := service.StartSession(ctx, "brevis", 3)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	answerAll(t, service, view, 0)

	clock.Advance(50 * time.Minute)
	if _, err := service.Result(ctx, view.ID); err != nil {
		t.Fatalf("result: %v", err)
	}
	clock.Advance(50 * time.Minute)
	if got := service.Sweep(); len(got) != 0 {
		t.Fatalf("expected a read to keep the session alive, got %v", got)
	}
}
