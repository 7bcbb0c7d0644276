package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"net/http"
	"net/http/httptest"
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

type chanTicker struct{ ch chan time.Time }

func (c chanTicker) C() <-chan time.Time  { return c.ch }
func (c chanTicker) Reset(time.Duration) {}
func (c chanTicker) Stop()               {}

type failingRenderer struct{}

func (failingRenderer) Render(context.Context, card.Card, int) ([]byte, error) {
	return nil, errors.New("canvas unavailable")
}

func newTestService(t *testing.T, ticks chan time.Time) *app.QuizService {
	t.Helper()
	return newTestServiceWithRenderer(t, ticks, card.NewPNGRenderer())
}

func newTestServiceWithRenderer(t *testing.T, ticks chan time.Time, renderer card.Renderer) *app.QuizService {
	t.Helper()
	brand := domain.Brand{
		ID:          "brevis",
		Name:        "Brevis",
		Placeholder: "Brevis Learner",
		Initials:    "BI",
		Articles:    []domain.Article{{Title: "Start Here", URL: "https://brevis.network/"}},
	}
	items := []domain.QuizItem{
		{Prompt: "One?", Choices: []string{"a", "b"}, CorrectIndex: 0},
		{Prompt: "Two?", Choices: []string{"a", "b"}, CorrectIndex: 1},
		{Prompt: "Three?", Choices: []string{"a", "b"}, CorrectIndex: 0},
	}
	banks := memory.NewBankRepository(memory.NewStaticBankLoader(map[string]domain.Bank{
		"brevis": {Brand: "brevis", Items: items},
	}), time.Minute)
	if ticks == nil {
		ticks = make(chan time.Time)
	}
	service := app.NewQuizService(memory.NewSessionStore(), banks, app.NewCatalog(app.BrandEntry{Brand: brand}), app.Options{
		NewTicker: func(time.Duration) app.Ticker { return chanTicker{ch: ticks} },
		Rand:      rand.New(rand.NewSource(1)),
		Inliner:   offlineInliner{},
		Exporter:  card.NewExporter(renderer, offlineInliner{}, card.Options{Scale: 1}),
	})
	t.Cleanup(service.Close)
	return service
}

func newTestServer(t *testing.T, ticks chan time.Time) (*httptest.Server, *app.QuizService) {
	t.Helper()
	service := newTestService(t, ticks)
	server := httptest.NewServer(NewRouter(service, nil))
	t.Cleanup(server.Close)
	return server, service
}

func doJSON(t *testing.T, method, url string, body any, out any) int {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestBrandEndpoints(t *testing.T) {
	server, _ := newTestServer(t, nil)
	api := server.URL + "/api/v1"

	var brands []domain.Brand
	if code := doJSON(t, "GET", api+"/brands", nil, &brands); code != http.StatusOK || len(brands) != 1 {
		t.Fatalf("list brands: code %d brands %+v", code, brands)
	}
	var articles []domain.Article
	if code := doJSON(t, "GET", api+"/brands/brevis/articles", nil, &articles); code != http.StatusOK || len(articles) != 1 {
		t.Fatalf("articles: code %d %+v", code, articles)
	}
	var errResp ErrorResponse
	if code := doJSON(t, "GET", api+"/brands/nope", nil, &errResp); code != http.StatusNotFound || errResp.Error == "" {
		t.Fatalf("expected 404 for unknown brand, got %d %+v", code, errResp)
	}
}

func TestSessionFlowOverREST(t *testing.T) {
	server, _ := newTestServer(t, nil)
	api := server.URL + "/api/v1"

	var view domain.SessionView
	if code := doJSON(t, "POST", api+"/brands/brevis/sessions", map[string]int{"count": 2}, &view); code != http.StatusCreated {
		t.Fatalf("create session: %d", code)
	}
	if view.Phase != domain.PhaseRunning || view.Total != 2 || view.Question == nil {
		t.Fatalf("unexpected session %+v", view)
	}
	sessionURL := api + "/sessions/" + view.ID

	var errResp ErrorResponse
	if code := doJSON(t, "POST", sessionURL+"/answers", answerRequest{QuestionIndex: 1, Choice: 0}, &errResp); code != http.StatusConflict {
		t.Fatalf("expected 409 for stale question, got %d", code)
	}
	if code := doJSON(t, "POST", sessionURL+"/answers", answerRequest{QuestionIndex: 0, Choice: 5}, &errResp); code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out of range, got %d", code)
	}
	if code := doJSON(t, "POST", sessionURL+"/card", nil, &errResp); code != http.StatusConflict {
		t.Fatalf("expected 409 exporting unfinished session, got %d", code)
	}

	for i := 0; i < 2; i++ {
		if code := doJSON(t, "POST", sessionURL+"/answers", answerRequest{QuestionIndex: i, Choice: 0}, &view); code != http.StatusOK {
			t.Fatalf("answer %d: %d", i, code)
		}
	}
	if view.Phase != domain.PhaseFinished || view.Result == nil {
		t.Fatalf("expected finished with result, got %+v", view)
	}

	var res domain.Result
	if code := doJSON(t, "GET", sessionURL+"/result", nil, &res); code != http.StatusOK || res.MaxScore != 60 {
		t.Fatalf("result: code %d %+v", code, res)
	}

	if code := doJSON(t, "DELETE", sessionURL, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete: %d", code)
	}
	if code := doJSON(t, "GET", sessionURL, nil, &errResp); code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", code)
	}
}

func TestProfileAvatarAndCardExport(t *testing.T) {
	server, service := newTestServer(t, nil)
	api := server.URL + "/api/v1"

	view, err := service.StartSession(context.Background(), "brevis", 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	sessionURL := api + "/sessions/" + view.ID

	var prof profileResponse
	if code := doJSON(t, "PUT", sessionURL+"/profile", domain.Profile{Handle: "@alice", DisplayName: "Alice"}, &prof); code != http.StatusOK {
		t.Fatalf("profile: %d", code)
	}
	if prof.Profile.Handle != "alice" || len(prof.Avatar.Candidates) != 4 {
		t.Fatalf("unexpected profile response %+v", prof)
	}

	var state avatar.StateView
	if code := doJSON(t, "POST", sessionURL+"/avatar/errors", nil, &state); code != http.StatusOK || state.Active != 1 {
		t.Fatalf("avatar error: code %d state %+v", code, state)
	}

	if _, err := service.Select(context.Background(), view.ID, 0, 0); err != nil {
		t.Fatalf("select: %v", err)
	}

	resp, err := http.Post(sessionURL+"/card", "application/json", nil)
	if err != nil {
		t.Fatalf("card: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if got := resp.Header.Get("Content-Type"); got != "image/png" {
		t.Fatalf("unexpected content type %q", got)
	}
	if got := resp.Header.Get("Content-Disposition"); got != `attachment; filename="Brevis-IQ-alice.png"` {
		t.Fatalf("unexpected disposition %q", got)
	}
}

func TestCardExportFailureReturnsNotice(t *testing.T) {
	service := newTestServiceWithRenderer(t, nil, failingRenderer{})
	server := httptest.NewServer(NewRouter(service, nil))
	t.Cleanup(server.Close)

	view, err := service.StartSession(context.Background(), "brevis", 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := service.Select(context.Background(), view.ID, 0, 0); err != nil {
		t.Fatalf("select: %v", err)
	}

	var body ErrorResponse
	code := doJSON(t, "POST", server.URL+"/api/v1/sessions/"+view.ID+"/card", nil, &body)
	if code != http.StatusInternalServerError || body.Error != ExportNotice {
		t.Fatalf("expected export notice, got %d %+v", code, body)
	}
}

func TestResolveAvatarServesInitials(t *testing.T) {
	server, _ := newTestServer(t, nil)
	resp, err := http.Get(server.URL + "/api/v1/brands/brevis/avatar?handle=alice&name=Alice%20Liddell")
	if err != nil {
		t.Fatalf("get avatar: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("Content-Type") != "image/png" {
		t.Fatalf("unexpected response %d %q", resp.StatusCode, resp.Header.Get("Content-Type"))
	}
	if got := resp.Header.Get("X-Avatar-Initials"); got != "AL" {
		t.Fatalf("expected initials AL, got %q", got)
	}
}

func TestStatusFor(t *testing.T) {
	cases := map[error]int{
		domain.ErrSessionNotFound:    http.StatusNotFound,
		domain.ErrBrandNotFound:      http.StatusNotFound,
		domain.ErrStaleQuestion:      http.StatusConflict,
		domain.ErrSessionNotFinished: http.StatusConflict,
		domain.ErrChoiceOutOfRange:   http.StatusBadRequest,
		domain.ErrExportFailed:       http.StatusInternalServerError,
	}
	for err, want := range cases {
		if got := statusFor(err); got != want {
			t.Fatalf("%v: want %d got %d", err, want, got)
		}
	}
}

func TestHealthz(t *testing.T) {
	server, _ := newTestServer(t, nil)
	resp, err := http.Get(server.URL + "/healthz")
	if err != nil {
		t.Fatalf("healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}
