package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/threatcomb/threatcomb/app/analysis"
	"github.com/threatcomb/threatcomb/app/cfg"
	"github.com/threatcomb/threatcomb/app/database"
	"github.com/threatcomb/threatcomb/app/llm"
	"github.com/threatcomb/threatcomb/app/tasks"
)

const testAPIKey = "test-key"

type mockFeedRepo struct {
	database.FeedRepository
	feeds map[string]*database.Feed
}

func (m *mockFeedRepo) GetFeed(feedID string) (*database.Feed, error) {
	return m.feeds[feedID], nil
}

func (m *mockFeedRepo) GetFeeds() ([]database.Feed, error) {
	feeds := make([]database.Feed, 0, len(m.feeds))
	for _, f := range m.feeds {
		feeds = append(feeds, *f)
	}
	return feeds, nil
}

func (m *mockFeedRepo) GetFeedCount() (int, error) {
	return len(m.feeds), nil
}

func (m *mockFeedRepo) UpsertFeed(url, title, category string, isSecurityFeed bool) (*database.Feed, error) {
	feed := &database.Feed{
		ID:             "feed-new",
		URL:            url,
		Title:          title,
		Category:       category,
		IsSecurityFeed: isSecurityFeed,
		CreatedAt:      time.Now(),
	}
	m.feeds[feed.ID] = feed
	return feed, nil
}

type mockEntryRepo struct {
	database.EntryRepository
	entries map[string]*database.Entry
	read    map[string]bool
}

func (m *mockEntryRepo) GetEntry(entryID string) (*database.Entry, error) {
	return m.entries[entryID], nil
}

func (m *mockEntryRepo) GetEntriesByFeed(feedID string, limit int) ([]database.Entry, error) {
	var entries []database.Entry
	for _, e := range m.entries {
		if e.FeedID == feedID && len(entries) < limit {
			entries = append(entries, *e)
		}
	}
	return entries, nil
}

func (m *mockEntryRepo) GetTotalEntryCount() (int, error) {
	return len(m.entries), nil
}

func (m *mockEntryRepo) MarkRead(entryID string, isRead bool) error {
	if m.read == nil {
		m.read = make(map[string]bool)
	}
	m.read[entryID] = isRead
	return nil
}

type mockAnalysisRepo struct {
	database.AnalysisRepository
	summaries map[string]*database.Summary
	security  map[string]*database.SecurityAnalysis
}

func (m *mockAnalysisRepo) GetSummary(entryID string) (*database.Summary, error) {
	return m.summaries[entryID], nil
}

func (m *mockAnalysisRepo) GetDetailedAnalysis(entryID string) (*database.DetailedAnalysis, error) {
	return nil, nil
}

func (m *mockAnalysisRepo) GetSecurityAnalysis(entryID string) (*database.SecurityAnalysis, error) {
	return m.security[entryID], nil
}

type mockRunner struct {
	result *analysis.Result
	err    error
}

func (m *mockRunner) Run(ctx context.Context, entryID string, analysisType analysis.Type) (*analysis.Result, error) {
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

type mockModelLister struct {
	models []string
	err    error
}

func (m *mockModelLister) ListModels(ctx context.Context) ([]string, error) {
	return m.models, m.err
}

func (m *mockModelLister) Model() string {
	return "test-model"
}

type mockScheduler struct {
	refreshed bool
}

func (m *mockScheduler) Start()                              {}
func (m *mockScheduler) Stop()                               {}
func (m *mockScheduler) EnqueueTask(tasks.TaskInterface) error { return nil }

func (m *mockScheduler) RefreshAllFeeds() error {
	m.refreshed = true
	return nil
}

type testEnv struct {
	router    *gin.Engine
	scheduler *mockScheduler
	entryRepo *mockEntryRepo
	runner    *mockRunner
}

func newTestEnv(runner *mockRunner) *testEnv {
	cfg.SetForTesting(&cfg.Cfg{Port: "8080", Version: "test"})

	feedRepo := &mockFeedRepo{feeds: map[string]*database.Feed{
		"feed-1": {ID: "feed-1", URL: "https://example.com/feed", Title: "Example", IsSecurityFeed: true},
	}}
	entryRepo := &mockEntryRepo{entries: map[string]*database.Entry{
		"entry-1": {ID: "entry-1", FeedID: "feed-1", GUID: "one", Title: "First"},
	}}
	analysisRepo := &mockAnalysisRepo{
		summaries: map[string]*database.Summary{},
		security:  map[string]*database.SecurityAnalysis{},
	}
	scheduler := &mockScheduler{}

	handler := NewHandler(feedRepo, entryRepo, analysisRepo, runner,
		&mockModelLister{models: []string{"mistral", "llama3"}}, scheduler)

	return &testEnv{
		router:    NewServer(handler, testAPIKey),
		scheduler: scheduler,
		entryRepo: entryRepo,
		runner:    runner,
	}
}

func doRequest(router *gin.Engine, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func authed() map[string]string {
	return map[string]string{"X-API-Key": testAPIKey}
}

func TestHealthEndpointIsPublic(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodGet, "/health", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestAPIRequiresKey(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodGet, "/api/feeds", "", nil)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without key, got %d", w.Code)
	}

	w = doRequest(env.router, http.MethodGet, "/api/feeds", "", map[string]string{"X-API-Key": "wrong"})
	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 with wrong key, got %d", w.Code)
	}
}

func TestAPIBearerTokenAccepted(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodGet, "/api/feeds", "",
		map[string]string{"Authorization": "Bearer " + testAPIKey})
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 with bearer token, got %d", w.Code)
	}
}

func TestAddFeed(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	body := `{"url": "https://example.org/rss", "is_security_feed": true}`
	w := doRequest(env.router, http.MethodPost, "/api/feeds", body, authed())

	if w.Code != http.StatusCreated {
		t.Fatalf("Expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "https://example.org/rss") {
		t.Errorf("Expected feed url in response, got: %s", w.Body.String())
	}
}

func TestAddFeed_MissingURL(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodPost, "/api/feeds", `{"title": "no url"}`, authed())
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestRefreshFeeds(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodPost, "/api/feeds/refresh", "", authed())
	if w.Code != http.StatusAccepted {
		t.Errorf("Expected 202, got %d", w.Code)
	}
	if !env.scheduler.refreshed {
		t.Error("Expected refresh forwarded to scheduler")
	}
}

func TestListEntries_UnknownFeed(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodGet, "/api/feeds/no-such-feed/entries", "", authed())
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}

func TestMarkEntryRead(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodPost, "/api/entries/entry-1/read", "", authed())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !env.entryRepo.read["entry-1"] {
		t.Error("Expected entry marked read")
	}

	w = doRequest(env.router, http.MethodPost, "/api/entries/entry-1/read", `{"is_read": false}`, authed())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if env.entryRepo.read["entry-1"] {
		t.Error("Expected entry marked unread")
	}
}

func TestTriggerAnalysis_Success(t *testing.T) {
	env := newTestEnv(&mockRunner{result: &analysis.Result{
		EntryID: "entry-1",
		Type:    analysis.TypeSummarize,
		Summary: "A short summary.",
	}})

	w := doRequest(env.router, http.MethodPost, "/api/entries/entry-1/analyze",
		`{"type": "summarize"}`, authed())

	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "A short summary.") {
		t.Errorf("Expected summary in response, got: %s", w.Body.String())
	}
}

func TestTriggerAnalysis_UnknownType(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodPost, "/api/entries/entry-1/analyze",
		`{"type": "bogus"}`, authed())
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", w.Code)
	}
}

func TestTriggerAnalysis_ErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		code int
	}{
		{"entry not found", analysis.ErrEntryNotFound, http.StatusNotFound},
		{"inapplicable", analysis.ErrInapplicableAnalysis, http.StatusUnprocessableEntity},
		{"model unavailable", llm.ErrModelUnavailable, http.StatusServiceUnavailable},
		{"malformed rule", analysis.ErrMalformedRuleOutput, http.StatusBadGateway},
		{"unusable output", analysis.ErrUnusableOutput, http.StatusBadGateway},
	}

	for _, tc := range cases {
		env := newTestEnv(&mockRunner{err: tc.err})

		w := doRequest(env.router, http.MethodPost, "/api/entries/entry-1/analyze",
			`{"type": "summarize"}`, authed())
		if w.Code != tc.code {
			t.Errorf("%s: expected %d, got %d", tc.name, tc.code, w.Code)
		}
	}
}

func TestGetSecurityAnalysis_NotYetGenerated(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodGet, "/api/entries/entry-1/analysis/security", "", authed())
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 before analysis exists, got %d", w.Code)
	}
}

func TestListModels(t *testing.T) {
	env := newTestEnv(&mockRunner{})

	w := doRequest(env.router, http.MethodGet, "/api/models", "", authed())
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "llama3") {
		t.Errorf("Expected model list in response, got: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "test-model") {
		t.Errorf("Expected current model in response, got: %s", w.Body.String())
	}
}
