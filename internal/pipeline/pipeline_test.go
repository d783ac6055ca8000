package pipeline

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/sirupsen/logrus"

	"lighthouse/internal/cloudfallback"
	"lighthouse/internal/domain"
	"lighthouse/internal/escalation"
	"lighthouse/internal/inference"
	"lighthouse/internal/profiles"
	"lighthouse/internal/store"
	"lighthouse/internal/streams"
	"lighthouse/pkg/monitoring"
)

type fakeGenerator struct {
	mu       sync.Mutex
	healthy  bool
	response map[string]*inference.GenerateResponse // keyed by Model
	err      map[string]error
	calls    []string
	delay    time.Duration
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		healthy:  true,
		response: make(map[string]*inference.GenerateResponse),
		err:      make(map[string]error),
	}
}

func (g *fakeGenerator) Healthy(ctx context.Context) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.healthy
}

func (g *fakeGenerator) Generate(ctx context.Context, req inference.GenerateRequest) (*inference.GenerateResponse, error) {
	g.mu.Lock()
	g.calls = append(g.calls, req.Model)
	delay := g.delay
	resp, hasResp := g.response[req.Model]
	err, hasErr := g.err[req.Model]
	g.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if hasErr {
		return nil, err
	}
	if hasResp {
		return resp, nil
	}
	return &inference.GenerateResponse{Text: "none"}, nil
}

type fakeFallback struct {
	mu     sync.Mutex
	result *cloudfallback.Result
	err    error
	calls  int
}

func (f *fakeFallback) Analyze(ctx context.Context, prompt string, image []byte) (*cloudfallback.Result, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

var (
	testMCOnce sync.Once
	testMC     *monitoring.MetricsCollector
)

func sharedTestMetricsCollector() *monitoring.MetricsCollector {
	testMCOnce.Do(func() {
		testMC = monitoring.NewMetricsCollector("lighthouse_test_pipeline", "test", "test")
	})
	return testMC
}

func newTestPipeline(t *testing.T) (*Pipeline, sqlmock.Sqlmock, *fakeGenerator, *fakeFallback) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	st := store.New(db, logrus.New())
	sm := streams.New(st, logrus.New(), sharedTestMetricsCollector(), streams.DefaultConfig())
	reg := profiles.NewRegistry()
	engine := escalation.New(logrus.New(), nil)
	gen := newFakeGenerator()
	fb := &fakeFallback{}

	cfg := DefaultConfig(4)
	p := New(sm, st, gen, fb, reg, engine, logrus.New(), cfg)
	return p, mock, gen, fb
}

func seedStream(t *testing.T, p *Pipeline, mock sqlmock.Sqlmock, scenario domain.Scenario) *domain.Stream {
	t.Helper()
	mock.ExpectExec("INSERT INTO streams").WillReturnResult(sqlmock.NewResult(1, 1))
	st, err := p.streams.Create(context.Background(), "test stream", scenario, "user-1", nil)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	return st
}

func TestProcess_TriageFilterDropsBelowThresholdNoConcern(t *testing.T) {
	p, mock, gen, fb := newTestPipeline(t)
	st := seedStream(t, p, mock, domain.ScenarioPet)

	gen.response[p.cfg.TriageModel] = &inference.GenerateResponse{Text: "none"}

	var results []domain.AnalysisResult
	p.OnResult(func(r domain.AnalysisResult) { results = append(results, r) })

	f := domain.Frame{ID: "f1", StreamID: st.ID, MotionScore: 0.01, AudioLevel: 0.01}
	p.process(context.Background(), f)

	if len(results) != 1 {
		t.Fatalf("expected exactly one result, got %d", len(results))
	}
	if results[0].Concern != domain.ConcernNone {
		t.Fatalf("expected none concern, got %s", results[0].Concern)
	}
	if fb.calls != 0 {
		t.Fatalf("expected no cloud fallback call, got %d", fb.calls)
	}
}

func TestProcess_TriageTransportFailureFallsBackToCloud(t *testing.T) {
	p, mock, gen, fb := newTestPipeline(t)
	st := seedStream(t, p, mock, domain.ScenarioPet)

	gen.err[p.cfg.TriageModel] = context.DeadlineExceeded
	fb.result = &cloudfallback.Result{Concern: domain.ConcernLow, Text: "fine", ModelName: "provider-a"}

	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))

	var alerts []domain.Alert
	p.OnAlert(func(a domain.Alert) { alerts = append(alerts, a) })

	f := domain.Frame{ID: "f1", StreamID: st.ID}
	p.process(context.Background(), f)

	if fb.calls != 1 {
		t.Fatalf("expected one cloud fallback call, got %d", fb.calls)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one alert from low-concern fallback result, got %d", len(alerts))
	}
}

func TestProcess_AnalysisFailureFallsBackToCloud(t *testing.T) {
	p, mock, gen, fb := newTestPipeline(t)
	st := seedStream(t, p, mock, domain.ScenarioPet)

	gen.response[p.cfg.TriageModel] = &inference.GenerateResponse{Text: "high"}
	gen.err[p.cfg.AnalysisModel] = context.DeadlineExceeded
	fb.result = &cloudfallback.Result{Concern: domain.ConcernHigh, Text: "distressed animal", ModelName: "provider-a"}

	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))

	var alerts []domain.Alert
	p.OnAlert(func(a domain.Alert) { alerts = append(alerts, a) })

	f := domain.Frame{ID: "f1", StreamID: st.ID}
	p.process(context.Background(), f)

	if fb.calls != 1 {
		t.Fatalf("expected cloud fallback to be tried after analysis failure, got %d calls", fb.calls)
	}
	if len(alerts) != 1 {
		t.Fatalf("expected one alert, got %d", len(alerts))
	}
}

func TestProcess_AllProvidersFailOnlyAlertsWhenLocallyTriggered(t *testing.T) {
	p, mock, gen, fb := newTestPipeline(t)
	st := seedStream(t, p, mock, domain.ScenarioPet)

	gen.healthy = false
	fb.err = context.DeadlineExceeded

	var alerts []domain.Alert
	p.OnAlert(func(a domain.Alert) { alerts = append(alerts, a) })

	// Below threshold: no local trigger, so no alert at all should fire.
	f := domain.Frame{ID: "f1", StreamID: st.ID, MotionScore: 0.0, AudioLevel: 0.0}
	p.process(context.Background(), f)
	if len(alerts) != 0 {
		t.Fatalf("expected no alert when cloud fails and frame did not locally trigger, got %d", len(alerts))
	}

	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))

	// Above threshold: local trigger fires, so a warning alert should be raised.
	f2 := domain.Frame{ID: "f2", StreamID: st.ID, MotionScore: 0.9, AudioLevel: 0.9}
	p.process(context.Background(), f2)
	if len(alerts) != 1 {
		t.Fatalf("expected one warning alert when locally triggered and all providers fail, got %d", len(alerts))
	}
	if alerts[0].Severity != domain.SeverityWarning {
		t.Fatalf("expected warning severity, got %s", alerts[0].Severity)
	}
}

func TestProcess_ModerationTapCreatesContentFlagFromCloudResult(t *testing.T) {
	p, mock, gen, fb := newTestPipeline(t)
	st := seedStream(t, p, mock, domain.ScenarioPet)

	gen.healthy = false
	fb.result = &cloudfallback.Result{
		Concern:        domain.ConcernHigh,
		Text:           "prohibited content detected",
		DetectedIssues: []string{"prohibited"},
		ModelName:      "provider-a",
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("INSERT INTO content_flags").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	var alerts []domain.Alert
	p.OnAlert(func(a domain.Alert) { alerts = append(alerts, a) })

	f := domain.Frame{ID: "f1", StreamID: st.ID}
	p.process(context.Background(), f)

	if len(alerts) != 1 {
		t.Fatalf("expected one alert alongside the content flag, got %d", len(alerts))
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestProcess_PureLocalAnalysisNeverCreatesContentFlag(t *testing.T) {
	p, mock, gen, _ := newTestPipeline(t)
	st := seedStream(t, p, mock, domain.ScenarioPet)

	gen.response[p.cfg.TriageModel] = &inference.GenerateResponse{Text: "high"}
	gen.response[p.cfg.AnalysisModel] = &inference.GenerateResponse{Text: "high concern, visible distress"}

	// Only a plain alert insert is expected: no content_flags write, since
	// detected_issues is never populated from a purely local analysis.
	mock.ExpectExec("INSERT INTO alerts").WillReturnResult(sqlmock.NewResult(1, 1))

	var results []domain.AnalysisResult
	p.OnResult(func(r domain.AnalysisResult) { results = append(results, r) })

	f := domain.Frame{ID: "f1", StreamID: st.ID}
	p.process(context.Background(), f)

	if len(results) != 1 || results[0].UsedCloudFallback {
		t.Fatalf("expected one purely-local result, got %+v", results)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations (content flag write would violate this): %v", err)
	}
}

func TestDispatcher_ClaimPreventsSecondDispatchForBusyStream(t *testing.T) {
	p, mock, _, _ := newTestPipeline(t)
	st := seedStream(t, p, mock, domain.ScenarioPet)

	d := NewDispatcher(p)
	if !d.claim(st.ID) {
		t.Fatal("expected first claim to succeed")
	}
	if d.claim(st.ID) {
		t.Fatal("expected second claim on the same stream to fail while busy")
	}
	d.release(st.ID)
	if !d.claim(st.ID) {
		t.Fatal("expected claim to succeed again after release")
	}
}

func TestDispatcher_TickSerializesFramesWithinOneStream(t *testing.T) {
	p, mock, gen, _ := newTestPipeline(t)
	st := seedStream(t, p, mock, domain.ScenarioPet)

	gen.delay = 30 * time.Millisecond
	gen.response[p.cfg.TriageModel] = &inference.GenerateResponse{Text: "none"}

	var mu sync.Mutex
	var results []domain.AnalysisResult
	p.OnResult(func(r domain.AnalysisResult) {
		mu.Lock()
		results = append(results, r)
		mu.Unlock()
	})

	q, ok := p.streams.Queue(st.ID)
	if !ok {
		t.Fatal("expected queue for stream")
	}
	q.Push(domain.Frame{ID: "a", StreamID: st.ID, MotionScore: 0.01, AudioLevel: 0.01})
	q.Push(domain.Frame{ID: "b", StreamID: st.ID, MotionScore: 0.01, AudioLevel: 0.01})

	d := NewDispatcher(p)
	ctx := context.Background()

	// First tick claims the stream and pops frame "a"; while it is in
	// flight, a second tick must skip the still-busy stream entirely.
	d.tick(ctx)
	d.tick(ctx)

	time.Sleep(10 * time.Millisecond)
	mu.Lock()
	n := len(results)
	mu.Unlock()
	if n != 0 {
		t.Fatalf("expected the slow first frame to still be in flight, got %d results", n)
	}

	time.Sleep(40 * time.Millisecond)
	mu.Lock()
	n = len(results)
	mu.Unlock()
	if n != 1 {
		t.Fatalf("expected exactly one frame processed after the first tick settled, got %d", n)
	}
}

func TestDispatcher_RoundRobinAdvancesCursorAcrossStreams(t *testing.T) {
	p, mock, gen, _ := newTestPipeline(t)
	gen.response[p.cfg.TriageModel] = &inference.GenerateResponse{Text: "none"}

	a := seedStream(t, p, mock, domain.ScenarioPet)
	b := seedStream(t, p, mock, domain.ScenarioBaby)

	qa, _ := p.streams.Queue(a.ID)
	qb, _ := p.streams.Queue(b.ID)
	qa.Push(domain.Frame{ID: "a1", StreamID: a.ID})
	qb.Push(domain.Frame{ID: "b1", StreamID: b.ID})

	d := NewDispatcher(p)
	ctx := context.Background()

	d.tick(ctx)
	d.tick(ctx)
	time.Sleep(20 * time.Millisecond)

	if _, ok := qa.Pop(); ok {
		t.Fatal("expected stream a's single frame to have been dispatched")
	}
	if _, ok := qb.Pop(); ok {
		t.Fatal("expected stream b's single frame to have been dispatched")
	}
}
