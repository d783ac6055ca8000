// Package pipeline implements the two-tier triage→analysis routing, cloud
// fallback decision, alert emission, and moderation tap (SPEC_FULL.md
// component: Analysis Pipeline, the hardest subsystem per spec.md §2).
package pipeline

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"lighthouse/internal/apierr"
	"lighthouse/internal/cloudfallback"
	"lighthouse/internal/domain"
	"lighthouse/internal/escalation"
	"lighthouse/internal/inference"
	"lighthouse/internal/profiles"
	"lighthouse/internal/store"
	"lighthouse/internal/streams"
	"lighthouse/pkg/logging"
)

// LocalTimeout bounds a single local-inference call before the pipeline
// treats it as unhealthy and enters cloud fallback (spec.md §4.3).
const LocalTimeout = 2 * time.Minute

// Generator is the subset of inference.Client the pipeline needs.
type Generator interface {
	Generate(ctx context.Context, req inference.GenerateRequest) (*inference.GenerateResponse, error)
	Healthy(ctx context.Context) bool
}

// Fallback is the subset of cloudfallback.Client the pipeline needs.
type Fallback interface {
	Analyze(ctx context.Context, prompt string, image []byte) (*cloudfallback.Result, error)
}

// CategoryTier classifies a detected_issues entry into a moderation tier.
// Keys are checked case-sensitively against configured category sets;
// defaults mirror spec.md §4.3's table.
type CategoryTier map[string]int

// DefaultCategoryTiers matches spec.md's table exactly.
func DefaultCategoryTiers() CategoryTier {
	return CategoryTier{
		"benign":     1,
		"borderline": 2,
		"sensitive":  3,
		"prohibited": 4,
	}
}

// Config tunes concurrency and moderation behavior.
type Config struct {
	MaxConcurrentAnalyses int
	Categories            CategoryTier
	TriageModel           string
	AnalysisModel         string
}

// DefaultConfig uses GOMAXPROCS-scale concurrency, set by the caller.
func DefaultConfig(maxConcurrent int) Config {
	return Config{
		MaxConcurrentAnalyses: maxConcurrent,
		Categories:            DefaultCategoryTiers(),
		TriageModel:           "triage-fast",
		AnalysisModel:         "analysis-detailed",
	}
}

// Pipeline wires the Stream Manager's frame queues to the two-tier
// inference routing and downstream Alert/ContentFlag emission.
type Pipeline struct {
	streams   *streams.Manager
	store     *store.Store
	inference Generator
	cloud     Fallback
	profiles  *profiles.Registry
	engine    *escalation.Engine
	logger    logging.Logger
	cfg       Config

	onResult ResultHandler
	onAlert  AlertHandler

	processedTotal     int64
	cloudFallbackTotal int64
	processingMSTotal  int64
}

// New builds a Pipeline.
func New(sm *streams.Manager, st *store.Store, gen Generator, cloud Fallback, reg *profiles.Registry, engine *escalation.Engine, logger logging.Logger, cfg Config) *Pipeline {
	return &Pipeline{
		streams:   sm,
		store:     st,
		inference: gen,
		cloud:     cloud,
		profiles:  reg,
		engine:    engine,
		logger:    logger,
		cfg:       cfg,
	}
}

// Enqueue pushes a frame onto its stream's bounded queue, dropping the
// oldest frame on overflow, and bumps the Stream Manager's counters
// (spec.md §4.3 intake).
func (p *Pipeline) Enqueue(streamID string, f domain.Frame) error {
	q, ok := p.streams.Queue(streamID)
	if !ok {
		return apierr.New(apierr.NotFound, "stream not found")
	}
	dropped := q.Push(f)
	p.streams.IncFrames(streamID, dropped)
	return nil
}

func newAlertID() string { return uuid.NewString() }
func newFlagID() string  { return uuid.NewString() }

// Stats summarizes throughput for the status endpoint (spec.md §6).
type Stats struct {
	Processed         int64
	CloudFallbackRate float64
	AvgResponseMS     float64
}

// Stats reports cumulative processing counters since startup.
func (p *Pipeline) Stats() Stats {
	processed := atomic.LoadInt64(&p.processedTotal)
	if processed == 0 {
		return Stats{}
	}
	cloud := atomic.LoadInt64(&p.cloudFallbackTotal)
	totalMS := atomic.LoadInt64(&p.processingMSTotal)
	return Stats{
		Processed:         processed,
		CloudFallbackRate: float64(cloud) / float64(processed),
		AvgResponseMS:     float64(totalMS) / float64(processed),
	}
}

func (p *Pipeline) recordStats(usedCloud bool, elapsed time.Duration) {
	atomic.AddInt64(&p.processedTotal, 1)
	atomic.AddInt64(&p.processingMSTotal, elapsed.Milliseconds())
	if usedCloud {
		atomic.AddInt64(&p.cloudFallbackTotal, 1)
	}
}
