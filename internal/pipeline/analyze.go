package pipeline

import (
	"context"
	"time"

	"lighthouse/internal/domain"
	"lighthouse/internal/inference"
	"lighthouse/internal/profiles"
	"lighthouse/pkg/logging"
)

// ResultHandler observes every AnalysisResult the pipeline produces,
// including dropped (concern=none) frames. Set via Pipeline.OnResult.
type ResultHandler func(domain.AnalysisResult)

// AlertHandler observes every Alert the pipeline creates, for the
// Gateway to broadcast alert:created. Set via Pipeline.OnAlert.
type AlertHandler func(domain.Alert)

// OnResult installs the result observer.
func (p *Pipeline) OnResult(h ResultHandler) { p.onResult = h }

// OnAlert installs the alert observer.
func (p *Pipeline) OnAlert(h AlertHandler) { p.onAlert = h }

func (p *Pipeline) emitResult(r domain.AnalysisResult) {
	if p.onResult != nil {
		p.onResult(r)
	}
}

func (p *Pipeline) emitAlert(a domain.Alert) {
	if p.onAlert != nil {
		p.onAlert(a)
	}
}

// process runs one Frame through the two-tier routing described in
// spec.md §4.3. It never panics or propagates an error: all failure
// paths degrade to a logged drop or a best-effort Alert.
func (p *Pipeline) process(ctx context.Context, f domain.Frame) {
	started := time.Now()
	st, ok := p.streams.Get(f.StreamID)
	if !ok {
		return
	}
	profile, err := p.profiles.Get(st.Scenario)
	if err != nil {
		p.logger.WithError(err).Warn("pipeline: unknown scenario, dropping frame")
		return
	}

	triggersLocally := localTrigger(f, profile.Thresholds)

	if !p.inference.Healthy(ctx) {
		p.fallbackOnly(ctx, f, profile, triggersLocally, started)
		return
	}

	triageCtx, cancel := context.WithTimeout(ctx, LocalTimeout)
	triageResp, err := p.inference.Generate(triageCtx, inference.GenerateRequest{
		Model: p.cfg.TriageModel, Prompt: profile.Prompt.Triage, Image: f.Payload,
	})
	cancel()
	if err != nil {
		p.logger.WithFields(logging.Fields{"stream_id": f.StreamID, "error": err.Error()}).
			Warn("pipeline: triage transport failure, falling back to cloud")
		p.fallbackOnly(ctx, f, profile, triggersLocally, started)
		return
	}

	triageConcern := inference.ParseConcern(triageResp.Text)
	if triageConcern == domain.ConcernNone && !triggersLocally {
		p.emitResult(domain.AnalysisResult{
			ID: newAlertID(), StreamID: f.StreamID, FrameID: f.ID,
			Concern: domain.ConcernNone, ModelName: p.cfg.TriageModel,
			TriageResult: concernPtr(triageConcern), CreatedAt: time.Now(),
		})
		p.recordStats(false, time.Since(started))
		return
	}

	// Triage confidence isn't available from the local model's free-text
	// response; treat a successful parse as fully confident so only the
	// unhealthy/timeout legs of the fallback trigger in practice.
	const triageConfidence = 1.0
	if triageConcern.AtLeast(domain.ConcernHigh) && triageConfidence < profile.Thresholds.VerifyConfMin {
		p.fallbackOnly(ctx, f, profile, triggersLocally, started)
		return
	}

	analysisCtx, cancel := context.WithTimeout(ctx, LocalTimeout)
	analysisResp, err := p.inference.Generate(analysisCtx, inference.GenerateRequest{
		Model: p.cfg.AnalysisModel, Prompt: profile.Prompt.Analysis, Image: f.Payload,
	})
	cancel()
	if err != nil {
		p.logger.WithFields(logging.Fields{"stream_id": f.StreamID, "error": err.Error()}).
			Warn("pipeline: analysis transport failure, trying cloud fallback")
		result, cloudErr := p.cloud.Analyze(ctx, profile.Prompt.Analysis, f.Payload)
		if cloudErr != nil {
			if triggersLocally {
				p.emitAnalysisUnavailable(ctx, f, triageConcern)
			}
			p.recordStats(true, time.Since(started))
			return
		}
		p.finish(ctx, f, domain.Concern(result.Concern), result.Text, result.DetectedIssues,
			result.ModelName, true, concernPtr(triageConcern))
		p.recordStats(true, time.Since(started))
		return
	}

	analysisConcern := inference.ParseConcern(analysisResp.Text)
	p.finish(ctx, f, analysisConcern, analysisResp.Text, nil, p.cfg.AnalysisModel, false, concernPtr(triageConcern))
	p.recordStats(false, time.Since(started))
}

// fallbackOnly sends the whole frame through cloud fallback without
// (further) local inference. process uses it when the local server is
// unhealthy, when triage fails (a timeout included), and when a
// high/critical triage falls below the verify-confidence threshold; an
// analysis-stage failure takes its own cloud path inside process.
func (p *Pipeline) fallbackOnly(ctx context.Context, f domain.Frame, profile profiles.Profile, triggersLocally bool, started time.Time) {
	result, err := p.cloud.Analyze(ctx, profile.Prompt.Analysis, f.Payload)
	if err != nil {
		if triggersLocally {
			p.emitAnalysisUnavailable(ctx, f, domain.ConcernNone)
		}
		p.recordStats(true, time.Since(started))
		return
	}
	p.finish(ctx, f, domain.Concern(result.Concern), result.Text, result.DetectedIssues, result.ModelName, true, nil)
	p.recordStats(true, time.Since(started))
}

func (p *Pipeline) emitAnalysisUnavailable(ctx context.Context, f domain.Frame, triage domain.Concern) {
	a := domain.Alert{
		ID:        newAlertID(),
		StreamID:  f.StreamID,
		Type:      domain.AlertAnalysis,
		Severity:  domain.SeverityWarning,
		Title:     "Analysis unavailable",
		Body:      "Motion or audio triggered this frame but no analysis result could be obtained.",
		CreatedAt: time.Now(),
	}
	p.createAlert(ctx, a)
}

// finish applies the final concern to create an Alert (if warranted) and
// a ContentFlag (if the detected issues intersect a configured category),
// then publishes the AnalysisResult.
func (p *Pipeline) finish(ctx context.Context, f domain.Frame, concern domain.Concern, text string, detectedIssues []string, modelName string, usedCloud bool, triage *domain.Concern) {
	result := domain.AnalysisResult{
		ID: newAlertID(), StreamID: f.StreamID, FrameID: f.ID,
		Concern: concern, Description: text, DetectedIssues: detectedIssues,
		ModelName: modelName, UsedCloudFallback: usedCloud, TriageResult: triage,
		CreatedAt: time.Now(),
	}
	p.emitResult(result)

	var flag *domain.ContentFlag
	if tier, ok := p.moderationTier(detectedIssues); ok {
		flag = &domain.ContentFlag{
			ID: newFlagID(), StreamID: f.StreamID, FrameID: f.ID,
			Tier: tier, Categories: detectedIssues, Status: domain.FlagPending,
			CreatedAt: time.Now(),
		}
	}

	if !concern.AtLeast(domain.ConcernLow) {
		if flag != nil {
			if err := p.store.InsertAlertWithFlag(ctx, zeroAlert(f, concern), flag); err != nil {
				p.logger.WithError(err).Warn("pipeline: failed to persist content flag without alert")
			}
		}
		return
	}

	a := domain.Alert{
		ID: newAlertID(), StreamID: f.StreamID, Type: domain.AlertAnalysis,
		Severity: concern.Severity(), Title: alertTitle(concern), Body: text, CreatedAt: time.Now(),
	}

	if flag != nil {
		if err := p.store.InsertAlertWithFlag(ctx, &a, flag); err != nil {
			p.logger.WithError(err).Warn("pipeline: failed to persist alert with content flag")
			return
		}
	} else if err := p.store.InsertAlert(ctx, &a); err != nil {
		p.logger.WithError(err).Warn("pipeline: failed to persist alert")
		return
	}

	p.streams.IncAlerts(f.StreamID)
	p.engine.Start(a)
	p.emitAlert(a)
}

func (p *Pipeline) createAlert(ctx context.Context, a domain.Alert) {
	if err := p.store.InsertAlert(ctx, &a); err != nil {
		p.logger.WithError(err).Warn("pipeline: failed to persist alert")
		return
	}
	p.streams.IncAlerts(a.StreamID)
	p.engine.Start(a)
	p.emitAlert(a)
}

func (p *Pipeline) moderationTier(detectedIssues []string) (int, bool) {
	best := 0
	found := false
	for _, issue := range detectedIssues {
		if tier, ok := p.cfg.Categories[issue]; ok {
			found = true
			if tier > best {
				best = tier
			}
		}
	}
	return best, found
}

func localTrigger(f domain.Frame, th profiles.Thresholds) bool {
	return f.MotionScore >= th.MotionScore || f.AudioLevel >= th.AudioLevel
}

func concernPtr(c domain.Concern) *domain.Concern { return &c }

func alertTitle(c domain.Concern) string {
	switch c {
	case domain.ConcernCritical:
		return "Critical concern detected"
	case domain.ConcernHigh:
		return "High concern detected"
	case domain.ConcernMedium:
		return "Moderate concern detected"
	default:
		return "Low concern detected"
	}
}

func zeroAlert(f domain.Frame, concern domain.Concern) *domain.Alert {
	return &domain.Alert{
		ID: newAlertID(), StreamID: f.StreamID, Type: domain.AlertAnalysis,
		Severity: concern.Severity(), Title: "Moderation flag (below alert threshold)",
		CreatedAt: time.Now(),
	}
}
