package domain

import "time"

// Concern is the five-valued ordinal severity produced by vision analysis.
type Concern string

const (
	ConcernNone     Concern = "none"
	ConcernLow      Concern = "low"
	ConcernMedium   Concern = "medium"
	ConcernHigh     Concern = "high"
	ConcernCritical Concern = "critical"
)

var concernOrder = map[Concern]int{
	ConcernNone:     0,
	ConcernLow:      1,
	ConcernMedium:   2,
	ConcernHigh:     3,
	ConcernCritical: 4,
}

// AtLeast reports whether c is at least as severe as other.
func (c Concern) AtLeast(other Concern) bool {
	return concernOrder[c] >= concernOrder[other]
}

// AnalysisResult is the outcome of running a Frame through the pipeline.
type AnalysisResult struct {
	ID                string    `json:"id"`
	StreamID          string    `json:"stream_id"`
	FrameID           string    `json:"frame_id"`
	Concern           Concern   `json:"concern"`
	Confidence        float64   `json:"confidence"`
	Description       string    `json:"description"`
	DetectedIssues    []string  `json:"detected_issues,omitempty"`
	RecommendedAction string    `json:"recommended_action,omitempty"`
	ProcessingMS      int64     `json:"processing_ms"`
	ModelName         string    `json:"model_name"`
	UsedCloudFallback bool      `json:"used_cloud_fallback"`
	TriageResult      *Concern  `json:"triage_result,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Severity maps a Concern level to an Alert severity per SPEC_FULL.md §4.3.
func (c Concern) Severity() Severity {
	switch c {
	case ConcernNone, ConcernLow:
		return SeverityInfo
	case ConcernMedium:
		return SeverityWarning
	case ConcernHigh:
		return SeverityUrgent
	case ConcernCritical:
		return SeverityCritical
	default:
		return SeverityInfo
	}
}
