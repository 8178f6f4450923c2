// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package datatypes defines the shared request and result types for the
// Clarity analysis-orchestration core.
package datatypes

import "time"

// Tier identifies the subscription level that selects which prompt and
// output-schema configuration applies to an analysis.
type Tier string

const (
	// TierProfessional is the standard paid tier.
	TierProfessional Tier = "professional"

	// TierEnterprise is the higher-complexity tier with scenario analysis.
	TierEnterprise Tier = "enterprise"
)

// Valid reports whether the tier is a known subscription level.
func (t Tier) Valid() bool {
	return t == TierProfessional || t == TierEnterprise
}

// Priority indicates how urgently a request should be handled.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

// AnalysisRequest is one caller's ask. It is created per call, never
// mutated by the core, and never persisted here.
type AnalysisRequest struct {
	// Tier selects the prompt and schema configuration.
	Tier Tier `json:"tier"`

	// AnalysisType identifies the analysis variant (e.g. "valuation").
	AnalysisType string `json:"analysis_type"`

	// BusinessData is the opaque payload handed to prompt construction.
	BusinessData map[string]any `json:"business_data"`

	// CacheKey, when set, forces result caching under this key regardless
	// of the computed quality score.
	CacheKey string `json:"cache_key,omitempty"`

	// Priority is advisory; the core records it but does not reorder work.
	Priority Priority `json:"priority,omitempty"`

	// RealTime enables progress notification through the hub.
	RealTime bool `json:"real_time,omitempty"`
}

// Status is the lifecycle state of an AnalysisResult.
//
// Transitions are forward-only: pending -> processing -> completed|failed.
// A cached read never moves a stored result away from completed; it only
// marks CacheHit on the returned copy.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusCached     Status = "cached"
)

// Terminal reports whether the status is final.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// ParseSource tags which tier of the parsing fallback chain produced a
// result payload, making the degradation path inspectable.
type ParseSource string

const (
	// SourceSchema means the payload came from schema-validated JSON.
	SourceSchema ParseSource = "schema"

	// SourceHeuristic means the payload was extracted from structured text.
	SourceHeuristic ParseSource = "heuristic"

	// SourceSynthesized means the payload is a canned tier default.
	SourceSynthesized ParseSource = "synthesized"
)

// Metadata carries processing bookkeeping for one result.
type Metadata struct {
	// ProcessingTimeMs is wall time from validation to terminal status.
	ProcessingTimeMs int64 `json:"processing_time_ms"`

	// TokensUsed is a rough estimate of tokens consumed upstream.
	TokensUsed int `json:"tokens_used"`

	// RetryCount is the number of retries consumed (attempts minus one).
	RetryCount int `json:"retry_count"`

	// CacheHit marks a result served from cache. Set only on the copy
	// returned to the caller, never on the stored entry.
	CacheHit bool `json:"cache_hit"`

	// Timestamp is when the result reached terminal status.
	Timestamp time.Time `json:"timestamp"`
}

// Validation records the structural check of a payload against the
// tier schema's required-field list.
type Validation struct {
	Valid         bool     `json:"valid"`
	MissingFields []string `json:"missing_fields,omitempty"`

	// Reason is a human-readable explanation for failed analyses.
	Reason string `json:"reason,omitempty"`
}

// Insights is the human-readable projection of a result payload.
// All lists may be empty, never nil semantics are relied upon.
type Insights struct {
	KeyFindings     []string `json:"key_findings,omitempty"`
	Recommendations []string `json:"recommendations,omitempty"`
	Risks           []string `json:"risks,omitempty"`
	Opportunities   []string `json:"opportunities,omitempty"`
}

// AnalysisResult is one completed or failed analysis. It is created as a
// placeholder at request start and becomes immutable once Status is
// terminal.
type AnalysisResult struct {
	ID           string         `json:"id"`
	Status       Status         `json:"status"`
	Tier         Tier           `json:"tier"`
	AnalysisType string         `json:"analysis_type"`
	Payload      map[string]any `json:"payload,omitempty"`
	ParseSource  ParseSource    `json:"parse_source,omitempty"`

	// Confidence and QualityScore are heuristic integers in [0, 100].
	Confidence   int `json:"confidence"`
	QualityScore int `json:"quality_score"`

	Insights   Insights   `json:"insights"`
	Validation Validation `json:"validation"`
	Metadata   Metadata   `json:"metadata"`
}

// Clone returns a deep copy of the result. Cached entries hand out clones
// so callers can never mutate the stored snapshot.
func (r *AnalysisResult) Clone() *AnalysisResult {
	if r == nil {
		return nil
	}

	dst := *r
	dst.Payload = cloneValue(r.Payload).(map[string]any)
	dst.Insights = Insights{
		KeyFindings:     cloneStrings(r.Insights.KeyFindings),
		Recommendations: cloneStrings(r.Insights.Recommendations),
		Risks:           cloneStrings(r.Insights.Risks),
		Opportunities:   cloneStrings(r.Insights.Opportunities),
	}
	dst.Validation.MissingFields = cloneStrings(r.Validation.MissingFields)
	return &dst
}

func cloneStrings(src []string) []string {
	if src == nil {
		return nil
	}
	dst := make([]string, len(src))
	copy(dst, src)
	return dst
}

// cloneValue deep-copies the JSON-shaped value graphs that payloads are
// built from (maps, slices, primitives).
func cloneValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		if val == nil {
			return map[string]any(nil)
		}
		dst := make(map[string]any, len(val))
		for k, item := range val {
			dst[k] = cloneValue(item)
		}
		return dst
	case []any:
		dst := make([]any, len(val))
		for i, item := range val {
			dst[i] = cloneValue(item)
		}
		return dst
	default:
		return v
	}
}
