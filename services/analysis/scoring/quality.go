// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package scoring computes quality and confidence scores for analysis
// payloads, and projects payloads into human-readable insights.
//
// The scores are reproducible, bounded heuristics ([0, 100] integers),
// not ground truth. All constants live in Policy so they read as the
// implementation-defined defaults they are.
package scoring

import (
	"math"

	"github.com/clarityvalue/clarity/services/analysis/tierconfig"
)

// Policy holds the scoring constants. The defaults have no documented
// derivation; they are policy knobs, not business rules.
type Policy struct {
	CompletenessWeight float64
	ConsistencyWeight  float64
	RelevanceWeight    float64
	AccuracyWeight     float64

	// ConsistencyGap is the overall-vs-section score divergence beyond
	// which ConsistencyPenalty is deducted from the 100 baseline.
	ConsistencyGap     float64
	ConsistencyPenalty float64

	// RelevanceBaseline gains RelevancePerField for each tier-appropriate
	// top-level field present, capped at 100.
	RelevanceBaseline float64
	RelevancePerField float64

	// AccuracyBaseline loses AccuracyPenalty per numeric leaf outside
	// [0, 100].
	AccuracyBaseline float64
	AccuracyPenalty  float64

	ConfidenceBaseline   int
	ConfidenceRichBonus  int // payload has more than 5 top-level fields
	ConfidenceDenseBonus int // payload has more than 10 top-level fields
	ConfidenceTierBonus  int // higher-complexity tier
	ConfidencePerRec     int // per recommendation, up to ConfidenceRecCap
	ConfidenceRecCap     int
	ConfidenceCap        int
}

// DefaultPolicy returns the scoring defaults.
func DefaultPolicy() Policy {
	return Policy{
		CompletenessWeight: 0.30,
		ConsistencyWeight:  0.25,
		RelevanceWeight:    0.25,
		AccuracyWeight:     0.20,

		ConsistencyGap:     30,
		ConsistencyPenalty: 20,

		RelevanceBaseline: 80,
		RelevancePerField: 10,

		AccuracyBaseline: 85,
		AccuracyPenalty:  10,

		ConfidenceBaseline:   70,
		ConfidenceRichBonus:  10,
		ConfidenceDenseBonus: 10,
		ConfidenceTierBonus:  5,
		ConfidencePerRec:     2,
		ConfidenceRecCap:     10,
		ConfidenceCap:        95,
	}
}

// Quality computes the weighted quality score for a payload against its
// tier configuration. Deterministic; always in [0, 100].
func Quality(payload map[string]any, cfg *tierconfig.TierConfig, p Policy) int {
	completeness := completenessScore(payload, cfg.Schema)
	consistency := consistencyScore(payload, cfg, p)
	relevance := relevanceScore(payload, cfg, p)
	accuracy := accuracyScore(payload, p)

	total := p.CompletenessWeight*completeness +
		p.ConsistencyWeight*consistency +
		p.RelevanceWeight*relevance +
		p.AccuracyWeight*accuracy
	return clamp(int(math.Round(total)))
}

// Confidence computes the confidence score for a payload. Deterministic;
// always in [0, min(100, ConfidenceCap)].
func Confidence(payload map[string]any, cfg *tierconfig.TierConfig, p Policy) int {
	c := p.ConfidenceBaseline
	if len(payload) > 5 {
		c += p.ConfidenceRichBonus
	}
	if len(payload) > 10 {
		c += p.ConfidenceDenseBonus
	}
	if cfg.Tier == "enterprise" {
		c += p.ConfidenceTierBonus
	}

	recBonus := len(stringList(payload[cfg.Schema.RecommendationsField])) * p.ConfidencePerRec
	if recBonus > p.ConfidenceRecCap {
		recBonus = p.ConfidenceRecCap
	}
	c += recBonus

	if c > p.ConfidenceCap {
		c = p.ConfidenceCap
	}
	return clamp(c)
}

// completenessScore is the fraction of required fields present, as a
// percentage.
func completenessScore(payload map[string]any, schema tierconfig.Schema) float64 {
	if len(schema.RequiredFields) == 0 {
		return 100
	}
	missing := len(tierconfig.MissingFields(payload, schema))
	present := len(schema.RequiredFields) - missing
	return 100 * float64(present) / float64(len(schema.RequiredFields))
}

// consistencyScore starts at 100 and deducts the penalty for each section
// sub-score diverging from the overall score by more than the gap.
func consistencyScore(payload map[string]any, cfg *tierconfig.TierConfig, p Policy) float64 {
	score := 100.0
	overall, ok := numericValue(payload["score"])
	if !ok {
		return score
	}

	for _, s := range cfg.Sections {
		section, ok := payload[s.Name].(map[string]any)
		if !ok {
			continue
		}
		sub, ok := numericValue(section["score"])
		if !ok {
			continue
		}
		if math.Abs(overall-sub) > p.ConsistencyGap {
			score -= p.ConsistencyPenalty
		}
	}
	if score < 0 {
		score = 0
	}
	return score
}

// relevanceScore rewards tier-appropriate top-level fields, capped at 100.
func relevanceScore(payload map[string]any, cfg *tierconfig.TierConfig, p Policy) float64 {
	score := p.RelevanceBaseline
	for _, s := range cfg.Sections {
		if _, ok := payload[s.Name]; ok {
			score += p.RelevancePerField
		}
	}
	if score > 100 {
		score = 100
	}
	return score
}

// accuracyScore penalizes every numeric leaf outside [0, 100] anywhere in
// the payload, floored at 0.
func accuracyScore(payload map[string]any, p Policy) float64 {
	score := p.AccuracyBaseline
	walkNumericLeaves(payload, func(v float64) {
		if v < 0 || v > 100 {
			score -= p.AccuracyPenalty
		}
	})
	if score < 0 {
		score = 0
	}
	return score
}

func walkNumericLeaves(v any, fn func(float64)) {
	switch val := v.(type) {
	case map[string]any:
		for _, item := range val {
			walkNumericLeaves(item, fn)
		}
	case []any:
		for _, item := range val {
			walkNumericLeaves(item, fn)
		}
	default:
		if n, ok := numericValue(val); ok {
			fn(n)
		}
	}
}

// numericValue normalizes the numeric types that reach payloads from
// JSON and YAML decoding.
func numericValue(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

func clamp(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
