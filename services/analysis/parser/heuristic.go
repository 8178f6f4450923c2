// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/clarityvalue/clarity/services/analysis/tierconfig"
)

var (
	scoreTokenRe   = regexp.MustCompile(`(?i)(?:overall\s+)?score\s*[:=]?\s*(\d{1,3}(?:\.\d+)?)`)
	numericRe      = regexp.MustCompile(`\d{1,3}(?:\.\d+)?`)
	bulletPrefixRe = regexp.MustCompile(`^\s*(?:[-*•]|\d+[.)]) +`)
)

// summaryLimit bounds how much surrounding text a section summary keeps.
const summaryLimit = 240

// parseHeuristic extracts a payload from structured prose: a leading
// numeric score token, keyword-anchored section spans with their first
// numeric token as the sub-score, and a bullet list under a
// "recommendation" heading. Accepted only when the schema's required
// fields all came out of the text.
func parseHeuristic(raw string, cfg *tierconfig.TierConfig) (map[string]any, bool) {
	if strings.TrimSpace(raw) == "" {
		return nil, false
	}

	payload := make(map[string]any)
	lower := strings.ToLower(raw)

	if m := scoreTokenRe.FindStringSubmatch(raw); m != nil {
		if v, err := strconv.ParseFloat(m[1], 64); err == nil {
			payload["score"] = v
		}
	}

	anchors := make([]int, len(cfg.Sections))
	for i, s := range cfg.Sections {
		anchors[i] = strings.Index(lower, strings.ToLower(s.Anchor))
	}

	for i, s := range cfg.Sections {
		start := anchors[i]
		if start < 0 {
			continue
		}
		end := len(raw)
		for j, other := range anchors {
			if j != i && other > start && other < end {
				end = other
			}
		}
		span := raw[start:end]

		section := map[string]any{
			"summary": summarize(span),
		}
		if m := numericRe.FindString(span); m != "" {
			if v, err := strconv.ParseFloat(m, 64); err == nil {
				section["score"] = v
			}
		}
		payload[s.Name] = section
	}

	if recs := extractRecommendations(raw); len(recs) > 0 {
		payload[cfg.Schema.RecommendationsField] = recs
	}

	if !tierconfig.ValidateOutput(payload, cfg.Schema) {
		return nil, false
	}
	return payload, true
}

// extractRecommendations finds a heading containing "recommendation" and
// collects the bullet-prefixed lines that follow, stopping at the first
// blank line after the list begins.
func extractRecommendations(raw string) []any {
	lines := strings.Split(raw, "\n")
	var recs []any
	collecting := false

	for _, line := range lines {
		if !collecting {
			if strings.Contains(strings.ToLower(line), "recommendation") {
				collecting = true
			}
			continue
		}
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			if len(recs) > 0 {
				break
			}
			continue
		}
		if bulletPrefixRe.MatchString(line) {
			recs = append(recs, bulletPrefixRe.ReplaceAllString(line, ""))
		} else if len(recs) > 0 {
			break
		}
	}
	return recs
}

// summarize collapses a section span into a short single-line summary.
func summarize(span string) string {
	fields := strings.Fields(span)
	s := strings.Join(fields, " ")
	if len(s) > summaryLimit {
		s = s[:summaryLimit]
	}
	return s
}
