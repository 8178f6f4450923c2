// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package parser turns loosely-formatted text-generation output into a
// well-formed analysis payload through a three-tier fallback chain:
// schema-validated JSON, heuristic structured-text extraction, and a
// synthesized tier default. The upstream output format is a best-effort
// instruction rather than an enforced contract, so every tier that fails
// the required-field check falls through to the next; Parse never errors.
package parser

import (
	"encoding/json"
	"strings"

	"github.com/clarityvalue/clarity/services/analysis/datatypes"
	"github.com/clarityvalue/clarity/services/analysis/tierconfig"
)

// Outcome is the tagged parse result. Source records which tier of the
// chain produced the payload, making degradation inspectable.
type Outcome struct {
	Payload map[string]any
	Source  datatypes.ParseSource
}

// Parse extracts an analysis payload from raw response text.
//
// The returned payload always satisfies cfg's required-field list: tiers
// one and two are only accepted when they do, and the tier-three default
// satisfies it by construction.
func Parse(raw string, cfg *tierconfig.TierConfig) Outcome {
	if payload, ok := parseJSON(raw, cfg.Schema); ok {
		return Outcome{Payload: payload, Source: datatypes.SourceSchema}
	}
	if payload, ok := parseHeuristic(raw, cfg); ok {
		return Outcome{Payload: payload, Source: datatypes.SourceHeuristic}
	}
	return Outcome{Payload: Synthesize(cfg), Source: datatypes.SourceSynthesized}
}

// parseJSON locates the first balanced {...} span in raw, parses it, and
// accepts the result only if it satisfies the schema's required fields.
func parseJSON(raw string, schema tierconfig.Schema) (map[string]any, bool) {
	span, ok := balancedBraceSpan(raw)
	if !ok {
		return nil, false
	}

	var payload map[string]any
	if err := json.Unmarshal([]byte(span), &payload); err != nil {
		return nil, false
	}
	if !tierconfig.ValidateOutput(payload, schema) {
		return nil, false
	}
	return payload, true
}

// balancedBraceSpan returns the first balanced top-level {...} span,
// tracking quoted strings so braces inside them do not skew the depth.
func balancedBraceSpan(raw string) (string, bool) {
	start := strings.IndexByte(raw, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1], true
				}
			}
		}
	}
	return "", false
}
