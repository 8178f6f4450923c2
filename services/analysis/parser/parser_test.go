// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package parser

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clarityvalue/clarity/services/analysis/datatypes"
	"github.com/clarityvalue/clarity/services/analysis/tierconfig"
)

func tierCfg(t *testing.T, tier string) *tierconfig.TierConfig {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg, err := tierconfig.NewRegistry(logger)
	require.NoError(t, err)
	cfg, ok := reg.Resolve(tier, "valuation")
	require.True(t, ok, "embedded config missing for tier %s", tier)
	return cfg
}

func TestParse_SchemaJSON(t *testing.T) {
	cfg := tierCfg(t, "professional")

	raw := `Here is the analysis you asked for:

{
  "score": 82,
  "financial": {"score": 85, "summary": "strong margins, low debt"},
  "operational": {"score": 74, "summary": "efficient but founder-dependent"},
  "recommendations": ["Diversify the customer base", "Document key processes"]
}

Let me know if you need anything else.`

	out := Parse(raw, cfg)
	assert.Equal(t, datatypes.SourceSchema, out.Source)
	assert.Equal(t, 82.0, out.Payload["score"])
	assert.Len(t, out.Payload["recommendations"], 2)

	financial, ok := out.Payload["financial"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 85.0, financial["score"])
}

func TestParse_JSONWithBracesInsideStrings(t *testing.T) {
	cfg := tierCfg(t, "professional")

	raw := `{
  "score": 75,
  "financial": {"score": 70, "summary": "uses {curly} notation in reports"},
  "operational": {"score": 72, "summary": "fine"},
  "recommendations": ["note: format is {key: value}"]
}`

	out := Parse(raw, cfg)
	require.Equal(t, datatypes.SourceSchema, out.Source)
	assert.Equal(t, 75.0, out.Payload["score"])
}

func TestParse_IncompleteJSONFallsThrough(t *testing.T) {
	cfg := tierCfg(t, "professional")

	// Valid JSON but missing required fields, and no usable prose either,
	// so the chain must bottom out at the synthesized default.
	out := Parse(`{"score": 90}`, cfg)
	assert.Equal(t, datatypes.SourceSynthesized, out.Source)
	assert.True(t, tierconfig.ValidateOutput(out.Payload, cfg.Schema))
}

func TestParse_HeuristicStructuredText(t *testing.T) {
	cfg := tierCfg(t, "professional")

	raw := `Overall score: 78

Financial health looks solid with a sub-score of 82 driven by recurring
revenue and healthy gross margins.

Operational efficiency comes in at 71; the business leans heavily on two
key employees.

Recommendations:
- Expand into adjacent markets
- Reduce customer concentration below 30%

Overall a sound acquisition target.`

	out := Parse(raw, cfg)
	require.Equal(t, datatypes.SourceHeuristic, out.Source)
	assert.Equal(t, 78.0, out.Payload["score"])

	financial, ok := out.Payload["financial"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 82.0, financial["score"])
	assert.NotEmpty(t, financial["summary"])

	operational, ok := out.Payload["operational"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 71.0, operational["score"])

	recs, ok := out.Payload["recommendations"].([]any)
	require.True(t, ok)
	require.Len(t, recs, 2)
	assert.Equal(t, "Expand into adjacent markets", recs[0])
}

func TestParse_NoBracesNeverErrors(t *testing.T) {
	cfg := tierCfg(t, "professional")

	tests := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"whitespace", "   \n\t  "},
		{"free prose", "The business seems fine overall. Nothing numeric to report."},
		{"apology", "I'm sorry, I cannot analyze this business."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := Parse(tt.raw, cfg)
			require.NotNil(t, out.Payload)
			assert.True(t, tierconfig.ValidateOutput(out.Payload, cfg.Schema),
				"payload must satisfy required fields regardless of input")
			assert.Contains(t, []datatypes.ParseSource{
				datatypes.SourceHeuristic, datatypes.SourceSynthesized,
			}, out.Source)
		})
	}
}

func TestSynthesize_SatisfiesSchema(t *testing.T) {
	for _, tier := range []string{"professional", "enterprise"} {
		t.Run(tier, func(t *testing.T) {
			cfg := tierCfg(t, tier)
			payload := Synthesize(cfg)

			assert.True(t, tierconfig.ValidateOutput(payload, cfg.Schema))
			assert.Equal(t, defaultOverallScore, payload["score"])

			recs, ok := payload[cfg.Schema.RecommendationsField].([]any)
			require.True(t, ok)
			assert.NotEmpty(t, recs)
			assert.NotEmpty(t, payload["summary"])
		})
	}
}

func TestBalancedBraceSpan(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
		ok   bool
	}{
		{"bare object", `{"a": 1}`, `{"a": 1}`, true},
		{"surrounded by prose", `before {"a": 1} after`, `{"a": 1}`, true},
		{"nested", `{"a": {"b": 2}}`, `{"a": {"b": 2}}`, true},
		{"brace in string", `{"a": "}"}`, `{"a": "}"}`, true},
		{"escaped quote", `{"a": "\"}"}`, `{"a": "\"}"}`, true},
		{"unbalanced", `{"a": 1`, "", false},
		{"no braces", `plain text`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := balancedBraceSpan(tt.raw)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
