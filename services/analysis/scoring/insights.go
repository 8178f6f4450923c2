// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package scoring

import (
	"fmt"

	"github.com/clarityvalue/clarity/services/analysis/datatypes"
)

// ExtractInsights projects a payload into human-readable findings,
// recommendations, risks, and opportunities. Pure and absent-safe:
// missing paths yield empty lists, never errors.
func ExtractInsights(payload map[string]any, tier datatypes.Tier) datatypes.Insights {
	insights := datatypes.Insights{
		Recommendations: append(
			stringList(payload["recommendations"]),
			stringList(payload["strategic_recommendations"])...),
	}

	if overall, ok := numericValue(payload["score"]); ok {
		insights.KeyFindings = append(insights.KeyFindings,
			fmt.Sprintf("Overall valuation score of %.0f out of 100 (%s)",
				overall, describeScore(overall)))
	}
	switch tier {
	case datatypes.TierEnterprise:
		if sub, ok := sectionScore(payload, "strategic_value"); ok {
			insights.KeyFindings = append(insights.KeyFindings,
				fmt.Sprintf("Strategic value assessed at %.0f out of 100", sub))
		}
	default:
		if sub, ok := sectionScore(payload, "financial"); ok {
			insights.KeyFindings = append(insights.KeyFindings,
				fmt.Sprintf("Financial health scored %.0f out of 100", sub))
		}
	}

	insights.Risks = firstNonEmpty(
		nestedList(payload, "risk_assessment", "risks"),
		nestedList(payload, "risk_assessment", "key_risks"),
		stringList(payload["risks"]),
	)
	insights.Opportunities = firstNonEmpty(
		nestedList(payload, "opportunity_assessment", "opportunities"),
		stringList(payload["growth_opportunities"]),
		stringList(payload["opportunities"]),
	)

	return insights
}

func describeScore(v float64) string {
	switch {
	case v >= 80:
		return "strong position"
	case v >= 60:
		return "solid position with improvement areas"
	case v >= 40:
		return "mixed outlook"
	default:
		return "significant concerns"
	}
}

func sectionScore(payload map[string]any, name string) (float64, bool) {
	section, ok := payload[name].(map[string]any)
	if !ok {
		return 0, false
	}
	return numericValue(section["score"])
}

// stringList converts a payload value into a string slice, tolerating
// the decoded shapes lists arrive in. Non-list values yield nil.
func stringList(v any) []string {
	switch list := v.(type) {
	case []string:
		out := make([]string, len(list))
		copy(out, list)
		return out
	case []any:
		var out []string
		for _, item := range list {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

func nestedList(payload map[string]any, path ...string) []string {
	current := payload
	for i, key := range path {
		if i == len(path)-1 {
			return stringList(current[key])
		}
		next, ok := current[key].(map[string]any)
		if !ok {
			return nil
		}
		current = next
	}
	return nil
}

func firstNonEmpty(lists ...[]string) []string {
	for _, l := range lists {
		if len(l) > 0 {
			return l
		}
	}
	return nil
}
