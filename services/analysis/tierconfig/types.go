// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tierconfig provides the tier configuration registry for the
// analysis core: per-(tier, analysis type) system prompts, output schemas,
// and section definitions, loaded from YAML with optional live reload.
//
// Thread Safety:
//
//	All exported types and functions are safe for concurrent use.
package tierconfig

import "fmt"

// Range bounds a numeric output field.
type Range struct {
	Min float64 `yaml:"min" json:"min"`
	Max float64 `yaml:"max" json:"max"`
}

// Schema is the output contract for one tier configuration: the fields a
// parsed payload must contain, and numeric constraints rendered into the
// prompt as guidance.
type Schema struct {
	// RequiredFields lists top-level fields a payload must contain before
	// it is treated as valid enough to continue.
	RequiredFields []string `yaml:"required_fields" json:"required_fields" validate:"required,min=1"`

	// Constraints bounds numeric fields; advisory for the model, checked
	// downstream by accuracy scoring.
	Constraints map[string]Range `yaml:"constraints,omitempty" json:"constraints,omitempty"`

	// RecommendationsField names the list field holding recommendations
	// ("recommendations" or "strategic_recommendations" by tier).
	RecommendationsField string `yaml:"recommendations_field" json:"recommendations_field" validate:"required"`
}

// SectionDef describes one named section of a tier's analysis output.
// Anchor is the lowercase keyword the heuristic parser scans for when the
// upstream response is not valid JSON.
type SectionDef struct {
	Name   string `yaml:"name" json:"name" validate:"required"`
	Anchor string `yaml:"anchor" json:"anchor" validate:"required"`
	Title  string `yaml:"title,omitempty" json:"title,omitempty"`
}

// TierConfig is the resolved configuration for one (tier, analysis type)
// pair. Treated as read-only after load.
type TierConfig struct {
	Tier         string       `yaml:"tier" json:"tier" validate:"required"`
	AnalysisType string       `yaml:"analysis_type" json:"analysis_type" validate:"required"`
	SystemPrompt string       `yaml:"system_prompt" json:"system_prompt" validate:"required"`
	Schema       Schema       `yaml:"schema" json:"schema"`
	Sections     []SectionDef `yaml:"sections" json:"sections" validate:"min=1,dive"`
}

// Key returns the registry lookup key for this configuration.
func (c *TierConfig) Key() string {
	return configKey(c.Tier, c.AnalysisType)
}

func configKey(tier, analysisType string) string {
	return fmt.Sprintf("%s|%s", tier, analysisType)
}

// MissingFields returns the schema's required fields absent from payload.
// A field present with a nil value counts as missing.
func MissingFields(payload map[string]any, schema Schema) []string {
	var missing []string
	for _, field := range schema.RequiredFields {
		v, ok := payload[field]
		if !ok || v == nil {
			missing = append(missing, field)
		}
	}
	return missing
}

// ValidateOutput reports whether payload contains every field the schema
// marks required. Pure structural check; values are not inspected.
func ValidateOutput(payload map[string]any, schema Schema) bool {
	return len(MissingFields(payload, schema)) == 0
}
