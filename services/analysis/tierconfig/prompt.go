// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tierconfig

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// RenderPrompt builds the prompt text for one analysis: the tier's system
// prompt followed by the business data and the output contract. Pure text
// construction, no side effects.
func RenderPrompt(cfg *TierConfig, businessData map[string]any) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(cfg.SystemPrompt))
	b.WriteString("\n\nBusiness data:\n")

	data, err := json.MarshalIndent(businessData, "", "  ")
	if err != nil {
		// Maps of JSON-shaped values marshal unless a caller smuggled in
		// an unsupported type; degrade to fmt rather than fail the request.
		b.WriteString(fmt.Sprintf("%v\n", businessData))
	} else {
		b.Write(data)
		b.WriteString("\n")
	}

	b.WriteString("\nRespond with a single JSON object containing the fields: ")
	b.WriteString(strings.Join(cfg.Schema.RequiredFields, ", "))
	b.WriteString(".")

	if len(cfg.Schema.Constraints) > 0 {
		fields := make([]string, 0, len(cfg.Schema.Constraints))
		for field := range cfg.Schema.Constraints {
			fields = append(fields, field)
		}
		sort.Strings(fields)
		for _, field := range fields {
			r := cfg.Schema.Constraints[field]
			b.WriteString(fmt.Sprintf(" Keep %q between %g and %g.", field, r.Min, r.Max))
		}
	}

	return b.String()
}
