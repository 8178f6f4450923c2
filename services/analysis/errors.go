// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"errors"
	"fmt"
)

// Sentinel errors for the analysis core.
var (
	// ErrRetriesExhausted indicates the external call kept failing after
	// the full retry budget. Callers may retry later or escalate.
	ErrRetriesExhausted = errors.New("analysis retries exhausted")
)

// ValidationError indicates a malformed request. Never retried; the
// caller must fix the request.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid analysis request: %s: %s", e.Field, e.Reason)
}

// ConfigurationError indicates no tier configuration resolves for the
// requested (tier, analysis type) pair. Never retried.
type ConfigurationError struct {
	Tier         string
	AnalysisType string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("no configuration for tier %q analysis type %q",
		e.Tier, e.AnalysisType)
}
