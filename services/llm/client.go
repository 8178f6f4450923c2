// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package llm provides the text-generation backends the analysis core
// calls through a single Client interface.
package llm

import (
	"context"
	"errors"
)

// ErrUnavailable signals the backend is reachable but declined to serve
// the request (overload, model loading, explicit unavailability). The
// analysis core treats it identically to a transient network failure.
var ErrUnavailable = errors.New("llm backend unavailable")

// GenerationParams tunes one generation request.
type GenerationParams struct {
	Temperature *float32 `json:"temperature,omitempty"`
	TopP        *float32 `json:"top_p,omitempty"`
	MaxTokens   *int     `json:"max_tokens,omitempty"`
	Stop        []string `json:"stop,omitempty"`
}

// Client is the standard interface for any text-generation backend.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
