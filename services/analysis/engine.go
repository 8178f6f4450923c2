// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package analysis is the resilient orchestration core of the Clarity
// valuation platform. The Engine accepts structured analysis requests,
// calls an unreliable text-generation backend under retry and circuit
// breaker protection, parses the loosely-formatted output through a
// fallback chain, scores the result, caches it, and fans out real-time
// updates.
//
// Everything stateful (cache, breaker registry, hub) is injected at
// construction, so tests build isolated engines instead of sharing
// hidden global state.
package analysis

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/clarityvalue/clarity/services/analysis/cache"
	"github.com/clarityvalue/clarity/services/analysis/datatypes"
	"github.com/clarityvalue/clarity/services/analysis/notify"
	"github.com/clarityvalue/clarity/services/analysis/parser"
	"github.com/clarityvalue/clarity/services/analysis/resilience"
	"github.com/clarityvalue/clarity/services/analysis/scoring"
	"github.com/clarityvalue/clarity/services/analysis/tierconfig"
	"github.com/clarityvalue/clarity/services/llm"
)

var tracer = otel.Tracer("clarity.analysis")

const (
	// defaultServiceID names the text-generation dependency in the
	// breaker registry. One breaker per dependency, not per request.
	defaultServiceID = "text-generation"

	// defaultQualityThreshold gates cache writes for auto-generated
	// keys: low-quality results are not worth serving twice.
	defaultQualityThreshold = 70

	// tokenEstimateDivisor approximates tokens from character count.
	tokenEstimateDivisor = 4
)

// ConfigResolver resolves tier configurations. Implemented by
// tierconfig.Registry; faked in tests.
type ConfigResolver interface {
	Resolve(tier, analysisType string) (*tierconfig.TierConfig, bool)
}

// Deps are the collaborators an Engine is built from. All fields are
// required.
type Deps struct {
	Configs  ConfigResolver
	LLM      llm.Client
	Cache    *cache.ResultCache
	Breakers *resilience.Registry
	Hub      *notify.Hub
	Logger   *slog.Logger
}

// Option tunes engine policy.
type Option func(*Engine)

// WithRetryConfig overrides the retry policy for the external call.
func WithRetryConfig(cfg resilience.RetryConfig) Option {
	return func(e *Engine) { e.retryCfg = cfg }
}

// WithScoringPolicy overrides the scoring constants.
func WithScoringPolicy(p scoring.Policy) Option {
	return func(e *Engine) { e.policy = p }
}

// WithQualityThreshold overrides the cache write gate.
func WithQualityThreshold(t int) Option {
	return func(e *Engine) { e.qualityThreshold = t }
}

// WithServiceID overrides the breaker registry key for the backend.
func WithServiceID(id string) Option {
	return func(e *Engine) { e.serviceID = id }
}

// WithGenerationParams sets the generation parameters passed to the
// backend on every call.
func WithGenerationParams(p llm.GenerationParams) Option {
	return func(e *Engine) { e.genParams = p }
}

// Engine composes the cache, retry executor, breaker registry, parser,
// scorer, and notification hub behind a single request/response
// contract.
//
// Thread Safety: Engine is safe for concurrent use; Analyze is invoked
// repeatedly and overlappingly by independent request handlers.
type Engine struct {
	configs  ConfigResolver
	llm      llm.Client
	cache    *cache.ResultCache
	breakers *resilience.Registry
	hub      *notify.Hub
	logger   *slog.Logger

	retryCfg         resilience.RetryConfig
	policy           scoring.Policy
	qualityThreshold int
	serviceID        string
	genParams        llm.GenerationParams

	// byID maps analysis ids to cache keys for status lookups.
	mu   sync.Mutex
	byID map[string]string
}

// New constructs an engine. Construct the injected stores once at
// process start; tests build isolated instances.
func New(deps Deps, opts ...Option) (*Engine, error) {
	if deps.Configs == nil {
		return nil, fmt.Errorf("analysis: Deps.Configs is required")
	}
	if deps.LLM == nil {
		return nil, fmt.Errorf("analysis: Deps.LLM is required")
	}
	if deps.Cache == nil {
		return nil, fmt.Errorf("analysis: Deps.Cache is required")
	}
	if deps.Breakers == nil {
		return nil, fmt.Errorf("analysis: Deps.Breakers is required")
	}
	if deps.Hub == nil {
		return nil, fmt.Errorf("analysis: Deps.Hub is required")
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	e := &Engine{
		configs:          deps.Configs,
		llm:              deps.LLM,
		cache:            deps.Cache,
		breakers:         deps.Breakers,
		hub:              deps.Hub,
		logger:           deps.Logger,
		retryCfg:         resilience.DefaultRetryConfig(),
		policy:           scoring.DefaultPolicy(),
		qualityThreshold: defaultQualityThreshold,
		serviceID:        defaultServiceID,
		byID:             make(map[string]string),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Analyze runs the full pipeline for one request.
//
// Outputs:
//   - *datatypes.AnalysisResult: Always non-nil. On error this is a
//     best-effort failed result so downstream consumers never have to
//     special-case a missing result object.
//   - error: A *ValidationError or *ConfigurationError the caller must
//     fix, resilience.ErrCircuitOpen while the breaker is open, or an
//     ErrRetriesExhausted-wrapped error after the retry budget is spent.
func (e *Engine) Analyze(ctx context.Context, req datatypes.AnalysisRequest) (*datatypes.AnalysisResult, error) {
	return e.analyze(ctx, req, uuid.NewString())
}

// AnalyzeBatch runs all requests independently and concurrently. One
// request's failure never aborts the batch: every slot holds that
// request's own outcome, in input order.
func (e *Engine) AnalyzeBatch(ctx context.Context, reqs []datatypes.AnalysisRequest) []*datatypes.AnalysisResult {
	results := make([]*datatypes.AnalysisResult, len(reqs))

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req datatypes.AnalysisRequest) {
			defer wg.Done()
			result, err := e.Analyze(ctx, req)
			if err != nil {
				e.logger.Warn("batch slot failed",
					"slot", i, "analysis_id", result.ID, "error", err)
			}
			results[i] = result
		}(i, req)
	}
	wg.Wait()
	return results
}

// AnalyzeRealTime fires the pipeline asynchronously under real-time
// notification and returns the analysis id immediately. The callback
// receives a processing placeholder and then the terminal result; the
// subscription is removed once the terminal update is delivered.
func (e *Engine) AnalyzeRealTime(ctx context.Context, req datatypes.AnalysisRequest, cb notify.Callback) (string, error) {
	if cb == nil {
		return "", &ValidationError{Field: "callback", Reason: "must not be nil"}
	}

	id := uuid.NewString()
	req.RealTime = true
	unsubscribe := e.hub.Subscribe(id, cb)

	// The caller returns before the pipeline finishes; detach from its
	// cancellation so an early hangup does not abort the analysis.
	bg := context.WithoutCancel(ctx)
	go func() {
		if _, err := e.analyze(bg, req, id); err != nil {
			e.logger.Warn("real-time analysis failed", "analysis_id", id, "error", err)
		}
		unsubscribe()
	}()
	return id, nil
}

// SubscribeToUpdates registers a callback for an analysis id. The
// returned function unsubscribes.
func (e *Engine) SubscribeToUpdates(analysisID string, cb notify.Callback) func() {
	return e.hub.Subscribe(analysisID, cb)
}

// GetAnalysisStatus looks up a previously cached terminal result by
// analysis id. Results that were never cached (low quality, no explicit
// key) or whose cache entry has expired are absent.
func (e *Engine) GetAnalysisStatus(analysisID string) (*datatypes.AnalysisResult, bool) {
	e.mu.Lock()
	key, ok := e.byID[analysisID]
	e.mu.Unlock()
	if !ok {
		return nil, false
	}

	result, ok := e.cache.Get(key)
	if !ok {
		// Entry expired or was evicted; drop the stale index mapping.
		e.mu.Lock()
		delete(e.byID, analysisID)
		e.mu.Unlock()
		return nil, false
	}
	return result, true
}

// ClearCache removes cached results; empty pattern removes everything.
func (e *Engine) ClearCache(pattern string) int {
	return e.cache.Clear(pattern)
}

// CacheStats returns a snapshot of cache health.
func (e *Engine) CacheStats() cache.Stats {
	return e.cache.Stats()
}

// BreakerStates returns a snapshot of every known breaker's state.
func (e *Engine) BreakerStates() map[string]resilience.State {
	return e.breakers.States()
}

// analyze is the pipeline behind every public entry point.
func (e *Engine) analyze(ctx context.Context, req datatypes.AnalysisRequest, id string) (*datatypes.AnalysisResult, error) {
	ctx, span := tracer.Start(ctx, "analysis.analyze", trace.WithAttributes(
		attribute.String("analysis.id", id),
		attribute.String("analysis.tier", string(req.Tier)),
		attribute.String("analysis.type", req.AnalysisType),
	))
	defer span.End()
	start := time.Now()

	if err := validateRequest(req); err != nil {
		span.SetStatus(codes.Error, "request validation failed")
		failed := e.finishFailed(id, req, start, 0, err.Error())
		if req.RealTime {
			e.hub.Notify(id, failed.Clone())
		}
		return failed, err
	}

	key := e.cacheKey(req)
	if hit, ok := e.cache.Get(key); ok {
		span.SetAttributes(attribute.Bool("analysis.cache_hit", true))
		analysesTotal.WithLabelValues(string(req.Tier), string(datatypes.StatusCached)).Inc()
		e.logger.Debug("analysis served from cache", "analysis_id", hit.ID, "key", key)
		if req.RealTime {
			e.hub.Notify(id, hit.Clone())
		}
		return hit, nil
	}

	cfg, ok := e.configs.Resolve(string(req.Tier), req.AnalysisType)
	if !ok {
		err := &ConfigurationError{Tier: string(req.Tier), AnalysisType: req.AnalysisType}
		span.SetStatus(codes.Error, "configuration not found")
		failed := e.finishFailed(id, req, start, 0, err.Error())
		if req.RealTime {
			e.hub.Notify(id, failed.Clone())
		}
		return failed, err
	}

	result := &datatypes.AnalysisResult{
		ID:           id,
		Status:       datatypes.StatusProcessing,
		Tier:         req.Tier,
		AnalysisType: req.AnalysisType,
	}
	if req.RealTime {
		e.hub.Notify(id, result.Clone())
	}

	prompt := tierconfig.RenderPrompt(cfg, req.BusinessData)
	breaker := e.breakers.Get(e.serviceID)

	var raw string
	retryResult, err := resilience.Retry(ctx, e.retryCfg, func(ctx context.Context, attempt int) error {
		text, callErr := breaker.Execute(ctx, func(ctx context.Context) (string, error) {
			return e.llm.Generate(ctx, prompt, e.genParams)
		}, nil)
		if callErr != nil {
			e.logger.Warn("external call failed",
				"analysis_id", id, "attempt", attempt, "error", callErr)
			// Only transient backend failures are worth another attempt;
			// a malformed request fails the same way every time.
			if !errors.Is(callErr, llm.ErrUnavailable) &&
				!errors.Is(callErr, resilience.ErrCircuitOpen) && ctx.Err() == nil {
				return resilience.Permanent(callErr)
			}
			return callErr
		}
		raw = text
		return nil
	})
	if err != nil {
		span.SetStatus(codes.Error, "external call failed")
		surfaced := err
		if resilience.IsRetryable(err) && ctx.Err() == nil {
			surfaced = fmt.Errorf("%w: %v", ErrRetriesExhausted, err)
		}
		failed := e.finishFailed(id, req, start, retryResult.Attempts-1,
			fmt.Sprintf("external analysis service failed: %v", err))
		if req.RealTime {
			e.hub.Notify(id, failed.Clone())
		}
		return failed, surfaced
	}

	outcome := parser.Parse(raw, cfg)
	parseSourceTotal.WithLabelValues(string(outcome.Source)).Inc()
	span.SetAttributes(attribute.String("analysis.parse_source", string(outcome.Source)))

	missing := tierconfig.MissingFields(outcome.Payload, cfg.Schema)
	result.Payload = outcome.Payload
	result.ParseSource = outcome.Source
	result.Validation = datatypes.Validation{
		Valid:         len(missing) == 0,
		MissingFields: missing,
	}
	result.QualityScore = scoring.Quality(outcome.Payload, cfg, e.policy)
	result.Confidence = scoring.Confidence(outcome.Payload, cfg, e.policy)
	result.Insights = scoring.ExtractInsights(outcome.Payload, req.Tier)
	result.Status = datatypes.StatusCompleted
	result.Metadata = datatypes.Metadata{
		ProcessingTimeMs: time.Since(start).Milliseconds(),
		TokensUsed:       (len(prompt) + len(raw)) / tokenEstimateDivisor,
		RetryCount:       retryResult.Attempts - 1,
		Timestamp:        time.Now(),
	}

	if req.CacheKey != "" || result.QualityScore > e.qualityThreshold {
		e.cache.Set(key, result)
		e.mu.Lock()
		e.byID[id] = key
		e.mu.Unlock()
	}

	if req.RealTime {
		e.hub.Notify(id, result.Clone())
	}

	analysesTotal.WithLabelValues(string(req.Tier), string(result.Status)).Inc()
	analysisDuration.Observe(time.Since(start).Seconds())
	e.logger.Info("analysis completed",
		"analysis_id", id,
		"tier", req.Tier,
		"parse_source", outcome.Source,
		"quality", result.QualityScore,
		"confidence", result.Confidence,
		"retries", result.Metadata.RetryCount)
	return result, nil
}

// finishFailed builds the best-effort terminal result for a failed
// analysis, with a human-readable reason in its insights and validation
// fields.
func (e *Engine) finishFailed(id string, req datatypes.AnalysisRequest, start time.Time, retries int, reason string) *datatypes.AnalysisResult {
	analysesTotal.WithLabelValues(string(req.Tier), string(datatypes.StatusFailed)).Inc()
	analysisDuration.Observe(time.Since(start).Seconds())
	return &datatypes.AnalysisResult{
		ID:           id,
		Status:       datatypes.StatusFailed,
		Tier:         req.Tier,
		AnalysisType: req.AnalysisType,
		Insights: datatypes.Insights{
			KeyFindings: []string{"Analysis failed: " + reason},
		},
		Validation: datatypes.Validation{
			Valid:  false,
			Reason: reason,
		},
		Metadata: datatypes.Metadata{
			ProcessingTimeMs: time.Since(start).Milliseconds(),
			RetryCount:       retries,
			Timestamp:        time.Now(),
		},
	}
}

// validateRequest rejects malformed requests before any external work.
func validateRequest(req datatypes.AnalysisRequest) error {
	if !req.Tier.Valid() {
		return &ValidationError{Field: "tier", Reason: fmt.Sprintf("unknown tier %q", req.Tier)}
	}
	if req.AnalysisType == "" {
		return &ValidationError{Field: "analysis_type", Reason: "must not be empty"}
	}
	if len(req.BusinessData) == 0 {
		return &ValidationError{Field: "business_data", Reason: "must not be empty"}
	}
	return nil
}

// cacheKey returns the caller's explicit key, or a deterministic key
// derived from the tier, type, and business data. encoding/json writes
// map keys in sorted order, so equal payloads hash equally.
func (e *Engine) cacheKey(req datatypes.AnalysisRequest) string {
	if req.CacheKey != "" {
		return req.CacheKey
	}
	data, err := json.Marshal(req.BusinessData)
	if err != nil {
		data = []byte(fmt.Sprintf("%v", req.BusinessData))
	}
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%s:%s:%s", req.Tier, req.AnalysisType, hex.EncodeToString(sum[:8]))
}
