// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package handlers exposes the analysis engine over HTTP. The handlers
// translate transport concerns only; all orchestration policy lives in
// the engine.
package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/clarityvalue/clarity/services/analysis"
	"github.com/clarityvalue/clarity/services/analysis/datatypes"
	"github.com/clarityvalue/clarity/services/analysis/resilience"
)

// AnalyzeRequest is the wire shape of one analysis ask.
type AnalyzeRequest struct {
	Tier         string         `json:"tier" binding:"required"`
	AnalysisType string         `json:"analysis_type" binding:"required"`
	BusinessData map[string]any `json:"business_data" binding:"required"`
	CacheKey     string         `json:"cache_key"`
	Priority     string         `json:"priority" binding:"omitempty,oneof=low normal high"`
}

func (r AnalyzeRequest) toRequest() datatypes.AnalysisRequest {
	priority := datatypes.Priority(r.Priority)
	if priority == "" {
		priority = datatypes.PriorityNormal
	}
	return datatypes.AnalysisRequest{
		Tier:         datatypes.Tier(r.Tier),
		AnalysisType: r.AnalysisType,
		BusinessData: r.BusinessData,
		CacheKey:     r.CacheKey,
		Priority:     priority,
	}
}

// BatchRequest is the wire shape of a batch ask.
type BatchRequest struct {
	Requests []AnalyzeRequest `json:"requests" binding:"required,min=1,dive"`
}

// HealthCheck reports liveness.
func HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// HandleAnalyze runs one analysis synchronously.
func HandleAnalyze(engine *analysis.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		result, err := engine.Analyze(c.Request.Context(), req.toRequest())
		if err != nil {
			c.JSON(statusForError(err), gin.H{
				"error":  err.Error(),
				"result": result,
			})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleAnalyzeBatch runs several analyses concurrently; every slot in
// the response carries its own outcome.
func HandleAnalyzeBatch(engine *analysis.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BatchRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		requests := make([]datatypes.AnalysisRequest, len(req.Requests))
		for i, r := range req.Requests {
			requests[i] = r.toRequest()
		}
		results := engine.AnalyzeBatch(c.Request.Context(), requests)
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// HandleAnalyzeRealTime fires an analysis asynchronously and returns the
// id immediately. Clients follow progress on the websocket endpoint or
// poll the status endpoint.
func HandleAnalyzeRealTime(engine *analysis.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AnalyzeRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		id, err := engine.AnalyzeRealTime(c.Request.Context(), req.toRequest(),
			func(result *datatypes.AnalysisResult) {
				slog.Debug("analysis update",
					"analysis_id", result.ID, "status", result.Status)
			})
		if err != nil {
			c.JSON(statusForError(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusAccepted, gin.H{"analysis_id": id})
	}
}

// HandleAnalysisStatus looks up a cached terminal result by analysis id.
func HandleAnalysisStatus(engine *analysis.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.Param("id")
		result, ok := engine.GetAnalysisStatus(id)
		if !ok {
			c.JSON(http.StatusNotFound, gin.H{"error": "no cached result for analysis id"})
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// HandleCacheStats returns cache health.
func HandleCacheStats(engine *analysis.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, engine.CacheStats())
	}
}

// HandleClearCache removes cached results, optionally filtered by the
// "pattern" query parameter.
func HandleClearCache(engine *analysis.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		removed := engine.ClearCache(c.Query("pattern"))
		c.JSON(http.StatusOK, gin.H{"removed": removed})
	}
}

// HandleBreakerStates reports circuit breaker health per external
// service.
func HandleBreakerStates(engine *analysis.Engine) gin.HandlerFunc {
	return func(c *gin.Context) {
		states := engine.BreakerStates()
		out := make(map[string]string, len(states))
		for service, state := range states {
			out[service] = state.String()
		}
		c.JSON(http.StatusOK, out)
	}
}

// statusForError maps engine errors onto HTTP status codes.
func statusForError(err error) int {
	var validationErr *analysis.ValidationError
	if errors.As(err, &validationErr) {
		return http.StatusBadRequest
	}
	var configErr *analysis.ConfigurationError
	if errors.As(err, &configErr) {
		return http.StatusUnprocessableEntity
	}
	if errors.Is(err, resilience.ErrCircuitOpen) {
		return http.StatusServiceUnavailable
	}
	if errors.Is(err, analysis.ErrRetriesExhausted) {
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
