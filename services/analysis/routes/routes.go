// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package routes wires the analysis HTTP surface.
package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/clarityvalue/clarity/services/analysis"
	"github.com/clarityvalue/clarity/services/analysis/handlers"
)

// SetupRoutes registers every analysis endpoint on the router.
func SetupRoutes(router *gin.Engine, engine *analysis.Engine) {
	router.GET("/health", handlers.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := router.Group("/v1")
	{
		analyses := v1.Group("/analyses")
		{
			analyses.POST("", handlers.HandleAnalyze(engine))
			analyses.POST("/batch", handlers.HandleAnalyzeBatch(engine))
			analyses.POST("/realtime", handlers.HandleAnalyzeRealTime(engine))
			analyses.GET("/:id", handlers.HandleAnalysisStatus(engine))
			analyses.GET("/:id/ws", handlers.HandleAnalysisWebSocket(engine))
		}
		cache := v1.Group("/cache")
		{
			cache.GET("/stats", handlers.HandleCacheStats(engine))
			cache.DELETE("", handlers.HandleClearCache(engine))
		}
		v1.GET("/breakers", handlers.HandleBreakerStates(engine))
	}
}
