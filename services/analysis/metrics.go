// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package analysis

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	analysesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clarity_analyses_total",
		Help: "Completed analyses by tier and terminal status",
	}, []string{"tier", "status"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clarity_analysis_duration_seconds",
		Help:    "End-to-end analysis pipeline duration",
		Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	parseSourceTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "clarity_analysis_parse_source_total",
		Help: "Parses by fallback-chain tier that produced the payload",
	}, []string{"source"})
)
