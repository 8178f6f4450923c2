// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Command analysisd starts the Clarity analysis orchestration service.
//
// It reads configuration from environment variables and serves the
// analysis HTTP surface.
//
// # Environment Variables
//
//   - ANALYSISD_PORT: HTTP server port (default: 12300)
//   - LOG_LEVEL: debug, info, warn, error (default: info)
//   - LLM_BACKEND_TYPE: openai or ollama (default: openai)
//   - TIER_CONFIG_PATH: YAML overlay for tier configurations (optional)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OpenTelemetry collector (optional)
//
// # Usage
//
//	go build -o analysisd ./cmd/analysisd
//	./analysisd
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/clarityvalue/clarity/pkg/logging"
	"github.com/clarityvalue/clarity/services/analysis"
	"github.com/clarityvalue/clarity/services/analysis/cache"
	"github.com/clarityvalue/clarity/services/analysis/notify"
	"github.com/clarityvalue/clarity/services/analysis/resilience"
	"github.com/clarityvalue/clarity/services/analysis/routes"
	"github.com/clarityvalue/clarity/services/analysis/tierconfig"
	"github.com/clarityvalue/clarity/services/llm"
)

func initTracer(ctx context.Context) (func(context.Context), error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		// Tracing is optional outside the composed deployment.
		return func(context.Context) {}, nil
	}

	conn, err := grpc.NewClient(endpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	exporter, err := otlptracegrpc.New(ctx, otlptracegrpc.WithGRPCConn(conn))
	if err != nil {
		return nil, err
	}
	res, err := resource.New(ctx,
		resource.WithAttributes(semconv.ServiceNameKey.String("analysisd")))
	if err != nil {
		return nil, err
	}

	provider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithSpanProcessor(sdktrace.NewBatchSpanProcessor(exporter)))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{}, propagation.Baggage{}))

	return func(ctx context.Context) {
		ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			log.Printf("failed to shut down tracer provider: %v", err)
		}
	}, nil
}

func newLLMClient() (llm.Client, error) {
	switch os.Getenv("LLM_BACKEND_TYPE") {
	case "ollama":
		return llm.NewOllamaClient()
	default:
		return llm.NewOpenAIClient()
	}
}

func main() {
	logger := logging.Setup(logging.Config{
		Level:   logging.ParseLevel(os.Getenv("LOG_LEVEL")),
		Service: "analysisd",
	})

	ctx, stop := signal.NotifyContext(context.Background(),
		os.Interrupt, syscall.SIGTERM)
	defer stop()

	cleanup, err := initTracer(ctx)
	if err != nil {
		log.Fatalf("failed to set up the OTLP tracer: %v", err)
	}
	defer cleanup(context.Background())

	registry, err := tierconfig.NewRegistry(logger)
	if err != nil {
		log.Fatalf("failed to load tier configurations: %v", err)
	}
	if path := os.Getenv("TIER_CONFIG_PATH"); path != "" {
		if err := registry.LoadFile(ctx, path); err != nil {
			log.Fatalf("failed to load tier config overlay: %v", err)
		}
		if err := registry.Watch(ctx); err != nil {
			logger.Warn("tier config watch disabled", "error", err)
		}
	}

	llmClient, err := newLLMClient()
	if err != nil {
		log.Fatalf("failed to initialize LLM backend: %v", err)
	}

	resultCache := cache.New(cache.DefaultConfig(), cache.SystemClock(), logger)
	resultCache.StartSweeper(ctx)

	engine, err := analysis.New(analysis.Deps{
		Configs:  registry,
		LLM:      llmClient,
		Cache:    resultCache,
		Breakers: resilience.NewRegistry(resilience.DefaultBreakerConfig(), nil),
		Hub:      notify.NewHub(logger),
		Logger:   logger,
	})
	if err != nil {
		log.Fatalf("failed to construct analysis engine: %v", err)
	}

	port := os.Getenv("ANALYSISD_PORT")
	if port == "" {
		port = "12300"
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(otelgin.Middleware("analysisd"))
	routes.SetupRoutes(router, engine)

	server := &http.Server{
		Addr:    ":" + port,
		Handler: router,
	}

	go func() {
		logger.Info("analysisd listening", "port", port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("server failed: %v", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
}
