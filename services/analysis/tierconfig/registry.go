// Copyright (C) 2026 ClarityValue, Inc.
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tierconfig

import (
	"context"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"gopkg.in/yaml.v3"
)

// MaxConfigFileSize caps tier configuration files at 1MB.
const MaxConfigFileSize = 1 << 20

//go:embed configs/tiers.yaml
var embeddedTiers []byte

var (
	configLoadErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clarity_tierconfig_load_errors_total",
		Help: "Total tier configuration load errors",
	})

	configLoadDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "clarity_tierconfig_load_duration_seconds",
		Help:    "Duration of tier configuration loading",
		Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5},
	})

	configReloads = promauto.NewCounter(prometheus.CounterOpts{
		Name: "clarity_tierconfig_reloads_total",
		Help: "Total tier configuration reloads triggered by file changes",
	})
)

var tracer = otel.Tracer("clarity.analysis.tierconfig")

// configFile is the YAML document shape.
type configFile struct {
	Tiers []TierConfig `yaml:"tiers" validate:"required,min=1,dive"`
}

// Registry resolves tier configurations by (tier, analysis type).
//
// The registry loads embedded defaults at construction and can overlay a
// YAML file from disk, optionally watching it for changes. Resolution is
// a pure read; configurations are immutable once published.
type Registry struct {
	mu      sync.RWMutex
	configs map[string]*TierConfig

	path     string
	logger   *slog.Logger
	validate *validator.Validate
	watcher  *fsnotify.Watcher
}

// NewRegistry creates a registry from the embedded defaults.
//
// Inputs:
//   - logger: Destination for load diagnostics. Must not be nil.
//
// Outputs:
//   - *Registry: Ready-to-use registry.
//   - error: Non-nil if the embedded defaults fail validation.
func NewRegistry(logger *slog.Logger) (*Registry, error) {
	r := &Registry{
		configs:  make(map[string]*TierConfig),
		logger:   logger,
		validate: validator.New(),
	}
	if err := r.loadBytes(context.Background(), embeddedTiers, "embedded"); err != nil {
		return nil, fmt.Errorf("load embedded tier configs: %w", err)
	}
	return r, nil
}

// LoadFile overlays tier configurations from a YAML file on disk.
// Entries replace embedded defaults with the same (tier, analysis type).
func (r *Registry) LoadFile(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		configLoadErrors.Inc()
		return fmt.Errorf("stat tier config file: %w", err)
	}
	if info.Size() > MaxConfigFileSize {
		configLoadErrors.Inc()
		return fmt.Errorf("tier config file %s exceeds %d bytes", path, MaxConfigFileSize)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		configLoadErrors.Inc()
		return fmt.Errorf("read tier config file: %w", err)
	}
	if err := r.loadBytes(ctx, data, path); err != nil {
		return err
	}

	r.mu.Lock()
	r.path = path
	r.mu.Unlock()
	return nil
}

func (r *Registry) loadBytes(ctx context.Context, data []byte, source string) error {
	_, span := tracer.Start(ctx, "tierconfig.load")
	defer span.End()
	span.SetAttributes(attribute.String("source", source))

	start := time.Now()
	defer func() {
		configLoadDuration.Observe(time.Since(start).Seconds())
	}()

	var file configFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		configLoadErrors.Inc()
		span.SetStatus(codes.Error, "yaml parse failed")
		return fmt.Errorf("parse tier configs: %w", err)
	}
	if err := r.validate.Struct(&file); err != nil {
		configLoadErrors.Inc()
		span.SetStatus(codes.Error, "validation failed")
		return fmt.Errorf("validate tier configs: %w", err)
	}

	loaded := make(map[string]*TierConfig, len(file.Tiers))
	for i := range file.Tiers {
		cfg := file.Tiers[i]
		loaded[cfg.Key()] = &cfg
	}

	r.mu.Lock()
	for k, v := range loaded {
		r.configs[k] = v
	}
	total := len(r.configs)
	r.mu.Unlock()

	span.SetAttributes(attribute.Int("configs_loaded", len(loaded)))
	r.logger.Info("tier configurations loaded",
		"source", source, "loaded", len(loaded), "total", total)
	return nil
}

// Resolve returns the configuration for a (tier, analysis type) pair.
//
// Outputs:
//   - *TierConfig: The configuration. Treat as read-only.
//   - bool: False if no configuration exists for the pair.
func (r *Registry) Resolve(tier, analysisType string) (*TierConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cfg, ok := r.configs[configKey(tier, analysisType)]
	return cfg, ok
}

// Keys returns the registered (tier, analysis type) keys, for diagnostics.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.configs))
	for k := range r.configs {
		keys = append(keys, k)
	}
	return keys
}

// Watch reloads the overlay file whenever it changes on disk.
//
// Watching stops when ctx is cancelled. Reload failures are logged and
// counted; the previously published configurations stay in effect.
func (r *Registry) Watch(ctx context.Context) error {
	r.mu.RLock()
	path := r.path
	r.mu.RUnlock()
	if path == "" {
		return fmt.Errorf("no tier config file loaded; call LoadFile first")
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create config watcher: %w", err)
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return fmt.Errorf("watch tier config file: %w", err)
	}
	r.watcher = watcher

	go func() {
		defer watcher.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}
				configReloads.Inc()
				if err := r.LoadFile(ctx, path); err != nil {
					r.logger.Error("tier config reload failed",
						"path", path, "error", err)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				r.logger.Warn("tier config watcher error", "error", err)
			}
		}
	}()
	return nil
}
