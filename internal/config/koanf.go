// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/tomtom215/scriptorium/internal/discovery"
	"github.com/tomtom215/scriptorium/internal/embedding"
	"github.com/tomtom215/scriptorium/internal/events"
	"github.com/tomtom215/scriptorium/internal/graph"
	"github.com/tomtom215/scriptorium/internal/lbd"
	"github.com/tomtom215/scriptorium/internal/neighbor"
	"github.com/tomtom215/scriptorium/internal/profile"
	"github.com/tomtom215/scriptorium/internal/recommend"
	"github.com/tomtom215/scriptorium/internal/recommend/collab"
	"github.com/tomtom215/scriptorium/internal/store"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
// The first file found will be used.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/scriptorium/config.yaml",
	"/etc/scriptorium/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config struct with all sensible default values.
// These defaults are applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	storeCfg := store.DefaultConfig()
	storeCfg.Path = "/data/scriptorium"

	model := embedding.DefaultConfig()
	model.ModelDir = "/data/models"

	return &Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
		Server: ServerConfig{
			Port:            9464,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			Environment:     "development",
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
		},
		Store: storeCfg,
		Graph: GraphConfig{
			Builder:          graph.DefaultBuilderConfig(),
			RebuildInterval:  6 * time.Hour,
			RebuildOnStartup: false,
		},
		Embedding: EmbeddingConfig{
			Model:            model,
			TrainOnStartup:   true,
			UpdatesPerMinute: 6,
			UpdateBurst:      1,
		},
		Neighbor:  neighbor.DefaultConfig(),
		LBD:       lbd.DefaultConfig(),
		Profile:   profile.DefaultConfig(),
		Recommend: *recommend.DefaultConfig(),
		Collab: CollabConfig{
			Enabled: true,
			Scorer:  collab.DefaultConfig(),
		},
		Events:    events.DefaultConfig(),
		Discovery: discovery.DefaultConfig(),
		Supervisor: SupervisorConfig{
			FailureThreshold: 5.0,
			FailureDecay:     30.0,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
			RetryBase:        2 * time.Second,
			RetryMax:         5 * time.Minute,
			DisabledJobs:     []string{},
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
//
// Precedence is ENV > File > Defaults.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: Load defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: Load config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: Load environment variables (highest priority)
	// EMBEDDING_DIMENSIONS -> embedding.model.params.dimensions
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the path to the first file found, or empty string if none found.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths should be parsed as comma-separated slices
var sliceConfigPaths = []string{
	"supervisor.disabled_jobs",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
// Env vars come in as strings, but the config expects slices.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}

		strVal, ok := val.(string)
		if !ok {
			// Already a slice (from defaults or YAML)
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if err := k.Set(path, trimmed); err != nil {
			return fmt.Errorf("failed to set %s: %w", path, err)
		}
	}
	return nil
}

// envMappings maps lowercased environment variable names to koanf paths.
var envMappings = map[string]string{
	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",

	// Server
	"http_port":           "server.port",
	"http_host":           "server.host",
	"http_timeout":        "server.timeout",
	"environment":         "server.environment",
	"rate_limit_requests": "server.rate_limit_reqs",
	"rate_limit_window":   "server.rate_limit_window",
	"disable_rate_limit":  "server.rate_limit_disabled",

	// Store
	"badger_path":             "store.path",
	"badger_in_memory":        "store.in_memory",
	"badger_sync_writes":      "store.sync_writes",
	"badger_gc_interval":      "store.gc_interval",
	"badger_gc_discard_ratio": "store.gc_discard_ratio",

	// Graph
	"graph_subject_threshold":     "graph.builder.subject_threshold",
	"graph_temporal_window_years": "graph.builder.temporal_window_years",
	"graph_max_edges_per_type":    "graph.builder.max_edges_per_type",
	"graph_fetch_concurrency":     "graph.builder.fetch_concurrency",
	"graph_rebuild_interval":      "graph.rebuild_interval",
	"graph_rebuild_on_startup":    "graph.rebuild_on_startup",

	// Embedding
	"embedding_algorithm":             "embedding.model.params.algorithm",
	"embedding_dimensions":            "embedding.model.params.dimensions",
	"embedding_walk_length":           "embedding.model.params.walk_length",
	"embedding_num_walks":             "embedding.model.params.num_walks",
	"embedding_p":                     "embedding.model.params.p",
	"embedding_q":                     "embedding.model.params.q",
	"embedding_window_size":           "embedding.model.params.window_size",
	"embedding_epochs":                "embedding.model.params.epochs",
	"embedding_seed":                  "embedding.model.params.seed",
	"embedding_walk_workers":          "embedding.model.walk_workers",
	"embedding_model_dir":             "embedding.model.model_dir",
	"embedding_keep_versions":         "embedding.model.keep_versions",
	"embedding_full_retrain_fraction": "embedding.model.full_retrain_fraction",
	"embedding_train_on_startup":      "embedding.train_on_startup",
	"embedding_updates_per_minute":    "embedding.updates_per_minute",

	// Neighbor discovery
	"neighbor_hop_decay":         "neighbor.hop_decay",
	"neighbor_max_hops":          "neighbor.max_hops",
	"neighbor_fusion_alpha":      "neighbor.fusion_alpha",
	"neighbor_hnsw_m":            "neighbor.hnsw.m",
	"neighbor_hnsw_ef_search":    "neighbor.hnsw.ef_search",
	"neighbor_brute_force_below": "neighbor.brute_force_threshold",

	// Literature-based discovery
	"lbd_default_limit":  "lbd.default_limit",
	"lbd_max_limit":      "lbd.max_limit",
	"lbd_cache_ttl":      "lbd.cache_ttl",
	"lbd_proximity_hops": "lbd.proximity_hops",

	// Profiles
	"profile_cache_ttl":       "profile.cache_ttl",
	"profile_cache_size":      "profile.cache_size",
	"profile_recompute_after": "profile.recompute_after",
	"profile_lookback":        "profile.lookback",

	// Recommendation
	"recommend_weight_content":       "recommend.weights.content",
	"recommend_weight_graph":         "recommend.weights.graph",
	"recommend_weight_collaborative": "recommend.weights.collaborative",
	"recommend_max_candidates":       "recommend.limits.max_candidates",
	"recommend_default_k":            "recommend.limits.default_k",
	"recommend_max_k":                "recommend.limits.max_k",
	"recommend_cache_enabled":        "recommend.cache.enabled",
	"recommend_cache_ttl":            "recommend.cache.ttl",
	"recommend_candidate_space":      "recommend.candidates.space",

	// Collaborative scorer
	"collab_enabled":         "collab.enabled",
	"collab_train_interval":  "collab.scorer.train_interval",
	"collab_lookback":        "collab.scorer.lookback",
	"collab_max_pairs":       "collab.scorer.max_pairs",
	"collab_breaker_timeout": "collab.scorer.breaker.timeout",

	// Events
	"events_retry_max_retries": "events.retry_max_retries",
	"events_close_timeout":     "events.close_timeout",

	// Discovery facade
	"max_concurrent_requests": "discovery.max_concurrent_requests",
	"acquire_timeout":         "discovery.acquire_timeout",
	"track_popularity":        "discovery.track_popularity",

	// Supervisor
	"supervisor_shutdown_timeout": "supervisor.shutdown_timeout",
	"job_retry_base":              "supervisor.retry_base",
	"job_retry_max":               "supervisor.retry_max",
	"disabled_jobs":               "supervisor.disabled_jobs",
}

// envTransformFunc transforms environment variable names to koanf config paths.
//
// Examples:
//   - LOG_LEVEL -> logging.level
//   - BADGER_PATH -> store.path
//   - EMBEDDING_DIMENSIONS -> embedding.model.params.dimensions
//   - DISABLED_JOBS -> supervisor.disabled_jobs
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}

	// Unmapped keys are skipped so unrelated environment variables
	// cannot pollute the configuration.
	return ""
}

// GetKoanfInstance returns a new Koanf instance for advanced usage such as
// custom configuration sources in tests.
func GetKoanfInstance() *koanf.Koanf {
	return koanf.New(".")
}

// WatchConfigFile calls callback whenever the file at path changes.
// The caller is responsible for synchronizing access to a reloaded Config.
func WatchConfigFile(path string, callback func()) error {
	return file.Provider(path).Watch(func(_ interface{}, err error) {
		if err != nil {
			return
		}
		callback()
	})
}
