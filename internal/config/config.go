// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package config

import (
	"time"

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

// Config holds all application configuration.
//
// Component sections reuse the component's own config type, so the koanf
// paths match the struct tags declared next to each component.
type Config struct {
	Logging    LoggingConfig    `koanf:"logging"`
	Server     ServerConfig     `koanf:"server"`
	Store      store.Config     `koanf:"store"`
	Graph      GraphConfig      `koanf:"graph"`
	Embedding  EmbeddingConfig  `koanf:"embedding"`
	Neighbor   neighbor.Config  `koanf:"neighbor"`
	LBD        lbd.Config       `koanf:"lbd"`
	Profile    profile.Config   `koanf:"profile"`
	Recommend  recommend.Config `koanf:"recommend"`
	Collab     CollabConfig     `koanf:"collab"`
	Events     events.Config    `koanf:"events"`
	Discovery  discovery.Config `koanf:"discovery"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds the ops HTTP server configuration.
type ServerConfig struct {
	Port    int           `koanf:"port"`
	Host    string        `koanf:"host"`
	Timeout time.Duration `koanf:"timeout"`

	// Environment is development or production. Production rejects an
	// in-memory store.
	Environment string `koanf:"environment"`

	// RateLimitReqs requests per RateLimitWindow are allowed per client IP.
	RateLimitReqs     int           `koanf:"rate_limit_reqs"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// IsProduction reports whether the server runs in production mode.
func (s *ServerConfig) IsProduction() bool {
	return s.Environment == "production"
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// GraphConfig holds graph construction and the rebuild job schedule.
type GraphConfig struct {
	Builder graph.BuilderConfig `koanf:"builder"`

	// RebuildInterval is the time between full rebuilds of the stored graph.
	// Zero disables scheduled rebuilds.
	RebuildInterval time.Duration `koanf:"rebuild_interval"`

	// RebuildOnStartup runs a full rebuild once the graph is loaded.
	RebuildOnStartup bool `koanf:"rebuild_on_startup"`
}

// EmbeddingConfig holds embedder settings and the update job tunables.
type EmbeddingConfig struct {
	Model embedding.Config `koanf:"model"`

	// TrainOnStartup trains a model when no persisted model could be restored.
	TrainOnStartup bool `koanf:"train_on_startup"`

	// UpdatesPerMinute throttles incremental updates triggered by graph
	// change events. Changes arriving in between are merged.
	UpdatesPerMinute float64 `koanf:"updates_per_minute"`

	// UpdateBurst is the number of updates allowed back to back.
	UpdateBurst int `koanf:"update_burst"`
}

// CollabConfig holds the collaborative scorer settings.
type CollabConfig struct {
	// Enabled registers the co-visitation scorer as the collaborative signal.
	Enabled bool `koanf:"enabled"`

	Scorer collab.Config `koanf:"scorer"`
}

// SupervisorConfig holds supervisor tree and background job settings.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`

	// RetryBase and RetryMax bound the exponential backoff of job retries.
	RetryBase time.Duration `koanf:"retry_base"`
	RetryMax  time.Duration `koanf:"retry_max"`

	// DisabledJobs lists background jobs that are not started.
	DisabledJobs []string `koanf:"disabled_jobs"`
}

// JobEnabled reports whether the named background job should run.
func (s *SupervisorConfig) JobEnabled(name string) bool {
	for _, j := range s.DisabledJobs {
		if j == name {
			return false
		}
	}
	return true
}

// Job names accepted by supervisor.disabled_jobs.
const (
	JobGraphRebuild  = "graph-rebuild"
	JobEmbedding     = "embedding"
	JobCollabTrainer = "collab-trainer"
	JobStoreGC       = "store-gc"
)

// Load reads configuration from defaults, an optional YAML file and
// environment variables, then validates it.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
