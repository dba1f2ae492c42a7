// Scriptorium - Research Library Discovery and Recommendation Engine
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/scriptorium

package config

import (
	"fmt"
	"time"
)

// Validate checks that required configuration is present and valid
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}

	if err := c.validateLogging(); err != nil {
		return err
	}

	if err := c.validateStore(); err != nil {
		return err
	}

	if err := c.validateGraph(); err != nil {
		return err
	}

	if err := c.validateEmbedding(); err != nil {
		return err
	}

	if err := c.validateComponents(); err != nil {
		return err
	}

	return c.validateSupervisor()
}

// validateServer validates the ops server configuration
func (c *Config) validateServer() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("HTTP_PORT must be between 1 and 65535")
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %v", c.Server.Timeout)
	}
	if !validEnvironments[c.Server.Environment] {
		return fmt.Errorf("ENVIRONMENT must be one of: development, production")
	}
	if c.Server.RateLimitDisabled {
		return nil
	}
	if c.Server.RateLimitReqs < 1 || c.Server.RateLimitReqs > 100000 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS must be between 1 and 100000, got %d", c.Server.RateLimitReqs)
	}
	if c.Server.RateLimitWindow < time.Second {
		return fmt.Errorf("RATE_LIMIT_WINDOW must be at least 1s, got %v", c.Server.RateLimitWindow)
	}
	return nil
}

var validEnvironments = map[string]bool{
	"development": true,
	"production":  true,
}

var validLogLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validLogFormats = map[string]bool{
	"json":    true,
	"console": true,
}

// validateLogging validates logging configuration
func (c *Config) validateLogging() error {
	if err := c.validateLogLevel(); err != nil {
		return err
	}
	return c.validateLogFormat()
}

// validateLogLevel validates the log level configuration
func (c *Config) validateLogLevel() error {
	if !validLogLevels[c.Logging.Level] {
		return fmt.Errorf("LOG_LEVEL must be one of: trace, debug, info, warn, error")
	}
	return nil
}

// validateLogFormat validates the log format configuration
func (c *Config) validateLogFormat() error {
	if c.Logging.Format == "" {
		return nil
	}
	if !validLogFormats[c.Logging.Format] {
		return fmt.Errorf("LOG_FORMAT must be one of: json, console")
	}
	return nil
}

// validateStore validates persistence configuration
func (c *Config) validateStore() error {
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if c.Server.IsProduction() && c.Store.InMemory {
		return fmt.Errorf("BADGER_IN_MEMORY cannot be enabled in production")
	}
	return nil
}

// validateGraph validates graph construction and the rebuild schedule
func (c *Config) validateGraph() error {
	if err := c.Graph.Builder.Validate(); err != nil {
		return fmt.Errorf("graph: %w", err)
	}
	if c.Graph.RebuildInterval < 0 {
		return fmt.Errorf("graph: rebuild_interval must be non-negative, got %v", c.Graph.RebuildInterval)
	}
	if c.Graph.RebuildInterval > 0 && c.Graph.RebuildInterval < time.Minute {
		return fmt.Errorf("graph: rebuild_interval must be at least 1m, got %v", c.Graph.RebuildInterval)
	}
	return nil
}

// validateEmbedding validates the embedder and its update throttle
func (c *Config) validateEmbedding() error {
	if err := c.Embedding.Model.Validate(); err != nil {
		return fmt.Errorf("embedding: %w", err)
	}
	if c.Embedding.UpdatesPerMinute <= 0 {
		return fmt.Errorf("embedding: updates_per_minute must be positive, got %v", c.Embedding.UpdatesPerMinute)
	}
	if c.Embedding.UpdateBurst < 1 {
		return fmt.Errorf("embedding: update_burst must be positive, got %d", c.Embedding.UpdateBurst)
	}
	return nil
}

// validateComponents delegates to the validation of each component section
func (c *Config) validateComponents() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"neighbor", c.Neighbor.Validate},
		{"lbd", c.LBD.Validate},
		{"profile", c.Profile.Validate},
		{"recommend", c.Recommend.Validate},
		{"collab", c.Collab.Scorer.Validate},
		{"events", c.Events.Validate},
		{"discovery", c.Discovery.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%s: %w", s.name, err)
		}
	}
	return nil
}

// validJobs are the names accepted by supervisor.disabled_jobs
var validJobs = map[string]bool{
	JobGraphRebuild:  true,
	JobEmbedding:     true,
	JobCollabTrainer: true,
	JobStoreGC:       true,
}

// validateSupervisor validates supervisor tree and job retry settings
func (c *Config) validateSupervisor() error {
	s := &c.Supervisor
	if s.FailureThreshold <= 0 {
		return fmt.Errorf("supervisor: failure_threshold must be positive, got %v", s.FailureThreshold)
	}
	if s.FailureDecay <= 0 {
		return fmt.Errorf("supervisor: failure_decay must be positive, got %v", s.FailureDecay)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("supervisor: shutdown_timeout must be positive, got %v", s.ShutdownTimeout)
	}
	if s.RetryBase <= 0 {
		return fmt.Errorf("supervisor: retry_base must be positive, got %v", s.RetryBase)
	}
	if s.RetryMax < s.RetryBase {
		return fmt.Errorf("supervisor: retry_max (%v) must be at least retry_base (%v)", s.RetryMax, s.RetryBase)
	}
	for _, j := range s.DisabledJobs {
		if !validJobs[j] {
			return fmt.Errorf("DISABLED_JOBS contains unknown job %q", j)
		}
	}
	return nil
}
