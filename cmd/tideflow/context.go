package main

import (
	"fmt"
	"log/slog"

	"tideflow/internal/config"
	"tideflow/internal/logging"
)

// commandContext shares lazily-loaded configuration and logging between
// subcommands.
type commandContext struct {
	configFlag *string

	cfg    *config.Config
	logger *slog.Logger
}

func newCommandContext(configFlag *string) *commandContext {
	return &commandContext{configFlag: configFlag}
}

func (c *commandContext) configPath() (string, error) {
	if c.configFlag != nil && *c.configFlag != "" {
		return *c.configFlag, nil
	}
	return config.DefaultConfigPath()
}

// ensureConfig loads and validates the configuration once per invocation.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.cfg != nil {
		return c.cfg, nil
	}
	path, err := c.configPath()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	c.cfg = cfg
	return cfg, nil
}

// ensureLogger builds the shared logger from configuration.
func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	if c.logger != nil {
		return c.logger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	c.logger = logger
	return logger, nil
}
