package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/yok-tottii/echocap/internal/config"
)

// commandContext resolves the configuration shared by every subcommand
type commandContext struct {
	configFlag   *string
	logLevelFlag *string
	jsonFlag     *bool

	config     *config.Config
	configPath string
	firstRun   bool
}

func newCommandContext(configFlag, logLevelFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag:   configFlag,
		logLevelFlag: logLevelFlag,
		jsonFlag:     jsonFlag,
	}
}

// ensureConfig loads the configuration once. On first run the defaults
// are written so the file can be edited.
func (c *commandContext) ensureConfig() (*config.Config, error) {
	if c.config != nil {
		return c.config, nil
	}

	path := strings.TrimSpace(*c.configFlag)
	if path == "" {
		path = config.GetConfigPath()
	}
	path, err := config.ExpandPath(path)
	if err != nil {
		return nil, err
	}

	_, statErr := os.Stat(path)
	firstRun := errors.Is(statErr, os.ErrNotExist)

	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if firstRun {
		if err := cfg.Save(path); err != nil {
			slog.Warn("failed to write default config", "path", path, "err", err)
		}
	}

	// the override is not persisted
	if level := strings.TrimSpace(*c.logLevelFlag); level != "" {
		if err := cfg.Update(map[string]any{"log": map[string]any{"level": level}}); err != nil {
			return nil, fmt.Errorf("invalid --log-level: %w", err)
		}
	}

	c.config = cfg
	c.configPath = path
	c.firstRun = firstRun
	return cfg, nil
}

// JSONMode reports whether output should be JSON: requested explicitly
// or stdout is not a terminal
func (c *commandContext) JSONMode() bool {
	if c.jsonFlag != nil && *c.jsonFlag {
		return true
	}
	return !isTerminal(os.Stdout)
}
