// Package batch schedules unattended pipeline runs: overnight
// reprocessing of a fixed list of cases on a cron schedule
package batch

import (
	"fmt"
	"os"

	"github.com/pelletier/go-toml/v2"
)

// BatchConfig represents a scheduled batch configuration
type BatchConfig struct {
	Name string `toml:"name"`
	Cron string `toml:"cron"`
	// Cases lists the case files the batch runs, in order. Runs within
	// a batch execute sequentially; the model saturates the node on its
	// own and two concurrent runs would thrash it.
	Cases            []string `toml:"cases"`
	NotifyOnComplete bool     `toml:"notify_on_complete"`
}

// ScheduleConfig holds all batch configurations
type ScheduleConfig struct {
	Batches []BatchConfig `toml:"batch"`
}

// Validate checks if the config is valid
func (c *BatchConfig) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("batch name is required")
	}
	if c.Cron == "" {
		return fmt.Errorf("cron expression is required")
	}
	if _, err := ParseCron(c.Cron); err != nil {
		return fmt.Errorf("invalid cron expression: %w", err)
	}
	if len(c.Cases) == 0 {
		return fmt.Errorf("batch %s lists no case files", c.Name)
	}
	return nil
}

// LoadScheduleConfig loads batch configuration from a TOML file
func LoadScheduleConfig(path string) (*ScheduleConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &ScheduleConfig{}, nil
		}
		return nil, err
	}

	var cfg ScheduleConfig
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	// Validate all batches
	for i := range cfg.Batches {
		if err := cfg.Batches[i].Validate(); err != nil {
			return nil, fmt.Errorf("batch %d: %w", i, err)
		}
	}

	return &cfg, nil
}
