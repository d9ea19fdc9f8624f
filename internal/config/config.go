// Package config provides Viper-based configuration loading for the ability
// and effect engine.
package config

import (
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/gas/internal/game/resource"
	"github.com/cory-johannsen/gas/internal/game/tag"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// EngineConfig holds simulation tunables.
type EngineConfig struct {
	// TickRate is frames per simulated second.
	TickRate float64 `mapstructure:"tick_rate"`
	// MaxChainDepth bounds chained effect applications.
	MaxChainDepth int `mapstructure:"max_chain_depth"`
	// DefaultConeHalfAngle is used by cone abilities that leave it unset, in degrees.
	DefaultConeHalfAngle float64 `mapstructure:"default_cone_half_angle"`
	// BaseDamage and BaseHeal apply when an ability leaves its amount at 0.
	BaseDamage float64 `mapstructure:"base_damage"`
	BaseHeal   float64 `mapstructure:"base_heal"`
	// ParallelEffects ticks effect ledgers of different entities concurrently.
	ParallelEffects bool `mapstructure:"parallel_effects"`
	// ScriptInstructionLimit bounds each Lua call. 0 uses the scripting default.
	ScriptInstructionLimit int `mapstructure:"script_instruction_limit"`
	// CellSize is the spatial grid cell edge.
	CellSize float64 `mapstructure:"cell_size"`
}

// FrameDuration returns the wall-clock length of one frame.
//
// Precondition: TickRate > 0.
func (e EngineConfig) FrameDuration() time.Duration {
	return time.Duration(float64(time.Second) / e.TickRate)
}

// ContentConfig locates definition content and declares the tag and
// resource vocabularies it is validated against.
type ContentConfig struct {
	AbilitiesDir string `mapstructure:"abilities_dir"`
	EffectsDir   string `mapstructure:"effects_dir"`
	// ScriptsDir is optional; empty disables Lua.
	ScriptsDir string          `mapstructure:"scripts_dir"`
	Scenario   string          `mapstructure:"scenario"`
	Tags       []string        `mapstructure:"tags"`
	Resources  []resource.Spec `mapstructure:"resources"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging"`
	Engine  EngineConfig  `mapstructure:"engine"`
	Content ContentConfig `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateEngine(c.Engine); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateContent(c.Content); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateEngine(e EngineConfig) error {
	var errs []string
	if e.TickRate <= 0 || e.TickRate > 1000 || math.IsNaN(e.TickRate) {
		errs = append(errs, fmt.Sprintf("engine.tick_rate must be in (0, 1000], got %g", e.TickRate))
	}
	if e.MaxChainDepth < 1 {
		errs = append(errs, fmt.Sprintf("engine.max_chain_depth must be >= 1, got %d", e.MaxChainDepth))
	}
	if e.DefaultConeHalfAngle <= 0 || e.DefaultConeHalfAngle > 180 {
		errs = append(errs, fmt.Sprintf("engine.default_cone_half_angle must be in (0, 180], got %g", e.DefaultConeHalfAngle))
	}
	if e.BaseDamage < 0 {
		errs = append(errs, fmt.Sprintf("engine.base_damage must be >= 0, got %g", e.BaseDamage))
	}
	if e.BaseHeal < 0 {
		errs = append(errs, fmt.Sprintf("engine.base_heal must be >= 0, got %g", e.BaseHeal))
	}
	if e.ScriptInstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("engine.script_instruction_limit must be >= 0, got %d", e.ScriptInstructionLimit))
	}
	if e.CellSize <= 0 {
		errs = append(errs, fmt.Sprintf("engine.cell_size must be > 0, got %g", e.CellSize))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateContent(c ContentConfig) error {
	var errs []string
	if c.AbilitiesDir == "" {
		errs = append(errs, "content.abilities_dir must not be empty")
	}
	if c.EffectsDir == "" {
		errs = append(errs, "content.effects_dir must not be empty")
	}
	if _, err := tag.NewRegistry(c.Tags); err != nil {
		errs = append(errs, fmt.Sprintf("content.tags: %v", err))
	}
	if _, err := resource.NewPools(c.Resources); err != nil {
		errs = append(errs, fmt.Sprintf("content.resources: %v", err))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with GAS_ prefix
	v.SetEnvPrefix("GAS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("engine.tick_rate", 30)
	v.SetDefault("engine.max_chain_depth", 8)
	v.SetDefault("engine.default_cone_half_angle", 45)
	v.SetDefault("engine.base_damage", 10)
	v.SetDefault("engine.base_heal", 10)
	v.SetDefault("engine.parallel_effects", false)
	v.SetDefault("engine.script_instruction_limit", 100000)
	v.SetDefault("engine.cell_size", 4)

	v.SetDefault("content.abilities_dir", "content/abilities")
	v.SetDefault("content.effects_dir", "content/effects")
	v.SetDefault("content.scripts_dir", "content/scripts")
}
