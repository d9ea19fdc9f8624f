package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/cory-johannsen/gas/internal/game/resource"
)

func validConfig() Config {
	return Config{
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Engine: EngineConfig{
			TickRate:               30,
			MaxChainDepth:          8,
			DefaultConeHalfAngle:   45,
			BaseDamage:             10,
			BaseHeal:               10,
			ScriptInstructionLimit: 100000,
			CellSize:               4,
		},
		Content: ContentConfig{
			AbilitiesDir: "content/abilities",
			EffectsDir:   "content/effects",
			Tags:         []string{"state.stunned", "element.fire"},
			Resources: []resource.Spec{
				{Key: "mana", Max: 100, RegenPerSecond: 2},
			},
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestFrameDuration(t *testing.T) {
	cfg := validConfig()
	cfg.Engine.TickRate = 20
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.FrameDuration())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
logging:
  level: debug
  format: console
engine:
  tick_rate: 60
  parallel_effects: true
content:
  abilities_dir: abilities
  effects_dir: effects
  scenario: duel.yaml
  tags: [state.stunned]
  resources:
    - key: mana
      max: 50
      regen_per_second: 1.5
    - key: rage
      max: 100
      start: 0
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, 60.0, cfg.Engine.TickRate)
	assert.True(t, cfg.Engine.ParallelEffects)
	assert.Equal(t, 8, cfg.Engine.MaxChainDepth, "defaults fill unset keys")
	assert.Equal(t, "content/scripts", cfg.Content.ScriptsDir)
	assert.Equal(t, "duel.yaml", cfg.Content.Scenario)
	require.Len(t, cfg.Content.Resources, 2)
	assert.Equal(t, resource.Spec{Key: "mana", Max: 50, RegenPerSecond: 1.5}, cfg.Content.Resources[0])
	require.NotNil(t, cfg.Content.Resources[1].Start, "an explicit zero start is kept")
	assert.Equal(t, 0.0, *cfg.Content.Resources[1].Start)
}

func TestLoadEnvOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: info\n"), 0644))
	t.Setenv("GAS_ENGINE_TICK_RATE", "120")
	t.Setenv("GAS_LOGGING_LEVEL", "warn")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 120.0, cfg.Engine.TickRate)
	assert.Equal(t, "warn", cfg.Logging.Level)
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadFromViper_Invalid(t *testing.T) {
	v := viper.New()
	setDefaults(v)
	v.Set("engine.tick_rate", 0)
	_, err := LoadFromViper(v)
	assert.Error(t, err)
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := validConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), "format %q should be valid", format)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateEngineReportsEveryViolation(t *testing.T) {
	cfg := validConfig()
	cfg.Engine = EngineConfig{TickRate: -1, DefaultConeHalfAngle: 200, BaseDamage: -1, BaseHeal: -1, ScriptInstructionLimit: -1}
	err := cfg.Validate()
	require.Error(t, err)
	for _, want := range []string{
		"engine.tick_rate",
		"engine.max_chain_depth",
		"engine.default_cone_half_angle",
		"engine.base_damage",
		"engine.base_heal",
		"engine.script_instruction_limit",
		"engine.cell_size",
	} {
		assert.Contains(t, err.Error(), want)
	}
}

func TestValidateContent(t *testing.T) {
	cfg := validConfig()
	cfg.Content.AbilitiesDir = ""
	assert.ErrorContains(t, cfg.Validate(), "content.abilities_dir")

	cfg = validConfig()
	cfg.Content.EffectsDir = ""
	assert.ErrorContains(t, cfg.Validate(), "content.effects_dir")

	cfg = validConfig()
	cfg.Content.Tags = []string{"Bad Tag"}
	assert.ErrorContains(t, cfg.Validate(), "content.tags")

	cfg = validConfig()
	cfg.Content.Resources = append(cfg.Content.Resources, resource.Spec{Key: "mana", Max: 1})
	assert.ErrorContains(t, cfg.Validate(), "content.resources")
}

// Property-based tests

func TestPropertyValidTickRate(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		rate := rapid.Float64Range(0.001, 1000).Draw(t, "rate")
		cfg := validConfig()
		cfg.Engine.TickRate = rate
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid tick rate %v rejected: %v", rate, err)
		}
	})
}

func TestPropertyInvalidChainDepth(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		depth := rapid.IntRange(-100, 0).Draw(t, "depth")
		cfg := validConfig()
		cfg.Engine.MaxChainDepth = depth
		if err := cfg.Validate(); err == nil {
			t.Fatalf("max_chain_depth %d accepted", depth)
		}
	})
}
