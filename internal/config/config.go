// Package config loads the server configuration: a YAML file, then COLONY_*
// environment overrides, then validation.
package config

import (
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

const EnvPrefix = "COLONY_"

type Config struct {
	Colony Colony `yaml:"colony"`
	World  World  `yaml:"world"`
	Backup Backup `yaml:"backup"`

	TickRateHz         int `yaml:"tick_rate_hz" env:"TICK_RATE_HZ" validate:"gte=1,lte=1000"`
	SnapshotEveryTicks int `yaml:"snapshot_every_ticks" env:"SNAPSHOT_EVERY_TICKS" validate:"gte=0"`

	Raids      Raids      `yaml:"raids"`
	SupplyCamp SupplyCamp `yaml:"supply_camp"`
}

type Colony struct {
	ID        int       `yaml:"id" env:"ID" validate:"gt=0"`
	Name      string    `yaml:"name" env:"NAME" validate:"required"`
	Owner     string    `yaml:"owner" env:"OWNER" validate:"required"`
	Members   []string  `yaml:"members" env:"MEMBERS" envSeparator:","`
	Dimension Dimension `yaml:"dimension"`
	Center    [3]int    `yaml:"center"`
	Radius    int       `yaml:"radius" env:"RADIUS" validate:"gt=0"`
}

type Dimension struct {
	Namespace string `yaml:"namespace" env:"DIM_NAMESPACE" validate:"required"`
	Path      string `yaml:"path" env:"DIM_PATH" validate:"required"`
}

type World struct {
	SurfaceY int `yaml:"surface_y" validate:"gtefield=MinY"`
	MinY     int `yaml:"min_y"`
	Height   int `yaml:"height" validate:"gt=0"`
}

type Backup struct {
	// Root prefixes every artifact name.
	Root string `yaml:"root" env:"BACKUP_ROOT" validate:"required"`
	// Dir is where artifact files are stored, relative to the data dir.
	Dir string `yaml:"dir" env:"BACKUP_DIR" validate:"required"`
}

type Raids struct {
	// EveryTicks is the interval between raids; 0 disables them.
	EveryTicks int      `yaml:"every_ticks" env:"RAID_EVERY_TICKS" validate:"gte=0"`
	Templates  []string `yaml:"templates" env:"RAID_TEMPLATES" envSeparator:","`
}

type SupplyCamp struct {
	// NoPlacementRestrictions skips the footprint check for camps.
	NoPlacementRestrictions bool `yaml:"no_placement_restrictions" env:"NO_PLACEMENT_RESTRICTIONS"`
}

func Default() Config {
	return Config{
		Colony: Colony{
			ID:        1,
			Name:      "colony",
			Owner:     "founder",
			Dimension: Dimension{Namespace: "minecraft", Path: "overworld"},
			Center:    [3]int{0, 64, 0},
			Radius:    48,
		},
		World:              World{SurfaceY: 63, MinY: 0, Height: 128},
		Backup:             Backup{Root: "structbackup", Dir: "backups"},
		TickRateHz:         20,
		SnapshotEveryTicks: 1200,
		Raids:              Raids{EveryTicks: 6000},
	}
}

// Load reads path (skipped when empty) on top of Default, applies the process
// environment and validates the result.
func Load(path string) (Config, error) {
	return LoadWithEnv(path, nil)
}

// LoadWithEnv is Load with an explicit environment; nil means the process
// environment.
func LoadWithEnv(path string, environ map[string]string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", path, err)
		}
	}
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

var validate = validator.New()

func Validate(cfg Config) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}
