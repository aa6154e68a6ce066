// Package config loads the settings shared by the Security Director tools.
//
// Values are layered: built-in defaults, then an optional TOML file, then
// environment variables. Command-line flags are applied by the caller before
// Validate is run.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v9"
	"github.com/pelletier/go-toml/v2"

	"sd-address-tools/internal/engine"
)

const (
	DefaultGroup   = "SIRT-Block-List"
	DefaultTimeout = 30 * time.Second
)

// Config holds all configuration for the tools.
type Config struct {
	SecurityDirector SecurityDirectorConfig `toml:"security_director"`
	Blocklist        BlocklistConfig        `toml:"blocklist"`
	Source           SourceConfig           `toml:"source"`
}

// SecurityDirectorConfig holds the API endpoint settings.
type SecurityDirectorConfig struct {
	URL string `toml:"url" env:"SD_URL" validate:"required,url"`
	// The appliance ships with a self-signed certificate.
	InsecureSkipVerify bool     `toml:"insecure_skip_verify" env:"SD_INSECURE_SKIP_VERIFY"`
	Timeout            Duration `toml:"timeout" env:"SD_TIMEOUT" validate:"gt=0"`
}

// BlocklistConfig holds the settings of the blocklist synchronizer.
type BlocklistConfig struct {
	Group               string `toml:"group" env:"SD_BLOCKLIST_GROUP" validate:"required,excludes='"`
	MemberLimit         int    `toml:"member_limit" env:"SD_GROUP_MEMBER_LIMIT" validate:"min=1"`
	NameTemplate        string `toml:"name_template" env:"SD_NAME_TEMPLATE" validate:"required,object_template"`
	DescriptionTemplate string `toml:"description_template" env:"SD_DESCRIPTION_TEMPLATE" validate:"object_template"`
}

// SourceConfig holds the MariaDB entry source settings.
type SourceConfig struct {
	DSN  string `toml:"dsn" env:"BLOCKLIST_DB_DSN"`
	List string `toml:"list" env:"BLOCKLIST_DB_LIST"`
}

// Duration is a time.Duration read from text such as "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		SecurityDirector: SecurityDirectorConfig{
			InsecureSkipVerify: true,
			Timeout:            Duration{DefaultTimeout},
		},
		Blocklist: BlocklistConfig{
			Group:               DefaultGroup,
			MemberLimit:         engine.DefaultMemberLimit,
			NameTemplate:        engine.DefaultNameTemplate,
			DescriptionTemplate: engine.DefaultDescriptionTemplate,
		},
	}
}

// Load reads the configuration. An empty path skips the file layer.
// The result is not validated.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		content, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := toml.Unmarshal(content, cfg); err != nil {
			var decodeErr *toml.DecodeError
			if errors.As(err, &decodeErr) {
				row, col := decodeErr.Position()
				return nil, fmt.Errorf("failed to parse config file %s at %d:%d: %w", path, row, col, err)
			}
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := env.Parse(&cfg.SecurityDirector); err != nil {
		return nil, fmt.Errorf("parsing security director config: %w", err)
	}
	if err := env.Parse(&cfg.Blocklist); err != nil {
		return nil, fmt.Errorf("parsing blocklist config: %w", err)
	}
	if err := env.Parse(&cfg.Source); err != nil {
		return nil, fmt.Errorf("parsing source config: %w", err)
	}

	return cfg, nil
}
