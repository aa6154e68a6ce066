package cli

import (
	"log/slog"

	"github.com/spf13/cobra"

	"sd-address-tools/internal/config"
	"sd-address-tools/internal/sd"
)

// ConnectionFlags are the flags both tools share for reaching the API.
type ConnectionFlags struct {
	ConfigFile string
	URL        string
	Insecure   bool
	LogLevel   string
	LogFile    string
	Color      string
}

// Register adds the shared flags to cmd.
func (f *ConnectionFlags) Register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.ConfigFile, "config", "", "TOML configuration file")
	cmd.Flags().StringVar(&f.URL, "url", "", "Security Director base URL (overrides config)")
	cmd.Flags().BoolVar(&f.Insecure, "insecure", true, "Skip TLS certificate verification (overrides config)")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "INFO", "Log level (DEBUG, INFO, WARN, ERROR)")
	cmd.Flags().StringVar(&f.LogFile, "log-file", "", "Log file path (default: stderr)")
	cmd.Flags().StringVar(&f.Color, "color", ColorAuto, "Colored output: 'auto', 'always' or 'never'")
}

// LoadConfig loads the configuration file and environment, applies the flags
// that were set explicitly on cmd, and validates the result. apply may adjust
// tool specific values before validation.
func (f *ConnectionFlags) LoadConfig(cmd *cobra.Command, apply func(*config.Config)) (*config.Config, error) {
	cfg, err := config.Load(f.ConfigFile)
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("url") {
		cfg.SecurityDirector.URL = f.URL
	}
	if cmd.Flags().Changed("insecure") {
		cfg.SecurityDirector.InsecureSkipVerify = f.Insecure
	}
	if apply != nil {
		apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewClient builds the API client described by cfg.
func NewClient(cfg *config.Config, logger *slog.Logger) *sd.Client {
	httpClient := sd.NewHTTPClient(cfg.SecurityDirector.InsecureSkipVerify, cfg.SecurityDirector.Timeout.Duration)
	return sd.NewClient(cfg.SecurityDirector.URL, sd.WithHTTPClient(httpClient), sd.WithLogger(logger))
}
