package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/persistorai/doctrail/client"
)

// Build-time variables set via ldflags.
var (
	version   = "0.3.0"
	commit    = ""
	buildDate = ""
)

const defaultURL = "http://localhost:3040"

var (
	apiClient    *client.Client
	flagURL      string
	flagActor    string
	flagFmt      string
	flagConfig   string
	flagProfile  string
	flagDisabled []string
)

func versionString() string {
	if commit != "" && buildDate != "" {
		return fmt.Sprintf("doctrail version %s (commit: %s, built: %s)", version, commit, buildDate)
	}
	return fmt.Sprintf("doctrail version %s-dev", version)
}

type configFile struct {
	// Flat format
	URL   string `yaml:"url"`
	Actor string `yaml:"actor"`
	// Profile format
	Profiles      map[string]configProfile `yaml:"profiles"`
	ActiveProfile string                   `yaml:"active_profile"`
}

type configProfile struct {
	URL   string `yaml:"url"`
	Actor string `yaml:"actor"`
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:     "doctrail",
		Short:   "doctrail CLI: tracked documents, audit history, undo and redo",
		Version: versionString(),
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := resolveConfig(); err != nil {
				return err
			}
			opts := []client.Option{client.WithActor(flagActor)}
			if len(flagDisabled) > 0 {
				opts = append(opts, client.WithTrackingDisabled(flagDisabled...))
			}
			apiClient = client.New(flagURL, opts...)
			return nil
		},
		SilenceUsage: true,
	}
	rootCmd.SetVersionTemplate("{{.Version}}\n")

	pf := rootCmd.PersistentFlags()
	pf.StringVar(&flagURL, "url", defaultURL, "doctrail server URL (env: DOCTRAIL_URL)")
	pf.StringVar(&flagActor, "actor", "", "Modifier recorded on changes (env: DOCTRAIL_ACTOR)")
	pf.StringVar(&flagFmt, "format", "json", "Output format: json|table|quiet")
	pf.StringVar(&flagConfig, "config", "", "Config file (default: ~/.doctrail/config.yaml)")
	pf.StringVar(&flagProfile, "profile", "", "Config profile (default: active_profile or \"default\")")
	pf.StringSliceVar(&flagDisabled, "no-track", nil, "Scopes to skip tracking for (\"*\" for all)")

	doctorCmd := newDoctorCmd()
	doctorCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error { return resolveConfig() }

	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(newTypesCmd())
	rootCmd.AddCommand(newSpecCmd())
	rootCmd.AddCommand(newDocCmd())
	rootCmd.AddCommand(newHistoryCmd())
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// configPath returns the config file to read: --config, DOCTRAIL_CONFIG, or
// ~/.doctrail/config.yaml.
func configPath() (string, error) {
	if flagConfig != "" {
		return flagConfig, nil
	}
	if v := os.Getenv("DOCTRAIL_CONFIG"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".doctrail", "config.yaml"), nil
}

// loadConfigFile reads the config file. A missing default file is not an
// error; a missing explicit --config is.
func loadConfigFile() (*configFile, error) {
	path, err := configPath()
	if err != nil {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && flagConfig == "" {
			return nil, nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}
	var cfg configFile
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return &cfg, nil
}

// resolveConfig fills flagURL and flagActor. Flag takes precedence, then
// env, then config file.
func resolveConfig() error {
	if flagURL == defaultURL {
		if v := os.Getenv("DOCTRAIL_URL"); v != "" {
			flagURL = v
		}
	}
	if flagActor == "" {
		flagActor = os.Getenv("DOCTRAIL_ACTOR")
	}

	cfg, err := loadConfigFile()
	if err != nil || cfg == nil {
		return err
	}

	// Resolve from profiles if available, fall back to flat format.
	resolvedURL := cfg.URL
	resolvedActor := cfg.Actor
	if cfg.Profiles != nil {
		profileName := flagProfile
		if profileName == "" {
			profileName = cfg.ActiveProfile
		}
		if profileName == "" {
			profileName = "default"
		}
		p, ok := cfg.Profiles[profileName]
		if !ok && flagProfile != "" {
			return fmt.Errorf("profile %q not found in config", flagProfile)
		}
		if p.URL != "" {
			resolvedURL = p.URL
		}
		if p.Actor != "" {
			resolvedActor = p.Actor
		}
	}
	if flagURL == defaultURL && resolvedURL != "" {
		flagURL = resolvedURL
	}
	if flagActor == "" && resolvedActor != "" {
		flagActor = resolvedActor
	}
	return nil
}
