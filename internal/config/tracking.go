package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/persistorai/doctrail/internal/schema"
	"github.com/persistorai/doctrail/internal/tracking"
)

// EnvPrefix prefixes environment overrides of tracking definition defaults,
// e.g. DOCTRAIL_DEFAULTS_MODIFIER_REQUIRED=true.
const EnvPrefix = "DOCTRAIL"

// TrackedType is one entry of the tracking: list. Type names live in values
// because configuration keys are case-insensitive.
type TrackedType struct {
	Type             string `mapstructure:"type"`
	tracking.Options `mapstructure:",squash"`
}

// Defaults apply to every tracked type that leaves the setting empty.
type Defaults struct {
	ModifierField    string `mapstructure:"modifier_field"`
	ModifierRequired bool   `mapstructure:"modifier_required"`
	VersionField     string `mapstructure:"version_field"`
}

// Definitions is the decoded content of a tracking definitions file.
type Definitions struct {
	Types    []schema.Type `mapstructure:"types"`
	Defaults Defaults      `mapstructure:"defaults"`
	Tracking []TrackedType `mapstructure:"tracking"`
}

// LoadTracking reads a YAML, JSON or TOML definitions file.
func LoadTracking(path string) (*Definitions, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for _, key := range []string{"defaults.modifier_field", "defaults.modifier_required", "defaults.version_field"} {
		if err := v.BindEnv(key); err != nil {
			return nil, fmt.Errorf("binding %s: %w", key, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading tracking definitions %s: %w", path, err)
	}

	defs := &Definitions{}
	if err := v.Unmarshal(defs); err != nil {
		return nil, fmt.Errorf("decoding tracking definitions %s: %w", path, err)
	}

	// Unmarshal skips env-only values for nested structs it did not see in
	// the file.
	defs.Defaults.ModifierField = v.GetString("defaults.modifier_field")
	defs.Defaults.ModifierRequired = v.GetBool("defaults.modifier_required")
	defs.Defaults.VersionField = v.GetString("defaults.version_field")

	return defs, nil
}

// Build loads the type schema and resolves every tracked type.
func (d *Definitions) Build() (*schema.Registry, *tracking.Registry, error) {
	types, err := schema.NewRegistry(d.Types...)
	if err != nil {
		return nil, nil, fmt.Errorf("loading types: %w", err)
	}

	specs := tracking.NewRegistry(types)

	for _, t := range d.Tracking {
		if t.Type == "" {
			return nil, nil, fmt.Errorf("tracking entry without type")
		}

		if _, err := specs.Register(t.Type, d.withDefaults(t.Options)); err != nil {
			return nil, nil, fmt.Errorf("tracking %s: %w", t.Type, err)
		}
	}

	return types, specs, nil
}

func (d *Definitions) withDefaults(opts tracking.Options) tracking.Options {
	if opts.ModifierField == "" {
		opts.ModifierField = d.Defaults.ModifierField
	}

	if opts.VersionField == "" {
		opts.VersionField = d.Defaults.VersionField
	}

	opts.ModifierRequired = opts.ModifierRequired || d.Defaults.ModifierRequired

	return opts
}
