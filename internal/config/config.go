// Package config layers run settings from a YAML file, OPINIONATED_*
// environment variables and command-line flags, in increasing precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultFile is read from the working directory when no file is named.
const DefaultFile = "opinionated.yaml"

// EnvPrefix namespaces environment overrides, e.g. OPINIONATED_WORKERS.
const EnvPrefix = "OPINIONATED"

// Keys.
const (
	KeyRules              = "rules"
	KeyLabels             = "labels"
	KeyDB                 = "db"
	KeyWorkers            = "workers"
	KeyBuffer             = "buffer"
	KeyReferenceKey       = "reference_key"
	KeyNameKey            = "name_key"
	KeyLabelKeyPrefix     = "label_key_prefix"
	KeyPermalinkBase      = "permalink_base"
	KeyPrioritizeSpecific = "prioritize_specific"
	KeyMetricsFile        = "metrics_file"
)

// Config is the resolved configuration of one invocation.
type Config struct {
	Rules              string `mapstructure:"rules"`
	Labels             string `mapstructure:"labels"`
	DB                 string `mapstructure:"db"`
	Workers            int    `mapstructure:"workers"`
	Buffer             int    `mapstructure:"buffer"`
	ReferenceKey       string `mapstructure:"reference_key"`
	NameKey            string `mapstructure:"name_key"`
	LabelKeyPrefix     string `mapstructure:"label_key_prefix"`
	PermalinkBase      string `mapstructure:"permalink_base"`
	PrioritizeSpecific bool   `mapstructure:"prioritize_specific"`
	MetricsFile        string `mapstructure:"metrics_file"`

	// File is the config file that was read, empty if none.
	File string `mapstructure:"-"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		DB:                 "opinionated.db",
		Workers:            1,
		Buffer:             1024,
		ReferenceKey:       "wikidata",
		NameKey:            "name",
		LabelKeyPrefix:     "name:",
		PermalinkBase:      "https://www.openstreetmap.org",
		PrioritizeSpecific: true,
	}
}

// New returns a viper instance carrying the defaults and environment
// binding. Flags are bound separately with BindFlags.
func New() *viper.Viper {
	v := viper.New()
	d := Defaults()
	v.SetDefault(KeyRules, d.Rules)
	v.SetDefault(KeyLabels, d.Labels)
	v.SetDefault(KeyDB, d.DB)
	v.SetDefault(KeyWorkers, d.Workers)
	v.SetDefault(KeyBuffer, d.Buffer)
	v.SetDefault(KeyReferenceKey, d.ReferenceKey)
	v.SetDefault(KeyNameKey, d.NameKey)
	v.SetDefault(KeyLabelKeyPrefix, d.LabelKeyPrefix)
	v.SetDefault(KeyPermalinkBase, d.PermalinkBase)
	v.SetDefault(KeyPrioritizeSpecific, d.PrioritizeSpecific)
	v.SetDefault(KeyMetricsFile, d.MetricsFile)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	return v
}

// BindFlags binds each named flag present in fs to the config key of the
// same name, with '-' read as '_'. Flags that are not set on the command
// line do not override file or environment values.
func BindFlags(v *viper.Viper, fs *pflag.FlagSet, names ...string) error {
	for _, name := range names {
		f := fs.Lookup(name)
		if f == nil {
			continue
		}
		if err := v.BindPFlag(strings.ReplaceAll(name, "-", "_"), f); err != nil {
			return fmt.Errorf("bind flag %s: %w", name, err)
		}
	}
	return nil
}

// Load reads the config file, then resolves and validates the result.
//
// An explicitly named file must exist. When path is empty, DefaultFile is
// read if it exists in the working directory.
func Load(v *viper.Viper, path string) (Config, error) {
	v.SetConfigType("yaml")
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}

	file := ""
	if _, err := os.Stat(path); err == nil || explicit {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("failed to read config: %w", err)
		}
		file = path
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = file

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	if c.Workers < 1 {
		errs = append(errs, fmt.Errorf("%s: must be at least 1, got %d", KeyWorkers, c.Workers))
	}
	if c.Buffer < 1 {
		errs = append(errs, fmt.Errorf("%s: must be at least 1, got %d", KeyBuffer, c.Buffer))
	}
	for _, kv := range [][2]string{
		{KeyReferenceKey, c.ReferenceKey},
		{KeyNameKey, c.NameKey},
		{KeyLabelKeyPrefix, c.LabelKeyPrefix},
	} {
		if strings.TrimSpace(kv[1]) == "" {
			errs = append(errs, fmt.Errorf("%s: must not be empty", kv[0]))
		}
	}
	if c.ReferenceKey != "" && c.ReferenceKey == c.NameKey {
		errs = append(errs, fmt.Errorf("%s and %s must differ", KeyReferenceKey, KeyNameKey))
	}
	return errors.Join(errs...)
}
