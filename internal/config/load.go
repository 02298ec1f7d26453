package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/roach88/sibr/internal/model"
)

const (
	// EnvPrefix prefixes every environment override.
	EnvPrefix = "SIBR_"

	// ConfigPathEnvVar names a config file when no --config flag is given.
	ConfigPathEnvVar = "SIBR_CONFIG"

	// DefaultConfigFile is used when present in the working directory.
	DefaultConfigFile = "sibr.yaml"
)

// Load builds the configuration from defaults, an optional YAML file and
// the environment, then validates it.
//
// path may be empty; see findConfigFile for the lookup order. An explicit
// path that does not exist is an error.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = findConfigFile()
	} else if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile returns $SIBR_CONFIG if set, else ./sibr.yaml if it
// exists, else "".
func findConfigFile() string {
	if p := os.Getenv(ConfigPathEnvVar); p != "" {
		return p
	}
	if _, err := os.Stat(DefaultConfigFile); err == nil {
		return DefaultConfigFile
	}
	return ""
}

// envTransformFunc maps SIBR_SERVER__MAX_PAGE_SIZE to server.max_page_size.
// SIBR_CONFIG selects the file and is not a setting.
func envTransformFunc(key string) string {
	if key == ConfigPathEnvVar {
		return ""
	}
	key = strings.TrimPrefix(key, EnvPrefix)
	return strings.ReplaceAll(strings.ToLower(key), "__", ".")
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints plus rules that span fields.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	var errs []error
	names := map[string]bool{}
	for _, w := range c.Workers {
		if names[w.Name] {
			errs = append(errs, fmt.Errorf("workers: duplicate name %q", w.Name))
		}
		names[w.Name] = true

		for _, ep := range w.Endpoints {
			if w.Mode == ModeKind {
				if _, err := model.ParseKind(ep.Kind); err != nil {
					errs = append(errs, fmt.Errorf("workers.%s: %w", w.Name, err))
				}
			}
		}
	}

	if c.Source != "" {
		if _, err := model.ParseSource(c.Source); err != nil {
			errs = append(errs, fmt.Errorf("source: %q is neither a UUID nor a known source", c.Source))
		}
	}
	return errors.Join(errs...)
}

// SourceID resolves Source. Returns an error when it is unset.
func (c *Config) SourceID() (model.SourceID, error) {
	if c.Source == "" {
		return model.SourceID{}, errors.New("source is not configured (set source or SIBR_SOURCE)")
	}
	return model.ParseSource(c.Source)
}

// EnabledWorkers returns the workers with Enabled set.
func (c *Config) EnabledWorkers() []WorkerConfig {
	out := []WorkerConfig{}
	for _, w := range c.Workers {
		if w.Enabled {
			out = append(out, w)
		}
	}
	return out
}
