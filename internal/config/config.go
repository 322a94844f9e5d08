// Package config defines the flag- and file-bindable configuration for the
// filesys command-line tools (cmd/mkfs, cmd/fsshell): a yaml-tagged Config
// struct plus a BindFlags
// function that wires each field to both a pflag flag and a viper key, so
// the same setting can come from a YAML config file or a command-line flag,
// with flags taking precedence. Environment variables are not consulted.
package config

import (
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config is the full set of tunables for a filesys command-line tool. Every
// field carries a matching mapstructure tag alongside its yaml tag, since
// viper.Unmarshal decodes by mapstructure tag name, not yaml tag name.
type Config struct {
	// Device is the path to the flat-file disk image.
	Device string `yaml:"device" mapstructure:"device"`

	// Sectors is the device's fixed capacity, used both to format a new
	// image and to validate an existing one's size.
	Sectors uint32 `yaml:"sectors" mapstructure:"sectors"`

	// Format wipes and reformats Device on startup when true.
	Format bool `yaml:"format" mapstructure:"format"`

	// VolumeLabel distinguishes this instance's Prometheus metrics from
	// others in the same process.
	VolumeLabel string `yaml:"volume-label" mapstructure:"volume-label"`

	Logging LoggingConfig `yaml:"logging" mapstructure:"logging"`
}

// LoggingConfig configures the ambient slog-based logger.
type LoggingConfig struct {
	Severity string `yaml:"severity" mapstructure:"severity"`
	Format   string `yaml:"format" mapstructure:"format"`
	FilePath string `yaml:"file-path" mapstructure:"file-path"`
}

// Default returns the Config a fresh cobra command should start from before
// flags and a config file are applied.
func Default() Config {
	return Config{
		Sectors:     4096,
		VolumeLabel: "default",
		Logging: LoggingConfig{
			Severity: "INFO",
			Format:   "text",
		},
	}
}

// BindFlags registers every Config field on flagSet and binds it to the
// matching viper key, so viper.Unmarshal later produces a Config reflecting
// flag > config-file > default precedence.
func BindFlags(v *viper.Viper, flagSet *pflag.FlagSet) error {
	d := Default()

	flagSet.String("device", "", "Path to the flat-file disk image.")
	if err := v.BindPFlag("device", flagSet.Lookup("device")); err != nil {
		return err
	}

	flagSet.Uint32("sectors", d.Sectors, "Device capacity in sectors.")
	if err := v.BindPFlag("sectors", flagSet.Lookup("sectors")); err != nil {
		return err
	}

	flagSet.Bool("format", false, "Reformat the device before use, discarding its content.")
	if err := v.BindPFlag("format", flagSet.Lookup("format")); err != nil {
		return err
	}

	flagSet.String("volume-label", d.VolumeLabel, "Label distinguishing this instance's exported metrics.")
	if err := v.BindPFlag("volume-label", flagSet.Lookup("volume-label")); err != nil {
		return err
	}

	flagSet.String("log-severity", d.Logging.Severity, "Minimum log severity: TRACE, DEBUG, INFO, WARNING, ERROR, or OFF.")
	if err := v.BindPFlag("logging.severity", flagSet.Lookup("log-severity")); err != nil {
		return err
	}

	flagSet.String("log-format", d.Logging.Format, "Log rendering: text or json.")
	if err := v.BindPFlag("logging.format", flagSet.Lookup("log-format")); err != nil {
		return err
	}

	flagSet.String("log-file", "", "Path to a rotating log file; empty logs to stderr.")
	if err := v.BindPFlag("logging.file-path", flagSet.Lookup("log-file")); err != nil {
		return err
	}

	return nil
}

// Load reads an optional YAML config file (if path is non-empty) into v,
// then unmarshals the merged flag/env/file/default state into a Config.
func Load(v *viper.Viper, path string) (Config, error) {
	cfg := Default()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return cfg, err
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Example renders Default as a commented-out-free YAML template, for a
// --print-config-example style flag that saves a new user from guessing
// the config file's shape.
func Example() ([]byte, error) {
	return yaml.Marshal(Default())
}
