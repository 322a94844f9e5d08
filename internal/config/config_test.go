package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/require"
)

func TestBindFlagsDefaultsWinWithNoOverride(t *testing.T) {
	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse(nil))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	require.Equal(t, uint32(4096), cfg.Sectors)
	require.Equal(t, "default", cfg.VolumeLabel)
	require.Equal(t, "INFO", cfg.Logging.Severity)
}

func TestBindFlagsFlagOverridesDefault(t *testing.T) {
	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse([]string{"--sectors=2048", "--format", "--log-severity=DEBUG"}))

	cfg, err := Load(v, "")
	require.NoError(t, err)
	require.Equal(t, uint32(2048), cfg.Sectors)
	require.True(t, cfg.Format)
	require.Equal(t, "DEBUG", cfg.Logging.Severity)
}

func TestLoadReadsYAMLFileAndFlagStillWins(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "filesys.yaml")
	yaml := "device: /var/lib/filesys/disk.img\nsectors: 1024\nvolume-label: integration\nlogging:\n  severity: WARNING\n  format: json\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	v := viper.New()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	require.NoError(t, BindFlags(v, fs))
	require.NoError(t, fs.Parse([]string{"--sectors=512"}))

	cfg, err := Load(v, path)
	require.NoError(t, err)
	require.Equal(t, "/var/lib/filesys/disk.img", cfg.Device)
	require.Equal(t, uint32(512), cfg.Sectors)
	require.Equal(t, "integration", cfg.VolumeLabel)
	require.Equal(t, "json", cfg.Logging.Format)
}
