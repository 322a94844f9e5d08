// Command mkfs formats a flat-file disk image for use by the filesys
// module: it creates (or truncates) the backing file to the requested
// sector count, then runs filesys.Init with Format set so the free map and
// root directory are laid down.
//
// Flags are bound to viper via internal/config.BindFlags, read from an
// optional YAML config file, then unmarshaled once in cobra.OnInitialize
// before RunE runs.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/eduos/filesys"
	"github.com/eduos/filesys/internal/blockdev"
	"github.com/eduos/filesys/internal/config"
	"github.com/eduos/filesys/internal/logger"
)

var (
	cfgFile      string
	bindErr      error
	unmarshalErr error
	mkfsConfig   config.Config
	v            = viper.New()
)

var printConfigExample bool

var rootCmd = &cobra.Command{
	Use:   "mkfs [flags] image-path",
	Short: "Format a filesys disk image",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if printConfigExample {
			example, err := config.Example()
			if err != nil {
				return err
			}
			fmt.Fprint(os.Stdout, string(example))
			return nil
		}
		if len(args) != 1 {
			return fmt.Errorf("mkfs requires exactly one image-path argument")
		}
		if bindErr != nil {
			return bindErr
		}
		if unmarshalErr != nil {
			return unmarshalErr
		}
		mkfsConfig.Device = args[0]
		mkfsConfig.Format = true
		return runMkfs(mkfsConfig)
	},
}

func runMkfs(cfg config.Config) error {
	logger.SetLevel(cfg.Logging.Severity)
	logger.SetFormat(cfg.Logging.Format)
	if cfg.Logging.FilePath != "" {
		if err := logger.InitLogFile(cfg.Logging.FilePath, logger.RotateConfig{MaxSizeMB: 10, MaxBackups: 3, Compress: true}); err != nil {
			return fmt.Errorf("mkfs: init log file: %w", err)
		}
		defer logger.Close()
	}

	dev, err := blockdev.CreateFileDevice(cfg.Device, cfg.Sectors)
	if err != nil {
		return fmt.Errorf("mkfs: create device: %w", err)
	}
	defer dev.Close()

	fs, err := filesys.Init(filesys.Config{
		Device: dev,
		Format: true,
	})
	if err != nil {
		return fmt.Errorf("mkfs: format: %w", err)
	}
	defer fs.Done()

	logger.Infof("formatted %s: %d sectors, %d free", cfg.Device, cfg.Sectors, fs.FreeSectors())
	return nil
}

func initConfig() {
	mkfsConfig, unmarshalErr = config.Load(v, cfgFile)
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file.")
	rootCmd.Flags().BoolVar(&printConfigExample, "print-config-example", false, "Print a template config file and exit.")
	bindErr = config.BindFlags(v, rootCmd.PersistentFlags())
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
