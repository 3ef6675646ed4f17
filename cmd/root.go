// Package cmd wires the uiscout CLI: configuration loading, logger bootstrap
// and the command tree.
package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	homedir "github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/augmentalis/uiscout/internal/config"
	"github.com/augmentalis/uiscout/internal/observability"
)

var (
	cfgFile string
	// appCfg is the resolved configuration, populated by the root
	// PersistentPreRunE before any subcommand runs.
	appCfg *config.Config
)

// NewRootCommand builds the command tree. A fresh instance per invocation
// keeps flag state from leaking between runs (important for tests).
func NewRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "uiscout",
		Short: "uiscout learns the UI surface of mobile apps through their accessibility trees.",
		// Version is set at build time via ldflags; see cmd/version.go.
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initializeConfig(); err != nil {
				return err
			}

			cfg, err := config.NewConfigFromViper(viper.GetViper())
			if err != nil {
				// Bring up a fallback logger so the error itself is visible.
				observability.InitializeLogger(config.LoggerConfig{
					Level: "info", Format: "console", ServiceName: "uiscout",
				})
				return err
			}
			appCfg = cfg

			observability.InitializeLogger(cfg.Logger)
			observability.GetLogger().Debug("Starting uiscout", zap.String("version", Version))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./uiscout.yaml)")
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	rootCmd.AddCommand(newLearnCmd())
	rootCmd.AddCommand(newWatchCmd())
	rootCmd.AddCommand(newAppsCmd())
	rootCmd.AddCommand(newPurgeCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the root command with a signal-aware context.
func Execute(ctx context.Context) error {
	rootCmd := NewRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if logger := observability.GetLogger(); logger != nil {
			logger.Error("Command execution failed", zap.Error(err))
		} else {
			fmt.Fprintln(os.Stderr, err)
		}
		return err
	}
	return nil
}

// initializeConfig reads the config file and environment variables.
func initializeConfig() error {
	v := viper.GetViper()
	config.SetDefaults(v)

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := homedir.Dir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "uiscout"))
		}
		v.SetConfigName("uiscout")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("UISCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return fmt.Errorf("error reading config file: %w", err)
		}
		// No config file; defaults and environment variables apply.
	}
	return nil
}
