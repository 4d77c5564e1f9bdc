// Package app provides the cobra commands of the placesync binary.
package app

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/dreampalaces/placesync/internal/config"
	"github.com/dreampalaces/placesync/internal/versions"
)

const (
	flagConfig  = "config"
	flagEnvFile = "env-file"
)

// NewRootCmd creates a new root command for placesync.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:               "placesync",
		DisableAutoGenTag: true,
		SilenceUsage:      true,
		Short:             "Airtable to GeoJSON sync and cache server",
		Long: `placesync mirrors an Airtable table of places into a GeoJSON FeatureCollection,
serves it over HTTP and refreshes it on authenticated, throttled request.`,
		Run: func(cmd *cobra.Command, _ []string) {
			// If no subcommand is provided, print help
			if err := cmd.Help(); err != nil {
				slog.Error("Error displaying help", "error", err)
			}
		},
	}

	rootCmd.PersistentFlags().String(flagConfig, "", "Path to configuration file (YAML format)")
	rootCmd.PersistentFlags().StringSlice(flagEnvFile, []string{".env"}, "Dotenv files to load before reading the environment")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newRenameCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newVersionCmd())

	return rootCmd
}

// flagViper binds the command's flags, local and inherited, into a fresh viper instance
func flagViper(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	var bindErr error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err := v.BindPFlag(f.Name, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("failed to bind %s flag: %w", f.Name, err)
		}
	})
	return v, bindErr
}

// loadConfig loads the configuration named by --config and --env-file
func loadConfig(v *viper.Viper) (*config.Config, error) {
	opts := []config.Option{config.WithEnvFiles(v.GetStringSlice(flagEnvFile)...)}
	if path := v.GetString(flagConfig); path != "" {
		opts = append(opts, config.WithConfigPath(path))
	}

	cfg, err := config.LoadConfig(opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	slog.Info("Loaded configuration",
		"config", v.GetString(flagConfig),
		"base", cfg.Upstream.BaseID,
		"table", cfg.Upstream.Table,
		"cache", cfg.Cache.Path)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, _ []string) error {
			info := versions.GetVersionInfo()
			format, err := cmd.Flags().GetString("format")
			if err != nil {
				return err
			}

			if format == "json" {
				output, err := json.MarshalIndent(info, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to format version info as JSON: %w", err)
				}
				_, err = fmt.Fprintln(cmd.OutOrStdout(), string(output))
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), info.String())
			return err
		},
	}
	cmd.Flags().String("format", "", "Output format (json)")
	return cmd
}
