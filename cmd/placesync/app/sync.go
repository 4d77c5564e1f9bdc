package app

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	placesync "github.com/dreampalaces/placesync/internal/app"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the cache file once and exit",
		Long: `Fetch every record from upstream, transform it and replace the cache file,
without starting the HTTP server. The refresh throttle does not apply.`,
		RunE: runSync,
	}
}

func runSync(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	v, err := flagViper(cmd)
	if err != nil {
		return err
	}
	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	app, err := placesync.NewPlaceSyncApp(ctx, placesync.WithConfig(cfg))
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	result, err := app.SyncOnce(ctx)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d features to %s\n", result.FeatureCount, cfg.Cache.Path)
	return err
}
