package app

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dreampalaces/placesync/internal/cleanup"
	"github.com/dreampalaces/placesync/internal/config"
)

const renamedFileName = "renamed.geojson"

func newRenameCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rename",
		Short: "Rename property keys in a cached GeoJSON file",
		Long: `Rewrite property keys of every feature in a cache file. Without --map the
"Condition [V2] " column is renamed to "Condition". The result is written to --out,
which defaults to renamed.geojson next to the input.`,
		Example: `  placesync rename --in ./airtablesync/places_cache.geojson --map "Condition [V2] =Condition"`,
		RunE:    runRename,
	}
	cmd.Flags().String("in", config.DefaultCachePath, "Cache file to read")
	cmd.Flags().String("out", "", "File to write")
	cmd.Flags().StringArray("map", nil, `Key mapping "from=to"; repeatable`)
	return cmd
}

func runRename(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	in, err := cmd.Flags().GetString("in")
	if err != nil {
		return err
	}
	out, err := cmd.Flags().GetString("out")
	if err != nil {
		return err
	}
	if out == "" {
		out = filepath.Join(filepath.Dir(in), renamedFileName)
	}
	pairs, err := cmd.Flags().GetStringArray("map")
	if err != nil {
		return err
	}

	renames, err := cleanup.ParseMapping(pairs)
	if err != nil {
		return err
	}

	stats, err := cleanup.RenameFile(ctx, in, out, renames)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Renamed %d keys across %d features into %s\n",
		stats.Renamed, stats.Features, out)
	return err
}
