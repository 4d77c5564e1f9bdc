package app

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/dreampalaces/placesync/internal/cache"
	"github.com/dreampalaces/placesync/internal/config"
	"github.com/dreampalaces/placesync/internal/geo"
)

const defaultTopKeys = 10

// PropertyUsage is how many features carry a property key
type PropertyUsage struct {
	Key      string
	Features int
}

// CacheSummary describes a cache file
type CacheSummary struct {
	Path       string
	Size       int64
	ModTime    time.Time
	Hash       string
	Features   int
	Properties []PropertyUsage
}

func newInspectCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Summarize a cache file",
		RunE:  runInspect,
	}
	cmd.Flags().String("path", config.DefaultCachePath, "Cache file to inspect")
	cmd.Flags().Int("top", defaultTopKeys, "Number of property keys to list; 0 lists all")
	return cmd
}

func runInspect(cmd *cobra.Command, _ []string) error {
	path, err := cmd.Flags().GetString("path")
	if err != nil {
		return err
	}
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return err
	}

	summary, err := summarize(path, top)
	if err != nil {
		return err
	}
	return renderSummary(cmd.OutOrStdout(), summary)
}

// summarize reads and validates the cache file at path
func summarize(path string, top int) (*CacheSummary, error) {
	doc, data, err := cache.ReadFile(path)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat cache file: %w", err)
	}

	counts := make(map[string]int)
	for _, f := range doc.Features {
		for _, key := range f.Properties.Keys() {
			counts[key]++
		}
	}
	usage := make([]PropertyUsage, 0, len(counts))
	for key, n := range counts {
		usage = append(usage, PropertyUsage{Key: key, Features: n})
	}
	slices.SortFunc(usage, func(a, b PropertyUsage) int {
		if c := cmp.Compare(b.Features, a.Features); c != 0 {
			return c
		}
		return cmp.Compare(a.Key, b.Key)
	})
	if top > 0 && len(usage) > top {
		usage = usage[:top]
	}

	return &CacheSummary{
		Path:       path,
		Size:       info.Size(),
		ModTime:    info.ModTime().UTC(),
		Hash:       geo.Hash(data),
		Features:   doc.Len(),
		Properties: usage,
	}, nil
}

func renderSummary(w io.Writer, s *CacheSummary) error {
	table := tablewriter.NewWriter(w)
	table.Header("Field", "Value")
	rows := [][]string{
		{"Path", s.Path},
		{"Features", strconv.Itoa(s.Features)},
		{"Size", strconv.FormatInt(s.Size, 10) + " bytes"},
		{"Modified", s.ModTime.Format(time.RFC3339)},
		{"ETag", `"` + s.Hash + `"`},
	}
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("failed to build summary table: %w", err)
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render summary table: %w", err)
	}

	if len(s.Properties) == 0 {
		return nil
	}

	props := tablewriter.NewWriter(w)
	props.Header("Property", "Features", "Share")
	for _, p := range s.Properties {
		share := 0.0
		if s.Features > 0 {
			share = float64(p.Features) * 100 / float64(s.Features)
		}
		if err := props.Append([]string{p.Key, strconv.Itoa(p.Features), fmt.Sprintf("%.0f%%", share)}); err != nil {
			return fmt.Errorf("failed to build property table: %w", err)
		}
	}
	if err := props.Render(); err != nil {
		return fmt.Errorf("failed to render property table: %w", err)
	}
	return nil
}
