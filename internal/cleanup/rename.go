// Package cleanup rewrites property keys of a cached GeoJSON document.
//
// It is an offline maintenance step run against the cache file, independent of
// the whitelist applied by the transformer on every refresh.
package cleanup

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dreampalaces/placesync/internal/cache"
	"github.com/dreampalaces/placesync/internal/fields"
	"github.com/dreampalaces/placesync/internal/geo"
)

// DefaultRenames is the mapping applied when none is given.
// The upstream column carries a trailing space.
var DefaultRenames = map[string]string{
	"Condition [V2] ": "Condition",
}

// Stats reports what a rename changed
type Stats struct {
	Features int
	// Renamed is the number of property keys rewritten across all features
	Renamed int
	// Collisions counts renames whose target key already existed on the feature
	Collisions int
}

// ParseMapping parses "from=to" pairs. The last '=' separates the keys so
// that the source key may keep surrounding whitespace.
func ParseMapping(pairs []string) (map[string]string, error) {
	if len(pairs) == 0 {
		out := make(map[string]string, len(DefaultRenames))
		for k, v := range DefaultRenames {
			out[k] = v
		}
		return out, nil
	}

	out := make(map[string]string, len(pairs))
	for _, pair := range pairs {
		idx := strings.LastIndex(pair, "=")
		if idx <= 0 {
			return nil, fmt.Errorf("invalid mapping %q: expected from=to", pair)
		}
		from, to := pair[:idx], strings.TrimSpace(pair[idx+1:])
		if to == "" {
			return nil, fmt.Errorf("invalid mapping %q: empty target key", pair)
		}
		if _, dup := out[from]; dup {
			return nil, fmt.Errorf("duplicate mapping for key %q", from)
		}
		out[from] = to
	}
	return out, nil
}

// RenameKeys rewrites the property keys of every feature in doc.
// Keys keep their position; when a renamed key lands on an existing one the
// later value wins and the earlier position is kept.
func RenameKeys(doc *geo.Document, renames map[string]string) Stats {
	stats := Stats{Features: doc.Len()}
	if doc == nil {
		return stats
	}

	for _, f := range doc.Features {
		props := fields.NewMap(f.Properties.Len())
		f.Properties.Range(func(key string, value fields.Value) bool {
			target, ok := renames[key]
			if !ok {
				target = key
			} else if target != key {
				stats.Renamed++
			}
			if props.Has(target) {
				stats.Collisions++
			}
			props.Set(target, value)
			return true
		})
		f.Properties = props
	}
	return stats
}

// RenameFile reads the cache file at in, renames keys and writes the result to out.
// in and out may be the same path.
func RenameFile(ctx context.Context, in, out string, renames map[string]string) (Stats, error) {
	doc, _, err := cache.ReadFile(in)
	if err != nil {
		return Stats{}, err
	}

	stats := RenameKeys(doc, renames)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return Stats{}, fmt.Errorf("failed to marshal document: %w", err)
	}
	data = append(data, '\n')

	if _, err := cache.WriteFile(out, data); err != nil {
		return Stats{}, err
	}

	slog.InfoContext(ctx, "Renamed property keys",
		"input", in,
		"output", out,
		"features", stats.Features,
		"renamed", stats.Renamed,
		"collisions", stats.Collisions)
	return stats, nil
}
