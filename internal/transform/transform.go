// Package transform turns upstream records into a GeoJSON FeatureCollection.
package transform

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/golang/geo/s2"

	"github.com/dreampalaces/placesync/internal/config"
	"github.com/dreampalaces/placesync/internal/fields"
	"github.com/dreampalaces/placesync/internal/geo"
	"github.com/dreampalaces/placesync/internal/sources"
)

// Reserved property keys added to every feature
const (
	PropSourceID  = "_air_id"
	PropSourceURL = "_air_url"
	PropName      = "name"
)

//go:generate mockgen -destination=mocks/mock_transformer.go -package=mocks -source=transform.go Transformer

// Transformer converts a record set into a Document
type Transformer interface {
	Transform(ctx context.Context, records []sources.Record) (*Result, error)
}

// Result is the outcome of one transformation
type Result struct {
	Document *geo.Document
	// Data is the compact encoding of Document
	Data []byte
	// Hash is the hex SHA-256 of Data
	Hash string
	// Dropped counts records skipped for lacking a usable coordinate
	Dropped int
	// OutOfRange counts features whose coordinates fall outside WGS84 bounds
	OutOfRange int
}

// Config selects the coordinate fields, the property whitelist and the provenance URL
type Config struct {
	LatitudeField     string
	LongitudeField    string
	PublicFields      []string
	NameField         string
	SourceURLTemplate string
	BaseID            string
	Table             string
}

// ConfigFrom builds a transform configuration from the application configuration
func ConfigFrom(cfg *config.Config) Config {
	return Config{
		LatitudeField:     cfg.Transform.LatitudeField,
		LongitudeField:    cfg.Transform.LongitudeField,
		PublicFields:      cfg.Transform.PublicFields,
		NameField:         cfg.Transform.NameField,
		SourceURLTemplate: cfg.Transform.SourceURLTemplate,
		BaseID:            cfg.Upstream.BaseID,
		Table:             cfg.Upstream.Table,
	}
}

// GeoTransformer is the default Transformer
type GeoTransformer struct {
	cfg       Config
	whitelist map[string]struct{}
}

// NewGeoTransformer validates cfg and returns a transformer
func NewGeoTransformer(cfg Config) (*GeoTransformer, error) {
	if cfg.LatitudeField == "" || cfg.LongitudeField == "" {
		return nil, fmt.Errorf("latitude and longitude fields are required")
	}
	if cfg.SourceURLTemplate == "" {
		cfg.SourceURLTemplate = config.DefaultSourceURLTemplate
	}

	var whitelist map[string]struct{}
	if len(cfg.PublicFields) > 0 {
		whitelist = make(map[string]struct{}, len(cfg.PublicFields))
		for _, name := range cfg.PublicFields {
			whitelist[name] = struct{}{}
		}
	}

	return &GeoTransformer{cfg: cfg, whitelist: whitelist}, nil
}

// Transform implements Transformer. Records lacking either coordinate are skipped;
// everything else becomes one feature, in input order.
func (t *GeoTransformer) Transform(ctx context.Context, records []sources.Record) (*Result, error) {
	features := make([]*geo.Feature, 0, len(records))
	result := &Result{}

	for i := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		rec := &records[i]

		lat, latOK := coordinate(rec.Fields, t.cfg.LatitudeField)
		lng, lngOK := coordinate(rec.Fields, t.cfg.LongitudeField)
		if !latOK || !lngOK {
			result.Dropped++
			slog.DebugContext(ctx, "Skipping record without coordinates",
				"record_id", rec.ID,
				"has_latitude", latOK,
				"has_longitude", lngOK)
			continue
		}

		if !s2.LatLngFromDegrees(lat, lng).IsValid() {
			result.OutOfRange++
			slog.WarnContext(ctx, "Record coordinates outside WGS84 range",
				"record_id", rec.ID,
				"latitude", lat,
				"longitude", lng)
		}

		features = append(features, geo.NewFeature(rec.ID, lng, lat, t.properties(rec)))
	}

	doc := geo.NewDocument(features...)
	data, err := geo.Marshal(doc)
	if err != nil {
		return nil, err
	}
	result.Document = doc
	result.Data = data
	result.Hash = geo.Hash(data)

	return result, nil
}

// properties builds the feature properties: whitelisted fields in record order,
// then provenance keys, then a synthesized name when none survived the whitelist.
func (t *GeoTransformer) properties(rec *sources.Record) *fields.Map {
	props := fields.NewMap(rec.Fields.Len() + 3)
	rec.Fields.Range(func(key string, value fields.Value) bool {
		if t.keep(key) {
			props.Set(key, value)
		}
		return true
	})

	props.Set(PropSourceID, fields.String(rec.ID))
	props.Set(PropSourceURL, fields.String(t.sourceURL(rec.ID)))

	if t.cfg.NameField != "" && !props.Has(PropName) {
		if name, ok := rec.Fields.Get(t.cfg.NameField); ok {
			props.Set(PropName, name)
		}
	}
	return props
}

func (t *GeoTransformer) keep(key string) bool {
	if t.whitelist == nil {
		return true
	}
	_, ok := t.whitelist[key]
	return ok
}

func (t *GeoTransformer) sourceURL(id string) string {
	return strings.NewReplacer(
		"{base}", url.PathEscape(t.cfg.BaseID),
		"{table}", url.PathEscape(t.cfg.Table),
		"{id}", url.PathEscape(id),
	).Replace(t.cfg.SourceURLTemplate)
}

// coordinate reads a numeric field; null, missing and non-numeric values are absent
func coordinate(m *fields.Map, key string) (float64, bool) {
	v, ok := m.Get(key)
	if !ok {
		return 0, false
	}
	return v.Float()
}
