// Package geo holds the GeoJSON document model served and cached by placesync.
//
// Only Point features are produced. Geometry is encoded through paulmach/orb so the
// wire format follows RFC 7946 ([longitude, latitude]); properties keep the field order
// of the upstream record.
package geo

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/dreampalaces/placesync/internal/fields"
)

const (
	// TypeFeatureCollection is the GeoJSON type tag of a Document
	TypeFeatureCollection = "FeatureCollection"
	// TypeFeature is the GeoJSON type tag of a Feature
	TypeFeature = "Feature"
)

// ErrInvalidDocument is returned when data is not a FeatureCollection of Point features
var ErrInvalidDocument = errors.New("invalid GeoJSON document")

// Feature is a single Point feature
type Feature struct {
	ID         string
	Point      orb.Point
	Properties *fields.Map
}

// NewFeature creates a feature at the given longitude and latitude
func NewFeature(id string, lng, lat float64, props *fields.Map) *Feature {
	if props == nil {
		props = fields.NewMap(0)
	}
	return &Feature{ID: id, Point: orb.Point{lng, lat}, Properties: props}
}

// Lng returns the longitude of the feature
func (f *Feature) Lng() float64 { return f.Point.Lon() }

// Lat returns the latitude of the feature
func (f *Feature) Lat() float64 { return f.Point.Lat() }

type featureJSON struct {
	Type       string            `json:"type"`
	ID         string            `json:"id,omitempty"`
	Properties *fields.Map       `json:"properties"`
	Geometry   *geojson.Geometry `json:"geometry"`
}

// MarshalJSON implements json.Marshaler
func (f *Feature) MarshalJSON() ([]byte, error) {
	props := f.Properties
	if props == nil {
		props = fields.NewMap(0)
	}
	return json.Marshal(featureJSON{
		Type:       TypeFeature,
		ID:         f.ID,
		Properties: props,
		Geometry:   geojson.NewGeometry(f.Point),
	})
}

// UnmarshalJSON implements json.Unmarshaler
func (f *Feature) UnmarshalJSON(data []byte) error {
	var raw featureJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != TypeFeature {
		return fmt.Errorf("%w: feature type %q", ErrInvalidDocument, raw.Type)
	}
	if raw.Geometry == nil {
		return fmt.Errorf("%w: feature %q has no geometry", ErrInvalidDocument, raw.ID)
	}
	pt, ok := raw.Geometry.Geometry().(orb.Point)
	if !ok {
		return fmt.Errorf("%w: feature %q geometry is %s, want Point",
			ErrInvalidDocument, raw.ID, raw.Geometry.Type)
	}
	f.ID = raw.ID
	f.Point = pt
	f.Properties = raw.Properties
	if f.Properties == nil {
		f.Properties = fields.NewMap(0)
	}
	return nil
}

// Document is a GeoJSON FeatureCollection
type Document struct {
	Features []*Feature
}

// NewDocument returns a collection holding the given features
func NewDocument(features ...*Feature) *Document {
	if features == nil {
		features = []*Feature{}
	}
	return &Document{Features: features}
}

// Len returns the number of features
func (d *Document) Len() int {
	if d == nil {
		return 0
	}
	return len(d.Features)
}

type documentJSON struct {
	Type     string     `json:"type"`
	Features []*Feature `json:"features"`
}

// MarshalJSON implements json.Marshaler
func (d *Document) MarshalJSON() ([]byte, error) {
	features := d.Features
	if features == nil {
		features = []*Feature{}
	}
	return json.Marshal(documentJSON{Type: TypeFeatureCollection, Features: features})
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Document) UnmarshalJSON(data []byte) error {
	var raw documentJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if raw.Type != TypeFeatureCollection {
		return fmt.Errorf("%w: type %q", ErrInvalidDocument, raw.Type)
	}
	if raw.Features == nil {
		raw.Features = []*Feature{}
	}
	d.Features = raw.Features
	return nil
}

// Marshal encodes the document compactly
func Marshal(d *Document) ([]byte, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal document: %w", err)
	}
	return data, nil
}

// Parse decodes a FeatureCollection
func Parse(data []byte) (*Document, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrInvalidDocument)
	}
	doc := &Document{}
	if err := json.Unmarshal(data, doc); err != nil {
		if errors.Is(err, ErrInvalidDocument) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidDocument, err)
	}
	return doc, nil
}

// Hash returns the hex SHA-256 of data
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
