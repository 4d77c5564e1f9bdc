package cache

import (
	"bytes"
	_ "embed"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const schemaURL = "https://placesync.local/schemas/feature-collection.json"

//go:embed schema/feature-collection.json
var featureCollectionSchema []byte

// compileSchema compiles the embedded FeatureCollection schema
func compileSchema() (*jsonschema.Schema, error) {
	doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(featureCollectionSchema))
	if err != nil {
		return nil, fmt.Errorf("failed to parse embedded schema: %w", err)
	}

	c := jsonschema.NewCompiler()
	if err := c.AddResource(schemaURL, doc); err != nil {
		return nil, fmt.Errorf("failed to register embedded schema: %w", err)
	}
	sch, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("failed to compile embedded schema: %w", err)
	}
	return sch, nil
}

// ValidateDocument checks raw JSON against the cache file schema
func ValidateDocument(data []byte) error {
	sch, err := compileSchema()
	if err != nil {
		return err
	}
	return validateWith(sch, data)
}

func validateWith(sch *jsonschema.Schema, data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCache, err)
	}
	if err := sch.Validate(inst); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCache, err)
	}
	return nil
}
