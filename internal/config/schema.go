package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed schema.json
var schemaJSON []byte

const schemaURL = "keytally-config.schema.json"

var (
	schemaOnce sync.Once
	schema     *jsonschema.Schema
	schemaErr  error
)

func compiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, bytes.NewReader(schemaJSON)); err != nil {
			schemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		schema, schemaErr = compiler.Compile(schemaURL)
	})
	return schema, schemaErr
}

// ValidateDocument checks a decoded config document against the embedded
// JSON schema. It catches unknown keys and type mismatches that struct
// decoding silently ignores.
func ValidateDocument(doc map[string]any) error {
	s, err := compiledSchema()
	if err != nil {
		return err
	}

	// normalize TOML/YAML values (int64, nested maps) to JSON types
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode config document: %w", err)
	}
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return fmt.Errorf("decode config document: %w", err)
	}

	if err := s.Validate(instance); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
