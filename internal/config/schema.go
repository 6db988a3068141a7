package config

import (
	_ "embed"
	"fmt"
	"sync"

	gateerrors "github.com/flowgate-labs/flowgate/pkg/flowgate/v1/errors"
	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

// The scenario schema is embedded so the binary validates without any
// external files.
//
//go:embed flowgate_schema_v1.0.0.json
var schemaV1Bytes []byte

var (
	schemaV1Loader gojsonschema.JSONLoader
	schemaV1       *gojsonschema.Schema
	schemaOnce     sync.Once
	schemaErr      error
)

// loadSchema compiles the embedded schema once, thread-safely.
func loadSchema() (*gojsonschema.Schema, error) {
	schemaOnce.Do(func() {
		if len(schemaV1Bytes) == 0 {
			schemaErr = gateerrors.NewConfigError("embedded schema 'flowgate_schema_v1.0.0.json' is empty or not found (ensure file exists in internal/config/)", nil)
			return
		}
		schemaV1Loader = gojsonschema.NewBytesLoader(schemaV1Bytes)
		schemaV1, schemaErr = gojsonschema.NewSchema(schemaV1Loader)
		if schemaErr != nil {
			schemaErr = gateerrors.NewConfigError("failed to compile embedded schema 'flowgate_schema_v1.0.0.json'", schemaErr)
		}
	})
	return schemaV1, schemaErr
}

// ValidateWithSchema validates the given YAML document bytes against the
// embedded flowgate v1.0.0 schema. The YAML is parsed into generic Go data
// first because the validator works on JSON-like structures.
func ValidateWithSchema(documentYAML []byte) error {
	schema, err := loadSchema()
	if err != nil {
		return err
	}

	var jsonData interface{}
	if err := yaml.Unmarshal(documentYAML, &jsonData); err != nil {
		return gateerrors.NewConfigError("failed to parse scenario YAML for schema validation", err)
	}

	docLoader := gojsonschema.NewGoLoader(jsonData)
	result, err := schema.Validate(docLoader)
	if err != nil {
		return gateerrors.NewConfigError("schema validation process failed", err)
	}

	if !result.Valid() {
		errMsg := "Scenario failed JSON schema validation:"
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "(root)" || field == "" {
				field = desc.Context().String()
			}
			errMsg += fmt.Sprintf("\n  - Field '%s': %s", field, desc.Description())
		}
		return gateerrors.NewValidationError(errMsg, nil)
	}

	return nil
}
