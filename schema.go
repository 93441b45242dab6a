package main

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"
	k8syaml "sigs.k8s.io/yaml"
)

const formulaSchemaURL = "https://go.cluttr.dev/formula/formula.schema.json"

//go:embed formula.schema.json
var formulaSchemaJSON string

var formulaSchema = sync.OnceValues(func() (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(formulaSchemaURL, strings.NewReader(formulaSchemaJSON)); err != nil {
		return nil, fmt.Errorf("add schema resource: %w", err)
	}
	return compiler.Compile(formulaSchemaURL)
})

// ValidateSchema checks a YAML formula document against the formula JSON
// schema.
func ValidateSchema(data []byte) error {
	schema, err := formulaSchema()
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}

	raw, err := k8syaml.YAMLToJSON(data)
	if err != nil {
		return fmt.Errorf("convert yaml: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse document: %w", err)
	}

	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("schema validation: %w", err)
	}
	return nil
}
