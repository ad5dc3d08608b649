// Package schema compiles embedded JSON Schema documents and validates raw
// JSON against them.
package schema

import (
	"bytes"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

const baseURL = "https://issuedesk.invalid/schema/"

// Compile compiles a single self-contained schema document. name only
// identifies the document in error messages.
func Compile(name string, doc []byte) (*jsonschema.Schema, error) {
	parsed, err := jsonschema.UnmarshalJSON(bytes.NewReader(doc))
	if err != nil {
		return nil, fmt.Errorf("parse schema %s: %w", name, err)
	}
	url := baseURL + name
	c := jsonschema.NewCompiler()
	if err := c.AddResource(url, parsed); err != nil {
		return nil, fmt.Errorf("add schema %s: %w", name, err)
	}
	sch, err := c.Compile(url)
	if err != nil {
		return nil, fmt.Errorf("compile schema %s: %w", name, err)
	}
	return sch, nil
}

// MustCompile is Compile for embedded schemas known at build time.
func MustCompile(name string, doc []byte) *jsonschema.Schema {
	sch, err := Compile(name, doc)
	if err != nil {
		panic(err)
	}
	return sch
}

// Validate checks raw JSON against sch.
func Validate(sch *jsonschema.Schema, data []byte) error {
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("parse json: %w", err)
	}
	return sch.Validate(inst)
}
