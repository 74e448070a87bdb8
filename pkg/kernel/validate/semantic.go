package validate

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	sjsonschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/ormasoftchile/quest/pkg/kernel/schema"
)

type compiledSchema struct {
	once     sync.Once
	id       string
	generate func() ([]byte, error)
	schema   *sjsonschema.Schema
	err      error
}

var (
	procedureSchema = &compiledSchema{id: schema.ProcedureSchemaID, generate: schema.GenerateProcedureJSONSchema}
	worldSchema     = &compiledSchema{id: schema.WorldSchemaID, generate: schema.GenerateWorldJSONSchema}
)

// get generates and compiles the schema on first use.
func (c *compiledSchema) get() (*sjsonschema.Schema, error) {
	c.once.Do(func() {
		raw, err := c.generate()
		if err != nil {
			c.err = fmt.Errorf("generate schema: %w", err)
			return
		}
		var doc any
		if err := json.Unmarshal(raw, &doc); err != nil {
			c.err = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		comp := sjsonschema.NewCompiler()
		if err := comp.AddResource(c.id, doc); err != nil {
			c.err = fmt.Errorf("add schema resource: %w", err)
			return
		}
		c.schema, c.err = comp.Compile(c.id)
		if c.err != nil {
			c.err = fmt.Errorf("compile schema: %w", c.err)
		}
	})
	return c.schema, c.err
}

// validateSemantic validates a document against its generated JSON Schema.
func validateSemantic(v any, cs *compiledSchema) []*ValidationError {
	sch, err := cs.get()
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "%s", err)}
	}

	data, err := json.Marshal(v)
	if err != nil {
		return []*ValidationError{errorf("semantic", "", "marshal for schema validation: %v", err)}
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return []*ValidationError{errorf("semantic", "", "unmarshal document: %v", err)}
	}

	if err := sch.Validate(doc); err != nil {
		ve, ok := err.(*sjsonschema.ValidationError)
		if !ok {
			return []*ValidationError{errorf("semantic", "", "%s", err)}
		}
		var errs []*ValidationError
		for _, cause := range flattenValidationErrors(ve) {
			errs = append(errs, &ValidationError{
				Phase:    "semantic",
				Path:     strings.Join(cause.InstanceLocation, "/"),
				Message:  fmt.Sprintf("%v", cause.ErrorKind),
				Severity: "error",
			})
		}
		return errs
	}
	return nil
}

// flattenValidationErrors recursively collects all leaf validation errors.
func flattenValidationErrors(ve *sjsonschema.ValidationError) []*sjsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*sjsonschema.ValidationError{ve}
	}
	var flat []*sjsonschema.ValidationError
	for _, cause := range ve.Causes {
		flat = append(flat, flattenValidationErrors(cause)...)
	}
	return flat
}
