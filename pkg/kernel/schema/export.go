package schema

import (
	"encoding/json"
	"fmt"

	"github.com/invopop/jsonschema"
)

// Schema resource identifiers.
const (
	ProcedureSchemaID = "https://github.com/ormasoftchile/quest/schemas/quest-v0.json"
	WorldSchemaID     = "https://github.com/ormasoftchile/quest/schemas/world-v0.json"
)

// GenerateProcedureJSONSchema produces a JSON Schema Draft 2020-12 document
// from the quest/v0 Procedure Go types.
func GenerateProcedureJSONSchema() ([]byte, error) {
	return generate(&Procedure{}, ProcedureSchemaID,
		"Quest procedure — quest/v0",
		"Schema for quest/v0 procedure YAML documents (Draft 2020-12)")
}

// GenerateWorldJSONSchema produces a JSON Schema Draft 2020-12 document
// from the world/v0 World Go types.
func GenerateWorldJSONSchema() ([]byte, error) {
	return generate(&World{}, WorldSchemaID,
		"Simulated world — world/v0",
		"Schema for world/v0 simulated world YAML documents (Draft 2020-12)")
}

func generate(v any, id, title, description string) ([]byte, error) {
	r := new(jsonschema.Reflector)
	s := r.Reflect(v)
	s.ID = jsonschema.ID(id)
	s.Title = title
	s.Description = description

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal %s schema: %w", title, err)
	}
	return data, nil
}
