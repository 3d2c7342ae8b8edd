package config

import (
	"encoding/json"
	"sort"

	"github.com/invopop/jsonschema"

	"github.com/KyungWonPark/featmodel/internal/errs"
	"github.com/KyungWonPark/featmodel/internal/session"
)

// Documents that have a schema.
const (
	SchemaSession = "session"
	SchemaLevel1  = "level1"
)

// reflectSchema inlines the root type; nested types go to $defs since
// contrasts nest.
func reflectSchema(v any) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties:  false,
		ExpandedStruct:             true,
		RequiredFromJSONSchemaTags: true,
	}
	return reflector.Reflect(v)
}

// SchemaNames lists the documents Schema knows.
func SchemaNames() []string {
	names := []string{SchemaSession, SchemaLevel1}
	sort.Strings(names)
	return names
}

// Schema returns the indented JSON schema of the named document.
func Schema(name string) ([]byte, error) {
	var s *jsonschema.Schema
	switch name {
	case SchemaSession:
		s = reflectSchema(&session.Description{})
	case SchemaLevel1:
		s = reflectSchema(&Level1{})
	default:
		return nil, errs.Malformedf("config.Schema", "no schema named %q", name)
	}
	return json.MarshalIndent(s, "", "  ")
}
