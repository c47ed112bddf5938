package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/invopop/jsonschema"
	jsonschemav5 "github.com/santhosh-tekuri/jsonschema/v5"
)

// reflector mirrors the settings kadirpekel-hector's functiontool/schema.go
// uses: inline everything, skip $schema/$id, honor jsonschema struct tags
// for required fields and descriptions.
var reflector = &jsonschema.Reflector{
	RequiredFromJSONSchemaTags: true,
	ExpandedStruct:             true,
	DoNotReference:             true,
}

// generateSchema reflects T's struct tags into the JSON-Schema object a
// core.Tool advertises as its Parameters.
func generateSchema[T any]() json.RawMessage {
	schema := reflector.Reflect(new(T))
	data, err := json.Marshal(schema)
	if err != nil {
		// Reflection over a concrete struct type never fails; a failure
		// here means a tool's arg struct is malformed at compile time.
		panic(fmt.Sprintf("tools: reflect schema for %T: %v", *new(T), err))
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		panic(fmt.Sprintf("tools: decode reflected schema for %T: %v", *new(T), err))
	}
	delete(m, "$schema")
	delete(m, "$id")
	out, _ := json.Marshal(m)
	return out
}

var schemaCache sync.Map // json.RawMessage (as string) -> *jsonschemav5.Schema

// validateArgs compiles schema (caching by content) and validates input
// against it, the way haasonsaas-nexus's pluginsdk.ValidateConfig compiles
// and checks a manifest's config schema before use.
func validateArgs(schema, input json.RawMessage) error {
	key := string(schema)
	var compiled *jsonschemav5.Schema
	if cached, ok := schemaCache.Load(key); ok {
		compiled = cached.(*jsonschemav5.Schema)
	} else {
		c, err := jsonschemav5.CompileString("tool.schema.json", key)
		if err != nil {
			return fmt.Errorf("compile tool schema: %w", err)
		}
		schemaCache.Store(key, c)
		compiled = c
	}

	var decoded any
	if err := json.Unmarshal(input, &decoded); err != nil {
		return fmt.Errorf("decode tool arguments: %w", err)
	}
	if err := compiled.Validate(decoded); err != nil {
		return fmt.Errorf("invalid arguments: %w", err)
	}
	return nil
}
