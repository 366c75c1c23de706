package normalizer

import (
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/chenpu17/cc-gw-sub001/internal/gwerr"
	"github.com/chenpu17/cc-gw-sub001/internal/model"
)

// validateToolInputs checks every ToolUse content block's Input against the
// JSON Schema its matching ToolDefinition declared (spec §3: tool inputs
// must conform to the tool's declared parameter schema). A ToolUse naming a
// tool absent from p.Tools is left unchecked and passes through.
func validateToolInputs(p *model.NormalizedPayload) error {
	if len(p.Tools) == 0 {
		return nil
	}
	schemas := make(map[string]*jsonschema.Schema, len(p.Tools))
	for _, m := range p.Messages {
		for _, b := range m.Content {
			tu, ok := b.(model.ToolUse)
			if !ok {
				continue
			}
			sch, err := toolSchema(p.Tools, tu.Name, schemas)
			if err != nil {
				return gwerr.InvalidRequest("%v", err)
			}
			if sch == nil {
				continue
			}
			if err := sch.Validate(tu.Input); err != nil {
				return gwerr.InvalidRequest("tool %q input does not match its declared schema: %v", tu.Name, err)
			}
		}
	}
	return nil
}

// toolSchema compiles (and caches in schemas) the jsonschema.Schema for the
// named tool, returning nil if no tool declares that name or it declared no
// parameters.
func toolSchema(tools []model.ToolDefinition, name string, schemas map[string]*jsonschema.Schema) (*jsonschema.Schema, error) {
	if sch, ok := schemas[name]; ok {
		return sch, nil
	}
	var def *model.ToolDefinition
	for i := range tools {
		if tools[i].Name == name {
			def = &tools[i]
			break
		}
	}
	if def == nil || len(def.Parameters) == 0 {
		schemas[name] = nil
		return nil, nil
	}

	resourceURL := "tool://" + name
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(resourceURL, def.Parameters); err != nil {
		return nil, fmt.Errorf("invalid json schema declared for tool %q: %w", name, err)
	}
	sch, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("compiling json schema for tool %q: %w", name, err)
	}
	schemas[name] = sch
	return sch, nil
}
