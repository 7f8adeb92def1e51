package schema

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/keeperhq/datanode/internal/domain"
)

const (
	formatDateTime = "date-time"
	formatUUID     = "uuid"
)

// Compiled is a validated, executable schema. Validate may be called
// concurrently; the compiled form is immutable.
type Compiled struct {
	schema     *jsonschema.Schema
	definition map[string]any
}

// Compile compiles a JSON-Schema definition. Malformed definitions return a
// CompileError, reported distinctly from data validation failures.
func Compile(definition json.RawMessage) (*Compiled, error) {
	var defTree map[string]any
	if err := json.Unmarshal(definition, &defTree); err != nil {
		return nil, &domain.CompileError{Reason: fmt.Sprintf("definition is not a JSON object: %v", err)}
	}

	compiler := jsonschema.NewCompiler()
	compiler.Draft = jsonschema.Draft2020
	compiler.AssertFormat = true
	if err := compiler.AddResource("schema.json", bytes.NewReader(definition)); err != nil {
		return nil, &domain.CompileError{Reason: err.Error()}
	}
	compiled, err := compiler.Compile("schema.json")
	if err != nil {
		return nil, &domain.CompileError{Reason: err.Error()}
	}

	return &Compiled{schema: compiled, definition: defTree}, nil
}

// WrapItems wraps a schema definition as the item schema of an array, so a
// whole upload batch validates in one pass with per-document issue paths.
func WrapItems(definition json.RawMessage) json.RawMessage {
	wrapped, _ := json.Marshal(map[string]any{
		"type":  "array",
		"items": json.RawMessage(definition),
	})
	return wrapped
}

// Validate checks data against the schema and applies the format coercions:
// string values declared with format date-time or uuid are rewritten to
// native values in the returned copy. Every issue found in the pass is
// collected into one DataValidationError; a failed coercion parse is an
// issue, never a silent pass-through.
func (c *Compiled) Validate(data any) (any, error) {
	var issues []string
	if err := c.schema.Validate(data); err != nil {
		if ve, ok := err.(*jsonschema.ValidationError); ok {
			issues = collectIssues(ve, issues)
		} else {
			issues = append(issues, err.Error())
		}
	}

	coerced := coerceValue(c.definition, data, "", &issues)
	if len(issues) > 0 {
		return nil, domain.NewDataValidationError(issues...)
	}
	return coerced, nil
}

// collectIssues flattens the validation error tree into leaf-level,
// instance-path-prefixed messages.
func collectIssues(ve *jsonschema.ValidationError, issues []string) []string {
	if len(ve.Causes) == 0 {
		path := ve.InstanceLocation
		if path == "" {
			path = "/"
		}
		return append(issues, fmt.Sprintf("%s: %s", path, ve.Message))
	}
	for _, cause := range ve.Causes {
		issues = collectIssues(cause, issues)
	}
	return issues
}

// coerceValue walks the definition and data trees in parallel, rewriting
// format-tagged strings to native values. The input data is not modified;
// containers on the coercion path are rebuilt.
func coerceValue(def map[string]any, value any, path string, issues *[]string) any {
	if def == nil {
		return value
	}

	switch typed := value.(type) {
	case map[string]any:
		props, ok := def["properties"].(map[string]any)
		if !ok {
			return value
		}
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			childDef, _ := props[key].(map[string]any)
			out[key] = coerceValue(childDef, child, path+"/"+key, issues)
		}
		return out

	case []any:
		items, ok := def["items"].(map[string]any)
		if !ok {
			return value
		}
		out := make([]any, len(typed))
		for i, elem := range typed {
			out[i] = coerceValue(items, elem, fmt.Sprintf("%s/%d", path, i), issues)
		}
		return out

	case string:
		if def["type"] != "string" {
			return value
		}
		switch def["format"] {
		case formatDateTime:
			parsed, err := time.Parse(time.RFC3339, typed)
			if err != nil {
				*issues = append(*issues, fmt.Sprintf("%s: must match format %q", location(path), formatDateTime))
				return value
			}
			return parsed.UTC()
		case formatUUID:
			parsed, err := uuid.Parse(typed)
			if err != nil {
				*issues = append(*issues, fmt.Sprintf("%s: must match format %q", location(path), formatUUID))
				return value
			}
			return primitive.Binary{Subtype: 0x04, Data: parsed[:]}
		}
		return value

	default:
		return value
	}
}

func location(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
