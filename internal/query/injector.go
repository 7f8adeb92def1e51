package query

import (
	"strings"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/keeperhq/datanode/internal/domain"
)

// placeholderPrefix marks a string value as a variable reference, e.g.
// "##wallets" binds the variable named "wallets".
const placeholderPrefix = "##"

// InjectPipeline substitutes placeholders throughout a pipeline template.
// The template is never mutated; callers may reuse it across executions.
func InjectPipeline(pipeline []bson.M, vars RuntimeVariables) ([]bson.M, error) {
	out := make([]bson.M, len(pipeline))
	for i, stage := range pipeline {
		injected, err := Inject(stage, vars)
		if err != nil {
			return nil, err
		}
		out[i] = injected.(bson.M)
	}
	return out, nil
}

// Inject walks a JSON/BSON value tree and replaces every string of the exact
// form ##name with the bound variable value. A placeholder with no binding
// fails immediately with the offending text. Array order is preserved;
// scalars other than placeholder strings pass through unchanged.
func Inject(node any, vars RuntimeVariables) (any, error) {
	switch typed := node.(type) {
	case string:
		if !strings.HasPrefix(typed, placeholderPrefix) {
			return typed, nil
		}
		value, ok := vars[typed[len(placeholderPrefix):]]
		if !ok {
			return nil, &domain.VariableInjectionError{Placeholder: typed}
		}
		return value, nil

	case bson.M:
		out := make(bson.M, len(typed))
		for key, child := range typed {
			injected, err := Inject(child, vars)
			if err != nil {
				return nil, err
			}
			out[key] = injected
		}
		return out, nil

	case map[string]any:
		out := make(map[string]any, len(typed))
		for key, child := range typed {
			injected, err := Inject(child, vars)
			if err != nil {
				return nil, err
			}
			out[key] = injected
		}
		return out, nil

	case bson.D:
		out := make(bson.D, len(typed))
		for i, elem := range typed {
			injected, err := Inject(elem.Value, vars)
			if err != nil {
				return nil, err
			}
			out[i] = bson.E{Key: elem.Key, Value: injected}
		}
		return out, nil

	case bson.A:
		out := make(bson.A, len(typed))
		for i, child := range typed {
			injected, err := Inject(child, vars)
			if err != nil {
				return nil, err
			}
			out[i] = injected
		}
		return out, nil

	case []any:
		out := make([]any, len(typed))
		for i, child := range typed {
			injected, err := Inject(child, vars)
			if err != nil {
				return nil, err
			}
			out[i] = injected
		}
		return out, nil

	default:
		return node, nil
	}
}
