package query

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/keeperhq/datanode/internal/domain"
)

// ErrUnsupportedVariableKind marks a declared variable type the validator
// cannot dispatch on. This is a schema-author bug in the stored query, not a
// caller input problem, so it is not a DataValidationError.
var ErrUnsupportedVariableKind = errors.New("unsupported variable type")

// RuntimeVariables holds validated, coerced variable values ready for
// pipeline injection.
type RuntimeVariables map[string]any

// ValidateVariables checks a caller-supplied variable map against a query's
// declared variables. The provided set must match the declared set exactly;
// every issue found is aggregated into one DataValidationError so the caller
// gets a complete report.
func ValidateVariables(declared map[string]domain.VariableSpec, provided map[string]any) (RuntimeVariables, error) {
	if len(provided) != len(declared) {
		return nil, domain.NewDataValidationError(
			fmt.Sprintf("expected %d variables, got %d", len(declared), len(provided)))
	}

	var issues []string
	out := make(RuntimeVariables, len(declared))

	for _, name := range sortedKeys(declared) {
		spec := declared[name]
		value, ok := provided[name]
		if !ok {
			issues = append(issues, fmt.Sprintf("variable %q is missing", name))
			continue
		}

		coerced, err := coerceVariable(name, spec, value)
		if err != nil {
			if errors.Is(err, ErrUnsupportedVariableKind) {
				return nil, err
			}
			issues = append(issues, err.Error())
			continue
		}
		out[name] = coerced
	}

	for name := range provided {
		if _, ok := declared[name]; !ok {
			issues = append(issues, fmt.Sprintf("variable %q is not declared", name))
		}
	}

	if len(issues) > 0 {
		return nil, domain.NewDataValidationError(issues...)
	}
	return out, nil
}

func coerceVariable(name string, spec domain.VariableSpec, value any) (any, error) {
	if spec.Kind == domain.KindArray {
		items, ok := value.([]any)
		if !ok {
			return nil, fmt.Errorf("variable %q must be an array", name)
		}
		// An empty array is valid and injects as an empty list.
		out := make([]any, len(items))
		for i, item := range items {
			coerced, err := coercePrimitive(fmt.Sprintf("%s[%d]", name, i), spec.Items.Kind, item)
			if err != nil {
				return nil, err
			}
			out[i] = coerced
		}
		return out, nil
	}
	return coercePrimitive(name, spec.Kind, value)
}

func coercePrimitive(label string, kind domain.VariableKind, value any) (any, error) {
	switch kind {
	case domain.KindString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("variable %q must be a string", label)
		}
		return s, nil

	case domain.KindNumber:
		switch n := value.(type) {
		case float64:
			return n, nil
		case float32:
			return float64(n), nil
		case int:
			return float64(n), nil
		case int32:
			return float64(n), nil
		case int64:
			return float64(n), nil
		}
		return nil, fmt.Errorf("variable %q must be a number", label)

	case domain.KindBoolean:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("variable %q must be a boolean", label)
		}
		return b, nil

	case domain.KindDate:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("variable %q must be an ISO-8601 date string", label)
		}
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, fmt.Errorf("variable %q is not a valid ISO-8601 date: %v", label, err)
		}
		return parsed.UTC(), nil

	default:
		return nil, fmt.Errorf("%w: %q on variable %q", ErrUnsupportedVariableKind, kind, label)
	}
}

func sortedKeys(declared map[string]domain.VariableSpec) []string {
	keys := make([]string, 0, len(declared))
	for key := range declared {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
