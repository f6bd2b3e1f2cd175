package registry

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/google/jsonschema-go/jsonschema"
)

// Validate checks args against the schema registered for name.
// It collects every violation — missing required arguments, unknown
// arguments, wrong types, out-of-range values — before returning, so a
// single round-trip tells the model everything to fix.
//
// The returned map contains only the declared arguments, with integer
// parameters normalized to int64. It is nil when validation fails.
func (r *Registry) Validate(name string, args map[string]any) (map[string]any, error) {
	spec, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	schema := spec.Parameters
	var violations []Violation

	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			violations = append(violations, Violation{
				Argument: req,
				Reason:   "required argument is missing",
			})
		}
	}

	validated := make(map[string]any, len(args))
	for key, value := range args {
		prop, declared := schema.Properties[key]
		if !declared {
			violations = append(violations, Violation{
				Argument: key,
				Reason:   "argument is not declared for this function",
			})
			continue
		}

		normalized, vs := checkValue(key, value, prop)
		if len(vs) > 0 {
			violations = append(violations, vs...)
			continue
		}
		validated[key] = normalized
	}

	if len(violations) > 0 {
		return nil, &ValidationError{Function: name, Violations: violations}
	}
	return validated, nil
}

// checkValue validates a single argument value against its property
// schema and returns the normalized value.
func checkValue(key string, value any, prop *jsonschema.Schema) (any, []Violation) {
	switch prop.Type {
	case "string":
		s, ok := value.(string)
		if !ok {
			return nil, []Violation{{Argument: key, Reason: fmt.Sprintf("expected string, got %T", value)}}
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, s) {
			return nil, []Violation{{Argument: key, Reason: fmt.Sprintf("%q is not one of the allowed values", s)}}
		}
		return s, nil

	case "integer":
		n, ok := asInt64(value)
		if !ok {
			return nil, []Violation{{Argument: key, Reason: fmt.Sprintf("expected integer, got %T", value)}}
		}
		var vs []Violation
		if prop.Minimum != nil && float64(n) < *prop.Minimum {
			vs = append(vs, Violation{Argument: key, Reason: fmt.Sprintf("%d is below the minimum %v", n, *prop.Minimum)})
		}
		if prop.Maximum != nil && float64(n) > *prop.Maximum {
			vs = append(vs, Violation{Argument: key, Reason: fmt.Sprintf("%d is above the maximum %v", n, *prop.Maximum)})
		}
		if len(vs) > 0 {
			return nil, vs
		}
		return n, nil

	case "number":
		f, ok := asFloat64(value)
		if !ok {
			return nil, []Violation{{Argument: key, Reason: fmt.Sprintf("expected number, got %T", value)}}
		}
		var vs []Violation
		if prop.Minimum != nil && f < *prop.Minimum {
			vs = append(vs, Violation{Argument: key, Reason: fmt.Sprintf("%v is below the minimum %v", f, *prop.Minimum)})
		}
		if prop.Maximum != nil && f > *prop.Maximum {
			vs = append(vs, Violation{Argument: key, Reason: fmt.Sprintf("%v is above the maximum %v", f, *prop.Maximum)})
		}
		if len(vs) > 0 {
			return nil, vs
		}
		return f, nil

	case "boolean":
		b, ok := value.(bool)
		if !ok {
			return nil, []Violation{{Argument: key, Reason: fmt.Sprintf("expected boolean, got %T", value)}}
		}
		return b, nil

	default:
		// Schemas are authored in this repo; anything else is a
		// programming error surfaced as a violation rather than a panic.
		return nil, []Violation{{Argument: key, Reason: fmt.Sprintf("unsupported schema type %q", prop.Type)}}
	}
}

func enumContains(enum []any, s string) bool {
	for _, v := range enum {
		if str, ok := v.(string); ok && str == s {
			return true
		}
	}
	return false
}

// asInt64 accepts the integer encodings seen from JSON decoding and the
// model SDK: exact ints, and floats with no fractional part.
func asInt64(value any) (int64, bool) {
	switch n := value.(type) {
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case float64:
		if n == math.Trunc(n) {
			return int64(n), true
		}
		return 0, false
	case float32:
		f := float64(n)
		if f == math.Trunc(f) {
			return int64(f), true
		}
		return 0, false
	case json.Number:
		i, err := n.Int64()
		return i, err == nil
	default:
		return 0, false
	}
}

func asFloat64(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}
