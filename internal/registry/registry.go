// Package registry declares the set of backend functions the model may
// call: their names, argument schemas, and handler bindings.
//
// The registry is populated once at startup and read-only afterwards,
// so lookups need no locking. Argument validation is exhaustive: every
// violated constraint is reported, not just the first, so the model can
// be told precisely what to correct.
package registry

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/jsonschema-go/jsonschema"
	"google.golang.org/genai"
)

// Handler executes a registered function with validated arguments.
// Implementations are typically bound to a gateway invoker at startup.
type Handler func(ctx context.Context, args map[string]any) (map[string]any, error)

// FunctionSpec describes a single callable backend function.
type FunctionSpec struct {
	// Name is the unique key the model uses to request the function.
	Name string

	// Description is surfaced to the model so it can decide when to call.
	Description string

	// Parameters is the JSON schema for the argument object.
	// Only object schemas with flat scalar properties are supported,
	// matching what the Gemini function-calling API accepts.
	Parameters *jsonschema.Schema

	// Handler executes the function against the data-access gateway.
	Handler Handler
}

// Registry holds the closed set of callable functions.
type Registry struct {
	specs map[string]FunctionSpec
	order []string // registration order, for stable Declarations()
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{specs: make(map[string]FunctionSpec)}
}

// Register adds a function spec. It fails with ErrDuplicateFunction if
// the name is already taken, and rejects specs missing a name, schema,
// or handler.
func (r *Registry) Register(spec FunctionSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("registering function: name is required")
	}
	if spec.Parameters == nil {
		return fmt.Errorf("registering %q: parameter schema is required", spec.Name)
	}
	if spec.Handler == nil {
		return fmt.Errorf("registering %q: handler is required", spec.Name)
	}
	if _, exists := r.specs[spec.Name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateFunction, spec.Name)
	}

	r.specs[spec.Name] = spec
	r.order = append(r.order, spec.Name)
	return nil
}

// Resolve returns the spec registered under name, or ErrUnknownFunction.
func (r *Registry) Resolve(name string) (FunctionSpec, error) {
	spec, ok := r.specs[name]
	if !ok {
		return FunctionSpec{}, fmt.Errorf("%w: %s", ErrUnknownFunction, name)
	}
	return spec, nil
}

// Names returns all registered function names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.specs))
	for name := range r.specs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered functions.
func (r *Registry) Len() int {
	return len(r.specs)
}

// Declarations converts every registered spec to the Gemini
// function-declaration form, in registration order.
func (r *Registry) Declarations() []*genai.FunctionDeclaration {
	decls := make([]*genai.FunctionDeclaration, 0, len(r.order))
	for _, name := range r.order {
		spec := r.specs[name]
		decls = append(decls, &genai.FunctionDeclaration{
			Name:        spec.Name,
			Description: spec.Description,
			Parameters:  toGenaiSchema(spec.Parameters),
		})
	}
	return decls
}

// toGenaiSchema maps a jsonschema.Schema to the genai wire schema.
// Only the subset the function-calling API understands is carried over.
func toGenaiSchema(s *jsonschema.Schema) *genai.Schema {
	if s == nil {
		return nil
	}

	out := &genai.Schema{
		Type:        toGenaiType(s.Type),
		Description: s.Description,
		Minimum:     s.Minimum,
		Maximum:     s.Maximum,
	}

	if len(s.Required) > 0 {
		out.Required = append([]string(nil), s.Required...)
	}
	if len(s.Properties) > 0 {
		out.Properties = make(map[string]*genai.Schema, len(s.Properties))
		for name, prop := range s.Properties {
			out.Properties[name] = toGenaiSchema(prop)
		}
	}
	if s.Items != nil {
		out.Items = toGenaiSchema(s.Items)
	}
	for _, v := range s.Enum {
		if str, ok := v.(string); ok {
			out.Enum = append(out.Enum, str)
		}
	}
	return out
}

func toGenaiType(t string) genai.Type {
	switch t {
	case "object":
		return genai.TypeObject
	case "string":
		return genai.TypeString
	case "integer":
		return genai.TypeInteger
	case "number":
		return genai.TypeNumber
	case "boolean":
		return genai.TypeBoolean
	case "array":
		return genai.TypeArray
	default:
		return genai.TypeUnspecified
	}
}
