package registry

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"
)

func ptr[T any](v T) *T { return &v }

func noopHandler(_ context.Context, _ map[string]any) (map[string]any, error) {
	return map[string]any{}, nil
}

// inventorySchema mirrors the get_usage_history shape: one required
// bounded integer and two optional strings.
func historySchema() *jsonschema.Schema {
	return &jsonschema.Schema{
		Type: "object",
		Properties: map[string]*jsonschema.Schema{
			"months": {
				Type:        "integer",
				Description: "Months of history to fetch",
				Minimum:     ptr(1.0),
				Maximum:     ptr(24.0),
			},
			"spare_part_id": {Type: "string"},
			"center_id":     {Type: "string"},
		},
		Required: []string{"months"},
	}
}

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := New()
	err := r.Register(FunctionSpec{
		Name:        "get_usage_history",
		Description: "Fetch spare-part usage history",
		Parameters:  historySchema(),
		Handler:     noopHandler,
	})
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	return r
}

func TestRegister_Duplicate(t *testing.T) {
	r := newTestRegistry(t)

	err := r.Register(FunctionSpec{
		Name:       "get_usage_history",
		Parameters: historySchema(),
		Handler:    noopHandler,
	})
	if !errors.Is(err, ErrDuplicateFunction) {
		t.Fatalf("expected ErrDuplicateFunction, got %v", err)
	}
}

func TestRegister_RejectsIncompleteSpec(t *testing.T) {
	tests := []struct {
		name string
		spec FunctionSpec
	}{
		{"missing name", FunctionSpec{Parameters: historySchema(), Handler: noopHandler}},
		{"missing schema", FunctionSpec{Name: "x", Handler: noopHandler}},
		{"missing handler", FunctionSpec{Name: "x", Parameters: historySchema()}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := New().Register(tt.spec); err == nil {
				t.Error("expected error, got nil")
			}
		})
	}
}

func TestResolve_Unknown(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Resolve("get_weather")
	if !errors.Is(err, ErrUnknownFunction) {
		t.Fatalf("expected ErrUnknownFunction, got %v", err)
	}
}

func TestValidate_MissingRequiredNamesArgument(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Validate("get_usage_history", map[string]any{"center_id": "C-01"})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	found := false
	for _, v := range verr.Violations {
		if v.Argument == "months" {
			found = true
		}
	}
	if !found {
		t.Errorf("violations do not name the missing argument: %v", verr.Violations)
	}
}

func TestValidate_CollectsAllViolations(t *testing.T) {
	r := newTestRegistry(t)

	// Three independent problems in one request: months out of range,
	// spare_part_id wrong type, and an undeclared argument.
	_, err := r.Validate("get_usage_history", map[string]any{
		"months":        float64(99),
		"spare_part_id": 42,
		"garnish":       true,
	})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
	if len(verr.Violations) != 3 {
		t.Fatalf("expected 3 violations, got %d: %v", len(verr.Violations), verr.Violations)
	}
	msg := verr.Error()
	for _, arg := range []string{"months", "spare_part_id", "garnish"} {
		if !strings.Contains(msg, arg) {
			t.Errorf("error message missing %q: %s", arg, msg)
		}
	}
}

func TestValidate_NormalizesIntegers(t *testing.T) {
	r := newTestRegistry(t)

	// The model SDK delivers JSON numbers as float64.
	validated, err := r.Validate("get_usage_history", map[string]any{"months": float64(6)})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if got, ok := validated["months"].(int64); !ok || got != 6 {
		t.Errorf("months = %v (%T), want int64(6)", validated["months"], validated["months"])
	}
}

func TestValidate_RejectsFractionalInteger(t *testing.T) {
	r := newTestRegistry(t)

	_, err := r.Validate("get_usage_history", map[string]any{"months": 5.5})

	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected *ValidationError, got %v", err)
	}
}

func TestDeclarations_PreserveRegistrationOrder(t *testing.T) {
	r := New()
	for _, name := range []string{"get_spare_parts", "get_inventory", "get_usage_history"} {
		err := r.Register(FunctionSpec{
			Name:       name,
			Parameters: &jsonschema.Schema{Type: "object"},
			Handler:    noopHandler,
		})
		if err != nil {
			t.Fatalf("Register(%s): %v", name, err)
		}
	}

	decls := r.Declarations()
	if len(decls) != 3 {
		t.Fatalf("expected 3 declarations, got %d", len(decls))
	}
	want := []string{"get_spare_parts", "get_inventory", "get_usage_history"}
	for i, d := range decls {
		if d.Name != want[i] {
			t.Errorf("declaration %d = %s, want %s", i, d.Name, want[i])
		}
	}
}

func TestDeclarations_CarryConstraints(t *testing.T) {
	r := newTestRegistry(t)

	decls := r.Declarations()
	params := decls[0].Parameters
	months, ok := params.Properties["months"]
	if !ok {
		t.Fatal("months property missing from declaration")
	}
	if months.Minimum == nil || *months.Minimum != 1 {
		t.Errorf("minimum not carried over: %v", months.Minimum)
	}
	if len(params.Required) != 1 || params.Required[0] != "months" {
		t.Errorf("required not carried over: %v", params.Required)
	}
}
