// Package model wraps the Gemini client behind the adapter the
// orchestrator consumes: one Converse call per model round-trip,
// returning either a final answer or a batch of function-call requests.
package model

// Role identifies the author of a context message.
type Role string

const (
	// RoleUser is end-user input (and textual function-result context
	// carried over from previous turns).
	RoleUser Role = "user"

	// RoleModel is a previous model reply or an in-turn call request.
	RoleModel Role = "model"

	// RoleFunction is an in-turn function result, paired with the
	// model's request so the API sees call and response together.
	RoleFunction Role = "function"
)

// Message is one element of the context sent to the model.
type Message struct {
	Role Role

	// Text for user and model messages.
	Text string

	// Calls set on a RoleModel message replays the function calls the
	// model requested earlier in this turn.
	Calls []CallRequest

	// Function and Payload set on RoleFunction messages carry a
	// function result back to the model.
	Function string
	Payload  map[string]any
}

// CallRequest is a model-issued request to execute one function.
// Order among sibling requests carries no dependency guarantee.
type CallRequest struct {
	Name string
	Args map[string]any
}

// Kind tags the two variants of a model turn result.
type Kind int

const (
	// KindFinal means the model produced a natural-language answer.
	KindFinal Kind = iota

	// KindCalls means the model requested one or more function calls.
	KindCalls
)

// TurnResult is the tagged outcome of one Converse round-trip.
type TurnResult struct {
	Kind  Kind
	Text  string        // set when Kind == KindFinal
	Calls []CallRequest // set when Kind == KindCalls, in reply order
}
