package mdk

// Result tells the dispatcher how to proceed after a handler ran.
type Result int

const (
	// Continue with the next handler or group.
	Continue Result = iota
	// Skip the remaining fields of the current group.
	Skip
	// Stop building the record and drop it. The record is not handed to the
	// sink.
	Stop
)

func (r Result) String() string {
	switch r {
	case Continue:
		return "continue"
	case Skip:
		return "skip"
	case Stop:
		return "stop"
	}
	return "unknown"
}

// ElementHandler consumes the fields of one group and writes into the
// record's graph. value is the raw selector value of the fields passed.
// Handlers are shared by all workers and must not keep per-record state
// outside of BuildState.
type ElementHandler interface {
	Apply(group FieldGroup, value string, state *BuildState) (Result, error)
}

// ElementFunc adapts a function to ElementHandler.
type ElementFunc func(group FieldGroup, value string, state *BuildState) (Result, error)

// Apply calls f.
func (f ElementFunc) Apply(group FieldGroup, value string, state *BuildState) (Result, error) {
	return f(group, value, state)
}

// Named is implemented by handlers that have a name for diagnostics.
type Named interface {
	Name() string
}

type namedHandler struct {
	ElementHandler
	name string
}

func (n namedHandler) Name() string { return n.name }

// WithName gives h a diagnostic name.
func WithName(name string, h ElementHandler) ElementHandler {
	return namedHandler{ElementHandler: h, name: name}
}
