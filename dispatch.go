package symex

import "context"

// External dispatches a call to a function this module has no body
// for - a libc routine, a syscall wrapper, anything outside the
// prepared instruction table. Implementations decide whether to model
// the call symbolically, marshal concrete memory out and back in
// around a real native call, or terminate the state.
type External interface {
	// Call handles a call to name with the given arguments, returning
	// the KValue bound to the call's result register (nil if the
	// function returns void). Call may mutate state directly, including
	// terminating it on a modeling failure or an external fault.
	Call(ctx context.Context, state *ExecutionState, name string, args []KValue) (*KValue, error)
}

// ExternalFunc adapts a plain function into an External, the usual
// single-method-interface-as-function-type adapter idiom.
type ExternalFunc func(ctx context.Context, state *ExecutionState, name string, args []KValue) (*KValue, error)

// Call implements External.
func (f ExternalFunc) Call(ctx context.Context, state *ExecutionState, name string, args []KValue) (*KValue, error) {
	return f(ctx, state, name, args)
}

// ExternalTable dispatches by function name to a registered handler,
// terminating the state with ProgramErrorExternal on a miss.
type ExternalTable struct {
	handlers map[string]External
}

// NewExternalTable returns a new, empty dispatch table.
func NewExternalTable() *ExternalTable {
	return &ExternalTable{handlers: make(map[string]External)}
}

// Register binds name to handler, overwriting any previous binding.
func (t *ExternalTable) Register(name string, handler External) {
	t.handlers[name] = handler
}

// RegisterFunc is a convenience wrapper around Register for a plain
// function.
func (t *ExternalTable) RegisterFunc(name string, fn ExternalFunc) {
	t.Register(name, fn)
}

// Call implements External.
func (t *ExternalTable) Call(ctx context.Context, state *ExecutionState, name string, args []KValue) (*KValue, error) {
	h, ok := t.handlers[name]
	if !ok {
		state.Terminate(NewProgramError(ProgramErrorExternal, "", "unmodeled external function: %s", name))
		return nil, nil
	}
	return h.Call(ctx, state, name, args)
}
