package jit

// Callback is the Go rendering of spec §4.5.6's host callback ABI:
// `extern "C" fn(ctx_ptr: usize, sp: usize) -> u64`. The C signature's
// "read operands by pointer arithmetic from (sp - k*ELEM_SIZE), overwrite
// the slot at sp-1" is expressed here as the callback operating directly
// on ctx's stack through its pop/push/peek primitives — the callback
// runs on the same logical stack the compiled code owns, it is simply
// written in Go instead of emitted as IR. The callback's own pop count
// must match what its caller's codegen expects to have consumed (spec
// §4.5.6: "the JIT code, after calling a callback, updates sp to reflect
// the logical pop count of the operation").
//
// Return value 0 means success; nonzero propagates as the compiled
// function's status code, exactly like a runtime error code (spec §7:
// "callback-reported storage errors propagate as their own nonzero
// codes").
type Callback func(ctx *ExecutionContext) (status uint64)

// CallbackTable binds externalized opcodes to host callbacks, keyed by
// mnemonic rather than opcode.OpCode so CompileOptions.Callbacks can be
// constructed without importing pkg/opcode in simple cases.
type CallbackTable map[string]Callback

// DefaultCallbacks returns the storage-backed SLOAD/SSTORE callbacks
// spec §4.5.6 describes: SLOAD pops a key and pushes storage[key]
// (zero-default-on-read, spec §3); SSTORE pops a key and a value and
// writes storage[key] = value.
func DefaultCallbacks() CallbackTable {
	return CallbackTable{
		"SLOAD": func(ctx *ExecutionContext) uint64 {
			key := ctx.pop()
			val := ctx.Storage[key]
			ctx.push(val)
			return 0
		},
		"SSTORE": func(ctx *ExecutionContext) uint64 {
			key := ctx.pop()
			val := ctx.pop()
			if val.IsZero() {
				delete(ctx.Storage, key)
			} else {
				ctx.Storage[key] = val
			}
			return 0
		},
	}
}

// merge overlays override onto the default table, letting callers (tests
// especially) replace a single callback without losing the other
// defaults.
func (t CallbackTable) merge(override CallbackTable) CallbackTable {
	out := make(CallbackTable, len(t)+len(override))
	for k, v := range t {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}
