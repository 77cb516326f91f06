package jit

import "github.com/paradigmxyz/jitevm/pkg/log"

// CompileOptions configures a single call to Compile, analogous to the
// teacher's vm.Config: a small, caller-constructed struct rather than a
// package-level global, so concurrent compilations of independent
// contracts (spec §5: "two independent contexts may be evaluated ... in
// parallel") never share mutable configuration.
type CompileOptions struct {
	// IRDumpPath, if non-empty, receives the textual LLVM-style IR built
	// by the llvmir backend before Compile returns (spec §6 "Debug
	// outputs: (a) IR dump").
	IRDumpPath string

	// AsmDumpPath, if non-empty, receives a textual pseudo-assembly
	// listing of the compiled closure chain (spec §6 "Debug outputs: (b)
	// assembly dump"). There is no native code generation in this
	// engine's exec backend (see DESIGN.md); the dump instead renders
	// the block-by-block lowering the exec backend actually runs, which
	// is the assembly-equivalent artifact for that backend.
	AsmDumpPath string

	// StackSize is the stack capacity in 256-bit words. Zero selects
	// DefaultStackWords. Compile and Run do not apply it: the stack a
	// contract runs on is the one the caller passed to
	// NewExecutionContext.
	StackSize int

	// MemoryLimit is a memory size in bytes. Zero selects
	// DefaultMemoryLimit. Compile and Run do not apply it, and memory
	// growth is not checked against any limit.
	MemoryLimit int

	// Callbacks overrides or extends DefaultCallbacks() for externalized
	// opcodes (spec §4.5.6).
	Callbacks CallbackTable

	// Logger receives compile-time logging; there is no per-op trace.
	// A nil Logger falls back to log.Default().Module("jit").
	Logger *log.Logger
}

func (o CompileOptions) logger() *log.Logger {
	if o.Logger != nil {
		return o.Logger
	}
	return log.Default().Module("jit")
}

func (o CompileOptions) callbacks() CallbackTable {
	return DefaultCallbacks().merge(o.Callbacks)
}

func (o CompileOptions) stackSize() int {
	if o.StackSize > 0 {
		return o.StackSize
	}
	return DefaultStackWords
}

func (o CompileOptions) memoryLimit() int {
	if o.MemoryLimit > 0 {
		return o.MemoryLimit
	}
	return DefaultMemoryLimit
}
