package jit

import (
	"errors"
	"fmt"
)

// Build-time failure sentinels (spec §7 "JIT build"): acquiring the
// backend, resolving a callback symbol, verifying the constructed
// module, and a block missing a φ incoming edge. Compile returns
// ErrIRVerify, wrapped in a *CompileError, when cfg.Func.Verify fails;
// the other three are not returned by Compile.
var (
	ErrBackendInit    = errors.New("jit: backend initialization failed")
	ErrSymbolLookup   = errors.New("jit: callback symbol lookup failed")
	ErrIRVerify       = errors.New("jit: IR verification failed")
	ErrUnreachablePhi = errors.New("jit: block reachable from multiple predecessors is missing a phi incoming edge")
)

// CompileError wraps whichever build-time sentinel fired plus context,
// surfaced to Compile's caller as "a single compile error" (spec §7).
type CompileError struct {
	Stage string
	Err   error
}

func (e *CompileError) Error() string {
	return fmt.Sprintf("jit: compile failed at %s: %v", e.Stage, e.Err)
}

func (e *CompileError) Unwrap() error { return e.Err }

func newCompileError(stage string, err error) *CompileError {
	return &CompileError{Stage: stage, Err: err}
}

// Runtime status codes returned from a compiled function (spec §7).
const (
	StatusOK            uint64 = 0
	StatusInvalidJump   uint64 = 1
	StatusRevert        uint64 = 2
	StatusInvalidOpcode uint64 = 3
)
