// Package jit is the JIT compiler's top-level entry point: it lowers a
// contract's Indexed Code to a cfg.Func once, verifies it, and hands that
// same Func to every backend that needs it (spec §4.5 "the compiler's one
// job is to produce a CFG that every backend agrees on").
package jit

import (
	"fmt"
	"os"

	"github.com/paradigmxyz/jitevm/pkg/bytecode"
	"github.com/paradigmxyz/jitevm/pkg/jit/backend/llvmir"
	"github.com/paradigmxyz/jitevm/pkg/jit/cfg"
	"github.com/paradigmxyz/jitevm/pkg/jit/exec"
)

// CompiledContract is the callable result of Compile: an exec.Program
// wrapping the CFG-derived closure chain (spec §4.5's "native function"),
// plus the callback table Run installs on the caller's ExecutionContext
// and the IR dump, if one was built.
type CompiledContract struct {
	program   *exec.Program
	callbacks CallbackTable
	ir        string
}

// Compile builds ic into a CompiledContract. It always lowers through
// cfg.Build and verifies the result (spec §4.5.5's phi-completeness
// invariant); it always compiles the exec closure-chain backend, since
// that backend is what Run executes. When opts.IRDumpPath or
// opts.AsmDumpPath are set, it additionally builds the requested debug
// artifact (spec §6 "Debug outputs") and writes it out -- a failure to
// write a debug dump is reported but does not fail the compile, since the
// artifact is diagnostic, not load-bearing.
func Compile(ic bytecode.IndexedCode, opts CompileOptions) (*CompiledContract, error) {
	logger := opts.logger()

	f, err := cfg.Build(ic)
	if err != nil {
		return nil, newCompileError("cfg-build", err)
	}
	if err := f.Verify(); err != nil {
		return nil, newCompileError("cfg-verify", fmt.Errorf("%w: %v", ErrIRVerify, err))
	}

	program := exec.Compile(f)

	cc := &CompiledContract{
		program:   program,
		callbacks: opts.callbacks(),
	}

	if opts.IRDumpPath != "" {
		mod, err := llvmir.Build(f)
		if err != nil {
			logger.Warn("IR dump build failed", "error", err)
		} else {
			cc.ir = mod.String()
			if err := os.WriteFile(opts.IRDumpPath, []byte(cc.ir), 0o644); err != nil {
				logger.Warn("writing IR dump failed", "path", opts.IRDumpPath, "error", err)
			}
		}
	}
	if opts.AsmDumpPath != "" {
		asm := exec.Disassemble(f)
		if err := os.WriteFile(opts.AsmDumpPath, []byte(asm), 0o644); err != nil {
			logger.Warn("writing asm dump failed", "path", opts.AsmDumpPath, "error", err)
		}
	}

	logger.Debug("compiled contract", "blocks", len(f.Blocks))
	return cc, nil
}

// IR returns the textual IR dump built during Compile, or "" if
// opts.IRDumpPath was not set (or the IR build failed).
func (cc *CompiledContract) IR() string { return cc.ir }

// Run executes the compiled contract against ctx, installing this
// contract's callback table first (a fresh ExecutionContext has none),
// and returns the status code (spec §7).
func (cc *CompiledContract) Run(ctx *ExecutionContext) uint64 {
	ctx.SetCallbacks(cc.callbacks)
	return cc.program.Run(ctx)
}
