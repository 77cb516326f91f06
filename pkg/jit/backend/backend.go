// Package backend declares the boundary between the JIT compiler and
// whatever turns a verified cfg.Func into a runnable or inspectable
// artifact. The SSA/IR builder and native backend are an explicitly
// out-of-scope black box (spec §1): pkg/jit depends only on this
// interface, never on a concrete builder's types, so a second backend
// could be added without touching pkg/jit's compile path.
//
// pkg/jit/backend/llvmir is the one concrete implementation shipped:
// it builds a real llir/llvm module with genuine φ-nodes. pkg/jit/exec
// is not a backend.Module implementation -- it compiles a cfg.Func
// straight to Go closures for actual execution (see DESIGN.md) and
// never needs a textual IR at all.
package backend

// Module is the minimal surface pkg/jit needs from an IR backend: a
// textual dump suitable for spec §6's "Debug outputs: (a) IR dump".
type Module interface {
	String() string
}
