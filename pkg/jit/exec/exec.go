// Package exec compiles a cfg.Func into a callable Go closure chain: the
// engine's one backend that actually runs a contract (spec §4.5's "native
// function"; see DESIGN.md for why code execution routes through this
// backend rather than through pkg/jit/backend/llvmir).
//
// Each cfg.Block compiles once, ahead of time, into a blockFunc closure
// that performs that block's semantic work and returns the ID of the
// block to run next (or -1 once retval is final). Run then walks that
// array by index instead of re-dispatching on the opcode on every
// iteration -- the same "compile once, interpret the compiled form
// repeatedly" shape as a bytecode interpreter, except the unit of
// dispatch is a closure per basic block rather than per opcode.
//
// Go's own calling convention already merges the bookkeeping tuple
// (spec §4.5.1: stackbase, sp, retval) at every confluence point: two
// blockFuncs that both jump to the same successor both do so by
// returning that successor's ID, and the next iteration of Run's loop
// reads whatever ctx.sp/retval those funcs left behind. That is the
// operational equivalent of a φ-node with no separate representation
// needed. The φ-nodes spec §4.5.5 mandates are instead built explicitly
// by pkg/jit/backend/llvmir, which does need them because LLVM IR has no
// implicit fallthrough state.
package exec

import (
	"fmt"

	"github.com/holiman/uint256"
	"github.com/paradigmxyz/jitevm/pkg/arith"
	"github.com/paradigmxyz/jitevm/pkg/jit/cfg"
	"github.com/paradigmxyz/jitevm/pkg/opcode"
)

// Status codes mirror pkg/jit's StatusOK/StatusInvalidJump/StatusRevert/
// StatusInvalidOpcode (spec §7). exec cannot import pkg/jit -- pkg/jit
// imports exec -- so the numeric values are duplicated here rather than
// named from there; keep the two definitions in lockstep.
const (
	statusOK            = 0
	statusInvalidJump   = 1
	statusRevert        = 2
	statusInvalidOpcode = 3
)

// RunCtx is the minimal surface exec needs from the engine's execution
// context; it is satisfied by *jit.ExecutionContext without exec
// importing pkg/jit (which itself imports exec), avoiding a cycle.
type RunCtx interface {
	Push(v uint256.Int)
	Pop() uint256.Int
	Peek(i int) uint256.Int
	PokeAt(i int, v uint256.Int)
	LoadMemory(offset uint64) uint256.Int
	StoreMemory(offset uint64, v uint256.Int)
	StoreMemoryByte(offset uint64, v uint256.Int)
	LoadCallData(offset uint64) uint256.Int
	CallDataSize() uint64
	CallValue() uint256.Int
	Caller() uint256.Int
	Origin() uint256.Int
	Retval() uint64
	SetRetval(uint64)
	InvokeCallback(name string) uint64
}

// blockFunc performs one block's work against ctx and returns the ID of
// the successor block to run next. A negative return means Run should
// stop: ctx.Retval() already holds the final status.
type blockFunc func(ctx RunCtx) int

// Program is the compiled closure chain for one contract.
type Program struct {
	blocks []blockFunc
	entry  int
}

// Run executes the program to completion against ctx and returns the
// status code (spec §4.5's compiled-function ABI return value).
func (p *Program) Run(ctx RunCtx) uint64 {
	id := p.entry
	for id >= 0 {
		id = p.blocks[id](ctx)
	}
	return ctx.Retval()
}

// Compile lowers f into a Program. f must satisfy cfg.Func.Verify(); this
// is not re-checked here (the caller, pkg/jit.Compile, verifies once and
// shares the result with every backend).
func Compile(f *cfg.Func) *Program {
	p := &Program{blocks: make([]blockFunc, len(f.Blocks)), entry: f.Entry}
	for _, b := range f.Blocks {
		p.blocks[b.ID] = compileBlock(f, b)
	}
	return p
}

func compileBlock(f *cfg.Func, b *cfg.Block) blockFunc {
	switch b.Kind {
	case cfg.KindSetup:
		next := b.Next
		return func(ctx RunCtx) int { return next }

	case cfg.KindEnd:
		return func(ctx RunCtx) int { return -1 }

	case cfg.KindErrorJumpdest:
		return func(ctx RunCtx) int {
			ctx.SetRetval(statusInvalidJump)
			return -1
		}

	case cfg.KindCompare:
		target := new(uint256.Int).SetUint64(b.CompareOffset)
		match, miss := b.Next, b.Alt
		return func(ctx RunCtx) int {
			v := ctx.Peek(1) // the jump target sits at the top throughout the chain
			if v.Eq(target) {
				ctx.Pop()
				return match
			}
			return miss
		}

	case cfg.KindOp:
		return compileOp(f, b)

	default:
		panic("exec: unknown block kind")
	}
}

func compileOp(f *cfg.Func, b *cfg.Block) blockFunc {
	op := b.Op
	next := b.Next
	alt := b.Alt

	switch op.Kind {
	case opcode.KindPush:
		v := *op.Value
		return func(ctx RunCtx) int {
			ctx.Push(v)
			return next
		}

	case opcode.KindAugmentedPushJump:
		return func(ctx RunCtx) int { return next }

	case opcode.KindAugmentedPushJumpi:
		return func(ctx RunCtx) int {
			cond := ctx.Pop()
			if cond.IsZero() {
				return next // fallthrough
			}
			return alt // statically-resolved target
		}
	}

	if cfg.IsTrapped(op) {
		return func(ctx RunCtx) int {
			ctx.SetRetval(statusInvalidOpcode)
			return next
		}
	}

	switch op.Code {
	case opcode.STOP:
		return func(ctx RunCtx) int {
			ctx.SetRetval(statusOK)
			return next
		}
	case opcode.RETURN:
		return func(ctx RunCtx) int {
			ctx.SetRetval(statusOK)
			return next
		}
	case opcode.REVERT:
		return func(ctx RunCtx) int {
			ctx.SetRetval(statusRevert)
			return next
		}
	case opcode.INVALID:
		return func(ctx RunCtx) int {
			ctx.SetRetval(statusInvalidOpcode)
			return next
		}
	case opcode.JUMPDEST, opcode.PUSH0:
		if op.Code == opcode.PUSH0 {
			return func(ctx RunCtx) int {
				ctx.Push(uint256.Int{})
				return next
			}
		}
		return func(ctx RunCtx) int { return next }
	case opcode.POP:
		return func(ctx RunCtx) int {
			ctx.Pop()
			return next
		}
	case opcode.JUMP:
		// Target stays on top of the stack; the comparison chain (or the
		// fused AugmentedPushJump form, which never reaches here) is what
		// consumes it.
		return func(ctx RunCtx) int { return next }
	case opcode.JUMPI:
		// Stack order is target on top, cond beneath it (spec §4.5.4:
		// "pop target, then cond").
		return func(ctx RunCtx) int {
			cond := ctx.Peek(2)
			if cond.IsZero() {
				ctx.Pop() // target
				ctx.Pop() // cond
				return alt
			}
			target := ctx.Pop()
			ctx.Pop() // cond
			ctx.Push(target)
			return next // enters the comparison chain with target on top
		}
	}

	return compileArithAndMemOp(op, next)
}

// compileArithAndMemOp handles the arithmetic kernel ops, DUP/SWAP,
// memory ops, and the context-scalar ops -- everything compileOp didn't
// special-case above.
func compileArithAndMemOp(op opcode.Op, next int) blockFunc {
	switch op.Code {
	case opcode.ADD:
		return binary(arith.Add, next)
	case opcode.SUB:
		return binary(arith.Sub, next)
	case opcode.MUL:
		return binary(arith.Mul, next)
	case opcode.DIV:
		return binary(arith.Div, next)
	case opcode.SDIV:
		return binary(arith.Sdiv, next)
	case opcode.MOD:
		return binary(arith.Mod, next)
	case opcode.SMOD:
		return binary(arith.Smod, next)
	case opcode.EXP:
		return binary(arith.Exp, next)
	case opcode.LT:
		return binary(arith.Lt, next)
	case opcode.GT:
		return binary(arith.Gt, next)
	case opcode.EQ:
		return binary(arith.Eq, next)
	case opcode.SLT:
		return binary(arith.Slt, next)
	case opcode.SGT:
		return binary(arith.Sgt, next)
	case opcode.AND:
		return binary(arith.And, next)
	case opcode.OR:
		return binary(arith.Or, next)
	case opcode.XOR:
		return binary(arith.Xor, next)
	case opcode.SHL:
		return binary(arith.Shl, next)
	case opcode.SHR:
		return binary(arith.Shr, next)
	case opcode.SAR:
		return binary(arith.Sar, next)
	case opcode.BYTE:
		return binary(arith.Byte, next)
	case opcode.SIGNEXTEND:
		return binary(arith.Signextend, next)
	case opcode.ISZERO:
		return unaryPure(arith.Iszero, next)
	case opcode.NOT:
		return unaryPure(arith.Not, next)
	case opcode.ADDMOD:
		return ternary(arith.AddMod, next)
	case opcode.MULMOD:
		return ternary(arith.MulMod, next)
	case opcode.MLOAD:
		return func(ctx RunCtx) int {
			offset := ctx.Pop()
			ctx.Push(ctx.LoadMemory(offset.Uint64()))
			return next
		}
	case opcode.MSTORE:
		return func(ctx RunCtx) int {
			offset := ctx.Pop()
			v := ctx.Pop()
			ctx.StoreMemory(offset.Uint64(), v)
			return next
		}
	case opcode.MSTORE8:
		return func(ctx RunCtx) int {
			offset := ctx.Pop()
			v := ctx.Pop()
			ctx.StoreMemoryByte(offset.Uint64(), v)
			return next
		}
	case opcode.CALLDATALOAD:
		return func(ctx RunCtx) int {
			offset := ctx.Pop()
			ctx.Push(ctx.LoadCallData(offset.Uint64()))
			return next
		}
	case opcode.CALLDATASIZE:
		return func(ctx RunCtx) int {
			ctx.Push(*uint256.NewInt(ctx.CallDataSize()))
			return next
		}
	case opcode.CALLVALUE:
		return func(ctx RunCtx) int {
			ctx.Push(ctx.CallValue())
			return next
		}
	case opcode.CALLER:
		return func(ctx RunCtx) int {
			ctx.Push(ctx.Caller())
			return next
		}
	case opcode.ORIGIN:
		return func(ctx RunCtx) int {
			ctx.Push(ctx.Origin())
			return next
		}
	case opcode.SLOAD:
		return func(ctx RunCtx) int {
			status := ctx.InvokeCallback("SLOAD")
			if status != 0 {
				ctx.SetRetval(status)
				return -1
			}
			return next
		}
	case opcode.SSTORE:
		return func(ctx RunCtx) int {
			status := ctx.InvokeCallback("SSTORE")
			if status != 0 {
				ctx.SetRetval(status)
				return -1
			}
			return next
		}
	}

	if op.Code.IsDup() {
		n := op.Code.DupSize()
		return func(ctx RunCtx) int {
			ctx.Push(ctx.Peek(n))
			return next
		}
	}
	if op.Code.IsSwap() {
		n := op.Code.SwapSize()
		return func(ctx RunCtx) int {
			a := ctx.Peek(1)
			b := ctx.Peek(n + 1)
			ctx.PokeAt(1, b)
			ctx.PokeAt(n+1, a)
			return next
		}
	}

	// Unreachable: every non-trapped, non-special-cased opcode is listed
	// above or is a DUP/SWAP.
	panic("exec: unhandled opcode " + op.String())
}

// Disassemble renders f block-by-block as pseudo-assembly (spec §6 "Debug
// outputs: (b) assembly dump"). This backend has no native codegen (see
// DESIGN.md), so the dump describes the same lowering compileBlock
// performs -- one line per block naming its kind, its op (if any), and
// its successor edges -- rather than a machine-code listing.
func Disassemble(f *cfg.Func) string {
	var b []byte
	for _, blk := range f.Blocks {
		b = append(b, []byte(disasmLine(blk))...)
		b = append(b, '\n')
	}
	return string(b)
}

func disasmLine(b *cfg.Block) string {
	switch b.Kind {
	case cfg.KindOp:
		return fmt.Sprintf("block%d: %s  -> next=%d alt=%d", b.ID, b.Op.String(), b.Next, b.Alt)
	case cfg.KindCompare:
		return fmt.Sprintf("block%d: cmp target==0x%x  -> match=%d miss=%d", b.ID, b.CompareOffset, b.Next, b.Alt)
	default:
		return fmt.Sprintf("block%d: %s  -> next=%d alt=%d", b.ID, b.Kind, b.Next, b.Alt)
	}
}

func binary(f func(a, b *uint256.Int) *uint256.Int, next int) blockFunc {
	return func(ctx RunCtx) int {
		a := ctx.Pop()
		b := ctx.Pop()
		ctx.Push(*f(&a, &b))
		return next
	}
}

func ternary(f func(a, b, c *uint256.Int) *uint256.Int, next int) blockFunc {
	return func(ctx RunCtx) int {
		a := ctx.Pop()
		b := ctx.Pop()
		c := ctx.Pop()
		ctx.Push(*f(&a, &b, &c))
		return next
	}
}

func unaryPure(f func(a *uint256.Int) *uint256.Int, next int) blockFunc {
	return func(ctx RunCtx) int {
		a := ctx.Pop()
		ctx.Push(*f(&a))
		return next
	}
}
