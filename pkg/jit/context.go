package jit

import (
	"github.com/holiman/uint256"
)

// ElemSize is the byte width of one stack slot (spec §4.5.3: "256-bit
// integers; sp is byte-addressed").
const ElemSize = 32

// DefaultStackWords is the EVM's defined stack depth (spec §3:
// "at least 1024 256-bit words").
const DefaultStackWords = 1024

// DefaultMemoryLimit is the memory limit a context records when none is
// given (spec §9: "e.g. 4 MiB, sufficient for the 30M-gas block limit").
// Memory growth is not checked against it.
const DefaultMemoryLimit = 4 * 1024 * 1024

// ExecutionContext is the three owned regions a compiled contract reads
// and writes (spec §3 "Execution Context"): a 256-bit-word stack, a
// byte-addressable memory, and a key/value storage map. It is created
// empty per invocation by the caller, mutated during execution, and
// inspected afterward.
//
// The compiled-function ABI of spec §6 describes ctx_ptr as a pointer to
// a three-word record of raw pointers; ExecutionContext is the
// Go-idiomatic rendering of that record; a compiled *CompiledContract's
// Run method takes *ExecutionContext directly rather than an untyped
// pointer, since Go gives up nothing by being precise here.
type ExecutionContext struct {
	stack []uint256.Int
	sp    int

	Memory []byte
	memLen int

	Storage map[uint256.Int]uint256.Int

	callData  []byte
	callValue uint256.Int
	caller    uint256.Int
	origin    uint256.Int

	memoryLimit int

	retval    uint64
	callbacks CallbackTable
}

// SetCallData, SetCallValue, SetCaller and SetOrigin seed the
// environment values a caller (cmd/evmjit, or a test harness) wants a
// compiled contract to observe; a fresh ExecutionContext has all of
// them zero.
func (ctx *ExecutionContext) SetCallData(b []byte)          { ctx.callData = b }
func (ctx *ExecutionContext) SetCallValue(v uint256.Int)    { ctx.callValue = v }
func (ctx *ExecutionContext) SetCaller(v uint256.Int)       { ctx.caller = v }
func (ctx *ExecutionContext) SetOrigin(v uint256.Int)       { ctx.origin = v }
func (ctx *ExecutionContext) SetCallbacks(t CallbackTable)  { ctx.callbacks = t }

// Retval is the status code the compiled function is building up to
// return (spec §7); SetRetval is how op lowering records it.
func (ctx *ExecutionContext) Retval() uint64     { return ctx.retval }
func (ctx *ExecutionContext) SetRetval(v uint64) { ctx.retval = v }

// InvokeCallback dispatches to the named host callback (spec §4.5.6); an
// unbound name (no callback registered) traps with StatusInvalidOpcode
// rather than panicking, since the externalized-opcode set is determined
// by CompileOptions.Callbacks, not by the CFG.
func (ctx *ExecutionContext) InvokeCallback(name string) uint64 {
	cb, ok := ctx.callbacks[name]
	if !ok {
		return StatusInvalidOpcode
	}
	return cb(ctx)
}

// Push, Pop, Peek, PokeAt, LoadMemory, StoreMemory, StoreMemoryByte,
// LoadCallData and CallDataSize are the exported forms of this type's
// stack/memory/calldata primitives, existing so pkg/jit/exec (which
// cannot import pkg/jit without a cycle) can drive a context through the
// exec.RunCtx interface.
func (ctx *ExecutionContext) Push(v uint256.Int)                 { ctx.push(v) }
func (ctx *ExecutionContext) Pop() uint256.Int                    { return ctx.pop() }
func (ctx *ExecutionContext) Peek(i int) uint256.Int              { return ctx.peek(i) }
func (ctx *ExecutionContext) PokeAt(i int, v uint256.Int)         { ctx.pokeAt(i, v) }
func (ctx *ExecutionContext) LoadMemory(offset uint64) uint256.Int { return ctx.loadMemory(offset) }
func (ctx *ExecutionContext) StoreMemory(offset uint64, v uint256.Int) {
	ctx.storeMemory(offset, v)
}
func (ctx *ExecutionContext) StoreMemoryByte(offset uint64, v uint256.Int) {
	ctx.storeMemoryByte(offset, v)
}
func (ctx *ExecutionContext) LoadCallData(offset uint64) uint256.Int {
	return ctx.loadCallData(offset)
}
func (ctx *ExecutionContext) CallDataSize() uint64 { return uint64(len(ctx.callData)) }
func (ctx *ExecutionContext) CallValue() uint256.Int { return ctx.callValue }
func (ctx *ExecutionContext) Caller() uint256.Int    { return ctx.caller }
func (ctx *ExecutionContext) Origin() uint256.Int    { return ctx.origin }

// NewExecutionContext allocates a context with the given stack capacity
// (in words) and records the given memory limit (in bytes); memory
// growth does not check that limit. Storage starts empty;
// reads of an absent key return zero (spec §3: "zero-default-on-read").
func NewExecutionContext(stackWords, memoryLimit int) *ExecutionContext {
	if stackWords <= 0 {
		stackWords = DefaultStackWords
	}
	if memoryLimit <= 0 {
		memoryLimit = DefaultMemoryLimit
	}
	return &ExecutionContext{
		stack:       make([]uint256.Int, stackWords),
		Storage:     make(map[uint256.Int]uint256.Int),
		memoryLimit: memoryLimit,
	}
}

// StackLen returns the number of words currently on the stack.
func (ctx *ExecutionContext) StackLen() int { return ctx.sp }

// StackTop returns a copy of the top of the stack, or a zero value if the
// stack is empty. Used by tests and cmd/evmjit to inspect results; the
// compiled contract's own codegen never calls this (it inlines push/pop
// per spec §4.5.3).
func (ctx *ExecutionContext) StackTop() uint256.Int {
	if ctx.sp == 0 {
		return uint256.Int{}
	}
	return ctx.stack[ctx.sp-1]
}

// StackAt returns a copy of the i-th word from the bottom of the stack
// (0-indexed).
func (ctx *ExecutionContext) StackAt(i int) uint256.Int {
	return ctx.stack[i]
}

// push implements spec §4.5.3 push(v): store v at [sp], then advance sp
// by one slot (sp here counts words, not bytes).
func (ctx *ExecutionContext) push(v uint256.Int) {
	ctx.stack[ctx.sp] = v
	ctx.sp++
}

// pop implements spec §4.5.3 pop(): move sp back by one slot (one word);
// load [sp].
func (ctx *ExecutionContext) pop() uint256.Int {
	ctx.sp--
	return ctx.stack[ctx.sp]
}

// peek implements spec §4.5.3 read(i): load [sp - i*ELEM_SIZE], 1-indexed
// from the top (i=1 is the current top).
func (ctx *ExecutionContext) peek(i int) uint256.Int {
	return ctx.stack[ctx.sp-i]
}

// pokeAt implements spec §4.5.3 write(i, v): store at [sp - i*ELEM_SIZE].
func (ctx *ExecutionContext) pokeAt(i int, v uint256.Int) {
	ctx.stack[ctx.sp-i] = v
}

// ensureMemory grows Memory, zero-extending, so that it is at least
// length bytes (spec §9: "reads past the current touched length return
// 0"; writes force the region to grow to cover them).
func (ctx *ExecutionContext) ensureMemory(length int) {
	if length <= ctx.memLen {
		return
	}
	if length > len(ctx.Memory) {
		grown := make([]byte, length)
		copy(grown, ctx.Memory)
		ctx.Memory = grown
	}
	ctx.memLen = length
}

// loadMemory reads a 32-byte big-endian word at the given byte offset,
// zero-extending past the touched length (spec §4.5.4 MLOAD).
func (ctx *ExecutionContext) loadMemory(offset uint64) uint256.Int {
	ctx.ensureMemory(int(offset) + 32)
	var v uint256.Int
	v.SetBytes32(ctx.Memory[offset : offset+32])
	return v
}

// storeMemory writes a 32-byte big-endian word at the given byte offset
// (spec §4.5.4 MSTORE).
func (ctx *ExecutionContext) storeMemory(offset uint64, v uint256.Int) {
	ctx.ensureMemory(int(offset) + 32)
	buf := v.Bytes32()
	copy(ctx.Memory[offset:offset+32], buf[:])
}

// storeMemoryByte writes the low byte of v at the given offset (spec
// §4.5.4 MSTORE8).
func (ctx *ExecutionContext) storeMemoryByte(offset uint64, v uint256.Int) {
	ctx.ensureMemory(int(offset) + 1)
	ctx.Memory[offset] = byte(v.Uint64())
}

// loadCallData reads 32 bytes of calldata starting at offset,
// zero-extending past the end (spec §4.5.4 CALLDATALOAD).
func (ctx *ExecutionContext) loadCallData(offset uint64) uint256.Int {
	var buf [32]byte
	if offset < uint64(len(ctx.callData)) {
		copy(buf[:], ctx.callData[offset:])
	}
	var v uint256.Int
	v.SetBytes32(buf[:])
	return v
}
