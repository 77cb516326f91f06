package exec

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/paradigmxyz/jitevm/pkg/bytecode"
	"github.com/paradigmxyz/jitevm/pkg/jit/cfg"
	"github.com/paradigmxyz/jitevm/pkg/opcode"
)

// fakeCtx is a minimal RunCtx good enough to exercise compiled programs
// without pulling in pkg/jit (which would be a cyclical import here).
type fakeCtx struct {
	stack     []uint256.Int
	memory    []byte
	calldata  []byte
	callValue uint256.Int
	caller    uint256.Int
	origin    uint256.Int
	retval    uint64
	storage   map[uint256.Int]uint256.Int
}

func newFakeCtx() *fakeCtx {
	return &fakeCtx{storage: make(map[uint256.Int]uint256.Int)}
}

func (c *fakeCtx) Push(v uint256.Int) { c.stack = append(c.stack, v) }
func (c *fakeCtx) Pop() uint256.Int {
	v := c.stack[len(c.stack)-1]
	c.stack = c.stack[:len(c.stack)-1]
	return v
}
func (c *fakeCtx) Peek(i int) uint256.Int      { return c.stack[len(c.stack)-i] }
func (c *fakeCtx) PokeAt(i int, v uint256.Int) { c.stack[len(c.stack)-i] = v }
func (c *fakeCtx) LoadMemory(offset uint64) uint256.Int {
	c.ensure(int(offset) + 32)
	var v uint256.Int
	v.SetBytes32(c.memory[offset : offset+32])
	return v
}
func (c *fakeCtx) StoreMemory(offset uint64, v uint256.Int) {
	c.ensure(int(offset) + 32)
	buf := v.Bytes32()
	copy(c.memory[offset:offset+32], buf[:])
}
func (c *fakeCtx) StoreMemoryByte(offset uint64, v uint256.Int) {
	c.ensure(int(offset) + 1)
	c.memory[offset] = byte(v.Uint64())
}
func (c *fakeCtx) ensure(n int) {
	if n > len(c.memory) {
		grown := make([]byte, n)
		copy(grown, c.memory)
		c.memory = grown
	}
}
func (c *fakeCtx) LoadCallData(offset uint64) uint256.Int {
	var buf [32]byte
	if offset < uint64(len(c.calldata)) {
		copy(buf[:], c.calldata[offset:])
	}
	var v uint256.Int
	v.SetBytes32(buf[:])
	return v
}
func (c *fakeCtx) CallDataSize() uint64      { return uint64(len(c.calldata)) }
func (c *fakeCtx) CallValue() uint256.Int    { return c.callValue }
func (c *fakeCtx) Caller() uint256.Int       { return c.caller }
func (c *fakeCtx) Origin() uint256.Int       { return c.origin }
func (c *fakeCtx) Retval() uint64            { return c.retval }
func (c *fakeCtx) SetRetval(v uint64)        { c.retval = v }
func (c *fakeCtx) InvokeCallback(name string) uint64 {
	switch name {
	case "SLOAD":
		key := c.Pop()
		c.Push(c.storage[key])
		return 0
	case "SSTORE":
		key := c.Pop()
		val := c.Pop()
		if val.IsZero() {
			delete(c.storage, key)
		} else {
			c.storage[key] = val
		}
		return 0
	default:
		return statusInvalidOpcode
	}
}

func compileHex(t *testing.T, raw []byte) *Program {
	t.Helper()
	code, err := bytecode.Decode(raw, opcode.Strict)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ic := bytecode.Index(bytecode.Augment(code))
	f, err := cfg.Build(ic)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	if err := f.Verify(); err != nil {
		t.Fatalf("cfg.Verify: %v", err)
	}
	return Compile(f)
}

func TestAddStop(t *testing.T) {
	// PUSH1 3; PUSH1 5; ADD; STOP
	raw := []byte{
		byte(opcode.PUSH1), 0x03,
		byte(opcode.PUSH1), 0x05,
		byte(opcode.ADD),
		byte(opcode.STOP),
	}
	p := compileHex(t, raw)
	ctx := newFakeCtx()
	status := p.Run(ctx)
	if status != 0 {
		t.Fatalf("status = %d, want 0", status)
	}
	if len(ctx.stack) != 1 || ctx.stack[0].Uint64() != 8 {
		t.Fatalf("stack = %v, want [8]", ctx.stack)
	}
}

func TestInvalidJump(t *testing.T) {
	// PUSH1 4; JUMP -- offset 4 is not a JUMPDEST (there is no JUMPDEST anywhere).
	raw := []byte{byte(opcode.PUSH1), 0x04, byte(opcode.JUMP)}
	p := compileHex(t, raw)
	ctx := newFakeCtx()
	status := p.Run(ctx)
	if status != 1 {
		t.Fatalf("status = %d, want 1 (invalid jump)", status)
	}
}

// TestTriangularLoop exercises a genuine back-edge: a JUMPDEST reached
// both by fallthrough (the first time) and by a fused AugmentedPushJump
// (every subsequent iteration), which is exactly the HasPhi() shape
// pkg/jit/cfg's TestBuildLoopHasPhi checks structurally. It accumulates
// sum(n, n-1, ..., 1, 0) -- simple enough to hand-verify the exact
// result, unlike a literal large-N Fibonacci run.
//
// Layout, stack kept as [counter, acc] throughout (acc on top):
//
//	PUSH1 n; PUSH1 0                          ; counter=n, acc=0
//	loopHead:
//	  DUP2; ISZERO; PUSH1 <end>; JUMPI         ; if counter==0 goto end
//	  DUP2; ADD                                ; acc += counter
//	  SWAP1; PUSH1 1; SWAP1; SUB; SWAP1        ; counter -= 1
//	  PUSH1 <loopHead>; JUMP                   ; fuses to AugmentedPushJump
//	end:
//	  SWAP1; POP; STOP                         ; leave acc on top
func TestTriangularLoop(t *testing.T) {
	const n = 4
	asm := []byte{}
	push1 := func(v byte) {
		asm = append(asm, byte(opcode.PUSH1), v)
	}
	op := func(o opcode.OpCode) {
		asm = append(asm, byte(o))
	}

	push1(n)
	push1(0)
	loopHeadIdx := len(asm)
	op(opcode.JUMPDEST)
	op(opcode.DUP2)
	op(opcode.ISZERO)
	endOperandIdx := len(asm) + 1
	push1(0) // placeholder, patched below
	op(opcode.JUMPI)
	op(opcode.DUP2)
	op(opcode.ADD)
	op(opcode.SWAP1)
	push1(1)
	op(opcode.SWAP1)
	op(opcode.SUB)
	op(opcode.SWAP1)
	push1(byte(loopHeadIdx)) // fuses with the JUMP below
	op(opcode.JUMP)
	endIdx := len(asm)
	op(opcode.JUMPDEST)
	op(opcode.SWAP1)
	op(opcode.POP)
	op(opcode.STOP)

	asm[endOperandIdx] = byte(endIdx)

	f := buildCFG(t, asm)
	loopHeadBlock := findJumpdestBlock(t, f, loopHeadIdx)
	if !loopHeadBlock.HasPhi() {
		t.Fatalf("loop head block should be reachable from both the initial fallthrough and the back-edge")
	}

	p := Compile(f)
	ctx := newFakeCtx()
	status := p.Run(ctx)
	if status != 0 {
		t.Fatalf("status = %d, want 0", status)
	}
	if len(ctx.stack) != 1 {
		t.Fatalf("stack = %v, want a single accumulated result", ctx.stack)
	}
	const want = n * (n + 1) / 2
	if got := ctx.stack[0].Uint64(); got != want {
		t.Fatalf("sum 1..%d = %d, want %d", n, got, want)
	}
}

func buildCFG(t *testing.T, raw []byte) *cfg.Func {
	t.Helper()
	code, err := bytecode.Decode(raw, opcode.Strict)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ic := bytecode.Index(bytecode.Augment(code))
	f, err := cfg.Build(ic)
	if err != nil {
		t.Fatalf("cfg.Build: %v", err)
	}
	if err := f.Verify(); err != nil {
		t.Fatalf("cfg.Verify: %v", err)
	}
	return f
}

func findJumpdestBlock(t *testing.T, f *cfg.Func, byteOffset int) *cfg.Block {
	t.Helper()
	for _, b := range f.Blocks {
		if b.Kind == cfg.KindOp && b.Op.Kind == opcode.KindPlain && b.Op.Code == opcode.JUMPDEST {
			// Opidx-to-offset comparison isn't available post-hoc here;
			// the block's own label encodes its opidx. This
			// hand-assembled program has two JUMPDESTs, and op blocks
			// are in op order, so the first one found is the loop head.
			return b
		}
	}
	t.Fatalf("no JUMPDEST block found for byte offset %d", byteOffset)
	return nil
}

func TestSloadSstoreRoundTrip(t *testing.T) {
	// PUSH1 42; PUSH1 7; SSTORE; PUSH1 7; SLOAD; STOP
	raw := []byte{
		byte(opcode.PUSH1), 42,
		byte(opcode.PUSH1), 7,
		byte(opcode.SSTORE),
		byte(opcode.PUSH1), 7,
		byte(opcode.SLOAD),
		byte(opcode.STOP),
	}
	p := compileHex(t, raw)
	ctx := newFakeCtx()
	status := p.Run(ctx)
	if status != 0 {
		t.Fatalf("status = %d, want 0", status)
	}
	if len(ctx.stack) != 1 || ctx.stack[0].Uint64() != 42 {
		t.Fatalf("stack = %v, want [42]", ctx.stack)
	}
	key := *uint256.NewInt(7)
	if v := ctx.storage[key]; v.Uint64() != 42 {
		t.Fatalf("storage[7] = %v, want 42", v)
	}
}

func TestTrappedOpcodeSetsStatusThree(t *testing.T) {
	// SHA3 alone would underflow a real stack, but the trap fires before
	// any operand access: the compiled block sets retval and halts
	// without touching ctx's stack at all.
	raw := []byte{byte(opcode.SHA3)}
	p := compileHex(t, raw)
	ctx := newFakeCtx()
	status := p.Run(ctx)
	if status != 3 {
		t.Fatalf("status = %d, want 3 (invalid opcode / trap)", status)
	}
}

func TestRevertSetsStatusTwo(t *testing.T) {
	raw := []byte{byte(opcode.REVERT)}
	p := compileHex(t, raw)
	ctx := newFakeCtx()
	status := p.Run(ctx)
	if status != 2 {
		t.Fatalf("status = %d, want 2 (revert)", status)
	}
}
