// Package reference is the JIT compiler's test oracle: a small
// tree-walking interpreter over the unfused bytecode.Code (it builds its
// own IndexedCode from it), named explicitly out of scope for production use
// (spec §1: "an alternative tree-walking interpreter (present only as
// an oracle for testing)"). Its checked stack -- reporting StackFull,
// StackEmpty, StackTooSmall (spec §7) -- gives pkg/jit's tests a second,
// independently-written implementation to compare a compiled program's
// result against.
package reference

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/paradigmxyz/jitevm/pkg/arith"
	"github.com/paradigmxyz/jitevm/pkg/bytecode"
	"github.com/paradigmxyz/jitevm/pkg/opcode"
)

// Sentinel errors matching spec §7's oracle failure vocabulary.
var (
	ErrStackFull     = errors.New("reference: stack full")
	ErrStackEmpty    = errors.New("reference: stack empty")
	ErrStackTooSmall = errors.New("reference: stack too small for operand count")
)

const stackLimit = 1024

// Stack is a checked 256-bit-word stack, grounded on the teacher's
// pkg/core/vm.Stack (push/pop/peek/swap/dup over a slice) but returning
// errors instead of panicking on over/underflow, since the oracle's
// entire job is to catch those conditions cleanly in a test assertion.
type Stack struct {
	data []uint256.Int
}

// NewStack returns an empty stack.
func NewStack() *Stack { return &Stack{data: make([]uint256.Int, 0, 16)} }

// Push appends v, failing with ErrStackFull past stackLimit.
func (s *Stack) Push(v uint256.Int) error {
	if len(s.data) >= stackLimit {
		return ErrStackFull
	}
	s.data = append(s.data, v)
	return nil
}

// Pop removes and returns the top word, failing with ErrStackEmpty.
func (s *Stack) Pop() (uint256.Int, error) {
	if len(s.data) == 0 {
		return uint256.Int{}, ErrStackEmpty
	}
	v := s.data[len(s.data)-1]
	s.data = s.data[:len(s.data)-1]
	return v, nil
}

// PeekN returns the n-th word from the top (0-indexed), failing with
// ErrStackTooSmall if the stack is shallower than n+1.
func (s *Stack) PeekN(n int) (uint256.Int, error) {
	if n >= len(s.data) {
		return uint256.Int{}, ErrStackTooSmall
	}
	return s.data[len(s.data)-1-n], nil
}

// SwapN exchanges the top word with the n-th word from the top.
func (s *Stack) SwapN(n int) error {
	if n >= len(s.data) {
		return ErrStackTooSmall
	}
	top := len(s.data) - 1
	s.data[top], s.data[top-n] = s.data[top-n], s.data[top]
	return nil
}

// DupN duplicates the n-th word from the top onto a fresh slot.
func (s *Stack) DupN(n int) error {
	v, err := s.PeekN(n)
	if err != nil {
		return err
	}
	return s.Push(v)
}

// Len returns the number of words on the stack.
func (s *Stack) Len() int { return len(s.data) }

// Bottom returns the bottom-most word (spec §8's end-to-end scenarios
// read "bottom of stack").
func (s *Stack) Bottom() (uint256.Int, error) {
	if len(s.data) == 0 {
		return uint256.Int{}, ErrStackEmpty
	}
	return s.data[0], nil
}

// Interpreter walks Indexed Code op-by-op, the reference semantics
// pkg/jit/cfg and pkg/jit/exec must agree with. It does not fuse: it is
// deliberately run against the pre-augmentation op sequence so that a
// test comparing a fused compiled run against an unfused interpreted run
// exercises spec §8 scenario 5 ("compiled code executes equivalently to
// the unfused version").
type Interpreter struct {
	Stack    *Stack
	Memory   []byte
	Storage  map[uint256.Int]uint256.Int
	CallData []byte

	// CallValue, Caller and Origin are the environment scalars CALLVALUE,
	// CALLER and ORIGIN push (mirroring jit.ExecutionContext's
	// SetCallValue/SetCaller/SetOrigin); a fresh Interpreter has all of
	// them zero.
	CallValue uint256.Int
	Caller    uint256.Int
	Origin    uint256.Int

	Status   uint64
	steps    int
	maxSteps int
}

// NewInterpreter constructs an Interpreter with fresh, empty state.
// maxSteps bounds runaway loops in hand-written test programs; 0 selects
// a generous default.
func NewInterpreter(maxSteps int) *Interpreter {
	if maxSteps <= 0 {
		maxSteps = 10_000_000
	}
	return &Interpreter{
		Stack:    NewStack(),
		Storage:  make(map[uint256.Int]uint256.Int),
		maxSteps: maxSteps,
	}
}

// Run interprets c starting at opidx 0 until a terminal op halts it or
// the step budget is exhausted, and returns the final status code (spec
// §7).
func (in *Interpreter) Run(code bytecode.Code) (uint64, error) {
	ic := bytecode.Index(code)
	ops := ic.Code().Ops()
	pc := 0
	for pc >= 0 && pc < len(ops) {
		in.steps++
		if in.steps > in.maxSteps {
			return 0, fmt.Errorf("reference: exceeded %d steps, likely runaway loop", in.maxSteps)
		}
		next, err := in.step(ic, ops[pc], pc)
		if err != nil {
			return 0, err
		}
		if next < 0 {
			return in.Status, nil
		}
		pc = next
	}
	return in.Status, nil
}

// step executes one op and returns the next pc, or -1 to halt.
func (in *Interpreter) step(ic bytecode.IndexedCode, op opcode.Op, pc int) (int, error) {
	switch op.Kind {
	case opcode.KindPush:
		if err := in.Stack.Push(*op.Value); err != nil {
			return 0, err
		}
		return pc + 1, nil

	case opcode.KindAugmentedPushJump, opcode.KindAugmentedPushJumpi:
		return 0, fmt.Errorf("reference: interpreter runs unfused code only, got %s", op)

	case opcode.KindUnknown:
		in.Status = 3
		return -1, nil
	}

	switch op.Code {
	case opcode.STOP:
		in.Status = 0
		return -1, nil
	case opcode.RETURN:
		in.Status = 0
		return -1, nil
	case opcode.REVERT:
		in.Status = 2
		return -1, nil
	case opcode.INVALID:
		in.Status = 3
		return -1, nil
	case opcode.JUMPDEST:
		return pc + 1, nil
	case opcode.PUSH0:
		if err := in.Stack.Push(uint256.Int{}); err != nil {
			return 0, err
		}
		return pc + 1, nil
	case opcode.POP:
		if _, err := in.Stack.Pop(); err != nil {
			return 0, err
		}
		return pc + 1, nil
	case opcode.JUMP:
		target, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		opidx, ok := ic.ResolveTarget(&target)
		if !ok {
			in.Status = 1
			return -1, nil
		}
		return opidx, nil
	case opcode.JUMPI:
		target, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		cond, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		if cond.IsZero() {
			return pc + 1, nil
		}
		opidx, ok := ic.ResolveTarget(&target)
		if !ok {
			in.Status = 1
			return -1, nil
		}
		return opidx, nil
	case opcode.MLOAD:
		offset, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		if err := in.Stack.Push(in.loadMemory(offset.Uint64())); err != nil {
			return 0, err
		}
		return pc + 1, nil
	case opcode.MSTORE:
		offset, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		v, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		in.storeMemory(offset.Uint64(), v)
		return pc + 1, nil
	case opcode.MSTORE8:
		offset, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		v, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		in.ensureMemory(int(offset.Uint64()) + 1)
		in.Memory[offset.Uint64()] = byte(v.Uint64())
		return pc + 1, nil
	case opcode.CALLDATALOAD:
		offset, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		var buf [32]byte
		off := offset.Uint64()
		if off < uint64(len(in.CallData)) {
			copy(buf[:], in.CallData[off:])
		}
		var v uint256.Int
		v.SetBytes32(buf[:])
		if err := in.Stack.Push(v); err != nil {
			return 0, err
		}
		return pc + 1, nil
	case opcode.CALLDATASIZE:
		if err := in.Stack.Push(*uint256.NewInt(uint64(len(in.CallData)))); err != nil {
			return 0, err
		}
		return pc + 1, nil
	case opcode.CALLVALUE:
		if err := in.Stack.Push(in.CallValue); err != nil {
			return 0, err
		}
		return pc + 1, nil
	case opcode.CALLER:
		if err := in.Stack.Push(in.Caller); err != nil {
			return 0, err
		}
		return pc + 1, nil
	case opcode.ORIGIN:
		if err := in.Stack.Push(in.Origin); err != nil {
			return 0, err
		}
		return pc + 1, nil
	case opcode.SLOAD:
		key, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		if err := in.Stack.Push(in.Storage[key]); err != nil {
			return 0, err
		}
		return pc + 1, nil
	case opcode.SSTORE:
		key, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		val, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		if val.IsZero() {
			delete(in.Storage, key)
		} else {
			in.Storage[key] = val
		}
		return pc + 1, nil
	}

	if n, ok := binaryArith(op.Code); ok {
		a, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		b, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		if err := in.Stack.Push(*n(&a, &b)); err != nil {
			return 0, err
		}
		return pc + 1, nil
	}
	if n, ok := unaryArith(op.Code); ok {
		a, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		if err := in.Stack.Push(*n(&a)); err != nil {
			return 0, err
		}
		return pc + 1, nil
	}
	if n, ok := ternaryArith(op.Code); ok {
		a, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		b, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		c, err := in.Stack.Pop()
		if err != nil {
			return 0, err
		}
		if err := in.Stack.Push(*n(&a, &b, &c)); err != nil {
			return 0, err
		}
		return pc + 1, nil
	}
	if op.Code.IsDup() {
		if err := in.Stack.DupN(op.Code.DupSize() - 1); err != nil {
			return 0, err
		}
		return pc + 1, nil
	}
	if op.Code.IsSwap() {
		if err := in.Stack.SwapN(op.Code.SwapSize()); err != nil {
			return 0, err
		}
		return pc + 1, nil
	}

	// Everything else (SHA3, LOG*, CALL*, CREATE*, environment opcodes
	// not named above) is out of scope, same as cfg.IsTrapped.
	in.Status = 3
	return -1, nil
}

func binaryArith(code opcode.OpCode) (func(a, b *uint256.Int) *uint256.Int, bool) {
	switch code {
	case opcode.ADD:
		return arith.Add, true
	case opcode.SUB:
		return arith.Sub, true
	case opcode.MUL:
		return arith.Mul, true
	case opcode.DIV:
		return arith.Div, true
	case opcode.SDIV:
		return arith.Sdiv, true
	case opcode.MOD:
		return arith.Mod, true
	case opcode.SMOD:
		return arith.Smod, true
	case opcode.EXP:
		return arith.Exp, true
	case opcode.LT:
		return arith.Lt, true
	case opcode.GT:
		return arith.Gt, true
	case opcode.EQ:
		return arith.Eq, true
	case opcode.SLT:
		return arith.Slt, true
	case opcode.SGT:
		return arith.Sgt, true
	case opcode.AND:
		return arith.And, true
	case opcode.OR:
		return arith.Or, true
	case opcode.XOR:
		return arith.Xor, true
	case opcode.SHL:
		return arith.Shl, true
	case opcode.SHR:
		return arith.Shr, true
	case opcode.SAR:
		return arith.Sar, true
	case opcode.BYTE:
		return arith.Byte, true
	case opcode.SIGNEXTEND:
		return arith.Signextend, true
	}
	return nil, false
}

func unaryArith(code opcode.OpCode) (func(a *uint256.Int) *uint256.Int, bool) {
	switch code {
	case opcode.ISZERO:
		return arith.Iszero, true
	case opcode.NOT:
		return arith.Not, true
	}
	return nil, false
}

func ternaryArith(code opcode.OpCode) (func(a, b, c *uint256.Int) *uint256.Int, bool) {
	switch code {
	case opcode.ADDMOD:
		return arith.AddMod, true
	case opcode.MULMOD:
		return arith.MulMod, true
	}
	return nil, false
}

func (in *Interpreter) ensureMemory(n int) {
	if n > len(in.Memory) {
		grown := make([]byte, n)
		copy(grown, in.Memory)
		in.Memory = grown
	}
}

func (in *Interpreter) loadMemory(offset uint64) uint256.Int {
	in.ensureMemory(int(offset) + 32)
	var v uint256.Int
	v.SetBytes32(in.Memory[offset : offset+32])
	return v
}

func (in *Interpreter) storeMemory(offset uint64, v uint256.Int) {
	in.ensureMemory(int(offset) + 32)
	buf := v.Bytes32()
	copy(in.Memory[offset:offset+32], buf[:])
}
