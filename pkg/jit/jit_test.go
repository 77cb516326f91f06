package jit

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/paradigmxyz/jitevm/pkg/bytecode"
	"github.com/paradigmxyz/jitevm/pkg/jit/reference"
	"github.com/paradigmxyz/jitevm/pkg/opcode"
)

func compileHex(t *testing.T, raw []byte) *CompiledContract {
	t.Helper()
	code, err := bytecode.Decode(raw, opcode.Strict)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ic := bytecode.Index(bytecode.Augment(code))
	cc, err := Compile(ic, CompileOptions{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	return cc
}

// TestAddStop is spec §8 scenario 2: PUSH1 3; PUSH1 5; ADD; STOP.
func TestAddStop(t *testing.T) {
	raw := []byte{
		byte(opcode.PUSH1), 0x03,
		byte(opcode.PUSH1), 0x05,
		byte(opcode.ADD),
		byte(opcode.STOP),
	}
	cc := compileHex(t, raw)
	ctx := NewExecutionContext(0, 0)
	status := cc.Run(ctx)
	if status != StatusOK {
		t.Fatalf("status = %d, want StatusOK", status)
	}
	if ctx.StackLen() != 1 || ctx.StackTop().Uint64() != 8 {
		t.Fatalf("stack top = %v, want 8", ctx.StackTop())
	}
}

// TestInvalidJump is spec §8 scenario 3: PUSH1 4; JUMP where 4 is not a
// JUMPDEST (there is no JUMPDEST anywhere in this program).
func TestInvalidJump(t *testing.T) {
	raw := []byte{byte(opcode.PUSH1), 0x04, byte(opcode.JUMP)}
	cc := compileHex(t, raw)
	ctx := NewExecutionContext(0, 0)
	status := cc.Run(ctx)
	if status != StatusInvalidJump {
		t.Fatalf("status = %d, want StatusInvalidJump", status)
	}
}

// TestSSTORE_SLOAD_RoundTrip is spec §8 scenario 4.
func TestSSTORE_SLOAD_RoundTrip(t *testing.T) {
	raw := []byte{
		byte(opcode.PUSH1), 42,
		byte(opcode.PUSH1), 7,
		byte(opcode.SSTORE),
		byte(opcode.PUSH1), 7,
		byte(opcode.SLOAD),
		byte(opcode.STOP),
	}
	cc := compileHex(t, raw)
	ctx := NewExecutionContext(0, 0)
	status := cc.Run(ctx)
	if status != StatusOK {
		t.Fatalf("status = %d, want StatusOK", status)
	}
	if ctx.StackTop().Uint64() != 42 {
		t.Fatalf("stack top = %v, want 42", ctx.StackTop())
	}
	key := *uint256.NewInt(7)
	if v := ctx.Storage[key]; v.Uint64() != 42 {
		t.Fatalf("storage[7] = %v, want 42", v)
	}
}

// TestRevert is spec §8's revert scenario: bare REVERT sets StatusRevert.
func TestRevert(t *testing.T) {
	raw := []byte{byte(opcode.REVERT)}
	cc := compileHex(t, raw)
	ctx := NewExecutionContext(0, 0)
	if status := cc.Run(ctx); status != StatusRevert {
		t.Fatalf("status = %d, want StatusRevert", status)
	}
}

// TestIszeroBranching covers both arms of ISZERO: zero input yields 1,
// nonzero input yields 0.
func TestIszeroBranching(t *testing.T) {
	cases := []struct {
		name string
		push byte
		want uint64
	}{
		{"zero", 0x00, 1},
		{"nonzero", 0x05, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			raw := []byte{byte(opcode.PUSH1), tc.push, byte(opcode.ISZERO), byte(opcode.STOP)}
			cc := compileHex(t, raw)
			ctx := NewExecutionContext(0, 0)
			if status := cc.Run(ctx); status != StatusOK {
				t.Fatalf("status = %d, want StatusOK", status)
			}
			if got := ctx.StackTop().Uint64(); got != tc.want {
				t.Fatalf("ISZERO(%#x) = %d, want %d", tc.push, got, tc.want)
			}
		})
	}
}

// TestFusionEquivalence is spec §8 scenario 5: a PUSH2 0x0007 immediately
// followed by JUMP, where byte offset 7 is a JUMPDEST, fuses to
// AugmentedPushJump. The compiled (fused) run and the reference
// interpreter's (necessarily unfused) run over the identical byte image
// must agree.
func TestFusionEquivalence(t *testing.T) {
	// offset: 0   1 2   3    4    5    6    7    8   9    10
	raw := []byte{
		byte(opcode.PUSH2), 0x00, 0x07, // -> offset 0..2
		byte(opcode.JUMP), // offset 3
		byte(opcode.POP), byte(opcode.POP), byte(opcode.POP), // offsets 4-6, dead (never reached)
		byte(opcode.JUMPDEST),      // offset 7
		byte(opcode.PUSH1), 0x2a,   // offset 8-9, push 42
		byte(opcode.STOP), // offset 10
	}

	code, err := bytecode.Decode(raw, opcode.Strict)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	augmented := bytecode.Augment(code)
	if augmented.Equal(code) {
		t.Fatalf("expected PUSH2;JUMP to fuse, but Augment was a no-op")
	}

	ic := bytecode.Index(augmented)
	cc, err := Compile(ic, CompileOptions{})
	if err != nil {
		t.Fatalf("Compile: %v", err)
	}
	ctx := NewExecutionContext(0, 0)
	gotStatus := cc.Run(ctx)

	in := reference.NewInterpreter(0)
	wantStatus, err := in.Run(code) // the oracle runs the unfused decode directly
	if err != nil {
		t.Fatalf("reference.Run: %v", err)
	}

	if gotStatus != wantStatus {
		t.Fatalf("compiled status = %d, oracle status = %d", gotStatus, wantStatus)
	}
	wantTop, err := in.Stack.Bottom()
	if err != nil {
		t.Fatalf("oracle Bottom: %v", err)
	}
	if ctx.StackTop().Uint64() != wantTop.Uint64() {
		t.Fatalf("compiled top = %v, oracle bottom = %v", ctx.StackTop(), wantTop)
	}
}
