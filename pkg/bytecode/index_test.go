package bytecode

import (
	"testing"

	"github.com/holiman/uint256"
	"github.com/paradigmxyz/jitevm/pkg/opcode"
)

func TestIndexOffsets(t *testing.T) {
	// offsets: 0 PUSH2(3 bytes) -> 3 JUMPDEST(1) -> 4 STOP(1)
	raw := []byte{byte(opcode.PUSH2), 0x00, 0x00, byte(opcode.JUMPDEST), byte(opcode.STOP)}
	c, err := Decode(raw, opcode.Strict)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	ic := Index(c)
	if ic.OffsetOf(0) != 0 {
		t.Errorf("OffsetOf(0) = %d, want 0", ic.OffsetOf(0))
	}
	if ic.OffsetOf(1) != 3 {
		t.Errorf("OffsetOf(1) = %d, want 3", ic.OffsetOf(1))
	}
	if ic.OffsetOf(2) != 4 {
		t.Errorf("OffsetOf(2) = %d, want 4", ic.OffsetOf(2))
	}
	if !ic.IsJumpdest(1) {
		t.Errorf("opidx 1 should be a jumpdest")
	}
	if ic.IsJumpdest(0) || ic.IsJumpdest(2) {
		t.Errorf("only opidx 1 should be a jumpdest")
	}
}

func TestIndexInverseRoundTrip(t *testing.T) {
	raw := []byte{
		byte(opcode.PUSH1), 0x00, byte(opcode.JUMPDEST), byte(opcode.PUSH2), 0x00, 0x00, byte(opcode.STOP),
	}
	c, _ := Decode(raw, opcode.Strict)
	ic := Index(c)
	for i := 0; i < ic.Len(); i++ {
		offset := ic.OffsetOf(i)
		got, ok := ic.OpidxAtOffset(offset)
		if !ok || got != i {
			t.Errorf("OpidxAtOffset(OffsetOf(%d)) = (%d, %v), want (%d, true)", i, got, ok, i)
		}
	}
}

func TestResolveTargetMiddleOfPushOperandIsInvalid(t *testing.T) {
	// PUSH2 0x0004; JUMPDEST at offset 3 is legal, but offset 1 or 2
	// (inside the PUSH operand) must not resolve.
	raw := []byte{byte(opcode.PUSH2), 0x00, 0x04, byte(opcode.JUMPDEST)}
	c, _ := Decode(raw, opcode.Strict)
	ic := Index(c)

	if _, ok := ic.ResolveTarget(uint256.NewInt(1)); ok {
		t.Errorf("offset 1 (middle of PUSH operand) resolved, want not-found")
	}
	if _, ok := ic.ResolveTarget(uint256.NewInt(2)); ok {
		t.Errorf("offset 2 (middle of PUSH operand) resolved, want not-found")
	}
	idx, ok := ic.ResolveTarget(uint256.NewInt(3))
	if !ok || idx != 1 {
		t.Errorf("ResolveTarget(3) = (%d, %v), want (1, true)", idx, ok)
	}
}

func TestResolveTargetNonJumpdestOffset(t *testing.T) {
	// offset 0 is a valid instruction start (ADD) but not a JUMPDEST.
	raw := []byte{byte(opcode.ADD), byte(opcode.JUMPDEST)}
	c, _ := Decode(raw, opcode.Strict)
	ic := Index(c)
	if _, ok := ic.ResolveTarget(uint256.NewInt(0)); ok {
		t.Errorf("offset 0 (ADD, not JUMPDEST) resolved, want not-found")
	}
	if _, ok := ic.ResolveTarget(uint256.NewInt(1)); !ok {
		t.Errorf("offset 1 (JUMPDEST) should resolve")
	}
}

func TestJumpdestsSorted(t *testing.T) {
	raw := []byte{
		byte(opcode.JUMPDEST), byte(opcode.PUSH1), 0x00, byte(opcode.JUMPDEST), byte(opcode.STOP),
	}
	c, _ := Decode(raw, opcode.Strict)
	ic := Index(c)
	got := ic.Jumpdests()
	want := []int{0, 2}
	if len(got) != len(want) {
		t.Fatalf("Jumpdests() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Jumpdests() = %v, want %v", got, want)
		}
	}
}
