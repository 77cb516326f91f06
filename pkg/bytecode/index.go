package bytecode

import (
	"github.com/holiman/uint256"
	"github.com/paradigmxyz/jitevm/pkg/opcode"
)

// IndexedCode augments a Code with three derived structures, computed
// once in a single pass and read-only thereafter:
//
//   - opidxToOffset: op-sequence index -> cumulative byte offset.
//   - offsetToOpidx: the inverse map, over exactly the offsets that begin
//     a valid instruction (never the middle of a PUSH operand).
//   - jumpdests: the set of op-indices whose variant is JUMPDEST.
//
// Invariant: for each opidx i, opidxToOffset[i] equals the sum of the
// encoded lengths of ops[0..i). A 256-bit value v is a valid jump target
// iff offsetToOpidx contains v AND the resulting opidx is a member of
// jumpdests. Jumping into the middle of a PUSH operand is impossible
// because no such offset appears in offsetToOpidx.
type IndexedCode struct {
	code          Code
	opidxToOffset []uint64
	offsetToOpidx map[uint64]int
	jumpdests     map[int]bool
}

// Index builds an IndexedCode from c in a single forward pass.
func Index(c Code) IndexedCode {
	ops := c.Ops()
	ic := IndexedCode{
		code:          c,
		opidxToOffset: make([]uint64, len(ops)),
		offsetToOpidx: make(map[uint64]int, len(ops)),
		jumpdests:     make(map[int]bool),
	}
	var offset uint64
	for i, op := range ops {
		ic.opidxToOffset[i] = offset
		ic.offsetToOpidx[offset] = i
		// Augmented forms fold the JUMP/JUMPI byte into the same op as
		// the PUSH, so that byte's offset has no entry of its own; they
		// also never start a jumpdest themselves, consistent with the
		// spec's invariant that Augmented forms do not appear as
		// jumpdest starts.
		if op.Kind == opcode.KindPlain && op.Code == opcode.JUMPDEST {
			ic.jumpdests[i] = true
		}
		offset += uint64(op.Len())
	}
	return ic
}

// Code returns the underlying Code.
func (ic IndexedCode) Code() Code { return ic.code }

// Len returns the number of Ops.
func (ic IndexedCode) Len() int { return len(ic.opidxToOffset) }

// OffsetOf returns the byte offset of the opidx-th Op.
func (ic IndexedCode) OffsetOf(opidx int) uint64 { return ic.opidxToOffset[opidx] }

// OpidxAtOffset returns the op-index that starts at the given byte
// offset, if any.
func (ic IndexedCode) OpidxAtOffset(offset uint64) (int, bool) {
	i, ok := ic.offsetToOpidx[offset]
	return i, ok
}

// IsJumpdest reports whether opidx names a JUMPDEST.
func (ic IndexedCode) IsJumpdest(opidx int) bool { return ic.jumpdests[opidx] }

// ResolveTarget reports whether the 256-bit value v names a legal jump
// target: v must be a valid instruction-start offset, and the Op there
// must be a JUMPDEST.
func (ic IndexedCode) ResolveTarget(v *uint256.Int) (opidx int, ok bool) {
	if !v.IsUint64() {
		return 0, false
	}
	offset := v.Uint64()
	i, found := ic.offsetToOpidx[offset]
	if !found || !ic.jumpdests[i] {
		return 0, false
	}
	return i, true
}

// Jumpdests returns the sorted list of op-indices that are JUMPDEST.
// Used by the JIT compiler to build the linear comparison chain for
// unfused JUMP/JUMPI (spec §4.5.4).
func (ic IndexedCode) Jumpdests() []int {
	out := make([]int, 0, len(ic.jumpdests))
	for i := range ic.jumpdests {
		out = append(out, i)
	}
	// jumpdests is a map, so its iteration order is unspecified; sort
	// ascending here.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j-1] > out[j]; j-- {
			out[j-1], out[j] = out[j], out[j-1]
		}
	}
	return out
}
