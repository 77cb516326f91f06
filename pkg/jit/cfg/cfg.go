// Package cfg builds the control-flow graph the JIT compiler lowers
// Indexed Code into (spec §4.5.2 "Block layout"): one block per source
// op, plus the setup/end/error-jumpdest blocks and the synthesized
// comparison chains for unfused JUMP/JUMPI (spec §4.5.4).
//
// cfg itself is backend-agnostic: it records blocks, their successor
// edges, and — critically — each block's full predecessor list, which
// is exactly the data spec §4.5.1/§4.5.5 requires to be correct before
// any φ-node for (stackbase, sp, retval) can be built. A backend that
// needs explicit φ-nodes (pkg/jit/backend/llvmir) builds one, with one
// incoming edge per entry of Block.Preds, for every block with more
// than one predecessor. A backend that executes by walking Go closures
// directly (pkg/jit/exec) never needs an explicit merge step — Go's own
// control flow already merges the bookkeeping values at confluence
// points — but the graph it walks is this same Func, so both backends
// agree on one definition of "the program".
package cfg

import (
	"fmt"

	"github.com/paradigmxyz/jitevm/pkg/bytecode"
	"github.com/paradigmxyz/jitevm/pkg/opcode"
)

// Kind enumerates the block categories of spec §4.5.2.
type Kind int

const (
	KindSetup Kind = iota
	KindOp
	KindEnd
	KindErrorJumpdest
	KindCompare
)

func (k Kind) String() string {
	switch k {
	case KindSetup:
		return "setup"
	case KindOp:
		return "op"
	case KindEnd:
		return "end"
	case KindErrorJumpdest:
		return "error-jumpdest"
	case KindCompare:
		return "compare"
	default:
		return "unknown"
	}
}

// noBlock marks an absent successor edge.
const noBlock = -1

// Block is one node of the CFG. Exactly one of {Op is meaningful,
// CompareOpidx/CompareOffset is meaningful} holds, selected by Kind.
type Block struct {
	ID    int
	Kind  Kind
	Label string

	// Op and Opidx are valid when Kind == KindOp.
	Op    opcode.Op
	Opidx int

	// CompareOpidx/CompareOffset are valid when Kind == KindCompare: the
	// jumpdest opidx this node tests for, and the byte-offset constant
	// the runtime jump target is compared against.
	CompareOpidx  int
	CompareOffset uint64

	// Next is the unconditional / fallthrough / comparison-match edge.
	// Alt is the conditional-false / comparison-miss edge. noBlock means
	// "no such edge" (a block with neither is a terminal: only End and
	// ErrorJumpdest are terminal per spec §4.5.7).
	Next int
	Alt  int

	// Preds lists every block whose Next or Alt targets this block.
	// Populated by Build in a second pass once all edges are known.
	Preds []int
}

// HasPhi reports whether this block must carry a (stackbase, sp, retval)
// φ-node: spec §4.5.1 requires one on "every basic block that can be
// reached from more than one predecessor."
func (b *Block) HasPhi() bool { return len(b.Preds) > 1 }

// Func is a complete lowering of one contract's Indexed Code.
type Func struct {
	Blocks []*Block
	Entry  int // the setup block
	EndID  int
	ErrID  int

	// JumpChainID, if >= 0, is the entry block of the shared comparison
	// chain used by unfused JUMP/JUMPI (spec §4.5.4). Built once and
	// reused by every unfused jump in the contract, since the chain does
	// not depend on which op is jumping.
	JumpChainID int
}

func (f *Func) Block(id int) *Block { return f.Blocks[id] }

func (f *Func) newBlock(kind Kind, label string) *Block {
	b := &Block{ID: len(f.Blocks), Kind: kind, Label: label, Next: noBlock, Alt: noBlock}
	f.Blocks = append(f.Blocks, b)
	return b
}

// Build lowers ic into a Func per spec §4.5.2-§4.5.4.
func Build(ic bytecode.IndexedCode) (*Func, error) {
	ops := ic.Code().Ops()
	f := &Func{JumpChainID: noBlock}

	setup := f.newBlock(KindSetup, "setup")
	f.Entry = setup.ID

	opBlocks := make([]*Block, len(ops))
	for i, op := range ops {
		b := f.newBlock(KindOp, fmt.Sprintf("op%d_%s", i, op))
		b.Op = op
		b.Opidx = i
		opBlocks[i] = b
	}

	end := f.newBlock(KindEnd, "end")
	f.EndID = end.ID
	errBlock := f.newBlock(KindErrorJumpdest, "error_jumpdest")
	f.ErrID = errBlock.ID

	if len(ops) == 0 {
		setup.Next = end.ID
	} else {
		setup.Next = opBlocks[0].ID
	}

	jumpdests := ic.Jumpdests()
	var chainHead int
	if len(jumpdests) == 0 {
		chainHead = end.ID
	} else {
		chainHead = buildCompareChain(f, ic, jumpdests, errBlock.ID)
	}
	f.JumpChainID = chainHead

	// Next/Alt's meaning is per-Kind, not a single global convention:
	// KindCompare uses Next=match, Alt=miss; plain JUMPI uses
	// Next=comparison-chain-entry, Alt=fallthrough (cond==0); an
	// AugmentedPushJumpi uses Next=fallthrough (cond==0),
	// Alt=statically-resolved target (cond!=0). Backends branch on
	// op.Kind / b.Kind directly rather than assuming a fixed slot always
	// means "the true branch".
	for i, op := range ops {
		b := opBlocks[i]
		fallthroughID := end.ID
		if i+1 < len(ops) {
			fallthroughID = opBlocks[i+1].ID
		}

		switch {
		case op.Kind == opcode.KindAugmentedPushJump:
			// The peephole optimizer only fuses a literal PUSH into a JUMP;
			// ResolveTarget can still fail if that literal isn't a JUMPDEST
			// (hand-crafted invalid bytecode). Route through errBlock, same
			// as the compare chain's miss edge, so retval ends up
			// StatusInvalidJump instead of whatever the last op left behind.
			target, ok := ic.ResolveTarget(op.Value)
			if ok {
				b.Next = opBlocks[target].ID
			} else {
				b.Next = errBlock.ID
			}

		case op.Kind == opcode.KindAugmentedPushJumpi:
			target, ok := ic.ResolveTarget(op.Value)
			b.Next = fallthroughID // cond == 0 branch
			if ok {
				b.Alt = opBlocks[target].ID // cond != 0 branch
			} else {
				b.Alt = errBlock.ID // cond != 0 but target is invalid
			}

		case op.Kind == opcode.KindPlain && (op.Code == opcode.JUMP || op.Code == opcode.JUMPI):
			b.Next = chainHead
			if op.Code == opcode.JUMPI {
				// JUMPI's fallthrough-on-false edge is distinct from its
				// jump-chain edge; Alt carries the fallthrough.
				b.Alt = fallthroughID
			}

		case op.IsTerminal():
			// STOP, RETURN, REVERT, INVALID, and the Augmented forms
			// already handled above all route to end; the distinct
			// status code is a runtime concern, not a CFG-shape concern.
			b.Next = end.ID

		case IsTrapped(op):
			// Decoded but semantically out of scope (spec §9's "treat
			// them as reserved... trap"): the op block sets retval=3
			// and routes straight to end, same as any other terminal.
			b.Next = end.ID

		default:
			b.Next = fallthroughID
		}
	}

	linkPreds(f)
	return f, nil
}

// IsTrapped reports whether op is decodable but outside the arithmetic/
// stack/memory/storage/control-flow semantics this JIT gives real
// lowering to (spec Non-goals: precompiles, inter-contract calls, exact
// gas; spec §9's open question on SHA3/LOG*/RETURNDATACOPY/cross-call
// opcodes). A trapped op still occupies a normal op block in the CFG; it
// sets retval to StatusInvalidOpcode and branches to end rather than
// being rejected at decode time, exactly as an unfused INVALID would.
// A KindUnknown op (Lax decode mode) is trapped the same way.
func IsTrapped(op opcode.Op) bool {
	if op.Kind == opcode.KindUnknown {
		return true
	}
	if op.Kind != opcode.KindPlain {
		return false
	}
	switch op.Code {
	case opcode.STOP, opcode.ADD, opcode.MUL, opcode.SUB, opcode.DIV, opcode.SDIV,
		opcode.MOD, opcode.SMOD, opcode.ADDMOD, opcode.MULMOD, opcode.EXP, opcode.SIGNEXTEND,
		opcode.LT, opcode.GT, opcode.SLT, opcode.SGT, opcode.EQ, opcode.ISZERO,
		opcode.AND, opcode.OR, opcode.XOR, opcode.NOT, opcode.BYTE,
		opcode.SHL, opcode.SHR, opcode.SAR,
		opcode.CALLER, opcode.CALLVALUE, opcode.CALLDATALOAD, opcode.CALLDATASIZE, opcode.ORIGIN,
		opcode.POP, opcode.MLOAD, opcode.MSTORE, opcode.MSTORE8,
		opcode.SLOAD, opcode.SSTORE, opcode.JUMP, opcode.JUMPI, opcode.JUMPDEST,
		opcode.RETURN, opcode.REVERT, opcode.INVALID, opcode.PUSH0:
		return false
	default:
		if op.Code.IsDup() || op.Code.IsSwap() {
			return false
		}
		return true
	}
}

// buildCompareChain builds spec §4.5.4's linear comparison chain, one
// block per jumpdest, each comparing the runtime target against that
// jumpdest's byte offset and branching to the jumpdest's block on match
// or the next comparison block on miss; the last miss-edge goes to
// errBlock.
func buildCompareChain(f *Func, ic bytecode.IndexedCode, jumpdests []int, errBlockID int) int {
	chain := make([]*Block, len(jumpdests))
	for i, opidx := range jumpdests {
		chain[i] = f.newBlock(KindCompare, fmt.Sprintf("cmp_jumpdest_%d", opidx))
		chain[i].CompareOpidx = opidx
		chain[i].CompareOffset = ic.OffsetOf(opidx)
	}
	for i, b := range chain {
		if i+1 < len(chain) {
			b.Alt = chain[i+1].ID
		} else {
			b.Alt = errBlockID
		}
		// Block IDs are assigned in order setup(0), ops(1..len(ops)),
		// end, error-jumpdest, compare-chain -- so the op block for
		// opidx i always lives at block ID i+1.
		b.Next = b.CompareOpidx + 1
	}
	return chain[0].ID
}

func linkPreds(f *Func) {
	for _, b := range f.Blocks {
		if b.Next != noBlock {
			succ := f.Block(b.Next)
			succ.Preds = append(succ.Preds, b.ID)
		}
		if b.Alt != noBlock {
			succ := f.Block(b.Alt)
			succ.Preds = append(succ.Preds, b.ID)
		}
	}
}

// Verify checks the structural invariant spec §4.5.5 depends on: every
// edge recorded by Next/Alt has a matching entry in the target's Preds,
// and vice versa. A backend that then builds one φ-node per Preds entry
// for every HasPhi() block satisfies spec §4.5.5 by construction; Verify
// catches the case spec calls out explicitly: "a lowering that forgets
// to register an incoming edge ... is a hard error."
func (f *Func) Verify() error {
	predSet := make([]map[int]bool, len(f.Blocks))
	for i := range predSet {
		predSet[i] = make(map[int]bool)
	}
	for _, b := range f.Blocks {
		if b.Next != noBlock {
			predSet[b.Next][b.ID] = true
		}
		if b.Alt != noBlock {
			predSet[b.Alt][b.ID] = true
		}
	}
	for _, b := range f.Blocks {
		if len(b.Preds) != len(predSet[b.ID]) {
			return fmt.Errorf("cfg: block %d (%s) has %d recorded preds but %d edges target it",
				b.ID, b.Label, len(b.Preds), len(predSet[b.ID]))
		}
		for _, p := range b.Preds {
			if !predSet[b.ID][p] {
				return fmt.Errorf("cfg: block %d (%s) lists pred %d which has no edge into it", b.ID, b.Label, p)
			}
		}
	}
	if f.EndID != f.Block(f.EndID).ID || f.Block(f.EndID).Kind != KindEnd {
		return fmt.Errorf("cfg: EndID does not name an End block")
	}
	return nil
}
