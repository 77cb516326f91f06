package opcode

import (
	"fmt"

	"github.com/holiman/uint256"
)

// Kind tags which variant an Op holds.
type Kind uint8

const (
	// KindPlain covers every nullary opcode: STOP, ADD, POP, JUMP,
	// JUMPDEST, DUP1..DUP16, SWAP1..SWAP16, and so on.
	KindPlain Kind = iota
	// KindPush is PUSH(n, v).
	KindPush
	// KindAugmentedPushJump is the fused PUSH(n,v); JUMP form produced
	// only by bytecode.Augment.
	KindAugmentedPushJump
	// KindAugmentedPushJumpi is the fused PUSH(n,v); JUMPI form produced
	// only by bytecode.Augment.
	KindAugmentedPushJumpi
	// KindUnknown is a single opaque byte, produced only in Lax decode
	// mode when the byte does not match any opcode in the table.
	KindUnknown
)

// Op is a single decoded EVM instruction. It is a tagged variant: Code
// and N/Value are meaningful depending on Kind, per the table below.
//
//	Kind                    | Code meaningful | N, Value meaningful
//	------------------------|------------------|----------------------
//	KindPlain               | yes              | no
//	KindPush                | no (implied PUSHn) | yes
//	KindAugmentedPushJump   | no               | yes
//	KindAugmentedPushJumpi  | no               | yes
//	KindUnknown             | no (Byte instead) | no
type Op struct {
	Kind  Kind
	Code  OpCode       // valid when Kind == KindPlain
	N     uint8        // immediate byte count (1..32), valid for Push/Augmented
	Value *uint256.Int // immediate value, valid for Push/Augmented
	Byte  byte         // valid when Kind == KindUnknown
}

// Plain constructs a nullary Op.
func Plain(code OpCode) Op { return Op{Kind: KindPlain, Code: code} }

// Push constructs a PUSH(n, v) Op. v's big-endian encoding must fit in n
// bytes (callers that decode from a byte stream guarantee this; callers
// that build Ops programmatically are responsible for it).
func Push(n uint8, v *uint256.Int) Op {
	return Op{Kind: KindPush, N: n, Value: v}
}

// AugmentedPushJump constructs the fused PUSH+JUMP form.
func AugmentedPushJump(n uint8, v *uint256.Int) Op {
	return Op{Kind: KindAugmentedPushJump, N: n, Value: v}
}

// AugmentedPushJumpi constructs the fused PUSH+JUMPI form.
func AugmentedPushJumpi(n uint8, v *uint256.Int) Op {
	return Op{Kind: KindAugmentedPushJumpi, N: n, Value: v}
}

// UnknownOp constructs an opaque single-byte Op (Lax decode mode only).
func UnknownOp(b byte) Op { return Op{Kind: KindUnknown, Byte: b} }

// Len returns the Op's encoded length in bytes. This is an invariant of
// the variant: it never depends on runtime state.
func (o Op) Len() int {
	switch o.Kind {
	case KindPlain, KindUnknown:
		return 1
	case KindPush:
		return 1 + int(o.N)
	case KindAugmentedPushJump, KindAugmentedPushJumpi:
		return 1 + int(o.N) + 1
	default:
		panic(fmt.Sprintf("opcode: Op.Len: unknown kind %d", o.Kind))
	}
}

// Encode appends the Op's canonical byte image to dst and returns the
// extended slice. Augmented forms re-expand to PUSH followed by
// JUMP/JUMPI: they must never appear in bytes emitted to the outside
// world, so the encoder undoes the fusion here.
func (o Op) Encode(dst []byte) []byte {
	switch o.Kind {
	case KindPlain:
		return append(dst, byte(o.Code))
	case KindUnknown:
		return append(dst, o.Byte)
	case KindPush:
		return appendPush(dst, o.N, o.Value)
	case KindAugmentedPushJump:
		dst = appendPush(dst, o.N, o.Value)
		return append(dst, byte(JUMP))
	case KindAugmentedPushJumpi:
		dst = appendPush(dst, o.N, o.Value)
		return append(dst, byte(JUMPI))
	default:
		panic(fmt.Sprintf("opcode: Op.Encode: unknown kind %d", o.Kind))
	}
}

func appendPush(dst []byte, n uint8, v *uint256.Int) []byte {
	dst = append(dst, byte(PUSH1)+n-1)
	buf := v.Bytes32()
	return append(dst, buf[32-int(n):]...)
}

// IsTerminal reports whether the Op emits its own control-flow terminator
// when lowered by the JIT compiler (STOP, JUMP, JUMPI, RETURN, REVERT,
// INVALID, and the Augmented forms) and therefore must not be followed by
// an implicit fall-through branch.
func (o Op) IsTerminal() bool {
	switch o.Kind {
	case KindAugmentedPushJump, KindAugmentedPushJumpi:
		return true
	case KindPlain:
		switch o.Code {
		case STOP, JUMP, JUMPI, RETURN, REVERT, INVALID:
			return true
		}
	}
	return false
}

// String renders the Op in disassembly form, e.g. "PUSH2 0x100" or
// "AugmentedPushJump(2, 0x100)" (the value is printed without leading
// zeros).
func (o Op) String() string {
	switch o.Kind {
	case KindPlain:
		return o.Code.String()
	case KindUnknown:
		return fmt.Sprintf("UNKNOWN 0x%02x", o.Byte)
	case KindPush:
		return fmt.Sprintf("PUSH%d 0x%x", o.N, o.Value)
	case KindAugmentedPushJump:
		return fmt.Sprintf("AugmentedPushJump(%d, 0x%x)", o.N, o.Value)
	case KindAugmentedPushJumpi:
		return fmt.Sprintf("AugmentedPushJumpi(%d, 0x%x)", o.N, o.Value)
	default:
		return fmt.Sprintf("Op{kind=%d}", o.Kind)
	}
}

// Equal reports whether o and other are the same instruction: same kind,
// same opcode/byte, and (for Push/Augmented forms) the same n and the
// same numeric value.
func (o Op) Equal(other Op) bool {
	if o.Kind != other.Kind {
		return false
	}
	switch o.Kind {
	case KindPlain:
		return o.Code == other.Code
	case KindUnknown:
		return o.Byte == other.Byte
	case KindPush, KindAugmentedPushJump, KindAugmentedPushJumpi:
		return o.N == other.N && o.Value.Eq(other.Value)
	default:
		return false
	}
}
