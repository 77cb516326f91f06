// Package bytecode implements Code (an ordered Op sequence plus the
// peephole optimizer) and Indexed Code (Code enriched with byte-offset
// maps and the JUMPDEST set).
package bytecode

import "github.com/paradigmxyz/jitevm/pkg/opcode"

// Code is an ordered sequence of Ops decoded from a contract's bytecode.
// Two Codes are equal iff their sequences are equal. Ops, once decoded,
// are immutable; Augment returns a new Code rather than mutating one in
// place.
type Code struct {
	ops []opcode.Op
}

// New wraps an existing Op slice as a Code. The slice is not copied;
// callers must not mutate it afterward.
func New(ops []opcode.Op) Code {
	return Code{ops: ops}
}

// Decode decodes raw bytecode into a Code using the given Mode.
func Decode(raw []byte, mode opcode.Mode) (Code, error) {
	ops, err := opcode.Decode(raw, mode)
	if err != nil {
		return Code{}, err
	}
	return New(ops), nil
}

// Ops returns the underlying Op sequence. Callers must not mutate it.
func (c Code) Ops() []opcode.Op { return c.ops }

// Len returns the number of Ops.
func (c Code) Len() int { return len(c.ops) }

// At returns the i-th Op.
func (c Code) At(i int) opcode.Op { return c.ops[i] }

// Bytes returns the canonical byte image of the Code. Augmented forms
// re-expand to PUSH+JUMP/JUMPI, so encode(augment(code)) == encode(code)
// always holds.
func (c Code) Bytes() []byte { return opcode.Encode(c.ops) }

// Equal reports whether c and other hold the same Op sequence.
func (c Code) Equal(other Code) bool {
	if len(c.ops) != len(other.ops) {
		return false
	}
	for i := range c.ops {
		if !c.ops[i].Equal(other.ops[i]) {
			return false
		}
	}
	return true
}

// Disassemble renders the Code one instruction per line, each prefixed
// with its byte offset. Not part of the core execution pipeline; a
// debugging convenience used by cmd/evmjit.
func (c Code) Disassemble() string {
	var b []byte
	offset := 0
	for _, op := range c.ops {
		b = append(b, []byte(formatDisasmLine(offset, op))...)
		b = append(b, '\n')
		offset += op.Len()
	}
	return string(b)
}

func formatDisasmLine(offset int, op opcode.Op) string {
	return paddedHex(offset) + "  " + op.String()
}

func paddedHex(offset int) string {
	const hexDigits = "0123456789abcdef"
	buf := make([]byte, 6) // "0x" + 4 hex digits
	buf[0], buf[1] = '0', 'x'
	for i := 5; i >= 2; i-- {
		buf[i] = hexDigits[offset&0xf]
		offset >>= 4
	}
	return string(buf)
}
