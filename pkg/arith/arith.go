// Package arith implements the 256-bit integer operations the JIT
// compiler's per-op lowering calls into (spec §4.4). Every function is
// pure: it allocates a fresh *uint256.Int for its result rather than
// mutating an operand in place, so the JIT's inline codegen can treat
// each call as a value-producing expression with no aliasing surprises.
//
// All of go-ethereum's "EVM-correct" 256-bit arithmetic already lives in
// github.com/holiman/uint256 (modular wraparound, division-by-zero
// returning 0, MinInt256/-1 special-cased, and so on); this package is a
// thin, pure-function adapter over it so the rest of the engine calls
// arith.Add(a, b) rather than reasoning about receiver mutation.
package arith

import "github.com/holiman/uint256"

// signBit is 2^255: a 256-bit two's-complement value is negative iff it
// is >= signBit.
var signBit = new(uint256.Int).Lsh(uint256.NewInt(1), 255)

// isNegative256 reports whether x, interpreted as a two's-complement
// signed 256-bit integer, is negative.
func isNegative256(x *uint256.Int) bool {
	return !x.Lt(signBit)
}

// Add returns a+b mod 2^256.
func Add(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Add(a, b) }

// Sub returns a-b mod 2^256.
func Sub(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Sub(a, b) }

// Mul returns a*b mod 2^256.
func Mul(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Mul(a, b) }

// Div returns the unsigned quotient a/b, or 0 if b == 0.
func Div(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Div(a, b) }

// Mod returns the unsigned remainder a%b, or 0 if b == 0.
func Mod(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Mod(a, b) }

// Sdiv returns the two's-complement signed quotient a/b. Division by
// zero returns 0; MinInt256 / -1 returns MinInt256 (the EVM's defined
// overflow behavior, not a trap).
func Sdiv(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).SDiv(a, b) }

// Smod returns the two's-complement signed remainder a%b, or 0 if b == 0.
func Smod(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).SMod(a, b) }

// AddMod returns (a+b) mod m, or 0 if m == 0.
func AddMod(a, b, m *uint256.Int) *uint256.Int { return new(uint256.Int).AddMod(a, b, m) }

// MulMod returns (a*b) mod m, or 0 if m == 0.
func MulMod(a, b, m *uint256.Int) *uint256.Int { return new(uint256.Int).MulMod(a, b, m) }

// Exp returns base^exponent mod 2^256, right-to-left square-and-multiply.
func Exp(base, exponent *uint256.Int) *uint256.Int { return new(uint256.Int).Exp(base, exponent) }

// Lt returns 1 if a < b (unsigned), else 0.
func Lt(a, b *uint256.Int) *uint256.Int { return boolInt(a.Lt(b)) }

// Gt returns 1 if a > b (unsigned), else 0.
func Gt(a, b *uint256.Int) *uint256.Int { return boolInt(a.Gt(b)) }

// Eq returns 1 if a == b, else 0.
func Eq(a, b *uint256.Int) *uint256.Int { return boolInt(a.Eq(b)) }

// Slt returns 1 if a < b as two's-complement signed integers, else 0.
func Slt(a, b *uint256.Int) *uint256.Int { return boolInt(a.Slt(b)) }

// Sgt returns 1 if a > b as two's-complement signed integers, else 0.
func Sgt(a, b *uint256.Int) *uint256.Int { return boolInt(a.Sgt(b)) }

// Iszero returns 1 if a == 0, else 0.
func Iszero(a *uint256.Int) *uint256.Int { return boolInt(a.IsZero()) }

// Not returns the bitwise complement of a over 256 bits.
func Not(a *uint256.Int) *uint256.Int { return new(uint256.Int).Not(a) }

// And returns the bitwise AND of a and b.
func And(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).And(a, b) }

// Or returns the bitwise OR of a and b.
func Or(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Or(a, b) }

// Xor returns the bitwise XOR of a and b.
func Xor(a, b *uint256.Int) *uint256.Int { return new(uint256.Int).Xor(a, b) }

// Byte returns the i-th byte of x in big-endian order (byte 0 is the
// most significant), or 0 if i >= 32.
func Byte(i, x *uint256.Int) *uint256.Int {
	result := new(uint256.Int).Set(x)
	return result.Byte(i)
}

// Shl returns x << shift (logical). A shift count >= 256 yields 0.
func Shl(shift, x *uint256.Int) *uint256.Int {
	if !shift.IsUint64() || shift.Uint64() >= 256 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Lsh(x, uint(shift.Uint64()))
}

// Shr returns x >> shift (logical). A shift count >= 256 yields 0.
func Shr(shift, x *uint256.Int) *uint256.Int {
	if !shift.IsUint64() || shift.Uint64() >= 256 {
		return new(uint256.Int)
	}
	return new(uint256.Int).Rsh(x, uint(shift.Uint64()))
}

// Sar returns x >> shift (arithmetic, sign-extending). A shift count
// >= 256 yields 0 if x is non-negative, or all-ones if x is negative
// (interpreting x as two's-complement signed).
func Sar(shift, x *uint256.Int) *uint256.Int {
	if !shift.IsUint64() || shift.Uint64() >= 256 {
		if !isNegative256(x) {
			return new(uint256.Int)
		}
		allOnes := new(uint256.Int)
		allOnes.SetAllOne()
		return allOnes
	}
	return new(uint256.Int).SRsh(x, uint(shift.Uint64()))
}

// Signextend sign-extends x from bit 8*(b+1)-1 (treating byte b, 0 =
// least significant, as the sign byte). If b >= 31, x is returned
// unchanged, since every bit of a 256-bit value is already "within" the
// 32nd byte.
func Signextend(b, x *uint256.Int) *uint256.Int {
	return new(uint256.Int).ExtendSign(x, b)
}

func boolInt(v bool) *uint256.Int {
	if v {
		return uint256.NewInt(1)
	}
	return new(uint256.Int)
}
