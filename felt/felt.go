// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package felt implements the field element used for every address, key,
// value and hash on the devnet.
package felt

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/holiman/uint256"
)

const Len = 32

var (
	// P is the field prime 2^251 + 17*2^192 + 1.
	P = mustFromBig(new(big.Int).Add(
		new(big.Int).Add(
			new(big.Int).Lsh(big.NewInt(1), 251),
			new(big.Int).Mul(big.NewInt(17), new(big.Int).Lsh(big.NewInt(1), 192)),
		),
		big.NewInt(1),
	))

	Zero = Felt{}
	One  = FromUint64(1)

	errEmpty      = errors.New("empty felt string")
	errOutOfRange = errors.New("value is not below the field prime")
)

// Felt is a big-endian field element.
type Felt [Len]byte

func FromUint64(v uint64) Felt {
	return FromInt(uint256.NewInt(v))
}

// FromInt reduces [v] into the field.
func FromInt(v *uint256.Int) Felt {
	p := P.Int()
	r := new(uint256.Int).Set(v)
	if !r.Lt(p) {
		r.Mod(r, p)
	}
	return Felt(r.Bytes32())
}

// FromBytes interprets [b] as a big-endian integer and reduces it into the field.
// Inputs longer than 32 bytes keep their trailing 32 bytes.
func FromBytes(b []byte) Felt {
	if len(b) > Len {
		b = b[len(b)-Len:]
	}
	return FromInt(new(uint256.Int).SetBytes(b))
}

func FromBig(b *big.Int) (Felt, error) {
	if b.Sign() < 0 {
		return Zero, fmt.Errorf("negative value %s", b)
	}
	v, overflow := uint256.FromBig(b)
	if overflow || !v.Lt(P.Int()) {
		return Zero, errOutOfRange
	}
	return Felt(v.Bytes32()), nil
}

func mustFromBig(b *big.Int) Felt {
	v, _ := uint256.FromBig(b)
	return Felt(v.Bytes32())
}

// Parse accepts a 0x-prefixed hex string or a decimal string.
func Parse(s string) (Felt, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Zero, errEmpty
	}
	b := new(big.Int)
	var ok bool
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		digits := s[2:]
		if digits == "" {
			return Zero, fmt.Errorf("invalid felt %q", s)
		}
		_, ok = b.SetString(digits, 16)
	} else {
		_, ok = b.SetString(s, 10)
	}
	if !ok {
		return Zero, fmt.Errorf("invalid felt %q", s)
	}
	f, err := FromBig(b)
	if err != nil {
		return Zero, fmt.Errorf("invalid felt %q: %w", s, err)
	}
	return f, nil
}

func MustParse(s string) Felt {
	f, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return f
}

func ParseAll(ss []string) ([]Felt, error) {
	out := make([]Felt, len(ss))
	for i, s := range ss {
		f, err := Parse(s)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = f
	}
	return out, nil
}

func (f Felt) Int() *uint256.Int { return new(uint256.Int).SetBytes32(f[:]) }

func (f Felt) Big() *big.Int { return new(big.Int).SetBytes(f[:]) }

func (f Felt) Uint64() uint64 { return f.Int().Uint64() }

func (f Felt) IsUint64() bool { return f.Int().IsUint64() }

func (f Felt) IsZero() bool { return f == Zero }

func (f Felt) Cmp(o Felt) int { return f.Int().Cmp(o.Int()) }

func (f Felt) Bytes() []byte { return f[:] }

// Hex returns the shortest 0x-prefixed representation ("0x0" for zero).
func (f Felt) Hex() string { return f.Int().Hex() }

// FixedHex returns the 0x-prefixed, 64 digit representation used for L2 addresses.
func (f Felt) FixedHex() string { return "0x" + hex.EncodeToString(f[:]) }

func (f Felt) String() string { return f.Hex() }

// Decimal returns the base 10 representation.
func (f Felt) Decimal() string { return f.Big().String() }

func (f Felt) Add(o Felt) Felt {
	return Felt(new(uint256.Int).AddMod(f.Int(), o.Int(), P.Int()).Bytes32())
}

func (f Felt) Sub(o Felt) Felt {
	p := P.Int()
	a, b := f.Int(), o.Int()
	if !a.Lt(b) {
		return Felt(new(uint256.Int).Sub(a, b).Bytes32())
	}
	return Felt(new(uint256.Int).Sub(p, new(uint256.Int).Sub(b, a)).Bytes32())
}

func (f Felt) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Hex())
}

// UnmarshalJSON accepts hex strings, decimal strings and bare JSON numbers.
func (f *Felt) UnmarshalJSON(b []byte) error {
	var s string
	if len(b) > 0 && b[0] == '"' {
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
	} else {
		s = string(b)
	}
	v, err := Parse(s)
	if err != nil {
		return err
	}
	*f = v
	return nil
}

func HexAll(fs []Felt) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Hex()
	}
	return out
}

func DecimalAll(fs []Felt) []string {
	out := make([]string, len(fs))
	for i, f := range fs {
		out[i] = f.Decimal()
	}
	return out
}
