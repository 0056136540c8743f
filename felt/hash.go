// (c) 2024, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package felt

import (
	"golang.org/x/crypto/sha3"
)

// Keccak250 is keccak256 truncated to the low 250 bits, the way entry point
// selectors and storage variable addresses are derived from names.
func Keccak250(data []byte) Felt {
	h := sha3.NewLegacyKeccak256()
	_, _ = h.Write(data)
	var out Felt
	h.Sum(out[:0])
	out[0] &= 0x03
	return out
}

// Selector returns the entry point selector for [name].
func Selector(name string) Felt {
	return Keccak250([]byte(name))
}

// FromShortString encodes an ASCII string of at most 31 characters as a felt.
func FromShortString(s string) Felt {
	if len(s) > Len-1 {
		s = s[:Len-1]
	}
	return FromBytes([]byte(s))
}

// Hash combines two elements into one.
func Hash(a, b Felt) Felt {
	buf := make([]byte, 0, 2*Len)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return Keccak250(buf)
}

// HashOnElements folds [elems] left to right starting from zero and finishes
// with the element count.
func HashOnElements(elems ...Felt) Felt {
	acc := Zero
	for _, e := range elems {
		acc = Hash(acc, e)
	}
	return Hash(acc, FromUint64(uint64(len(elems))))
}
