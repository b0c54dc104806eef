// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ctw

import "fmt"

// Symbol is one binary digit of the agent's history.
type Symbol uint8

const (
	Zero Symbol = 0
	One  Symbol = 1
)

// Valid reports whether s is in the binary alphabet.
func (s Symbol) Valid() bool {
	return s <= One
}

// Encode returns value as bits symbols, least significant bit first.
//
// Inputs:
//   - value: Non-negative integer to encode
//   - bits: Width of the group
//
// Outputs:
//   - []Symbol: len(bits) symbols
//   - error: ErrInvalidCount for negative inputs, ErrValueOverflow if value
//     needs more than bits bits
func Encode(value, bits int) ([]Symbol, error) {
	return AppendEncoded(make([]Symbol, 0, max(bits, 0)), value, bits)
}

// AppendEncoded appends the encoding of value to dst.
func AppendEncoded(dst []Symbol, value, bits int) ([]Symbol, error) {
	if value < 0 || bits < 0 {
		return dst, ErrInvalidCount
	}
	if bits < 63 && value>>bits != 0 {
		return dst, fmt.Errorf("%w: %d in %d bits", ErrValueOverflow, value, bits)
	}
	for i := 0; i < bits; i++ {
		dst = append(dst, Symbol((value>>i)&1))
	}
	return dst, nil
}

// Decode is the inverse of Encode over the whole slice.
func Decode(symbols []Symbol) (int, error) {
	value := 0
	for i, s := range symbols {
		if !s.Valid() {
			return 0, ErrInvalidSymbol
		}
		value |= int(s) << i
	}
	return value, nil
}

func validate(seq []Symbol) error {
	for i, s := range seq {
		if !s.Valid() {
			return fmt.Errorf("%w: %d at position %d", ErrInvalidSymbol, s, i)
		}
	}
	return nil
}
