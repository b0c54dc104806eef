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

// History is the append-only sequence of interleaved action and percept
// symbols.
//
// Every entry remembers whether it was learned into the tree or only
// appended as context, so a revert can undo either kind exactly.
//
// # Thread Safety
//
// Not safe for concurrent use. A History belongs to one agent.
type History struct {
	symbols []Symbol
	learned []bool
}

// NewHistory returns an empty history.
func NewHistory() *History {
	return &History{}
}

// Len returns the number of recorded symbols.
func (h *History) Len() int {
	return len(h.symbols)
}

// Back returns the symbol i positions from the end; Back(0) is the most
// recent one. Callers guarantee 0 <= i < Len().
func (h *History) Back(i int) Symbol {
	return h.symbols[len(h.symbols)-1-i]
}

// Learned reports whether the entry at index i updated the tree.
func (h *History) Learned(i int) bool {
	return h.learned[i]
}

// Symbols returns a copy of the recorded symbols.
func (h *History) Symbols() []Symbol {
	out := make([]Symbol, len(h.symbols))
	copy(out, h.symbols)
	return out
}

// Suffix returns a copy of the last n symbols (fewer if the history is
// shorter).
func (h *History) Suffix(n int) []Symbol {
	n = min(max(n, 0), len(h.symbols))
	out := make([]Symbol, n)
	copy(out, h.symbols[len(h.symbols)-n:])
	return out
}

func (h *History) push(s Symbol, learned bool) {
	h.symbols = append(h.symbols, s)
	h.learned = append(h.learned, learned)
}

func (h *History) pop() (Symbol, bool) {
	last := len(h.symbols) - 1
	s, learned := h.symbols[last], h.learned[last]
	h.symbols = h.symbols[:last]
	h.learned = h.learned[:last]
	return s, learned
}

func (h *History) clone() *History {
	return &History{
		symbols: append([]Symbol(nil), h.symbols...),
		learned: append([]bool(nil), h.learned...),
	}
}
