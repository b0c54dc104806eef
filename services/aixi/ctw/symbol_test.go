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

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode_LeastSignificantBitFirst(t *testing.T) {
	got, err := Encode(6, 4)
	require.NoError(t, err)
	assert.Equal(t, []Symbol{0, 1, 1, 0}, got)

	v, err := Decode(got)
	require.NoError(t, err)
	assert.Equal(t, 6, v)
}

func TestEncode_Errors(t *testing.T) {
	_, err := Encode(4, 2)
	assert.ErrorIs(t, err, ErrValueOverflow)
	_, err = Encode(-1, 3)
	assert.ErrorIs(t, err, ErrInvalidCount)
	_, err = Decode([]Symbol{0, 2})
	assert.ErrorIs(t, err, ErrInvalidSymbol)
}

func TestEncode_ZeroWidth(t *testing.T) {
	got, err := Encode(0, 0)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestAppendEncoded(t *testing.T) {
	dst, err := AppendEncoded([]Symbol{1}, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, []Symbol{1, 0, 1}, dst)
}
