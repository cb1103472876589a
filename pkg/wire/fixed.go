// SPDX-FileCopyrightText: 2026 The wl-proxy Authors
//
// SPDX-License-Identifier: GPL-3.0-or-later

package wire

import (
	"math"
	"strconv"
)

// Fixed is a signed 24.8 fixed point number as used by the wire protocol.
type Fixed int32

const (
	fixedShift = 8
	fixedOne   = 1 << fixedShift
)

const (
	FixedMax     Fixed = math.MaxInt32
	FixedMin     Fixed = math.MinInt32
	FixedEpsilon Fixed = 1
)

// FixedFromFloat64 converts v, truncating towards zero and saturating at the
// representable range.
func FixedFromFloat64(v float64) Fixed {
	v *= fixedOne
	switch {
	case math.IsNaN(v):
		return 0
	case v >= math.MaxInt32:
		return FixedMax
	case v <= math.MinInt32:
		return FixedMin
	default:
		return Fixed(int32(v))
	}
}

// FixedFromInt converts v saturating at the representable range.
func FixedFromInt(v int64) Fixed {
	switch {
	case v > math.MaxInt32>>fixedShift:
		return FixedMax
	case v < math.MinInt32>>fixedShift:
		return FixedMin
	default:
		return Fixed(v << fixedShift)
	}
}

// Float64 is lossless.
func (f Fixed) Float64() float64 {
	return float64(f) / fixedOne
}

// Round converts f to the nearest integer, rounding halves away from zero.
func (f Fixed) Round() int32 {
	if f >= 0 {
		return int32((int64(f) + fixedOne/2) / fixedOne)
	}
	return int32((int64(f) - fixedOne/2) / fixedOne)
}

// Trunc rounds towards zero.
func (f Fixed) Trunc() int32 {
	return int32(int64(f) / fixedOne)
}

// Floor rounds towards minus infinity.
func (f Fixed) Floor() int32 {
	return int32(f) >> fixedShift
}

// Ceil rounds towards infinity.
func (f Fixed) Ceil() int32 {
	return int32((int64(f) + fixedOne - 1) >> fixedShift)
}

func (f Fixed) String() string {
	return strconv.FormatFloat(f.Float64(), 'f', -1, 64)
}
