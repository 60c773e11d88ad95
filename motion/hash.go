// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package motion

import (
	"fmt"
	"math"
)

// HashAcceleration derives the correlation key submitted with a bump report.
// Each axis is rounded half up to an integer, the axes are joined as "x,y,z",
// and the string is folded with a 32-bit polynomial rolling hash. The result
// is the absolute hash value as 8 lowercase hex digits.
//
// The hash is a correlation key for the relay service, not a unique or secure
// identifier; collisions are expected across unrelated vectors.
func HashAcceleration(v Vector) string {
	key := fmt.Sprintf("%d,%d,%d", roundHalfUp(v.X), roundHalfUp(v.Y), roundHalfUp(v.Z))

	var h int32
	for i := 0; i < len(key); i++ {
		h = h<<5 - h + int32(key[i])
	}

	abs := int64(h)
	if abs < 0 {
		abs = -abs
	}
	return fmt.Sprintf("%08x", abs)
}

func roundHalfUp(f float64) int64 {
	return int64(math.Floor(f + 0.5))
}
