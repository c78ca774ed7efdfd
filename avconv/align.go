package avconv

import (
	"golang.org/x/exp/constraints"
)

// AlignUp rounds v up to a multiple of alignment; hardware decoders
// produce pictures with dimensions aligned this way.
func AlignUp[T constraints.Integer](v, alignment T) T {
	if alignment <= 1 {
		return v
	}
	return (v + alignment - 1) / alignment * alignment
}
