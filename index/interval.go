// Package index holds the index-space model used to describe array requests:
// half-open intervals, labeled domains, and index transforms whose output
// dimensions are constant, affine in one input dimension, or looked up from
// an index array. It also implements domain alignment.
package index

import (
	"fmt"
	"math/bits"

	"github.com/pkg/errors"
)

// InfIndex is the sentinel magnitude used for unbounded interval endpoints.
// Finite indices lie in [-InfIndex+1, InfIndex-1].
const InfIndex int64 = 1<<62 - 1

const (
	MinFiniteIndex int64 = -InfIndex + 1
	MaxFiniteIndex int64 = InfIndex - 1
)

// Interval is a half-open interval [origin, exclusiveMax) of indices.
// An origin of -InfIndex means unbounded below; an exclusiveMax of
// InfIndex+1 means unbounded above.
type Interval struct {
	origin       int64
	exclusiveMax int64
}

// IntervalClosedOpen returns [origin, exclusiveMax).
func IntervalClosedOpen(origin, exclusiveMax int64) (Interval, error) {
	if origin < -InfIndex || origin > InfIndex || exclusiveMax < -InfIndex+1 ||
		exclusiveMax > InfIndex+1 || origin > exclusiveMax {
		return Interval{}, errors.Wrapf(ErrInvalidArgument, "invalid interval [%d, %d)", origin, exclusiveMax)
	}
	return Interval{origin: origin, exclusiveMax: exclusiveMax}, nil
}

// IntervalSized returns [origin, origin+size).
func IntervalSized(origin, size int64) (Interval, error) {
	end, ok := AddChecked(origin, size)
	if !ok || size < 0 {
		return Interval{}, errors.Wrapf(ErrInvalidArgument, "invalid interval of size %d at %d", size, origin)
	}
	return IntervalClosedOpen(origin, end)
}

// UnboundedInterval returns (-inf, +inf).
func UnboundedInterval() Interval {
	return Interval{origin: -InfIndex, exclusiveMax: InfIndex + 1}
}

func (iv Interval) Origin() int64       { return iv.origin }
func (iv Interval) ExclusiveMax() int64 { return iv.exclusiveMax }

// InclusiveMax returns the last index of the interval.
func (iv Interval) InclusiveMax() int64 { return iv.exclusiveMax - 1 }

// Size returns the number of indices. Unbounded intervals report a size
// larger than any finite interval can have.
func (iv Interval) Size() int64 { return iv.exclusiveMax - iv.origin }

func (iv Interval) Empty() bool { return iv.origin == iv.exclusiveMax }

func (iv Interval) UnboundedBelow() bool { return iv.origin == -InfIndex }
func (iv Interval) UnboundedAbove() bool { return iv.exclusiveMax == InfIndex+1 }

// IsFinite reports whether both endpoints are finite.
func (iv Interval) IsFinite() bool { return !iv.UnboundedBelow() && !iv.UnboundedAbove() }

func (iv Interval) Contains(i int64) bool { return i >= iv.origin && i < iv.exclusiveMax }

// ContainsInterval reports whether other lies within iv. Empty intervals are
// contained in any interval.
func (iv Interval) ContainsInterval(other Interval) bool {
	return other.Empty() || (other.origin >= iv.origin && other.exclusiveMax <= iv.exclusiveMax)
}

func (iv Interval) String() string {
	lo := "["
	if iv.UnboundedBelow() {
		lo = "(-inf"
	} else {
		lo += fmt.Sprint(iv.origin)
	}
	hi := ")"
	if iv.UnboundedAbove() {
		hi = "+inf)"
	} else {
		hi = fmt.Sprint(iv.exclusiveMax) + hi
	}
	return lo + ", " + hi
}

// AddChecked returns a+b and whether it did not overflow.
func AddChecked(a, b int64) (int64, bool) {
	c := a + b
	if (c > a) != (b > 0) {
		return c, false
	}
	return c, true
}

// SubChecked returns a-b and whether it did not overflow.
func SubChecked(a, b int64) (int64, bool) {
	c := a - b
	if (c < a) != (b > 0) {
		return c, false
	}
	return c, true
}

// MulChecked returns a*b and whether it did not overflow.
func MulChecked(a, b int64) (int64, bool) {
	if a == 0 || b == 0 {
		return 0, true
	}
	neg := (a < 0) != (b < 0)
	hi, lo := bits.Mul64(absUint(a), absUint(b))
	if hi != 0 {
		return 0, false
	}
	if neg {
		if lo > 1<<63 {
			return 0, false
		}
		return -int64(lo), true
	}
	if lo > 1<<63-1 {
		return 0, false
	}
	return int64(lo), true
}

// AffineChecked returns offset + stride*x, failing if the result overflows
// or leaves the finite index range.
func AffineChecked(offset, stride, x int64) (int64, bool) {
	p, ok := MulChecked(stride, x)
	if !ok {
		return 0, false
	}
	r, ok := AddChecked(offset, p)
	if !ok || r < MinFiniteIndex || r > MaxFiniteIndex {
		return 0, false
	}
	return r, true
}

// FloorOfRatio returns floor(n/d) for d > 0.
func FloorOfRatio(n, d int64) int64 {
	q := n / d
	if n%d != 0 && (n < 0) != (d < 0) {
		q--
	}
	return q
}

// CeilOfRatio returns ceil(n/d) for d > 0.
func CeilOfRatio(n, d int64) int64 {
	q := n / d
	if n%d != 0 && (n < 0) == (d < 0) {
		q++
	}
	return q
}

func absUint(a int64) uint64 {
	if a < 0 {
		return uint64(-(a + 1)) + 1
	}
	return uint64(a)
}
