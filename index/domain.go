package index

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Dimension describes one dimension of a Domain.
type Dimension struct {
	Interval
	Label string
}

// String formats the dimension as {[3, 7)} or {"x": [3, 7)}.
func (d Dimension) String() string {
	if d.Label == "" {
		return "{" + d.Interval.String() + "}"
	}
	return "{" + strconv.Quote(d.Label) + ": " + d.Interval.String() + "}"
}

// Domain is an immutable, ordered sequence of dimensions. Non-empty labels
// are unique within a domain.
type Domain struct {
	dims []Dimension
}

// NewDomain returns a domain from its dimensions.
func NewDomain(dims ...Dimension) (Domain, error) {
	seen := make(map[string]int, len(dims))
	for i, d := range dims {
		if d.Label == "" {
			continue
		}
		if j, found := seen[d.Label]; found {
			return Domain{}, errors.Wrapf(ErrDuplicateLabel, "dimension %d and %d are both labeled %q", j, i, d.Label)
		}
		seen[d.Label] = i
	}
	return Domain{dims: append([]Dimension(nil), dims...)}, nil
}

// NewBoxDomain returns an unlabeled domain [origin, origin+shape).
func NewBoxDomain(origin, shape []int64) (Domain, error) {
	if len(origin) != len(shape) {
		return Domain{}, errors.Wrapf(ErrInvalidArgument, "origin has rank %d but shape has rank %d", len(origin), len(shape))
	}
	dims := make([]Dimension, len(origin))
	for i := range origin {
		iv, err := IntervalSized(origin[i], shape[i])
		if err != nil {
			return Domain{}, errors.WithMessagef(err, "dimension %d", i)
		}
		dims[i] = Dimension{Interval: iv}
	}
	return Domain{dims: dims}, nil
}

// WithLabels returns a copy of d with the given labels.
func (d Domain) WithLabels(labels ...string) (Domain, error) {
	if len(labels) != d.Rank() {
		return Domain{}, errors.Wrapf(ErrInvalidArgument, "got %d labels for a domain of rank %d", len(labels), d.Rank())
	}
	dims := make([]Dimension, len(d.dims))
	for i, dim := range d.dims {
		dims[i] = Dimension{Interval: dim.Interval, Label: labels[i]}
	}
	return NewDomain(dims...)
}

func (d Domain) Rank() int { return len(d.dims) }

func (d Domain) Dim(i int) Dimension { return d.dims[i] }

func (d Domain) Origin() []int64 {
	out := make([]int64, len(d.dims))
	for i, dim := range d.dims {
		out[i] = dim.Origin()
	}
	return out
}

func (d Domain) ExclusiveMax() []int64 {
	out := make([]int64, len(d.dims))
	for i, dim := range d.dims {
		out[i] = dim.ExclusiveMax()
	}
	return out
}

func (d Domain) Shape() []int64 {
	out := make([]int64, len(d.dims))
	for i, dim := range d.dims {
		out[i] = dim.Size()
	}
	return out
}

func (d Domain) Labels() []string {
	out := make([]string, len(d.dims))
	for i, dim := range d.dims {
		out[i] = dim.Label
	}
	return out
}

// Labeled reports whether at least one dimension carries a label.
func (d Domain) Labeled() bool {
	for _, dim := range d.dims {
		if dim.Label != "" {
			return true
		}
	}
	return false
}

// Contains reports whether point lies inside the domain.
func (d Domain) Contains(point []int64) bool {
	if len(point) != len(d.dims) {
		return false
	}
	for i, dim := range d.dims {
		if !dim.Contains(point[i]) {
			return false
		}
	}
	return true
}

// NumElements returns the number of points in a finite domain.
func (d Domain) NumElements() (int64, error) {
	n := int64(1)
	for i, dim := range d.dims {
		if !dim.IsFinite() {
			return 0, errors.Wrapf(ErrInvalidArgument, "dimension %d has unbounded domain %v", i, dim.Interval)
		}
		var ok bool
		if n, ok = MulChecked(n, dim.Size()); !ok {
			return 0, errors.Wrapf(ErrArithmeticOverflow, "number of elements of %v", d)
		}
	}
	return n, nil
}

// Equal reports whether both domains have the same intervals and labels.
func (d Domain) Equal(other Domain) bool {
	if len(d.dims) != len(other.dims) {
		return false
	}
	for i := range d.dims {
		if d.dims[i] != other.dims[i] {
			return false
		}
	}
	return true
}

func (d Domain) String() string {
	var sb strings.Builder
	sb.WriteString("{")
	for i, dim := range d.dims {
		if i > 0 {
			sb.WriteString(", ")
		}
		if dim.Label != "" {
			fmt.Fprintf(&sb, "%q: ", dim.Label)
		}
		sb.WriteString(dim.Interval.String())
	}
	sb.WriteString("}")
	return sb.String()
}
