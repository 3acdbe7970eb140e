package index

import (
	"fmt"
	"slices"
	"strings"

	"github.com/pkg/errors"
)

// OutputMethod tags the kind of an OutputIndexMap.
type OutputMethod int

const (
	OutputConstant OutputMethod = iota
	OutputSingleInputDimension
	OutputArray
)

func (m OutputMethod) String() string {
	switch m {
	case OutputConstant:
		return "constant"
	case OutputSingleInputDimension:
		return "single_input_dimension"
	case OutputArray:
		return "array"
	default:
		return fmt.Sprintf("OutputMethod(%d)", int(m))
	}
}

// IndexArray is an integer array indexed by the input dimensions of a
// transform. Its shape has one entry per input dimension; an extent of 1
// broadcasts the array along that dimension.
type IndexArray struct {
	shape   []int64
	strides []int64
	data    []int64
}

// NewIndexArray returns an index array with the given shape and row-major
// data.
func NewIndexArray(shape []int64, data []int64) (*IndexArray, error) {
	strides := make([]int64, len(shape))
	n := int64(1)
	for i := len(shape) - 1; i >= 0; i-- {
		if shape[i] < 1 {
			return nil, errors.Wrapf(ErrInvalidArgument, "index array extent %d at dimension %d must be positive", shape[i], i)
		}
		if shape[i] > 1 {
			strides[i] = n
		}
		var ok bool
		if n, ok = MulChecked(n, shape[i]); !ok {
			return nil, errors.Wrapf(ErrArithmeticOverflow, "index array shape %v", shape)
		}
	}
	if int64(len(data)) != n {
		return nil, errors.Wrapf(ErrInvalidArgument, "index array of shape %v needs %d elements, got %d", shape, n, len(data))
	}
	return &IndexArray{shape: slices.Clone(shape), strides: strides, data: slices.Clone(data)}, nil
}

func (a *IndexArray) Shape() []int64 { return slices.Clone(a.shape) }

// DependsOn reports whether the array varies along input dimension dim.
func (a *IndexArray) DependsOn(dim int) bool { return a.shape[dim] > 1 }

// At returns the element at pos, given relative to the input domain origin.
// Broadcast dimensions ignore their coordinate.
func (a *IndexArray) At(pos []int64) int64 {
	var off int64
	for i, s := range a.strides {
		off += s * pos[i]
	}
	return a.data[off]
}

// OutputIndexMap computes one output index of a Transform.
type OutputIndexMap struct {
	method     OutputMethod
	offset     int64
	stride     int64
	inputDim   int
	array      *IndexArray
	indexRange Interval
}

// ConstantMap returns the output map `offset`.
func ConstantMap(offset int64) OutputIndexMap {
	return OutputIndexMap{method: OutputConstant, offset: offset}
}

// SingleInputDimensionMap returns the output map offset + stride*input[inputDim].
func SingleInputDimensionMap(inputDim int, offset, stride int64) OutputIndexMap {
	return OutputIndexMap{method: OutputSingleInputDimension, inputDim: inputDim, offset: offset, stride: stride}
}

// ArrayMap returns the output map offset + stride*array[input]. Array
// elements are unconstrained until WithIndexRange is applied.
func ArrayMap(array *IndexArray, offset, stride int64) OutputIndexMap {
	return OutputIndexMap{method: OutputArray, array: array, offset: offset, stride: stride, indexRange: UnboundedInterval()}
}

// WithIndexRange returns a copy of an array map whose elements must lie in r.
func (m OutputIndexMap) WithIndexRange(r Interval) OutputIndexMap {
	m.indexRange = r
	return m
}

func (m OutputIndexMap) Method() OutputMethod { return m.method }
func (m OutputIndexMap) Offset() int64        { return m.offset }
func (m OutputIndexMap) Stride() int64        { return m.stride }
func (m OutputIndexMap) InputDimension() int  { return m.inputDim }
func (m OutputIndexMap) Array() *IndexArray   { return m.array }
func (m OutputIndexMap) IndexRange() Interval { return m.indexRange }

// ArrayOutput maps an element of the index array through the map, checking
// it against the index range.
func (m OutputIndexMap) ArrayOutput(value int64) (int64, error) {
	if !m.indexRange.Contains(value) {
		return 0, errors.Wrapf(ErrIndexArrayOutOfRange, "index %d is outside valid range %v", value, m.indexRange)
	}
	out, ok := AffineChecked(m.offset, m.stride, value)
	if !ok {
		return 0, errors.Wrapf(ErrArithmeticOverflow, "computing %d + %d * %d", m.offset, m.stride, value)
	}
	return out, nil
}

func (m OutputIndexMap) equal(o OutputIndexMap) bool {
	if m.method != o.method || m.offset != o.offset {
		return false
	}
	switch m.method {
	case OutputSingleInputDimension:
		return m.stride == o.stride && m.inputDim == o.inputDim
	case OutputArray:
		return m.stride == o.stride && m.indexRange == o.indexRange &&
			slices.Equal(m.array.shape, o.array.shape) && slices.Equal(m.array.data, o.array.data)
	}
	return true
}

// Transform maps points of its input Domain to output index vectors.
type Transform struct {
	domain  Domain
	outputs []OutputIndexMap
}

// NewTransform validates and returns a transform.
func NewTransform(domain Domain, outputs ...OutputIndexMap) (Transform, error) {
	rank := domain.Rank()
	for j, m := range outputs {
		switch m.method {
		case OutputConstant:
		case OutputSingleInputDimension:
			if m.inputDim < 0 || m.inputDim >= rank {
				return Transform{}, errors.Wrapf(ErrInvalidArgument, "output dimension %d references input dimension %d of a rank %d domain", j, m.inputDim, rank)
			}
			if m.stride == 0 {
				return Transform{}, errors.Wrapf(ErrInvalidArgument, "output dimension %d has zero stride", j)
			}
		case OutputArray:
			if m.array == nil || len(m.array.shape) != rank {
				return Transform{}, errors.Wrapf(ErrInvalidArgument, "output dimension %d index array does not match input rank %d", j, rank)
			}
			if m.stride == 0 {
				return Transform{}, errors.Wrapf(ErrInvalidArgument, "output dimension %d has zero stride", j)
			}
			for i, extent := range m.array.shape {
				if extent != 1 && extent != domain.Dim(i).Size() {
					return Transform{}, errors.Wrapf(ErrInvalidArgument, "output dimension %d index array extent %d does not match input dimension %d %v", j, extent, i, domain.Dim(i))
				}
			}
		default:
			return Transform{}, errors.Wrapf(ErrInvalidArgument, "output dimension %d has unknown method %v", j, m.method)
		}
	}
	return Transform{domain: domain, outputs: slices.Clone(outputs)}, nil
}

// IdentityTransform returns the transform mapping every point of domain to
// itself.
func IdentityTransform(domain Domain) Transform {
	outputs := make([]OutputIndexMap, domain.Rank())
	for i := range outputs {
		outputs[i] = SingleInputDimensionMap(i, 0, 1)
	}
	return Transform{domain: domain, outputs: outputs}
}

func (t Transform) Domain() Domain              { return t.domain }
func (t Transform) InputRank() int              { return t.domain.Rank() }
func (t Transform) OutputRank() int             { return len(t.outputs) }
func (t Transform) Output(j int) OutputIndexMap { return t.outputs[j] }

// Apply maps input, which must lie inside the domain, to its output index
// vector.
func (t Transform) Apply(input []int64) ([]int64, error) {
	out := make([]int64, len(t.outputs))
	if err := t.ApplyTo(input, out); err != nil {
		return nil, err
	}
	return out, nil
}

// ApplyTo is Apply writing into out, which must have length OutputRank.
func (t Transform) ApplyTo(input, out []int64) error {
	if !t.domain.Contains(input) {
		return errors.Wrapf(ErrOutOfRange, "point %v is outside domain %v", input, t.domain)
	}
	var rel []int64
	for j, m := range t.outputs {
		switch m.method {
		case OutputConstant:
			out[j] = m.offset
		case OutputSingleInputDimension:
			v, ok := AffineChecked(m.offset, m.stride, input[m.inputDim])
			if !ok {
				return errors.Wrapf(ErrArithmeticOverflow, "computing output dimension %d", j)
			}
			out[j] = v
		case OutputArray:
			if rel == nil {
				rel = make([]int64, len(input))
				for i := range input {
					rel[i] = input[i] - t.domain.Dim(i).Origin()
				}
			}
			v, err := m.ArrayOutput(m.array.At(rel))
			if err != nil {
				return errors.WithMessagef(err, "output dimension %d", j)
			}
			out[j] = v
		}
	}
	return nil
}

// Equal reports whether both transforms have equal domains and output maps.
func (t Transform) Equal(other Transform) bool {
	if !t.domain.Equal(other.domain) || len(t.outputs) != len(other.outputs) {
		return false
	}
	for j := range t.outputs {
		if !t.outputs[j].equal(other.outputs[j]) {
			return false
		}
	}
	return true
}

func (t Transform) String() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Rank %d -> %d transform, domain %v", t.InputRank(), t.OutputRank(), t.domain)
	for j, m := range t.outputs {
		switch m.method {
		case OutputConstant:
			fmt.Fprintf(&sb, "\n  out[%d] = %d", j, m.offset)
		case OutputSingleInputDimension:
			fmt.Fprintf(&sb, "\n  out[%d] = %d + %d * in[%d]", j, m.offset, m.stride, m.inputDim)
		case OutputArray:
			fmt.Fprintf(&sb, "\n  out[%d] = %d + %d * array%v", j, m.offset, m.stride, m.array.shape)
		}
	}
	return sb.String()
}
