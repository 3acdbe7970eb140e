// Package gridpartition decomposes an index transform over a regular grid
// laid on a subset of its output dimensions. It is used to split an array
// request into one sub-request per chunk of a chunked array.
package gridpartition

import (
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/TuSKan/zarr-index/index"
)

// IndexTransformGridPartition is the precomputed partition of an index
// transform's input dimensions with respect to a set of grid dimensions.
//
// It is a container for the StridedSets and IndexArraySets describing every
// connected set of input and grid dimensions. The dimension lists of all
// sets are sub-slices of a single buffer owned by the partition.
type IndexTransformGridPartition struct {
	dimensions     []int
	stridedSets    []StridedSet
	indexArraySets []IndexArraySet
}

// StridedSets returns the connected sets linked only through
// single_input_dimension output maps.
func (p *IndexTransformGridPartition) StridedSets() []StridedSet { return p.stridedSets }

// IndexArraySets returns the connected sets linked through at least one
// index array output map.
func (p *IndexTransformGridPartition) IndexArraySets() []IndexArraySet { return p.indexArraySets }

// IndexArraySet is a connected set containing index array dependencies.
//
// The partial grid cell index vectors touched by the set are precomputed,
// and for each of them the input index vectors that map into it.
type IndexArraySet struct {
	gridDimensions  []int
	inputDimensions []int

	// Row-major [numCells, len(gridDimensions)], lexicographically sorted
	// and distinct.
	gridCellIndices []int64

	// Row-major [numPositions, len(inputDimensions)], grouped by grid cell in
	// the order of gridCellIndices.
	partitionedInputIndices []int64

	// Length numCells+1; cell i owns positions [offsets[i], offsets[i+1]).
	gridCellPartitionOffsets []int64
}

// GridDimensions returns the grid dimension indices in the set, ascending.
func (s *IndexArraySet) GridDimensions() []int { return s.gridDimensions }

// InputDimensions returns the input dimension indices in the set, ascending.
func (s *IndexArraySet) InputDimensions() []int { return s.inputDimensions }

// NumPartitions returns the number of distinct partial grid cells.
func (s *IndexArraySet) NumPartitions() int { return len(s.gridCellPartitionOffsets) - 1 }

// PartitionGridCellIndices returns the partial grid cell index vector of
// partition i, one entry per GridDimensions.
func (s *IndexArraySet) PartitionGridCellIndices(i int) []int64 {
	n := len(s.gridDimensions)
	return s.gridCellIndices[i*n : (i+1)*n : (i+1)*n]
}

// NumPartitionPositions returns the number of input index vectors in
// partition i.
func (s *IndexArraySet) NumPartitionPositions(i int) int {
	return int(s.gridCellPartitionOffsets[i+1] - s.gridCellPartitionOffsets[i])
}

// PartitionInputIndices returns the row-major array of shape
// [NumPartitionPositions(i), len(InputDimensions)] holding the input index
// vectors of partition i.
func (s *IndexArraySet) PartitionInputIndices(i int) []int64 {
	n := int64(len(s.inputDimensions))
	begin, end := s.gridCellPartitionOffsets[i]*n, s.gridCellPartitionOffsets[i+1]*n
	return s.partitionedInputIndices[begin:end:end]
}

func (s *IndexArraySet) GridCellIndices() []int64          { return s.gridCellIndices }
func (s *IndexArraySet) PartitionedInputIndices() []int64  { return s.partitionedInputIndices }
func (s *IndexArraySet) GridCellPartitionOffsets() []int64 { return s.gridCellPartitionOffsets }

// PrePartitionIndexTransformOverRegularGrid precomputes the partition of
// transform over a regular grid.
//
// Grid dimension g corresponds to output dimension gridOutputDims[g] and
// has cells of size gridCellShape[g]. The grid extends over all integers:
// cell v covers [v*gridCellShape, (v+1)*gridCellShape).
//
// A nil partition and nil error are returned when no grid dimensions are
// given. Errors wrap index.ErrUnboundedGridInputDimension when an input
// dimension reachable from a grid dimension is unbounded,
// index.ErrArithmeticOverflow on integer overflow, and
// index.ErrIndexArrayOutOfRange when an index array element lies outside
// its index range.
func PrePartitionIndexTransformOverRegularGrid(transform index.Transform, gridOutputDims []int, gridCellShape []int64) (*IndexTransformGridPartition, error) {
	if err := validateGrid(transform, gridOutputDims, gridCellShape); err != nil {
		return nil, err
	}
	if len(gridOutputDims) == 0 {
		return nil, nil
	}

	sets := findConnectedSets(transform, gridOutputDims)
	domain := transform.Domain()
	for _, set := range sets {
		for _, d := range set.inputDims {
			if dim := domain.Dim(d); !dim.IsFinite() {
				return nil, errors.Wrapf(index.ErrUnboundedGridInputDimension,
					"Input dimension %d has unbounded domain %v", d, dim.Interval)
			}
		}
	}
	if err := checkAffineRanges(transform, gridOutputDims); err != nil {
		return nil, err
	}
	if err := checkUnpartitionedArrays(transform, gridOutputDims, sets); err != nil {
		return nil, err
	}

	p := &IndexTransformGridPartition{
		dimensions: make([]int, 0, transform.InputRank()+len(gridOutputDims)),
	}
	for _, set := range sets {
		gridDims := p.appendDimensions(set.gridDims)
		inputDims := p.appendDimensions(set.inputDims)
		if !set.hasArray {
			p.stridedSets = append(p.stridedSets, newStridedSet(transform, gridOutputDims, gridCellShape, gridDims, inputDims[0]))
			continue
		}
		s := IndexArraySet{gridDimensions: gridDims, inputDimensions: inputDims}
		if err := s.fill(transform, gridOutputDims, gridCellShape); err != nil {
			return nil, err
		}
		p.indexArraySets = append(p.indexArraySets, s)
	}
	return p, nil
}

// appendDimensions copies dims into the partition's buffer and returns the
// copy. The buffer is allocated with enough capacity for every set, so it
// is never reallocated.
func (p *IndexTransformGridPartition) appendDimensions(dims []int) []int {
	begin := len(p.dimensions)
	p.dimensions = append(p.dimensions, dims...)
	end := len(p.dimensions)
	return p.dimensions[begin:end:end]
}

func validateGrid(transform index.Transform, gridOutputDims []int, gridCellShape []int64) error {
	if len(gridOutputDims) != len(gridCellShape) {
		return errors.Wrapf(index.ErrInvalidArgument, "%d grid output dimensions but grid cell shape has rank %d",
			len(gridOutputDims), len(gridCellShape))
	}
	seen := make([]bool, transform.OutputRank())
	for g, outputDim := range gridOutputDims {
		if outputDim < 0 || outputDim >= transform.OutputRank() {
			return errors.Wrapf(index.ErrInvalidArgument, "grid dimension %d references output dimension %d of a rank %d transform",
				g, outputDim, transform.OutputRank())
		}
		if seen[outputDim] {
			return errors.Wrapf(index.ErrInvalidArgument, "output dimension %d is listed twice as a grid dimension", outputDim)
		}
		seen[outputDim] = true
		if gridCellShape[g] <= 0 {
			return errors.Wrapf(index.ErrInvalidArgument, "grid cell size %d for grid dimension %d must be positive", gridCellShape[g], g)
		}
	}
	return nil
}

// checkUnpartitionedArrays verifies the single element of each index array
// grid map that belongs to no set, since every such array has extent 1 in
// all input dimensions.
func checkUnpartitionedArrays(transform index.Transform, gridOutputDims []int, sets []connectedSet) error {
	inSet := make([]bool, len(gridOutputDims))
	for _, set := range sets {
		for _, g := range set.gridDims {
			inSet[g] = true
		}
	}
	zeros := make([]int64, transform.InputRank())
	for g, outputDim := range gridOutputDims {
		m := transform.Output(outputDim)
		if inSet[g] || m.Method() != index.OutputArray {
			continue
		}
		if _, err := m.ArrayOutput(m.Array().At(zeros)); err != nil {
			return errors.WithMessagef(err, "output dimension %d", outputDim)
		}
	}
	return nil
}

// checkAffineRanges verifies that single_input_dimension grid maps cannot
// overflow over their input domain, so later evaluation needs no checks.
func checkAffineRanges(transform index.Transform, gridOutputDims []int) error {
	for _, outputDim := range gridOutputDims {
		m := transform.Output(outputDim)
		if m.Method() != index.OutputSingleInputDimension {
			continue
		}
		iv := transform.Domain().Dim(m.InputDimension()).Interval
		if iv.Empty() {
			continue
		}
		_, okLo := index.AffineChecked(m.Offset(), m.Stride(), iv.Origin())
		_, okHi := index.AffineChecked(m.Offset(), m.Stride(), iv.InclusiveMax())
		if !okLo || !okHi || m.Stride() == math.MinInt64 {
			return errors.Wrapf(index.ErrArithmeticOverflow,
				"Computing range of output dimension %d: %d + %d * %v", outputDim, m.Offset(), m.Stride(), iv)
		}
	}
	return nil
}

// fill enumerates every input position of the set, computes its partial
// grid cell index vector, and groups positions by cell.
func (s *IndexArraySet) fill(transform index.Transform, gridOutputDims []int, gridCellShape []int64) error {
	domain := transform.Domain()
	numInputs := len(s.inputDimensions)
	numGrid := len(s.gridDimensions)

	extents := make([]int64, numInputs)
	numPositions := int64(1)
	for i, d := range s.inputDimensions {
		extents[i] = domain.Dim(d).Size()
		var ok bool
		if numPositions, ok = index.MulChecked(numPositions, extents[i]); !ok || numPositions > index.MaxFiniteIndex {
			return errors.Wrapf(index.ErrArithmeticOverflow, "number of positions over input dimensions %v", s.inputDimensions)
		}
	}

	// Relative position over the full input rank; dimensions outside the set
	// stay at 0, which is valid for any index array in the set.
	rel := make([]int64, transform.InputRank())
	coords := make([]int64, numInputs)
	keys := make([]int64, numPositions*int64(numGrid))
	for pos := int64(0); pos < numPositions; pos++ {
		unravel(pos, extents, coords)
		for i, d := range s.inputDimensions {
			rel[d] = coords[i]
		}
		key := keys[pos*int64(numGrid) : (pos+1)*int64(numGrid)]
		for k, g := range s.gridDimensions {
			m := transform.Output(gridOutputDims[g])
			var out int64
			switch m.Method() {
			case index.OutputSingleInputDimension:
				d := m.InputDimension()
				out = m.Offset() + m.Stride()*(domain.Dim(d).Origin()+rel[d])
			case index.OutputArray:
				var err error
				if out, err = m.ArrayOutput(m.Array().At(rel)); err != nil {
					return errors.WithMessagef(err, "output dimension %d", gridOutputDims[g])
				}
			}
			key[k] = index.FloorOfRatio(out, gridCellShape[g])
		}
	}

	perm := make([]int64, numPositions)
	for i := range perm {
		perm[i] = int64(i)
	}
	row := func(p int64) []int64 { return keys[p*int64(numGrid) : (p+1)*int64(numGrid)] }
	slices.SortStableFunc(perm, func(a, b int64) int { return slices.Compare(row(a), row(b)) })

	s.partitionedInputIndices = make([]int64, 0, numPositions*int64(numInputs))
	s.gridCellPartitionOffsets = []int64{0}
	for i, p := range perm {
		if i == 0 || slices.Compare(row(perm[i-1]), row(p)) != 0 {
			if i > 0 {
				s.gridCellPartitionOffsets = append(s.gridCellPartitionOffsets, int64(i))
			}
			s.gridCellIndices = append(s.gridCellIndices, row(p)...)
		}
		unravel(p, extents, coords)
		for k, d := range s.inputDimensions {
			s.partitionedInputIndices = append(s.partitionedInputIndices, domain.Dim(d).Origin()+coords[k])
		}
	}
	if numPositions > 0 {
		s.gridCellPartitionOffsets = append(s.gridCellPartitionOffsets, numPositions)
	}
	return nil
}

// unravel writes the coordinates of the row-major linear position pos in an
// array of the given extents into coords.
func unravel(pos int64, extents, coords []int64) {
	for i := len(extents) - 1; i >= 0; i-- {
		coords[i] = pos % extents[i]
		pos /= extents[i]
	}
}
