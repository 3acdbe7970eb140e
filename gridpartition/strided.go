package gridpartition

import "github.com/TuSKan/zarr-index/index"

// StridedSet is a connected set whose grid dimensions are all
// single_input_dimension maps of the same input dimension.
//
// No precomputation is needed: the grid cell of an input index is a direct
// function of it, so partitions are found by walking the input interval and
// cutting it at grid cell boundaries.
type StridedSet struct {
	gridDimensions []int
	inputDimension int
	domain         index.Interval
	maps           []stridedMap
}

// stridedMap is the affine map of one grid dimension of a StridedSet.
type stridedMap struct {
	offset, stride, cellSize int64
}

func newStridedSet(transform index.Transform, gridOutputDims []int, gridCellShape []int64, gridDims []int, inputDim int) StridedSet {
	s := StridedSet{
		gridDimensions: gridDims,
		inputDimension: inputDim,
		domain:         transform.Domain().Dim(inputDim).Interval,
		maps:           make([]stridedMap, len(gridDims)),
	}
	for k, g := range gridDims {
		m := transform.Output(gridOutputDims[g])
		s.maps[k] = stridedMap{offset: m.Offset(), stride: m.Stride(), cellSize: gridCellShape[g]}
	}
	return s
}

// GridDimensions returns the grid dimension indices in the set, ascending.
func (s *StridedSet) GridDimensions() []int { return s.gridDimensions }

// InputDimension returns the single input dimension of the set.
func (s *StridedSet) InputDimension() int { return s.inputDimension }

// NumPartitions returns the number of maximal input intervals that map into
// a single grid cell.
func (s *StridedSet) NumPartitions() (int, error) {
	n := 0
	err := s.ForEachPartition(func([]int64, index.Interval) error {
		n++
		return nil
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

// ForEachPartition calls fn, in increasing input order, with each maximal
// input interval that maps into a single partial grid cell, and that cell's
// index vector (one entry per GridDimensions). The gridCellIndices slice is
// reused between calls. Iteration stops at the first error returned by fn.
func (s *StridedSet) ForEachPartition(fn func(gridCellIndices []int64, interval index.Interval) error) error {
	cell := make([]int64, len(s.maps))
	for i := s.domain.Origin(); i < s.domain.ExclusiveMax(); {
		end := s.domain.ExclusiveMax()
		for k, m := range s.maps {
			cell[k], _ = m.position(i)
			if next, ok := m.nextBoundary(i); ok && next < end {
				end = next
			}
		}
		iv, err := index.IntervalClosedOpen(i, end)
		if err != nil {
			return err
		}
		if err := fn(cell, iv); err != nil {
			return err
		}
		i = end
	}
	return nil
}

// position returns the grid cell of input index i and the position of its
// output within that cell, in [0, cellSize). The output is representable
// for every i in the domain.
func (m stridedMap) position(i int64) (cell, within int64) {
	out := m.offset + m.stride*i
	within = out % m.cellSize
	if within < 0 {
		within += m.cellSize
	}
	return index.FloorOfRatio(out, m.cellSize), within
}

// nextBoundary returns the smallest input index after i that maps into a
// different grid cell than i, or false if it is past the largest int64.
func (m stridedMap) nextBoundary(i int64) (int64, bool) {
	_, within := m.position(i)
	var steps int64
	if m.stride > 0 {
		// Steps until the output reaches the next cell.
		steps = index.CeilOfRatio(m.cellSize-within, m.stride)
	} else {
		// Steps until the output drops below the start of the cell.
		steps = index.CeilOfRatio(within+1, -m.stride)
	}
	return index.AddChecked(i, steps)
}
