package gridpartition

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/TuSKan/zarr-index/index"
)

// CellFunc receives one grid cell touched by a transform. gridCellIndices
// has one entry per grid dimension and is reused between calls.
// cellTransform maps a cell-local input space onto the input space of the
// partitioned transform, restricted to the positions that fall in the cell.
type CellFunc func(gridCellIndices []int64, cellTransform index.Transform) error

// PartitionIndexTransformOverRegularGrid calls fn once for every grid cell
// that transform touches.
//
// The input domain of each cell transform keeps the input dimensions that
// are not part of an IndexArraySet, in order and with their labels; those
// in a StridedSet are restricted to the partition interval. One unlabeled
// dimension per IndexArraySet follows, enumerating the positions of the
// partition; the set's input dimensions are then computed by index arrays.
//
// With no grid dimensions fn is called once with an identity transform and
// an empty cell index. An empty input domain touches no cells.
func PartitionIndexTransformOverRegularGrid(transform index.Transform, gridOutputDims []int, gridCellShape []int64, fn CellFunc) error {
	if err := validateGrid(transform, gridOutputDims, gridCellShape); err != nil {
		return err
	}
	domain := transform.Domain()
	if len(gridOutputDims) == 0 {
		return fn(nil, index.IdentityTransform(domain))
	}
	for d := 0; d < domain.Rank(); d++ {
		if domain.Dim(d).Empty() {
			return nil
		}
	}

	partition, err := PrePartitionIndexTransformOverRegularGrid(transform, gridOutputDims, gridCellShape)
	if err != nil {
		return err
	}
	it, err := newCellIterator(transform, gridOutputDims, gridCellShape, partition)
	if err != nil {
		return err
	}
	return it.run(0, fn)
}

// stridedPartition is one materialized partition of a StridedSet.
type stridedPartition struct {
	cell     []int64
	interval index.Interval
}

type cellIterator struct {
	domain     index.Domain
	partition  *IndexTransformGridPartition
	strided    [][]stridedPartition
	gridCell   []int64
	intervals  []index.Interval
	arraySizes []int64
	current    []int

	// Per input dimension: position in the cell domain, or -1 when the
	// dimension belongs to an IndexArraySet.
	cellDim []int
	// Per input dimension in an IndexArraySet: set index and column.
	arraySet, arrayColumn []int
	numRetained           int
}

func newCellIterator(transform index.Transform, gridOutputDims []int, gridCellShape []int64, p *IndexTransformGridPartition) (*cellIterator, error) {
	domain := transform.Domain()
	rank := domain.Rank()
	it := &cellIterator{
		domain:      domain,
		partition:   p,
		gridCell:    make([]int64, len(gridOutputDims)),
		intervals:   make([]index.Interval, rank),
		arraySizes:  make([]int64, len(p.indexArraySets)),
		current:     make([]int, len(p.indexArraySets)),
		cellDim:     make([]int, rank),
		arraySet:    make([]int, rank),
		arrayColumn: make([]int, rank),
	}
	for d := 0; d < rank; d++ {
		it.intervals[d] = domain.Dim(d).Interval
	}

	// Grid dimensions outside every connected set are fixed for all cells.
	inSet := make([]bool, len(gridOutputDims))
	for i := range p.stridedSets {
		for _, g := range p.stridedSets[i].GridDimensions() {
			inSet[g] = true
		}
	}
	for i := range p.indexArraySets {
		for _, g := range p.indexArraySets[i].GridDimensions() {
			inSet[g] = true
		}
	}
	zeros := make([]int64, rank)
	for g, outputDim := range gridOutputDims {
		if inSet[g] {
			continue
		}
		m := transform.Output(outputDim)
		out := m.Offset()
		if m.Method() == index.OutputArray {
			var err error
			if out, err = m.ArrayOutput(m.Array().At(zeros)); err != nil {
				return nil, errors.WithMessagef(err, "output dimension %d", outputDim)
			}
		}
		it.gridCell[g] = index.FloorOfRatio(out, gridCellShape[g])
	}

	for a := range p.indexArraySets {
		for k, d := range p.indexArraySets[a].InputDimensions() {
			it.cellDim[d] = -1
			it.arraySet[d] = a
			it.arrayColumn[d] = k
		}
	}
	for d := 0; d < rank; d++ {
		if it.cellDim[d] != -1 {
			it.cellDim[d] = it.numRetained
			it.numRetained++
		}
	}

	it.strided = make([][]stridedPartition, len(p.stridedSets))
	for i := range p.stridedSets {
		err := p.stridedSets[i].ForEachPartition(func(cell []int64, iv index.Interval) error {
			it.strided[i] = append(it.strided[i], stridedPartition{cell: slices.Clone(cell), interval: iv})
			return nil
		})
		if err != nil {
			return nil, err
		}
	}
	return it, nil
}

// run iterates the cartesian product of strided partitions, then index
// array partitions, starting at set k.
func (it *cellIterator) run(k int, fn CellFunc) error {
	p := it.partition
	if k < len(p.stridedSets) {
		set := &p.stridedSets[k]
		for _, part := range it.strided[k] {
			for j, g := range set.GridDimensions() {
				it.gridCell[g] = part.cell[j]
			}
			it.intervals[set.InputDimension()] = part.interval
			if err := it.run(k+1, fn); err != nil {
				return err
			}
		}
		return nil
	}
	a := k - len(p.stridedSets)
	if a < len(p.indexArraySets) {
		set := &p.indexArraySets[a]
		for i := 0; i < set.NumPartitions(); i++ {
			for j, g := range set.GridDimensions() {
				it.gridCell[g] = set.PartitionGridCellIndices(i)[j]
			}
			it.current[a] = i
			it.arraySizes[a] = int64(set.NumPartitionPositions(i))
			if err := it.run(k+1, fn); err != nil {
				return err
			}
		}
		return nil
	}
	cellTransform, err := it.cellTransform()
	if err != nil {
		return err
	}
	return fn(it.gridCell, cellTransform)
}

// cellTransform builds the transform for the current cell.
func (it *cellIterator) cellTransform() (index.Transform, error) {
	p := it.partition
	rank := it.domain.Rank()
	cellRank := it.numRetained + len(p.indexArraySets)

	dims := make([]index.Dimension, cellRank)
	for d := 0; d < rank; d++ {
		if c := it.cellDim[d]; c >= 0 {
			dims[c] = index.Dimension{Interval: it.intervals[d], Label: it.domain.Dim(d).Label}
		}
	}
	for a, n := range it.arraySizes {
		iv, err := index.IntervalSized(0, n)
		if err != nil {
			return index.Transform{}, err
		}
		dims[it.numRetained+a] = index.Dimension{Interval: iv}
	}
	cellDomain, err := index.NewDomain(dims...)
	if err != nil {
		return index.Transform{}, err
	}

	outputs := make([]index.OutputIndexMap, rank)
	for d := 0; d < rank; d++ {
		if c := it.cellDim[d]; c >= 0 {
			outputs[d] = index.SingleInputDimensionMap(c, 0, 1)
			continue
		}
		a := it.arraySet[d]
		set := &p.indexArraySets[a]
		rows := set.PartitionInputIndices(it.current[a])
		width := len(set.InputDimensions())
		column := make([]int64, it.arraySizes[a])
		for r := range column {
			column[r] = rows[r*width+it.arrayColumn[d]]
		}
		shape := make([]int64, cellRank)
		for i := range shape {
			shape[i] = 1
		}
		shape[it.numRetained+a] = it.arraySizes[a]
		arr, err := index.NewIndexArray(shape, column)
		if err != nil {
			return index.Transform{}, err
		}
		outputs[d] = index.ArrayMap(arr, 0, 1)
	}
	return index.NewTransform(cellDomain, outputs...)
}
