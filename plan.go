package zarr

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/TuSKan/zarr-index/gridpartition"
	"github.com/TuSKan/zarr-index/index"
)

// ChunkRequest describes the part of a read or write that falls into one
// chunk.
type ChunkRequest struct {
	Key         string
	Cell        []int64
	NumElements int64
	NumBytes    int64
}

// Plan returns, in partition order, the chunks that transform touches and
// how many of its elements fall into each. No chunk data is read.
func (r *Reader) Plan(transform index.Transform) ([]ChunkRequest, error) {
	if _, err := r.checkTransform(transform); err != nil {
		return nil, err
	}
	rank := len(r.meta.Shape)
	gridDims := make([]int, rank)
	cellShape := make([]int64, rank)
	for i := range gridDims {
		gridDims[i] = i
		cellShape[i] = int64(r.meta.Chunks[i])
	}
	grid := GridShape(r.meta.Shape, r.meta.Chunks)

	var plan []ChunkRequest
	err := gridpartition.PartitionIndexTransformOverRegularGrid(transform, gridDims, cellShape,
		func(cell []int64, cellTransform index.Transform) error {
			for i, c := range cell {
				if c < 0 || c >= int64(grid[i]) {
					return errors.Wrapf(index.ErrOutOfRange, "chunk %v is outside the chunk grid %v", cell, grid)
				}
			}
			n, err := cellTransform.Domain().NumElements()
			if err != nil {
				return err
			}
			plan = append(plan, ChunkRequest{
				Key:         ChunkKey(cell, r.meta.Separator()),
				Cell:        slices.Clone(cell),
				NumElements: n,
				NumBytes:    n * int64(len(r.fill)),
			})
			return nil
		})
	if err != nil {
		return nil, err
	}
	return plan, nil
}
