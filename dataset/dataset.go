// Package dataset iterates over the leading dimension of a Zarr array in
// batches of GoMLX tensors.
package dataset

import (
	"context"
	"encoding/binary"
	"io"
	"math"

	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"k8s.io/klog/v2"

	"github.com/TuSKan/zarr-index"
)

// Dataset handles reading Zarr arrays in batches.
type Dataset struct {
	reader       *zarr.Reader
	CurrentIndex int
}

// NewDataset creates a new Dataset for the array at the given bucket URL.
func NewDataset(ctx context.Context, path string) (*Dataset, error) {
	reader, err := zarr.NewReader(ctx, path)
	if err != nil {
		return nil, err
	}
	return newDataset(reader)
}

// FromReader creates a Dataset over an already opened array.
func FromReader(reader *zarr.Reader) (*Dataset, error) {
	return newDataset(reader)
}

func newDataset(reader *zarr.Reader) (*Dataset, error) {
	meta := reader.Metadata()
	if len(meta.Shape) == 0 {
		return nil, errors.New("cannot batch a 0-d array")
	}
	switch meta.DType {
	case "<f2", "<f4", "<f8", "<i4", "<i8", "|u1":
	default:
		return nil, errors.Errorf("unsupported dtype: %s", meta.DType)
	}
	return &Dataset{reader: reader}, nil
}

// Reset rewinds the dataset to the first row.
func (d *Dataset) Reset() {
	d.CurrentIndex = 0
}

// NextBatch reads the next batch of size batchSize along the first
// dimension. The last batch may be smaller. Returns io.EOF if there is no
// more data.
func (d *Dataset) NextBatch(ctx context.Context, batchSize int) (*tensors.Tensor, error) {
	if batchSize <= 0 {
		return nil, errors.Errorf("batch size %d must be positive", batchSize)
	}
	meta := d.reader.Metadata()
	if d.CurrentIndex >= meta.Shape[0] {
		return nil, io.EOF
	}

	start := d.CurrentIndex
	end := min(start+batchSize, meta.Shape[0])

	// Batch shape: [end-start, Shape[1], Shape[2]...]
	batchStart := make([]int, len(meta.Shape))
	batchStart[0] = start
	batchShape := make([]int, len(meta.Shape))
	batchShape[0] = end - start
	copy(batchShape[1:], meta.Shape[1:])

	raw, err := d.reader.ReadRegion(ctx, batchStart, batchShape)
	if err != nil {
		return nil, err
	}
	batch, err := toTensor(meta.DType, raw, batchShape)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Batch rows [%d, %d) of %d", start, end, meta.Shape[0])
	d.CurrentIndex = end
	return batch, nil
}

// Close closes the underlying reader.
func (d *Dataset) Close() error {
	return d.reader.Close()
}

// toTensor decodes little-endian elements into a tensor of the matching Go
// type. float16 elements are widened to float32.
func toTensor(dtype string, raw []byte, shape []int) (*tensors.Tensor, error) {
	switch dtype {
	case "<f2":
		v := make([]float32, len(raw)/2)
		for i := range v {
			v[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[2*i:])).Float32()
		}
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	case "<f4":
		v := make([]float32, len(raw)/4)
		for i := range v {
			v[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	case "<f8":
		v := make([]float64, len(raw)/8)
		for i := range v {
			v[i] = math.Float64frombits(binary.LittleEndian.Uint64(raw[8*i:]))
		}
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	case "<i4":
		v := make([]int32, len(raw)/4)
		for i := range v {
			v[i] = int32(binary.LittleEndian.Uint32(raw[4*i:]))
		}
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	case "<i8":
		v := make([]int64, len(raw)/8)
		for i := range v {
			v[i] = int64(binary.LittleEndian.Uint64(raw[8*i:]))
		}
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	case "|u1":
		v := make([]uint8, len(raw))
		copy(v, raw)
		return tensors.FromFlatDataAndDimensions(v, shape...), nil
	default:
		return nil, errors.Errorf("unsupported dtype: %s", dtype)
	}
}
