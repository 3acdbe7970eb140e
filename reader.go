package zarr

import (
	"context"
	"io"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"gocloud.dev/gcerrors"
	"k8s.io/klog/v2"

	"github.com/TuSKan/zarr-index/gridpartition"
	"github.com/TuSKan/zarr-index/index"
)

// Reader reads elements of a Zarr V2 array stored in a blob bucket.
// It is safe for concurrent use.
type Reader struct {
	bucket     *blob.Bucket
	ownsBucket bool
	meta       *Metadata
	domain     index.Domain
	fill       []byte
}

// NewReader opens the bucket at path (any gocloud.dev/blob URL) and reads
// the array metadata stored at its root.
func NewReader(ctx context.Context, path string) (*Reader, error) {
	bucket, err := blob.OpenBucket(ctx, path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create bucket")
	}
	r, err := NewReaderFromBucket(ctx, bucket)
	if err != nil {
		if cerr := bucket.Close(); cerr != nil {
			klog.Warningf("Failed to close bucket %q: %v", path, cerr)
		}
		return nil, err
	}
	r.ownsBucket = true
	return r, nil
}

// NewReaderFromBucket reads the array stored at the root of bucket. The
// caller keeps ownership of bucket.
func NewReaderFromBucket(ctx context.Context, bucket *blob.Bucket) (*Reader, error) {
	reader, err := bucket.NewReader(ctx, ArrayMetadataKey, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open %s", ArrayMetadataKey)
	}
	defer reader.Close()

	meta, err := LoadMetadata(reader)
	if err != nil {
		return nil, errors.WithMessage(err, "failed to load metadata")
	}
	labels, err := readLabels(ctx, bucket, len(meta.Shape))
	if err != nil {
		return nil, err
	}
	return newReader(bucket, meta, labels)
}

func newReader(bucket *blob.Bucket, meta *Metadata, labels []string) (*Reader, error) {
	origin := make([]int64, len(meta.Shape))
	shape := make([]int64, len(meta.Shape))
	for i, s := range meta.Shape {
		shape[i] = int64(s)
	}
	domain, err := index.NewBoxDomain(origin, shape)
	if err != nil {
		return nil, err
	}
	if labels != nil {
		if domain, err = domain.WithLabels(labels...); err != nil {
			return nil, err
		}
	}
	fill, err := meta.FillBytes()
	if err != nil {
		return nil, err
	}
	return &Reader{bucket: bucket, meta: meta, domain: domain, fill: fill}, nil
}

// readLabels returns the dimension labels from .zattrs, or nil if there
// are none.
func readLabels(ctx context.Context, bucket *blob.Bucket, rank int) ([]string, error) {
	reader, err := bucket.NewReader(ctx, AttributesKey, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "failed to open %s", AttributesKey)
	}
	defer reader.Close()
	return loadLabels(reader, rank)
}

// Metadata returns the parsed .zarray metadata.
func (r *Reader) Metadata() *Metadata {
	return r.meta
}

// Domain returns the index domain of the array: [0, shape) in every
// dimension, labeled from .zattrs when available.
func (r *Reader) Domain() index.Domain {
	return r.domain
}

// ReadChunk reads and decodes the chunk at the given grid cell. Missing
// chunks read as the fill value. The returned slice is owned by the caller.
func (r *Reader) ReadChunk(ctx context.Context, cell []int64) ([]byte, error) {
	key := ChunkKey(cell, r.meta.Separator())
	expected := r.meta.ChunkElements() * len(r.fill)

	reader, err := r.bucket.NewReader(ctx, key, nil)
	if err != nil {
		if gcerrors.Code(err) == gcerrors.NotFound {
			klog.V(2).Infof("Chunk %q not found, using fill value", key)
			chunk := make([]byte, expected)
			for i := 0; i < len(chunk); i += len(r.fill) {
				copy(chunk[i:], r.fill)
			}
			return chunk, nil
		}
		return nil, errors.Wrapf(err, "failed to open chunk %s", key)
	}
	defer reader.Close()

	chunkData, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read chunk %s", key)
	}
	if chunkData, err = decodeChunk(r.meta.Compressor, chunkData); err != nil {
		return nil, errors.Wrapf(err, "failed to decompress chunk %s", key)
	}
	if len(chunkData) != expected {
		return nil, errors.Errorf("chunk %s has %d bytes, expected %d", key, len(chunkData), expected)
	}
	klog.V(2).Infof("Read chunk %q (%d bytes)", key, len(chunkData))
	return chunkData, nil
}

// Read returns the elements addressed by transform, whose output rank must
// equal the array rank. The result is laid out row-major over the input
// domain of transform, which must be finite. Array positions outside the
// array bounds fail with index.ErrOutOfRange.
func (r *Reader) Read(ctx context.Context, transform index.Transform) ([]byte, error) {
	numElements, err := r.checkTransform(transform)
	if err != nil {
		return nil, err
	}
	itemSize := int64(len(r.fill))
	out := make([]byte, numElements*itemSize)

	numChunks := 0
	err = r.forEachChunk(transform, func(cell []int64, visit func(elementFunc) error) error {
		chunk, err := r.ReadChunk(ctx, cell)
		if err != nil {
			return err
		}
		numChunks++
		return visit(func(dst, src int64) {
			copy(out[dst*itemSize:(dst+1)*itemSize], chunk[src*itemSize:(src+1)*itemSize])
		})
	})
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("Read %d elements from %d chunks", numElements, numChunks)
	return out, nil
}

// ReadRegion reads an N-dimensional box of the array, returned in C order.
func (r *Reader) ReadRegion(ctx context.Context, start, shape []int) ([]byte, error) {
	if len(start) != len(r.meta.Shape) || len(shape) != len(r.meta.Shape) {
		return nil, errors.Wrap(index.ErrInvalidArgument, "start and shape must match array dimensionality")
	}
	origin := make([]int64, len(start))
	extent := make([]int64, len(shape))
	for i := range r.meta.Shape {
		if start[i] < 0 || shape[i] < 0 || start[i]+shape[i] > r.meta.Shape[i] {
			return nil, errors.Wrapf(index.ErrOutOfRange, "region out of bounds at dimension %d", i)
		}
		origin[i], extent[i] = int64(start[i]), int64(shape[i])
	}
	domain, err := index.NewBoxDomain(origin, extent)
	if err != nil {
		return nil, err
	}
	return r.Read(ctx, index.IdentityTransform(domain))
}

// ReadFull reads the entire array into a flat byte slice in C order.
func (r *Reader) ReadFull(ctx context.Context) ([]byte, error) {
	return r.ReadRegion(ctx, make([]int, len(r.meta.Shape)), r.meta.Shape)
}

// ReadAligned reads the array aligned to target: dimensions are matched by
// label or position, translated onto target, and broadcast where the array
// has extent 1 or lacks the dimension. The result is laid out row-major over
// target.
func (r *Reader) ReadAligned(ctx context.Context, target index.Domain) ([]byte, error) {
	transform, err := index.AlignDomainTo(r.domain, target)
	if err != nil {
		return nil, err
	}
	return r.Read(ctx, transform)
}

// Close closes the underlying bucket if the reader opened it.
func (r *Reader) Close() error {
	if !r.ownsBucket {
		return nil
	}
	return r.bucket.Close()
}

func (r *Reader) checkTransform(transform index.Transform) (int64, error) {
	if transform.OutputRank() != len(r.meta.Shape) {
		return 0, errors.Wrapf(index.ErrInvalidArgument, "transform output rank %d does not match array rank %d",
			transform.OutputRank(), len(r.meta.Shape))
	}
	return transform.Domain().NumElements()
}

// elementFunc receives the row-major offset of an element in the transform
// input domain and its offset within the current chunk.
type elementFunc func(dst, src int64)

// forEachChunk partitions transform over the chunk grid and calls fn once
// per chunk touched. fn may call visit to enumerate the elements of the
// chunk that transform addresses.
func (r *Reader) forEachChunk(transform index.Transform, fn func(cell []int64, visit func(elementFunc) error) error) error {
	rank := len(r.meta.Shape)
	gridDims := make([]int, rank)
	cellShape := make([]int64, rank)
	for i := range gridDims {
		gridDims[i] = i
		cellShape[i] = int64(r.meta.Chunks[i])
	}
	grid := GridShape(r.meta.Shape, r.meta.Chunks)
	strides := chunkStrides(r.meta.Chunks)
	domain := transform.Domain()
	input := make([]int64, transform.InputRank())
	output := make([]int64, rank)

	return gridpartition.PartitionIndexTransformOverRegularGrid(transform, gridDims, cellShape,
		func(cell []int64, cellTransform index.Transform) error {
			for i, c := range cell {
				if c < 0 || c >= int64(grid[i]) {
					return errors.Wrapf(index.ErrOutOfRange, "chunk %v is outside the chunk grid %v", cell, grid)
				}
			}
			return fn(cell, func(visit elementFunc) error {
				return forEachPosition(cellTransform.Domain(), func(point []int64) error {
					if err := cellTransform.ApplyTo(point, input); err != nil {
						return err
					}
					if err := transform.ApplyTo(input, output); err != nil {
						return err
					}
					var src int64
					for i, o := range output {
						if o < 0 || o >= int64(r.meta.Shape[i]) {
							return errors.Wrapf(index.ErrOutOfRange, "index %v is outside the array bounds %v", output, r.meta.Shape)
						}
						src += (o - cell[i]*cellShape[i]) * strides[i]
					}
					visit(rowMajorOffset(domain, input), src)
					return nil
				})
			})
		})
}
