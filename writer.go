package zarr

import (
	"context"
	"encoding/json"

	"github.com/pkg/errors"
	"gocloud.dev/blob"
	"k8s.io/klog/v2"

	"github.com/TuSKan/zarr-index/index"
)

// Writer writes elements of a Zarr V2 array. It embeds a Reader over the
// same bucket. Concurrent writes touching the same chunk are not safe.
type Writer struct {
	*Reader
}

// CreateArray writes the metadata of a new array at the root of bucket and
// returns a Writer for it. labels may be nil; otherwise it is stored in
// .zattrs under _ARRAY_DIMENSIONS. The caller keeps ownership of bucket.
func CreateArray(ctx context.Context, bucket *blob.Bucket, meta *Metadata, labels []string) (*Writer, error) {
	if meta.Order == "" {
		meta.Order = "C"
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	if labels != nil && len(labels) != len(meta.Shape) {
		return nil, errors.Wrapf(index.ErrInvalidArgument, "got %d labels for an array of rank %d", len(labels), len(meta.Shape))
	}
	r, err := newReader(bucket, meta, labels)
	if err != nil {
		return nil, err
	}

	metaBytes, err := json.MarshalIndent(meta, "", "    ")
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode metadata")
	}
	if err := bucket.WriteAll(ctx, ArrayMetadataKey, metaBytes, nil); err != nil {
		return nil, errors.Wrapf(err, "failed to write %s", ArrayMetadataKey)
	}
	if labels != nil {
		attrBytes, err := json.MarshalIndent(attributes{Dimensions: labels}, "", "    ")
		if err != nil {
			return nil, errors.Wrap(err, "failed to encode attributes")
		}
		if err := bucket.WriteAll(ctx, AttributesKey, attrBytes, nil); err != nil {
			return nil, errors.Wrapf(err, "failed to write %s", AttributesKey)
		}
	}
	return &Writer{Reader: r}, nil
}

// OpenWriter returns a Writer for the existing array at the root of bucket.
func OpenWriter(ctx context.Context, bucket *blob.Bucket) (*Writer, error) {
	r, err := NewReaderFromBucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return &Writer{Reader: r}, nil
}

// WriteChunk encodes raw, a full chunk in C order, and stores it at the
// given grid cell.
func (w *Writer) WriteChunk(ctx context.Context, cell []int64, raw []byte) error {
	key := ChunkKey(cell, w.meta.Separator())
	if expected := w.meta.ChunkElements() * len(w.fill); len(raw) != expected {
		return errors.Wrapf(index.ErrInvalidArgument, "chunk %s has %d bytes, expected %d", key, len(raw), expected)
	}
	encoded, err := encodeChunk(w.meta.Compressor, raw)
	if err != nil {
		return errors.Wrapf(err, "failed to compress chunk %s", key)
	}
	if err := w.bucket.WriteAll(ctx, key, encoded, nil); err != nil {
		return errors.Wrapf(err, "failed to write chunk %s", key)
	}
	klog.V(2).Infof("Wrote chunk %q (%d bytes)", key, len(encoded))
	return nil
}

// Write stores data, laid out row-major over the input domain of transform,
// at the array positions transform addresses. Each touched chunk is read,
// updated and written back.
func (w *Writer) Write(ctx context.Context, transform index.Transform, data []byte) error {
	numElements, err := w.checkTransform(transform)
	if err != nil {
		return err
	}
	itemSize := int64(len(w.fill))
	if int64(len(data)) != numElements*itemSize {
		return errors.Wrapf(index.ErrInvalidArgument, "got %d bytes for %d elements of %s", len(data), numElements, w.meta.DType)
	}

	numChunks := 0
	err = w.forEachChunk(transform, func(cell []int64, visit func(elementFunc) error) error {
		chunk, err := w.ReadChunk(ctx, cell)
		if err != nil {
			return err
		}
		err = visit(func(src, dst int64) {
			copy(chunk[dst*itemSize:(dst+1)*itemSize], data[src*itemSize:(src+1)*itemSize])
		})
		if err != nil {
			return err
		}
		numChunks++
		return w.WriteChunk(ctx, cell, chunk)
	})
	if err != nil {
		return err
	}
	klog.V(1).Infof("Wrote %d elements to %d chunks", numElements, numChunks)
	return nil
}
