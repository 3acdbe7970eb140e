package zarr

import (
	"bytes"
	"io"
	"sync"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zlib"
	"github.com/klauspost/compress/zstd"
	"github.com/pkg/errors"
)

// codec compresses and decompresses whole chunks.
type codec interface {
	encode(raw []byte, level int) ([]byte, error)
	decode(encoded []byte) ([]byte, error)
}

// codecs maps numcodecs compressor ids to their implementation.
var codecs = map[string]codec{
	"zstd": zstdCodec{},
	"zlib": streamCodec{
		newReader: func(r io.Reader) (io.ReadCloser, error) { return zlib.NewReader(r) },
		newWriter: func(w io.Writer, level int) (io.WriteCloser, error) { return zlib.NewWriterLevel(w, level) },
	},
	"gzip": streamCodec{
		newReader: func(r io.Reader) (io.ReadCloser, error) { return gzip.NewReader(r) },
		newWriter: func(w io.Writer, level int) (io.WriteCloser, error) { return gzip.NewWriterLevel(w, level) },
	},
}

// decodeChunk returns the raw bytes of a stored chunk.
func decodeChunk(c *CompressorConfig, data []byte) ([]byte, error) {
	if c == nil {
		return data, nil
	}
	impl, ok := codecs[c.ID]
	if !ok {
		return nil, errors.Errorf("unsupported compressor: %s", c.ID)
	}
	return impl.decode(data)
}

// encodeChunk returns the stored form of a raw chunk.
func encodeChunk(c *CompressorConfig, raw []byte) ([]byte, error) {
	if c == nil {
		return raw, nil
	}
	impl, ok := codecs[c.ID]
	if !ok {
		return nil, errors.Errorf("unsupported compressor: %s", c.ID)
	}
	return impl.encode(raw, c.Level)
}

type zstdCodec struct{}

var (
	zstdDecoder = sync.OnceValues(func() (*zstd.Decoder, error) { return zstd.NewReader(nil) })
	zstdEncoder = sync.OnceValues(func() (*zstd.Encoder, error) { return zstd.NewWriter(nil) })
)

func (zstdCodec) decode(encoded []byte) ([]byte, error) {
	decoder, err := zstdDecoder()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd reader")
	}
	return decoder.DecodeAll(encoded, nil)
}

func (zstdCodec) encode(raw []byte, level int) ([]byte, error) {
	if level == 0 {
		encoder, err := zstdEncoder()
		if err != nil {
			return nil, errors.Wrap(err, "failed to create zstd writer")
		}
		return encoder.EncodeAll(raw, nil), nil
	}
	encoder, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		return nil, errors.Wrap(err, "failed to create zstd writer")
	}
	defer encoder.Close()
	return encoder.EncodeAll(raw, nil), nil
}

// streamCodec adapts a stream compressor to whole-chunk encoding.
type streamCodec struct {
	newReader func(io.Reader) (io.ReadCloser, error)
	newWriter func(io.Writer, int) (io.WriteCloser, error)
}

func (c streamCodec) decode(encoded []byte) ([]byte, error) {
	r, err := c.newReader(bytes.NewReader(encoded))
	if err != nil {
		return nil, err
	}
	defer r.Close()
	return io.ReadAll(r)
}

func (c streamCodec) encode(raw []byte, level int) ([]byte, error) {
	if level == 0 {
		level = -1 // Default compression.
	}
	var buf bytes.Buffer
	w, err := c.newWriter(&buf, level)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(raw); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
