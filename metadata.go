package zarr

import (
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"github.com/pkg/errors"
	"github.com/x448/float16"
)

// Keys of the metadata objects next to the chunks of an array.
const (
	ArrayMetadataKey = ".zarray"
	AttributesKey    = ".zattrs"

	// dimensionsAttribute holds dimension labels, following the xarray
	// convention.
	dimensionsAttribute = "_ARRAY_DIMENSIONS"
)

// CompressorConfig represents the Zarr compressor metadata.
type CompressorConfig struct {
	ID      string `json:"id"`
	Cname   string `json:"cname,omitempty"`
	Clevel  int    `json:"clevel,omitempty"`
	Level   int    `json:"level,omitempty"`
	Shuffle int    `json:"shuffle,omitempty"`
}

// Metadata represents the Zarr V2 .zarray metadata.
type Metadata struct {
	ZarrFormat         int               `json:"zarr_format"`
	Shape              []int             `json:"shape"`
	Chunks             []int             `json:"chunks"`
	DType              string            `json:"dtype"`
	Compressor         *CompressorConfig `json:"compressor"`
	FillValue          interface{}       `json:"fill_value"`
	Order              string            `json:"order"`
	Filters            []any             `json:"filters"`
	DimensionSeparator string            `json:"dimension_separator,omitempty"`
}

// LoadMetadata reads and validates a .zarray document.
func LoadMetadata(reader io.Reader) (*Metadata, error) {
	var meta Metadata
	if err := json.NewDecoder(reader).Decode(&meta); err != nil {
		return nil, errors.Wrap(err, "failed to decode metadata")
	}
	if err := meta.Validate(); err != nil {
		return nil, err
	}
	return &meta, nil
}

// Validate checks that the metadata describes an array this package can
// read and write.
func (m *Metadata) Validate() error {
	if m.ZarrFormat != 2 {
		return errors.Errorf("unsupported zarr_format: %d, expected 2", m.ZarrFormat)
	}
	if len(m.Shape) != len(m.Chunks) {
		return errors.Errorf("shape %v and chunks %v have different ranks", m.Shape, m.Chunks)
	}
	for i := range m.Shape {
		if m.Shape[i] < 0 {
			return errors.Errorf("negative extent %d in shape %v", m.Shape[i], m.Shape)
		}
		if m.Chunks[i] <= 0 {
			return errors.Errorf("chunk extent %d in %v must be positive", m.Chunks[i], m.Chunks)
		}
	}
	if _, _, err := ParseDType(m.DType); err != nil {
		return err
	}
	if m.Order != "" && m.Order != "C" {
		return errors.Errorf("unsupported order %q, only \"C\" is supported", m.Order)
	}
	if len(m.Filters) > 0 {
		return errors.Errorf("filters are not supported")
	}
	switch m.DimensionSeparator {
	case "", ".", "/":
	default:
		return errors.Errorf("invalid dimension_separator %q", m.DimensionSeparator)
	}
	if m.Compressor != nil {
		if _, ok := codecs[m.Compressor.ID]; !ok {
			return errors.Errorf("unsupported compressor: %s", m.Compressor.ID)
		}
	}
	return nil
}

// Separator returns the chunk key separator, "." unless set otherwise.
func (m *Metadata) Separator() string {
	if m.DimensionSeparator == "" {
		return "."
	}
	return m.DimensionSeparator
}

// ItemSize returns the byte size of one element.
func (m *Metadata) ItemSize() int {
	_, size, _ := ParseDType(m.DType)
	return size
}

// ChunkElements returns the number of elements in one chunk.
func (m *Metadata) ChunkElements() int {
	n := 1
	for _, c := range m.Chunks {
		n *= c
	}
	return n
}

// ParseDType takes a numpy-style string like "<f4", "|b1", "<i8",
// and returns a simplified string name (e.g., "float32", "bool", "int64"),
// the byte size (e.g., 4, 1, 8), and an error if unsupported.
// Reject big-endian (>) types for now.
func ParseDType(s string) (string, int, error) {
	if len(s) < 3 {
		return "", 0, errors.Errorf("invalid dtype: %s", s)
	}

	endian := s[0]
	if endian == '>' {
		return "", 0, errors.Errorf("big-endian types are unsupported: %s", s)
	}
	if endian != '<' && endian != '|' {
		return "", 0, errors.Errorf("invalid byte order in dtype: %s", s)
	}

	kind := s[1]
	size, err := strconv.Atoi(s[2:])
	if err != nil || size <= 0 {
		return "", 0, errors.Errorf("invalid size in dtype: %s", s)
	}

	switch kind {
	case 'b':
		return "bool", size, nil
	case 'i':
		return fmt.Sprintf("int%d", size*8), size, nil
	case 'u':
		return fmt.Sprintf("uint%d", size*8), size, nil
	case 'f':
		return fmt.Sprintf("float%d", size*8), size, nil
	case 'c':
		return fmt.Sprintf("complex%d", size*8), size, nil
	default:
		return "", 0, errors.Errorf("unsupported dtype kind: %c in %s", kind, s)
	}
}

// FillBytes returns the little-endian encoding of one element holding the
// fill value. A null fill value encodes as zero bytes.
func (m *Metadata) FillBytes() ([]byte, error) {
	name, size, err := ParseDType(m.DType)
	if err != nil {
		return nil, err
	}
	out := make([]byte, size)
	if m.FillValue == nil {
		return out, nil
	}

	var v float64
	switch fv := m.FillValue.(type) {
	case float64:
		v = fv
	case bool:
		if fv {
			v = 1
		}
	case string:
		switch fv {
		case "NaN":
			v = math.NaN()
		case "Infinity":
			v = math.Inf(1)
		case "-Infinity":
			v = math.Inf(-1)
		default:
			return nil, errors.Errorf("unsupported fill_value %q", fv)
		}
	default:
		return nil, errors.Errorf("unsupported fill_value %v of type %T", m.FillValue, m.FillValue)
	}

	var bits uint64
	switch name {
	case "float16":
		bits = uint64(float16.Fromfloat32(float32(v)).Bits())
	case "float32":
		bits = uint64(math.Float32bits(float32(v)))
	case "float64":
		bits = math.Float64bits(v)
	case "complex64", "complex128":
		return nil, errors.Errorf("fill_value for %s is not supported", m.DType)
	default:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Errorf("fill_value %v is not valid for %s", v, m.DType)
		}
		bits = uint64(int64(v))
	}
	for i := range out {
		out[i] = byte(bits >> (8 * i))
	}
	return out, nil
}

// attributes is the subset of .zattrs this package understands.
type attributes struct {
	Dimensions []string `json:"_ARRAY_DIMENSIONS,omitempty"`
}

func loadLabels(reader io.Reader, rank int) ([]string, error) {
	var attrs attributes
	if err := json.NewDecoder(reader).Decode(&attrs); err != nil {
		return nil, errors.Wrapf(err, "failed to decode %s", AttributesKey)
	}
	if attrs.Dimensions == nil {
		return nil, nil
	}
	if len(attrs.Dimensions) != rank {
		return nil, errors.Errorf("%s lists %d dimensions for an array of rank %d", dimensionsAttribute, len(attrs.Dimensions), rank)
	}
	return attrs.Dimensions, nil
}
