// Package safetensors reads and validates the header of .safetensors files
// without touching the tensor payload.
//
// Layout: an 8 byte little-endian header length N, N bytes of JSON mapping
// tensor names to {dtype, shape, data_offsets}, then the raw data block.
// Offsets are relative to the start of the data block.
package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// MaxHeaderSize bounds the JSON header read into memory.
const MaxHeaderSize = 100 * 1024 * 1024

const metadataKey = "__metadata__"

var (
	ErrTooSmall       = errors.New("file too small for header")
	ErrHeaderTooLarge = errors.New("header length out of bounds")
	ErrInvalidHeader  = errors.New("invalid header")
	ErrInvalidOffsets = errors.New("invalid tensor offsets")
)

var dtypeSize = map[string]int64{
	"BOOL": 1, "U8": 1, "I8": 1, "F8_E4M3": 1, "F8_E5M2": 1, "F8_E8M0": 1,
	"I16": 2, "U16": 2, "F16": 2, "BF16": 2,
	"I32": 4, "U32": 4, "F32": 4,
	"I64": 8, "U64": 8, "F64": 8,
}

// TensorInfo describes one tensor entry of the header.
type TensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// Header is the parsed index of a safetensors file.
type Header struct {
	Metadata map[string]string
	Tensors  map[string]TensorInfo
}

// Keys returns tensor names in sorted order.
func (h *Header) Keys() []string {
	keys := make([]string, 0, len(h.Tensors))
	for k := range h.Tensors {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// ReadFile opens path and validates its header against the file size.
func ReadFile(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return Read(f, st.Size())
}

// Read parses the header from r, a reader over a file of the given total size.
func Read(r io.Reader, size int64) (*Header, error) {
	if size < 8 {
		return nil, ErrTooSmall
	}
	var n uint64
	if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
		return nil, fmt.Errorf("read header length: %w", err)
	}
	if n == 0 || n > MaxHeaderSize || int64(n) > size-8 {
		return nil, fmt.Errorf("%w: %d", ErrHeaderTooLarge, n)
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(buf, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidHeader, err)
	}
	h := &Header{Tensors: make(map[string]TensorInfo, len(raw))}
	for name, msg := range raw {
		if name == metadataKey {
			if err := json.Unmarshal(msg, &h.Metadata); err != nil {
				return nil, fmt.Errorf("%w: metadata: %v", ErrInvalidHeader, err)
			}
			continue
		}
		var ti TensorInfo
		if err := json.Unmarshal(msg, &ti); err != nil {
			return nil, fmt.Errorf("%w: tensor %q: %v", ErrInvalidHeader, name, err)
		}
		h.Tensors[name] = ti
	}
	if err := validate(h, size-8-int64(n)); err != nil {
		return nil, err
	}
	return h, nil
}

// validate checks that tensors tile the data block exactly, which is what
// catches truncated downloads.
func validate(h *Header, dataLen int64) error {
	type span struct {
		name       string
		begin, end int64
	}
	spans := make([]span, 0, len(h.Tensors))
	for name, ti := range h.Tensors {
		width, ok := dtypeSize[ti.DType]
		if !ok {
			return fmt.Errorf("%w: tensor %q: unknown dtype %q", ErrInvalidHeader, name, ti.DType)
		}
		elems := int64(1)
		for _, d := range ti.Shape {
			if d < 0 {
				return fmt.Errorf("%w: tensor %q: negative dimension", ErrInvalidHeader, name)
			}
			if d != 0 && elems > math.MaxInt64/d {
				return fmt.Errorf("%w: tensor %q: shape overflows", ErrInvalidHeader, name)
			}
			elems *= d
		}
		if elems > math.MaxInt64/width {
			return fmt.Errorf("%w: tensor %q: byte size overflows", ErrInvalidHeader, name)
		}
		begin, end := ti.DataOffsets[0], ti.DataOffsets[1]
		if begin < 0 || end < begin || end-begin != elems*width {
			return fmt.Errorf("%w: tensor %q", ErrInvalidOffsets, name)
		}
		spans = append(spans, span{name, begin, end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].begin < spans[j].begin })
	var next int64
	for _, s := range spans {
		if s.begin != next {
			return fmt.Errorf("%w: tensor %q starts at %d, expected %d", ErrInvalidOffsets, s.name, s.begin, next)
		}
		next = s.end
	}
	if next != dataLen {
		return fmt.Errorf("%w: data block is %d bytes, tensors cover %d", ErrInvalidOffsets, dataLen, next)
	}
	return nil
}
