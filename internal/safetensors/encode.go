package safetensors

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
)

// Tensor is a named tensor with its raw little-endian payload.
type Tensor struct {
	Name  string
	DType string
	Shape []int64
	Data  []byte
}

// Encode writes tensors in safetensors layout, in the given order.
func Encode(w io.Writer, tensors []Tensor, metadata map[string]string) error {
	hdr := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		hdr[metadataKey] = metadata
	}
	var off int64
	for _, t := range tensors {
		end := off + int64(len(t.Data))
		hdr[t.Name] = TensorInfo{DType: t.DType, Shape: t.Shape, DataOffsets: [2]int64{off, end}}
		off = end
	}
	b, err := json.Marshal(hdr)
	if err != nil {
		return fmt.Errorf("marshal header: %w", err)
	}
	// Pad to 8 bytes with spaces like the reference writer does.
	for len(b)%8 != 0 {
		b = append(b, ' ')
	}
	if err := binary.Write(w, binary.LittleEndian, uint64(len(b))); err != nil {
		return err
	}
	if _, err := w.Write(b); err != nil {
		return err
	}
	for _, t := range tensors {
		if _, err := w.Write(t.Data); err != nil {
			return err
		}
	}
	return nil
}
