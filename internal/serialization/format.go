package serialization

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Format constants.
const (
	DTypeF32        = "F32" // The only dtype blobs use.
	MetadataKey     = "__metadata__"
	ChecksumKey     = "sha256" // Hex SHA-256 of the data section, in __metadata__.
	FormatKey       = "format"
	FormatName      = "dnnconv"
	HeaderSizeBytes = 8
	float32Size     = 4
)

// TensorHeader is one tensor entry of the JSON header.
type TensorHeader struct {
	DType       string   `json:"dtype"`
	Shape       []int64  `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// TensorMeta describes a tensor in the data section.
type TensorMeta struct {
	Name   string // Tensor name (e.g., "conv1.weight")
	DType  string // SafeTensors dtype (e.g., "F32")
	Shape  []int  // Tensor shape
	Offset int64  // Offset in the data section
	Size   int64  // Size in bytes
}

// Header is the decoded JSON header.
type Header struct {
	Tensors  []TensorMeta // Sorted by name
	Metadata map[string]string
}

// decodeHeader parses the JSON header of a SafeTensors file.
func decodeHeader(b []byte) (Header, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return Header{}, fmt.Errorf("failed to parse header JSON: %w", err)
	}

	h := Header{Tensors: make([]TensorMeta, 0, len(raw))}
	for name, msg := range raw {
		if name == MetadataKey {
			if err := json.Unmarshal(msg, &h.Metadata); err != nil {
				return Header{}, fmt.Errorf("failed to parse %s: %w", MetadataKey, err)
			}
			continue
		}
		var th TensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return Header{}, fmt.Errorf("failed to parse tensor %q: %w", name, err)
		}
		shape := make([]int, len(th.Shape))
		for i, d := range th.Shape {
			shape[i] = int(d)
		}
		h.Tensors = append(h.Tensors, TensorMeta{
			Name:   name,
			DType:  th.DType,
			Shape:  shape,
			Offset: th.DataOffsets[0],
			Size:   th.DataOffsets[1] - th.DataOffsets[0],
		})
	}
	sort.Slice(h.Tensors, func(i, j int) bool { return h.Tensors[i].Name < h.Tensors[j].Name })
	return h, nil
}
