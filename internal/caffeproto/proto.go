// Package caffeproto reads and writes the binary Caffe model format for the
// messages a convolution layer needs.
//
// Only the subset below is modelled; other fields are skipped on decode:
//   - NetParameter: name, layer
//   - LayerParameter: name, type, bottom, top, blobs, propagate_down, convolution_param
//   - ConvolutionParameter: every field
//   - FillerParameter: every field
//   - BlobProto: legacy 4-D dims, shape, data, diff
//
// Example:
//
//	net, err := caffeproto.ParseFile("lenet.caffemodel")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, l := range net.Layers {
//	    fmt.Println(l.Name, l.Type)
//	}
package caffeproto

// NetParameter is a network definition with its trained blobs.
type NetParameter struct {
	Name   string           // Network name
	Layers []LayerParameter // Layers in definition order
}

// LayerParameter describes one layer.
type LayerParameter struct {
	Name          string                // Layer name
	Type          string                // Layer type, e.g. "Convolution"
	Bottom        []string              // Input blob names
	Top           []string              // Output blob names
	Blobs         []BlobProto           // Learnable blobs
	PropagateDown []bool                // Per bottom: compute its gradient
	Convolution   *ConvolutionParameter // Set for convolution layers
}

// ConvolutionParameter mirrors the Caffe message. Optional scalars with a
// non-zero default are pointers so that "unset" survives a round trip.
type ConvolutionParameter struct {
	NumOutput     uint32
	BiasTerm      *bool // default true
	Pad           []uint32
	KernelSize    []uint32
	Group         *uint32 // default 1
	Stride        []uint32
	WeightFiller  *FillerParameter
	BiasFiller    *FillerParameter
	PadH          uint32
	PadW          uint32
	KernelH       uint32
	KernelW       uint32
	StrideH       uint32
	StrideW       uint32
	Engine        int32
	Axis          *int32 // default 1
	ForceNDIm2Col bool
	Dilation      []uint32
}

// FillerParameter mirrors the Caffe message.
type FillerParameter struct {
	Type         *string // default "constant"
	Value        float32
	Min          float32
	Max          *float32 // default 1
	Mean         float32
	Std          *float32 // default 1
	Sparse       *int32   // default -1
	VarianceNorm int32    // FAN_IN=0, FAN_OUT=1, AVERAGE=2
}

// BlobProto is a serialized blob.
type BlobProto struct {
	Shape []int64   // Preferred over the legacy dims
	Data  []float32 // Values, row-major
	Diff  []float32 // Gradients, row-major (often empty)

	// Legacy 4-D dims, used when Shape is empty.
	Num, Channels, Height, Width int32
}

// Dims returns the blob shape, falling back to the legacy 4-D dims.
func (b *BlobProto) Dims() []int {
	if len(b.Shape) > 0 {
		dims := make([]int, len(b.Shape))
		for i, d := range b.Shape {
			dims[i] = int(d)
		}
		return dims
	}
	if b.Num == 0 && b.Channels == 0 && b.Height == 0 && b.Width == 0 {
		return nil
	}
	return []int{int(b.Num), int(b.Channels), int(b.Height), int(b.Width)}
}
