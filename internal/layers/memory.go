package layers

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/born-ml/dnnconv/internal/dnn"
	"github.com/born-ml/dnnconv/internal/tensor"
)

// ConversionStats counts the layout conversions a descriptor performed.
type ConversionStats struct {
	ToInternal   int // plain -> internal
	FromInternal int // internal -> plain
	PrvToPrv     int // other internal layout -> this one
	Reused       int // forward conversion handed out again
}

// MemoryDescriptor binds one (blob, role) pair of a layer to a user layout
// and the internal layout the primitive wants.
//
// When the two layouts differ it owns the conversion primitives and a lazily
// allocated internal buffer. It is the private descriptor a tensor.Blob keeps
// next to any buffer the descriptor publishes.
type MemoryDescriptor struct {
	name   string
	isDiff bool
	engine *dnn.Engine
	logger *slog.Logger

	layoutUsr *dnn.Layout
	layoutInt *dnn.Layout

	convertToInt   dnn.Primitive
	convertFromInt dnn.Primitive
	convertPrv2Prv map[*dnn.Layout]dnn.Primitive

	internal []float32
	// converted is set once internal holds the conversion of a CPU buffer.
	converted bool

	stats ConversionStats
}

func newMemoryDescriptor(e *dnn.Engine, logger *slog.Logger, isDiff bool) *MemoryDescriptor {
	return &MemoryDescriptor{engine: e, logger: logger, isDiff: isDiff}
}

// Name identifies the descriptor, e.g. "fwd_bottom_data   @ conv1".
func (d *MemoryDescriptor) Name() string { return d.name }

// IsDiff reports whether the descriptor handles gradients.
func (d *MemoryDescriptor) IsDiff() bool { return d.isDiff }

// UserLayout returns the plain layout of the framework buffer.
func (d *MemoryDescriptor) UserLayout() *dnn.Layout { return d.layoutUsr }

// InternalLayout returns the layout the primitive expects.
func (d *MemoryDescriptor) InternalLayout() *dnn.Layout { return d.layoutInt }

// ConvertsToInternal reports whether plain buffers must be converted.
func (d *MemoryDescriptor) ConvertsToInternal() bool { return d.convertToInt != nil }

// ConvertsFromInternal reports whether internal buffers must be converted back.
func (d *MemoryDescriptor) ConvertsFromInternal() bool { return d.convertFromInt != nil }

// Stats returns the conversion counters.
func (d *MemoryDescriptor) Stats() ConversionStats { return d.stats }

// createConversions creates the conversion pair when the layouts differ.
// Equal layouts leave the descriptor conversion-free.
func (d *MemoryDescriptor) createConversions() error {
	if d.layoutUsr == nil || d.layoutInt == nil {
		return fmt.Errorf("%s: layouts not set", d.name)
	}
	if d.layoutUsr.Compare(d.layoutInt) {
		return nil
	}
	var err error
	if d.convertToInt, err = d.engine.CreateConversion(d.layoutUsr, d.layoutInt); err != nil {
		return fmt.Errorf("%s: create conversion to internal: %w", d.name, err)
	}
	if d.convertFromInt, err = d.engine.CreateConversion(d.layoutInt, d.layoutUsr); err != nil {
		return fmt.Errorf("%s: create conversion from internal: %w", d.name, err)
	}
	return nil
}

// PrvPtr returns the internal buffer, allocating it on first use.
func (d *MemoryDescriptor) PrvPtr() ([]float32, error) {
	if d.internal == nil {
		buf, err := d.engine.AllocateBuffer(d.layoutInt)
		if err != nil {
			return nil, fmt.Errorf("%s: allocate internal buffer: %w", d.name, err)
		}
		d.internal = buf
	}
	return d.internal, nil
}

func (d *MemoryDescriptor) run(p dnn.Primitive, from, to []float32) error {
	var res dnn.Resources
	res[dnn.ResourceFrom] = from
	res[dnn.ResourceTo] = to
	return dnn.Execute(p, &res)
}

// ConvertFromPrv writes the internal buffer, converted to the user layout,
// into cpu.
func (d *MemoryDescriptor) ConvertFromPrv(cpu []float32) error {
	if d.convertFromInt == nil {
		return fmt.Errorf("%s: no conversion from internal layout", d.name)
	}
	if d.internal == nil {
		return fmt.Errorf("%s: internal buffer not allocated", d.name)
	}
	d.logger.Debug("layers.convert", "dir", "prv->cpu", "descr", d.name,
		"from", d.layoutInt.Format(), "to", d.layoutUsr.Format())
	if err := d.run(d.convertFromInt, d.internal, cpu); err != nil {
		return fmt.Errorf("%s: convert from internal: %w", d.name, err)
	}
	d.stats.FromInternal++
	return nil
}

// ConvertToPrv converts cpu into the internal buffer.
func (d *MemoryDescriptor) ConvertToPrv(cpu []float32) error {
	if d.convertToInt == nil {
		return fmt.Errorf("%s: no conversion to internal layout", d.name)
	}
	prv, err := d.PrvPtr()
	if err != nil {
		return err
	}
	d.logger.Debug("layers.convert", "dir", "cpu->prv", "descr", d.name,
		"from", d.layoutUsr.Format(), "to", d.layoutInt.Format())
	if err := d.run(d.convertToInt, cpu, prv); err != nil {
		return fmt.Errorf("%s: convert to internal: %w", d.name, err)
	}
	d.converted = true
	d.stats.ToInternal++
	return nil
}

// convertFrom converts a buffer held by another descriptor into this one's
// internal layout. The conversion primitive is created once per source layout.
func (d *MemoryDescriptor) convertFrom(src *MemoryDescriptor, prv []float32) ([]float32, error) {
	conv, ok := d.convertPrv2Prv[src.layoutInt]
	if !ok {
		var err error
		conv, err = d.engine.CreateConversion(src.layoutInt, d.layoutInt)
		if err != nil {
			return nil, fmt.Errorf("%s: create conversion from %s: %w", d.name, src.name, err)
		}
		if d.convertPrv2Prv == nil {
			d.convertPrv2Prv = make(map[*dnn.Layout]dnn.Primitive)
		}
		d.convertPrv2Prv[src.layoutInt] = conv
	}
	dst, err := d.PrvPtr()
	if err != nil {
		return nil, err
	}
	d.logger.Debug("layers.convert", "dir", "prv->prv", "descr", d.name, "src", src.name,
		"from", src.layoutInt.Format(), "to", d.layoutInt.Format())
	if err := d.run(conv, prv, dst); err != nil {
		return nil, fmt.Errorf("%s: convert from %s: %w", d.name, src.name, err)
	}
	d.converted = false
	d.stats.PrvToPrv++
	return dst, nil
}

// GetConvertedPrv returns the blob's data (or diff, for gradient descriptors)
// in this descriptor's internal layout.
//
//   - Without conversions the plain CPU buffer is returned.
//   - If the blob has no private buffer, the CPU buffer is converted. When
//     convertedInFwd already holds that conversion it is returned instead.
//     With setPrvPtr the result is attached to the blob as synced private data.
//   - A private buffer in another internal layout is converted; the
//     converted buffer replaces it on the blob when setPrvPtr is set.
//   - A private buffer already in this layout is returned as is.
func (d *MemoryDescriptor) GetConvertedPrv(blob *tensor.Blob, setPrvPtr bool, convertedInFwd *MemoryDescriptor) ([]float32, error) {
	if d.convertToInt == nil {
		return d.plain(blob)
	}

	prv, descr, head := blob.PrvData(), blob.PrvDescriptorData(), blob.DataHead()
	if d.isDiff {
		prv, descr, head = blob.PrvDiff(), blob.PrvDescriptorDiff(), blob.DiffHead()
	}

	if prv == nil {
		if convertedInFwd != nil && convertedInFwd.converted &&
			convertedInFwd.layoutInt.Compare(d.layoutInt) {
			d.logger.Debug("layers.convert.reuse", "descr", d.name, "from", convertedInFwd.name)
			d.stats.Reused++
			return convertedInFwd.internal, nil
		}

		cpu, err := d.plain(blob)
		if err != nil {
			return nil, err
		}
		if err := d.ConvertToPrv(cpu); err != nil {
			return nil, err
		}
		if setPrvPtr {
			d.publish(blob, true)
		}
		return d.internal, nil
	}

	current, ok := descr.(*MemoryDescriptor)
	if !ok || !slices.Equal(current.layoutInt.Sizes(), d.layoutInt.Sizes()) {
		// Foreign descriptor, or one left over from before a reshape:
		// go through the plain buffer.
		cpu, err := d.plain(blob)
		if err != nil {
			return nil, err
		}
		if err := d.ConvertToPrv(cpu); err != nil {
			return nil, err
		}
		if setPrvPtr {
			d.publish(blob, true)
		}
		return d.internal, nil
	}

	if current == d || current.layoutInt.Compare(d.layoutInt) {
		d.logger.Debug("layers.convert.skip", "descr", d.name, "holder", current.name)
		if current != d {
			d.converted = false
		}
		return prv, nil
	}

	out, err := d.convertFrom(current, prv)
	if err != nil {
		return nil, err
	}
	if setPrvPtr {
		d.publish(blob, head == tensor.SyncedPrv)
	}
	return out, nil
}

func (d *MemoryDescriptor) plain(blob *tensor.Blob) ([]float32, error) {
	if d.isDiff {
		return blob.CPUDiff()
	}
	return blob.CPUData()
}

func (d *MemoryDescriptor) publish(blob *tensor.Blob, sameData bool) {
	if d.isDiff {
		blob.SetPrvDiff(d.internal, d, sameData)
		return
	}
	blob.SetPrvData(d.internal, d, sameData)
}

// close deletes the conversions into the internal layout. The conversion
// back and the internal buffer are kept: blobs holding this descriptor as
// their private head still sync to CPU through it.
func (d *MemoryDescriptor) close() error {
	var first error
	if err := dnn.Delete(d.convertToInt); err != nil {
		first = err
	}
	for _, p := range d.convertPrv2Prv {
		if err := dnn.Delete(p); err != nil && first == nil {
			first = err
		}
	}
	d.convertToInt, d.convertPrv2Prv = nil, nil
	d.converted = false
	return first
}
