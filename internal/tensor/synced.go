package tensor

import (
	"fmt"
)

// Head tells where the current copy of a SyncedMemory lives.
type Head int

// Head states.
const (
	Uninitialized Head = iota
	HeadAtCPU          // CPU copy is current, private copy (if any) is stale
	HeadAtPrv          // Private copy is current, CPU copy is stale
	SyncedPrv          // Both copies hold the same values
)

// String returns the state name.
func (h Head) String() string {
	switch h {
	case Uninitialized:
		return "uninitialized"
	case HeadAtCPU:
		return "cpu"
	case HeadAtPrv:
		return "prv"
	case SyncedPrv:
		return "synced_prv"
	default:
		return fmt.Sprintf("head(%d)", int(h))
	}
}

// PrvDescriptor describes the private layout of a buffer and converts it back
// to the framework's plain layout.
type PrvDescriptor interface {
	// ConvertFromPrv writes the current private data, converted to the plain
	// layout, into cpu.
	ConvertFromPrv(cpu []float32) error

	// Name identifies the descriptor in logs.
	Name() string
}

// SyncedMemory holds a plain CPU buffer and an optional private buffer in an
// engine layout, converting lazily between them.
type SyncedMemory struct {
	size  int
	cpu   []float32
	prv   []float32
	descr PrvDescriptor
	head  Head
}

// NewSyncedMemory creates an uninitialized memory of size elements.
func NewSyncedMemory(size int) *SyncedMemory {
	return &SyncedMemory{size: size}
}

// Size returns the number of logical elements.
func (m *SyncedMemory) Size() int {
	return m.size
}

// Head returns the synchronization state.
func (m *SyncedMemory) Head() Head {
	return m.head
}

func (m *SyncedMemory) toCPU() error {
	switch m.head {
	case Uninitialized:
		m.cpu = make([]float32, m.size)
		m.head = HeadAtCPU
	case HeadAtPrv, SyncedPrv:
		if m.head == SyncedPrv && m.cpu != nil {
			return nil
		}
		if m.cpu == nil {
			m.cpu = make([]float32, m.size)
		}
		if err := m.descr.ConvertFromPrv(m.cpu); err != nil {
			return fmt.Errorf("sync %s to cpu: %w", m.descr.Name(), err)
		}
		m.head = SyncedPrv
	}
	return nil
}

// CPUData returns the plain data for reading, converting private data first
// if it is newer. Callers must not modify the returned slice.
func (m *SyncedMemory) CPUData() ([]float32, error) {
	if err := m.toCPU(); err != nil {
		return nil, err
	}
	return m.cpu, nil
}

// MutableCPUData returns the plain data for writing; the private copy becomes stale.
func (m *SyncedMemory) MutableCPUData() ([]float32, error) {
	if err := m.toCPU(); err != nil {
		return nil, err
	}
	m.head = HeadAtCPU
	return m.cpu, nil
}

// PrvData returns the private buffer when it holds current data, nil otherwise.
func (m *SyncedMemory) PrvData() []float32 {
	if m.head != HeadAtPrv && m.head != SyncedPrv {
		return nil
	}
	return m.prv
}

// PrvDescriptor returns the descriptor of the private buffer, or nil.
func (m *SyncedMemory) PrvDescriptor() PrvDescriptor {
	return m.descr
}

// SetPrvData installs prv as the private copy described by d.
// sameData reports that prv already equals the CPU copy; otherwise prv
// becomes the only current copy.
func (m *SyncedMemory) SetPrvData(prv []float32, d PrvDescriptor, sameData bool) {
	m.prv = prv
	m.descr = d
	if sameData {
		m.head = SyncedPrv
	} else {
		m.head = HeadAtPrv
	}
}
