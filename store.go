package modbus

import "sync"

// RegisterStore is the collaborator a Server consults for a given unit id
// to obtain mutable byte-level views over its four register tables. The
// views are held in wire byte order (big-endian) so that bulk reads can
// copy straight from the backing slice onto the wire without a per-word
// swap — see the design note in SPEC_FULL.md §5 / spec.md §4.4. A
// RegisterStore implementation owns the slices it returns; callers must
// only access them while holding whatever lock the owning Server uses to
// serialize access (see handler.go, server.go).
type RegisterStore interface {
	// CoilBuffer returns the coil bitmap for unit, little-endian bit order
	// within each byte, and the number of addressable coils (one past the
	// highest addressable index).
	CoilBuffer(unit byte) (buf []byte, maxAddress uint16)
	// DiscreteInputBuffer returns the discrete-input bitmap for unit and
	// the number of addressable inputs (one past the highest index).
	DiscreteInputBuffer(unit byte) (buf []byte, maxAddress uint16)
	// HoldingRegisterBuffer returns the holding-register words for unit, as
	// a byte slice in wire (big-endian) order, and the number of addressable
	// registers (one past the highest index).
	HoldingRegisterBuffer(unit byte) (buf []byte, maxAddress uint16)
	// InputRegisterBuffer returns the input-register words for unit, as a
	// byte slice in wire (big-endian) order, and the number of addressable
	// registers (one past the highest index).
	InputRegisterBuffer(unit byte) (buf []byte, maxAddress uint16)
}

// MemoryStore is the default in-process RegisterStore: four flat,
// byte-addressed tables per unit, allocated lazily on first access.
// MemoryStore itself applies no locking — callers (Server in asynchronous
// mode) are responsible for serializing access per §5.
type MemoryStore struct {
	mu    sync.Mutex // guards the units map only, not the register slices
	units map[byte]*unitTables

	// Per-table sizing applied to newly seen units.
	maxCoilAddress          uint16
	maxDiscreteInputAddress uint16
	maxHoldingRegisterAddr  uint16
	maxInputRegisterAddress uint16
}

type unitTables struct {
	coils            []byte
	discreteInputs   []byte
	holdingRegisters []byte
	inputRegisters   []byte
}

// NewMemoryStore creates a MemoryStore sized so that address 0..max-1 is
// addressable in each of the four tables (maxCoilAddress and
// maxDiscreteInputAddress count bits; maxHoldingRegisterAddress and
// maxInputRegisterAddress count 16-bit words).
func NewMemoryStore(maxCoilAddress, maxDiscreteInputAddress, maxHoldingRegisterAddress, maxInputRegisterAddress uint16) *MemoryStore {
	return &MemoryStore{
		units:                   make(map[byte]*unitTables),
		maxCoilAddress:          maxCoilAddress,
		maxDiscreteInputAddress: maxDiscreteInputAddress,
		maxHoldingRegisterAddr:  maxHoldingRegisterAddress,
		maxInputRegisterAddress: maxInputRegisterAddress,
	}
}

func (s *MemoryStore) tables(unit byte) *unitTables {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.units[unit]
	if !ok {
		t = &unitTables{
			coils:            make([]byte, byteCount(s.maxCoilAddress)),
			discreteInputs:   make([]byte, byteCount(s.maxDiscreteInputAddress)),
			holdingRegisters: make([]byte, 2*int(s.maxHoldingRegisterAddr)),
			inputRegisters:   make([]byte, 2*int(s.maxInputRegisterAddress)),
		}
		s.units[unit] = t
	}
	return t
}

// CoilBuffer implements RegisterStore.
func (s *MemoryStore) CoilBuffer(unit byte) ([]byte, uint16) {
	return s.tables(unit).coils, s.maxCoilAddress
}

// DiscreteInputBuffer implements RegisterStore.
func (s *MemoryStore) DiscreteInputBuffer(unit byte) ([]byte, uint16) {
	return s.tables(unit).discreteInputs, s.maxDiscreteInputAddress
}

// HoldingRegisterBuffer implements RegisterStore.
func (s *MemoryStore) HoldingRegisterBuffer(unit byte) ([]byte, uint16) {
	return s.tables(unit).holdingRegisters, s.maxHoldingRegisterAddr
}

// InputRegisterBuffer implements RegisterStore.
func (s *MemoryStore) InputRegisterBuffer(unit byte) ([]byte, uint16) {
	return s.tables(unit).inputRegisters, s.maxInputRegisterAddress
}
