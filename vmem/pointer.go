package vmem

import "fmt"

// maxOffset is the largest offset a VirtualPointer's 48-bit wire field
// can hold.
const maxOffset = 1<<48 - 1

// VirtualPointer is never a real machine address: it names a slot and
// an offset within it, resolved through a VirtualMemory's allocation
// table on every access. The zero value is the null pointer (slot 0 is
// always reserved and invalid).
type VirtualPointer struct {
	Offset    uint64
	SlotIndex uint16
}

func (p VirtualPointer) IsNull() bool { return p.SlotIndex == 0 }

func (p VirtualPointer) String() string {
	return fmt.Sprintf("vptr(slot=%d, offset=%d)", p.SlotIndex, p.Offset)
}

// Pack encodes p as a single u64: offset in the low 48 bits, slot
// index in the high 16, the wire representation a register's 64-bit
// slot holds directly.
func (p VirtualPointer) Pack() (uint64, error) {
	if p.Offset > maxOffset {
		return 0, fmt.Errorf("vmem: offset %d does not fit in 48 bits", p.Offset)
	}
	return p.Offset | uint64(p.SlotIndex)<<48, nil
}

// Unpack reverses Pack.
func Unpack(raw uint64) VirtualPointer {
	return VirtualPointer{Offset: raw & maxOffset, SlotIndex: uint16(raw >> 48)}
}
