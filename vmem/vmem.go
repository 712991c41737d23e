// Package vmem implements the virtual memory contract of spec.md
// §4.6: allocate/deallocate/dereference against a VirtualPointer that
// is never a real machine address.
//
// Grounded directly on original_source/svm/VirtualMemory.{h,cc}: slot
// 0 reserved and invalid (so the null pointer is trivially invalid),
// slot 1 the static-data slot, pool slots for allocations up to 1024
// bytes (blocks threaded with an embedded free-list), dedicated slots
// beyond that, reusing a freed slot index when one is available.
package vmem

import (
	"errors"
	"fmt"

	"github.com/ccoveille/go-safecast"
)

const (
	staticDataSlotIndex = 1
	firstPoolSlotIndex  = 2
	blockSizeStep       = 16
	maxPoolSize         = 1024
)

// ErrMemoryNotAllocated and ErrDerefRangeTooBig are the two reasons
// Dereference fails, mirroring MemoryAccessError::Reason.
var (
	ErrMemoryNotAllocated = errors.New("vmem: pointer has not been allocated")
	ErrDerefRangeTooBig   = errors.New("vmem: dereference range exceeds slot size")
)

// AccessError wraps one of the two dereference failure reasons with
// the offending pointer and requested size.
type AccessError struct {
	Reason  error
	Pointer VirtualPointer
	Size    int
}

func (e *AccessError) Error() string {
	return fmt.Sprintf("%v: %v (size %d)", e.Reason, e.Pointer, e.Size)
}

func (e *AccessError) Unwrap() error { return e.Reason }

// DeallocationError reports a deallocate call whose pointer, size or
// align does not match a block this VirtualMemory actually handed out.
type DeallocationError struct {
	Pointer     VirtualPointer
	Size, Align int
}

func (e *DeallocationError) Error() string {
	return fmt.Sprintf("vmem: invalid deallocation of %v (size %d, align %d)", e.Pointer, e.Size, e.Align)
}

// VirtualMemory is an unbounded region of memory blocks are allocated
// from; it owns no goroutine, callers serialize their own access (the
// VM's single execution thread is the only caller in practice).
type VirtualMemory struct {
	slots     []slot
	pools     []*pool
	freeSlots []int
}

// New constructs a VirtualMemory whose static-data slot starts at
// staticDataSize bytes (grown later via ResizeStaticSlot as the
// assembled program's data section is loaded).
func New(staticDataSize int) *VirtualMemory {
	vm := &VirtualMemory{}
	vm.slots = append(vm.slots, slot{})                               // slot 0: unused/invalid
	vm.slots = append(vm.slots, slot{buf: make([]byte, staticDataSize)}) // slot 1: static data
	for size := blockSizeStep; size <= maxPoolSize; size += blockSizeStep {
		vm.slots = append(vm.slots, slot{})
		vm.pools = append(vm.pools, newPool(size))
	}
	return vm
}

// MakeStaticDataPointer builds a pointer into the static-data slot at
// the given offset, for the loader to place a program's data section.
func MakeStaticDataPointer(offset uint64) VirtualPointer {
	return VirtualPointer{Offset: offset, SlotIndex: staticDataSlotIndex}
}

func roundUp(v, multipleOf int) int {
	if r := v % multipleOf; r != 0 {
		return v + multipleOf - r
	}
	return v
}

func poolSlotIndex(size int) int {
	return firstPoolSlotIndex + roundUp(size, blockSizeStep)/blockSizeStep - 1
}

func (vm *VirtualMemory) getPool(size int) (int, *pool) {
	idx := poolSlotIndex(size)
	return idx, vm.pools[idx-firstPoolSlotIndex]
}

// Allocate reserves size bytes aligned to align (a power of two, at
// most 32). A zero size returns the null pointer, which dereferences
// nowhere, without touching any slot.
func (vm *VirtualMemory) Allocate(size, align int) (VirtualPointer, error) {
	if align <= 0 || align&(align-1) != 0 || align > 32 {
		return VirtualPointer{}, fmt.Errorf("vmem: align %d is not a power of two <= 32", align)
	}
	if size == 0 {
		return VirtualPointer{}, nil
	}
	if size <= maxPoolSize && align <= size {
		slotIdx, p := vm.getPool(size)
		offset := p.allocate(&vm.slots[slotIdx])
		si, err := safecast.ToUint16(slotIdx)
		if err != nil {
			return VirtualPointer{}, fmt.Errorf("vmem: %w", err)
		}
		return VirtualPointer{Offset: uint64(offset), SlotIndex: si}, nil
	}
	if n := len(vm.freeSlots); n > 0 {
		slotIdx := vm.freeSlots[n-1]
		vm.freeSlots = vm.freeSlots[:n-1]
		if len(vm.slots[slotIdx].buf) < size {
			vm.slots[slotIdx].grow(size)
		}
		si, err := safecast.ToUint16(slotIdx)
		if err != nil {
			return VirtualPointer{}, fmt.Errorf("vmem: %w", err)
		}
		return VirtualPointer{SlotIndex: si}, nil
	}
	slotIdx := len(vm.slots)
	vm.slots = append(vm.slots, slot{buf: make([]byte, size)})
	si, err := safecast.ToUint16(slotIdx)
	if err != nil {
		return VirtualPointer{}, fmt.Errorf("vmem: maximum slot count exceeded: %w", err)
	}
	return VirtualPointer{SlotIndex: si}, nil
}

// Deallocate releases a block previously returned by Allocate with the
// same size and align.
func (vm *VirtualMemory) Deallocate(ptr VirtualPointer, size, align int) error {
	if size == 0 {
		if !ptr.IsNull() {
			return &DeallocationError{Pointer: ptr, Size: size, Align: align}
		}
		return nil
	}
	if size <= maxPoolSize && align <= size {
		slotIdx, p := vm.getPool(size)
		if int(ptr.SlotIndex) != slotIdx || !p.deallocate(&vm.slots[slotIdx], int(ptr.Offset)) {
			return &DeallocationError{Pointer: ptr, Size: size, Align: align}
		}
		return nil
	}
	vm.freeSlots = append(vm.freeSlots, int(ptr.SlotIndex))
	return nil
}

// ValidRange returns the number of bytes at which ptr is
// dereferenceable, or a negative number if ptr names no live slot.
func (vm *VirtualMemory) ValidRange(ptr VirtualPointer) int {
	if ptr.SlotIndex == 0 || int(ptr.SlotIndex) >= len(vm.slots) {
		return -1
	}
	return len(vm.slots[ptr.SlotIndex].buf) - int(ptr.Offset)
}

// Dereference returns the size-byte window at ptr, or an AccessError
// if ptr names no live slot or the window runs past the slot's end.
func (vm *VirtualMemory) Dereference(ptr VirtualPointer, size int) ([]byte, error) {
	if ptr.SlotIndex == 0 || int(ptr.SlotIndex) >= len(vm.slots) {
		return nil, &AccessError{Reason: ErrMemoryNotAllocated, Pointer: ptr, Size: size}
	}
	s := &vm.slots[ptr.SlotIndex]
	if int(ptr.Offset)+size > len(s.buf) {
		return nil, &AccessError{Reason: ErrDerefRangeTooBig, Pointer: ptr, Size: size}
	}
	return s.buf[ptr.Offset : int(ptr.Offset)+size], nil
}

// ResizeStaticSlot changes the static-data slot's size, used once at
// load time to fit an assembled program's data section.
func (vm *VirtualMemory) ResizeStaticSlot(size int) {
	s := &vm.slots[staticDataSlotIndex]
	if size <= len(s.buf) {
		s.buf = s.buf[:size]
		return
	}
	grown := make([]byte, size)
	copy(grown, s.buf)
	s.buf = grown
}
