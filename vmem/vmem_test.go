package vmem_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chrysante/scatha-sub006/vmem"
)

func TestAllocateDereferenceRoundTrip(t *testing.T) {
	vm := vmem.New(0)
	ptr, err := vm.Allocate(32, 8)
	require.NoError(t, err)
	assert.False(t, ptr.IsNull())

	buf, err := vm.Dereference(ptr, 32)
	require.NoError(t, err)
	require.Len(t, buf, 32)
	buf[0] = 0xAB

	buf2, err := vm.Dereference(ptr, 32)
	require.NoError(t, err)
	assert.Equal(t, byte(0xAB), buf2[0])
}

func TestAllocateZeroSizeReturnsNullPointer(t *testing.T) {
	vm := vmem.New(0)
	ptr, err := vm.Allocate(0, 1)
	require.NoError(t, err)
	assert.True(t, ptr.IsNull())
}

func TestDereferenceNullPointerFails(t *testing.T) {
	vm := vmem.New(0)
	_, err := vm.Dereference(vmem.VirtualPointer{}, 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmem.ErrMemoryNotAllocated)
}

func TestDereferenceRangeTooBigFails(t *testing.T) {
	vm := vmem.New(0)
	ptr, err := vm.Allocate(16, 8)
	require.NoError(t, err)
	_, err = vm.Dereference(ptr, 64)
	require.Error(t, err)
	assert.ErrorIs(t, err, vmem.ErrDerefRangeTooBig)
}

func TestPoolAllocationsReuseFreedBlocks(t *testing.T) {
	vm := vmem.New(0)
	a, err := vm.Allocate(16, 8)
	require.NoError(t, err)
	require.NoError(t, vm.Deallocate(a, 16, 8))
	b, err := vm.Allocate(16, 8)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPoolAllocationGrowsFreelistUnderPressure(t *testing.T) {
	vm := vmem.New(0)
	seen := make(map[vmem.VirtualPointer]bool)
	for i := 0; i < 256; i++ {
		ptr, err := vm.Allocate(16, 8)
		require.NoError(t, err)
		require.False(t, seen[ptr], "allocate returned a live block twice")
		seen[ptr] = true
	}
}

func TestDeallocateMismatchedPoolFails(t *testing.T) {
	vm := vmem.New(0)
	ptr, err := vm.Allocate(16, 8)
	require.NoError(t, err)
	err = vm.Deallocate(ptr, 32, 8)
	require.Error(t, err)
	var deallocErr *vmem.DeallocationError
	assert.ErrorAs(t, err, &deallocErr)
}

func TestLargeAllocationReusesFreedSlot(t *testing.T) {
	vm := vmem.New(0)
	a, err := vm.Allocate(4096, 8)
	require.NoError(t, err)
	require.NoError(t, vm.Deallocate(a, 4096, 8))
	b, err := vm.Allocate(2048, 8)
	require.NoError(t, err)
	assert.Equal(t, a.SlotIndex, b.SlotIndex)
}

func TestVirtualPointerPackUnpackRoundTrip(t *testing.T) {
	ptr := vmem.VirtualPointer{Offset: 1234, SlotIndex: 7}
	raw, err := ptr.Pack()
	require.NoError(t, err)
	assert.Equal(t, ptr, vmem.Unpack(raw))
}
