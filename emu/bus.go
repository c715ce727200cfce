package emu

import (
	"encoding/binary"
	"fmt"
)

// Memory sizes.
const (
	// RAMSize2MB is the RAM size of retail units.
	RAMSize2MB = 2 * 1024 * 1024
	// RAMSize8MB is the RAM size of development units.
	RAMSize8MB = 8 * 1024 * 1024
	// BIOSSize is the size of the BIOS ROM.
	BIOSSize = 512 * 1024
	// ScratchpadSize is the size of the data scratchpad.
	ScratchpadSize = 1024
)

// Physical base addresses.
const (
	RAMWindow       = 0x00800000
	ScratchpadBase  = 0x1F800000
	IOBase          = 0x1F801000
	IOSize          = 0x2000
	BIOSBase        = 0x1FC00000
	CacheControlReg = 0xFFFE0130
)

// Physical translates a virtual address to a physical one. KUSEG, KSEG0
// and KSEG1 are fixed-offset mirrors of the same 512MB physical window.
// KSEG2 addresses are returned unchanged.
func Physical(addr uint32) uint32 {
	if addr >= 0xC0000000 {
		return addr
	}
	return addr & 0x1FFFFFFF
}

// Bus is the guest memory map: RAM, BIOS ROM, scratchpad and a flat stub
// for the I/O register window.
type Bus struct {
	ram          []byte
	ramMask      uint32
	bios         []byte
	scratchpad   [ScratchpadSize]byte
	io           [IOSize]byte
	cacheControl uint32
}

// NewBus creates a bus with ramSize bytes of RAM. ramSize must be
// RAMSize2MB or RAMSize8MB.
func NewBus(ramSize uint32) (*Bus, error) {
	if ramSize != RAMSize2MB && ramSize != RAMSize8MB {
		return nil, fmt.Errorf("unsupported RAM size 0x%X", ramSize)
	}
	return &Bus{
		ram:     make([]byte, ramSize),
		ramMask: ramSize - 1,
		bios:    make([]byte, BIOSSize),
	}, nil
}

// RAMSize returns the size of the RAM in bytes.
func (b *Bus) RAMSize() uint32 {
	return uint32(len(b.ram))
}

// LoadBIOS copies a BIOS image into the ROM.
func (b *Bus) LoadBIOS(image []byte) error {
	if len(image) > BIOSSize {
		return fmt.Errorf("BIOS image too large: %d bytes (max %d)", len(image), BIOSSize)
	}
	copy(b.bios, image)
	return nil
}

// LoadRAM copies data into RAM starting at the virtual address addr.
func (b *Bus) LoadRAM(addr uint32, data []byte) error {
	phys := Physical(addr)
	if phys >= uint32(len(b.ram)) || uint64(phys)+uint64(len(data)) > uint64(len(b.ram)) {
		return fmt.Errorf("RAM load of %d bytes at 0x%08X out of range", len(data), addr)
	}
	copy(b.ram[phys:], data)
	return nil
}

// Executable reports whether instructions can be fetched from addr. Only RAM
// and BIOS, reached through KUSEG, KSEG0 or KSEG1, hold code.
func (b *Bus) Executable(addr uint32) bool {
	if addr >= 0x20000000 && addr < 0x80000000 || addr >= 0xC0000000 {
		return false
	}
	phys := addr & 0x1FFFFFFF
	return phys < uint32(len(b.ram)) || phys >= BIOSBase && phys < BIOSBase+BIOSSize
}

// IsRAM reports whether addr maps to main RAM (including its mirrors).
func (b *Bus) IsRAM(addr uint32) bool {
	return addr < 0xC0000000 && Physical(addr) < RAMWindow
}

// region resolves addr to the backing slice and the offset within it.
func (b *Bus) region(addr uint32) (mem []byte, off uint32, writable bool) {
	if addr >= 0xC0000000 {
		return nil, 0, false
	}
	phys := addr & 0x1FFFFFFF
	switch {
	case phys < RAMWindow:
		return b.ram, phys & b.ramMask, true
	case phys >= ScratchpadBase && phys < ScratchpadBase+ScratchpadSize:
		return b.scratchpad[:], phys - ScratchpadBase, true
	case phys >= IOBase && phys < IOBase+IOSize:
		return b.io[:], phys - IOBase, true
	case phys >= BIOSBase && phys < BIOSBase+BIOSSize:
		return b.bios, phys - BIOSBase, false
	}
	return nil, 0, false
}

// Read8 reads a byte.
func (b *Bus) Read8(addr uint32) uint8 {
	mem, off, _ := b.region(addr)
	if off >= uint32(len(mem)) {
		return 0
	}
	return mem[off]
}

// Read16 reads a little-endian halfword.
func (b *Bus) Read16(addr uint32) uint16 {
	mem, off, _ := b.region(addr)
	if uint64(off)+2 > uint64(len(mem)) {
		return 0
	}
	return binary.LittleEndian.Uint16(mem[off:])
}

// Read32 reads a little-endian word.
func (b *Bus) Read32(addr uint32) uint32 {
	if addr == CacheControlReg {
		return b.cacheControl
	}
	mem, off, _ := b.region(addr)
	if uint64(off)+4 > uint64(len(mem)) {
		return 0
	}
	return binary.LittleEndian.Uint32(mem[off:])
}

// Write8 writes a byte. Writes to ROM or unmapped space are ignored.
func (b *Bus) Write8(addr uint32, value uint8) {
	mem, off, writable := b.region(addr)
	if !writable || off >= uint32(len(mem)) {
		return
	}
	mem[off] = value
}

// Write16 writes a little-endian halfword.
func (b *Bus) Write16(addr uint32, value uint16) {
	mem, off, writable := b.region(addr)
	if !writable || uint64(off)+2 > uint64(len(mem)) {
		return
	}
	binary.LittleEndian.PutUint16(mem[off:], value)
}

// Write32 writes a little-endian word.
func (b *Bus) Write32(addr uint32, value uint32) {
	if addr == CacheControlReg {
		b.cacheControl = value
		return
	}
	mem, off, writable := b.region(addr)
	if !writable || uint64(off)+4 > uint64(len(mem)) {
		return
	}
	binary.LittleEndian.PutUint32(mem[off:], value)
}
