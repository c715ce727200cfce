package emu

import "github.com/sarchlab/psxrec/insts"

// LoadStoreUnit implements R3000A load and store operations.
//
// The unit only performs the memory access. Loaded values are returned to
// the caller, which decides how they reach the register file (through the
// delayed-load slots for the interpreter, through generated code for the
// recompiler).
type LoadStoreUnit struct {
	regFile *RegFile
	bus     *Bus
}

// NewLoadStoreUnit creates a new LoadStoreUnit connected to the given
// register file and bus.
func NewLoadStoreUnit(regFile *RegFile, bus *Bus) *LoadStoreUnit {
	return &LoadStoreUnit{
		regFile: regFile,
		bus:     bus,
	}
}

// alignMask returns the address bits that must be clear for an access.
func alignMask(op insts.Op) uint32 {
	switch op {
	case insts.OpLH, insts.OpLHU, insts.OpSH:
		return 1
	case insts.OpLW, insts.OpSW:
		return 3
	}
	return 0
}

// Load reads memory for the load inst at addr. old is the value LWL and LWR
// merge into. It returns ExcAdEL for a misaligned access, in which case the
// caller must raise the exception.
func (lsu *LoadStoreUnit) Load(op insts.Op, addr, old uint32) (uint32, Exception) {
	if addr&alignMask(op) != 0 {
		return 0, ExcAdEL
	}

	switch op {
	case insts.OpLB:
		return uint32(int32(int8(lsu.bus.Read8(addr)))), ExcNone
	case insts.OpLBU:
		return uint32(lsu.bus.Read8(addr)), ExcNone
	case insts.OpLH:
		return uint32(int32(int16(lsu.bus.Read16(addr)))), ExcNone
	case insts.OpLHU:
		return uint32(lsu.bus.Read16(addr)), ExcNone
	case insts.OpLW:
		return lsu.bus.Read32(addr), ExcNone
	case insts.OpLWL:
		return lsu.LWL(addr, old), ExcNone
	case insts.OpLWR:
		return lsu.LWR(addr, old), ExcNone
	}
	return 0, ExcRI
}

// LWL merges the most significant bytes of the unaligned word at addr into old.
func (lsu *LoadStoreUnit) LWL(addr, old uint32) uint32 {
	w := lsu.bus.Read32(addr &^ 3)
	switch addr & 3 {
	case 0:
		return old&0x00FFFFFF | w<<24
	case 1:
		return old&0x0000FFFF | w<<16
	case 2:
		return old&0x000000FF | w<<8
	default:
		return w
	}
}

// LWR merges the least significant bytes of the unaligned word at addr into old.
func (lsu *LoadStoreUnit) LWR(addr, old uint32) uint32 {
	w := lsu.bus.Read32(addr &^ 3)
	switch addr & 3 {
	case 0:
		return w
	case 1:
		return old&0xFF000000 | w>>8
	case 2:
		return old&0xFFFF0000 | w>>16
	default:
		return old&0xFFFFFF00 | w>>24
	}
}

// Store writes value for the store inst at addr. It returns ExcAdES for a
// misaligned access. While the cache is isolated the store is dropped.
func (lsu *LoadStoreUnit) Store(op insts.Op, addr, value uint32) Exception {
	if addr&alignMask(op) != 0 {
		return ExcAdES
	}
	if CacheIsolated(lsu.regFile) {
		return ExcNone
	}

	switch op {
	case insts.OpSB:
		lsu.bus.Write8(addr, uint8(value))
	case insts.OpSH:
		lsu.bus.Write16(addr, uint16(value))
	case insts.OpSW:
		lsu.bus.Write32(addr, value)
	case insts.OpSWL:
		lsu.SWL(addr, value)
	case insts.OpSWR:
		lsu.SWR(addr, value)
	default:
		return ExcRI
	}
	return ExcNone
}

// SWL stores the most significant bytes of value to the unaligned word at addr.
func (lsu *LoadStoreUnit) SWL(addr, value uint32) {
	aligned := addr &^ 3
	cur := lsu.bus.Read32(aligned)
	switch addr & 3 {
	case 0:
		cur = cur&0xFFFFFF00 | value>>24
	case 1:
		cur = cur&0xFFFF0000 | value>>16
	case 2:
		cur = cur&0xFF000000 | value>>8
	default:
		cur = value
	}
	lsu.bus.Write32(aligned, cur)
}

// SWR stores the least significant bytes of value to the unaligned word at addr.
func (lsu *LoadStoreUnit) SWR(addr, value uint32) {
	aligned := addr &^ 3
	cur := lsu.bus.Read32(aligned)
	switch addr & 3 {
	case 0:
		cur = value
	case 1:
		cur = cur&0x000000FF | value<<8
	case 2:
		cur = cur&0x0000FFFF | value<<16
	default:
		cur = cur&0x00FFFFFF | value<<24
	}
	lsu.bus.Write32(aligned, cur)
}

// StoreWidth returns the number of bytes a store touches, starting at the
// aligned base for SWL and SWR.
func StoreWidth(op insts.Op) uint32 {
	switch op {
	case insts.OpSB:
		return 1
	case insts.OpSH:
		return 2
	}
	return 4
}
