// Package emu provides functional R3000A emulation.
package emu

import "unsafe"

// ResetVector is the PC value after a CPU reset (start of the BIOS).
const ResetVector = 0xBFC00000

// HostRegCacheSize is the number of host register save slots reserved in the
// register file for generated code.
const HostRegCacheSize = 8

// LayoutVersion identifies the memory layout of RegFile that generated code
// depends on. Any change to the field order or sizes of RegFile must bump it.
const LayoutVersion = 1

// DelayedLoad is one of the two in-flight load slots of the R3000A pipeline.
type DelayedLoad struct {
	// Index is the target GPR.
	Index uint32
	// Value is the loaded value waiting to be committed.
	Value uint32
	// Active is non-zero while the load is pending.
	Active uint32
}

// RegFile represents the R3000A register file.
//
// Generated code addresses fields of RegFile by byte offset, so the layout is
// part of the contract between the recompiler and this package. Every field
// is a uint32 (or an array of uint32) so that no padding exists.
type RegFile struct {
	// GPR holds the general-purpose registers. GPR[0] always reads as 0.
	GPR [32]uint32

	// HI and LO hold multiply/divide results.
	HI uint32
	LO uint32

	// PC is the address of the next instruction to execute.
	PC uint32

	// CP0 holds the system control coprocessor registers.
	CP0 [32]uint32

	// Load holds the two delayed-load slots, addressed by CurrentLoad.
	Load [2]DelayedLoad

	// CurrentLoad is the parity bit selecting the current slot.
	CurrentLoad uint32

	// HostRegCache preserves host registers that calls clobber.
	HostRegCache [HostRegCacheSize]uint32
}

// Field offsets of RegFile.
const (
	offGPR          = unsafe.Offsetof(RegFile{}.GPR)
	offHI           = unsafe.Offsetof(RegFile{}.HI)
	offLO           = unsafe.Offsetof(RegFile{}.LO)
	offPC           = unsafe.Offsetof(RegFile{}.PC)
	offCP0          = unsafe.Offsetof(RegFile{}.CP0)
	offLoad         = unsafe.Offsetof(RegFile{}.Load)
	offCurrentLoad  = unsafe.Offsetof(RegFile{}.CurrentLoad)
	offHostRegCache = unsafe.Offsetof(RegFile{}.HostRegCache)

	offLoadIndex  = unsafe.Offsetof(DelayedLoad{}.Index)
	offLoadValue  = unsafe.Offsetof(DelayedLoad{}.Value)
	offLoadActive = unsafe.Offsetof(DelayedLoad{}.Active)
	loadSlotSize  = unsafe.Sizeof(DelayedLoad{})
)

// RegFileSize is the size in bytes of RegFile.
const RegFileSize = uint32(unsafe.Sizeof(RegFile{}))

// OffsetGPR returns the byte offset of GPR[r].
func OffsetGPR(r uint8) uint32 {
	return uint32(offGPR) + 4*uint32(r&0x1F)
}

// OffsetHI returns the byte offset of HI.
func OffsetHI() uint32 { return uint32(offHI) }

// OffsetLO returns the byte offset of LO.
func OffsetLO() uint32 { return uint32(offLO) }

// OffsetPC returns the byte offset of PC.
func OffsetPC() uint32 { return uint32(offPC) }

// OffsetCP0 returns the byte offset of COP0 register r.
func OffsetCP0(r uint8) uint32 {
	return uint32(offCP0) + 4*uint32(r&0x1F)
}

// OffsetLoadIndex returns the byte offset of Load[slot].Index.
func OffsetLoadIndex(slot int) uint32 {
	return uint32(offLoad + uintptr(slot&1)*loadSlotSize + offLoadIndex)
}

// OffsetLoadValue returns the byte offset of Load[slot].Value.
func OffsetLoadValue(slot int) uint32 {
	return uint32(offLoad + uintptr(slot&1)*loadSlotSize + offLoadValue)
}

// OffsetLoadActive returns the byte offset of Load[slot].Active.
func OffsetLoadActive(slot int) uint32 {
	return uint32(offLoad + uintptr(slot&1)*loadSlotSize + offLoadActive)
}

// OffsetCurrentLoad returns the byte offset of CurrentLoad.
func OffsetCurrentLoad() uint32 { return uint32(offCurrentLoad) }

// OffsetHostRegCache returns the byte offset of HostRegCache[i].
func OffsetHostRegCache(i int) uint32 {
	return uint32(offHostRegCache) + 4*uint32(i)
}

// Pointer returns the base address generated code uses as its context.
func (r *RegFile) Pointer() unsafe.Pointer {
	return unsafe.Pointer(r)
}

// Reset puts the register file into its power-on state.
func (r *RegFile) Reset() {
	*r = RegFile{}
	r.PC = ResetVector
	r.CP0[CP0SR] = SRBEV
	r.CP0[CP0PRID] = PRIDValue
}

// ReadReg reads a register value. Register 0 returns 0.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	if reg == 0 {
		return 0
	}
	return r.GPR[reg&0x1F]
}

// WriteReg writes a value to a register. Writes to register 0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	if reg == 0 {
		return
	}
	r.GPR[reg&0x1F] = value
}

// ScheduleLoad starts a delayed load into reg. An older pending load to the
// same register is cancelled so only the newest value becomes visible.
func (r *RegFile) ScheduleLoad(reg uint8, value uint32) {
	r.CancelLoad(reg)
	if reg == 0 {
		return
	}
	slot := &r.Load[r.CurrentLoad&1]
	slot.Index = uint32(reg)
	slot.Value = value
	slot.Active = 1
}

// CancelLoad drops the pending load in the other slot if it targets reg.
// It is called for every direct register write so that the write is not
// overwritten by a load that commits after it.
func (r *RegFile) CancelLoad(reg uint8) {
	other := &r.Load[(r.CurrentLoad^1)&1]
	if other.Index == uint32(reg) {
		other.Active = 0
	}
}

// PendingLoad returns the value of a load in flight to reg, if any. LWL and
// LWR merge with this value instead of the architectural register.
func (r *RegFile) PendingLoad(reg uint8) (uint32, bool) {
	other := &r.Load[(r.CurrentLoad^1)&1]
	if other.Active != 0 && other.Index == uint32(reg) {
		return other.Value, true
	}
	return 0, false
}

// AdvanceLoads toggles the slot parity and commits the load issued by the
// previous instruction.
func (r *RegFile) AdvanceLoads() {
	r.CurrentLoad ^= 1
	slot := &r.Load[r.CurrentLoad&1]
	if slot.Active != 0 {
		r.WriteReg(uint8(slot.Index), slot.Value)
		slot.Active = 0
	}
}

// NormalizeLoads rewrites the slots so that CurrentLoad is 0 and any pending
// load sits in Load[1]. Both states are equivalent for execution.
func (r *RegFile) NormalizeLoads() {
	if r.CurrentLoad&1 == 0 {
		r.CurrentLoad = 0
		r.Load[0].Active = 0
		return
	}
	r.Load[1] = r.Load[0]
	r.Load[0] = DelayedLoad{}
	r.CurrentLoad = 0
}

// DropLoads discards every pending load.
func (r *RegFile) DropLoads() {
	r.Load[0].Active = 0
	r.Load[1].Active = 0
}
