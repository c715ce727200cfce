package emu

import "github.com/sarchlab/psxrec/insts"

// BranchUnit implements R3000A branch operations.
//
// A taken branch does not change PC immediately: the instruction in the
// delay slot runs first, then control moves to the scheduled target.
type BranchUnit struct {
	regFile *RegFile

	pending bool
	target  uint32
}

// NewBranchUnit creates a new BranchUnit connected to the given register file.
func NewBranchUnit(regFile *RegFile) *BranchUnit {
	return &BranchUnit{regFile: regFile}
}

// Schedule arranges for control to move to target after the delay slot.
func (b *BranchUnit) Schedule(target uint32) {
	b.pending = true
	b.target = target
}

// Take returns the scheduled target, if any, and clears it.
func (b *BranchUnit) Take() (uint32, bool) {
	if !b.pending {
		return 0, false
	}
	b.pending = false
	return b.target, true
}

// Pending reports whether the next instruction is a delay slot.
func (b *BranchUnit) Pending() bool {
	return b.pending
}

// Reset discards any scheduled branch.
func (b *BranchUnit) Reset() {
	b.pending = false
	b.target = 0
}

// link writes the return address. The write cancels a pending load to the
// same register like any other direct write.
func (b *BranchUnit) link(reg uint8, pc uint32) {
	b.regFile.CancelLoad(reg)
	b.regFile.WriteReg(reg, pc+8)
}

// Execute evaluates the branch or jump inst located at pc. It performs the
// link side effect and returns the target and whether the branch is taken.
func (b *BranchUnit) Execute(inst insts.Instruction, pc uint32) (uint32, bool) {
	rs := b.regFile.ReadReg(inst.Rs)
	rt := b.regFile.ReadReg(inst.Rt)

	switch inst.Op {
	case insts.OpJ:
		return inst.JumpTarget(pc), true
	case insts.OpJAL:
		b.link(31, pc)
		return inst.JumpTarget(pc), true
	case insts.OpJR:
		return rs, true
	case insts.OpJALR:
		b.link(inst.Rd, pc)
		return rs, true
	case insts.OpBEQ:
		return inst.BranchTarget(pc), rs == rt
	case insts.OpBNE:
		return inst.BranchTarget(pc), rs != rt
	case insts.OpBLEZ:
		return inst.BranchTarget(pc), int32(rs) <= 0
	case insts.OpBGTZ:
		return inst.BranchTarget(pc), int32(rs) > 0
	case insts.OpBLTZ:
		return inst.BranchTarget(pc), int32(rs) < 0
	case insts.OpBGEZ:
		return inst.BranchTarget(pc), int32(rs) >= 0
	case insts.OpBLTZAL:
		// The condition reads rs before the link overwrites $31.
		b.link(31, pc)
		return inst.BranchTarget(pc), int32(rs) < 0
	case insts.OpBGEZAL:
		b.link(31, pc)
		return inst.BranchTarget(pc), int32(rs) >= 0
	}
	return 0, false
}
