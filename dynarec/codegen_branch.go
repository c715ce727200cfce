package dynarec

import (
	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
	"github.com/sarchlab/psxrec/insts"
)

// Branches never leave the block themselves. They record the successor PC,
// either at compile time when it is known or in RegFile.PC at run time, and
// the block ends after the delay slot. A branch that sits in a delay slot
// only performs its link.

func (c *compiler) link(r uint8) {
	c.regs.markConst(r, c.pc+8)
}

func (c *compiler) setTarget(target uint32) {
	c.targetKnown = true
	c.target = target
	c.branchPending = true
}

func (c *compiler) storeTarget(r emitter.Reg) {
	c.em.StoreCtx(emu.OffsetPC(), r)
	c.pcStored = true
	c.branchPending = true
}

func recJump(c *compiler, inst insts.Instruction) error {
	if inst.Op == insts.OpJAL {
		c.link(31)
	}
	if !c.inDelaySlot {
		c.setTarget(inst.JumpTarget(c.pc))
	}
	return nil
}

// recJumpReg handles JR and JALR. The target is read before the link so
// that JALR with rd == rs jumps to the old value.
func recJumpReg(c *compiler, inst insts.Instruction) error {
	if !c.inDelaySlot {
		if c.regs.isConst(inst.Rs) {
			c.setTarget(c.regs.constVal(inst.Rs))
		} else {
			c.storeTarget(c.src(inst.Rs))
		}
	}
	if inst.Op == insts.OpJALR {
		c.link(inst.Rd)
	}
	return nil
}

func recBranch(c *compiler, inst insts.Instruction) error {
	if !c.inDelaySlot {
		c.condBranch(inst)
	}
	return nil
}

func recRegImm(c *compiler, inst insts.Instruction) error {
	if !c.inDelaySlot {
		c.condBranch(inst)
	}
	// BLTZAL and BGEZAL link whether or not they are taken.
	if inst.Op == insts.OpBLTZAL || inst.Op == insts.OpBGEZAL {
		c.link(31)
	}
	return nil
}

// branchTaken evaluates a conditional branch on known operands.
func branchTaken(op insts.Op, rs, rt uint32) bool {
	switch op {
	case insts.OpBEQ:
		return rs == rt
	case insts.OpBNE:
		return rs != rt
	case insts.OpBLEZ:
		return int32(rs) <= 0
	case insts.OpBGTZ:
		return int32(rs) > 0
	case insts.OpBLTZ, insts.OpBLTZAL:
		return int32(rs) < 0
	default: // BGEZ, BGEZAL
		return int32(rs) >= 0
	}
}

// condBranch resolves the successor of a conditional branch. Known
// outcomes fold to a compile-time target; otherwise RCX receives a
// condition value and the chosen successor is stored to RegFile.PC.
func (c *compiler) condBranch(inst insts.Instruction) {
	taken := inst.BranchTarget(c.pc)
	next := c.pc + 8
	regs := c.regs
	twoOperand := inst.Op == insts.OpBEQ || inst.Op == insts.OpBNE

	known := regs.isConst(inst.Rs) && (!twoOperand || regs.isConst(inst.Rt))
	if twoOperand && inst.Rs == inst.Rt {
		known = true
	}
	if known {
		rs := regs.constVal(inst.Rs)
		rt := rs
		if inst.Rs != inst.Rt {
			rt = regs.constVal(inst.Rt)
		}
		if branchTaken(inst.Op, rs, rt) {
			c.setTarget(taken)
		} else {
			c.setTarget(next)
		}
		return
	}

	em := c.em
	// takenOnZero tells whether RCX == 0 selects the branch target.
	var takenOnZero bool
	switch inst.Op {
	case insts.OpBEQ, insts.OpBNE:
		switch {
		case regs.isConst(inst.Rt):
			em.ALUImm(emitter.OpXorI, emitter.RCX, c.src(inst.Rs), regs.constVal(inst.Rt))
		case regs.isConst(inst.Rs):
			em.ALUImm(emitter.OpXorI, emitter.RCX, c.src(inst.Rt), regs.constVal(inst.Rs))
		default:
			a := c.src(inst.Rs)
			b := c.src(inst.Rt)
			em.ALU(emitter.OpXor, emitter.RCX, a, b)
		}
		takenOnZero = inst.Op == insts.OpBEQ
	case insts.OpBLTZ, insts.OpBLTZAL, insts.OpBGEZ, insts.OpBGEZAL:
		em.ALUImm(emitter.OpSetLtI, emitter.RCX, c.src(inst.Rs), 0)
		takenOnZero = inst.Op == insts.OpBGEZ || inst.Op == insts.OpBGEZAL
	case insts.OpBLEZ, insts.OpBGTZ:
		em.ALUImm(emitter.OpSetLtI, emitter.RCX, c.src(inst.Rs), 1)
		takenOnZero = inst.Op == insts.OpBGTZ
	}

	em.MovImm(emitter.RAX, taken)
	var skip int
	if takenOnZero {
		skip = em.Jz(emitter.RCX, 0)
	} else {
		skip = em.Jnz(emitter.RCX, 0)
	}
	em.MovImm(emitter.RAX, next)
	em.PatchTarget(skip, em.Bookmark())
	c.storeTarget(emitter.RAX)
}
