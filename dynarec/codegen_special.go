package dynarec

import (
	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
	"github.com/sarchlab/psxrec/insts"
)

// specialHandlers is indexed by the funct field of SPECIAL instructions.
var specialHandlers [64]handler

func init() {
	for i := range specialHandlers {
		specialHandlers[i] = recUnknown
	}

	for _, f := range []uint8{insts.FunctSLL, insts.FunctSRL, insts.FunctSRA} {
		specialHandlers[f] = recShift
	}
	for _, f := range []uint8{insts.FunctSLLV, insts.FunctSRLV, insts.FunctSRAV} {
		specialHandlers[f] = recShiftVar
	}
	for _, f := range []uint8{
		insts.FunctADDU, insts.FunctSUBU, insts.FunctAND, insts.FunctOR,
		insts.FunctXOR, insts.FunctNOR, insts.FunctSLT, insts.FunctSLTU,
	} {
		specialHandlers[f] = recALUReg
	}
	for _, f := range []uint8{insts.FunctMULT, insts.FunctMULTU, insts.FunctDIV, insts.FunctDIVU} {
		specialHandlers[f] = recMulDiv
	}

	specialHandlers[insts.FunctJR] = recJumpReg
	specialHandlers[insts.FunctJALR] = recJumpReg
	specialHandlers[insts.FunctSYSCALL] = recTrap
	specialHandlers[insts.FunctBREAK] = recTrap
	specialHandlers[insts.FunctMFHI] = recMoveFrom
	specialHandlers[insts.FunctMFLO] = recMoveFrom
	specialHandlers[insts.FunctMTHI] = recMoveTo
	specialHandlers[insts.FunctMTLO] = recMoveTo
	specialHandlers[insts.FunctADD] = recOverflow
	specialHandlers[insts.FunctSUB] = recOverflow
}

func recSpecial(c *compiler, inst insts.Instruction) error {
	return specialHandlers[inst.Funct()](c, inst)
}

// recTrap ends the block with SYSCALL or BREAK.
func recTrap(c *compiler, inst insts.Instruction) error {
	code := emu.ExcSyscall
	if inst.Op == insts.OpBREAK {
		code = emu.ExcBreak
	}
	c.raise(code)
	return nil
}

func recCop0(c *compiler, inst insts.Instruction) error {
	switch inst.Op {
	case insts.OpMFC0:
		c.em.LoadCtx(emitter.RAX, emu.OffsetCP0(inst.Rd))
		c.em.StoreCtx(emu.OffsetLoadValue(c.loads.cur), emitter.RAX)
		c.scheduleLoad(inst.Rt)
		return nil
	case insts.OpMTC0, insts.OpRFE:
		c.fallback(inst)
		return nil
	}
	return recUnknown(c, inst)
}
