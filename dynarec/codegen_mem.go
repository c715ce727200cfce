package dynarec

import (
	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
	"github.com/sarchlab/psxrec/insts"
)

// Memory accesses call into the bus through per-operation helpers. The
// effective address goes in RDI, the data or merge value in RSI and the
// packed PC in RDX.

func (c *compiler) effectiveAddress(inst insts.Instruction) {
	if c.regs.isConst(inst.Rs) {
		c.em.MovImm(emitter.RDI, c.regs.constVal(inst.Rs)+inst.ImmSE())
		return
	}
	c.em.ALUImm(emitter.OpAddI, emitter.RDI, c.src(inst.Rs), inst.ImmSE())
}

func recLoad(c *compiler, inst insts.Instruction) error {
	c.effectiveAddress(inst)
	if inst.Op == insts.OpLWL || inst.Op == insts.OpLWR {
		c.em.Mov(emitter.RSI, c.mergeSource(inst.Rt))
	}
	c.em.MovImm(emitter.RDX, packPC(c.pc, c.inDelaySlot))
	c.call(c.d.helpers.load[inst.Op])
	c.checkFault()

	c.em.StoreCtx(emu.OffsetLoadValue(c.loads.cur), emitter.RAX)
	c.scheduleLoad(inst.Rt)
	return nil
}

func recStore(c *compiler, inst insts.Instruction) error {
	c.effectiveAddress(inst)
	if c.regs.isConst(inst.Rt) {
		c.em.MovImm(emitter.RSI, c.regs.constVal(inst.Rt))
	} else {
		c.em.Mov(emitter.RSI, c.src(inst.Rt))
	}
	c.em.MovImm(emitter.RDX, packPC(c.pc, c.inDelaySlot))
	c.call(c.d.helpers.store[inst.Op])
	c.checkFault()
	return nil
}
