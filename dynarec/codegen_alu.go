package dynarec

import (
	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
	"github.com/sarchlab/psxrec/insts"
)

// Host operations implementing the register and immediate ALU forms.
var (
	regOps = map[insts.Op]emitter.Op{
		insts.OpADDU: emitter.OpAdd,
		insts.OpSUBU: emitter.OpSub,
		insts.OpAND:  emitter.OpAnd,
		insts.OpOR:   emitter.OpOr,
		insts.OpXOR:  emitter.OpXor,
		insts.OpNOR:  emitter.OpNor,
		insts.OpSLT:  emitter.OpSetLt,
		insts.OpSLTU: emitter.OpSetLtU,
		insts.OpSLLV: emitter.OpShl,
		insts.OpSRLV: emitter.OpShr,
		insts.OpSRAV: emitter.OpSar,
	}

	immOps = map[insts.Op]emitter.Op{
		insts.OpADDU:  emitter.OpAddI,
		insts.OpADDIU: emitter.OpAddI,
		insts.OpAND:   emitter.OpAndI,
		insts.OpANDI:  emitter.OpAndI,
		insts.OpOR:    emitter.OpOrI,
		insts.OpORI:   emitter.OpOrI,
		insts.OpXOR:   emitter.OpXorI,
		insts.OpXORI:  emitter.OpXorI,
		insts.OpSLT:   emitter.OpSetLtI,
		insts.OpSLTI:  emitter.OpSetLtI,
		insts.OpSLTU:  emitter.OpSetLtUI,
		insts.OpSLTIU: emitter.OpSetLtUI,
		insts.OpSLL:   emitter.OpShlI,
		insts.OpSLLV:  emitter.OpShlI,
		insts.OpSRL:   emitter.OpShrI,
		insts.OpSRLV:  emitter.OpShrI,
		insts.OpSRA:   emitter.OpSarI,
		insts.OpSRAV:  emitter.OpSarI,
	}
)

// fold computes op on known operands. b is the second register operand or
// the already extended immediate.
func fold(op insts.Op, a, b uint32) uint32 {
	switch op {
	case insts.OpADDU, insts.OpADDIU, insts.OpADD, insts.OpADDI:
		return a + b
	case insts.OpSUBU, insts.OpSUB:
		return a - b
	case insts.OpAND, insts.OpANDI:
		return a & b
	case insts.OpOR, insts.OpORI:
		return a | b
	case insts.OpXOR, insts.OpXORI:
		return a ^ b
	case insts.OpNOR:
		return ^(a | b)
	case insts.OpSLT, insts.OpSLTI:
		return b2u(int32(a) < int32(b))
	case insts.OpSLTU, insts.OpSLTIU:
		return b2u(a < b)
	case insts.OpSLL, insts.OpSLLV:
		return a << (b & 31)
	case insts.OpSRL, insts.OpSRLV:
		return a >> (b & 31)
	case insts.OpSRA, insts.OpSRAV:
		return uint32(int32(a) >> (b & 31))
	}
	panic("dynarec: fold of " + op.String())
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// immOperand returns the immediate of an I-type ALU instruction as the
// instruction sees it.
func immOperand(inst insts.Instruction) uint32 {
	switch inst.Op {
	case insts.OpANDI, insts.OpORI, insts.OpXORI:
		return uint32(inst.Imm)
	}
	return inst.ImmSE()
}

func recALUImm(c *compiler, inst insts.Instruction) error {
	if inst.Rt == 0 {
		return nil
	}

	imm := immOperand(inst)
	if c.regs.isConst(inst.Rs) {
		c.regs.markConst(inst.Rt, fold(inst.Op, c.regs.constVal(inst.Rs), imm))
		return nil
	}

	s := c.src(inst.Rs)
	d := c.dst(inst.Rt)
	c.em.ALUImm(immOps[inst.Op], d, s, imm)
	return nil
}

func recLUI(c *compiler, inst insts.Instruction) error {
	c.regs.markConst(inst.Rt, uint32(inst.Imm)<<16)
	return nil
}

// recALUReg handles the three-register ALU operations.
func recALUReg(c *compiler, inst insts.Instruction) error {
	if inst.Rd == 0 {
		return nil
	}

	rs, rt := inst.Rs, inst.Rt
	regs := c.regs
	switch {
	case regs.isConst(rs) && regs.isConst(rt):
		regs.markConst(inst.Rd, fold(inst.Op, regs.constVal(rs), regs.constVal(rt)))
		return nil

	case regs.isConst(rt) && inst.Op != insts.OpNOR:
		v := regs.constVal(rt)
		op := immOps[inst.Op]
		if inst.Op == insts.OpSUBU {
			op, v = emitter.OpAddI, -v
		}
		s := c.src(rs)
		d := c.dst(inst.Rd)
		c.em.ALUImm(op, d, s, v)
		return nil
	}

	a := c.src(rs)
	b := c.src(rt)
	d := c.dst(inst.Rd)
	c.em.ALU(regOps[inst.Op], d, a, b)
	return nil
}

// recShift handles SLL, SRL and SRA.
func recShift(c *compiler, inst insts.Instruction) error {
	if inst.Rd == 0 {
		return nil
	}

	shamt := uint32(inst.Shamt)
	if c.regs.isConst(inst.Rt) {
		c.regs.markConst(inst.Rd, fold(inst.Op, c.regs.constVal(inst.Rt), shamt))
		return nil
	}

	s := c.src(inst.Rt)
	d := c.dst(inst.Rd)
	c.em.ALUImm(immOps[inst.Op], d, s, shamt)
	return nil
}

// recShiftVar handles SLLV, SRLV and SRAV. The value is rt, the amount rs.
func recShiftVar(c *compiler, inst insts.Instruction) error {
	if inst.Rd == 0 {
		return nil
	}

	regs := c.regs
	switch {
	case regs.isConst(inst.Rt) && regs.isConst(inst.Rs):
		regs.markConst(inst.Rd, fold(inst.Op, regs.constVal(inst.Rt), regs.constVal(inst.Rs)))
		return nil
	case regs.isConst(inst.Rs):
		s := c.src(inst.Rt)
		d := c.dst(inst.Rd)
		c.em.ALUImm(immOps[inst.Op], d, s, regs.constVal(inst.Rs)&31)
		return nil
	}

	v := c.src(inst.Rt)
	n := c.src(inst.Rs)
	d := c.dst(inst.Rd)
	c.em.ALU(regOps[inst.Op], d, v, n)
	return nil
}

// recOverflow handles ADD and SUB. Known operands that do not overflow
// fold; everything else runs through the interpreter, which raises the
// overflow exception.
func recOverflow(c *compiler, inst insts.Instruction) error {
	regs := c.regs
	if regs.isConst(inst.Rs) && regs.isConst(inst.Rt) {
		a, b := regs.constVal(inst.Rs), regs.constVal(inst.Rt)
		overflows := emu.AddOverflows(a, b)
		if inst.Op == insts.OpSUB {
			overflows = emu.SubOverflows(a, b)
		}
		if !overflows {
			regs.markConst(inst.Rd, fold(inst.Op, a, b))
			return nil
		}
	}

	c.fallback(inst)
	return nil
}

// recOverflowImm handles ADDI.
func recOverflowImm(c *compiler, inst insts.Instruction) error {
	if c.regs.isConst(inst.Rs) {
		a, b := c.regs.constVal(inst.Rs), inst.ImmSE()
		if !emu.AddOverflows(a, b) {
			c.regs.markConst(inst.Rt, a+b)
			return nil
		}
	}

	c.fallback(inst)
	return nil
}

// recMulDiv runs MULT, MULTU, DIV and DIVU through the interpreter.
func recMulDiv(c *compiler, inst insts.Instruction) error {
	c.fallback(inst)
	return nil
}

// recMoveFrom handles MFHI and MFLO.
func recMoveFrom(c *compiler, inst insts.Instruction) error {
	if inst.Rd == 0 {
		return nil
	}
	off := emu.OffsetHI()
	if inst.Op == insts.OpMFLO {
		off = emu.OffsetLO()
	}
	c.em.LoadCtx(c.dst(inst.Rd), off)
	return nil
}

// recMoveTo handles MTHI and MTLO.
func recMoveTo(c *compiler, inst insts.Instruction) error {
	off := emu.OffsetHI()
	if inst.Op == insts.OpMTLO {
		off = emu.OffsetLO()
	}
	if c.regs.isConst(inst.Rs) {
		c.em.StoreCtxImm(off, c.regs.constVal(inst.Rs))
		return nil
	}
	c.em.StoreCtx(off, c.src(inst.Rs))
	return nil
}
