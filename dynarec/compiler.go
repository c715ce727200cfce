package dynarec

import (
	"fmt"

	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
	"github.com/sarchlab/psxrec/insts"
)

// handler generates code for one guest instruction.
type handler func(c *compiler, inst insts.Instruction) error

// handlers is indexed by the primary opcode field.
var handlers [64]handler

func init() {
	for i := range handlers {
		handlers[i] = recUnknown
	}

	handlers[insts.PrimarySpecial] = recSpecial
	handlers[insts.PrimaryRegImm] = recRegImm
	handlers[insts.PrimaryJ] = recJump
	handlers[insts.PrimaryJAL] = recJump
	handlers[insts.PrimaryBEQ] = recBranch
	handlers[insts.PrimaryBNE] = recBranch
	handlers[insts.PrimaryBLEZ] = recBranch
	handlers[insts.PrimaryBGTZ] = recBranch
	handlers[insts.PrimaryADDI] = recOverflowImm
	handlers[insts.PrimaryADDIU] = recALUImm
	handlers[insts.PrimarySLTI] = recALUImm
	handlers[insts.PrimarySLTIU] = recALUImm
	handlers[insts.PrimaryANDI] = recALUImm
	handlers[insts.PrimaryORI] = recALUImm
	handlers[insts.PrimaryXORI] = recALUImm
	handlers[insts.PrimaryLUI] = recLUI
	handlers[insts.PrimaryCOP0] = recCop0
	handlers[insts.PrimaryLB] = recLoad
	handlers[insts.PrimaryLH] = recLoad
	handlers[insts.PrimaryLWL] = recLoad
	handlers[insts.PrimaryLW] = recLoad
	handlers[insts.PrimaryLBU] = recLoad
	handlers[insts.PrimaryLHU] = recLoad
	handlers[insts.PrimaryLWR] = recLoad
	handlers[insts.PrimarySB] = recStore
	handlers[insts.PrimarySH] = recStore
	handlers[insts.PrimarySWL] = recStore
	handlers[insts.PrimarySW] = recStore
	handlers[insts.PrimarySWR] = recStore
}

// recUnknown rejects an instruction no generator exists for.
func recUnknown(c *compiler, inst insts.Instruction) error {
	return fmt.Errorf("%w: %v (0x%08X) at 0x%08X",
		emu.ErrUnimplemented, inst, inst.Word, c.pc)
}

// compiler holds the state of one block compilation.
type compiler struct {
	d    *Dynarec
	em   *emitter.Emitter
	regs *regAlloc

	start uint32
	pc    uint32
	count int

	inDelaySlot   bool
	branchPending bool

	// exited is set once an instruction left the block through an
	// exception; nothing after it runs.
	exited bool

	// Exit PC: stored at run time by a branch, known at compile time, or
	// the fall-through address.
	pcStored    bool
	targetKnown bool
	target      uint32

	needsStackFrame bool
	prologue        int

	loads delaySlots
}

func newCompiler(d *Dynarec) *compiler {
	return &compiler{
		d:    d,
		em:   d.em,
		regs: newRegAlloc(d.em),
	}
}

func (c *compiler) begin(pc uint32) {
	c.regs.reset()
	c.start = pc
	c.pc = pc
	c.count = 0
	c.inDelaySlot = false
	c.branchPending = false
	c.exited = false
	c.pcStored = false
	c.targetKnown = false
	c.target = 0
	c.needsStackFrame = false
	c.loads.reset()
}

// compile translates the block starting at pc.
func (c *compiler) compile(pc uint32) (*Block, error) {
	c.begin(pc)
	entry := c.em.Bookmark()
	c.prologue = c.em.Nop()

	bus := c.d.bus
	maxInsts := c.d.config.MaxBlockSize

	for {
		delaySlot := c.branchPending
		if !delaySlot && c.count >= maxInsts {
			break
		}

		if !bus.Executable(c.pc) {
			if delaySlot {
				c.inDelaySlot = true
				c.raise(emu.ExcIBE)
				c.count++
			}
			break
		}

		inst := insts.Decode(bus.Read32(c.pc))
		if !delaySlot && inst.IsBranch() && c.count == maxInsts-1 {
			break
		}

		c.inDelaySlot = delaySlot
		c.branchPending = false
		if err := handlers[inst.Primary()](c, inst); err != nil {
			c.em.Rewind(entry)
			return nil, err
		}
		c.count++
		c.endInstruction(inst)
		c.pc += 4

		if delaySlot || c.exited {
			break
		}
	}

	c.exit()

	if err := c.em.Err(); err != nil {
		c.em.Rewind(entry)
		return nil, err
	}

	return &Block{
		PC:       c.start,
		Entry:    entry,
		CodeSize: c.em.Bookmark() - entry,
		Insts:    c.count,
	}, nil
}

// endInstruction retires the instruction just compiled: it cancels loads
// its direct write supersedes, advances the load slots and commits the
// load issued by the previous instruction.
func (c *compiler) endInstruction(inst insts.Instruction) {
	if c.exited {
		return
	}
	if r, ok := inst.Dest(); ok && r != 0 {
		c.cancelLoad(r)
	}
	c.regs.release()
	c.advanceLoads()
	c.regs.release()
}

// exit emits the block epilogue.
func (c *compiler) exit() {
	c.regs.flush()

	if !c.exited {
		switch {
		case c.pcStored:
		case c.targetKnown:
			c.em.StoreCtxImm(emu.OffsetPC(), c.target)
		default:
			c.em.StoreCtxImm(emu.OffsetPC(), c.pc)
		}
		c.normalizeLoads()
	}

	c.ret()

	if c.needsStackFrame {
		c.em.Patch(c.prologue, emitter.Inst{Op: emitter.OpEnter})
	}
}

// ret leaves the block returning the number of instructions executed.
func (c *compiler) ret() {
	if c.needsStackFrame {
		c.em.Leave()
	}
	c.em.MovImm(emitter.RAX, uint32(c.count))
	c.em.Ret()
}

// call invokes helper id with the argument registers already set.
// Occupied call-clobbered host registers survive the call.
func (c *compiler) call(id emitter.HelperID) {
	c.needsStackFrame = true
	c.regs.saveVolatile()
	c.em.Call(id)
	c.regs.restoreVolatile()
}

// checkFault emits the early exit taken when the helper just called
// reported a fault. The exception state is already in the register file;
// the stub only writes back guest registers the block has not stored yet.
func (c *compiler) checkFault() {
	skip := c.em.Jz(emitter.RDX, 0)
	c.regs.writeback()
	c.em.Leave()
	c.em.MovImm(emitter.RAX, uint32(c.count+1))
	c.em.Ret()
	c.em.PatchTarget(skip, c.em.Bookmark())
}

// fallback runs inst through the interpreter.
func (c *compiler) fallback(inst insts.Instruction) {
	c.regs.flush()
	c.em.MovImm(emitter.RDI, inst.Word)
	c.em.MovImm(emitter.RDX, packPC(c.pc, c.inDelaySlot))
	c.call(c.d.helpers.interp)
	c.checkFault()
}

// raise ends the block with a guest exception.
func (c *compiler) raise(code emu.Exception) {
	c.regs.flush()
	c.em.MovImm(emitter.RDI, uint32(code))
	c.em.MovImm(emitter.RDX, packPC(c.pc, c.inDelaySlot))
	c.call(c.d.helpers.exception)
	c.loads.drop()
	c.exited = true
}

// src returns a host register holding guest register r.
func (c *compiler) src(r uint8) emitter.Reg {
	return c.regs.read(r)
}

// dst returns the host register to write guest register r to.
func (c *compiler) dst(r uint8) emitter.Reg {
	return c.regs.write(r)
}
