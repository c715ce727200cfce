package dynarec

import (
	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
)

// loadSlot is the compile-time view of one delayed-load slot.
//
// Inside a block the index and active flag of a slot are known while
// compiling; only the loaded value lives in the register file at run time.
// The one exception is the load left pending by the previous block: it sits
// in RegFile.Load[1] and nothing about it is known, so it is marked runtime
// and handled with run-time checks until the first instruction commits it.
type loadSlot struct {
	index   uint8
	active  bool
	runtime bool
}

type delaySlots struct {
	slot [2]loadSlot
	cur  int
}

func (s *delaySlots) reset() {
	s.slot[0] = loadSlot{}
	s.slot[1] = loadSlot{runtime: true}
	s.cur = 0
}

func (s *delaySlots) drop() {
	s.slot[0] = loadSlot{}
	s.slot[1] = loadSlot{}
}

func (s *delaySlots) other() *loadSlot {
	return &s.slot[s.cur^1]
}

// pendingTo reports whether a load to r issued at compile time is in
// flight.
func (s *delaySlots) pendingTo(r uint8) bool {
	o := s.other()
	return !o.runtime && o.active && o.index == r
}

// scheduleLoad records a delayed load to r in the current slot. The loaded
// value must already be in RegFile.Load[cur].Value.
func (c *compiler) scheduleLoad(r uint8) {
	if r == 0 {
		return
	}
	c.cancelLoad(r)
	c.loads.slot[c.loads.cur] = loadSlot{index: r, active: true}
}

// cancelLoad drops the load pending in the other slot if it targets r.
func (c *compiler) cancelLoad(r uint8) {
	o := c.loads.other()
	if !o.runtime {
		if o.active && o.index == r {
			o.active = false
		}
		return
	}

	em := c.em
	em.LoadCtx(emitter.RCX, emu.OffsetLoadIndex(1))
	em.ALUImm(emitter.OpXorI, emitter.RCX, emitter.RCX, uint32(r))
	skip := em.Jnz(emitter.RCX, 0)
	em.StoreCtxImm(emu.OffsetLoadActive(1), 0)
	em.PatchTarget(skip, em.Bookmark())
}

// advanceLoads toggles the slot parity and commits the load issued by the
// previous instruction.
func (c *compiler) advanceLoads() {
	c.loads.cur ^= 1
	s := &c.loads.slot[c.loads.cur]

	switch {
	case s.runtime:
		// The target register is only known at run time. Registers the
		// first instruction wrote had the load cancelled, so only clean
		// cached copies can go stale.
		c.regs.dropClean()
		em := c.em
		em.LoadCtx(emitter.RCX, emu.OffsetLoadActive(1))
		skip := em.Jz(emitter.RCX, 0)
		em.LoadCtx(emitter.RCX, emu.OffsetLoadIndex(1))
		em.LoadCtx(emitter.RAX, emu.OffsetLoadValue(1))
		em.StoreCtxIdx(emu.OffsetGPR(0), emitter.RCX, emitter.RAX)
		em.StoreCtxImm(emu.OffsetLoadActive(1), 0)
		em.PatchTarget(skip, em.Bookmark())
	case s.active:
		h := c.dst(s.index)
		c.em.LoadCtx(h, emu.OffsetLoadValue(c.loads.cur))
	}

	*s = loadSlot{}
}

// normalizeLoads moves a load left pending at block exit into Load[1] so
// the next block finds the register file in its canonical form.
func (c *compiler) normalizeLoads() {
	p := c.loads.cur ^ 1
	s := c.loads.slot[p]
	if s.runtime || !s.active {
		return
	}
	if p == 0 {
		c.em.LoadCtx(emitter.RAX, emu.OffsetLoadValue(0))
		c.em.StoreCtx(emu.OffsetLoadValue(1), emitter.RAX)
	}
	c.em.StoreCtxImm(emu.OffsetLoadIndex(1), uint32(s.index))
	c.em.StoreCtxImm(emu.OffsetLoadActive(1), 1)
}

// mergeSource returns a host register holding the value LWL/LWR merge
// with: the in-flight load to r if there is one, else r itself.
func (c *compiler) mergeSource(r uint8) emitter.Reg {
	if c.loads.pendingTo(r) {
		t := c.regs.reserve()
		c.em.LoadCtx(t, emu.OffsetLoadValue(c.loads.cur^1))
		return t
	}

	cur := c.src(r)
	if !c.loads.other().runtime {
		return cur
	}

	// The previous block may have left a load to r in flight.
	t := c.regs.reserve()
	em := c.em
	em.Mov(t, cur)
	em.LoadCtx(emitter.RCX, emu.OffsetLoadActive(1))
	noLoad := em.Jz(emitter.RCX, 0)
	em.LoadCtx(emitter.RCX, emu.OffsetLoadIndex(1))
	em.ALUImm(emitter.OpXorI, emitter.RCX, emitter.RCX, uint32(r))
	otherReg := em.Jnz(emitter.RCX, 0)
	em.LoadCtx(t, emu.OffsetLoadValue(1))
	done := em.Bookmark()
	em.PatchTarget(noLoad, done)
	em.PatchTarget(otherReg, done)
	return t
}
