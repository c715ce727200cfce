package dynarec

import (
	akitacache "github.com/sarchlab/akita/v4/mem/cache"

	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
)

// Host registers the allocator hands out, indexed by directory way. The
// last two are clobbered by calls and are preserved in RegFile.HostRegCache
// around them.
var allocatable = [numWays]emitter.Reg{
	emitter.RBX, emitter.RBP, emitter.R12, emitter.R13,
	emitter.R14, emitter.R15, emitter.R10, emitter.R11,
}

const (
	numWays  = 8
	tagBytes = 4

	// Owners at or above tempBase are temporaries, not guest registers.
	tempBase = 32
	noOwner  = -1
)

type regState uint8

const (
	regUnknown regState = iota
	regConst
)

// guestReg is the per-block allocation record of one guest register.
type guestReg struct {
	val       uint32
	state     regState
	allocated bool
	writeback bool
	way       int
}

// regAlloc maps guest registers onto host registers for one block.
//
// The host registers are the ways of a single-set akita directory whose
// tags identify owners. The directory's LRU victim finder picks the
// register to spill when all ways are taken; every way touched by the
// instruction being compiled is pinned and never chosen.
type regAlloc struct {
	em  *emitter.Emitter
	dir *akitacache.DirectoryImpl

	regs   [32]guestReg
	owner  [numWays]int
	pinned [numWays]bool
	temps  int
}

func newRegAlloc(em *emitter.Emitter) *regAlloc {
	a := &regAlloc{
		em: em,
		dir: akitacache.NewDirectory(
			1,
			numWays,
			tagBytes,
			akitacache.NewLRUVictimFinder(),
		),
	}
	a.reset()
	return a
}

// reset forgets all state at the start of a block.
func (a *regAlloc) reset() {
	for i := range a.regs {
		a.regs[i] = guestReg{}
	}
	a.regs[0] = guestReg{state: regConst}
	for w := range a.owner {
		a.owner[w] = noOwner
		a.pinned[w] = false
	}
	a.dir.Reset()
	a.temps = 0
}

func (a *regAlloc) blocks() []*akitacache.Block {
	return a.dir.GetSets()[0].Blocks
}

func tagOf(owner int) uint64 {
	return uint64(owner) * tagBytes
}

func (a *regAlloc) isConst(r uint8) bool {
	return a.regs[r].state == regConst
}

func (a *regAlloc) constVal(r uint8) uint32 {
	return a.regs[r].val
}

// markConst records a known value for r and frees its host register.
func (a *regAlloc) markConst(r uint8, v uint32) {
	if r == 0 {
		return
	}
	g := &a.regs[r]
	if g.allocated {
		a.freeWay(g.way)
	}
	*g = guestReg{val: v, state: regConst, writeback: true}
}

// markUnknown drops constant knowledge of r.
func (a *regAlloc) markUnknown(r uint8) {
	if r == 0 {
		return
	}
	a.regs[r].state = regUnknown
}

func (a *regAlloc) freeWay(w int) {
	if o := a.owner[w]; o >= 0 && o < tempBase {
		a.regs[o].allocated = false
		a.regs[o].writeback = false
	}
	a.owner[w] = noOwner
	a.pinned[w] = false
	b := a.blocks()[w]
	b.IsValid = false
	b.IsDirty = false
}

// claim returns a way for owner, spilling its previous occupant.
func (a *regAlloc) claim(owner int) int {
	victim := a.freeBlock()
	if victim == nil {
		victim = a.dir.FindVictim(tagOf(owner))
	}
	if victim == nil || a.pinned[victim.WayID] {
		victim = a.fallbackVictim()
	}
	w := victim.WayID

	if o := a.owner[w]; o >= 0 && o < tempBase {
		g := &a.regs[o]
		if g.writeback {
			a.em.StoreCtx(emu.OffsetGPR(uint8(o)), allocatable[w])
		}
		g.allocated = false
		g.writeback = false
	}

	victim.Tag = tagOf(owner)
	victim.IsValid = true
	victim.IsDirty = false
	a.dir.Visit(victim)
	a.owner[w] = owner
	a.pinned[w] = true
	return w
}

// freeBlock returns the lowest unoccupied way, if any.
func (a *regAlloc) freeBlock() *akitacache.Block {
	for _, b := range a.blocks() {
		if !b.IsValid && !a.pinned[b.WayID] {
			return b
		}
	}
	return nil
}

// fallbackVictim returns the lowest unpinned way.
func (a *regAlloc) fallbackVictim() *akitacache.Block {
	for _, b := range a.blocks() {
		if !a.pinned[b.WayID] {
			return b
		}
	}
	panic("dynarec: every host register is pinned by one instruction")
}

func (a *regAlloc) touch(w int) {
	a.dir.Visit(a.blocks()[w])
	a.pinned[w] = true
}

// read returns a host register holding the current value of guest register
// r, loading it from the register file if needed. Constants are
// materialized into a temporary.
func (a *regAlloc) read(r uint8) emitter.Reg {
	g := &a.regs[r]
	if g.state == regConst {
		t := a.reserve()
		a.em.MovImm(t, g.val)
		return t
	}
	if g.allocated {
		a.touch(g.way)
		return allocatable[g.way]
	}
	w := a.claim(int(r))
	a.em.LoadCtx(allocatable[w], emu.OffsetGPR(r))
	g.allocated = true
	g.way = w
	return allocatable[w]
}

// write returns a host register that will hold the new value of guest
// register r. The old value is not loaded. r must not be 0.
func (a *regAlloc) write(r uint8) emitter.Reg {
	g := &a.regs[r]
	g.state = regUnknown
	if !g.allocated {
		g.way = a.claim(int(r))
		g.allocated = true
	} else {
		a.touch(g.way)
	}
	g.writeback = true
	a.blocks()[g.way].IsDirty = true
	return allocatable[g.way]
}

// reserve returns a temporary host register that lives until release.
func (a *regAlloc) reserve() emitter.Reg {
	a.temps++
	return allocatable[a.claim(tempBase+a.temps)]
}

// release unpins everything and frees temporaries. Called after every
// instruction.
func (a *regAlloc) release() {
	for w := range a.owner {
		if a.owner[w] >= tempBase {
			a.freeWay(w)
		}
		a.pinned[w] = false
	}
	a.temps = 0
}

// flush writes every constant and dirty register back to the register file
// and forgets all allocations.
func (a *regAlloc) flush() {
	a.writeback()
	for r := 1; r < len(a.regs); r++ {
		a.regs[r] = guestReg{}
	}
	for w := range a.owner {
		a.freeWay(w)
	}
}

// dropClean frees host registers caching guest registers that were read
// but not written.
func (a *regAlloc) dropClean() {
	for w, o := range a.owner {
		if o >= 0 && o < tempBase && !a.regs[o].writeback {
			a.freeWay(w)
		}
	}
}

// writeback stores constants and dirty registers without changing any
// allocation state. Used on exit paths that leave the block early.
func (a *regAlloc) writeback() {
	for r := 1; r < len(a.regs); r++ {
		g := &a.regs[r]
		switch {
		case g.state == regConst:
			a.em.StoreCtxImm(emu.OffsetGPR(uint8(r)), g.val)
		case g.allocated && g.writeback:
			a.em.StoreCtx(emu.OffsetGPR(uint8(r)), allocatable[g.way])
		}
	}
}

// saveVolatile preserves occupied call-clobbered host registers.
func (a *regAlloc) saveVolatile() {
	for w, h := range allocatable {
		if h.Volatile() && a.owner[w] != noOwner {
			a.em.StoreCtx(emu.OffsetHostRegCache(w), h)
		}
	}
}

// restoreVolatile reloads the registers saved by saveVolatile.
func (a *regAlloc) restoreVolatile() {
	for w, h := range allocatable {
		if h.Volatile() && a.owner[w] != noOwner {
			a.em.LoadCtx(h, emu.OffsetHostRegCache(w))
		}
	}
}

// hostOf returns the host register allocated to r, if any.
func (a *regAlloc) hostOf(r uint8) (emitter.Reg, bool) {
	b := a.dir.Lookup(0, tagOf(int(r)))
	if b == nil || !b.IsValid {
		return 0, false
	}
	return allocatable[b.WayID], true
}
