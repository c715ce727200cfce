package dynarec

import (
	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
	"github.com/sarchlab/psxrec/insts"
)

// Helpers are the host functions generated code calls for work it does not
// do inline. Each returns a fault flag in its second result: non-zero means
// the helper raised a guest exception, the register file already holds the
// exception state, and the block must leave through its exit stub.
//
// The third argument of memory and fallback helpers is the guest PC of the
// instruction with bit 0 set when it sits in a branch delay slot.

type helperIDs struct {
	load      map[insts.Op]emitter.HelperID
	store     map[insts.Op]emitter.HelperID
	interp    emitter.HelperID
	exception emitter.HelperID
}

func packPC(pc uint32, inDelay bool) uint32 {
	if inDelay {
		return pc | 1
	}
	return pc
}

func unpackPC(v uint32) (uint32, bool) {
	return v &^ 3, v&1 != 0
}

func faultFlag(exc emu.Exception) uint32 {
	if exc != emu.ExcNone {
		return 1
	}
	return 0
}

func (d *Dynarec) registerHelpers() {
	d.helpers = helperIDs{
		load:  make(map[insts.Op]emitter.HelperID),
		store: make(map[insts.Op]emitter.HelperID),
	}

	for _, op := range []insts.Op{
		insts.OpLB, insts.OpLBU, insts.OpLH, insts.OpLHU,
		insts.OpLW, insts.OpLWL, insts.OpLWR,
	} {
		d.helpers.load[op] = d.machine.Register(op.String(), d.loadHelper(op))
	}

	for _, op := range []insts.Op{
		insts.OpSB, insts.OpSH, insts.OpSW, insts.OpSWL, insts.OpSWR,
	} {
		d.helpers.store[op] = d.machine.Register(op.String(), d.storeHelper(op))
	}

	d.helpers.interp = d.machine.Register("interp", d.interpHelper)
	d.helpers.exception = d.machine.Register("exception", d.exceptionHelper)
}

// loadHelper returns a helper reading memory for op. Arguments: address,
// merge value for LWL/LWR, packed PC. Results: value, fault.
func (d *Dynarec) loadHelper(op insts.Op) emitter.Helper {
	return func(addr, old, packed uint32) (uint32, uint32) {
		value, exc := d.lsu.Load(op, addr, old)
		if exc != emu.ExcNone {
			pc, inDelay := unpackPC(packed)
			emu.RaiseAddressError(d.regFile, exc, addr, pc, inDelay)
			d.stats.Faults++
		}
		return value, faultFlag(exc)
	}
}

// storeHelper returns a helper writing memory for op. Arguments: address,
// value, packed PC. Results: unused, fault.
func (d *Dynarec) storeHelper(op insts.Op) emitter.Helper {
	return func(addr, value, packed uint32) (uint32, uint32) {
		exc := d.lsu.Store(op, addr, value)
		if exc != emu.ExcNone {
			pc, inDelay := unpackPC(packed)
			emu.RaiseAddressError(d.regFile, exc, addr, pc, inDelay)
			d.stats.Faults++
			return 0, 1
		}
		if d.config.InvalidateOnStore && d.bus.IsRAM(addr) && !emu.CacheIsolated(d.regFile) {
			d.Invalidate(addr&^3, 4)
		}
		return 0, 0
	}
}

// interpHelper executes one instruction through the interpreter.
// Arguments: instruction word, unused, packed PC. Results: unused, fault.
func (d *Dynarec) interpHelper(word, _, packed uint32) (uint32, uint32) {
	pc, inDelay := unpackPC(packed)
	exc, err := d.interp.Exec(insts.Decode(word), pc, inDelay)
	if err != nil {
		// The compiler only routes implemented instructions here.
		d.fatal = err
		return 0, 1
	}
	if exc != emu.ExcNone {
		d.stats.Faults++
	}
	return 0, faultFlag(exc)
}

// exceptionHelper raises a guest exception. Arguments: exception code,
// unused, packed PC. Results: unused, fault (always set).
func (d *Dynarec) exceptionHelper(code, _, packed uint32) (uint32, uint32) {
	pc, inDelay := unpackPC(packed)
	emu.RaiseException(d.regFile, emu.Exception(code), pc, inDelay)
	d.stats.Faults++
	return 0, 1
}
