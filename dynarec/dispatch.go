package dynarec

import (
	"errors"
	"fmt"

	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
)

// Execute dispatches blocks until Stop is called, the stop condition holds
// or a fatal error occurs. The stop request is polled once per block.
func (d *Dynarec) Execute() error {
	if !d.initialized {
		return ErrNotInitialized
	}

	d.stop.Store(false)
	for !d.shouldStop() {
		if err := d.step(); err != nil {
			d.post("%v", err)
			return err
		}
	}
	return nil
}

// RunFor dispatches blocks until at least n more guest instructions have
// run, stopping early like Execute. The last block may overshoot n.
func (d *Dynarec) RunFor(n uint64) error {
	if !d.initialized {
		return ErrNotInitialized
	}

	d.stop.Store(false)
	end := d.stats.Cycles + n
	for d.stats.Cycles < end && !d.shouldStop() {
		if err := d.step(); err != nil {
			d.post("%v", err)
			return err
		}
	}
	return nil
}

// Stop asks Execute to return before the next block. It is safe to call
// from another goroutine.
func (d *Dynarec) Stop() {
	d.stop.Store(true)
}

func (d *Dynarec) shouldStop() bool {
	if d.stop.Load() {
		return true
	}
	return d.stopCond != nil && d.stopCond()
}

// step runs one block, compiling it first if needed.
func (d *Dynarec) step() error {
	if d.profiler != nil {
		defer d.profiler.Zone("dispatch")()
	}

	rf := d.regFile
	rf.NormalizeLoads()
	pc := rf.PC

	if pc&3 != 0 {
		emu.RaiseAddressError(rf, emu.ExcAdEL, pc, pc, false)
		d.guestFault()
		return nil
	}

	slot := d.cache.slot(pc)
	if slot == nil {
		emu.RaiseException(rf, emu.ExcIBE, pc, false)
		d.guestFault()
		return nil
	}

	b := *slot
	if b == nil {
		var err error
		if b, err = d.compile(pc); err != nil {
			return err
		}
		*slot = b
	} else {
		d.stats.CacheHits++
	}

	n, err := d.machine.Run(d.em.Buffer().Bytes(), b.Entry, rf.Pointer())
	if err != nil {
		return fmt.Errorf("running block at 0x%08X: %w", pc, err)
	}
	if d.fatal != nil {
		err := d.fatal
		d.fatal = nil
		return fmt.Errorf("block at 0x%08X: %w", pc, err)
	}
	d.stats.Cycles += uint64(n)
	return nil
}

// compile translates the block at pc, recycling the code buffer once if it
// is full.
func (d *Dynarec) compile(pc uint32) (*Block, error) {
	if d.profiler != nil {
		defer d.profiler.Zone("compile")()
	}

	b, err := d.compiler.compile(pc)
	if errors.Is(err, emitter.ErrBufferFull) {
		d.flushCache()
		b, err = d.compiler.compile(pc)
	}
	if err != nil {
		return nil, fmt.Errorf("compiling block at 0x%08X: %w", pc, err)
	}

	d.stats.BlocksCompiled++
	d.stats.CodeBytes += uint64(b.CodeSize)
	return b, nil
}

// guestFault accounts for a fault raised before any block ran. The faulting
// fetch counts as one instruction like it does in the interpreter.
func (d *Dynarec) guestFault() {
	d.stats.Faults++
	d.stats.Cycles++
}
