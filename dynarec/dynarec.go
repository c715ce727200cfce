// Package dynarec provides a dynamic recompiler for the R3000A.
//
// Guest code is translated block by block into host code for the emitter's
// machine, cached per guest address and re-entered on later hits. Blocks end
// after a branch and its delay slot or at the configured instruction cap and
// always return to the dispatcher, which looks up the next block from the
// PC the block left in the register file.
//
// Usage:
//
//	bus, _ := emu.NewBus(emu.RAMSize2MB)
//	d := dynarec.New(dynarec.DefaultConfig(), bus)
//	if err := d.Init(); err != nil { ... }
//	defer d.Shutdown()
//	err := d.Execute()
package dynarec

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
)

// ErrNotInitialized is returned by operations that need Init first.
var ErrNotInitialized = errors.New("dynarec not initialized")

// Profiler receives profiling zones. Zone is called when a zone starts and
// returns the function that ends it.
type Profiler interface {
	Zone(name string) func()
}

// Stats counts recompiler events.
type Stats struct {
	BlocksCompiled uint64
	CacheHits      uint64
	Invalidations  uint64
	CodeFlushes    uint64
	Faults         uint64
	Cycles         uint64
	CodeBytes      uint64
}

// Dynarec is the recompiling CPU core.
type Dynarec struct {
	config  *Config
	bus     *emu.Bus
	regFile *emu.RegFile

	em       *emitter.Emitter
	machine  *emitter.Machine
	helpers  helperIDs
	cache    *blockCache
	compiler *compiler

	// interp executes the instructions generated code hands back.
	interp *emu.Emulator
	lsu    *emu.LoadStoreUnit

	messages io.Writer
	profiler Profiler

	initialized bool
	stats       Stats
	fatal       error

	stopCond func() bool
	stop     atomic.Bool
}

// Option is a functional option for configuring the Dynarec.
type Option func(*Dynarec)

// WithMessageWriter sets the writer diagnostics are posted to.
func WithMessageWriter(w io.Writer) Option {
	return func(d *Dynarec) {
		d.messages = w
	}
}

// WithProfiler installs a profiling hook around every dispatch.
func WithProfiler(p Profiler) Option {
	return func(d *Dynarec) {
		d.profiler = p
	}
}

// WithStopCondition sets a predicate polled once per dispatched block.
func WithStopCondition(cond func() bool) Option {
	return func(d *Dynarec) {
		d.stopCond = cond
	}
}

// WithRegFile makes the recompiler operate on an existing register file.
func WithRegFile(regFile *emu.RegFile) Option {
	return func(d *Dynarec) {
		d.regFile = regFile
	}
}

// New creates a recompiler for bus. The configuration is copied; nothing is
// allocated until Init.
func New(config *Config, bus *emu.Bus, opts ...Option) *Dynarec {
	d := &Dynarec{
		config:   config.Clone(),
		bus:      bus,
		messages: os.Stderr,
	}

	for _, opt := range opts {
		opt(d)
	}

	if d.regFile == nil {
		d.regFile = &emu.RegFile{}
		d.regFile.Reset()
	}

	return d
}

func (d *Dynarec) post(format string, args ...any) {
	_, _ = fmt.Fprintf(d.messages, "[Dynarec] "+format+"\n", args...)
}

// Implemented reports that the recompiler runs on every host.
func (d *Dynarec) Implemented() bool { return true }

// IsDynarec reports true.
func (d *Dynarec) IsDynarec() bool { return true }

// SetCodegenMode is accepted for interface compatibility and ignored.
func (d *Dynarec) SetCodegenMode(trace bool) {}

// Init validates the configuration and allocates the code buffer and the
// block cache. Calling Init again releases the previous allocation first.
func (d *Dynarec) Init() error {
	if d.initialized {
		d.Shutdown()
	}

	if err := d.config.Validate(); err != nil {
		d.post("%v", err)
		return err
	}
	if d.bus.RAMSize() != d.config.RAMSize() {
		err := fmt.Errorf("%w: bus has %d bytes of RAM, config selects %d",
			ErrInvalidConfig, d.bus.RAMSize(), d.config.RAMSize())
		d.post("%v", err)
		return err
	}

	buf, err := emitter.NewCodeBuffer(d.config.CodeBufferSize)
	if err != nil {
		d.post("failed to allocate code buffer: %v", err)
		return fmt.Errorf("failed to allocate code buffer: %w", err)
	}

	d.em = emitter.New(buf)
	d.machine = emitter.NewMachine(emu.RegFileSize)
	d.interp = emu.NewEmulator(
		emu.WithRegFile(d.regFile),
		emu.WithBus(d.bus),
		emu.WithStderr(d.messages),
	)
	d.lsu = d.interp.LoadStoreUnit()
	d.registerHelpers()
	d.cache = newBlockCache(d.config.RAMSize())
	d.compiler = newCompiler(d)
	d.stats = Stats{}
	d.fatal = nil
	d.initialized = true

	return nil
}

// Reset drops every compiled block, rebuilds the cache and puts the CPU
// into its power-on state.
func (d *Dynarec) Reset() error {
	if !d.initialized {
		return ErrNotInitialized
	}

	d.regFile.Reset()
	d.em.Reset()
	d.cache = newBlockCache(d.config.RAMSize())
	d.stats = Stats{}
	d.fatal = nil
	return nil
}

// Shutdown releases the code buffer and the block cache.
func (d *Dynarec) Shutdown() {
	if !d.initialized {
		return
	}

	if err := d.em.Buffer().Free(); err != nil {
		d.post("failed to free code buffer: %v", err)
	}
	d.em = nil
	d.machine = nil
	d.cache = nil
	d.compiler = nil
	d.initialized = false
}

// RegFile returns the guest register file.
func (d *Dynarec) RegFile() *emu.RegFile {
	return d.regFile
}

// Bus returns the guest memory.
func (d *Dynarec) Bus() *emu.Bus {
	return d.bus
}

// Config returns a copy of the configuration.
func (d *Dynarec) Config() *Config {
	return d.config.Clone()
}

// Cycles returns the number of guest instructions executed.
func (d *Dynarec) Cycles() uint64 {
	return d.stats.Cycles
}

// Stats returns the event counters.
func (d *Dynarec) Stats() Stats {
	return d.stats
}

// Lookup returns the compiled block for pc, if there is one.
func (d *Dynarec) Lookup(pc uint32) (*Block, bool) {
	if d.cache == nil {
		return nil, false
	}
	slot := d.cache.slot(pc)
	if slot == nil || *slot == nil {
		return nil, false
	}
	return *slot, true
}

// IsPCValid reports whether code can be fetched from pc.
func (d *Dynarec) IsPCValid(pc uint32) bool {
	return d.cache != nil && d.cache.isPCValid(pc)
}

// Code returns the generated code of b as host instructions.
func (d *Dynarec) Code(b *Block) []emitter.Inst {
	if d.em == nil {
		return nil
	}
	return emitter.Disassemble(d.em.Buffer().Bytes(), b.Entry, b.CodeSize)
}

// Invalidate drops every compiled block overlapping [addr, addr+size).
// Code of dropped blocks stays in the buffer until the next flush.
func (d *Dynarec) Invalidate(addr, size uint32) {
	if d.cache == nil {
		return
	}
	maxBytes := uint32(d.config.MaxBlockSize) * 4
	d.stats.Invalidations += uint64(d.cache.invalidate(addr, size, maxBytes))
}

// flushCache drops every block and recycles the code buffer.
func (d *Dynarec) flushCache() {
	d.cache.clear()
	d.em.Reset()
	d.stats.CodeFlushes++
}

var _ emu.Core = (*Dynarec)(nil)
