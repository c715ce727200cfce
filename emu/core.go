package emu

// Core is a CPU execution engine. The interpreter and the recompiler both
// implement it so that a front end can select either one.
type Core interface {
	// Implemented reports whether the core can run on this host.
	Implemented() bool

	// Init allocates the core's resources.
	Init() error

	// Reset tears down all cached state and puts the CPU into its power-on
	// state.
	Reset() error

	// Shutdown releases the core's resources.
	Shutdown()

	// Execute runs guest code until Stop is called, a stop condition holds,
	// or a fatal error occurs.
	Execute() error

	// RunFor runs at most n guest instructions. A recompiler may overshoot
	// by the length of the block in flight.
	RunFor(n uint64) error

	// Stop requests that Execute return. Safe to call from another goroutine.
	Stop()

	// Invalidate drops cached translations of [addr, addr+size).
	Invalidate(addr, size uint32)

	// SetCodegenMode selects a code generation mode.
	SetCodegenMode(trace bool)

	// IsDynarec reports whether the core recompiles guest code.
	IsDynarec() bool

	// RegFile returns the guest register file the core executes on.
	RegFile() *RegFile

	// Cycles returns the number of guest instructions executed.
	Cycles() uint64
}

var _ Core = (*Emulator)(nil)
