package emu

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync/atomic"

	"github.com/sarchlab/psxrec/insts"
)

var (
	// ErrUnimplemented is returned for instructions the core cannot execute.
	ErrUnimplemented = errors.New("unimplemented instruction")

	// ErrMaxInstructions is returned once the instruction limit is reached.
	ErrMaxInstructions = errors.New("max instructions reached")
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Exception is the guest exception the instruction raised, or ExcNone.
	// Guest exceptions are delivered to the guest and do not stop execution.
	Exception Exception

	// Err is set if an error occurred during execution.
	Err error
}

// Emulator executes R3000A instructions functionally.
type Emulator struct {
	regFile *RegFile
	bus     *Bus
	decoder *insts.Decoder

	// Execution units
	alu        *ALU
	lsu        *LoadStoreUnit
	branchUnit *BranchUnit

	// I/O
	stderr io.Writer

	// Execution state
	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	stopCond         func() bool
	stop             atomic.Bool
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithStderr sets the writer diagnostics are posted to.
func WithStderr(w io.Writer) EmulatorOption {
	return func(e *Emulator) {
		e.stderr = w
	}
}

// WithRegFile makes the emulator operate on an existing register file.
func WithRegFile(regFile *RegFile) EmulatorOption {
	return func(e *Emulator) {
		e.regFile = regFile
	}
}

// WithBus makes the emulator operate on an existing bus.
func WithBus(bus *Bus) EmulatorOption {
	return func(e *Emulator) {
		e.bus = bus
	}
}

// WithMaxInstructions sets the maximum number of instructions to execute.
// A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithStopCondition sets a predicate polled before every instruction by
// Execute. Execution stops once it returns true.
func WithStopCondition(cond func() bool) EmulatorOption {
	return func(e *Emulator) {
		e.stopCond = cond
	}
}

// NewEmulator creates a new R3000A emulator. Without WithRegFile and WithBus
// it owns a reset register file and a 2MB bus.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		decoder: insts.NewDecoder(),
		stderr:  os.Stderr,
	}

	for _, opt := range opts {
		opt(e)
	}

	if e.regFile == nil {
		e.regFile = &RegFile{}
		e.regFile.Reset()
	}
	if e.bus == nil {
		// A 2MB bus is always a valid size.
		e.bus, _ = NewBus(RAMSize2MB)
	}

	e.alu = NewALU(e.regFile)
	e.lsu = NewLoadStoreUnit(e.regFile, e.bus)
	e.branchUnit = NewBranchUnit(e.regFile)

	return e
}

// RegFile returns the emulator's register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// Bus returns the emulator's bus.
func (e *Emulator) Bus() *Bus {
	return e.bus
}

// LoadStoreUnit returns the emulator's load/store unit.
func (e *Emulator) LoadStoreUnit() *LoadStoreUnit {
	return e.lsu
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// LoadProgram copies program into RAM at entry and sets the PC to it.
func (e *Emulator) LoadProgram(entry uint32, program []byte) error {
	if err := e.bus.LoadRAM(entry, program); err != nil {
		return fmt.Errorf("loading program: %w", err)
	}
	e.regFile.PC = entry
	return nil
}

// Step executes a single instruction.
func (e *Emulator) Step() StepResult {
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		return StepResult{Err: ErrMaxInstructions}
	}

	rf := e.regFile
	pc := rf.PC
	target, inDelay := e.branchUnit.Take()
	e.instructionCount++

	// 1. Fetch
	if exc := e.checkFetch(pc, inDelay); exc != ExcNone {
		return StepResult{Exception: exc}
	}
	word := e.bus.Read32(pc)

	// 2. Decode
	inst := e.decoder.Decode(word)

	// 3. Execute
	exc, err := e.Exec(inst, pc, inDelay)
	if err != nil {
		return StepResult{Err: err}
	}
	if exc != ExcNone {
		e.branchUnit.Reset()
		return StepResult{Exception: exc}
	}

	if inDelay {
		rf.PC = target
	} else {
		rf.PC = pc + 4
	}
	rf.AdvanceLoads()

	return StepResult{}
}

// checkFetch raises AdEL for a misaligned PC and IBE for an address that
// holds no code.
func (e *Emulator) checkFetch(pc uint32, inDelay bool) Exception {
	if pc&3 != 0 {
		RaiseAddressError(e.regFile, ExcAdEL, pc, pc, inDelay)
		return ExcAdEL
	}
	if !e.bus.Executable(pc) {
		RaiseException(e.regFile, ExcIBE, pc, inDelay)
		return ExcIBE
	}
	return ExcNone
}

// Exec executes the semantics of inst located at pc without advancing PC or
// the delayed-load slots. Loads are scheduled into the current slot. A
// raised exception has already been delivered to the register file when
// Exec returns it.
func (e *Emulator) Exec(inst insts.Instruction, pc uint32, inDelay bool) (Exception, error) {
	var exc Exception

	switch inst.Op {
	case insts.OpSLL:
		e.alu.SLL(inst.Rd, inst.Rt, inst.Shamt)
	case insts.OpSRL:
		e.alu.SRL(inst.Rd, inst.Rt, inst.Shamt)
	case insts.OpSRA:
		e.alu.SRA(inst.Rd, inst.Rt, inst.Shamt)
	case insts.OpSLLV:
		e.alu.SLLV(inst.Rd, inst.Rt, inst.Rs)
	case insts.OpSRLV:
		e.alu.SRLV(inst.Rd, inst.Rt, inst.Rs)
	case insts.OpSRAV:
		e.alu.SRAV(inst.Rd, inst.Rt, inst.Rs)
	case insts.OpMFHI:
		e.alu.MFHI(inst.Rd)
	case insts.OpMFLO:
		e.alu.MFLO(inst.Rd)
	case insts.OpMTHI:
		e.alu.MTHI(inst.Rs)
	case insts.OpMTLO:
		e.alu.MTLO(inst.Rs)
	case insts.OpMULT:
		e.alu.MULT(inst.Rs, inst.Rt)
	case insts.OpMULTU:
		e.alu.MULTU(inst.Rs, inst.Rt)
	case insts.OpDIV:
		e.alu.DIV(inst.Rs, inst.Rt)
	case insts.OpDIVU:
		e.alu.DIVU(inst.Rs, inst.Rt)
	case insts.OpADD:
		if !e.alu.ADD(inst.Rd, inst.Rs, inst.Rt) {
			exc = ExcOverflow
		}
	case insts.OpADDU:
		e.alu.ADDU(inst.Rd, inst.Rs, inst.Rt)
	case insts.OpSUB:
		if !e.alu.SUB(inst.Rd, inst.Rs, inst.Rt) {
			exc = ExcOverflow
		}
	case insts.OpSUBU:
		e.alu.SUBU(inst.Rd, inst.Rs, inst.Rt)
	case insts.OpAND:
		e.alu.AND(inst.Rd, inst.Rs, inst.Rt)
	case insts.OpOR:
		e.alu.OR(inst.Rd, inst.Rs, inst.Rt)
	case insts.OpXOR:
		e.alu.XOR(inst.Rd, inst.Rs, inst.Rt)
	case insts.OpNOR:
		e.alu.NOR(inst.Rd, inst.Rs, inst.Rt)
	case insts.OpSLT:
		e.alu.SLT(inst.Rd, inst.Rs, inst.Rt)
	case insts.OpSLTU:
		e.alu.SLTU(inst.Rd, inst.Rs, inst.Rt)
	case insts.OpADDI:
		if !e.alu.ADDI(inst.Rt, inst.Rs, inst.ImmSE()) {
			exc = ExcOverflow
		}
	case insts.OpADDIU:
		e.alu.ADDIU(inst.Rt, inst.Rs, inst.ImmSE())
	case insts.OpSLTI:
		e.alu.SLTI(inst.Rt, inst.Rs, inst.ImmSE())
	case insts.OpSLTIU:
		e.alu.SLTIU(inst.Rt, inst.Rs, inst.ImmSE())
	case insts.OpANDI:
		e.alu.ANDI(inst.Rt, inst.Rs, inst.Imm)
	case insts.OpORI:
		e.alu.ORI(inst.Rt, inst.Rs, inst.Imm)
	case insts.OpXORI:
		e.alu.XORI(inst.Rt, inst.Rs, inst.Imm)
	case insts.OpLUI:
		e.alu.LUI(inst.Rt, inst.Imm)

	case insts.OpJ, insts.OpJAL, insts.OpJR, insts.OpJALR,
		insts.OpBEQ, insts.OpBNE, insts.OpBLEZ, insts.OpBGTZ,
		insts.OpBLTZ, insts.OpBGEZ, insts.OpBLTZAL, insts.OpBGEZAL:
		e.executeBranch(inst, pc, inDelay)

	case insts.OpSYSCALL:
		exc = ExcSyscall
	case insts.OpBREAK:
		exc = ExcBreak

	case insts.OpMFC0:
		e.regFile.ScheduleLoad(inst.Rt, e.regFile.CP0[inst.Rd])
	case insts.OpMTC0:
		WriteCP0(e.regFile, inst.Rd, e.regFile.ReadReg(inst.Rt))
	case insts.OpRFE:
		ReturnFromException(e.regFile)

	case insts.OpLB, insts.OpLH, insts.OpLWL, insts.OpLW,
		insts.OpLBU, insts.OpLHU, insts.OpLWR:
		return e.executeLoad(inst, pc, inDelay), nil
	case insts.OpSB, insts.OpSH, insts.OpSWL, insts.OpSW, insts.OpSWR:
		return e.executeStore(inst, pc, inDelay), nil

	default:
		return ExcNone, fmt.Errorf("%w: %v at PC=0x%08X", ErrUnimplemented, inst, pc)
	}

	if exc != ExcNone {
		RaiseException(e.regFile, exc, pc, inDelay)
	}
	return exc, nil
}

// executeBranch evaluates a control transfer. The instruction after it is
// always a delay slot, taken or not. A branch placed in a delay slot keeps
// its link side effect but does not redirect control.
func (e *Emulator) executeBranch(inst insts.Instruction, pc uint32, inDelay bool) {
	target, taken := e.branchUnit.Execute(inst, pc)
	if inDelay {
		return
	}
	if !taken {
		target = pc + 8
	}
	e.branchUnit.Schedule(target)
}

func (e *Emulator) executeLoad(inst insts.Instruction, pc uint32, inDelay bool) Exception {
	rf := e.regFile
	addr := rf.ReadReg(inst.Rs) + inst.ImmSE()

	old, pending := rf.PendingLoad(inst.Rt)
	if !pending {
		old = rf.ReadReg(inst.Rt)
	}

	value, exc := e.lsu.Load(inst.Op, addr, old)
	if exc != ExcNone {
		RaiseAddressError(rf, exc, addr, pc, inDelay)
		return exc
	}

	rf.ScheduleLoad(inst.Rt, value)
	return ExcNone
}

func (e *Emulator) executeStore(inst insts.Instruction, pc uint32, inDelay bool) Exception {
	rf := e.regFile
	addr := rf.ReadReg(inst.Rs) + inst.ImmSE()

	if exc := e.lsu.Store(inst.Op, addr, rf.ReadReg(inst.Rt)); exc != ExcNone {
		RaiseAddressError(rf, exc, addr, pc, inDelay)
		return exc
	}
	return ExcNone
}

// Stop asks Execute to return before the next instruction. It is safe to
// call from another goroutine.
func (e *Emulator) Stop() {
	e.stop.Store(true)
}

func (e *Emulator) shouldStop() bool {
	if e.stop.Load() {
		return true
	}
	return e.stopCond != nil && e.stopCond()
}

// Execute runs instructions until stopped or an error occurs. Guest
// exceptions are delivered to the guest and execution continues.
func (e *Emulator) Execute() error {
	e.stop.Store(false)
	for !e.shouldStop() {
		result := e.Step()
		if result.Err != nil {
			_, _ = fmt.Fprintf(e.stderr, "[Interpreter] %v\n", result.Err)
			return result.Err
		}
	}
	return nil
}

// RunFor executes at most n instructions, stopping early like Execute.
func (e *Emulator) RunFor(n uint64) error {
	e.stop.Store(false)
	end := e.instructionCount + n
	for e.instructionCount < end && !e.shouldStop() {
		result := e.Step()
		if result.Err != nil {
			_, _ = fmt.Fprintf(e.stderr, "[Interpreter] %v\n", result.Err)
			return result.Err
		}
	}
	return nil
}

// Cycles returns the number of guest instructions executed.
func (e *Emulator) Cycles() uint64 {
	return e.instructionCount
}

// Implemented reports that the interpreter is available on every host.
func (e *Emulator) Implemented() bool { return true }

// Init prepares the interpreter. It has nothing to allocate.
func (e *Emulator) Init() error { return nil }

// Reset puts the CPU into its power-on state.
func (e *Emulator) Reset() error {
	e.regFile.Reset()
	e.branchUnit.Reset()
	e.instructionCount = 0
	return nil
}

// Shutdown releases the interpreter. It holds no external resources.
func (e *Emulator) Shutdown() {}

// Invalidate has nothing to drop: the interpreter caches no code.
func (e *Emulator) Invalidate(addr, size uint32) {}

// SetCodegenMode is accepted for interface compatibility and ignored.
func (e *Emulator) SetCodegenMode(trace bool) {}

// IsDynarec reports false.
func (e *Emulator) IsDynarec() bool { return false }
