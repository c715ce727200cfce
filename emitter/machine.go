package emitter

import (
	"errors"
	"fmt"
	"unsafe"
)

// Errors reported by Machine.Run.
var (
	ErrNoFrame      = errors.New("call without a stack frame")
	ErrBadFrame     = errors.New("unbalanced stack frame")
	ErrBadHelper    = errors.New("unknown helper")
	ErrBadContext   = errors.New("context access out of range")
	ErrBadCode      = errors.New("invalid host code")
	ErrStepBudget   = errors.New("host code step budget exhausted")
	errFellThrough  = errors.New("ran past the end of the code")
	errBadJumpRange = errors.New("jump target out of range")
)

// poison is written to volatile registers after a call so that code relying
// on a clobbered register misbehaves visibly.
const poison = 0xDEADBEEF

// maxSteps bounds the instructions a single Run may execute.
const maxSteps = 1 << 20

// HelperID identifies a registered helper.
type HelperID uint32

// Helper is a host function generated code can call. It receives the three
// argument registers and returns the two result registers.
type Helper func(a0, a1, a2 uint32) (r0, r1 uint32)

// Machine executes host code.
type Machine struct {
	regs    [NumRegs]uint32
	helpers []Helper
	names   []string
	ctxSize uint32
}

// NewMachine creates a machine whose context is ctxSize bytes long.
func NewMachine(ctxSize uint32) *Machine {
	return &Machine{ctxSize: ctxSize}
}

// Register adds a helper and returns its id.
func (m *Machine) Register(name string, h Helper) HelperID {
	m.helpers = append(m.helpers, h)
	m.names = append(m.names, name)
	return HelperID(len(m.helpers) - 1)
}

// HelperName returns the name a helper was registered with.
func (m *Machine) HelperName(id HelperID) string {
	if int(id) < len(m.names) {
		return m.names[id]
	}
	return fmt.Sprintf("helper%d", id)
}

// Reg returns the value of a host register after the last Run.
func (m *Machine) Reg(r Reg) uint32 {
	return m.regs[r&0xF]
}

func (m *Machine) ctxWord(ctx unsafe.Pointer, off uint32) (*uint32, error) {
	if off&3 != 0 || off+4 > m.ctxSize {
		return nil, fmt.Errorf("%w: offset %d", ErrBadContext, off)
	}
	return (*uint32)(unsafe.Add(ctx, off)), nil
}

// Run executes the function starting at entry in code against ctx and
// returns the value left in RAX by Ret.
func (m *Machine) Run(code []byte, entry int, ctx unsafe.Pointer) (uint32, error) {
	depth := 0
	pc := entry
	r := &m.regs

	for steps := 0; ; steps++ {
		if steps >= maxSteps {
			return 0, ErrStepBudget
		}
		if pc < 0 || pc+InstSize > len(code) {
			return 0, fmt.Errorf("%w at @%d", errFellThrough, pc)
		}
		inst := DecodeInst(code[pc:])
		if inst.A >= NumRegs || inst.B >= NumRegs && inst.Op != OpStoreCtxImm ||
			inst.C >= NumRegs && inst.Op != OpStoreCtxImm {
			return 0, fmt.Errorf("%w: %v at @%d", ErrBadCode, inst, pc)
		}
		next := pc + InstSize
		a, b, c := inst.A, inst.B, inst.C

		switch inst.Op {
		case OpNop:
		case OpMovImm:
			r[a] = inst.Imm
		case OpMov:
			r[a] = r[b]
		case OpLoadCtx:
			p, err := m.ctxWord(ctx, inst.Imm)
			if err != nil {
				return 0, err
			}
			r[a] = *p
		case OpStoreCtx:
			p, err := m.ctxWord(ctx, inst.Imm)
			if err != nil {
				return 0, err
			}
			*p = r[a]
		case OpStoreCtxImm:
			p, err := m.ctxWord(ctx, inst.CtxOffset())
			if err != nil {
				return 0, err
			}
			*p = inst.Imm
		case OpStoreCtxIdx:
			p, err := m.ctxWord(ctx, inst.Imm+4*r[b])
			if err != nil {
				return 0, err
			}
			*p = r[a]
		case OpAdd:
			r[a] = r[b] + r[c]
		case OpAddI:
			r[a] = r[b] + inst.Imm
		case OpSub:
			r[a] = r[b] - r[c]
		case OpAnd:
			r[a] = r[b] & r[c]
		case OpAndI:
			r[a] = r[b] & inst.Imm
		case OpOr:
			r[a] = r[b] | r[c]
		case OpOrI:
			r[a] = r[b] | inst.Imm
		case OpXor:
			r[a] = r[b] ^ r[c]
		case OpXorI:
			r[a] = r[b] ^ inst.Imm
		case OpNor:
			r[a] = ^(r[b] | r[c])
		case OpShl:
			r[a] = r[b] << (r[c] & 31)
		case OpShlI:
			r[a] = r[b] << (inst.Imm & 31)
		case OpShr:
			r[a] = r[b] >> (r[c] & 31)
		case OpShrI:
			r[a] = r[b] >> (inst.Imm & 31)
		case OpSar:
			r[a] = uint32(int32(r[b]) >> (r[c] & 31))
		case OpSarI:
			r[a] = uint32(int32(r[b]) >> (inst.Imm & 31))
		case OpSetLt:
			r[a] = b2u(int32(r[b]) < int32(r[c]))
		case OpSetLtI:
			r[a] = b2u(int32(r[b]) < int32(inst.Imm))
		case OpSetLtU:
			r[a] = b2u(r[b] < r[c])
		case OpSetLtUI:
			r[a] = b2u(r[b] < inst.Imm)
		case OpJmp:
			next = int(inst.Imm)
		case OpJz:
			if r[a] == 0 {
				next = int(inst.Imm)
			}
		case OpJnz:
			if r[a] != 0 {
				next = int(inst.Imm)
			}
		case OpCall:
			if depth == 0 {
				return 0, fmt.Errorf("%w at @%d", ErrNoFrame, pc)
			}
			if int(inst.Imm) >= len(m.helpers) {
				return 0, fmt.Errorf("%w #%d", ErrBadHelper, inst.Imm)
			}
			r0, r1 := m.helpers[inst.Imm](r[RDI], r[RSI], r[RDX])
			for i := Reg(0); i < NumRegs; i++ {
				if i.Volatile() {
					r[i] = poison
				}
			}
			r[RAX], r[RDX] = r0, r1
		case OpEnter:
			depth++
		case OpLeave:
			if depth == 0 {
				return 0, fmt.Errorf("%w: leave at @%d", ErrBadFrame, pc)
			}
			depth--
		case OpRet:
			if depth != 0 {
				return 0, fmt.Errorf("%w: ret at @%d", ErrBadFrame, pc)
			}
			return r[RAX], nil
		default:
			return 0, fmt.Errorf("%w: opcode %d at @%d", ErrBadCode, inst.Op, pc)
		}

		if next < 0 || next > len(code) || next%InstSize != 0 {
			return 0, fmt.Errorf("%w: @%d", errBadJumpRange, next)
		}
		pc = next
	}
}

func b2u(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
