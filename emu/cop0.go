package emu

// COP0 register indices.
const (
	CP0BadVaddr = 8
	CP0SR       = 12
	CP0Cause    = 13
	CP0EPC      = 14
	CP0PRID     = 15
)

// Status register bits.
const (
	// SRIsC isolates the data cache: stores do not reach memory.
	SRIsC = 1 << 16
	// SRBEV selects the BIOS exception vector.
	SRBEV = 1 << 22
)

// PRIDValue is the processor revision reported by COP0 register 15.
const PRIDValue = 0x00000002

// Exception vectors.
const (
	VectorRAM  = 0x80000080
	VectorBIOS = 0xBFC00180
)

// Exception is an R3000A exception code (Cause.ExcCode).
type Exception uint8

// Exception codes. Code 0 (interrupt) is never raised by the CPU core, so it
// doubles as "no exception".
const (
	ExcNone     Exception = 0
	ExcAdEL     Exception = 4  // Address error on load or fetch
	ExcAdES     Exception = 5  // Address error on store
	ExcIBE      Exception = 6  // Bus error on instruction fetch
	ExcDBE      Exception = 7  // Bus error on data access
	ExcSyscall  Exception = 8  // SYSCALL
	ExcBreak    Exception = 9  // BREAK
	ExcRI       Exception = 10 // Reserved instruction
	ExcCpU      Exception = 11 // Coprocessor unusable
	ExcOverflow Exception = 12 // Arithmetic overflow
)

// String returns the conventional mnemonic of the exception.
func (e Exception) String() string {
	switch e {
	case ExcNone:
		return "none"
	case ExcAdEL:
		return "AdEL"
	case ExcAdES:
		return "AdES"
	case ExcIBE:
		return "IBE"
	case ExcDBE:
		return "DBE"
	case ExcSyscall:
		return "Syscall"
	case ExcBreak:
		return "Break"
	case ExcRI:
		return "RI"
	case ExcCpU:
		return "CpU"
	case ExcOverflow:
		return "Ov"
	}
	return "Exc?"
}

// RaiseException enters the exception handler for an exception raised by the
// instruction at pc. Pending delayed loads are discarded.
func RaiseException(r *RegFile, code Exception, pc uint32, inDelaySlot bool) {
	epc := pc
	cause := uint32(code) << 2
	if inDelaySlot {
		epc = pc - 4
		cause |= 1 << 31
	}

	// Keep the software interrupt bits, replace code and BD.
	r.CP0[CP0Cause] = r.CP0[CP0Cause]&0x300 | cause
	r.CP0[CP0EPC] = epc

	// Push the KU/IE mode stack.
	sr := r.CP0[CP0SR]
	r.CP0[CP0SR] = sr&^0x3F | (sr<<2)&0x3F

	if sr&SRBEV != 0 {
		r.PC = VectorBIOS
	} else {
		r.PC = VectorRAM
	}

	r.DropLoads()
}

// RaiseAddressError raises AdEL/AdES and records the faulting address.
func RaiseAddressError(r *RegFile, code Exception, addr, pc uint32, inDelaySlot bool) {
	r.CP0[CP0BadVaddr] = addr
	RaiseException(r, code, pc, inDelaySlot)
}

// ReturnFromException pops the KU/IE mode stack (RFE).
func ReturnFromException(r *RegFile) {
	sr := r.CP0[CP0SR]
	r.CP0[CP0SR] = sr&^0xF | (sr>>2)&0xF
}

// WriteCP0 performs MTC0 semantics on register rd.
func WriteCP0(r *RegFile, rd uint8, value uint32) {
	switch rd {
	case CP0Cause:
		// Only the software interrupt bits are writable.
		r.CP0[CP0Cause] = r.CP0[CP0Cause]&^0x300 | value&0x300
	case CP0PRID, CP0BadVaddr:
		// Read-only.
	default:
		r.CP0[rd&0x1F] = value
	}
}

// CacheIsolated reports whether SR.IsC is set.
func CacheIsolated(r *RegFile) bool {
	return r.CP0[CP0SR]&SRIsC != 0
}
