// Package emitter generates and executes host code for the recompiler.
//
// The host is a sixteen-register, 32-bit load/store machine whose registers
// carry x86-64 names and calling convention. Generated code addresses guest
// state only through byte offsets from a context pointer.
package emitter

import "fmt"

// Reg is a host register.
type Reg uint8

// Host registers.
const (
	RAX Reg = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// NumRegs is the number of host registers.
const NumRegs = 16

// Call argument and result registers.
var (
	ArgRegs    = [3]Reg{RDI, RSI, RDX}
	ResultRegs = [2]Reg{RAX, RDX}
)

var regNames = [NumRegs]string{
	"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15",
}

// String returns the register name.
func (r Reg) String() string {
	if int(r) < NumRegs {
		return regNames[r]
	}
	return fmt.Sprintf("reg%d", uint8(r))
}

// Volatile reports whether a call may clobber the register.
func (r Reg) Volatile() bool {
	switch r {
	case RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11:
		return true
	}
	return false
}
