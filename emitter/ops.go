package emitter

import (
	"encoding/binary"
	"fmt"
)

// Op is a host operation.
type Op uint8

// Host operations. A, B and C name register operands, Imm the 32-bit
// immediate of the encoding.
const (
	OpNop         Op = iota
	OpMovImm         // A = Imm
	OpMov            // A = B
	OpLoadCtx        // A = ctx[Imm]
	OpStoreCtx       // ctx[Imm] = A
	OpStoreCtxImm    // ctx[B | C<<8] = Imm
	OpStoreCtxIdx    // ctx[Imm + 4*B] = A
	OpAdd            // A = B + C
	OpAddI           // A = B + Imm
	OpSub            // A = B - C
	OpAnd            // A = B & C
	OpAndI           // A = B & Imm
	OpOr             // A = B | C
	OpOrI            // A = B | Imm
	OpXor            // A = B ^ C
	OpXorI           // A = B ^ Imm
	OpNor            // A = ^(B | C)
	OpShl            // A = B << (C & 31)
	OpShlI           // A = B << (Imm & 31)
	OpShr            // A = B >> (C & 31), logical
	OpShrI           // A = B >> (Imm & 31), logical
	OpSar            // A = B >> (C & 31), arithmetic
	OpSarI           // A = B >> (Imm & 31), arithmetic
	OpSetLt          // A = int32(B) < int32(C)
	OpSetLtI         // A = int32(B) < int32(Imm)
	OpSetLtU         // A = B < C
	OpSetLtUI        // A = B < Imm
	OpJmp            // jump to Imm
	OpJz             // jump to Imm if A == 0
	OpJnz            // jump to Imm if A != 0
	OpCall           // call helper Imm
	OpEnter          // set up a stack frame
	OpLeave          // tear down the stack frame
	OpRet            // return RAX
	numOps
)

var opNames = [numOps]string{
	"nop", "mov", "mov", "ld", "st", "st", "st",
	"add", "add", "sub", "and", "and", "or", "or", "xor", "xor", "nor",
	"shl", "shl", "shr", "shr", "sar", "sar",
	"setlt", "setlt", "setltu", "setltu",
	"jmp", "jz", "jnz", "call", "enter", "leave", "ret",
}

// String returns the mnemonic of the operation.
func (o Op) String() string {
	if o < numOps {
		return opNames[o]
	}
	return fmt.Sprintf("op%d", uint8(o))
}

// InstSize is the size in bytes of an encoded host instruction.
const InstSize = 8

// Inst is a host instruction.
type Inst struct {
	Op      Op
	A, B, C Reg
	Imm     uint32
}

// Encode writes the instruction into buf, which must hold InstSize bytes.
func (i Inst) Encode(buf []byte) {
	buf[0] = byte(i.Op)
	buf[1] = byte(i.A)
	buf[2] = byte(i.B)
	buf[3] = byte(i.C)
	binary.LittleEndian.PutUint32(buf[4:], i.Imm)
}

// DecodeInst reads an instruction from buf.
func DecodeInst(buf []byte) Inst {
	return Inst{
		Op:  Op(buf[0]),
		A:   Reg(buf[1]),
		B:   Reg(buf[2]),
		C:   Reg(buf[3]),
		Imm: binary.LittleEndian.Uint32(buf[4:]),
	}
}

// CtxOffset returns the context offset an OpStoreCtxImm stores to.
func (i Inst) CtxOffset() uint32 {
	return uint32(i.B) | uint32(i.C)<<8
}

// String returns a disassembly of the instruction.
func (i Inst) String() string {
	switch i.Op {
	case OpNop, OpEnter, OpLeave, OpRet:
		return i.Op.String()
	case OpMovImm:
		return fmt.Sprintf("mov %v, 0x%X", i.A, i.Imm)
	case OpMov:
		return fmt.Sprintf("mov %v, %v", i.A, i.B)
	case OpLoadCtx:
		return fmt.Sprintf("ld %v, [ctx+%d]", i.A, i.Imm)
	case OpStoreCtx:
		return fmt.Sprintf("st [ctx+%d], %v", i.Imm, i.A)
	case OpStoreCtxImm:
		return fmt.Sprintf("st [ctx+%d], 0x%X", i.CtxOffset(), i.Imm)
	case OpStoreCtxIdx:
		return fmt.Sprintf("st [ctx+%d+4*%v], %v", i.Imm, i.B, i.A)
	case OpAddI, OpAndI, OpOrI, OpXorI, OpShlI, OpShrI, OpSarI, OpSetLtI, OpSetLtUI:
		return fmt.Sprintf("%v %v, %v, 0x%X", i.Op, i.A, i.B, i.Imm)
	case OpJmp:
		return fmt.Sprintf("jmp @%d", i.Imm)
	case OpJz, OpJnz:
		return fmt.Sprintf("%v %v, @%d", i.Op, i.A, i.Imm)
	case OpCall:
		return fmt.Sprintf("call #%d", i.Imm)
	}
	return fmt.Sprintf("%v %v, %v, %v", i.Op, i.A, i.B, i.C)
}
