// Package insts provides MIPS R3000A instruction definitions and decoding.
package insts

import "fmt"

// Op represents an R3000A operation.
type Op uint8

// R3000A operations.
const (
	OpUnknown Op = iota

	// SPECIAL (primary opcode 0x00), selected by the funct field.
	OpSLL
	OpSRL
	OpSRA
	OpSLLV
	OpSRLV
	OpSRAV
	OpJR
	OpJALR
	OpSYSCALL
	OpBREAK
	OpMFHI
	OpMTHI
	OpMFLO
	OpMTLO
	OpMULT
	OpMULTU
	OpDIV
	OpDIVU
	OpADD
	OpADDU
	OpSUB
	OpSUBU
	OpAND
	OpOR
	OpXOR
	OpNOR
	OpSLT
	OpSLTU

	// REGIMM (primary opcode 0x01), selected by the rt field.
	OpBLTZ
	OpBGEZ
	OpBLTZAL
	OpBGEZAL

	OpJ
	OpJAL
	OpBEQ
	OpBNE
	OpBLEZ
	OpBGTZ
	OpADDI
	OpADDIU
	OpSLTI
	OpSLTIU
	OpANDI
	OpORI
	OpXORI
	OpLUI

	// Coprocessor 0.
	OpMFC0
	OpMTC0
	OpRFE

	// Coprocessors the PlayStation does not implement natively here.
	OpCOP1
	OpCOP2
	OpCOP3

	OpLB
	OpLH
	OpLWL
	OpLW
	OpLBU
	OpLHU
	OpLWR
	OpSB
	OpSH
	OpSWL
	OpSW
	OpSWR

	OpLWC2
	OpSWC2
)

var opNames = [...]string{
	OpUnknown: "???",
	OpSLL:     "sll", OpSRL: "srl", OpSRA: "sra",
	OpSLLV: "sllv", OpSRLV: "srlv", OpSRAV: "srav",
	OpJR: "jr", OpJALR: "jalr", OpSYSCALL: "syscall", OpBREAK: "break",
	OpMFHI: "mfhi", OpMTHI: "mthi", OpMFLO: "mflo", OpMTLO: "mtlo",
	OpMULT: "mult", OpMULTU: "multu", OpDIV: "div", OpDIVU: "divu",
	OpADD: "add", OpADDU: "addu", OpSUB: "sub", OpSUBU: "subu",
	OpAND: "and", OpOR: "or", OpXOR: "xor", OpNOR: "nor",
	OpSLT: "slt", OpSLTU: "sltu",
	OpBLTZ: "bltz", OpBGEZ: "bgez", OpBLTZAL: "bltzal", OpBGEZAL: "bgezal",
	OpJ: "j", OpJAL: "jal", OpBEQ: "beq", OpBNE: "bne",
	OpBLEZ: "blez", OpBGTZ: "bgtz",
	OpADDI: "addi", OpADDIU: "addiu", OpSLTI: "slti", OpSLTIU: "sltiu",
	OpANDI: "andi", OpORI: "ori", OpXORI: "xori", OpLUI: "lui",
	OpMFC0: "mfc0", OpMTC0: "mtc0", OpRFE: "rfe",
	OpCOP1: "cop1", OpCOP2: "cop2", OpCOP3: "cop3",
	OpLB: "lb", OpLH: "lh", OpLWL: "lwl", OpLW: "lw",
	OpLBU: "lbu", OpLHU: "lhu", OpLWR: "lwr",
	OpSB: "sb", OpSH: "sh", OpSWL: "swl", OpSW: "sw", OpSWR: "swr",
	OpLWC2: "lwc2", OpSWC2: "swc2",
}

// String returns the assembler mnemonic of the operation.
func (o Op) String() string {
	if int(o) < len(opNames) && opNames[o] != "" {
		return opNames[o]
	}
	return fmt.Sprintf("Op(%d)", uint8(o))
}

// Instruction represents a decoded R3000A instruction.
type Instruction struct {
	Word uint32 // Raw instruction word
	Op   Op     // Decoded operation

	Rs    uint8  // Source register (bits 25:21)
	Rt    uint8  // Target register (bits 20:16)
	Rd    uint8  // Destination register (bits 15:11)
	Shamt uint8  // Shift amount (bits 10:6)
	Imm   uint16 // Immediate (bits 15:0)

	// Target is the 26-bit jump target field of J/JAL.
	Target uint32
}

// Primary returns the primary opcode field (bits 31:26).
func (i Instruction) Primary() uint8 {
	return uint8(i.Word >> 26)
}

// Funct returns the SPECIAL function field (bits 5:0).
func (i Instruction) Funct() uint8 {
	return uint8(i.Word & 0x3F)
}

// ImmSE returns the immediate sign-extended to 32 bits.
func (i Instruction) ImmSE() uint32 {
	return uint32(int32(int16(i.Imm)))
}

// BranchTarget returns the destination of a PC-relative branch located at pc.
func (i Instruction) BranchTarget(pc uint32) uint32 {
	return pc + 4 + i.ImmSE()<<2
}

// JumpTarget returns the destination of J/JAL located at pc.
func (i Instruction) JumpTarget(pc uint32) uint32 {
	return (pc+4)&0xF0000000 | i.Target<<2
}

// IsBranch reports whether the instruction transfers control and therefore
// owns a delay slot.
func (i Instruction) IsBranch() bool {
	switch i.Op {
	case OpJ, OpJAL, OpJR, OpJALR,
		OpBEQ, OpBNE, OpBLEZ, OpBGTZ,
		OpBLTZ, OpBGEZ, OpBLTZAL, OpBGEZAL:
		return true
	}
	return false
}

// IsLoad reports whether the instruction writes a GPR through the load
// delay slot.
func (i Instruction) IsLoad() bool {
	switch i.Op {
	case OpLB, OpLH, OpLWL, OpLW, OpLBU, OpLHU, OpLWR, OpMFC0:
		return true
	}
	return false
}

// Dest returns the general-purpose register the instruction writes without
// going through the load delay slot. The second result is false when the
// instruction writes no GPR in that way.
func (i Instruction) Dest() (uint8, bool) {
	switch i.Op {
	case OpSLL, OpSRL, OpSRA, OpSLLV, OpSRLV, OpSRAV, OpJALR,
		OpMFHI, OpMFLO, OpADD, OpADDU, OpSUB, OpSUBU,
		OpAND, OpOR, OpXOR, OpNOR, OpSLT, OpSLTU:
		return i.Rd, true
	case OpADDI, OpADDIU, OpSLTI, OpSLTIU, OpANDI, OpORI, OpXORI, OpLUI:
		return i.Rt, true
	case OpJAL, OpBLTZAL, OpBGEZAL:
		return 31, true
	}
	return 0, false
}

// String returns a short disassembly of the instruction.
func (i Instruction) String() string {
	switch i.Op {
	case OpSLL, OpSRL, OpSRA:
		return fmt.Sprintf("%v $%d, $%d, %d", i.Op, i.Rd, i.Rt, i.Shamt)
	case OpSLLV, OpSRLV, OpSRAV:
		return fmt.Sprintf("%v $%d, $%d, $%d", i.Op, i.Rd, i.Rt, i.Rs)
	case OpJR, OpMTHI, OpMTLO:
		return fmt.Sprintf("%v $%d", i.Op, i.Rs)
	case OpMFHI, OpMFLO:
		return fmt.Sprintf("%v $%d", i.Op, i.Rd)
	case OpJALR:
		return fmt.Sprintf("%v $%d, $%d", i.Op, i.Rd, i.Rs)
	case OpMULT, OpMULTU, OpDIV, OpDIVU:
		return fmt.Sprintf("%v $%d, $%d", i.Op, i.Rs, i.Rt)
	case OpADD, OpADDU, OpSUB, OpSUBU, OpAND, OpOR, OpXOR, OpNOR, OpSLT, OpSLTU:
		return fmt.Sprintf("%v $%d, $%d, $%d", i.Op, i.Rd, i.Rs, i.Rt)
	case OpBLTZ, OpBGEZ, OpBLTZAL, OpBGEZAL, OpBLEZ, OpBGTZ:
		return fmt.Sprintf("%v $%d, %d", i.Op, i.Rs, int16(i.Imm))
	case OpBEQ, OpBNE:
		return fmt.Sprintf("%v $%d, $%d, %d", i.Op, i.Rs, i.Rt, int16(i.Imm))
	case OpJ, OpJAL:
		return fmt.Sprintf("%v 0x%07X", i.Op, i.Target<<2)
	case OpADDI, OpADDIU, OpSLTI, OpSLTIU:
		return fmt.Sprintf("%v $%d, $%d, %d", i.Op, i.Rt, i.Rs, int16(i.Imm))
	case OpANDI, OpORI, OpXORI:
		return fmt.Sprintf("%v $%d, $%d, 0x%X", i.Op, i.Rt, i.Rs, i.Imm)
	case OpLUI:
		return fmt.Sprintf("%v $%d, 0x%X", i.Op, i.Rt, i.Imm)
	case OpMFC0, OpMTC0:
		return fmt.Sprintf("%v $%d, $%d", i.Op, i.Rt, i.Rd)
	case OpLB, OpLH, OpLWL, OpLW, OpLBU, OpLHU, OpLWR,
		OpSB, OpSH, OpSWL, OpSW, OpSWR:
		return fmt.Sprintf("%v $%d, %d($%d)", i.Op, i.Rt, int16(i.Imm), i.Rs)
	case OpSYSCALL, OpBREAK, OpRFE:
		return i.Op.String()
	}
	return fmt.Sprintf("%v 0x%08X", i.Op, i.Word)
}

// Decoder decodes R3000A machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new R3000A instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word.
func (d *Decoder) Decode(word uint32) Instruction {
	return Decode(word)
}

var primaryOps = [64]Op{
	PrimaryJ:     OpJ,
	PrimaryJAL:   OpJAL,
	PrimaryBEQ:   OpBEQ,
	PrimaryBNE:   OpBNE,
	PrimaryBLEZ:  OpBLEZ,
	PrimaryBGTZ:  OpBGTZ,
	PrimaryADDI:  OpADDI,
	PrimaryADDIU: OpADDIU,
	PrimarySLTI:  OpSLTI,
	PrimarySLTIU: OpSLTIU,
	PrimaryANDI:  OpANDI,
	PrimaryORI:   OpORI,
	PrimaryXORI:  OpXORI,
	PrimaryLUI:   OpLUI,
	PrimaryCOP1:  OpCOP1,
	PrimaryCOP2:  OpCOP2,
	PrimaryCOP3:  OpCOP3,
	PrimaryLB:    OpLB,
	PrimaryLH:    OpLH,
	PrimaryLWL:   OpLWL,
	PrimaryLW:    OpLW,
	PrimaryLBU:   OpLBU,
	PrimaryLHU:   OpLHU,
	PrimaryLWR:   OpLWR,
	PrimarySB:    OpSB,
	PrimarySH:    OpSH,
	PrimarySWL:   OpSWL,
	PrimarySW:    OpSW,
	PrimarySWR:   OpSWR,
	PrimaryLWC2:  OpLWC2,
	PrimarySWC2:  OpSWC2,
}

var specialOps = [64]Op{
	FunctSLL:     OpSLL,
	FunctSRL:     OpSRL,
	FunctSRA:     OpSRA,
	FunctSLLV:    OpSLLV,
	FunctSRLV:    OpSRLV,
	FunctSRAV:    OpSRAV,
	FunctJR:      OpJR,
	FunctJALR:    OpJALR,
	FunctSYSCALL: OpSYSCALL,
	FunctBREAK:   OpBREAK,
	FunctMFHI:    OpMFHI,
	FunctMTHI:    OpMTHI,
	FunctMFLO:    OpMFLO,
	FunctMTLO:    OpMTLO,
	FunctMULT:    OpMULT,
	FunctMULTU:   OpMULTU,
	FunctDIV:     OpDIV,
	FunctDIVU:    OpDIVU,
	FunctADD:     OpADD,
	FunctADDU:    OpADDU,
	FunctSUB:     OpSUB,
	FunctSUBU:    OpSUBU,
	FunctAND:     OpAND,
	FunctOR:      OpOR,
	FunctXOR:     OpXOR,
	FunctNOR:     OpNOR,
	FunctSLT:     OpSLT,
	FunctSLTU:    OpSLTU,
}

// Decode decodes a 32-bit R3000A instruction word.
func Decode(word uint32) Instruction {
	inst := Instruction{
		Word:   word,
		Rs:     uint8(word>>21) & 0x1F,
		Rt:     uint8(word>>16) & 0x1F,
		Rd:     uint8(word>>11) & 0x1F,
		Shamt:  uint8(word>>6) & 0x1F,
		Imm:    uint16(word),
		Target: word & 0x03FFFFFF,
	}

	switch primary := word >> 26; primary {
	case PrimarySpecial:
		inst.Op = specialOps[word&0x3F]
	case PrimaryRegImm:
		inst.Op = decodeRegImm(inst.Rt)
	case PrimaryCOP0:
		inst.Op = decodeCop0(word, inst.Rs)
	default:
		inst.Op = primaryOps[primary]
	}

	return inst
}

// decodeRegImm decodes the BcondZ group. The R3000A only looks at bit 0 of
// rt (GEZ vs LTZ) and links when bits 4:1 equal 0b1000.
func decodeRegImm(rt uint8) Op {
	ge := rt&1 != 0
	link := rt&0x1E == 0x10
	switch {
	case ge && link:
		return OpBGEZAL
	case ge:
		return OpBGEZ
	case link:
		return OpBLTZAL
	default:
		return OpBLTZ
	}
}

func decodeCop0(word uint32, rs uint8) Op {
	switch rs {
	case Cop0MF:
		return OpMFC0
	case Cop0MT:
		return OpMTC0
	case Cop0CO:
		if word&0x3F == 0x10 {
			return OpRFE
		}
	}
	return OpUnknown
}
