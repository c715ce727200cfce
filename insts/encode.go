package insts

// Primary opcode field values (bits 31:26).
const (
	PrimarySpecial = 0x00
	PrimaryRegImm  = 0x01
	PrimaryJ       = 0x02
	PrimaryJAL     = 0x03
	PrimaryBEQ     = 0x04
	PrimaryBNE     = 0x05
	PrimaryBLEZ    = 0x06
	PrimaryBGTZ    = 0x07
	PrimaryADDI    = 0x08
	PrimaryADDIU   = 0x09
	PrimarySLTI    = 0x0A
	PrimarySLTIU   = 0x0B
	PrimaryANDI    = 0x0C
	PrimaryORI     = 0x0D
	PrimaryXORI    = 0x0E
	PrimaryLUI     = 0x0F
	PrimaryCOP0    = 0x10
	PrimaryCOP1    = 0x11
	PrimaryCOP2    = 0x12
	PrimaryCOP3    = 0x13
	PrimaryLB      = 0x20
	PrimaryLH      = 0x21
	PrimaryLWL     = 0x22
	PrimaryLW      = 0x23
	PrimaryLBU     = 0x24
	PrimaryLHU     = 0x25
	PrimaryLWR     = 0x26
	PrimarySB      = 0x28
	PrimarySH      = 0x29
	PrimarySWL     = 0x2A
	PrimarySW      = 0x2B
	PrimarySWR     = 0x2E
	PrimaryLWC2    = 0x32
	PrimarySWC2    = 0x3A
)

// SPECIAL function field values (bits 5:0).
const (
	FunctSLL     = 0x00
	FunctSRL     = 0x02
	FunctSRA     = 0x03
	FunctSLLV    = 0x04
	FunctSRLV    = 0x06
	FunctSRAV    = 0x07
	FunctJR      = 0x08
	FunctJALR    = 0x09
	FunctSYSCALL = 0x0C
	FunctBREAK   = 0x0D
	FunctMFHI    = 0x10
	FunctMTHI    = 0x11
	FunctMFLO    = 0x12
	FunctMTLO    = 0x13
	FunctMULT    = 0x18
	FunctMULTU   = 0x19
	FunctDIV     = 0x1A
	FunctDIVU    = 0x1B
	FunctADD     = 0x20
	FunctADDU    = 0x21
	FunctSUB     = 0x22
	FunctSUBU    = 0x23
	FunctAND     = 0x24
	FunctOR      = 0x25
	FunctXOR     = 0x26
	FunctNOR     = 0x27
	FunctSLT     = 0x2A
	FunctSLTU    = 0x2B
)

// REGIMM rt field values.
const (
	RegImmBLTZ   = 0x00
	RegImmBGEZ   = 0x01
	RegImmBLTZAL = 0x10
	RegImmBGEZAL = 0x11
)

// COP0 rs field values.
const (
	Cop0MF = 0x00
	Cop0MT = 0x04
	Cop0CO = 0x10
)

// EncodeSpecial encodes a SPECIAL (R-type) instruction.
func EncodeSpecial(funct, rs, rt, rd, shamt uint8) uint32 {
	return uint32(rs&0x1F)<<21 | uint32(rt&0x1F)<<16 | uint32(rd&0x1F)<<11 |
		uint32(shamt&0x1F)<<6 | uint32(funct&0x3F)
}

// EncodeImm encodes an I-type instruction (ALU immediate, branch, load or
// store). For branches imm is the signed offset in instructions.
func EncodeImm(primary, rs, rt uint8, imm uint16) uint32 {
	return uint32(primary&0x3F)<<26 | uint32(rs&0x1F)<<21 | uint32(rt&0x1F)<<16 | uint32(imm)
}

// EncodeJump encodes J or JAL to the absolute target address.
func EncodeJump(primary uint8, target uint32) uint32 {
	return uint32(primary&0x3F)<<26 | (target>>2)&0x03FFFFFF
}

// EncodeRegImm encodes a BcondZ branch.
func EncodeRegImm(kind, rs uint8, offset int16) uint32 {
	return EncodeImm(PrimaryRegImm, rs, kind, uint16(offset))
}

// EncodeCop0 encodes MFC0/MTC0 moving between GPR rt and COP0 register rd.
func EncodeCop0(kind, rt, rd uint8) uint32 {
	return uint32(PrimaryCOP0)<<26 | uint32(kind&0x1F)<<21 | uint32(rt&0x1F)<<16 | uint32(rd&0x1F)<<11
}

// EncodeRFE encodes RFE.
func EncodeRFE() uint32 {
	return uint32(PrimaryCOP0)<<26 | uint32(Cop0CO)<<21 | 0x10
}

// EncodeNOP encodes the canonical NOP (SLL $0, $0, 0).
func EncodeNOP() uint32 {
	return 0
}
