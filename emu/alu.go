package emu

// ALU implements R3000A integer operations.
//
// Every register write goes through the delayed-load bookkeeping of the
// register file: a direct write cancels a load to the same register that is
// still in flight.
type ALU struct {
	regFile *RegFile
}

// NewALU creates a new ALU connected to the given register file.
func NewALU(regFile *RegFile) *ALU {
	return &ALU{regFile: regFile}
}

// set writes rd and cancels any older load to it.
func (a *ALU) set(rd uint8, value uint32) {
	a.regFile.CancelLoad(rd)
	a.regFile.WriteReg(rd, value)
}

func (a *ALU) get(r uint8) uint32 {
	return a.regFile.ReadReg(r)
}

// ADDU performs rd = rs + rt without overflow detection.
func (a *ALU) ADDU(rd, rs, rt uint8) {
	a.set(rd, a.get(rs)+a.get(rt))
}

// ADD performs rd = rs + rt. It returns false, leaving rd untouched, when
// the signed addition overflows.
func (a *ALU) ADD(rd, rs, rt uint8) bool {
	return a.addChecked(rd, a.get(rs), a.get(rt))
}

// ADDI performs rt = rs + imm with overflow detection.
func (a *ALU) ADDI(rt, rs uint8, imm uint32) bool {
	return a.addChecked(rt, a.get(rs), imm)
}

// ADDIU performs rt = rs + imm.
func (a *ALU) ADDIU(rt, rs uint8, imm uint32) {
	a.set(rt, a.get(rs)+imm)
}

func (a *ALU) addChecked(rd uint8, x, y uint32) bool {
	sum := x + y
	if AddOverflows(x, y) {
		return false
	}
	a.set(rd, sum)
	return true
}

// SUBU performs rd = rs - rt.
func (a *ALU) SUBU(rd, rs, rt uint8) {
	a.set(rd, a.get(rs)-a.get(rt))
}

// SUB performs rd = rs - rt with overflow detection.
func (a *ALU) SUB(rd, rs, rt uint8) bool {
	x, y := a.get(rs), a.get(rt)
	if SubOverflows(x, y) {
		return false
	}
	a.set(rd, x-y)
	return true
}

// AddOverflows reports whether the signed 32-bit sum x+y overflows.
func AddOverflows(x, y uint32) bool {
	sum := x + y
	return (^(x ^ y) & (x ^ sum) & 0x80000000) != 0
}

// SubOverflows reports whether the signed 32-bit difference x-y overflows.
func SubOverflows(x, y uint32) bool {
	diff := x - y
	return ((x ^ y) & (x ^ diff) & 0x80000000) != 0
}

// AND performs rd = rs & rt.
func (a *ALU) AND(rd, rs, rt uint8) { a.set(rd, a.get(rs)&a.get(rt)) }

// OR performs rd = rs | rt.
func (a *ALU) OR(rd, rs, rt uint8) { a.set(rd, a.get(rs)|a.get(rt)) }

// XOR performs rd = rs ^ rt.
func (a *ALU) XOR(rd, rs, rt uint8) { a.set(rd, a.get(rs)^a.get(rt)) }

// NOR performs rd = ^(rs | rt).
func (a *ALU) NOR(rd, rs, rt uint8) { a.set(rd, ^(a.get(rs) | a.get(rt))) }

// SLT performs rd = (int32(rs) < int32(rt)).
func (a *ALU) SLT(rd, rs, rt uint8) {
	a.set(rd, boolToWord(int32(a.get(rs)) < int32(a.get(rt))))
}

// SLTU performs rd = (rs < rt) unsigned.
func (a *ALU) SLTU(rd, rs, rt uint8) {
	a.set(rd, boolToWord(a.get(rs) < a.get(rt)))
}

// ANDI performs rt = rs & zero_extend(imm).
func (a *ALU) ANDI(rt, rs uint8, imm uint16) { a.set(rt, a.get(rs)&uint32(imm)) }

// ORI performs rt = rs | zero_extend(imm).
func (a *ALU) ORI(rt, rs uint8, imm uint16) { a.set(rt, a.get(rs)|uint32(imm)) }

// XORI performs rt = rs ^ zero_extend(imm).
func (a *ALU) XORI(rt, rs uint8, imm uint16) { a.set(rt, a.get(rs)^uint32(imm)) }

// SLTI performs rt = (int32(rs) < int32(sign_extend(imm))).
func (a *ALU) SLTI(rt, rs uint8, imm uint32) {
	a.set(rt, boolToWord(int32(a.get(rs)) < int32(imm)))
}

// SLTIU performs rt = (rs < sign_extend(imm)) unsigned.
func (a *ALU) SLTIU(rt, rs uint8, imm uint32) {
	a.set(rt, boolToWord(a.get(rs) < imm))
}

// LUI performs rt = imm << 16.
func (a *ALU) LUI(rt uint8, imm uint16) { a.set(rt, uint32(imm)<<16) }

// SLL performs rd = rt << shamt.
func (a *ALU) SLL(rd, rt, shamt uint8) { a.set(rd, a.get(rt)<<(shamt&31)) }

// SRL performs rd = rt >> shamt (logical).
func (a *ALU) SRL(rd, rt, shamt uint8) { a.set(rd, a.get(rt)>>(shamt&31)) }

// SRA performs rd = rt >> shamt (arithmetic).
func (a *ALU) SRA(rd, rt, shamt uint8) { a.set(rd, uint32(int32(a.get(rt))>>(shamt&31))) }

// SLLV performs rd = rt << (rs & 31).
func (a *ALU) SLLV(rd, rt, rs uint8) { a.set(rd, a.get(rt)<<(a.get(rs)&31)) }

// SRLV performs rd = rt >> (rs & 31) (logical).
func (a *ALU) SRLV(rd, rt, rs uint8) { a.set(rd, a.get(rt)>>(a.get(rs)&31)) }

// SRAV performs rd = rt >> (rs & 31) (arithmetic).
func (a *ALU) SRAV(rd, rt, rs uint8) { a.set(rd, uint32(int32(a.get(rt))>>(a.get(rs)&31))) }

// MULT performs HI:LO = int64(rs) * int64(rt).
func (a *ALU) MULT(rs, rt uint8) {
	p := uint64(int64(int32(a.get(rs))) * int64(int32(a.get(rt))))
	a.regFile.HI = uint32(p >> 32)
	a.regFile.LO = uint32(p)
}

// MULTU performs HI:LO = uint64(rs) * uint64(rt).
func (a *ALU) MULTU(rs, rt uint8) {
	p := uint64(a.get(rs)) * uint64(a.get(rt))
	a.regFile.HI = uint32(p >> 32)
	a.regFile.LO = uint32(p)
}

// DIV performs signed division. Division by zero and the 0x80000000/-1 case
// produce the values the hardware returns instead of trapping.
func (a *ALU) DIV(rs, rt uint8) {
	n, d := int32(a.get(rs)), int32(a.get(rt))
	switch {
	case d == 0:
		a.regFile.HI = uint32(n)
		if n >= 0 {
			a.regFile.LO = 0xFFFFFFFF
		} else {
			a.regFile.LO = 1
		}
	case uint32(n) == 0x80000000 && d == -1:
		a.regFile.HI = 0
		a.regFile.LO = 0x80000000
	default:
		a.regFile.HI = uint32(n % d)
		a.regFile.LO = uint32(n / d)
	}
}

// DIVU performs unsigned division.
func (a *ALU) DIVU(rs, rt uint8) {
	n, d := a.get(rs), a.get(rt)
	if d == 0 {
		a.regFile.HI = n
		a.regFile.LO = 0xFFFFFFFF
		return
	}
	a.regFile.HI = n % d
	a.regFile.LO = n / d
}

// MFHI performs rd = HI.
func (a *ALU) MFHI(rd uint8) { a.set(rd, a.regFile.HI) }

// MFLO performs rd = LO.
func (a *ALU) MFLO(rd uint8) { a.set(rd, a.regFile.LO) }

// MTHI performs HI = rs.
func (a *ALU) MTHI(rs uint8) { a.regFile.HI = a.get(rs) }

// MTLO performs LO = rs.
func (a *ALU) MTLO(rs uint8) { a.regFile.LO = a.get(rs) }

func boolToWord(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
