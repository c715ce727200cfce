package emu_test

import (
	"bytes"
	"encoding/binary"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/psxrec/emu"
	"github.com/sarchlab/psxrec/insts"
)

const base = uint32(0x80010000)

func program(words ...uint32) []byte {
	buf := make([]byte, 4*len(words))
	for i, w := range words {
		binary.LittleEndian.PutUint32(buf[4*i:], w)
	}
	return buf
}

func addiu(rt, rs uint8, imm int16) uint32 {
	return insts.EncodeImm(insts.PrimaryADDIU, rs, rt, uint16(imm))
}

var _ = Describe("Emulator", func() {
	var (
		e         *emu.Emulator
		rf        *emu.RegFile
		stderrBuf *bytes.Buffer
	)

	BeforeEach(func() {
		stderrBuf = &bytes.Buffer{}
		e = emu.NewEmulator(emu.WithStderr(stderrBuf))
		rf = e.RegFile()
	})

	load := func(words ...uint32) {
		Expect(e.LoadProgram(base, program(words...))).To(Succeed())
	}

	step := func(n int) {
		for i := 0; i < n; i++ {
			result := e.Step()
			Expect(result.Err).NotTo(HaveOccurred())
			Expect(result.Exception).To(Equal(emu.ExcNone))
		}
	}

	Describe("NewEmulator", func() {
		It("should create an emulator in the power-on state", func() {
			Expect(rf.PC).To(Equal(uint32(emu.ResetVector)))
			Expect(e.Bus().RAMSize()).To(Equal(uint32(emu.RAMSize2MB)))
			Expect(e.IsDynarec()).To(BeFalse())
			Expect(e.Implemented()).To(BeTrue())
		})

		It("should share a register file and bus given as options", func() {
			shared := &emu.RegFile{}
			bus, err := emu.NewBus(emu.RAMSize8MB)
			Expect(err).NotTo(HaveOccurred())
			other := emu.NewEmulator(emu.WithRegFile(shared), emu.WithBus(bus))
			Expect(other.RegFile()).To(BeIdenticalTo(shared))
			Expect(other.Bus()).To(BeIdenticalTo(bus))
		})
	})

	Describe("ALU instructions", func() {
		It("should build a constant with LUI and ORI", func() {
			load(
				insts.EncodeImm(insts.PrimaryLUI, 0, 1, 0x1234),
				insts.EncodeImm(insts.PrimaryORI, 1, 1, 0x5678),
			)
			step(2)
			Expect(rf.ReadReg(1)).To(Equal(uint32(0x12345678)))
			Expect(rf.PC).To(Equal(base + 8))
		})

		It("should raise an overflow exception for ADD and leave rd alone", func() {
			rf.WriteReg(1, 0x7FFFFFFF)
			rf.WriteReg(2, 1)
			load(insts.EncodeSpecial(insts.FunctADD, 1, 2, 3, 0))

			result := e.Step()
			Expect(result.Exception).To(Equal(emu.ExcOverflow))
			Expect(rf.ReadReg(3)).To(BeZero())
			Expect(rf.PC).To(Equal(uint32(emu.VectorBIOS)))
			Expect(rf.CP0[emu.CP0EPC]).To(Equal(base))
		})

		It("should wrap ADDU without trapping", func() {
			rf.WriteReg(1, 0x7FFFFFFF)
			rf.WriteReg(2, 1)
			load(insts.EncodeSpecial(insts.FunctADDU, 1, 2, 3, 0))
			step(1)
			Expect(rf.ReadReg(3)).To(Equal(uint32(0x80000000)))
		})

		It("should produce hardware results for division by zero", func() {
			rf.WriteReg(1, 5)
			rf.WriteReg(2, 0xFFFFFFFB)
			load(
				insts.EncodeSpecial(insts.FunctDIV, 1, 0, 0, 0),
				insts.EncodeSpecial(insts.FunctMFLO, 0, 0, 3, 0),
				insts.EncodeSpecial(insts.FunctDIV, 2, 0, 0, 0),
				insts.EncodeSpecial(insts.FunctMFLO, 0, 0, 4, 0),
			)
			step(4)
			Expect(rf.ReadReg(3)).To(Equal(uint32(0xFFFFFFFF)))
			Expect(rf.ReadReg(4)).To(Equal(uint32(1)))
			Expect(rf.HI).To(Equal(uint32(0xFFFFFFFB)))
		})

		It("should multiply into HI and LO", func() {
			rf.WriteReg(1, 0xFFFFFFFF)
			rf.WriteReg(2, 2)
			load(insts.EncodeSpecial(insts.FunctMULT, 1, 2, 0, 0))
			step(1)
			Expect(rf.HI).To(Equal(uint32(0xFFFFFFFF)))
			Expect(rf.LO).To(Equal(uint32(0xFFFFFFFE)))
		})
	})

	Describe("delayed loads", func() {
		BeforeEach(func() {
			e.Bus().Write32(base+0x1000, 0x1234)
			rf.WriteReg(1, base+0x1000)
			rf.WriteReg(2, 7)
		})

		It("should hide the loaded value from the next instruction", func() {
			load(
				insts.EncodeImm(insts.PrimaryLW, 1, 2, 0),
				insts.EncodeSpecial(insts.FunctADDU, 2, 0, 3, 0),
				insts.EncodeSpecial(insts.FunctADDU, 2, 0, 4, 0),
			)
			step(3)
			Expect(rf.ReadReg(3)).To(Equal(uint32(7)))
			Expect(rf.ReadReg(4)).To(Equal(uint32(0x1234)))
		})

		It("should let a write in the delay slot win over the load", func() {
			load(
				insts.EncodeImm(insts.PrimaryLW, 1, 2, 0),
				addiu(2, 0, 99),
				insts.EncodeNOP(),
			)
			step(3)
			Expect(rf.ReadReg(2)).To(Equal(uint32(99)))
		})

		It("should keep only the newest of two loads to one register", func() {
			e.Bus().Write32(base+0x1004, 0x5678)
			load(
				insts.EncodeImm(insts.PrimaryLW, 1, 2, 0),
				insts.EncodeImm(insts.PrimaryLW, 1, 2, 4),
				insts.EncodeSpecial(insts.FunctADDU, 2, 0, 3, 0),
				insts.EncodeNOP(),
			)
			step(4)
			Expect(rf.ReadReg(3)).To(Equal(uint32(7)))
			Expect(rf.ReadReg(2)).To(Equal(uint32(0x5678)))
		})

		It("should merge LWR and LWL through the pending value", func() {
			e.Bus().Write32(base+0x1000, 0x33221100)
			e.Bus().Write32(base+0x1004, 0x77665544)
			rf.WriteReg(2, 0)
			load(
				insts.EncodeImm(insts.PrimaryLWR, 1, 2, 1),
				insts.EncodeImm(insts.PrimaryLWL, 1, 2, 4),
				insts.EncodeNOP(),
			)
			step(3)
			Expect(rf.ReadReg(2)).To(Equal(uint32(0x44332211)))
		})

		It("should delay MFC0 like a load", func() {
			load(
				insts.EncodeCop0(insts.Cop0MF, 2, emu.CP0SR),
				insts.EncodeNOP(),
			)
			step(1)
			Expect(rf.ReadReg(2)).To(Equal(uint32(7)))
			step(1)
			Expect(rf.ReadReg(2)).To(Equal(uint32(emu.SRBEV)))
		})

		It("should raise AdEL with BadVaddr for a misaligned load", func() {
			rf.WriteReg(1, base+0x1001)
			load(insts.EncodeImm(insts.PrimaryLW, 1, 2, 0))

			result := e.Step()
			Expect(result.Exception).To(Equal(emu.ExcAdEL))
			Expect(rf.CP0[emu.CP0BadVaddr]).To(Equal(base + 0x1001))
			Expect(rf.ReadReg(2)).To(Equal(uint32(7)))
		})
	})

	Describe("stores", func() {
		BeforeEach(func() {
			rf.WriteReg(1, base+0x1000)
			rf.WriteReg(2, 0xAABBCCDD)
		})

		It("should store an unaligned word with SWR and SWL", func() {
			load(
				insts.EncodeImm(insts.PrimarySWR, 1, 2, 1),
				insts.EncodeImm(insts.PrimarySWL, 1, 2, 4),
			)
			step(2)
			bus := e.Bus()
			Expect([]uint8{bus.Read8(base + 0x1001), bus.Read8(base + 0x1002),
				bus.Read8(base + 0x1003), bus.Read8(base + 0x1004)}).
				To(Equal([]uint8{0xDD, 0xCC, 0xBB, 0xAA}))
			Expect(bus.Read8(base + 0x1000)).To(BeZero())
		})

		It("should drop stores while the cache is isolated", func() {
			rf.CP0[emu.CP0SR] |= emu.SRIsC
			load(insts.EncodeImm(insts.PrimarySW, 1, 2, 0))
			step(1)
			Expect(e.Bus().Read32(base + 0x1000)).To(BeZero())
		})

		It("should raise AdES for a misaligned halfword store", func() {
			load(insts.EncodeImm(insts.PrimarySH, 1, 2, 1))
			Expect(e.Step().Exception).To(Equal(emu.ExcAdES))
		})
	})

	Describe("branches", func() {
		It("should execute the delay slot of a taken branch", func() {
			load(
				insts.EncodeImm(insts.PrimaryBEQ, 0, 0, 2),
				addiu(5, 0, 1),
				addiu(6, 0, 1),
				addiu(7, 0, 1),
			)
			step(3)
			Expect(rf.ReadReg(5)).To(Equal(uint32(1)))
			Expect(rf.ReadReg(6)).To(BeZero())
			Expect(rf.ReadReg(7)).To(Equal(uint32(1)))
			Expect(rf.PC).To(Equal(base + 16))
		})

		It("should fall through after the delay slot of a branch not taken", func() {
			rf.WriteReg(1, 1)
			load(
				insts.EncodeImm(insts.PrimaryBEQ, 1, 0, 8),
				insts.EncodeNOP(),
				addiu(6, 0, 1),
			)
			step(3)
			Expect(rf.ReadReg(6)).To(Equal(uint32(1)))
		})

		It("should link JAL to the instruction after the delay slot", func() {
			load(insts.EncodeJump(insts.PrimaryJAL, base+0x100), insts.EncodeNOP())
			step(2)
			Expect(rf.ReadReg(31)).To(Equal(base + 8))
			Expect(rf.PC).To(Equal(base + 0x100))
		})

		It("should link BLTZAL even when not taken", func() {
			load(insts.EncodeRegImm(insts.RegImmBLTZAL, 0, 4), insts.EncodeNOP())
			step(2)
			Expect(rf.ReadReg(31)).To(Equal(base + 8))
			Expect(rf.PC).To(Equal(base + 8))
		})

		It("should ignore the control transfer of a branch in a delay slot", func() {
			load(
				insts.EncodeJump(insts.PrimaryJ, base+0x100),
				insts.EncodeJump(insts.PrimaryJAL, base+0x200),
			)
			step(2)
			Expect(rf.PC).To(Equal(base + 0x100))
			Expect(rf.ReadReg(31)).To(Equal(base + 12))
		})

		It("should set BD for a fault in a delay slot", func() {
			rf.WriteReg(1, 0x7FFFFFFF)
			load(
				insts.EncodeImm(insts.PrimaryBEQ, 0, 0, 4),
				insts.EncodeImm(insts.PrimaryADDI, 1, 2, 1),
			)
			step(1)
			Expect(e.Step().Exception).To(Equal(emu.ExcOverflow))
			Expect(rf.CP0[emu.CP0EPC]).To(Equal(base))
			Expect(rf.CP0[emu.CP0Cause] & (1 << 31)).NotTo(BeZero())
		})
	})

	Describe("faults and exceptions", func() {
		It("should raise IBE when fetching from unmapped space", func() {
			rf.PC = 0x1F000000
			Expect(e.Step().Exception).To(Equal(emu.ExcIBE))
			Expect(rf.PC).To(Equal(uint32(emu.VectorBIOS)))
			Expect(rf.CP0[emu.CP0EPC]).To(Equal(uint32(0x1F000000)))
		})

		It("should raise AdEL for a misaligned PC", func() {
			rf.PC = base + 2
			Expect(e.Step().Exception).To(Equal(emu.ExcAdEL))
			Expect(rf.CP0[emu.CP0BadVaddr]).To(Equal(base + 2))
		})

		It("should enter the handler on SYSCALL", func() {
			load(insts.EncodeSpecial(insts.FunctSYSCALL, 0, 0, 0, 0))
			Expect(e.Step().Exception).To(Equal(emu.ExcSyscall))
			Expect(rf.PC).To(Equal(uint32(emu.VectorBIOS)))
		})

		It("should report COP2 as unimplemented", func() {
			load(uint32(insts.PrimaryCOP2) << 26)
			Expect(e.Step().Err).To(MatchError(emu.ErrUnimplemented))
		})

		It("should return from an exception with RFE", func() {
			rf.CP0[emu.CP0SR] = 0xC
			load(insts.EncodeRFE())
			step(1)
			Expect(rf.CP0[emu.CP0SR] & 0xF).To(Equal(uint32(0x3)))
		})
	})

	Describe("Execute", func() {
		BeforeEach(func() {
			load(
				addiu(1, 1, 1),
				insts.EncodeJump(insts.PrimaryJ, base),
				insts.EncodeNOP(),
			)
		})

		It("should run until the stop condition holds", func() {
			e = emu.NewEmulator(
				emu.WithRegFile(rf),
				emu.WithBus(e.Bus()),
				emu.WithStopCondition(func() bool { return rf.ReadReg(1) == 5 }),
			)
			Expect(e.Execute()).To(Succeed())
			Expect(rf.ReadReg(1)).To(Equal(uint32(5)))
		})

		It("should run a bounded number of instructions", func() {
			Expect(e.RunFor(6)).To(Succeed())
			Expect(e.Cycles()).To(Equal(uint64(6)))
			Expect(rf.ReadReg(1)).To(Equal(uint32(2)))
		})

		It("should stop at the instruction limit", func() {
			e = emu.NewEmulator(emu.WithRegFile(rf), emu.WithBus(e.Bus()),
				emu.WithMaxInstructions(2), emu.WithStderr(stderrBuf))
			Expect(e.Execute()).To(MatchError(emu.ErrMaxInstructions))
			Expect(stderrBuf.String()).To(ContainSubstring("[Interpreter]"))
		})

		It("should return to the power-on state on Reset", func() {
			Expect(e.RunFor(3)).To(Succeed())
			Expect(e.Reset()).To(Succeed())
			Expect(rf.PC).To(Equal(uint32(emu.ResetVector)))
			Expect(e.Cycles()).To(BeZero())
		})
	})
})
