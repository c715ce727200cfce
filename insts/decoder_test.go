package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/psxrec/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	It("should decode the canonical NOP as SLL $0, $0, 0", func() {
		inst := decoder.Decode(insts.EncodeNOP())
		Expect(inst.Op).To(Equal(insts.OpSLL))
		Expect(inst.Rd).To(BeZero())
	})

	Describe("I-type instructions", func() {
		It("should decode LUI", func() {
			inst := decoder.Decode(0x3C011F80) // lui $1, 0x1F80
			Expect(inst.Op).To(Equal(insts.OpLUI))
			Expect(inst.Rt).To(Equal(uint8(1)))
			Expect(inst.Imm).To(Equal(uint16(0x1F80)))
			Expect(inst.Primary()).To(Equal(uint8(insts.PrimaryLUI)))
		})

		It("should sign-extend the immediate of ADDIU", func() {
			inst := decoder.Decode(insts.EncodeImm(insts.PrimaryADDIU, 29, 29, 0xFFF0))
			Expect(inst.Op).To(Equal(insts.OpADDIU))
			Expect(inst.Rs).To(Equal(uint8(29)))
			Expect(inst.ImmSE()).To(Equal(uint32(0xFFFFFFF0)))
		})

		It("should decode loads and stores", func() {
			Expect(decoder.Decode(insts.EncodeImm(insts.PrimaryLW, 2, 3, 8)).Op).To(Equal(insts.OpLW))
			Expect(decoder.Decode(insts.EncodeImm(insts.PrimaryLWL, 2, 3, 8)).Op).To(Equal(insts.OpLWL))
			Expect(decoder.Decode(insts.EncodeImm(insts.PrimarySWR, 2, 3, 8)).Op).To(Equal(insts.OpSWR))
			Expect(decoder.Decode(insts.EncodeImm(insts.PrimarySB, 2, 3, 8)).Op).To(Equal(insts.OpSB))
		})

		It("should flag GTE transfers as COP2 operations", func() {
			Expect(decoder.Decode(insts.EncodeImm(insts.PrimaryLWC2, 2, 3, 0)).Op).To(Equal(insts.OpLWC2))
			Expect(decoder.Decode(uint32(insts.PrimaryCOP2) << 26).Op).To(Equal(insts.OpCOP2))
		})
	})

	Describe("SPECIAL instructions", func() {
		It("should decode ADDU", func() {
			inst := decoder.Decode(insts.EncodeSpecial(insts.FunctADDU, 1, 2, 3, 0))
			Expect(inst.Op).To(Equal(insts.OpADDU))
			Expect(inst.Rs).To(Equal(uint8(1)))
			Expect(inst.Rt).To(Equal(uint8(2)))
			Expect(inst.Rd).To(Equal(uint8(3)))
		})

		It("should decode shift amounts", func() {
			inst := decoder.Decode(insts.EncodeSpecial(insts.FunctSRA, 0, 4, 5, 7))
			Expect(inst.Op).To(Equal(insts.OpSRA))
			Expect(inst.Shamt).To(Equal(uint8(7)))
		})

		It("should leave unassigned funct values unknown", func() {
			Expect(decoder.Decode(insts.EncodeSpecial(0x01, 0, 0, 0, 0)).Op).To(Equal(insts.OpUnknown))
		})
	})

	Describe("branches", func() {
		It("should compute PC-relative targets", func() {
			inst := decoder.Decode(insts.EncodeImm(insts.PrimaryBEQ, 1, 2, 0xFFFF))
			Expect(inst.Op).To(Equal(insts.OpBEQ))
			Expect(inst.BranchTarget(0x80010010)).To(Equal(uint32(0x80010010)))
			Expect(inst.IsBranch()).To(BeTrue())
		})

		It("should compute jump targets within the current 256MB region", func() {
			inst := decoder.Decode(insts.EncodeJump(insts.PrimaryJAL, 0x00012340))
			Expect(inst.Op).To(Equal(insts.OpJAL))
			Expect(inst.JumpTarget(0x80010000)).To(Equal(uint32(0x80012340)))
			dest, ok := inst.Dest()
			Expect(ok).To(BeTrue())
			Expect(dest).To(Equal(uint8(31)))
		})

		It("should decode the BcondZ group from rt bits 0 and 4:1", func() {
			Expect(decoder.Decode(insts.EncodeRegImm(insts.RegImmBLTZ, 1, 4)).Op).To(Equal(insts.OpBLTZ))
			Expect(decoder.Decode(insts.EncodeRegImm(insts.RegImmBGEZ, 1, 4)).Op).To(Equal(insts.OpBGEZ))
			Expect(decoder.Decode(insts.EncodeRegImm(insts.RegImmBLTZAL, 1, 4)).Op).To(Equal(insts.OpBLTZAL))
			Expect(decoder.Decode(insts.EncodeRegImm(insts.RegImmBGEZAL, 1, 4)).Op).To(Equal(insts.OpBGEZAL))
			// rt = 0x03 behaves like BGEZ on hardware.
			Expect(decoder.Decode(insts.EncodeRegImm(0x03, 1, 4)).Op).To(Equal(insts.OpBGEZ))
		})

		It("should not treat ALU instructions as branches", func() {
			Expect(decoder.Decode(insts.EncodeSpecial(insts.FunctOR, 1, 2, 3, 0)).IsBranch()).To(BeFalse())
		})
	})

	Describe("COP0 instructions", func() {
		It("should decode MFC0 and MTC0", func() {
			mf := decoder.Decode(insts.EncodeCop0(insts.Cop0MF, 4, 12))
			Expect(mf.Op).To(Equal(insts.OpMFC0))
			Expect(mf.Rd).To(Equal(uint8(12)))
			Expect(mf.IsLoad()).To(BeTrue())
			Expect(decoder.Decode(insts.EncodeCop0(insts.Cop0MT, 4, 12)).Op).To(Equal(insts.OpMTC0))
		})

		It("should decode RFE", func() {
			Expect(decoder.Decode(insts.EncodeRFE()).Op).To(Equal(insts.OpRFE))
		})
	})

	Describe("String", func() {
		It("should disassemble common forms", func() {
			Expect(insts.Decode(insts.EncodeImm(insts.PrimaryLW, 29, 31, 16)).String()).To(Equal("lw $31, 16($29)"))
			Expect(insts.Decode(insts.EncodeSpecial(insts.FunctJR, 31, 0, 0, 0)).String()).To(Equal("jr $31"))
			Expect(insts.OpUnknown.String()).To(Equal("???"))
		})
	})
})
