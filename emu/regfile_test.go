package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/psxrec/emu"
)

var _ = Describe("RegFile", func() {
	var rf *emu.RegFile

	BeforeEach(func() {
		rf = &emu.RegFile{}
		rf.Reset()
	})

	// Generated code addresses the register file by these offsets. A change
	// here must come with a LayoutVersion bump.
	Describe("layout", func() {
		It("should be at layout version 1", func() {
			Expect(emu.LayoutVersion).To(Equal(1))
		})

		DescribeTable("field offsets",
			func(got, want uint32) {
				Expect(got).To(Equal(want))
			},
			Entry("GPR[0]", emu.OffsetGPR(0), uint32(0)),
			Entry("GPR[31]", emu.OffsetGPR(31), uint32(124)),
			Entry("HI", emu.OffsetHI(), uint32(128)),
			Entry("LO", emu.OffsetLO(), uint32(132)),
			Entry("PC", emu.OffsetPC(), uint32(136)),
			Entry("CP0[0]", emu.OffsetCP0(0), uint32(140)),
			Entry("CP0[SR]", emu.OffsetCP0(emu.CP0SR), uint32(188)),
			Entry("Load[0].Index", emu.OffsetLoadIndex(0), uint32(268)),
			Entry("Load[0].Value", emu.OffsetLoadValue(0), uint32(272)),
			Entry("Load[0].Active", emu.OffsetLoadActive(0), uint32(276)),
			Entry("Load[1].Index", emu.OffsetLoadIndex(1), uint32(280)),
			Entry("Load[1].Value", emu.OffsetLoadValue(1), uint32(284)),
			Entry("Load[1].Active", emu.OffsetLoadActive(1), uint32(288)),
			Entry("CurrentLoad", emu.OffsetCurrentLoad(), uint32(292)),
			Entry("HostRegCache[0]", emu.OffsetHostRegCache(0), uint32(296)),
			Entry("HostRegCache[7]", emu.OffsetHostRegCache(7), uint32(324)),
			Entry("size", emu.RegFileSize, uint32(328)),
		)
	})

	Describe("Reset", func() {
		It("should start at the reset vector with BEV set", func() {
			rf.GPR[4] = 7
			rf.Reset()
			Expect(rf.PC).To(Equal(uint32(emu.ResetVector)))
			Expect(rf.GPR[4]).To(BeZero())
			Expect(rf.CP0[emu.CP0SR] & emu.SRBEV).NotTo(BeZero())
			Expect(rf.CP0[emu.CP0PRID]).To(Equal(uint32(emu.PRIDValue)))
		})
	})

	Describe("register 0", func() {
		It("should ignore writes", func() {
			rf.WriteReg(0, 0xDEADBEEF)
			Expect(rf.ReadReg(0)).To(BeZero())
		})

		It("should never become the target of a load", func() {
			rf.ScheduleLoad(0, 5)
			rf.AdvanceLoads()
			rf.AdvanceLoads()
			Expect(rf.ReadReg(0)).To(BeZero())
		})
	})

	Describe("delayed loads", func() {
		It("should make a load visible after one instruction", func() {
			rf.ScheduleLoad(2, 0x55)
			rf.AdvanceLoads()
			Expect(rf.ReadReg(2)).To(BeZero())
			rf.AdvanceLoads()
			Expect(rf.ReadReg(2)).To(Equal(uint32(0x55)))
		})

		It("should cancel an older load to the same register", func() {
			rf.ScheduleLoad(2, 0x11)
			rf.AdvanceLoads()
			rf.ScheduleLoad(2, 0x22)
			Expect(rf.Load[0].Active + rf.Load[1].Active).To(Equal(uint32(1)))
			rf.AdvanceLoads()
			Expect(rf.ReadReg(2)).To(BeZero())
			rf.AdvanceLoads()
			Expect(rf.ReadReg(2)).To(Equal(uint32(0x22)))
		})

		It("should let a direct write in the delay slot win", func() {
			rf.ScheduleLoad(3, 0x11)
			rf.AdvanceLoads()
			rf.CancelLoad(3)
			rf.WriteReg(3, 0x99)
			rf.AdvanceLoads()
			Expect(rf.ReadReg(3)).To(Equal(uint32(0x99)))
		})

		It("should expose the in-flight value to LWL/LWR merging", func() {
			rf.ScheduleLoad(5, 0xAABBCCDD)
			rf.AdvanceLoads()
			v, ok := rf.PendingLoad(5)
			Expect(ok).To(BeTrue())
			Expect(v).To(Equal(uint32(0xAABBCCDD)))
			_, ok = rf.PendingLoad(6)
			Expect(ok).To(BeFalse())
		})

		It("should normalize a pending load into slot 1", func() {
			rf.ScheduleLoad(7, 0x77)
			rf.AdvanceLoads()
			Expect(rf.CurrentLoad).To(Equal(uint32(1)))

			rf.NormalizeLoads()
			Expect(rf.CurrentLoad).To(BeZero())
			Expect(rf.Load[0].Active).To(BeZero())
			Expect(rf.Load[1]).To(Equal(emu.DelayedLoad{Index: 7, Value: 0x77, Active: 1}))

			rf.AdvanceLoads()
			Expect(rf.ReadReg(7)).To(Equal(uint32(0x77)))
		})

		It("should drop every pending load", func() {
			rf.ScheduleLoad(7, 0x77)
			rf.AdvanceLoads()
			rf.ScheduleLoad(8, 0x88)
			rf.DropLoads()
			rf.AdvanceLoads()
			rf.AdvanceLoads()
			Expect(rf.ReadReg(7)).To(BeZero())
			Expect(rf.ReadReg(8)).To(BeZero())
		})
	})
})
