package emu_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/psxrec/emu"
)

var _ = Describe("Bus", func() {
	var bus *emu.Bus

	BeforeEach(func() {
		var err error
		bus, err = emu.NewBus(emu.RAMSize2MB)
		Expect(err).NotTo(HaveOccurred())
	})

	It("should reject unsupported RAM sizes", func() {
		_, err := emu.NewBus(4 * 1024 * 1024)
		Expect(err).To(HaveOccurred())
	})

	It("should mirror RAM through KUSEG, KSEG0 and KSEG1", func() {
		bus.Write32(0x80001000, 0xCAFEBABE)
		Expect(bus.Read32(0x00001000)).To(Equal(uint32(0xCAFEBABE)))
		Expect(bus.Read32(0xA0001000)).To(Equal(uint32(0xCAFEBABE)))
	})

	It("should mirror 2MB of RAM across the 8MB window", func() {
		bus.Write8(0x00000010, 0x5A)
		Expect(bus.Read8(0x00200010)).To(Equal(uint8(0x5A)))
	})

	It("should be little-endian", func() {
		bus.Write32(0x100, 0x11223344)
		Expect(bus.Read8(0x100)).To(Equal(uint8(0x44)))
		Expect(bus.Read16(0x102)).To(Equal(uint16(0x1122)))
	})

	It("should keep the BIOS read-only", func() {
		Expect(bus.LoadBIOS([]byte{0x01, 0x02, 0x03, 0x04})).To(Succeed())
		bus.Write32(0xBFC00000, 0)
		Expect(bus.Read32(0xBFC00000)).To(Equal(uint32(0x04030201)))
		Expect(bus.Read32(0x9FC00000)).To(Equal(uint32(0x04030201)))
	})

	It("should reject an oversized BIOS image", func() {
		Expect(bus.LoadBIOS(make([]byte, emu.BIOSSize+1))).NotTo(Succeed())
	})

	It("should reject RAM loads past the end of RAM", func() {
		Expect(bus.LoadRAM(emu.RAMSize2MB-2, []byte{1, 2, 3, 4})).NotTo(Succeed())
	})

	It("should read unmapped space as zero", func() {
		Expect(bus.Read32(0x1F000000)).To(BeZero())
		bus.Write32(0x1F000000, 1)
		Expect(bus.Read32(0x1F000000)).To(BeZero())
	})

	It("should hold the scratchpad and the cache control register", func() {
		bus.Write32(0x1F800004, 0x1234)
		Expect(bus.Read32(0x9F800004)).To(Equal(uint32(0x1234)))
		bus.Write32(emu.CacheControlReg, 0x804)
		Expect(bus.Read32(emu.CacheControlReg)).To(Equal(uint32(0x804)))
	})

	DescribeTable("Executable",
		func(addr uint32, want bool) {
			Expect(bus.Executable(addr)).To(Equal(want))
		},
		Entry("KUSEG RAM", uint32(0x00000100), true),
		Entry("KSEG0 RAM", uint32(0x80010000), true),
		Entry("KSEG1 RAM", uint32(0xA01FFFFC), true),
		Entry("RAM mirror beyond 2MB", uint32(0x80200000), false),
		Entry("BIOS", uint32(0xBFC00000), true),
		Entry("KSEG0 BIOS", uint32(0x9FC7FFFC), true),
		Entry("scratchpad", uint32(0x1F800000), false),
		Entry("KUSEG hole", uint32(0x40000000), false),
		Entry("KSEG2", uint32(0xFFFE0130), false),
	)

	It("should classify RAM addresses", func() {
		Expect(bus.IsRAM(0x80000000)).To(BeTrue())
		Expect(bus.IsRAM(0xBFC00000)).To(BeFalse())
	})
})
