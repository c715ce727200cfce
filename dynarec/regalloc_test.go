package dynarec

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/psxrec/emitter"
	"github.com/sarchlab/psxrec/emu"
)

var _ = Describe("regAlloc", func() {
	var (
		em   *emitter.Emitter
		regs *regAlloc
	)

	BeforeEach(func() {
		buf, err := emitter.NewCodeBuffer(1 << 16)
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(buf.Free)
		em = emitter.New(buf)
		regs = newRegAlloc(em)
	})

	emitted := func(from int) []emitter.Inst {
		return emitter.Disassemble(em.Buffer().Bytes(), from, em.Bookmark()-from)
	}

	loadOf := func(h emitter.Reg, r uint8) emitter.Inst {
		return emitter.Inst{Op: emitter.OpLoadCtx, A: h, Imm: emu.OffsetGPR(r)}
	}

	storeOf := func(r uint8, h emitter.Reg) emitter.Inst {
		return emitter.Inst{Op: emitter.OpStoreCtx, A: h, Imm: emu.OffsetGPR(r)}
	}

	It("should load a guest register once", func() {
		h := regs.read(4)
		Expect(h).To(Equal(emitter.RBX))
		Expect(regs.read(4)).To(Equal(h))
		Expect(emitted(0)).To(Equal([]emitter.Inst{loadOf(h, 4)}))

		found, ok := regs.hostOf(4)
		Expect(ok).To(BeTrue())
		Expect(found).To(Equal(h))
	})

	It("should not load a register that is only written", func() {
		regs.write(5)
		Expect(emitted(0)).To(BeEmpty())
	})

	It("should spill the least recently used register", func() {
		dirty := regs.write(1)
		regs.release()
		for r := uint8(2); r <= numWays; r++ {
			regs.read(r)
			regs.release()
		}

		at := em.Bookmark()
		h := regs.read(9)
		Expect(h).To(Equal(dirty))
		Expect(emitted(at)).To(Equal([]emitter.Inst{storeOf(1, dirty), loadOf(h, 9)}))
		_, ok := regs.hostOf(1)
		Expect(ok).To(BeFalse())
	})

	It("should drop clean registers without storing them", func() {
		for r := uint8(1); r <= numWays; r++ {
			regs.read(r)
			regs.release()
		}

		at := em.Bookmark()
		regs.read(9)
		Expect(emitted(at)).To(HaveLen(1))
	})

	It("should never spill a register used by the current instruction", func() {
		for r := uint8(1); r < numWays; r++ {
			regs.read(r)
		}
		Expect(func() { regs.read(numWays) }).NotTo(Panic())
		Expect(func() { regs.read(numWays + 1) }).To(Panic())
	})

	It("should keep constants out of host registers", func() {
		regs.write(3)
		regs.markConst(3, 0x1234)
		_, ok := regs.hostOf(3)
		Expect(ok).To(BeFalse())
		Expect(regs.isConst(3)).To(BeTrue())
		Expect(regs.constVal(3)).To(Equal(uint32(0x1234)))

		at := em.Bookmark()
		t := regs.read(3)
		Expect(emitted(at)).To(Equal([]emitter.Inst{{Op: emitter.OpMovImm, A: t, Imm: 0x1234}}))
	})

	It("should treat r0 as the constant zero", func() {
		Expect(regs.isConst(0)).To(BeTrue())
		Expect(regs.constVal(0)).To(BeZero())
		regs.markConst(0, 5)
		Expect(regs.constVal(0)).To(BeZero())
	})

	It("should free temporaries on release", func() {
		t := regs.reserve()
		regs.release()
		Expect(regs.reserve()).To(Equal(t))
	})

	It("should write back constants and dirty registers on flush", func() {
		regs.markConst(2, 7)
		h := regs.write(3)
		regs.read(4)
		regs.release()

		at := em.Bookmark()
		regs.flush()
		Expect(emitted(at)).To(ConsistOf(
			emitter.Inst{Op: emitter.OpStoreCtxImm, B: emitter.Reg(emu.OffsetGPR(2)), C: emitter.Reg(emu.OffsetGPR(2) >> 8), Imm: 7},
			storeOf(3, h),
		))
		Expect(regs.isConst(2)).To(BeFalse())
		_, ok := regs.hostOf(3)
		Expect(ok).To(BeFalse())
	})

	It("should keep written registers and constants when dropping clean ones", func() {
		regs.markConst(2, 7)
		written := regs.write(3)
		regs.read(4)
		regs.release()

		at := em.Bookmark()
		regs.dropClean()
		Expect(emitted(at)).To(BeEmpty())
		Expect(regs.isConst(2)).To(BeTrue())
		h, ok := regs.hostOf(3)
		Expect(ok).To(BeTrue())
		Expect(h).To(Equal(written))
		_, ok = regs.hostOf(4)
		Expect(ok).To(BeFalse())
	})

	It("should preserve occupied call-clobbered registers around calls", func() {
		for r := uint8(1); r <= numWays; r++ {
			regs.read(r)
		}

		at := em.Bookmark()
		regs.saveVolatile()
		Expect(emitted(at)).To(Equal([]emitter.Inst{
			{Op: emitter.OpStoreCtx, A: emitter.R10, Imm: emu.OffsetHostRegCache(6)},
			{Op: emitter.OpStoreCtx, A: emitter.R11, Imm: emu.OffsetHostRegCache(7)},
		}))

		at = em.Bookmark()
		regs.restoreVolatile()
		Expect(emitted(at)).To(Equal([]emitter.Inst{
			{Op: emitter.OpLoadCtx, A: emitter.R10, Imm: emu.OffsetHostRegCache(6)},
			{Op: emitter.OpLoadCtx, A: emitter.R11, Imm: emu.OffsetHostRegCache(7)},
		}))
	})

	It("should save nothing when no call-clobbered register is occupied", func() {
		regs.read(1)
		at := em.Bookmark()
		regs.saveVolatile()
		Expect(emitted(at)).To(BeEmpty())
	})
})
