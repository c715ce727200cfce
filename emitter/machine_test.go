package emitter_test

import (
	"unsafe"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/psxrec/emitter"
)

var _ = Describe("Machine", func() {
	var (
		buf *emitter.CodeBuffer
		em  *emitter.Emitter
		m   *emitter.Machine
		ctx [8]uint32
	)

	BeforeEach(func() {
		var err error
		buf, err = emitter.NewCodeBuffer(4096)
		Expect(err).NotTo(HaveOccurred())
		em = emitter.New(buf)
		m = emitter.NewMachine(uint32(unsafe.Sizeof(ctx)))
		ctx = [8]uint32{}
	})

	AfterEach(func() {
		Expect(buf.Free()).To(Succeed())
	})

	run := func(entry int) (uint32, error) {
		return m.Run(buf.Bytes(), entry, unsafe.Pointer(&ctx))
	}

	It("should return RAX", func() {
		em.MovImm(emitter.RAX, 42)
		em.Ret()
		Expect(run(0)).To(Equal(uint32(42)))
	})

	It("should read and write the context by offset", func() {
		ctx[1] = 5
		em.LoadCtx(emitter.RBX, 4)
		em.ALUImm(emitter.OpAddI, emitter.RBX, emitter.RBX, 10)
		em.StoreCtx(8, emitter.RBX)
		em.StoreCtxImm(12, 0xAB)
		em.MovImm(emitter.RCX, 2)
		em.StoreCtxIdx(16, emitter.RCX, emitter.RBX)
		em.Ret()

		_, err := run(0)
		Expect(err).NotTo(HaveOccurred())
		Expect(ctx[2]).To(Equal(uint32(15)))
		Expect(ctx[3]).To(Equal(uint32(0xAB)))
		Expect(ctx[6]).To(Equal(uint32(15)))
	})

	It("should reject context accesses out of range", func() {
		em.LoadCtx(emitter.RBX, 32)
		em.Ret()
		_, err := run(0)
		Expect(err).To(MatchError(emitter.ErrBadContext))
	})

	DescribeTable("ALU operations",
		func(op emitter.Op, a, b, want uint32) {
			em.MovImm(emitter.RBX, a)
			em.MovImm(emitter.RBP, b)
			em.ALU(op, emitter.RAX, emitter.RBX, emitter.RBP)
			em.Ret()
			Expect(run(0)).To(Equal(want))
		},
		Entry("add", emitter.OpAdd, uint32(0xFFFFFFFF), uint32(2), uint32(1)),
		Entry("sub", emitter.OpSub, uint32(1), uint32(2), uint32(0xFFFFFFFF)),
		Entry("nor", emitter.OpNor, uint32(0xF0), uint32(0x0F), uint32(0xFFFFFF00)),
		Entry("shl masks the count", emitter.OpShl, uint32(1), uint32(33), uint32(2)),
		Entry("sar", emitter.OpSar, uint32(0x80000000), uint32(4), uint32(0xF8000000)),
		Entry("shr", emitter.OpShr, uint32(0x80000000), uint32(4), uint32(0x08000000)),
		Entry("setlt signed", emitter.OpSetLt, uint32(0xFFFFFFFF), uint32(0), uint32(1)),
		Entry("setltu unsigned", emitter.OpSetLtU, uint32(0xFFFFFFFF), uint32(0), uint32(0)),
	)

	It("should follow conditional jumps", func() {
		em.MovImm(emitter.RBX, 0)
		jz := em.Jz(emitter.RBX, 0)
		em.MovImm(emitter.RAX, 1)
		em.Ret()
		em.PatchTarget(jz, em.Bookmark())
		em.MovImm(emitter.RAX, 2)
		em.Ret()
		Expect(run(0)).To(Equal(uint32(2)))
	})

	Describe("calls", func() {
		var id emitter.HelperID

		BeforeEach(func() {
			id = m.Register("sum", func(a0, a1, a2 uint32) (uint32, uint32) {
				return a0 + a1 + a2, 7
			})
		})

		It("should pass arguments and return two results", func() {
			em.Enter()
			em.MovImm(emitter.RDI, 1)
			em.MovImm(emitter.RSI, 2)
			em.MovImm(emitter.RDX, 3)
			em.Call(id)
			em.Mov(emitter.RBX, emitter.RDX)
			em.Leave()
			em.Ret()
			Expect(run(0)).To(Equal(uint32(6)))
			Expect(m.Reg(emitter.RBX)).To(Equal(uint32(7)))
			Expect(m.HelperName(id)).To(Equal("sum"))
		})

		It("should clobber volatile registers and keep the others", func() {
			em.Enter()
			em.MovImm(emitter.R10, 1)
			em.MovImm(emitter.R12, 1)
			em.Call(id)
			em.Leave()
			em.Ret()
			_, err := run(0)
			Expect(err).NotTo(HaveOccurred())
			Expect(m.Reg(emitter.R10)).NotTo(Equal(uint32(1)))
			Expect(m.Reg(emitter.R12)).To(Equal(uint32(1)))
		})

		It("should refuse a call outside a stack frame", func() {
			em.Call(id)
			em.Ret()
			_, err := run(0)
			Expect(err).To(MatchError(emitter.ErrNoFrame))
		})

		It("should refuse to return with an open frame", func() {
			em.Enter()
			em.Ret()
			_, err := run(0)
			Expect(err).To(MatchError(emitter.ErrBadFrame))
		})

		It("should refuse an unknown helper", func() {
			em.Enter()
			em.Call(id + 1)
			_, err := run(0)
			Expect(err).To(MatchError(emitter.ErrBadHelper))
		})
	})

	It("should stop a runaway loop", func() {
		em.Jmp(0)
		_, err := run(0)
		Expect(err).To(MatchError(emitter.ErrStepBudget))
	})
})
