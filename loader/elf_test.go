package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/psxrec/loader"
)

type elfSegment struct {
	addr    uint32
	data    []byte
	memSize uint32
}

// buildMIPSELF creates a minimal 32-bit ELF image with one PT_LOAD program
// header per segment.
func buildMIPSELF(machine uint16, order binary.ByteOrder, entry uint32, segs ...elfSegment) []byte {
	const ehSize, phSize = 52, 32

	header := make([]byte, ehSize)
	copy(header[0:4], []byte{0x7f, 'E', 'L', 'F'})
	header[4] = 1 // 32-bit
	header[5] = 1 // little endian
	if order == binary.BigEndian {
		header[5] = 2
	}
	header[6] = 1                           // version
	order.PutUint16(header[16:18], 2)       // executable
	order.PutUint16(header[18:20], machine) // machine
	order.PutUint32(header[20:24], 1)       // version
	order.PutUint32(header[24:28], entry)   // entry
	order.PutUint32(header[28:32], ehSize)  // phoff
	order.PutUint16(header[40:42], ehSize)  // ehsize
	order.PutUint16(header[42:44], phSize)  // phentsize
	order.PutUint16(header[44:46], uint16(len(segs)))
	order.PutUint16(header[46:48], 40) // shentsize

	image := header
	offset := uint32(ehSize + phSize*len(segs))
	var payload []byte
	for _, seg := range segs {
		ph := make([]byte, phSize)
		order.PutUint32(ph[0:4], 1) // PT_LOAD
		order.PutUint32(ph[4:8], offset)
		order.PutUint32(ph[8:12], seg.addr)
		order.PutUint32(ph[12:16], seg.addr)
		order.PutUint32(ph[16:20], uint32(len(seg.data)))
		order.PutUint32(ph[20:24], seg.memSize)
		order.PutUint32(ph[24:28], 0x5) // PF_R | PF_X
		order.PutUint32(ph[28:32], 4)
		image = append(image, ph...)
		payload = append(payload, seg.data...)
		offset += uint32(len(seg.data))
	}
	return append(image, payload...)
}

const emMIPS = 8

var _ = Describe("ELF Loader", func() {
	code := []byte{
		0x2A, 0x00, 0x02, 0x24, // addiu v0, zero, 42
		0x08, 0x00, 0xE0, 0x03, // jr ra
	}

	Describe("ParseELF", func() {
		It("should extract the entry point and segments", func() {
			prog, err := loader.ParseELF(buildMIPSELF(emMIPS, binary.LittleEndian, 0x80010008,
				elfSegment{addr: 0x80010000, data: code, memSize: uint32(len(code))}))
			Expect(err).NotTo(HaveOccurred())

			Expect(prog.Entry).To(Equal(uint32(0x80010008)))
			Expect(prog.InitialSP).To(Equal(uint32(loader.DefaultStackTop)))
			Expect(prog.GP).To(BeZero())
			Expect(prog.Segments).To(HaveLen(1))
			Expect(prog.Segments[0].Addr).To(Equal(uint32(0x80010000)))
			Expect(prog.Segments[0].Data).To(Equal(code))
		})

		It("should keep BSS sizes", func() {
			prog, err := loader.ParseELF(buildMIPSELF(emMIPS, binary.LittleEndian, 0x80010000,
				elfSegment{addr: 0x80010000, data: code, memSize: uint32(len(code))},
				elfSegment{addr: 0x80020000, data: []byte{1, 2, 3, 4}, memSize: 0x100},
			))
			Expect(err).NotTo(HaveOccurred())

			Expect(prog.Segments).To(HaveLen(2))
			Expect(prog.Segments[1].MemSize).To(Equal(uint32(0x100)))
			Expect(prog.Segments[1].Data).To(HaveLen(4))
		})

		It("should reject other machines", func() {
			_, err := loader.ParseELF(buildMIPSELF(183, binary.LittleEndian, 0))
			Expect(err).To(MatchError(ContainSubstring("not a MIPS ELF")))
		})

		It("should reject big-endian MIPS", func() {
			_, err := loader.ParseELF(buildMIPSELF(emMIPS, binary.BigEndian, 0))
			Expect(err).To(MatchError(ContainSubstring("little-endian")))
		})

		It("should reject garbage", func() {
			_, err := loader.ParseELF([]byte("\x7fELF garbage"))
			Expect(err).To(HaveOccurred())
		})
	})

	It("should be recognized by Load", func() {
		path := filepath.Join(GinkgoT().TempDir(), "test.elf")
		Expect(os.WriteFile(path, buildMIPSELF(emMIPS, binary.LittleEndian, 0x80010000,
			elfSegment{addr: 0x80010000, data: code, memSize: uint32(len(code))}), 0644)).To(Succeed())

		prog, err := loader.Load(path)
		Expect(err).NotTo(HaveOccurred())
		Expect(prog.Entry).To(Equal(uint32(0x80010000)))
	})
})
