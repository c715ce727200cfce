package dynarec

import "github.com/sarchlab/psxrec/emu"

const (
	pageShift   = 16
	numPages    = 1 << (32 - pageShift)
	pageEntries = 1 << (pageShift - 2)

	biosPages = emu.BIOSSize >> pageShift
)

// Segment bases, in pages, of the KUSEG, KSEG0 and KSEG1 views.
var segmentPages = [...]uint32{0x0000, 0x8000, 0xA000}

// Block is a compiled guest block.
type Block struct {
	// PC is the guest address the block was compiled from.
	PC uint32
	// Entry is the offset of the block's code in the code buffer.
	Entry int
	// CodeSize is the size of the block's code in bytes.
	CodeSize int
	// Insts is the number of guest instructions in the block.
	Insts int
}

// guestBytes returns the number of guest bytes the block was compiled from.
func (b *Block) guestBytes() uint32 {
	return uint32(b.Insts) * 4
}

// blockCache maps guest addresses to compiled blocks.
//
// ram and bios hold one entry per guest instruction. lut has one entry per
// 64KB page of the address space; mapped entries are views into ram or bios,
// so every mirror of an address shares the same entry.
type blockCache struct {
	ram  []*Block
	bios []*Block
	lut  [][]*Block
}

func newBlockCache(ramSize uint32) *blockCache {
	c := &blockCache{
		ram:  make([]*Block, ramSize/4),
		bios: make([]*Block, emu.BIOSSize/4),
		lut:  make([][]*Block, numPages),
	}

	ramPages := ramSize >> pageShift
	for _, seg := range segmentPages {
		for i := uint32(0); i < ramPages; i++ {
			c.lut[seg+i] = c.ram[i*pageEntries : (i+1)*pageEntries]
		}
		biosPage := seg + emu.BIOSBase>>pageShift
		for i := uint32(0); i < biosPages; i++ {
			c.lut[biosPage+i] = c.bios[i*pageEntries : (i+1)*pageEntries]
		}
	}

	return c
}

// isPCValid reports whether pc lies in a mapped, executable page.
func (c *blockCache) isPCValid(pc uint32) bool {
	return c.lut[pc>>pageShift] != nil
}

// slot returns the entry for pc, or nil if pc is not mapped.
func (c *blockCache) slot(pc uint32) **Block {
	page := c.lut[pc>>pageShift]
	if page == nil {
		return nil
	}
	return &page[(pc&0xFFFF)>>2]
}

// clear drops every block while keeping the tables.
func (c *blockCache) clear() {
	clear(c.ram)
	clear(c.bios)
}

// invalidate drops every block overlapping the physical range
// [addr, addr+size). maxBytes bounds how far before addr a block may start.
// It returns the number of blocks dropped.
func (c *blockCache) invalidate(addr, size, maxBytes uint32) int {
	if size == 0 {
		return 0
	}

	phys := emu.Physical(addr)
	var entries []*Block
	var off uint32
	switch {
	case phys < emu.RAMWindow:
		entries = c.ram
		off = phys & (uint32(len(c.ram))*4 - 1)
	case phys >= emu.BIOSBase && phys < emu.BIOSBase+emu.BIOSSize:
		entries = c.bios
		off = phys - emu.BIOSBase
	default:
		return 0
	}

	limit := uint64(len(entries)) * 4
	end := uint64(off) + uint64(size)
	if end > limit {
		end = limit
	}
	start := uint64(0)
	if off > maxBytes {
		start = uint64(off - maxBytes)
	}

	dropped := 0
	for pos := start &^ 3; pos < end; pos += 4 {
		b := entries[pos>>2]
		if b == nil {
			continue
		}
		if pos+uint64(b.guestBytes()) > uint64(off) {
			entries[pos>>2] = nil
			dropped++
		}
	}
	return dropped
}
