// Package loader loads PlayStation executables and BIOS images into guest
// memory.
package loader

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/sarchlab/psxrec/emu"
)

// DefaultStackTop is the stack pointer used when an executable does not
// specify one: the top of 2MB RAM minus the MIPS argument area.
const DefaultStackTop = 0x801FFFF0

// HeaderSize is the size of a PS-X EXE header. The text section follows it.
const HeaderSize = 0x800

var (
	exeMagic = []byte("PS-X EXE")
	elfMagic = []byte("\x7fELF")
)

// ErrUnknownFormat is returned for files that are neither PS-X EXE nor ELF.
var ErrUnknownFormat = errors.New("unknown executable format")

// PS-X EXE header field offsets.
const (
	offInitialPC = 0x10
	offInitialGP = 0x14
	offTextAddr  = 0x18
	offTextSize  = 0x1C
	offBSSAddr   = 0x28
	offBSSSize   = 0x2C
	offStackBase = 0x30
	offStackOff  = 0x34
)

// Segment is a range of guest memory the program occupies.
type Segment struct {
	// Addr is the guest address the segment is loaded at.
	Addr uint32
	// Data is copied to Addr.
	Data []byte
	// MemSize is the size in memory. Bytes past len(Data) are zeroed.
	MemSize uint32
}

// Program is a parsed executable ready to be installed.
type Program struct {
	// Entry is the initial PC.
	Entry uint32
	// GP is the initial value of r28.
	GP uint32
	// InitialSP is the initial value of r29 and r30.
	InitialSP uint32
	// Segments holds the text and BSS ranges.
	Segments []Segment
}

// Parse parses a PS-X EXE image.
func Parse(image []byte) (*Program, error) {
	if len(image) < HeaderSize {
		return nil, fmt.Errorf("PS-X EXE too short: %d bytes", len(image))
	}
	if !bytes.HasPrefix(image, exeMagic) {
		return nil, fmt.Errorf("%w: missing PS-X EXE magic", ErrUnknownFormat)
	}

	word := func(off int) uint32 {
		return binary.LittleEndian.Uint32(image[off:])
	}

	textSize := word(offTextSize)
	if uint64(HeaderSize)+uint64(textSize) > uint64(len(image)) {
		return nil, fmt.Errorf("PS-X EXE text section of %d bytes exceeds the file (%d bytes)",
			textSize, len(image)-HeaderSize)
	}

	prog := &Program{
		Entry:     word(offInitialPC),
		GP:        word(offInitialGP),
		InitialSP: DefaultStackTop,
	}
	if base := word(offStackBase); base != 0 {
		prog.InitialSP = base + word(offStackOff)
	}

	prog.Segments = append(prog.Segments, Segment{
		Addr:    word(offTextAddr),
		Data:    image[HeaderSize : HeaderSize+textSize],
		MemSize: textSize,
	})
	if size := word(offBSSSize); size != 0 {
		prog.Segments = append(prog.Segments, Segment{
			Addr:    word(offBSSAddr),
			MemSize: size,
		})
	}

	return prog, nil
}

// Load reads an executable from path. PS-X EXE and MIPS ELF files are
// recognized by their magic.
func Load(path string) (*Program, error) {
	image, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read executable: %w", err)
	}

	switch {
	case bytes.HasPrefix(image, exeMagic):
		return Parse(image)
	case bytes.HasPrefix(image, elfMagic):
		return ParseELF(image)
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownFormat, path)
}

// LoadBIOS reads a raw BIOS image from path into the bus ROM.
func LoadBIOS(bus *emu.Bus, path string) error {
	image, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read BIOS image: %w", err)
	}
	return bus.LoadBIOS(image)
}

// Install copies the program into RAM and points the CPU at its entry.
func (p *Program) Install(bus *emu.Bus, regs *emu.RegFile) error {
	for _, seg := range p.Segments {
		if err := bus.LoadRAM(seg.Addr, seg.Data); err != nil {
			return fmt.Errorf("failed to load segment at 0x%08X: %w", seg.Addr, err)
		}
		if seg.MemSize > uint32(len(seg.Data)) {
			zeros := make([]byte, seg.MemSize-uint32(len(seg.Data)))
			addr := seg.Addr + uint32(len(seg.Data))
			if err := bus.LoadRAM(addr, zeros); err != nil {
				return fmt.Errorf("failed to clear segment at 0x%08X: %w", addr, err)
			}
		}
	}

	regs.PC = p.Entry
	regs.WriteReg(28, p.GP)
	regs.WriteReg(29, p.InitialSP)
	regs.WriteReg(30, p.InitialSP)
	regs.NormalizeLoads()
	regs.DropLoads()
	return nil
}
