package loader

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
)

// ParseELF parses a 32-bit little-endian MIPS ELF executable, the format
// homebrew PlayStation toolchains link to before conversion to PS-X EXE.
func ParseELF(image []byte) (*Program, error) {
	f, err := elf.NewFile(bytes.NewReader(image))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ELF file: %w", err)
	}
	defer func() { _ = f.Close() }()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("not a 32-bit ELF file")
	}
	if f.Machine != elf.EM_MIPS {
		return nil, fmt.Errorf("not a MIPS ELF file (machine type: %v)", f.Machine)
	}
	if f.ByteOrder != binary.LittleEndian {
		return nil, fmt.Errorf("not a little-endian ELF file")
	}

	prog := &Program{
		Entry:     uint32(f.Entry),
		InitialSP: DefaultStackTop,
	}

	for _, phdr := range f.Progs {
		if phdr.Type != elf.PT_LOAD {
			continue
		}

		data := make([]byte, phdr.Filesz)
		if phdr.Filesz > 0 {
			n, err := phdr.ReadAt(data, 0)
			if err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read segment at 0x%x: %w", phdr.Vaddr, err)
			}
			if uint64(n) != phdr.Filesz {
				return nil, fmt.Errorf("short read for segment at 0x%x: got %d bytes, expected %d",
					phdr.Vaddr, n, phdr.Filesz)
			}
		}

		prog.Segments = append(prog.Segments, Segment{
			Addr:    uint32(phdr.Vaddr),
			Data:    data,
			MemSize: uint32(phdr.Memsz),
		})
	}

	// Symbols are optional; stripped images leave GP at 0.
	if syms, err := f.Symbols(); err == nil {
		for _, s := range syms {
			if s.Name == "_gp" {
				prog.GP = uint32(s.Value)
				break
			}
		}
	}

	return prog, nil
}
