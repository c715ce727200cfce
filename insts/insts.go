// Package insts provides MIPS R3000A instruction definitions and decoding.
//
// This package implements decoding of R3000A machine code into structured
// instruction representations. It supports the full integer instruction set
// of the PlayStation CPU:
//   - ALU (immediate and register), shifts, HI/LO multiply/divide
//   - Branches and jumps, all of which carry a single delay slot
//   - Loads (with a load delay slot) and stores, including LWL/LWR/SWL/SWR
//   - COP0 moves and RFE
//
// GTE (COP2) instructions decode to OpCOP2/OpLWC2/OpSWC2 but carry no
// further field interpretation.
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x3C011F80) // LUI $1, 0x1F80
//	fmt.Printf("Op: %v, Rt: %d, Imm: 0x%X\n", inst.Op, inst.Rt, inst.Imm)
package insts
