// Package main provides the entry point for psxrec.
// psxrec runs PlayStation R3000A code on a dynamic recompiler.
//
// For the full CLI, use: go run ./cmd/psxrec
package main

import (
	"fmt"
	"os"
)

func main() {
	fmt.Println("psxrec - PlayStation R3000A dynamic recompiler")
	fmt.Println("")
	fmt.Println("Usage: psxrec [options] <program.exe|program.elf>")
	fmt.Println("")
	fmt.Println("Options:")
	fmt.Println("  -config      Path to dynarec configuration JSON file")
	fmt.Println("  -8mb         Enable the 8MB RAM expansion")
	fmt.Println("  -bios        Path to a BIOS image")
	fmt.Println("  -interp      Run on the interpreter instead of the recompiler")
	fmt.Println("  -cycles      Guest instructions to run (0 = until interrupted)")
	fmt.Println("  -v           Verbose output")
	fmt.Println("  -dump        Dump registers and statistics on exit")
	fmt.Println("  -cpuprofile  Write a CPU profile to file")
	fmt.Println("")
	fmt.Println("Run 'go run ./cmd/psxrec' for the full CLI.")

	if len(os.Args) > 1 {
		fmt.Println("\nNote: You provided arguments. Use 'go run ./cmd/psxrec' instead.")
	}
}
