// Package main provides the psxrec command, which runs PlayStation code on
// the R3000A recompiler or the reference interpreter.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"runtime/pprof"

	"github.com/davecgh/go-spew/spew"

	"github.com/sarchlab/psxrec/dynarec"
	"github.com/sarchlab/psxrec/emu"
	"github.com/sarchlab/psxrec/loader"
)

var (
	configPath = flag.String("config", "", "Path to dynarec configuration JSON file")
	ram8MB     = flag.Bool("8mb", false, "Enable the 8MB RAM expansion")
	biosPath   = flag.String("bios", "", "Path to a BIOS image")
	interp     = flag.Bool("interp", false, "Run on the interpreter instead of the recompiler")
	cycles     = flag.Uint64("cycles", 100_000_000, "Guest instructions to run (0 = until interrupted)")
	verbose    = flag.Bool("v", false, "Verbose output")
	dump       = flag.Bool("dump", false, "Dump registers and statistics on exit")
	cpuProfile = flag.String("cpuprofile", "", "write cpu profile to file")
)

// options is the parsed command line.
type options struct {
	configPath  string
	ram8MB      bool
	biosPath    string
	programPath string
	interp      bool
	cycles      uint64
	verbose     bool
	dump        bool
	profile     bool
}

func main() {
	flag.Parse()

	if flag.NArg() < 1 && *biosPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: psxrec [options] <program.exe|program.elf>\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		os.Exit(1)
	}

	if *cpuProfile != "" {
		f, err := os.Create(*cpuProfile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer func() { _ = f.Close() }()

		if err := pprof.StartCPUProfile(f); err != nil {
			fmt.Fprintf(os.Stderr, "Error starting CPU profile: %v\n", err)
			os.Exit(1)
		}
		defer pprof.StopCPUProfile()
	}

	opts := options{
		configPath:  *configPath,
		ram8MB:      *ram8MB,
		biosPath:    *biosPath,
		programPath: flag.Arg(0),
		interp:      *interp,
		cycles:      *cycles,
		verbose:     *verbose,
		dump:        *dump,
		profile:     *cpuProfile != "",
	}

	if err := run(opts, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		pprof.StopCPUProfile()
		os.Exit(1)
	}
}

// run builds the machine described by opts and executes it.
func run(opts options, stdout, stderr io.Writer) error {
	if opts.programPath == "" && opts.biosPath == "" {
		return errors.New("nothing to run: give a program or a BIOS image")
	}

	config := dynarec.DefaultConfig()
	if opts.configPath != "" {
		var err error
		config, err = dynarec.LoadConfig(opts.configPath)
		if err != nil {
			return err
		}
	}
	if opts.ram8MB {
		config.RAMExpansion = true
	}

	bus, err := emu.NewBus(config.RAMSize())
	if err != nil {
		return err
	}
	regs := &emu.RegFile{}
	regs.Reset()

	if opts.biosPath != "" {
		if err := loader.LoadBIOS(bus, opts.biosPath); err != nil {
			return err
		}
	}

	if opts.programPath != "" {
		prog, err := loader.Load(opts.programPath)
		if err != nil {
			return fmt.Errorf("loading program: %w", err)
		}
		if err := prog.Install(bus, regs); err != nil {
			return err
		}
		// A side-loaded program runs as if the BIOS had booted it.
		regs.CP0[emu.CP0SR] &^= emu.SRBEV

		if opts.verbose {
			fmt.Fprintf(stdout, "Loaded: %s\n", opts.programPath)
			fmt.Fprintf(stdout, "Entry point: 0x%08X\n", prog.Entry)
			fmt.Fprintf(stdout, "Segments: %d\n", len(prog.Segments))
		}
	}

	var core emu.Core
	var rec *dynarec.Dynarec
	if opts.interp {
		core = emu.NewEmulator(
			emu.WithRegFile(regs),
			emu.WithBus(bus),
			emu.WithStderr(stderr),
		)
	} else {
		dynOpts := []dynarec.Option{
			dynarec.WithRegFile(regs),
			dynarec.WithMessageWriter(stderr),
		}
		if opts.profile {
			dynOpts = append(dynOpts, dynarec.WithProfiler(newLabelProfiler()))
		}
		rec = dynarec.New(config, bus, dynOpts...)
		core = rec
	}

	if err := core.Init(); err != nil {
		return err
	}
	defer core.Shutdown()

	interrupt := make(chan os.Signal, 1)
	done := make(chan struct{})
	signal.Notify(interrupt, os.Interrupt)
	defer func() {
		signal.Stop(interrupt)
		close(done)
	}()
	go func() {
		select {
		case <-interrupt:
			core.Stop()
		case <-done:
		}
	}()

	if opts.cycles == 0 {
		err = core.Execute()
	} else {
		err = core.RunFor(opts.cycles)
	}
	if err != nil {
		return err
	}

	if opts.verbose {
		fmt.Fprintf(stdout, "\nInstructions executed: %d\n", core.Cycles())
		fmt.Fprintf(stdout, "Final PC: 0x%08X\n", regs.PC)
		if rec != nil {
			stats := rec.Stats()
			fmt.Fprintf(stdout, "Blocks compiled: %d\n", stats.BlocksCompiled)
			fmt.Fprintf(stdout, "Cache hits: %d\n", stats.CacheHits)
			fmt.Fprintf(stdout, "Code bytes: %d\n", stats.CodeBytes)
		}
	}

	if opts.dump {
		dumpState(stdout, regs, rec)
	}

	return nil
}

// cpuState is the part of the register file worth dumping.
type cpuState struct {
	PC  uint32
	GPR [32]uint32
	HI  uint32
	LO  uint32
	SR  uint32
	EPC uint32
}

func dumpState(w io.Writer, regs *emu.RegFile, rec *dynarec.Dynarec) {
	cfg := spew.ConfigState{
		Indent:                  "  ",
		DisablePointerAddresses: true,
		DisableCapacities:       true,
	}

	cfg.Fdump(w, cpuState{
		PC:  regs.PC,
		GPR: regs.GPR,
		HI:  regs.HI,
		LO:  regs.LO,
		SR:  regs.CP0[emu.CP0SR],
		EPC: regs.CP0[emu.CP0EPC],
	})
	if rec != nil {
		cfg.Fdump(w, rec.Stats())
	}
}

// labelProfiler tags the running goroutine with pprof labels so that CPU
// profiles split recompiler time into dispatch and compile zones.
type labelProfiler struct {
	stack []context.Context
}

func newLabelProfiler() *labelProfiler {
	return &labelProfiler{stack: []context.Context{context.Background()}}
}

func (p *labelProfiler) Zone(name string) func() {
	ctx := pprof.WithLabels(p.stack[len(p.stack)-1], pprof.Labels("zone", name))
	p.stack = append(p.stack, ctx)
	pprof.SetGoroutineLabels(ctx)

	return func() {
		p.stack = p.stack[:len(p.stack)-1]
		pprof.SetGoroutineLabels(p.stack[len(p.stack)-1])
	}
}
