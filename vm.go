// vm.go - component J: the VM orchestrator.
//
// Composes the memory manager, /unix shim, syscall registry/dispatcher,
// instruction-emulation assist, and dynamic linker against one driven
// cpu32.Core, loads the main executable, and runs it to completion. Mirrors
// coprocessor_manager.go's construction order: collaborators are built and
// wired before anything touches the driven core, then hooks are installed
// once, up front.
package main

import (
	"fmt"

	"github.com/intuitionamiga/aixrun/cpu32"
	"github.com/intuitionamiga/aixrun/milicode"
)

// Config gathers the orchestrator's inputs, one field per CLI flag plus the
// parsed guest argv.
type Config struct {
	Binary        string
	Args          []string
	LibSearchPath []string
	TraceSyscalls bool
	TraceLoader   bool
}

// VM is the fully wired emulator instance. Run drives it to the guest's
// _exit call, which terminates the host process directly -- there is no
// recoverable cancellation path.
type VM struct {
	cfg Config
	tr  *tracer

	core cpu32.Core
	mm   *MM

	unix       *UnixShim
	registry   *SyscallRegistry
	dispatcher *SyscallDispatcher
	insnEmu    *InsnEmu
	linker     *Linker
}

// milicodeMapper adapts *MM to milicode.Mapper: the milicode package cannot
// import package main (import cycle) or cpu32 (it has no business knowing
// about protection bits beyond "executable"), so this is the one place that
// bridges the two.
type milicodeMapper struct{ mm *MM }

func (a milicodeMapper) MapRegion(addr, size uint32) error {
	return a.mm.mapRegion(addr, size, cpu32.ProtRWX)
}

func (a milicodeMapper) WriteBytes(addr uint32, data []byte) error {
	return a.mm.WriteBytes(addr, data)
}

// NewVM wires every collaborator against core but does not touch guest
// memory yet; Run does that.
func NewVM(core cpu32.Core, cfg Config) (*VM, error) {
	lTr := newTracer("loader", cfg.TraceLoader)
	sTr := newTracer("syscalls", cfg.TraceSyscalls)
	mmTr := newTracer("mm", cfg.TraceLoader)
	unixTr := newTracer("unix", cfg.TraceLoader)
	emuTr := newTracer("insn_emu", true)
	vmTr := newTracer("vm", true)

	mm := newMM(core, mmTr)
	registry := newSyscallRegistry(mm, sTr)
	unix := newUnixShim(mm, unixTr, registry)
	dispatcher := newSyscallDispatcher(mm, sTr, registry, cfg.TraceSyscalls)
	insnEmu := newInsnEmu(mm, emuTr)
	linker := newLinker(mm, lTr, unix, core, cfg.LibSearchPath)

	return &VM{
		cfg:        cfg,
		tr:         vmTr,
		core:       core,
		mm:         mm,
		unix:       unix,
		registry:   registry,
		dispatcher: dispatcher,
		insnEmu:    insnEmu,
		linker:     linker,
	}, nil
}

// Run installs every hook, maps the stack and milicode page, loads the main
// executable (transitively pulling in every library it imports), seats the
// CPU at the entry point, and drives it to completion.
func (v *VM) Run() error {
	if err := v.mm.installFaultHooks(); err != nil {
		return fmt.Errorf("vm: installing fault hooks: %w", err)
	}
	if err := v.dispatcher.install(v.core); err != nil {
		return fmt.Errorf("vm: installing syscall trampoline: %w", err)
	}
	if err := v.insnEmu.install(v.core); err != nil {
		return fmt.Errorf("vm: installing instruction-emulation hook: %w", err)
	}
	if err := milicode.Install(milicodeMapper{mm: v.mm}); err != nil {
		return fmt.Errorf("vm: installing milicode: %w", err)
	}

	envp := hostEnviron()
	if err := v.mm.initStack(append([]string{v.cfg.Binary}, v.cfg.Args...), envp); err != nil {
		return fmt.Errorf("vm: initializing stack: %w", err)
	}

	obj, err := v.linker.Load(v.cfg.Binary, "", true)
	if err != nil {
		return fmt.Errorf("vm: loading %q: %w", v.cfg.Binary, err)
	}

	fileEntry, err := obj.Image.entrypoint()
	if err != nil {
		return fmt.Errorf("vm: resolving entry point: %w", err)
	}
	entry := fileEntry + obj.Deltas[secText]

	v.tr.Tracef("entry=%#x toc=%#x argv0=%q", entry, obj.TOC, v.cfg.Binary)
	v.core.SetGPR(2, obj.TOC)
	v.core.SetPC(entry)

	return v.core.Run(entry, 0)
}
