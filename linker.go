// linker.go - component I: the dynamic linker.
//
// Recursively loads the main executable and every XCOFF object (standalone
// or Big-AR member) it transitively imports, lays each one out through the
// memory manager, fixes up exported symbol values, patches relocations, and
// resolves imports -- including delegating "unix" imports to the /unix shim
// and following passthrough (re-exported) imports to their ultimate owner.
//
// Grounded on coprocessor_manager.go's registry pattern: a worker is
// registered in the manager's table before its first instruction runs, the
// same push-before-resolve order a cyclic import graph requires (A imports
// from B, B re-exports back into A) so the lookup finds itself instead of
// recursing forever.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/intuitionamiga/aixrun/cpu32"
)

// LoadedObject is one XCOFF image successfully placed in the guest address
// space, whether the main executable or a library.
type LoadedObject struct {
	ID           string
	Image        *XcoffImage
	Archive      *Archive // non-nil if Image came from an archive member
	Deltas       [3]uint32
	TOC          uint32
	IsExecutable bool
}

// Linker owns the load graph (an explicitly constructed value threaded by
// reference, never a package-level global) plus references to the
// collaborators a load needs: the memory manager, the /unix shim, and the
// driven core (to seat r2 for the executable's entry TOC).
type Linker struct {
	mm            *MM
	tr            *tracer
	unix          *UnixShim
	core          cpu32.Core
	libSearchPath []string

	loaded []*LoadedObject
	byID   map[string]*LoadedObject
}

func newLinker(mm *MM, tr *tracer, unix *UnixShim, core cpu32.Core, libSearchPath []string) *Linker {
	return &Linker{
		mm:            mm,
		tr:            tr,
		unix:          unix,
		core:          core,
		libSearchPath: libSearchPath,
		byID:          make(map[string]*LoadedObject),
	}
}

func identifierFor(path, member string) string {
	if member == "" {
		return path
	}
	return path + "_" + member
}

// resolvePath turns a declared library name into a filesystem path. The
// main executable is opened exactly as given; a library name is searched
// for across libSearchPath, falling back to the bare name (cwd) if no
// search-path entry has it -- the eventual open failure reports the real
// error instead of this function inventing one.
func (l *Linker) resolvePath(path string, isExecutable bool) string {
	if isExecutable {
		return path
	}
	for _, dir := range l.libSearchPath {
		candidate := filepath.Join(dir, path)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return path
}

// sectionFor returns the 1-based section named by snum, or nil if snum is
// out of range (no such section: e.g. an object with no bss).
func sectionFor(img *XcoffImage, snum int16) *sectionHeader {
	if snum < 1 || int(snum) > len(img.Sections) {
		return nil
	}
	return &img.Sections[snum-1]
}

// sectionGeometry reads the text/data/bss vaddr+size triples the memory
// manager's allocators need, synthesizing a zero-size bss immediately past
// data when the object has none.
func sectionGeometry(img *XcoffImage) (textVaddr, tsize, dataVaddr, dsize, bssVaddr, bssSize uint32) {
	if ts := sectionFor(img, img.Opthdr.snText); ts != nil {
		textVaddr, tsize = ts.vaddr, ts.size
	}
	if ds := sectionFor(img, img.Opthdr.snData); ds != nil {
		dataVaddr, dsize = ds.vaddr, ds.size
	}
	if bs := sectionFor(img, img.Opthdr.snBSS); bs != nil {
		bssVaddr, bssSize = bs.vaddr, bs.size
	} else {
		bssVaddr = dataVaddr + dsize
	}
	return
}

// deltaIndexForSecnum maps an XCOFF 1-based section number onto the
// {text=0,data=1,bss=2} deltas index; AIX XCOFF32 objects always place
// .text/.data/.bss at section numbers 1/2/3. Any other section number (e.g.
// .loader itself) has no associated delta.
func deltaIndexForSecnum(secnum int16) (int, bool) {
	if secnum >= 1 && secnum <= 3 {
		return int(secnum - 1), true
	}
	return 0, false
}

// Load is the recursive entry point: opens path (directly, or as member of
// the Big-AR archive at path), allocates and writes its text/data/bss,
// records it in the load graph *before* resolving imports, then fixes up
// exports and relocations.
func (l *Linker) Load(path, member string, isExecutable bool) (*LoadedObject, error) {
	id := identifierFor(path, member)
	if obj, ok := l.byID[id]; ok {
		return obj, nil
	}

	img, arc, err := l.openObject(path, member, isExecutable)
	if err != nil {
		return nil, fmt.Errorf("linker: load %q: %w", id, err)
	}

	obj := &LoadedObject{ID: id, Image: img, Archive: arc, IsExecutable: isExecutable}

	textVaddr, tsize, dataVaddr, dsize, bssVaddr, bssSize := sectionGeometry(img)

	var deltas [3]uint32
	if isExecutable {
		deltas, err = l.mm.allocForMainExec(textVaddr, tsize, dataVaddr, dsize, bssVaddr, bssSize)
	} else {
		deltas, err = l.mm.allocForLibrary(textVaddr, tsize, dataVaddr, dsize, bssVaddr, bssSize)
	}
	if err != nil {
		return nil, fmt.Errorf("linker: alloc %q: %w", id, err)
	}
	obj.Deltas = deltas

	if ts := sectionFor(img, img.Opthdr.snText); ts != nil && tsize > 0 {
		if err := need(img.buf, int(ts.scnptr), int(tsize)); err != nil {
			return nil, fmt.Errorf("linker: %q: text section: %w", id, err)
		}
		if err := l.mm.writeText(textVaddr+deltas[secText], img.buf[ts.scnptr:ts.scnptr+tsize]); err != nil {
			return nil, err
		}
	}
	if ds := sectionFor(img, img.Opthdr.snData); ds != nil && dsize > 0 {
		if err := need(img.buf, int(ds.scnptr), int(dsize)); err != nil {
			return nil, fmt.Errorf("linker: %q: data section: %w", id, err)
		}
		if err := l.mm.writeData(dataVaddr+deltas[secData], img.buf[ds.scnptr:ds.scnptr+dsize]); err != nil {
			return nil, err
		}
	}

	obj.TOC = img.Opthdr.toc + deltas[secData]
	if isExecutable {
		l.core.SetGPR(2, obj.TOC)
	}

	// Push before resolving imports: a cyclic import graph (A imports from
	// B, B re-exports back into A) must find A already present.
	l.loaded = append(l.loaded, obj)
	l.byID[id] = obj

	l.fixupExports(obj)
	if err := l.relocate(obj); err != nil {
		return nil, err
	}

	l.tr.Tracef("loaded %q: text=%#x(+%#x) data=%#x(+%#x) bss(+%#x) toc=%#x",
		id, textVaddr, deltas[secText], dataVaddr, deltas[secData], deltas[secBSS], obj.TOC)
	l.tr.Tracef("%s", img.DebugDump())

	return obj, nil
}

func (l *Linker) openObject(path, member string, isExecutable bool) (*XcoffImage, *Archive, error) {
	resolved := l.resolvePath(path, isExecutable)
	if member == "" {
		img, err := openXcoff(resolved)
		return img, nil, err
	}
	arc, err := openArchive(resolved)
	if err != nil {
		return nil, nil, err
	}
	mem, err := arc.Extract(member)
	if err != nil {
		return nil, nil, err
	}
	img, err := loadXcoff(mem.Data)
	return img, arc, err
}

// fixupExports adjusts every exported symbol's stored value by its
// section's delta, exactly once, before any relocation reads it.
func (l *Linker) fixupExports(obj *LoadedObject) {
	for i := range obj.Image.Symbols {
		s := &obj.Image.Symbols[i]
		if !s.IsExport() {
			continue
		}
		if idx, ok := deltaIndexForSecnum(s.Scnum); ok {
			s.Value += obj.Deltas[idx]
		}
	}
}

// relocate walks every loader relocation: a symndx<3 entry adjusts the word
// already at the target by the referenced section's own delta (an absolute
// reference to a relocated section); any other symndx resolves (or reuses
// the already-fixed-up export value of) the loader symbol at symndx-3 and
// overwrites the target with it.
func (l *Linker) relocate(obj *LoadedObject) error {
	for i := range obj.Image.Relocs {
		r := &obj.Image.Relocs[i]
		idx, ok := deltaIndexForSecnum(int16(r.Rsecnm))
		if !ok {
			l.tr.Warnf("%q: relocation references out-of-range section %d, skipping", obj.ID, r.Rsecnm)
			continue
		}
		targetAddr := r.Vaddr + obj.Deltas[idx]

		if r.Symndx < 3 {
			cur, err := l.mm.ReadU32(targetAddr)
			if err != nil {
				return fmt.Errorf("linker: %q: relocation read at %#x: %w", obj.ID, targetAddr, err)
			}
			if err := l.mm.WriteU32(targetAddr, cur+obj.Deltas[r.Symndx]); err != nil {
				return fmt.Errorf("linker: %q: relocation write at %#x: %w", obj.ID, targetAddr, err)
			}
			continue
		}

		symIdx := int(r.Symndx) - 3
		if symIdx < 0 || symIdx >= len(obj.Image.Symbols) {
			return fmt.Errorf("linker: %q: relocation symndx %d out of range", obj.ID, r.Symndx)
		}
		sym := &obj.Image.Symbols[symIdx]

		var val uint32
		switch {
		case sym.IsImport():
			v, err := l.resolve(sym, obj)
			if err != nil {
				return err
			}
			val = v
		case sym.IsExport():
			val = sym.Value
		default:
			continue // no relocation needed
		}

		if err := l.mm.WriteU32(targetAddr, val); err != nil {
			return fmt.Errorf("linker: %q: relocation write at %#x: %w", obj.ID, targetAddr, err)
		}
	}
	return nil
}

// resolve resolves one L_IMPORT loader symbol owned by owner: delegates to
// the /unix shim when the import names the synthetic /unix pseudo-library,
// otherwise loads (or reuses) the declaring dependency and follows a
// passthrough (re-exported) import to its ultimate owner.
func (l *Linker) resolve(sym *LoaderSymbol, owner *LoadedObject) (uint32, error) {
	if sym.Ifile == 0 {
		// Import-ID 0 is the LIBPATH sentinel, not a module; the original
		// implementation's behavior here is a known punt, preserved
		// deliberately rather than invented.
		l.tr.Warnf("resolve: %q in %q references LIBPATH (import-id 0), returning poison address", sym.Name, owner.ID)
		return poisonAddr, nil
	}
	if int(sym.Ifile) >= len(owner.Image.ImportIDs) {
		return 0, fmt.Errorf("linker: %q: symbol %q has import-id %d out of range", owner.ID, sym.Name, sym.Ifile)
	}
	impid := owner.Image.ImportIDs[sym.Ifile]

	if impid.Base == "unix" {
		return l.unix.resolveUnixImport(sym)
	}

	id := identifierFor(impid.Base, impid.Member)
	dep, ok := l.byID[id]
	if !ok {
		var err error
		dep, err = l.Load(impid.Base, impid.Member, false)
		if err != nil {
			return 0, err
		}
	}

	for i := range dep.Image.Symbols {
		s := &dep.Image.Symbols[i]
		if s.Name != sym.Name || !s.IsExport() {
			continue
		}
		if s.IsImport() {
			return l.resolve(s, dep)
		}
		return s.Value, nil
	}
	return 0, fmt.Errorf("linker: unresolved symbol %q (dependency %q)", sym.Name, id)
}
