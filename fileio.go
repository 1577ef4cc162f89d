// fileio.go - thin host-filesystem boundary shared by the XCOFF and Big-AR
// readers. Object and archive paths resolve directly through the host
// filesystem; there is no AIX filesystem emulation layer, so this is a
// direct os.ReadFile, not a VFS.
package main

import "os"

func readFileAll(path string) ([]byte, error) {
	return os.ReadFile(path)
}
