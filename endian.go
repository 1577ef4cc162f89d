// endian.go - big-endian load/store and overflow-checked numeric helpers.
//
// Every value that lives in guest memory or on disk in an XCOFF/Big-AR
// structure is big-endian; every value inside this program's own data
// structures is host-order. This file is the only place that crosses that
// boundary: convert at the boundary, never deeper.
package main

import (
	"encoding/binary"
	"fmt"
)

func be16(b []byte) uint16 { return binary.BigEndian.Uint16(b) }
func be32(b []byte) uint32 { return binary.BigEndian.Uint32(b) }
func be64(b []byte) uint64 { return binary.BigEndian.Uint64(b) }

func putBE16(b []byte, v uint16) { binary.BigEndian.PutUint16(b, v) }
func putBE32(b []byte, v uint32) { binary.BigEndian.PutUint32(b, v) }
func putBE64(b []byte, v uint64) { binary.BigEndian.PutUint64(b, v) }

// ErrOverflow is returned by the overflow-checked arithmetic and ASCII
// decimal parsing helpers below.
var ErrOverflow = fmt.Errorf("overflow")

// addU32 returns a+b, failing if the sum would wrap past 2^32-1. Region
// sizing throughout the memory manager goes through this instead of bare
// addition: any integer overflow on region sizing is a fatal host error.
func addU32(a, b uint32) (uint32, error) {
	sum := a + b
	if sum < a {
		return 0, ErrOverflow
	}
	return sum, nil
}

func mulU32(a, b uint32) (uint32, error) {
	if a == 0 || b == 0 {
		return 0, nil
	}
	p := a * b
	if p/a != b {
		return 0, ErrOverflow
	}
	return p, nil
}

// alignUp rounds v up to the next multiple of align, which must be a power
// of two. Used for page-aligning section sizes.
func alignUp(v, align uint32) (uint32, error) {
	mask := align - 1
	sum, err := addU32(v, mask)
	if err != nil {
		return 0, err
	}
	return sum &^ mask, nil
}

// parseDecimalASCII parses an unsigned base-10 integer from a fixed-width,
// space-padded (not NUL-padded) ASCII field, as used throughout Big-AR
// headers. It is deliberately hand-rolled rather than using
// strconv: it must reject anything other than '0'..'9', terminate at the
// first ASCII space (trailing padding, not a digit), and detect overflow
// before it occurs rather than after the fact.
func parseDecimalASCII(field []byte) (uint64, error) {
	var v uint64
	seenDigit := false
	for _, c := range field {
		if c == ' ' {
			break
		}
		if c < '0' || c > '9' {
			return 0, fmt.Errorf("parseDecimalASCII: invalid byte %q in field %q", c, field)
		}
		d := uint64(c - '0')
		if v > (^uint64(0)-d)/10 {
			return 0, ErrOverflow
		}
		v = v*10 + d
		seenDigit = true
	}
	if !seenDigit {
		return 0, fmt.Errorf("parseDecimalASCII: no digits in field %q", field)
	}
	return v, nil
}

func parseDecimalASCII32(field []byte) (uint32, error) {
	v, err := parseDecimalASCII(field)
	if err != nil {
		return 0, err
	}
	if v > 0xFFFFFFFF {
		return 0, ErrOverflow
	}
	return uint32(v), nil
}

// formatDecimalASCII is the inverse of parseDecimalASCII, used by tests to
// check the round-trip property.
func formatDecimalASCII(v uint64) string {
	return fmt.Sprintf("%d", v)
}
