// Package kern provides read, write and search access to the running
// kernel's virtual address space through a previously obtained Mach
// kernel task port.
package kern

import (
	"bytes"
	"fmt"
)

// Address is a virtual address in the kernel task's address space.
type Address uint64

func (a Address) String() string {
	return fmt.Sprintf("0x%X", uint64(a))
}

// Size is a byte count within the kernel task's address space.
type Size uint64

func (s Size) String() string {
	return fmt.Sprintf("%d bytes", uint64(s))
}

// Port is a Mach port name. The zero value is MACH_PORT_NULL.
type Port uint32

const (
	PortNull Port = 0
	PortDead Port = 0xFFFFFFFF
)

// Valid reports whether the port name is syntactically usable
// (MACH_PORT_VALID: neither null nor dead).
func (p Port) Valid() bool {
	return p != PortNull && p != PortDead
}

func (p Port) String() string {
	return fmt.Sprintf("0x%08X", uint32(p))
}

// Protection bits as reported for a kernel memory region (vm_prot_t).
const (
	ProtRead    = 1 << 0
	ProtWrite   = 1 << 1
	ProtExecute = 1 << 2
)

// Region describes one contiguous region of the kernel task's address
// space as reported by a single enumeration call.
type Region struct {
	Start Address
	Size  Size
	Prot  int
}

// End returns the exclusive end address of the region.
func (r Region) End() Address {
	return r.Start + Address(r.Size)
}

func (r Region) IsReadable() bool {
	return r.Prot&ProtRead != 0
}

func (r Region) IsWritable() bool {
	return r.Prot&ProtWrite != 0
}

func (r Region) IsExecutable() bool {
	return r.Prot&ProtExecute != 0
}

func (r Region) String() string {
	rwx := []byte("---")
	if r.IsReadable() {
		rwx[0] = 'r'
	}
	if r.IsWritable() {
		rwx[1] = 'w'
	}
	if r.IsExecutable() {
		rwx[2] = 'x'
	}
	return fmt.Sprintf("%s-%s %s", r.Start, r.End(), rwx)
}

// AOB (Array of Bytes) is a pattern to search for in kernel memory.
// A 0xFF mask byte means exact match, 0x00 means wildcard. An empty
// mask matches every pattern byte exactly.
type AOB struct {
	Pattern []byte
	Mask    []byte
}

func NewAOB(pattern, mask []byte) (AOB, error) {
	if len(mask) != 0 && len(mask) != len(pattern) {
		return AOB{}, fmt.Errorf("pattern and mask must be of the same length")
	}
	return AOB{Pattern: pattern, Mask: mask}, nil
}

// Exact returns an AOB that matches the needle byte-for-byte.
func Exact(needle []byte) AOB {
	return AOB{Pattern: needle}
}

// IsExact reports whether the pattern contains no wildcard bytes.
func (aob AOB) IsExact() bool {
	if len(aob.Mask) == 0 {
		return true
	}
	return !bytes.Contains(aob.Mask, []byte{0x00})
}

// matchAt reports whether the pattern matches data at offset i.
func (aob AOB) matchAt(data []byte, i int) bool {
	for j := 0; j < len(aob.Pattern); j++ {
		if len(aob.Mask) != 0 && aob.Mask[j] == 0 {
			continue
		}
		if data[i+j] != aob.Pattern[j] {
			return false
		}
	}
	return true
}
