package kern

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// signatureRegionMin is the size a region must exceed to qualify as the
// kernel image mapping. The kernel maps over a GiB at the address where
// it maps itself, and that region carries no protection bits at all;
// together those two facts identify it.
const signatureRegionMin = Size(1024 * 1024 * 1024)

// MachHeader is the fixed-size probe read at each candidate offset. It is
// the 28-byte prefix shared by 32-bit and 64-bit Mach-O headers, which is
// enough for every field the disambiguation inspects.
type MachHeader struct {
	Magic      uint32
	CPUType    int32
	CPUSubtype int32
	FileType   uint32
	NCmds      uint32
	SizeOfCmds uint32
	Flags      uint32
}

const machHeaderSize = 28

func decodeHeader(raw []byte) (MachHeader, error) {
	var hdr MachHeader
	err := binary.Read(bytes.NewReader(raw), binary.LittleEndian, &hdr)
	return hdr, err
}

// headerPick is the outcome of comparing the two candidate headers.
type headerPick int

const (
	pickNone headerPick = iota
	pickPrimary
	pickSecondary
	pickAmbiguous
)

// pickHeader decides which of the two candidate headers is the kernel's.
// Magic alone usually decides; when both offsets carry the magic, the
// cputype and filetype fields break the tie. If they cannot, the layout
// is irresolvable.
func pickHeader(h1, h2 MachHeader, cfg Config) headerPick {
	m1 := h1.Magic == cfg.HeaderMagic
	m2 := h2.Magic == cfg.HeaderMagic
	switch {
	case m1 && m2:
		e1 := h1.CPUType == cfg.CPUType && h1.FileType == FileTypeExecute
		e2 := h2.CPUType == cfg.CPUType && h2.FileType == FileTypeExecute
		if e1 == e2 {
			return pickAmbiguous
		}
		if e1 {
			return pickPrimary
		}
		return pickSecondary
	case m1:
		return pickPrimary
	case m2:
		return pickSecondary
	default:
		return pickNone
	}
}

// Base returns the kernel image's load base address, locating it on first
// use. Once resolved the value is cached and never recomputed, even if a
// later scan would disagree. Failed attempts cache nothing.
func (k *Kernel) Base() (Address, error) {
	k.mu.Lock()
	defer k.mu.Unlock()

	if k.baseOK {
		return k.base, nil
	}

	task, err := k.taskLocked()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNotFound, err)
	}

	region, err := k.findSignatureRegion(task)
	if err != nil {
		return 0, err
	}

	base, err := k.resolveBase(task, region.Start)
	if err != nil {
		return 0, err
	}

	k.log.Infoln("Kernel base located at", base.String())
	k.base = base
	k.baseOK = true
	return base, nil
}

// findSignatureRegion walks the kernel task's regions from address 0
// until it hits the kernel image mapping.
func (k *Kernel) findSignatureRegion(task Port) (Region, error) {
	for addr := Address(0); ; {
		region, err := k.api.NextRegion(task, addr)
		if err != nil {
			k.log.Debugln("Region enumeration exhausted at", addr.String())
			return Region{}, fmt.Errorf("%w: no signature region below %s", ErrNotFound, addr)
		}
		k.log.Debugln("Region", region.String())

		if region.Size > signatureRegionMin && region.Prot&(ProtRead|ProtWrite|ProtExecute) == 0 {
			k.log.Infoln("Signature region found:", region.String())
			return region, nil
		}
		addr = region.End()
	}
}

// resolveBase probes the two candidate header offsets within the
// signature region, striding forward when neither is plausible. The
// stride loop is bounded by Config.MaxProbes.
func (k *Kernel) resolveBase(task Port, regionStart Address) (Address, error) {
	off1 := k.cfg.ImageOffset
	off2 := 2 * k.cfg.ImageOffset

	probe := regionStart
	for i := 0; i < k.cfg.MaxProbes; i++ {
		h1, err := k.readHeader(task, probe+off1)
		if err != nil {
			k.log.Debugln("Header read at", (probe + off1).String(), "failed:", err)
			return 0, fmt.Errorf("%w: header unreadable at primary offset", ErrNotFound)
		}

		h2, err := k.readHeader(task, probe+off2)
		if err != nil {
			// The secondary offset can lie beyond the mapped range
			// while the primary one is still the genuine header.
			if h1.Magic == k.cfg.HeaderMagic {
				k.log.Debugln("Secondary offset unreadable, primary magic matches")
				return probe + off1, nil
			}
			return 0, fmt.Errorf("%w: secondary offset unreadable, primary magic mismatch", ErrNotFound)
		}

		switch pickHeader(h1, h2, k.cfg) {
		case pickPrimary:
			k.log.Debugln("Header accepted at offset", off1.String())
			return probe + off1, nil
		case pickSecondary:
			k.log.Debugln("Header accepted at offset", off2.String())
			return probe + off2, nil
		case pickAmbiguous:
			k.log.Infoln("Executable headers at both candidate offsets, giving up")
			return 0, fmt.Errorf("%w: %w", ErrNotFound, ErrAmbiguousBase)
		case pickNone:
			probe += k.cfg.ProbeStride
			k.log.Debugln("No header, advancing probe to", probe.String())
		}
	}

	return 0, fmt.Errorf("%w: no header within %d probes of %s", ErrNotFound, k.cfg.MaxProbes, regionStart)
}

// readHeader performs one bounded read of a candidate header. The probe
// is far below the chunk ceiling, so it is a single underlying call.
func (k *Kernel) readHeader(task Port, addr Address) (MachHeader, error) {
	buf := make([]byte, machHeaderSize)
	n, err := k.api.ReadOverwrite(task, addr, buf)
	if err != nil {
		return MachHeader{}, err
	}
	if n < machHeaderSize {
		return MachHeader{}, fmt.Errorf("short header read: %d of %d bytes", n, machHeaderSize)
	}
	return decodeHeader(buf)
}
