package kern

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// Read copies kernel memory starting at addr into buf. The request is
// split into chunks no larger than Config.MaxChunkSize because the
// underlying call misbehaves on large transfers.
//
// The returned error is non-nil only when the kernel task port cannot be
// acquired. A failing or zero-length chunk ends the transfer early and
// the count read so far is returned with a nil error; callers must treat
// any count short of len(buf) as a failure signal.
func (k *Kernel) Read(addr Address, buf []byte) (int, error) {
	task, err := k.Task()
	if err != nil {
		return 0, err
	}

	k.log.Debugln("Reading", addr.String(), "-", (addr + Address(len(buf))).String())

	total := 0
	for total < len(buf) {
		chunk := len(buf) - total
		if chunk > int(k.cfg.MaxChunkSize) {
			chunk = int(k.cfg.MaxChunkSize)
		}
		n, err := k.api.ReadOverwrite(task, addr+Address(total), buf[total:total+chunk])
		if err != nil || n == 0 {
			k.log.Debugln("Read stopped after", total, "bytes:", err)
			break
		}
		total += n
	}
	return total, nil
}

// ReadBytes allocates a buffer of the requested size, fills it via Read
// and returns the prefix actually read.
func (k *Kernel) ReadBytes(addr Address, size Size) ([]byte, error) {
	buf := make([]byte, size)
	n, err := k.Read(addr, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}

// Write copies data into kernel memory at addr, chunked the same way as
// Read and with the same failure shape: a short count with a nil error
// means the transfer stopped early.
func (k *Kernel) Write(addr Address, data []byte) (int, error) {
	task, err := k.Task()
	if err != nil {
		return 0, err
	}

	k.log.Debugln("Writing", addr.String(), "-", (addr + Address(len(data))).String())

	total := 0
	for total < len(data) {
		chunk := len(data) - total
		if chunk > int(k.cfg.MaxChunkSize) {
			chunk = int(k.cfg.MaxChunkSize)
		}
		n, err := k.api.Write(task, addr+Address(total), data[total:total+chunk])
		if err != nil || n == 0 {
			k.log.Debugln("Write stopped after", total, "bytes:", err)
			break
		}
		total += n
	}
	return total, nil
}

// readFull is a strict read used by the typed helpers: anything short of
// size is an error.
func (k *Kernel) readFull(addr Address, size Size) ([]byte, error) {
	buf := make([]byte, size)
	n, err := k.Read(addr, buf)
	if err != nil {
		return nil, err
	}
	if n < int(size) {
		return nil, fmt.Errorf("short read at %s: %d of %d bytes", addr, n, size)
	}
	return buf, nil
}

// ReadUint32 reads a little-endian 32-bit value from kernel memory.
func (k *Kernel) ReadUint32(addr Address) (uint32, error) {
	data, err := k.readFull(addr, 4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(data), nil
}

// ReadUint64 reads a little-endian 64-bit value from kernel memory.
func (k *Kernel) ReadUint64(addr Address) (uint64, error) {
	data, err := k.readFull(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(data), nil
}

// ReadPointer reads a kernel pointer from kernel memory.
func (k *Kernel) ReadPointer(addr Address) (Address, error) {
	v, err := k.ReadUint64(addr)
	return Address(v), err
}

// ReadStruct reads a fixed-layout structure from kernel memory. The same
// rules as binary.Read apply to out.
func (k *Kernel) ReadStruct(addr Address, out any) error {
	size := binary.Size(out)
	if size < 0 {
		return fmt.Errorf("value of type %T has no fixed size", out)
	}
	data, err := k.readFull(addr, Size(size))
	if err != nil {
		return err
	}
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, out)
}
