package kern

import (
	"fmt"
	"os"
)

// DumpRange reads [start, end) of kernel memory and writes the bytes
// actually transferred to path, returning their count. A short count
// means the read stopped early; the file still holds the prefix.
func (k *Kernel) DumpRange(path string, start, end Address) (int, error) {
	if end < start {
		return 0, ErrInvalidRange
	}

	buf := make([]byte, end-start)
	n, err := k.Read(start, buf)
	if err != nil {
		return 0, err
	}

	if err := os.WriteFile(path, buf[:n], 0o644); err != nil {
		return 0, fmt.Errorf("failed to write dump file: %w", err)
	}

	k.log.Infoln("Dumped", n, "bytes from", start.String(), "to", path)
	return n, nil
}
