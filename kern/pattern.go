package kern

import "bytes"

// FindPattern searches [start, end) of kernel memory for the first exact
// occurrence of needle and returns its absolute address. It returns 0 when
// the needle is absent, the range is empty or inverted, or the underlying
// read transfers nothing — a caller cannot tell "no match" from "read
// failed", which is accepted here.
func (k *Kernel) FindPattern(start, end Address, needle []byte) Address {
	if end <= start || len(needle) == 0 {
		return 0
	}

	buf := make([]byte, end-start)
	n, err := k.Read(start, buf)
	if err != nil || n == 0 {
		return 0
	}

	idx := bytes.Index(buf[:n], needle)
	if idx < 0 {
		return 0
	}
	return start + Address(idx)
}

// Scan searches [start, end) for every occurrence of the pattern,
// honoring wildcard mask bytes, and returns the absolute addresses of
// all matches.
func (k *Kernel) Scan(start, end Address, aob AOB) ([]Address, error) {
	if end < start {
		return nil, ErrInvalidRange
	}
	if len(aob.Pattern) == 0 || Size(len(aob.Pattern)) > Size(end-start) {
		return nil, nil
	}
	if len(aob.Mask) != 0 && len(aob.Mask) != len(aob.Pattern) {
		return nil, ErrInvalidRange
	}

	buf := make([]byte, end-start)
	n, err := k.Read(start, buf)
	if err != nil {
		return nil, err
	}
	data := buf[:n]

	var results []Address
	if aob.IsExact() {
		for off := 0; ; {
			idx := bytes.Index(data[off:], aob.Pattern)
			if idx < 0 {
				break
			}
			results = append(results, start+Address(off+idx))
			off += idx + 1
		}
		return results, nil
	}

	for i := 0; i <= len(data)-len(aob.Pattern); i++ {
		if aob.matchAt(data, i) {
			results = append(results, start+Address(i))
		}
	}
	return results, nil
}
