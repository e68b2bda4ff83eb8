package kern

import (
	"bytes"
	"errors"
	"testing"
)

// patternFill returns size bytes of a deterministic non-repeating-ish
// sequence, so chunk boundaries that land wrong show up as mismatches.
func patternFill(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i*7 + i>>8)
	}
	return data
}

func TestReadChunking(t *testing.T) {
	const backing = 10000 // forces ceil(10000/4095) = 3 chunks
	cfg := Arm64Config()

	api := workingFake()
	api.mem = []mapping{{start: 0x1000, data: patternFill(backing)}}

	k := New(api, cfg)
	buf := make([]byte, backing)
	n, err := k.Read(0x1000, buf)
	if err != nil {
		t.Fatalf("unexpected error - %v", err)
	}
	if n != backing {
		t.Fatalf("expected %d bytes - got %d", backing, n)
	}
	if !bytes.Equal(buf, api.mem[0].data) {
		t.Fatal("read bytes differ from backing store")
	}

	expCalls := (backing + int(cfg.MaxChunkSize) - 1) / int(cfg.MaxChunkSize)
	if api.readCalls != expCalls {
		t.Fatalf("expected %d transfer calls - got %d", expCalls, api.readCalls)
	}
}

func TestReadStopsAtFailingChunk(t *testing.T) {
	const backing = 10000
	cfg := Arm64Config()

	api := workingFake()
	api.mem = []mapping{{start: 0x1000, data: patternFill(backing)}}
	api.failReadAfter = 1 // second chunk fails

	k := New(api, cfg)
	buf := make([]byte, backing)
	n, err := k.Read(0x1000, buf)
	if err != nil {
		t.Fatalf("short read must not surface an error - got %v", err)
	}
	if n != int(cfg.MaxChunkSize) {
		t.Fatalf("expected %d bytes from the surviving chunk - got %d", cfg.MaxChunkSize, n)
	}
	if !bytes.Equal(buf[:n], api.mem[0].data[:n]) {
		t.Fatal("surviving chunk bytes differ from backing store")
	}
}

func TestReadWithoutTaskPort(t *testing.T) {
	api := &fakeAPI{
		taskErr:    errors.New("(os/kern) failure"),
		specialErr: errors.New("(os/kern) not found"),
	}

	k := New(api, Arm64Config())
	n, err := k.Read(0x1000, make([]byte, 16))
	if !errors.Is(err, ErrAcquisition) {
		t.Fatalf("expected ErrAcquisition - got %v", err)
	}
	if n != 0 {
		t.Fatalf("expected 0 bytes - got %d", n)
	}
}

func TestReadDoesNotReacquireTask(t *testing.T) {
	api := workingFake()
	api.mem = []mapping{{start: 0x1000, data: patternFill(64)}}

	k := New(api, Arm64Config())
	for i := 0; i < 3; i++ {
		if _, err := k.Read(0x1000, make([]byte, 64)); err != nil {
			t.Fatalf("unexpected error - %v", err)
		}
	}
	if api.taskCalls != 1 {
		t.Fatalf("expected 1 acquisition attempt - got %d", api.taskCalls)
	}
}

func TestWriteChunking(t *testing.T) {
	const backing = 9000
	cfg := Arm64Config()

	api := workingFake()
	api.mem = []mapping{{start: 0x2000, data: make([]byte, backing)}}

	k := New(api, cfg)
	data := patternFill(backing)
	n, err := k.Write(0x2000, data)
	if err != nil {
		t.Fatalf("unexpected error - %v", err)
	}
	if n != backing {
		t.Fatalf("expected %d bytes - got %d", backing, n)
	}
	if !bytes.Equal(api.mem[0].data, data) {
		t.Fatal("backing store differs from written data")
	}

	expCalls := (backing + int(cfg.MaxChunkSize) - 1) / int(cfg.MaxChunkSize)
	if api.writeCalls != expCalls {
		t.Fatalf("expected %d transfer calls - got %d", expCalls, api.writeCalls)
	}
}

func TestWriteStopsAtFailingChunk(t *testing.T) {
	const backing = 9000
	cfg := Arm64Config()

	api := workingFake()
	api.mem = []mapping{{start: 0x2000, data: make([]byte, backing)}}
	api.failWriteAfter = 1

	k := New(api, cfg)
	n, err := k.Write(0x2000, patternFill(backing))
	if err != nil {
		t.Fatalf("short write must not surface an error - got %v", err)
	}
	if n != int(cfg.MaxChunkSize) {
		t.Fatalf("expected %d bytes from the surviving chunk - got %d", cfg.MaxChunkSize, n)
	}
}

func TestReadBytesReturnsPrefixActuallyRead(t *testing.T) {
	api := workingFake()
	api.mem = []mapping{{start: 0x1000, data: patternFill(100)}}

	k := New(api, Arm64Config())
	// Request runs past the end of the mapping; only the mapped prefix
	// comes back.
	data, err := k.ReadBytes(0x1000, 200)
	if err != nil {
		t.Fatalf("unexpected error - %v", err)
	}
	if len(data) != 100 {
		t.Fatalf("expected 100 bytes - got %d", len(data))
	}
	if !bytes.Equal(data, api.mem[0].data) {
		t.Fatal("read bytes differ from backing store")
	}
}

func TestReadTyped(t *testing.T) {
	api := workingFake()
	api.mem = []mapping{{start: 0x1000, data: []byte{
		0x78, 0x56, 0x34, 0x12,
		0xF0, 0xDE, 0xBC, 0x9A,
	}}}

	k := New(api, Arm64Config())

	v32, err := k.ReadUint32(0x1000)
	if err != nil {
		t.Fatalf("unexpected error - %v", err)
	}
	if v32 != 0x12345678 {
		t.Fatalf("expected 0x12345678 - got 0x%X", v32)
	}

	v64, err := k.ReadUint64(0x1000)
	if err != nil {
		t.Fatalf("unexpected error - %v", err)
	}
	if v64 != 0x9ABCDEF012345678 {
		t.Fatalf("expected 0x9ABCDEF012345678 - got 0x%X", v64)
	}

	ptr, err := k.ReadPointer(0x1000)
	if err != nil {
		t.Fatalf("unexpected error - %v", err)
	}
	if ptr != Address(0x9ABCDEF012345678) {
		t.Fatalf("expected 0x9ABCDEF012345678 - got %s", ptr)
	}
}

func TestReadTypedShortIsError(t *testing.T) {
	api := workingFake()
	api.mem = []mapping{{start: 0x1000, data: []byte{0x01, 0x02}}}

	k := New(api, Arm64Config())
	if _, err := k.ReadUint32(0x1000); err == nil {
		t.Fatal("expected an error for a short typed read")
	}
}

func TestReadStruct(t *testing.T) {
	cfg := Arm64Config()
	api := workingFake()
	api.mem = []mapping{{start: 0x1000, data: headerBytes(t, cfg.HeaderMagic, cfg.CPUType, FileTypeExecute)}}

	k := New(api, cfg)
	var hdr MachHeader
	if err := k.ReadStruct(0x1000, &hdr); err != nil {
		t.Fatalf("unexpected error - %v", err)
	}
	if hdr.Magic != cfg.HeaderMagic {
		t.Fatalf("expected magic 0x%X - got 0x%X", cfg.HeaderMagic, hdr.Magic)
	}
	if hdr.CPUType != cfg.CPUType {
		t.Fatalf("expected cputype 0x%X - got 0x%X", cfg.CPUType, hdr.CPUType)
	}
	if hdr.FileType != FileTypeExecute {
		t.Fatalf("expected filetype 0x%X - got 0x%X", FileTypeExecute, hdr.FileType)
	}
}
