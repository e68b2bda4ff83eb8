package kern

import (
	"errors"
	"fmt"
	"sort"
)

// mapping is a readable/writable span of fake kernel memory.
type mapping struct {
	start Address
	data  []byte
}

// fakeAPI implements TaskAPI against in-process backing memory, with
// call counting and fault injection.
type fakeAPI struct {
	taskPort  Port
	taskErr   error
	taskCalls int

	specialPort  Port
	specialErr   error
	specialCalls int

	regions     []Region
	regionCalls int

	mem []mapping

	readCalls     int
	failReadAfter int // reads beyond this many calls fail; 0 = never

	writeCalls     int
	failWriteAfter int
}

func (f *fakeAPI) TaskForPID(pid int) (Port, error) {
	f.taskCalls++
	return f.taskPort, f.taskErr
}

func (f *fakeAPI) HostSpecialPort(which int) (Port, error) {
	f.specialCalls++
	return f.specialPort, f.specialErr
}

func (f *fakeAPI) NextRegion(task Port, addr Address) (Region, error) {
	f.regionCalls++
	var candidates []Region
	for _, r := range f.regions {
		if r.End() > addr {
			candidates = append(candidates, r)
		}
	}
	if len(candidates) == 0 {
		return Region{}, errors.New("no region at or above address")
	}
	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].Start < candidates[j].Start
	})
	return candidates[0], nil
}

func (f *fakeAPI) ReadOverwrite(task Port, addr Address, buf []byte) (int, error) {
	f.readCalls++
	if f.failReadAfter > 0 && f.readCalls > f.failReadAfter {
		return 0, errors.New("injected read failure")
	}
	for _, m := range f.mem {
		end := m.start + Address(len(m.data))
		if addr >= m.start && addr < end {
			n := copy(buf, m.data[addr-m.start:])
			return n, nil
		}
	}
	return 0, fmt.Errorf("unmapped address %s", addr)
}

func (f *fakeAPI) Write(task Port, addr Address, data []byte) (int, error) {
	f.writeCalls++
	if f.failWriteAfter > 0 && f.writeCalls > f.failWriteAfter {
		return 0, errors.New("injected write failure")
	}
	for _, m := range f.mem {
		end := m.start + Address(len(m.data))
		if addr >= m.start && addr < end {
			n := copy(m.data[addr-m.start:], data)
			return n, nil
		}
	}
	return 0, fmt.Errorf("unmapped address %s", addr)
}

// workingFake returns a fake whose task_for_pid path succeeds.
func workingFake() *fakeAPI {
	return &fakeAPI{taskPort: Port(0x903)}
}
