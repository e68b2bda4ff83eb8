//go:build darwin && cgo

// Package machkern implements kern.TaskAPI on top of the Mach kernel
// interface. It assumes the process already holds whatever privilege the
// platform demands for task_for_pid(0); obtaining that privilege is out
// of scope here.
package machkern

/*
#include <mach/mach.h>
#include <mach/mach_error.h>
#include <mach/mach_traps.h>
#include <mach/vm_map.h>
#include <mach/vm_region.h>

// mach_task_self/mach_host_self are macros, and the port typedefs
// (mach_port_name_t, host_priv_t) are distinct types to cgo; keep these
// calls on the C side.
static kern_return_t
kmem_task_for_pid(int pid, mach_port_t *task)
{
	return task_for_pid(mach_task_self(), pid, task);
}

static kern_return_t
kmem_host_special_port(int which, mach_port_t *port)
{
	return host_get_special_port(mach_host_self(), HOST_LOCAL_NODE, which, port);
}

static kern_return_t
kmem_next_region(task_t task, vm_address_t *addr, vm_size_t *size, vm_prot_t *prot)
{
	vm_region_submap_info_data_64_t info;
	mach_msg_type_number_t count = VM_REGION_SUBMAP_INFO_COUNT_64;
	natural_t depth = 0;
	kern_return_t kr = vm_region_recurse_64(task, addr, size, &depth,
		(vm_region_info_t)&info, &count);
	if (kr == KERN_SUCCESS) {
		*prot = info.protection;
	}
	return kr;
}

// xnu takes the destination as a vm_address_t; keep the unsafe cast on
// the C side.
static kern_return_t
kmem_read_overwrite(task_t task, vm_address_t addr, vm_size_t size, void *buf, vm_size_t *out)
{
	return vm_read_overwrite(task, addr, size, (vm_address_t)buf, out);
}

static kern_return_t
kmem_write(task_t task, vm_address_t addr, void *buf, mach_msg_type_number_t size)
{
	return vm_write(task, addr, (vm_offset_t)buf, size);
}
*/
import "C"

import (
	"fmt"
	"unsafe"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
	"golang.org/x/sys/unix"

	"kmem/kern"
)

// API is the live Mach implementation of kern.TaskAPI.
type API struct {
	log *logger.Logger
}

func New() *API {
	return &API{
		log: logger.NewLogger(coloransi.Color(coloransi.ColorTeal, coloransi.ColorOrange, "mach")),
	}
}

// machError converts a kern_return_t into a Go error, nil on
// KERN_SUCCESS.
func machError(call string, kr C.kern_return_t) error {
	if kr == C.KERN_SUCCESS {
		return nil
	}
	return fmt.Errorf("%s: %s (0x%08x)", call, C.GoString(C.mach_error_string(kr)), uint32(kr))
}

// TaskForPID requests the task port for pid from our own task. Note the
// port is returned alongside any error: the caller judges both signals.
func (a *API) TaskForPID(pid int) (kern.Port, error) {
	var task C.mach_port_t
	kr := C.kmem_task_for_pid(C.int(pid), &task)
	err := machError("task_for_pid", kr)
	if err != nil && pid == 0 && unix.Geteuid() != 0 {
		a.log.Infoln("task_for_pid(0) failed without euid 0; root or a kernel-task entitlement is required")
	}
	return kern.Port(task), err
}

// HostSpecialPort queries a non-standard host special port slot; some
// exploit payloads stash the kernel task port there.
func (a *API) HostSpecialPort(which int) (kern.Port, error) {
	var port C.mach_port_t
	kr := C.kmem_host_special_port(C.int(which), &port)
	return kern.Port(port), machError("host_get_special_port", kr)
}

// NextRegion reports the first region of the task's address space at or
// above addr.
func (a *API) NextRegion(task kern.Port, addr kern.Address) (kern.Region, error) {
	var (
		caddr = C.vm_address_t(addr)
		csize C.vm_size_t
		cprot C.vm_prot_t
	)
	kr := C.kmem_next_region(C.task_t(task), &caddr, &csize, &cprot)
	if err := machError("vm_region_recurse_64", kr); err != nil {
		return kern.Region{}, err
	}
	return kern.Region{
		Start: kern.Address(caddr),
		Size:  kern.Size(csize),
		Prot:  int(cprot),
	}, nil
}

// ReadOverwrite copies up to len(buf) bytes out of the task's address
// space. The count actually copied is valid even on error.
func (a *API) ReadOverwrite(task kern.Port, addr kern.Address, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	var out C.vm_size_t
	kr := C.kmem_read_overwrite(C.task_t(task), C.vm_address_t(addr),
		C.vm_size_t(len(buf)), unsafe.Pointer(&buf[0]), &out)
	return int(out), machError("vm_read_overwrite", kr)
}

// Write copies data into the task's address space at addr. vm_write is
// all-or-nothing, so success means the full length landed.
func (a *API) Write(task kern.Port, addr kern.Address, data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}
	kr := C.kmem_write(C.task_t(task), C.vm_address_t(addr),
		unsafe.Pointer(&data[0]), C.mach_msg_type_number_t(len(data)))
	if err := machError("vm_write", kr); err != nil {
		return 0, err
	}
	return len(data), nil
}
