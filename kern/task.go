package kern

import (
	"fmt"
	"sync"

	"github.com/Moonlight-Companies/gologger/coloransi"
	"github.com/Moonlight-Companies/gologger/logger"
)

// TaskAPI is the privileged Mach surface the library runs on. The darwin
// implementation lives in the machkern package; tests substitute doubles.
//
// TaskForPID and HostSpecialPort may return a port together with a non-nil
// error: the underlying API has been observed to report failure while
// handing back a usable port and vice versa, so callers must judge both
// signals. The verdict logic lives in verifyPort.
type TaskAPI interface {
	// TaskForPID requests the task port for the given process id from
	// the calling process. PID 0 names the kernel task.
	TaskForPID(pid int) (Port, error)

	// HostSpecialPort queries a host special port slot.
	HostSpecialPort(which int) (Port, error)

	// NextRegion reports the first memory region of the task at or above
	// addr. An error means enumeration is exhausted.
	NextRegion(task Port, addr Address) (Region, error)

	// ReadOverwrite copies up to len(buf) bytes out of the task's address
	// space starting at addr, returning the count actually copied.
	ReadOverwrite(task Port, addr Address, buf []byte) (int, error)

	// Write copies data into the task's address space at addr, returning
	// the count actually written.
	Write(task Port, addr Address, data []byte) (int, error)
}

// Kernel provides read/write/search access to the kernel task's address
// space. The task port and the discovered load base are each resolved at
// most once per Kernel and then served from cache.
type Kernel struct {
	api TaskAPI
	cfg Config
	log *logger.Logger

	mu     sync.Mutex
	task   Port
	taskOK bool
	base   Address
	baseOK bool
}

// New creates a Kernel on top of the given privileged API.
func New(api TaskAPI, cfg Config) *Kernel {
	return &Kernel{
		api: api,
		cfg: cfg.withDefaults(),
		log: logger.NewLogger(coloransi.Color(coloransi.ColorPurple, coloransi.ColorOrange, "kernel-task")),
	}
}

// Config returns the constants this Kernel was built with.
func (k *Kernel) Config() Config {
	return k.cfg
}

// Task returns the kernel task port, acquiring it on first use. A port
// obtained once is trusted for the rest of the process lifetime.
func (k *Kernel) Task() (Port, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.taskLocked()
}

func (k *Kernel) taskLocked() (Port, error) {
	if k.taskOK {
		return k.task, nil
	}

	k.log.Debugln("Trying task_for_pid(0)")
	port, err := k.api.TaskForPID(0)
	if verr := verifyPort(k.log, port, err); verr != nil {
		k.log.Debugln("Trying host special port", k.cfg.SpecialPort)
		port, err = k.api.HostSpecialPort(k.cfg.SpecialPort)
		if verr = verifyPort(k.log, port, err); verr != nil {
			return PortNull, fmt.Errorf("%w: %v", ErrAcquisition, verr)
		}
	}

	k.log.Infoln("Kernel task port acquired:", port.String())
	k.task = port
	k.taskOK = true
	return port, nil
}

// verifyPort folds the two acquisition signals into one verdict. A usable
// port wins over a reported error; an unusable port loses even when the
// call claimed success.
func verifyPort(log *logger.Logger, port Port, err error) error {
	if port.Valid() {
		if err != nil {
			log.Debugln("Got a valid port despite error:", err)
		}
		return nil
	}
	if err == nil {
		log.Debugln("Call reported success but port", port.String(), "is invalid")
		return fmt.Errorf("call succeeded with invalid port %s", port)
	}
	return err
}
