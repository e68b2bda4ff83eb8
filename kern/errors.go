package kern

import "errors"

var (
	// ErrAcquisition is returned when the kernel task port could not be
	// obtained via task_for_pid(0) or the host special port fallback.
	ErrAcquisition = errors.New("kernel task port unobtainable")

	// ErrNotFound is returned when the region scan exhausts the address
	// space without locating the kernel image, or when the header probe
	// cannot resolve a load base.
	ErrNotFound = errors.New("kernel base not found")

	// ErrAmbiguousBase is returned when valid executable headers exist at
	// both candidate offsets and nothing distinguishes them. This is an
	// environment fault; re-invoking will not help until the target is
	// restarted.
	ErrAmbiguousBase = errors.New("kernel header at both candidate offsets")

	// ErrInvalidRange is returned for a byte range whose end precedes its
	// start.
	ErrInvalidRange = errors.New("range end precedes start")
)
