package kern

// Mach-O constants relevant to locating the kernel image header.
const (
	MagicMachO32 uint32 = 0xFEEDFACE
	MagicMachO64 uint32 = 0xFEEDFACF

	CPUTypeArm   int32 = 0x0000000C
	CPUTypeArm64 int32 = 0x0100000C

	// FileTypeExecute is MH_EXECUTE; the kernel image is the only
	// executable mapped into its own task.
	FileTypeExecute uint32 = 0x2
)

// Config carries the architecture-specific constants the locator and
// transfer engine are parameterized on.
type Config struct {
	// ImageOffset is the primary candidate offset of the Mach-O header
	// from the start of the signature region. The secondary candidate is
	// always twice this value; the offset doubled between OS revisions.
	ImageOffset Address

	// CPUType is the cputype field the kernel's header must carry.
	CPUType int32

	// HeaderMagic is the expected Mach-O magic.
	HeaderMagic uint32

	// ProbeStride is how far the header probe advances when neither
	// candidate offset holds a plausible header.
	ProbeStride Address

	// MaxProbes bounds the number of stride advances within the
	// signature region before the search gives up.
	MaxProbes int

	// MaxChunkSize is the largest transfer a single underlying call may
	// carry. Reads and writes larger than this are split.
	MaxChunkSize Size

	// SpecialPort is the host special port slot tried when
	// task_for_pid(0) fails.
	SpecialPort int
}

const (
	defaultProbeStride  = 0x100000
	defaultMaxProbes    = 64
	defaultMaxChunkSize = 0xFFF
	defaultSpecialPort  = 4
)

// Arm64Config returns the constants for 64-bit ARM kernels.
func Arm64Config() Config {
	return Config{
		ImageOffset:  0x2000,
		CPUType:      CPUTypeArm64,
		HeaderMagic:  MagicMachO64,
		ProbeStride:  defaultProbeStride,
		MaxProbes:    defaultMaxProbes,
		MaxChunkSize: defaultMaxChunkSize,
		SpecialPort:  defaultSpecialPort,
	}
}

// ArmConfig returns the constants for 32-bit ARM kernels.
func ArmConfig() Config {
	return Config{
		ImageOffset:  0x1000,
		CPUType:      CPUTypeArm,
		HeaderMagic:  MagicMachO32,
		ProbeStride:  defaultProbeStride,
		MaxProbes:    defaultMaxProbes,
		MaxChunkSize: defaultMaxChunkSize,
		SpecialPort:  defaultSpecialPort,
	}
}

// withDefaults fills zero-valued tunables so a partially specified
// Config still behaves.
func (c Config) withDefaults() Config {
	if c.ProbeStride == 0 {
		c.ProbeStride = defaultProbeStride
	}
	if c.MaxProbes == 0 {
		c.MaxProbes = defaultMaxProbes
	}
	if c.MaxChunkSize == 0 {
		c.MaxChunkSize = defaultMaxChunkSize
	}
	if c.SpecialPort == 0 {
		c.SpecialPort = defaultSpecialPort
	}
	return c
}
