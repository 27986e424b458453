// Package kernel defines the DSP kernel ABI the adapter session loads
// against. The original contract loads a dynamic library resolving
// init/process/teardown symbols; this package re-expresses that as a
// Go interface plus a name-keyed registry, per the re-architecture
// guidance for non-C targets: a static link table is equivalent and
// preferred.
package kernel

import "sync"

// Config carries the numeric parameters, opaque plugin params string,
// and calibration buffer passed to Init, mirroring the fields of the
// CONFIG wire payload.
type Config struct {
	SampleRateHz        uint32
	WindowLengthSamples uint32
	HopSamples          uint32
	Channels            uint32
	Params              string
	Calibration         []byte
}

// Kernel is the required three-function ABI: Init, Process, Teardown.
// Process must be pure, allocation-free, and deterministic per window.
type Kernel interface {
	// Init configures the kernel for a session and returns the
	// resolved output dimensions. A kernel that processes windows of
	// the same shape it receives may return zero for either dimension
	// to mean "same as input".
	Init(cfg Config) (outWindowSamples, outChannels uint32, err error)

	// Process runs one window. input and output are flat, channel-major
	// float32 slices sized by the dimensions negotiated at Init.
	Process(input, output []float32) error

	// Teardown frees any kernel state. It is called exactly once, after
	// the last Process call of a session.
	Teardown()
}

// Calibrator is an optional capability: kernels implementing it accept
// a calibration pass before Process is ever called.
type Calibrator interface {
	Calibrate(state []byte) error
}

var (
	mu       sync.RWMutex
	registry = map[string]func() Kernel{}
)

// Register adds a kernel factory under name, overwriting any existing
// registration. Intended to be called from package init functions of
// kernel implementations linked into the adapter binary.
func Register(name string, factory func() Kernel) {
	mu.Lock()
	defer mu.Unlock()
	registry[name] = factory
}

// Lookup returns the factory registered under name, if any.
func Lookup(name string) (factory func() Kernel, ok bool) {
	mu.RLock()
	defer mu.RUnlock()
	factory, ok = registry[name]
	return factory, ok
}

// Names returns the names of all currently registered kernels, in no
// particular order.
func Names() []string {
	mu.RLock()
	defer mu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	return names
}
