package kernel

func init() {
	Register("identity", func() Kernel { return &identityKernel{} })
}

// identityKernel copies input to output unchanged. Useful as a
// round-trip sanity check for the transport and chunking layers.
type identityKernel struct {
	windowSamples uint32
	channels      uint32
}

func (k *identityKernel) Init(cfg Config) (uint32, uint32, error) {
	k.windowSamples = cfg.WindowLengthSamples
	k.channels = cfg.Channels
	return cfg.WindowLengthSamples, cfg.Channels, nil
}

func (k *identityKernel) Process(input, output []float32) error {
	copy(output, input)
	return nil
}

func (k *identityKernel) Teardown() {}
