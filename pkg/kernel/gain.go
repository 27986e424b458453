package kernel

import (
	"strconv"
	"strings"
)

func init() {
	Register("gain", func() Kernel { return &gainKernel{factor: 1.0} })
}

// gainKernel scales every sample by a fixed factor parsed from its
// plugin params string, e.g. "factor=2.5". An empty or unparseable
// params string defaults to a factor of 1.0 (no-op).
type gainKernel struct {
	factor float32
}

func (k *gainKernel) Init(cfg Config) (uint32, uint32, error) {
	k.factor = parseFactor(cfg.Params)
	return cfg.WindowLengthSamples, cfg.Channels, nil
}

func (k *gainKernel) Process(input, output []float32) error {
	for i, v := range input {
		output[i] = v * k.factor
	}
	return nil
}

func (k *gainKernel) Teardown() {}

func parseFactor(params string) float32 {
	for _, field := range strings.Split(params, ",") {
		field = strings.TrimSpace(field)
		k, v, found := strings.Cut(field, "=")
		if !found || strings.TrimSpace(k) != "factor" {
			continue
		}
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 32)
		if err != nil {
			continue
		}
		return float32(f)
	}
	return 1.0
}
