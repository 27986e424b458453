package kernel

import "testing"

func TestBuiltinKernelsAreRegistered(t *testing.T) {
	for _, name := range []string{"identity", "gain"} {
		if _, ok := Lookup(name); !ok {
			t.Errorf("expected %q to be registered", name)
		}
	}
}

func TestLookupUnknownKernel(t *testing.T) {
	if _, ok := Lookup("does-not-exist"); ok {
		t.Error("expected lookup of unknown kernel to fail")
	}
}

func TestNamesIncludesBuiltins(t *testing.T) {
	names := Names()
	seen := map[string]bool{}
	for _, n := range names {
		seen[n] = true
	}
	if !seen["identity"] || !seen["gain"] {
		t.Errorf("Names() = %v, want to include identity and gain", names)
	}
}

func TestIdentityKernelPassesThrough(t *testing.T) {
	factory, ok := Lookup("identity")
	if !ok {
		t.Fatal("identity kernel not registered")
	}
	k := factory()

	outW, outC, err := k.Init(Config{WindowLengthSamples: 4, Channels: 2})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	if outW != 4 || outC != 2 {
		t.Errorf("got dims (%d,%d), want (4,2)", outW, outC)
	}

	input := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	output := make([]float32, 8)
	if err := k.Process(input, output); err != nil {
		t.Fatalf("Process: %v", err)
	}
	for i := range input {
		if output[i] != input[i] {
			t.Errorf("output[%d] = %v, want %v", i, output[i], input[i])
		}
	}
	k.Teardown()
}

func TestGainKernelScalesByParsedFactor(t *testing.T) {
	factory, ok := Lookup("gain")
	if !ok {
		t.Fatal("gain kernel not registered")
	}
	k := factory()

	if _, _, err := k.Init(Config{WindowLengthSamples: 2, Channels: 1, Params: "factor=2.5"}); err != nil {
		t.Fatalf("Init: %v", err)
	}

	input := []float32{1, 2}
	output := make([]float32, 2)
	if err := k.Process(input, output); err != nil {
		t.Fatalf("Process: %v", err)
	}
	if output[0] != 2.5 || output[1] != 5 {
		t.Errorf("got %v, want [2.5 5]", output)
	}
}

func TestGainKernelDefaultsToOneWithoutFactor(t *testing.T) {
	factory, _ := Lookup("gain")
	k := factory()

	if _, _, err := k.Init(Config{WindowLengthSamples: 1, Channels: 1, Params: ""}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	input := []float32{42}
	output := make([]float32, 1)
	_ = k.Process(input, output)
	if output[0] != 42 {
		t.Errorf("got %v, want 42 (factor defaults to 1.0)", output[0])
	}
}

func TestGainKernelIgnoresUnparseableParams(t *testing.T) {
	factory, _ := Lookup("gain")
	k := factory()
	if _, _, err := k.Init(Config{Params: "factor=notanumber"}); err != nil {
		t.Fatalf("Init: %v", err)
	}
	input := []float32{10}
	output := make([]float32, 1)
	_ = k.Process(input, output)
	if output[0] != 10 {
		t.Errorf("got %v, want 10 (unparseable factor falls back to 1.0)", output[0])
	}
}
