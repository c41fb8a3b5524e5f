// Package device places windows on the compute device used by the runner.
package device

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/SyedDaiam9101/forecast-service/internal/window"
)

// CPU is the host compute device.
type CPU struct{}

// Place returns w on the host, copying only if it lives elsewhere.
func (CPU) Place(w *window.Window) (*window.Window, error) {
	if w == nil {
		return nil, fmt.Errorf("cannot place nil window")
	}
	return w.To(window.HostDevice), nil
}

// Name returns the device name windows are labelled with.
func (CPU) Name() string { return window.HostDevice }

// Describe summarizes the host CPU for startup logs.
func (CPU) Describe() string {
	var feats []string
	for _, f := range []struct {
		id   cpuid.FeatureID
		name string
	}{
		{cpuid.AVX2, "avx2"},
		{cpuid.FMA3, "fma3"},
		{cpuid.AVX512F, "avx512f"},
		{cpuid.ASIMD, "neon"},
	} {
		if cpuid.CPU.Supports(f.id) {
			feats = append(feats, f.name)
		}
	}
	brand := cpuid.CPU.BrandName
	if brand == "" {
		brand = runtime.GOARCH
	}
	return fmt.Sprintf("%s (physical=%d logical=%d gomaxprocs=%d features=[%s])",
		brand, cpuid.CPU.PhysicalCores, cpuid.CPU.LogicalCores, runtime.GOMAXPROCS(0), strings.Join(feats, ","))
}
