package indraw

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

func TestDeviceFeaturesIncludeIndirectFirstInstance(t *testing.T) {
	for _, f := range requiredDeviceFeatures() {
		if f == wgpu.FeatureNameIndirectFirstInstance {
			return
		}
	}
	t.Error("device features must include IndirectFirstInstance, or draws for every bucket past the first are discarded")
}
