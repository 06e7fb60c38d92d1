package indraw

import (
	"strings"
	"testing"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/indraw3d/indraw/shaders"
)

func TestBindFixedCapacity(t *testing.T) {
	bound := bindFixedCapacity(shaders.InstanceSortIndexedWGSL, 112)

	if strings.Contains(bound, "array<MeshInstance>") {
		t.Error("runtime-sized instance arrays left in fixed-capacity shader")
	}
	if strings.Contains(bound, "array<DrawIndexedIndirect>") {
		t.Error("runtime-sized argument array left in fixed-capacity shader")
	}
	if !strings.Contains(bound, "array<MeshInstance, 112u>") {
		t.Error("instance arrays not bound to the configured capacity")
	}
	if !strings.Contains(bound, "array<DrawIndexedIndirect, 112u>") {
		t.Error("argument array not bound to the configured capacity")
	}
}

func TestSortedBufferAlternates(t *testing.T) {
	p := &SortPipeline{outBufs: [2]*wgpu.Buffer{new(wgpu.Buffer), new(wgpu.Buffer)}}

	first := p.SortedBuffer()
	p.flipParity()
	second := p.SortedBuffer()
	if first == second {
		t.Fatal("consecutive frames must scatter into distinct buffers")
	}
	p.flipParity()
	if p.SortedBuffer() != first {
		t.Error("parity must cycle back to the first buffer")
	}
}

func TestFailedPrepareKeepsParity(t *testing.T) {
	p := &SortPipeline{
		indexed: true,
		outBufs: [2]*wgpu.Buffer{new(wgpu.Buffer), new(wgpu.Buffer)},
	}
	before := p.SortedBuffer()

	// Layout mismatch fails before any upload; the retry that follows must
	// land on the other buffer, not back on the one still bound to the
	// previous frame's draws.
	table := NewMeshTable(false).NewArgTable()
	if err := p.Prepare(nil, table); err == nil {
		t.Fatal("expected layout mismatch error")
	}
	if p.SortedBuffer() != before {
		t.Error("failed prepare must not advance the output buffer")
	}
}

func TestSortShadersDeclareBothEntryPoints(t *testing.T) {
	for name, source := range map[string]string{
		"instance_sort":         shaders.InstanceSortWGSL,
		"instance_sort_indexed": shaders.InstanceSortIndexedWGSL,
	} {
		if !strings.Contains(source, "fn indirect_offsets") {
			t.Errorf("%s: missing indirect_offsets entry point", name)
		}
		if !strings.Contains(source, "fn scatter_instances") {
			t.Errorf("%s: missing scatter_instances entry point", name)
		}
		if !strings.Contains(source, "@workgroup_size(64)") {
			t.Errorf("%s: workgroup size must match WorkgroupSize", name)
		}
	}
}
