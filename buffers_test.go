package indraw

import (
	"testing"

	"github.com/cogentcore/webgpu/wgpu"
)

func TestMeshVertexLayout(t *testing.T) {
	layout := createVertexBufferLayout(MeshVertex{})

	if layout.ArrayStride != 24 {
		t.Errorf("expected stride 24, got %d", layout.ArrayStride)
	}
	if len(layout.Attributes) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(layout.Attributes))
	}

	pos := layout.Attributes[0]
	if pos.ShaderLocation != 0 || pos.Offset != 0 || pos.Format != wgpu.VertexFormatFloat32x3 {
		t.Errorf("position attribute wrong: %+v", pos)
	}
	normal := layout.Attributes[1]
	if normal.ShaderLocation != 1 || normal.Offset != 12 || normal.Format != wgpu.VertexFormatFloat32x3 {
		t.Errorf("normal attribute wrong: %+v", normal)
	}
}

func TestVertexLayoutSkipsUntaggedFields(t *testing.T) {
	type vertex struct {
		Position [3]float32 `indraw:"layout" format:"float3" location:"0"`
		Weight   float32
	}
	layout := createVertexBufferLayout(vertex{})

	if len(layout.Attributes) != 1 {
		t.Fatalf("expected 1 attribute, got %d", len(layout.Attributes))
	}
	if layout.ArrayStride != 16 {
		t.Errorf("untagged fields still count toward the stride, expected 16, got %d", layout.ArrayStride)
	}
}
