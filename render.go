package indraw

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/indraw3d/indraw/shaders"
)

// MeshVertex is the vertex layout the bundled instanced shader consumes.
type MeshVertex struct {
	Position [3]float32 `indraw:"layout" format:"float3" location:"0"`
	Normal   [3]float32 `indraw:"layout" format:"float3" location:"1"`
}

// NewInstancedRenderPipeline builds the render pipeline that consumes the
// sorted instance buffer: the vertex stage pulls its instance record from
// storage by instance_index, which indirect draws offset per bucket.
func NewInstancedRenderPipeline(device *wgpu.Device, format wgpu.TextureFormat) (*wgpu.RenderPipeline, error) {
	shader, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "InstancedMeshShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: shaders.InstancedMeshWGSL},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instanced mesh shader: %w", err)
	}
	defer shader.Release()

	vertexBufferLayout := createVertexBufferLayout(MeshVertex{})

	pipeline, err := device.CreateRenderPipeline(&wgpu.RenderPipelineDescriptor{
		Label: "InstancedMeshPipeline",
		Vertex: wgpu.VertexState{
			Module:     shader,
			EntryPoint: "vs_main",
			Buffers:    []wgpu.VertexBufferLayout{vertexBufferLayout},
		},
		Fragment: &wgpu.FragmentState{
			Module:     shader,
			EntryPoint: "fs_main",
			Targets: []wgpu.ColorTargetState{
				{
					Format:    format,
					Blend:     nil,
					WriteMask: wgpu.ColorWriteMaskAll,
				},
			},
		},
		Primitive: wgpu.PrimitiveState{
			Topology:  wgpu.PrimitiveTopologyTriangleList,
			FrontFace: wgpu.FrontFaceCCW,
			CullMode:  wgpu.CullModeBack,
		},
		DepthStencil: nil,
		Multisample: wgpu.MultisampleState{
			Count:                  1,
			Mask:                   0xFFFFFFFF,
			AlphaToCoverageEnabled: false,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create instanced mesh pipeline: %w", err)
	}
	return pipeline, nil
}

// EncodeDraws records one indirect draw per mesh bucket, each pulling its
// instance count and first instance straight from the populated argument
// buffer. The table must be Populated; it transitions to Consumed.
//
// Vertex/index buffers and bind groups must already be set on the pass. The
// device must have been created with the IndirectFirstInstance feature (see
// requiredDeviceFeatures); otherwise every bucket past the first reads a
// nonzero first_instance and its draw is discarded.
func EncodeDraws(pass *wgpu.RenderPassEncoder, argsBuf *wgpu.Buffer, table *ArgTable) error {
	next, err := table.state.advance(FramePopulated, FrameConsumed)
	if err != nil {
		return err
	}

	stride := uint64(table.Stride())
	for k := 0; k < table.Len(); k++ {
		offset := uint64(k) * stride
		if table.Indexed() {
			pass.DrawIndexedIndirect(argsBuf, offset)
		} else {
			pass.DrawIndirect(argsBuf, offset)
		}
	}

	table.state = next
	return nil
}
