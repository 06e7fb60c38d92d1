package indraw

import (
	"reflect"
	"strconv"

	"github.com/cogentcore/webgpu/wgpu"
)

// Buffers that are rewritten every frame get headroom on (re)allocation so a
// fluctuating instance count does not reallocate every frame.
const bufferHeadroom = 16 * 1024

// ensureBuffer grows *buf to fit data (plus headroom) if needed, then
// uploads data. Returns true when the buffer was (re)created, which means
// bind groups referencing it must be rebuilt.
func ensureBuffer(device *wgpu.Device, name string, buf **wgpu.Buffer, data []byte, usage wgpu.BufferUsage, headroom int) (bool, error) {
	neededSize := uint64(len(data) + headroom)
	if neededSize%4 != 0 {
		neededSize += 4 - (neededSize % 4)
	}
	if neededSize == 0 {
		neededSize = 4
	}

	current := *buf
	recreated := false
	if current == nil || current.GetSize() < neededSize {
		if current != nil {
			current.Release()
		}
		newBuf, err := device.CreateBuffer(&wgpu.BufferDescriptor{
			Label: name,
			Size:  neededSize,
			Usage: usage | wgpu.BufferUsageCopyDst,
		})
		if err != nil {
			return false, err
		}
		*buf = newBuf
		recreated = true
	}
	if len(data) > 0 {
		device.GetQueue().WriteBuffer(*buf, 0, data)
	}
	return recreated, nil
}

// createVertexBufferLayout builds a vertex layout from struct tags:
//
//	type MeshVertex struct {
//		Position [3]float32 `indraw:"layout" format:"float3" location:"0"`
//		Normal   [3]float32 `indraw:"layout" format:"float3" location:"1"`
//	}
func createVertexBufferLayout(vertexType any) wgpu.VertexBufferLayout {
	t := reflect.TypeOf(vertexType)
	if t.Kind() != reflect.Struct {
		panic("Vertex must be a struct")
	}

	var attributes []wgpu.VertexAttribute
	var offset uint64 = 0

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)

		if "layout" == field.Tag.Get("indraw") {
			format := parseVertexFormat(field.Tag.Get("format"))
			location, err := strconv.Atoi(field.Tag.Get("location"))
			if nil != err {
				panic(err)
			}

			attributes = append(attributes, wgpu.VertexAttribute{
				ShaderLocation: uint32(location),
				Offset:         offset,
				Format:         format,
			})
		}

		offset += uint64(field.Type.Size())
	}

	return wgpu.VertexBufferLayout{
		ArrayStride: offset,
		StepMode:    wgpu.VertexStepModeVertex,
		Attributes:  attributes,
	}
}

func parseVertexFormat(name string) wgpu.VertexFormat {
	switch name {
	case "float2":
		return wgpu.VertexFormatFloat32x2
	case "float3":
		return wgpu.VertexFormatFloat32x3
	case "float4":
		return wgpu.VertexFormatFloat32x4
	default:
		panic("unsupported vertex layout format: " + name)
	}
}
