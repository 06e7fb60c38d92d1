package indraw

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// MeshInstance is one per-frame instance record. Mesh is the bucket index
// into the draw argument table; it must stay below the table's bucket count
// for the whole frame.
//
// Buffer layout (144 bytes, little endian, 16-byte aligned):
//
//	mesh: u32;                            -- 0
//	_pad: [u32; 3];                       -- 4
//	transform: mat4x4<f32>;               -- 16
//	inverse_transpose_model: mat4x4<f32>; -- 80
type MeshInstance struct {
	Mesh                  uint32
	Transform             mgl32.Mat4
	InverseTransposeModel mgl32.Mat4
}

const InstanceStride = 144

const (
	instanceMeshOffset      = 0
	instanceTransformOffset = 16
	instanceInverseOffset   = 80
)

// NewMeshInstance derives the inverse-transpose from the world transform, so
// normals stay correct under non-uniform scale.
func NewMeshInstance(mesh uint32, transform mgl32.Mat4) MeshInstance {
	return MeshInstance{
		Mesh:                  mesh,
		Transform:             transform,
		InverseTransposeModel: transform.Inv().Transpose(),
	}
}

func (inst *MeshInstance) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[instanceMeshOffset:], inst.Mesh)
	binary.LittleEndian.PutUint32(buf[4:], 0)
	binary.LittleEndian.PutUint32(buf[8:], 0)
	binary.LittleEndian.PutUint32(buf[12:], 0)
	writeMat4(buf[instanceTransformOffset:], inst.Transform)
	writeMat4(buf[instanceInverseOffset:], inst.InverseTransposeModel)
}

func decodeInstance(buf []byte) MeshInstance {
	return MeshInstance{
		Mesh:                  binary.LittleEndian.Uint32(buf[instanceMeshOffset:]),
		Transform:             readMat4(buf[instanceTransformOffset:]),
		InverseTransposeModel: readMat4(buf[instanceInverseOffset:]),
	}
}

func writeMat4(buf []byte, m mgl32.Mat4) {
	for i, v := range m {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
}

func readMat4(buf []byte) mgl32.Mat4 {
	var m mgl32.Mat4
	for i := range m {
		m[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return m
}

// PackInstances serializes instances into the byte layout both compute
// kernels expect.
func PackInstances(instances []MeshInstance) []byte {
	buf := make([]byte, len(instances)*InstanceStride)
	for i := range instances {
		instances[i].encode(buf[i*InstanceStride:])
	}
	return buf
}

// UnpackInstances decodes a packed instance buffer, e.g. after readback.
func UnpackInstances(data []byte) ([]MeshInstance, error) {
	if len(data)%InstanceStride != 0 {
		return nil, fmt.Errorf("instance buffer size %d is not a multiple of %d", len(data), InstanceStride)
	}
	instances := make([]MeshInstance, len(data)/InstanceStride)
	for i := range instances {
		instances[i] = decodeInstance(data[i*InstanceStride:])
	}
	return instances, nil
}

// validateInstances rejects out-of-range mesh indices before anything is
// dispatched. The kernels themselves run check-free.
func validateInstances(instances []MeshInstance, bucketCount int) error {
	for i := range instances {
		if instances[i].Mesh >= uint32(bucketCount) {
			return fmt.Errorf("instance %d references mesh bucket %d, table has %d", i, instances[i].Mesh, bucketCount)
		}
	}
	return nil
}
