package indraw

import "encoding/binary"

// DrawIndirectArgs matches the argument layout of a non-indexed indirect
// draw (16 bytes, 4 x u32). InstanceCount and FirstInstance are the two
// fields the sort passes mutate on the device; the rest is static geometry
// set at mesh registration.
type DrawIndirectArgs struct {
	VertexCount   uint32 // offset 0
	InstanceCount uint32 // offset 4: written by the scatter pass
	FirstVertex   uint32 // offset 8
	FirstInstance uint32 // offset 12: written by the offset pass
}

// DrawIndexedIndirectArgs matches the indexed variant (20 bytes, 5 fields).
type DrawIndexedIndirectArgs struct {
	IndexCount    uint32 // offset 0
	InstanceCount uint32 // offset 4: written by the scatter pass
	FirstIndex    uint32 // offset 8
	BaseVertex    int32  // offset 12: signed vertex bias
	FirstInstance uint32 // offset 16: written by the offset pass
}

const (
	DrawIndirectStride        = 16
	DrawIndexedIndirectStride = 20
)

func (a *DrawIndirectArgs) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], a.VertexCount)
	binary.LittleEndian.PutUint32(buf[4:], a.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:], a.FirstVertex)
	binary.LittleEndian.PutUint32(buf[12:], a.FirstInstance)
}

func (a *DrawIndexedIndirectArgs) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:], a.IndexCount)
	binary.LittleEndian.PutUint32(buf[4:], a.InstanceCount)
	binary.LittleEndian.PutUint32(buf[8:], a.FirstIndex)
	binary.LittleEndian.PutUint32(buf[12:], uint32(a.BaseVertex))
	binary.LittleEndian.PutUint32(buf[16:], a.FirstInstance)
}

func decodeDrawIndirectArgs(buf []byte) DrawIndirectArgs {
	return DrawIndirectArgs{
		VertexCount:   binary.LittleEndian.Uint32(buf[0:]),
		InstanceCount: binary.LittleEndian.Uint32(buf[4:]),
		FirstVertex:   binary.LittleEndian.Uint32(buf[8:]),
		FirstInstance: binary.LittleEndian.Uint32(buf[12:]),
	}
}

func decodeDrawIndexedIndirectArgs(buf []byte) DrawIndexedIndirectArgs {
	return DrawIndexedIndirectArgs{
		IndexCount:    binary.LittleEndian.Uint32(buf[0:]),
		InstanceCount: binary.LittleEndian.Uint32(buf[4:]),
		FirstIndex:    binary.LittleEndian.Uint32(buf[8:]),
		BaseVertex:    int32(binary.LittleEndian.Uint32(buf[12:])),
		FirstInstance: binary.LittleEndian.Uint32(buf[16:]),
	}
}
