package indraw

import (
	"sync/atomic"
)

// bucketArgs is one mesh bucket's draw arguments. The two counters are the
// only fields the sort passes touch, and only through atomic add/load; the
// geometry fields are fixed at registration.
type bucketArgs struct {
	vertexCount   uint32 // index count for indexed tables
	firstVertex   uint32 // first index for indexed tables
	baseVertex    int32  // indexed tables only
	instanceCount atomic.Uint32
	firstInstance atomic.Uint32
}

// ArgTable is the host-resident mirror of the indirect draw argument buffer:
// one bucket per registered mesh. It serves two roles. The host sorter runs
// the two counting-sort passes directly against its atomic counters, and the
// GPU pipeline packs its cleared state into the device-side argument buffer
// at the start of every frame.
//
// An ArgTable is shared read-write by every invocation of both passes within
// a frame; all mutation goes through the atomics. The lifecycle state itself
// is only touched by the single goroutine orchestrating the frame.
type ArgTable struct {
	indexed bool
	buckets []bucketArgs
	state   FrameState
}

func (t *ArgTable) Len() int          { return len(t.buckets) }
func (t *ArgTable) Indexed() bool     { return t.indexed }
func (t *ArgTable) State() FrameState { return t.state }

// Stride is the per-bucket byte stride of the packed argument buffer.
func (t *ArgTable) Stride() int {
	if t.indexed {
		return DrawIndexedIndirectStride
	}
	return DrawIndirectStride
}

// Clear zeroes both counters of every bucket. It must run before the offset
// pass of every frame; skipping it leaks the previous frame's counts into
// the new offsets.
func (t *ArgTable) Clear() {
	for k := range t.buckets {
		t.buckets[k].instanceCount.Store(0)
		t.buckets[k].firstInstance.Store(0)
	}
	t.state = FrameCleared
}

// InstanceCount reads bucket k's visible instance count.
func (t *ArgTable) InstanceCount(k int) uint32 {
	return t.buckets[k].instanceCount.Load()
}

// FirstInstance reads bucket k's starting offset in the sorted output.
func (t *ArgTable) FirstInstance(k int) uint32 {
	return t.buckets[k].firstInstance.Load()
}

// TotalInstances sums the visible counts across all buckets.
func (t *ArgTable) TotalInstances() uint32 {
	var total uint32
	for k := range t.buckets {
		total += t.buckets[k].instanceCount.Load()
	}
	return total
}

// Args snapshots bucket k in the indexed layout. For non-indexed tables
// IndexCount carries the vertex count and BaseVertex is zero.
func (t *ArgTable) Args(k int) DrawIndexedIndirectArgs {
	b := &t.buckets[k]
	return DrawIndexedIndirectArgs{
		IndexCount:    b.vertexCount,
		InstanceCount: b.instanceCount.Load(),
		FirstIndex:    b.firstVertex,
		BaseVertex:    b.baseVertex,
		FirstInstance: b.firstInstance.Load(),
	}
}

// Pack serializes the table into the byte layout consumed by the indirect
// draw, in bucket order. Called on a cleared table this produces the upload
// image for the frame's argument buffer.
func (t *ArgTable) Pack() []byte {
	stride := t.Stride()
	buf := make([]byte, len(t.buckets)*stride)
	for k := range t.buckets {
		b := &t.buckets[k]
		if t.indexed {
			args := DrawIndexedIndirectArgs{
				IndexCount:    b.vertexCount,
				InstanceCount: b.instanceCount.Load(),
				FirstIndex:    b.firstVertex,
				BaseVertex:    b.baseVertex,
				FirstInstance: b.firstInstance.Load(),
			}
			args.encode(buf[k*stride:])
		} else {
			args := DrawIndirectArgs{
				VertexCount:   b.vertexCount,
				InstanceCount: b.instanceCount.Load(),
				FirstVertex:   b.firstVertex,
				FirstInstance: b.firstInstance.Load(),
			}
			args.encode(buf[k*stride:])
		}
	}
	return buf
}
