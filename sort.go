package indraw

import "fmt"

// HostSorter runs the two counting-sort passes on the host, mirroring the
// WGSL kernels invocation for invocation. It exists to validate the GPU
// pipeline (readback cross-checks, tests); rendering always goes through
// SortPipeline.
//
// Workers <= 0 uses one worker per CPU.
type HostSorter struct {
	Workers int
}

// offsetKernel is pass one for a single invocation: bump the first-instance
// counter of every bucket sorting after this instance's bucket. Once every
// invocation has run, bucket k's counter equals the number of instances in
// buckets [0, k) -- an exclusive prefix count built by brute-force atomic
// broadcast.
//
// Cost is O(N*M) atomic adds, not a scan. That is the known performance
// ceiling of this pipeline for large bucket counts; the observable result is
// exactly the exclusive prefix sum, so a scan can replace it without a
// contract change.
func offsetKernel(i uint32, instances []MeshInstance, table *ArgTable) {
	if i >= uint32(len(instances)) {
		return
	}
	mesh := instances[i].Mesh
	buckets := uint32(len(table.buckets))
	for j := mesh + 1; j < buckets; j++ {
		table.buckets[j].firstInstance.Add(1)
	}
}

// scatterKernel is pass two for a single invocation: claim the next free
// slot in the bucket via fetch-and-add and copy the record there. Distinct
// invocations targeting the same bucket get distinct slots, so writes never
// collide; the order slots are granted in is whatever order the atomic adds
// completed, so intra-bucket order is unspecified.
func scatterKernel(i uint32, instances []MeshInstance, table *ArgTable, out []MeshInstance) {
	if i >= uint32(len(instances)) {
		return
	}
	inst := instances[i]
	base := table.buckets[inst.Mesh].firstInstance.Load()
	slot := table.buckets[inst.Mesh].instanceCount.Add(1) - 1
	out[base+slot] = inst
}

// ComputeOffsets runs the offset pass: one invocation per instance, joined
// before returning. Requires a cleared table; on return the table's
// first-instance fields are final for the frame.
func (s *HostSorter) ComputeOffsets(instances []MeshInstance, table *ArgTable) error {
	next, err := table.state.advance(FrameCleared, FrameOffsetsComputed)
	if err != nil {
		return err
	}
	if err := validateInstances(instances, table.Len()); err != nil {
		return err
	}
	grid := newHostGrid(s.Workers)
	grid.dispatch(uint32(len(instances)), func(i uint32) {
		offsetKernel(i, instances, table)
	})
	table.state = next
	return nil
}

// Scatter runs the scatter pass into out, which must be a distinct buffer of
// the same length as instances. The join inside dispatch is the barrier that
// makes the pass's writes visible before the indirect draw consumes them.
func (s *HostSorter) Scatter(instances []MeshInstance, table *ArgTable, out []MeshInstance) error {
	next, err := table.state.advance(FrameOffsetsComputed, FramePopulated)
	if err != nil {
		return err
	}
	if len(out) != len(instances) {
		return fmt.Errorf("output length %d does not match input length %d", len(out), len(instances))
	}
	if err := validateInstances(instances, table.Len()); err != nil {
		return err
	}
	if len(instances) > 0 && &out[0] == &instances[0] {
		return fmt.Errorf("output buffer must not alias the input buffer")
	}
	grid := newHostGrid(s.Workers)
	grid.dispatch(uint32(len(instances)), func(i uint32) {
		scatterKernel(i, instances, table, out)
	})
	table.state = next
	return nil
}

// Sort runs the full frame sequence: clear, offset pass, barrier, scatter
// pass, barrier. After it returns, out holds the instances grouped
// contiguously by bucket in increasing bucket order, and the table holds the
// final per-bucket counts and offsets.
func (s *HostSorter) Sort(instances []MeshInstance, table *ArgTable, out []MeshInstance) error {
	table.Clear()
	if err := s.ComputeOffsets(instances, table); err != nil {
		return err
	}
	return s.Scatter(instances, table, out)
}
