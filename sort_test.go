package indraw

import (
	"math/rand"
	"sync/atomic"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testTable builds an indexed mesh table with bucketCount meshes and returns
// its cleared argument table.
func testTable(t *testing.T, bucketCount int) *ArgTable {
	t.Helper()
	table := NewMeshTable(true)
	for k := 0; k < bucketCount; k++ {
		_, err := table.Register(MeshGeometry{Count: uint32(36 + k), First: uint32(k * 36)})
		if err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}
	return table.NewArgTable()
}

// testInstances tags each instance with its original index in the transform's
// translation column, so bucket contents can be traced through the scatter.
func testInstances(meshIds []uint32) []MeshInstance {
	instances := make([]MeshInstance, len(meshIds))
	for i, mesh := range meshIds {
		instances[i] = NewMeshInstance(mesh, mgl32.Translate3D(float32(i), 0, 0))
	}
	return instances
}

// originalIndex recovers the tag planted by testInstances.
func originalIndex(inst MeshInstance) int {
	return int(inst.Transform.At(0, 3))
}

func TestSortEmptyInput(t *testing.T) {
	args := testTable(t, 3)
	sorter := HostSorter{}

	err := sorter.Sort(nil, args, nil)
	if err != nil {
		t.Fatalf("Sort failed: %v", err)
	}

	for k := 0; k < args.Len(); k++ {
		if args.InstanceCount(k) != 0 {
			t.Errorf("bucket %d: expected zero instance count, got %d", k, args.InstanceCount(k))
		}
		if args.FirstInstance(k) != 0 {
			t.Errorf("bucket %d: expected zero first instance, got %d", k, args.FirstInstance(k))
		}
	}
}

func TestSortNoBuckets(t *testing.T) {
	args := testTable(t, 0)
	sorter := HostSorter{}

	if err := sorter.Sort(nil, args, nil); err != nil {
		t.Fatalf("Sort with zero buckets failed: %v", err)
	}
	if args.TotalInstances() != 0 {
		t.Error("empty table should have no instances")
	}

	// Any instance at all is out of range when there are no buckets.
	instances := testInstances([]uint32{0})
	if err := sorter.Sort(instances, args, make([]MeshInstance, 1)); err == nil {
		t.Error("expected error for instances without buckets")
	}
}

func TestSortMixedBuckets(t *testing.T) {
	args := testTable(t, 3)
	instances := testInstances([]uint32{0, 2, 0, 1})
	out := make([]MeshInstance, len(instances))

	sorter := HostSorter{}
	require.NoError(t, sorter.Sort(instances, args, out))

	wantFirst := []uint32{0, 2, 3}
	wantCount := []uint32{2, 1, 1}
	for k := 0; k < 3; k++ {
		assert.Equal(t, wantFirst[k], args.FirstInstance(k), "bucket %d first instance", k)
		assert.Equal(t, wantCount[k], args.InstanceCount(k), "bucket %d instance count", k)
	}

	assert.ElementsMatch(t, []int{0, 2}, bucketIndices(args, out, 0))
	assert.ElementsMatch(t, []int{3}, bucketIndices(args, out, 1))
	assert.ElementsMatch(t, []int{1}, bucketIndices(args, out, 2))
}

func TestSortSingleBucket(t *testing.T) {
	const n = 257 // deliberately not a multiple of the workgroup size
	args := testTable(t, 1)
	ids := make([]uint32, n)
	instances := testInstances(ids)
	out := make([]MeshInstance, n)

	sorter := HostSorter{}
	require.NoError(t, sorter.Sort(instances, args, out))

	assert.Equal(t, uint32(0), args.FirstInstance(0))
	assert.Equal(t, uint32(n), args.InstanceCount(0))

	seen := make([]bool, n)
	for i := range out {
		idx := originalIndex(out[i])
		if seen[idx] {
			t.Fatalf("instance %d scattered twice", idx)
		}
		seen[idx] = true
	}
}

func TestSortProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	sorter := HostSorter{}

	for iter := 0; iter < 50; iter++ {
		bucketCount := 1 + rng.Intn(16)
		n := rng.Intn(1000)
		ids := make([]uint32, n)
		for i := range ids {
			ids[i] = uint32(rng.Intn(bucketCount))
		}

		args := testTable(t, bucketCount)
		instances := testInstances(ids)
		out := make([]MeshInstance, n)
		require.NoError(t, sorter.Sort(instances, args, out))

		// Counts sum to N and match the per-bucket histogram.
		require.Equal(t, uint32(n), args.TotalInstances())
		for k := 0; k < bucketCount; k++ {
			var count, before uint32
			for _, id := range ids {
				if id == uint32(k) {
					count++
				}
				if id < uint32(k) {
					before++
				}
			}
			require.Equal(t, count, args.InstanceCount(k), "bucket %d count", k)
			require.Equal(t, before, args.FirstInstance(k), "bucket %d exclusive prefix", k)
		}

		// Each bucket's range holds exactly the instances that belong there,
		// order unspecified.
		for k := 0; k < bucketCount; k++ {
			for _, idx := range bucketIndices(args, out, k) {
				require.Equal(t, uint32(k), ids[idx], "instance %d landed in bucket %d", idx, k)
			}
		}
	}
}

func TestSortIdempotentAcrossClears(t *testing.T) {
	ids := []uint32{3, 0, 1, 3, 3, 2, 0, 1, 1, 0, 2, 3}
	instances := testInstances(ids)
	sorter := HostSorter{}

	args := testTable(t, 4)
	out1 := make([]MeshInstance, len(ids))
	require.NoError(t, sorter.Sort(instances, args, out1))
	first1, count1 := snapshotCounters(args)
	buckets1 := allBucketIndices(args, out1)

	out2 := make([]MeshInstance, len(ids))
	require.NoError(t, sorter.Sort(instances, args, out2))
	first2, count2 := snapshotCounters(args)
	buckets2 := allBucketIndices(args, out2)

	assert.Equal(t, first1, first2)
	assert.Equal(t, count1, count2)
	for k := range buckets1 {
		assert.ElementsMatch(t, buckets1[k], buckets2[k], "bucket %d contents", k)
	}
}

func TestPassOrderingEnforced(t *testing.T) {
	instances := testInstances([]uint32{0, 1})
	out := make([]MeshInstance, 2)
	sorter := HostSorter{}

	args := testTable(t, 2)
	if err := sorter.Scatter(instances, args, out); err == nil {
		t.Error("Scatter on a cleared table should fail, offset pass has not run")
	}

	require.NoError(t, sorter.ComputeOffsets(instances, args))
	if err := sorter.ComputeOffsets(instances, args); err == nil {
		t.Error("second offset pass without a clear should fail")
	}
	require.NoError(t, sorter.Scatter(instances, args, out))
	if err := sorter.Scatter(instances, args, out); err == nil {
		t.Error("second scatter pass without a clear should fail")
	}
}

func TestSortRejectsOutOfRangeMesh(t *testing.T) {
	args := testTable(t, 2)
	instances := testInstances([]uint32{0, 2})
	out := make([]MeshInstance, 2)

	sorter := HostSorter{}
	if err := sorter.Sort(instances, args, out); err == nil {
		t.Error("expected error for mesh index beyond bucket count")
	}
}

func TestScatterRejectsMismatchedOutput(t *testing.T) {
	args := testTable(t, 2)
	instances := testInstances([]uint32{0, 1, 1})
	out := make([]MeshInstance, 2)

	sorter := HostSorter{}
	require.NoError(t, sorter.ComputeOffsets(instances, args))
	if err := sorter.Scatter(instances, args, out); err == nil {
		t.Error("expected error for output buffer shorter than input")
	}
}

func TestScatterRejectsOutOfRangeMesh(t *testing.T) {
	args := testTable(t, 2)
	good := testInstances([]uint32{0, 1})
	bad := testInstances([]uint32{0, 2})
	out := make([]MeshInstance, 2)

	// A slice validated in the offset pass does not cover a different slice
	// handed to the scatter pass.
	sorter := HostSorter{}
	require.NoError(t, sorter.ComputeOffsets(good, args))
	if err := sorter.Scatter(bad, args, out); err == nil {
		t.Error("expected error for mesh index beyond bucket count in scatter input")
	}
}

func TestScatterRejectsAliasedOutput(t *testing.T) {
	args := testTable(t, 2)
	instances := testInstances([]uint32{1, 0, 1})

	sorter := HostSorter{}
	require.NoError(t, sorter.ComputeOffsets(instances, args))
	if err := sorter.Scatter(instances, args, instances); err == nil {
		t.Error("expected error for scatter into the input buffer")
	}
}

func TestHostGridRunsEveryInvocationOnce(t *testing.T) {
	const n = 1000
	hits := make([]atomic.Uint32, n)
	var tail atomic.Uint32

	grid := newHostGrid(8)
	grid.dispatch(n, func(i uint32) {
		if i >= n {
			tail.Add(1)
			return
		}
		hits[i].Add(1)
	})

	for i := range hits {
		if got := hits[i].Load(); got != 1 {
			t.Fatalf("invocation %d ran %d times", i, got)
		}
	}
	// The grid rounds up to workgroup granularity, so the tail is real.
	if want := uint32(((n+WorkgroupSize-1)/WorkgroupSize)*WorkgroupSize - n); tail.Load() != want {
		t.Errorf("expected %d over-provisioned invocations, got %d", want, tail.Load())
	}
}

func bucketIndices(args *ArgTable, out []MeshInstance, k int) []int {
	first := args.FirstInstance(k)
	count := args.InstanceCount(k)
	indices := make([]int, 0, count)
	for _, inst := range out[first : first+count] {
		indices = append(indices, originalIndex(inst))
	}
	return indices
}

func allBucketIndices(args *ArgTable, out []MeshInstance) [][]int {
	buckets := make([][]int, args.Len())
	for k := range buckets {
		buckets[k] = bucketIndices(args, out, k)
	}
	return buckets
}

func snapshotCounters(args *ArgTable) ([]uint32, []uint32) {
	first := make([]uint32, args.Len())
	count := make([]uint32, args.Len())
	for k := 0; k < args.Len(); k++ {
		first[k] = args.FirstInstance(k)
		count[k] = args.InstanceCount(k)
	}
	return first, count
}
