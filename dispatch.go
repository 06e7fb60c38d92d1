package indraw

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkgroupSize is the dispatch granularity of both compute kernels. Host
// dispatch rounds the invocation grid up to the same granularity so kernels
// see the identical over-provisioned index range they see on the device.
const WorkgroupSize = 64

// hostGrid executes one compute dispatch on the host: every invocation index
// in [0, grid) runs exactly once, in no particular order, concurrently
// across workers. The only ordering primitive is the join at the end, which
// plays the role of the inter-dispatch barrier: when dispatch returns, every
// invocation's writes are visible to whatever runs next.
//
// Kernels receive raw invocation ids including the over-provisioned tail and
// must bounds-check, same as on the device.
type hostGrid struct {
	workers int
}

func newHostGrid(workers int) hostGrid {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	return hostGrid{workers: workers}
}

func (g hostGrid) dispatch(invocations uint32, kernel func(i uint32)) {
	grid := ((invocations + WorkgroupSize - 1) / WorkgroupSize) * WorkgroupSize
	if grid == 0 {
		return
	}

	var next atomic.Uint32
	var wg sync.WaitGroup
	workers := g.workers
	if uint32(workers) > grid/WorkgroupSize+1 {
		workers = int(grid/WorkgroupSize) + 1
	}

	wg.Add(workers)
	for w := 0; w < workers; w++ {
		go func() {
			defer wg.Done()
			// Workers claim whole workgroups; invocations within one
			// workgroup still have no ordering contract kernels may rely on.
			for {
				base := next.Add(WorkgroupSize) - WorkgroupSize
				if base >= grid {
					return
				}
				for i := base; i < base+WorkgroupSize; i++ {
					kernel(i)
				}
			}
		}()
	}
	wg.Wait()
}
