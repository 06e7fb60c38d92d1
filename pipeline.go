package indraw

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/cogentcore/webgpu/wgpu"

	"github.com/indraw3d/indraw/shaders"
)

// SortPipelineOptions configures a SortPipeline.
//
// FixedCapacity bounds both the instance and bucket counts and compiles the
// kernels with fixed-size array bindings instead of runtime-sized ones, for
// device tiers that cannot bind unsized storage arrays. Zero means unbounded
// runtime-sized bindings.
type SortPipelineOptions struct {
	Indexed       bool
	FixedCapacity uint32
	Logger        Logger
}

// SortPipeline owns the device-side half of the instance partitioning
// pipeline: the two compute kernels, the instance input buffer, the indirect
// argument buffer, and a double-buffered sorted output.
//
// Per frame usage: Prepare uploads the fresh instance array and the cleared
// argument table, Encode records offset pass -> scatter pass on the caller's
// command encoder (the pass split is the execution barrier between them),
// then the caller submits and issues indirect draws against ArgsBuffer and
// SortedBuffer.
type SortPipeline struct {
	device *wgpu.Device
	logger Logger

	indexed       bool
	fixedCapacity uint32
	argStride     int

	offsetsPipeline *wgpu.ComputePipeline
	scatterPipeline *wgpu.ComputePipeline

	paramsBuf *wgpu.Buffer
	inBuf     *wgpu.Buffer
	argsBuf   *wgpu.Buffer
	outBufs   [2]*wgpu.Buffer
	parity    int

	offsetsBindGroup  *wgpu.BindGroup
	scatterBindGroups [2]*wgpu.BindGroup

	instanceCount uint32
	bucketCount   uint32
}

const sortParamsSize = 16

// NewSortPipeline compiles both kernels and allocates the params buffer.
// Instance and argument buffers are allocated lazily on first Prepare.
func NewSortPipeline(device *wgpu.Device, opts SortPipelineOptions) (*SortPipeline, error) {
	logger := opts.Logger
	if logger == nil {
		logger = NewNopLogger()
	}

	source := shaders.InstanceSortWGSL
	stride := DrawIndirectStride
	if opts.Indexed {
		source = shaders.InstanceSortIndexedWGSL
		stride = DrawIndexedIndirectStride
	}
	if opts.FixedCapacity > 0 {
		source = bindFixedCapacity(source, opts.FixedCapacity)
	}

	module, err := device.CreateShaderModule(&wgpu.ShaderModuleDescriptor{
		Label:          "InstanceSortShader",
		WGSLDescriptor: &wgpu.ShaderModuleWGSLDescriptor{Code: source},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sort shader module: %w", err)
	}
	defer module.Release()

	p := &SortPipeline{
		device:        device,
		logger:        logger,
		indexed:       opts.Indexed,
		fixedCapacity: opts.FixedCapacity,
		argStride:     stride,
	}

	p.offsetsPipeline, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "IndirectOffsetsPipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "indirect_offsets",
		},
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("failed to create offsets pipeline: %w", err)
	}

	p.scatterPipeline, err = device.CreateComputePipeline(&wgpu.ComputePipelineDescriptor{
		Label: "ScatterInstancesPipeline",
		Compute: wgpu.ProgrammableStageDescriptor{
			Module:     module,
			EntryPoint: "scatter_instances",
		},
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("failed to create scatter pipeline: %w", err)
	}

	p.paramsBuf, err = device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: "SortParamsBuf",
		Size:  sortParamsSize,
		Usage: wgpu.BufferUsageUniform | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		p.Release()
		return nil, fmt.Errorf("failed to create params buffer: %w", err)
	}

	return p, nil
}

// bindFixedCapacity rewrites the kernels' runtime-sized array bindings into
// fixed-size ones. The capacity constants in deployed variants of this
// pipeline have no principled derivation, so the bound is configuration, not
// a constant.
func bindFixedCapacity(source string, capacity uint32) string {
	n := fmt.Sprintf(", %du>", capacity)
	source = strings.ReplaceAll(source, "array<MeshInstance>", "array<MeshInstance"+n)
	source = strings.ReplaceAll(source, "array<DrawIndirect>", "array<DrawIndirect"+n)
	source = strings.ReplaceAll(source, "array<DrawIndexedIndirect>", "array<DrawIndexedIndirect"+n)
	return source
}

// Prepare uploads the frame's unsorted instances and the cleared argument
// table, growing device buffers as needed, and flips the output buffer
// parity so this frame's scatter never writes into the buffer a still
// in-flight draw may be reading.
func (p *SortPipeline) Prepare(instances []MeshInstance, table *ArgTable) error {
	if table.Indexed() != p.indexed {
		return fmt.Errorf("argument table layout (indexed=%v) does not match pipeline (indexed=%v)", table.Indexed(), p.indexed)
	}
	if table.State() != FrameCleared {
		return fmt.Errorf("argument table must be cleared before upload, state is %v", table.State())
	}
	if err := validateInstances(instances, table.Len()); err != nil {
		return err
	}
	if p.fixedCapacity > 0 {
		if uint32(len(instances)) > p.fixedCapacity {
			return fmt.Errorf("instance count %d exceeds fixed capacity %d", len(instances), p.fixedCapacity)
		}
		if uint32(table.Len()) > p.fixedCapacity {
			return fmt.Errorf("bucket count %d exceeds fixed capacity %d", table.Len(), p.fixedCapacity)
		}
	}

	p.instanceCount = uint32(len(instances))
	p.bucketCount = uint32(table.Len())

	params := make([]byte, sortParamsSize)
	binary.LittleEndian.PutUint32(params[0:4], p.instanceCount)
	binary.LittleEndian.PutUint32(params[4:8], p.bucketCount)
	p.device.GetQueue().WriteBuffer(p.paramsBuf, 0, params)

	inRecreated, err := ensureBuffer(p.device, "InstanceInputBuf", &p.inBuf,
		PackInstances(instances), wgpu.BufferUsageStorage, bufferHeadroom)
	if err != nil {
		return err
	}

	argsRecreated, err := ensureBuffer(p.device, "IndirectArgsBuf", &p.argsBuf,
		table.Pack(), wgpu.BufferUsageStorage|wgpu.BufferUsageIndirect|wgpu.BufferUsageCopySrc, 0)
	if err != nil {
		return err
	}

	outBytes := len(instances) * InstanceStride
	outRecreated := false
	for i := range p.outBufs {
		recreated, err := ensureBuffer(p.device, fmt.Sprintf("SortedInstancesBuf%d", i), &p.outBufs[i],
			nil, wgpu.BufferUsageStorage|wgpu.BufferUsageCopySrc, outBytes+bufferHeadroom)
		if err != nil {
			return err
		}
		outRecreated = outRecreated || recreated
	}

	if inRecreated || argsRecreated || outRecreated || p.offsetsBindGroup == nil {
		if err := p.rebuildBindGroups(); err != nil {
			return err
		}
	}

	// Flip only once the whole upload succeeded. A failed Prepare retried in
	// the same frame must not land back on the buffer the previous frame's
	// draws may still be reading.
	p.flipParity()

	p.logger.Debugf("prepared sort frame: %d instances, %d buckets, parity %d",
		p.instanceCount, p.bucketCount, p.parity)
	return nil
}

func (p *SortPipeline) rebuildBindGroups() error {
	releaseBindGroup(&p.offsetsBindGroup)
	releaseBindGroup(&p.scatterBindGroups[0])
	releaseBindGroup(&p.scatterBindGroups[1])

	shared := []wgpu.BindGroupEntry{
		{Binding: 0, Buffer: p.paramsBuf, Size: wgpu.WholeSize},
		{Binding: 1, Buffer: p.inBuf, Size: wgpu.WholeSize},
		{Binding: 2, Buffer: p.argsBuf, Size: wgpu.WholeSize},
	}

	offsetsLayout := p.offsetsPipeline.GetBindGroupLayout(0)
	defer offsetsLayout.Release()
	offsetsBindGroup, err := p.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
		Label:   "IndirectOffsetsBindGroup",
		Layout:  offsetsLayout,
		Entries: shared,
	})
	if err != nil {
		return fmt.Errorf("failed to create offsets bind group: %w", err)
	}
	p.offsetsBindGroup = offsetsBindGroup

	scatterLayout := p.scatterPipeline.GetBindGroupLayout(0)
	defer scatterLayout.Release()
	for i := range p.outBufs {
		entries := append([]wgpu.BindGroupEntry{}, shared...)
		entries = append(entries, wgpu.BindGroupEntry{Binding: 3, Buffer: p.outBufs[i], Size: wgpu.WholeSize})
		bindGroup, err := p.device.CreateBindGroup(&wgpu.BindGroupDescriptor{
			Label:   "ScatterInstancesBindGroup",
			Layout:  scatterLayout,
			Entries: entries,
		})
		if err != nil {
			return fmt.Errorf("failed to create scatter bind group: %w", err)
		}
		p.scatterBindGroups[i] = bindGroup
	}
	return nil
}

// Encode records both passes on the encoder as two separate compute passes.
// The two-pass split is the synchronization mechanism: the scatter pass
// reads first-instance values the offset pass wrote, which a single merged
// dispatch could not make globally visible.
//
// The table's lifecycle state is advanced here; the counters themselves land
// in the device-side argument buffer when the encoder's work completes.
func (p *SortPipeline) Encode(encoder *wgpu.CommandEncoder, table *ArgTable) error {
	next, err := table.state.advance(FrameCleared, FrameOffsetsComputed)
	if err != nil {
		return err
	}
	table.state = next

	workgroups := (p.instanceCount + WorkgroupSize - 1) / WorkgroupSize
	if workgroups > 0 && p.bucketCount > 0 {
		offsetsPass := encoder.BeginComputePass(nil)
		offsetsPass.SetPipeline(p.offsetsPipeline)
		offsetsPass.SetBindGroup(0, p.offsetsBindGroup, nil)
		offsetsPass.DispatchWorkgroups(workgroups, 1, 1)
		if err := offsetsPass.End(); err != nil {
			return fmt.Errorf("failed to end offsets pass: %w", err)
		}
	}

	next, err = table.state.advance(FrameOffsetsComputed, FramePopulated)
	if err != nil {
		return err
	}
	table.state = next

	if workgroups > 0 && p.bucketCount > 0 {
		scatterPass := encoder.BeginComputePass(nil)
		scatterPass.SetPipeline(p.scatterPipeline)
		scatterPass.SetBindGroup(0, p.scatterBindGroups[p.parity], nil)
		scatterPass.DispatchWorkgroups(workgroups, 1, 1)
		if err := scatterPass.End(); err != nil {
			return fmt.Errorf("failed to end scatter pass: %w", err)
		}
	}

	p.logger.Debugf("encoded sort passes: %d workgroups", workgroups)
	return nil
}

// ArgsBuffer is the populated indirect argument buffer, usable directly as
// the argument source of indirect draw calls.
func (p *SortPipeline) ArgsBuffer() *wgpu.Buffer { return p.argsBuf }

// flipParity retargets the scatter pass and SortedBuffer at the other output
// buffer.
func (p *SortPipeline) flipParity() { p.parity = 1 - p.parity }

// SortedBuffer is this frame's sorted instance buffer.
func (p *SortPipeline) SortedBuffer() *wgpu.Buffer { return p.outBufs[p.parity] }

// ArgStride is the per-bucket byte stride inside ArgsBuffer.
func (p *SortPipeline) ArgStride() int { return p.argStride }

// InstanceCount is the instance count of the last prepared frame.
func (p *SortPipeline) InstanceCount() uint32 { return p.instanceCount }

// BucketCount is the bucket count of the last prepared frame.
func (p *SortPipeline) BucketCount() uint32 { return p.bucketCount }

func (p *SortPipeline) Release() {
	releaseBindGroup(&p.offsetsBindGroup)
	releaseBindGroup(&p.scatterBindGroups[0])
	releaseBindGroup(&p.scatterBindGroups[1])
	releaseBuffer(&p.paramsBuf)
	releaseBuffer(&p.inBuf)
	releaseBuffer(&p.argsBuf)
	releaseBuffer(&p.outBufs[0])
	releaseBuffer(&p.outBufs[1])
	if p.offsetsPipeline != nil {
		p.offsetsPipeline.Release()
		p.offsetsPipeline = nil
	}
	if p.scatterPipeline != nil {
		p.scatterPipeline.Release()
		p.scatterPipeline = nil
	}
}

func releaseBuffer(buf **wgpu.Buffer) {
	if *buf != nil {
		(*buf).Release()
		*buf = nil
	}
}

func releaseBindGroup(bg **wgpu.BindGroup) {
	if *bg != nil {
		(*bg).Release()
		*bg = nil
	}
}
