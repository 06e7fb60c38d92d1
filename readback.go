package indraw

import (
	"fmt"

	"github.com/cogentcore/webgpu/wgpu"
)

// ReadResults copies the argument buffer and the current sorted instance
// buffer back to the host and decodes them. Non-indexed arguments are
// normalized into the indexed struct (IndexCount carries the vertex count,
// BaseVertex is zero), matching ArgTable.Args.
//
// This blocks on the device and exists for validation and debugging; the
// render path never reads results back.
func (p *SortPipeline) ReadResults() ([]DrawIndexedIndirectArgs, []MeshInstance, error) {
	argsSize := uint64(p.bucketCount) * uint64(p.argStride)
	instancesSize := uint64(p.instanceCount) * InstanceStride

	argsData, err := p.readBuffer("ArgsReadbackBuf", p.argsBuf, argsSize)
	if err != nil {
		return nil, nil, err
	}
	instanceData, err := p.readBuffer("SortedReadbackBuf", p.SortedBuffer(), instancesSize)
	if err != nil {
		return nil, nil, err
	}

	args := make([]DrawIndexedIndirectArgs, p.bucketCount)
	for k := range args {
		raw := argsData[k*p.argStride:]
		if p.indexed {
			args[k] = decodeDrawIndexedIndirectArgs(raw)
		} else {
			plain := decodeDrawIndirectArgs(raw)
			args[k] = DrawIndexedIndirectArgs{
				IndexCount:    plain.VertexCount,
				InstanceCount: plain.InstanceCount,
				FirstIndex:    plain.FirstVertex,
				FirstInstance: plain.FirstInstance,
			}
		}
	}

	instances, err := UnpackInstances(instanceData)
	if err != nil {
		return nil, nil, err
	}
	return args, instances, nil
}

// readBuffer does a synchronous copy-to-host of src[0:size].
func (p *SortPipeline) readBuffer(label string, src *wgpu.Buffer, size uint64) ([]byte, error) {
	if size == 0 {
		return nil, nil
	}
	alignedSize := size
	if alignedSize%4 != 0 {
		alignedSize += 4 - (alignedSize % 4)
	}

	readback, err := p.device.CreateBuffer(&wgpu.BufferDescriptor{
		Label: label,
		Size:  alignedSize,
		Usage: wgpu.BufferUsageMapRead | wgpu.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readback buffer: %w", err)
	}
	defer readback.Release()

	encoder, err := p.device.CreateCommandEncoder(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create readback encoder: %w", err)
	}
	defer encoder.Release()

	if err := encoder.CopyBufferToBuffer(src, 0, readback, 0, alignedSize); err != nil {
		return nil, fmt.Errorf("failed to record readback copy: %w", err)
	}
	cmdBuf, err := encoder.Finish(nil)
	if err != nil {
		return nil, fmt.Errorf("failed to finish readback encoder: %w", err)
	}
	defer cmdBuf.Release()
	p.device.GetQueue().Submit(cmdBuf)

	var mapErr error
	done := false
	err = readback.MapAsync(wgpu.MapModeRead, 0, alignedSize, func(status wgpu.BufferMapAsyncStatus) {
		if status != wgpu.BufferMapAsyncStatusSuccess {
			mapErr = fmt.Errorf("readback map failed with status %v", status)
		}
		done = true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to map readback buffer: %w", err)
	}
	for !done {
		p.device.Poll(true, nil)
	}
	if mapErr != nil {
		return nil, mapErr
	}
	defer readback.Unmap()

	mapped := readback.GetMappedRange(0, uint(alignedSize))
	data := make([]byte, size)
	copy(data, mapped[:size])
	return data, nil
}
