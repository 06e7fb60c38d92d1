package indraw

import (
	"fmt"
	"runtime"

	"github.com/cogentcore/webgpu/wgpu"
	"github.com/cogentcore/webgpu/wgpuglfw"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// Display bundles a glfw window with the wgpu objects needed to drive it.
// Demo/program glue, not part of the sorting pipeline itself.
type Display struct {
	Window *glfw.Window
	Width  int
	Height int

	Surface       *wgpu.Surface
	Adapter       *wgpu.Adapter
	Device        *wgpu.Device
	Queue         *wgpu.Queue
	SurfaceConfig *wgpu.SurfaceConfiguration
}

// requiredDeviceFeatures lists the features a device must support to consume
// the argument buffers produced here. Without IndirectFirstInstance, wgpu
// discards indirect draws whose first_instance is nonzero, so only bucket 0
// would ever render.
func requiredDeviceFeatures() []wgpu.FeatureName {
	return []wgpu.FeatureName{wgpu.FeatureNameIndirectFirstInstance}
}

// NewDisplay opens a window and configures a swapchain on it. Must be called
// from the main goroutine; it locks the OS thread for glfw.
func NewDisplay(width, height int, title string) (*Display, error) {
	runtime.LockOSThread()
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("failed to init glfw: %w", err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI) // no OpenGL context, wgpu owns the surface
	glfw.WindowHint(glfw.Resizable, glfw.False)

	win, err := glfw.CreateWindow(width, height, title, nil, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create window: %w", err)
	}

	instance := wgpu.CreateInstance(nil)
	defer instance.Release()

	surface := instance.CreateSurface(wgpuglfw.GetSurfaceDescriptor(win))
	adapter, err := instance.RequestAdapter(&wgpu.RequestAdapterOptions{
		CompatibleSurface: surface,
		PowerPreference:   wgpu.PowerPreferenceHighPerformance,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request adapter: %w", err)
	}

	device, err := adapter.RequestDevice(&wgpu.DeviceDescriptor{
		Label:            "Main Device",
		RequiredFeatures: requiredDeviceFeatures(),
		RequiredLimits:   nil,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to request device: %w", err)
	}
	queue := device.GetQueue()

	caps := surface.GetCapabilities(adapter)
	surfaceConfig := wgpu.SurfaceConfiguration{
		Usage:       wgpu.TextureUsageRenderAttachment,
		Format:      caps.Formats[0],
		Width:       uint32(width),
		Height:      uint32(height),
		PresentMode: wgpu.PresentModeFifo, // vsync
		AlphaMode:   caps.AlphaModes[0],
	}
	surface.Configure(adapter, device, &surfaceConfig)

	return &Display{
		Window:        win,
		Width:         width,
		Height:        height,
		Surface:       surface,
		Adapter:       adapter,
		Device:        device,
		Queue:         queue,
		SurfaceConfig: &surfaceConfig,
	}, nil
}

// CreateVertexIndexBuffers uploads mesh geometry.
func CreateVertexIndexBuffers(device *wgpu.Device, vertices []MeshVertex, indices []uint16) (*wgpu.Buffer, *wgpu.Buffer, error) {
	vertexBuf, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Vertex Buffer",
		Contents: wgpu.ToBytes(vertices),
		Usage:    wgpu.BufferUsageVertex,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create vertex buffer: %w", err)
	}
	indexBuf, err := device.CreateBufferInit(&wgpu.BufferInitDescriptor{
		Label:    "Index Buffer",
		Contents: wgpu.ToBytes(indices),
		Usage:    wgpu.BufferUsageIndex,
	})
	if err != nil {
		vertexBuf.Release()
		return nil, nil, fmt.Errorf("failed to create index buffer: %w", err)
	}
	return vertexBuf, indexBuf, nil
}

func (d *Display) Release() {
	if d.Device != nil {
		d.Device.Release()
		d.Device = nil
	}
	if d.Adapter != nil {
		d.Adapter.Release()
		d.Adapter = nil
	}
	if d.Surface != nil {
		d.Surface.Release()
		d.Surface = nil
	}
	if d.Window != nil {
		d.Window.Destroy()
		d.Window = nil
	}
	glfw.Terminate()
}
