package orchestrator

import (
	"math"

	"github.com/achilleasa/gatling/gpu"
	"github.com/achilleasa/gatling/scene"
)

// workgroupTileSize is the traversal kernel's compute workgroup size in the
// x/y dimensions spec.md §6 dispatches over (one thread per output pixel).
const workgroupTileSize = 8

// fenceTimeoutNanos bounds how long a single dispatch can run before Frame
// reports it as a failed render step rather than hanging forever.
const fenceTimeoutNanos = 60 * uint64(1e9)

// dispatch binds the current shader-cache entry's pipeline against the
// fixed slot contract spec.md §6 names (0=output, 1=path queue, 2=nodes,
// 3=faces, 4=vertices, 5=materials, 6=hit queue), pushes the per-frame
// constants, records one compute dispatch tiled across the frame, and
// blocks until the device signals completion.
func (o *Orchestrator) dispatch(cam scene.Camera, aspect float32, opts Options) error {
	if err := o.ensureDispatchResources(); err != nil {
		return err
	}

	pipeline := o.shaderEntry.Pipeline
	bindings := gpu.Bindings{
		Buffers: []gpu.BufferBinding{
			{Binding: 0, Buffer: o.output},
			{Binding: 1, Buffer: o.pathQueue},
			{Binding: 2, Buffer: o.sceneBuffers.Nodes},
			{Binding: 3, Buffer: o.sceneBuffers.Faces},
			{Binding: 4, Buffer: o.sceneBuffers.Vertices},
			{Binding: 5, Buffer: o.sceneBuffers.Materials},
			{Binding: 6, Buffer: o.hitQueue},
			// Binding 7 carries the geometry cache's baked instance-transform
			// table. Pipelines built from a single flattened scene file never
			// reflect this slot, so UpdateBindings's reflected-binding walk
			// simply skips the extra entry; multi-instance pipelines that do
			// declare it get the per-instance transforms they need.
			{Binding: 7, Buffer: o.geom.Buffer},
		},
	}
	if err := o.device.Begin(o.cmdBuf); err != nil {
		return err
	}
	if err := o.device.UpdateBindings(o.cmdBuf, pipeline, bindings); err != nil {
		return err
	}
	if err := o.device.BindPipeline(o.cmdBuf, pipeline); err != nil {
		return err
	}
	if err := o.device.PushConstants(o.cmdBuf, pipeline, pushConstants(cam, aspect, opts, !o.accumValid)); err != nil {
		return err
	}

	groupsX := (opts.FrameW + workgroupTileSize - 1) / workgroupTileSize
	groupsY := (opts.FrameH + workgroupTileSize - 1) / workgroupTileSize
	if err := o.device.Dispatch(o.cmdBuf, groupsX, groupsY, 1); err != nil {
		return err
	}
	if err := o.device.End(o.cmdBuf); err != nil {
		return err
	}

	if err := o.device.ResetFence(o.fence); err != nil {
		return err
	}
	if err := o.device.Submit(o.cmdBuf, o.fence); err != nil {
		return err
	}
	if err := o.device.Wait(o.fence, fenceTimeoutNanos); err != nil {
		return err
	}

	// The dispatch the kernel just ran consumed resetAccum=!o.accumValid,
	// so any running sum it was told to clear is now valid again; the
	// very next dispatch blends into it rather than resetting.
	o.accumValid = true
	return nil
}

// ensureDispatchResources lazily allocates the command buffer and fence a
// dispatch reuses across frames, mirroring ensureScratchBuffers's
// allocate-once-reuse pattern.
func (o *Orchestrator) ensureDispatchResources() error {
	if o.cmdBuf == 0 {
		cmdBuf, err := o.device.CreateCommandBuffer()
		if err != nil {
			return err
		}
		o.cmdBuf = cmdBuf
	}
	if o.fence == 0 {
		fence, err := o.device.CreateFence(false)
		if err != nil {
			return err
		}
		o.fence = fence
	}
	return nil
}

// applyGammaToOutput walks the mapped RGBA32F output buffer and converts
// every pixel's colour channels from linear to sRGB in place, leaving alpha
// untouched. It is a no-op step the caller opts into per Options.ApplyGamma
// (spec.md §4.8's CPU-side gamma pass, ahead of any display/encode step
// that lives outside this module's scope).
func (o *Orchestrator) applyGammaToOutput() error {
	data, err := o.device.Map(o.output)
	if err != nil {
		return err
	}

	const bytesPerPixel = 16 // RGBA32F
	pixelCount := len(data) / bytesPerPixel
	for i := 0; i < pixelCount; i++ {
		off := i * bytesPerPixel
		rgb := ApplyGamma([3]float32{
			math.Float32frombits(leUint32(data[off : off+4])),
			math.Float32frombits(leUint32(data[off+4 : off+8])),
			math.Float32frombits(leUint32(data[off+8 : off+12])),
		})
		putFloat32(data[off:off+4], rgb[0])
		putFloat32(data[off+4:off+8], rgb[1])
		putFloat32(data[off+8:off+12], rgb[2])
	}

	if err := o.device.Flush(o.output); err != nil {
		return err
	}
	return o.device.Unmap(o.output)
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putFloat32(b []byte, v float32) {
	bits := math.Float32bits(v)
	b[0] = byte(bits)
	b[1] = byte(bits >> 8)
	b[2] = byte(bits >> 16)
	b[3] = byte(bits >> 24)
}
