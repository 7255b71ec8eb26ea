// Package orchestrator implements the render-pass state machine spec.md
// §4.8/C9 describes: per frame it detects scene invalidations, rebuilds the
// shader and geometry caches, resolves the camera, submits one dispatch and
// maps the output buffer. It is grounded on the teacher's cmd/render.go
// RenderFrame (scene load -> pipeline setup -> renderer.Render -> stats
// display) generalised from a one-shot CLI render into a per-frame driver
// an interactive or batch caller invokes repeatedly.
package orchestrator

import (
	"time"

	"github.com/achilleasa/gatling/gpu"
	"github.com/achilleasa/gatling/log"
	"github.com/achilleasa/gatling/shadercache"
)

// SceneBuffers are the four read-only geometry buffers the preprocessor's
// scene file supplies, already uploaded to the device (spec.md §6's
// storage bindings 2-5). Uploading them is the caller's job (typically
// once per loaded .gsd file, via scene/sceneio.Read plus gpu.CreateBuffer);
// the orchestrator only binds them.
type SceneBuffers struct {
	Nodes     gpu.BufferHandle
	Faces     gpu.BufferHandle
	Vertices  gpu.BufferHandle
	Materials gpu.BufferHandle
}

// Orchestrator drives one device's render-pass state machine across
// frames. It owns the shader cache, the geometry cache, and the output/
// scratch buffers a dispatch needs; it does not own SceneBuffers, which
// the caller loaded once up front.
type Orchestrator struct {
	logger log.Logger
	device *gpu.Device

	shaders      *shadercache.Cache
	shaderEntry  *shadercache.Entry
	geom         GeometryCache
	sceneBuffers SceneBuffers

	output    gpu.BufferHandle
	pathQueue gpu.BufferHandle
	hitQueue  gpu.BufferHandle
	outputW   uint32
	outputH   uint32
	hasOutput bool

	cmdBuf gpu.CommandBufferHandle
	fence  gpu.FenceHandle

	state        State
	prevVersions ChangeVersions
	accumValid   bool
}

// New creates an orchestrator bound to a device and the shader cache it
// should rebuild from on invalidation.
func New(device *gpu.Device, shaders *shadercache.Cache) *Orchestrator {
	return &Orchestrator{
		logger:  log.New("orchestrator"),
		device:  device,
		shaders: shaders,
		state:   Idle,
	}
}

// SetSceneBuffers installs the currently loaded scene's read-only geometry
// buffers. Callers swap these when switching to a different .gsd file.
func (o *Orchestrator) SetSceneBuffers(b SceneBuffers) {
	o.sceneBuffers = b
}

// Close releases the geometry cache, the output and queue buffers and the
// fence (but not SceneBuffers, which it never owned). The command buffer
// is not freed here; it stays allocated from the device's command pool.
func (o *Orchestrator) Close() {
	o.geom.Destroy(o.device)
	if o.hasOutput {
		o.device.DestroyBuffer(o.output)
		o.device.DestroyBuffer(o.pathQueue)
		o.device.DestroyBuffer(o.hitQueue)
	}
	if o.fence != 0 {
		o.device.DestroyFence(o.fence)
	}
}

// Frame runs one full pass of the state machine: Idle -> Invalidating ->
// Rebuilding(Shader|Geom) -> Dispatched -> Resolved -> Idle. Any failure
// returns *RenderStepFailed, leaves previously built caches untouched, and
// resets the state to Idle so the caller can retry on the next frame.
func (o *Orchestrator) Frame(registry SceneRegistry, opts Options) (FrameStats, error) {
	start := time.Now()
	var stats FrameStats

	o.state = Invalidating
	versions := registry.ChangeVersions()
	if versions.Changed(o.prevVersions) {
		o.accumValid = false
	}

	o.state = RebuildingShader
	key := shadercache.Key{AOV: registry.AOV(), Features: registry.Features(), Material: registry.MaterialSet().Digest}
	if entry, ok := o.shaders.Lookup(key); ok {
		o.shaderEntry = entry
		stats.ShaderCacheHits++
	} else {
		entry, err := o.shaders.GetOrBuild(key, registry.MaterialSet())
		if err != nil {
			o.state = Idle
			return stats, &RenderStepFailed{Stage: RebuildingShader, Err: err}
		}
		o.shaderEntry = entry
		stats.ShaderCacheRebuilds++
	}

	o.state = RebuildingGeom
	if versions.VisibilityChanged(o.prevVersions) || !o.geom.built {
		var next GeometryCache
		instances := registry.MeshInstances()
		if err := next.Build(o.device, instances); err != nil {
			o.state = Idle
			return stats, &RenderStepFailed{Stage: RebuildingGeom, Err: err}
		}
		o.geom.Destroy(o.device)
		o.geom = next
		stats.GeometryCacheRebuilds++
	}

	o.prevVersions = versions

	if err := o.ensureScratchBuffers(opts); err != nil {
		o.state = Idle
		return stats, &RenderStepFailed{Stage: RebuildingGeom, Err: err}
	}

	aspect := float32(opts.FrameW) / float32(opts.FrameH)
	cam := ResolveCamera(registry.CameraWorldTransform(), registry.CameraAperture(), registry.CameraFocal(), aspect)

	o.state = Dispatched
	dispatchStart := time.Now()
	if err := o.dispatch(cam, aspect, opts); err != nil {
		o.state = Idle
		return stats, &RenderStepFailed{Stage: Dispatched, Err: err}
	}
	stats.DispatchTime = time.Since(dispatchStart)

	o.state = Resolved
	readbackStart := time.Now()
	if opts.ApplyGamma {
		if err := o.applyGammaToOutput(); err != nil {
			o.state = Idle
			return stats, &RenderStepFailed{Stage: Resolved, Err: err}
		}
	}
	stats.ReadbackTime = time.Since(readbackStart)

	o.state = Idle
	stats.RenderTime = time.Since(start)
	return stats, nil
}

// ensureScratchBuffers (re)allocates the output pixel buffer and the two
// per-frame queues sized by the current frame dimensions, recreating them
// only when the dims actually change.
func (o *Orchestrator) ensureScratchBuffers(opts Options) error {
	if o.hasOutput && o.outputW == opts.FrameW && o.outputH == opts.FrameH {
		return nil
	}
	if o.hasOutput {
		o.device.DestroyBuffer(o.output)
		o.device.DestroyBuffer(o.pathQueue)
		o.device.DestroyBuffer(o.hitQueue)
	}

	pixelCount := uint64(opts.FrameW) * uint64(opts.FrameH)
	outSize := pixelCount * 4 * 4 // RGBA32F
	out, err := o.device.CreateBuffer(outSize, gpu.BufferUsageStorage|gpu.BufferUsageTransferSrc, gpu.MemoryHostCached)
	if err != nil {
		return err
	}

	const pathSegmentStride = 64
	pathQueue, err := o.device.CreateBuffer(pixelCount*pathSegmentStride, gpu.BufferUsageStorage, gpu.MemoryDeviceLocal)
	if err != nil {
		o.device.DestroyBuffer(out)
		return err
	}

	const hitInfoStride = 32
	hitQueue, err := o.device.CreateBuffer(pixelCount*hitInfoStride, gpu.BufferUsageStorage, gpu.MemoryDeviceLocal)
	if err != nil {
		o.device.DestroyBuffer(out)
		o.device.DestroyBuffer(pathQueue)
		return err
	}

	o.output, o.pathQueue, o.hitQueue = out, pathQueue, hitQueue
	o.outputW, o.outputH = opts.FrameW, opts.FrameH
	o.hasOutput = true
	return nil
}

