package orchestrator

import (
	"encoding/binary"
	"math"

	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/shadercache"
)

// pushConstants packs the per-frame block spec.md §6 names (camera,
// bounces, SPP, RR parameters, max sample value, dome-light toggle,
// background colour, accumulation-reset flag) into the fixed
// shadercache.PushConstantSize buffer every compiled kernel's pipeline
// layout reserves. resetAccum is set whenever the orchestrator's
// accumulated samples are stale (scene changed, or no frame has run yet)
// so the kernel clears its running sum instead of blending into it.
func pushConstants(cam scene.Camera, aspect float32, opts Options, resetAccum bool) []byte {
	buf := make([]byte, shadercache.PushConstantSize)
	putVec3Pad := func(off int, v [3]float32) {
		binary.LittleEndian.PutUint32(buf[off:off+4], math.Float32bits(v[0]))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(v[1]))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], math.Float32bits(v[2]))
	}

	putVec3Pad(0, [3]float32{cam.Origin[0], cam.Origin[1], cam.Origin[2]})
	putVec3Pad(16, [3]float32{cam.Forward[0], cam.Forward[1], cam.Forward[2]})
	putVec3Pad(32, [3]float32{cam.Up[0], cam.Up[1], cam.Up[2]})

	binary.LittleEndian.PutUint32(buf[48:52], math.Float32bits(cam.HFov))
	binary.LittleEndian.PutUint32(buf[52:56], math.Float32bits(aspect))
	binary.LittleEndian.PutUint32(buf[56:60], opts.NumBounces)
	binary.LittleEndian.PutUint32(buf[60:64], opts.effectiveMinBouncesForRR())

	binary.LittleEndian.PutUint32(buf[64:68], opts.SamplesPerPixel)
	binary.LittleEndian.PutUint32(buf[68:72], math.Float32bits(opts.Exposure))
	binary.LittleEndian.PutUint32(buf[72:76], math.Float32bits(opts.MaxSampleValue))
	domeVisible := uint32(0)
	if opts.DomeLightVisible {
		domeVisible = 1
	}
	binary.LittleEndian.PutUint32(buf[76:80], domeVisible)

	putVec3Pad(80, opts.BackgroundColor)

	reset := uint32(0)
	if resetAccum {
		reset = 1
	}
	binary.LittleEndian.PutUint32(buf[96:100], reset)
	// buf[100:128] is reserved for future push-constant fields.
	return buf
}
