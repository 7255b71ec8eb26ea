package orchestrator

// Options is the per-frame render configuration, adapted from the
// teacher's renderer.Options to the fields spec.md §6's push-constant
// block and §4.8's camera/gamma steps actually consume.
type Options struct {
	// Frame dims.
	FrameW uint32
	FrameH uint32

	// Number of indirect bounces.
	NumBounces uint32

	// Min bounces before applying russian roulette for path elimination.
	MinBouncesForRR uint32

	// Number of samples per pixel.
	SamplesPerPixel uint32

	// Exposure for tonemapping.
	Exposure float32

	// MaxSampleValue clamps a single sample's contribution before it is
	// accumulated, guarding against fireflies (spec.md §6's push-constant
	// block).
	MaxSampleValue float32

	// DomeLightVisible mirrors the DomeLightCameraVisible feature flag's
	// runtime counterpart: whether camera rays that escape the scene see
	// the dome light directly.
	DomeLightVisible bool

	// BackgroundColor is used when DomeLightVisible is false and a ray
	// escapes the scene without hitting geometry.
	BackgroundColor [3]float32

	// ApplyGamma requests the CPU-side sRGB conversion of §4.8 on
	// readback; callers writing to an HDR output format leave this false.
	ApplyGamma bool
}

// effectiveMinBouncesForRR mirrors the teacher's RenderFrame guard: RR is
// disabled entirely (by pushing its threshold past NumBounces) when the
// caller leaves MinBouncesForRR unset or sets it at/above NumBounces.
func (o Options) effectiveMinBouncesForRR() uint32 {
	if o.MinBouncesForRR == 0 || o.MinBouncesForRR >= o.NumBounces {
		return o.NumBounces + 1
	}
	return o.MinBouncesForRR
}
