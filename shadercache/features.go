// Package shadercache rebuilds compute pipelines and descriptor sets in
// response to AOV, feature-flag or material-set invalidation (spec.md
// §4.7/C8). It is grounded on the teacher's lack of an equivalent component
// (go-pathtrace never recompiles kernels at runtime — it links one fixed
// OpenCL program) combined with original_source/src/gi's variant-keying
// scheme: a cache keyed on a feature-flag bitmask and a material digest,
// built here on top of the gpu package's SPIR-V reflection machinery.
package shadercache

// FeatureFlags is the compile-time #define bitmask spec.md §4.7/§6 names.
// It participates in the cache key alongside the AOV id and the material
// set's digest.
type FeatureFlags uint32

const (
	DepthOfField FeatureFlags = 1 << iota
	FilterImportanceSampling
	NextEventEstimation
	ProgressiveAccumulation
	DomeLightCameraVisible
)

// Defines renders the flag set into the #define list the MaterialCompiler
// collaborator expects (spec.md §6): one entry per set bit, using the exact
// names spec.md §4.7 lists.
func (f FeatureFlags) Defines() []string {
	var out []string
	if f&DepthOfField != 0 {
		out = append(out, "DEPTH_OF_FIELD")
	}
	if f&FilterImportanceSampling != 0 {
		out = append(out, "FILTER_IMPORTANCE_SAMPLING")
	}
	if f&NextEventEstimation != 0 {
		out = append(out, "NEXT_EVENT_ESTIMATION")
	}
	if f&ProgressiveAccumulation != 0 {
		out = append(out, "PROGRESSIVE_ACCUMULATION")
	}
	if f&DomeLightCameraVisible != 0 {
		out = append(out, "DOME_LIGHT_CAMERA_VISIBLE")
	}
	return out
}
