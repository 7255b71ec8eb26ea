package shadercache

// FallbackCompiler wraps a MaterialCompiler and retries a failed compile
// once against a substitute MaterialSet whose digest is derived from the
// failed set's digest (diffuseFallbackDigest). The substitute carries only
// that digest: BaseColor is stored on the struct but Compile never passes
// it to Inner.
type FallbackCompiler struct {
	Inner        MaterialCompiler
	BaseColor    [3]float32
	FallbackAOVs map[AOVID]bool // AOVs eligible for fallback; nil means all
}

// Compile delegates to Inner; on failure, for an AOV eligible under
// FallbackAOVs, it retries once with the substitute MaterialSet. If the
// retry fails too, the original error is returned.
func (f *FallbackCompiler) Compile(materials MaterialSet, aov AOVID, features FeatureFlags) ([]uint32, *CompileError) {
	spirv, err := f.Inner.Compile(materials, aov, features)
	if err == nil {
		return spirv, nil
	}
	if f.FallbackAOVs != nil && !f.FallbackAOVs[aov] {
		return nil, err
	}

	diffuse := MaterialSet{Digest: diffuseFallbackDigest(materials.Digest)}
	spirv, fallbackErr := f.Inner.Compile(diffuse, aov, features)
	if fallbackErr != nil {
		// Both the real and the fallback material failed to compile;
		// surface the original error, since it's the one that matters
		// to the caller deciding whether to retry.
		return nil, err
	}
	return spirv, nil
}

// diffuseFallbackDigest derives a stable digest for the synthetic diffuse
// material set from the digest of the material set it replaces, so the
// shader cache still keys the fallback pipeline distinctly from the one
// that failed to compile.
func diffuseFallbackDigest(d MaterialSetDigest) MaterialSetDigest {
	return d ^ 0xD1FFE5E // "diffuse" marker XORed into the original digest.
}
