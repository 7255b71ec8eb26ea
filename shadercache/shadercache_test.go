package shadercache

import "testing"

func TestKeyDigestStableAndDistinct(t *testing.T) {
	a := Key{AOV: 1, Features: DepthOfField, Material: 42}
	b := Key{AOV: 1, Features: DepthOfField, Material: 42}
	if a.digest() != b.digest() {
		t.Fatal("expected identical keys to produce the same digest")
	}

	c := Key{AOV: 1, Features: NextEventEstimation, Material: 42}
	if a.digest() == c.digest() {
		t.Fatal("expected differing feature flags to produce different digests")
	}
}

func TestFeatureFlagsDefines(t *testing.T) {
	f := DepthOfField | NextEventEstimation
	defines := f.Defines()
	if len(defines) != 2 {
		t.Fatalf("expected 2 defines, got %d: %v", len(defines), defines)
	}
}

type fakeCompiler struct {
	calls     int
	failFirst bool
}

func (f *fakeCompiler) Compile(materials MaterialSet, aov AOVID, features FeatureFlags) ([]uint32, *CompileError) {
	f.calls++
	if f.failFirst && f.calls == 1 {
		return nil, &CompileError{Reason: "boom"}
	}
	return []uint32{0x07230203, 0, 0, 0, 0}, nil
}

func TestFallbackCompilerRetriesWithDiffuse(t *testing.T) {
	inner := &fakeCompiler{failFirst: true}
	fc := &FallbackCompiler{Inner: inner, BaseColor: [3]float32{0.5, 0.5, 0.5}}

	spirv, err := fc.Compile(MaterialSet{Digest: 7}, AOVID(0), 0)
	if err != nil {
		t.Fatalf("expected fallback compile to succeed, got %v", err)
	}
	if len(spirv) == 0 {
		t.Fatal("expected non-empty spirv from fallback compile")
	}
	if inner.calls != 2 {
		t.Fatalf("expected inner compiler to be called twice, got %d", inner.calls)
	}
}

type alwaysFailCompiler struct{}

func (alwaysFailCompiler) Compile(materials MaterialSet, aov AOVID, features FeatureFlags) ([]uint32, *CompileError) {
	return nil, &CompileError{Reason: "nope"}
}

func TestFallbackCompilerSurfacesOriginalErrorWhenBothFail(t *testing.T) {
	fc := &FallbackCompiler{Inner: alwaysFailCompiler{}}
	_, err := fc.Compile(MaterialSet{Digest: 1}, AOVID(0), 0)
	if err == nil {
		t.Fatal("expected an error when both the real and fallback compile fail")
	}
	if err.Reason != "nope" {
		t.Fatalf("expected the original error reason to be surfaced, got %q", err.Reason)
	}
}

func TestFallbackAOVsRestrictsFallback(t *testing.T) {
	inner := &fakeCompiler{failFirst: true}
	fc := &FallbackCompiler{Inner: inner, FallbackAOVs: map[AOVID]bool{1: true}}

	_, err := fc.Compile(MaterialSet{Digest: 1}, AOVID(0), 0)
	if err == nil {
		t.Fatal("expected compile to fail for an AOV not in FallbackAOVs")
	}
	if inner.calls != 1 {
		t.Fatalf("expected no fallback retry, inner called %d times", inner.calls)
	}
}
