package orchestrator

import (
	"math"
	"testing"

	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/shadercache"
	"github.com/achilleasa/gatling/types"
)

func approxEqual(a, b, eps float32) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d <= eps
}

func TestGammaRoundTrip(t *testing.T) {
	for _, v := range []float32{0, 0.001, 0.0031308, 0.02, 0.18, 0.5, 0.99, 1} {
		srgb := LinearToSRGB(v)
		back := SRGBToLinear(srgb)
		if !approxEqual(v, back, 1e-4) {
			t.Errorf("round trip failed for %v: srgb=%v back=%v", v, srgb, back)
		}
	}
}

func TestGammaClamps(t *testing.T) {
	if got := LinearToSRGB(-1); got != 0 {
		t.Errorf("expected 0, got %v", got)
	}
	if got := LinearToSRGB(2); got != 1 {
		t.Errorf("expected 1, got %v", got)
	}
}

func TestGammaBelowThresholdIsLinear(t *testing.T) {
	got := LinearToSRGB(0.001)
	want := float32(12.92 * 0.001)
	if !approxEqual(got, want, 1e-6) {
		t.Errorf("expected linear segment result %v, got %v", want, got)
	}
}

func TestChangeVersionsChanged(t *testing.T) {
	prev := ChangeVersions{SceneState: 1, SprimIndex: 2, RenderSettings: 3, Visibility: 4}
	same := prev
	if same.Changed(prev) {
		t.Errorf("expected no change when versions are identical")
	}

	bumped := prev
	bumped.RenderSettings++
	if !bumped.Changed(prev) {
		t.Errorf("expected change when RenderSettings bumped")
	}
}

func TestVisibilityChangedTriggersOnSceneStateToo(t *testing.T) {
	prev := ChangeVersions{SceneState: 1, Visibility: 1}

	onlyVisibility := prev
	onlyVisibility.Visibility++
	if !onlyVisibility.VisibilityChanged(prev) {
		t.Errorf("expected VisibilityChanged to report true on Visibility bump")
	}

	onlySceneState := prev
	onlySceneState.SceneState++
	if !onlySceneState.VisibilityChanged(prev) {
		t.Errorf("expected VisibilityChanged to report true on SceneState bump too")
	}

	onlyRenderSettings := prev
	onlyRenderSettings.RenderSettings++
	if onlyRenderSettings.VisibilityChanged(prev) {
		t.Errorf("expected VisibilityChanged to ignore RenderSettings-only bumps")
	}
}

func TestResolveCameraIdentityTransform(t *testing.T) {
	cam := ResolveCamera(types.Ident4(), 1, 1, 1)
	if !approxEqual(cam.Origin[0], 0, 1e-6) || !approxEqual(cam.Origin[1], 0, 1e-6) || !approxEqual(cam.Origin[2], 0, 1e-6) {
		t.Errorf("expected origin at identity, got %v", cam.Origin)
	}
	if !approxEqual(cam.Forward[2], -1, 1e-6) {
		t.Errorf("expected forward -Z, got %v", cam.Forward)
	}
	if !approxEqual(cam.Up[1], 1, 1e-6) {
		t.Errorf("expected up +Y, got %v", cam.Up)
	}
	wantVfov := 2 * float32(math.Atan(0.5))
	wantHfov := vfovToHFov(wantVfov, 1)
	if !approxEqual(cam.HFov, wantHfov, 1e-5) {
		t.Errorf("expected hfov %v, got %v", wantHfov, cam.HFov)
	}
}

func TestResolveCameraTranslated(t *testing.T) {
	xform := types.Translate3D(types.Vec3{3, 4, 5})
	cam := ResolveCamera(xform, 1, 1, 1.5)
	if !approxEqual(cam.Origin[0], 3, 1e-5) || !approxEqual(cam.Origin[1], 4, 1e-5) || !approxEqual(cam.Origin[2], 5, 1e-5) {
		t.Errorf("expected translated origin, got %v", cam.Origin)
	}
	// A pure translation doesn't affect directions.
	if !approxEqual(cam.Forward[2], -1, 1e-5) {
		t.Errorf("expected forward unaffected by translation, got %v", cam.Forward)
	}
}

func TestEffectiveMinBouncesForRR(t *testing.T) {
	o := Options{NumBounces: 8, MinBouncesForRR: 0}
	if got := o.effectiveMinBouncesForRR(); got != 9 {
		t.Errorf("expected RR disabled (9), got %v", got)
	}

	o2 := Options{NumBounces: 8, MinBouncesForRR: 20}
	if got := o2.effectiveMinBouncesForRR(); got != 9 {
		t.Errorf("expected RR disabled (9) when threshold exceeds bounces, got %v", got)
	}

	o3 := Options{NumBounces: 8, MinBouncesForRR: 3}
	if got := o3.effectiveMinBouncesForRR(); got != 3 {
		t.Errorf("expected threshold preserved, got %v", got)
	}
}

func TestPushConstantsLayout(t *testing.T) {
	cam := scene.Camera{
		Origin:  types.Vec3{1, 2, 3},
		Forward: types.Vec3{0, 0, -1},
		Up:      types.Vec3{0, 1, 0},
		HFov:    1.2,
	}
	opts := Options{
		NumBounces:       4,
		MinBouncesForRR:  2,
		SamplesPerPixel:  16,
		Exposure:         1.5,
		MaxSampleValue:   10,
		DomeLightVisible: true,
		BackgroundColor:  [3]float32{0.1, 0.2, 0.3},
	}
	buf := pushConstants(cam, 1.777, opts, true)
	if len(buf) != shadercache.PushConstantSize {
		t.Fatalf("expected %d bytes, got %d", shadercache.PushConstantSize, len(buf))
	}

	readF32 := func(off int) float32 {
		bits := uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
		return math.Float32frombits(bits)
	}
	readU32 := func(off int) uint32 {
		return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
	}

	if got := readF32(0); got != 1 {
		t.Errorf("origin.x: expected 1, got %v", got)
	}
	if got := readU32(56); got != 4 {
		t.Errorf("numBounces at offset 56: expected 4, got %v", got)
	}
	if got := readU32(76); got != 1 {
		t.Errorf("domeLightVisible at offset 76: expected 1, got %v", got)
	}
	if got := readF32(80); !approxEqual(got, 0.1, 1e-6) {
		t.Errorf("background.r at offset 80: expected 0.1, got %v", got)
	}
	if got := readU32(96); got != 1 {
		t.Errorf("resetAccum at offset 96: expected 1, got %v", got)
	}
	for i := 100; i < 128; i++ {
		if buf[i] != 0 {
			t.Fatalf("expected reserved tail byte %d to be zero, got %d", i, buf[i])
		}
	}

	unchanged := pushConstants(cam, 1.777, opts, false)
	if got := readU32FromBuf(unchanged, 96); got != 0 {
		t.Errorf("resetAccum at offset 96 with resetAccum=false: expected 0, got %v", got)
	}
}

func readU32FromBuf(buf []byte, off int) uint32 {
	return uint32(buf[off]) | uint32(buf[off+1])<<8 | uint32(buf[off+2])<<16 | uint32(buf[off+3])<<24
}

func TestStateString(t *testing.T) {
	cases := map[State]string{
		Idle:             "Idle",
		Invalidating:     "Invalidating",
		RebuildingShader: "RebuildingShader",
		RebuildingGeom:   "RebuildingGeom",
		Dispatched:       "Dispatched",
		Resolved:         "Resolved",
		State(99):        "Unknown",
	}
	for s, want := range cases {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}

func TestRenderStepFailedUnwraps(t *testing.T) {
	inner := &shadercache.ErrCompileFailed{Reason: "boom"}
	err := &RenderStepFailed{Stage: RebuildingShader, Err: inner}
	if err.Unwrap() != inner {
		t.Errorf("expected Unwrap to return the wrapped error")
	}
	if err.Error() == "" {
		t.Errorf("expected non-empty error message")
	}
}
