package orchestrator

import (
	"math"

	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/types"
)

// ResolveCamera derives the render camera from a world-space transform plus
// a physical aperture/focal pair, per spec.md §4.8: `{pos, forward, up}` are
// `(0,0,0)`, `(0,0,-1)` and `(0,1,0)` transformed through worldTransform,
// and `vfov = 2*atan(aperture/(2*focal))`. hfov is then derived from vfov
// and the frame aspect ratio, since the on-disk camera record (scene.Camera)
// stores horizontal rather than vertical field of view.
func ResolveCamera(worldTransform types.Mat4, aperture, focal float32, aspect float32) scene.Camera {
	origin := worldTransform.Mul4x3(types.Vec3{0, 0, 0})
	forward := worldTransform.Mul4x3Dir(types.Vec3{0, 0, -1}).Normalize()
	up := worldTransform.Mul4x3Dir(types.Vec3{0, 1, 0}).Normalize()

	vfov := 2 * float32(math.Atan(float64(aperture)/(2*float64(focal))))
	hfov := vfovToHFov(vfov, aspect)

	return scene.Camera{
		Origin:  origin,
		Forward: forward,
		Up:      up,
		HFov:    hfov,
	}
}

// vfovToHFov converts a vertical field of view to horizontal given the
// frame's width/height aspect ratio, inverting the usual
// hfov-from-vfov-and-aspect relation used by perspective projections.
func vfovToHFov(vfov, aspect float32) float32 {
	return 2 * float32(math.Atan(math.Tan(float64(vfov)/2)*float64(aspect)))
}
