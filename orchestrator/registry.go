package orchestrator

import (
	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/shadercache"
	"github.com/achilleasa/gatling/types"
)

// SceneRegistry is the external collaborator the orchestrator polls each
// frame: the USD render-delegate glue spec.md §1 places out of scope. It
// exposes exactly the four change-version counters, the scene walk, and
// the camera/material state spec.md §4.8 needs — nothing about how the
// scene graph itself is stored.
type SceneRegistry interface {
	ChangeVersions() ChangeVersions
	MeshInstances() []scene.MeshInstance

	// CameraWorldTransform, CameraAperture and CameraFocal feed
	// ResolveCamera's derivation of {pos, forward, up, vfov}.
	CameraWorldTransform() types.Mat4
	CameraAperture() float32
	CameraFocal() float32

	// MaterialSet and its digest feed the shader cache's key.
	MaterialSet() shadercache.MaterialSet

	AOV() shadercache.AOVID
	Features() shadercache.FeatureFlags
}
