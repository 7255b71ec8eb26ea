package main

import (
	"hash/fnv"

	"github.com/achilleasa/gatling/orchestrator"
	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/scene/sceneio"
	"github.com/achilleasa/gatling/shadercache"
	"github.com/achilleasa/gatling/types"
)

// fileRegistry is a SceneRegistry that serves a single scene file loaded
// once up front, standing in for the USD render-delegate glue spec.md §1
// places out of scope. Its change-version counters never move across
// frames, so the orchestrator treats repeated Frame calls against the same
// fileRegistry as a stable scene: the shader and geometry caches build
// once and are reused for every subsequent frame.
type fileRegistry struct {
	sf       *sceneio.SceneFile
	aov      shadercache.AOVID
	camera   types.Mat4
	aperture float32
	focal    float32
}

func (r *fileRegistry) ChangeVersions() orchestrator.ChangeVersions {
	return orchestrator.ChangeVersions{SceneState: 1, SprimIndex: 1, RenderSettings: 1, Visibility: 1}
}

// MeshInstances reports the scene file's geometry as a single identity
// instance: the preprocessor already bakes all mesh data into one
// flattened vertex/face buffer in world space, so there is nothing left
// for a per-instance transform to do beyond the identity.
func (r *fileRegistry) MeshInstances() []scene.MeshInstance {
	return []scene.MeshInstance{{
		MeshRef: 0,
		Transform: [3][4]float32{
			{1, 0, 0, 0},
			{0, 1, 0, 0},
			{0, 0, 1, 0},
		},
	}}
}

func (r *fileRegistry) CameraWorldTransform() types.Mat4 { return r.camera }
func (r *fileRegistry) CameraAperture() float32          { return r.aperture }
func (r *fileRegistry) CameraFocal() float32             { return r.focal }

// MaterialSet digests the scene file's material buffer with FNV-1a, the
// same hash family shadercache.Key uses for its own digest, so a material
// edit between runs (a different .gsd file) always misses the cache.
func (r *fileRegistry) MaterialSet() shadercache.MaterialSet {
	h := fnv.New64a()
	h.Write(r.sf.RawMaterials)
	return shadercache.MaterialSet{Digest: shadercache.MaterialSetDigest(h.Sum64())}
}

func (r *fileRegistry) AOV() shadercache.AOVID { return r.aov }

func (r *fileRegistry) Features() shadercache.FeatureFlags {
	return shadercache.ProgressiveAccumulation
}
