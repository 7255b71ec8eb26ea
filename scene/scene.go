// Package scene holds the in-memory data model that the preprocessor
// builds and the CWBVH pipeline consumes: vertices, faces, materials and
// mesh instances (spec.md §2). It plays the role of the teacher's
// scene.Scene, trimmed to the fixed-layout primitives the on-disk format
// requires instead of the teacher's plane/sphere/box/triangle primitive
// union.
package scene

import "github.com/achilleasa/gatling/types"

// Vertex is 32 bytes: position (3xf32), normal (3xf32), UV (2xf32). The
// normal must be unit-length and nonzero.
type Vertex struct {
	Position types.Vec3
	Normal   types.Vec3
	UV       types.Vec2
}

// Face is 16 bytes: three vertex indices plus a material index.
type Face struct {
	A, B, C  uint32
	Material uint32
}

// Material is 32 bytes: base colour (3xf32, 1 pad), emissive (3xf32, 1 pad).
type Material struct {
	BaseColor types.Vec3
	_         float32
	Emissive  types.Vec3
	_         float32
}

// IsEmissive reports whether the material should be treated as a light
// source for importance sampling; derived, not stored (spec.md §2).
func (m Material) IsEmissive() bool {
	return m.Emissive[0] > 0 || m.Emissive[1] > 0 || m.Emissive[2] > 0
}

// AABB is an axis-aligned bounding box: 6xf32 (min, max).
type AABB struct {
	Min types.Vec3
	Max types.Vec3
}

// EmptyAABB returns an AABB primed for accumulation via Extend.
func EmptyAABB() AABB {
	return AABB{
		Min: types.Vec3{maxF32, maxF32, maxF32},
		Max: types.Vec3{-maxF32, -maxF32, -maxF32},
	}
}

const maxF32 = 3.402823466e+38

// Extend grows the box to include p.
func (b AABB) Extend(p types.Vec3) AABB {
	return AABB{Min: types.MinVec3(b.Min, p), Max: types.MaxVec3(b.Max, p)}
}

// Union returns the smallest AABB containing both b and o.
func (b AABB) Union(o AABB) AABB {
	return AABB{Min: types.MinVec3(b.Min, o.Min), Max: types.MaxVec3(b.Max, o.Max)}
}

// Center returns the box's midpoint.
func (b AABB) Center() types.Vec3 {
	return b.Min.Add(b.Max).Mul(0.5)
}

// Extent returns the box's per-axis side length.
func (b AABB) Extent() types.Vec3 {
	return b.Max.Sub(b.Min)
}

// SurfaceArea returns the box's total surface area, used by the SAH cost
// model during BVH construction.
func (b AABB) SurfaceArea() float32 {
	e := b.Extent()
	if e[0] < 0 || e[1] < 0 || e[2] < 0 {
		return 0
	}
	return 2 * (e[0]*e[1] + e[1]*e[2] + e[0]*e[2])
}

// MeshInstance places a mesh's faces into the scene via a 3x4 affine
// transform (spec.md §2's geometry-cache input).
type MeshInstance struct {
	MeshRef   uint32
	Transform [3][4]float32
}

// Camera is the fixed pinhole camera record carried in the scene-file
// header: origin, forward, up and horizontal field of view.
type Camera struct {
	Origin  types.Vec3
	Forward types.Vec3
	Up      types.Vec3
	HFov    float32
}

// Scene is the fully-resolved geometry the preprocessor hands to the BVH
// builder: a flat vertex/face/material table plus the camera and frame
// size. It stores no AABB; Bounds computes the root AABB on demand.
type Scene struct {
	Vertices  []Vertex
	Faces     []Face
	Materials []Material

	Camera Camera

	ImageWidth  uint32
	ImageHeight uint32
}

// Bounds computes the AABB of every face's three vertices.
func (s *Scene) Bounds() AABB {
	box := EmptyAABB()
	for _, f := range s.Faces {
		box = box.Extend(s.Vertices[f.A].Position)
		box = box.Extend(s.Vertices[f.B].Position)
		box = box.Extend(s.Vertices[f.C].Position)
	}
	return box
}
