package sceneio

import (
	"path/filepath"
	"testing"

	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/scene/bvh"
	"github.com/achilleasa/gatling/types"
)

// gridTriangles builds n axis-aligned triangles spaced 10 units apart along
// X, mirroring the shape bvh's own builder tests use to exercise splits.
func gridTriangles(n int) ([]scene.Face, []scene.Vertex) {
	var verts []scene.Vertex
	var faces []scene.Face
	for i := 0; i < n; i++ {
		x := float32(i) * 10
		base := uint32(len(verts))
		verts = append(verts,
			scene.Vertex{Position: types.Vec3{x, 0, 0}, Normal: types.Vec3{0, 1, 0}},
			scene.Vertex{Position: types.Vec3{x + 1, 0, 0}, Normal: types.Vec3{0, 1, 0}},
			scene.Vertex{Position: types.Vec3{x, 1, 0}, Normal: types.Vec3{0, 1, 0}},
		)
		faces = append(faces, scene.Face{A: base, B: base + 1, C: base + 2, Material: 0})
	}
	return faces, verts
}

// clusteredTriangles builds a deliberately irregular scene: clusters of
// varying triangle counts, spaced far enough apart in X and Z that each
// cluster forms its own tight binary subtree, but close enough pairwise
// (clusters alternate near/far from the origin) that the collapser's
// greedy absorption fully flattens some subtrees and only partially expands
// others within the same wide node -- the exact "interleaved interior and
// leaf slots from different original subtrees" shape review comments on
// this package describe, which a single uniform grid can't exercise.
func clusteredTriangles() ([]scene.Face, []scene.Vertex) {
	var verts []scene.Vertex
	var faces []scene.Face
	sizes := []int{1, 5, 2, 7, 1, 3, 4, 2, 6, 1}
	for ci, n := range sizes {
		cx := float32(ci) * 37
		cz := float32(ci%3) * 5
		for i := 0; i < n; i++ {
			x := cx + float32(i)*1.1
			base := uint32(len(verts))
			verts = append(verts,
				scene.Vertex{Position: types.Vec3{x, 0, cz}, Normal: types.Vec3{0, 1, 0}},
				scene.Vertex{Position: types.Vec3{x + 0.9, 0, cz}, Normal: types.Vec3{0, 1, 0}},
				scene.Vertex{Position: types.Vec3{x, 0.9, cz}, Normal: types.Vec3{0, 1, 0}},
			)
			faces = append(faces, scene.Face{A: base, B: base + 1, C: base + 2, Material: 0})
		}
	}
	return faces, verts
}

// bruteForceClosestHit intersects ray against every triangle directly, with
// no acceleration structure involved, as the reference oracle for
// TestCompressedTraversalMatchesBruteForce.
func bruteForceClosestHit(faces []scene.Face, vertices []scene.Vertex, ray bvh.Ray) (uint32, bool) {
	bestT := ray.TMax
	bestIdx := uint32(0)
	found := false
	for i, f := range faces {
		a, b, c := vertices[f.A].Position, vertices[f.B].Position, vertices[f.C].Position
		e1 := b.Sub(a)
		e2 := c.Sub(a)
		pvec := ray.Dir.Cross(e2)
		det := pvec.Dot(e1)
		if det > -1e-7 && det < 1e-7 {
			continue
		}
		invDet := 1 / det
		tvec := ray.Origin.Sub(a)
		u := tvec.Dot(pvec) * invDet
		if u < 0 || u > 1 {
			continue
		}
		qvec := tvec.Cross(e1)
		v := ray.Dir.Dot(qvec) * invDet
		if v < 0 || u+v > 1 {
			continue
		}
		t := e2.Dot(qvec) * invDet
		if t <= 0 || t >= bestT {
			continue
		}
		bestT = t
		bestIdx = uint32(i)
		found = true
	}
	return bestIdx, found
}

// checkCompressedTraversal runs the C3->C4->C5->C6 pipeline over faces and
// vertices, writes and re-reads the result, then checks every ray in rays
// against bruteForceClosestHit. It is spec.md §8 scenario S3: traverse the
// *reloaded* CWBVH byte buffer (the same bytes scene/sceneio hands the GPU
// kernel), not the pre-compression WideBVH.
func checkCompressedTraversal(t *testing.T, faces []scene.Face, vertices []scene.Vertex, maxChildren int, rays []bvh.Ray) {
	t.Helper()

	params := bvh.DefaultParams()
	params.LeafMaxFaceCount = 1
	bin, err := bvh.Build(faces, vertices, params)
	if err != nil {
		t.Fatal(err)
	}
	wide := bvh.Collapse(bin, maxChildren, bvh.NodeTraversalCost, params.FaceIntersectionCost).Linearize()
	wide, linFaces := wide.RelinearizeFaces(bin.Faces)
	nodes := bvh.Compress(wide)

	path := filepath.Join(t.TempDir(), "roundtrip.gsd")
	aabb := scene.EmptyAABB()
	for _, v := range vertices {
		aabb = aabb.Extend(v.Position)
	}
	cam := scene.Camera{Origin: types.Vec3{0, 0, -10}, Forward: types.Vec3{0, 0, 1}, Up: types.Vec3{0, 1, 0}, HFov: 1}
	if err := Write(path, nodes, linFaces, vertices, nil, aabb, cam, 64, 64); err != nil {
		t.Fatal(err)
	}

	sf, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}

	for i, ray := range rays {
		wantIdx, wantHit := bruteForceClosestHit(sf.Faces, sf.Vertices, ray)
		gotHit, gotFound, err := bvh.FindHitClosestCompressed(sf.Nodes, 0, sf.Faces, sf.Vertices, ray, false)
		if err != nil {
			t.Fatalf("ray %d: %v", i, err)
		}
		if gotFound != wantHit {
			t.Fatalf("ray %d: expected hit=%v, got %v", i, wantHit, gotFound)
		}
		if wantHit && gotHit.FaceIndex != wantIdx {
			t.Fatalf("ray %d: expected face %d, got %d", i, wantIdx, gotHit.FaceIndex)
		}
	}
}

// TestCompressedTraversalMatchesBruteForce is spec.md §8 scenario S3 against
// a uniform grid (a regression check for the common case).
func TestCompressedTraversalMatchesBruteForce(t *testing.T) {
	faces, vertices := gridTriangles(12)
	rays := []bvh.Ray{
		{Origin: types.Vec3{0.25, 0.25, -10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000},
		{Origin: types.Vec3{30.25, 0.25, -10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000},
		{Origin: types.Vec3{110.25, 0.25, -10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000},
		{Origin: types.Vec3{1000, 1000, -10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000},
	}
	checkCompressedTraversal(t, faces, vertices, 8, rays)
}

// TestCompressedTraversalMatchesBruteForceClusteredScene is spec.md §8
// scenario S3 against an irregular scene collapsed with a small
// maxChildren, forcing the collapser to leave some wide nodes with a mix of
// interior and leaf slots drawn from different original subtrees -- the
// shape that breaks a leaf's face range if it isn't relinearized into a
// truly contiguous run before compression.
func TestCompressedTraversalMatchesBruteForceClusteredScene(t *testing.T) {
	faces, vertices := clusteredTriangles()

	var rays []bvh.Ray
	for ci := 0; ci < 10; ci++ {
		cx := float32(ci) * 37
		cz := float32(ci%3) * 5
		rays = append(rays, bvh.Ray{Origin: types.Vec3{cx + 0.3, 0.3, -10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000})
		rays = append(rays, bvh.Ray{Origin: types.Vec3{cx + 0.5, 0.5, cz - 10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000})
	}
	rays = append(rays, bvh.Ray{Origin: types.Vec3{5000, 5000, -10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000})

	checkCompressedTraversal(t, faces, vertices, 4, rays)
}
