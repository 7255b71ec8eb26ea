package bvh

import (
	"testing"

	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/types"
)

func gridScene(n int) ([]scene.Face, []scene.Vertex) {
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

func TestBuildProducesLeafForSmallScene(t *testing.T) {
	faces, verts := gridScene(2)
	tree, err := Build(faces, verts, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Nodes) == 0 {
		t.Fatal("expected at least one node")
	}
	if len(tree.Faces) != len(faces) {
		t.Fatalf("expected %d faces preserved, got %d", len(faces), len(tree.Faces))
	}
}

func TestBuildDropsDegenerateFaces(t *testing.T) {
	verts := []scene.Vertex{
		{Position: types.Vec3{0, 0, 0}},
		{Position: types.Vec3{0, 0, 0}},
		{Position: types.Vec3{0, 0, 0}},
	}
	faces := []scene.Face{{A: 0, B: 1, C: 2}}
	tree, err := Build(faces, verts, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	if len(tree.Faces) != 0 {
		t.Fatalf("expected degenerate face to be dropped, got %d", len(tree.Faces))
	}
}

func TestCollapseProducesBoundedChildCount(t *testing.T) {
	faces, verts := gridScene(40)
	params := DefaultParams()
	params.LeafMaxFaceCount = 1
	bin, err := Build(faces, verts, params)
	if err != nil {
		t.Fatal(err)
	}
	wide := Collapse(bin, 8, NodeTraversalCost, params.FaceIntersectionCost)
	for i, n := range wide.Nodes {
		if n.ChildCount > 8 {
			t.Fatalf("node %d has %d children, want <= 8", i, n.ChildCount)
		}
	}
}

func TestLinearizeKeepsChildrenReachable(t *testing.T) {
	faces, verts := gridScene(40)
	params := DefaultParams()
	params.LeafMaxFaceCount = 1
	bin, err := Build(faces, verts, params)
	if err != nil {
		t.Fatal(err)
	}
	wide := Collapse(bin, 8, NodeTraversalCost, params.FaceIntersectionCost).Linearize()
	for _, n := range wide.Nodes {
		for i := 0; i < n.ChildCount; i++ {
			if !n.IsLeafChild[i] && int(n.ChildIndex[i]) >= len(wide.Nodes) {
				t.Fatalf("child index %d out of range (have %d nodes)", n.ChildIndex[i], len(wide.Nodes))
			}
		}
	}
}

func TestCompressDecodeNonClipping(t *testing.T) {
	faces, verts := gridScene(40)
	params := DefaultParams()
	params.LeafMaxFaceCount = 1
	bin, err := Build(faces, verts, params)
	if err != nil {
		t.Fatal(err)
	}
	wide := Collapse(bin, 8, NodeTraversalCost, params.FaceIntersectionCost).Linearize()
	compressed := Compress(wide)
	if len(compressed) != len(wide.Nodes)*NodeSizeBytes {
		t.Fatalf("expected %d bytes, got %d", len(wide.Nodes)*NodeSizeBytes, len(compressed))
	}

	for ni, node := range wide.Nodes {
		nodeBytes := compressed[ni*NodeSizeBytes : (ni+1)*NodeSizeBytes]
		for slot := 0; slot < node.ChildCount; slot++ {
			decoded := DecodeChildBounds(nodeBytes, slot)
			want := node.ChildBox[slot]
			for axis := 0; axis < 3; axis++ {
				if decoded.Min[axis] > want.Min[axis]+1e-3 {
					t.Fatalf("node %d slot %d axis %d: decoded min %v clips true min %v", ni, slot, axis, decoded.Min[axis], want.Min[axis])
				}
				if decoded.Max[axis] < want.Max[axis]-1e-3 {
					t.Fatalf("node %d slot %d axis %d: decoded max %v clips true max %v", ni, slot, axis, decoded.Max[axis], want.Max[axis])
				}
			}
		}
	}
}

func TestTraversalFindsClosestHit(t *testing.T) {
	faces, verts := gridScene(5)
	params := DefaultParams()
	params.LeafMaxFaceCount = 1
	bin, err := Build(faces, verts, params)
	if err != nil {
		t.Fatal(err)
	}
	wide := Collapse(bin, 8, NodeTraversalCost, params.FaceIntersectionCost).Linearize()

	ray := Ray{Origin: types.Vec3{0.25, 0.25, -10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000}
	hit, ok, err := FindHitClosest(wide, bin.Faces, verts, ray, false)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected a hit")
	}
	if hit.FaceIndex != 0 {
		t.Fatalf("expected hit on face 0, got %d", hit.FaceIndex)
	}
}

func TestTraversalFindHitAnyMiss(t *testing.T) {
	faces, verts := gridScene(5)
	bin, err := Build(faces, verts, DefaultParams())
	if err != nil {
		t.Fatal(err)
	}
	wide := Collapse(bin, 8, NodeTraversalCost, DefaultParams().FaceIntersectionCost).Linearize()

	ray := Ray{Origin: types.Vec3{1000, 1000, -10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000}
	hit, err := FindHitAny(wide, bin.Faces, verts, ray, false)
	if err != nil {
		t.Fatal(err)
	}
	if hit {
		t.Fatal("expected no hit far away from the geometry")
	}
}

func TestTraversalWithPostponement(t *testing.T) {
	faces, verts := gridScene(5)
	params := DefaultParams()
	params.LeafMaxFaceCount = 1
	bin, err := Build(faces, verts, params)
	if err != nil {
		t.Fatal(err)
	}
	wide := Collapse(bin, 8, NodeTraversalCost, params.FaceIntersectionCost).Linearize()

	ray := Ray{Origin: types.Vec3{0.25, 0.25, -10}, Dir: types.Vec3{0, 0, 1}, TMax: 1000}
	hit, ok, err := FindHitClosest(wide, bin.Faces, verts, ray, true)
	if err != nil {
		t.Fatal(err)
	}
	if !ok || hit.FaceIndex != 0 {
		t.Fatalf("expected postponed traversal to still find face 0, got ok=%v face=%d", ok, hit.FaceIndex)
	}
}
