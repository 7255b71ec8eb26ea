package bvh

import (
	"math"

	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/types"
)

// MaxStackSize bounds the node/face-group stack; exceeding it is a fatal
// traversal error rather than silent truncation (spec.md §4.5).
const MaxStackSize = 32

// PostponeRatio is the active-lane-count threshold, relative to the
// initial count, below which a face group is pushed back in favour of
// resuming node traversal. The reference traversal below runs single
// threaded so it has no wavefront to measure; Postpone just exercises the
// same push-back control flow the GPU kernel uses, always deferring once.
const PostponeRatio = 0.5

// TriEpsilon culls near-parallel ray/triangle intersections in the
// Möller-Trumbore test.
const TriEpsilon = 1e-7

// Ray is a traversal query.
type Ray struct {
	Origin types.Vec3
	Dir    types.Vec3
	TMax   float32
}

// Hit is the result of find_hit_closest.
type Hit struct {
	T         float32
	U, V      float32
	FaceIndex uint32
}

// stackEntry is one of two stack entry kinds: a node entry carries only
// the index of the wide node to visit (bitmask is unused); a face group
// carries a leaf's first face index in nodeIdx and its face count in
// bitmask, and the whole range is tested when the entry is processed.
// postponed marks a face group that has already been deferred once.
type stackEntry struct {
	isFaceGroup bool
	nodeIdx     uint32
	bitmask     uint32
	postponed   bool
}

// octantInv4 returns the inversion mask that, XORed against a slot's
// ordering rank, yields near-to-far iteration order for the ray's octant
// (spec.md §4.5's signed ray-octant heuristic).
func octantInv4(dir types.Vec3) uint8 {
	var mask uint8
	if dir[0] < 0 {
		mask |= 1
	}
	if dir[1] < 0 {
		mask |= 2
	}
	if dir[2] < 0 {
		mask |= 4
	}
	return mask
}

// FindHitClosest walks the wide BVH looking for the nearest intersection,
// shrinking ray.TMax on every hit. postpone enables the triangle
// postponement control flow (always deferred once per visited leaf, since
// this single-threaded reference has no wavefront occupancy to sample).
func FindHitClosest(w *WideBVH, faces []scene.Face, vertices []scene.Vertex, ray Ray, postpone bool) (Hit, bool, error) {
	return traverse(w, faces, vertices, ray, postpone, false)
}

// FindHitAny returns true as soon as any intersection within ray.TMax is
// found, without computing barycentrics.
func FindHitAny(w *WideBVH, faces []scene.Face, vertices []scene.Vertex, ray Ray, postpone bool) (bool, error) {
	_, hit, err := traverse(w, faces, vertices, ray, postpone, true)
	return hit, err
}

func traverse(w *WideBVH, faces []scene.Face, vertices []scene.Vertex, ray Ray, postpone, anyHit bool) (Hit, bool, error) {
	if len(w.Nodes) == 0 {
		return Hit{}, false, nil
	}

	invMask := octantInv4(ray.Dir)
	stack := make([]stackEntry, 0, MaxStackSize)
	push := func(e stackEntry) error {
		if len(stack) >= MaxStackSize {
			return &ErrStackOverflow{MaxStackSize: MaxStackSize}
		}
		stack = append(stack, e)
		return nil
	}

	var best Hit
	found := false
	tmax := ray.TMax

	cur := stackEntry{nodeIdx: w.RootIndex}
	for {
		switch {
		case !cur.isFaceGroup:
			node := w.Nodes[cur.nodeIdx]
			for _, slot := range orderSlots(node.ChildCount, invMask) {
				box := node.ChildBox[slot]
				if _, _, ok := intersectAABB(box, ray, tmax); !ok {
					continue
				}
				if node.IsLeafChild[slot] {
					if err := push(stackEntry{isFaceGroup: true, nodeIdx: node.ChildFirstFace[slot], bitmask: node.ChildFaceCount[slot]}); err != nil {
						return Hit{}, false, err
					}
				} else {
					if err := push(stackEntry{nodeIdx: node.ChildIndex[slot]}); err != nil {
						return Hit{}, false, err
					}
				}
			}

		case postpone && !cur.postponed && cur.bitmask > 0:
			cur.postponed = true
			if err := push(cur); err != nil {
				return Hit{}, false, err
			}

		default:
			faceBase, faceCount := cur.nodeIdx, cur.bitmask
			for i := uint32(0); i < faceCount; i++ {
				f := faces[faceBase+i]
				t, u, v, ok := intersectTriangle(vertices[f.A].Position, vertices[f.B].Position, vertices[f.C].Position, ray, tmax)
				if !ok {
					continue
				}
				if anyHit {
					return Hit{}, true, nil
				}
				tmax = t
				best = Hit{T: t, U: u, V: v, FaceIndex: faceBase + i}
				found = true
			}
		}

		if len(stack) == 0 {
			break
		}
		cur = stack[len(stack)-1]
		stack = stack[:len(stack)-1]
	}

	return best, found, nil
}

// orderSlots returns child slot indices 0..count-1 ordered near-to-far by
// XORing each slot's natural rank with the octant inversion mask.
func orderSlots(count int, invMask uint8) []int {
	type ranked struct {
		slot, key int
	}
	rs := make([]ranked, count)
	for i := 0; i < count; i++ {
		rs[i] = ranked{slot: i, key: i ^ int(invMask&0x7)}
	}
	for i := 1; i < len(rs); i++ {
		for j := i; j > 0 && rs[j].key < rs[j-1].key; j-- {
			rs[j], rs[j-1] = rs[j-1], rs[j]
		}
	}
	out := make([]int, count)
	for i, r := range rs {
		out[i] = r.slot
	}
	return out
}

// intersectAABB implements the per-axis slab test: tmin is the max of the
// three per-axis entry times (clamped to 0), tmax is the min of the three
// exit times (clamped to ray.tmax).
func intersectAABB(box scene.AABB, ray Ray, rayTMax float32) (float32, float32, bool) {
	tmin := float32(0)
	tmax := rayTMax
	for axis := 0; axis < 3; axis++ {
		d := ray.Dir[axis]
		if d == 0 {
			if ray.Origin[axis] < box.Min[axis] || ray.Origin[axis] > box.Max[axis] {
				return 0, 0, false
			}
			continue
		}
		invD := 1 / d
		t0 := (box.Min[axis] - ray.Origin[axis]) * invD
		t1 := (box.Max[axis] - ray.Origin[axis]) * invD
		if t0 > t1 {
			t0, t1 = t1, t0
		}
		if t0 > tmin {
			tmin = t0
		}
		if t1 < tmax {
			tmax = t1
		}
		if tmin > tmax {
			return 0, 0, false
		}
	}
	return tmin, tmax, true
}

// intersectTriangle is the Möller-Trumbore ray/triangle test.
func intersectTriangle(a, b, c types.Vec3, ray Ray, tmax float32) (t, u, v float32, ok bool) {
	e1 := b.Sub(a)
	e2 := c.Sub(a)
	pvec := ray.Dir.Cross(e2)
	det := e1.Dot(pvec)
	if math.Abs(float64(det)) < TriEpsilon {
		return 0, 0, 0, false
	}
	invDet := 1 / det
	tvec := ray.Origin.Sub(a)
	u = tvec.Dot(pvec) * invDet
	if u < 0 || u > 1 {
		return 0, 0, 0, false
	}
	qvec := tvec.Cross(e1)
	v = ray.Dir.Dot(qvec) * invDet
	if v < 0 || u+v > 1 {
		return 0, 0, 0, false
	}
	t = e2.Dot(qvec) * invDet
	if t <= 0 || t >= tmax {
		return 0, 0, 0, false
	}
	return t, u, v, true
}
