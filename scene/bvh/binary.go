// Package bvh builds a compressed wide bounding-volume hierarchy from a
// scene's face/vertex tables and provides a reference CPU traversal used to
// validate the compression and ordering invariants (spec.md §4.3-§4.5,
// C3/C4/C5/C7). It is grounded on the teacher's asset/compiler/bvh binary
// SAH builder (recursive partition, node array, leaf callback) generalised
// from per-item brute-force split scoring to the binned SAH sweep with
// optional SBVH spatial splits the spec requires.
package bvh

import (
	"fmt"
	"sort"

	"github.com/achilleasa/gatling/log"
	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/types"
)

// ObjectBinningMode selects how many SAH bins are evaluated per split.
type ObjectBinningMode uint8

const (
	// Fixed uses ObjectBinCount bins regardless of depth.
	Fixed ObjectBinningMode = iota
	// Adaptive uses half of ObjectBinCount (but at least 4 bins) at every
	// depth alike; the bin count does not change with depth.
	Adaptive
)

// Params configures the binary BVH builder (spec.md §4.3's input record).
type Params struct {
	FaceBatchSize         int
	LeafMaxFaceCount      int
	FaceIntersectionCost  float32
	ObjectBinningMode     ObjectBinningMode
	ObjectBinningThreshold int
	ObjectBinCount        int
	SpatialBinCount       int
	SpatialReserveFactor  float32
	SpatialSplitAlpha     float32
}

// DefaultParams returns parameter values in line with published CWBVH
// papers and the teacher's own defaults for leaf sizing.
func DefaultParams() Params {
	return Params{
		FaceBatchSize:          256,
		LeafMaxFaceCount:       8,
		FaceIntersectionCost:   1.0,
		ObjectBinningMode:      Fixed,
		ObjectBinningThreshold: 64,
		ObjectBinCount:         16,
		SpatialBinCount:        16,
		SpatialReserveFactor:   1.5,
		SpatialSplitAlpha:      1e-5,
	}
}

// NodeTraversalCost is the fixed per-node traversal cost used by the SAH
// cost model; not part of Params because it is shared with the collapser.
const NodeTraversalCost float32 = 1.2

// BinaryNode is either an interior node (Left/Right index into Nodes) or a
// leaf (FirstFace/FaceCount index into the reorganised face buffer).
type BinaryNode struct {
	Box       scene.AABB
	Left      uint32
	Right     uint32
	FirstFace uint32
	FaceCount uint32
	IsLeaf    bool
}

// BinaryBVH is the builder's output: a node array rooted at index 0 plus
// the reorganised (and possibly duplicated, for SBVH) face buffer. Faces
// is built in leaf-visitation order by emitLeaf, not sliced out of a
// single backing array, because a spatial split can duplicate a
// straddling face into both children.
type BinaryBVH struct {
	Nodes []BinaryNode
	Faces []scene.Face
	Root  scene.AABB
}

// ErrReservationExceeded is returned when SBVH face duplication would
// exceed spatial_reserve_factor * input_face_count.
type ErrReservationExceeded struct {
	Requested, Reserved int
}

func (e *ErrReservationExceeded) Error() string {
	return fmt.Sprintf("bvh: face reservation exceeded: requested %d, reserved %d", e.Requested, e.Reserved)
}

type refFace struct {
	face   scene.Face
	box    scene.AABB
	center [3]float32
}

type builder struct {
	logger    log.Logger
	params    Params
	vertices  []scene.Vertex
	faces     []refFace
	outFaces  []scene.Face
	reserved  int
	nodes     []BinaryNode
	rootArea  float32
	maxDepth  int
	leafCount int
}

// Build constructs a binary BVH over faces, dropping degenerate
// (zero-extent) faces with a warning per spec.md §4.3's contract.
func Build(faces []scene.Face, vertices []scene.Vertex, params Params) (*BinaryBVH, error) {
	b := &builder{
		logger:   log.New("bvh"),
		params:   params,
		vertices: vertices,
	}
	b.reserved = int(float32(len(faces)) * maxFloat32(params.SpatialReserveFactor, 1.0))

	for _, f := range faces {
		box := faceBounds(f, vertices)
		if box.Extent()[0] == 0 && box.Extent()[1] == 0 && box.Extent()[2] == 0 {
			b.logger.Warningf("dropping degenerate face with zero-extent AABB")
			continue
		}
		center := box.Center()
		b.faces = append(b.faces, refFace{face: f, box: box, center: [3]float32{center[0], center[1], center[2]}})
	}

	root := scene.EmptyAABB()
	for _, rf := range b.faces {
		root = root.Union(rf.box)
	}
	b.rootArea = root.SurfaceArea()
	sourceFaces := len(b.faces)

	if err := b.partition(b.faces, 0); err != nil {
		return nil, err
	}

	out := &BinaryBVH{Nodes: b.nodes, Faces: b.outFaces, Root: root}

	b.logger.Debugf("built binary bvh: %d nodes, %d leaves, max depth %d (%d face references, %d source faces)",
		len(b.nodes), b.leafCount, b.maxDepth, len(b.outFaces), sourceFaces)
	return out, nil
}

func faceBounds(f scene.Face, vertices []scene.Vertex) scene.AABB {
	box := scene.EmptyAABB()
	box = box.Extend(vertices[f.A].Position)
	box = box.Extend(vertices[f.B].Position)
	box = box.Extend(vertices[f.C].Position)
	return box
}

// partition recursively splits work and returns the index of the node it
// created. An object split reorders work in place (no duplication); a
// spatial split instead builds two fresh slices via applySpatialSplit,
// which duplicates any face straddling the chosen plane into both sides.
func (b *builder) partition(work []refFace, depth int) error {
	if depth > b.maxDepth {
		b.maxDepth = depth
	}
	if len(b.faces) > b.reserved {
		return &ErrReservationExceeded{Requested: len(b.faces), Reserved: b.reserved}
	}

	box := scene.EmptyAABB()
	for _, rf := range work {
		box = box.Union(rf.box)
	}

	leafCost := float32(len(work)) * b.params.FaceIntersectionCost
	if len(work) <= b.params.LeafMaxFaceCount {
		b.emitLeaf(work, box)
		return nil
	}

	objSplit, foundObj := b.bestObjectSplit(work, box)
	spatialSplit, foundSpatial := objectSplit{}, false
	useSpatial := box.SurfaceArea() > 0 && b.overlapRatio(work) > b.params.SpatialSplitAlpha
	if useSpatial {
		spatialSplit, foundSpatial = b.bestSpatialSplit(work, box)
	}
	// The split searches weight each side's face count by its raw surface
	// area; dividing that part by the node's own area gives the SAH cost
	// that is comparable with leafCost.
	if area := box.SurfaceArea(); area > 0 {
		objSplit.cost = NodeTraversalCost + (objSplit.cost-NodeTraversalCost)/area
		spatialSplit.cost = NodeTraversalCost + (spatialSplit.cost-NodeTraversalCost)/area
	}

	switch {
	case foundSpatial && (!foundObj || spatialSplit.cost < objSplit.cost):
		if spatialSplit.cost >= leafCost {
			b.emitLeaf(work, box)
			return nil
		}
		return b.partitionSpatial(work, spatialSplit, box, depth)
	case foundObj:
		if objSplit.cost >= leafCost {
			b.emitLeaf(work, box)
			return nil
		}
		return b.partitionObject(work, objSplit, depth)
	default:
		b.emitLeaf(work, box)
		return nil
	}
}

// partitionObject applies an object (centroid) split: work is reordered
// in place around the boundary and handed to the two child calls as
// sub-slices, which is why this path never duplicates a face.
func (b *builder) partitionObject(work []refFace, split objectSplit, depth int) error {
	nodeIdx := len(b.nodes)
	b.nodes = append(b.nodes, BinaryNode{})

	sort.SliceStable(work, func(i, j int) bool { return work[i].center[split.axis] < work[j].center[split.axis] })
	mid := split.count
	if mid <= 0 || mid >= len(work) {
		mid = len(work) / 2
	}

	box := scene.EmptyAABB()
	for _, rf := range work {
		box = box.Union(rf.box)
	}
	b.nodes[nodeIdx].Box = box

	if err := b.partition(work[:mid], depth+1); err != nil {
		return err
	}
	leftIdx := uint32(nodeIdx + 1)
	rightIdx := uint32(len(b.nodes))
	if err := b.partition(work[mid:], depth+1); err != nil {
		return err
	}

	b.nodes[nodeIdx].Left = leftIdx
	b.nodes[nodeIdx].Right = rightIdx
	return nil
}

// partitionSpatial applies an SBVH spatial split (spec.md §4.3 step 2):
// applySpatialSplit clips each straddling face's bounding box against the
// plane and duplicates the underlying face reference into both sides, so
// the two children are independently allocated slices rather than a
// partition of work's backing array.
func (b *builder) partitionSpatial(work []refFace, split objectSplit, box scene.AABB, depth int) error {
	nodeIdx := len(b.nodes)
	b.nodes = append(b.nodes, BinaryNode{Box: box})

	left, right := b.applySpatialSplit(work, split.axis, split.pos)

	if err := b.partition(left, depth+1); err != nil {
		return err
	}
	leftIdx := uint32(nodeIdx + 1)
	rightIdx := uint32(len(b.nodes))
	if err := b.partition(right, depth+1); err != nil {
		return err
	}

	b.nodes[nodeIdx].Left = leftIdx
	b.nodes[nodeIdx].Right = rightIdx
	return nil
}

// applySpatialSplit buckets work's faces against the plane axis=pos. A
// face wholly on one side goes to that side unchanged; a face straddling
// the plane is clipped (its triangle is cut against the plane via
// Sutherland-Hodgman and each piece's AABB taken) and appears in both
// sides, referencing the same underlying scene.Face. Every duplicate
// created this way is also appended to b.faces so partition's
// reservation check (spatial_reserve_factor * input face count, spec.md
// §7) sees the true duplication cost on the very next recursive call.
func (b *builder) applySpatialSplit(work []refFace, axis int, pos float32) (left, right []refFace) {
	for _, rf := range work {
		switch {
		case rf.box.Max[axis] <= pos:
			left = append(left, rf)
		case rf.box.Min[axis] >= pos:
			right = append(right, rf)
		default:
			leftBox := b.clipFaceBox(rf.face, axis, pos, -1)
			rightBox := b.clipFaceBox(rf.face, axis, pos, 1)

			leftCenter := leftBox.Center()
			rightCenter := rightBox.Center()
			left = append(left, refFace{face: rf.face, box: leftBox, center: [3]float32{leftCenter[0], leftCenter[1], leftCenter[2]}})
			right = append(right, refFace{face: rf.face, box: rightBox, center: [3]float32{rightCenter[0], rightCenter[1], rightCenter[2]}})
			b.faces = append(b.faces, rf)
		}
	}
	return left, right
}

// clipFaceBox clips face's triangle against the half-space side*(axis -
// pos) <= 0 (side -1 keeps coordinates <= pos, side +1 keeps >= pos) using
// a single-plane Sutherland-Hodgman pass, and returns the AABB of the
// surviving polygon. An empty intersection (degenerate against floating
// point) returns EmptyAABB; applySpatialSplit stores whatever box this
// returns as that side's bound for the face.
func (b *builder) clipFaceBox(f scene.Face, axis int, pos float32, side float32) scene.AABB {
	poly := [3]types.Vec3{
		b.vertices[f.A].Position,
		b.vertices[f.B].Position,
		b.vertices[f.C].Position,
	}
	inside := func(p types.Vec3) bool {
		return side*(p[axis]-pos) <= 0
	}

	box := scene.EmptyAABB()
	for i := 0; i < 3; i++ {
		cur := poly[i]
		next := poly[(i+1)%3]
		curIn := inside(cur)
		nextIn := inside(next)
		if curIn {
			box = box.Extend(cur)
		}
		if curIn != nextIn {
			denom := next[axis] - cur[axis]
			if denom != 0 {
				t := (pos - cur[axis]) / denom
				ip := cur.Add(next.Sub(cur).Mul(t))
				box = box.Extend(ip)
			}
		}
	}
	return box
}

// emitLeaf appends a leaf node covering work, recording its faces into
// b.outFaces in visitation order: FirstFace is simply the accumulator's
// current length, which stays correct whether work came from an in-place
// object-split slice or a freshly allocated spatial-split slice.
func (b *builder) emitLeaf(work []refFace, box scene.AABB) {
	b.nodes = append(b.nodes, BinaryNode{
		Box:       box,
		IsLeaf:    true,
		FirstFace: uint32(len(b.outFaces)),
		FaceCount: uint32(len(work)),
	})
	for _, rf := range work {
		b.outFaces = append(b.outFaces, rf.face)
	}
	b.leafCount++
}

type objectSplit struct {
	axis  int
	count int
	cost  float32
	pos   float32 // world-space plane position; only meaningful for a spatial split
}

// bestObjectSplit bins face centroids along each axis into
// ObjectBinCount buckets, accumulates per-bin AABBs and counts, then
// sweeps the prefix/suffix sums to find the SAH-minimising boundary
// (spec.md §4.3 step 1).
func (b *builder) bestObjectSplit(work []refFace, box scene.AABB) (objectSplit, bool) {
	binCount := b.params.ObjectBinCount
	if b.params.ObjectBinningMode == Adaptive {
		binCount = maxInt(4, binCount/2)
	}
	if binCount < 2 {
		binCount = 2
	}

	best := objectSplit{cost: maxFloat32Val}
	found := false

	for axis := 0; axis < 3; axis++ {
		extent := box.Extent()[axis]
		if extent <= 0 {
			continue
		}
		lo := box.Min[axis]

		type bin struct {
			box   scene.AABB
			count int
		}
		bins := make([]bin, binCount)
		for i := range bins {
			bins[i].box = scene.EmptyAABB()
		}

		binIndex := func(center float32) int {
			idx := int((center - lo) / extent * float32(binCount))
			if idx < 0 {
				idx = 0
			}
			if idx >= binCount {
				idx = binCount - 1
			}
			return idx
		}

		for _, rf := range work {
			idx := binIndex(rf.center[axis])
			bins[idx].box = bins[idx].box.Union(rf.box)
			bins[idx].count++
		}

		leftBox := make([]scene.AABB, binCount)
		leftCount := make([]int, binCount)
		acc := scene.EmptyAABB()
		accCount := 0
		for i := 0; i < binCount; i++ {
			acc = acc.Union(bins[i].box)
			accCount += bins[i].count
			leftBox[i] = acc
			leftCount[i] = accCount
		}

		rightBox := scene.EmptyAABB()
		rightCount := 0
		for i := binCount - 1; i >= 1; i-- {
			rightBox = rightBox.Union(bins[i].box)
			rightCount += bins[i].count

			lCount := leftCount[i-1]
			rCount := rightCount
			if lCount == 0 || rCount == 0 {
				continue
			}
			cost := NodeTraversalCost +
				float32(lCount)*leftBox[i-1].SurfaceArea()*b.params.FaceIntersectionCost +
				float32(rCount)*rightBox.SurfaceArea()*b.params.FaceIntersectionCost
			if cost < best.cost {
				best = objectSplit{axis: axis, count: lCount, cost: cost}
				found = true
			}
		}
	}
	return best, found
}

// bestSpatialSplit evaluates SBVH-style spatial splits at the planes
// between SpatialBinCount bins along each axis. A face counts towards the
// side below a plane when its box starts below it and towards the side
// above when its box ends above it, so a face straddling a boundary
// contributes to both sides without needing to be duplicated unless the
// final split actually falls inside its extent. Each side's box is the
// union of the whole face boxes counted on it; the boxes are not clipped
// to the bin planes.
func (b *builder) bestSpatialSplit(work []refFace, box scene.AABB) (objectSplit, bool) {
	binCount := b.params.SpatialBinCount
	if binCount < 2 {
		return objectSplit{}, false
	}

	best := objectSplit{cost: maxFloat32Val}
	found := false

	for axis := 0; axis < 3; axis++ {
		extent := box.Extent()[axis]
		if extent <= 0 {
			continue
		}
		lo := box.Min[axis]
		step := extent / float32(binCount)

		leftBoxes := make([]scene.AABB, binCount)
		rightBoxes := make([]scene.AABB, binCount)
		leftCounts := make([]int, binCount)
		rightCounts := make([]int, binCount)
		for i := 0; i < binCount; i++ {
			leftBoxes[i] = scene.EmptyAABB()
			rightBoxes[i] = scene.EmptyAABB()
		}

		for _, rf := range work {
			minBin := clampInt(int((rf.box.Min[axis]-lo)/step), 0, binCount-1)
			maxBin := clampInt(int((rf.box.Max[axis]-lo)/step), 0, binCount-1)
			for i := minBin; i < binCount; i++ {
				leftBoxes[i] = leftBoxes[i].Union(rf.box)
				leftCounts[i]++
			}
			for i := 0; i <= maxBin && i < binCount; i++ {
				rightBoxes[i] = rightBoxes[i].Union(rf.box)
				rightCounts[i]++
			}
		}

		for i := 0; i < binCount-1; i++ {
			lCount, rCount := leftCounts[i], rightCounts[i+1]
			if lCount == 0 || rCount == 0 {
				continue
			}
			if lCount+rCount > b.reserved {
				continue
			}
			cost := NodeTraversalCost +
				float32(lCount)*leftBoxes[i].SurfaceArea()*b.params.FaceIntersectionCost +
				float32(rCount)*rightBoxes[i+1].SurfaceArea()*b.params.FaceIntersectionCost
			if cost < best.cost {
				best = objectSplit{axis: axis, count: lCount, cost: cost, pos: lo + float32(i+1)*step}
				found = true
			}
		}
	}
	return best, found
}

// overlapRatio is the SBVH heuristic that decides whether a spatial split
// is worth evaluating: the surface area of the left/right child overlap
// relative to the root's surface area.
func (b *builder) overlapRatio(work []refFace) float32 {
	if b.rootArea <= 0 {
		return 0
	}
	sort.SliceStable(work, func(i, j int) bool { return work[i].center[0] < work[j].center[0] })
	mid := len(work) / 2
	left := scene.EmptyAABB()
	for _, rf := range work[:mid] {
		left = left.Union(rf.box)
	}
	right := scene.EmptyAABB()
	for _, rf := range work[mid:] {
		right = right.Union(rf.box)
	}
	overlap := scene.AABB{Min: types.MaxVec3(left.Min, right.Min), Max: types.MinVec3(left.Max, right.Max)}
	area := overlap.SurfaceArea()
	if area < 0 {
		area = 0
	}
	return area / b.rootArea
}

func maxFloat32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

const maxFloat32Val = 3.402823466e+38

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
