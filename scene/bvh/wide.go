package bvh

import (
	"github.com/achilleasa/gatling/scene"
)

// WideNode is an interior-or-leaf node with up to 8 children. Leaf children
// are distinguished from interior children via IsLeafChild; interior
// children index into Nodes, leaf children carry a face range directly.
type WideNode struct {
	ChildBox       [8]scene.AABB
	ChildIndex     [8]uint32 // index into Nodes for interior children
	ChildFirstFace [8]uint32
	ChildFaceCount [8]uint32
	IsLeafChild    [8]bool
	ChildCount     int
}

// WideBVH is the output of the collapser: a flat array of WideNode. Nodes
// are appended in post-order (a node's descendants precede it), so the
// root is RootIndex, not necessarily 0.
type WideBVH struct {
	Nodes     []WideNode
	RootIndex uint32
	Root      scene.AABB
}

// Collapse merges a binary BVH's children up to maxChildren per wide node,
// minimising node_traversal_cost + sum(faces * face_intersection_cost)
// (spec.md §4.4). At each binary node it greedily absorbs whichever
// immediate grandchild replacement reduces that cost the most, repeating
// until maxChildren slots are filled or no absorption helps -- the same
// greedy-collapse shape used by published CWBVH builders.
func Collapse(bin *BinaryBVH, maxChildren int, nodeTraversalCost, faceIntersectionCost float32) *WideBVH {
	if maxChildren < 2 {
		maxChildren = 2
	}
	if maxChildren > 8 {
		maxChildren = 8
	}

	c := &collapser{
		bin:                   bin,
		maxChildren:           maxChildren,
		nodeTraversalCost:     nodeTraversalCost,
		faceIntersectionCost:  faceIntersectionCost,
	}

	if len(bin.Nodes) == 0 {
		return &WideBVH{Root: bin.Root}
	}

	rootIdx := c.collapseNode(0)
	return &WideBVH{Nodes: c.out, RootIndex: rootIdx, Root: bin.Root}
}

type binRef struct {
	nodeIdx uint32
	isLeaf  bool
}

type collapser struct {
	bin                   *BinaryBVH
	maxChildren           int
	nodeTraversalCost     float32
	faceIntersectionCost  float32
	out                   []WideNode
}

// collapseNode flattens the binary subtree rooted at binIdx into one wide
// node (recursing into any interior children that remain after the
// absorption pass) and returns that wide node's index in c.out.
func (c *collapser) collapseNode(binIdx uint32) uint32 {
	node := c.bin.Nodes[binIdx]
	if node.IsLeaf {
		// A leaf with no siblings to merge into still needs a wide
		// node wrapper so callers always index through c.out.
		wideIdx := uint32(len(c.out))
		c.out = append(c.out, WideNode{
			ChildBox:       [8]scene.AABB{node.Box},
			ChildFirstFace: [8]uint32{node.FirstFace},
			ChildFaceCount: [8]uint32{node.FaceCount},
			IsLeafChild:    [8]bool{true},
			ChildCount:     1,
		})
		return wideIdx
	}

	children := []binRef{{node.Left, c.bin.Nodes[node.Left].IsLeaf}, {node.Right, c.bin.Nodes[node.Right].IsLeaf}}

	for len(children) < c.maxChildren {
		bestIdx, bestGain := -1, float32(0)
		for i, ch := range children {
			if ch.isLeaf {
				continue
			}
			n := c.bin.Nodes[ch.nodeIdx]
			before := c.costOf(ch)
			after := c.costOf(binRef{n.Left, c.bin.Nodes[n.Left].IsLeaf}) + c.costOf(binRef{n.Right, c.bin.Nodes[n.Right].IsLeaf})
			gain := before - after
			if gain > bestGain {
				bestGain, bestIdx = gain, i
			}
		}
		if bestIdx < 0 {
			break
		}
		n := c.bin.Nodes[children[bestIdx].nodeIdx]
		replacement := []binRef{{n.Left, c.bin.Nodes[n.Left].IsLeaf}, {n.Right, c.bin.Nodes[n.Right].IsLeaf}}
		children = append(children[:bestIdx], append(replacement, children[bestIdx+1:]...)...)
	}

	// Absorption can interleave leaf and interior children from different
	// original subtrees in one wide node (greedy per-step expansion stops
	// as soon as maxChildren fills, regardless of which branch still has
	// un-absorbed interior nodes), so a leaf slot's FirstFace is not in
	// general adjacent to its neighbouring leaf slots' face ranges in
	// bin.Faces. Slot order here is therefore whatever absorption left
	// behind; RelinearizeFaces is what gives each node's leaf children a
	// genuinely contiguous face range (in this slot order) afterwards.
	wide := WideNode{ChildCount: len(children)}
	for i, ch := range children {
		n := c.bin.Nodes[ch.nodeIdx]
		wide.ChildBox[i] = n.Box
		if ch.isLeaf {
			wide.IsLeafChild[i] = true
			wide.ChildFirstFace[i] = n.FirstFace
			wide.ChildFaceCount[i] = n.FaceCount
		} else {
			wide.ChildIndex[i] = c.collapseNode(ch.nodeIdx)
		}
	}

	wideIdx := uint32(len(c.out))
	c.out = append(c.out, wide)
	return wideIdx
}

// Linearize reorders Nodes breadth-first so that every node's interior
// children occupy a contiguous run starting at a single base index --
// the layout the CWBVH compressor's child_base_index field assumes.
func (w *WideBVH) Linearize() *WideBVH {
	if len(w.Nodes) == 0 {
		return w
	}

	oldToNew := make([]uint32, len(w.Nodes))
	for i := range oldToNew {
		oldToNew[i] = ^uint32(0)
	}

	order := []uint32{w.RootIndex}
	oldToNew[w.RootIndex] = 0
	for head := 0; head < len(order); head++ {
		node := w.Nodes[order[head]]
		for i := 0; i < node.ChildCount; i++ {
			if node.IsLeafChild[i] {
				continue
			}
			childOld := node.ChildIndex[i]
			if oldToNew[childOld] != ^uint32(0) {
				continue
			}
			oldToNew[childOld] = uint32(len(order))
			order = append(order, childOld)
		}
	}

	newNodes := make([]WideNode, len(order))
	for newIdx, oldIdx := range order {
		n := w.Nodes[oldIdx]
		for i := 0; i < n.ChildCount; i++ {
			if !n.IsLeafChild[i] {
				n.ChildIndex[i] = oldToNew[n.ChildIndex[i]]
			}
		}
		newNodes[newIdx] = n
	}

	return &WideBVH{Nodes: newNodes, RootIndex: 0, Root: w.Root}
}

// RelinearizeFaces rewrites the face buffer so that every wide node's leaf
// children occupy one contiguous run, in slot order, within the returned
// array -- the same treatment Linearize gives node indices, but for faces.
// collapseNode's absorption order leaves leaf slots scattered across the
// original bin.Faces array (a leaf slot's FirstFace need not be adjacent to
// its sibling slots' ranges), so the CWBVH compressor cannot derive a leaf
// slot's offset from faceBase alone until this pass has run. It returns a
// new WideBVH whose ChildFirstFace values index into the new array, paired
// with that array; w and faces are left untouched.
func (w *WideBVH) RelinearizeFaces(faces []scene.Face) (*WideBVH, []scene.Face) {
	newNodes := make([]WideNode, len(w.Nodes))
	copy(newNodes, w.Nodes)

	total := 0
	for i := range newNodes {
		n := &newNodes[i]
		for slot := 0; slot < n.ChildCount; slot++ {
			if n.IsLeafChild[slot] {
				total += int(n.ChildFaceCount[slot])
			}
		}
	}

	newFaces := make([]scene.Face, 0, total)
	for i := range newNodes {
		n := &newNodes[i]
		for slot := 0; slot < n.ChildCount; slot++ {
			if !n.IsLeafChild[slot] {
				continue
			}
			start := uint32(len(newFaces))
			old := n.ChildFirstFace[slot]
			count := n.ChildFaceCount[slot]
			newFaces = append(newFaces, faces[old:old+count]...)
			n.ChildFirstFace[slot] = start
		}
	}

	return &WideBVH{Nodes: newNodes, RootIndex: w.RootIndex, Root: w.Root}, newFaces
}

// costOf is the SAH cost of treating ref as a single child: leaf cost is
// face count * face_intersection_cost, interior cost adds
// node_traversal_cost for the node it would collapse away.
func (c *collapser) costOf(ref binRef) float32 {
	n := c.bin.Nodes[ref.nodeIdx]
	if ref.isLeaf {
		return float32(n.FaceCount) * c.faceIntersectionCost
	}
	return c.nodeTraversalCost + c.costOf(binRef{n.Left, c.bin.Nodes[n.Left].IsLeaf}) + c.costOf(binRef{n.Right, c.bin.Nodes[n.Right].IsLeaf})
}
