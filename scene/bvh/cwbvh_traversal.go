package bvh

import (
	"math/bits"

	"github.com/achilleasa/gatling/scene"
)

// FindHitClosestCompressed walks the raw NodeSizeBytes-strided CWBVH byte
// buffer scene/sceneio reads and writes directly -- the bytes Compress
// produces, not the pre-compression *WideBVH FindHitClosest validates
// (spec.md §8 scenario S3: build, collapse, compress, write, read back,
// then traverse the reloaded bytes). An interior slot's child index is
// recovered from child_base plus a popcount over imask, the same scheme
// published CWBVH decoders use; a leaf slot's face range is face_base plus
// the local offset meta[slot]'s low 5 bits carry (valid because
// WideBVH.RelinearizeFaces already made the node's leaf slots contiguous),
// with meta[slot]'s high 3 bits giving the slot's own face count. Quantised
// bounds are only decoded for slots the octant ordering actually visits.
func FindHitClosestCompressed(nodes []byte, rootIndex uint32, faces []scene.Face, vertices []scene.Vertex, ray Ray, postpone bool) (Hit, bool, error) {
	return traverseCompressed(nodes, rootIndex, faces, vertices, ray, postpone, false)
}

// FindHitAnyCompressed is FindHitClosestCompressed's any-hit counterpart.
func FindHitAnyCompressed(nodes []byte, rootIndex uint32, faces []scene.Face, vertices []scene.Vertex, ray Ray, postpone bool) (bool, error) {
	_, hit, err := traverseCompressed(nodes, rootIndex, faces, vertices, ray, postpone, true)
	return hit, err
}

func traverseCompressed(nodes []byte, rootIndex uint32, faces []scene.Face, vertices []scene.Vertex, ray Ray, postpone, anyHit bool) (Hit, bool, error) {
	if len(nodes) == 0 {
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

	cur := stackEntry{nodeIdx: rootIndex}
	for {
		switch {
		case !cur.isFaceGroup:
			nodeBytes := nodes[cur.nodeIdx*NodeSizeBytes : (cur.nodeIdx+1)*NodeSizeBytes]
			childBase, faceBase, imask, meta := decodeNodeHeader(nodeBytes)

			// Slots are packed contiguously by Compress: 0..childCount-1
			// hold real children, the rest are zero (interior bit clear,
			// meta zero), which a real leaf can never produce since
			// LeafMaxFaceCount is always at least 1.
			childCount := 0
			for slot := 0; slot < 8; slot++ {
				if imask&(1<<uint(slot)) == 0 && meta[slot] == 0 {
					break
				}
				childCount++
			}

			for _, slot := range orderSlots(childCount, invMask) {
				box := DecodeChildBounds(nodeBytes, slot)
				if _, _, ok := intersectAABB(box, ray, tmax); !ok {
					continue
				}

				if imask&(1<<uint(slot)) != 0 {
					childIdx := childBase + uint32(bits.OnesCount8(imask&((1<<uint(slot))-1)))
					if err := push(stackEntry{nodeIdx: childIdx}); err != nil {
						return Hit{}, false, err
					}
					continue
				}

				offset := uint32(meta[slot] & 0x1f)
				count := uint32(meta[slot] >> 5)
				if err := push(stackEntry{isFaceGroup: true, nodeIdx: faceBase + offset, bitmask: count}); err != nil {
					return Hit{}, false, err
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
