package bvh

import (
	"encoding/binary"
	"math"

	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/types"
)

// NodeSizeBytes is the fixed size of one compressed node.
const NodeSizeBytes = 80

// Compress quantises a linearized WideBVH into the fixed 80-byte CWBVH
// node format (spec.md §3/§4.5): a 12-byte anchor + 3 exponent bytes +
// imask in f1, child/face base indices + meta in f2, and six pairs of
// byte-quantised per-axis bounds across f3-f5.
//
// meta[slot] packs the 3-bits-rank/5-bits-bit-index layout spec.md §3
// describes, with the published CWBVH overload (Ylitie/Karras/Laine;
// reused by e.g. tinybvh's CWBVH writer) of those same two fields: for an
// interior slot the fields are its rank among the node's interior slots
// and its slot number, which is its bit position in imask; for a leaf slot the identical bit layout
// instead holds the slot's triangle count (top 3 bits) and its face offset
// relative to faceBase (bottom 5 bits). The latter is only well-defined
// because WideBVH.RelinearizeFaces has already made every node's leaf
// slots occupy one contiguous run of the face buffer in slot order --
// traverseCompressed recovers a leaf slot's face range from faceBase plus
// that stored local offset, and an interior slot's child index from
// childBase plus a popcount over imask, without ever decoding the
// quantised bounds for that purpose.
func Compress(w *WideBVH) []byte {
	out := make([]byte, NodeSizeBytes*len(w.Nodes))
	for i, node := range w.Nodes {
		encodeNode(out[i*NodeSizeBytes:(i+1)*NodeSizeBytes], node)
	}
	return out
}

func encodeNode(dst []byte, node WideNode) {
	box := scene.EmptyAABB()
	for i := 0; i < node.ChildCount; i++ {
		box = box.Union(node.ChildBox[i])
	}
	p := box.Min
	extent := box.Extent()

	var exp [3]byte
	var scale [3]float32
	for axis := 0; axis < 3; axis++ {
		e := exponentFor(extent[axis])
		exp[axis] = e
		scale[axis] = pow2(int(e) - 127)
	}

	var childBase, faceBase uint32 = ^uint32(0), ^uint32(0)
	var imask byte
	var meta [8]byte
	var qlo [3][2][4]byte
	var qhi [3][2][4]byte

	for slot := 0; slot < node.ChildCount; slot++ {
		if !node.IsLeafChild[slot] {
			imask |= 1 << uint(slot)
			if childBase == ^uint32(0) || node.ChildIndex[slot] < childBase {
				childBase = node.ChildIndex[slot]
			}
		} else if faceBase == ^uint32(0) || node.ChildFirstFace[slot] < faceBase {
			faceBase = node.ChildFirstFace[slot]
		}

		group, lane := slot/4, slot%4
		for axis := 0; axis < 3; axis++ {
			lo := node.ChildBox[slot].Min[axis]
			hi := node.ChildBox[slot].Max[axis]
			qlo[axis][group][lane] = quantizeFloor(lo-p[axis], scale[axis])
			qhi[axis][group][lane] = quantizeCeil(hi-p[axis], scale[axis])
		}
	}
	if childBase == ^uint32(0) {
		childBase = 0
	}
	if faceBase == ^uint32(0) {
		faceBase = 0
	}

	rank := byte(0)
	for slot := 0; slot < node.ChildCount; slot++ {
		bitIndex := byte(slot)
		if node.IsLeafChild[slot] {
			count := clampNibble(node.ChildFaceCount[slot], 7)
			offset := clampNibble(node.ChildFirstFace[slot]-faceBase, 31)
			meta[slot] = count<<5 | offset
		} else {
			meta[slot] = (rank&0x7)<<5 | (bitIndex & 0x1f)
			rank++
		}
	}

	// f1: p (12) + exponents (3) + imask (1)
	binary.LittleEndian.PutUint32(dst[0:4], math.Float32bits(p[0]))
	binary.LittleEndian.PutUint32(dst[4:8], math.Float32bits(p[1]))
	binary.LittleEndian.PutUint32(dst[8:12], math.Float32bits(p[2]))
	dst[12], dst[13], dst[14] = exp[0], exp[1], exp[2]
	dst[15] = imask

	// f2: child_base (4) + face_base (4) + meta (8)
	binary.LittleEndian.PutUint32(dst[16:20], childBase)
	binary.LittleEndian.PutUint32(dst[20:24], faceBase)
	copy(dst[24:32], meta[:])

	// f3-f5: q_lo_x[2], q_lo_y[2], q_lo_z[2], q_hi_x[2], q_hi_y[2], q_hi_z[2]
	off := 32
	for axis := 0; axis < 3; axis++ {
		copy(dst[off:off+4], qlo[axis][0][:])
		off += 4
		copy(dst[off:off+4], qlo[axis][1][:])
		off += 4
	}
	for axis := 0; axis < 3; axis++ {
		copy(dst[off:off+4], qhi[axis][0][:])
		off += 4
		copy(dst[off:off+4], qhi[axis][1][:])
		off += 4
	}
}

// exponentFor returns the smallest biased exponent e such that
// 255 * 2^(e-127) >= extent, guaranteeing outward-rounded quantisation
// never clips the true bounds.
func exponentFor(extent float32) byte {
	if extent <= 0 {
		return 127
	}
	raw := math.Ceil(math.Log2(float64(extent) / 255.0))
	e := int(raw) + 127
	if e < 0 {
		e = 0
	}
	if e > 255 {
		e = 255
	}
	return byte(e)
}

func pow2(e int) float32 {
	return float32(math.Pow(2, float64(e)))
}

func quantizeFloor(v, scale float32) byte {
	q := math.Floor(float64(v / scale))
	return clampByte(q)
}

func quantizeCeil(v, scale float32) byte {
	q := math.Ceil(float64(v / scale))
	return clampByte(q)
}

func clampByte(q float64) byte {
	if q < 0 {
		return 0
	}
	if q > 255 {
		return 255
	}
	return byte(q)
}

// clampNibble saturates n to fit in the given number of meta bits.
// LeafMaxFaceCount and a node's face span are always far below these bounds
// in practice (Params keeps leaves small); this only guards against a
// pathological Params value overflowing the 3-bit count or 5-bit offset
// field.
func clampNibble(n uint32, max uint32) byte {
	if n > max {
		n = max
	}
	return byte(n)
}

// decodeNodeHeader reads the fields traverseCompressed needs to recover a
// slot's actual child index or face range: child_base/face_base, the
// interior/leaf bitmask, and each slot's meta byte (count<<5|offset for a
// leaf slot, rank<<5|bitIndex for an interior slot, 0 for an unused slot
// past ChildCount).
func decodeNodeHeader(nodeBytes []byte) (childBase, faceBase uint32, imask byte, meta [8]byte) {
	childBase = binary.LittleEndian.Uint32(nodeBytes[16:20])
	faceBase = binary.LittleEndian.Uint32(nodeBytes[20:24])
	imask = nodeBytes[15]
	copy(meta[:], nodeBytes[24:32])
	return
}

// DecodeChildBounds reconstructs the decoded (quantised) AABB for slot in
// a compressed node, used by tests to check the non-clipping invariant.
func DecodeChildBounds(nodeBytes []byte, slot int) scene.AABB {
	p := [3]float32{
		math.Float32frombits(binary.LittleEndian.Uint32(nodeBytes[0:4])),
		math.Float32frombits(binary.LittleEndian.Uint32(nodeBytes[4:8])),
		math.Float32frombits(binary.LittleEndian.Uint32(nodeBytes[8:12])),
	}
	exp := [3]byte{nodeBytes[12], nodeBytes[13], nodeBytes[14]}
	group, lane := slot/4, slot%4

	var min, max [3]float32
	loBase := 32
	hiBase := 32 + 24
	for axis := 0; axis < 3; axis++ {
		scale := pow2(int(exp[axis]) - 127)
		min[axis] = p[axis] + float32(nodeBytes[loBase+axis*8+group*4+lane])*scale
		max[axis] = p[axis] + float32(nodeBytes[hiBase+axis*8+group*4+lane])*scale
	}
	return scene.AABB{Min: types.Vec3(min), Max: types.Vec3(max)}
}
