// Package sceneio writes and reads the renderer's on-disk scene file: a
// fixed 256-byte header followed by four fixed-stride buffers (CWBVH
// nodes, faces, vertices, materials). It is grounded on the teacher's
// scene/io binary writer/reader (gob+zip), generalised from gob encoding
// of Go structs to the byte-exact little-endian layout the traversal
// kernel reads directly off the mapped buffer (spec.md §4.6/§6).
package sceneio

import "fmt"

// HeaderSize is the fixed header length in bytes.
const HeaderSize = 256

// NodeStride, FaceStride, VertexStride and MaterialStride are the
// per-element sizes of the four trailing buffers.
const (
	NodeStride     = 80
	FaceStride     = 16
	VertexStride   = 32
	MaterialStride = 32
)

// Header mirrors the byte layout described in spec.md §6's header table.
type Header struct {
	ImageWidth  uint32
	ImageHeight uint32

	NodeOffset, NodeSize         uint64
	FaceOffset, FaceSize         uint64
	VertexOffset, VertexSize     uint64
	MaterialOffset, MaterialSize uint64

	SceneAABBMin [3]float32
	SceneAABBMax [3]float32

	CameraOrigin  [3]float32
	CameraForward [3]float32
	CameraUp      [3]float32
	CameraHFov    float32
}

// ErrCorruptFile is returned by Read when the header's buffer
// offsets/sizes are inconsistent with the file's actual length.
type ErrCorruptFile struct {
	Reason string
}

func (e *ErrCorruptFile) Error() string {
	return fmt.Sprintf("sceneio: corrupt scene file: %s", e.Reason)
}
