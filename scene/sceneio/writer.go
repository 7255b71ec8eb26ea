package sceneio

import (
	"encoding/binary"
	"io"
	"math"
	"os"
	"time"

	"github.com/achilleasa/gatling/log"
	"github.com/achilleasa/gatling/scene"
)

var logger = log.New("sceneio")

// Write emits a scene file to path: the fixed header followed by the
// CWBVH node bytes, the reorganised face buffer, the vertex buffer
// (re-strided into the packed pos/uv.u/normal/uv.v order) and the
// material buffer, in that order. Offsets point past the header; all
// multi-byte fields are little-endian (spec.md §4.6).
func Write(path string, nodes []byte, faces []scene.Face, vertices []scene.Vertex, materials []scene.Material, aabb scene.AABB, cam scene.Camera, imageWidth, imageHeight uint32) error {
	start := time.Now()

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	nodeOffset := uint64(HeaderSize)
	nodeSize := uint64(len(nodes))
	faceOffset := nodeOffset + nodeSize
	faceSize := uint64(len(faces) * FaceStride)
	vertexOffset := faceOffset + faceSize
	vertexSize := uint64(len(vertices) * VertexStride)
	materialOffset := vertexOffset + vertexSize
	materialSize := uint64(len(materials) * MaterialStride)

	header := Header{
		ImageWidth:     imageWidth,
		ImageHeight:    imageHeight,
		NodeOffset:     nodeOffset,
		NodeSize:       nodeSize,
		FaceOffset:     faceOffset,
		FaceSize:       faceSize,
		VertexOffset:   vertexOffset,
		VertexSize:     vertexSize,
		MaterialOffset: materialOffset,
		MaterialSize:   materialSize,
		SceneAABBMin:   [3]float32{aabb.Min[0], aabb.Min[1], aabb.Min[2]},
		SceneAABBMax:   [3]float32{aabb.Max[0], aabb.Max[1], aabb.Max[2]},
		CameraOrigin:   [3]float32{cam.Origin[0], cam.Origin[1], cam.Origin[2]},
		CameraForward:  [3]float32{cam.Forward[0], cam.Forward[1], cam.Forward[2]},
		CameraUp:       [3]float32{cam.Up[0], cam.Up[1], cam.Up[2]},
		CameraHFov:     cam.HFov,
	}

	if err := writeHeader(f, header); err != nil {
		return err
	}
	if _, err := f.Write(nodes); err != nil {
		return err
	}
	if err := writeFaces(f, faces); err != nil {
		return err
	}
	if err := writeVertices(f, vertices); err != nil {
		return err
	}
	if err := writeMaterials(f, materials); err != nil {
		return err
	}

	logger.Debugf("wrote scene file %s (%d nodes, %d faces, %d vertices, %d materials) in %d ms",
		path, len(nodes)/NodeStride, len(faces), len(vertices), len(materials), time.Since(start).Milliseconds())
	return nil
}

func writeHeader(w io.Writer, h Header) error {
	var buf [HeaderSize]byte
	binary.LittleEndian.PutUint32(buf[0:4], h.ImageWidth)
	binary.LittleEndian.PutUint32(buf[4:8], h.ImageHeight)
	binary.LittleEndian.PutUint64(buf[8:16], h.NodeOffset)
	binary.LittleEndian.PutUint64(buf[16:24], h.NodeSize)
	binary.LittleEndian.PutUint64(buf[24:32], h.FaceOffset)
	binary.LittleEndian.PutUint64(buf[32:40], h.FaceSize)
	binary.LittleEndian.PutUint64(buf[40:48], h.VertexOffset)
	binary.LittleEndian.PutUint64(buf[48:56], h.VertexSize)
	binary.LittleEndian.PutUint64(buf[56:64], h.MaterialOffset)
	binary.LittleEndian.PutUint64(buf[64:72], h.MaterialSize)
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[72+i*4:76+i*4], math.Float32bits(h.SceneAABBMin[i]))
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[84+i*4:88+i*4], math.Float32bits(h.SceneAABBMax[i]))
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[96+i*4:100+i*4], math.Float32bits(h.CameraOrigin[i]))
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[108+i*4:112+i*4], math.Float32bits(h.CameraForward[i]))
	}
	for i := 0; i < 3; i++ {
		binary.LittleEndian.PutUint32(buf[120+i*4:124+i*4], math.Float32bits(h.CameraUp[i]))
	}
	binary.LittleEndian.PutUint32(buf[132:136], math.Float32bits(h.CameraHFov))
	// buf[136:256] is reserved and left zero.
	_, err := w.Write(buf[:])
	return err
}

func writeFaces(w io.Writer, faces []scene.Face) error {
	buf := make([]byte, len(faces)*FaceStride)
	for i, f := range faces {
		off := i * FaceStride
		binary.LittleEndian.PutUint32(buf[off:off+4], f.A)
		binary.LittleEndian.PutUint32(buf[off+4:off+8], f.B)
		binary.LittleEndian.PutUint32(buf[off+8:off+12], f.C)
		binary.LittleEndian.PutUint32(buf[off+12:off+16], f.Material)
	}
	_, err := w.Write(buf)
	return err
}

// writeVertices re-strides each vertex into the on-disk packed order
// (pos.x, pos.y, pos.z, uv.u, norm.x, norm.y, norm.z, uv.v), which differs
// from the in-memory scene.Vertex field order (spec.md §6).
func writeVertices(w io.Writer, vertices []scene.Vertex) error {
	buf := make([]byte, len(vertices)*VertexStride)
	for i, v := range vertices {
		off := i * VertexStride
		binary.LittleEndian.PutUint32(buf[off+0:off+4], math.Float32bits(v.Position[0]))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(v.Position[1]))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], math.Float32bits(v.Position[2]))
		binary.LittleEndian.PutUint32(buf[off+12:off+16], math.Float32bits(v.UV[0]))
		binary.LittleEndian.PutUint32(buf[off+16:off+20], math.Float32bits(v.Normal[0]))
		binary.LittleEndian.PutUint32(buf[off+20:off+24], math.Float32bits(v.Normal[1]))
		binary.LittleEndian.PutUint32(buf[off+24:off+28], math.Float32bits(v.Normal[2]))
		binary.LittleEndian.PutUint32(buf[off+28:off+32], math.Float32bits(v.UV[1]))
	}
	_, err := w.Write(buf)
	return err
}

func writeMaterials(w io.Writer, materials []scene.Material) error {
	buf := make([]byte, len(materials)*MaterialStride)
	for i, m := range materials {
		off := i * MaterialStride
		binary.LittleEndian.PutUint32(buf[off+0:off+4], math.Float32bits(m.BaseColor[0]))
		binary.LittleEndian.PutUint32(buf[off+4:off+8], math.Float32bits(m.BaseColor[1]))
		binary.LittleEndian.PutUint32(buf[off+8:off+12], math.Float32bits(m.BaseColor[2]))
		// off+12:off+16 is the base-colour pad field, left zero.
		binary.LittleEndian.PutUint32(buf[off+16:off+20], math.Float32bits(m.Emissive[0]))
		binary.LittleEndian.PutUint32(buf[off+20:off+24], math.Float32bits(m.Emissive[1]))
		binary.LittleEndian.PutUint32(buf[off+24:off+28], math.Float32bits(m.Emissive[2]))
		// off+28:off+32 is the emissive pad field, left zero.
	}
	_, err := w.Write(buf)
	return err
}
