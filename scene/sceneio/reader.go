package sceneio

import (
	"encoding/binary"
	"math"
	"os"
	"time"

	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/types"
)

// SceneFile is the fully parsed on-disk scene: the raw CWBVH node bytes
// (left compressed, for direct upload to the GPU) plus the decoded
// face/vertex/material buffers and scene metadata. The Raw* fields carry
// the same four buffers still in their exact on-disk layout, so a caller
// uploading to a storage buffer the traversal kernel reads directly can
// skip re-encoding the decoded structs.
type SceneFile struct {
	Header Header

	Nodes     []byte
	Faces     []scene.Face
	Vertices  []scene.Vertex
	Materials []scene.Material

	RawFaces     []byte
	RawVertices  []byte
	RawMaterials []byte

	SceneAABB scene.AABB
	Camera    scene.Camera
}

// Read parses a scene file written by Write, validating the header's
// offsets and sizes against the file's actual length before trusting any
// of them.
func Read(path string) (*SceneFile, error) {
	start := time.Now()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) < HeaderSize {
		return nil, &ErrCorruptFile{Reason: "file is shorter than the fixed header"}
	}

	header, err := parseHeader(data[:HeaderSize])
	if err != nil {
		return nil, err
	}

	total := uint64(len(data))
	if err := checkRange(total, header.NodeOffset, header.NodeSize, "node"); err != nil {
		return nil, err
	}
	if err := checkRange(total, header.FaceOffset, header.FaceSize, "face"); err != nil {
		return nil, err
	}
	if err := checkRange(total, header.VertexOffset, header.VertexSize, "vertex"); err != nil {
		return nil, err
	}
	if err := checkRange(total, header.MaterialOffset, header.MaterialSize, "material"); err != nil {
		return nil, err
	}
	if header.FaceSize%FaceStride != 0 {
		return nil, &ErrCorruptFile{Reason: "face buffer size is not a multiple of the face stride"}
	}
	if header.VertexSize%VertexStride != 0 {
		return nil, &ErrCorruptFile{Reason: "vertex buffer size is not a multiple of the vertex stride"}
	}
	if header.MaterialSize%MaterialStride != 0 {
		return nil, &ErrCorruptFile{Reason: "material buffer size is not a multiple of the material stride"}
	}
	if header.NodeSize%NodeStride != 0 {
		return nil, &ErrCorruptFile{Reason: "node buffer size is not a multiple of the node stride"}
	}

	nodes := make([]byte, header.NodeSize)
	copy(nodes, data[header.NodeOffset:header.NodeOffset+header.NodeSize])

	rawFaces := data[header.FaceOffset : header.FaceOffset+header.FaceSize]
	rawVertices := data[header.VertexOffset : header.VertexOffset+header.VertexSize]
	rawMaterials := data[header.MaterialOffset : header.MaterialOffset+header.MaterialSize]

	faces := readFaces(rawFaces)
	vertices := readVertices(rawVertices)
	materials := readMaterials(rawMaterials)

	sf := &SceneFile{
		Header:       header,
		Nodes:        nodes,
		Faces:        faces,
		Vertices:     vertices,
		Materials:    materials,
		RawFaces:     append([]byte(nil), rawFaces...),
		RawVertices:  append([]byte(nil), rawVertices...),
		RawMaterials: append([]byte(nil), rawMaterials...),
		SceneAABB: scene.AABB{
			Min: types.Vec3(header.SceneAABBMin),
			Max: types.Vec3(header.SceneAABBMax),
		},
		Camera: scene.Camera{
			Origin:  types.Vec3(header.CameraOrigin),
			Forward: types.Vec3(header.CameraForward),
			Up:      types.Vec3(header.CameraUp),
			HFov:    header.CameraHFov,
		},
	}

	logger.Debugf("read scene file %s (%d nodes, %d faces, %d vertices, %d materials) in %d ms",
		path, len(nodes)/NodeStride, len(faces), len(vertices), len(materials), time.Since(start).Milliseconds())
	return sf, nil
}

func checkRange(total, offset, size uint64, label string) error {
	if offset > total || size > total-offset {
		return &ErrCorruptFile{Reason: label + " buffer range exceeds file length"}
	}
	return nil
}

func parseHeader(buf []byte) (Header, error) {
	var h Header
	h.ImageWidth = binary.LittleEndian.Uint32(buf[0:4])
	h.ImageHeight = binary.LittleEndian.Uint32(buf[4:8])
	h.NodeOffset = binary.LittleEndian.Uint64(buf[8:16])
	h.NodeSize = binary.LittleEndian.Uint64(buf[16:24])
	h.FaceOffset = binary.LittleEndian.Uint64(buf[24:32])
	h.FaceSize = binary.LittleEndian.Uint64(buf[32:40])
	h.VertexOffset = binary.LittleEndian.Uint64(buf[40:48])
	h.VertexSize = binary.LittleEndian.Uint64(buf[48:56])
	h.MaterialOffset = binary.LittleEndian.Uint64(buf[56:64])
	h.MaterialSize = binary.LittleEndian.Uint64(buf[64:72])
	for i := 0; i < 3; i++ {
		h.SceneAABBMin[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[72+i*4 : 76+i*4]))
	}
	for i := 0; i < 3; i++ {
		h.SceneAABBMax[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[84+i*4 : 88+i*4]))
	}
	for i := 0; i < 3; i++ {
		h.CameraOrigin[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[96+i*4 : 100+i*4]))
	}
	for i := 0; i < 3; i++ {
		h.CameraForward[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[108+i*4 : 112+i*4]))
	}
	for i := 0; i < 3; i++ {
		h.CameraUp[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[120+i*4 : 124+i*4]))
	}
	h.CameraHFov = math.Float32frombits(binary.LittleEndian.Uint32(buf[132:136]))
	return h, nil
}

func readFaces(buf []byte) []scene.Face {
	faces := make([]scene.Face, len(buf)/FaceStride)
	for i := range faces {
		off := i * FaceStride
		faces[i] = scene.Face{
			A:        binary.LittleEndian.Uint32(buf[off : off+4]),
			B:        binary.LittleEndian.Uint32(buf[off+4 : off+8]),
			C:        binary.LittleEndian.Uint32(buf[off+8 : off+12]),
			Material: binary.LittleEndian.Uint32(buf[off+12 : off+16]),
		}
	}
	return faces
}

// readVertices undoes writeVertices' on-disk re-striding back into the
// in-memory scene.Vertex field order.
func readVertices(buf []byte) []scene.Vertex {
	vertices := make([]scene.Vertex, len(buf)/VertexStride)
	for i := range vertices {
		off := i * VertexStride
		px := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+0 : off+4]))
		py := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		pz := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+8 : off+12]))
		u := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+12 : off+16]))
		nx := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+16 : off+20]))
		ny := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+20 : off+24]))
		nz := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+24 : off+28]))
		v := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+28 : off+32]))
		vertices[i] = scene.Vertex{
			Position: types.Vec3{px, py, pz},
			Normal:   types.Vec3{nx, ny, nz},
			UV:       types.Vec2{u, v},
		}
	}
	return vertices
}

func readMaterials(buf []byte) []scene.Material {
	materials := make([]scene.Material, len(buf)/MaterialStride)
	for i := range materials {
		off := i * MaterialStride
		bx := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+0 : off+4]))
		by := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+4 : off+8]))
		bz := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+8 : off+12]))
		ex := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+16 : off+20]))
		ey := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+20 : off+24]))
		ez := math.Float32frombits(binary.LittleEndian.Uint32(buf[off+24 : off+28]))
		materials[i] = scene.Material{
			BaseColor: types.Vec3{bx, by, bz},
			Emissive:  types.Vec3{ex, ey, ez},
		}
	}
	return materials
}
