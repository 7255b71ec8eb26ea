package sceneio

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/types"
)

func sampleData() ([]byte, []scene.Face, []scene.Vertex, []scene.Material, scene.AABB, scene.Camera) {
	nodes := bytes.Repeat([]byte{0xAB}, NodeStride*2)
	faces := []scene.Face{
		{A: 0, B: 1, C: 2, Material: 0},
		{A: 1, B: 2, C: 3, Material: 1},
	}
	vertices := []scene.Vertex{
		{Position: types.Vec3{0, 0, 0}, Normal: types.Vec3{0, 1, 0}, UV: types.Vec2{0, 0}},
		{Position: types.Vec3{1, 0, 0}, Normal: types.Vec3{0, 1, 0}, UV: types.Vec2{1, 0}},
		{Position: types.Vec3{0, 1, 0}, Normal: types.Vec3{0, 1, 0}, UV: types.Vec2{0, 1}},
		{Position: types.Vec3{1, 1, 0}, Normal: types.Vec3{0, 1, 0}, UV: types.Vec2{1, 1}},
	}
	materials := []scene.Material{
		{BaseColor: types.Vec3{0.8, 0.2, 0.2}},
		{BaseColor: types.Vec3{0.1, 0.1, 0.1}, Emissive: types.Vec3{5, 5, 5}},
	}
	aabb := scene.AABB{Min: types.Vec3{0, 0, 0}, Max: types.Vec3{1, 1, 0}}
	cam := scene.Camera{
		Origin:  types.Vec3{0, 0, -5},
		Forward: types.Vec3{0, 0, 1},
		Up:      types.Vec3{0, 1, 0},
		HFov:    1.0472,
	}
	return nodes, faces, vertices, materials, aabb, cam
}

func TestWriteReadRoundTrip(t *testing.T) {
	nodes, faces, vertices, materials, aabb, cam := sampleData()
	path := filepath.Join(t.TempDir(), "scene.gsd")

	if err := Write(path, nodes, faces, vertices, materials, aabb, cam, 1920, 1080); err != nil {
		t.Fatal(err)
	}

	sf, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}

	if sf.Header.ImageWidth != 1920 || sf.Header.ImageHeight != 1080 {
		t.Fatalf("unexpected image dims: %dx%d", sf.Header.ImageWidth, sf.Header.ImageHeight)
	}
	if !bytes.Equal(sf.Nodes, nodes) {
		t.Fatalf("node bytes did not round-trip")
	}
	if len(sf.Faces) != len(faces) {
		t.Fatalf("expected %d faces, got %d", len(faces), len(sf.Faces))
	}
	for i := range faces {
		if sf.Faces[i] != faces[i] {
			t.Fatalf("face %d mismatch: got %+v want %+v", i, sf.Faces[i], faces[i])
		}
	}
	if len(sf.Vertices) != len(vertices) {
		t.Fatalf("expected %d vertices, got %d", len(vertices), len(sf.Vertices))
	}
	for i := range vertices {
		if sf.Vertices[i] != vertices[i] {
			t.Fatalf("vertex %d mismatch: got %+v want %+v", i, sf.Vertices[i], vertices[i])
		}
	}
	for i := range materials {
		if sf.Materials[i].BaseColor != materials[i].BaseColor || sf.Materials[i].Emissive != materials[i].Emissive {
			t.Fatalf("material %d mismatch: got %+v want %+v", i, sf.Materials[i], materials[i])
		}
	}
	if sf.Camera.HFov != cam.HFov || sf.Camera.Origin != cam.Origin {
		t.Fatalf("camera mismatch: got %+v want %+v", sf.Camera, cam)
	}
	if sf.SceneAABB != aabb {
		t.Fatalf("aabb mismatch: got %+v want %+v", sf.SceneAABB, aabb)
	}
}

func TestHeaderOffsetsMatchLayout(t *testing.T) {
	nodes, faces, vertices, materials, aabb, cam := sampleData()
	path := filepath.Join(t.TempDir(), "scene.gsd")
	if err := Write(path, nodes, faces, vertices, materials, aabb, cam, 64, 64); err != nil {
		t.Fatal(err)
	}
	sf, err := Read(path)
	if err != nil {
		t.Fatal(err)
	}

	h := sf.Header
	if h.NodeOffset != HeaderSize {
		t.Fatalf("expected node offset to equal header size, got %d", h.NodeOffset)
	}
	if h.NodeSize != uint64(len(nodes)) {
		t.Fatalf("unexpected node size: %d", h.NodeSize)
	}
	if h.FaceOffset != h.NodeOffset+h.NodeSize {
		t.Fatalf("face offset does not follow node buffer")
	}
	if h.FaceSize != uint64(len(faces)*FaceStride) {
		t.Fatalf("unexpected face size: %d", h.FaceSize)
	}
	if h.VertexOffset != h.FaceOffset+h.FaceSize {
		t.Fatalf("vertex offset does not follow face buffer")
	}
	if h.VertexSize != uint64(len(vertices)*VertexStride) {
		t.Fatalf("unexpected vertex size: %d", h.VertexSize)
	}
	if h.MaterialOffset != h.VertexOffset+h.VertexSize {
		t.Fatalf("material offset does not follow vertex buffer")
	}
	if h.MaterialSize != uint64(len(materials)*MaterialStride) {
		t.Fatalf("unexpected material size: %d", h.MaterialSize)
	}
}

func TestReadRejectsTruncatedFile(t *testing.T) {
	nodes, faces, vertices, materials, aabb, cam := sampleData()
	path := filepath.Join(t.TempDir(), "scene.gsd")
	if err := Write(path, nodes, faces, vertices, materials, aabb, cam, 64, 64); err != nil {
		t.Fatal(err)
	}

	full, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	truncated := full[:len(full)-8]
	truncPath := filepath.Join(t.TempDir(), "truncated.gsd")
	if err := os.WriteFile(truncPath, truncated, 0o644); err != nil {
		t.Fatal(err)
	}

	_, err = Read(truncPath)
	if err == nil {
		t.Fatal("expected an error reading a truncated scene file")
	}
	if _, ok := err.(*ErrCorruptFile); !ok {
		t.Fatalf("expected *ErrCorruptFile, got %T: %v", err, err)
	}
}

func TestReadRejectsShortHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tiny.gsd")
	if err := os.WriteFile(path, make([]byte, 10), 0o644); err != nil {
		t.Fatal(err)
	}
	_, err := Read(path)
	if err == nil {
		t.Fatal("expected an error reading a file shorter than the header")
	}
}
