package reader

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTempFile(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestReadWavefrontTriangle(t *testing.T) {
	path := writeTempFile(t, "tri.obj", `
v 0 0 0
v 1 0 0
v 0 1 0
vn 0 0 1
f 1//1 2//1 3//1
`)
	s, err := ReadWavefront(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Faces) != 1 {
		t.Fatalf("expected 1 face, got %d", len(s.Faces))
	}
	if len(s.Vertices) != 3 {
		t.Fatalf("expected 3 vertices, got %d", len(s.Vertices))
	}
	if len(s.Materials) != 1 {
		t.Fatalf("expected a default material, got %d", len(s.Materials))
	}
}

func TestReadWavefrontQuadTriangulation(t *testing.T) {
	path := writeTempFile(t, "quad.obj", `
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
f 1 2 3 4
`)
	s, err := ReadWavefront(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Faces) != 2 {
		t.Fatalf("expected fan-triangulated quad to produce 2 faces, got %d", len(s.Faces))
	}
}

func TestReadWavefrontDropsDegenerateFace(t *testing.T) {
	path := writeTempFile(t, "degenerate.obj", `
v 0 0 0
v 0 0 0
v 1 1 1
f 1 2 3
`)
	s, err := ReadWavefront(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Faces) != 0 {
		t.Fatalf("expected degenerate face to be dropped, got %d faces", len(s.Faces))
	}
}

func TestReadWavefrontMaterials(t *testing.T) {
	mtlPath := writeTempFile(t, "mat.mtl", `
newmtl light
Kd 0.8 0.8 0.8
Ke 10 10 10
`)
	dir := filepath.Dir(mtlPath)
	objPath := filepath.Join(dir, "scene.obj")
	if err := os.WriteFile(objPath, []byte(`
mtllib mat.mtl
usemtl light
v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
`), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := ReadWavefront(objPath)
	if err != nil {
		t.Fatal(err)
	}
	if len(s.Materials) != 1 {
		t.Fatalf("expected 1 material, got %d", len(s.Materials))
	}
	if !s.Materials[0].IsEmissive() {
		t.Fatalf("expected material to be emissive")
	}
}

func TestReadWavefrontUndefinedMaterial(t *testing.T) {
	path := writeTempFile(t, "bad.obj", `
usemtl missing
v 0 0 0
`)
	if _, err := ReadWavefront(path); err == nil {
		t.Fatal("expected error for undefined material reference")
	}
}
