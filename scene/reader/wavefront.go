// Package reader loads polygon-soup input meshes into scene.Scene values.
// It is grounded on the teacher's scene/reader wavefront tokenizer
// (bufio.Scanner + strings.Fields line dispatch) but drops the teacher's
// scene-graph/mesh-instance/material-expression machinery: the CWBVH
// pipeline only needs a flat vertex/face/material table, and material
// authoring is an out-of-scope external collaborator (spec.md §1).
package reader

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/achilleasa/gatling/log"
	"github.com/achilleasa/gatling/scene"
	"github.com/achilleasa/gatling/types"
)

var logger = log.New("reader")

// ReadWavefront parses a Wavefront OBJ file (optionally with an associated
// MTL library referenced via "mtllib") into a scene.Scene. Only the Kd
// (base colour) and Ke (emissive) material properties are recognised; the
// full MaterialX/MDL expression pipeline the teacher's asset/ tree
// implements is out of scope here.
func ReadWavefront(path string) (*scene.Scene, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("reader: %w", err)
	}
	defer f.Close()

	dir := ""
	if idx := strings.LastIndexByte(path, '/'); idx >= 0 {
		dir = path[:idx+1]
	}

	p := &parser{
		dir:            dir,
		matNameToIndex: map[string]uint32{},
		curMaterial:    -1,
	}
	if err := p.parseObj(f, path); err != nil {
		return nil, err
	}
	if len(p.materials) == 0 {
		p.materials = append(p.materials, scene.Material{BaseColor: types.Vec3{0.7, 0.7, 0.7}})
	}

	logger.Debugf("parsed %d vertices, %d faces, %d materials from %s", len(p.vertices), len(p.faces), len(p.materials), path)

	return &scene.Scene{
		Vertices:  p.vertices,
		Faces:     p.faces,
		Materials: p.materials,
	}, nil
}

type parser struct {
	dir string

	positions []types.Vec3
	normals   []types.Vec3
	uvs       []types.Vec2

	vertices  []scene.Vertex
	faces     []scene.Face
	materials []scene.Material

	matNameToIndex map[string]uint32
	curMaterial    int32

	// vertexCache dedupes (position,normal,uv) triples emitted by "f"
	// lines, since OBJ indexes each attribute independently but the
	// on-disk Vertex format needs a single joint index per corner.
	vertexCache map[[3]int]uint32
}

func (p *parser) parseObj(f *os.File, path string) error {
	p.vertexCache = map[[3]int]uint32{}

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || fields[0] == "#" {
			continue
		}

		switch fields[0] {
		case "mtllib":
			if len(fields) != 2 {
				return fmt.Errorf("reader: %s:%d: mtllib expects 1 argument", path, lineNum)
			}
			if err := p.parseMtl(p.dir + fields[1]); err != nil {
				return err
			}
		case "usemtl":
			if len(fields) != 2 {
				return fmt.Errorf("reader: %s:%d: usemtl expects 1 argument", path, lineNum)
			}
			idx, ok := p.matNameToIndex[fields[1]]
			if !ok {
				return fmt.Errorf("reader: %s:%d: undefined material %q", path, lineNum, fields[1])
			}
			p.curMaterial = int32(idx)
		case "v":
			v, err := parseVec3(fields)
			if err != nil {
				return fmt.Errorf("reader: %s:%d: %w", path, lineNum, err)
			}
			p.positions = append(p.positions, v)
		case "vn":
			v, err := parseVec3(fields)
			if err != nil {
				return fmt.Errorf("reader: %s:%d: %w", path, lineNum, err)
			}
			p.normals = append(p.normals, v)
		case "vt":
			v, err := parseVec2(fields)
			if err != nil {
				return fmt.Errorf("reader: %s:%d: %w", path, lineNum, err)
			}
			p.uvs = append(p.uvs, v)
		case "f":
			if err := p.parseFace(fields); err != nil {
				return fmt.Errorf("reader: %s:%d: %w", path, lineNum, err)
			}
		}
	}
	return scanner.Err()
}

func (p *parser) parseFace(fields []string) error {
	if len(fields) < 4 {
		return fmt.Errorf("face needs at least 3 vertices, got %d", len(fields)-1)
	}
	matIdx := p.currentMaterial()

	indices := make([]uint32, 0, len(fields)-1)
	for _, corner := range fields[1:] {
		idx, err := p.resolveCorner(corner)
		if err != nil {
			return err
		}
		indices = append(indices, idx)
	}

	// Fan-triangulate polygons with more than 3 vertices.
	for i := 1; i+1 < len(indices); i++ {
		a, b, c := indices[0], indices[i], indices[i+1]
		if a == b || b == c || a == c {
			continue // degenerate triangle, dropped per spec.md §4.3
		}
		pa := p.vertices[a].Position
		if p.vertices[b].Position.Sub(pa).Cross(p.vertices[c].Position.Sub(pa)) == (types.Vec3{}) {
			continue // zero-area triangle (coincident or collinear corners)
		}
		p.faces = append(p.faces, scene.Face{A: a, B: b, C: c, Material: matIdx})
	}
	return nil
}

func (p *parser) currentMaterial() uint32 {
	if p.curMaterial < 0 {
		return 0
	}
	return uint32(p.curMaterial)
}

// resolveCorner parses an OBJ "v[/vt][/vn]" token and returns the joint
// vertex index it maps to, creating a new scene.Vertex on first use.
func (p *parser) resolveCorner(corner string) (uint32, error) {
	parts := strings.Split(corner, "/")
	vIdx, err := parseObjIndex(parts[0], len(p.positions))
	if err != nil {
		return 0, err
	}
	var vtIdx, vnIdx int = -1, -1
	if len(parts) > 1 && parts[1] != "" {
		if vtIdx, err = parseObjIndex(parts[1], len(p.uvs)); err != nil {
			return 0, err
		}
	}
	if len(parts) > 2 && parts[2] != "" {
		if vnIdx, err = parseObjIndex(parts[2], len(p.normals)); err != nil {
			return 0, err
		}
	}

	key := [3]int{vIdx, vtIdx, vnIdx}
	if existing, ok := p.vertexCache[key]; ok {
		return existing, nil
	}

	v := scene.Vertex{Position: p.positions[vIdx]}
	if vnIdx >= 0 {
		v.Normal = p.normals[vnIdx]
	} else {
		v.Normal = types.Vec3{0, 1, 0}
	}
	if vtIdx >= 0 {
		v.UV = p.uvs[vtIdx]
	}

	idx := uint32(len(p.vertices))
	p.vertices = append(p.vertices, v)
	p.vertexCache[key] = idx
	return idx, nil
}

// parseObjIndex resolves OBJ's 1-based (or negative, relative-to-end)
// vertex index syntax into a 0-based slice index.
func parseObjIndex(s string, count int) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid index %q: %w", s, err)
	}
	if n < 0 {
		n = count + n
	} else {
		n--
	}
	if n < 0 || n >= count {
		return 0, fmt.Errorf("index %d out of range (have %d)", n+1, count)
	}
	return n, nil
}

func (p *parser) parseMtl(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("reader: %w", err)
	}
	defer f.Close()

	var current *scene.Material
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "newmtl":
			p.materials = append(p.materials, scene.Material{})
			current = &p.materials[len(p.materials)-1]
			p.matNameToIndex[fields[1]] = uint32(len(p.materials) - 1)
		case "Kd":
			if current == nil {
				continue
			}
			v, err := parseVec3(fields)
			if err != nil {
				return fmt.Errorf("reader: %s: %w", path, err)
			}
			current.BaseColor = v
		case "Ke":
			if current == nil {
				continue
			}
			v, err := parseVec3(fields)
			if err != nil {
				return fmt.Errorf("reader: %s: %w", path, err)
			}
			current.Emissive = v
		}
	}
	return scanner.Err()
}

func parseVec3(fields []string) (types.Vec3, error) {
	if len(fields) != 4 {
		return types.Vec3{}, fmt.Errorf("expected 3 components, got %d", len(fields)-1)
	}
	var v types.Vec3
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i+1], 32)
		if err != nil {
			return types.Vec3{}, err
		}
		v[i] = float32(f)
	}
	return v, nil
}

func parseVec2(fields []string) (types.Vec2, error) {
	if len(fields) < 3 {
		return types.Vec2{}, fmt.Errorf("expected at least 2 components, got %d", len(fields)-1)
	}
	var v types.Vec2
	for i := 0; i < 2; i++ {
		f, err := strconv.ParseFloat(fields[i+1], 32)
		if err != nil {
			return types.Vec2{}, err
		}
		v[i] = float32(f)
	}
	return v, nil
}
