package shadercache

import (
	"github.com/achilleasa/gatling/gpu"
	"github.com/achilleasa/gatling/log"
)

// PushConstantSize is the fixed size, in bytes, of the per-frame push
// constant block every compiled kernel shares (spec.md §6's camera/bounces/
// SPP/RR/max-sample/dome-light/background-colour block). Keeping this fixed
// across material permutations is what lets the pipeline layout stay
// stable while the descriptor-set contents change.
const PushConstantSize = 128

// Entry is one compiled-and-built cache slot: a shader module plus the
// compute pipeline CreatePipeline derived from its reflected bindings.
type Entry struct {
	Key      Key
	Shader   gpu.ShaderHandle
	Pipeline gpu.PipelineHandle
}

// Cache rebuilds compute pipelines on invalidation, keyed by
// (aov, feature_flags, material_set_digest) per spec.md §4.7. A compile
// failure never evicts the entry already in the map: the previous cache is
// retained and the miss is reported to the caller (spec.md §7).
type Cache struct {
	logger   log.Logger
	device   *gpu.Device
	compiler MaterialCompiler
	entries  map[uint64]*Entry
}

// New creates a shader cache bound to a device and the collaborator that
// compiles material/AOV/feature combinations into SPIR-V.
func New(device *gpu.Device, compiler MaterialCompiler) *Cache {
	return &Cache{
		logger:   log.New("shadercache"),
		device:   device,
		compiler: compiler,
		entries:  make(map[uint64]*Entry),
	}
}

// Lookup returns the cached entry for key, if present, without attempting
// a rebuild.
func (c *Cache) Lookup(key Key) (*Entry, bool) {
	e, ok := c.entries[key.digest()]
	return e, ok
}

// GetOrBuild returns the cached entry for key, compiling and building it on
// first use or whenever the caller has already evicted it via Invalidate.
// A compile failure returns *ErrCompileFailed and leaves any previously
// cached entry for this exact key untouched.
func (c *Cache) GetOrBuild(key Key, materials MaterialSet) (*Entry, error) {
	digest := key.digest()
	if e, ok := c.entries[digest]; ok {
		return e, nil
	}

	spirv, compileErr := c.compiler.Compile(materials, key.AOV, key.Features)
	if compileErr != nil {
		c.logger.Warningf("compile failed for aov=%d features=%#x: %s", key.AOV, uint32(key.Features), compileErr.Reason)
		return nil, &ErrCompileFailed{Key: key, Reason: compileErr.Reason}
	}

	shader, err := c.device.CreateShader(spirv)
	if err != nil {
		return nil, err
	}
	pipeline, err := c.device.CreatePipeline(shader, PushConstantSize)
	if err != nil {
		c.device.DestroyShader(shader)
		return nil, err
	}

	e := &Entry{Key: key, Shader: shader, Pipeline: pipeline}
	c.entries[digest] = e
	c.logger.Debugf("built pipeline for aov=%d features=%#x material=%#x", key.AOV, uint32(key.Features), uint64(key.Material))
	return e, nil
}

// Invalidate destroys and forgets the entry for key, if any. Callers use
// this when a material-set digest, AOV or feature-flag change makes the
// entry stale (spec.md §4.7's rebuild triggers).
func (c *Cache) Invalidate(key Key) {
	digest := key.digest()
	e, ok := c.entries[digest]
	if !ok {
		return
	}
	delete(c.entries, digest)
	c.device.DestroyPipeline(e.Pipeline)
	c.device.DestroyShader(e.Shader)
}

// Len reports the number of distinct variants currently resident.
func (c *Cache) Len() int {
	return len(c.entries)
}
