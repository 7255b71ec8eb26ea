package orchestrator

import (
	"encoding/binary"
	"math"

	"github.com/achilleasa/gatling/gpu"
	"github.com/achilleasa/gatling/scene"
)

// meshInstanceStride is the on-GPU byte size of one baked MeshInstance
// record: a mesh reference (u32, padded to 16 bytes for alignment) plus the
// 3x4 affine transform (48 bytes).
const meshInstanceStride = 64

// GeometryCache is the opaque GPU-side payload spec.md §3 names: a vector
// of baked MeshInstance transforms uploaded into a storage buffer that the
// traversal kernel indexes per-instance. It is rebuilt whenever the
// orchestrator's change-version check reports a visibility or scene-state
// bump (spec.md §4.7).
type GeometryCache struct {
	Buffer        gpu.BufferHandle
	InstanceCount uint32
	built         bool
}

// Build walks the supplied mesh instances, bakes them into the fixed
// per-instance layout and uploads them into a freshly allocated
// host-visible storage buffer. The caller is responsible for destroying
// the previous cache's buffer when replacing it — Frame in
// orchestrator.go builds the new cache first and destroys the old one
// only once that build succeeded, so the swap is committed or discarded
// as a whole.
func (c *GeometryCache) Build(device *gpu.Device, instances []scene.MeshInstance) error {
	size := uint64(len(instances)) * meshInstanceStride
	if size == 0 {
		size = meshInstanceStride // zero-sized buffers aren't valid; keep a dummy slot.
	}

	buf, err := device.CreateBuffer(size, gpu.BufferUsageStorage|gpu.BufferUsageTransferDst, gpu.MemoryHostVisible)
	if err != nil {
		return err
	}

	data, err := device.Map(buf)
	if err != nil {
		device.DestroyBuffer(buf)
		return err
	}
	for i, inst := range instances {
		off := i * meshInstanceStride
		binary.LittleEndian.PutUint32(data[off:off+4], inst.MeshRef)
		for row := 0; row < 3; row++ {
			for col := 0; col < 4; col++ {
				bits := math.Float32bits(inst.Transform[row][col])
				fieldOff := off + 16 + (row*4+col)*4
				binary.LittleEndian.PutUint32(data[fieldOff:fieldOff+4], bits)
			}
		}
	}
	if err := device.Unmap(buf); err != nil {
		device.DestroyBuffer(buf)
		return err
	}

	c.Buffer = buf
	c.InstanceCount = uint32(len(instances))
	c.built = true
	return nil
}

// Destroy releases the cache's backing buffer, if any.
func (c *GeometryCache) Destroy(device *gpu.Device) {
	if !c.built {
		return
	}
	device.DestroyBuffer(c.Buffer)
	c.built = false
}
