package gpu

import (
	"fmt"
	"unsafe"

	vk "github.com/vulkan-go/vulkan"

	"github.com/achilleasa/gatling/handle"
)

// CreateBuffer allocates a buffer of size bytes with the given usage flags
// and memory-property policy, mirroring the teacher's
// tracer/opencl/device.Buffer.Allocate but expressed as Vulkan buffer +
// bound device memory instead of a cl_mem object.
func (d *Device) CreateBuffer(size uint64, usage BufferUsage, memUsage MemoryUsage) (BufferHandle, error) {
	bufInfo := vk.BufferCreateInfo{
		SType:       vk.StructureTypeBufferCreateInfo,
		Size:        vk.DeviceSize(size),
		Usage:       translateBufferUsage(usage),
		SharingMode: vk.SharingModeExclusive,
	}

	var buf vk.Buffer
	if res := vk.CreateBuffer(d.logicalDevice, &bufInfo, nil, &buf); res != vk.Success {
		return 0, fmt.Errorf("gpu: vkCreateBuffer failed: %d", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetBufferMemoryRequirements(d.logicalDevice, buf, &memReqs)
	memReqs.Deref()

	memTypeIdx, err := d.findMemoryType(memReqs.MemoryTypeBits, translateMemoryUsage(memUsage))
	if err != nil {
		vk.DestroyBuffer(d.logicalDevice, buf, nil)
		return 0, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memTypeIdx,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.logicalDevice, &allocInfo, nil, &mem); res != vk.Success {
		vk.DestroyBuffer(d.logicalDevice, buf, nil)
		return 0, fmt.Errorf("gpu: vkAllocateMemory failed: %d", res)
	}
	if res := vk.BindBufferMemory(d.logicalDevice, buf, mem, 0); res != vk.Success {
		vk.FreeMemory(d.logicalDevice, mem, nil)
		vk.DestroyBuffer(d.logicalDevice, buf, nil)
		return 0, fmt.Errorf("gpu: vkBindBufferMemory failed: %d", res)
	}

	h := d.buffers.Create()
	res, _ := d.buffers.Get(h)
	*res = bufferResource{
		handle:     buf,
		memory:     mem,
		size:       vk.DeviceSize(size),
		usage:      usage,
		memoryUsed: memUsage,
	}
	return BufferHandle(h), nil
}

// BufferSize returns the byte size of the buffer identified by h.
func (d *Device) BufferSize(h BufferHandle) (uint64, error) {
	res, err := d.buffers.Get(handle.Handle(h))
	if err != nil {
		return 0, err
	}
	return uint64(res.size), nil
}

// Map returns a byte slice backed by the buffer's device memory. Only
// host-visible buffers can be mapped; the mapping is exclusive until
// Unmap is called (spec.md §5's "GPU memory mapping is exclusive per
// buffer/image for the duration between map and unmap").
func (d *Device) Map(h BufferHandle) ([]byte, error) {
	res, err := d.buffers.Get(handle.Handle(h))
	if err != nil {
		return nil, err
	}
	if res.mapped != nil {
		return res.mapped, nil
	}

	var ptr unsafe.Pointer
	if r := vk.MapMemory(d.logicalDevice, res.memory, 0, vk.DeviceSize(vk.WholeSize), 0, &ptr); r != vk.Success {
		return nil, fmt.Errorf("gpu: vkMapMemory failed: %d", r)
	}
	res.mapped = unsafe.Slice((*byte)(ptr), int(res.size))
	return res.mapped, nil
}

// Unmap ends the mapping started by Map.
func (d *Device) Unmap(h BufferHandle) error {
	res, err := d.buffers.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	if res.mapped == nil {
		return nil
	}
	vk.UnmapMemory(d.logicalDevice, res.memory)
	res.mapped = nil
	return nil
}

// Flush makes host writes to a mapped, non-coherent buffer visible to the
// device.
func (d *Device) Flush(h BufferHandle) error {
	res, err := d.buffers.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	ranges := []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: res.memory,
		Offset: 0,
		Size:   vk.DeviceSize(vk.WholeSize),
	}}
	if r := vk.FlushMappedMemoryRanges(d.logicalDevice, 1, ranges); r != vk.Success {
		return fmt.Errorf("gpu: vkFlushMappedMemoryRanges failed: %d", r)
	}
	return nil
}

// Invalidate makes device writes to a mapped, non-coherent buffer visible
// to subsequent host reads.
func (d *Device) Invalidate(h BufferHandle) error {
	res, err := d.buffers.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	ranges := []vk.MappedMemoryRange{{
		SType:  vk.StructureTypeMappedMemoryRange,
		Memory: res.memory,
		Offset: 0,
		Size:   vk.DeviceSize(vk.WholeSize),
	}}
	if r := vk.InvalidateMappedMemoryRanges(d.logicalDevice, 1, ranges); r != vk.Success {
		return fmt.Errorf("gpu: vkInvalidateMappedMemoryRanges failed: %d", r)
	}
	return nil
}
