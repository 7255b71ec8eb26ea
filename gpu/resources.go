package gpu

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/achilleasa/gatling/handle"
)

// Typed handles. Per DESIGN NOTES (spec.md §9), each resource kind gets a
// distinct Go type wrapping the same (slot, generation) handle.Handle so
// that a BufferHandle can never be silently passed where an ImageHandle is
// expected, while the storage remains a single 64-bit pair.
type (
	BufferHandle        handle.Handle
	ImageHandle         handle.Handle
	SamplerHandle       handle.Handle
	ShaderHandle        handle.Handle
	PipelineHandle      handle.Handle
	CommandBufferHandle handle.Handle
	FenceHandle         handle.Handle
)

// MemoryUsage is a coarse-grained request for where a buffer/image should
// live; Device.translateMemoryUsage maps it onto vk.MemoryPropertyFlags.
type MemoryUsage uint8

const (
	// MemoryDeviceLocal is fast device-local memory, not host visible.
	MemoryDeviceLocal MemoryUsage = iota
	// MemoryHostVisible is coherent, host-mappable memory for staging
	// uploads and readback.
	MemoryHostVisible
	// MemoryHostCached is host-visible and cached, for frequent readback.
	MemoryHostCached
)

// BufferUsage mirrors the subset of vk.BufferUsageFlagBits this renderer
// exercises.
type BufferUsage uint32

const (
	BufferUsageStorage BufferUsage = 1 << iota
	BufferUsageTransferSrc
	BufferUsageTransferDst
	BufferUsageUniform
)

type bufferResource struct {
	handle     vk.Buffer
	memory     vk.DeviceMemory
	size       vk.DeviceSize
	usage      BufferUsage
	memoryUsed MemoryUsage
	mapped     []byte
}

type ImageKind uint8

const (
	Image2D ImageKind = iota
	Image3D
)

// imageResource tracks the layout/access state described in spec.md §4.2's
// implicit-transition algorithm, so successive dispatches don't need the
// caller to insert manual barriers.
type imageResource struct {
	handle vk.Image
	view   vk.ImageView
	memory vk.DeviceMemory
	kind   ImageKind
	format vk.Format
	width  uint32
	height uint32
	depth  uint32

	currentLayout vk.ImageLayout
	currentAccess vk.AccessFlags
}

// SamplerAddressMode is the address mode requested at sampler creation.
// One mode is applied uniformly to the U, V and W axes of a sampler (see
// CreateSampler); there is no per-axis setting.
type SamplerAddressMode uint8

const (
	AddressRepeat SamplerAddressMode = iota
	AddressClampToEdge
	AddressClampToBorderBlack
)

type samplerResource struct {
	handle vk.Sampler
}

type shaderResource struct {
	module   vk.ShaderModule
	spirv    []uint32
	bindings []ReflectedBinding
}

type pipelineResource struct {
	pipeline            vk.Pipeline
	layout              vk.PipelineLayout
	descriptorSetLayout vk.DescriptorSetLayout
	descriptorPool      vk.DescriptorPool
	descriptorSet       vk.DescriptorSet
	pushConstantSize    uint32
	bindings            []ReflectedBinding
}

type commandBufferResource struct {
	cmd    vk.CommandBuffer
	device *Device // non-owning; submission verifies it still resolves.
}

type fenceResource struct {
	fence vk.Fence
}

// translateMemoryUsage is the declarative mapping from a coarse
// MemoryUsage request to concrete vk.MemoryPropertyFlags, per spec.md
// §4.2's "memory-property -> driver flag translation" algorithm.
func translateMemoryUsage(u MemoryUsage) vk.MemoryPropertyFlags {
	switch u {
	case MemoryHostVisible:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCoherentBit)
	case MemoryHostCached:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyHostVisibleBit | vk.MemoryPropertyHostCachedBit)
	default:
		return vk.MemoryPropertyFlags(vk.MemoryPropertyDeviceLocalBit)
	}
}

func translateBufferUsage(u BufferUsage) vk.BufferUsageFlags {
	var flags vk.BufferUsageFlagBits
	if u&BufferUsageStorage != 0 {
		flags |= vk.BufferUsageStorageBufferBit
	}
	if u&BufferUsageTransferSrc != 0 {
		flags |= vk.BufferUsageTransferSrcBit
	}
	if u&BufferUsageTransferDst != 0 {
		flags |= vk.BufferUsageTransferDstBit
	}
	if u&BufferUsageUniform != 0 {
		flags |= vk.BufferUsageUniformBufferBit
	}
	return vk.BufferUsageFlags(flags)
}

func translateAddressMode(m SamplerAddressMode) (vk.SamplerAddressMode, vk.BorderColor) {
	switch m {
	case AddressClampToEdge:
		return vk.SamplerAddressModeClampToEdge, vk.BorderColorFloatOpaqueBlack
	case AddressClampToBorderBlack:
		return vk.SamplerAddressModeClampToBorder, vk.BorderColorFloatTransparentBlack
	default:
		return vk.SamplerAddressModeRepeat, vk.BorderColorFloatOpaqueBlack
	}
}

// DestroyBuffer releases the buffer identified by h. Double-destruction is
// reported as ErrStale rather than panicking (spec.md §7).
func (d *Device) DestroyBuffer(h BufferHandle) error {
	res, err := d.buffers.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	if res.mapped != nil {
		vk.UnmapMemory(d.logicalDevice, res.memory)
	}
	vk.DestroyBuffer(d.logicalDevice, res.handle, nil)
	vk.FreeMemory(d.logicalDevice, res.memory, nil)
	return d.buffers.Free(handle.Handle(h))
}

func (d *Device) DestroyImage(h ImageHandle) error {
	res, err := d.images.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	vk.DestroyImageView(d.logicalDevice, res.view, nil)
	vk.DestroyImage(d.logicalDevice, res.handle, nil)
	vk.FreeMemory(d.logicalDevice, res.memory, nil)
	return d.images.Free(handle.Handle(h))
}

func (d *Device) DestroySampler(h SamplerHandle) error {
	res, err := d.samplers.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	vk.DestroySampler(d.logicalDevice, res.handle, nil)
	return d.samplers.Free(handle.Handle(h))
}

// DestroyPipeline releases a pipeline and all of the descriptor/layout
// objects it owns (spec.md §3's ownership invariant: "a Pipeline owns its
// descriptor-set layout, descriptor pool, and pipeline-layout handles").
func (d *Device) DestroyPipeline(h PipelineHandle) error {
	res, err := d.pipelines.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	vk.DestroyPipeline(d.logicalDevice, res.pipeline, nil)
	vk.DestroyPipelineLayout(d.logicalDevice, res.layout, nil)
	vk.DestroyDescriptorPool(d.logicalDevice, res.descriptorPool, nil)
	vk.DestroyDescriptorSetLayout(d.logicalDevice, res.descriptorSetLayout, nil)
	return d.pipelines.Free(handle.Handle(h))
}

func (d *Device) DestroyShader(h ShaderHandle) error {
	res, err := d.shaders.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	vk.DestroyShaderModule(d.logicalDevice, res.module, nil)
	return d.shaders.Free(handle.Handle(h))
}

func (d *Device) DestroyFence(h FenceHandle) error {
	res, err := d.fences.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	vk.DestroyFence(d.logicalDevice, res.fence, nil)
	return d.fences.Free(handle.Handle(h))
}
