package gpu

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/achilleasa/gatling/handle"
)

// ImageUsage mirrors the subset of vk.ImageUsageFlagBits this renderer
// exercises: the output AOV buffer is a storage image, source textures
// (when the material compiler consumes them) are sampled images.
type ImageUsage uint32

const (
	ImageUsageSampled ImageUsage = 1 << iota
	ImageUsageStorage
	ImageUsageTransferSrc
	ImageUsageTransferDst
)

func translateImageUsage(u ImageUsage) vk.ImageUsageFlags {
	var flags vk.ImageUsageFlagBits
	if u&ImageUsageSampled != 0 {
		flags |= vk.ImageUsageSampledBit
	}
	if u&ImageUsageStorage != 0 {
		flags |= vk.ImageUsageStorageBit
	}
	if u&ImageUsageTransferSrc != 0 {
		flags |= vk.ImageUsageTransferSrcBit
	}
	if u&ImageUsageTransferDst != 0 {
		flags |= vk.ImageUsageTransferDstBit
	}
	return vk.ImageUsageFlags(flags)
}

// CreateImage creates a single-layer 2D or 3D image. Tiling is chosen from
// usage per spec.md §4.2: images that are only ever accessed by the device
// (sampled/storage) use optimal tiling; anything the host also touches
// directly would need linear tiling, but this renderer never maps images
// directly (it stages through buffers), so optimal is always selected here.
func (d *Device) CreateImage(kind ImageKind, format vk.Format, width, height, depth uint32, usage ImageUsage) (ImageHandle, error) {
	imgType := vk.ImageType2d
	if kind == Image3D {
		imgType = vk.ImageType3d
	}
	if depth == 0 {
		depth = 1
	}

	imgInfo := vk.ImageCreateInfo{
		SType:       vk.StructureTypeImageCreateInfo,
		ImageType:   imgType,
		Format:      format,
		Extent:      vk.Extent3D{Width: width, Height: height, Depth: depth},
		MipLevels:   1,
		ArrayLayers: 1,
		Samples:     vk.SampleCount1Bit,
		Tiling:      vk.ImageTilingOptimal,
		Usage:       translateImageUsage(usage),
		SharingMode: vk.SharingModeExclusive,
		InitialLayout: vk.ImageLayoutUndefined,
	}

	var img vk.Image
	if res := vk.CreateImage(d.logicalDevice, &imgInfo, nil, &img); res != vk.Success {
		return 0, fmt.Errorf("gpu: vkCreateImage failed: %d", res)
	}

	var memReqs vk.MemoryRequirements
	vk.GetImageMemoryRequirements(d.logicalDevice, img, &memReqs)
	memReqs.Deref()

	memTypeIdx, err := d.findMemoryType(memReqs.MemoryTypeBits, translateMemoryUsage(MemoryDeviceLocal))
	if err != nil {
		vk.DestroyImage(d.logicalDevice, img, nil)
		return 0, err
	}

	allocInfo := vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  memReqs.Size,
		MemoryTypeIndex: memTypeIdx,
	}
	var mem vk.DeviceMemory
	if res := vk.AllocateMemory(d.logicalDevice, &allocInfo, nil, &mem); res != vk.Success {
		vk.DestroyImage(d.logicalDevice, img, nil)
		return 0, fmt.Errorf("gpu: vkAllocateMemory failed: %d", res)
	}
	if res := vk.BindImageMemory(d.logicalDevice, img, mem, 0); res != vk.Success {
		vk.FreeMemory(d.logicalDevice, mem, nil)
		vk.DestroyImage(d.logicalDevice, img, nil)
		return 0, fmt.Errorf("gpu: vkBindImageMemory failed: %d", res)
	}

	viewType := vk.ImageViewType2d
	if kind == Image3D {
		viewType = vk.ImageViewType3d
	}
	viewInfo := vk.ImageViewCreateInfo{
		SType:    vk.StructureTypeImageViewCreateInfo,
		Image:    img,
		ViewType: viewType,
		Format:   format,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask:     vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount:     1,
			LayerCount:     1,
		},
	}
	var view vk.ImageView
	if res := vk.CreateImageView(d.logicalDevice, &viewInfo, nil, &view); res != vk.Success {
		vk.FreeMemory(d.logicalDevice, mem, nil)
		vk.DestroyImage(d.logicalDevice, img, nil)
		return 0, fmt.Errorf("gpu: vkCreateImageView failed: %d", res)
	}

	h := d.images.Create()
	res, _ := d.images.Get(h)
	*res = imageResource{
		handle:        img,
		view:          view,
		memory:        mem,
		kind:          kind,
		format:        format,
		width:         width,
		height:        height,
		depth:         depth,
		currentLayout: vk.ImageLayoutUndefined,
		currentAccess: 0,
	}
	return ImageHandle(h), nil
}

// imageState exposes the tracked layout/access for tests validating
// invariant 6 (spec.md §8).
func (d *Device) imageState(h ImageHandle) (vk.ImageLayout, vk.AccessFlags, error) {
	res, err := d.images.Get(handle.Handle(h))
	if err != nil {
		return 0, 0, err
	}
	return res.currentLayout, res.currentAccess, nil
}
