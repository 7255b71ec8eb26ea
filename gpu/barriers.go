package gpu

import (
	vk "github.com/vulkan-go/vulkan"

	"github.com/achilleasa/gatling/handle"
)

// accessForLayout is the declarative access-mask table spec.md §4.2 asks
// for: given the layout an image is about to transition into, the set of
// memory accesses that layout implies.
func accessForLayout(layout vk.ImageLayout) vk.AccessFlags {
	switch layout {
	case vk.ImageLayoutGeneral:
		return vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit)
	case vk.ImageLayoutTransferDstOptimal:
		return vk.AccessFlags(vk.AccessTransferWriteBit)
	case vk.ImageLayoutTransferSrcOptimal:
		return vk.AccessFlags(vk.AccessTransferReadBit)
	case vk.ImageLayoutShaderReadOnlyOptimal:
		return vk.AccessFlags(vk.AccessShaderReadBit)
	default:
		return 0
	}
}

// transitionImage records a pipeline barrier moving img from its
// currently-tracked layout to target, updating the tracked state so the
// next call sees the right "before" side. This is spec.md §4.2's implicit
// image-layout-transition algorithm: callers never issue barriers by hand,
// they just declare the layout a dispatch needs and the command recorder
// inserts the right one if (and only if) the image isn't already there.
func (d *Device) transitionImage(cmd vk.CommandBuffer, h ImageHandle, target vk.ImageLayout) error {
	res, err := d.images.Get(handle.Handle(h))
	if err != nil {
		return err
	}
	if res.currentLayout == target {
		return nil
	}

	newAccess := accessForLayout(target)
	barrier := vk.ImageMemoryBarrier{
		SType:               vk.StructureTypeImageMemoryBarrier,
		SrcAccessMask:       res.currentAccess,
		DstAccessMask:       newAccess,
		OldLayout:           res.currentLayout,
		NewLayout:           target,
		SrcQueueFamilyIndex: vk.QueueFamilyIgnored,
		DstQueueFamilyIndex: vk.QueueFamilyIgnored,
		Image:               res.handle,
		SubresourceRange: vk.ImageSubresourceRange{
			AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit),
			LevelCount: 1,
			LayerCount: 1,
		},
	}

	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageTopOfPipeBit),
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		0, 0, nil, 0, nil,
		1, []vk.ImageMemoryBarrier{barrier},
	)

	res.currentLayout = target
	res.currentAccess = newAccess
	return nil
}

// bufferBarrier inserts a compute-to-compute buffer barrier, used between
// dependent dispatches (e.g. the BVH builder's binning pass followed by its
// partition pass) where ordering can't be expressed any other way.
func bufferBarrier(cmd vk.CommandBuffer) {
	barrier := vk.MemoryBarrier{
		SType:         vk.StructureTypeMemoryBarrier,
		SrcAccessMask: vk.AccessFlags(vk.AccessShaderWriteBit),
		DstAccessMask: vk.AccessFlags(vk.AccessShaderReadBit | vk.AccessShaderWriteBit),
	}
	vk.CmdPipelineBarrier(cmd,
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		vk.PipelineStageFlags(vk.PipelineStageComputeShaderBit),
		0, 1, []vk.MemoryBarrier{barrier}, 0, nil, 0, nil,
	)
}
