package gpu

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// CreateSampler creates a sampler using the same address mode on all three
// axes; spec.md's Open Question about per-axis vs. collapsed clamp modes is
// resolved in favor of a single uniform mode per sampler (callers that need
// per-axis behaviour create more than one sampler), since none of the
// material types this renderer supports need mixed-axis wrapping.
func (d *Device) CreateSampler(mode SamplerAddressMode, anisotropy bool) (SamplerHandle, error) {
	addrMode, borderColor := translateAddressMode(mode)

	info := vk.SamplerCreateInfo{
		SType:                   vk.StructureTypeSamplerCreateInfo,
		MagFilter:               vk.FilterLinear,
		MinFilter:               vk.FilterLinear,
		AddressModeU:            addrMode,
		AddressModeV:            addrMode,
		AddressModeW:            addrMode,
		BorderColor:             borderColor,
		MipmapMode:              vk.SamplerMipmapModeLinear,
		AnisotropyEnable:        vk.False,
		MaxAnisotropy:           1.0,
		CompareOp:               vk.CompareOpNever,
		MinLod:                  0,
		MaxLod:                  0,
		UnnormalizedCoordinates: vk.False,
	}
	if anisotropy && d.Features.SamplerAnisotropy {
		info.AnisotropyEnable = vk.True
		info.MaxAnisotropy = 16.0
	}

	var sampler vk.Sampler
	if res := vk.CreateSampler(d.logicalDevice, &info, nil, &sampler); res != vk.Success {
		return 0, fmt.Errorf("gpu: vkCreateSampler failed: %d", res)
	}

	h := d.samplers.Create()
	res, _ := d.samplers.Get(h)
	*res = samplerResource{handle: sampler}
	return SamplerHandle(h), nil
}
