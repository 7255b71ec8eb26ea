package gpu

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"
)

// BindingKind identifies what a reflected descriptor binding is backed by.
type BindingKind uint8

const (
	BindingStorageBuffer BindingKind = iota
	BindingUniformBuffer
	BindingStorageImage
	BindingSampledImage
	BindingSampler
)

// ReflectedBinding describes a single descriptor slot a compiled shader
// module declared, derived from its SPIR-V OpDecorate annotations. Pipelines
// use the reflected list to size descriptor pools and validate the bindings
// a caller supplies at dispatch time (spec.md §4.2's descriptor-set binding
// contract).
type ReflectedBinding struct {
	Set     uint32
	Binding uint32
	Kind    BindingKind
	Count   uint32
}

func (b BindingKind) descriptorType() vk.DescriptorType {
	switch b {
	case BindingUniformBuffer:
		return vk.DescriptorTypeUniformBuffer
	case BindingStorageImage:
		return vk.DescriptorTypeStorageImage
	case BindingSampledImage:
		return vk.DescriptorTypeCombinedImageSampler
	case BindingSampler:
		return vk.DescriptorTypeSampler
	default:
		return vk.DescriptorTypeStorageBuffer
	}
}

// CreateShader loads a SPIR-V module and reflects its descriptor bindings.
// Reflection here is a minimal SPIR-V decoration walk rather than a full
// disassembly: it is only concerned with OpDecorate DescriptorSet/Binding
// pairs and the storage class of the variable they annotate, which is
// exactly what the binding merge-walk in bindings.go needs.
func (d *Device) CreateShader(spirv []uint32) (ShaderHandle, error) {
	info := vk.ShaderModuleCreateInfo{
		SType:    vk.StructureTypeShaderModuleCreateInfo,
		CodeSize: uint(len(spirv) * 4),
		PCode:    spirv,
	}
	var module vk.ShaderModule
	if res := vk.CreateShaderModule(d.logicalDevice, &info, nil, &module); res != vk.Success {
		return 0, fmt.Errorf("gpu: vkCreateShaderModule failed: %d", res)
	}

	bindings, err := reflectBindings(spirv)
	if err != nil {
		vk.DestroyShaderModule(d.logicalDevice, module, nil)
		return 0, err
	}

	h := d.shaders.Create()
	res, _ := d.shaders.Get(h)
	*res = shaderResource{module: module, spirv: spirv, bindings: bindings}
	return ShaderHandle(h), nil
}

const (
	spirvOpTypeImage     = 25
	spirvOpDecorate      = 71
	spirvOpTypePointer   = 32
	spirvOpVariable      = 59
	spirvDecorBinding    = 33
	spirvDecorDescSet    = 34
	spirvStorageClassUniformConstant = 0
	spirvStorageClassUniform         = 2
	spirvStorageClassStorageBuffer   = 12

	// Sampled operand values from an OpTypeImage instruction's 7th word
	// (SPIR-V spec §3.36.3): 1 means the image is only ever used with a
	// sampler, 2 means it's only ever used without one (a storage image).
	spirvImageSampledWithSampler    = 1
	spirvImageSampledWithoutSampler = 2
)

// reflectBindings walks a SPIR-V module's instruction stream looking for
// OpDecorate Binding/DescriptorSet pairs on OpVariable results, then
// classifies each by the storage class of its pointer type -- and, for a
// UniformConstant variable, by its pointee OpTypeImage's Sampled operand,
// since sampled images, storage images and samplers all share that one
// storage class in SPIR-V and are only distinguishable through the type
// they point at. It is a deliberately narrow reflector: it assumes one
// binding per decorated variable and Count==1 (no binding arrays), which
// covers every shader this renderer ships (the CWBVH traversal kernel and
// the shading kernels).
func reflectBindings(spirv []uint32) ([]ReflectedBinding, error) {
	if len(spirv) < 5 || spirv[0] != 0x07230203 {
		return nil, fmt.Errorf("gpu: not a valid SPIR-V module")
	}

	type decor struct {
		set, binding uint32
		hasSet, hasBinding bool
	}
	decorations := make(map[uint32]*decor)
	storageClasses := make(map[uint32]uint32) // variable id -> storage class
	varResultType := make(map[uint32]uint32)  // variable id -> its pointer type id
	pointerPointee := make(map[uint32]uint32) // pointer type id -> pointee type id
	imageSampled := make(map[uint32]uint32)   // OpTypeImage id -> Sampled operand

	i := 5
	for i < len(spirv) {
		word := spirv[i]
		wordCount := word >> 16
		opcode := word & 0xffff
		if wordCount == 0 || i+int(wordCount) > len(spirv) {
			break
		}
		switch opcode {
		case spirvOpDecorate:
			target := spirv[i+1]
			decoration := spirv[i+2]
			d := decorations[target]
			if d == nil {
				d = &decor{}
				decorations[target] = d
			}
			switch decoration {
			case spirvDecorBinding:
				d.binding = spirv[i+3]
				d.hasBinding = true
			case spirvDecorDescSet:
				d.set = spirv[i+3]
				d.hasSet = true
			}
		case spirvOpTypePointer:
			resultType := spirv[i+1]
			pointee := spirv[i+3]
			pointerPointee[resultType] = pointee
		case spirvOpTypeImage:
			resultType := spirv[i+1]
			imageSampled[resultType] = spirv[i+7]
		case spirvOpVariable:
			resultType := spirv[i+1]
			result := spirv[i+2]
			storageClass := spirv[i+3]
			storageClasses[result] = storageClass
			varResultType[result] = resultType
		}
		i += int(wordCount)
	}

	var out []ReflectedBinding
	for id, d := range decorations {
		if !d.hasSet || !d.hasBinding {
			continue
		}
		sc, ok := storageClasses[id]
		if !ok {
			continue
		}
		var kind BindingKind
		switch sc {
		case spirvStorageClassStorageBuffer:
			kind = BindingStorageBuffer
		case spirvStorageClassUniform:
			kind = BindingUniformBuffer
		case spirvStorageClassUniformConstant:
			kind = classifyUniformConstant(varResultType[id], pointerPointee, imageSampled)
		default:
			continue
		}
		out = append(out, ReflectedBinding{Set: d.set, Binding: d.binding, Kind: kind, Count: 1})
	}
	return out, nil
}

// classifyUniformConstant distinguishes a storage image, a sampled image and
// a sampler, all of which share the UniformConstant storage class: it
// follows the variable's pointer type to its pointee and, if that pointee is
// an OpTypeImage, reads the Sampled operand. A pointee that isn't an
// OpTypeImage at all (OpTypeSampler, or OpTypeSampledImage wrapping one) is
// assumed to be a plain sampler -- this renderer never declares a combined
// image-sampler binding.
func classifyUniformConstant(ptrType uint32, pointerPointee, imageSampled map[uint32]uint32) BindingKind {
	pointee, ok := pointerPointee[ptrType]
	if !ok {
		return BindingSampler
	}
	sampled, ok := imageSampled[pointee]
	if !ok {
		return BindingSampler
	}
	if sampled == spirvImageSampledWithoutSampler {
		return BindingStorageImage
	}
	return BindingSampledImage
}

// encodeWord is a small helper used by tests to build synthetic SPIR-V
// fixtures without depending on a real compiler.
func encodeWord(wordCount, opcode uint32) uint32 {
	return (wordCount << 16) | (opcode & 0xffff)
}
