package gpu

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/achilleasa/gatling/handle"
)

// CreatePipeline builds a compute pipeline from a single shader, deriving
// its descriptor-set layout and pool sizes from the shader's reflected
// bindings (gpu/shaders.go) rather than requiring the caller to hand-author
// a layout, per spec.md §4.2's "pipelines are built from reflection, not
// from manually specified layouts" design note. pushConstantSize may be 0.
func (d *Device) CreatePipeline(shader ShaderHandle, pushConstantSize uint32) (PipelineHandle, error) {
	shaderRes, err := d.shaders.Get(handle.Handle(shader))
	if err != nil {
		return 0, err
	}

	bindings := shaderRes.bindings
	layoutBindings := make([]vk.DescriptorSetLayoutBinding, len(bindings))
	poolSizeByType := make(map[vk.DescriptorType]uint32)
	for i, b := range bindings {
		dt := b.Kind.descriptorType()
		layoutBindings[i] = vk.DescriptorSetLayoutBinding{
			Binding:         b.Binding,
			DescriptorType:  dt,
			DescriptorCount: b.Count,
			StageFlags:      vk.ShaderStageFlags(vk.ShaderStageComputeBit),
		}
		poolSizeByType[dt] += b.Count
	}

	setLayoutInfo := vk.DescriptorSetLayoutCreateInfo{
		SType:        vk.StructureTypeDescriptorSetLayoutCreateInfo,
		BindingCount: uint32(len(layoutBindings)),
		PBindings:    layoutBindings,
	}
	var setLayout vk.DescriptorSetLayout
	if res := vk.CreateDescriptorSetLayout(d.logicalDevice, &setLayoutInfo, nil, &setLayout); res != vk.Success {
		return 0, fmt.Errorf("gpu: vkCreateDescriptorSetLayout failed: %d", res)
	}

	var poolSizes []vk.DescriptorPoolSize
	for dt, count := range poolSizeByType {
		poolSizes = append(poolSizes, vk.DescriptorPoolSize{Type: dt, DescriptorCount: count})
	}
	if len(poolSizes) == 0 {
		poolSizes = []vk.DescriptorPoolSize{{Type: vk.DescriptorTypeStorageBuffer, DescriptorCount: 1}}
	}
	poolInfo := vk.DescriptorPoolCreateInfo{
		SType:         vk.StructureTypeDescriptorPoolCreateInfo,
		MaxSets:       1,
		PoolSizeCount: uint32(len(poolSizes)),
		PPoolSizes:    poolSizes,
	}
	var pool vk.DescriptorPool
	if res := vk.CreateDescriptorPool(d.logicalDevice, &poolInfo, nil, &pool); res != vk.Success {
		vk.DestroyDescriptorSetLayout(d.logicalDevice, setLayout, nil)
		return 0, fmt.Errorf("gpu: vkCreateDescriptorPool failed: %d", res)
	}

	setAllocInfo := vk.DescriptorSetAllocateInfo{
		SType:              vk.StructureTypeDescriptorSetAllocateInfo,
		DescriptorPool:     pool,
		DescriptorSetCount: 1,
		PSetLayouts:        []vk.DescriptorSetLayout{setLayout},
	}
	descriptorSets := make([]vk.DescriptorSet, 1)
	if res := vk.AllocateDescriptorSets(d.logicalDevice, &setAllocInfo, &descriptorSets[0]); res != vk.Success {
		vk.DestroyDescriptorPool(d.logicalDevice, pool, nil)
		vk.DestroyDescriptorSetLayout(d.logicalDevice, setLayout, nil)
		return 0, fmt.Errorf("gpu: vkAllocateDescriptorSets failed: %d", res)
	}

	var pushRanges []vk.PushConstantRange
	if pushConstantSize > 0 {
		pushRanges = []vk.PushConstantRange{{
			StageFlags: vk.ShaderStageFlags(vk.ShaderStageComputeBit),
			Offset:     0,
			Size:       pushConstantSize,
		}}
	}
	layoutInfo := vk.PipelineLayoutCreateInfo{
		SType:                  vk.StructureTypePipelineLayoutCreateInfo,
		SetLayoutCount:         1,
		PSetLayouts:            []vk.DescriptorSetLayout{setLayout},
		PushConstantRangeCount: uint32(len(pushRanges)),
		PPushConstantRanges:    pushRanges,
	}
	var pipelineLayout vk.PipelineLayout
	if res := vk.CreatePipelineLayout(d.logicalDevice, &layoutInfo, nil, &pipelineLayout); res != vk.Success {
		vk.DestroyDescriptorPool(d.logicalDevice, pool, nil)
		vk.DestroyDescriptorSetLayout(d.logicalDevice, setLayout, nil)
		return 0, fmt.Errorf("gpu: vkCreatePipelineLayout failed: %d", res)
	}

	stageInfo := vk.PipelineShaderStageCreateInfo{
		SType:  vk.StructureTypePipelineShaderStageCreateInfo,
		Stage:  vk.ShaderStageComputeBit,
		Module: shaderRes.module,
		PName:  "main\x00",
	}
	pipelineInfo := vk.ComputePipelineCreateInfo{
		SType:  vk.StructureTypeComputePipelineCreateInfo,
		Stage:  stageInfo,
		Layout: pipelineLayout,
	}
	pipelines := make([]vk.Pipeline, 1)
	if res := vk.CreateComputePipelines(d.logicalDevice, vk.PipelineCache(vk.NullHandle), 1, []vk.ComputePipelineCreateInfo{pipelineInfo}, nil, pipelines); res != vk.Success {
		vk.DestroyPipelineLayout(d.logicalDevice, pipelineLayout, nil)
		vk.DestroyDescriptorPool(d.logicalDevice, pool, nil)
		vk.DestroyDescriptorSetLayout(d.logicalDevice, setLayout, nil)
		return 0, fmt.Errorf("gpu: vkCreateComputePipelines failed: %d", res)
	}

	h := d.pipelines.Create()
	res, _ := d.pipelines.Get(h)
	*res = pipelineResource{
		pipeline:            pipelines[0],
		layout:              pipelineLayout,
		descriptorSetLayout: setLayout,
		descriptorPool:      pool,
		descriptorSet:       descriptorSets[0],
		pushConstantSize:    pushConstantSize,
		bindings:            bindings,
	}
	return PipelineHandle(h), nil
}
