package gpu

import (
	"fmt"
	"sort"

	vk "github.com/vulkan-go/vulkan"

	"github.com/achilleasa/gatling/handle"
)

// BufferBinding pairs a buffer with the descriptor binding slot it fills.
type BufferBinding struct {
	Binding uint32
	Buffer  BufferHandle
	Offset  uint64
	Size    uint64 // 0 means "whole buffer"
}

// ImageBinding pairs an image (optionally sampled through a sampler) with
// its descriptor binding slot.
type ImageBinding struct {
	Binding uint32
	Image   ImageHandle
	Sampler SamplerHandle // zero value means the binding is a plain storage image
}

// Bindings is the caller-supplied view of a pipeline's descriptor set:
// two small slices rather than a generic map, with samplers carried on
// their ImageBinding instead of in a slice of their own.
type Bindings struct {
	Buffers []BufferBinding
	Images  []ImageBinding
}

// UpdateBindings walks the pipeline's reflected binding list against the
// caller-supplied Bindings in a single pre-sorted pass (spec.md §4.2, and
// the DESIGN NOTES table's call to avoid an O(n^2) binding scan): both the
// reflected list and the two caller slices are sorted by binding index
// once, then merged like a two-pointer join. Any reflected binding with no
// matching supplied slot is reported as ErrBindingMismatch.
//
// Image bindings are transitioned to the layout their kind requires
// (General for a storage image, ShaderReadOnlyOptimal for a sampled image
// or combined sampler) as part of this same call, recorded into cmd: spec.md
// §4.2's implicit-barrier contract means a caller never issues
// TransitionImage by hand before a dispatch, it just declares what the
// binding is and the right barrier is inserted if the image isn't already
// in that layout.
func (d *Device) UpdateBindings(cmd CommandBufferHandle, pipeline PipelineHandle, b Bindings) error {
	pres, err := d.pipelines.Get(handle.Handle(pipeline))
	if err != nil {
		return err
	}
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}

	reflected := append([]ReflectedBinding(nil), pres.bindings...)
	sort.Slice(reflected, func(i, j int) bool { return reflected[i].Binding < reflected[j].Binding })

	buffers := append([]BufferBinding(nil), b.Buffers...)
	sort.Slice(buffers, func(i, j int) bool { return buffers[i].Binding < buffers[j].Binding })
	images := append([]ImageBinding(nil), b.Images...)
	sort.Slice(images, func(i, j int) bool { return images[i].Binding < images[j].Binding })

	var writes []vk.WriteDescriptorSet
	// scratch info structs must outlive the vk.WriteDescriptorSet.P* pointers
	// referencing them until the Update call below.
	var bufferInfos []vk.DescriptorBufferInfo
	var imageInfos []vk.DescriptorImageInfo

	bi, ii := 0, 0
	for _, rb := range reflected {
		switch rb.Kind {
		case BindingStorageBuffer, BindingUniformBuffer:
			for bi < len(buffers) && buffers[bi].Binding < rb.Binding {
				bi++
			}
			if bi >= len(buffers) || buffers[bi].Binding != rb.Binding {
				return &ErrBindingMismatch{Binding: rb.Binding, Reason: "no buffer supplied for reflected binding"}
			}
			bufRes, err := d.buffers.Get(handle.Handle(buffers[bi].Buffer))
			if err != nil {
				return &ErrBindingMismatch{Binding: rb.Binding, Reason: err.Error()}
			}
			if align := d.minStorageBufferOffsetAlignment; rb.Kind == BindingStorageBuffer && align > 0 && buffers[bi].Offset%align != 0 {
				return &ErrBindingMismatch{
					Binding: rb.Binding,
					Reason:  fmt.Sprintf("offset %d is not a multiple of minStorageBufferOffsetAlignment %d", buffers[bi].Offset, align),
				}
			}
			size := buffers[bi].Size
			if size == 0 {
				size = uint64(bufRes.size) - buffers[bi].Offset
			}
			bufferInfos = append(bufferInfos, vk.DescriptorBufferInfo{
				Buffer: bufRes.handle,
				Offset: vk.DeviceSize(buffers[bi].Offset),
				Range:  vk.DeviceSize(size),
			})
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          pres.descriptorSet,
				DstBinding:      rb.Binding,
				DescriptorCount: 1,
				DescriptorType:  rb.Kind.descriptorType(),
				PBufferInfo:     bufferInfos[len(bufferInfos)-1:],
			})
			bi++

		case BindingStorageImage, BindingSampledImage, BindingSampler:
			for ii < len(images) && images[ii].Binding < rb.Binding {
				ii++
			}
			if ii >= len(images) || images[ii].Binding != rb.Binding {
				return &ErrBindingMismatch{Binding: rb.Binding, Reason: "no image supplied for reflected binding"}
			}
			imgRes, err := d.images.Get(handle.Handle(images[ii].Image))
			if err != nil {
				return &ErrBindingMismatch{Binding: rb.Binding, Reason: err.Error()}
			}
			var sampler vk.Sampler
			if images[ii].Sampler != 0 {
				samplerRes, err := d.samplers.Get(handle.Handle(images[ii].Sampler))
				if err != nil {
					return &ErrBindingMismatch{Binding: rb.Binding, Reason: err.Error()}
				}
				sampler = samplerRes.handle
			}
			layout := vk.ImageLayoutGeneral
			if rb.Kind == BindingSampledImage || rb.Kind == BindingSampler {
				layout = vk.ImageLayoutShaderReadOnlyOptimal
			}
			if err := d.transitionImage(cres.cmd, images[ii].Image, layout); err != nil {
				return &ErrBindingMismatch{Binding: rb.Binding, Reason: err.Error()}
			}
			imageInfos = append(imageInfos, vk.DescriptorImageInfo{
				Sampler:     sampler,
				ImageView:   imgRes.view,
				ImageLayout: layout,
			})
			writes = append(writes, vk.WriteDescriptorSet{
				SType:           vk.StructureTypeWriteDescriptorSet,
				DstSet:          pres.descriptorSet,
				DstBinding:      rb.Binding,
				DescriptorCount: 1,
				DescriptorType:  rb.Kind.descriptorType(),
				PImageInfo:      imageInfos[len(imageInfos)-1:],
			})
			ii++

		default:
			return &ErrBindingMismatch{Binding: rb.Binding, Reason: fmt.Sprintf("unhandled binding kind %d", rb.Kind)}
		}
	}

	if len(writes) > 0 {
		vk.UpdateDescriptorSets(d.logicalDevice, uint32(len(writes)), writes, 0, nil)
	}
	return nil
}
