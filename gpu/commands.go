package gpu

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/achilleasa/gatling/handle"
)

// CreateCommandBuffer allocates a primary command buffer from the device's
// command pool.
func (d *Device) CreateCommandBuffer() (CommandBufferHandle, error) {
	allocInfo := vk.CommandBufferAllocateInfo{
		SType:              vk.StructureTypeCommandBufferAllocateInfo,
		CommandPool:        d.commandPool,
		Level:              vk.CommandBufferLevelPrimary,
		CommandBufferCount: 1,
	}
	cmds := make([]vk.CommandBuffer, 1)
	if res := vk.AllocateCommandBuffers(d.logicalDevice, &allocInfo, cmds); res != vk.Success {
		return 0, fmt.Errorf("gpu: vkAllocateCommandBuffers failed: %d", res)
	}

	h := d.commandBuffers.Create()
	res, _ := d.commandBuffers.Get(h)
	*res = commandBufferResource{cmd: cmds[0], device: d}
	return CommandBufferHandle(h), nil
}

// Begin starts recording into cmd. Every command buffer is one-shot: it
// must be reset (implicitly, by re-Begin) before it can be re-recorded,
// matching spec.md §5's "a command buffer's recorded contents are replaced,
// never appended to, by a second Begin".
func (d *Device) Begin(cmd CommandBufferHandle) error {
	res, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	vk.ResetCommandBuffer(res.cmd, vk.CommandBufferResetFlags(0))
	beginInfo := vk.CommandBufferBeginInfo{
		SType: vk.StructureTypeCommandBufferBeginInfo,
		Flags: vk.CommandBufferUsageFlags(vk.CommandBufferUsageOneTimeSubmitBit),
	}
	if r := vk.BeginCommandBuffer(res.cmd, &beginInfo); r != vk.Success {
		return fmt.Errorf("gpu: vkBeginCommandBuffer failed: %d", r)
	}
	return nil
}

// End finishes recording cmd.
func (d *Device) End(cmd CommandBufferHandle) error {
	res, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	if r := vk.EndCommandBuffer(res.cmd); r != vk.Success {
		return fmt.Errorf("gpu: vkEndCommandBuffer failed: %d", r)
	}
	return nil
}

// BindPipeline binds a compute pipeline and its descriptor set into cmd.
func (d *Device) BindPipeline(cmd CommandBufferHandle, pipeline PipelineHandle) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	pres, err := d.pipelines.Get(handle.Handle(pipeline))
	if err != nil {
		return err
	}
	vk.CmdBindPipeline(cres.cmd, vk.PipelineBindPointCompute, pres.pipeline)
	if pres.descriptorSet != vk.NullDescriptorSet {
		vk.CmdBindDescriptorSets(cres.cmd, vk.PipelineBindPointCompute, pres.layout,
			0, 1, []vk.DescriptorSet{pres.descriptorSet}, 0, nil)
	}
	return nil
}

// PushConstants uploads data as the pipeline's push-constant block. data
// must not exceed the size the pipeline was created with.
func (d *Device) PushConstants(cmd CommandBufferHandle, pipeline PipelineHandle, data []byte) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	pres, err := d.pipelines.Get(handle.Handle(pipeline))
	if err != nil {
		return err
	}
	if uint32(len(data)) > pres.pushConstantSize {
		return &ErrHardcodedLimitReached{Limit: "push constant size", Value: len(data), Bound: int(pres.pushConstantSize)}
	}
	vk.CmdPushConstants(cres.cmd, pres.layout, vk.ShaderStageFlags(vk.ShaderStageComputeBit), 0, uint32(len(data)), data)
	return nil
}

// TransitionImage exposes the implicit layout-transition algorithm to
// callers that need an image in a specific layout before a dispatch or
// copy (e.g. the AOV output image must be General before the traversal
// kernel writes to it, and TransferSrcOptimal before it is read back).
func (d *Device) TransitionImage(cmd CommandBufferHandle, img ImageHandle, target vk.ImageLayout) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	return d.transitionImage(cres.cmd, img, target)
}

// Dispatch records a compute dispatch. Callers are responsible for having
// bound a pipeline and updated its bindings first.
func (d *Device) Dispatch(cmd CommandBufferHandle, groupsX, groupsY, groupsZ uint32) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	vk.CmdDispatch(cres.cmd, groupsX, groupsY, groupsZ)
	return nil
}

// PipelineBarrier records a generic compute-to-compute barrier between two
// dispatches recorded into the same command buffer.
func (d *Device) PipelineBarrier(cmd CommandBufferHandle) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	bufferBarrier(cres.cmd)
	return nil
}

// CopyBuffer records a device-side buffer-to-buffer copy.
func (d *Device) CopyBuffer(cmd CommandBufferHandle, src, dst BufferHandle, srcOffset, dstOffset, size uint64) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	srcRes, err := d.buffers.Get(handle.Handle(src))
	if err != nil {
		return err
	}
	dstRes, err := d.buffers.Get(handle.Handle(dst))
	if err != nil {
		return err
	}
	region := vk.BufferCopy{SrcOffset: vk.DeviceSize(srcOffset), DstOffset: vk.DeviceSize(dstOffset), Size: vk.DeviceSize(size)}
	vk.CmdCopyBuffer(cres.cmd, srcRes.handle, dstRes.handle, 1, []vk.BufferCopy{region})
	return nil
}

// CopyBufferToImage stages a buffer's contents into an image, transitioning
// the image to TransferDstOptimal first if it isn't already there.
func (d *Device) CopyBufferToImage(cmd CommandBufferHandle, src BufferHandle, dst ImageHandle) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	if err := d.transitionImage(cres.cmd, dst, vk.ImageLayoutTransferDstOptimal); err != nil {
		return err
	}
	srcRes, err := d.buffers.Get(handle.Handle(src))
	if err != nil {
		return err
	}
	dstRes, err := d.images.Get(handle.Handle(dst))
	if err != nil {
		return err
	}
	region := vk.BufferImageCopy{
		BufferOffset:      0,
		ImageSubresource:  vk.ImageSubresourceLayers{AspectMask: vk.ImageAspectFlags(vk.ImageAspectColorBit), LayerCount: 1},
		ImageExtent:       vk.Extent3D{Width: dstRes.width, Height: dstRes.height, Depth: dstRes.depth},
	}
	vk.CmdCopyBufferToImage(cres.cmd, srcRes.handle, dstRes.handle, dstRes.currentLayout, 1, []vk.BufferImageCopy{region})
	return nil
}

// CreateFence creates a fence, optionally pre-signaled.
func (d *Device) CreateFence(signaled bool) (FenceHandle, error) {
	var flags vk.FenceCreateFlagBits
	if signaled {
		flags = vk.FenceCreateSignaledBit
	}
	info := vk.FenceCreateInfo{SType: vk.StructureTypeFenceCreateInfo, Flags: vk.FenceCreateFlags(flags)}
	var fence vk.Fence
	if res := vk.CreateFence(d.logicalDevice, &info, nil, &fence); res != vk.Success {
		return 0, fmt.Errorf("gpu: vkCreateFence failed: %d", res)
	}
	h := d.fences.Create()
	fres, _ := d.fences.Get(h)
	*fres = fenceResource{fence: fence}
	return FenceHandle(h), nil
}

// Submit submits cmd to the device's compute queue, signaling fence on
// completion.
func (d *Device) Submit(cmd CommandBufferHandle, fence FenceHandle) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	var vkFence vk.Fence
	if fence != 0 {
		fres, err := d.fences.Get(handle.Handle(fence))
		if err != nil {
			return err
		}
		vkFence = fres.fence
	}
	submitInfo := vk.SubmitInfo{
		SType:              vk.StructureTypeSubmitInfo,
		CommandBufferCount: 1,
		PCommandBuffers:    []vk.CommandBuffer{cres.cmd},
	}
	if r := vk.QueueSubmit(d.queue, 1, []vk.SubmitInfo{submitInfo}, vkFence); r != vk.Success {
		return fmt.Errorf("gpu: vkQueueSubmit failed: %d", r)
	}
	return nil
}

// Wait blocks until fence is signaled or timeoutNanos elapses.
func (d *Device) Wait(fence FenceHandle, timeoutNanos uint64) error {
	res, err := d.fences.Get(handle.Handle(fence))
	if err != nil {
		return err
	}
	r := vk.WaitForFences(d.logicalDevice, 1, []vk.Fence{res.fence}, vk.True, timeoutNanos)
	if r != vk.Success && r != vk.Timeout {
		return fmt.Errorf("gpu: vkWaitForFences failed: %d", r)
	}
	if r == vk.Timeout {
		return fmt.Errorf("gpu: fence wait timed out after %dns", timeoutNanos)
	}
	return nil
}

// ResetFence clears fence back to the unsignaled state so it can be reused by a
// subsequent submission.
func (d *Device) ResetFence(fence FenceHandle) error {
	res, err := d.fences.Get(handle.Handle(fence))
	if err != nil {
		return err
	}
	if r := vk.ResetFences(d.logicalDevice, 1, []vk.Fence{res.fence}); r != vk.Success {
		return fmt.Errorf("gpu: vkResetFences failed: %d", r)
	}
	return nil
}
