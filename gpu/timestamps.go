package gpu

import (
	"fmt"

	vk "github.com/vulkan-go/vulkan"

	"github.com/achilleasa/gatling/handle"
)

// TimestampQueryPool wraps a small fixed-size Vulkan query pool used to
// time the stages of a render pass (frame stats reporting, spec.md §4.2).
// It's a thin allocation, not a handle-store resource: the orchestrator
// owns exactly one per in-flight command buffer and never shares it.
type TimestampQueryPool struct {
	pool       vk.QueryPool
	count      uint32
	timestampPeriod float32
}

// CreateTimestampQueryPool allocates a pool with slots timestamp slots.
func (d *Device) CreateTimestampQueryPool(slots uint32) (*TimestampQueryPool, error) {
	info := vk.QueryPoolCreateInfo{
		SType:      vk.StructureTypeQueryPoolCreateInfo,
		QueryType:  vk.QueryTypeTimestamp,
		QueryCount: slots,
	}
	var pool vk.QueryPool
	if res := vk.CreateQueryPool(d.logicalDevice, &info, nil, &pool); res != vk.Success {
		return nil, fmt.Errorf("gpu: vkCreateQueryPool failed: %d", res)
	}

	var props vk.PhysicalDeviceProperties
	vk.GetPhysicalDeviceProperties(d.physicalDevice, &props)
	props.Deref()
	props.Limits.Deref()

	return &TimestampQueryPool{pool: pool, count: slots, timestampPeriod: props.Limits.TimestampPeriod}, nil
}

// ResetTimestamps must be recorded before the first WriteTimestamp of a frame; query
// pools are undefined until reset once per use per the Vulkan spec.
func (d *Device) ResetTimestamps(cmd CommandBufferHandle, p *TimestampQueryPool) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	vk.CmdResetQueryPool(cres.cmd, p.pool, 0, p.count)
	return nil
}

// WriteTimestamp records a GPU timestamp into slot after all commands
// preceding it in the pipeline stage given by stage have completed.
func (d *Device) WriteTimestamp(cmd CommandBufferHandle, p *TimestampQueryPool, slot uint32, stage vk.PipelineStageFlagBits) error {
	cres, err := d.commandBuffers.Get(handle.Handle(cmd))
	if err != nil {
		return err
	}
	vk.CmdWriteTimestamp(cres.cmd, stage, p.pool, slot)
	return nil
}

// CopyTimestamps reads back the recorded timestamps (host-side, blocking
// until the results are available) and converts them to nanoseconds using
// the device's timestamp period.
func (d *Device) CopyTimestamps(p *TimestampQueryPool) ([]uint64, error) {
	raw := make([]uint64, p.count)
	dataSize := uint(len(raw)) * 8
	res := vk.GetQueryPoolResults(d.logicalDevice, p.pool, 0, p.count, dataSize, raw,
		8, vk.QueryResultFlags(vk.QueryResult64Bit|vk.QueryResultWaitBit))
	if res != vk.Success {
		return nil, fmt.Errorf("gpu: vkGetQueryPoolResults failed: %d", res)
	}
	out := make([]uint64, len(raw))
	for i, v := range raw {
		out[i] = uint64(float64(v) * float64(p.timestampPeriod))
	}
	return out, nil
}

// DestroyTimestampQueryPool releases the query pool.
func (d *Device) DestroyTimestampQueryPool(p *TimestampQueryPool) {
	vk.DestroyQueryPool(d.logicalDevice, p.pool, nil)
}
