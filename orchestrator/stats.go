package orchestrator

import (
	"bytes"
	"fmt"
	"time"

	"github.com/olekukonko/tablewriter"
)

// FrameStats mirrors the teacher's renderer.FrameStats, trimmed from a
// multi-tracer device split (go-pathtrace schedules blocks across several
// OpenCL devices) to the single logical Vulkan device this orchestrator
// drives, plus the cache-rebuild counts spec.md §4.7/§4.8 introduce.
type FrameStats struct {
	RenderTime time.Duration

	ShaderCacheRebuilds   int
	GeometryCacheRebuilds int
	ShaderCacheHits       int

	DispatchTime time.Duration
	ReadbackTime time.Duration
}

// Report renders the stats as a table in the teacher's displayFrameStats
// style (cmd/render.go), returning the formatted string rather than
// logging it directly so callers decide the log level/destination.
func (s FrameStats) Report() string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)
	table.SetHeader([]string{"Stage", "Value"})
	table.Append([]string{"Shader cache rebuilds", fmt.Sprintf("%d", s.ShaderCacheRebuilds)})
	table.Append([]string{"Shader cache hits", fmt.Sprintf("%d", s.ShaderCacheHits)})
	table.Append([]string{"Geometry cache rebuilds", fmt.Sprintf("%d", s.GeometryCacheRebuilds)})
	table.Append([]string{"Dispatch time", s.DispatchTime.String()})
	table.Append([]string{"Readback time", s.ReadbackTime.String()})
	table.SetFooter([]string{"Total frame time", s.RenderTime.String()})
	table.Render()
	return buf.String()
}
