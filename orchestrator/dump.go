package orchestrator

import "os"

// DumpOutput writes the mapped output buffer's raw float32 RGBA bytes to
// path, unconverted. It exists purely as a debugging escape hatch — this
// package never encodes an image format, per spec.md §1's non-goals.
func (o *Orchestrator) DumpOutput(path string) error {
	data, err := o.device.Map(o.output)
	if err != nil {
		return err
	}
	defer o.device.Unmap(o.output)

	return os.WriteFile(path, data, 0o644)
}
