package orchestrator

// ChangeVersions is the four-counter snapshot spec.md §4.8 reads from the
// scene registry each frame: scene-state, sprim-index, render-settings and
// visibility. Any counter moving since the last frame invalidates the
// progressive-accumulation framebuffer.
type ChangeVersions struct {
	SceneState     uint64
	SprimIndex     uint64
	RenderSettings uint64
	Visibility     uint64
}

// Changed reports whether any counter differs from prev.
func (v ChangeVersions) Changed(prev ChangeVersions) bool {
	return v.SceneState != prev.SceneState ||
		v.SprimIndex != prev.SprimIndex ||
		v.RenderSettings != prev.RenderSettings ||
		v.Visibility != prev.Visibility
}

// VisibilityChanged reports whether the visibility or the scene-state
// counter moved, either of which triggers a geometry-cache rebuild per spec.md §4.7
// ("A geometry-cache rebuild is triggered independently by any visibility
// change or scene-state version bump").
func (v ChangeVersions) VisibilityChanged(prev ChangeVersions) bool {
	return v.Visibility != prev.Visibility || v.SceneState != prev.SceneState
}
