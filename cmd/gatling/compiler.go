package main

import "github.com/achilleasa/gatling/shadercache"

// stubCompiler is a placeholder MaterialCompiler: spec.md §6 treats the
// material/AOV/feature -> SPIR-V translation as an opaque external
// collaborator (the real system drives a MaterialX/MDL front end this
// module never implements), so this stand-in emits a fixed, minimal
// SPIR-V module declaring exactly the seven storage-buffer bindings the
// traversal kernel's fixed slot contract names (spec.md §6), ignoring the
// material set, AOV and feature flags it's handed. Compilation never
// fails; FallbackCompiler is wired around it purely so the retry-once
// decorator still gets exercised by a real shadercache.Cache.
type stubCompiler struct{}

func (c *stubCompiler) Compile(materials shadercache.MaterialSet, aov shadercache.AOVID, features shadercache.FeatureFlags) ([]uint32, *shadercache.CompileError) {
	return traversalKernelSPIRV(), nil
}

// traversalKernelSPIRV builds a minimal, syntactically valid SPIR-V module
// by hand: a magic-number/version/generator/bound/schema header followed
// by one OpDecorate(DescriptorSet)/OpDecorate(Binding)/OpVariable triple
// per binding slot. It carries no actual compute logic — gpu.CreateShader
// only reflects descriptor bindings out of it, it never executes the
// module's (absent) instructions on real hardware.
func traversalKernelSPIRV() []uint32 {
	const (
		opDecorate    = 71
		opVariable    = 59
		decorBinding  = 33
		decorDescSet  = 34
		storageBuffer = 12
	)
	encode := func(wordCount, opcode uint32) uint32 { return (wordCount << 16) | (opcode & 0xffff) }

	words := []uint32{0x07230203, 0x00010300, 0, 0, 0}

	nextID := uint32(1)
	for binding := uint32(0); binding < 7; binding++ {
		varID := nextID
		nextID++

		words = append(words,
			encode(4, opDecorate), varID, decorDescSet, 0,
			encode(4, opDecorate), varID, decorBinding, binding,
			encode(4, opVariable), 0, varID, storageBuffer,
		)
	}
	words[3] = nextID // bound
	return words
}
