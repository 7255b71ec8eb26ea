package gpu

import "testing"

// buildImageModule assembles a synthetic SPIR-V module declaring a storage
// image, a sampled image and a plain sampler, each a UniformConstant
// variable decorated with a descriptor set/binding pair -- the shape
// reflectBindings must tell apart even though all three share one storage
// class.
func buildImageModule() []uint32 {
	const (
		storageImageType = 20
		sampledImageType = 21
		samplerType      = 22

		storageImagePtr = 30
		sampledImagePtr = 31
		samplerPtr      = 32

		storageImageVar = 40
		sampledImageVar = 41
		samplerVar      = 42
	)

	words := []uint32{0x07230203, 0x00010000, 0, 100, 0} // header

	// OpTypeImage %storageImageType 1 Dim2D NonDepth NonArrayed SingleSampled Sampled=2(without sampler) Unknown
	words = append(words, encodeWord(9, spirvOpTypeImage), storageImageType, 1, 1, 0, 0, 0, 2, 0)
	// OpTypeImage %sampledImageType ... Sampled=1(with sampler)
	words = append(words, encodeWord(9, spirvOpTypeImage), sampledImageType, 1, 1, 0, 0, 0, 1, 0)

	// OpTypePointer %storageImagePtr UniformConstant %storageImageType
	words = append(words, encodeWord(4, spirvOpTypePointer), storageImagePtr, spirvStorageClassUniformConstant, storageImageType)
	words = append(words, encodeWord(4, spirvOpTypePointer), sampledImagePtr, spirvStorageClassUniformConstant, sampledImageType)
	words = append(words, encodeWord(4, spirvOpTypePointer), samplerPtr, spirvStorageClassUniformConstant, samplerType)

	// OpVariable %ptrType %resultId StorageClass
	words = append(words, encodeWord(4, spirvOpVariable), storageImagePtr, storageImageVar, spirvStorageClassUniformConstant)
	words = append(words, encodeWord(4, spirvOpVariable), sampledImagePtr, sampledImageVar, spirvStorageClassUniformConstant)
	words = append(words, encodeWord(4, spirvOpVariable), samplerPtr, samplerVar, spirvStorageClassUniformConstant)

	// OpDecorate %var DescriptorSet 0 / Binding n
	decorate := func(target, decoration, literal uint32) {
		words = append(words, encodeWord(4, spirvOpDecorate), target, decoration, literal)
	}
	decorate(storageImageVar, spirvDecorDescSet, 0)
	decorate(storageImageVar, spirvDecorBinding, 0)
	decorate(sampledImageVar, spirvDecorDescSet, 0)
	decorate(sampledImageVar, spirvDecorBinding, 1)
	decorate(samplerVar, spirvDecorDescSet, 0)
	decorate(samplerVar, spirvDecorBinding, 2)

	return words
}

func TestReflectBindingsDistinguishesImageKinds(t *testing.T) {
	bindings, err := reflectBindings(buildImageModule())
	if err != nil {
		t.Fatal(err)
	}

	want := map[uint32]BindingKind{
		0: BindingStorageImage,
		1: BindingSampledImage,
		2: BindingSampler,
	}
	if len(bindings) != len(want) {
		t.Fatalf("expected %d bindings, got %d: %+v", len(want), len(bindings), bindings)
	}
	for _, b := range bindings {
		wantKind, ok := want[b.Binding]
		if !ok {
			t.Fatalf("unexpected binding %d", b.Binding)
		}
		if b.Kind != wantKind {
			t.Errorf("binding %d: expected kind %v, got %v", b.Binding, wantKind, b.Kind)
		}
	}
}

func TestReflectBindingsRejectsBadMagic(t *testing.T) {
	if _, err := reflectBindings([]uint32{1, 2, 3}); err == nil {
		t.Fatal("expected error for malformed module")
	}
}
