package handle

import (
	"errors"
	"testing"
)

func TestStaleHandleAfterFree(t *testing.T) {
	s := NewStore[int]()
	h := s.Create()

	obj, err := s.Get(h)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	*obj = 42

	if err := s.Free(h); err != nil {
		t.Fatalf("unexpected error freeing handle: %s", err)
	}

	if _, err := s.Get(h); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale, got %v", err)
	}
}

func TestABASafety(t *testing.T) {
	s := NewStore[int]()
	h1 := s.Create()
	if err := s.Free(h1); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	h2 := s.Create()
	if h2.Slot() != h1.Slot() {
		t.Fatalf("expected slot reuse, got slots %d and %d", h1.Slot(), h2.Slot())
	}
	if h2.Generation() == h1.Generation() {
		t.Fatalf("expected different generation after reuse")
	}

	if _, err := s.Get(h1); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale for h1, got %v", err)
	}

	obj, err := s.Get(h2)
	if err != nil {
		t.Fatalf("unexpected error for h2: %s", err)
	}
	*obj = 7
	if *obj != 7 {
		t.Fatalf("expected 7, got %d", *obj)
	}
}

func TestDoubleFreeIsNonFatal(t *testing.T) {
	s := NewStore[int]()
	h := s.Create()
	if err := s.Free(h); err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if err := s.Free(h); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale on double free, got %v", err)
	}
}

func TestStoreGrowsOnDemand(t *testing.T) {
	s := NewStore[int]()
	handles := make([]Handle, 0, 1000)
	for i := 0; i < 1000; i++ {
		h := s.Create()
		obj, _ := s.Get(h)
		*obj = i
		handles = append(handles, h)
	}
	for i, h := range handles {
		obj, err := s.Get(h)
		if err != nil {
			t.Fatalf("unexpected error at %d: %s", i, err)
		}
		if *obj != i {
			t.Fatalf("expected %d, got %d", i, *obj)
		}
	}
	if s.Len() != 1000 {
		t.Fatalf("expected 1000 live slots, got %d", s.Len())
	}
}

func TestGetCrossKindStaleHandle(t *testing.T) {
	s := NewStore[int]()
	if _, err := s.Get(Handle(0xFFFFFFFFFF)); !errors.Is(err, ErrStale) {
		t.Fatalf("expected ErrStale for out-of-range handle, got %v", err)
	}
}
