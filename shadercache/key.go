package shadercache

import (
	"encoding/binary"
	"hash/fnv"
)

// AOVID selects which output channel a compiled kernel writes to
// (spec.md §6's AOV_ID compile-time constant).
type AOVID uint32

// MaterialSetDigest is an opaque content hash over the scene's current
// material list, supplied by the caller (the orchestrator derives it from
// the scene registry's material-set version; computing that digest is
// outside this package's contract, mirroring spec.md §6's "pure function
// of a hash of the inputs" framing of the MaterialCompiler collaborator).
type MaterialSetDigest uint64

// Key identifies one shader-cache entry: an AOV, a feature-flag bitmask and
// a material-set digest. It implements encoding.BinaryMarshaler so it can
// be hashed deterministically rather than relying on reflection-based
// struct hashing (original_source/src/gi computes its variant digest over
// raw byte buffers; this is the Go-idiomatic equivalent).
type Key struct {
	AOV      AOVID
	Features FeatureFlags
	Material MaterialSetDigest
}

// MarshalBinary renders the key as a fixed 16-byte little-endian buffer:
// AOV (4 bytes), feature flags (4 bytes), material digest (8 bytes).
func (k Key) MarshalBinary() ([]byte, error) {
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(k.AOV))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(k.Features))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(k.Material))
	return buf, nil
}

// digest returns the FNV-1a hash of the key's marshaled form, used as the
// cache's map key so lookups don't compare struct fields directly.
func (k Key) digest() uint64 {
	buf, _ := k.MarshalBinary()
	h := fnv.New64a()
	h.Write(buf)
	return h.Sum64()
}
