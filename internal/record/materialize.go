package record

import (
	"fmt"
	"unsafe"

	"github.com/samcharles93/ember/internal/dtype"
	"github.com/samcharles93/ember/internal/safetensors"
)

// Materialize produces a concrete tensor for a manifest entry at the target
// dtype. Same dtype on a correctly aligned mapping yields a zero-copy
// borrowed view; a misaligned view falls back to an owned copy instead of
// failing; a dtype change yields an owned converted buffer. The second return
// reports whether a conversion happened.
func Materialize(e safetensors.Entry, target dtype.DType) (*Tensor, bool, error) {
	raw, err := e.Shard.Bytes(e.Begin, e.End)
	if err != nil {
		return nil, false, fmt.Errorf("tensor %s: %w", e.Name, err)
	}

	shape := make([]int, len(e.Shape))
	copy(shape, e.Shape)

	if e.DType == target {
		if aligned(raw, target) {
			return &Tensor{
				Name:      e.Name,
				DType:     target,
				Shape:     shape,
				data:      raw,
				ownership: Borrowed,
				shard:     e.Shard,
			}, false, nil
		}
		data := make([]byte, len(raw))
		copy(data, raw)
		return &Tensor{
			Name:      e.Name,
			DType:     target,
			Shape:     shape,
			data:      data,
			ownership: Owned,
		}, false, nil
	}

	if !dtype.CanConvert(e.DType, target) {
		return nil, false, &ConversionError{Name: e.Name, From: e.DType, To: target}
	}
	data, err := dtype.Convert(raw, e.DType, target)
	if err != nil {
		return nil, false, fmt.Errorf("tensor %s: %w", e.Name, err)
	}
	return &Tensor{
		Name:      e.Name,
		DType:     target,
		Shape:     shape,
		data:      data,
		ownership: Owned,
	}, true, nil
}

// aligned reports whether the slice start satisfies the dtype's natural
// alignment, which the typed view accessors rely on.
func aligned(b []byte, d dtype.DType) bool {
	sz := d.Size()
	if sz <= 1 || len(b) == 0 {
		return true
	}
	return uintptr(unsafe.Pointer(&b[0]))%uintptr(sz) == 0
}
