// Package record materializes checkpoint tensors against a resolved schema
// tree and assembles them into the hierarchical module record the inference
// runtime consumes.
package record

import (
	"fmt"
	"unsafe"

	"github.com/samcharles93/ember/internal/dtype"
	"github.com/samcharles93/ember/internal/safetensors"
)

// Ownership tags where a tensor's bytes live.
type Ownership uint8

const (
	// Borrowed data is a view into a shard's mapping; it is valid only while
	// the checkpoint stays open.
	Borrowed Ownership = iota
	// Owned data is an independent buffer with no tie to the checkpoint.
	Owned
)

func (o Ownership) String() string {
	if o == Borrowed {
		return "borrowed"
	}
	return "owned"
}

// Tensor is a materialized weight: a concrete little-endian buffer plus its
// resolved shape and dtype.
type Tensor struct {
	Name  string // checkpoint tensor name this slot resolved to
	DType dtype.DType
	Shape []int

	data      []byte
	ownership Ownership
	shard     *safetensors.Shard
}

// Bytes returns the tensor's raw little-endian bytes. For borrowed tensors
// the slice aliases the shard mapping; callers must not mutate it.
func (t *Tensor) Bytes() []byte { return t.data }

// Ownership reports whether the data is a borrowed shard view or owned.
func (t *Tensor) Ownership() Ownership { return t.ownership }

// NumElements returns the element count of the tensor's shape.
func (t *Tensor) NumElements() int {
	n, err := dtype.NumElements(t.Shape)
	if err != nil {
		return 0
	}
	return n
}

// Detach copies borrowed data into an owned buffer so the tensor survives the
// checkpoint's Close. Owned tensors are left untouched.
func (t *Tensor) Detach() {
	if t.ownership == Owned {
		return
	}
	data := make([]byte, len(t.data))
	copy(data, t.data)
	t.data = data
	t.ownership = Owned
	t.shard = nil
}

// Float32s reinterprets the buffer as float32 values. The materializer
// guarantees alignment for the tensor's own dtype, so the reinterpretation is
// a view, not a copy.
func (t *Tensor) Float32s() ([]float32, error) {
	if t.DType != dtype.F32 {
		return nil, fmt.Errorf("tensor %s: dtype is %s, not F32", t.Name, t.DType)
	}
	n := len(t.data) / 4
	if n == 0 {
		return nil, nil
	}
	return unsafe.Slice((*float32)(unsafe.Pointer(&t.data[0])), n), nil
}
