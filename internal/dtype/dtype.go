// Package dtype defines the tensor element types ember understands and the
// numeric conversions between them.
package dtype

import (
	"fmt"
)

type DType uint8

const (
	Invalid DType = iota
	F64
	F32
	F16
	BF16
	I64
	I32
	I16
	I8
	U8
	Bool
)

// names follows the safetensors dtype string convention.
var names = map[DType]string{
	F64:  "F64",
	F32:  "F32",
	F16:  "F16",
	BF16: "BF16",
	I64:  "I64",
	I32:  "I32",
	I16:  "I16",
	I8:   "I8",
	U8:   "U8",
	Bool: "BOOL",
}

var byName = func() map[string]DType {
	m := make(map[string]DType, len(names))
	for d, n := range names {
		m[n] = d
	}
	return m
}()

func (d DType) String() string {
	if n, ok := names[d]; ok {
		return n
	}
	return fmt.Sprintf("dtype(%d)", uint8(d))
}

// Parse maps a safetensors dtype string onto a DType.
func Parse(s string) (DType, bool) {
	d, ok := byName[s]
	return d, ok
}

// Size returns the byte width of one element.
func (d DType) Size() int {
	switch d {
	case F64, I64:
		return 8
	case F32, I32:
		return 4
	case F16, BF16, I16:
		return 2
	case I8, U8, Bool:
		return 1
	default:
		return 0
	}
}

// NumElements computes the element count of shape, rejecting empty shapes,
// non-positive dims, and products that overflow int.
func NumElements(shape []int) (int, error) {
	if len(shape) == 0 {
		return 0, fmt.Errorf("empty shape")
	}
	n := 1
	maxInt := int(^uint(0) >> 1)
	for _, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("invalid dim %d", d)
		}
		if n > maxInt/d {
			return 0, fmt.Errorf("tensor too large")
		}
		n *= d
	}
	return n, nil
}

// ByteSize returns product(shape) * element size.
func ByteSize(d DType, shape []int) (int, error) {
	n, err := NumElements(shape)
	if err != nil {
		return 0, err
	}
	sz := d.Size()
	if sz == 0 {
		return 0, fmt.Errorf("unsized dtype %s", d)
	}
	maxInt := int(^uint(0) >> 1)
	if n > maxInt/sz {
		return 0, fmt.Errorf("tensor too large")
	}
	return n * sz, nil
}
