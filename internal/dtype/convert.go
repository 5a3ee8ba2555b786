package dtype

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/d4l3k/go-bfloat16"
	"github.com/x448/float16"
)

// CanConvert reports whether a defined conversion exists from src to dst.
// Identity is always defined; beyond that ember only converts between the
// floating point types it stores weights in.
func CanConvert(src, dst DType) bool {
	if src == dst {
		return true
	}
	switch src {
	case F32, F16, BF16:
	default:
		return false
	}
	switch dst {
	case F32, F16, BF16:
	default:
		return false
	}
	return true
}

// Convert reinterprets raw (little-endian src elements) as dst elements and
// returns the converted little-endian bytes. Infinities and NaNs pass through
// the intermediate float32 unchanged; widening conversions are exact.
func Convert(raw []byte, src, dst DType) ([]byte, error) {
	if !CanConvert(src, dst) {
		return nil, fmt.Errorf("no conversion from %s to %s", src, dst)
	}
	if src == dst {
		out := make([]byte, len(raw))
		copy(out, raw)
		return out, nil
	}
	f32s, err := decodeF32(raw, src)
	if err != nil {
		return nil, err
	}
	return encodeF32(f32s, dst)
}

// DecodeF32 converts raw src elements to a float32 slice.
func DecodeF32(raw []byte, src DType) ([]float32, error) {
	return decodeF32(raw, src)
}

func decodeF32(raw []byte, src DType) ([]float32, error) {
	sz := src.Size()
	if sz == 0 || len(raw)%sz != 0 {
		return nil, fmt.Errorf("raw length %d not a multiple of %s element size", len(raw), src)
	}
	n := len(raw) / sz
	out := make([]float32, n)
	switch src {
	case F32:
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[i*4:]))
		}
	case F16:
		for i := range out {
			out[i] = float16.Frombits(binary.LittleEndian.Uint16(raw[i*2:])).Float32()
		}
	case BF16:
		for i := range out {
			out[i] = bfloat16.ToFloat32(bfloat16.BF16(binary.LittleEndian.Uint16(raw[i*2:])))
		}
	default:
		return nil, fmt.Errorf("cannot decode %s as float32", src)
	}
	return out, nil
}

func encodeF32(vals []float32, dst DType) ([]byte, error) {
	sz := dst.Size()
	out := make([]byte, len(vals)*sz)
	switch dst {
	case F32:
		for i, v := range vals {
			binary.LittleEndian.PutUint32(out[i*4:], math.Float32bits(v))
		}
	case F16:
		for i, v := range vals {
			binary.LittleEndian.PutUint16(out[i*2:], float16.Fromfloat32(v).Bits())
		}
	case BF16:
		for i, v := range vals {
			binary.LittleEndian.PutUint16(out[i*2:], uint16(bfloat16.FromFloat32(v)))
		}
	default:
		return nil, fmt.Errorf("cannot encode float32 as %s", dst)
	}
	return out, nil
}
