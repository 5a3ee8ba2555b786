package dtype

import (
	"encoding/binary"
	"math"
	"testing"

	"github.com/x448/float16"
)

func TestParse(t *testing.T) {
	t.Parallel()
	cases := map[string]DType{
		"F32":  F32,
		"F16":  F16,
		"BF16": BF16,
		"F64":  F64,
		"I64":  I64,
		"I32":  I32,
		"I16":  I16,
		"I8":   I8,
		"U8":   U8,
		"BOOL": Bool,
	}
	for s, want := range cases {
		got, ok := Parse(s)
		if !ok || got != want {
			t.Errorf("Parse(%q) = %v, %v; want %v", s, got, ok, want)
		}
	}
	if _, ok := Parse("Q4_K"); ok {
		t.Error("expected Parse to reject unknown dtype string")
	}
	if _, ok := Parse("f32"); ok {
		t.Error("dtype strings are case sensitive")
	}
}

func TestSize(t *testing.T) {
	t.Parallel()
	if F32.Size() != 4 || F16.Size() != 2 || BF16.Size() != 2 || I64.Size() != 8 || Bool.Size() != 1 {
		t.Error("unexpected element sizes")
	}
	if Invalid.Size() != 0 {
		t.Error("invalid dtype must have size 0")
	}
}

func TestNumElements(t *testing.T) {
	t.Parallel()
	n, err := NumElements([]int{2, 3, 4})
	if err != nil || n != 24 {
		t.Fatalf("NumElements = %d, %v; want 24", n, err)
	}
	if _, err := NumElements(nil); err == nil {
		t.Error("expected error for empty shape")
	}
	if _, err := NumElements([]int{2, 0}); err == nil {
		t.Error("expected error for zero dim")
	}
	if _, err := NumElements([]int{1 << 40, 1 << 40}); err == nil {
		t.Error("expected overflow error")
	}
}

func TestByteSize(t *testing.T) {
	t.Parallel()
	sz, err := ByteSize(F32, []int{2, 3})
	if err != nil || sz != 24 {
		t.Fatalf("ByteSize = %d, %v; want 24", sz, err)
	}
	if _, err := ByteSize(Invalid, []int{2}); err == nil {
		t.Error("expected error for unsized dtype")
	}
}

func TestConvertF16WideningExact(t *testing.T) {
	t.Parallel()
	// Widening F16 -> F32 then narrowing back must reproduce the original
	// bits for every finite half-precision value.
	for bits := 0; bits <= 0xFFFF; bits++ {
		h := float16.Frombits(uint16(bits))
		f := h.Float32()
		if math.IsInf(float64(f), 0) || f != f {
			continue
		}
		back := float16.Fromfloat32(f).Bits()
		if back != uint16(bits) {
			t.Fatalf("bits %#04x: round trip produced %#04x", bits, back)
		}
	}
}

func TestConvertF16ToF32(t *testing.T) {
	t.Parallel()
	vals := []float32{0, 1, -2.5, 65504, float32(math.Inf(1))}
	raw := make([]byte, len(vals)*2)
	for i, v := range vals {
		binary.LittleEndian.PutUint16(raw[i*2:], float16.Fromfloat32(v).Bits())
	}
	out, err := Convert(raw, F16, F32)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if len(out) != len(vals)*4 {
		t.Fatalf("expected %d bytes, got %d", len(vals)*4, len(out))
	}
	for i, want := range vals {
		got := math.Float32frombits(binary.LittleEndian.Uint32(out[i*4:]))
		if got != want {
			t.Errorf("element %d: got %v, want %v", i, got, want)
		}
	}
}

func TestConvertNaNPropagates(t *testing.T) {
	t.Parallel()
	raw := make([]byte, 2)
	binary.LittleEndian.PutUint16(raw, float16.Fromfloat32(float32(math.NaN())).Bits())
	out, err := Convert(raw, F16, F32)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got := math.Float32frombits(binary.LittleEndian.Uint32(out))
	if got == got {
		t.Error("expected NaN to survive conversion")
	}
}

func TestConvertBF16(t *testing.T) {
	t.Parallel()
	// BF16 is the top 16 bits of an f32, so widening is exact.
	want := float32(3.140625)
	raw := make([]byte, 2)
	binary.LittleEndian.PutUint16(raw, uint16(math.Float32bits(want)>>16))
	out, err := Convert(raw, BF16, F32)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	got := math.Float32frombits(binary.LittleEndian.Uint32(out))
	if got != want {
		t.Errorf("got %v, want %v", got, want)
	}
}

func TestConvertIdentityCopies(t *testing.T) {
	t.Parallel()
	raw := []byte{1, 2, 3, 4}
	out, err := Convert(raw, F32, F32)
	if err != nil {
		t.Fatalf("Convert: %v", err)
	}
	if &out[0] == &raw[0] {
		t.Error("identity conversion must not alias the input")
	}
}

func TestConvertUnsupported(t *testing.T) {
	t.Parallel()
	if _, err := Convert(make([]byte, 8), I64, F32); err == nil {
		t.Error("expected error for integer to float conversion")
	}
	if CanConvert(Bool, F32) {
		t.Error("bool to f32 must not be convertible")
	}
	if !CanConvert(I64, I64) {
		t.Error("identity must always be convertible")
	}
}
