package voiceprint

import (
	"errors"
	"math"
	"testing"
)

func TestCosine(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 1},
		{"scaled", []float32{1, 2, 3}, []float32{2, 4, 6}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, -1}, []float32{-1, 1}, -1},
		{"partial", []float32{1, 0}, []float32{1, 1}, 1 / math.Sqrt2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Cosine(tt.a, tt.b)
			if err != nil {
				t.Fatalf("Cosine: %v", err)
			}
			if math.Abs(got-tt.want) > 1e-6 {
				t.Errorf("Cosine = %v, want %v", got, tt.want)
			}
			rev, _ := Cosine(tt.b, tt.a)
			if rev != got {
				t.Errorf("not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestCosine_Errors(t *testing.T) {
	if _, err := Cosine([]float32{0, 0}, []float32{1, 0}); !errors.Is(err, ErrZeroVector) {
		t.Errorf("zero vector: err = %v", err)
	}
	if _, err := Cosine([]float32{1}, []float32{1, 0}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("mismatch: err = %v", err)
	}
}

func TestMean(t *testing.T) {
	a := []float32{1, 2, 3}
	b := []float32{3, 4, 5}
	c := []float32{-1, 0, 10}

	m1, err := Mean([][]float32{a, b, c})
	if err != nil {
		t.Fatal(err)
	}
	m2, _ := Mean([][]float32{c, a, b})
	want := []float32{1, 2, 6}
	for i := range want {
		if m1[i] != want[i] || m2[i] != want[i] {
			t.Errorf("dim %d: %v / %v, want %v", i, m1[i], m2[i], want[i])
		}
	}

	if _, err := Mean(nil); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty: err = %v", err)
	}
	if _, err := Mean([][]float32{{1, 2}, {1}}); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("ragged: err = %v", err)
	}
}

func TestReduce(t *testing.T) {
	single := []float32{1, 2}
	got, err := Reduce([][]float32{single})
	if err != nil || got[0] != 1 || got[1] != 2 {
		t.Fatalf("single = %v, %v", got, err)
	}
	got[0] = 9
	if single[0] != 1 {
		t.Error("Reduce aliased its input")
	}

	got, err = Reduce([][]float32{{0, 2}, {2, 4}})
	if err != nil || got[0] != 1 || got[1] != 3 {
		t.Fatalf("frames = %v, %v", got, err)
	}
}

func TestPadToDuration(t *testing.T) {
	got, err := PadToDuration([]float32{1, 2, 3}, 8)
	if err != nil {
		t.Fatal(err)
	}
	want := []float32{1, 2, 3, 1, 2, 3, 1, 2}
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}

	long := []float32{1, 2, 3}
	got, _ = PadToDuration(long, 2)
	if len(got) != 3 {
		t.Errorf("long input changed: %v", got)
	}

	if _, err := PadToDuration(nil, 4); !errors.Is(err, ErrEmpty) {
		t.Errorf("empty: err = %v", err)
	}
}

func TestFloat32LE(t *testing.T) {
	v := []float32{1, -0.5, float32(math.Pi)}
	b := EncodeFloat32LE(v)
	if len(b) != 12 {
		t.Fatalf("len = %d", len(b))
	}
	// 1.0f = 0x3f800000 little endian.
	if b[0] != 0x00 || b[1] != 0x00 || b[2] != 0x80 || b[3] != 0x3f {
		t.Errorf("bytes = % x", b[:4])
	}
	got, err := DecodeFloat32LE(b)
	if err != nil {
		t.Fatal(err)
	}
	for i := range v {
		if got[i] != v[i] {
			t.Errorf("got %v, want %v", got, v)
		}
	}
	if _, err := DecodeFloat32LE([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}

func TestValidate(t *testing.T) {
	if err := Validate([]float32{1, 2}, 2); err != nil {
		t.Errorf("valid: %v", err)
	}
	if err := Validate([]float32{1}, 2); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("short: %v", err)
	}
	if err := Validate([]float32{float32(math.NaN()), 1}, 2); err == nil {
		t.Error("NaN accepted")
	}
}
