package safetensors

import (
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"

	"github.com/samcharles93/perceptual/internal/tensor"
)

// writeRaw writes a safetensors file from a header value and raw data.
func writeRaw(t *testing.T, path string, header any, data []byte) {
	t.Helper()
	headerBytes, err := json.Marshal(header)
	if err != nil {
		t.Fatalf("marshal header: %v", err)
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	out := append(lenBuf[:], headerBytes...)
	out = append(out, data...)
	if err := os.WriteFile(path, out, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
}

func TestWriteThenRead(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "w.safetensors")

	a, _ := tensor.FromData(tensor.Shape{2, 3}, []float32{1, 2, 3, 4, 5, 6})
	b, _ := tensor.FromData(tensor.Shape{1}, []float32{-0.5})
	err := Write(path, map[string]tensor.Tensor{"frontend/kernel": a, "bias": b}, map[string]string{"format": "pim"})
	if err != nil {
		t.Fatalf("Write: %v", err)
	}

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := f.Names(); len(got) != 2 || got[0] != "bias" || got[1] != "frontend/kernel" {
		t.Fatalf("unexpected names: %v", got)
	}
	if f.Metadata["format"] != "pim" {
		t.Fatalf("metadata not preserved: %v", f.Metadata)
	}

	got, err := f.ReadTensorF32("frontend/kernel")
	if err != nil {
		t.Fatalf("ReadTensorF32: %v", err)
	}
	if !got.Shape().Equal(tensor.Shape{2, 3}) {
		t.Fatalf("unexpected shape %s", got.Shape())
	}
	if got.At(1, 2) != 6 {
		t.Fatalf("unexpected value %v", got.At(1, 2))
	}

	bias, err := f.ReadTensorF32("bias")
	if err != nil {
		t.Fatalf("ReadTensorF32 bias: %v", err)
	}
	if bias.Data[0] != -0.5 {
		t.Fatalf("unexpected bias %v", bias.Data)
	}
}

func TestWriteRejectsReservedName(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "w.safetensors")
	err := Write(path, map[string]tensor.Tensor{"__metadata__": tensor.MustZeros(1)}, nil)
	if err == nil {
		t.Fatal("expected error for reserved name")
	}
}

func TestOpenErrors(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	if _, err := Open(filepath.Join(dir, "missing.safetensors")); err == nil {
		t.Fatal("expected error for missing file")
	}

	short := filepath.Join(dir, "short.safetensors")
	if err := os.WriteFile(short, []byte{0, 0, 0, 0}, 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(short); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for truncated file, got %v", err)
	}

	badJSON := filepath.Join(dir, "bad.safetensors")
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], 12)
	if err := os.WriteFile(badJSON, append(lenBuf[:], []byte("not valid js")...), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(badJSON); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for bad JSON, got %v", err)
	}

	huge := filepath.Join(dir, "huge.safetensors")
	binary.LittleEndian.PutUint64(lenBuf[:], 1<<40)
	if err := os.WriteFile(huge, lenBuf[:], 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Open(huge); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for oversized header, got %v", err)
	}

	offsets := filepath.Join(dir, "offsets.safetensors")
	writeRaw(t, offsets, map[string]any{
		"w": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": []int64{0}},
	}, nil)
	if _, err := Open(offsets); !errors.Is(err, ErrFormat) {
		t.Fatalf("expected ErrFormat for bad offsets, got %v", err)
	}
}

func TestOpenRejectsOffsetsOutsideData(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		offsets []int64
	}{
		{"past end of file", []int64{0, 9000000000000000000}},
		{"one byte past end", []int64{0, 9}},
		{"inverted", []int64{8, 4}},
		{"negative start", []int64{-4, 4}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "w.safetensors")
			writeRaw(t, path, map[string]any{
				"w": map[string]any{"dtype": "F32", "shape": []int{1}, "data_offsets": tt.offsets},
			}, make([]byte, 8))
			if _, err := Open(path); !errors.Is(err, ErrFormat) {
				t.Fatalf("expected ErrFormat, got %v", err)
			}
		})
	}

	// The last byte of the data section is still addressable.
	path := filepath.Join(t.TempDir(), "edge.safetensors")
	writeRaw(t, path, map[string]any{
		"w": map[string]any{"dtype": "F32", "shape": []int{2}, "data_offsets": []int64{0, 8}},
	}, make([]byte, 8))
	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := f.ReadTensorF32("w"); err != nil {
		t.Fatalf("read edge tensor: %v", err)
	}
}

func TestReadTensorHalfPrecision(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "half.safetensors")

	data := make([]byte, 6)
	binary.LittleEndian.PutUint16(data[0:], 0x3F80) // bf16 1.0
	binary.LittleEndian.PutUint16(data[2:], 0x4000) // bf16 2.0
	binary.LittleEndian.PutUint16(data[4:], 0x3C00) // f16 1.0
	writeRaw(t, path, map[string]any{
		"b": map[string]any{"dtype": "BF16", "shape": []int{2}, "data_offsets": []int64{0, 4}},
		"h": map[string]any{"dtype": "F16", "shape": []int{1}, "data_offsets": []int64{4, 6}},
	}, data)

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	b, err := f.ReadTensorF32("b")
	if err != nil {
		t.Fatalf("read bf16: %v", err)
	}
	if b.Data[0] != 1 || b.Data[1] != 2 {
		t.Fatalf("unexpected bf16 values %v", b.Data)
	}
	h, err := f.ReadTensorF32("h")
	if err != nil {
		t.Fatalf("read f16: %v", err)
	}
	if h.Data[0] != 1 {
		t.Fatalf("unexpected f16 value %v", h.Data)
	}
}

func TestReadTensorErrors(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "errs.safetensors")
	writeRaw(t, path, map[string]any{
		"i8":       map[string]any{"dtype": "I8", "shape": []int{4}, "data_offsets": []int64{0, 4}},
		"short":    map[string]any{"dtype": "F32", "shape": []int{2}, "data_offsets": []int64{0, 4}},
	}, make([]byte, 8))

	f, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, name := range []string{"i8", "short", "missing"} {
		if _, err := f.ReadTensorF32(name); err == nil {
			t.Errorf("expected error reading %q", name)
		}
	}
}

func TestFp16ToFloat32(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   uint16
		want float32
	}{
		{0x0000, 0},
		{0x3C00, 1},
		{0xC000, -2},
		{0x3800, 0.5},
		{0x0001, 5.9604645e-08},
	}
	for _, tc := range tests {
		if got := fp16ToFloat32(tc.in); got != tc.want {
			t.Errorf("fp16ToFloat32(%#04x) = %v, want %v", tc.in, got, tc.want)
		}
	}
}
