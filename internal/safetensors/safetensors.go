// Package safetensors reads and writes the safetensors weight format: an
// 8-byte little-endian header length, a JSON header mapping tensor names to
// dtype, shape and byte offsets, then the raw tensor bytes.
package safetensors

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"github.com/goccy/go-json"

	"github.com/samcharles93/perceptual/internal/tensor"
)

// maxHeaderLen bounds the JSON header so a corrupt length cannot force a
// huge allocation.
const maxHeaderLen = 100 << 20

// ErrFormat is returned for structurally invalid files.
var ErrFormat = errors.New("safetensors: invalid file")

type TensorInfo struct {
	DType string
	Shape tensor.Shape
	Start int64
	End   int64
}

type File struct {
	Path      string
	DataStart int64
	Tensors   map[string]TensorInfo
	Metadata  map[string]string
}

type tensorHeader struct {
	DType       string  `json:"dtype"`
	Shape       []int   `json:"shape"`
	DataOffsets []int64 `json:"data_offsets"`
}

// Open parses the header of the file at path. Tensor data is read lazily.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}

	headerLen, err := readU64(f)
	if err != nil {
		return nil, fmt.Errorf("%w: read header length: %v", ErrFormat, err)
	}
	if headerLen > maxHeaderLen || int64(headerLen) > st.Size()-8 {
		return nil, fmt.Errorf("%w: header length %d too large", ErrFormat, headerLen)
	}
	dataStart := int64(8 + headerLen)
	dataLen := st.Size() - dataStart
	headerBytes := make([]byte, headerLen)
	if _, err := io.ReadFull(f, headerBytes); err != nil {
		return nil, fmt.Errorf("%w: read header: %v", ErrFormat, err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(headerBytes, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse header: %v", ErrFormat, err)
	}

	var meta map[string]string
	if m, ok := raw["__metadata__"]; ok {
		if err := json.Unmarshal(m, &meta); err != nil {
			return nil, fmt.Errorf("%w: parse metadata: %v", ErrFormat, err)
		}
		delete(raw, "__metadata__")
	}

	tensors := make(map[string]TensorInfo, len(raw))
	for name, msg := range raw {
		var th tensorHeader
		if err := json.Unmarshal(msg, &th); err != nil {
			return nil, fmt.Errorf("%w: parse tensor %s: %v", ErrFormat, name, err)
		}
		if len(th.DataOffsets) != 2 {
			return nil, fmt.Errorf("%w: tensor %s: invalid data_offsets", ErrFormat, name)
		}
		start, end := th.DataOffsets[0], th.DataOffsets[1]
		if start < 0 || end < start || end > dataLen {
			return nil, fmt.Errorf("%w: tensor %s: data_offsets [%d, %d] outside %d data bytes",
				ErrFormat, name, start, end, dataLen)
		}
		tensors[name] = TensorInfo{
			DType: th.DType,
			Shape: tensor.Shape(th.Shape),
			Start: start,
			End:   end,
		}
	}
	return &File{
		Path:      path,
		DataStart: dataStart,
		Tensors:   tensors,
		Metadata:  meta,
	}, nil
}

// Names returns the tensor names in sorted order.
func (f *File) Names() []string {
	names := make([]string, 0, len(f.Tensors))
	for name := range f.Tensors {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func (f *File) ReadTensor(name string) ([]byte, TensorInfo, error) {
	t, ok := f.Tensors[name]
	if !ok {
		return nil, TensorInfo{}, fmt.Errorf("tensor not found: %s", name)
	}
	if t.Start < 0 || t.End < t.Start {
		return nil, TensorInfo{}, fmt.Errorf("%w: tensor %s: invalid offsets", ErrFormat, name)
	}
	buf := make([]byte, t.End-t.Start)

	file, err := os.Open(f.Path)
	if err != nil {
		return nil, TensorInfo{}, err
	}
	defer func() { _ = file.Close() }()

	if _, err := file.ReadAt(buf, f.DataStart+t.Start); err != nil {
		return nil, TensorInfo{}, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return buf, t, nil
}

// ReadTensorF32 decodes an F32, F16 or BF16 tensor into a float32 tensor.
func (f *File) ReadTensorF32(name string) (tensor.Tensor, error) {
	raw, info, err := f.ReadTensor(name)
	if err != nil {
		return tensor.Tensor{}, err
	}
	if err := info.Shape.Validate(); err != nil {
		return tensor.Tensor{}, fmt.Errorf("tensor %s: %w", name, err)
	}
	n := info.Shape.NumElements()

	var width int
	var decode func([]byte) float32
	switch info.DType {
	case "F32":
		width = 4
		decode = func(b []byte) float32 { return math.Float32frombits(binary.LittleEndian.Uint32(b)) }
	case "BF16":
		width = 2
		decode = func(b []byte) float32 { return bf16ToF32(binary.LittleEndian.Uint16(b)) }
	case "F16":
		width = 2
		decode = func(b []byte) float32 { return fp16ToFloat32(binary.LittleEndian.Uint16(b)) }
	default:
		return tensor.Tensor{}, fmt.Errorf("unsupported dtype %s", info.DType)
	}
	if len(raw) != n*width {
		return tensor.Tensor{}, fmt.Errorf("%w: tensor %s: %s data is %d bytes, want %d", ErrFormat, name, info.DType, len(raw), n*width)
	}
	out := make([]float32, n)
	for i := range out {
		out[i] = decode(raw[i*width:])
	}
	return tensor.FromData(info.Shape, out)
}

// Write stores tensors as F32 at path, replacing any existing file.
func Write(path string, tensors map[string]tensor.Tensor, metadata map[string]string) error {
	names := make([]string, 0, len(tensors))
	for name := range tensors {
		if name == "__metadata__" {
			return fmt.Errorf("reserved tensor name %q", name)
		}
		names = append(names, name)
	}
	slices.Sort(names)

	header := make(map[string]any, len(tensors)+1)
	if len(metadata) > 0 {
		header["__metadata__"] = metadata
	}
	var offset int64
	for _, name := range names {
		t := tensors[name]
		if err := t.Check(); err != nil {
			return fmt.Errorf("tensor %s: %w", name, err)
		}
		size := int64(4 * t.Len())
		shape := t.Shape()
		if shape == nil {
			shape = tensor.Shape{}
		}
		header[name] = tensorHeader{
			DType:       "F32",
			Shape:       shape,
			DataOffsets: []int64{offset, offset + size},
		}
		offset += size
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(headerBytes)))
	buf := make([]byte, 0, 8+len(headerBytes)+int(offset))
	buf = append(buf, lenBuf[:]...)
	buf = append(buf, headerBytes...)
	for _, name := range names {
		for _, v := range tensors[name].Data {
			buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(v))
		}
	}
	if _, err := f.Write(buf); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func readU64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(buf[:]), nil
}

func bf16ToF32(u uint16) float32 {
	return math.Float32frombits(uint32(u) << 16)
}

func fp16ToFloat32(h uint16) float32 {
	sign := uint32(h>>15) & 0x1
	exp := uint32(h>>10) & 0x1F
	frac := uint32(h & 0x3FF)
	var f uint32
	switch exp {
	case 0:
		if frac == 0 {
			f = sign << 31
		} else {
			e := uint32(127 - 15 + 1)
			for (frac & 0x400) == 0 {
				frac <<= 1
				e--
			}
			frac &= 0x3FF
			f = (sign << 31) | (e << 23) | (frac << 13)
		}
	case 0x1F:
		f = (sign << 31) | 0x7F800000 | (frac << 13)
	default:
		e := exp + (127 - 15)
		f = (sign << 31) | (e << 23) | (frac << 13)
	}
	return math.Float32frombits(f)
}
