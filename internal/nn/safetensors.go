package nn

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"os"
	"sort"
)

// Safetensors layout: little-endian uint64 header length, a JSON header mapping
// tensor names to dtype/shape/byte range, then the raw tensor bytes.

const maxHeaderSize = 100 << 20

type tensorInfo struct {
	DType       string   `json:"dtype"`
	Shape       []int    `json:"shape"`
	DataOffsets [2]int64 `json:"data_offsets"`
}

// LoadSafetensors reads a checkpoint file into float32 parameters.
func LoadSafetensors(path string) (Params, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read checkpoint: %w", err)
	}
	return DecodeSafetensors(raw)
}

// DecodeSafetensors parses an in-memory checkpoint. Floating point tensors are
// converted to float32; integer tensors (batch counters) are skipped.
func DecodeSafetensors(raw []byte) (Params, error) {
	if len(raw) < 8 {
		return nil, fmt.Errorf("safetensors: file too short")
	}
	headerLen := binary.LittleEndian.Uint64(raw[:8])
	if headerLen > maxHeaderSize || uint64(len(raw)-8) < headerLen {
		return nil, fmt.Errorf("safetensors: invalid header length %d", headerLen)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(raw[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("safetensors: parse header: %w", err)
	}

	body := raw[8+headerLen:]
	params := make(Params, len(header))
	for name, msg := range header {
		if name == "__metadata__" {
			continue
		}
		var info tensorInfo
		if err := json.Unmarshal(msg, &info); err != nil {
			return nil, fmt.Errorf("safetensors: %s: %w", name, err)
		}
		begin, end := info.DataOffsets[0], info.DataOffsets[1]
		if begin < 0 || end < begin || end > int64(len(body)) {
			return nil, fmt.Errorf("safetensors: %s: data range [%d,%d) outside body of %d bytes", name, begin, end, len(body))
		}

		n, err := elementCount(info.Shape, int(end-begin))
		if err != nil {
			return nil, fmt.Errorf("safetensors: %s: %w", name, err)
		}
		data, ok, err := decodeData(info.DType, body[begin:end], n)
		if err != nil {
			return nil, fmt.Errorf("safetensors: %s: %w", name, err)
		}
		if !ok {
			continue
		}
		params[name] = &Tensor{Shape: info.Shape, Data: data}
	}
	return params, nil
}

// elementCount multiplies out shape, rejecting negative dimensions and counts
// that could not fit in limit bytes.
func elementCount(shape []int, limit int) (int, error) {
	n := 1
	for _, d := range shape {
		if d < 0 {
			return 0, fmt.Errorf("negative dimension in shape %v", shape)
		}
		if d > 0 && n > limit/d {
			return 0, fmt.Errorf("shape %v exceeds the %d byte data range", shape, limit)
		}
		n *= d
	}
	return n, nil
}

func decodeData(dtype string, b []byte, n int) ([]float32, bool, error) {
	width := map[string]int{"F32": 4, "F64": 8, "F16": 2, "BF16": 2, "I64": 8, "I32": 4}[dtype]
	if width == 0 {
		return nil, false, fmt.Errorf("unsupported dtype %s", dtype)
	}
	if len(b) != n*width {
		return nil, false, fmt.Errorf("expected %d bytes for %d %s values, got %d", n*width, n, dtype, len(b))
	}

	out := make([]float32, n)
	switch dtype {
	case "F32":
		for i := range out {
			out[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
		}
	case "F64":
		for i := range out {
			out[i] = float32(math.Float64frombits(binary.LittleEndian.Uint64(b[i*8:])))
		}
	case "BF16":
		for i := range out {
			out[i] = math.Float32frombits(uint32(binary.LittleEndian.Uint16(b[i*2:])) << 16)
		}
	case "F16":
		for i := range out {
			out[i] = halfToFloat(binary.LittleEndian.Uint16(b[i*2:]))
		}
	default:
		return nil, false, nil
	}
	return out, true, nil
}

func halfToFloat(h uint16) float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	frac := uint32(h) & 0x3ff

	switch {
	case exp == 0 && frac == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// subnormal
		v := float32(frac) / 1024 * float32(math.Pow(2, -14))
		if sign != 0 {
			return -v
		}
		return v
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | frac<<13)
	default:
		return math.Float32frombits(sign | (exp+112)<<23 | frac<<13)
	}
}

// EncodeSafetensors writes params as F32 tensors with names in sorted order.
func EncodeSafetensors(w io.Writer, params Params) error {
	names := make([]string, 0, len(params))
	for name := range params {
		names = append(names, name)
	}
	sort.Strings(names)

	header := make(map[string]tensorInfo, len(names))
	var offset int64
	for _, name := range names {
		size := int64(params[name].Len() * 4)
		header[name] = tensorInfo{DType: "F32", Shape: params[name].Shape, DataOffsets: [2]int64{offset, offset + size}}
		offset += size
	}

	hdr, err := json.Marshal(header)
	if err != nil {
		return err
	}
	if pad := len(hdr) % 8; pad != 0 {
		hdr = append(hdr, bytes.Repeat([]byte(" "), 8-pad)...)
	}

	var lenBuf [8]byte
	binary.LittleEndian.PutUint64(lenBuf[:], uint64(len(hdr)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if _, err := w.Write(hdr); err != nil {
		return err
	}

	for _, name := range names {
		data := params[name].Data
		buf := make([]byte, 4*len(data))
		for i, v := range data {
			binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
		}
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}
