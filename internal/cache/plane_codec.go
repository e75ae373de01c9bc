package cache

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"

	"github.com/cfcache/cfcache/internal/artifact"
)

// PlaneCodec 负责单个 artifact 文件的二进制格式，与 IndexCodec 相互独立。
type PlaneCodec interface {
	Encode(w io.Writer, art *artifact.Artifact) error
	Decode(r io.Reader) (*artifact.Artifact, error)
}

// plane 文件格式常量。
const (
	planeMagic      = "CFP1"
	planeVersion    = 1
	planeFlagZstd   = 1 << 0
	planeFixedBytes = 4 + 2 + 2 + 4
	maxHeaderBytes  = 1 << 20
)

// planeHeaderBlock 是文件内嵌的 JSON 元数据块。
type planeHeaderBlock struct {
	Header artifact.Header   `json:"header"`
	Coords artifact.CoordSys `json:"coords"`
}

// BinaryPlaneCodec 写出自描述容器：
//
//	magic "CFP1" | version u16 | flags u16 | headerLen u32 | header JSON
//	| shape 4×u32 | payloadLen u64 | payload
//
// payload 是小端 float32 (re, im) 序列，level > 0 时整体经 zstd 压缩。
type BinaryPlaneCodec struct {
	encoder *zstd.Encoder
	decoder *zstd.Decoder
}

// NewBinaryPlaneCodec 按 zstd 等级构造编解码器，level <= 0 表示不压缩。
func NewBinaryPlaneCodec(level int) (*BinaryPlaneCodec, error) {
	codec := &BinaryPlaneCodec{}
	if level > 0 {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, fmt.Errorf("create zstd encoder: %w", err)
		}
		codec.encoder = enc
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	codec.decoder = dec
	return codec, nil
}

// Encode 实现 PlaneCodec。
func (c *BinaryPlaneCodec) Encode(w io.Writer, art *artifact.Artifact) error {
	if err := art.Validate(); err != nil {
		return err
	}
	headerJSON, err := json.Marshal(planeHeaderBlock{Header: art.Header, Coords: art.Coords})
	if err != nil {
		return fmt.Errorf("encode plane header: %w", err)
	}
	if len(headerJSON) > maxHeaderBytes {
		return fmt.Errorf("plane header too large: %d bytes", len(headerJSON))
	}

	raw := make([]byte, len(art.Data)*artifact.ElementSize)
	for i, v := range art.Data {
		binary.LittleEndian.PutUint32(raw[i*8:], math.Float32bits(real(v)))
		binary.LittleEndian.PutUint32(raw[i*8+4:], math.Float32bits(imag(v)))
	}

	var flags uint16
	payload := raw
	if c.encoder != nil {
		payload = c.encoder.EncodeAll(raw, nil)
		flags |= planeFlagZstd
	}

	var buf bytes.Buffer
	buf.Grow(planeFixedBytes + len(headerJSON) + 16 + 8 + len(payload))
	buf.WriteString(planeMagic)
	_ = binary.Write(&buf, binary.LittleEndian, uint16(planeVersion))
	_ = binary.Write(&buf, binary.LittleEndian, flags)
	_ = binary.Write(&buf, binary.LittleEndian, uint32(len(headerJSON)))
	buf.Write(headerJSON)
	for _, n := range art.Shape {
		_ = binary.Write(&buf, binary.LittleEndian, uint32(n))
	}
	_ = binary.Write(&buf, binary.LittleEndian, uint64(len(payload)))
	buf.Write(payload)

	_, err = w.Write(buf.Bytes())
	return err
}

// Decode 实现 PlaneCodec，任何结构性错误都返回 ErrCorruptPlane。
func (c *BinaryPlaneCodec) Decode(r io.Reader) (*artifact.Artifact, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(data) < planeFixedBytes {
		return nil, fmt.Errorf("%w: file too small (%d bytes)", ErrCorruptPlane, len(data))
	}
	if string(data[0:4]) != planeMagic {
		return nil, fmt.Errorf("%w: invalid magic", ErrCorruptPlane)
	}
	if v := binary.LittleEndian.Uint16(data[4:6]); v != planeVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrCorruptPlane, v)
	}
	flags := binary.LittleEndian.Uint16(data[6:8])
	headerLen := int(binary.LittleEndian.Uint32(data[8:12]))
	pos := planeFixedBytes
	if headerLen > maxHeaderBytes || len(data) < pos+headerLen+16+8 {
		return nil, fmt.Errorf("%w: truncated header", ErrCorruptPlane)
	}

	var block planeHeaderBlock
	if err := json.Unmarshal(data[pos:pos+headerLen], &block); err != nil {
		return nil, fmt.Errorf("%w: header: %v", ErrCorruptPlane, err)
	}
	pos += headerLen

	var shape [4]int
	for i := range shape {
		shape[i] = int(binary.LittleEndian.Uint32(data[pos:]))
		pos += 4
	}
	count, err := artifact.ElementCount(shape)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPlane, err)
	}
	payloadLen := binary.LittleEndian.Uint64(data[pos:])
	pos += 8
	if uint64(len(data)-pos) != payloadLen {
		return nil, fmt.Errorf("%w: payload length %d, have %d bytes", ErrCorruptPlane, payloadLen, len(data)-pos)
	}
	payload := data[pos:]

	if flags&planeFlagZstd != 0 {
		payload, err = c.decoder.DecodeAll(payload, nil)
		if err != nil {
			return nil, fmt.Errorf("%w: decompress: %v", ErrCorruptPlane, err)
		}
	}

	if len(payload) != count*artifact.ElementSize {
		return nil, fmt.Errorf("%w: payload holds %d bytes, shape %v wants %d", ErrCorruptPlane, len(payload), shape, count*artifact.ElementSize)
	}
	art := &artifact.Artifact{Shape: shape, Coords: block.Coords, Header: block.Header}
	art.Data = make([]complex64, count)
	for i := range art.Data {
		re := math.Float32frombits(binary.LittleEndian.Uint32(payload[i*8:]))
		im := math.Float32frombits(binary.LittleEndian.Uint32(payload[i*8+4:]))
		art.Data[i] = complex(re, im)
	}
	if err := art.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptPlane, err)
	}
	return art, nil
}

// 文件内嵌 header 的键名。
const (
	headerXSupport = "Xsupport"
	headerYSupport = "Ysupport"
	headerSampling = "sampling"
	headerAngle    = "ParallacticAngle"
)

// PlaneMeta 是写入每个 plane 文件 header 的元数据，加载时以它为准。
type PlaneMeta struct {
	XSupport []int
	YSupport []int
	Sampling float64
	Angle    float64
}

// Header 将元数据转换为可附着的 header。
func (m PlaneMeta) Header() artifact.Header {
	return artifact.Header{
		headerXSupport: append([]int(nil), m.XSupport...),
		headerYSupport: append([]int(nil), m.YSupport...),
		headerSampling: m.Sampling,
		headerAngle:    m.Angle,
	}
}

// PlaneMetaFromHeader 从 header 中解析元数据，缺失或类型不符时返回错误。
func PlaneMetaFromHeader(h artifact.Header) (PlaneMeta, error) {
	var meta PlaneMeta
	var err error
	if meta.XSupport, err = headerInts(h, headerXSupport); err != nil {
		return meta, err
	}
	if meta.YSupport, err = headerInts(h, headerYSupport); err != nil {
		return meta, err
	}
	if meta.Sampling, err = headerFloat(h, headerSampling); err != nil {
		return meta, err
	}
	if meta.Angle, err = headerFloat(h, headerAngle); err != nil {
		return meta, err
	}
	return meta, nil
}

var errHeaderField = errors.New("plane header field")

func headerInts(h artifact.Header, key string) ([]int, error) {
	raw, ok := h[key]
	if !ok {
		return nil, fmt.Errorf("%w %s missing", errHeaderField, key)
	}
	switch v := raw.(type) {
	case []int:
		return append([]int(nil), v...), nil
	case []float64:
		out := make([]int, len(v))
		for i, f := range v {
			n, err := wholeNumber(key, i, f)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	case []any:
		out := make([]int, len(v))
		for i, item := range v {
			f, ok := item.(float64)
			if !ok {
				return nil, fmt.Errorf("%w %s[%d] has type %T", errHeaderField, key, i, item)
			}
			n, err := wholeNumber(key, i, f)
			if err != nil {
				return nil, err
			}
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w %s has type %T", errHeaderField, key, raw)
	}
}

// wholeNumber 拒绝带小数部分或超出 int32 范围的 support 值。
func wholeNumber(key string, i int, f float64) (int, error) {
	if f != math.Trunc(f) || math.Abs(f) > math.MaxInt32 {
		return 0, fmt.Errorf("%w %s[%d] is not an integer: %v", errHeaderField, key, i, f)
	}
	return int(f), nil
}

func headerFloat(h artifact.Header, key string) (float64, error) {
	raw, ok := h[key]
	if !ok {
		return 0, fmt.Errorf("%w %s missing", errHeaderField, key)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("%w %s has type %T", errHeaderField, key, raw)
	}
}
