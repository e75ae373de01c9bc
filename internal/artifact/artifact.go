// Package artifact models the dense four-axis arrays (x, y, plane, polarization)
// the cache stores. The cache treats an Artifact as a shape plus a sliceable
// complex64 buffer, a coordinate system and an attachable key/value header; the
// numerical contents are produced by callers and never interpreted here.
package artifact

import (
	"errors"
	"fmt"
)

// 轴顺序：x 变化最快，其后依次为 y、plane、pol。
const (
	AxisX = iota
	AxisY
	AxisPlane
	AxisPol
)

// ElementSize 是单个 complex64 采样所占字节数，用于内存统计。
const ElementSize = 8

// MaxElements 限制单个 Artifact 的采样总数（16 GiB 的 complex64）。
const MaxElements = 1 << 31

// ErrShapeMismatch 表示数据长度或 plane 形状与声明的 Shape 不一致。
var ErrShapeMismatch = errors.New("artifact shape mismatch")

// ElementCount 返回 shape 的元素总数；任一维度非正或乘积超过 MaxElements 时返回错误。
func ElementCount(shape [4]int) (int, error) {
	n := 1
	for axis, d := range shape {
		if d <= 0 {
			return 0, fmt.Errorf("%w: axis %d is %d", ErrShapeMismatch, axis, d)
		}
		if d > MaxElements/n {
			return 0, fmt.Errorf("%w: shape %v exceeds %d elements", ErrShapeMismatch, shape, MaxElements)
		}
		n *= d
	}
	return n, nil
}

// CoordSys 描述二维平面的线性坐标系，持久化时随文件一起保存。
type CoordSys struct {
	RefPixel  [2]float64 `json:"ref_pixel"`
	RefValue  [2]float64 `json:"ref_value"`
	Increment [2]float64 `json:"increment"`
	Rotation  float64    `json:"rotation"`
	// Domain 标记坐标处于图像域还是其 Fourier 对偶域。
	Domain string `json:"domain,omitempty"`
}

// Header 是可附着在 Artifact 上的键值元数据。
type Header map[string]any

// Clone 返回 Header 的浅拷贝，切片值会被复制。
func (h Header) Clone() Header {
	if h == nil {
		return nil
	}
	out := make(Header, len(h))
	for k, v := range h {
		switch typed := v.(type) {
		case []int:
			out[k] = append([]int(nil), typed...)
		case []float64:
			out[k] = append([]float64(nil), typed...)
		default:
			out[k] = v
		}
	}
	return out
}

// Artifact 是缓存中的卷积函数数组。
type Artifact struct {
	Shape  [4]int
	Data   []complex64
	Coords CoordSys
	Header Header
}

// New 分配一个零值 Artifact，所有维度必须为正数。
func New(nx, ny, nplanes, npol int) (*Artifact, error) {
	shape := [4]int{nx, ny, nplanes, npol}
	n, err := ElementCount(shape)
	if err != nil {
		return nil, err
	}
	return &Artifact{
		Shape: shape,
		Data:  make([]complex64, n),
	}, nil
}

// Len 返回 Shape 声明的元素总数。
func (a *Artifact) Len() int {
	return a.Shape[0] * a.Shape[1] * a.Shape[2] * a.Shape[3]
}

// NumPlanes 返回 depth-plane 数量。
func (a *Artifact) NumPlanes() int {
	return a.Shape[AxisPlane]
}

// SizeBytes 返回采样数据占用的字节数。
func (a *Artifact) SizeBytes() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data)) * ElementSize
}

// Validate 检查 Data 长度与 Shape 是否一致。
func (a *Artifact) Validate() error {
	if a == nil {
		return errors.New("artifact is nil")
	}
	n, err := ElementCount(a.Shape)
	if err != nil {
		return err
	}
	if len(a.Data) != n {
		return fmt.Errorf("%w: shape %v wants %d elements, have %d", ErrShapeMismatch, a.Shape, n, len(a.Data))
	}
	return nil
}

func (a *Artifact) offset(x, y, plane, pol int) int {
	nx, ny, np := a.Shape[0], a.Shape[1], a.Shape[2]
	return x + nx*(y+ny*(plane+np*pol))
}

// At 返回 (x, y, plane, pol) 处的采样。
func (a *Artifact) At(x, y, plane, pol int) complex64 {
	return a.Data[a.offset(x, y, plane, pol)]
}

// Set 写入 (x, y, plane, pol) 处的采样。
func (a *Artifact) Set(x, y, plane, pol int, v complex64) {
	a.Data[a.offset(x, y, plane, pol)] = v
}

// Plane 拷贝出单个 depth-plane，结果形状为 (nx, ny, 1, npol)，Header 不随之复制。
func (a *Artifact) Plane(plane int) (*Artifact, error) {
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if plane < 0 || plane >= a.NumPlanes() {
		return nil, fmt.Errorf("plane %d out of range [0,%d)", plane, a.NumPlanes())
	}
	nx, ny, npol := a.Shape[0], a.Shape[1], a.Shape[3]
	out := &Artifact{
		Shape:  [4]int{nx, ny, 1, npol},
		Data:   make([]complex64, nx*ny*npol),
		Coords: a.Coords,
	}
	for pol := 0; pol < npol; pol++ {
		src := a.offset(0, 0, plane, pol)
		dst := out.offset(0, 0, 0, pol)
		copy(out.Data[dst:dst+nx*ny], a.Data[src:src+nx*ny])
	}
	return out, nil
}

// Assemble 将若干单 plane Artifact 按顺序拼成一个多 plane Artifact，
// 所有 plane 的 nx/ny/npol 必须一致；坐标系取自第一个 plane。
func Assemble(planes []*Artifact) (*Artifact, error) {
	if len(planes) == 0 {
		return nil, errors.New("no planes to assemble")
	}
	first := planes[0]
	nx, ny, npol := first.Shape[0], first.Shape[1], first.Shape[3]
	out, err := New(nx, ny, len(planes), npol)
	if err != nil {
		return nil, err
	}
	out.Coords = first.Coords
	for p, src := range planes {
		if err := src.Validate(); err != nil {
			return nil, fmt.Errorf("plane %d: %w", p, err)
		}
		if src.Shape != [4]int{nx, ny, 1, npol} {
			return nil, fmt.Errorf("%w: plane %d has shape %v, want %v", ErrShapeMismatch, p, src.Shape, [4]int{nx, ny, 1, npol})
		}
		for pol := 0; pol < npol; pol++ {
			s := src.offset(0, 0, 0, pol)
			d := out.offset(0, 0, p, pol)
			copy(out.Data[d:d+nx*ny], src.Data[s:s+nx*ny])
		}
	}
	return out, nil
}

// CopyInto 用 src 的内容覆盖 dst，用于把读取结果写入调用方提供的目标。
func CopyInto(dst, src *Artifact) {
	dst.Shape = src.Shape
	dst.Data = append(dst.Data[:0], src.Data...)
	dst.Coords = src.Coords
	dst.Header = src.Header.Clone()
}
