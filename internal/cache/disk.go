package cache

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/natefinch/atomic"
	"github.com/sirupsen/logrus"

	"github.com/cfcache/cfcache/internal/artifact"
	"github.com/cfcache/cfcache/internal/coords"
)

// DiskTier 负责 plane 文件与文本索引的持久化。plane 与索引分别由 PlaneCodec
// 和 IndexCodec 编解码，两者可独立替换。
type DiskTier struct {
	store     Store
	prefix    string
	planes    PlaneCodec
	index     IndexCodec
	converter coords.Converter
	logger    *logrus.Logger
}

// PlaneName 返回 plane 文件名：<prefix><qualifier><plane>_<slot>。
func (d *DiskTier) PlaneName(qualifier string, plane, slot int) string {
	return fmt.Sprintf("%s%s%d_%d", d.prefix, qualifier, plane, slot)
}

// PersistPlane 写出单个 depth-plane，header 内嵌 {Xsupport, Ysupport, sampling, ParallacticAngle}，
// 坐标系经 Converter 转换并以 plane 中心为参考像素。
func (d *DiskTier) PersistPlane(qualifier string, plane, slot int, planeSlice *artifact.Artifact, meta PlaneMeta) (*FileEntry, error) {
	if err := ValidateQualifier(qualifier); err != nil {
		return nil, err
	}
	if err := planeSlice.Validate(); err != nil {
		return nil, err
	}
	nx, ny := planeSlice.Shape[artifact.AxisX], planeSlice.Shape[artifact.AxisY]
	out := &artifact.Artifact{
		Shape:  planeSlice.Shape,
		Data:   planeSlice.Data,
		Coords: d.converter.ToFourierDual(planeSlice.Coords, nx, ny, coords.CenterPixel(nx, ny), meta.Angle),
		Header: meta.Header(),
	}
	name := d.PlaneName(qualifier, plane, slot)
	entry, err := d.writeArtifact(name, out)
	if err != nil {
		return nil, fmt.Errorf("persist %s: %w", d.store.Path(name), err)
	}
	return entry, nil
}

// LoadSlot 先查内存层，命中则直接返回 MemHit；否则依次读取 numPlanes 个 plane 文件，
// 以文件内嵌元数据为准组装条目，写入内存层并回填 AngleIndex，返回 DiskHit。
// 任一 plane 读取失败都返回 ErrReadPlane，且不会安装部分条目。
func (d *DiskTier) LoadSlot(idx *AngleIndex, mem *MemoryTier, qualifier string, slot, numPlanes int) (HitKind, *Entry, error) {
	if e := mem.Get(qualifier, slot); e != nil {
		return MemHit, e, nil
	}
	if numPlanes <= 0 {
		return Miss, nil, fmt.Errorf("%w: numPlanes must be positive, got %d", ErrInvariant, numPlanes)
	}

	planes := make([]*artifact.Artifact, numPlanes)
	supports := make([]Support, numPlanes)
	var sampling, angle float64
	for p := 0; p < numPlanes; p++ {
		name := d.PlaneName(qualifier, p, slot)
		art, err := d.readArtifact(name)
		if err != nil {
			return Miss, nil, fmt.Errorf("%w: %s: %v", ErrReadPlane, d.store.Path(name), err)
		}
		meta, err := PlaneMetaFromHeader(art.Header)
		if err != nil {
			return Miss, nil, fmt.Errorf("%w: %s: %v", ErrReadPlane, d.store.Path(name), err)
		}
		s, err := planeSupport(meta, p)
		if err != nil {
			return Miss, nil, fmt.Errorf("%w: %s: %v", ErrReadPlane, d.store.Path(name), err)
		}
		supports[p] = s
		sampling = meta.Sampling
		angle = meta.Angle
		planes[p] = art
	}

	assembled, err := artifact.Assemble(planes)
	if err != nil {
		return Miss, nil, fmt.Errorf("%w: slot %d: %v", ErrReadPlane, slot, err)
	}
	xs, ys := SplitSupports(supports)
	assembled.Header = PlaneMeta{XSupport: xs, YSupport: ys, Sampling: sampling, Angle: angle}.Header()

	entry := &Entry{
		Slot:     slot,
		Angle:    angle,
		Supports: supports,
		Sampling: sampling,
		Artifact: assembled,
	}
	mem.Insert(qualifier, slot, entry)
	idx.Reconcile(slot, angle, supports, sampling)

	d.logger.WithFields(logrus.Fields{
		"action":    "load_slot",
		"qualifier": qualifier,
		"slot":      slot,
		"planes":    numPlanes,
		"angle_deg": coords.Degrees(angle),
	}).Debug("slot loaded from disk")
	return DiskHit, entry, nil
}

// planeSupport 取文件 header 中第 plane 个 support；单元素数组视为对所有 plane 通用。
func planeSupport(meta PlaneMeta, plane int) (Support, error) {
	n := len(meta.XSupport)
	if len(meta.YSupport) != n || n == 0 {
		return Support{}, fmt.Errorf("support arrays have lengths %d/%d", len(meta.XSupport), len(meta.YSupport))
	}
	if plane < n {
		return Support{X: meta.XSupport[plane], Y: meta.YSupport[plane]}, nil
	}
	if n == 1 {
		return Support{X: meta.XSupport[0], Y: meta.YSupport[0]}, nil
	}
	return Support{}, fmt.Errorf("plane %d beyond %d recorded supports", plane, n)
}

// WriteIndex 将 AngleIndex 序列化为 aux.dat，整体以原子替换方式写入。
func (d *DiskTier) WriteIndex(idx *AngleIndex) error {
	var buf bytes.Buffer
	if err := d.index.Encode(&buf, idx.Rows(), idx.PlaneCount()); err != nil {
		return fmt.Errorf("encode index: %w", err)
	}
	path := d.store.Path(IndexFileName)
	if err := atomic.WriteFile(path, &buf); err != nil {
		return fmt.Errorf("write index %s: %w", path, err)
	}
	return nil
}

// ReadIndex 读取 aux.dat 并替换 idx 的内容；文件不存在时返回 false 且不修改 idx。
func (d *DiskTier) ReadIndex(idx *AngleIndex) (bool, error) {
	result, err := d.store.Get(IndexFileName)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("open index %s: %w", d.store.Path(IndexFileName), err)
	}
	defer result.Reader.Close()

	if err := idx.LoadFromDiskIndex(result.Reader, d.index); err != nil {
		return false, fmt.Errorf("%s: %w", result.Entry.FilePath, err)
	}
	return true, nil
}

func (d *DiskTier) writeArtifact(name string, art *artifact.Artifact) (*FileEntry, error) {
	var buf bytes.Buffer
	if err := d.planes.Encode(&buf, art); err != nil {
		return nil, err
	}
	return d.store.Put(name, &buf)
}

func (d *DiskTier) readArtifact(name string) (*artifact.Artifact, error) {
	result, err := d.store.Get(name)
	if err != nil {
		return nil, err
	}
	defer result.Reader.Close()
	return d.planes.Decode(result.Reader)
}
