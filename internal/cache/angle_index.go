package cache

import (
	"fmt"
	"io"
	"math"
)

// IndexRow 是 AngleIndex 中单个 slot 的元数据快照。
type IndexRow struct {
	Angle    float64   `json:"angle"`
	Supports []Support `json:"supports"`
	Sampling float64   `json:"sampling"`
}

// AngleIndex 记录已知的视差角及每个 slot 的逐 plane support 与采样因子。
// supports 的形状始终为 [planeCount][slotCount]。
type AngleIndex struct {
	angles   []float64
	supports [][]Support
	sampling []float64
}

// NewAngleIndex 返回空索引。
func NewAngleIndex() *AngleIndex {
	return &AngleIndex{}
}

// Len 返回 slot 数量。
func (idx *AngleIndex) Len() int {
	return len(idx.angles)
}

// PlaneCount 返回 support 矩阵的 plane 维度。
func (idx *AngleIndex) PlaneCount() int {
	return len(idx.supports)
}

// Search 线性扫描所有角度，返回绝对差最小的 slot；距离相同时先插入者胜出。
// 最小距离不超过 tolerance 时 found 为 true，否则返回新条目将被追加到的位置。
func (idx *AngleIndex) Search(angle, tolerance float64) (int, bool) {
	best := math.Inf(1)
	bestSlot := -1
	for slot, a := range idx.angles {
		d := math.Abs(a - angle)
		if d < best {
			best = d
			bestSlot = slot
		}
	}
	if bestSlot >= 0 && best <= tolerance {
		return bestSlot, true
	}
	return len(idx.angles), false
}

// EnsureSlot 扩展各数组以容纳 slot，新建的中间 slot 以 NaN 角度和零值填充，
// NaN 永远不会被 Search 命中。
func (idx *AngleIndex) EnsureSlot(slot int) {
	for len(idx.angles) <= slot {
		idx.angles = append(idx.angles, math.NaN())
		idx.sampling = append(idx.sampling, 0)
		for p := range idx.supports {
			idx.supports[p] = append(idx.supports[p], Support{})
		}
	}
}

func (idx *AngleIndex) ensurePlanes(n int) {
	for len(idx.supports) < n {
		idx.supports = append(idx.supports, make([]Support, len(idx.angles)))
	}
}

// RecordMetadata 仅在 slot 为新建（found == false）时写入，避免同一容差桶内代表值漂移。
func (idx *AngleIndex) RecordMetadata(slot int, angle float64, supports []Support, sampling float64, found bool) {
	if found {
		return
	}
	idx.Reconcile(slot, angle, supports, sampling)
}

// Reconcile 无条件覆盖 slot 的元数据，用于以磁盘内容为准的加载路径。
func (idx *AngleIndex) Reconcile(slot int, angle float64, supports []Support, sampling float64) {
	idx.EnsureSlot(slot)
	idx.ensurePlanes(len(supports))
	idx.angles[slot] = angle
	idx.sampling[slot] = sampling
	for p, s := range supports {
		idx.supports[p][slot] = s
	}
}

// Angle 返回 slot 的代表角度（弧度）。
func (idx *AngleIndex) Angle(slot int) float64 {
	return idx.angles[slot]
}

// Sampling 返回 slot 的采样因子。
func (idx *AngleIndex) Sampling(slot int) float64 {
	return idx.sampling[slot]
}

// Supports 返回 slot 在每个 plane 上的 support 副本。
func (idx *AngleIndex) Supports(slot int) []Support {
	out := make([]Support, len(idx.supports))
	for p := range idx.supports {
		out[p] = idx.supports[p][slot]
	}
	return out
}

// InBounds 判断 slot 是否落在当前索引范围内。
func (idx *AngleIndex) InBounds(slot int) bool {
	return slot >= 0 && slot < len(idx.angles)
}

// Rows 返回按 slot 排列的索引快照。
func (idx *AngleIndex) Rows() []IndexRow {
	rows := make([]IndexRow, len(idx.angles))
	for slot := range idx.angles {
		rows[slot] = IndexRow{
			Angle:    idx.angles[slot],
			Supports: idx.Supports(slot),
			Sampling: idx.sampling[slot],
		}
	}
	return rows
}

// Load 以 rows 替换当前内容，planeCount 小于某行 support 数量时按较大者处理。
func (idx *AngleIndex) Load(rows []IndexRow, planeCount int) {
	idx.angles = nil
	idx.sampling = nil
	idx.supports = nil
	idx.ensurePlanes(planeCount)
	for slot, row := range rows {
		idx.Reconcile(slot, row.Angle, row.Supports, row.Sampling)
	}
}

// LoadFromDiskIndex 用 codec 解析索引（nil 时为 TextIndexCodec），只恢复元数据，
// 不触碰任何 artifact 数据。解析失败时 idx 保持不变。
func (idx *AngleIndex) LoadFromDiskIndex(r io.Reader, codec IndexCodec) error {
	if codec == nil {
		codec = TextIndexCodec{}
	}
	rows, planes, err := codec.Decode(r)
	if err != nil {
		return err
	}
	idx.Load(rows, planes)
	return nil
}

// checkSlot 在 slot 越界时返回 ErrInvariant。
func (idx *AngleIndex) checkSlot(slot int) error {
	if !idx.InBounds(slot) {
		return fmt.Errorf("%w: slot %d outside index of %d entries", ErrInvariant, slot, len(idx.angles))
	}
	return nil
}
