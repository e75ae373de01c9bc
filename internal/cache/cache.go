package cache

import (
	"fmt"
	"math"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"

	"github.com/cfcache/cfcache/internal/artifact"
	"github.com/cfcache/cfcache/internal/coords"
	"github.com/cfcache/cfcache/internal/logging"
)

// 默认值。
const (
	DefaultPrefix           = "CF"
	DefaultCompressionLevel = 3
)

// DefaultTolerance 是 1 度对应的弧度。
var DefaultTolerance = coords.Radians(1)

// Options 控制 Cache 的构造，零值字段使用默认实现。
type Options struct {
	Dir        string
	Prefix     string
	Tolerance  float64
	Logger     *logrus.Logger
	PlaneCodec PlaneCodec
	IndexCodec IndexCodec
	Converter  coords.Converter
}

// Cache 协调 AngleIndex、MemoryTier、DiskTier 与平均主波束存储。
// 查询按代价由低到高依次经过索引、内存、磁盘。
type Cache struct {
	dir       string
	tolerance float64
	index     *AngleIndex
	memory    *MemoryTier
	disk      *DiskTier
	avg       *AveragePrimaryBeamStore
	logger    *logrus.Logger
}

// New 构建启用磁盘持久化的缓存；目录为空或不可读写时立即失败。
func New(opts Options) (*Cache, error) {
	store, err := NewStore(opts.Dir)
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if opts.Prefix == "" {
		opts.Prefix = DefaultPrefix
	}
	if err := validatePrefix(opts.Prefix); err != nil {
		return nil, err
	}
	if opts.Tolerance < 0 || math.IsNaN(opts.Tolerance) {
		return nil, fmt.Errorf("invalid tolerance %v", opts.Tolerance)
	}
	if opts.Tolerance == 0 {
		opts.Tolerance = DefaultTolerance
	}
	if opts.PlaneCodec == nil {
		codec, err := NewBinaryPlaneCodec(DefaultCompressionLevel)
		if err != nil {
			return nil, err
		}
		opts.PlaneCodec = codec
	}
	if opts.IndexCodec == nil {
		opts.IndexCodec = TextIndexCodec{}
	}
	if opts.Converter == nil {
		opts.Converter = coords.FourierDual{}
	}

	disk := &DiskTier{
		store:     store,
		prefix:    opts.Prefix,
		planes:    opts.PlaneCodec,
		index:     opts.IndexCodec,
		converter: opts.Converter,
		logger:    logger,
	}
	return &Cache{
		dir:       store.Path(""),
		tolerance: opts.Tolerance,
		index:     NewAngleIndex(),
		memory:    NewMemoryTier(),
		disk:      disk,
		avg:       newAveragePrimaryBeamStore(disk, logger),
		logger:    logger,
	}, nil
}

// Disabled 返回不带缓存目录的实例：CacheArtifact 返回 -1，Flush 与 InitCache 为空操作，
// Locate 总是 Miss。
func Disabled(logger *logrus.Logger) *Cache {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Cache{
		tolerance: DefaultTolerance,
		index:     NewAngleIndex(),
		memory:    NewMemoryTier(),
		logger:    logger,
	}
}

// Enabled 表示是否配置了缓存目录。
func (c *Cache) Enabled() bool {
	return c.disk != nil
}

// Dir 返回缓存目录的绝对路径，未启用时为空。
func (c *Cache) Dir() string {
	return c.dir
}

// Tolerance 返回缓存级别的角度容差（弧度）。
func (c *Cache) Tolerance() float64 {
	return c.tolerance
}

// Index 返回底层 AngleIndex。
func (c *Cache) Index() *AngleIndex {
	return c.index
}

// Memory 返回底层 MemoryTier。
func (c *Cache) Memory() *MemoryTier {
	return c.memory
}

// Disk 返回底层 DiskTier，未启用时为 nil。
func (c *Cache) Disk() *DiskTier {
	return c.disk
}

// ClearMemory 丢弃内存层中的所有条目，下一次 Locate 将回到磁盘读取。
func (c *Cache) ClearMemory() {
	c.memory.Clear()
}

// InitCache 从 aux.dat 惰性恢复索引（仅元数据）。文件不存在时保持空索引；
// 文件格式错误时返回带路径的 ErrIndexParse。它用于启动阶段：若当前索引比磁盘索引长
// （存在尚未 Flush 的 slot），返回 ErrInvariant 并保持现有索引。
func (c *Cache) InitCache() error {
	if !c.Enabled() {
		return nil
	}
	fresh := NewAngleIndex()
	found, err := c.disk.ReadIndex(fresh)
	if err != nil {
		return err
	}
	if !found {
		c.logger.WithFields(logrus.Fields{
			"action": "init_cache",
			"dir":    c.dir,
		}).Info("cache index absent, starting empty")
		return nil
	}
	// 内存层的 slot 均来自当前索引，检查索引长度即可覆盖两者。
	if n := c.index.Len(); n > fresh.Len() {
		return fmt.Errorf("%w: index holds %d slots, index on disk has %d", ErrInvariant, n, fresh.Len())
	}
	c.index = fresh
	c.logger.WithFields(logrus.Fields{
		"action": "init_cache",
		"dir":    c.dir,
		"slots":  fresh.Len(),
		"planes": fresh.PlaneCount(),
	}).Info("cache index loaded")
	return nil
}

// Locate 在容差范围内查找 angle 对应的条目：索引未命中返回 Miss，否则交给 DiskTier.LoadSlot
// （其内部先查内存层）并透传 MemHit / DiskHit。
func (c *Cache) Locate(qualifier string, numPlanes int, angle, tolerance float64) (HitKind, *Entry, error) {
	if !c.Enabled() {
		return Miss, nil, nil
	}
	if err := ValidateQualifier(qualifier); err != nil {
		return Miss, nil, err
	}
	slot, found := c.index.Search(angle, tolerance)
	if !found {
		return Miss, nil, nil
	}
	if err := c.index.checkSlot(slot); err != nil {
		return Miss, nil, err
	}
	hit, entry, err := c.disk.LoadSlot(c.index, c.memory, qualifier, slot, numPlanes)
	if err != nil {
		return Miss, nil, err
	}
	fields := logging.CacheFields(qualifier, slot, angle, hit.String())
	fields["action"] = "locate"
	c.logger.WithFields(fields).Debug("cache lookup")
	return hit, entry, nil
}

// CacheArtifact 记录并持久化新计算的 artifact，返回其 slot；未配置目录时返回 -1。
// 同一容差桶内重复写入复用已有 slot，且不覆盖该 slot 已记录的元数据。
// persistRepresentative 为 true 时同时写入内存层，使本进程后续查询无需访问磁盘。
func (c *Cache) CacheArtifact(angle float64, art *artifact.Artifact, supportX, supportY []int, sampling float64, qualifier string, persistRepresentative bool) (int, error) {
	if !c.Enabled() {
		return -1, nil
	}
	if err := ValidateQualifier(qualifier); err != nil {
		return -1, err
	}
	if err := art.Validate(); err != nil {
		return -1, err
	}
	numPlanes := art.NumPlanes()
	if len(supportX) != numPlanes || len(supportY) != numPlanes {
		return -1, fmt.Errorf("support arrays have lengths %d/%d, artifact has %d planes", len(supportX), len(supportY), numPlanes)
	}

	slot, found := c.index.Search(angle, c.tolerance)
	c.index.EnsureSlot(slot)
	supports := SupportsFromXY(supportX, supportY)
	c.index.RecordMetadata(slot, angle, supports, sampling, found)

	meta := PlaneMeta{XSupport: supportX, YSupport: supportY, Sampling: sampling, Angle: angle}
	for p := 0; p < numPlanes; p++ {
		planeSlice, err := art.Plane(p)
		if err != nil {
			return -1, err
		}
		if _, err := c.disk.PersistPlane(qualifier, p, slot, planeSlice, meta); err != nil {
			return -1, err
		}
	}

	if persistRepresentative {
		c.memory.Insert(qualifier, slot, &Entry{
			Slot:     slot,
			Angle:    angle,
			Supports: supports,
			Sampling: sampling,
			Artifact: art,
		})
	}

	c.logger.WithFields(logrus.Fields{
		"action":    "cache_artifact",
		"qualifier": qualifier,
		"slot":      slot,
		"new_slot":  !found,
		"angle_deg": coords.Degrees(angle),
		"planes":    numPlanes,
		"size":      humanize.Bytes(uint64(art.SizeBytes())),
	}).Debug("artifact cached")
	return slot, nil
}

// Flush 将 AngleIndex 写入 aux.dat；未配置目录时为空操作。
func (c *Cache) Flush() error {
	if !c.Enabled() {
		return nil
	}
	if err := c.disk.WriteIndex(c.index); err != nil {
		return err
	}
	c.logger.WithFields(logrus.Fields{
		"action": "flush",
		"dir":    c.dir,
		"slots":  c.index.Len(),
		"planes": c.index.PlaneCount(),
	}).Info("cache index flushed")
	return nil
}

// FlushAverage 先执行 Flush，再以 avgPB<qualifier> 写出平均主波束并标记就绪。
func (c *Cache) FlushAverage(avg *artifact.Artifact, qualifier string) error {
	if !c.Enabled() {
		return nil
	}
	if err := ValidateQualifier(qualifier); err != nil {
		return err
	}
	if err := c.Flush(); err != nil {
		return err
	}
	return c.avg.Flush(avg, qualifier)
}

// LoadAveragePrimaryBeam 读取 qualifier 的平均主波束；缺失或读取失败均返回 NotCached。
func (c *Cache) LoadAveragePrimaryBeam(target *artifact.Artifact, qualifier string) AvgStatus {
	if !c.Enabled() || ValidateQualifier(qualifier) != nil {
		return NotCached
	}
	return c.avg.Load(target, qualifier)
}

// AverageReady 返回本进程内是否已为 qualifier 写出平均主波束。
func (c *Cache) AverageReady(qualifier string) bool {
	if !c.Enabled() {
		return false
	}
	return c.avg.Ready(qualifier)
}

// AverageFile 只检查 qualifier 的平均主波束文件是否存在，不读取内容。
func (c *Cache) AverageFile(qualifier string) (*FileEntry, bool) {
	if !c.Enabled() || ValidateQualifier(qualifier) != nil {
		return nil, false
	}
	return c.avg.Stat(qualifier)
}

// Summary 是缓存状态快照，供日志与诊断接口使用。
type Summary struct {
	Dir         string           `json:"dir"`
	Enabled     bool             `json:"enabled"`
	Tolerance   float64          `json:"tolerance"`
	PlaneCount  int              `json:"plane_count"`
	Rows        []IndexRow       `json:"rows"`
	MemoryBytes int64            `json:"memory_bytes"`
	Resident    map[string][]int `json:"resident"`
}

// Summary 返回当前缓存状态。
func (c *Cache) Summary() Summary {
	resident := make(map[string][]int)
	for _, q := range c.memory.Qualifiers() {
		resident[q] = c.memory.Resident(q)
	}
	return Summary{
		Dir:         c.dir,
		Enabled:     c.Enabled(),
		Tolerance:   c.tolerance,
		PlaneCount:  c.index.PlaneCount(),
		Rows:        c.index.Rows(),
		MemoryBytes: c.memory.SizeBytes(),
		Resident:    resident,
	}
}
