package cache

import (
	"errors"
	"fmt"

	"github.com/cfcache/cfcache/internal/artifact"
)

// 内置的两个 qualifier：主卷积函数与其加权伴随函数。
const (
	QualifierPrimary  = "primary"
	QualifierWeighted = "weighted"
)

// HitKind 描述一次 Locate 的命中层级。
type HitKind int

const (
	// Miss 表示索引中没有容差范围内的角度。
	Miss HitKind = iota
	// MemHit 表示直接命中内存层。
	MemHit
	// DiskHit 表示从磁盘加载并已提升到内存层。
	DiskHit
)

// String 返回命中层级的日志友好名称。
func (k HitKind) String() string {
	switch k {
	case Miss:
		return "miss"
	case MemHit:
		return "mem_hit"
	case DiskHit:
		return "disk_hit"
	default:
		return "unknown"
	}
}

// AvgStatus 描述平均主波束的读取结果。
type AvgStatus int

const (
	NotCached AvgStatus = iota
	CacheHit
)

// String 返回读取结果名称。
func (s AvgStatus) String() string {
	if s == CacheHit {
		return "cache_hit"
	}
	return "not_cached"
}

// Support 是单个 plane 非零区域的半宽 (x, y)。
type Support struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// Entry 是某个 (qualifier, slot) 已物化的缓存条目。
type Entry struct {
	Slot     int                `json:"slot"`
	Angle    float64            `json:"angle"`
	Supports []Support          `json:"supports"`
	Sampling float64            `json:"sampling"`
	Artifact *artifact.Artifact `json:"-"`
}

// SizeBytes 返回条目持有的采样字节数。
func (e *Entry) SizeBytes() int64 {
	if e == nil {
		return 0
	}
	return e.Artifact.SizeBytes()
}

// SupportsFromXY 将 x/y 两个数组合并为 Support 列表，长度取较短者。
func SupportsFromXY(xs, ys []int) []Support {
	n := len(xs)
	if len(ys) < n {
		n = len(ys)
	}
	out := make([]Support, n)
	for i := 0; i < n; i++ {
		out[i] = Support{X: xs[i], Y: ys[i]}
	}
	return out
}

// SplitSupports 将 Support 列表拆成 x/y 两个数组。
func SplitSupports(supports []Support) (xs, ys []int) {
	xs = make([]int, len(supports))
	ys = make([]int, len(supports))
	for i, s := range supports {
		xs[i] = s.X
		ys[i] = s.Y
	}
	return xs, ys
}

// ValidateQualifier 检查 qualifier 能否拼入 <prefix><qualifier><plane>_<slot>。
// plane 序号紧跟在 qualifier 之后，因此 qualifier 不能以数字结尾，否则
// "w1" 的 plane 0 与 "w" 的 plane 10 会落到同一个文件。
func ValidateQualifier(qualifier string) error {
	if err := validateNameToken(qualifier); err != nil {
		return fmt.Errorf("%w: qualifier %q %v", ErrInvalidName, qualifier, err)
	}
	if last := qualifier[len(qualifier)-1]; last >= '0' && last <= '9' {
		return fmt.Errorf("%w: qualifier %q must not end in a digit", ErrInvalidName, qualifier)
	}
	return nil
}

func validatePrefix(prefix string) error {
	if err := validateNameToken(prefix); err != nil {
		return fmt.Errorf("%w: prefix %q %v", ErrInvalidName, prefix, err)
	}
	return nil
}

func validateNameToken(token string) error {
	if token == "" {
		return errors.New("is empty")
	}
	for _, r := range token {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
		default:
			return fmt.Errorf("contains %q", r)
		}
	}
	return nil
}
