package cache

import (
	"errors"

	"github.com/sirupsen/logrus"

	"github.com/cfcache/cfcache/internal/artifact"
)

// avgPBPrefix 是平均主波束文件名前缀，文件名为 avgPB<qualifier>。
const avgPBPrefix = "avgPB"

// AveragePrimaryBeamStore 按 qualifier 保存单个平均主波束，独立于角度索引缓存。
type AveragePrimaryBeamStore struct {
	disk   *DiskTier
	ready  map[string]bool
	logger *logrus.Logger
}

func newAveragePrimaryBeamStore(disk *DiskTier, logger *logrus.Logger) *AveragePrimaryBeamStore {
	return &AveragePrimaryBeamStore{disk: disk, ready: make(map[string]bool), logger: logger}
}

// FileName 返回 qualifier 对应的文件名。
func (s *AveragePrimaryBeamStore) FileName(qualifier string) string {
	return avgPBPrefix + qualifier
}

// Flush 写出平均主波束（不按 plane 拆分），成功后标记该 qualifier 已就绪。
func (s *AveragePrimaryBeamStore) Flush(avg *artifact.Artifact, qualifier string) error {
	entry, err := s.disk.writeArtifact(s.FileName(qualifier), avg)
	if err != nil {
		return err
	}
	s.ready[qualifier] = true
	s.logger.WithFields(logrus.Fields{
		"action":    "flush_avgpb",
		"qualifier": qualifier,
		"file":      entry.FilePath,
	}).Debug("average primary beam written")
	return nil
}

// Load 尝试把 qualifier 的平均主波束读入 target；任何 I/O 或解码失败都转换为 NotCached，
// 由调用方重新计算。无法解码的文件会被删除，使 Stat 不再把它报告为存在。
func (s *AveragePrimaryBeamStore) Load(target *artifact.Artifact, qualifier string) AvgStatus {
	name := s.FileName(qualifier)
	art, err := s.disk.readArtifact(name)
	if err != nil {
		fields := logrus.Fields{
			"action":    "load_avgpb",
			"qualifier": qualifier,
			"error":     err.Error(),
		}
		if errors.Is(err, ErrCorruptPlane) {
			if rmErr := s.disk.store.Remove(name); rmErr != nil {
				fields["remove_error"] = rmErr.Error()
			} else {
				fields["removed"] = s.disk.store.Path(name)
			}
		}
		s.logger.WithFields(fields).Debug("average primary beam not cached")
		return NotCached
	}
	if target != nil {
		artifact.CopyInto(target, art)
	}
	return CacheHit
}

// Ready 返回本进程内是否已为 qualifier 显式写出过平均主波束。
func (s *AveragePrimaryBeamStore) Ready(qualifier string) bool {
	return s.ready[qualifier]
}

// Stat 返回平均主波束文件的元信息，不解码内容。
func (s *AveragePrimaryBeamStore) Stat(qualifier string) (*FileEntry, bool) {
	result, err := s.disk.store.Get(s.FileName(qualifier))
	if err != nil {
		return nil, false
	}
	_ = result.Reader.Close()
	entry := result.Entry
	return &entry, true
}
