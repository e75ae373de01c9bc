package cache

import (
	"io"
	"time"
)

// Store 负责缓存目录内单个文件的读写。磁盘布局遵循：
//
//	<CacheDir>/aux.dat                         # 文本索引
//	<CacheDir>/<prefix><qualifier><plane>_<slot> # 单个 depth-plane
//	<CacheDir>/avgPB<qualifier>                 # 平均主波束
//
// 所有文件平铺在同一目录下，文件名即定位键。
type Store interface {
	// Get 返回一个可流式读取的缓存文件。若不存在则返回 ErrNotFound。
	Get(name string) (*ReadResult, error)

	// Put 写入文件，实现需通过临时文件 + rename 保证单文件写入原子性，并在失败时清理临时文件。
	Put(name string, body io.Reader) (*FileEntry, error)

	// Remove 删除文件，不存在时视为成功。用于清理无法解码的平均主波束文件。
	Remove(name string) error

	// Path 返回文件的绝对路径，用于错误信息与日志。
	Path(name string) string
}

// FileEntry 描述一次读写涉及的文件信息。
type FileEntry struct {
	Name      string    `json:"name"`
	FilePath  string    `json:"file_path"`
	SizeBytes int64     `json:"size_bytes"`
	ModTime   time.Time `json:"mod_time"`
}

// ReadResult 组合 FileEntry 与正文 Reader，调用方负责 Close。
type ReadResult struct {
	Entry  FileEntry
	Reader io.ReadSeekCloser
}
