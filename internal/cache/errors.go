package cache

import "errors"

var (
	// ErrNotFound 表示缓存文件不存在。
	ErrNotFound = errors.New("cache file not found")

	// ErrDirRequired 表示构造时未提供缓存目录。
	ErrDirRequired = errors.New("cache dir required")

	// ErrDirAccess 表示缓存目录无法创建或不可读写。
	ErrDirAccess = errors.New("cache dir not accessible")

	// ErrIndexParse 表示 aux.dat 格式错误（非数字字段、行被截断等）。
	ErrIndexParse = errors.New("malformed cache index")

	// ErrReadPlane 表示 LoadSlot 读取某个 plane 文件失败，此时不会安装任何部分条目。
	ErrReadPlane = errors.New("cache plane read failed")

	// ErrCorruptPlane 表示 plane 文件内容无法解码。
	ErrCorruptPlane = errors.New("corrupt cache plane")

	// ErrInvalidName 表示 qualifier 或文件名前缀无法安全地拼入缓存文件名。
	ErrInvalidName = errors.New("invalid cache name component")

	// ErrInvariant 表示内部不变量被破坏（例如搜索命中的 slot 越界），调用方不应尝试恢复。
	ErrInvariant = errors.New("cache invariant violated")
)
