package migration

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/shelfdb/shelf/src/consts"
	"github.com/shelfdb/shelf/src/pkg/schema"
)

// Registry 版本注册表：记录每个存储路径声明的版本与迁移回调
type Registry struct {
	mu          sync.RWMutex
	entries     map[string]*Entry
	defaultPath string
	// defaultEntry 通过 SetDefaultVersion 注册，只在查询默认路径时生效
	defaultEntry *Entry
	// observed 引擎读取到的持久化版本
	observed map[string]schema.Version
}

// NewRegistry 创建注册表，默认路径为当前目录下的 consts.DefaultStoreFile
func NewRegistry() *Registry {
	r := &Registry{}
	r.Reset()
	return r
}

// 全局版本注册表
var globalRegistry = NewRegistry()

// Global 返回进程级注册表
func Global() *Registry {
	return globalRegistry
}

// SetSchemaVersion 在全局注册表中为 path 注册版本
func SetSchemaVersion(version schema.Version, path string, block Block, opts ...EntryOption) error {
	return globalRegistry.SetVersion(path, version, block, opts...)
}

// SetDefaultSchemaVersion 在全局注册表中为默认存储注册版本
func SetDefaultSchemaVersion(version schema.Version, block Block, opts ...EntryOption) error {
	return globalRegistry.SetDefaultVersion(version, block, opts...)
}

// LookupEntry 在全局注册表中查找
func LookupEntry(path string) (*Entry, bool) {
	return globalRegistry.Lookup(path)
}

// ResetRegistry 清空全局注册表（测试用）
func ResetRegistry() {
	globalRegistry.Reset()
}

// SetDefaultPath 修改全局默认存储路径
func SetDefaultPath(path string) {
	globalRegistry.SetDefaultPath(path)
}

// DefaultPath 全局默认存储路径
func DefaultPath() string {
	return globalRegistry.DefaultPath()
}

// NormalizePath 转换为干净的绝对路径，作为注册表的键
func NormalizePath(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		return filepath.Clean(path)
	}
	return abs
}

// SetVersion 注册或替换 path 的版本与回调，不触碰存储文件
func (r *Registry) SetVersion(path string, version schema.Version, block Block, opts ...EntryOption) error {
	if path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	key := NormalizePath(path)
	entry := newEntry(key, version, block, opts)

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkObservedLocked(key, version); err != nil {
		return err
	}
	r.entries[key] = entry
	return nil
}

// SetDefaultVersion 为默认存储注册版本与回调
func (r *Registry) SetDefaultVersion(version schema.Version, block Block, opts ...EntryOption) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.checkObservedLocked(r.defaultPath, version); err != nil {
		return err
	}
	r.defaultEntry = newEntry(r.defaultPath, version, block, opts)
	return nil
}

// Lookup 先查精确路径，再在 path 为默认路径时回落到默认注册项
func (r *Registry) Lookup(path string) (*Entry, bool) {
	key := NormalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	if e, ok := r.entries[key]; ok {
		return e, true
	}
	if key == r.defaultPath && r.defaultEntry != nil {
		e := *r.defaultEntry
		e.Path = key
		return &e, true
	}
	return nil, false
}

// Observe 记录引擎读取到的持久化版本，只保留最大值
func (r *Registry) Observe(path string, version schema.Version) {
	key := NormalizePath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	if v, ok := r.observed[key]; !ok || version > v {
		r.observed[key] = version
	}
}

// Observed 返回 path 已观察到的最大持久化版本
func (r *Registry) Observed(path string) (schema.Version, bool) {
	key := NormalizePath(path)

	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.observed[key]
	return v, ok
}

// SetDefaultPath 修改默认存储路径
func (r *Registry) SetDefaultPath(path string) {
	key := NormalizePath(path)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaultPath = key
	if r.defaultEntry != nil {
		r.defaultEntry.Path = key
	}
}

// DefaultPath 默认存储路径
func (r *Registry) DefaultPath() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.defaultPath
}

// Reset 清空所有注册项与观察记录，默认路径恢复为初始值
func (r *Registry) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries = make(map[string]*Entry)
	r.observed = make(map[string]schema.Version)
	r.defaultEntry = nil
	r.defaultPath = initialDefaultPath()
}

func (r *Registry) checkObservedLocked(key string, version schema.Version) error {
	if v, ok := r.observed[key]; ok && version < v {
		return fmt.Errorf("%w: %d is lower than persisted version %d of %s", ErrInvalidVersion, version, v, key)
	}
	return nil
}

func newEntry(key string, version schema.Version, block Block, opts []EntryOption) *Entry {
	e := &Entry{
		Path:    key,
		Version: version,
		Block:   block,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func initialDefaultPath() string {
	wd, err := os.Getwd()
	if err != nil {
		return NormalizePath(consts.DefaultStoreFile)
	}
	return NormalizePath(filepath.Join(wd, consts.DefaultStoreFile))
}
