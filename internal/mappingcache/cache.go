// Package mappingcache 以 JSON 文件保存映射缓存，供命令行使用。
package mappingcache

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"sort"
	"sync"
	"time"

	"github.com/peter-zx/xuwei-data/internal/model"
)

// DefaultFilename 默认缓存文件名
const DefaultFilename = "mapping_cache.json"

type entry struct {
	Fingerprint string              `json:"fingerprint"`
	Mappings    model.MappingConfig `json:"mappings"`
	UpdatedAt   time.Time           `json:"updated_at"`
	Seq         int64               `json:"seq"`
}

// File 文件映射缓存，最多保留 model.MaxCachedMappings 条
type File struct {
	path string

	mu  sync.Mutex
	now func() time.Time
}

// New 创建文件缓存；文件不存在时首次保存会自动创建
func New(path string) *File {
	return &File{path: path, now: time.Now}
}

// Path 缓存文件路径
func (f *File) Path() string {
	return f.path
}

func (f *File) load() ([]entry, error) {
	var entries []entry
	if err := readJSON(f.path, &entries); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read mapping cache: %w", err)
	}
	return entries, nil
}

// LoadMapping 读取映射，不存在时返回 false
func (f *File) LoadMapping(_ context.Context, fingerprint string) (model.MappingConfig, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return nil, false, err
	}
	for _, e := range entries {
		if e.Fingerprint == fingerprint {
			return e.Mappings, true, nil
		}
	}
	return nil, false, nil
}

// SaveMapping 保存映射，超出上限时淘汰最久未保存的条目
func (f *File) SaveMapping(_ context.Context, fingerprint string, mappings model.MappingConfig) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return err
	}

	var seq int64
	kept := entries[:0]
	for _, e := range entries {
		if e.Seq > seq {
			seq = e.Seq
		}
		if e.Fingerprint != fingerprint {
			kept = append(kept, e)
		}
	}
	kept = append(kept, entry{
		Fingerprint: fingerprint,
		Mappings:    mappings.Clone(),
		UpdatedAt:   f.now(),
		Seq:         seq + 1,
	})

	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Seq > kept[j].Seq })
	if len(kept) > model.MaxCachedMappings {
		kept = kept[:model.MaxCachedMappings]
	}
	return writeJSONAtomic(f.path, kept)
}

// DeleteMapping 删除单条映射
func (f *File) DeleteMapping(_ context.Context, fingerprint string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return err
	}
	kept := entries[:0]
	for _, e := range entries {
		if e.Fingerprint != fingerprint {
			kept = append(kept, e)
		}
	}
	if len(kept) == len(entries) {
		return nil
	}
	return writeJSONAtomic(f.path, kept)
}

// ClearMappings 清空缓存
func (f *File) ClearMappings(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return writeJSONAtomic(f.path, []entry{})
}

// Fingerprints 按最近保存排序返回所有键
func (f *File) Fingerprints() ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	entries, err := f.load()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].Seq > entries[j].Seq })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Fingerprint
	}
	return out, nil
}
