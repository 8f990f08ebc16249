package service

import (
	"sync"
	"time"

	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/workbook"
)

type upload struct {
	info      model.UploadInfo
	wb        *workbook.Workbook
	expiresAt time.Time
}

// uploadRegistry 内存中的上传文件，访问时顺延有效期，过期后关闭并移除
type uploadRegistry struct {
	mu    sync.Mutex
	items map[string]*upload
	ttl   time.Duration
	now   func() time.Time
}

func newUploadRegistry(ttl time.Duration) *uploadRegistry {
	return &uploadRegistry{
		items: make(map[string]*upload),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (r *uploadRegistry) put(info model.UploadInfo, wb *workbook.Workbook) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.purgeExpiredLocked(now)
	r.items[info.FileID] = &upload{info: info, wb: wb, expiresAt: now.Add(r.ttl)}
}

func (r *uploadRegistry) get(fileID string) (*upload, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.purgeExpiredLocked(now)

	u, ok := r.items[fileID]
	if !ok {
		return nil, false
	}
	u.expiresAt = now.Add(r.ttl)
	return u, true
}

func (r *uploadRegistry) remove(fileID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.items[fileID]
	if !ok {
		return false
	}
	_ = u.wb.Close()
	delete(r.items, fileID)
	return true
}

func (r *uploadRegistry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.purgeExpiredLocked(r.now())
	return len(r.items)
}

func (r *uploadRegistry) closeAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, u := range r.items {
		_ = u.wb.Close()
		delete(r.items, k)
	}
}

func (r *uploadRegistry) purgeExpiredLocked(now time.Time) {
	for k, u := range r.items {
		if now.After(u.expiresAt) {
			_ = u.wb.Close()
			delete(r.items, k)
		}
	}
}
