package api

import (
	"crypto/rand"
	"encoding/base64"
	"sync"
	"time"

	"github.com/peter-zx/xuwei-data/internal/export"
)

type pendingDownload struct {
	file      export.File
	expiresAt time.Time
}

// downloadStore 一次性下载：token 取用后即失效
type downloadStore struct {
	mu    sync.Mutex
	items map[string]pendingDownload
	ttl   time.Duration
	now   func() time.Time
}

func newDownloadStore(ttl time.Duration) *downloadStore {
	return &downloadStore{
		items: make(map[string]pendingDownload),
		ttl:   ttl,
		now:   time.Now,
	}
}

func (s *downloadStore) put(file export.File) (token string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeExpiredLocked(now)

	token = newRandomToken(24)
	s.items[token] = pendingDownload{file: file, expiresAt: now.Add(s.ttl)}
	return token
}

// take 取出并删除
func (s *downloadStore) take(token string) (export.File, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	s.purgeExpiredLocked(now)

	v, ok := s.items[token]
	if !ok {
		return export.File{}, false
	}
	delete(s.items, token)
	return v.file, true
}

func (s *downloadStore) purgeExpiredLocked(now time.Time) {
	for k, v := range s.items {
		if now.After(v.expiresAt) {
			delete(s.items, k)
		}
	}
}

func newRandomToken(n int) string {
	b := make([]byte, n)
	_, _ = rand.Read(b)
	return base64.RawURLEncoding.EncodeToString(b)
}
