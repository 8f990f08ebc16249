package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/peter-zx/xuwei-data/internal/model"
)

// MappingEntry 映射缓存条目
type MappingEntry struct {
	Fingerprint string              `json:"fingerprint"`
	Mappings    model.MappingConfig `json:"mappings"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

type mappingRow struct {
	Fingerprint  string `db:"fingerprint"`
	MappingsJSON string `db:"mappings_json"`
	UpdatedAt    int64  `db:"updated_at"`
}

func (r mappingRow) entry() (MappingEntry, error) {
	var m model.MappingConfig
	if err := json.Unmarshal([]byte(r.MappingsJSON), &m); err != nil {
		return MappingEntry{}, fmt.Errorf("decode mapping %s: %w", r.Fingerprint, err)
	}
	return MappingEntry{
		Fingerprint: r.Fingerprint,
		Mappings:    m,
		UpdatedAt:   time.Unix(0, r.UpdatedAt),
	}, nil
}

// SaveMapping 保存映射并淘汰旧条目，只保留最近 model.MaxCachedMappings 条
func (s *Store) SaveMapping(ctx context.Context, fingerprint string, mappings model.MappingConfig) error {
	data, err := json.Marshal(mappings)
	if err != nil {
		return fmt.Errorf("failed to encode mapping: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	// updated_at 严格递增，同一时刻多次保存也能区分先后
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO mapping_cache (fingerprint, mappings_json, updated_at)
		VALUES (?, ?, MAX(?, COALESCE((SELECT MAX(updated_at) FROM mapping_cache), 0) + 1))
		ON CONFLICT(fingerprint) DO UPDATE SET
			mappings_json = excluded.mappings_json,
			updated_at = excluded.updated_at
	`, fingerprint, string(data), time.Now().UnixNano()); err != nil {
		return fmt.Errorf("failed to save mapping: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `
		DELETE FROM mapping_cache WHERE fingerprint NOT IN (
			SELECT fingerprint FROM mapping_cache ORDER BY updated_at DESC LIMIT ?
		)
	`, model.MaxCachedMappings); err != nil {
		return fmt.Errorf("failed to evict mappings: %w", err)
	}

	return tx.Commit()
}

// LoadMapping 读取映射，不存在时返回 false
func (s *Store) LoadMapping(ctx context.Context, fingerprint string) (model.MappingConfig, bool, error) {
	var row mappingRow
	err := s.db.GetContext(ctx, &row, `
		SELECT fingerprint, mappings_json, updated_at FROM mapping_cache WHERE fingerprint = ?
	`, fingerprint)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to load mapping: %w", err)
	}
	entry, err := row.entry()
	if err != nil {
		return nil, false, err
	}
	return entry.Mappings, true, nil
}

// ListMappings 按最近使用排序列出缓存
func (s *Store) ListMappings(ctx context.Context) ([]MappingEntry, error) {
	var rows []mappingRow
	if err := s.db.SelectContext(ctx, &rows, `
		SELECT fingerprint, mappings_json, updated_at FROM mapping_cache ORDER BY updated_at DESC
	`); err != nil {
		return nil, fmt.Errorf("failed to list mappings: %w", err)
	}
	entries := make([]MappingEntry, 0, len(rows))
	for _, r := range rows {
		e, err := r.entry()
		if err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// DeleteMapping 删除单条映射
func (s *Store) DeleteMapping(ctx context.Context, fingerprint string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mapping_cache WHERE fingerprint = ?`, fingerprint); err != nil {
		return fmt.Errorf("failed to delete mapping: %w", err)
	}
	return nil
}

// ClearMappings 清空映射缓存
func (s *Store) ClearMappings(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM mapping_cache`); err != nil {
		return fmt.Errorf("failed to clear mappings: %w", err)
	}
	return nil
}
