package store

import (
	"context"
	"fmt"
	"time"
)

// 分析记录状态
const (
	RunStatusSuccess = "success"
	RunStatusFailed  = "failed"
)

// AnalysisRun 一次分析的记录
type AnalysisRun struct {
	ID           string    `db:"id" json:"id"`
	Filename     string    `db:"filename" json:"filename"`
	Fingerprint  string    `db:"fingerprint" json:"fingerprint"`
	SheetCount   int       `db:"sheet_count" json:"sheet_count"`
	UsableSheets int       `db:"usable_sheets" json:"usable_sheets"`
	RecordCount  int       `db:"record_count" json:"record_count"`
	Status       string    `db:"status" json:"status"`
	ErrorMessage string    `db:"error_message" json:"error_message,omitempty"`
	DurationMS   int64     `db:"duration_ms" json:"duration_ms"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
}

// CreateRun 写入分析记录
func (s *Store) CreateRun(ctx context.Context, run AnalysisRun) error {
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO analysis_runs (
			id, filename, fingerprint,
			sheet_count, usable_sheets, record_count,
			status, error_message, duration_ms, created_at
		) VALUES (
			:id, :filename, :fingerprint,
			:sheet_count, :usable_sheets, :record_count,
			:status, :error_message, :duration_ms, :created_at
		)
	`, run)
	if err != nil {
		return fmt.Errorf("failed to create analysis run: %w", err)
	}
	return nil
}

// ListRuns 最近的分析记录，limit<=0 时返回全部
func (s *Store) ListRuns(ctx context.Context, limit int) ([]AnalysisRun, error) {
	query := `
		SELECT id, filename, fingerprint, sheet_count, usable_sheets, record_count,
			status, error_message, duration_ms, created_at
		FROM analysis_runs
		ORDER BY created_at DESC, rowid DESC
	`
	args := []any{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	runs := []AnalysisRun{}
	if err := s.db.SelectContext(ctx, &runs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list analysis runs: %w", err)
	}
	return runs, nil
}

// CountRuns 按状态统计分析次数
func (s *Store) CountRuns(ctx context.Context) (map[string]int, error) {
	rows, err := s.db.QueryxContext(ctx, `SELECT status, COUNT(*) FROM analysis_runs GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count analysis runs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
