package service

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/peter-zx/xuwei-data/internal/apperr"
	"github.com/peter-zx/xuwei-data/internal/compare"
	"github.com/peter-zx/xuwei-data/internal/export"
	"github.com/peter-zx/xuwei-data/internal/model"
	"github.com/peter-zx/xuwei-data/internal/store"
)

// Analyze 按映射并行抽取全部 Sheet，结果顺序与工作簿中的顺序一致。
// 单个 Sheet 失败不影响其他 Sheet。
func (s *Service) Analyze(ctx context.Context, fileID string, mappings model.MappingConfig) ([]model.SheetResult, error) {
	start := s.now()
	u, err := s.lookup(fileID)
	if err != nil {
		return nil, err
	}
	mappings = mappings.Clean()

	names := u.wb.SheetNames()
	results := make([]model.SheetResult, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			results[i] = u.wb.Extract(name, mappings[name])
			return nil
		})
	}
	waitErr := g.Wait()

	run := store.AnalysisRun{
		ID:          uuid.New().String(),
		Filename:    u.info.Filename,
		Fingerprint: u.info.Fingerprint,
		SheetCount:  len(names),
		Status:      store.RunStatusSuccess,
		CreatedAt:   start,
	}
	if waitErr != nil {
		run.Status = store.RunStatusFailed
		run.ErrorMessage = waitErr.Error()
	} else {
		for _, r := range results {
			if r.Usable() {
				run.UsableSheets++
			}
			run.RecordCount += r.RecordCount
			if s.metrics != nil {
				s.metrics.IncSheet(r.Success, r.RecordCount)
			}
		}
	}
	run.DurationMS = s.now().Sub(start).Milliseconds()
	s.recordRun(ctx, run)
	if s.metrics != nil {
		s.metrics.ObserveAnalyze(start)
	}

	if waitErr != nil {
		if errors.Is(waitErr, context.Canceled) || errors.Is(waitErr, context.DeadlineExceeded) {
			return nil, waitErr
		}
		return nil, apperr.Wrap(waitErr, "分析失败")
	}

	s.logger.InfoContext(ctx, "workbook analyzed",
		"file_id", fileID, "sheets", run.SheetCount, "usable", run.UsableSheets,
		"records", run.RecordCount, "duration_ms", run.DurationMS)
	for _, r := range results {
		if !r.Success {
			s.logger.WarnContext(ctx, "sheet extraction failed", "file_id", fileID, "sheet", r.Name, "error", r.Error)
		}
	}
	return results, nil
}

func (s *Service) recordRun(ctx context.Context, run store.AnalysisRun) {
	if s.runs == nil {
		return
	}
	// 记录失败不影响分析结果
	if err := s.runs.CreateRun(context.WithoutCancel(ctx), run); err != nil {
		s.logger.ErrorContext(ctx, "record analysis run", "error", err)
	}
}

// Compare 抽取后在服务端完成对比
func (s *Service) Compare(ctx context.Context, fileID string, mappings model.MappingConfig) (*compare.Result, error) {
	results, err := s.Analyze(ctx, fileID, mappings)
	if err != nil {
		return nil, err
	}
	return s.compare(ctx, results)
}

func (s *Service) compare(ctx context.Context, results []model.SheetResult) (*compare.Result, error) {
	result, err := compare.Compare(results, compare.WithIdentity(s.identity))
	if s.metrics != nil {
		groups := 0
		if result != nil {
			groups = len(result.Groups)
		}
		s.metrics.ObserveCompare(err == nil, groups)
	}
	if err != nil {
		return nil, err
	}
	for _, w := range result.Warnings {
		s.logger.WarnContext(ctx, "duplicate person key", "sheet", w.Sheet, "key", w.Key, "rows", w.Rows)
	}
	return result, nil
}

// ExportRequest 服务端导出参数
type ExportRequest struct {
	FileID   string
	Mappings model.MappingConfig
	Mode     export.Mode
	Filter   compare.Filter
	Label    string
}

// Export 抽取、对比并生成导出文件。
// xlsx 在可对比 Sheet 不足时仍导出各 Sheet 的数据，CSV 则返回对比错误。
func (s *Service) Export(ctx context.Context, req ExportRequest) (export.File, error) {
	if req.Label == "" {
		req.Label = DefaultExportLabel
	}
	results, err := s.Analyze(ctx, req.FileID, req.Mappings)
	if err != nil {
		return export.File{}, err
	}

	result, err := s.compare(ctx, results)
	if err != nil && !(req.Mode == export.ModeXLSX && apperr.HasCode(err, apperr.CodeInsufficientSheets)) {
		return export.File{}, err
	}

	var groups []*compare.Group
	if result != nil {
		groups = compare.FilterGroups(result, req.Filter)
	}
	file, err := export.Render(export.Request{
		Mode:   req.Mode,
		Label:  req.Label,
		Result: result,
		Groups: groups,
		Sheets: results,
		Now:    s.now(),
	})
	if err != nil {
		return export.File{}, err
	}
	if s.metrics != nil {
		s.metrics.IncExport(string(req.Mode))
	}
	s.logger.InfoContext(ctx, "export generated", "file_id", req.FileID, "mode", req.Mode, "name", file.Name, "bytes", len(file.Data))
	return file, nil
}
